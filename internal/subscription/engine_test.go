package subscription

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishInRegistrationOrder(t *testing.T) {
	engine := New[string, int](zerolog.Nop())
	var calls []string
	engine.Subscribe("k", func(v int) error { calls = append(calls, "first"); return nil })
	engine.Subscribe("k", func(v int) error { calls = append(calls, "second"); return nil })
	engine.Subscribe("other", func(v int) error { calls = append(calls, "other"); return nil })

	assert.Equal(t, 2, engine.Publish("k", 1))
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, 0, engine.Publish("nobody", 1))
}

func TestFailingSubscribersAreIsolated(t *testing.T) {
	engine := New[string, int](zerolog.Nop())
	var got []int
	engine.Subscribe("k", func(v int) error { return errors.New("bad subscriber") })
	engine.Subscribe("k", func(v int) error { panic("worse subscriber") })
	engine.Subscribe("k", func(v int) error { got = append(got, v); return nil })

	require.NotPanics(t, func() {
		assert.Equal(t, 1, engine.Publish("k", 42))
	})
	assert.Equal(t, []int{42}, got)
}

func TestUnsubscribe(t *testing.T) {
	engine := New[string, int](zerolog.Nop())
	count := 0
	a := engine.Subscribe("k", func(int) error { count++; return nil })
	b := engine.Subscribe("k", func(int) error { count += 10; return nil })
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, engine.SubscriberCount("k"))

	assert.True(t, a.Unsubscribe())
	assert.False(t, a.Unsubscribe())
	engine.Publish("k", 0)
	assert.Equal(t, 10, count)

	assert.True(t, b.Unsubscribe())
	assert.Equal(t, 0, engine.SubscriberCount("k"))
}
