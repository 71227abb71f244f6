package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmWasm/hostapi/types"
)

type closer struct {
	closed int
}

func (c *closer) Close(context.Context) error {
	c.closed++
	return nil
}

func TestSaveLoad(t *testing.T) {
	c := New[*closer]()
	hash := types.Hash{1}

	_, ok := c.Load(hash)
	require.False(t, ok)

	first := &closer{}
	got, saved := c.Save(hash, first, 42)
	require.True(t, saved)
	require.Same(t, first, got)

	// a racing loader keeps the first entry
	got, saved = c.Save(hash, &closer{}, 42)
	require.False(t, saved)
	require.Same(t, first, got)

	for i := 0; i < 3; i++ {
		_, ok = c.Load(hash)
		require.True(t, ok)
	}
	hits, size := c.Stats(hash)
	assert.Equal(t, uint32(3), hits)
	assert.Equal(t, uint64(42), size)
	assert.Equal(t, 1, c.Len())
}

func TestPinnedEntriesSurviveRemove(t *testing.T) {
	ctx := context.Background()
	c := New[*closer]()
	hash := types.Hash{2}
	entry := &closer{}
	c.Save(hash, entry, 1)

	c.Pin(hash)
	removed, err := c.Remove(ctx, hash)
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, 0, entry.closed)

	c.Unpin(hash)
	removed, err = c.Remove(ctx, hash)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 1, entry.closed)
	assert.Equal(t, 0, c.Len())
}

func TestCloseReleasesEverything(t *testing.T) {
	c := New[*closer]()
	a, b := &closer{}, &closer{}
	c.Save(types.Hash{1}, a, 1)
	c.Save(types.Hash{2}, b, 1)
	c.Pin(types.Hash{2})

	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
	assert.Equal(t, 0, c.Len())
}
