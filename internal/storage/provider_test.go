package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmWasm/hostapi/internal/trie"
	"github.com/CosmWasm/hostapi/types"
)

type mutation struct {
	remove    bool
	key       string
	old, new  []byte
	extrinsic uint32
}

type recordingObserver struct {
	mutations []mutation
	fail      error
}

func (o *recordingObserver) OnPut(key, oldValue, newValue []byte, extrinsic uint32) error {
	if o.fail != nil {
		return o.fail
	}
	o.mutations = append(o.mutations, mutation{key: string(key), old: oldValue, new: newValue, extrinsic: extrinsic})
	return nil
}

func (o *recordingObserver) OnRemove(key, oldValue []byte, extrinsic uint32) error {
	if o.fail != nil {
		return o.fail
	}
	o.mutations = append(o.mutations, mutation{remove: true, key: string(key), old: oldValue, extrinsic: extrinsic})
	return nil
}

func newTestStorage(t *testing.T) *TrieStorage {
	t.Helper()
	s, err := trie.NewSerializer(trie.NewBackend(dbm.NewMemDB(), nil), trie.NewCodec(), 64)
	require.NoError(t, err)
	storage, err := CreateEmpty(s, zerolog.Nop())
	require.NoError(t, err)
	return storage
}

func newTestProvider(t *testing.T) (*Provider, *recordingObserver) {
	t.Helper()
	obs := &recordingObserver{}
	return NewProvider(newTestStorage(t), obs, zerolog.Nop()), obs
}

func TestCreateEmpty(t *testing.T) {
	storage := newTestStorage(t)
	assert.Equal(t, trie.EmptyRootHash, storage.RootHash())
	_, ok := storage.Get([]byte("anything"))
	assert.False(t, ok)

	root, ok, err := storage.Serializer().Backend().Root()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, trie.EmptyRootHash, root)
}

func TestTrieStoragePutRemove(t *testing.T) {
	storage := newTestStorage(t)
	root := storage.Put([]byte("a"), []byte("1"))
	assert.NotEqual(t, trie.EmptyRootHash, root)
	assert.Equal(t, root, storage.RootHash())
	assert.Equal(t, trie.EmptyRootHash, storage.Remove([]byte("a")))
}

func TestSessionLifecycle(t *testing.T) {
	p, _ := newTestProvider(t)

	_, err := p.StateRoot()
	require.ErrorIs(t, err, types.ErrNoActiveSession)
	require.ErrorIs(t, p.Rollback(), types.ErrNoActiveSession)
	_, err = p.Commit()
	require.ErrorIs(t, err, types.ErrNoActiveSession)
	require.ErrorIs(t, p.Put([]byte("k"), []byte("v")), types.ErrNoActiveSession)

	require.NoError(t, p.StartSession(1))
	require.True(t, p.IsActive())
	require.NoError(t, p.Put([]byte("k"), []byte("v")))
	root, err := p.Commit()
	require.NoError(t, err)
	assert.False(t, p.IsActive())

	require.NoError(t, p.StartSession(2))
	v, ok, err := p.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
	current, err := p.StateRoot()
	require.NoError(t, err)
	assert.Equal(t, root, current)
	require.NoError(t, p.Rollback())
}

func TestRollbackRestoresPreSessionState(t *testing.T) {
	p, _ := newTestProvider(t)
	require.NoError(t, p.StartSession(1))
	require.NoError(t, p.Put([]byte("existing"), []byte("old")))
	before, err := p.Commit()
	require.NoError(t, err)

	require.NoError(t, p.StartSession(2))
	require.NoError(t, p.Put([]byte("k"), []byte("v")))
	require.NoError(t, p.Put([]byte("existing"), []byte("new")))
	require.NoError(t, p.Remove([]byte("existing")))
	require.NoError(t, p.Rollback())

	require.NoError(t, p.StartSession(3))
	_, ok, err := p.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
	v, ok, err := p.Get([]byte("existing"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("old"), v)
	root, err := p.StateRoot()
	require.NoError(t, err)
	assert.Equal(t, before, root)
}

func TestSecondSessionFails(t *testing.T) {
	p, obs := newTestProvider(t)
	require.NoError(t, p.StartSession(1))
	require.NoError(t, p.Put([]byte("k"), []byte("v")))
	rootBefore, err := p.StateRoot()
	require.NoError(t, err)

	err = p.StartSession(2)
	require.ErrorIs(t, err, types.ErrSessionAlreadyActive)
	require.ErrorIs(t, err, types.ErrSession)
	require.ErrorIs(t, p.StartSessionAt(trie.EmptyRootHash, 2), types.ErrSessionAlreadyActive)

	// the failed attempts neither mutated state nor reset the session
	rootAfter, err := p.StateRoot()
	require.NoError(t, err)
	assert.Equal(t, rootBefore, rootAfter)
	assert.Equal(t, uint32(1), p.Block())
	assert.Len(t, obs.mutations, 1)
}

func TestStartSessionAtEarlierRoot(t *testing.T) {
	p, _ := newTestProvider(t)
	require.NoError(t, p.StartSession(1))
	require.NoError(t, p.Put([]byte("a"), []byte("1")))
	first, err := p.Commit()
	require.NoError(t, err)

	require.NoError(t, p.StartSession(2))
	require.NoError(t, p.Put([]byte("b"), []byte("2")))
	_, err = p.Commit()
	require.NoError(t, err)

	require.NoError(t, p.StartSessionAt(first, 2))
	has, err := p.Exists([]byte("b"))
	require.NoError(t, err)
	assert.False(t, has)
	base, err := p.BaseRoot()
	require.NoError(t, err)
	assert.Equal(t, first, base)
	require.NoError(t, p.Rollback())

	err = p.StartSessionAt(types.Hash{1}, 3)
	require.ErrorIs(t, err, types.ErrNodeNotFound)
	assert.False(t, p.IsActive())
}

func TestOneMutationRecordPerCall(t *testing.T) {
	p, obs := newTestProvider(t)
	require.NoError(t, p.StartSession(1))

	require.NoError(t, p.Put([]byte("a"), []byte("1")))
	require.NoError(t, p.Put([]byte("a"), []byte("2")))
	require.NoError(t, p.Remove([]byte("a")))
	require.NoError(t, p.Remove([]byte("never-set")))

	idx := make([]byte, 4)
	binary.LittleEndian.PutUint32(idx, 7)
	require.NoError(t, p.Put(ExtrinsicIndexKey, idx))
	require.NoError(t, p.Put([]byte("b"), []byte("3")))

	expected := []mutation{
		{key: "a", old: nil, new: []byte("1"), extrinsic: NoExtrinsic},
		{key: "a", old: []byte("1"), new: []byte("2"), extrinsic: NoExtrinsic},
		{remove: true, key: "a", old: []byte("2"), extrinsic: NoExtrinsic},
		{remove: true, key: "never-set", old: nil, extrinsic: NoExtrinsic},
		{key: string(ExtrinsicIndexKey), old: nil, new: idx, extrinsic: NoExtrinsic},
		{key: "b", old: nil, new: []byte("3"), extrinsic: 7},
	}
	assert.Equal(t, expected, obs.mutations)
}

func TestObserverFailureAbortsMutation(t *testing.T) {
	p, obs := newTestProvider(t)
	require.NoError(t, p.StartSession(1))
	obs.fail = errors.New("boom")

	require.ErrorContains(t, p.Put([]byte("k"), []byte("v")), "boom")
	has, err := p.Exists([]byte("k"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestNestedTransactions(t *testing.T) {
	p, _ := newTestProvider(t)
	require.NoError(t, p.StartSession(1))
	require.ErrorIs(t, p.CommitTransaction(), types.ErrNoActiveTransaction)
	require.ErrorIs(t, p.RollbackTransaction(), types.ErrNoActiveTransaction)

	require.NoError(t, p.Put([]byte("outer"), []byte("1")))
	require.NoError(t, p.StartTransaction())
	require.NoError(t, p.Put([]byte("inner"), []byte("2")))
	require.NoError(t, p.StartTransaction())
	require.NoError(t, p.Put([]byte("innermost"), []byte("3")))
	require.NoError(t, p.RollbackTransaction())
	require.NoError(t, p.CommitTransaction())

	for key, expected := range map[string]bool{"outer": true, "inner": true, "innermost": false} {
		has, err := p.Exists([]byte(key))
		require.NoError(t, err)
		assert.Equal(t, expected, has, key)
	}
}

func TestClearPrefixWithLimit(t *testing.T) {
	p, obs := newTestProvider(t)
	require.NoError(t, p.StartSession(1))
	for _, k := range []string{"pre:a", "pre:b", "pre:c", "other"} {
		require.NoError(t, p.Put([]byte(k), []byte("x")))
	}
	obs.mutations = nil

	removed, all, err := p.ClearPrefix([]byte("pre:"), 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), removed)
	assert.False(t, all)
	assert.Len(t, obs.mutations, 2)

	removed, all, err = p.ClearPrefix([]byte("pre:"), -1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), removed)
	assert.True(t, all)

	next, ok, err := p.NextKey(nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("other"), next)
}

type readingObserver struct {
	provider *Provider
	seen     []string
}

func (o *readingObserver) OnPut(key, _, _ []byte, _ uint32) error {
	v, _, err := o.provider.Get(key)
	o.seen = append(o.seen, string(v))
	return err
}

func (o *readingObserver) OnRemove(key, _ []byte, _ uint32) error {
	ok, err := o.provider.Exists(key)
	o.seen = append(o.seen, fmt.Sprintf("exists=%t", ok))
	return err
}

func TestObserverSeesMutation(t *testing.T) {
	obs := &readingObserver{}
	p := NewProvider(newTestStorage(t), obs, zerolog.Nop())
	obs.provider = p
	require.NoError(t, p.StartSession(1))

	require.NoError(t, p.Put([]byte("k"), []byte("v1")))
	require.NoError(t, p.Put([]byte("k"), []byte("v2")))
	require.NoError(t, p.Remove([]byte("k")))
	assert.Equal(t, []string{"v1", "v2", "exists=false"}, obs.seen)
}

func TestOpenReopensCommittedRoot(t *testing.T) {
	db := dbm.NewMemDB()
	newSerializer := func() *trie.Serializer {
		s, err := trie.NewSerializer(trie.NewBackend(db, []byte("state/")), trie.NewCodec(), 0)
		require.NoError(t, err)
		return s
	}

	fresh, err := Open(newSerializer(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, trie.EmptyRootHash, fresh.RootHash())

	p := NewProvider(fresh, nil, zerolog.Nop())
	require.NoError(t, p.StartSession(1))
	require.NoError(t, p.Put([]byte("k"), []byte("v")))
	root, err := p.Commit()
	require.NoError(t, err)

	reopened, err := Open(newSerializer(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, root, reopened.RootHash())
	v, ok := reopened.Get([]byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	_, err = CreateFromStorage(types.Hash{0xee}, newSerializer(), zerolog.Nop())
	require.ErrorIs(t, err, types.ErrNodeNotFound)
}
