package changes

import (
	"fmt"
	"sort"

	"github.com/ChainSafe/gossamer/pkg/scale"
	"github.com/google/btree"
	"github.com/rs/zerolog"

	"github.com/CosmWasm/hostapi/internal/subscription"
	"github.com/CosmWasm/hostapi/internal/trie"
	"github.com/CosmWasm/hostapi/types"
)

// extrinsicIndexPrefix tags changes trie keys mapping a storage key to the
// extrinsics that changed it.
const extrinsicIndexPrefix byte = 1

// HeaderLookup resolves block numbers of stored headers.
type HeaderLookup interface {
	GetNumberByHash(hash types.Hash) (uint32, error)
}

// Engine is the pub/sub engine change records are published on, keyed by
// storage key.
type Engine = subscription.Engine[string, Record]

// NewEngine creates an engine for change records.
func NewEngine(logger zerolog.Logger) *Engine {
	return subscription.New[string, Record](logger)
}

// Tracker records every mutation of a tracking session and maintains the
// changes trie derived from those records.
type Tracker struct {
	codec   *trie.Codec
	headers HeaderLookup
	engine  *Engine
	logger  zerolog.Logger

	parent     types.Hash
	block      uint32
	seq        uint64
	records    []Record
	changed    *btree.BTreeG[string]
	extrinsics map[string][]uint32
	changes    *trie.Trie
}

func NewTracker(codec *trie.Codec, headers HeaderLookup, engine *Engine, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		codec:   codec,
		headers: headers,
		engine:  engine,
		logger:  logger.With().Str("module", "changes_tracker").Logger(),
	}
	t.reset()
	return t
}

func (t *Tracker) reset() {
	t.seq = 0
	t.records = nil
	t.changed = btree.NewG[string](8, func(a, b string) bool { return a < b })
	t.extrinsics = make(map[string][]uint32)
	t.changes = trie.New(t.codec)
}

// StartTracking clears all records and starts a session for the block built
// on top of parent.
func (t *Tracker) StartTracking(parent types.Hash, block uint32) {
	t.reset()
	t.parent = parent
	t.block = block
	t.logger.Debug().Uint32("block", block).Str("parent", parent.String()).Msg("tracking started")
}

func (t *Tracker) OnPut(key, oldValue, newValue []byte, extrinsic uint32) error {
	if newValue == nil {
		newValue = []byte{}
	}
	return t.track(key, oldValue, newValue, extrinsic)
}

func (t *Tracker) OnRemove(key, oldValue []byte, extrinsic uint32) error {
	return t.track(key, oldValue, nil, extrinsic)
}

func (t *Tracker) track(key, oldValue, newValue []byte, extrinsic uint32) error {
	skey := string(key)
	indices := insertSorted(t.extrinsics[skey], extrinsic)
	changes, err := t.putExtrinsics(t.changes, t.block, key, indices)
	if err != nil {
		return err
	}

	t.seq++
	rec := Record{
		Seq:       t.seq,
		Key:       clone(key),
		OldValue:  clone(oldValue),
		NewValue:  clone(newValue),
		Parent:    t.parent,
		Block:     t.block,
		Extrinsic: extrinsic,
	}
	t.records = append(t.records, rec)
	t.changed.ReplaceOrInsert(skey)
	t.extrinsics[skey] = indices
	t.changes = changes

	if t.engine != nil {
		t.engine.Publish(skey, rec)
	}
	return nil
}

func (t *Tracker) putExtrinsics(changes *trie.Trie, block uint32, key []byte, indices []uint32) (*trie.Trie, error) {
	ckey, err := changesKey(block, key)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding key %x: %w", types.ErrChangesTrieWrite, key, err)
	}
	value, err := scale.Marshal(indices)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding extrinsics of %x: %w", types.ErrChangesTrieWrite, key, err)
	}
	return changes.Put(ckey, value), nil
}

func changesKey(block uint32, key []byte) ([]byte, error) {
	return scale.Marshal(struct {
		Prefix byte
		Block  uint32
		Key    []byte
	}{extrinsicIndexPrefix, block, key})
}

// Records returns the mutations of the current session in call order.
func (t *Tracker) Records() []Record {
	return append([]Record(nil), t.records...)
}

// ChangedKeys returns the distinct keys changed in this session, sorted.
func (t *Tracker) ChangedKeys() [][]byte {
	keys := make([][]byte, 0, t.changed.Len())
	t.changed.Ascend(func(k string) bool {
		keys = append(keys, []byte(k))
		return true
	})
	return keys
}

// Extrinsics returns the sorted extrinsic indices that changed key.
func (t *Tracker) Extrinsics(key []byte) []uint32 {
	return append([]uint32(nil), t.extrinsics[string(key)]...)
}

func (t *Tracker) ChangesTrie() *trie.Trie {
	return t.changes
}

func (t *Tracker) ChangesRoot() types.Hash {
	return t.changes.RootHash()
}

// Block is the block number of the tracking session.
func (t *Tracker) Block() uint32 {
	return t.block
}

// ConstructChangesTrie rebuilds the changes trie for the block following
// parent. It reports false when nothing changed.
func (t *Tracker) ConstructChangesTrie(parent types.Hash) (types.Hash, bool, error) {
	number, err := t.headers.GetNumberByHash(parent)
	if err != nil {
		return types.Hash{}, false, fmt.Errorf("resolving parent %s: %w", parent, err)
	}
	block := number + 1
	changes := trie.New(t.codec)
	for _, key := range t.ChangedKeys() {
		if changes, err = t.putExtrinsics(changes, block, key, t.extrinsics[string(key)]); err != nil {
			return types.Hash{}, false, err
		}
	}
	t.parent = parent
	t.block = block
	t.changes = changes
	if changes.IsEmpty() {
		return types.Hash{}, false, nil
	}
	return changes.RootHash(), true, nil
}

// Proof returns a changes trie proof covering keys.
func (t *Tracker) Proof(keys [][]byte) ([][]byte, error) {
	ckeys := make([][]byte, 0, len(keys))
	for _, key := range keys {
		ckey, err := changesKey(t.block, key)
		if err != nil {
			return nil, err
		}
		ckeys = append(ckeys, ckey)
	}
	return trie.GenerateProof(t.changes, ckeys), nil
}

// VerifyProof checks that proof shows key changed by exactly the given
// extrinsics in block under root.
func VerifyProof(codec *trie.Codec, root types.Hash, proof [][]byte, block uint32, key []byte, extrinsics []uint32) (bool, error) {
	ckey, err := changesKey(block, key)
	if err != nil {
		return false, err
	}
	value, err := scale.Marshal(extrinsics)
	if err != nil {
		return false, err
	}
	return trie.VerifyProof(codec, root, proof, ckey, value)
}

func insertSorted(indices []uint32, v uint32) []uint32 {
	i := sort.Search(len(indices), func(i int) bool { return indices[i] >= v })
	if i < len(indices) && indices[i] == v {
		return indices
	}
	out := make([]uint32, 0, len(indices)+1)
	out = append(out, indices[:i]...)
	out = append(out, v)
	return append(out, indices[i:]...)
}
