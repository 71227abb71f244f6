package trie

import (
	"fmt"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/CosmWasm/hostapi/types"
)

var rootPointerKey = []byte(":trie_root")

// Backend stores node encodings in a key/value store under prefix||hash and
// remembers the most recently stored root.
type Backend struct {
	db     dbm.DB
	prefix []byte
}

func NewBackend(db dbm.DB, prefix []byte) *Backend {
	return &Backend{db: db, prefix: prefix}
}

func (b *Backend) nodeKey(hash []byte) []byte {
	return append(append([]byte{}, b.prefix...), hash...)
}

// GetNode returns the encoding stored under hash.
func (b *Backend) GetNode(hash []byte) ([]byte, error) {
	enc, err := b.db.Get(b.nodeKey(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: reading node %x: %w", types.ErrStorage, hash, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("%w: %x", types.ErrNodeNotFound, hash)
	}
	return enc, nil
}

func (b *Backend) HasNode(hash []byte) (bool, error) {
	return b.db.Has(b.nodeKey(hash))
}

// WriteNodes stores all encodings and points the root marker at root in one
// batch.
func (b *Backend) WriteNodes(nodes map[types.Hash][]byte, root types.Hash) error {
	batch := b.db.NewBatch()
	defer batch.Close()
	for hash, enc := range nodes {
		if err := batch.Set(b.nodeKey(hash[:]), enc); err != nil {
			return fmt.Errorf("%w: %w", types.ErrStorage, err)
		}
	}
	if err := batch.Set(b.nodeKey(rootPointerKey), root[:]); err != nil {
		return fmt.Errorf("%w: %w", types.ErrStorage, err)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("%w: writing batch: %w", types.ErrStorage, err)
	}
	return nil
}

// Root returns the last root written through WriteNodes.
func (b *Backend) Root() (types.Hash, bool, error) {
	bz, err := b.db.Get(b.nodeKey(rootPointerKey))
	if err != nil {
		return types.Hash{}, false, fmt.Errorf("%w: %w", types.ErrStorage, err)
	}
	if bz == nil {
		return types.Hash{}, false, nil
	}
	h, err := types.NewHash(bz)
	if err != nil {
		return types.Hash{}, false, fmt.Errorf("%w: corrupt root pointer: %w", types.ErrStorage, err)
	}
	return h, true, nil
}
