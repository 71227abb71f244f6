package storage

import (
	"encoding/binary"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CosmWasm/hostapi/internal/trie"
	"github.com/CosmWasm/hostapi/types"
)

// ExtrinsicIndexKey holds the index of the extrinsic being applied.
var ExtrinsicIndexKey = []byte(":extrinsic_index")

// NoExtrinsic is reported when ExtrinsicIndexKey is not set.
const NoExtrinsic uint32 = 0xFFFFFFFF

// Observer is told about every put and remove issued during a session, after
// the mutation is visible through the provider. A nil old value means the key
// was absent. Returning an error undoes the mutation.
type Observer interface {
	OnPut(key, oldValue, newValue []byte, extrinsic uint32) error
	OnRemove(key, oldValue []byte, extrinsic uint32) error
}

// Provider owns the single mutable trie of an execution. It is Idle until
// StartSession and returns to Idle on Commit or Rollback.
type Provider struct {
	storage  *TrieStorage
	observer Observer
	logger   zerolog.Logger

	active   bool
	block    uint32
	baseRoot types.Hash
	current  *trie.Trie
	// snapshots of current taken by StartTransaction, innermost last
	transactions []*trie.Trie
}

func NewProvider(storage *TrieStorage, observer Observer, logger zerolog.Logger) *Provider {
	return &Provider{
		storage:  storage,
		observer: observer,
		logger:   logger.With().Str("module", "storage_provider").Logger(),
	}
}

// StartSession opens a session on top of the last committed state.
func (p *Provider) StartSession(block uint32) error {
	if p.active {
		return types.ErrSessionAlreadyActive
	}
	return p.open(p.storage.Trie(), block)
}

// StartSessionAt opens a session on top of an earlier committed root.
func (p *Provider) StartSessionAt(root types.Hash, block uint32) error {
	if p.active {
		return types.ErrSessionAlreadyActive
	}
	t, err := p.storage.TrieAt(root)
	if err != nil {
		return err
	}
	return p.open(t, block)
}

func (p *Provider) open(t *trie.Trie, block uint32) error {
	p.active = true
	p.block = block
	p.current = t
	p.baseRoot = t.RootHash()
	p.transactions = nil
	p.logger.Debug().Uint32("block", block).Str("root", p.baseRoot.String()).Msg("session started")
	return nil
}

func (p *Provider) IsActive() bool {
	return p.active
}

// Block is the block number the active session executes in.
func (p *Provider) Block() uint32 {
	return p.block
}

// BaseRoot is the state root the active session started from.
func (p *Provider) BaseRoot() (types.Hash, error) {
	if !p.active {
		return types.Hash{}, types.ErrNoActiveSession
	}
	return p.baseRoot, nil
}

func (p *Provider) Get(key []byte) ([]byte, bool, error) {
	if !p.active {
		return nil, false, types.ErrNoActiveSession
	}
	v, ok := p.current.Get(key)
	return v, ok, nil
}

func (p *Provider) Exists(key []byte) (bool, error) {
	_, ok, err := p.Get(key)
	return ok, err
}

func (p *Provider) Put(key, value []byte) error {
	if !p.active {
		return types.ErrNoActiveSession
	}
	old, existed := p.current.Get(key)
	if !existed {
		old = nil
	}
	extrinsic := p.extrinsicIndex()
	prev := p.current
	p.current = p.current.Put(key, value)
	if p.observer != nil {
		if err := p.observer.OnPut(key, old, value, extrinsic); err != nil {
			p.current = prev
			return err
		}
	}
	return nil
}

func (p *Provider) Remove(key []byte) error {
	if !p.active {
		return types.ErrNoActiveSession
	}
	return p.remove(key)
}

func (p *Provider) remove(key []byte) error {
	old, existed := p.current.Get(key)
	if !existed {
		old = nil
	}
	extrinsic := p.extrinsicIndex()
	prev := p.current
	p.current = p.current.Remove(key)
	if p.observer != nil {
		if err := p.observer.OnRemove(key, old, extrinsic); err != nil {
			p.current = prev
			return err
		}
	}
	return nil
}

// ClearPrefix removes up to limit keys starting with prefix; a negative
// limit removes all of them. It returns the number of removed keys and
// whether none remain.
func (p *Provider) ClearPrefix(prefix []byte, limit int) (uint32, bool, error) {
	if !p.active {
		return 0, false, types.ErrNoActiveSession
	}
	keys := p.current.KeysWithPrefix(prefix)
	count := len(keys)
	if limit >= 0 && limit < count {
		count = limit
	}
	for _, key := range keys[:count] {
		if err := p.remove(key); err != nil {
			return 0, false, err
		}
	}
	return uint32(count), count == len(keys), nil
}

func (p *Provider) NextKey(key []byte) ([]byte, bool, error) {
	if !p.active {
		return nil, false, types.ErrNoActiveSession
	}
	next, ok := p.current.NextKey(key)
	return next, ok, nil
}

// StateRoot is the root hash of the session's current trie.
func (p *Provider) StateRoot() (types.Hash, error) {
	if !p.active {
		return types.Hash{}, types.ErrNoActiveSession
	}
	return p.current.RootHash(), nil
}

// Trie returns the session's current trie.
func (p *Provider) Trie() (*trie.Trie, error) {
	if !p.active {
		return nil, types.ErrNoActiveSession
	}
	return p.current, nil
}

// StartTransaction opens a nested storage transaction inside the session.
func (p *Provider) StartTransaction() error {
	if !p.active {
		return types.ErrNoActiveSession
	}
	p.transactions = append(p.transactions, p.current)
	return nil
}

// RollbackTransaction discards the changes of the innermost transaction.
func (p *Provider) RollbackTransaction() error {
	if !p.active {
		return types.ErrNoActiveSession
	}
	last := len(p.transactions) - 1
	if last < 0 {
		return types.ErrNoActiveTransaction
	}
	p.current = p.transactions[last]
	p.transactions = p.transactions[:last]
	return nil
}

// CommitTransaction folds the innermost transaction into its parent.
func (p *Provider) CommitTransaction() error {
	if !p.active {
		return types.ErrNoActiveSession
	}
	last := len(p.transactions) - 1
	if last < 0 {
		return types.ErrNoActiveTransaction
	}
	p.transactions = p.transactions[:last]
	return nil
}

// Commit persists the session trie and returns to Idle. Open nested
// transactions are committed with it.
func (p *Provider) Commit() (types.Hash, error) {
	if !p.active {
		return types.Hash{}, types.ErrNoActiveSession
	}
	root, err := p.storage.Commit(p.current)
	if err != nil {
		return types.Hash{}, fmt.Errorf("committing session: %w", err)
	}
	p.logger.Debug().Str("root", root.String()).Msg("session committed")
	p.close()
	return root, nil
}

// Rollback drops every change made since the session started.
func (p *Provider) Rollback() error {
	if !p.active {
		return types.ErrNoActiveSession
	}
	p.logger.Debug().Str("root", p.baseRoot.String()).Msg("session rolled back")
	p.close()
	return nil
}

func (p *Provider) close() {
	p.active = false
	p.current = nil
	p.transactions = nil
}

func (p *Provider) extrinsicIndex() uint32 {
	v, ok := p.current.Get(ExtrinsicIndexKey)
	if !ok || len(v) < 4 {
		return NoExtrinsic
	}
	return binary.LittleEndian.Uint32(v)
}
