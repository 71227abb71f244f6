package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CosmWasm/hostapi/internal/trie"
	"github.com/CosmWasm/hostapi/types"
)

// TrieStorage is the state database: the last committed trie plus the
// serializer able to load any earlier committed root.
type TrieStorage struct {
	serializer *trie.Serializer
	current    *trie.Trie
	logger     zerolog.Logger
}

// CreateEmpty persists an empty trie and returns a storage pointing at it.
func CreateEmpty(serializer *trie.Serializer, logger zerolog.Logger) (*TrieStorage, error) {
	empty := trie.New(serializer.Codec())
	if _, err := serializer.StoreTrie(empty); err != nil {
		return nil, fmt.Errorf("%w: storing empty trie: %w", types.ErrBackendInit, err)
	}
	return &TrieStorage{
		serializer: serializer,
		current:    empty,
		logger:     logger.With().Str("module", "trie_storage").Logger(),
	}, nil
}

// Open reopens the storage at the root last committed to the serializer's
// backend. A backend without commits gets an empty trie.
func Open(serializer *trie.Serializer, logger zerolog.Logger) (*TrieStorage, error) {
	root, ok, err := serializer.Backend().Root()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrBackendInit, err)
	}
	if !ok {
		return CreateEmpty(serializer, logger)
	}
	return CreateFromStorage(root, serializer, logger)
}

// CreateFromStorage opens the storage at a previously committed root.
func CreateFromStorage(root types.Hash, serializer *trie.Serializer, logger zerolog.Logger) (*TrieStorage, error) {
	if root != serializer.Codec().EmptyRoot() {
		ok, err := serializer.Backend().HasNode(root[:])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrStorage, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: root %s", types.ErrNodeNotFound, root)
		}
	}
	t, err := serializer.RetrieveTrie(root)
	if err != nil {
		return nil, err
	}
	return &TrieStorage{
		serializer: serializer,
		current:    t,
		logger:     logger.With().Str("module", "trie_storage").Logger(),
	}, nil
}

func (s *TrieStorage) Get(key []byte) ([]byte, bool) {
	return s.current.Get(key)
}

// Put updates the in-memory state and returns the new root. Nothing is
// persisted until Commit.
func (s *TrieStorage) Put(key, value []byte) types.Hash {
	s.current = s.current.Put(key, value)
	return s.current.RootHash()
}

func (s *TrieStorage) Remove(key []byte) types.Hash {
	s.current = s.current.Remove(key)
	return s.current.RootHash()
}

func (s *TrieStorage) RootHash() types.Hash {
	return s.current.RootHash()
}

// Trie returns the current version.
func (s *TrieStorage) Trie() *trie.Trie {
	return s.current
}

// TrieAt returns the version with the given root, loading it from the
// backend when it is not the current one.
func (s *TrieStorage) TrieAt(root types.Hash) (*trie.Trie, error) {
	if root == s.current.RootHash() {
		return s.current, nil
	}
	return s.serializer.RetrieveTrie(root)
}

// Commit persists t and makes it the current version.
func (s *TrieStorage) Commit(t *trie.Trie) (types.Hash, error) {
	root, err := s.serializer.StoreTrie(t)
	if err != nil {
		return types.Hash{}, err
	}
	s.current = t
	s.logger.Debug().Str("root", root.String()).Msg("committed trie")
	return root, nil
}

func (s *TrieStorage) Serializer() *trie.Serializer {
	return s.serializer
}
