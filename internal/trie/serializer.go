package trie

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/CosmWasm/hostapi/types"
)

// Serializer persists tries through a Backend and rebuilds them from a root
// hash. Decoded nodes are immutable, so resolved subtrees are cached by hash
// and shared between retrieved tries.
type Serializer struct {
	backend *Backend
	codec   *Codec
	cache   *lru.Cache[types.Hash, *Node]
}

// NewSerializer creates a serializer. A cacheSize of zero disables the
// decoded node cache.
func NewSerializer(backend *Backend, codec *Codec, cacheSize int) (*Serializer, error) {
	s := &Serializer{backend: backend, codec: codec}
	if cacheSize > 0 {
		cache, err := lru.New[types.Hash, *Node](cacheSize)
		if err != nil {
			return nil, err
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Serializer) Codec() *Codec {
	return s.codec
}

func (s *Serializer) Backend() *Backend {
	return s.backend
}

// StoreTrie writes the root and every hashed node of t. Inline nodes live
// inside their parent's encoding.
func (s *Serializer) StoreTrie(t *Trie) (types.Hash, error) {
	nodes := make(map[types.Hash][]byte)
	rootEnc := s.codec.EncodeTree(t.Root(), func(n *Node, enc []byte) {
		if len(enc) >= types.HashLen {
			nodes[s.codec.Hash(enc)] = enc
		}
	})
	root := s.codec.Hash(rootEnc)
	nodes[root] = rootEnc
	if err := s.backend.WriteNodes(nodes, root); err != nil {
		return types.Hash{}, err
	}
	return root, nil
}

// RetrieveTrie loads the trie with the given root hash, resolving every
// hashed child.
func (s *Serializer) RetrieveTrie(root types.Hash) (*Trie, error) {
	if root == s.codec.EmptyRoot() {
		return New(s.codec), nil
	}
	n, err := s.LoadNode(root)
	if err != nil {
		return nil, fmt.Errorf("retrieving trie %s: %w", root, err)
	}
	return NewFromRoot(n, s.codec), nil
}

// LoadNode reads and fully resolves the node stored under hash.
func (s *Serializer) LoadNode(hash types.Hash) (*Node, error) {
	if s.cache != nil {
		if n, ok := s.cache.Get(hash); ok {
			return n, nil
		}
	}
	enc, err := s.backend.GetNode(hash[:])
	if err != nil {
		return nil, err
	}
	n, err := s.codec.DecodeNode(enc)
	if err != nil {
		return nil, err
	}
	if n, err = s.resolve(n); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Add(hash, n)
	}
	return n, nil
}

func (s *Serializer) resolve(n *Node) (*Node, error) {
	if n == nil {
		return nil, nil
	}
	for i, child := range n.Children {
		if child == nil {
			continue
		}
		var (
			resolved *Node
			err      error
		)
		if child.IsReference() {
			var h types.Hash
			copy(h[:], child.Reference)
			resolved, err = s.LoadNode(h)
		} else {
			resolved, err = s.resolve(child)
		}
		if err != nil {
			return nil, err
		}
		n.Children[i] = resolved
	}
	return n, nil
}
