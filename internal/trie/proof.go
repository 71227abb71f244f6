package trie

import (
	"bytes"
	"fmt"

	"github.com/CosmWasm/hostapi/types"
)

// GenerateProof returns the encodings of every node needed to look up keys
// starting from the root: the root itself and each hashed node on the way.
// Encodings are unique and in visiting order.
func GenerateProof(t *Trie, keys [][]byte) [][]byte {
	codec := t.Codec()
	seen := make(map[types.Hash]struct{})
	var proof [][]byte
	add := func(enc []byte) {
		h := codec.Hash(enc)
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		proof = append(proof, enc)
	}

	for _, key := range keys {
		n := t.Root()
		nibbles := KeyToNibbles(key)
		isRoot := true
		for n != nil {
			enc := codec.EncodeNode(n)
			if isRoot || len(enc) >= types.HashLen {
				add(enc)
			}
			isRoot = false
			common := commonPrefix(n.PartialKey, nibbles)
			if common != len(n.PartialKey) || common == len(nibbles) {
				break
			}
			n = n.Children[nibbles[common]]
			nibbles = nibbles[common+1:]
		}
	}
	return proof
}

// VerifyProof checks that the proof, rooted at root, maps key to value. A
// nil value checks that key is absent.
func VerifyProof(codec *Codec, root types.Hash, proof [][]byte, key, value []byte) (bool, error) {
	if root == codec.EmptyRoot() {
		return value == nil, nil
	}
	db := make(map[types.Hash][]byte, len(proof))
	for _, enc := range proof {
		db[codec.Hash(enc)] = enc
	}
	load := func(h []byte) (*Node, error) {
		var hash types.Hash
		copy(hash[:], h)
		enc, ok := db[hash]
		if !ok {
			return nil, fmt.Errorf("%w: %x missing from proof", types.ErrNodeNotFound, h)
		}
		return codec.DecodeNode(enc)
	}

	n, err := load(root[:])
	if err != nil {
		return false, err
	}
	nibbles := KeyToNibbles(key)
	for n != nil {
		if n.IsReference() {
			if n, err = load(n.Reference); err != nil {
				return false, err
			}
			continue
		}
		common := commonPrefix(n.PartialKey, nibbles)
		if common != len(n.PartialKey) {
			break
		}
		if common == len(nibbles) {
			if !n.HasValue() {
				break
			}
			return value != nil && bytes.Equal(n.Value, value), nil
		}
		n = n.Children[nibbles[common]]
		nibbles = nibbles[common+1:]
	}
	return value == nil, nil
}
