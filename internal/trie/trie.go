package trie

import (
	"bytes"

	"github.com/CosmWasm/hostapi/types"
)

// Trie is an immutable Merkle Patricia trie. Every mutation returns a new
// Trie that shares all untouched nodes with its predecessor, so older
// versions stay readable and rolling back is a pointer swap.
type Trie struct {
	root  *Node
	codec *Codec
}

// New returns an empty trie.
func New(codec *Codec) *Trie {
	return &Trie{codec: codec}
}

// NewFromRoot wraps an already built, fully resolved root node.
func NewFromRoot(root *Node, codec *Codec) *Trie {
	return &Trie{root: root, codec: codec}
}

func (t *Trie) Root() *Node {
	return t.root
}

func (t *Trie) Codec() *Codec {
	return t.codec
}

func (t *Trie) RootHash() types.Hash {
	return t.codec.NodeHash(t.root)
}

func (t *Trie) IsEmpty() bool {
	return t.root == nil
}

// Get returns the value stored at key. The returned slice must not be
// modified.
func (t *Trie) Get(key []byte) ([]byte, bool) {
	n := t.root
	nibbles := KeyToNibbles(key)
	for n != nil {
		common := commonPrefix(n.PartialKey, nibbles)
		if common != len(n.PartialKey) {
			return nil, false
		}
		if common == len(nibbles) {
			return n.Value, n.HasValue()
		}
		n = n.Children[nibbles[common]]
		nibbles = nibbles[common+1:]
	}
	return nil, false
}

func (t *Trie) Has(key []byte) bool {
	_, ok := t.Get(key)
	return ok
}

// Put returns a trie where key maps to a copy of value.
func (t *Trie) Put(key, value []byte) *Trie {
	value = append([]byte{}, value...)
	return &Trie{root: put(t.root, KeyToNibbles(key), value), codec: t.codec}
}

// Remove returns a trie without key. The receiver is returned unchanged
// when key is absent.
func (t *Trie) Remove(key []byte) *Trie {
	root, changed := remove(t.root, KeyToNibbles(key))
	if !changed {
		return t
	}
	return &Trie{root: root, codec: t.codec}
}

// ClearPrefix removes up to limit keys starting with prefix, in key order.
// A negative limit removes all of them. It reports how many keys were removed
// and whether no key with the prefix remains.
func (t *Trie) ClearPrefix(prefix []byte, limit int) (*Trie, uint32, bool) {
	keys := t.KeysWithPrefix(prefix)
	count := len(keys)
	if limit >= 0 && limit < count {
		count = limit
	}
	root := t.root
	for _, key := range keys[:count] {
		root, _ = remove(root, KeyToNibbles(key))
	}
	return &Trie{root: root, codec: t.codec}, uint32(count), count == len(keys)
}

// NextKey returns the smallest key strictly greater than key.
func (t *Trie) NextKey(key []byte) ([]byte, bool) {
	next := nextKey(t.root, nil, KeyToNibbles(key))
	if next == nil {
		return nil, false
	}
	return NibblesToKey(next), true
}

// Entries calls fn for every key/value pair in key order until fn returns
// false.
func (t *Trie) Entries(fn func(key, value []byte) bool) {
	walk(t.root, nil, nil, func(nibbles, value []byte) bool {
		return fn(NibblesToKey(nibbles), value)
	})
}

// KeysWithPrefix lists the keys starting with prefix in key order.
func (t *Trie) KeysWithPrefix(prefix []byte) [][]byte {
	var keys [][]byte
	walk(t.root, nil, KeyToNibbles(prefix), func(nibbles, _ []byte) bool {
		keys = append(keys, NibblesToKey(nibbles))
		return true
	})
	return keys
}

func (t *Trie) Len() int {
	count := 0
	t.Entries(func(_, _ []byte) bool {
		count++
		return true
	})
	return count
}

func put(n *Node, key, value []byte) *Node {
	if n == nil {
		return newLeaf(key, value)
	}
	common := commonPrefix(n.PartialKey, key)
	if common == len(n.PartialKey) {
		cp := n.copyNode()
		if common == len(key) {
			cp.Value = value
			return cp
		}
		idx := key[common]
		cp.Children[idx] = put(n.Children[idx], key[common+1:], value)
		return cp
	}

	// split n at the first differing nibble
	branch := &Node{PartialKey: key[:common]}
	moved := n.copyNode()
	moved.PartialKey = n.PartialKey[common+1:]
	branch.Children[n.PartialKey[common]] = moved
	if common == len(key) {
		branch.Value = value
	} else {
		branch.Children[key[common]] = newLeaf(key[common+1:], value)
	}
	return branch
}

func remove(n *Node, key []byte) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	common := commonPrefix(n.PartialKey, key)
	if common != len(n.PartialKey) {
		return n, false
	}
	if common == len(key) {
		if !n.HasValue() {
			return n, false
		}
		if n.IsLeaf() {
			return nil, true
		}
		cp := n.copyNode()
		cp.Value = nil
		return normalize(cp), true
	}
	idx := key[common]
	child, changed := remove(n.Children[idx], key[common+1:])
	if !changed {
		return n, false
	}
	cp := n.copyNode()
	cp.Children[idx] = child
	return normalize(cp), true
}

// normalize restores the canonical shape of a node after a removal: a
// valueless branch needs at least two children.
func normalize(n *Node) *Node {
	if n.HasValue() {
		return n
	}
	switch n.NumChildren() {
	case 0:
		return nil
	case 1:
		for i, child := range n.Children {
			if child == nil {
				continue
			}
			merged := child.copyNode()
			merged.PartialKey = concatNibbles(n.PartialKey, []byte{byte(i)}, child.PartialKey)
			return merged
		}
	}
	return n
}

// walk visits values in key order. Subtrees that cannot contain prefix are
// skipped.
func walk(n *Node, path, prefix []byte, fn func(nibbles, value []byte) bool) bool {
	if n == nil {
		return true
	}
	full := concatNibbles(path, n.PartialKey)
	if !bytes.HasPrefix(full, prefix) && !bytes.HasPrefix(prefix, full) {
		return true
	}
	if n.HasValue() && bytes.HasPrefix(full, prefix) {
		if !fn(full, n.Value) {
			return false
		}
	}
	for i, child := range n.Children {
		if child == nil {
			continue
		}
		if !walk(child, concatNibbles(full, []byte{byte(i)}), prefix, fn) {
			return false
		}
	}
	return true
}

func nextKey(n *Node, path, target []byte) []byte {
	if n == nil {
		return nil
	}
	full := concatNibbles(path, n.PartialKey)
	cmpLen := min(len(full), len(target))
	switch bytes.Compare(full[:cmpLen], target[:cmpLen]) {
	case -1:
		return nil
	case 1:
		return leftmost(n, path)
	}
	if len(full) > len(target) {
		return leftmost(n, path)
	}
	start := 0
	if len(full) < len(target) {
		start = int(target[len(full)])
	}
	for i := start; i < 16; i++ {
		child := n.Children[i]
		if child == nil {
			continue
		}
		childPath := concatNibbles(full, []byte{byte(i)})
		if len(full) < len(target) && i == start {
			if next := nextKey(child, childPath, target); next != nil {
				return next
			}
			continue
		}
		return leftmost(child, childPath)
	}
	return nil
}

func leftmost(n *Node, path []byte) []byte {
	full := concatNibbles(path, n.PartialKey)
	if n.HasValue() {
		return full
	}
	for i, child := range n.Children {
		if child != nil {
			return leftmost(child, concatNibbles(full, []byte{byte(i)}))
		}
	}
	return nil
}
