package trie

// Node is an immutable trie node. A node without children is a leaf and
// always carries a value; a node with children is a branch and may carry a
// value. A nil Value means "no value", an empty non-nil Value is a stored
// empty byte string.
//
// Nodes are never modified once they are reachable from a Trie, which lets
// different trie versions share subtrees.
type Node struct {
	PartialKey []byte
	Value      []byte
	Children   [16]*Node

	// Reference is set instead of every other field when the node was decoded
	// as a hashed child of a branch and has not been loaded.
	Reference []byte
}

func (n *Node) IsLeaf() bool {
	return n.NumChildren() == 0
}

func (n *Node) HasValue() bool {
	return n.Value != nil
}

func (n *Node) IsReference() bool {
	return n.Reference != nil
}

func (n *Node) NumChildren() int {
	count := 0
	for _, c := range n.Children {
		if c != nil {
			count++
		}
	}
	return count
}

func (n *Node) childrenBitmap() uint16 {
	var bitmap uint16
	for i, c := range n.Children {
		if c != nil {
			bitmap |= 1 << uint(i)
		}
	}
	return bitmap
}

// copyNode returns a shallow copy; children pointers are shared.
func (n *Node) copyNode() *Node {
	cp := *n
	return &cp
}

func newLeaf(partial, value []byte) *Node {
	return &Node{PartialKey: partial, Value: value}
}
