package trie

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ChainSafe/gossamer/pkg/scale"
	"golang.org/x/crypto/blake2b"

	"github.com/CosmWasm/hostapi/types"
)

// Node header variants, stored in the two most significant bits.
const (
	variantLeaf            byte = 0b01 << 6
	variantBranch          byte = 0b10 << 6
	variantBranchWithValue byte = 0b11 << 6

	variantMask       byte = 0b11 << 6
	partialKeyLenMask byte = 0b0011_1111
	emptyNodeEncoding byte = 0x00
)

const maxPartialKeyNibbles = 65535

// HashFunc digests a node encoding.
type HashFunc func(data []byte) types.Hash

// Blake2b256 is the hash function of the Polkadot state trie.
func Blake2b256(data []byte) types.Hash {
	return blake2b.Sum256(data)
}

// EmptyRootHash is the root hash of a trie without entries.
var EmptyRootHash = Blake2b256([]byte{emptyNodeEncoding})

// Codec encodes trie nodes in the Polkadot node format and content-addresses
// them with its hash function.
type Codec struct {
	hash HashFunc
}

// NewCodec returns a codec hashing with blake2b-256.
func NewCodec() *Codec {
	return NewCodecWithHasher(Blake2b256)
}

func NewCodecWithHasher(hash HashFunc) *Codec {
	return &Codec{hash: hash}
}

func (c *Codec) Hash(data []byte) types.Hash {
	return c.hash(data)
}

// EncodeNode returns the canonical encoding of n; a nil node encodes the
// empty trie. n must not be an unresolved reference.
func (c *Codec) EncodeNode(n *Node) []byte {
	return c.encode(n, nil)
}

// VisitFunc receives every node of a subtree together with its encoding,
// children before parents.
type VisitFunc func(n *Node, encoding []byte)

// EncodeTree encodes n like EncodeNode and calls visit for n and every
// resolved node below it.
func (c *Codec) EncodeTree(n *Node, visit VisitFunc) []byte {
	return c.encode(n, visit)
}

func (c *Codec) encode(n *Node, visit VisitFunc) []byte {
	if n == nil {
		return []byte{emptyNodeEncoding}
	}
	if n.IsReference() {
		panic("trie: cannot encode an unresolved node reference")
	}

	var buf bytes.Buffer
	variant := variantLeaf
	if !n.IsLeaf() {
		variant = variantBranch
		if n.HasValue() {
			variant = variantBranchWithValue
		}
	}
	writeHeader(&buf, variant, len(n.PartialKey))
	buf.Write(encodePartialKey(n.PartialKey))

	if n.IsLeaf() {
		writeValue(&buf, n.Value)
	} else {
		var bitmap [2]byte
		binary.LittleEndian.PutUint16(bitmap[:], n.childrenBitmap())
		buf.Write(bitmap[:])
		if n.HasValue() {
			writeValue(&buf, n.Value)
		}
		for _, child := range n.Children {
			if child == nil {
				continue
			}
			writeValue(&buf, c.merkleValue(child, visit))
		}
	}
	if visit != nil {
		visit(n, buf.Bytes())
	}
	return buf.Bytes()
}

// MerkleValue is the encoding of n when it is shorter than a hash, and the
// hash of the encoding otherwise. References evaluate to themselves.
func (c *Codec) MerkleValue(n *Node) []byte {
	return c.merkleValue(n, nil)
}

func (c *Codec) merkleValue(n *Node, visit VisitFunc) []byte {
	if n != nil && n.IsReference() {
		return n.Reference
	}
	enc := c.encode(n, visit)
	if len(enc) < types.HashLen {
		return enc
	}
	h := c.hash(enc)
	return h[:]
}

// NodeHash is the hash of the encoding of n. Used for roots, which are
// always hashed regardless of their size.
func (c *Codec) NodeHash(n *Node) types.Hash {
	if n != nil && n.IsReference() && len(n.Reference) == types.HashLen {
		var h types.Hash
		copy(h[:], n.Reference)
		return h
	}
	return c.hash(c.EncodeNode(n))
}

// EmptyRoot is the root hash of a trie without entries under this codec.
func (c *Codec) EmptyRoot() types.Hash {
	return c.NodeHash(nil)
}

// DecodeNode parses a node encoding. Inline children are decoded
// recursively, hashed children become references. The empty node decodes to
// nil.
func (c *Codec) DecodeNode(data []byte) (*Node, error) {
	if len(data) == 1 && data[0] == emptyNodeEncoding {
		return nil, nil
	}
	r := bytes.NewReader(data)
	n, err := c.decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrInvalidNode, err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", types.ErrInvalidNode, r.Len())
	}
	return n, nil
}

func (c *Codec) decode(r *bytes.Reader) (*Node, error) {
	header, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	variant := header & variantMask
	if variant == 0 {
		return nil, fmt.Errorf("unknown node variant in header %#08b", header)
	}
	pkLen, err := readPartialKeyLen(r, header)
	if err != nil {
		return nil, err
	}
	partial, err := decodePartialKey(r, pkLen)
	if err != nil {
		return nil, err
	}
	n := &Node{PartialKey: partial}

	if variant == variantLeaf {
		if n.Value, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("reading leaf value: %w", err)
		}
		return n, nil
	}

	var bitmapBytes [2]byte
	if _, err := io.ReadFull(r, bitmapBytes[:]); err != nil {
		return nil, fmt.Errorf("reading children bitmap: %w", err)
	}
	bitmap := binary.LittleEndian.Uint16(bitmapBytes[:])
	if bitmap == 0 {
		return nil, fmt.Errorf("branch without children")
	}
	if variant == variantBranchWithValue {
		if n.Value, err = readBytes(r); err != nil {
			return nil, fmt.Errorf("reading branch value: %w", err)
		}
	}
	for i := 0; i < 16; i++ {
		if bitmap&(1<<uint(i)) == 0 {
			continue
		}
		merkle, err := readBytes(r)
		if err != nil {
			return nil, fmt.Errorf("reading child %d: %w", i, err)
		}
		switch {
		case len(merkle) == types.HashLen:
			n.Children[i] = &Node{Reference: merkle}
		case len(merkle) < types.HashLen:
			child, err := c.decode(bytes.NewReader(merkle))
			if err != nil {
				return nil, fmt.Errorf("decoding inline child %d: %w", i, err)
			}
			n.Children[i] = child
		default:
			return nil, fmt.Errorf("child %d merkle value too long: %d bytes", i, len(merkle))
		}
	}
	return n, nil
}

func writeHeader(w io.ByteWriter, variant byte, pkLen int) {
	if pkLen < int(partialKeyLenMask) {
		_ = w.WriteByte(variant | byte(pkLen))
		return
	}
	_ = w.WriteByte(variant | partialKeyLenMask)
	rem := pkLen - int(partialKeyLenMask)
	for rem >= 255 {
		_ = w.WriteByte(255)
		rem -= 255
	}
	_ = w.WriteByte(byte(rem))
}

func readPartialKeyLen(r io.ByteReader, header byte) (int, error) {
	pkLen := int(header & partialKeyLenMask)
	if pkLen < int(partialKeyLenMask) {
		return pkLen, nil
	}
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("reading partial key length: %w", err)
		}
		pkLen += int(b)
		if pkLen > maxPartialKeyNibbles {
			return 0, fmt.Errorf("partial key length %d too large", pkLen)
		}
		if b < 255 {
			return pkLen, nil
		}
	}
}

func encodePartialKey(nibbles []byte) []byte {
	if len(nibbles)%2 == 0 {
		return NibblesToKey(nibbles)
	}
	return append([]byte{nibbles[0]}, NibblesToKey(nibbles[1:])...)
}

func decodePartialKey(r io.Reader, pkLen int) ([]byte, error) {
	if pkLen == 0 {
		return nil, nil
	}
	packed := make([]byte, (pkLen+1)/2)
	if _, err := io.ReadFull(r, packed); err != nil {
		return nil, fmt.Errorf("reading partial key: %w", err)
	}
	nibbles := KeyToNibbles(packed)
	if pkLen%2 == 1 {
		if nibbles[0] != 0 {
			return nil, fmt.Errorf("partial key padding nibble is not zero")
		}
		nibbles = nibbles[1:]
	}
	return nibbles, nil
}

func writeValue(buf *bytes.Buffer, value []byte) {
	buf.Write(EncodeCompact(uint64(len(value))))
	buf.Write(value)
}

// readBytes reads a length prefixed byte string. The length is checked
// against the unread input before anything is allocated.
func readBytes(r *bytes.Reader) ([]byte, error) {
	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	prefix := make([]byte, compactSize(first))
	prefix[0] = first
	if _, err := io.ReadFull(r, prefix[1:]); err != nil {
		return nil, err
	}
	n, _, err := ReadCompact(prefix)
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()) {
		return nil, fmt.Errorf("length %d exceeds the %d remaining bytes", n, r.Len())
	}
	value := make([]byte, n)
	if _, err := io.ReadFull(r, value); err != nil {
		return nil, err
	}
	return value, nil
}

// EncodeCompact returns the SCALE compact encoding of n.
func EncodeCompact(n uint64) []byte {
	enc, err := scale.Marshal(uint(n))
	if err != nil {
		panic(fmt.Sprintf("trie: encoding compact %d: %v", n, err))
	}
	return enc
}

// compactSize is the length of the compact integer starting with first.
func compactSize(first byte) int {
	if first&0b11 == 0b11 {
		return int(first>>2) + 5
	}
	return 1 << (first & 0b11)
}

// ReadCompact decodes the compact integer at the start of data and returns
// it together with the number of bytes it occupies.
func ReadCompact(data []byte) (uint64, int, error) {
	if len(data) == 0 {
		return 0, 0, io.ErrUnexpectedEOF
	}
	size := compactSize(data[0])
	if size > len(data) {
		return 0, 0, io.ErrUnexpectedEOF
	}
	if size > 9 {
		return 0, 0, fmt.Errorf("compact integer of %d bytes does not fit in 64 bits", size)
	}
	var n uint
	if err := scale.Unmarshal(data[:size], &n); err != nil {
		return 0, 0, err
	}
	return uint64(n), size, nil
}
