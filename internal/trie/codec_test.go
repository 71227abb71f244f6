package trie

import (
	"bytes"
	"crypto/sha256"
	"testing"

	dbm "github.com/cometbft/cometbft-db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CosmWasm/hostapi/types"
)

func TestEmptyRootHash(t *testing.T) {
	assert.Equal(t,
		types.MustParseHash("0x03170a2e7597b7b7e3d84c05391d139a62b157e78786d8c082f29dcf4c111314"),
		EmptyRootHash)
	assert.Equal(t, EmptyRootHash, New(NewCodec()).RootHash())
}

func TestEncodeNode(t *testing.T) {
	codec := NewCodec()
	cases := []struct {
		name     string
		node     *Node
		expected []byte
	}{
		{
			name:     "empty",
			node:     nil,
			expected: []byte{0x00},
		},
		{
			name:     "leaf with even partial key",
			node:     &Node{PartialKey: []byte{0, 1}, Value: []byte("a")},
			expected: []byte{0x42, 0x01, 0x04, 'a'},
		},
		{
			name:     "leaf with odd partial key",
			node:     &Node{PartialKey: []byte{0xa, 0xb, 0xc}, Value: []byte{}},
			expected: []byte{0x43, 0x0a, 0xbc, 0x00},
		},
		{
			name: "branch without value",
			node: &Node{Children: [16]*Node{
				1: {Value: []byte{1}},
				3: {Value: []byte{3}},
			}},
			expected: []byte{0x80, 0x0a, 0x00, 0x0c, 0x40, 0x04, 0x01, 0x0c, 0x40, 0x04, 0x03},
		},
		{
			name: "branch with value",
			node: &Node{PartialKey: []byte{5}, Value: []byte{9}, Children: [16]*Node{
				15: {Value: []byte{}},
			}},
			expected: []byte{0xc1, 0x05, 0x00, 0x80, 0x04, 0x09, 0x08, 0x40, 0x00},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc := codec.EncodeNode(tc.node)
			assert.Equal(t, tc.expected, enc)

			decoded, err := codec.DecodeNode(enc)
			require.NoError(t, err)
			assert.Equal(t, tc.node, decoded)
		})
	}
}

func TestLongPartialKeyHeader(t *testing.T) {
	codec := NewCodec()
	for _, size := range []int{62, 63, 64, 317, 318, 1000} {
		n := &Node{PartialKey: make([]byte, size), Value: []byte{1}}
		enc := codec.EncodeNode(n)
		switch {
		case size < 63:
			assert.Equal(t, byte(0x40|size), enc[0])
		case size == 63:
			assert.Equal(t, []byte{0x7f, 0x00}, enc[:2])
		case size == 64:
			assert.Equal(t, []byte{0x7f, 0x01}, enc[:2])
		case size == 318:
			assert.Equal(t, []byte{0x7f, 0xff, 0x00}, enc[:3])
		}
		decoded, err := codec.DecodeNode(enc)
		require.NoError(t, err)
		assert.Len(t, decoded.PartialKey, size)
		assert.Equal(t, enc, codec.EncodeNode(decoded))
	}
}

func TestDecodeHashedChildAsReference(t *testing.T) {
	codec := NewCodec()
	big := &Node{PartialKey: []byte{1, 2}, Value: bytes.Repeat([]byte{7}, 40)}
	branch := &Node{Children: [16]*Node{4: big, 9: {Value: []byte{1}}}}

	enc := codec.EncodeNode(branch)
	decoded, err := codec.DecodeNode(enc)
	require.NoError(t, err)

	bigHash := codec.Hash(codec.EncodeNode(big))
	require.True(t, decoded.Children[4].IsReference())
	assert.Equal(t, bigHash[:], decoded.Children[4].Reference)
	assert.False(t, decoded.Children[9].IsReference())
	// re-encoding with the unresolved reference is bit-exact
	assert.Equal(t, enc, codec.EncodeNode(decoded))
	assert.Equal(t, codec.NodeHash(branch), codec.NodeHash(decoded))
}

func TestDecodeInvalidNodes(t *testing.T) {
	codec := NewCodec()
	cases := map[string][]byte{
		"empty input":              {},
		"zero variant":             {0x01},
		"truncated partial key":    {0x42, 0x01},
		"truncated value":          {0x41, 0x01, 0x08, 0x01},
		"branch without children":  {0x80, 0x00, 0x00},
		"non zero padding nibble":  {0x41, 0x11, 0x00},
		"trailing bytes":           {0x40, 0x00, 0xff},
		"oversized child":          append([]byte{0x80, 0x01, 0x00, 0x84}, make([]byte, 33)...),
		"truncated length varint":  {0x7f, 0xff},
		"huge value length":        append([]byte{0x40, 0x13}, bytes.Repeat([]byte{0xff}, 8)...),
		"value length over input":  append([]byte{0x40, 0x0b}, 0, 0, 0, 0, 0, 0x01),
		"compact wider than u64":   append([]byte{0x40, 0x17}, bytes.Repeat([]byte{0xff}, 9)...),
		"huge child length":        append([]byte{0x80, 0x01, 0x00, 0x13}, bytes.Repeat([]byte{0xff}, 8)...),
	}
	for name, enc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.DecodeNode(enc)
			require.ErrorIs(t, err, types.ErrInvalidNode)
			require.ErrorIs(t, err, types.ErrStorage)
		})
	}
}

func TestEmptyRootFollowsHasher(t *testing.T) {
	codec := NewCodecWithHasher(func(data []byte) types.Hash { return sha256.Sum256(data) })
	require.NotEqual(t, EmptyRootHash, codec.EmptyRoot())
	assert.Equal(t, codec.EmptyRoot(), New(codec).RootHash())

	ok, err := VerifyProof(codec, codec.EmptyRoot(), nil, []byte("k"), nil)
	require.NoError(t, err)
	assert.True(t, ok)

	// the blake2 empty root proves nothing under another hasher
	ok, err = VerifyProof(codec, EmptyRootHash, nil, []byte("k"), nil)
	assert.False(t, ok)
	require.ErrorIs(t, err, types.ErrNodeNotFound)

	s, err := NewSerializer(NewBackend(dbm.NewMemDB(), nil), codec, 0)
	require.NoError(t, err)
	empty, err := s.RetrieveTrie(codec.EmptyRoot())
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestCompact(t *testing.T) {
	for _, n := range []uint64{0, 63, 64, 1<<14 - 1, 1 << 14, 1<<30 - 1, 1 << 30, 1<<64 - 1} {
		enc := EncodeCompact(n)
		got, size, err := ReadCompact(append(enc, 0xaa))
		require.NoError(t, err)
		assert.Equal(t, n, got)
		assert.Equal(t, len(enc), size)
	}
	assert.Equal(t, []byte{0x91, 0x01}, EncodeCompact(100))

	_, _, err := ReadCompact([]byte{0x01})
	require.Error(t, err)
	_, _, err = ReadCompact(nil)
	require.Error(t, err)
}
