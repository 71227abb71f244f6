package headers

import (
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"
	"golang.org/x/crypto/blake2b"

	"github.com/CosmWasm/hostapi/types"
)

// Header is a block header. Digest items are kept as opaque encoded bytes.
type Header struct {
	ParentHash     types.Hash
	Number         uint32
	StateRoot      types.Hash
	ExtrinsicsRoot types.Hash
	Digest         [][]byte
}

// encodedHeader fixes the wire layout: uint is compact encoded.
type encodedHeader struct {
	ParentHash     types.Hash
	Number         uint
	StateRoot      types.Hash
	ExtrinsicsRoot types.Hash
	Digest         [][]byte
}

// Encode returns the SCALE encoding of h.
func (h Header) Encode() ([]byte, error) {
	return scale.Marshal(encodedHeader{
		ParentHash:     h.ParentHash,
		Number:         uint(h.Number),
		StateRoot:      h.StateRoot,
		ExtrinsicsRoot: h.ExtrinsicsRoot,
		Digest:         h.Digest,
	})
}

// Hash is the blake2b-256 digest of the encoded header.
func (h Header) Hash() types.Hash {
	enc, _ := h.Encode()
	return blake2b.Sum256(enc)
}

// DecodeHeader parses an encoded header.
func DecodeHeader(enc []byte) (Header, error) {
	var dec encodedHeader
	if err := scale.Unmarshal(enc, &dec); err != nil {
		return Header{}, err
	}
	if uint64(dec.Number) > uint64(^uint32(0)) {
		return Header{}, fmt.Errorf("block number %d out of range", dec.Number)
	}
	return Header{
		ParentHash:     dec.ParentHash,
		Number:         uint32(dec.Number),
		StateRoot:      dec.StateRoot,
		ExtrinsicsRoot: dec.ExtrinsicsRoot,
		Digest:         dec.Digest,
	}, nil
}
