package host

import (
	"encoding/binary"
	"fmt"

	"github.com/ChainSafe/gossamer/pkg/scale"

	"github.com/CosmWasm/hostapi/internal/trie"
	"github.com/CosmWasm/hostapi/types"
)

// optionBytes encodes Option<Vec<u8>>.
func optionBytes(v []byte, ok bool) []byte {
	if !ok {
		return []byte{0}
	}
	enc, err := scale.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("encoding bytes: %v", err))
	}
	return append([]byte{1}, enc...)
}

func u32Bytes(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func boolResult(b bool) []byte {
	if b {
		return u32Bytes(1)
	}
	return u32Bytes(0)
}

func argU32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func argU64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

func invalidArg(name string, err error) error {
	return fmt.Errorf("%w: decoding %s: %w", types.ErrInvalidHostCallArguments, name, err)
}

// decodeArg decodes a SCALE encoded argument of fixed size into dst.
func decodeArg(name string, data []byte, dst any) error {
	if err := scale.Unmarshal(data, dst); err != nil {
		return invalidArg(name, err)
	}
	return nil
}

// decodeByteVecs decodes a vector whose items are perItem byte strings,
// such as Vec<Vec<u8>> or Vec<(Vec<u8>, Vec<u8>)>. Every length prefix is
// checked against the argument before the decoder allocates for it.
func decodeByteVecs(name string, data []byte, perItem int, dst any) error {
	n, off, err := trie.ReadCompact(data)
	if err != nil {
		return invalidArg(name, err)
	}
	if n > uint64(len(data)-off) {
		return invalidArg(name, fmt.Errorf("%d items in %d bytes", n, len(data)-off))
	}
	for i := uint64(0); i < n*uint64(perItem); i++ {
		size, err := byteStringSize(data[off:])
		if err != nil {
			return invalidArg(name, fmt.Errorf("item %d: %w", i/uint64(perItem), err))
		}
		off += size
	}
	return decodeArg(name, data, dst)
}

// decodeOptionBytes decodes Option<Vec<u8>>.
func decodeOptionBytes(name string, data []byte) (*[]byte, error) {
	if len(data) > 0 && data[0] == 1 {
		if _, err := byteStringSize(data[1:]); err != nil {
			return nil, invalidArg(name, err)
		}
	}
	var v *[]byte
	if err := decodeArg(name, data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// byteStringSize is the encoded size of the length prefixed byte string at
// the start of data.
func byteStringSize(data []byte) (int, error) {
	n, off, err := trie.ReadCompact(data)
	if err != nil {
		return 0, err
	}
	if n > uint64(len(data)-off) {
		return 0, fmt.Errorf("length %d exceeds the %d remaining bytes", n, len(data)-off)
	}
	return off + int(n), nil
}
