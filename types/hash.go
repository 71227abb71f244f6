package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// HashLen is the length of a state root or block hash in bytes.
const HashLen = 32

// Hash is a blake2b-256 digest identifying a trie snapshot or a block header.
type Hash [HashLen]byte

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Hash) UnmarshalJSON(input []byte) error {
	var s string
	if err := json.Unmarshal(input, &s); err != nil {
		return err
	}
	parsed, err := ParseHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// NewHash creates a Hash from a byte slice of exactly HashLen bytes.
func NewHash(b []byte) (Hash, error) {
	if len(b) != HashLen {
		return Hash{}, fmt.Errorf("got %d bytes for hash, expected %d", len(b), HashLen)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// ParseHash accepts hex with or without the 0x prefix.
func ParseHash(s string) (Hash, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Hash{}, err
	}
	return NewHash(data)
}

// MustParseHash panics on invalid input. Intended for constants and tests.
func MustParseHash(s string) Hash {
	h, err := ParseHash(s)
	if err != nil {
		panic(err)
	}
	return h
}
