package crypto

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Hasher implements the hash functions exposed to the runtime.
type Hasher struct{}

func NewHasher() *Hasher {
	return &Hasher{}
}

func (Hasher) Blake2b128(data []byte) []byte {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return h.Sum(nil)
}

func (Hasher) Blake2b256(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

func (Hasher) Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

func (Hasher) Keccak512(data []byte) []byte {
	h := sha3.NewLegacyKeccak512()
	h.Write(data)
	return h.Sum(nil)
}

func (Hasher) Sha2_256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func (Hasher) Twox64(data []byte) []byte {
	return twox(data, 1)
}

func (Hasher) Twox128(data []byte) []byte {
	return twox(data, 2)
}

func (Hasher) Twox256(data []byte) []byte {
	return twox(data, 4)
}

// twox concatenates little endian xxhash64 digests seeded 0..rounds-1.
func twox(data []byte, rounds int) []byte {
	out := make([]byte, 0, 8*rounds)
	for seed := 0; seed < rounds; seed++ {
		d := xxhash.NewWithSeed(uint64(seed))
		_, _ = d.Write(data)
		out = binary.LittleEndian.AppendUint64(out, d.Sum64())
	}
	return out
}
