package crypto

import (
	"encoding/hex"
	"fmt"
)

// KeyTypeID identifies what a key is used for, e.g. "babe" or "gran".
type KeyTypeID [4]byte

func (k KeyTypeID) String() string {
	return string(k[:])
}

func (k KeyTypeID) Hex() string {
	return hex.EncodeToString(k[:])
}

// Scheme names a signature scheme.
type Scheme string

const (
	Ed25519 Scheme = "ed25519"
	Sr25519 Scheme = "sr25519"
	Ecdsa   Scheme = "ecdsa"
)

// SeedSize is the size of the secret seed every key pair is derived from.
const SeedSize = 32

// KeyPair is a key pair of one scheme.
type KeyPair interface {
	Public() []byte
	Seed() []byte
	Sign(msg []byte) ([]byte, error)
}

// Suite creates and verifies the key pairs of one scheme.
type Suite interface {
	Scheme() Scheme
	PublicKeySize() int
	SignatureSize() int
	FromSeed(seed []byte) (KeyPair, error)
	Verify(pub, msg, sig []byte) bool
}

func checkSeed(seed []byte) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	return nil
}
