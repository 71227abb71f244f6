package crypto

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"
)

const (
	bip39Rounds  = 2048
	bip39KeySize = 64
)

// ErrDerivationUnsupported is returned for secret URIs with derivation
// junctions such as "//Alice".
var ErrDerivationUnsupported = errors.New("key derivation paths are not supported")

// Bip39Provider turns mnemonic phrases into seeds the way substrate does:
// the phrase is decoded into its entropy, which is stretched with
// PBKDF2-HMAC-SHA512.
type Bip39Provider struct{}

func NewBip39Provider() *Bip39Provider {
	return &Bip39Provider{}
}

// SeedFromPhrase accepts a BIP39 phrase with an optional "///password"
// suffix, or a 0x prefixed hex seed.
func (Bip39Provider) SeedFromPhrase(phrase string) ([]byte, error) {
	phrase = strings.TrimSpace(phrase)
	password := ""
	if i := strings.Index(phrase, "///"); i >= 0 {
		phrase, password = phrase[:i], phrase[i+3:]
	}
	if strings.Contains(phrase, "/") {
		return nil, ErrDerivationUnsupported
	}

	if strings.HasPrefix(phrase, "0x") {
		seed, err := hex.DecodeString(phrase[2:])
		if err != nil {
			return nil, fmt.Errorf("invalid hex seed: %w", err)
		}
		if err := checkSeed(seed); err != nil {
			return nil, err
		}
		return seed, nil
	}

	entropy, err := bip39.EntropyFromMnemonic(phrase)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	return SeedFromEntropy(entropy, password), nil
}

// SeedFromEntropy derives the 32 byte seed for entropy and password.
func SeedFromEntropy(entropy []byte, password string) []byte {
	key := pbkdf2.Key(entropy, []byte("mnemonic"+password), bip39Rounds, bip39KeySize, sha512.New)
	return key[:SeedSize]
}
