package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/blake2b"
)

const (
	ecdsaPublicKeySize = 33
	ecdsaSignatureSize = 65
)

type ecdsaSuite struct{}

// NewEcdsaSuite signs secp256k1 over the blake2b-256 digest of the message,
// with compressed public keys and recoverable 65 byte signatures.
func NewEcdsaSuite() Suite {
	return ecdsaSuite{}
}

func (ecdsaSuite) Scheme() Scheme     { return Ecdsa }
func (ecdsaSuite) PublicKeySize() int { return ecdsaPublicKeySize }
func (ecdsaSuite) SignatureSize() int { return ecdsaSignatureSize }

func (ecdsaSuite) FromSeed(seed []byte) (KeyPair, error) {
	if err := checkSeed(seed); err != nil {
		return nil, err
	}
	priv, err := ethcrypto.ToECDSA(seed)
	if err != nil {
		return nil, fmt.Errorf("secp256k1 secret: %w", err)
	}
	return &ecdsaKeyPair{priv: priv}, nil
}

func (ecdsaSuite) Verify(pub, msg, sig []byte) bool {
	if len(pub) != ecdsaPublicKeySize || len(sig) != ecdsaSignatureSize {
		return false
	}
	digest := blake2b.Sum256(msg)
	recovered, err := RecoverSecp256k1Compressed(sig, digest[:])
	if err != nil {
		return false
	}
	return bytes.Equal(recovered, pub)
}

type ecdsaKeyPair struct {
	priv *ecdsa.PrivateKey
}

func (k *ecdsaKeyPair) Public() []byte {
	return ethcrypto.CompressPubkey(&k.priv.PublicKey)
}

func (k *ecdsaKeyPair) Seed() []byte {
	return ethcrypto.FromECDSA(k.priv)
}

func (k *ecdsaKeyPair) Sign(msg []byte) ([]byte, error) {
	digest := blake2b.Sum256(msg)
	return ethcrypto.Sign(digest[:], k.priv)
}

// Recovery failures, in the order of their wire discriminant.
var (
	ErrBadRS        = errors.New("bad r or s")
	ErrBadV         = errors.New("bad v")
	ErrBadSignature = errors.New("bad signature")
)

// RecoverSecp256k1 returns the 64 byte uncompressed public key, without the
// 0x04 tag, that produced sig over the 32 byte digest. v may be 0/1 or 27/28.
func RecoverSecp256k1(sig, digest []byte) ([]byte, error) {
	pub, err := recoverSecp256k1(sig, digest)
	if err != nil {
		return nil, err
	}
	return ethcrypto.FromECDSAPub(pub)[1:], nil
}

// RecoverSecp256k1Compressed is RecoverSecp256k1 returning the 33 byte
// compressed key.
func RecoverSecp256k1Compressed(sig, digest []byte) ([]byte, error) {
	pub, err := recoverSecp256k1(sig, digest)
	if err != nil {
		return nil, err
	}
	return ethcrypto.CompressPubkey(pub), nil
}

func recoverSecp256k1(sig, digest []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != ecdsaSignatureSize || len(digest) != 32 {
		return nil, ErrBadSignature
	}
	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, ErrBadV
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !ethcrypto.ValidateSignatureValues(v, r, s, false) {
		return nil, ErrBadRS
	}
	normalized := append(append([]byte{}, sig[:64]...), v)
	pub, err := ethcrypto.SigToPub(digest, normalized)
	if err != nil {
		return nil, ErrBadSignature
	}
	return pub, nil
}

// RecoverErrorCode maps a recovery error onto its wire discriminant.
func RecoverErrorCode(err error) byte {
	switch {
	case errors.Is(err, ErrBadRS):
		return 0
	case errors.Is(err, ErrBadV):
		return 1
	}
	return 2
}
