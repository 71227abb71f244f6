package crypto

import (
	"fmt"

	schnorrkel "github.com/ChainSafe/go-schnorrkel"
)

// SigningContext is the schnorrkel context substrate signs under.
var SigningContext = []byte("substrate")

const (
	sr25519PublicKeySize = 32
	sr25519SignatureSize = 64
)

type sr25519Suite struct{}

func NewSr25519Suite() Suite {
	return sr25519Suite{}
}

func (sr25519Suite) Scheme() Scheme     { return Sr25519 }
func (sr25519Suite) PublicKeySize() int { return sr25519PublicKeySize }
func (sr25519Suite) SignatureSize() int { return sr25519SignatureSize }

// FromSeed expands seed as a mini secret key in ed25519 mode, like
// substrate does.
func (sr25519Suite) FromSeed(seed []byte) (KeyPair, error) {
	if err := checkSeed(seed); err != nil {
		return nil, err
	}
	var raw [SeedSize]byte
	copy(raw[:], seed)
	msk, err := schnorrkel.NewMiniSecretKeyFromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("sr25519 mini secret: %w", err)
	}
	return &sr25519KeyPair{seed: raw, secret: msk.ExpandEd25519(), public: msk.Public()}, nil
}

func (sr25519Suite) Verify(pub, msg, sig []byte) bool {
	if len(pub) != sr25519PublicKeySize || len(sig) != sr25519SignatureSize {
		return false
	}
	var (
		pubBytes [sr25519PublicKeySize]byte
		sigBytes [sr25519SignatureSize]byte
	)
	copy(pubBytes[:], pub)
	copy(sigBytes[:], sig)

	publicKey := &schnorrkel.PublicKey{}
	if err := publicKey.Decode(pubBytes); err != nil {
		return false
	}
	signature := &schnorrkel.Signature{}
	if err := signature.Decode(sigBytes); err != nil {
		return false
	}
	ok, err := publicKey.Verify(signature, schnorrkel.NewSigningContext(SigningContext, msg))
	return err == nil && ok
}

type sr25519KeyPair struct {
	seed   [SeedSize]byte
	secret *schnorrkel.SecretKey
	public *schnorrkel.PublicKey
}

func (k *sr25519KeyPair) Public() []byte {
	enc := k.public.Encode()
	return enc[:]
}

func (k *sr25519KeyPair) Seed() []byte {
	return append([]byte{}, k.seed[:]...)
}

func (k *sr25519KeyPair) Sign(msg []byte) ([]byte, error) {
	sig, err := k.secret.Sign(schnorrkel.NewSigningContext(SigningContext, msg))
	if err != nil {
		return nil, fmt.Errorf("sr25519 sign: %w", err)
	}
	enc := sig.Encode()
	return enc[:], nil
}
