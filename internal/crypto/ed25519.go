package crypto

import (
	"crypto/ed25519"

	"github.com/hdevalence/ed25519consensus"
)

type ed25519Suite struct{}

// NewEd25519Suite verifies with the ZIP-215 rules of ed25519consensus.
func NewEd25519Suite() Suite {
	return ed25519Suite{}
}

func (ed25519Suite) Scheme() Scheme     { return Ed25519 }
func (ed25519Suite) PublicKeySize() int { return ed25519.PublicKeySize }
func (ed25519Suite) SignatureSize() int { return ed25519.SignatureSize }

func (ed25519Suite) FromSeed(seed []byte) (KeyPair, error) {
	if err := checkSeed(seed); err != nil {
		return nil, err
	}
	return &ed25519KeyPair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

func (ed25519Suite) Verify(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519consensus.Verify(ed25519.PublicKey(pub), msg, sig)
}

type ed25519KeyPair struct {
	priv ed25519.PrivateKey
}

func (k *ed25519KeyPair) Public() []byte {
	return append([]byte{}, k.priv.Public().(ed25519.PublicKey)...)
}

func (k *ed25519KeyPair) Seed() []byte {
	return k.priv.Seed()
}

func (k *ed25519KeyPair) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, msg), nil
}
