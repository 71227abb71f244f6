package crypto

import (
	"bytes"
	"encoding/hex"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

const devPhrase = "bottom drive obey lake curtain smoke basket hold race lonely fit walk"

var testKeyType = KeyTypeID{'d', 'u', 'm', 'y'}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	files, err := CreateAt(filepath.Join(t.TempDir(), "keystore"))
	require.NoError(t, err)
	return NewStore(files, NewBip39Provider(), rand.New(rand.NewSource(1)))
}

func TestSeedFromPhrase(t *testing.T) {
	p := NewBip39Provider()
	seed, err := p.SeedFromPhrase(devPhrase)
	require.NoError(t, err)
	assert.Equal(t, "fac7959dbfe72f052e5a0c3c8d6530f202b02fd8f9f5ca3580ec8deb7797479e", hex.EncodeToString(seed))

	withPassword, err := p.SeedFromPhrase(devPhrase + "///password")
	require.NoError(t, err)
	assert.NotEqual(t, seed, withPassword)

	raw, err := p.SeedFromPhrase("0x" + hex.EncodeToString(seed))
	require.NoError(t, err)
	assert.Equal(t, seed, raw)

	_, err = p.SeedFromPhrase(devPhrase + "//Alice")
	require.ErrorIs(t, err, ErrDerivationUnsupported)
	_, err = p.SeedFromPhrase("not a valid mnemonic")
	require.Error(t, err)
	_, err = p.SeedFromPhrase("0x0102")
	require.Error(t, err)
}

func TestSr25519DevKey(t *testing.T) {
	seed, err := NewBip39Provider().SeedFromPhrase(devPhrase)
	require.NoError(t, err)
	kp, err := NewSr25519Suite().FromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, "46ebddef8cd9bb167dc30878d7113b7e168e6f0646beffd77d69d39bad76b47a", hex.EncodeToString(kp.Public()))
}

func TestSuitesSignAndVerify(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, SeedSize)
	msg := []byte("message to sign")
	for _, suite := range []Suite{NewEd25519Suite(), NewSr25519Suite(), NewEcdsaSuite()} {
		t.Run(string(suite.Scheme()), func(t *testing.T) {
			kp, err := suite.FromSeed(seed)
			require.NoError(t, err)
			assert.Len(t, kp.Public(), suite.PublicKeySize())
			assert.Equal(t, seed, kp.Seed())

			sig, err := kp.Sign(msg)
			require.NoError(t, err)
			require.Len(t, sig, suite.SignatureSize())

			assert.True(t, suite.Verify(kp.Public(), msg, sig))
			assert.False(t, suite.Verify(kp.Public(), []byte("other message"), sig))
			assert.False(t, suite.Verify(kp.Public()[1:], msg, sig))

			tampered := append([]byte{}, sig...)
			tampered[10] ^= 0xff
			assert.False(t, suite.Verify(kp.Public(), msg, tampered))

			_, err = suite.FromSeed(seed[:31])
			require.Error(t, err)
		})
	}
}

func TestSecp256k1Recover(t *testing.T) {
	kp, err := NewEcdsaSuite().FromSeed(bytes.Repeat([]byte{3}, SeedSize))
	require.NoError(t, err)
	msg := []byte("recover me")
	sig, err := kp.Sign(msg)
	require.NoError(t, err)
	digest := blake2b.Sum256(msg)

	compressed, err := RecoverSecp256k1Compressed(sig, digest[:])
	require.NoError(t, err)
	assert.Equal(t, kp.Public(), compressed)

	full, err := RecoverSecp256k1(sig, digest[:])
	require.NoError(t, err)
	assert.Len(t, full, 64)

	// ethereum style v is accepted
	eth := append([]byte{}, sig...)
	eth[64] += 27
	again, err := RecoverSecp256k1(eth, digest[:])
	require.NoError(t, err)
	assert.Equal(t, full, again)

	badV := append([]byte{}, sig...)
	badV[64] = 5
	_, err = RecoverSecp256k1(badV, digest[:])
	require.ErrorIs(t, err, ErrBadV)
	assert.Equal(t, byte(1), RecoverErrorCode(err))

	zeroRS := make([]byte, 65)
	_, err = RecoverSecp256k1(zeroRS, digest[:])
	require.ErrorIs(t, err, ErrBadRS)
	assert.Equal(t, byte(0), RecoverErrorCode(err))
}

func TestStoreGenerateAndList(t *testing.T) {
	store := newTestStore(t)
	phrase := devPhrase

	ed, err := store.Generate(Ed25519, testKeyType, &phrase)
	require.NoError(t, err)
	sr, err := store.Generate(Sr25519, testKeyType, nil)
	require.NoError(t, err)
	ec, err := store.Generate(Ecdsa, testKeyType, nil)
	require.NoError(t, err)

	edKeys, err := store.PublicKeys(Ed25519, testKeyType)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{ed.Public()}, edKeys)

	srKeys, err := store.PublicKeys(Sr25519, testKeyType)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{sr.Public()}, srKeys)

	ecKeys, err := store.PublicKeys(Ecdsa, testKeyType)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{ec.Public()}, ecKeys)

	other, err := store.PublicKeys(Ed25519, KeyTypeID{'b', 'a', 'b', 'e'})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestStoreLoadsKeysFromDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keystore")
	files, err := CreateAt(dir)
	require.NoError(t, err)
	first := NewStore(files, NewBip39Provider(), rand.New(rand.NewSource(2)))
	kp, err := first.Generate(Sr25519, testKeyType, nil)
	require.NoError(t, err)

	name := testKeyType.Hex() + hex.EncodeToString(kp.Public())
	content, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Equal(t, `"0x`+hex.EncodeToString(kp.Seed())+`"`, string(content))

	// a fresh store over the same directory only knows the file
	second := NewStore(files, NewBip39Provider(), rand.New(rand.NewSource(3)))
	msg := []byte("payload")
	sig, ok, err := second.Sign(Sr25519, testKeyType, kp.Public(), msg)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, second.Verify(Sr25519, kp.Public(), msg, sig))

	// the sr25519 file does not show up as an ed25519 key
	edKeys, err := second.PublicKeys(Ed25519, testKeyType)
	require.NoError(t, err)
	assert.Empty(t, edKeys)

	_, ok, err = second.Sign(Sr25519, testKeyType, make([]byte, 32), msg)
	require.NoError(t, err)
	assert.False(t, ok)
}
