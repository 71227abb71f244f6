package crypto

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"
)

type keyIndex struct {
	scheme  Scheme
	keyType KeyTypeID
}

// Store manages the key pairs of every scheme. Generated keys are cached in
// memory and written to the key file storage; keys found only on disk are
// loaded on demand.
type Store struct {
	suites map[Scheme]Suite
	files  *KeyFileStorage
	bip39  *Bip39Provider
	random io.Reader

	mu   sync.Mutex
	keys map[keyIndex]map[string]KeyPair
}

// NewStore creates a store with the ed25519, sr25519 and ecdsa suites.
// random supplies the seeds of keys generated without a phrase.
func NewStore(files *KeyFileStorage, bip39 *Bip39Provider, random io.Reader) *Store {
	s := &Store{
		suites: make(map[Scheme]Suite),
		files:  files,
		bip39:  bip39,
		random: random,
		keys:   make(map[keyIndex]map[string]KeyPair),
	}
	for _, suite := range []Suite{NewEd25519Suite(), NewSr25519Suite(), NewEcdsaSuite()} {
		s.suites[suite.Scheme()] = suite
	}
	return s
}

// Suite returns the suite of scheme.
func (s *Store) Suite(scheme Scheme) (Suite, error) {
	suite, ok := s.suites[scheme]
	if !ok {
		return nil, fmt.Errorf("unknown signature scheme %q", scheme)
	}
	return suite, nil
}

// Generate creates a key pair from phrase, or from random bytes when phrase
// is nil, and stores it under keyType.
func (s *Store) Generate(scheme Scheme, keyType KeyTypeID, phrase *string) (KeyPair, error) {
	suite, err := s.Suite(scheme)
	if err != nil {
		return nil, err
	}
	var seed []byte
	if phrase != nil {
		if seed, err = s.bip39.SeedFromPhrase(*phrase); err != nil {
			return nil, err
		}
	} else {
		seed = make([]byte, SeedSize)
		if _, err := io.ReadFull(s.random, seed); err != nil {
			return nil, fmt.Errorf("reading random seed: %w", err)
		}
	}
	kp, err := suite.FromSeed(seed)
	if err != nil {
		return nil, err
	}
	if err := s.files.SaveSeed(keyType, kp.Public(), kp.Seed()); err != nil {
		return nil, err
	}
	s.cache(keyIndex{scheme, keyType}, kp)
	return kp, nil
}

func (s *Store) cache(idx keyIndex, kp KeyPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byPub, ok := s.keys[idx]
	if !ok {
		byPub = make(map[string]KeyPair)
		s.keys[idx] = byPub
	}
	byPub[string(kp.Public())] = kp
}

// PublicKeys returns the sorted public keys of scheme stored for keyType.
// Files of other schemes sharing the key type are skipped by re-deriving
// their public key.
func (s *Store) PublicKeys(scheme Scheme, keyType KeyTypeID) ([][]byte, error) {
	suite, err := s.Suite(scheme)
	if err != nil {
		return nil, err
	}
	found := make(map[string]struct{})
	s.mu.Lock()
	for pub := range s.keys[keyIndex{scheme, keyType}] {
		found[pub] = struct{}{}
	}
	s.mu.Unlock()

	onDisk, err := s.files.PublicKeys(keyType)
	if err != nil {
		return nil, err
	}
	for _, pub := range onDisk {
		if _, ok := found[string(pub)]; ok || len(pub) != suite.PublicKeySize() {
			continue
		}
		if _, ok, err := s.load(suite, keyType, pub); err == nil && ok {
			found[string(pub)] = struct{}{}
		}
	}

	keys := make([][]byte, 0, len(found))
	for pub := range found {
		keys = append(keys, []byte(pub))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })
	return keys, nil
}

// FindKeyPair looks pub up in memory, then on disk.
func (s *Store) FindKeyPair(scheme Scheme, keyType KeyTypeID, pub []byte) (KeyPair, bool, error) {
	suite, err := s.Suite(scheme)
	if err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	kp, ok := s.keys[keyIndex{scheme, keyType}][string(pub)]
	s.mu.Unlock()
	if ok {
		return kp, true, nil
	}
	return s.load(suite, keyType, pub)
}

func (s *Store) load(suite Suite, keyType KeyTypeID, pub []byte) (KeyPair, bool, error) {
	seed, ok, err := s.files.LoadSeed(keyType, pub)
	if err != nil || !ok {
		return nil, false, err
	}
	kp, err := suite.FromSeed(seed)
	if err != nil {
		return nil, false, err
	}
	if !bytes.Equal(kp.Public(), pub) {
		// a key of another scheme with the same key type
		return nil, false, nil
	}
	s.cache(keyIndex{suite.Scheme(), keyType}, kp)
	return kp, true, nil
}

// Sign signs msg with the key pair of pub. It reports false when the key is
// unknown.
func (s *Store) Sign(scheme Scheme, keyType KeyTypeID, pub, msg []byte) ([]byte, bool, error) {
	kp, ok, err := s.FindKeyPair(scheme, keyType, pub)
	if err != nil || !ok {
		return nil, false, err
	}
	sig, err := kp.Sign(msg)
	if err != nil {
		return nil, false, err
	}
	return sig, true, nil
}

// Verify checks sig with the suite of scheme.
func (s *Store) Verify(scheme Scheme, pub, msg, sig []byte) bool {
	suite, err := s.Suite(scheme)
	if err != nil {
		return false
	}
	return suite.Verify(pub, msg, sig)
}
