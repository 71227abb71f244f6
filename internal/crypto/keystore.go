package crypto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyFileStorage keeps one file per key in a directory. The file name is
// hex(key type) || hex(public key) and the file holds the seed as a JSON
// encoded 0x hex string.
type KeyFileStorage struct {
	dir string
}

// CreateAt opens the storage rooted at dir, creating the directory.
func CreateAt(dir string) (*KeyFileStorage, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating keystore %s: %w", dir, err)
	}
	return &KeyFileStorage{dir: dir}, nil
}

func (s *KeyFileStorage) Dir() string {
	return s.dir
}

func (s *KeyFileStorage) path(keyType KeyTypeID, pub []byte) string {
	return filepath.Join(s.dir, keyType.Hex()+hex.EncodeToString(pub))
}

func (s *KeyFileStorage) SaveSeed(keyType KeyTypeID, pub, seed []byte) error {
	content, err := json.Marshal("0x" + hex.EncodeToString(seed))
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path(keyType, pub), content, 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

// LoadSeed returns the seed stored for pub, or false if there is none.
func (s *KeyFileStorage) LoadSeed(keyType KeyTypeID, pub []byte) ([]byte, bool, error) {
	content, err := os.ReadFile(s.path(keyType, pub))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading key file: %w", err)
	}
	var encoded string
	if err := json.Unmarshal(content, &encoded); err != nil {
		return nil, false, fmt.Errorf("parsing key file: %w", err)
	}
	seed, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
	if err != nil {
		return nil, false, fmt.Errorf("parsing key file: %w", err)
	}
	return seed, true, nil
}

// PublicKeys lists the public keys stored for keyType, sorted.
func (s *KeyFileStorage) PublicKeys(keyType KeyTypeID) ([][]byte, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing keystore: %w", err)
	}
	prefix := keyType.Hex()
	var keys [][]byte
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		pub, err := hex.DecodeString(name[len(prefix):])
		if err != nil {
			continue
		}
		keys = append(keys, pub)
	}
	sort.Slice(keys, func(i, j int) bool { return string(keys[i]) < string(keys[j]) })
	return keys, nil
}
