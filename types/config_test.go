package types

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigJSON(t *testing.T) {
	config := Config{
		Adapter: AdapterOptions{Path: "adapter.wasm"},
		Storage: StorageOptions{Backend: BackendMemDB, NodeCacheSize: 16},
		Cache: CacheOptions{
			BaseDir:             "/tmp",
			InstanceMemoryLimit: NewSize(100),
		},
		Keystore: KeystoreOptions{Dir: "/keys"},
		LogLevel: "debug",
	}
	expected := `{"adapter":{"path":"adapter.wasm"},"storage":{"backend":"memdb","node_cache_size":16},"cache":{"base_dir":"/tmp","instance_memory_limit":100},"keystore":{"dir":"/keys"},"log_level":"debug"}`

	bz, err := json.Marshal(config)
	require.NoError(t, err)
	assert.Equal(t, expected, string(bz))

	var decoded Config
	require.NoError(t, json.Unmarshal(bz, &decoded))
	assert.Equal(t, config, decoded)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultAdapterPath, cfg.Adapter.Path)
	assert.Equal(t, filepath.Join(os.TempDir(), KeystoreSubdir), cfg.Keystore.Dir)
	assert.Equal(t, uint32(2048), cfg.Cache.MemoryLimitPages())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostapi.yaml")
	content := `
adapter:
  path: custom.wasm
storage:
  backend: goleveldb
  dir: /var/lib/hostapi
cache:
  instance_memory_limit: 1048576
log_level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "custom.wasm", cfg.Adapter.Path)
	assert.Equal(t, BackendGoLevelDB, cfg.Storage.Backend)
	assert.Equal(t, uint32(16), cfg.Cache.MemoryLimitPages())
	// untouched fields keep their defaults
	assert.Equal(t, 4096, cfg.Storage.NodeCacheSize)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"empty adapter":     func(c *Config) { c.Adapter.Path = "" },
		"unknown backend":   func(c *Config) { c.Storage.Backend = "rocksdb" },
		"leveldb needs dir": func(c *Config) { c.Storage.Backend = BackendGoLevelDB },
		"bad log level":     func(c *Config) { c.LogLevel = "loud" },
		"negative cache":    func(c *Config) { c.Storage.NodeCacheSize = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("")
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, lvl)

	lvl, err = ParseLogLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, zerolog.TraceLevel, lvl)
}
