package types

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultAdapterPath is where the adapter shim is looked up when no other
// path is configured.
const DefaultAdapterPath = "bin/hostapi_runtime.compact.wasm"

// KeystoreSubdir is the directory below os.TempDir() holding key files.
const KeystoreSubdir = "hostapi-adapter-keystore"

const (
	BackendMemDB     = "memdb"
	BackendGoLevelDB = "goleveldb"
)

// Config defines the configuration of a host API environment.
type Config struct {
	Adapter  AdapterOptions  `json:"adapter" yaml:"adapter"`
	Storage  StorageOptions  `json:"storage" yaml:"storage"`
	Cache    CacheOptions    `json:"cache" yaml:"cache"`
	Keystore KeystoreOptions `json:"keystore" yaml:"keystore"`
	LogLevel string          `json:"log_level" yaml:"log_level"`
}

type AdapterOptions struct {
	Path string `json:"path" yaml:"path"`
}

type StorageOptions struct {
	Backend       string `json:"backend" yaml:"backend"`
	Dir           string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Prefix        string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	NodeCacheSize int    `json:"node_cache_size" yaml:"node_cache_size"`
}

type CacheOptions struct {
	BaseDir             string `json:"base_dir,omitempty" yaml:"base_dir,omitempty"`
	InstanceMemoryLimit Size   `json:"instance_memory_limit" yaml:"instance_memory_limit"`
}

type KeystoreOptions struct {
	Dir string `json:"dir" yaml:"dir"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Adapter: AdapterOptions{Path: DefaultAdapterPath},
		Storage: StorageOptions{
			Backend:       BackendMemDB,
			NodeCacheSize: 4096,
		},
		Cache: CacheOptions{
			InstanceMemoryLimit: NewSizeMebi(128),
		},
		Keystore: KeystoreOptions{Dir: filepath.Join(os.TempDir(), KeystoreSubdir)},
		LogLevel: "info",
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	bz, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(bz, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Adapter.Path == "" {
		return fmt.Errorf("adapter path must not be empty")
	}
	switch c.Storage.Backend {
	case BackendMemDB:
	case BackendGoLevelDB:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage backend %s requires a directory", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.NodeCacheSize < 0 {
		return fmt.Errorf("node cache size must not be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// MemoryLimitPages converts the instance memory limit into 64KiB wasm pages.
// Zero means no limit beyond the wasm maximum.
func (c CacheOptions) MemoryLimitPages() uint32 {
	return c.InstanceMemoryLimit.uint32 / WasmPageSize
}

// WasmPageSize is the size of one wasm linear memory page.
const WasmPageSize = 65536

// ParseLogLevel maps an empty string to info.
func ParseLogLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

type Size struct{ uint32 }

func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.uint32)
}

func (s *Size) UnmarshalJSON(bz []byte) error {
	return json.Unmarshal(bz, &s.uint32)
}

func (s Size) MarshalYAML() (interface{}, error) {
	return s.uint32, nil
}

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	return node.Decode(&s.uint32)
}

func (s Size) Bytes() uint32 {
	return s.uint32
}

func NewSize(v uint32) Size {
	return Size{v}
}

func NewSizeKibi(v uint32) Size {
	return Size{v * 1024}
}

func NewSizeMebi(v uint32) Size {
	return Size{v * 1024 * 1024}
}
