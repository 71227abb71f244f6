// Package hostapi is a test environment for the Polkadot host API. It runs
// the exports of an adapter runtime inside a wasm sandbox whose host
// functions are backed by a Merkle trie state, a change tracker and a
// keystore.
package hostapi

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ChainSafe/gossamer/pkg/scale"
	dbm "github.com/cometbft/cometbft-db"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/CosmWasm/hostapi/internal/changes"
	"github.com/CosmWasm/hostapi/internal/crypto"
	"github.com/CosmWasm/hostapi/internal/headers"
	"github.com/CosmWasm/hostapi/internal/runtime"
	"github.com/CosmWasm/hostapi/internal/runtime/host"
	"github.com/CosmWasm/hostapi/internal/storage"
	"github.com/CosmWasm/hostapi/internal/tracing"
	"github.com/CosmWasm/hostapi/internal/trie"
	"github.com/CosmWasm/hostapi/types"
)

// Keys seeded into storage before any call runs.
var (
	CodeKey      = []byte(":code")
	HeapPagesKey = []byte(":heappages")
)

// DefaultHeapPages is the value stored under HeapPagesKey.
var DefaultHeapPages = binary.LittleEndian.AppendUint64(nil, 8)

const setStorageExport = "rtm_ext_storage_set_version_1"

// Option configures an Environment.
type Option func(*options)

type options struct {
	logger zerolog.Logger
	random io.Reader
}

// WithLogger sets the logger of the environment and all its components.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRandom sets the source of the seeds of keys generated without a
// phrase.
func WithRandom(r io.Reader) Option {
	return func(o *options) {
		o.random = r
	}
}

// Environment runs host API functions through the adapter runtime. Calls
// must not be made concurrently.
type Environment struct {
	cfg    types.Config
	logger zerolog.Logger

	nodeDB   dbm.DB
	headerDB dbm.DB

	storage  *storage.TrieStorage
	provider *storage.Provider
	engine   *changes.Engine
	tracker  *changes.Tracker
	keys     *crypto.Store
	headers  *headers.Repository
	table    *host.Table
	factory  *runtime.ModuleFactory
	manager  *runtime.Manager
	adapter  *runtime.Instance

	// head is the header the next call builds on
	head types.Hash
}

// New builds an environment from cfg. It fails with
// types.ErrAdapterModuleNotFound when the adapter cannot be read.
func New(ctx context.Context, cfg types.Config, opts ...Option) (env *Environment, err error) {
	o := options{logger: zerolog.Nop(), random: rand.Reader}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStartup, err)
	}
	maxLevel, err := types.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	e := &Environment{
		cfg:    cfg,
		logger: o.logger.With().Str("module", "environment").Logger(),
	}
	defer func() {
		if err != nil {
			_ = e.Close(ctx)
		}
	}()

	code, err := os.ReadFile(cfg.Adapter.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", types.ErrAdapterModuleNotFound, cfg.Adapter.Path, err)
	}

	if e.nodeDB, err = storage.OpenDB(cfg.Storage, "nodes"); err != nil {
		return nil, err
	}
	serializer, err := trie.NewSerializer(
		trie.NewBackend(e.nodeDB, []byte(cfg.Storage.Prefix)), trie.NewCodec(), cfg.Storage.NodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrBackendInit, err)
	}
	if e.storage, err = storage.Open(serializer, o.logger); err != nil {
		return nil, err
	}

	if e.headerDB, err = storage.OpenDB(cfg.Storage, "headers"); err != nil {
		return nil, err
	}
	e.headers = headers.NewRepository(e.headerDB)
	if e.head, err = e.headers.PutHeader(headers.Header{StateRoot: e.storage.RootHash()}); err != nil {
		return nil, err
	}

	e.engine = changes.NewEngine(o.logger)
	e.tracker = changes.NewTracker(serializer.Codec(), e.headers, e.engine, o.logger)
	e.provider = storage.NewProvider(e.storage, e.tracker, o.logger)

	files, err := crypto.CreateAt(cfg.Keystore.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: keystore: %w", types.ErrStartup, err)
	}
	e.keys = crypto.NewStore(files, crypto.NewBip39Provider(), o.random)

	builder := runtime.NewBuilder()
	e.table, err = host.NewFactory(host.Deps{
		Provider:    e.provider,
		Tracker:     e.tracker,
		Keys:        e.keys,
		Hasher:      crypto.NewHasher(),
		Runtime:     builder,
		MaxLogLevel: maxLevel,
	}, o.logger).Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStartup, err)
	}

	if e.factory, err = runtime.NewModuleFactory(ctx, e.table, cfg.Cache, o.logger); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrStartup, err)
	}
	e.manager = runtime.NewManager(e.factory, e.provider, e.tracker, e.headers, o.logger)
	builder.Bind(e.manager)

	if e.adapter, err = e.manager.Instantiate(ctx, code); err != nil {
		return nil, err
	}
	e.factory.Cache().Pin(e.adapter.Module().Hash())

	if _, err = e.Exec(ctx, setStorageExport, CodeKey, []byte{}); err != nil {
		return nil, fmt.Errorf("seeding %s: %w", CodeKey, err)
	}
	if _, err = e.Exec(ctx, setStorageExport, HeapPagesKey, DefaultHeapPages); err != nil {
		return nil, fmt.Errorf("seeding %s: %w", HeapPagesKey, err)
	}

	e.logger.Info().
		Str("adapter", cfg.Adapter.Path).
		Str("code_hash", e.adapter.Module().Hash().String()).
		Int("host_functions", e.table.Len()).
		Msg("environment ready")
	return e, nil
}

// EncodeArgs SCALE encodes args and concatenates them into the input of a
// runtime call.
func EncodeArgs(args ...any) ([]byte, error) {
	var input []byte
	for i, arg := range args {
		bz, err := scale.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: argument %d: %w", types.ErrInvalidHostCallArguments, i, err)
		}
		input = append(input, bz...)
	}
	return input, nil
}

// Exec calls the adapter export name with the SCALE encoded args on top of
// the last committed state and returns the raw result. State changes are
// committed only when the call succeeds.
func (e *Environment) Exec(ctx context.Context, name string, args ...any) (out []byte, err error) {
	ctx, span := tracing.StartSpan(ctx, "hostapi.exec", trace.WithAttributes(tracing.StringAttr("function", name)))
	defer func() { tracing.End(span, err) }()

	input, err := EncodeArgs(args...)
	if err != nil {
		return nil, err
	}
	parent, err := e.headers.GetHeader(e.head)
	if err != nil {
		return nil, err
	}

	out, err = e.manager.Exec(ctx, e.adapter, e.head, name, input)
	if err != nil {
		return nil, err
	}

	head, err := e.headers.PutHeader(headers.Header{
		ParentHash: e.head,
		Number:     parent.Number + 1,
		StateRoot:  e.storage.RootHash(),
	})
	if err != nil {
		return nil, err
	}
	e.head = head
	return out, nil
}

// Call runs Exec and decodes the result as T. Use struct{} for functions
// without a result.
func Call[T any](ctx context.Context, e *Environment, name string, args ...any) (T, error) {
	var result T
	out, err := e.Exec(ctx, name, args...)
	if err != nil {
		return result, err
	}
	if err := scale.Unmarshal(out, &result); err != nil {
		return result, fmt.Errorf("decoding result of %s: %w", name, err)
	}
	return result, nil
}

// Head is the hash of the header the next call builds on.
func (e *Environment) Head() types.Hash {
	return e.head
}

// StateRoot is the root of the last committed state.
func (e *Environment) StateRoot() types.Hash {
	return e.storage.RootHash()
}

// Get reads key from the last committed state.
func (e *Environment) Get(key []byte) ([]byte, bool) {
	return e.storage.Get(key)
}

func (e *Environment) Config() types.Config {
	return e.cfg
}

func (e *Environment) Storage() *storage.TrieStorage {
	return e.storage
}

func (e *Environment) Provider() *storage.Provider {
	return e.provider
}

func (e *Environment) Tracker() *changes.Tracker {
	return e.tracker
}

// Subscriptions is the engine change records are published on.
func (e *Environment) Subscriptions() *changes.Engine {
	return e.engine
}

func (e *Environment) Headers() *headers.Repository {
	return e.headers
}

func (e *Environment) Keystore() *crypto.Store {
	return e.keys
}

func (e *Environment) HostFunctions() *host.Table {
	return e.table
}

func (e *Environment) Manager() *runtime.Manager {
	return e.manager
}

// Adapter is the instantiated adapter runtime.
func (e *Environment) Adapter() *runtime.Instance {
	return e.adapter
}

// Close releases the sandbox and the stores. The environment is unusable
// afterwards.
func (e *Environment) Close(ctx context.Context) error {
	var errs []error
	if e.factory != nil {
		if e.adapter != nil {
			hash := e.adapter.Module().Hash()
			e.factory.Cache().Unpin(hash)
			errs = append(errs, e.factory.Evict(ctx, hash))
			e.adapter = nil
		}
		errs = append(errs, e.factory.Close(ctx))
		e.factory = nil
	}
	if e.nodeDB != nil {
		errs = append(errs, e.nodeDB.Close())
		e.nodeDB = nil
	}
	if e.headerDB != nil {
		errs = append(errs, e.headerDB.Close())
		e.headerDB = nil
	}
	return errors.Join(errs...)
}
