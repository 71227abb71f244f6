// Package runtime loads runtime modules into the wazero sandbox and executes
// their exports against the host function table.
package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sys/unix"

	"github.com/CosmWasm/hostapi/internal/runtime/cache"
	"github.com/CosmWasm/hostapi/internal/runtime/host"
	"github.com/CosmWasm/hostapi/internal/runtime/validation"
	"github.com/CosmWasm/hostapi/types"
)

// ZstdPrefix marks zstd compressed runtime code.
var ZstdPrefix = []byte{82, 188, 83, 118, 70, 219, 142, 5}

// CodeBombLimit bounds the size of decompressed code.
const CodeBombLimit = 50 * 1024 * 1024

// Decompress returns code with the zstd compression of compact runtimes
// removed. Uncompressed code is returned unchanged.
func Decompress(code []byte) ([]byte, error) {
	if !bytes.HasPrefix(code, ZstdPrefix) {
		return code, nil
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(CodeBombLimit))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(code[len(ZstdPrefix):], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing code: %w", types.ErrUnsupportedModule, err)
	}
	if len(out) > CodeBombLimit {
		return nil, fmt.Errorf("%w: decompressed code exceeds %d bytes", types.ErrUnsupportedModule, CodeBombLimit)
	}
	return out, nil
}

// Module is compiled runtime code together with the sandbox it runs in.
// Every module gets its own wazero runtime so the host module it imports can
// carry stubs for the functions the host does not implement.
type Module struct {
	hash     types.Hash
	size     int
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	missing  []string
}

func (m *Module) Hash() types.Hash {
	return m.hash
}

// Missing lists the host functions the module imports that the host does
// not implement. Calling one of them fails the execution.
func (m *Module) Missing() []string {
	return m.missing
}

// Close releases the module's sandbox.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// ModuleFactory compiles runtime code and caches the result by code hash.
type ModuleFactory struct {
	table            *host.Table
	config           wazero.RuntimeConfig
	compilationCache wazero.CompilationCache
	modules          *cache.Cache[*Module]
	// lockfile holds the exclusive lock on the cache base directory
	lockfile *os.File
	logger   zerolog.Logger
}

// NewModuleFactory creates a factory whose modules import table. With a base
// directory, compiled code is also cached on disk and the directory is
// locked for exclusive use.
func NewModuleFactory(ctx context.Context, table *host.Table, opts types.CacheOptions, logger zerolog.Logger) (*ModuleFactory, error) {
	f := &ModuleFactory{
		table:   table,
		modules: cache.New[*Module](),
		logger:  logger.With().Str("module", "module_factory").Logger(),
	}

	if opts.BaseDir != "" {
		if err := os.MkdirAll(opts.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create base directory: %w", err)
		}
		lf, err := lockDir(opts.BaseDir)
		if err != nil {
			return nil, err
		}
		cc, err := wazero.NewCompilationCacheWithDir(filepath.Join(opts.BaseDir, "wazero"))
		if err != nil {
			lf.Close()
			return nil, fmt.Errorf("could not open compilation cache: %w", err)
		}
		f.lockfile = lf
		f.compilationCache = cc
	} else {
		f.compilationCache = wazero.NewCompilationCache()
	}

	f.config = wazero.NewRuntimeConfig().WithCompilationCache(f.compilationCache)
	if pages := opts.MemoryLimitPages(); pages > 0 {
		f.config = f.config.WithMemoryLimitPages(pages)
	}
	f.logger.Debug().
		Str("base_dir", opts.BaseDir).
		Uint32("memory_limit_pages", opts.MemoryLimitPages()).
		Msg("module factory ready")
	return f, nil
}

func lockDir(dir string) (*os.File, error) {
	lf, err := os.OpenFile(filepath.Join(dir, "exclusive.lock"), os.O_WRONLY|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("could not open exclusive.lock: %w", err)
	}
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lf.Close()
		return nil, fmt.Errorf("could not lock exclusive.lock; is another environment running? %w", err)
	}
	return lf, nil
}

// Load returns the compiled module for code, compiling it on first use.
func (f *ModuleFactory) Load(ctx context.Context, code []byte) (*Module, error) {
	m, _, err := f.load(ctx, code)
	return m, err
}

// load is Load that also reports whether this call compiled the module.
func (f *ModuleFactory) load(ctx context.Context, code []byte) (*Module, bool, error) {
	code, err := Decompress(code)
	if err != nil {
		return nil, false, err
	}
	hash := types.Hash(blake2b.Sum256(code))
	if m, ok := f.modules.Load(hash); ok {
		return m, false, nil
	}

	rt := wazero.NewRuntimeWithConfig(ctx, f.config)
	m, err := f.compile(ctx, rt, code)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, false, err
	}
	m.hash = hash

	cached, saved := f.modules.Save(hash, m, uint64(len(code)))
	if !saved {
		_ = m.Close(ctx)
		return cached, false, nil
	}
	ev := f.logger.Info().Str("hash", hash.String()).Int("size", len(code))
	if len(m.missing) > 0 {
		ev = ev.Strs("missing_host_functions", m.missing)
	}
	ev.Msg("runtime module compiled")
	return m, true, nil
}

// Evict closes and forgets the module compiled for hash unless it is
// pinned.
func (f *ModuleFactory) Evict(ctx context.Context, hash types.Hash) error {
	removed, err := f.modules.Remove(ctx, hash)
	if removed {
		f.logger.Debug().Str("hash", hash.String()).Msg("runtime module evicted")
	}
	return err
}

func (f *ModuleFactory) compile(ctx context.Context, rt wazero.Runtime, code []byte) (*Module, error) {
	compiled, err := rt.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrUnsupportedModule, err)
	}
	report, err := validation.Validate(compiled, f.signatureOf)
	if err != nil {
		return nil, err
	}
	if err := instantiateHostModule(ctx, rt, f.table, report.Missing); err != nil {
		return nil, err
	}

	missing := make([]string, len(report.Missing))
	for i, imp := range report.Missing {
		missing[i] = imp.Name
	}
	return &Module{size: len(code), runtime: rt, compiled: compiled, missing: missing}, nil
}

func (f *ModuleFactory) signatureOf(name string) (validation.Signature, bool) {
	fn, ok := f.table.Lookup(name)
	if !ok {
		return validation.Signature{}, false
	}
	return signature(fn), true
}

// Cache exposes the compiled module cache.
func (f *ModuleFactory) Cache() *cache.Cache[*Module] {
	return f.modules
}

// Close releases every module, the compilation cache and the directory
// lock.
func (f *ModuleFactory) Close(ctx context.Context) error {
	err := f.modules.Close(ctx)
	if cerr := f.compilationCache.Close(ctx); err == nil {
		err = cerr
	}
	if f.lockfile != nil {
		_ = unix.Flock(int(f.lockfile.Fd()), unix.LOCK_UN)
		if cerr := f.lockfile.Close(); err == nil {
			err = cerr
		}
		f.lockfile = nil
	}
	return err
}
