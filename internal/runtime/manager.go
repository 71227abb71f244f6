package runtime

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/CosmWasm/hostapi/internal/changes"
	"github.com/CosmWasm/hostapi/internal/headers"
	"github.com/CosmWasm/hostapi/internal/storage"
	"github.com/CosmWasm/hostapi/internal/tracing"
	"github.com/CosmWasm/hostapi/types"
)

// Manager turns runtime code into instances and runs them against the
// storage provider.
type Manager struct {
	factory  *ModuleFactory
	provider *storage.Provider
	tracker  *changes.Tracker
	headers  *headers.Repository
	logger   zerolog.Logger
}

func NewManager(factory *ModuleFactory, provider *storage.Provider, tracker *changes.Tracker, headers *headers.Repository, logger zerolog.Logger) *Manager {
	return &Manager{
		factory:  factory,
		provider: provider,
		tracker:  tracker,
		headers:  headers,
		logger:   logger.With().Str("module", "runtime_manager").Logger(),
	}
}

// Instantiate compiles code, or reuses its cached compilation, and returns
// an executable instance.
func (m *Manager) Instantiate(ctx context.Context, code []byte) (*Instance, error) {
	mod, err := m.factory.Load(ctx, code)
	if err != nil {
		return nil, err
	}
	return m.newInstance(mod), nil
}

// InstantiateOnce is Instantiate for code that runs a single time. Calling
// release evicts the compilation again, unless the code was already cached
// or has been pinned since.
func (m *Manager) InstantiateOnce(ctx context.Context, code []byte) (inst *Instance, release func(context.Context), err error) {
	mod, compiled, err := m.factory.load(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	release = func(context.Context) {}
	if compiled {
		release = func(ctx context.Context) {
			if err := m.factory.Evict(ctx, mod.Hash()); err != nil {
				m.logger.Warn().Err(err).Str("code_hash", mod.Hash().String()).Msg("evicting module")
			}
		}
	}
	return m.newInstance(mod), release, nil
}

func (m *Manager) newInstance(mod *Module) *Instance {
	return &Instance{
		module: mod,
		logger: m.logger.With().Str("code_hash", mod.Hash().String()).Logger(),
	}
}

// Exec runs name on inst in a session for the block following parent. The
// session is committed when the call succeeds and rolled back otherwise.
func (m *Manager) Exec(ctx context.Context, inst *Instance, parent types.Hash, name string, input []byte) ([]byte, error) {
	number, err := m.headers.GetNumberByHash(parent)
	if err != nil {
		return nil, fmt.Errorf("resolving parent block: %w", err)
	}
	block := number + 1

	if err := m.provider.StartSession(block); err != nil {
		return nil, err
	}
	m.tracker.StartTracking(parent, block)
	return m.run(ctx, inst, block, name, input)
}

// ExecAt runs name on inst on top of the state root of the stored header
// at. Nothing is committed when the call fails.
func (m *Manager) ExecAt(ctx context.Context, inst *Instance, at types.Hash, name string, input []byte) ([]byte, error) {
	header, err := m.headers.GetHeader(at)
	if err != nil {
		return nil, fmt.Errorf("resolving block %s: %w", at, err)
	}
	block := header.Number + 1

	if err := m.provider.StartSessionAt(header.StateRoot, block); err != nil {
		return nil, err
	}
	m.tracker.StartTracking(at, block)
	return m.run(ctx, inst, block, name, input)
}

func (m *Manager) run(ctx context.Context, inst *Instance, block uint32, name string, input []byte) (out []byte, err error) {
	ctx, span := tracing.StartSpan(ctx, "runtime.exec", trace.WithAttributes(
		tracing.StringAttr("function", name),
		tracing.IntAttr("block", int(block)),
	))
	defer func() { tracing.End(span, err) }()

	out, err = inst.Call(ctx, name, input)
	if err != nil {
		if rerr := m.provider.Rollback(); rerr != nil {
			m.logger.Error().Err(rerr).Msg("rollback after failed call")
		}
		m.logger.Debug().Err(err).Str("function", name).Msg("call failed, session rolled back")
		return nil, err
	}

	root, err := m.provider.Commit()
	if err != nil {
		return nil, err
	}
	m.logger.Debug().
		Str("function", name).
		Uint32("block", block).
		Str("root", root.String()).
		Int("changes", len(m.tracker.Records())).
		Msg("call committed")
	return out, nil
}

// Provider is the storage provider calls run against.
func (m *Manager) Provider() *storage.Provider {
	return m.provider
}

func (m *Manager) Factory() *ModuleFactory {
	return m.factory
}
