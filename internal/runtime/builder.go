package runtime

import (
	"context"
	"errors"
	"sync"
)

var errBuilderUnbound = errors.New("runtime builder is not bound to a manager")

// Builder lets host functions run other runtime code. The host table is
// built before the manager exists, so the manager is bound afterwards.
type Builder struct {
	mu      sync.RWMutex
	manager *Manager
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Bind sets the manager nested runtimes are created with.
func (b *Builder) Bind(m *Manager) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.manager = m
}

// CallCode instantiates code and calls name on it within the session of the
// calling runtime. Code compiled only for this call is not kept in the
// module cache.
func (b *Builder) CallCode(ctx context.Context, code []byte, name string, input []byte) ([]byte, error) {
	b.mu.RLock()
	m := b.manager
	b.mu.RUnlock()
	if m == nil {
		return nil, errBuilderUnbound
	}

	inst, release, err := m.InstantiateOnce(ctx, code)
	if err != nil {
		return nil, err
	}
	defer release(ctx)
	return inst.Call(ctx, name, input)
}
