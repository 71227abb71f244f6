package host

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CosmWasm/hostapi/internal/runtime/memory"
	"github.com/CosmWasm/hostapi/types"
)

type contextKey struct{}

// Context is the state of one runtime call as seen by host functions. It
// lives from instantiation of the module until the export returns.
type Context struct {
	ctx       context.Context
	memory    *memory.Manager
	allocator *memory.Allocator
	logger    zerolog.Logger

	batch *batchVerifier
	// first fatal error raised by a host function
	err error
}

// NewContext creates the state of a call. memory and allocator may be nil
// when no guest is attached, e.g. when functions are called directly.
func NewContext(ctx context.Context, mem *memory.Manager, allocator *memory.Allocator, logger zerolog.Logger) *Context {
	return &Context{
		ctx:       ctx,
		memory:    mem,
		allocator: allocator,
		logger:    logger,
	}
}

// WithContext stores c in ctx so host functions invoked by the sandbox can
// find it.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the call state stored by WithContext.
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(contextKey{}).(*Context)
	return c, ok
}

// Attach binds guest memory to the call once the module is instantiated.
func (c *Context) Attach(mem *memory.Manager, allocator *memory.Allocator) {
	c.memory = mem
	c.allocator = allocator
}

func (c *Context) Context() context.Context {
	return c.ctx
}

func (c *Context) Memory() (*memory.Manager, error) {
	if c.memory == nil {
		return nil, fmt.Errorf("%w: no guest memory attached", types.ErrInvalidPointer)
	}
	return c.memory, nil
}

func (c *Context) Allocator() (*memory.Allocator, error) {
	if c.allocator == nil {
		return nil, fmt.Errorf("%w: no guest allocator attached", types.ErrOutOfMemory)
	}
	return c.allocator, nil
}

func (c *Context) Logger() zerolog.Logger {
	return c.logger
}

// Fail records the fatal error of a host function. Only the first one is
// kept.
func (c *Context) Fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Err returns the fatal error recorded by Fail.
func (c *Context) Err() error {
	return c.err
}
