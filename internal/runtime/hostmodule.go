package runtime

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/hostapi/internal/runtime/host"
	"github.com/CosmWasm/hostapi/internal/runtime/memory"
	"github.com/CosmWasm/hostapi/internal/runtime/validation"
	"github.com/CosmWasm/hostapi/types"
)

func paramType(p host.Param) api.ValueType {
	switch p.Kind {
	case host.KindPointer, host.KindI32:
		return api.ValueTypeI32
	default:
		return api.ValueTypeI64
	}
}

// signature returns the wasm type a host function is exported with.
func signature(f host.Function) validation.Signature {
	sig := validation.Signature{Params: make([]api.ValueType, len(f.Params))}
	for i, p := range f.Params {
		sig.Params[i] = paramType(p)
	}
	switch f.Result.Kind {
	case host.ResultSpan:
		sig.Results = []api.ValueType{api.ValueTypeI64}
	case host.ResultPointer, host.ResultI32:
		sig.Results = []api.ValueType{api.ValueTypeI32}
	default:
		sig.Results = []api.ValueType{}
	}
	return sig
}

// instantiateHostModule registers the host table as the "env" module of rt.
// Imports the table lacks are exported as functions that fail when called.
func instantiateHostModule(ctx context.Context, rt wazero.Runtime, table *host.Table, missing []validation.Import) error {
	builder := rt.NewHostModuleBuilder(validation.HostModule)

	for _, name := range table.Names() {
		f, _ := table.Lookup(name)
		sig := signature(f)
		builder.NewFunctionBuilder().
			WithGoModuleFunction(guestCall(f), sig.Params, sig.Results).
			WithName(name).
			Export(name)
	}
	for _, imp := range missing {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(missingCall(imp.Name), imp.Params, imp.Results).
			WithName(imp.Name).
			Export(imp.Name)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("failed to instantiate host module: %w", err)
	}
	return nil
}

// abort records err as the failure of the call and unwinds the guest.
func abort(c *host.Context, err error) {
	if c != nil {
		c.Fail(err)
	}
	panic(err)
}

func callState(ctx context.Context) *host.Context {
	c, ok := host.FromContext(ctx)
	if !ok {
		panic(fmt.Errorf("%w: host function called outside of a runtime call", types.ErrExecutionTrap))
	}
	return c
}

func missingCall(name string) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, _ []uint64) {
		c, _ := host.FromContext(ctx)
		abort(c, fmt.Errorf("%w: %s", types.ErrHostFunctionNotFound, name))
	}
}

// guestCall adapts a host function to the wasm calling convention: arguments
// are read out of guest memory, results are copied into allocations.
func guestCall(f host.Function) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		c := callState(ctx)
		mem, err := c.Memory()
		if err != nil {
			abort(c, err)
		}

		args := make([][]byte, len(f.Params))
		for i, p := range f.Params {
			if args[i], err = readArg(mem, p, stack[i]); err != nil {
				abort(c, fmt.Errorf("%s: %w", f.Name, err))
			}
		}

		out, err := f.Call(c, args)
		if err != nil {
			abort(c, err)
		}

		switch f.Result.Kind {
		case host.ResultSpan, host.ResultPointer:
			alloc, err := c.Allocator()
			if err != nil {
				abort(c, err)
			}
			span, err := alloc.Write(out)
			if err != nil {
				abort(c, fmt.Errorf("%s: %w", f.Name, err))
			}
			if f.Result.Kind == host.ResultSpan {
				stack[0] = span.Uint64()
			} else {
				stack[0] = api.EncodeU32(span.Ptr)
			}
		case host.ResultI32:
			stack[0] = api.EncodeU32(binary.LittleEndian.Uint32(out))
		}
	}
}

func readArg(mem *memory.Manager, p host.Param, v uint64) ([]byte, error) {
	switch p.Kind {
	case host.KindSpan:
		return mem.ReadSpan(memory.SpanFromUint64(v))
	case host.KindOut:
		return mem.ViewSpan(memory.SpanFromUint64(v))
	case host.KindPointer:
		return mem.ReadBytes(api.DecodeU32(v), p.Size)
	case host.KindI32:
		return binary.LittleEndian.AppendUint32(nil, api.DecodeU32(v)), nil
	default:
		return binary.LittleEndian.AppendUint64(nil, v), nil
	}
}
