package runtime

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/hostapi/internal/runtime/host"
	"github.com/CosmWasm/hostapi/internal/runtime/memory"
	"github.com/CosmWasm/hostapi/types"
)

// HeapBaseExport is the global marking the end of the module's static data.
const HeapBaseExport = "__heap_base"

var exportParams = []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}

// Instance is an executable runtime. Every call runs in a fresh instance of
// the compiled module with a fresh heap, so calls never share guest state.
type Instance struct {
	module *Module
	logger zerolog.Logger
}

func (i *Instance) Module() *Module {
	return i.module
}

// Exports lists the functions the runtime can be called with.
func (i *Instance) Exports() []string {
	var names []string
	for name, def := range i.module.compiled.ExportedFunctions() {
		if isEntryPoint(def) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func isEntryPoint(def api.FunctionDefinition) bool {
	return slices.Equal(def.ParamTypes(), exportParams) &&
		slices.Equal(def.ResultTypes(), []api.ValueType{api.ValueTypeI64})
}

// Call runs the export name with input and returns its output. It does not
// touch storage sessions; the caller decides what the call runs against.
func (i *Instance) Call(ctx context.Context, name string, input []byte) ([]byte, error) {
	def, ok := i.module.compiled.ExportedFunctions()[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrHostFunctionNotFound, name)
	}
	if !isEntryPoint(def) {
		return nil, fmt.Errorf("%w: export %s is not callable as (i32,i32)->i64",
			types.ErrInvalidHostCallArguments, name)
	}

	c := host.NewContext(ctx, nil, nil, i.logger)
	ctx = host.WithContext(ctx, c)

	mod, err := i.module.runtime.InstantiateModule(ctx, i.module.compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, fmt.Errorf("%w: instantiating module: %w", types.ErrExecutionTrap, err)
	}
	defer mod.Close(ctx)

	heapBase := mod.ExportedGlobal(HeapBaseExport)
	if heapBase == nil {
		return nil, fmt.Errorf("%w: module does not export %s", types.ErrUnsupportedModule, HeapBaseExport)
	}
	mem := memory.New(mod.Memory())
	alloc := memory.NewAllocator(mem, api.DecodeU32(heapBase.Get()))
	c.Attach(mem, alloc)

	in, err := alloc.Write(input)
	if err != nil {
		return nil, fmt.Errorf("%w: writing input of %s: %w", types.ErrExecutionTrap, name, err)
	}

	i.logger.Debug().Str("function", name).Int("input_len", len(input)).Msg("calling runtime")
	res, err := mod.ExportedFunction(name).Call(ctx, api.EncodeU32(in.Ptr), api.EncodeU32(in.Len))
	if err != nil {
		if cause := c.Err(); cause != nil {
			return nil, fmt.Errorf("%w: %s: %w", types.ErrExecutionTrap, name, cause)
		}
		return nil, fmt.Errorf("%w: %s: %w", types.ErrExecutionTrap, name, err)
	}

	out, err := mem.ReadSpan(memory.SpanFromUint64(res[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: reading result of %s: %w", types.ErrExecutionTrap, name, err)
	}
	return out, nil
}
