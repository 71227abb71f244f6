// Package validation performs static checks on compiled runtime modules
// before they are instantiated.
package validation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/CosmWasm/hostapi/types"
)

// HostModule is the module every host function is imported from.
const HostModule = "env"

// Signature is the wasm type of a function.
type Signature struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (s Signature) Equal(other Signature) bool {
	return slices.Equal(s.Params, other.Params) && slices.Equal(s.Results, other.Results)
}

func (s Signature) String() string {
	names := func(ts []api.ValueType) string {
		parts := make([]string, len(ts))
		for i, t := range ts {
			parts[i] = api.ValueTypeName(t)
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprintf("(%s)->(%s)", names(s.Params), names(s.Results))
}

// Lookup returns the signature of a host function the host provides.
type Lookup func(name string) (Signature, bool)

// Import is a host function imported by a module.
type Import struct {
	Name string
	Signature
}

// Report describes the host functions a module imports.
type Report struct {
	// Provided are imports the host implements.
	Provided []Import
	// Missing are imports the host does not implement. Calling them fails.
	Missing []Import
}

// Validate checks that the module defines and exports its memory, imports
// functions only from the host module with the signatures the host uses,
// and reports which of its imports the host is missing.
func Validate(compiled wazero.CompiledModule, lookup Lookup) (Report, error) {
	var report Report

	if len(compiled.ImportedMemories()) > 0 {
		return report, fmt.Errorf("%w: module imports its memory", types.ErrUnsupportedModule)
	}
	memoryCount := 0
	for _, exp := range compiled.ExportedMemories() {
		if exp != nil {
			memoryCount++
		}
	}
	if memoryCount != 1 {
		return report, fmt.Errorf("%w: module must export exactly one memory, found %d",
			types.ErrUnsupportedModule, memoryCount)
	}

	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		if module != HostModule {
			return report, fmt.Errorf("%w: import %s.%s from unknown module",
				types.ErrUnsupportedModule, module, name)
		}
		imp := Import{Name: name, Signature: Signature{Params: def.ParamTypes(), Results: def.ResultTypes()}}
		want, ok := lookup(name)
		if !ok {
			report.Missing = append(report.Missing, imp)
			continue
		}
		if !want.Equal(imp.Signature) {
			return report, fmt.Errorf("%w: import %s has signature %s, host provides %s",
				types.ErrUnsupportedModule, name, imp.Signature, want)
		}
		report.Provided = append(report.Provided, imp)
	}
	return report, nil
}
