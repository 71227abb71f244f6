// Package host implements the functions a runtime module imports from its
// host and the table that maps their names to implementations.
package host

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CosmWasm/hostapi/internal/changes"
	"github.com/CosmWasm/hostapi/internal/crypto"
	"github.com/CosmWasm/hostapi/internal/storage"
	"github.com/CosmWasm/hostapi/internal/trie"
	"github.com/CosmWasm/hostapi/types"
)

// RuntimeBuilder runs another runtime module from within a host function.
type RuntimeBuilder interface {
	CallCode(ctx context.Context, code []byte, name string, input []byte) ([]byte, error)
}

// Deps are the components host functions work through. Storage mutations
// only ever go through Provider.
type Deps struct {
	Provider *storage.Provider
	Tracker  *changes.Tracker
	Keys     *crypto.Store
	Hasher   *crypto.Hasher
	Runtime  RuntimeBuilder
	// MaxLogLevel is reported by ext_logging_max_level_version_1 and filters
	// guest log lines.
	MaxLogLevel zerolog.Level
}

// Factory builds the host function table.
type Factory struct {
	deps   Deps
	logger zerolog.Logger

	blake2Codec *trie.Codec
	keccakCodec *trie.Codec
}

func NewFactory(deps Deps, logger zerolog.Logger) *Factory {
	keccak := func(data []byte) types.Hash {
		var h types.Hash
		copy(h[:], deps.Hasher.Keccak256(data))
		return h
	}
	return &Factory{
		deps:        deps,
		logger:      logger.With().Str("module", "host_factory").Logger(),
		blake2Codec: trie.NewCodec(),
		keccakCodec: trie.NewCodecWithHasher(keccak),
	}
}

// Build assembles every host function into an immutable table.
func (f *Factory) Build() (*Table, error) {
	cryptoFuncs, err := f.cryptoFunctions()
	if err != nil {
		return nil, err
	}
	var funcs []Function
	funcs = append(funcs, f.storageFunctions()...)
	funcs = append(funcs, f.hashingFunctions()...)
	funcs = append(funcs, cryptoFuncs...)
	funcs = append(funcs, f.trieFunctions()...)
	funcs = append(funcs, f.miscFunctions()...)
	funcs = append(funcs, f.loggingFunctions()...)
	funcs = append(funcs, allocatorFunctions()...)

	table, err := NewTable(funcs...)
	if err != nil {
		return nil, fmt.Errorf("building host function table: %w", err)
	}
	f.logger.Debug().Int("functions", table.Len()).Msg("host function table built")
	return table, nil
}
