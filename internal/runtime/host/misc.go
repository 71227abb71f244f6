package host

import (
	"encoding/hex"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

func (f *Factory) miscFunctions() []Function {
	return []Function{
		{
			Name:   "ext_misc_print_num_version_1",
			Params: []Param{I64},
			Impl: func(c *Context, args [][]byte) ([]byte, error) {
				c.logger.Debug().Uint64("num", argU64(args[0])).Msg("runtime print")
				return nil, nil
			},
		},
		{
			Name:   "ext_misc_print_utf8_version_1",
			Params: []Param{Span},
			Impl: func(c *Context, args [][]byte) ([]byte, error) {
				if utf8.Valid(args[0]) {
					c.logger.Debug().Str("utf8", string(args[0])).Msg("runtime print")
				}
				return nil, nil
			},
		},
		{
			Name:   "ext_misc_print_hex_version_1",
			Params: []Param{Span},
			Impl: func(c *Context, args [][]byte) ([]byte, error) {
				c.logger.Debug().Str("hex", hex.EncodeToString(args[0])).Msg("runtime print")
				return nil, nil
			},
		},
		{
			Name:   "ext_misc_runtime_version_version_1",
			Params: []Param{Span},
			Result: SpanOut,
			Impl: func(c *Context, args [][]byte) ([]byte, error) {
				if f.deps.Runtime == nil {
					return optionBytes(nil, false), nil
				}
				version, err := f.deps.Runtime.CallCode(c.Context(), args[0], "Core_version", nil)
				if err != nil {
					c.logger.Debug().Err(err).Msg("reading runtime version failed")
					return optionBytes(nil, false), nil
				}
				return optionBytes(version, true), nil
			},
		},
	}
}

// Log levels as numbered by the runtime, most severe first.
var runtimeLogLevels = []zerolog.Level{
	zerolog.ErrorLevel,
	zerolog.WarnLevel,
	zerolog.InfoLevel,
	zerolog.DebugLevel,
	zerolog.TraceLevel,
}

// maxLevelFilter converts a zerolog level into the runtime's level filter,
// where 0 disables logging and 5 enables trace.
func maxLevelFilter(level zerolog.Level) uint32 {
	switch {
	case level <= zerolog.TraceLevel:
		return 5
	case level == zerolog.DebugLevel:
		return 4
	case level == zerolog.InfoLevel:
		return 3
	case level == zerolog.WarnLevel:
		return 2
	case level == zerolog.ErrorLevel, level == zerolog.FatalLevel, level == zerolog.PanicLevel:
		return 1
	}
	return 0
}

func (f *Factory) loggingFunctions() []Function {
	maxLevel := f.deps.MaxLogLevel
	return []Function{
		{
			Name:   "ext_logging_log_version_1",
			Params: []Param{I32, Span, Span},
			Impl: func(c *Context, args [][]byte) ([]byte, error) {
				level := zerolog.TraceLevel
				if n := argU32(args[0]); n < uint32(len(runtimeLogLevels)) {
					level = runtimeLogLevels[n]
				}
				if level < maxLevel {
					return nil, nil
				}
				c.logger.WithLevel(level).
					Str("target", string(args[1])).
					Msg(string(args[2]))
				return nil, nil
			},
		},
		{
			Name:   "ext_logging_max_level_version_1",
			Result: I32Result,
			Impl: func(_ *Context, _ [][]byte) ([]byte, error) {
				return u32Bytes(maxLevelFilter(maxLevel)), nil
			},
		},
	}
}

func allocatorFunctions() []Function {
	return []Function{
		{
			Name:   "ext_allocator_malloc_version_1",
			Params: []Param{I32},
			Result: I32Result,
			Impl: func(c *Context, args [][]byte) ([]byte, error) {
				a, err := c.Allocator()
				if err != nil {
					return nil, err
				}
				ptr, err := a.Allocate(argU32(args[0]))
				if err != nil {
					return nil, err
				}
				return u32Bytes(ptr), nil
			},
		},
		{
			Name:   "ext_allocator_free_version_1",
			Params: []Param{I32},
			Impl: func(c *Context, args [][]byte) ([]byte, error) {
				a, err := c.Allocator()
				if err != nil {
					return nil, err
				}
				return nil, a.Deallocate(argU32(args[0]))
			},
		},
	}
}
