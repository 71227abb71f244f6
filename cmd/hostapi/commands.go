package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/CosmWasm/hostapi"
	"github.com/CosmWasm/hostapi/internal/tracing"
	"github.com/CosmWasm/hostapi/types"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Adapter    string
	LogLevel   string
	Trace      bool
}

// NewRootCommand creates the root command of the hostapi CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "hostapi",
		Short:         "Run host API functions through an adapter runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Adapter, "adapter", "", "adapter runtime path (overrides the config)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (overrides the config)")
	cmd.PersistentFlags().BoolVar(&opts.Trace, "trace", false, "write execution spans to stderr")

	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewRootHashCommand(opts))
	return cmd
}

// NewExecCommand creates the exec command.
func NewExecCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <function> [args...]",
		Short: "Call an adapter export and print its result",
		Long: `Call an adapter export and print its result as hex.

Arguments starting with 0x are passed as bytes, everything else as a UTF-8
string. Each argument is SCALE encoded as a byte vector.

Example:
  hostapi exec rtm_ext_storage_set_version_1 :code 0x`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, opts, func(ctx context.Context, env *hostapi.Environment) error {
				input, err := parseArgs(args[1:])
				if err != nil {
					return err
				}
				out, err := env.Exec(ctx, args[0], input...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hexutil.Encode(out))
				return nil
			})
		},
	}
}

// NewRootHashCommand creates the root command, which prints the state root.
func NewRootHashCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "root [key value]...",
		Short: "Set key value pairs and print the committed state root",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args)%2 != 0 {
				return fmt.Errorf("expected key value pairs, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnvironment(cmd, opts, func(ctx context.Context, env *hostapi.Environment) error {
				pairs, err := parseArgs(args)
				if err != nil {
					return err
				}
				for i := 0; i < len(pairs); i += 2 {
					if _, err := env.Exec(ctx, "rtm_ext_storage_set_version_1", pairs[i], pairs[i+1]); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), env.StateRoot())
				return nil
			})
		},
	}
}

func parseArgs(args []string) ([]any, error) {
	out := make([]any, len(args))
	for i, arg := range args {
		if strings.HasPrefix(arg, "0x") {
			bz, err := hexutil.Decode(arg)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
			out[i] = bz
			continue
		}
		out[i] = arg
	}
	return out, nil
}

func loadConfig(opts *RootOptions) (types.Config, error) {
	cfg := types.DefaultConfig()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = types.LoadConfig(opts.ConfigPath); err != nil {
			return cfg, err
		}
	}
	if opts.Adapter != "" {
		cfg.Adapter.Path = opts.Adapter
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	return cfg, cfg.Validate()
}

func withEnvironment(cmd *cobra.Command, opts *RootOptions, run func(context.Context, *hostapi.Environment) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	level, err := types.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()

	var shutdown func(context.Context) error
	if opts.Trace {
		shutdown, err = tracing.Setup(cmd.ErrOrStderr())
	} else {
		shutdown, err = tracing.Setup(nil)
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown")
		}
	}()

	env, err := hostapi.New(ctx, cfg, hostapi.WithLogger(logger))
	if err != nil {
		return err
	}
	defer env.Close(ctx)
	return run(ctx, env)
}
