package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"clawdash/config"
)

// RootOptions holds global flags and the state every subcommand shares.
type RootOptions struct {
	Verbose    bool
	ConfigPath string

	Config *config.Config
	Logger *slog.Logger
}

// NewRootCommand creates the root command for the clawdash CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "clawdash",
		Short: "clawdash - status dashboard backend for the OpenClaw gateway",
		Long: `clawdash serves the dashboard API (health, usage, config) by calling the
OpenClaw agent gateway, one short-lived connection per call.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.Logger = newLogger(cmd.ErrOrStderr(), opts.Verbose)
			slog.SetDefault(opts.Logger)

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.Config = cfg
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		fmt.Sprintf("YAML config file (default $%s)", config.EnvConfigFile))

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewMockGatewayCommand(opts))

	return cmd
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
