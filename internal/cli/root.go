package cli

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"system-snapshot/internal/config"
	"system-snapshot/internal/logging"
)

type rootOptions struct {
	cfgFile  string
	logLevel string
}

// Execute builds the command tree and runs it against os.Args.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// NewRootCmd returns the command tree. Run without a subcommand it prints the
// snapshot report.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "system-snapshot",
		Short: "Summarize recorded system snapshots",
		Long: `system-snapshot reads the snapshot history written by "system-snapshot collect"
(data/snapshots/system_snapshot.json by default) and prints the snapshot count,
the first and last timestamps and the CPU usage of the five newest snapshots.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "path to an optional config.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error, off)")

	cmd.AddCommand(newCollectCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// load reads .env, the config file and the environment, and builds a logger
// writing to the command's stderr.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	_ = godotenv.Load()

	logger, err := logging.NewLogger(o.logLevel, cmd.ErrOrStderr())
	if err != nil {
		return nil, logger, err
	}

	cfg, err := config.LoadConfig(o.cfgFile)
	if err != nil {
		return nil, logger, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Debug().
		Str("snapshot_dir", cfg.SnapshotDir).
		Int("history_limit", cfg.HistoryLimit).
		Msg("config loaded")

	return cfg, logger, nil
}
