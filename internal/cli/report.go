package cli

import (
	"github.com/spf13/cobra"

	"system-snapshot/internal/report"
	"system-snapshot/internal/storage"
)

func runReport(cmd *cobra.Command, opts *rootOptions) error {
	cfg, logger, err := opts.load(cmd)
	if err != nil {
		return err
	}

	store := storage.NewStore(cfg.SnapshotDir, cfg.HistoryLimit, logger)
	history, err := store.Load()
	if err != nil {
		return err
	}

	logger.Debug().
		Str("path", store.Path()).
		Int("snapshots", len(history.Snapshots)).
		Msg("snapshot history loaded")

	return report.Write(cmd.OutOrStdout(), history)
}
