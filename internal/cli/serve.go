package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"system-snapshot/internal/server"
	"system-snapshot/internal/storage"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		collect  bool
		procRoot string
		listen   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the snapshot history over HTTP",
		Long: `serve exposes the snapshot history on api.bind_address (127.0.0.1:7000 by
default): GET /api/system returns the newest snapshot and GET /api/history?limit=N
the newest N, capped at history_limit. When SYSTEM_API_KEY is set every /api
request needs "Authorization: Bearer <key>". Unless --collect=false, snapshots
are sampled and stored alongside, as with "collect".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.API.BindAddress = listen
			}
			if cfg.API.Key == "" {
				logger.Warn().Msg("SYSTEM_API_KEY is empty, the API accepts unauthenticated requests")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store := storage.NewStore(cfg.SnapshotDir, cfg.HistoryLimit, logger)
			srv := server.New(cfg, store, logger)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(ctx)
			})
			if collect {
				s := newSampler(cfg, procRoot, logger)
				g.Go(func() error {
					return s.run(ctx)
				})
			}

			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&collect, "collect", true, "sample and store snapshots while serving")
	cmd.Flags().StringVar(&procRoot, "proc-root", "/proc", "procfs mount to sample")
	cmd.Flags().StringVar(&listen, "listen", "", "override api.bind_address")

	return cmd
}
