package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"system-snapshot/internal/config"
	"system-snapshot/internal/metrics"
	"system-snapshot/internal/spikes"
	"system-snapshot/internal/storage"
)

// sampleWindow separates the priming sample from the first stored one so CPU
// usage has a delta to work with.
const sampleWindow = 200 * time.Millisecond

func newCollectCmd(opts *rootOptions) *cobra.Command {
	var (
		once     bool
		procRoot string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Sample /proc and append snapshots to the history",
		Long: `collect samples CPU, memory, swap, load and network counters on the configured
interval and appends each sample to the snapshot history, keeping at most
history_limit entries. It runs until interrupted unless --once is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := newSampler(cfg, procRoot, logger)
			if once {
				return s.runOnce(ctx)
			}
			return s.run(ctx)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "store a single snapshot and exit")
	cmd.Flags().StringVar(&procRoot, "proc-root", "/proc", "procfs mount to sample")

	return cmd
}

type sampler struct {
	collector *metrics.Collector
	detector  *spikes.Detector
	store     *storage.Store
	logger    zerolog.Logger
	interval  time.Duration
	warmup    time.Duration
	last      metrics.Snapshot
}

func newSampler(cfg *config.Config, procRoot string, logger zerolog.Logger) *sampler {
	return &sampler{
		collector: metrics.NewCollector(metrics.WithProcRoot(procRoot)),
		detector:  spikes.NewDetector(cfg),
		store:     storage.NewStore(cfg.SnapshotDir, cfg.HistoryLimit, logger),
		logger:    logger,
		interval:  cfg.CollectionInterval(),
		warmup:    sampleWindow,
	}
}

func (s *sampler) prime(ctx context.Context) error {
	if _, err := s.collector.Collect(); err != nil {
		return fmt.Errorf("failed to prime collector: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.warmup):
		return nil
	}
}

func (s *sampler) sample() error {
	snap, err := s.collector.Collect()
	if err != nil {
		return fmt.Errorf("metrics collect: %w", err)
	}

	if fired := s.detector.Debounce(s.detector.Detect(snap, s.last)); len(fired) > 0 {
		rx, tx := snap.NetworkKbps()
		s.logger.Warn().
			Strs("metrics", fired).
			Float64("cpu_usage_pct", snap.CPUUsagePct).
			Float64("mem_used_pct", snap.MemUsedPercent()).
			Float64("rx_kbps", rx).
			Float64("tx_kbps", tx).
			Msg("resource spike")
	}
	s.last = snap

	path, err := s.store.Append(snap)
	if err != nil {
		return fmt.Errorf("could not persist snapshot: %w", err)
	}

	s.logger.Debug().
		Str("path", path).
		Str("timestamp", snap.Timestamp.String()).
		Float64("cpu_usage_pct", snap.CPUUsagePct).
		Msg("snapshot stored")
	return nil
}

func (s *sampler) runOnce(ctx context.Context) error {
	if err := s.prime(ctx); err != nil {
		return err
	}
	return s.sample()
}

func (s *sampler) run(ctx context.Context) error {
	if err := s.prime(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	s.logger.Info().
		Str("path", s.store.Path()).
		Dur("interval", s.interval).
		Msg("collecting snapshots")

	if err := s.sample(); err != nil {
		s.logger.Error().Err(err).Msg("collection failed")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sample(); err != nil {
				s.logger.Error().Err(err).Msg("collection failed")
			}
		}
	}
}
