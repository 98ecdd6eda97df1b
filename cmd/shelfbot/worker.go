package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/shelfbot/internal/access"
	"github.com/untoldecay/shelfbot/internal/catalog"
	"github.com/untoldecay/shelfbot/internal/config"
	"github.com/untoldecay/shelfbot/internal/delivery"
	"github.com/untoldecay/shelfbot/internal/drive"
	"github.com/untoldecay/shelfbot/internal/engine"
	"github.com/untoldecay/shelfbot/internal/health"
	"github.com/untoldecay/shelfbot/internal/messenger"
	"github.com/untoldecay/shelfbot/internal/queue"
	"github.com/untoldecay/shelfbot/internal/retry"
	"github.com/untoldecay/shelfbot/internal/store"
)

// Expired search and admin sessions are reaped in the background; a
// session older than the TTL can no longer be resolved by its token.
const (
	sessionTTL           = 24 * time.Hour
	sessionSweepInterval = time.Hour
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the delivery worker",
	Long: `Run the single job consumer: pops jobs off the Redis queue, syncs
the catalog, delivers files and serves health and metrics endpoints.
Stops gracefully on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runWorker(ctx)
	},
}

func runWorker(ctx context.Context) error {
	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	q, err := queue.NewRedisQueue(cfg.RedisURL, queue.WithKey(cfg.QueueKey))
	if err != nil {
		return err
	}
	defer q.Close()

	driver, err := buildDriver(cfg)
	if err != nil {
		return err
	}

	msgr, err := messenger.NewTelegram(cfg.BotToken)
	if err != nil {
		return err
	}

	policy := retry.Policy{
		Attempts: cfg.NetRetryAttempts,
		MaxWait:  cfg.NetRetryMaxWait,
	}
	notifier := access.NewNotifier(msgr, cfg.AdminNotifyChatID, cfg.AdminIDs, policy, log)
	guard := access.NewGuard(st, notifier, access.Config{
		Enabled:        cfg.AccessEnabled,
		AdminIDs:       cfg.AdminIDs,
		DefaultTTLDays: cfg.AccessTTLDays,
	}, log)
	sweeper := access.NewSweeper(guard, cfg.AccessWarnBefore, cfg.AccessWarnCheckIn)

	pipeline := delivery.New(st, driver, msgr, policy, log)
	synchronizer := catalog.New(st, driver, cfg.CatalogSyncMaxNodes, log)
	worker := engine.NewWorker(st, q, pipeline, synchronizer, notifier, engine.Options{}, log)
	scheduler := engine.NewScheduler(st, q, cfg.RootPath(), cfg.CatalogSyncInterval, log)

	healthSrv := health.NewServer(cfg.HealthAddr, map[string]health.Pinger{
		"db":    st,
		"queue": q,
	}, log)

	log.Info().
		Str("storage_mode", cfg.StorageMode).
		Str("root", cfg.RootPath()).
		Str("health_addr", cfg.HealthAddr).
		Msg("worker starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return healthSrv.Run(gctx) })
	g.Go(func() error { return sweepSessions(gctx, st) })

	if cfg.StorageMode == config.StorageLocal {
		watcher, err := engine.NewWatcher(cfg.LocalRoot, func() {
			if _, err := engine.EnqueueSync(context.Background(), st, q, cfg.RootPath()); err != nil {
				log.Warn().Err(err).Msg("change-triggered sync failed to enqueue")
			}
		}, log)
		if err != nil {
			return err
		}
		defer watcher.Close()
		g.Go(func() error { return watcher.Run(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("worker stopped")
		return nil
	}
	return err
}

func buildDriver(cfg *config.Config) (drive.Driver, error) {
	if cfg.StorageMode == config.StorageLocal {
		return drive.NewLocalDriver(cfg.LocalRoot)
	}
	return drive.NewYandexDriver(cfg.YandexOAuthToken)
}

func sweepSessions(ctx context.Context, st *store.Store) error {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if n, err := st.SweepSessions(ctx, sessionTTL); err != nil {
			log.Warn().Err(err).Msg("session sweep failed")
		} else if n > 0 {
			log.Debug().Int64("swept", n).Msg("expired sessions removed")
		}
	}
}
