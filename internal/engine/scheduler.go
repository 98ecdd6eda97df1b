package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/untoldecay/shelfbot/internal/catalog"
	"github.com/untoldecay/shelfbot/internal/metrics"
	"github.com/untoldecay/shelfbot/internal/queue"
	"github.com/untoldecay/shelfbot/internal/store"
	"github.com/untoldecay/shelfbot/internal/types"
)

// EnqueueSync inserts a synthetic sync job for root and pushes it onto the
// queue, unless a sync job is already queued or running. Returns the new job
// id, or 0 when one was already in flight. Single-in-flight comes from the
// job table, not from a lock: the scheduler and the manual sync command both
// go through here.
func EnqueueSync(ctx context.Context, st *store.Store, q queue.Queue, root string) (int64, error) {
	active, err := st.HasActiveSyncJob(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to check for active sync: %w", err)
	}
	if active {
		return 0, nil
	}

	root = store.CanonicalPath(root)
	rootID, err := st.UpsertCatalogItem(ctx, store.ItemUpsert{
		Path:      root,
		Kind:      types.KindFolder,
		Title:     catalog.RootTitle,
		StorageID: root,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to ensure sync root %s: %w", root, err)
	}

	jobID, err := st.InsertJob(ctx, 0, 0, rootID, types.JobSyncCatalog, uuid.NewString())
	if err != nil {
		return 0, fmt.Errorf("failed to insert sync job: %w", err)
	}
	if err := q.Push(ctx, jobID); err != nil {
		return 0, fmt.Errorf("failed to enqueue sync job %d: %w", jobID, err)
	}
	metrics.JobsEnqueued.Inc()
	return jobID, nil
}

// Scheduler periodically enqueues catalog sync jobs so the worker services
// them in-band with downloads.
type Scheduler struct {
	store    *store.Store
	queue    queue.Queue
	root     string
	interval time.Duration
	// Small head start so redis and the database settle after boot.
	startupDelay time.Duration
	log          zerolog.Logger
}

// NewScheduler builds a scheduler. An interval <= 0 disables it: Run
// returns immediately.
func NewScheduler(st *store.Store, q queue.Queue, root string, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:        st,
		queue:        q,
		root:         root,
		interval:     interval,
		startupDelay: 5 * time.Second,
		log:          log.With().Str("component", "scheduler").Logger(),
	}
}

// Run loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.startupDelay):
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		jobID, err := EnqueueSync(ctx, s.store, s.queue, s.root)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("sync scheduling failed")
		case jobID != 0:
			s.log.Info().Int64("job_id", jobID).Dur("interval", s.interval).Msg("sync scheduled")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
