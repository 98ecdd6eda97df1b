// Package engine runs the job loop: it pops job ids off the durable queue,
// drives each job through its state machine and dispatches to the catalog
// synchronizer or the delivery pipeline by kind.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/untoldecay/shelfbot/internal/access"
	"github.com/untoldecay/shelfbot/internal/catalog"
	"github.com/untoldecay/shelfbot/internal/delivery"
	"github.com/untoldecay/shelfbot/internal/drive"
	"github.com/untoldecay/shelfbot/internal/metrics"
	"github.com/untoldecay/shelfbot/internal/queue"
	"github.com/untoldecay/shelfbot/internal/store"
	"github.com/untoldecay/shelfbot/internal/types"
)

// DefaultMaxAttempts is the per-job attempt budget: one initial try plus two
// retries.
const DefaultMaxAttempts = 3

const defaultPopTimeout = 5 * time.Second

// Worker is the single job consumer of a deployment.
type Worker struct {
	store    *store.Store
	queue    queue.Queue
	pipeline *delivery.Pipeline
	sync     *catalog.Synchronizer
	notifier *access.Notifier
	log      zerolog.Logger

	maxAttempts int
	popTimeout  time.Duration
}

// Options tunes the worker. Zero values select the defaults.
type Options struct {
	MaxAttempts int
	PopTimeout  time.Duration
}

// NewWorker wires the worker. notifier may be nil in tests.
func NewWorker(st *store.Store, q queue.Queue, pipe *delivery.Pipeline, sync *catalog.Synchronizer, notifier *access.Notifier, opts Options, log zerolog.Logger) *Worker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.PopTimeout <= 0 {
		opts.PopTimeout = defaultPopTimeout
	}
	return &Worker{
		store:       st,
		queue:       q,
		pipeline:    pipe,
		sync:        sync,
		notifier:    notifier,
		log:         log.With().Str("component", "engine").Logger(),
		maxAttempts: opts.MaxAttempts,
		popTimeout:  opts.PopTimeout,
	}
}

// Run consumes the queue until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	for {
		jobID, ok, err := w.queue.Pop(ctx, w.popTimeout)
		switch {
		case errors.Is(err, queue.ErrClosed):
			return nil
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		case err != nil:
			w.log.Error().Err(err).Msg("queue pop failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		w.processOne(ctx, jobID)
	}
}

// processOne drives a single popped job id through the state machine.
func (w *Worker) processOne(ctx context.Context, jobID int64) {
	job, err := w.store.FetchJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		w.log.Warn().Int64("job_id", jobID).Msg("popped id without a job row")
		return
	}
	if err != nil {
		w.log.Error().Err(err).Int64("job_id", jobID).Msg("failed to fetch job")
		return
	}
	// Stale queue entries for finished jobs are dropped without a state
	// change.
	if job.State.Terminal() {
		return
	}

	// The attempt counter tracks entries into running, so a job that
	// succeeds first try finishes with attempt 1.
	attempt, err := w.store.MarkJobRunning(ctx, job.ID)
	if err != nil {
		w.log.Error().Err(err).Int64("job_id", job.ID).Msg("failed to mark job running")
		return
	}
	job.Attempt = attempt
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	log := w.log.With().Int64("job_id", job.ID).Str("kind", string(job.Kind)).Logger()
	log.Info().Int("attempt", job.Attempt).Msg("job picked up")

	var runErr error
	switch job.Kind {
	case types.JobSyncCatalog:
		runErr = w.runSync(ctx, job)
	default:
		runErr = w.runDownload(ctx, job)
	}

	if runErr == nil {
		if err := w.store.SetJobState(ctx, job.ID, types.JobSucceeded, ""); err != nil {
			log.Error().Err(err).Msg("failed to mark job succeeded")
			return
		}
		metrics.JobsSucceeded.Inc()
		log.Info().Msg("job succeeded")
		return
	}
	w.handleFailure(ctx, job, runErr, log)
}

func (w *Worker) runDownload(ctx context.Context, job *types.Job) error {
	_, err := w.pipeline.Deliver(ctx, job)
	return err
}

func (w *Worker) runSync(ctx context.Context, job *types.Job) error {
	item, err := w.store.FetchCatalogItem(ctx, job.ItemID)
	if err != nil {
		return fmt.Errorf("failed to resolve sync root item %d: %w", job.ItemID, err)
	}
	res, err := w.sync.Sync(ctx, item.Path)
	if err != nil {
		return err
	}
	metrics.CatalogSyncObserved.Set(float64(res.Observed))
	metrics.CatalogSyncDeleted.Set(float64(res.Deleted))

	// Manual syncs report back to the chat that asked; scheduled ones have
	// chat id 0.
	if job.ChatID > 0 && w.notifier != nil {
		w.notifier.NotifyUser(ctx, job.ChatID,
			fmt.Sprintf("Синхронизация завершена: %d объектов, %d удалено.", res.Observed, res.Deleted))
	}
	return nil
}

// terminalError reports error classes that no retry can fix.
func terminalError(err error) bool {
	return errors.Is(err, drive.ErrNotFound) || errors.Is(err, delivery.ErrNotAFile)
}

func (w *Worker) handleFailure(ctx context.Context, job *types.Job, runErr error, log zerolog.Logger) {
	if terminalError(runErr) {
		w.failJob(ctx, job, runErr, log)
		return
	}

	if job.Attempt < w.maxAttempts {
		if err := w.store.SetJobState(ctx, job.ID, types.JobQueued, runErr.Error()); err != nil {
			log.Error().Err(err).Msg("failed to requeue job")
			return
		}
		if err := w.queue.Push(ctx, job.ID); err != nil {
			log.Error().Err(err).Msg("failed to push requeued job")
			return
		}
		metrics.JobsRetried.Inc()
		log.Warn().Err(runErr).Int("attempt", job.Attempt).Msg("job attempt failed, requeued")
		return
	}
	w.failJob(ctx, job, runErr, log)
}

// failJob finalizes a job: terminal state, failure audit for downloads, and
// the notification fan-out. Notification errors never resurrect the job.
func (w *Worker) failJob(ctx context.Context, job *types.Job, runErr error, log zerolog.Logger) {
	if err := w.store.SetJobState(ctx, job.ID, types.JobFailed, runErr.Error()); err != nil {
		log.Error().Err(err).Msg("failed to mark job failed")
		return
	}
	metrics.JobsFailed.Inc()
	log.Error().Err(runErr).Msg("job failed terminally")

	if job.Kind == types.JobDownload {
		if err := w.store.InsertDownloadAudit(ctx, &types.DownloadAudit{
			JobID:  job.ID,
			ChatID: job.ChatID,
			UserID: job.UserID,
			ItemID: job.ItemID,
			Result: types.AuditFailed,
			Error:  runErr.Error(),
		}); err != nil {
			log.Error().Err(err).Msg("failed to write failure audit")
		}
	}

	if w.notifier == nil {
		return
	}
	switch job.Kind {
	case types.JobDownload:
		w.notifier.NotifyUser(ctx, job.ChatID,
			fmt.Sprintf("Не удалось отправить файл (задача %d). Попробуйте позже.", job.ID))
		w.notifier.NotifyAdmins(ctx,
			fmt.Sprintf("Задача %d (download) завершилась ошибкой: %v", job.ID, runErr))
	case types.JobSyncCatalog:
		w.notifier.NotifyAdmins(ctx,
			fmt.Sprintf("Синхронизация каталога (задача %d) завершилась ошибкой: %v", job.ID, runErr))
	}
}
