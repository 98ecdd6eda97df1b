// Package delivery sends a catalog file to a chat: by cached provider
// handle when one is stored, otherwise by spooling the storage stream to a
// temp file and uploading it.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/untoldecay/shelfbot/internal/drive"
	"github.com/untoldecay/shelfbot/internal/messenger"
	"github.com/untoldecay/shelfbot/internal/metrics"
	"github.com/untoldecay/shelfbot/internal/retry"
	"github.com/untoldecay/shelfbot/internal/store"
	"github.com/untoldecay/shelfbot/internal/types"
)

// spoolChunkSize is the copy buffer for the storage stream.
const spoolChunkSize = 1 << 20

// ErrNotAFile marks a download job whose target is a folder or is missing.
// Not retryable.
var ErrNotAFile = errors.New("delivery: item is not a deliverable file")

// Pipeline executes download jobs.
type Pipeline struct {
	store  *store.Store
	driver drive.Driver
	msgr   messenger.Messenger
	policy retry.Policy
	log    zerolog.Logger
}

// New wires the pipeline.
func New(st *store.Store, driver drive.Driver, m messenger.Messenger, policy retry.Policy, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:  st,
		driver: driver,
		msgr:   m,
		policy: policy,
		log:    log.With().Str("component", "delivery").Logger(),
	}
}

// Deliver sends the job's file to its chat. On success it records the audit
// row itself; on failure the caller owns the terminal bookkeeping, because
// only the caller knows whether the attempt budget is spent.
func (p *Pipeline) Deliver(ctx context.Context, job *types.Job) (types.AuditMode, error) {
	item, err := p.store.FetchCatalogItem(ctx, job.ItemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: item %d missing", ErrNotAFile, job.ItemID)
		}
		return "", err
	}
	if item.Kind != types.KindFile {
		return "", fmt.Errorf("%w: %s is a folder", ErrNotAFile, item.Path)
	}

	if item.Handle != nil {
		done, err := p.sendCached(ctx, job, item)
		if err != nil {
			return "", err
		}
		if done {
			return types.ModeCachedHandle, nil
		}
		// Handle was stale; fall through to the upload path.
	}

	if err := p.sendUpload(ctx, job, item); err != nil {
		return "", err
	}
	return types.ModeUpload, nil
}

// sendCached tries the stored handle. Returns done=false after clearing a
// handle the provider rejected.
func (p *Pipeline) sendCached(ctx context.Context, job *types.Job, item *types.CatalogItem) (bool, error) {
	var refreshed *types.FileHandle
	err := retry.Do(ctx, p.policy, func() error {
		h, err := p.msgr.SendByHandle(ctx, job.ChatID, item.Handle.ID, item.Title)
		if err != nil {
			return err
		}
		refreshed = h
		return nil
	})
	if errors.Is(err, messenger.ErrInvalidHandle) {
		p.log.Info().Str("path", item.Path).Msg("cached handle rejected, re-uploading")
		if err := p.store.SetItemHandle(ctx, item.ID, nil); err != nil {
			return false, fmt.Errorf("failed to clear stale handle: %w", err)
		}
		item.Handle = nil
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// The provider attaches a handle pair to every sent message and may
	// rotate it between sends; keep the stored pair current.
	if refreshed != nil && *refreshed != *item.Handle {
		if err := p.store.SetItemHandle(ctx, item.ID, refreshed); err != nil {
			p.log.Warn().Err(err).Str("path", item.Path).Msg("failed to refresh cached handle")
		} else {
			item.Handle = refreshed
		}
	}

	bytes := item.Size
	if err := p.audit(ctx, job, item, types.ModeCachedHandle, bytes); err != nil {
		return true, err
	}
	return true, nil
}

// sendUpload spools the storage stream to a temp file and uploads it. The
// spool is unlinked on every exit path.
func (p *Pipeline) sendUpload(ctx context.Context, job *types.Job, item *types.CatalogItem) error {
	stream, err := p.driver.Stream(ctx, item.StorageID)
	if err != nil {
		return fmt.Errorf("failed to open storage stream for %s: %w", item.Path, err)
	}
	defer stream.Close()

	spool, err := os.CreateTemp("", "shelfbot-spool-*")
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	buf := make([]byte, spoolChunkSize)
	written, err := io.CopyBuffer(spool, stream, buf)
	if err != nil {
		return fmt.Errorf("failed to spool %s: %w", item.Path, err)
	}
	var handle *types.FileHandle
	err = retry.Do(ctx, p.policy, func() error {
		// Rewind before every try; a failed upload may have consumed part
		// of the spool.
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			return err
		}
		h, err := p.msgr.SendFile(ctx, job.ChatID, item.Title, spool, item.Title)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		return err
	}

	if handle != nil {
		if err := p.store.SetItemHandle(ctx, item.ID, handle); err != nil {
			// The file reached the chat; a lost handle only costs the next
			// delivery an upload.
			p.log.Warn().Err(err).Str("path", item.Path).Msg("failed to cache file handle")
		}
	}
	return p.audit(ctx, job, item, types.ModeUpload, &written)
}

func (p *Pipeline) audit(ctx context.Context, job *types.Job, item *types.CatalogItem, mode types.AuditMode, bytes *int64) error {
	if bytes != nil {
		metrics.DeliveryBytes.WithLabelValues(string(mode)).Add(float64(*bytes))
	}
	return p.store.InsertDownloadAudit(ctx, &types.DownloadAudit{
		JobID:  job.ID,
		ChatID: job.ChatID,
		UserID: job.UserID,
		ItemID: item.ID,
		Result: types.AuditSucceeded,
		Mode:   mode,
		Bytes:  bytes,
	})
}
