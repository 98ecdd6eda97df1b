package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/untoldecay/shelfbot/internal/types"
)

const jobColumns = "id, created_at, updated_at, chat_id, user_id, item_id, state, attempt, last_error, correlation, kind"

func scanJob(row interface{ Scan(...any) error }) (*types.Job, error) {
	var (
		j         types.Job
		createdAt string
		updatedAt string
		state     string
		lastError sql.NullString
		kind      string
	)
	err := row.Scan(&j.ID, &createdAt, &updatedAt, &j.ChatID, &j.UserID, &j.ItemID,
		&state, &j.Attempt, &lastError, &j.Correlation, &kind)
	if err != nil {
		return nil, err
	}
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	j.State = types.JobState(state)
	j.LastError = lastError.String
	j.Kind = types.JobKind(kind)
	if j.Kind == "" {
		j.Kind = types.JobDownload
	}
	return &j, nil
}

// InsertJob creates a job in state queued. The unique
// (chat, item, correlation) triple rejects duplicate enqueues from a single
// client action; the caller surfaces that as a constraint error.
func (s *Store) InsertJob(ctx context.Context, chatID, userID, itemID int64, kind types.JobKind, correlation string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO jobs(chat_id, user_id, item_id, state, correlation, kind) VALUES (?, ?, ?, 'queued', ?, ?)",
		chatID, userID, itemID, correlation, kind)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s job for item %d: %w", kind, itemID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read job id: %w", err)
	}
	return id, nil
}

// FetchJob returns the job row, or ErrNotFound.
func (s *Store) FetchJob(ctx context.Context, id int64) (*types.Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id=?", id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job %d: %w", id, err)
	}
	return j, nil
}

// SetJobState transitions the job. Terminal states are sticky: an update
// against a job already in succeeded/failed/cancelled is a no-op.
func (s *Store) SetJobState(ctx context.Context, id int64, state types.JobState, lastError string) error {
	var lastErr any
	if lastError != "" {
		lastErr = lastError
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET state=?, last_error=?, updated_at=datetime('now') "+
			"WHERE id=? AND state NOT IN ('succeeded','failed','cancelled')",
		state, lastErr, id)
	if err != nil {
		return fmt.Errorf("failed to set job %d state %s: %w", id, state, err)
	}
	return nil
}

// MarkJobRunning transitions the job to running and bumps the attempt
// counter in the same statement, so attempt always equals the number of
// times the job entered running. Terminal jobs are left untouched and
// surface as ErrNotFound.
func (s *Store) MarkJobRunning(ctx context.Context, id int64) (int, error) {
	var attempt int
	err := s.db.QueryRowContext(ctx,
		"UPDATE jobs SET state='running', attempt = attempt + 1, updated_at=datetime('now') "+
			"WHERE id=? AND state NOT IN ('succeeded','failed','cancelled') RETURNING attempt",
		id).Scan(&attempt)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to mark job %d running: %w", id, err)
	}
	return attempt, nil
}

// HasActiveSyncJob reports whether a catalog sync job is queued or running.
// The periodic scheduler uses this for single-in-flight semantics.
func (s *Store) HasActiveSyncJob(ctx context.Context) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM jobs WHERE kind='sync_catalog' AND state IN ('queued','running') LIMIT 1").Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check active sync job: %w", err)
	}
	return true, nil
}
