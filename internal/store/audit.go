package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/untoldecay/shelfbot/internal/types"
)

// InsertDownloadAudit records the terminal outcome of a download job.
// Idempotent on job id: the first terminal outcome wins and later calls are
// silently ignored.
func (s *Store) InsertDownloadAudit(ctx context.Context, a *types.DownloadAudit) error {
	var mode any
	if a.Mode != "" {
		mode = string(a.Mode)
	}
	var bytes any
	if a.Bytes != nil {
		bytes = *a.Bytes
	}
	var errText any
	if a.Error != "" {
		errText = a.Error
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO download_audit(job_id, chat_id, user_id, item_id, result, mode, bytes, error) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		a.JobID, a.ChatID, a.UserID, a.ItemID, a.Result, mode, bytes, errText)
	if err != nil {
		return fmt.Errorf("failed to insert audit for job %d: %w", a.JobID, err)
	}
	return nil
}

const auditColumns = "id, created_at, job_id, chat_id, user_id, item_id, result, mode, bytes, error"

func scanAudit(row interface{ Scan(...any) error }) (*types.DownloadAudit, error) {
	var (
		a         types.DownloadAudit
		createdAt string
		result    string
		mode      sql.NullString
		bytes     sql.NullInt64
		errText   sql.NullString
	)
	err := row.Scan(&a.ID, &createdAt, &a.JobID, &a.ChatID, &a.UserID, &a.ItemID,
		&result, &mode, &bytes, &errText)
	if err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(createdAt)
	a.Result = types.AuditResult(result)
	a.Mode = types.AuditMode(mode.String)
	if bytes.Valid {
		v := bytes.Int64
		a.Bytes = &v
	}
	a.Error = errText.String
	return &a, nil
}

// FetchRecentAudit returns the newest audit rows, newest first.
func (s *Store) FetchRecentAudit(ctx context.Context, limit int) ([]*types.DownloadAudit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM download_audit ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent audit: %w", err)
	}
	defer rows.Close()

	var out []*types.DownloadAudit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAuditSince groups terminal download outcomes over the trailing window
// by result.
func (s *Store) CountAuditSince(ctx context.Context, minutes int) (map[types.AuditResult]int, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT result, COUNT(*) FROM download_audit WHERE created_at >= datetime('now', '-%d minutes') GROUP BY result",
			minutes))
	if err != nil {
		return nil, fmt.Errorf("failed to count audit: %w", err)
	}
	defer rows.Close()

	out := make(map[types.AuditResult]int)
	for rows.Next() {
		var result string
		var n int
		if err := rows.Scan(&result, &n); err != nil {
			return nil, fmt.Errorf("failed to scan audit count: %w", err)
		}
		out[types.AuditResult(result)] = n
	}
	return out, rows.Err()
}

// TopDownload is one row of the most-downloaded report.
type TopDownload struct {
	ItemID int64
	Title  string
	Count  int
}

// TopDownloadsSince lists the most successfully delivered items over the
// trailing window.
func (s *Store) TopDownloadsSince(ctx context.Context, minutes, limit int) ([]TopDownload, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT a.item_id, COALESCE(ci.title, ''), COUNT(*) AS n
			FROM download_audit a
			LEFT JOIN catalog_items ci ON ci.id = a.item_id
			WHERE a.result = 'succeeded' AND a.created_at >= datetime('now', '-%d minutes')
			GROUP BY a.item_id ORDER BY n DESC, a.item_id ASC LIMIT ?`, minutes),
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top downloads: %w", err)
	}
	defer rows.Close()

	var out []TopDownload
	for rows.Next() {
		var t TopDownload
		if err := rows.Scan(&t.ItemID, &t.Title, &t.Count); err != nil {
			return nil, fmt.Errorf("failed to scan top download row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
