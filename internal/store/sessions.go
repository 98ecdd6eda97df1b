package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/untoldecay/shelfbot/internal/types"
)

// CreateSearchSession opens a fresh search session for the user, evicting
// any previous one, and returns the opaque token used in compact callbacks.
func (s *Store) CreateSearchSession(ctx context.Context, userID int64, scopePath, query string) (string, error) {
	token := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM search_sessions WHERE user_id=?", userID); err != nil {
		return "", fmt.Errorf("failed to evict search sessions for user %d: %w", userID, err)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO search_sessions(token, user_id, scope_path, query) VALUES (?, ?, ?, ?)",
		token, userID, scopePath, query)
	if err != nil {
		return "", fmt.Errorf("failed to create search session: %w", err)
	}
	return token, nil
}

// FetchSearchSession resolves a search session token, or ErrNotFound.
func (s *Store) FetchSearchSession(ctx context.Context, token string) (*types.Session, error) {
	return s.fetchSession(ctx,
		"SELECT token, created_at, user_id, scope_path, query FROM search_sessions WHERE token=?", token, true)
}

// CreateAdminSession opens a fresh admin session for the user, evicting any
// previous one.
func (s *Store) CreateAdminSession(ctx context.Context, userID int64, query string) (string, error) {
	token := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM admin_sessions WHERE user_id=?", userID); err != nil {
		return "", fmt.Errorf("failed to evict admin sessions for user %d: %w", userID, err)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO admin_sessions(token, user_id, query) VALUES (?, ?, ?)",
		token, userID, query)
	if err != nil {
		return "", fmt.Errorf("failed to create admin session: %w", err)
	}
	return token, nil
}

// FetchAdminSession resolves an admin session token, or ErrNotFound.
func (s *Store) FetchAdminSession(ctx context.Context, token string) (*types.Session, error) {
	return s.fetchSession(ctx,
		"SELECT token, created_at, user_id, query FROM admin_sessions WHERE token=?", token, false)
}

func (s *Store) fetchSession(ctx context.Context, query, token string, hasScope bool) (*types.Session, error) {
	var (
		sess      types.Session
		createdAt string
		err       error
	)
	row := s.db.QueryRowContext(ctx, query, token)
	if hasScope {
		err = row.Scan(&sess.Token, &createdAt, &sess.UserID, &sess.Scope, &sess.Query)
	} else {
		err = row.Scan(&sess.Token, &createdAt, &sess.UserID, &sess.Query)
	}
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	sess.CreatedAt = parseTime(createdAt)
	return &sess, nil
}

// SweepSessions evicts search and admin sessions older than ttl, returning
// the number removed.
func (s *Store) SweepSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	boundary := formatTime(time.Now().UTC().Add(-ttl))
	var total int64
	for _, table := range []string{"search_sessions", "admin_sessions"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", table), boundary)
		if err != nil {
			return total, fmt.Errorf("failed to sweep %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
