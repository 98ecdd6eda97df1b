package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/untoldecay/shelfbot/internal/types"
)

const userColumns = "id, chat_user_id, created_at, status, note, expires_at, warned_at, updated_at"

func scanUser(row interface{ Scan(...any) error }) (*types.User, error) {
	var (
		u         types.User
		createdAt string
		status    string
		note      sql.NullString
		expiresAt sql.NullString
		warnedAt  sql.NullString
		updatedAt sql.NullString
	)
	if err := row.Scan(&u.ID, &u.ChatUserID, &createdAt, &status, &note, &expiresAt, &warnedAt, &updatedAt); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	u.Status = types.UserStatus(status)
	if !u.Status.IsValid() {
		u.Status = types.StatusGuest
	}
	u.Note = note.String
	if expiresAt.Valid {
		t := parseTime(expiresAt.String)
		u.ExpiresAt = &t
	}
	if warnedAt.Valid {
		t := parseTime(warnedAt.String)
		u.WarnedAt = &t
	}
	if updatedAt.Valid {
		u.UpdatedAt = parseTime(updatedAt.String)
	}
	return &u, nil
}

// UpsertUser records first contact from a chat user and returns the internal
// row id. Idempotent: an existing user is left untouched.
func (s *Store) UpsertUser(ctx context.Context, chatUserID int64) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users(chat_user_id, updated_at) VALUES (?, datetime('now')) ON CONFLICT(chat_user_id) DO NOTHING",
		chatUserID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert user %d: %w", chatUserID, err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM users WHERE chat_user_id=?", chatUserID).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read back user %d: %w", chatUserID, err)
	}
	return id, nil
}

// FetchUser returns the user with the given external chat id, or ErrNotFound.
func (s *Store) FetchUser(ctx context.Context, chatUserID int64) (*types.User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE chat_user_id=?", chatUserID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %d: %w", chatUserID, err)
	}
	return u, nil
}

// ListUsersPage returns one page of users ordered by last update, newest
// first, and whether more pages follow.
func (s *Store) ListUsersPage(ctx context.Context, limit, offset int) ([]*types.User, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?",
		limit+1, offset)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, false, fmt.Errorf("failed to scan user row: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	hasMore := len(out) > limit
	if hasMore {
		out = out[:limit]
	}
	return out, hasMore, nil
}

// SearchUsers matches a numeric query against the external id exactly or as
// a prefix; anything else does a bounded LIKE over status and note.
func (s *Store) SearchUsers(ctx context.Context, query string, limit, offset int) ([]*types.User, error) {
	query = strings.TrimSpace(query)
	var (
		where string
		args  []any
	)
	if query != "" && isDigits(query) {
		where = "WHERE CAST(chat_user_id AS TEXT) = ? OR CAST(chat_user_id AS TEXT) LIKE ?"
		args = []any{query, query + "%"}
	} else {
		like := "%" + escapeLike(query) + "%"
		where = `WHERE status LIKE ? ESCAPE '\' OR note LIKE ? ESCAPE '\'`
		args = []any{like, like}
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users "+where+" ORDER BY updated_at DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var out []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetUserNote replaces the free-text admin note.
func (s *Store) SetUserNote(ctx context.Context, chatUserID int64, note string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET note=?, updated_at=datetime('now') WHERE chat_user_id=?",
		note, chatUserID)
	if err != nil {
		return fmt.Errorf("failed to set note for user %d: %w", chatUserID, err)
	}
	return nil
}

// SetUserStatus moves the user to a new status, replacing the expiry and
// clearing the warning marker (every status change resets the warning).
func (s *Store) SetUserStatus(ctx context.Context, chatUserID int64, status types.UserStatus, expiresAt *time.Time) error {
	if !status.IsValid() {
		return fmt.Errorf("unknown user status: %q", status)
	}
	var expires any
	if expiresAt != nil {
		expires = formatTime(*expiresAt)
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET status=?, expires_at=?, warned_at=NULL, updated_at=datetime('now') WHERE chat_user_id=?",
		status, expires, chatUserID)
	if err != nil {
		return fmt.Errorf("failed to set status for user %d: %w", chatUserID, err)
	}
	return nil
}

// ActivateUser grants access for ttlDays from now.
func (s *Store) ActivateUser(ctx context.Context, chatUserID int64, ttlDays int) error {
	if ttlDays <= 0 {
		ttlDays = 1
	}
	expires := time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour)
	return s.SetUserStatus(ctx, chatUserID, types.StatusActive, &expires)
}

// ExtendUser adds addDays on top of the current expiry, or on top of now if
// the grant has already lapsed.
func (s *Store) ExtendUser(ctx context.Context, chatUserID int64, addDays int) error {
	if addDays <= 0 {
		addDays = 1
	}
	now := time.Now().UTC()
	base := now
	if u, err := s.FetchUser(ctx, chatUserID); err == nil && u.ExpiresAt != nil && u.ExpiresAt.After(now) {
		base = *u.ExpiresAt
	}
	expires := base.Add(time.Duration(addDays) * 24 * time.Hour)
	return s.SetUserStatus(ctx, chatUserID, types.StatusActive, &expires)
}

// MarkUserWarned stamps the pre-expiry warning marker so the sweep sends at
// most one warning per grant.
func (s *Store) MarkUserWarned(ctx context.Context, chatUserID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET warned_at=datetime('now'), updated_at=datetime('now') WHERE chat_user_id=?",
		chatUserID)
	if err != nil {
		return fmt.Errorf("failed to mark user %d warned: %w", chatUserID, err)
	}
	return nil
}

// ExpireUsers atomically transitions every active user whose expiry has
// passed to expired, returning how many were transitioned.
func (s *Store) ExpireUsers(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET status='expired', warned_at=NULL, updated_at=datetime('now') "+
			"WHERE status='active' AND expires_at IS NOT NULL AND expires_at <= datetime('now')")
	if err != nil {
		return 0, fmt.Errorf("failed to expire users: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// FetchUsersExpiringWithin returns active, not-yet-warned users whose expiry
// falls within the given window, soonest first.
func (s *Store) FetchUsersExpiringWithin(ctx context.Context, warnBefore time.Duration) ([]*types.User, error) {
	if warnBefore <= 0 {
		warnBefore = 24 * time.Hour
	}
	boundary := formatTime(time.Now().UTC().Add(warnBefore))
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users "+
			"WHERE status='active' AND expires_at IS NOT NULL AND expires_at <= ? AND warned_at IS NULL "+
			"ORDER BY expires_at ASC LIMIT 200",
		boundary)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch expiring users: %w", err)
	}
	defer rows.Close()

	var out []*types.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
