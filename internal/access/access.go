// Package access gates catalog use behind the user status machine and runs
// the pre-expiry warning sweep.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/untoldecay/shelfbot/internal/store"
	"github.com/untoldecay/shelfbot/internal/types"
)

// Decision is the outcome of an EnsureActive check. When Allowed is false,
// Message carries the status-specific denial text for the chat surface.
type Decision struct {
	Allowed bool
	Status  types.UserStatus
	Message string
}

// Guard enforces access control. With Enabled false every check passes;
// admins always bypass.
type Guard struct {
	store    *store.Store
	notifier *Notifier
	log      zerolog.Logger

	enabled        bool
	admins         map[int64]bool
	defaultTTLDays int
}

// Config carries the access-control knobs.
type Config struct {
	Enabled        bool
	AdminIDs       []int64
	DefaultTTLDays int
}

// NewGuard builds a guard over the store. notifier may be nil when no
// messenger is wired (e.g. the migrate command).
func NewGuard(st *store.Store, notifier *Notifier, cfg Config, log zerolog.Logger) *Guard {
	admins := make(map[int64]bool, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = true
	}
	ttl := cfg.DefaultTTLDays
	if ttl <= 0 {
		ttl = 30
	}
	return &Guard{
		store:          st,
		notifier:       notifier,
		log:            log.With().Str("component", "access").Logger(),
		enabled:        cfg.Enabled,
		admins:         admins,
		defaultTTLDays: ttl,
	}
}

// IsAdmin reports whether the user id is in the configured admin set.
func (g *Guard) IsAdmin(userID int64) bool { return g.admins[userID] }

// EnsureActive is the gate in front of every catalog read and job insert.
// It registers the user on first contact, opportunistically expires lapsed
// grants, and denies non-admin non-active users.
func (g *Guard) EnsureActive(ctx context.Context, userID int64) (Decision, error) {
	if _, err := g.store.UpsertUser(ctx, userID); err != nil {
		return Decision{}, fmt.Errorf("failed to register user %d: %w", userID, err)
	}
	if !g.enabled || g.IsAdmin(userID) {
		return Decision{Allowed: true, Status: types.StatusActive}, nil
	}

	if _, err := g.store.ExpireUsers(ctx); err != nil {
		return Decision{}, fmt.Errorf("expiry sweep failed: %w", err)
	}
	u, err := g.store.FetchUser(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to fetch user %d: %w", userID, err)
	}
	if u.Status == types.StatusActive {
		return Decision{Allowed: true, Status: u.Status}, nil
	}
	return Decision{Allowed: false, Status: u.Status, Message: denialText(u.Status)}, nil
}

func denialText(status types.UserStatus) string {
	switch status {
	case types.StatusPending:
		return "Заявка на доступ уже отправлена, ожидайте подтверждения."
	case types.StatusExpired:
		return "Срок доступа истёк. Напишите администратору для продления."
	case types.StatusBlocked:
		return "Доступ заблокирован."
	default:
		return "Нет доступа к каталогу. Отправьте заявку командой /request."
	}
}

// RequestAccess moves a guest to pending and notifies the admin fan-out.
// Any other status is left untouched and reported back.
func (g *Guard) RequestAccess(ctx context.Context, userID int64) (types.UserStatus, error) {
	if _, err := g.store.UpsertUser(ctx, userID); err != nil {
		return "", fmt.Errorf("failed to register user %d: %w", userID, err)
	}
	u, err := g.store.FetchUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if u.Status != types.StatusGuest {
		return u.Status, nil
	}
	if err := g.store.SetUserStatus(ctx, userID, types.StatusPending, nil); err != nil {
		return "", fmt.Errorf("failed to mark user %d pending: %w", userID, err)
	}
	if g.notifier != nil {
		g.notifier.NotifyAdmins(ctx, fmt.Sprintf("Новая заявка на доступ: пользователь %d.", userID))
	}
	return types.StatusPending, nil
}

// Activate grants access for days (default TTL when days <= 0).
func (g *Guard) Activate(ctx context.Context, userID int64, days int) error {
	if days <= 0 {
		days = g.defaultTTLDays
	}
	if _, err := g.store.UpsertUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to register user %d: %w", userID, err)
	}
	if err := g.store.ActivateUser(ctx, userID, days); err != nil {
		return err
	}
	if g.notifier != nil {
		g.notifier.NotifyUser(ctx, userID,
			fmt.Sprintf("Доступ открыт на %d дн.", days))
	}
	return nil
}

// Extend adds days on top of max(now, current expiry).
func (g *Guard) Extend(ctx context.Context, userID int64, days int) error {
	if days <= 0 {
		days = g.defaultTTLDays
	}
	return g.store.ExtendUser(ctx, userID, days)
}

// Block revokes access and clears the expiry.
func (g *Guard) Block(ctx context.Context, userID int64) error {
	return g.store.SetUserStatus(ctx, userID, types.StatusBlocked, nil)
}

// warnText renders the pre-expiry warning for the user.
func warnText(expiresAt time.Time) string {
	return fmt.Sprintf("Срок доступа истекает %s (UTC). Напишите администратору для продления.",
		expiresAt.UTC().Format("2006-01-02 15:04"))
}
