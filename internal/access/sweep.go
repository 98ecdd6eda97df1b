package access

import (
	"context"
	"fmt"
	"time"
)

// Sweeper expires lapsed grants and warns users approaching expiry. One
// warning per active grant: warned_at marks progress and every status change
// resets it.
type Sweeper struct {
	guard      *Guard
	warnBefore time.Duration
	interval   time.Duration
}

// NewSweeper wires a sweeper to the guard.
func NewSweeper(g *Guard, warnBefore, interval time.Duration) *Sweeper {
	if warnBefore <= 0 {
		warnBefore = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{guard: g, warnBefore: warnBefore, interval: interval}
}

// Run loops until ctx is cancelled. Pass errors are logged, never fatal.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.Pass(ctx); err != nil {
			s.guard.log.Warn().Err(err).Msg("warning sweep pass failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Pass runs one sweep iteration: expire, then warn the not-yet-warned.
// The warned_at stamp is written even when the messenger fails, so a flaky
// provider cannot turn one warning into many.
func (s *Sweeper) Pass(ctx context.Context) error {
	g := s.guard
	expired, err := g.store.ExpireUsers(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep failed: %w", err)
	}
	if expired > 0 {
		g.log.Info().Int64("expired", expired).Msg("grants expired")
	}

	users, err := g.store.FetchUsersExpiringWithin(ctx, s.warnBefore)
	if err != nil {
		return fmt.Errorf("failed to select expiring users: %w", err)
	}
	for _, u := range users {
		if u.ExpiresAt == nil {
			continue
		}
		if g.notifier != nil {
			g.notifier.NotifyUser(ctx, u.ChatUserID, warnText(*u.ExpiresAt))
			g.notifier.NotifyAdmins(ctx,
				fmt.Sprintf("Доступ пользователя %d истекает %s (UTC).",
					u.ChatUserID, u.ExpiresAt.UTC().Format("2006-01-02 15:04")))
		}
		if err := g.store.MarkUserWarned(ctx, u.ChatUserID); err != nil {
			return fmt.Errorf("failed to stamp warning for user %d: %w", u.ChatUserID, err)
		}
		g.log.Info().Int64("user_id", u.ChatUserID).Time("expires_at", *u.ExpiresAt).Msg("expiry warning sent")
	}
	return nil
}
