package access

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/untoldecay/shelfbot/internal/messenger"
	"github.com/untoldecay/shelfbot/internal/retry"
)

// Notifier fans out service messages. When a dedicated notify chat is
// configured everything goes there; otherwise each admin id is messaged
// individually. Send failures are logged and swallowed: notifications never
// fail the operation that triggered them.
type Notifier struct {
	msgr   messenger.Messenger
	log    zerolog.Logger
	policy retry.Policy

	notifyChatID int64
	adminIDs     []int64
}

// NewNotifier builds a notifier over the messenger.
func NewNotifier(m messenger.Messenger, notifyChatID int64, adminIDs []int64, policy retry.Policy, log zerolog.Logger) *Notifier {
	return &Notifier{
		msgr:         m,
		log:          log.With().Str("component", "notify").Logger(),
		policy:       policy,
		notifyChatID: notifyChatID,
		adminIDs:     adminIDs,
	}
}

// NotifyAdmins delivers text to the admin fan-out targets.
func (n *Notifier) NotifyAdmins(ctx context.Context, text string) {
	targets := n.adminIDs
	if n.notifyChatID != 0 {
		targets = []int64{n.notifyChatID}
	}
	for _, chatID := range targets {
		n.NotifyUser(ctx, chatID, text)
	}
}

// NotifyUser delivers text to one chat, retrying transient failures.
func (n *Notifier) NotifyUser(ctx context.Context, chatID int64, text string) {
	err := retry.Do(ctx, n.policy, func() error {
		return n.msgr.SendText(ctx, chatID, text)
	})
	if err != nil {
		n.log.Warn().Err(err).Int64("chat_id", chatID).Msg("notification dropped")
	}
}
