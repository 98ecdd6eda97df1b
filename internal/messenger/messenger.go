// Package messenger delivers text and files to chats. The concrete
// implementation speaks the Telegram Bot API; the interface exists so the
// delivery pipeline and the engine can be tested against a fake.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/untoldecay/shelfbot/internal/types"
)

// Messenger sends messages and documents to a chat. SendFile uploads the
// content and returns the provider handle for later cached sends;
// SendByHandle re-sends a previously uploaded file without moving bytes and
// returns the handle pair the provider attached to the new message, which
// may differ from the pair that was sent.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendFile(ctx context.Context, chatID int64, filename string, content io.Reader, caption string) (*types.FileHandle, error)
	SendByHandle(ctx context.Context, chatID int64, handleID, caption string) (*types.FileHandle, error)
}

// ErrInvalidHandle marks a cached file handle the provider no longer
// accepts. The caller should drop the handle and fall back to an upload.
var ErrInvalidHandle = errors.New("messenger: invalid file handle")

// ErrNotFound marks a chat the provider cannot deliver to (unknown chat,
// bot blocked by the user).
var ErrNotFound = errors.New("messenger: chat unavailable")

// FloodError reports provider rate limiting together with the mandated
// pause.
type FloodError struct {
	RetryAfter time.Duration
}

func (e *FloodError) Error() string {
	return fmt.Sprintf("messenger: flood control, retry after %s", e.RetryAfter)
}

// TransientError wraps a failure worth retrying: provider 5xx, timeouts,
// connection resets.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "messenger: transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether the error is retryable: flood control, a
// TransientError, or a plain network error.
func IsTransient(err error) bool {
	var flood *FloodError
	if errors.As(err, &flood) {
		return true
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
