package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/shelfbot/internal/types"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram is a Messenger backed by the Telegram Bot API.
type Telegram struct {
	client  *http.Client
	baseURL string
	token   string
}

// TelegramOption is a functional option for configuring the client.
type TelegramOption func(*Telegram)

// WithBaseURL points the client at an alternative API server, e.g. a local
// bot API instance or a test server.
func WithBaseURL(u string) TelegramOption {
	return func(t *Telegram) {
		if u != "" {
			t.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) {
		if c != nil {
			t.client = c
		}
	}
}

// NewTelegram builds a client around the given bot token.
func NewTelegram(token string, opts ...TelegramOption) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram messenger requires a bot token")
	}
	t := &Telegram{
		// Uploads of large documents can run long; the per-call budget is
		// the caller's ctx.
		client:  &http.Client{Timeout: 5 * time.Minute},
		baseURL: telegramAPIBase,
		token:   token,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

type sentMessage struct {
	Document *struct {
		FileID       string `json:"file_id"`
		FileUniqueID string `json:"file_unique_id"`
	} `json:"document"`
}

func (t *Telegram) endpoint(method string) string {
	return t.baseURL + "/bot" + t.token + "/" + method
}

func (t *Telegram) do(req *http.Request) (json.RawMessage, error) {
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		if resp.StatusCode >= 500 {
			return nil, &TransientError{Err: fmt.Errorf("telegram returned %d", resp.StatusCode)}
		}
		return nil, fmt.Errorf("failed to decode telegram response: %w", err)
	}
	if api.OK {
		return api.Result, nil
	}
	return nil, classifyAPIError(&api)
}

func classifyAPIError(api *apiResponse) error {
	switch {
	case api.ErrorCode == http.StatusTooManyRequests:
		retryAfter := time.Second
		if api.Parameters != nil && api.Parameters.RetryAfter > 0 {
			retryAfter = time.Duration(api.Parameters.RetryAfter) * time.Second
		}
		return &FloodError{RetryAfter: retryAfter}
	case api.ErrorCode >= 500:
		return &TransientError{Err: fmt.Errorf("telegram error %d: %s", api.ErrorCode, api.Description)}
	case isInvalidHandleDescription(api.Description):
		return fmt.Errorf("%w: %s", ErrInvalidHandle, api.Description)
	case api.ErrorCode == http.StatusForbidden || api.ErrorCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, api.Description)
	default:
		return fmt.Errorf("telegram error %d: %s", api.ErrorCode, api.Description)
	}
}

// The Bot API signals a stale or foreign file_id with a 400 and one of a few
// known description phrases.
func isInvalidHandleDescription(desc string) bool {
	lower := strings.ToLower(desc)
	return strings.Contains(lower, "file identifier") ||
		strings.Contains(lower, "file_id") ||
		strings.Contains(lower, "file reference") ||
		strings.Contains(lower, "wrong remote file")
}

// SendText posts a plain text message.
func (t *Telegram) SendText(ctx context.Context, chatID int64, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if _, err := t.do(req); err != nil {
		return err
	}
	return nil
}

// SendFile uploads content as a document and returns the handle Telegram
// assigned to it.
func (t *Telegram) SendFile(ctx context.Context, chatID int64, filename string, content io.Reader, caption string) (*types.FileHandle, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
				return err
			}
			if caption != "" {
				if err := mw.WriteField("caption", caption); err != nil {
					return err
				}
			}
			part, err := mw.CreateFormFile("document", filename)
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, content); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendDocument"), pr)
	if err != nil {
		return nil, fmt.Errorf("failed to build sendDocument request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	result, err := t.do(req)
	if err != nil {
		return nil, err
	}

	var msg sentMessage
	if err := json.Unmarshal(result, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode sendDocument result: %w", err)
	}
	if msg.Document == nil || msg.Document.FileID == "" {
		// Delivered but no reusable handle; the caller just skips caching.
		return nil, nil
	}
	return &types.FileHandle{ID: msg.Document.FileID, UniqueID: msg.Document.FileUniqueID}, nil
}

// SendByHandle re-sends a previously uploaded document by its file id and
// returns the handle pair of the new message; Telegram may rotate the pair
// between sends. A stale handle surfaces as ErrInvalidHandle.
func (t *Telegram) SendByHandle(ctx context.Context, chatID int64, handleID, caption string) (*types.FileHandle, error) {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("document", handleID)
	if caption != "" {
		form.Set("caption", caption)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.endpoint("sendDocument"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build sendDocument request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	result, err := t.do(req)
	if err != nil {
		return nil, err
	}

	var msg sentMessage
	if err := json.Unmarshal(result, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode sendDocument result: %w", err)
	}
	if msg.Document == nil || msg.Document.FileID == "" {
		return nil, nil
	}
	return &types.FileHandle{ID: msg.Document.FileID, UniqueID: msg.Document.FileUniqueID}, nil
}
