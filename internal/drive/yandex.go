package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/shelfbot/internal/types"
)

const (
	yandexAPIBase = "https://cloud-api.yandex.net/v1/disk"
	// The API defaults to a small page; we ask for the documented maximum
	// and walk offsets until a short page.
	yandexPageLimit = 200
)

// YandexDriver talks to the Yandex Disk REST API. Listing walks one folder
// level with limit/offset pagination; streaming first resolves a short-lived
// download href and then fetches it.
type YandexDriver struct {
	client  *http.Client
	token   string
	baseURL string
}

// YandexOption is a functional option for configuring the Yandex driver.
type YandexOption func(*YandexDriver)

// WithBaseURL points the driver at an alternative API endpoint. Used by
// tests.
func WithBaseURL(u string) YandexOption {
	return func(d *YandexDriver) {
		if u != "" {
			d.baseURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) YandexOption {
	return func(d *YandexDriver) {
		if c != nil {
			d.client = c
		}
	}
}

// NewYandexDriver builds a driver around the given OAuth token.
func NewYandexDriver(token string, opts ...YandexOption) (*YandexDriver, error) {
	if token == "" {
		return nil, fmt.Errorf("yandex driver requires an OAuth token")
	}
	d := &YandexDriver{
		client:  &http.Client{Timeout: 30 * time.Second},
		token:   token,
		baseURL: yandexAPIBase,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

type yandexResource struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	Type       string `json:"type"`
	ResourceID string `json:"resource_id"`
	Size       *int64 `json:"size"`
	MD5        string `json:"md5"`
	Embedded   *struct {
		Items []yandexResource `json:"items"`
	} `json:"_embedded"`
}

func (d *YandexDriver) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+d.token)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("yandex disk request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("yandex disk returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode yandex disk response: %w", err)
	}
	return nil
}

// List fetches one level of children under path, paginating until a short
// page.
func (d *YandexDriver) List(ctx context.Context, path string) ([]Entry, error) {
	var out []Entry
	offset := 0
	for {
		q := url.Values{}
		q.Set("path", path)
		q.Set("limit", strconv.Itoa(yandexPageLimit))
		q.Set("offset", strconv.Itoa(offset))

		var res yandexResource
		if err := d.get(ctx, "/resources", q, &res); err != nil {
			return nil, err
		}
		if res.Embedded == nil || len(res.Embedded.Items) == 0 {
			break
		}
		for _, it := range res.Embedded.Items {
			out = append(out, entryFromResource(it))
		}
		if len(res.Embedded.Items) < yandexPageLimit {
			break
		}
		offset += yandexPageLimit
	}
	return out, nil
}

func entryFromResource(r yandexResource) Entry {
	kind := types.KindFile
	if r.Type == "dir" {
		kind = types.KindFolder
	}
	// The API reports paths with a "disk:" scheme prefix. The bare path is
	// both the catalog path and the storage id, since the download endpoint
	// addresses files by path rather than resource id.
	path := strings.TrimPrefix(r.Path, "disk:")
	e := Entry{
		Path:        path,
		Title:       r.Name,
		Kind:        kind,
		StorageID:   path,
		Size:        r.Size,
		Fingerprint: r.MD5,
	}
	if e.Title == "" {
		e.Title = path[strings.LastIndex(path, "/")+1:]
	}
	return e
}

// Stream resolves a temporary download href for the file and opens it. The
// caller owns the returned body.
func (d *YandexDriver) Stream(ctx context.Context, storageID string) (io.ReadCloser, error) {
	q := url.Values{}
	q.Set("path", storageID)

	var link struct {
		Href string `json:"href"`
	}
	if err := d.get(ctx, "/resources/download", q, &link); err != nil {
		return nil, err
	}
	if link.Href == "" {
		return nil, fmt.Errorf("yandex disk returned an empty download href")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.Href, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+d.token)

	// Download via a client without the API call timeout: large files can
	// legitimately take longer than 30s.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}
	return resp.Body, nil
}
