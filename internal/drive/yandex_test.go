package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/untoldecay/shelfbot/internal/types"
)

func TestYandexListPaginates(t *testing.T) {
	// 200 items on the first page, 1 on the second.
	total := yandexPageLimit + 1
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/resources" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		items := make([]map[string]any, 0, limit)
		for i := offset; i < total && i < offset+limit; i++ {
			items = append(items, map[string]any{
				"name": fmt.Sprintf("f%03d.pdf", i),
				"path": fmt.Sprintf("disk:/lib/f%03d.pdf", i),
				"type": "file",
				"size": 10,
				"md5":  fmt.Sprintf("md5-%d", i),
			})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"_embedded": map[string]any{"items": items},
		})
	}))
	defer srv.Close()

	d, err := NewYandexDriver("tok", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewYandexDriver failed: %v", err)
	}
	entries, err := d.List(context.Background(), "/lib")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != total {
		t.Fatalf("got %d entries across pages, want %d", len(entries), total)
	}
	if gotAuth != "OAuth tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	first := entries[0]
	if first.Path != "/lib/f000.pdf" {
		t.Errorf("disk: prefix not stripped: %q", first.Path)
	}
	if first.StorageID != "/lib/f000.pdf" || first.Fingerprint != "md5-0" {
		t.Errorf("entry mapping: %+v", first)
	}
	if first.Kind != types.KindFile || first.Size == nil || *first.Size != 10 {
		t.Errorf("entry mapping: %+v", first)
	}
}

func TestYandexListFolderKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"_embedded": map[string]any{"items": []map[string]any{
				{"name": "sub", "path": "disk:/lib/sub", "type": "dir"},
			}},
		})
	}))
	defer srv.Close()

	d, _ := NewYandexDriver("tok", WithBaseURL(srv.URL))
	entries, err := d.List(context.Background(), "/lib")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != types.KindFolder {
		t.Fatalf("folder not mapped: %+v", entries)
	}
}

func TestYandexListNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"DiskNotFoundError"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	d, _ := NewYandexDriver("tok", WithBaseURL(srv.URL))
	if _, err := d.List(context.Background(), "/gone"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestYandexStream(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/resources/download":
			if got := r.URL.Query().Get("path"); got != "/lib/a.pdf" {
				t.Errorf("download path = %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{"href": srv.URL + "/content"})
		case "/content":
			io.WriteString(w, "file body")
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	d, _ := NewYandexDriver("tok", WithBaseURL(srv.URL))
	rc, err := d.Stream(context.Background(), "/lib/a.pdf")
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "file body" {
		t.Errorf("streamed %q", data)
	}
}

func TestYandexStreamEmptyHref(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	d, _ := NewYandexDriver("tok", WithBaseURL(srv.URL))
	if _, err := d.Stream(context.Background(), "/x"); err == nil {
		t.Error("Stream accepted an empty href")
	}
}
