package store

import (
	"context"
	"testing"

	"github.com/untoldecay/shelfbot/internal/types"
)

func seedJob(t *testing.T, s *Store, correlation string) int64 {
	t.Helper()
	ctx := context.Background()
	upsertFolder(t, s, "/", nil)
	itemID := upsertFile(t, s, "/f.bin", "/")
	id, err := s.InsertJob(ctx, 100, 200, itemID, types.JobDownload, correlation)
	if err != nil {
		t.Fatalf("InsertJob failed: %v", err)
	}
	return id
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := seedJob(t, s, "r1")

	j, err := s.FetchJob(ctx, id)
	if err != nil {
		t.Fatalf("FetchJob failed: %v", err)
	}
	if j.State != types.JobQueued || j.Attempt != 0 {
		t.Fatalf("fresh job state=%v attempt=%d", j.State, j.Attempt)
	}

	if err := s.SetJobState(ctx, id, types.JobRunning, ""); err != nil {
		t.Fatalf("SetJobState failed: %v", err)
	}
	if err := s.SetJobState(ctx, id, types.JobSucceeded, ""); err != nil {
		t.Fatalf("SetJobState failed: %v", err)
	}

	j, _ = s.FetchJob(ctx, id)
	if j.State != types.JobSucceeded {
		t.Errorf("state = %v, want succeeded", j.State)
	}
}

func TestTerminalStatesAreSticky(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := seedJob(t, s, "r1")

	if err := s.SetJobState(ctx, id, types.JobFailed, "boom"); err != nil {
		t.Fatalf("SetJobState failed: %v", err)
	}
	// Attempts to leave a terminal state are silently ignored.
	for _, next := range []types.JobState{types.JobQueued, types.JobRunning, types.JobSucceeded} {
		if err := s.SetJobState(ctx, id, next, ""); err != nil {
			t.Fatalf("SetJobState(%v) errored: %v", next, err)
		}
		j, _ := s.FetchJob(ctx, id)
		if j.State != types.JobFailed {
			t.Fatalf("terminal state left via %v: now %v", next, j.State)
		}
	}
}

func TestMarkJobRunningCountsAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := seedJob(t, s, "r1")

	// Every pickup bumps the counter, so attempt equals the number of times
	// the job entered running.
	for want := 1; want <= 3; want++ {
		got, err := s.MarkJobRunning(ctx, id)
		if err != nil {
			t.Fatalf("MarkJobRunning failed: %v", err)
		}
		if got != want {
			t.Errorf("attempt = %d, want %d", got, want)
		}
		j, _ := s.FetchJob(ctx, id)
		if j.State != types.JobRunning {
			t.Fatalf("state = %v, want running", j.State)
		}
		if err := s.SetJobState(ctx, id, types.JobQueued, "transient"); err != nil {
			t.Fatalf("requeue failed: %v", err)
		}
	}
	j, _ := s.FetchJob(ctx, id)
	if j.LastError != "transient" {
		t.Errorf("last error = %q", j.LastError)
	}

	if err := s.SetJobState(ctx, id, types.JobFailed, "boom"); err != nil {
		t.Fatalf("SetJobState failed: %v", err)
	}
	if _, err := s.MarkJobRunning(ctx, id); err != ErrNotFound {
		t.Errorf("terminal job picked up: err = %v", err)
	}
}

func TestDuplicateCorrelationRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedJob(t, s, "r1")

	item, err := s.FetchCatalogItemByPath(ctx, "/f.bin")
	if err != nil {
		t.Fatalf("fetch item: %v", err)
	}
	if _, err := s.InsertJob(ctx, 100, 200, item.ID, types.JobDownload, "r1"); err == nil {
		t.Fatal("duplicate (chat, item, correlation) accepted")
	}
	// Same action from a different chat is fine.
	if _, err := s.InsertJob(ctx, 101, 200, item.ID, types.JobDownload, "r1"); err != nil {
		t.Fatalf("distinct chat rejected: %v", err)
	}
}

func TestHasActiveSyncJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	upsertFolder(t, s, "/", nil)
	root, _ := s.FetchCatalogItemByPath(ctx, "/")

	active, err := s.HasActiveSyncJob(ctx)
	if err != nil {
		t.Fatalf("HasActiveSyncJob failed: %v", err)
	}
	if active {
		t.Fatal("phantom active sync job")
	}

	id, err := s.InsertJob(ctx, 0, 0, root.ID, types.JobSyncCatalog, "corr")
	if err != nil {
		t.Fatalf("InsertJob failed: %v", err)
	}
	active, _ = s.HasActiveSyncJob(ctx)
	if !active {
		t.Fatal("queued sync job not reported active")
	}

	if err := s.SetJobState(ctx, id, types.JobSucceeded, ""); err != nil {
		t.Fatalf("SetJobState failed: %v", err)
	}
	active, _ = s.HasActiveSyncJob(ctx)
	if active {
		t.Fatal("terminal sync job reported active")
	}
}
