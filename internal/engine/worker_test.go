package engine

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/untoldecay/shelfbot/internal/access"
	"github.com/untoldecay/shelfbot/internal/catalog"
	"github.com/untoldecay/shelfbot/internal/delivery"
	"github.com/untoldecay/shelfbot/internal/drive"
	"github.com/untoldecay/shelfbot/internal/messenger"
	"github.com/untoldecay/shelfbot/internal/queue"
	"github.com/untoldecay/shelfbot/internal/retry"
	"github.com/untoldecay/shelfbot/internal/store"
	"github.com/untoldecay/shelfbot/internal/types"
)

type sentText struct {
	ChatID int64
	Text   string
}

// fakeMessenger scripts failures and records traffic.
type fakeMessenger struct {
	mu        sync.Mutex
	texts     []sentText
	uploads   int
	uploadErr error
	handle    *types.FileHandle
}

func (f *fakeMessenger) SendText(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{ChatID: chatID, Text: text})
	return nil
}

func (f *fakeMessenger) SendFile(_ context.Context, _ int64, _ string, content io.Reader, _ string) (*types.FileHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if _, err := io.Copy(io.Discard, content); err != nil {
		return nil, err
	}
	f.uploads++
	return f.handle, nil
}

func (f *fakeMessenger) SendByHandle(context.Context, int64, string, string) (*types.FileHandle, error) {
	return nil, nil
}

func (f *fakeMessenger) sent() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.texts...)
}

type fixture struct {
	store  *store.Store
	queue  *queue.MemoryQueue
	msgr   *fakeMessenger
	worker *Worker
	itemID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "book.pdf"), []byte("pdf"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	drv, err := drive.NewLocalDriver(root)
	if err != nil {
		t.Fatalf("NewLocalDriver failed: %v", err)
	}

	q := queue.NewMemoryQueue()
	t.Cleanup(func() { q.Close() })

	fm := &fakeMessenger{}
	policy := retry.Policy{Attempts: 1, MaxWait: 10 * time.Millisecond}
	pipe := delivery.New(s, drv, fm, policy, zerolog.Nop())
	sy := catalog.New(s, drv, 0, zerolog.Nop())
	notifier := access.NewNotifier(fm, 0, []int64{9}, policy, zerolog.Nop())

	parent := "/"
	if _, err := s.UpsertCatalogItem(ctx, store.ItemUpsert{
		Path: "/", Kind: types.KindFolder, Title: catalog.RootTitle, StorageID: "/",
	}); err != nil {
		t.Fatalf("seed root: %v", err)
	}
	itemID, err := s.UpsertCatalogItem(ctx, store.ItemUpsert{
		Path: "/book.pdf", Kind: types.KindFile, Title: "book.pdf",
		StorageID: "/book.pdf", ParentPath: &parent,
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}

	w := NewWorker(s, q, pipe, sy, notifier, Options{}, zerolog.Nop())
	return &fixture{store: s, queue: q, msgr: fm, worker: w, itemID: itemID}
}

func (f *fixture) insertDownload(t *testing.T, correlation string) *types.Job {
	t.Helper()
	ctx := context.Background()
	jobID, err := f.store.InsertJob(ctx, 100, 200, f.itemID, types.JobDownload, correlation)
	if err != nil {
		t.Fatalf("InsertJob failed: %v", err)
	}
	job, err := f.store.FetchJob(ctx, jobID)
	if err != nil {
		t.Fatalf("FetchJob failed: %v", err)
	}
	return job
}

func TestProcessOneDeliversDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.insertDownload(t, "c1")

	f.worker.processOne(ctx, job.ID)

	got, _ := f.store.FetchJob(ctx, job.ID)
	if got.State != types.JobSucceeded {
		t.Fatalf("state = %v, want succeeded", got.State)
	}
	// The counter tracks entries into running, so a clean first delivery
	// finishes at 1.
	if got.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", got.Attempt)
	}
	audits, _ := f.store.FetchRecentAudit(ctx, 10)
	if len(audits) != 1 || audits[0].Result != types.AuditSucceeded {
		t.Errorf("audits: %+v", audits)
	}
}

func TestProcessOneSkipsTerminalJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.insertDownload(t, "c1")
	if err := f.store.SetJobState(ctx, job.ID, types.JobSucceeded, ""); err != nil {
		t.Fatalf("SetJobState: %v", err)
	}

	f.worker.processOne(ctx, job.ID)

	if f.msgr.uploads != 0 {
		t.Error("terminal job was re-delivered")
	}
}

func TestProcessOneUnknownJobID(t *testing.T) {
	f := newFixture(t)
	// Must not panic or enqueue anything.
	f.worker.processOne(context.Background(), 99999)
	if f.queue.Len() != 0 {
		t.Error("phantom job requeued")
	}
}

func TestRetryBudgetExhaustion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.msgr.uploadErr = &messenger.TransientError{Err: errors.New("upstream down")}
	job := f.insertDownload(t, "c1")

	// Attempt 1: fails, requeued.
	f.worker.processOne(ctx, job.ID)
	got, _ := f.store.FetchJob(ctx, job.ID)
	if got.State != types.JobQueued || got.Attempt != 1 {
		t.Fatalf("after first attempt: state=%v attempt=%d", got.State, got.Attempt)
	}
	if id, ok, _ := f.queue.Pop(ctx, time.Second); !ok || id != job.ID {
		t.Fatalf("job not requeued: ok=%v id=%d", ok, id)
	}

	// Attempt 2: fails, requeued.
	f.worker.processOne(ctx, job.ID)
	// Attempt 3: budget spent, terminal.
	f.worker.processOne(ctx, job.ID)

	got, _ = f.store.FetchJob(ctx, job.ID)
	if got.State != types.JobFailed || got.Attempt != 3 {
		t.Fatalf("after budget: state=%v attempt=%d", got.State, got.Attempt)
	}
	if got.LastError == "" {
		t.Error("last error not recorded")
	}

	// Exactly one failure audit.
	audits, _ := f.store.FetchRecentAudit(ctx, 10)
	if len(audits) != 1 || audits[0].Result != types.AuditFailed {
		t.Fatalf("audits: %+v", audits)
	}

	// Requester and admin both notified.
	var toRequester, toAdmin int
	for _, m := range f.msgr.sent() {
		switch m.ChatID {
		case 100:
			toRequester++
		case 9:
			toAdmin++
		}
	}
	if toRequester != 1 || toAdmin != 1 {
		t.Errorf("notifications: requester=%d admin=%d", toRequester, toAdmin)
	}
}

func TestStorageNotFoundFailsWithoutRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent := "/"
	itemID, err := f.store.UpsertCatalogItem(ctx, store.ItemUpsert{
		Path: "/ghost.pdf", Kind: types.KindFile, Title: "ghost.pdf",
		StorageID: "/ghost.pdf", ParentPath: &parent,
	})
	if err != nil {
		t.Fatalf("seed ghost: %v", err)
	}
	jobID, err := f.store.InsertJob(ctx, 100, 200, itemID, types.JobDownload, "g1")
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	f.worker.processOne(ctx, jobID)

	got, _ := f.store.FetchJob(ctx, jobID)
	if got.State != types.JobFailed {
		t.Fatalf("state = %v, want failed", got.State)
	}
	// One pickup happened; the terminal error must not burn further tries.
	if got.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", got.Attempt)
	}
	if f.queue.Len() != 0 {
		t.Error("terminal job requeued")
	}
}

func TestProcessOneRunsSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	jobID, err := EnqueueSync(ctx, f.store, f.queue, "/")
	if err != nil {
		t.Fatalf("EnqueueSync failed: %v", err)
	}
	if jobID == 0 {
		t.Fatal("EnqueueSync returned 0 with no sync in flight")
	}

	// Single-in-flight: a second enqueue is a no-op.
	again, err := EnqueueSync(ctx, f.store, f.queue, "/")
	if err != nil {
		t.Fatalf("second EnqueueSync failed: %v", err)
	}
	if again != 0 {
		t.Error("second sync enqueued while one was queued")
	}

	id, ok, _ := f.queue.Pop(ctx, time.Second)
	if !ok || id != jobID {
		t.Fatalf("queue pop: ok=%v id=%d", ok, id)
	}
	f.worker.processOne(ctx, id)

	got, _ := f.store.FetchJob(ctx, jobID)
	if got.State != types.JobSucceeded {
		t.Fatalf("sync job state = %v (%s)", got.State, got.LastError)
	}
	// The walk found the fixture file.
	it, err := f.store.FetchCatalogItemByPath(ctx, "/book.pdf")
	if err != nil {
		t.Fatalf("synced item missing: %v", err)
	}
	if it.Fingerprint == "" {
		t.Error("sync did not record the file fingerprint")
	}
}

func TestRunDrainsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	job := f.insertDownload(t, "c1")
	if err := f.queue.Push(ctx, job.ID); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		got, err := f.store.FetchJob(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("FetchJob: %v", err)
		}
		if got.State == types.JobSucceeded {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job not processed, state=%v", got.State)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	var mu sync.Mutex
	fired := 0
	d := newDebouncer(30*time.Millisecond, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	defer d.cancel()

	for i := 0; i < 5; i++ {
		d.trigger()
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("action fired %d times, want 1", fired)
	}
}
