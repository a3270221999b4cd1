package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type resultStorageStub struct {
	mu    sync.Mutex
	saved map[string][]byte
	err   error
}

func (s *resultStorageStub) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[name] = data
	return fmt.Sprintf("https://cdn.example.com/%s", name), nil
}

func (s *resultStorageStub) get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.saved[name]
	return data, ok
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResultArchiveSavesRecords(t *testing.T) {
	storage := &resultStorageStub{}
	archive := NewResultArchive(storage, ArchiveConfig{Workers: 1}, discardLogger())

	record := ArchiveRecord{
		JobID:    "job-1",
		UserID:   "uid-1",
		VideoURL: "https://www.tiktok.com/@u/video/1",
		Payload:  json.RawMessage(`{"status":"queued"}`),
		At:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := archive.Enqueue(context.Background(), record); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := archive.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	data, ok := storage.get("results/uid-1/job-1.json")
	if !ok {
		t.Fatalf("expected archived document, got %v", storage.saved)
	}
	var doc struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode archived document: %v", err)
	}
	if doc.JobID != "job-1" || string(doc.Payload) != `{"status":"queued"}` {
		t.Fatalf("unexpected document %s", data)
	}
}

func TestResultArchiveStorageFailureIsLogged(t *testing.T) {
	storage := &resultStorageStub{err: errors.New("bucket missing")}
	archive := NewResultArchive(storage, ArchiveConfig{}, discardLogger())

	if err := archive.Enqueue(context.Background(), ArchiveRecord{JobID: "job-2"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := archive.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestResultArchiveRejectsAfterShutdown(t *testing.T) {
	archive := NewResultArchive(&resultStorageStub{}, ArchiveConfig{}, discardLogger())
	if err := archive.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := archive.Enqueue(context.Background(), ArchiveRecord{JobID: "late"}); !errors.Is(err, errArchiveClosed) {
		t.Fatalf("expected closed error got %v", err)
	}
	if err := archive.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestResultArchiveWithoutStorage(t *testing.T) {
	archive := NewResultArchive(nil, ArchiveConfig{}, discardLogger())
	defer archive.Shutdown(context.Background())

	if err := archive.Enqueue(context.Background(), ArchiveRecord{JobID: "job"}); !errors.Is(err, ErrArchiveStorageUnavailable) {
		t.Fatalf("expected storage unavailable got %v", err)
	}
}

type heldStorage struct {
	release chan struct{}
}

func (s heldStorage) Save(ctx context.Context, name string, _ io.Reader) (string, error) {
	select {
	case <-s.release:
		return name, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestResultArchiveEnqueueDoesNotBlockWhenFull(t *testing.T) {
	storage := heldStorage{release: make(chan struct{})}
	archive := NewResultArchive(storage, ArchiveConfig{Workers: 1, QueueSize: 1}, discardLogger())
	defer func() {
		close(storage.release)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := archive.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	}()

	if err := archive.Enqueue(context.Background(), ArchiveRecord{JobID: "job-0"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	full := 0
	start := time.Now()
	for i := 1; i <= 3; i++ {
		err := archive.Enqueue(context.Background(), ArchiveRecord{JobID: fmt.Sprintf("job-%d", i)})
		switch {
		case err == nil:
		case errors.Is(err, errArchiveFull):
			full++
		default:
			t.Fatalf("unexpected enqueue error: %v", err)
		}
	}
	if full == 0 {
		t.Fatal("expected a full queue to reject records")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("enqueue blocked for %s", elapsed)
	}
}

func TestResultArchiveKeysStayUnderPrefix(t *testing.T) {
	cases := map[string]string{
		"uid-1":     "results/uid-1/job.json",
		"../../etc": "results/..%2F..%2Fetc/job.json",
		"..":        "results/%2E%2E/job.json",
		"":          "results/anonymous/job.json",
	}
	for userID, want := range cases {
		storage := &resultStorageStub{}
		archive := NewResultArchive(storage, ArchiveConfig{Workers: 1}, discardLogger())
		if err := archive.Enqueue(context.Background(), ArchiveRecord{JobID: "job", UserID: userID}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		if err := archive.Shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
		if _, ok := storage.get(want); !ok {
			t.Errorf("user %q: expected key %s, got %v", userID, want, storage.saved)
		}
	}
}
