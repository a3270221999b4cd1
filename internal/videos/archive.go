package videos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

var (
	// ErrArchiveStorageUnavailable indicates no result storage is configured.
	ErrArchiveStorageUnavailable = errors.New("result archive storage unavailable")

	errArchiveClosed = errors.New("result archive closed")
	errArchiveFull   = errors.New("result archive queue full")
)

// ResultStorage saves archived generation results and returns their location.
type ResultStorage interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// ArchiveRecord is one successful generation response queued for archiving.
type ArchiveRecord struct {
	JobID    string
	UserID   string
	VideoURL string
	Payload  json.RawMessage
	At       time.Time
}

// ArchiveConfig controls the worker pool backing the archive.
type ArchiveConfig struct {
	QueueSize   int
	Workers     int
	Prefix      string
	SaveTimeout time.Duration
}

// ResultArchive copies successful generation responses to object storage in
// the background so the command path never waits on the upload.
type ResultArchive struct {
	storage ResultStorage
	cfg     ArchiveConfig
	logger  *slog.Logger

	jobs   chan ArchiveRecord
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewResultArchive starts the archive workers.
func NewResultArchive(storage ResultStorage, cfg ArchiveConfig, logger *slog.Logger) *ResultArchive {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = "results"
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &ResultArchive{
		storage: storage,
		cfg:     cfg,
		logger:  logger,
		jobs:    make(chan ArchiveRecord, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	a.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go a.worker()
	}
	return a
}

// Enqueue schedules a record for archiving. It never blocks: a full queue
// drops the record and reports errArchiveFull.
func (a *ResultArchive) Enqueue(ctx context.Context, record ArchiveRecord) error {
	if a.storage == nil {
		return ErrArchiveStorageUnavailable
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.ctx.Done():
		return errArchiveClosed
	default:
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return errArchiveClosed
	}

	select {
	case a.jobs <- record:
		return nil
	default:
		return errArchiveFull
	}
}

// Shutdown stops accepting records and waits for the workers to drain.
func (a *ResultArchive) Shutdown(ctx context.Context) error {
	a.once.Do(func() {
		a.cancel()
		a.mu.Lock()
		a.closed = true
		close(a.jobs)
		a.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (a *ResultArchive) worker() {
	defer a.wg.Done()

	for record := range a.jobs {
		a.save(record)
	}
}

func (a *ResultArchive) save(record ArchiveRecord) {
	document, err := json.Marshal(struct {
		JobID    string          `json:"jobId"`
		UserID   string          `json:"userId"`
		VideoURL string          `json:"videoUrl"`
		At       time.Time       `json:"archivedAt"`
		Payload  json.RawMessage `json:"payload"`
	}{record.JobID, record.UserID, record.VideoURL, record.At.UTC(), record.Payload})
	if err != nil {
		a.logger.Error("encode archive record", "jobId", record.JobID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.SaveTimeout)
	defer cancel()

	owner := record.UserID
	if strings.TrimSpace(owner) == "" {
		owner = "anonymous"
	}
	key := path.Join(a.cfg.Prefix, keySegment(owner), keySegment(record.JobID)+".json")

	location, err := a.storage.Save(ctx, key, bytes.NewReader(document))
	if err != nil {
		a.logger.Error("archive generation result", "jobId", record.JobID, "key", key, "error", err)
		return
	}
	a.logger.Info("generation result archived", "jobId", record.JobID, "location", location)
}

// keySegment escapes s into a single object key segment that cannot climb out
// of the archive prefix.
func keySegment(s string) string {
	escaped := url.PathEscape(s)
	if escaped == "." || escaped == ".." {
		return strings.ReplaceAll(escaped, ".", "%2E")
	}
	return escaped
}
