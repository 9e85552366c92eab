package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/maheshrc27/postflow/internal/repository"
)

// ErrQueued reports that a write did not reach the store and was parked
// locally. The caller must treat its operation as failed.
var ErrQueued = errors.New("store unavailable, write queued for replay")

type Connectivity interface {
	Online(ctx context.Context) bool
}

type DocumentWriter interface {
	WriteDocument(ctx context.Context, collection string, payload []byte) error
}

type DrainReport struct {
	Replayed  int `json:"replayed"`
	Remaining int `json:"remaining"`
}

// WriteQueue buffers store writes in a local SQLite file while the primary
// store is unreachable and replays them in insertion order.
type WriteQueue struct {
	conn    Connectivity
	writer  DocumentWriter
	entries repository.OfflineWriteRepository

	draining sync.Mutex
}

func NewWriteQueue(conn Connectivity, writer DocumentWriter, entries repository.OfflineWriteRepository) *WriteQueue {
	return &WriteQueue{conn: conn, writer: writer, entries: entries}
}

// EnqueueOrWrite writes doc to collection now if the store answers, and
// otherwise appends it to the local queue and returns ErrQueued.
func (q *WriteQueue) EnqueueOrWrite(ctx context.Context, collection string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", collection, err)
	}

	var cause error
	if q.conn.Online(ctx) {
		cause = q.writer.WriteDocument(ctx, collection, payload)
		if cause == nil {
			return nil
		}
	} else {
		cause = errors.New("store offline")
	}

	id, err := q.entries.Append(ctx, collection, payload)
	if err != nil {
		return fmt.Errorf("queue %s write after %v: %w", collection, cause, err)
	}
	slog.Warn("write queued for replay", "entry_id", id, "collection", collection, "cause", cause)
	return fmt.Errorf("%w: %v", ErrQueued, cause)
}

// Drain replays queued writes oldest first. An entry is removed only after
// the store accepts it; failed entries stay queued for the next drain.
func (q *WriteQueue) Drain(ctx context.Context) (*DrainReport, error) {
	q.draining.Lock()
	defer q.draining.Unlock()

	report := &DrainReport{}
	entries, err := q.entries.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return report, nil
	}
	if !q.conn.Online(ctx) {
		report.Remaining = len(entries)
		return report, nil
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			report.Remaining++
			continue
		}
		if err := q.writer.WriteDocument(ctx, e.Collection, e.Payload); err != nil {
			report.Remaining++
			slog.Warn("queued write replay failed", "entry_id", e.ID, "collection", e.Collection, "attempts", e.Attempts+1, "error", err)
			if err := q.entries.MarkAttempt(ctx, e.ID, err.Error()); err != nil {
				return report, err
			}
			continue
		}
		if err := q.entries.Remove(ctx, e.ID); err != nil {
			return report, err
		}
		report.Replayed++
	}

	slog.Info("offline queue drained", "replayed", report.Replayed, "remaining", report.Remaining)
	return report, ctx.Err()
}

// Watch is the cron entry point.
func (q *WriteQueue) Watch() {
	if _, err := q.Drain(context.Background()); err != nil {
		slog.Error("offline drain failed", "error", err)
	}
}

func (q *WriteQueue) Pending(ctx context.Context) (int, error) {
	return q.entries.Count(ctx)
}
