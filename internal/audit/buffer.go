package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"trailrun-backend/internal/bulk"
	"trailrun-backend/internal/store"
)

var columns = []string{
	"id", "kind", "field", "value", "record_ids", "record_count", "operator_id",
	"session_id", "updated_count", "error_code", "duration_ms", "created_at",
}

// Buffer collects execute audits in memory and periodically flushes them
// to the _bulk_audit table in a batch insert.
type Buffer struct {
	mu      sync.Mutex
	events  []bulk.ExecuteAudit
	store   *store.Store
	log     *logrus.Logger
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

var _ bulk.AuditSink = (*Buffer)(nil)

// NewBuffer creates a buffer that flushes every interval or when maxSize
// events are pending. A zero interval disables the timer.
func NewBuffer(s *store.Store, maxSize int, interval time.Duration, log *logrus.Logger) *Buffer {
	if maxSize <= 0 {
		maxSize = 100
	}
	b := &Buffer{
		store:   s,
		log:     log,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	if interval > 0 {
		b.ticker = time.NewTicker(interval)
		go b.run()
	}
	return b
}

func (b *Buffer) run() {
	for {
		select {
		case <-b.done:
			return
		case <-b.ticker.C:
			_ = b.Flush(context.Background())
		}
	}
}

// RecordExecute queues an audit. A full buffer triggers an asynchronous flush.
func (b *Buffer) RecordExecute(a bulk.ExecuteAudit) {
	b.mu.Lock()
	b.events = append(b.events, a)
	shouldFlush := len(b.events) >= b.maxSize
	b.mu.Unlock()
	if shouldFlush {
		go b.Flush(context.Background())
	}
}

// Pending returns the number of queued audits.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Flush writes all queued audits in one transaction. A failed batch is
// logged and dropped.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.events) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.events
	b.events = nil
	b.mu.Unlock()

	if err := b.insert(ctx, batch); err != nil {
		b.log.WithError(err).WithField("events", len(batch)).Error("audit flush failed")
		return err
	}
	return nil
}

func (b *Buffer) insert(ctx context.Context, batch []bulk.ExecuteAudit) error {
	tx, err := b.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if b.store.Dialect.Name() == "postgres" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL synchronous_commit = off"); err != nil {
			return fmt.Errorf("set sync commit: %w", err)
		}
	}

	pb := b.store.Dialect.NewParamBuilder()
	placeholders := make([]string, 0, len(batch))
	for _, a := range batch {
		value, err := json.Marshal(a.Value)
		if err != nil {
			return fmt.Errorf("encode value: %w", err)
		}
		ids, err := json.Marshal(a.RecordIDs)
		if err != nil {
			return fmt.Errorf("encode record ids: %w", err)
		}
		var errorCode any
		if a.ErrorCode != "" {
			errorCode = a.ErrorCode
		}
		row := []string{
			pb.Add(uuid.NewString()),
			pb.Add(a.Kind),
			pb.Add(a.Field),
			pb.Add(string(value)),
			pb.Add(string(ids)),
			pb.Add(len(a.RecordIDs)),
			pb.Add(a.OperatorID),
			pb.Add(a.SessionID),
			pb.Add(a.UpdatedCount),
			pb.Add(errorCode),
			pb.Add(a.Duration.Milliseconds()),
			pb.Add(b.store.Dialect.TimeParam(a.At)),
		}
		placeholders = append(placeholders, "("+strings.Join(row, ", ")+")")
	}

	sqlStr := fmt.Sprintf("INSERT INTO _bulk_audit (%s) VALUES %s",
		strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	if _, err := tx.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return fmt.Errorf("insert: %w", b.store.Dialect.MapError(err))
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Stop halts the background ticker and flushes remaining audits.
func (b *Buffer) Stop() {
	if b.ticker != nil {
		b.ticker.Stop()
	}
	close(b.done)
	_ = b.Flush(context.Background())
}
