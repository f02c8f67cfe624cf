package audit

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"trailrun-backend/internal/bulk"
	"trailrun-backend/internal/logger"
	"trailrun-backend/internal/store"
)

func newMock(t *testing.T) (*store.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store.NewWithDB(db, &store.SQLiteDialect{}), mock
}

func sampleAudit() bulk.ExecuteAudit {
	return bulk.ExecuteAudit{
		Kind:         "competitions",
		Field:        "featured",
		Value:        true,
		RecordIDs:    []string{"c-1", "c-2"},
		OperatorID:   "u-1",
		SessionID:    "s-1",
		UpdatedCount: 2,
		Duration:     15 * time.Millisecond,
		At:           time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC),
	}
}

func TestBuffer_FlushWritesBatch(t *testing.T) {
	s, mock := newMock(t)
	b := NewBuffer(s, 10, 0, logger.Discard())

	failed := sampleAudit()
	failed.UpdatedCount = 0
	failed.ErrorCode = bulk.CodePartialBulkUpdate
	b.RecordExecute(sampleAudit())
	b.RecordExecute(failed)
	if b.Pending() != 2 {
		t.Fatalf("expected 2 pending, got %d", b.Pending())
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO _bulk_audit (id, kind, field, value, record_ids, record_count, operator_id, session_id, updated_count, error_code, duration_ms, created_at) VALUES (?1, ?2")).
		WithArgs(
			sqlmock.AnyArg(), "competitions", "featured", "true", `["c-1","c-2"]`, 2, "u-1", "s-1", 2, nil, 15, "2026-05-01 08:30:00",
			sqlmock.AnyArg(), "competitions", "featured", "true", `["c-1","c-2"]`, 2, "u-1", "s-1", 0, bulk.CodePartialBulkUpdate, 15, "2026-05-01 08:30:00",
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if b.Pending() != 0 {
		t.Fatalf("expected empty buffer, got %d", b.Pending())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestBuffer_FlushEmptyIsNoop(t *testing.T) {
	s, mock := newMock(t)
	b := NewBuffer(s, 10, 0, logger.Discard())
	if err := b.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestBuffer_FailedFlushDropsBatch(t *testing.T) {
	s, mock := newMock(t)
	b := NewBuffer(s, 10, 0, logger.Discard())
	b.RecordExecute(sampleAudit())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO _bulk_audit").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if err := b.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if b.Pending() != 0 {
		t.Fatalf("expected dropped batch, got %d pending", b.Pending())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestCleanup(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM _bulk_audit WHERE created_at < datetime('now', '-' || ?1 || ' days')")).
		WithArgs("30").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := Cleanup(context.Background(), s, 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 deleted, got %d", n)
	}
}
