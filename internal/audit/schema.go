package audit

import (
	"context"
	"fmt"

	"trailrun-backend/internal/store"
)

const pgAuditTableSQL = `
CREATE TABLE IF NOT EXISTS _bulk_audit (
    id            UUID PRIMARY KEY,
    kind          TEXT NOT NULL,
    field         TEXT NOT NULL,
    value         JSONB,
    record_ids    JSONB NOT NULL,
    record_count  INT NOT NULL,
    operator_id   TEXT NOT NULL DEFAULT '',
    session_id    TEXT NOT NULL DEFAULT '',
    updated_count BIGINT NOT NULL DEFAULT 0,
    error_code    TEXT,
    duration_ms   BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_bulk_audit_created_at ON _bulk_audit (created_at);
CREATE INDEX IF NOT EXISTS idx_bulk_audit_kind ON _bulk_audit (kind);
`

const sqliteAuditTableSQL = `
CREATE TABLE IF NOT EXISTS _bulk_audit (
    id            TEXT PRIMARY KEY,
    kind          TEXT NOT NULL,
    field         TEXT NOT NULL,
    value         TEXT,
    record_ids    TEXT NOT NULL,
    record_count  INTEGER NOT NULL,
    operator_id   TEXT NOT NULL DEFAULT '',
    session_id    TEXT NOT NULL DEFAULT '',
    updated_count INTEGER NOT NULL DEFAULT 0,
    error_code    TEXT,
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_bulk_audit_created_at ON _bulk_audit (created_at);
CREATE INDEX IF NOT EXISTS idx_bulk_audit_kind ON _bulk_audit (kind);
`

// EnsureTable creates the audit table if it is missing.
func EnsureTable(ctx context.Context, s *store.Store) error {
	ddl := pgAuditTableSQL
	if s.Dialect.Name() == "sqlite" {
		ddl = sqliteAuditTableSQL
	}
	if _, err := s.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}
	return nil
}
