package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"trailrun-backend/internal/metadata"
)

// Bootstrap creates or extends the table of every catalog kind.
func Bootstrap(ctx context.Context, s *Store, entities []*metadata.Entity, log *logrus.Logger) error {
	m := NewMigrator(s)
	for _, e := range entities {
		if err := m.Migrate(ctx, e); err != nil {
			return fmt.Errorf("migrate %s: %w", e.Kind, err)
		}
		log.WithFields(logrus.Fields{"kind": e.Kind, "table": e.Table}).Info("table ready")
	}
	return nil
}

// SeedRecord is one row to insert when a table is empty.
type SeedRecord map[string]any

// Seed inserts records into kind's table when the table has no rows. The
// whole batch commits or nothing does.
func Seed(ctx context.Context, s *Store, entity *metadata.Entity, records []SeedRecord) (int, error) {
	rows, err := QueryRows(ctx, s.DB, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", entity.Table))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", entity.Table, err)
	}
	if len(rows) > 0 && fmt.Sprint(rows[0]["n"]) != "0" {
		return 0, nil
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range records {
		pb := s.Dialect.NewParamBuilder()
		var cols, phs []string
		for _, f := range entity.Fields {
			v, ok := rec[f.Name]
			if !ok {
				continue
			}
			v, err := seedValue(s.Dialect, f, v)
			if err != nil {
				return 0, fmt.Errorf("seed %s: %w", entity.Table, err)
			}
			cols = append(cols, f.Name)
			phs = append(phs, pb.Add(v))
		}
		if len(cols) == 0 {
			continue
		}
		sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", entity.Table, strings.Join(cols, ", "), strings.Join(phs, ", "))
		if _, err := Exec(ctx, tx, sqlStr, pb.Params()...); err != nil {
			return 0, fmt.Errorf("seed %s: %w", entity.Table, s.Dialect.MapError(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(records), nil
}

// seedValue stores dates in the dialect's timestamp encoding, whether the
// seed file gave them as TOML datetimes or as text.
func seedValue(d Dialect, f metadata.Field, v any) (any, error) {
	if f.Type != metadata.FieldDate || v == nil {
		return v, nil
	}
	switch t := v.(type) {
	case time.Time:
		return d.TimeParam(t), nil
	case string:
		parsed, ok := parseTime(t)
		if !ok {
			return nil, fmt.Errorf("field %s: %q is not a date", f.Name, t)
		}
		return d.TimeParam(parsed), nil
	}
	return v, nil
}
