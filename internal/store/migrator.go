package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trailrun-backend/internal/metadata"
)

var ErrSchemaMismatch = errors.New("table does not match catalog")

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Migrate creates the entity's table when it doesn't exist and otherwise
// checks that every catalog field has a column.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, entity)
	}

	return m.verifyTable(ctx, entity)
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	var cols []string
	for i := range entity.Fields {
		cols = append(cols, m.buildColumnDef(&entity.Fields[i]))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", entity.Table, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}

	if err := m.createIndexes(ctx, entity); err != nil {
		return fmt.Errorf("create indexes for %s: %w", entity.Table, err)
	}
	return nil
}

// verifyTable reports catalog fields missing from an existing table.
// Existing tables are never altered.
func (m *Migrator) verifyTable(ctx context.Context, entity *metadata.Entity) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	var missing []string
	for _, f := range entity.Fields {
		if _, ok := existing[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s lacks %s", ErrSchemaMismatch, entity.Table, strings.Join(missing, ", "))
	}
	return nil
}

func (m *Migrator) buildColumnDef(f *metadata.Field) string {
	col := f.Name + " " + m.store.Dialect.ColumnType(f.Type)
	switch {
	case f.Type == metadata.FieldID:
		col += " PRIMARY KEY"
	case f.IsAuto():
		col += " DEFAULT " + m.defaultNow()
	case !f.Nullable:
		col += " NOT NULL"
	}
	return col
}

func (m *Migrator) defaultNow() string {
	return "(" + m.store.Dialect.NowExpr() + ")"
}

// createIndexes indexes relation columns and the ordering column.
func (m *Migrator) createIndexes(ctx context.Context, entity *metadata.Entity) error {
	cols := make([]string, 0, len(entity.Fields))
	for _, f := range entity.Fields {
		if f.Type == metadata.FieldRelation {
			cols = append(cols, f.Name)
		}
	}
	if entity.OrderBy != "" && entity.OrderBy != metadata.IDField {
		cols = append(cols, entity.OrderBy)
	}

	for _, col := range cols {
		sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)", entity.Table, col, entity.Table, col)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("create index on %s.%s: %w", entity.Table, col, err)
		}
	}
	return nil
}
