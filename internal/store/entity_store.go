package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trailrun-backend/internal/bulk"
	"trailrun-backend/internal/metadata"
)

// EntityStore serves the bulk engine from SQL tables described by the
// field catalog.
type EntityStore struct {
	store *Store
}

var _ bulk.EntityStore = (*EntityStore)(nil)

func NewEntityStore(s *Store) *EntityStore {
	return &EntityStore{store: s}
}

// Query returns at most limit records matching pred, ordered by the kind's
// order_by column then id.
func (es *EntityStore) Query(ctx context.Context, entity *metadata.Entity, pred *bulk.Predicate, limit int) ([]bulk.Record, error) {
	pb := es.store.Dialect.NewParamBuilder()
	var where []string
	if pred != nil {
		for _, c := range pred.Clauses {
			cond, err := es.clauseSQL(c, pb)
			if err != nil {
				return nil, err
			}
			where = append(where, cond)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(entity.FieldNames(), ", "), entity.Table)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY " + es.orderBy(entity))
	if limit > 0 {
		b.WriteString(" LIMIT " + pb.Add(limit))
	}

	rows, err := QueryRows(ctx, es.store.DB, b.String(), pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", entity.Table, es.store.Dialect.MapError(err))
	}
	return es.toRecords(entity, rows), nil
}

// FetchByIDs returns the records whose id is in ids. Unknown ids are skipped.
func (es *EntityStore) FetchByIDs(ctx context.Context, entity *metadata.Entity, ids []string) ([]bulk.Record, error) {
	if len(ids) == 0 {
		return []bulk.Record{}, nil
	}
	pb := es.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		strings.Join(entity.FieldNames(), ", "), entity.Table,
		es.store.Dialect.InExpr(metadata.IDField, pb, ids),
		es.orderBy(entity))

	rows, err := QueryRows(ctx, es.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s by id: %w", entity.Table, es.store.Dialect.MapError(err))
	}
	return es.toRecords(entity, rows), nil
}

// BulkUpdate sets field to value on every id in a single transaction and
// stamps the kind's auto-update columns. If any id is missing the
// transaction is rolled back and nothing changes.
func (es *EntityStore) BulkUpdate(ctx context.Context, entity *metadata.Entity, ids []string, field string, value any) (int64, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	f := entity.GetField(field)
	if f == nil {
		return 0, fmt.Errorf("unknown field %s.%s", entity.Kind, field)
	}

	pb := es.store.Dialect.NewParamBuilder()
	sets := []string{fmt.Sprintf("%s = %s", field, pb.Add(es.bindValue(value)))}
	for _, af := range entity.AutoUpdateFields() {
		if af.Name == field {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", af.Name, es.store.Dialect.NowExpr()))
	}
	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		entity.Table, strings.Join(sets, ", "),
		es.store.Dialect.InExpr(metadata.IDField, pb, ids))

	tx, err := es.store.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := Exec(ctx, tx, sqlStr, pb.Params()...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", entity.Table, es.store.Dialect.MapError(err))
	}
	if n != int64(len(ids)) {
		return 0, bulk.PartialBulkUpdateError(entity.Kind, len(ids), n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func (es *EntityStore) clauseSQL(c bulk.Clause, pb ParamBuilder) (string, error) {
	col := c.Field
	switch c.Operator {
	case bulk.OpIsNull:
		return col + " IS NULL", nil
	case bulk.OpIsNotNull:
		return col + " IS NOT NULL", nil
	case bulk.OpIn:
		values, ok := c.Value.([]string)
		if !ok {
			return "", fmt.Errorf("operator in on %s needs a list value", col)
		}
		return es.store.Dialect.InExpr(col, pb, values), nil
	}

	if c.Type == metadata.FieldString {
		s, _ := c.Value.(string)
		switch c.Operator {
		case bulk.OpEquals:
			return fmt.Sprintf("LOWER(%s) = LOWER(%s)", col, pb.Add(s)), nil
		case bulk.OpNotEquals:
			return fmt.Sprintf("LOWER(%s) <> LOWER(%s)", col, pb.Add(s)), nil
		case bulk.OpContains:
			return likeExpr(col, pb, "%"+escapeLike(s)+"%"), nil
		case bulk.OpStartsWith:
			return likeExpr(col, pb, escapeLike(s)+"%"), nil
		case bulk.OpEndsWith:
			return likeExpr(col, pb, "%"+escapeLike(s)), nil
		}
		return "", fmt.Errorf("operator %s not supported on string field %s", c.Operator, col)
	}

	ph := pb.Add(es.bindValue(c.Value))
	if c.Type == metadata.FieldDate {
		col = es.store.Dialect.DateExpr(col)
		ph = es.store.Dialect.DateExpr(ph)
	}
	switch c.Operator {
	case bulk.OpEquals:
		return fmt.Sprintf("%s = %s", col, ph), nil
	case bulk.OpNotEquals:
		return fmt.Sprintf("%s <> %s", col, ph), nil
	case bulk.OpGreaterThan:
		return fmt.Sprintf("%s > %s", col, ph), nil
	case bulk.OpLessThan:
		return fmt.Sprintf("%s < %s", col, ph), nil
	}
	return "", fmt.Errorf("operator %s not supported on field %s", c.Operator, col)
}

func (es *EntityStore) bindValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return es.store.Dialect.TimeParam(t)
	case bool:
		if es.store.Dialect.NeedsBoolFix() {
			if t {
				return 1
			}
			return 0
		}
	}
	return v
}

// toRecords converts raw rows to the catalog's value domains: numbers as
// float64, booleans as bool, dates as time.Time.
func (es *EntityStore) toRecords(entity *metadata.Entity, rows []map[string]any) []bulk.Record {
	out := make([]bulk.Record, 0, len(rows))
	for _, row := range rows {
		for i := range entity.Fields {
			f := &entity.Fields[i]
			row[f.Name] = fieldValue(f.Type, row[f.Name])
		}
		out = append(out, bulk.Record(row))
	}
	return out
}

func fieldValue(t metadata.FieldType, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case metadata.FieldNumber:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case int:
			return float64(n)
		}
	case metadata.FieldBoolean:
		switch n := v.(type) {
		case int64:
			return n != 0
		case float64:
			return n != 0
		}
	case metadata.FieldDate:
		if s, ok := v.(string); ok {
			if ts, ok := parseTime(s); ok {
				return ts
			}
		}
	case metadata.FieldString, metadata.FieldEnum, metadata.FieldRelation, metadata.FieldID:
		if _, ok := v.(string); !ok {
			return fmt.Sprint(v)
		}
	}
	return v
}

func likeExpr(col string, pb ParamBuilder, pattern string) string {
	return fmt.Sprintf(`LOWER(%s) LIKE %s ESCAPE '\'`, col, pb.Add(strings.ToLower(pattern)))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (es *EntityStore) orderBy(entity *metadata.Entity) string {
	if entity.OrderBy == "" || entity.OrderBy == metadata.IDField {
		return metadata.IDField
	}
	col := entity.OrderBy
	if f := entity.GetField(col); f != nil && f.Type == metadata.FieldDate {
		col = es.store.Dialect.DateExpr(col)
	}
	return col + ", " + metadata.IDField
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
