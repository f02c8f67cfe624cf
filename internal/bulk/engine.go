package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"trailrun-backend/internal/metadata"
)

const DefaultQueryCap = 100

type Config struct {
	QueryCap int
}

// Engine runs bulk queries, previews and executes over the catalog kinds.
// It holds no per-request state and is safe for concurrent use.
type Engine struct {
	registry  *metadata.Registry
	filters   *FilterEvaluator
	store     EntityStore
	relations *RelationResolver
	queryCap  int
	log       *logrus.Logger
	audit     AuditSink
}

func NewEngine(reg *metadata.Registry, store EntityStore, relations *RelationResolver, cfg Config, log *logrus.Logger) *Engine {
	queryCap := cfg.QueryCap
	if queryCap <= 0 {
		queryCap = DefaultQueryCap
	}
	return &Engine{
		registry:  reg,
		filters:   NewFilterEvaluator(reg),
		store:     store,
		relations: relations,
		queryCap:  queryCap,
		log:       log,
	}
}

// SetAuditSink routes execute outcomes to sink. A nil sink disables auditing.
func (e *Engine) SetAuditSink(sink AuditSink) {
	e.audit = sink
}

// QueryCap is the maximum number of records any call returns or touches.
func (e *Engine) QueryCap() int {
	return e.queryCap
}

// Metadata describes every registered kind with its legal operators.
func (e *Engine) Metadata() []KindMetadata {
	entities := e.registry.AllEntities()
	out := make([]KindMetadata, 0, len(entities))
	for _, ent := range entities {
		fields, err := e.registry.Describe(ent.Kind)
		if err != nil {
			continue
		}
		km := KindMetadata{Kind: ent.Kind, Label: ent.Label, Fields: make([]FieldMetadata, 0, len(fields))}
		for _, f := range fields {
			fm := FieldMetadata{Field: f}
			if f.Filterable {
				fm.Operators = AllowedOperators(f.Type)
			}
			km.Fields = append(km.Fields, fm)
		}
		out = append(out, km)
	}
	return out
}

// RelationOptions lists {id, displayName} pairs for a relation target kind.
func (e *Engine) RelationOptions(ctx context.Context, session string, kind metadata.EntityKind) ([]Option, error) {
	return e.relations.ListOptions(ctx, session, kind)
}

// EndSession releases per-session caches.
func (e *Engine) EndSession(ctx context.Context, session string) error {
	return e.relations.EndSession(ctx, session)
}

// Query returns the records of kind matching every condition, at most
// limit records; limit is clamped to the query cap.
func (e *Engine) Query(ctx context.Context, kind metadata.EntityKind, conds []FilterCondition, limit int) ([]Record, error) {
	entity, err := e.registry.Entity(kind)
	if err != nil {
		return nil, resolveKindError(kind, err)
	}
	pred, err := e.filters.Compile(kind, conds)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.Query(ctx, entity, pred, e.clamp(limit))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", kind, err)
	}
	if rows == nil {
		rows = []Record{}
	}
	return rows, nil
}

// Preview computes the effect of op on the records matched by idFilter
// without writing anything.
func (e *Engine) Preview(ctx context.Context, session string, kind metadata.EntityKind, idFilter []FilterCondition, op Operation) (*PreviewResult, error) {
	res, err := e.apply(ctx, session, kind, idFilter, op, false)
	if err != nil {
		return nil, err
	}
	return res.preview, nil
}

// Execute validates op again, re-resolves the record set and writes the new
// value to every matched record in one all-or-nothing update. On failure the
// returned result reports success=false and zero updates.
func (e *Engine) Execute(ctx context.Context, session string, kind metadata.EntityKind, idFilter []FilterCondition, op Operation) (*ExecuteResult, error) {
	res, err := e.apply(ctx, session, kind, idFilter, op, true)
	if err != nil {
		return &ExecuteResult{Success: false, UpdatedCount: 0}, err
	}
	return res.execute, nil
}

type outcome struct {
	preview *PreviewResult
	execute *ExecuteResult
}

// apply is the single validate-and-resolve path behind Preview and Execute.
// With persist=false it renders the preview; with persist=true it checks
// relation values against the store instead of the session cache and
// performs the bulk update.
func (e *Engine) apply(ctx context.Context, session string, kind metadata.EntityKind, idFilter []FilterCondition, op Operation, persist bool) (*outcome, error) {
	entity, err := e.registry.Entity(kind)
	if err != nil {
		return nil, resolveKindError(kind, err)
	}

	field := entity.GetField(op.Field)
	if field == nil || !field.Editable {
		return nil, FieldNotEditableError(kind, op.Field)
	}

	value, err := e.validateValue(ctx, session, field, op.Value, persist)
	if err != nil {
		return nil, err
	}

	pred, err := e.filters.Compile(kind, idFilter)
	if err != nil {
		return nil, err
	}
	records, err := e.store.Query(ctx, entity, pred, e.queryCap)
	if err != nil {
		return nil, fmt.Errorf("resolve %s records: %w", kind, err)
	}

	if !persist {
		preview, err := e.renderPreview(ctx, session, entity, field, value, records)
		if err != nil {
			return nil, err
		}
		return &outcome{preview: preview}, nil
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID())
	}

	entry := e.log.WithFields(logrus.Fields{
		"kind":    kind,
		"field":   field.Name,
		"session": session,
		"records": len(ids),
	})
	start := time.Now()
	audit := ExecuteAudit{
		Kind:       string(kind),
		Field:      field.Name,
		Value:      value,
		RecordIDs:  ids,
		OperatorID: operatorIDFrom(ctx),
		SessionID:  session,
		At:         start,
	}

	if len(ids) == 0 {
		entry.Warn("bulk execute matched no records")
		err := NoMatchingRecordsError(kind)
		e.recordAudit(audit, 0, err)
		return nil, err
	}

	n, err := e.store.BulkUpdate(ctx, entity, ids, field.Name, value)
	audit.Duration = time.Since(start)
	if err != nil {
		entry.WithError(err).Error("bulk execute failed")
		e.recordAudit(audit, 0, err)
		var appErr *AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("bulk update %s.%s: %w", kind, field.Name, err)
	}
	entry.WithFields(logrus.Fields{
		"updated":  n,
		"duration": audit.Duration.String(),
	}).Info("bulk execute applied")
	e.recordAudit(audit, n, nil)

	return &outcome{execute: &ExecuteResult{Success: true, UpdatedCount: n}}, nil
}

func (e *Engine) recordAudit(a ExecuteAudit, updated int64, err error) {
	if e.audit == nil {
		return
	}
	a.UpdatedCount = updated
	if err != nil {
		a.ErrorCode = "INTERNAL_ERROR"
		var appErr *AppError
		if errors.As(err, &appErr) {
			a.ErrorCode = appErr.Code
		}
	}
	e.audit.RecordExecute(a)
}

// validateValue type-checks v against the field's domain. Relation ids are
// checked through the session cache for previews and against the store for
// executes.
func (e *Engine) validateValue(ctx context.Context, session string, f *metadata.Field, v any, persist bool) (any, error) {
	if v == nil {
		if f.Nullable {
			return nil, nil
		}
		return nil, InvalidOperationValueError(f, fmt.Errorf("field is not nullable"))
	}

	value, err := coerce(f, v)
	if err != nil {
		return nil, InvalidOperationValueError(f, err)
	}
	if f.Type != metadata.FieldRelation {
		return value, nil
	}

	id := value.(string)
	var exists bool
	if persist {
		exists, err = e.relations.Validate(ctx, f.Relation, id)
	} else {
		_, exists, err = e.relations.Lookup(ctx, session, f.Relation, id)
	}
	if err != nil {
		return nil, fmt.Errorf("validate %s relation: %w", f.Name, err)
	}
	if !exists {
		return nil, InvalidOperationValueError(f, fmt.Errorf("%s %q does not exist", f.Relation, id))
	}
	return value, nil
}

func (e *Engine) renderPreview(ctx context.Context, session string, entity *metadata.Entity, f *metadata.Field, value any, records []Record) (*PreviewResult, error) {
	newValue, err := e.render(ctx, session, f, value)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		MatchingCount:   len(records),
		MatchingRecords: make([]PreviewRecord, 0, len(records)),
	}
	for _, r := range records {
		current, err := e.render(ctx, session, f, r[f.Name])
		if err != nil {
			return nil, err
		}
		result.MatchingRecords = append(result.MatchingRecords, PreviewRecord{
			ID:           r.ID(),
			DisplayName:  entity.DisplayName(r),
			CurrentValue: current,
			NewValue:     newValue,
		})
	}
	return result, nil
}

// render turns enum values into their labels and relation ids into the
// related record's display name. Other values pass through.
func (e *Engine) render(ctx context.Context, session string, f *metadata.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case metadata.FieldEnum:
		return f.EnumLabel(fmt.Sprint(v)), nil
	case metadata.FieldRelation:
		id := fmt.Sprint(v)
		label, ok, err := e.relations.Lookup(ctx, session, f.Relation, id)
		if err != nil {
			return nil, fmt.Errorf("resolve %s label: %w", f.Name, err)
		}
		if !ok {
			return id, nil
		}
		return label, nil
	}
	return v, nil
}

func (e *Engine) clamp(limit int) int {
	if limit <= 0 || limit > e.queryCap {
		return e.queryCap
	}
	return limit
}
