package bulk

import (
	"context"
	"time"
)

// ExecuteAudit describes one attempted bulk execute that got as far as
// resolving its record set.
type ExecuteAudit struct {
	Kind         string
	Field        string
	Value        any
	RecordIDs    []string
	OperatorID   string
	SessionID    string
	UpdatedCount int64
	ErrorCode    string
	Duration     time.Duration
	At           time.Time
}

// AuditSink receives execute outcomes. Implementations must not block.
type AuditSink interface {
	RecordExecute(a ExecuteAudit)
}

type operatorKey struct{}

// WithOperatorID attaches the acting operator to ctx for auditing.
func WithOperatorID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, operatorKey{}, id)
}

func operatorIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(operatorKey{}).(string)
	return id
}
