package bulk

import (
	"context"

	"trailrun-backend/internal/metadata"
)

// EntityStore is the boundary to persisted collections. Implementations
// must return records in a stable order and apply BulkUpdate to every id or
// to none; when they cannot, the returned error must match
// ErrPartialBulkUpdate.
type EntityStore interface {
	Query(ctx context.Context, entity *metadata.Entity, pred *Predicate, limit int) ([]Record, error)
	FetchByIDs(ctx context.Context, entity *metadata.Entity, ids []string) ([]Record, error)
	BulkUpdate(ctx context.Context, entity *metadata.Entity, ids []string, field string, value any) (int64, error)
}
