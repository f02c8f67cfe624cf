package bulk

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"trailrun-backend/internal/metadata"
)

// Option is one selectable related record.
type Option struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// RelationResolver turns relation targets into id/label pairs. Option lists
// are cached per operator session and kind; an empty session bypasses the
// cache.
type RelationResolver struct {
	registry   *metadata.Registry
	store      EntityStore
	cache      OptionCache
	maxOptions int
	group      singleflight.Group
}

func NewRelationResolver(reg *metadata.Registry, store EntityStore, cache OptionCache, maxOptions int) *RelationResolver {
	if maxOptions <= 0 {
		maxOptions = 1000
	}
	return &RelationResolver{registry: reg, store: store, cache: cache, maxOptions: maxOptions}
}

// ListOptions returns the options for kind, loading them at most once per
// session.
func (r *RelationResolver) ListOptions(ctx context.Context, session string, kind metadata.EntityKind) ([]Option, error) {
	entity, err := r.registry.Entity(kind)
	if err != nil {
		return nil, resolveKindError(kind, err)
	}
	if session == "" {
		return r.load(ctx, entity)
	}

	if opts, ok, err := r.cache.Get(ctx, session, kind); err != nil {
		return nil, err
	} else if ok {
		return opts, nil
	}

	v, err, _ := r.group.Do(session+"\x00"+string(kind), func() (any, error) {
		opts, err := r.load(ctx, entity)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Put(ctx, session, kind, opts); err != nil {
			return nil, err
		}
		return opts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Option), nil
}

// Lookup returns the display name for id, reading through the session
// cache and falling back to a direct fetch when the id is not cached.
func (r *RelationResolver) Lookup(ctx context.Context, session string, kind metadata.EntityKind, id string) (string, bool, error) {
	opts, err := r.ListOptions(ctx, session, kind)
	if err != nil {
		return "", false, err
	}
	for _, o := range opts {
		if o.ID == id {
			return o.DisplayName, true, nil
		}
	}
	return r.fetchLabel(ctx, kind, id)
}

// Validate checks id against the store, ignoring any cached options.
func (r *RelationResolver) Validate(ctx context.Context, kind metadata.EntityKind, id string) (bool, error) {
	_, ok, err := r.fetchLabel(ctx, kind, id)
	return ok, err
}

// EndSession drops every cached option list for the session.
func (r *RelationResolver) EndSession(ctx context.Context, session string) error {
	if session == "" {
		return nil
	}
	return r.cache.EndSession(ctx, session)
}

func (r *RelationResolver) fetchLabel(ctx context.Context, kind metadata.EntityKind, id string) (string, bool, error) {
	entity, err := r.registry.Entity(kind)
	if err != nil {
		return "", false, resolveKindError(kind, err)
	}
	rows, err := r.store.FetchByIDs(ctx, entity, []string{id})
	if err != nil {
		return "", false, fmt.Errorf("fetch %s/%s: %w", kind, id, err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return entity.DisplayName(rows[0]), true, nil
}

func (r *RelationResolver) load(ctx context.Context, entity *metadata.Entity) ([]Option, error) {
	rows, err := r.store.Query(ctx, entity, MatchAll(entity.Kind), r.maxOptions)
	if err != nil {
		return nil, fmt.Errorf("list %s options: %w", entity.Kind, err)
	}
	opts := make([]Option, 0, len(rows))
	for _, row := range rows {
		opts = append(opts, Option{ID: row.ID(), DisplayName: entity.DisplayName(row)})
	}
	return opts, nil
}
