package bulk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"trailrun-backend/internal/logger"
	"trailrun-backend/internal/metadata"
)

// memStore is an in-memory EntityStore evaluating predicates with Match.
type memStore struct {
	mu      sync.Mutex
	rows    map[metadata.EntityKind][]Record
	queries map[metadata.EntityKind]int
	updates int

	// failUpdate makes BulkUpdate report a partial application.
	failUpdate bool
	// beforeUpdate runs inside BulkUpdate before any row is written.
	beforeUpdate func()
}

func newMemStore() *memStore {
	return &memStore{
		rows:    make(map[metadata.EntityKind][]Record),
		queries: make(map[metadata.EntityKind]int),
	}
}

func (m *memStore) add(kind metadata.EntityKind, r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[kind] = append(m.rows[kind], r)
}

func (m *memStore) remove(kind metadata.EntityKind, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[kind][:0]
	for _, r := range m.rows[kind] {
		if r.ID() != id {
			kept = append(kept, r)
		}
	}
	m.rows[kind] = kept
}

func (m *memStore) get(kind metadata.EntityKind, id string) Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows[kind] {
		if r.ID() == id {
			return copyRecord(r)
		}
	}
	return nil
}

func (m *memStore) queryCount(kind metadata.EntityKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries[kind]
}

func (m *memStore) Query(_ context.Context, entity *metadata.Entity, pred *Predicate, limit int) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries[entity.Kind]++

	var out []Record
	for _, r := range m.rows[entity.Kind] {
		if limit > 0 && len(out) >= limit {
			break
		}
		if pred.Match(r) {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

func (m *memStore) FetchByIDs(_ context.Context, entity *metadata.Entity, ids []string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Record
	for _, r := range m.rows[entity.Kind] {
		if want[r.ID()] {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

func (m *memStore) BulkUpdate(_ context.Context, entity *metadata.Entity, ids []string, field string, value any) (int64, error) {
	if m.beforeUpdate != nil {
		m.beforeUpdate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate {
		return 0, PartialBulkUpdateError(entity.Kind, len(ids), 1)
	}

	index := make(map[string]int, len(m.rows[entity.Kind]))
	for i, r := range m.rows[entity.Kind] {
		index[r.ID()] = i
	}
	for _, id := range ids {
		if _, ok := index[id]; !ok {
			return 0, PartialBulkUpdateError(entity.Kind, len(ids), 0)
		}
	}
	for _, id := range ids {
		m.rows[entity.Kind][index[id]][field] = value
	}
	m.updates++
	return int64(len(ids)), nil
}

func copyRecord(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func testRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	entities, err := metadata.LoadCatalog("")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	reg := metadata.NewRegistry()
	reg.Load(entities)
	return reg
}

func seededStore() *memStore {
	s := newMemStore()
	s.add("organizers", Record{"id": "org-1", "name": "Alpine Events", "email": "hello@alpine.test", "country": "FR"})
	s.add("organizers", Record{"id": "org-2", "name": "Coastal Runs", "email": nil, "country": "PT"})

	s.add("competitions", Record{"id": "c-1", "name": "Mont Blanc Trail", "status": "DRAFT", "featured": false, "country": "FR", "organizer_id": "org-1", "updated_at": nil})
	s.add("competitions", Record{"id": "c-2", "name": "Coastal Ultra", "status": "PUBLISHED", "featured": true, "country": "PT", "organizer_id": "org-2", "updated_at": nil})
	s.add("competitions", Record{"id": "c-3", "name": "Dolomites Sky", "status": "DRAFT", "featured": true, "country": "IT", "organizer_id": nil, "updated_at": nil})
	s.add("competitions", Record{"id": "c-4", "name": "Forest Run", "status": "DRAFT", "featured": false, "country": nil, "organizer_id": nil, "updated_at": nil})

	s.add("editions", Record{"id": "ed-1", "event_id": "ev-1", "year": float64(2024), "start_date": time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), "registration_status": "CLOSED", "price": float64(80), "featured": false})
	s.add("editions", Record{"id": "ed-2", "event_id": "ev-1", "year": float64(2025), "start_date": time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC), "registration_status": "OPEN", "price": float64(95), "featured": false})
	return s
}

type fixture struct {
	store    *memStore
	registry *metadata.Registry
	resolver *RelationResolver
	engine   *Engine
}

func newFixture(t *testing.T, queryCap int) *fixture {
	t.Helper()
	reg := testRegistry(t)
	s := seededStore()
	resolver := NewRelationResolver(reg, s, NewMemoryOptionCache(time.Hour), 0)
	return &fixture{
		store:    s,
		registry: reg,
		resolver: resolver,
		engine:   NewEngine(reg, s, resolver, Config{QueryCap: queryCap}, discardLogger()),
	}
}

func discardLogger() *logrus.Logger {
	return logger.Discard()
}
