package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trailrun-backend/internal/metadata"
)

// OptionCache stores relation options per operator session and kind.
type OptionCache interface {
	Get(ctx context.Context, session string, kind metadata.EntityKind) ([]Option, bool, error)
	Put(ctx context.Context, session string, kind metadata.EntityKind, opts []Option) error
	EndSession(ctx context.Context, session string) error
}

type memoryEntry struct {
	options []Option
	expires time.Time
}

// MemoryOptionCache keeps options in process memory. Sessions whose
// entries have all expired are dropped on the next Put after a TTL has
// passed since the previous sweep, so abandoned sessions do not pile up.
type MemoryOptionCache struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	lastSweep time.Time
	sessions  map[string]map[metadata.EntityKind]memoryEntry
}

func NewMemoryOptionCache(ttl time.Duration) *MemoryOptionCache {
	return &MemoryOptionCache{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]map[metadata.EntityKind]memoryEntry),
	}
}

func (c *MemoryOptionCache) Get(_ context.Context, session string, kind metadata.EntityKind) ([]Option, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.sessions[session][kind]
	if !ok {
		return nil, false, nil
	}
	if c.expired(entry, c.now()) {
		c.drop(session, kind)
		return nil, false, nil
	}
	return entry.options, true, nil
}

func (c *MemoryOptionCache) Put(_ context.Context, session string, kind metadata.EntityKind, opts []Option) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.ttl > 0 && now.Sub(c.lastSweep) >= c.ttl {
		c.sweep(now)
	}
	byKind, ok := c.sessions[session]
	if !ok {
		byKind = make(map[metadata.EntityKind]memoryEntry)
		c.sessions[session] = byKind
	}
	byKind[kind] = memoryEntry{options: opts, expires: now.Add(c.ttl)}
	return nil
}

func (c *MemoryOptionCache) EndSession(_ context.Context, session string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, session)
	return nil
}

func (c *MemoryOptionCache) expired(entry memoryEntry, now time.Time) bool {
	return c.ttl > 0 && now.After(entry.expires)
}

func (c *MemoryOptionCache) drop(session string, kind metadata.EntityKind) {
	byKind := c.sessions[session]
	delete(byKind, kind)
	if len(byKind) == 0 {
		delete(c.sessions, session)
	}
}

// sweep removes every expired entry. Caller holds mu.
func (c *MemoryOptionCache) sweep(now time.Time) {
	for session, byKind := range c.sessions {
		for kind, entry := range byKind {
			if c.expired(entry, now) {
				c.drop(session, kind)
			}
		}
	}
	c.lastSweep = now
}

// RedisOptionCache shares options between server replicas. Each session
// keeps an index set of its keys so EndSession can drop them together.
// A non-positive ttl keeps entries until EndSession.
type RedisOptionCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisOptionCache(client *redis.Client, ttl time.Duration) *RedisOptionCache {
	return &RedisOptionCache{client: client, ttl: ttl}
}

func redisOptionKey(session string, kind metadata.EntityKind) string {
	return fmt.Sprintf("bulk:relopts:%s:%s", session, kind)
}

func redisSessionKey(session string) string {
	return "bulk:relopts:session:" + session
}

func (c *RedisOptionCache) Get(ctx context.Context, session string, kind metadata.EntityKind) ([]Option, bool, error) {
	data, err := c.client.Get(ctx, redisOptionKey(session, kind)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get options: %w", err)
	}
	var opts []Option
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, false, fmt.Errorf("decode cached options: %w", err)
	}
	return opts, true, nil
}

func (c *RedisOptionCache) Put(ctx context.Context, session string, kind metadata.EntityKind, opts []Option) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	key := redisOptionKey(session, kind)
	index := redisSessionKey(session)
	pipe := c.client.TxPipeline()
	pipe.SAdd(ctx, index, key)
	if c.ttl > 0 {
		pipe.Set(ctx, key, data, c.ttl)
		pipe.Expire(ctx, index, c.ttl)
	} else {
		pipe.Set(ctx, key, data, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put options: %w", err)
	}
	return nil
}

func (c *RedisOptionCache) EndSession(ctx context.Context, session string) error {
	index := redisSessionKey(session)
	keys, err := c.client.SMembers(ctx, index).Result()
	if err != nil {
		return fmt.Errorf("redis session keys: %w", err)
	}
	keys = append(keys, index)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis end session: %w", err)
	}
	return nil
}
