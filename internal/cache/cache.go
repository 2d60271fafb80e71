package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTTL bounds query volume against the event source: identical
// queries inside the TTL are served from the cache.
const DefaultTTL = 60 * time.Second

// Store persists cache entries for a bounded lifetime.
type Store interface {
	// Get returns the entry for key when present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key with the given time-to-live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Clear removes all entries unconditionally.
	Clear(ctx context.Context) error
}

// MemoryStore keeps entries in process memory. Stale entries are served
// as misses and overwritten by the next compute; there is no sweeper.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	createdAt time.Time
	ttl       time.Duration
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the stored value while its age is below the entry TTL.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	if s.now().Sub(entry.createdAt) >= entry.ttl {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value with a fresh creation timestamp.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{value: value, createdAt: s.now(), ttl: ttl}
	return nil
}

// Clear removes every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}

// Cache memoizes query results keyed by query shape and parameters.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

// New constructs a Cache over the given store.
func New(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger != nil {
		logger = logger.With("component", "query_cache")
	}
	return &Cache{store: store, ttl: ttl, logger: logger}
}

// TTL reports the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Clear drops all entries; the operator-facing invalidation hook.
func (c *Cache) Clear(ctx context.Context) error {
	recordClear()
	return c.store.Clear(ctx)
}

// lookup reads the store, degrading store errors to a miss so a broken
// backend slows the dashboard down instead of taking it down.
func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool) {
	value, ok, err := c.store.Get(ctx, key)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("cache read failed", "error", err)
		}
		return nil, false
	}
	return value, ok
}

func (c *Cache) put(ctx context.Context, key string, value []byte) {
	if err := c.store.Set(ctx, key, value, c.ttl); err != nil && c.logger != nil {
		c.logger.Warn("cache write failed", "error", err)
	}
}

// GetOrCompute returns the cached value for key, or invokes compute,
// stores its result and returns it. A failed compute is never memoized.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func() (T, error)) (T, error) {
	var zero T
	if data, ok := c.lookup(ctx, key); ok {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			recordHit(ruleFromKey(key))
			return out, nil
		}
		// Undecodable entry: fall through and recompute.
	}
	recordMiss(ruleFromKey(key))
	out, err := compute()
	if err != nil {
		return zero, err
	}
	data, err := json.Marshal(out)
	if err != nil {
		// Result still valid, just not cacheable.
		if c.logger != nil {
			c.logger.Warn("cache encode failed", "key", key, "error", err)
		}
		return out, nil
	}
	c.put(ctx, key, data)
	return out, nil
}

// Key derives a deterministic cache key from a query name and its
// parameters. Strings are quoted so distinct combinations never collide.
func Key(name string, params ...any) string {
	var b strings.Builder
	b.WriteString(name)
	for _, p := range params {
		b.WriteByte('|')
		switch v := p.(type) {
		case string:
			b.WriteString(strconv.Quote(v))
		case []string:
			for i, s := range v {
				if i > 0 {
					b.WriteByte(',')
				}
				b.WriteString(strconv.Quote(s))
			}
		case time.Time:
			b.WriteString(strconv.FormatInt(v.UnixNano(), 10))
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return b.String()
}

func ruleFromKey(key string) string {
	if idx := strings.IndexByte(key, '|'); idx > 0 {
		return key[:idx]
	}
	return key
}
