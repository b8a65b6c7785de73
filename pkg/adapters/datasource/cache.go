package datasource

import (
	"sync"
	"time"

	"github.com/indaba-ai/indaba-engine/pkg/models"
)

// DefaultSnapshotTTL is how long a captured schema snapshot stays fresh.
const DefaultSnapshotTTL = time.Hour

// databaseCacheKey is the reserved key for the whole-database snapshot.
const databaseCacheKey = "\x00database"

// SnapshotCache is a per-adapter, TTL-bounded cache of schema snapshots
// keyed by schema name. Single writer per key; concurrent readers receive
// the last written snapshot.
type SnapshotCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	snapshot   *models.SchemaSnapshot
	capturedAt time.Time
}

// NewSnapshotCache builds a cache with the given TTL; ttl <= 0 falls back
// to DefaultSnapshotTTL.
func NewSnapshotCache(ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &SnapshotCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached snapshot for a schema if still fresh.
func (c *SnapshotCache) Get(schema string) (*models.SchemaSnapshot, bool) {
	return c.get(schema)
}

// Put stores a snapshot for a schema.
func (c *SnapshotCache) Put(schema string, snap *models.SchemaSnapshot) {
	c.put(schema, snap)
}

// GetDatabase returns the cached whole-database snapshot if still fresh.
func (c *SnapshotCache) GetDatabase() (*models.SchemaSnapshot, bool) {
	return c.get(databaseCacheKey)
}

// PutDatabase stores the whole-database snapshot.
func (c *SnapshotCache) PutDatabase(snap *models.SchemaSnapshot) {
	c.put(databaseCacheKey, snap)
}

// Invalidate drops every cached entry.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *SnapshotCache) get(key string) (*models.SchemaSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.capturedAt) > c.ttl {
		return nil, false
	}
	return entry.snapshot, true
}

func (c *SnapshotCache) put(key string, snap *models.SchemaSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{snapshot: snap, capturedAt: c.now()}
}
