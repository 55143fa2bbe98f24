// Package cache keeps process-local copies of player records for in-session
// reads. Entries are best effort: they expire after a TTL and are dropped
// whenever another process reports the record changed.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/louisbranch/autonexus/internal/services/nexus/domain"
)

// DefaultTTL bounds how long a record is served without a refresh.
const DefaultTTL = 5 * time.Minute

// Loader reads a record from the shared store. ok is false when none exists.
type Loader func(ctx context.Context, id uuid.UUID) (record domain.PlayerRecord, ok bool, err error)

// Cache is safe for concurrent use.
type Cache struct {
	items *ttlcache.Cache[uuid.UUID, domain.PlayerRecord]
	sweep time.Duration

	// mu orders Invalidate against the check-then-store at the end of Load.
	mu    sync.Mutex
	loads map[uuid.UUID]*pendingLoad
}

// pendingLoad tracks reads in flight for one record. gen moves on every
// Invalidate so a load that started before it does not store its result.
type pendingLoad struct {
	count int
	gen   uint64
}

// New returns a cache whose entries live for ttl, or DefaultTTL when ttl is
// not positive.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		sweep: sweepInterval(ttl),
		loads: make(map[uuid.UUID]*pendingLoad),
		items: ttlcache.New(
			ttlcache.WithTTL[uuid.UUID, domain.PlayerRecord](ttl),
			ttlcache.WithDisableTouchOnHit[uuid.UUID, domain.PlayerRecord](),
		),
	}
}

func sweepInterval(ttl time.Duration) time.Duration {
	if sweep := ttl / 2; sweep > time.Second {
		return sweep
	}
	return time.Second
}

// Get returns a copy of the cached record for id.
func (c *Cache) Get(id uuid.UUID) (domain.PlayerRecord, bool) {
	item := c.items.Get(id)
	if item == nil {
		return domain.PlayerRecord{}, false
	}
	record := item.Value()
	record.Metadata = record.Metadata.Clone()
	return record, true
}

// Put stores a copy of record under its UUID.
func (c *Cache) Put(record domain.PlayerRecord) {
	if record.UUID == uuid.Nil {
		return
	}
	record.Metadata = record.Metadata.Clone()
	c.items.Set(record.UUID, record, ttlcache.DefaultTTL)
}

// Invalidate drops the entry for id and voids any load of it in flight.
func (c *Cache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p := c.loads[id]; p != nil {
		p.gen++
	}
	c.items.Delete(id)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.items.Len()
}

// Load returns the cached record for id, reading it through load on a miss.
// Misses that find no record are not cached, and neither is a record that
// was invalidated while it was being read.
func (c *Cache) Load(ctx context.Context, id uuid.UUID, load Loader) (domain.PlayerRecord, bool, error) {
	if record, ok := c.Get(id); ok {
		return record, true, nil
	}

	c.mu.Lock()
	p := c.loads[id]
	if p == nil {
		p = &pendingLoad{}
		c.loads[id] = p
	}
	p.count++
	start := p.gen
	c.mu.Unlock()

	record, ok, err := load(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	current := p.gen == start
	if p.count--; p.count == 0 {
		delete(c.loads, id)
	}
	if err != nil || !ok {
		return domain.PlayerRecord{}, false, err
	}
	if current {
		c.Put(record)
	}
	return record, true, nil
}

// Run evicts expired entries every sweep interval until ctx is done.
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.items.DeleteExpired()
		}
	}
}
