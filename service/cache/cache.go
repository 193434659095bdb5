// Package cache memoizes explanation results in an LRU with per-kind
// expiry and single-flight computation.
package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/brojonat/stellar-explain/service/metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Kind partitions the key space. Transaction kinds hold immutable ledger data
// and never expire; account kinds expire after Options.AccountTTL.
type Kind string

const (
	KindTransaction Kind = "tx"
	KindRaw         Kind = "raw"
	KindAccount     Kind = "account"
	KindAccountTxs  Kind = "account_txs"
)

func (k Kind) expires() bool {
	return k == KindAccount || k == KindAccountTxs
}

// Key identifies a cache entry.
type Key struct {
	Kind Kind
	ID   string
}

func (k Key) String() string {
	return string(k.Kind) + ":" + k.ID
}

// Options configures a Cache. Zero values get defaults.
type Options struct {
	// Capacity bounds the total number of entries. Default 10000.
	Capacity int
	// AccountTTL is how long account entries stay valid. Default 30s.
	AccountTTL time.Duration
	// Now is the clock used for expiry. Default time.Now.
	Now func() time.Time
	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// Cache is safe for concurrent use. The LRU's lock guards only bookkeeping;
// computations run outside it.
type Cache struct {
	lru     *lru.Cache[Key, *entry]
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group
	metrics *metrics.Metrics

	hits   atomic.Int64
	misses atomic.Int64
}

type entry struct {
	value     any
	expiresAt time.Time // zero means never
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// New creates a Cache. Eviction is least-recently-used across all kinds
// once Capacity entries are stored.
func New(opts Options) *Cache {
	if opts.Capacity <= 0 {
		opts.Capacity = 10000
	}
	if opts.AccountTTL <= 0 {
		opts.AccountTTL = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	// lru.New only fails on a non-positive size.
	store, err := lru.New[Key, *entry](opts.Capacity)
	if err != nil {
		panic(fmt.Sprintf("cache: %v", err))
	}
	return &Cache{
		lru:     store,
		ttl:     opts.AccountTTL,
		now:     opts.Now,
		metrics: opts.Metrics,
	}
}

// Get returns the live value stored under key and records a hit or miss.
func (c *Cache) Get(key Key) (any, bool) {
	v, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
		c.metrics.RecordCacheLookup(string(key.Kind), "hit")
	} else {
		c.misses.Add(1)
		c.metrics.RecordCacheLookup(string(key.Kind), "miss")
	}
	return v, ok
}

func (c *Cache) lookup(key Key) (any, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if e.expired(c.now()) {
		c.lru.Remove(key)
		c.metrics.SetCacheEntries(c.lru.Len())
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, evicting the least recently used entry when
// the cache is full.
func (c *Cache) Set(key Key, value any) {
	e := &entry{value: value}
	if key.Kind.expires() {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.lru.Add(key, e)
	c.metrics.SetCacheEntries(c.lru.Len())
}

// Invalidate removes key if present.
func (c *Cache) Invalidate(key Key) {
	if c.lru.Remove(key) {
		c.metrics.SetCacheEntries(c.lru.Len())
	}
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Stats returns hit, miss and entry counts.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.Len(),
	}
}

// GetOrCompute returns the value cached under key, or runs compute to produce
// it. Concurrent callers for the same key share a single compute. compute
// runs detached from ctx cancellation, so a caller that gives up early gets
// ctx.Err() while the computation still completes and fills the cache.
// Errors reach every waiter unchanged and are never cached.
func GetOrCompute[V any](ctx context.Context, c *Cache, key Key, compute func(context.Context) (V, error)) (V, error) {
	var zero V

	if v, ok := c.Get(key); ok {
		return cast[V](key, v)
	}

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key.String(), func() (any, error) {
		// A previous flight may have filled the entry after our miss.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := compute(detached)
		if err != nil {
			return nil, err
		}
		c.Set(key, v)
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			c.metrics.RecordCacheLookup(string(key.Kind), "shared")
		}
		return cast[V](key, res.Val)
	}
}

func cast[V any](key Key, v any) (V, error) {
	typed, ok := v.(V)
	if !ok {
		var zero V
		return zero, fmt.Errorf("cache entry %s holds %T, not %T", key, v, zero)
	}
	return typed, nil
}
