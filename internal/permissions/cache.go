package permissions

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"
)

// DefaultFetchTimeout bounds a shared grant fetch.
const DefaultFetchTimeout = 10 * time.Second

type snapshotKey struct {
	principal string
	site      string
}

// flight encodes the key for singleflight. The length prefix keeps ids
// containing separators apart.
func (k snapshotKey) flight() string {
	return strconv.Itoa(len(k.principal)) + ":" + k.principal + k.site
}

// CachedSource memoises grant snapshots per (principal, site) for a short
// TTL and collapses concurrent fetches of the same key.
type CachedSource struct {
	next   Source
	cache  *expirable.LRU[snapshotKey, []Grant]
	group  singleflight.Group
	hits   prometheus.Counter
	misses prometheus.Counter

	// FetchTimeout bounds the shared fetch, which outlives any single caller.
	FetchTimeout time.Duration

	// generation is bumped by every Invalidate; fetches that straddle a bump
	// are returned but not cached.
	mu         sync.Mutex
	generation uint64
}

// NewCachedSource wraps next. Counters are registered on registerer.
func NewCachedSource(next Source, size int, ttl time.Duration, registerer prometheus.Registerer) *CachedSource {
	if size <= 0 {
		size = 1024
	}
	c := &CachedSource{
		next:         next,
		cache:        expirable.NewLRU[snapshotKey, []Grant](size, nil, ttl),
		FetchTimeout: DefaultFetchTimeout,
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conformapro_permission_cache_hits_total",
			Help: "Grant snapshots served from the cache.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "conformapro_permission_cache_misses_total",
			Help: "Grant snapshots fetched from the database.",
		}),
	}
	if registerer != nil {
		registerer.MustRegister(c.hits, c.misses)
	}
	return c
}

// Grants implements Source. Each caller waits on its own ctx; the shared
// fetch is detached from the caller that started it.
func (c *CachedSource) Grants(ctx context.Context, principalID, siteID string) ([]Grant, error) {
	key := snapshotKey{principal: principalID, site: siteID}
	if grants, ok := c.cache.Get(key); ok {
		c.hits.Inc()
		return cloneGrants(grants), nil
	}
	c.misses.Inc()
	ch := c.group.DoChan(key.flight(), func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), key)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneGrants(res.Val.([]Grant)), nil
	}
}

func (c *CachedSource) fetch(ctx context.Context, key snapshotKey) ([]Grant, error) {
	gen := c.currentGeneration()
	if c.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.FetchTimeout)
		defer cancel()
	}
	grants, err := c.next.Grants(ctx, key.principal, key.site)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation == gen {
		c.cache.Add(key, grants)
	}
	return grants, nil
}

func (c *CachedSource) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Invalidate drops the cached snapshot for (principalID, siteID). A fetch
// already in flight is not cached and later callers start a new one.
func (c *CachedSource) Invalidate(principalID, siteID string) {
	key := snapshotKey{principal: principalID, site: siteID}
	c.mu.Lock()
	c.generation++
	c.cache.Remove(key)
	c.mu.Unlock()
	c.group.Forget(key.flight())
}

func cloneGrants(grants []Grant) []Grant {
	out := make([]Grant, len(grants))
	copy(out, grants)
	return out
}

var _ Source = (*CachedSource)(nil)
