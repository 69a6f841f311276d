// Package lookup caches the collections that foreign-key columns resolve against.
package lookup

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"shankh-dashboard/internal/format"
	"shankh-dashboard/internal/metadata"
	"shankh-dashboard/internal/metrics"
)

// DefaultTTL is how long a fetched lookup collection stays valid.
const DefaultTTL = 5 * time.Minute

// Fetcher loads a whole collection from the backend.
type Fetcher interface {
	List(ctx context.Context, entity string, envelopeKeys ...string) ([]map[string]any, error)
}

type entry struct {
	records   []map[string]any
	expiresAt time.Time
}

// Resolver is a TTL cache of lookup collections keyed by entity. Concurrent
// misses for the same entity share one backend fetch.
type Resolver struct {
	fetcher  Fetcher
	registry *metadata.Registry
	ttl      time.Duration
	now      func() time.Time

	mu      sync.RWMutex
	entries map[string]entry
	gens    map[string]uint64 // bumped by Invalidate
	epoch   uint64            // bumped by InvalidateAll
	group   singleflight.Group
}

type Option func(*Resolver)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewResolver builds a resolver. The registry, when set, supplies envelope
// keys for each entity.
func NewResolver(fetcher Fetcher, reg *metadata.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher:  fetcher,
		registry: reg,
		ttl:      DefaultTTL,
		now:      time.Now,
		entries:  make(map[string]entry),
		gens:     make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) cached(entity string) ([]map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[entity]
	if !ok || !r.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.records, true
}

// Get returns the collection for entity, from cache when unexpired. Fetch
// failures are logged and yield an empty collection; they are never cached.
func (r *Resolver) Get(ctx context.Context, entity string) []map[string]any {
	if records, ok := r.cached(entity); ok {
		metrics.LookupRequests.WithLabelValues(entity, "hit").Inc()
		return records
	}
	metrics.LookupRequests.WithLabelValues(entity, "miss").Inc()

	v, err, _ := r.group.Do(entity, func() (any, error) {
		if records, ok := r.cached(entity); ok {
			return records, nil
		}
		r.mu.RLock()
		gen, epoch := r.gens[entity], r.epoch
		r.mu.RUnlock()
		// Detached so one caller's cancellation does not fail the others.
		records, err := r.fetcher.List(context.WithoutCancel(ctx), r.endpoint(entity), r.envelopeKeys(entity)...)
		if err != nil {
			return nil, err
		}
		if records == nil {
			records = []map[string]any{}
		}
		r.mu.Lock()
		// An invalidation during the fetch means the result may predate the change.
		if r.gens[entity] == gen && r.epoch == epoch {
			r.entries[entity] = entry{records: records, expiresAt: r.now().Add(r.ttl)}
		}
		r.mu.Unlock()
		return records, nil
	})
	if err != nil {
		metrics.LookupRequests.WithLabelValues(entity, "error").Inc()
		slog.WarnContext(ctx, "Lookup fetch failed", "entity", entity, "err", err)
		return []map[string]any{}
	}
	return v.([]map[string]any)
}

func (r *Resolver) endpoint(entity string) string {
	if r.registry != nil {
		if e := r.registry.GetEntity(entity); e != nil {
			return e.CollectionPath()
		}
	}
	return entity
}

func (r *Resolver) envelopeKeys(entity string) []string {
	if r.registry != nil {
		if e := r.registry.GetEntity(entity); e != nil {
			return e.EnvelopeKeys
		}
	}
	return nil
}

// Invalidate drops one cached collection.
func (r *Resolver) Invalidate(entity string) {
	r.mu.Lock()
	delete(r.entries, entity)
	r.gens[entity]++
	r.mu.Unlock()
	r.group.Forget(entity)
	metrics.LookupInvalidations.WithLabelValues(entity).Inc()
}

// InvalidateAll drops every cached collection.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.epoch++
	r.entries = make(map[string]entry)
	r.mu.Unlock()
	for _, name := range names {
		r.group.Forget(name)
		metrics.LookupInvalidations.WithLabelValues(name).Inc()
	}
}

// Prefetch warms the cache for several entities concurrently.
func (r *Resolver) Prefetch(ctx context.Context, entities ...string) {
	var g errgroup.Group
	for _, name := range entities {
		g.Go(func() error {
			r.Get(ctx, name)
			return nil
		})
	}
	g.Wait()
}

// FindByID returns the record whose identifier equals value. With an empty
// idField every identifier-like key is considered, in sorted key order.
func FindByID(records []map[string]any, idField string, value any) map[string]any {
	for _, rec := range records {
		if idField != "" {
			if v, ok := rec[idField]; ok && format.Equal(v, value) {
				return rec
			}
			continue
		}
		keys := make([]string, 0, len(rec))
		for k := range rec {
			if metadata.IsIdentifierKey(k) {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		if len(keys) > 0 && format.Equal(rec[keys[0]], value) {
			return rec
		}
	}
	return nil
}
