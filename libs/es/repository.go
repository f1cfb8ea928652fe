package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Aggregate is what the repository needs from a domain aggregate. Clone
// must return a deep copy; the cache only ever hands out copies.
type Aggregate[A any] interface {
	ID() string
	Version() int
	CommittedVersion() int
	Uncommitted() []Envelope
	ClearUncommitted()
	UniqueValues() []UniqueClaim
	Clone() A
}

// Replayer rebuilds an aggregate from a non-empty stream.
type Replayer[A any] func(id string, history []Envelope) (A, error)

type RepositoryConfig struct {
	CacheSize      int
	PublishTimeout time.Duration
	Publisher      Publisher
	Logger         *slog.Logger
}

// Repository loads aggregates from cache or by replay and saves them with
// compare-and-append. It never retries a conflicting save.
type Repository[A Aggregate[A]] struct {
	store          EventStore
	replay         Replayer[A]
	cache          *lru.Cache[string, A]
	cacheMu        sync.Mutex
	publisher      Publisher
	publishTimeout time.Duration
	logger         *slog.Logger
}

func NewRepository[A Aggregate[A]](store EventStore, replay Replayer[A], cfg RepositoryConfig) (*Repository[A], error) {
	if store == nil || replay == nil {
		return nil, errors.New("repository needs a store and a replayer")
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	cache, err := lru.New[string, A](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create aggregate cache: %w", err)
	}
	return &Repository[A]{
		store:          store,
		replay:         replay,
		cache:          cache,
		publisher:      cfg.Publisher,
		publishTimeout: cfg.PublishTimeout,
		logger:         cfg.Logger,
	}, nil
}

// Load returns a private copy of the aggregate. A cache hit costs no store
// round-trip; a miss replays the full stream.
func (r *Repository[A]) Load(ctx context.Context, id string) (A, error) {
	if cached, ok := r.cache.Get(id); ok {
		return cached.Clone(), nil
	}

	var zero A
	history, err := r.store.Load(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("load %s: %w", id, err)
	}
	if len(history) == 0 {
		return zero, fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	agg, err := r.replay(id, history)
	if err != nil {
		return zero, fmt.Errorf("replay %s: %w", id, err)
	}
	r.remember(agg)
	return agg, nil
}

// Save appends the uncommitted events. An empty buffer is a no-op. On
// success the buffer is cleared, the cache refreshed and the events handed
// to the publisher; on conflict the aggregate keeps its buffer.
func (r *Repository[A]) Save(ctx context.Context, agg A) (A, error) {
	pending := agg.Uncommitted()
	if len(pending) == 0 {
		return agg, nil
	}

	expected := agg.CommittedVersion()
	if _, err := r.store.Append(ctx, agg.ID(), expected, pending); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			r.forgetStale(agg.ID(), expected)
		}
		return agg, err
	}

	agg.ClearUncommitted()
	r.remember(agg)
	r.publish(ctx, pending)
	return agg, nil
}

// ExistsByUniqueField checks cached aggregates first, then the store index.
func (r *Repository[A]) ExistsByUniqueField(ctx context.Context, field string, value string) (bool, error) {
	needle := NormalizeValue(value)
	for _, id := range r.cache.Keys() {
		cached, ok := r.cache.Peek(id)
		if !ok {
			continue
		}
		for _, c := range cached.UniqueValues() {
			if c.Field == field && NormalizeValue(c.Value) == needle {
				return true, nil
			}
		}
	}
	return r.store.ExistsByField(ctx, field, value)
}

// Cached reports the cached version of id, for diagnostics and tests.
func (r *Repository[A]) Cached(id string) (int, bool) {
	cached, ok := r.cache.Peek(id)
	if !ok {
		return 0, false
	}
	return cached.Version(), true
}

// remember caches a copy unless a newer version is already cached.
func (r *Repository[A]) remember(agg A) {
	snapshot := agg.Clone()
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if cur, ok := r.cache.Peek(snapshot.ID()); ok && cur.Version() >= snapshot.Version() {
		return
	}
	r.cache.Add(snapshot.ID(), snapshot)
}

// forgetStale drops a cache entry that a conflict proved out of date.
func (r *Repository[A]) forgetStale(id string, expected int) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if cur, ok := r.cache.Peek(id); ok && cur.Version() <= expected {
		r.cache.Remove(id)
	}
}

func (r *Repository[A]) publish(ctx context.Context, events []Envelope) {
	if r.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, events); err != nil {
		r.logger.Warn("event publish failed", "err", err, "aggregate_id", events[0].AggregateID, "events", len(events))
	}
}
