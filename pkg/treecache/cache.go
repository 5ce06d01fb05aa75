// Package treecache keeps built plans for reuse across repeated solves.
//
// The memory tier is a thread-safe LRU bounded by entry count and/or bytes.
// An optional disk tier persists entries through a persist.Codec so that a
// restarted process, or a sibling process sharing the directory, can skip the
// build. Concurrent requests for the same missing key share one build.
package treecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// entry is a doubly-linked list node holding one cached value.
type entry[V any] struct {
	key   string
	value V
	size  int64
	prev  *entry[V]
	next  *entry[V]
}

// diskTier stores values outside the process.
type diskTier[V any] interface {
	load(key string) (V, bool, error)
	store(key string, value V) error
}

// Cache is a thread-safe LRU keyed by canonical request keys.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	head    *entry[V] // Most recently used.
	tail    *entry[V] // Least recently used.

	maxEntries int
	maxSize    int64
	curSize    int64
	sizeFunc   func(V) int64

	disk   diskTier[V]
	group  singleflight.Group
	logger *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	diskHits  atomic.Int64
	evictions atomic.Int64
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithMaxEntries bounds the number of entries held in memory.
func WithMaxEntries[V any](n int) Option[V] {
	return func(c *Cache[V]) {
		c.maxEntries = n
	}
}

// WithMaxBytes bounds the total size of entries held in memory, as measured
// by sizeFunc.
func WithMaxBytes[V any](maxBytes int64, sizeFunc func(V) int64) Option[V] {
	return func(c *Cache[V]) {
		c.maxSize = maxBytes
		c.sizeFunc = sizeFunc
	}
}

// WithLogger sets the logger used for disk-tier failures.
func WithLogger[V any](logger *slog.Logger) Option[V] {
	return func(c *Cache[V]) {
		c.logger = logger
	}
}

// New creates a cache. At least one capacity limit (WithMaxEntries or
// WithMaxBytes) must be provided; otherwise New panics.
func New[V any](opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		entries: make(map[string]*entry[V]),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.maxEntries <= 0 && c.maxSize <= 0 {
		panic("treecache: at least one capacity limit (WithMaxEntries or WithMaxBytes) is required")
	}

	return c
}

// Len returns the number of entries held in memory.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Get returns the value for key from memory, falling back to the disk tier.
// A disk hit is promoted into memory.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()

	ent, ok := c.entries[key]
	if ok {
		c.moveToFront(ent)
		value := ent.value
		c.mu.Unlock()
		c.hits.Add(1)

		return value, true
	}

	c.mu.Unlock()

	if c.disk != nil {
		value, found, err := c.disk.load(key)
		if err != nil {
			c.logger.Warn("treecache: disk load failed", "key", key, "error", err)
		}

		if found {
			c.diskHits.Add(1)
			c.hits.Add(1)
			c.putMemory(key, value)

			return value, true
		}
	}

	c.misses.Add(1)

	var zero V

	return zero, false
}

// Put stores value in memory and, when configured, on disk.
func (c *Cache[V]) Put(key string, value V) error {
	c.putMemory(key, value)

	if c.disk == nil {
		return nil
	}

	err := c.disk.store(key, value)
	if err != nil {
		return fmt.Errorf("treecache: store %s: %w", key, err)
	}

	return nil
}

// GetOrBuild returns the cached value for key or builds, stores and returns
// it. Concurrent callers for the same key wait for a single build. The build
// runs detached from any one caller's cancellation; each caller stops waiting
// when its own ctx is done. The boolean reports whether the value came from
// the cache.
func (c *Cache[V]) GetOrBuild(ctx context.Context, key string, build func(context.Context) (V, error)) (V, bool, error) {
	var zero V

	if value, ok := c.Get(key); ok {
		return value, true, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, false, fmt.Errorf("treecache: wait for %s: %w", key, ctxErr)
	}

	buildCtx := context.WithoutCancel(ctx)

	ch := c.group.DoChan(key, func() (any, error) {
		if value, ok := c.peek(key); ok {
			return value, nil
		}

		value, buildErr := build(buildCtx)
		if buildErr != nil {
			return nil, buildErr
		}

		putErr := c.Put(key, value)
		if putErr != nil {
			c.logger.Warn("treecache: keeping value in memory only", "key", key, "error", putErr)
		}

		return value, nil
	})

	var result singleflight.Result

	select {
	case <-ctx.Done():
		return zero, false, fmt.Errorf("treecache: wait for %s: %w", key, ctx.Err())
	case result = <-ch:
	}

	if result.Err != nil {
		return zero, false, result.Err
	}

	value, ok := result.Val.(V)
	if !ok {
		return zero, false, fmt.Errorf("treecache: unexpected value type %T", result.Val)
	}

	return value, false, nil
}

// peek reads memory without touching statistics.
func (c *Cache[V]) peek(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		var zero V

		return zero, false
	}

	return ent.value, true
}

// Clear drops every in-memory entry. The disk tier is left untouched.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry[V])
	c.head = nil
	c.tail = nil
	c.curSize = 0
}
