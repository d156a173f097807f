// Package cache provides a TTL-bounded response cache with in-flight
// request coalescing. Concurrent lookups for the same key share one
// computation; completed answers are cached with insertion-ordered eviction.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voxhall/answer-gateway/pkg/gateway/backend"
)

const (
	// DefaultTTL is how long a completed answer stays servable.
	DefaultTTL = 10 * time.Minute
	// DefaultMaxEntries bounds the cache before insertion-ordered eviction
	// kicks in.
	DefaultMaxEntries = 1024
)

// Key builds the cache key for a scope and a cleaned query.
func Key(scope, query string) string {
	return scope + "\x00" + strings.ToLower(strings.TrimSpace(query))
}

type cacheEntry struct {
	answer    *backend.Answer
	createdAt time.Time
	element   *list.Element
}

type inflightTask struct {
	done   chan struct{}
	answer *backend.Answer
	err    error
}

// Options configures a Cache. Zero values fall back to the defaults.
type Options struct {
	TTL        time.Duration
	MaxEntries int
	Now        func() time.Time
}

// Cache is safe for concurrent use. The compute callback always runs with
// no internal lock held.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	order    *list.List // keys in insertion order, oldest at front
	inflight map[string]*inflightTask

	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

// New creates a response cache.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		entries:    make(map[string]*cacheEntry),
		order:      list.New(),
		inflight:   make(map[string]*inflightTask),
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
	}
}

// Resolve returns the answer for key, computing it at most once across
// concurrent callers. The bool result reports whether the answer came from
// the cache (or a joined in-flight computation) rather than a fresh compute.
//
// With bypass set, compute runs directly: the cache is neither read nor
// written and the call does not participate in coalescing.
func (c *Cache) Resolve(ctx context.Context, key string, bypass bool, compute func(context.Context) (*backend.Answer, error)) (*backend.Answer, bool, error) {
	if bypass {
		answer, err := compute(ctx)
		return answer, false, err
	}

	c.mu.Lock()

	if e, ok := c.entries[key]; ok {
		if c.now().Sub(e.createdAt) < c.ttl {
			c.mu.Unlock()
			return e.answer, true, nil
		}
		// Expired entries are treated as absent and purged on lookup.
		c.removeLocked(key, e)
	}

	if task, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-task.done:
			return task.answer, true, task.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}

	task := &inflightTask{done: make(chan struct{})}
	c.inflight[key] = task
	c.mu.Unlock()

	answer, err := compute(ctx)

	c.mu.Lock()
	// The in-flight registration goes away the moment the computation
	// settles, before the result is cached.
	delete(c.inflight, key)
	if err == nil && answer != nil && answer.Decision == backend.DecisionAnswer {
		c.storeLocked(key, answer)
	}
	c.mu.Unlock()

	task.answer = answer
	task.err = err
	close(task.done)

	return answer, false, err
}

// Len reports the number of cached entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// InflightLen reports the number of in-flight computations.
func (c *Cache) InflightLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func (c *Cache) storeLocked(key string, answer *backend.Answer) {
	if e, ok := c.entries[key]; ok {
		e.answer = answer
		e.createdAt = c.now()
		c.order.MoveToBack(e.element)
		return
	}
	for len(c.entries) >= c.maxEntries {
		front := c.order.Front()
		if front == nil {
			break
		}
		oldest, _ := front.Value.(string)
		if e, ok := c.entries[oldest]; ok {
			c.removeLocked(oldest, e)
		} else {
			c.order.Remove(front)
		}
	}
	c.entries[key] = &cacheEntry{
		answer:    answer,
		createdAt: c.now(),
		element:   c.order.PushBack(key),
	}
}

func (c *Cache) removeLocked(key string, e *cacheEntry) {
	c.order.Remove(e.element)
	delete(c.entries, key)
}
