// Package querycache is the process-owned response cache behind every remote
// read. It stores responses by query key, shares one in-flight request among
// all callers of the same key and drops entries by key prefix when a
// mutation succeeds.
package querycache

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/viccon/sturdyc"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pitabwire/storedesk/internal/querykey"
)

// Recorder receives cache events. observability.Metrics implements it.
type Recorder interface {
	RecordCacheHit(resource string)
	RecordCacheMiss(resource string)
	RecordCacheShared(resource string)
	RecordCacheInvalidation(resource string, removed int)
}

// Publisher forwards invalidations to other storedesk instances.
type Publisher interface {
	Publish(ctx context.Context, prefix querykey.Key) error
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheHit(string)               {}
func (nopRecorder) RecordCacheMiss(string)              {}
func (nopRecorder) RecordCacheShared(string)            {}
func (nopRecorder) RecordCacheInvalidation(string, int) {}

// Client owns the response store. It is safe for concurrent use and is
// passed explicitly to every component that reads or invalidates.
type Client struct {
	store    *sturdyc.Client[any]
	group    singleflight.Group
	inflight *xsync.MapOf[string, inflightFetch]
	seq      atomic.Uint64
	logger   *zap.Logger
	recorder Recorder
	pub      Publisher
}

// inflightFetch tracks the newest running fetch of a key. stale is set by an
// invalidation that matches key while the fetch runs.
type inflightFetch struct {
	key   querykey.Key
	id    uint64
	stale bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for cache events.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithPublisher forwards every local invalidation to p.
func WithPublisher(p Publisher) Option {
	return func(c *Client) {
		c.pub = p
	}
}

// New creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		store:    sturdyc.New[any](cfg.Capacity, cfg.NumShards, cfg.TTL, cfg.EvictionPercentage),
		inflight: xsync.NewMapOf[string, inflightFetch](),
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fetch returns the cached response for key or runs fetch to produce it.
// Concurrent callers of the same key share a single fetch. The fetch runs
// detached from the caller's cancellation, so a caller that gives up does
// not fail the others; it just stops waiting.
//
// A response whose key was invalidated while the fetch ran is returned to
// its waiters but not stored. Errors are never stored.
func Fetch[T any](ctx context.Context, c *Client, key querykey.Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	k := key.String()
	resource := key.Resource()

	if v, ok := c.store.Get(k); ok {
		if typed, ok := v.(T); ok {
			c.recorder.RecordCacheHit(resource)
			c.logger.Debug("query cache hit", zap.String("key", k))
			return typed, nil
		}
	}
	c.recorder.RecordCacheMiss(resource)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(k, func() (any, error) {
		return c.runFetch(detached, key, k, func(ctx context.Context) (any, error) {
			return fetch(ctx)
		})
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.recorder.RecordCacheShared(resource)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		typed, ok := res.Val.(T)
		if !ok {
			return zero, fmt.Errorf("query cache: key %s holds %T, want %T", k, res.Val, zero)
		}
		return typed, nil
	}
}

func (c *Client) runFetch(ctx context.Context, key querykey.Key, k string, fetch func(context.Context) (any, error)) (any, error) {
	id := c.seq.Add(1)
	c.inflight.Store(k, inflightFetch{key: key, id: id})

	v, err := fetch(ctx)

	// The store write happens under the map entry's lock so an invalidation
	// cannot slip between the staleness check and Set.
	c.inflight.Compute(k, func(cur inflightFetch, loaded bool) (inflightFetch, bool) {
		if !loaded || cur.id != id {
			// A newer fetch of k started after an invalidation; it owns the entry.
			return cur, !loaded
		}
		if err == nil {
			if cur.stale {
				c.logger.Debug("query cache dropped response invalidated in flight", zap.String("key", k))
			} else {
				c.store.Set(k, v)
			}
		}
		return cur, true
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Invalidate removes every cached response whose key starts with prefix and
// marks matching in-flight fetches so their responses are not stored. It
// returns the number of removed entries. With a publisher configured the
// prefix is forwarded to other instances; a publish failure is logged and
// does not fail the invalidation.
func (c *Client) Invalidate(ctx context.Context, prefix querykey.Key) int {
	removed := c.InvalidateLocal(prefix)
	if c.pub != nil {
		if err := c.pub.Publish(ctx, prefix); err != nil {
			c.logger.Warn("query cache invalidation publish failed",
				zap.String("prefix", prefix.String()),
				zap.Error(err),
			)
		}
	}
	return removed
}

// InvalidateLocal is Invalidate without forwarding.
//
// Matching in-flight fetches are marked stale and forgotten first, so a read
// issued after InvalidateLocal returns starts a new fetch instead of joining
// one that may carry pre-mutation data. Stored entries are removed after
// that, which also catches a fetch that stored its response just before it
// was marked.
func (c *Client) InvalidateLocal(prefix querykey.Key) int {
	c.inflight.Range(func(k string, state inflightFetch) bool {
		if !state.key.HasPrefix(prefix) {
			return true
		}
		c.inflight.Compute(k, func(cur inflightFetch, loaded bool) (inflightFetch, bool) {
			if !loaded {
				return cur, true
			}
			cur.stale = true
			return cur, false
		})
		c.group.Forget(k)
		return true
	})

	removed := 0
	for _, k := range c.store.ScanKeys() {
		key, err := querykey.Parse(k)
		if err != nil || !key.HasPrefix(prefix) {
			continue
		}
		c.store.Delete(k)
		removed++
	}

	c.recorder.RecordCacheInvalidation(prefix.Resource(), removed)
	c.logger.Debug("query cache invalidated",
		zap.String("prefix", prefix.String()),
		zap.Int("removed", removed),
	)
	return removed
}

// Peek returns the cached response for key without fetching.
func (c *Client) Peek(key querykey.Key) (any, bool) {
	return c.store.Get(key.String())
}

// Len returns the number of cached responses.
func (c *Client) Len() int {
	return c.store.Size()
}
