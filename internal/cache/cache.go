// Package cache memoizes expensive fetch+parse results under a content key.
//
// A Cache sits in front of a Store. GetOrCompute returns a stored value
// without calling compute, or calls compute once per key at a time and stores
// the result only when compute succeeds. Failures are never cached.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

// ComputeFunc produces the value for a missing key.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// Observer receives hit/miss/store-error events.
type Observer interface {
	ObserveCache(kind Kind, hit bool)
	ObserveCacheError(kind Kind, op string)
}

type refreshKey struct{}

// WithForceRefresh returns a context under which GetOrCompute skips lookups
// and overwrites whatever it computes.
func WithForceRefresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, refreshKey{}, true)
}

func forceRefresh(ctx context.Context) bool {
	v, _ := ctx.Value(refreshKey{}).(bool)
	return v
}

// Cache is safe for concurrent use. The zero value is not usable; use New or Disabled.
type Cache struct {
	store    Store
	group    singleflight.Group
	log      logger.Logger
	observer Observer
	now      func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// New creates a Cache over store. A nil store yields a disabled cache.
func New(store Store, log logger.Logger, opts ...Option) *Cache {
	c := &Cache{
		store: store,
		log:   log.With(logger.Component("cache")),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Disabled returns a cache that always computes.
func Disabled(log logger.Logger) *Cache {
	return New(nil, log)
}

// Enabled reports whether a store backs the cache.
func (c *Cache) Enabled() bool {
	return c.store != nil
}

// GetOrCompute returns the cached value for key, or computes, stores and
// returns it. Concurrent callers for the same key share one compute call.
// A store error is logged and degrades to computing; it never fails the call.
//
// The shared compute runs under the context of the caller that started it.
// If that caller goes away mid-compute, waiters whose own context is still
// live start a new flight instead of inheriting the cancellation.
func (c *Cache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) ([]byte, error) {
	if c.store == nil {
		return compute(ctx)
	}

	refresh := forceRefresh(ctx)
	if !refresh {
		if v, ok := c.lookup(ctx, key); ok {
			return v, nil
		}
	}

	for {
		v, err := c.flight(ctx, key, refresh, compute)
		var abandoned *abandonedError
		if !errors.As(err, &abandoned) {
			return v, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Debug("shared compute abandoned by its caller, recomputing",
			logger.String("key", key.String()),
		)
	}
}

// abandonedError marks a flight that failed because the context it ran under
// ended, not because compute itself failed.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }
func (e *abandonedError) Unwrap() error { return e.err }

func (c *Cache) flight(ctx context.Context, key Key, refresh bool, compute ComputeFunc) ([]byte, error) {
	ch := c.group.DoChan(key.String(), func() (any, error) {
		if !refresh {
			// another flight may have stored it since our lookup
			if v, ok := c.lookup(ctx, key); ok {
				return v, nil
			}
		}
		c.observe(key.Kind, false)

		v, err := compute(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &abandonedError{err: err}
			}
			return nil, err
		}

		entry := Entry{Key: key.String(), Value: v, FetchedAt: c.now().UTC()}
		if putErr := c.store.Put(ctx, key, entry); putErr != nil {
			c.observeError(key.Kind, "put")
			c.log.Warn("cache write failed",
				logger.String("key", key.String()),
				logger.Error(putErr),
			)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		v, ok := res.Val.([]byte)
		if !ok {
			return nil, fmt.Errorf("cache: unexpected value type %T", res.Val)
		}
		return v, nil
	}
}

func (c *Cache) lookup(ctx context.Context, key Key) ([]byte, bool) {
	entry, err := c.store.Get(ctx, key)
	if err == nil {
		c.observe(key.Kind, true)
		return entry.Value, true
	}
	if !errors.Is(err, ErrNotFound) {
		c.observeError(key.Kind, "get")
		c.log.Warn("cache read failed",
			logger.String("key", key.String()),
			logger.Error(err),
		)
	}
	return nil, false
}

// Clear drops every stored entry.
func (c *Cache) Clear(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	c.log.Info("cache cleared")
	return nil
}

// Close releases the backing store.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func (c *Cache) observe(kind Kind, hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(kind, hit)
	}
}

func (c *Cache) observeError(kind Kind, op string) {
	if c.observer != nil {
		c.observer.ObserveCacheError(kind, op)
	}
}
