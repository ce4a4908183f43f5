package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store on a miss.
var ErrNotFound = errors.New("cache entry not found")

// Entry is a stored result and the time it was computed.
type Entry struct {
	Key       string    `json:"key"`
	Value     []byte    `json:"-"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store is a cache backend. Put may overwrite: every writer for a key
// computes the same value, so the last write is as good as the first.
type Store interface {
	Get(ctx context.Context, key Key) (Entry, error)
	Put(ctx context.Context, key Key, entry Entry) error
	Clear(ctx context.Context) error
	Close() error
}
