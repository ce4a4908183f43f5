package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	entry   Entry
	expires time.Time
}

// MemoryStore keeps entries for the life of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore creates a MemoryStore. A zero ttl never expires entries.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (Entry, error) {
	s.mu.RLock()
	item, ok := s.items[key.Hash()]
	s.mu.RUnlock()

	if !ok {
		return Entry{}, ErrNotFound
	}
	if !item.expires.IsZero() && s.now().After(item.expires) {
		s.mu.Lock()
		delete(s.items, key.Hash())
		s.mu.Unlock()
		return Entry{}, ErrNotFound
	}
	return item.entry, nil
}

func (s *MemoryStore) Put(_ context.Context, key Key, entry Entry) error {
	item := memoryItem{entry: entry}
	if s.ttl > 0 {
		item.expires = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.items[key.Hash()] = item
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	s.items = make(map[string]memoryItem)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *MemoryStore) Close() error { return nil }
