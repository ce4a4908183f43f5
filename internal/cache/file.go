package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// fileMetadata is written next to each body as <hash>.json.
type fileMetadata struct {
	Key       string    `json:"key"`
	FetchedAt time.Time `json:"fetched_at"`
	Size      int       `json:"size"`
}

// FileStore persists entries under dir/<kind>/<hash>.{json,body} so results
// survive process restarts.
type FileStore struct {
	dir string
	ttl time.Duration
	mu  sync.RWMutex
	now func() time.Time
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, ttl time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, ttl: ttl, now: time.Now}, nil
}

// Dir returns the cache root.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) metadataPath(key Key) string {
	return filepath.Join(s.dir, string(key.Kind), key.Hash()+".json")
}

func (s *FileStore) bodyPath(key Key) string {
	return filepath.Join(s.dir, string(key.Kind), key.Hash()+".body")
}

func (s *FileStore) Get(_ context.Context, key Key) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metaData, err := os.ReadFile(s.metadataPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("read cache metadata: %w", err)
	}

	var meta fileMetadata
	if unmarshalErr := json.Unmarshal(metaData, &meta); unmarshalErr != nil {
		return Entry{}, fmt.Errorf("decode cache metadata: %w", unmarshalErr)
	}
	// a different canonical key under the same hash is a miss, not a hit
	if meta.Key != key.String() {
		return Entry{}, ErrNotFound
	}
	if s.ttl > 0 && s.now().Sub(meta.FetchedAt) > s.ttl {
		return Entry{}, ErrNotFound
	}

	body, err := os.ReadFile(s.bodyPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// metadata without body: treat as a miss
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("read cache body: %w", err)
	}
	if len(body) != meta.Size {
		return Entry{}, ErrNotFound
	}

	return Entry{Key: meta.Key, Value: body, FetchedAt: meta.FetchedAt}, nil
}

// Put writes the body first and the metadata last, each via rename, so a
// reader never sees metadata pointing at a partial body.
func (s *FileStore) Put(_ context.Context, key Key, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kindDir := filepath.Join(s.dir, string(key.Kind))
	if err := os.MkdirAll(kindDir, dirPerm); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	if err := writeFileAtomic(kindDir, s.bodyPath(key), entry.Value); err != nil {
		return fmt.Errorf("write cache body: %w", err)
	}

	meta, err := json.MarshalIndent(fileMetadata{
		Key:       key.String(),
		FetchedAt: entry.FetchedAt,
		Size:      len(entry.Value),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache metadata: %w", err)
	}
	if err := writeFileAtomic(kindDir, s.metadataPath(key), meta); err != nil {
		return fmt.Errorf("write cache metadata: %w", err)
	}
	return nil
}

// Clear removes every entry but keeps the root directory.
func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
