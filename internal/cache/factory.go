package cache

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/regcount/internal/config"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

// FromConfig builds the cache described by cfg.
func FromConfig(cfg config.CacheConfig, log logger.Logger, opts ...Option) (*Cache, error) {
	if !cfg.Enabled {
		return Disabled(log), nil
	}

	var store Store
	switch cfg.Backend {
	case config.BackendMemory:
		store = NewMemoryStore(cfg.TTL)
	case config.BackendFile:
		fs, err := NewFileStore(cfg.Dir, cfg.TTL)
		if err != nil {
			return nil, err
		}
		store = fs
	case config.BackendRedis:
		rs, err := NewRedisStore(RedisConfig{
			Address:  cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.KeyPrefix,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, err
		}
		store = rs
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}

	return New(store, log, opts...), nil
}
