package config

import (
	"fmt"
	"net/url"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks bounds on every section.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateAPI,
		c.validateFetch,
		c.validateCache,
		c.validateAnalysis,
		c.validateServer,
		c.validateScheduler,
		c.validateLogging,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateAPI() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("api.base_url", "must be an absolute URL, got %q", c.API.BaseURL)
	}
	return nil
}

func (c *Config) validateFetch() error {
	switch {
	case c.Fetch.Delay < 0:
		return invalid("fetch.delay", "must be >= 0")
	case c.Fetch.Timeout <= 0:
		return invalid("fetch.timeout", "must be > 0")
	case c.Fetch.LargeTitleTimeout < c.Fetch.Timeout:
		return invalid("fetch.large_title_timeout", "must be >= fetch.timeout")
	case c.Fetch.MaxRetries < 1:
		return invalid("fetch.max_retries", "must be >= 1")
	case c.Fetch.Workers < 1:
		return invalid("fetch.workers", "must be >= 1")
	case c.Fetch.RunTimeout <= 0:
		return invalid("fetch.run_timeout", "must be > 0")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case BackendMemory, BackendRedis:
	case BackendFile:
		if c.Cache.Dir == "" {
			return invalid("cache.dir", "is required for the file backend")
		}
	default:
		return invalid("cache.backend", "must be one of: memory, file, redis")
	}
	if c.Cache.TTL < 0 {
		return invalid("cache.ttl", "must be >= 0")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	a := c.Analysis
	if a.MaxTitles < domain.MinTitleNumber || a.MaxTitles > domain.MaxTitleNumber {
		return invalid("analysis.max_titles", "must be between %d and %d", domain.MinTitleNumber, domain.MaxTitleNumber)
	}
	if a.AsOf != "" {
		if _, err := domain.ParseDate(a.AsOf); err != nil {
			return invalid("analysis.as_of", "must be YYYY-MM-DD")
		}
	}
	for _, t := range a.LargeTitles {
		if t < domain.MinTitleNumber || t > domain.MaxTitleNumber {
			return invalid("analysis.large_titles", "title %d out of range", t)
		}
	}
	if a.CollapseThreshold < 0 || a.CollapseThreshold >= 100 {
		return invalid("analysis.collapse_threshold", "must be in [0, 100)")
	}
	if a.FromYear > a.ToYear {
		return invalid("analysis.from_year", "must not be after analysis.to_year")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port", "must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if !c.Scheduler.Enabled {
		return nil
	}
	if _, err := cron.ParseStandard(c.Scheduler.Spec); err != nil {
		return invalid("scheduler.spec", "invalid cron expression: %v", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error", "fatal":
		return nil
	default:
		return invalid("logging.level", "must be one of: debug, info, warn, error, fatal")
	}
}
