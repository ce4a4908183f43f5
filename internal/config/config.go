// Package config holds the regcount configuration tree, its defaults and its
// validation rules. Values come from a YAML file, REGCOUNT_* environment
// variables and command-line flags, in increasing order of priority.
package config

import (
	"time"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

const (
	defaultBaseURL           = "https://www.ecfr.gov"
	defaultUserAgent         = "regcount/1.0"
	defaultDelay             = 200 * time.Millisecond
	defaultTimeout           = 240 * time.Second
	defaultLargeTitleTimeout = 600 * time.Second
	defaultMaxRetries        = 3
	defaultWorkers           = 4
	defaultRunTimeout        = 2 * time.Hour

	defaultCacheDir      = ".cache/regcount"
	defaultRedisAddr     = "localhost:6379"
	defaultKeyPrefix     = "regcount:"
	defaultEngineVersion = "1"

	defaultMaxTitles         = 5
	defaultCollapseThreshold = 2.0
	defaultCollapseMinRows   = 10
	defaultFromYear          = 2022
	defaultToYear            = 2024

	defaultPort         = 8080
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 15 * time.Minute
	defaultIdleTimeout  = 60 * time.Second

	defaultWarmSpec = "0 3 * * *"

	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 60 * time.Second
)

// DefaultLargeTitles are titles whose full text routinely exceeds the
// versioner API's response budget.
var DefaultLargeTitles = []int{7, 10, 40, 42, 45}

// Config is the root configuration.
type Config struct {
	API       APIConfig       `yaml:"api" mapstructure:"api"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Logging   logger.Config   `yaml:"logging" mapstructure:"logging"`
	Breaker   BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
}

// APIConfig locates the eCFR API.
type APIConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url" env:"REGCOUNT_API_BASE_URL"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent" env:"REGCOUNT_API_USER_AGENT"`
}

// FetchConfig controls outbound requests and the per-title retry policy.
type FetchConfig struct {
	// Delay is the minimum spacing between outbound requests.
	Delay             time.Duration `yaml:"delay" mapstructure:"delay" env:"REGCOUNT_FETCH_DELAY"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout" env:"REGCOUNT_FETCH_TIMEOUT"`
	LargeTitleTimeout time.Duration `yaml:"large_title_timeout" mapstructure:"large_title_timeout" env:"REGCOUNT_FETCH_LARGE_TITLE_TIMEOUT"`
	MaxRetries        int           `yaml:"max_retries" mapstructure:"max_retries" env:"REGCOUNT_FETCH_MAX_RETRIES"`
	// RetryBackoff is the first backoff; zero means twice the delay.
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff" env:"REGCOUNT_FETCH_RETRY_BACKOFF"`
	Workers      int           `yaml:"workers" mapstructure:"workers" env:"REGCOUNT_FETCH_WORKERS"`
	RunTimeout   time.Duration `yaml:"run_timeout" mapstructure:"run_timeout" env:"REGCOUNT_FETCH_RUN_TIMEOUT"`
}

// InitialBackoff returns the first retry delay, never below twice the request delay.
func (c FetchConfig) InitialBackoff() time.Duration {
	floor := 2 * c.Delay
	if c.RetryBackoff > floor {
		return c.RetryBackoff
	}
	if floor <= 0 {
		return time.Second
	}
	return floor
}

// CacheConfig selects and configures the document cache backend.
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled" env:"REGCOUNT_CACHE_ENABLED"`
	Backend       string        `yaml:"backend" mapstructure:"backend" env:"REGCOUNT_CACHE_BACKEND"`
	Dir           string        `yaml:"dir" mapstructure:"dir" env:"REGCOUNT_CACHE_DIR"`
	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr" env:"REGCOUNT_CACHE_REDIS_ADDR"`
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password" env:"REGCOUNT_CACHE_REDIS_PASSWORD"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db" env:"REGCOUNT_CACHE_REDIS_DB"`
	KeyPrefix     string        `yaml:"key_prefix" mapstructure:"key_prefix" env:"REGCOUNT_CACHE_KEY_PREFIX"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl" env:"REGCOUNT_CACHE_TTL"`
	EngineVersion string        `yaml:"engine_version" mapstructure:"engine_version" env:"REGCOUNT_CACHE_ENGINE_VERSION"`
}

// AnalysisConfig scopes a run.
type AnalysisConfig struct {
	// AsOf is YYYY-MM-DD; empty means today.
	AsOf              string  `yaml:"as_of" mapstructure:"as_of" env:"REGCOUNT_ANALYSIS_AS_OF"`
	MaxTitles         int     `yaml:"max_titles" mapstructure:"max_titles" env:"REGCOUNT_ANALYSIS_MAX_TITLES"`
	SkipLargeTitles   bool    `yaml:"skip_large_titles" mapstructure:"skip_large_titles" env:"REGCOUNT_ANALYSIS_SKIP_LARGE_TITLES"`
	LargeTitles       []int   `yaml:"large_titles" mapstructure:"large_titles" env:"REGCOUNT_ANALYSIS_LARGE_TITLES"`
	SkipReserved      bool    `yaml:"skip_reserved" mapstructure:"skip_reserved" env:"REGCOUNT_ANALYSIS_SKIP_RESERVED"`
	CollapseThreshold float64 `yaml:"collapse_threshold" mapstructure:"collapse_threshold" env:"REGCOUNT_ANALYSIS_COLLAPSE_THRESHOLD"`
	CollapseMinRows   int     `yaml:"collapse_min_rows" mapstructure:"collapse_min_rows" env:"REGCOUNT_ANALYSIS_COLLAPSE_MIN_ROWS"`
	FromYear          int     `yaml:"from_year" mapstructure:"from_year" env:"REGCOUNT_ANALYSIS_FROM_YEAR"`
	ToYear            int     `yaml:"to_year" mapstructure:"to_year" env:"REGCOUNT_ANALYSIS_TO_YEAR"`
}

// AsOfDate resolves AsOf against now.
func (c AnalysisConfig) AsOfDate(now time.Time) (time.Time, error) {
	if c.AsOf == "" {
		y, m, d := now.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return domain.ParseDate(c.AsOf)
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port" env:"REGCOUNT_SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" env:"REGCOUNT_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" env:"REGCOUNT_SERVER_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" env:"REGCOUNT_SERVER_IDLE_TIMEOUT"`
}

// SchedulerConfig configures the cache warmer.
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" env:"REGCOUNT_SCHEDULER_ENABLED"`
	Spec    string `yaml:"spec" mapstructure:"spec" env:"REGCOUNT_SCHEDULER_SPEC"`
}

// BreakerConfig configures the upstream circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled" mapstructure:"enabled" env:"REGCOUNT_BREAKER_ENABLED"`
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold" env:"REGCOUNT_BREAKER_FAILURE_THRESHOLD"`
	Cooldown         time.Duration `yaml:"cooldown" mapstructure:"cooldown" env:"REGCOUNT_BREAKER_COOLDOWN"`
}

// New returns a Config populated with defaults.
func New() *Config {
	cfg := &Config{
		Fetch:    FetchConfig{Delay: defaultDelay},
		Cache:    CacheConfig{Enabled: true},
		Analysis: AnalysisConfig{SkipLargeTitles: true, SkipReserved: true},
		Breaker:  BreakerConfig{Enabled: true},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero-valued fields. Booleans and the fetch delay are
// left alone because their zero values are meaningful; New seeds them.
func (c *Config) SetDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = defaultUserAgent
	}

	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = defaultTimeout
	}
	if c.Fetch.LargeTitleTimeout == 0 {
		c.Fetch.LargeTitleTimeout = defaultLargeTitleTimeout
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = defaultMaxRetries
	}
	if c.Fetch.Workers == 0 {
		c.Fetch.Workers = defaultWorkers
	}
	if c.Fetch.RunTimeout == 0 {
		c.Fetch.RunTimeout = defaultRunTimeout
	}

	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendFile
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = defaultCacheDir
	}
	if c.Cache.RedisAddr == "" {
		c.Cache.RedisAddr = defaultRedisAddr
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = defaultKeyPrefix
	}
	if c.Cache.EngineVersion == "" {
		c.Cache.EngineVersion = defaultEngineVersion
	}

	if c.Analysis.MaxTitles == 0 {
		c.Analysis.MaxTitles = defaultMaxTitles
	}
	if c.Analysis.LargeTitles == nil {
		c.Analysis.LargeTitles = append([]int(nil), DefaultLargeTitles...)
	}
	if c.Analysis.CollapseThreshold == 0 {
		c.Analysis.CollapseThreshold = defaultCollapseThreshold
	}
	if c.Analysis.CollapseMinRows == 0 {
		c.Analysis.CollapseMinRows = defaultCollapseMinRows
	}
	if c.Analysis.FromYear == 0 {
		c.Analysis.FromYear = defaultFromYear
	}
	if c.Analysis.ToYear == 0 {
		c.Analysis.ToYear = defaultToYear
	}

	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = defaultIdleTimeout
	}

	if c.Scheduler.Spec == "" {
		c.Scheduler.Spec = defaultWarmSpec
	}

	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = defaultBreakerThreshold
	}
	if c.Breaker.Cooldown == 0 {
		c.Breaker.Cooldown = defaultBreakerCooldown
	}

	c.Logging.SetDefaults()
}

// IsLargeTitle reports whether n is in the configured large-title list.
func (c AnalysisConfig) IsLargeTitle(n int) bool {
	for _, t := range c.LargeTitles {
		if t == n {
			return true
		}
	}
	return false
}
