package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// BindDefaults registers every default with v so AutomaticEnv can resolve
// REGCOUNT_* overrides for keys that appear in no config file.
func BindDefaults(v *viper.Viper) {
	d := New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.user_agent", d.API.UserAgent)

	v.SetDefault("fetch.delay", d.Fetch.Delay)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.large_title_timeout", d.Fetch.LargeTitleTimeout)
	v.SetDefault("fetch.max_retries", d.Fetch.MaxRetries)
	v.SetDefault("fetch.retry_backoff", d.Fetch.RetryBackoff)
	v.SetDefault("fetch.workers", d.Fetch.Workers)
	v.SetDefault("fetch.run_timeout", d.Fetch.RunTimeout)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.redis_addr", d.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.engine_version", d.Cache.EngineVersion)

	v.SetDefault("analysis.as_of", d.Analysis.AsOf)
	v.SetDefault("analysis.max_titles", d.Analysis.MaxTitles)
	v.SetDefault("analysis.skip_large_titles", d.Analysis.SkipLargeTitles)
	v.SetDefault("analysis.large_titles", d.Analysis.LargeTitles)
	v.SetDefault("analysis.skip_reserved", d.Analysis.SkipReserved)
	v.SetDefault("analysis.collapse_threshold", d.Analysis.CollapseThreshold)
	v.SetDefault("analysis.collapse_min_rows", d.Analysis.CollapseMinRows)
	v.SetDefault("analysis.from_year", d.Analysis.FromYear)
	v.SetDefault("analysis.to_year", d.Analysis.ToYear)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)

	v.SetDefault("scheduler.enabled", d.Scheduler.Enabled)
	v.SetDefault("scheduler.spec", d.Scheduler.Spec)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.development", d.Logging.Development)
	v.SetDefault("logging.output_paths", d.Logging.OutputPaths)

	v.SetDefault("breaker.enabled", d.Breaker.Enabled)
	v.SetDefault("breaker.failure_threshold", d.Breaker.FailureThreshold)
	v.SetDefault("breaker.cooldown", d.Breaker.Cooldown)
}

// FromViper decodes v into a validated Config.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := New()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
