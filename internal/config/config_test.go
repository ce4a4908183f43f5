package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regcount/internal/config"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	cfg := config.New()

	assert.Equal(t, "https://www.ecfr.gov", cfg.API.BaseURL)
	assert.Equal(t, 200*time.Millisecond, cfg.Fetch.Delay)
	assert.Equal(t, 240*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 5, cfg.Analysis.MaxTitles)
	assert.Equal(t, []int{7, 10, 40, 42, 45}, cfg.Analysis.LargeTitles)
	assert.True(t, cfg.Cache.Enabled)
	assert.True(t, cfg.Analysis.SkipLargeTitles)
	require.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{name: "too many titles", mutate: func(c *config.Config) { c.Analysis.MaxTitles = 51 }, field: "analysis.max_titles"},
		{name: "negative delay", mutate: func(c *config.Config) { c.Fetch.Delay = -time.Second }, field: "fetch.delay"},
		{name: "zero timeout", mutate: func(c *config.Config) { c.Fetch.Timeout = 0 }, field: "fetch.timeout"},
		{name: "unknown backend", mutate: func(c *config.Config) { c.Cache.Backend = "s3" }, field: "cache.backend"},
		{name: "bad as-of", mutate: func(c *config.Config) { c.Analysis.AsOf = "yesterday" }, field: "analysis.as_of"},
		{name: "bad cron", mutate: func(c *config.Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Spec = "whenever"
		}, field: "scheduler.spec"},
		{name: "relative base url", mutate: func(c *config.Config) { c.API.BaseURL = "/api" }, field: "api.base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.New()
			tt.mutate(cfg)

			err := cfg.Validate()
			var ve *config.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestInitialBackoff_NeverBelowTwiceDelay(t *testing.T) {
	t.Parallel()

	f := config.FetchConfig{Delay: time.Second, RetryBackoff: 500 * time.Millisecond}
	assert.Equal(t, 2*time.Second, f.InitialBackoff())

	f.RetryBackoff = 5 * time.Second
	assert.Equal(t, 5*time.Second, f.InitialBackoff())
}

func TestAsOfDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 4, 15, 30, 0, 0, time.UTC)
	got, err := config.AnalysisConfig{}.AsOfDate(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), got)

	got, err = config.AnalysisConfig{AsOf: "2024-01-01"}.AsOfDate(now)
	require.NoError(t, err)
	assert.Equal(t, 2024, got.Year())
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
fetch:
  delay: 500ms
  workers: 2
cache:
  enabled: false
  backend: memory
analysis:
  max_titles: 10
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("REGCOUNT_ANALYSIS_MAX_TITLES", "12")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.Delay)
	assert.Equal(t, 2, cfg.Fetch.Workers)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, config.BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 12, cfg.Analysis.MaxTitles)
	assert.True(t, cfg.Analysis.SkipReserved)
}

func TestLoad_EnvLists(t *testing.T) {
	t.Setenv("REGCOUNT_ANALYSIS_LARGE_TITLES", "40, 42")
	t.Setenv("REGCOUNT_FETCH_DELAY", "1s")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, []int{40, 42}, cfg.Analysis.LargeTitles)
	assert.Equal(t, time.Second, cfg.Fetch.Delay)
	assert.True(t, cfg.Analysis.IsLargeTitle(42))
	assert.False(t, cfg.Analysis.IsLargeTitle(7))
}

func TestLoad_MalformedEnv(t *testing.T) {
	t.Setenv("REGCOUNT_FETCH_WORKERS", "four")
	t.Setenv("REGCOUNT_FETCH_TIMEOUT", "soon")

	_, err := config.Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REGCOUNT_FETCH_WORKERS")
	assert.Contains(t, err.Error(), "REGCOUNT_FETCH_TIMEOUT")
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	config.BindDefaults(v)
	t.Setenv("REGCOUNT_FETCH_WORKERS", "7")
	v.Set("cache.backend", config.BackendRedis)

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Fetch.Workers)
	assert.Equal(t, config.BackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 240*time.Second, cfg.Fetch.Timeout)
}
