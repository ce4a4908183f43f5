// Package common builds the dependencies shared by every command.
package common

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/regcount/internal/cache"
	"github.com/jonesrussell/north-cloud/regcount/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/regcount/internal/config"
	"github.com/jonesrussell/north-cloud/regcount/internal/ecfr"
	"github.com/jonesrussell/north-cloud/regcount/internal/engine"
	"github.com/jonesrussell/north-cloud/regcount/internal/fetcher"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
	"github.com/jonesrussell/north-cloud/regcount/internal/metrics"
	"github.com/jonesrussell/north-cloud/regcount/internal/retry"
)

// DebugKey is the viper key bound to the --debug flag.
const DebugKey = "debug"

// Deps holds the wired components. Use it instead of package globals.
type Deps struct {
	Config   *config.Config
	Logger   logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Breaker  *circuitbreaker.Breaker
	Cache    *cache.Cache
	Client   *ecfr.Client
	Engine   *engine.Engine
}

// Validate ensures the required dependencies are present.
func (d *Deps) Validate() error {
	if d.Config == nil {
		return ErrConfigRequired
	}
	if d.Logger == nil {
		return ErrLoggerRequired
	}
	return nil
}

// Close releases the cache backend and flushes the logger.
func (d *Deps) Close() {
	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			d.Logger.Warn("cache close failed", logger.Error(err))
		}
	}
	_ = d.Logger.Sync()
}

// LoadConfig decodes the global viper state and applies overrides, then
// validates the result.
func LoadConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if viper.GetBool(DebugKey) {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	if len(overrides) == 0 {
		return cfg, nil
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// NewDeps loads the configuration and wires logger, metrics, breaker,
// fetcher, cache, API client and engine.
func NewDeps(overrides ...func(*config.Config)) (*Deps, error) {
	cfg, err := LoadConfig(overrides...)
	if err != nil {
		return nil, err
	}
	return Build(cfg)
}

// Build wires the components for cfg.
func Build(cfg *config.Config) (*Deps, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	c, err := cache.FromConfig(cfg.Cache, log, cache.WithObserver(m))
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	fetchOpts := []fetcher.Option{fetcher.WithObserver(m)}
	var breaker *circuitbreaker.Breaker
	if cfg.Breaker.Enabled {
		breaker = newBreaker(cfg.Breaker, m, log)
		fetchOpts = append(fetchOpts, fetcher.WithGuard(breaker))
	}

	f := fetcher.New(fetcher.Config{
		Delay:     cfg.Fetch.Delay,
		Timeout:   cfg.Fetch.Timeout,
		UserAgent: cfg.API.UserAgent,
	}, log, fetchOpts...)

	client := ecfr.New(ecfr.Config{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.Fetch.Timeout,
		LargeTitleTimeout: cfg.Fetch.LargeTitleTimeout,
		LargeTitles:       cfg.Analysis.LargeTitles,
		EngineVersion:     cfg.Cache.EngineVersion,
	}, f, c, log)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Fetch.MaxRetries
	retryCfg.InitialDelay = cfg.Fetch.InitialBackoff()

	e := engine.New(engine.Config{
		Workers:         cfg.Fetch.Workers,
		MaxTitles:       cfg.Analysis.MaxTitles,
		SkipLargeTitles: cfg.Analysis.SkipLargeTitles,
		LargeTitles:     cfg.Analysis.LargeTitles,
		SkipReserved:    cfg.Analysis.SkipReserved,
		RunTimeout:      cfg.Fetch.RunTimeout,
		Retry:           retryCfg,
		EngineVersion:   cfg.Cache.EngineVersion,
	}, client, c, log, engine.WithObserver(m))

	log.Debug("dependencies ready",
		logger.String("base_url", cfg.API.BaseURL),
		logger.Bool("cache", c.Enabled()),
		logger.String("cache_backend", cfg.Cache.Backend),
		logger.Duration("delay", cfg.Fetch.Delay),
		logger.Int("workers", cfg.Fetch.Workers),
		logger.Bool("breaker", breaker != nil),
	)

	return &Deps{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Metrics:  m,
		Breaker:  breaker,
		Cache:    c,
		Client:   client,
		Engine:   e,
	}, nil
}

func newBreaker(cfg config.BreakerConfig, m *metrics.Metrics, log logger.Logger) *circuitbreaker.Breaker {
	bc := circuitbreaker.DefaultConfig()
	bc.FailureThreshold = cfg.FailureThreshold
	bc.Cooldown = cfg.Cooldown
	bc.OnStateChange = func(from, to circuitbreaker.State) {
		m.ObserveBreaker(from, to)
		log.Warn("circuit breaker state changed",
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
	return circuitbreaker.New(bc)
}
