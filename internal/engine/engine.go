// Package engine joins per-title word counts with the agency hierarchy and
// the agency-title mapping to produce agency totals, title totals, agency
// composition and agency time series.
//
// Work happens in two steps. Load retrieves the foundational facts (agency
// records and title metadata) and is the only step whose failure is fatal.
// Snapshot counts words for a set of titles at one as-of date; per-title
// failures are recorded in the snapshot's manifest and never abort the run.
// Every view is a pure function of Facts and a Snapshot, so views computed
// from the same snapshot always agree with each other.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/regcount/internal/cache"
	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/hierarchy"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
	"github.com/jonesrussell/north-cloud/regcount/internal/mapping"
	"github.com/jonesrussell/north-cloud/regcount/internal/retry"
)

// Source supplies the three upstream resources. *ecfr.Client satisfies it.
type Source interface {
	Agencies(ctx context.Context) ([]domain.AgencyRecord, error)
	Titles(ctx context.Context) ([]domain.Title, error)
	FullText(ctx context.Context, date time.Time, title int) ([]byte, error)
}

// Observer receives per-title and per-run measurements.
type Observer interface {
	ObserveTitle(cause domain.SkipCause)
	ObserveParse(words int64, elapsed time.Duration)
	ObserveRun(elapsed time.Duration, err error)
}

// Config scopes and tunes a run.
type Config struct {
	Workers         int
	MaxTitles       int
	SkipLargeTitles bool
	LargeTitles     []int
	SkipReserved    bool
	RunTimeout      time.Duration
	Retry           retry.Config
	EngineVersion   string
	// DateConcurrency bounds how many time-series dates run at once.
	DateConcurrency int
}

const (
	defaultWorkers         = 4
	defaultDateConcurrency = 2
	defaultEngineVersion   = "1"
)

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = defaultWorkers
	}
	if c.MaxTitles < domain.MinTitleNumber || c.MaxTitles > domain.MaxTitleNumber {
		c.MaxTitles = domain.MaxTitleNumber
	}
	if c.DateConcurrency < 1 {
		c.DateConcurrency = defaultDateConcurrency
	}
	if c.EngineVersion == "" {
		c.EngineVersion = defaultEngineVersion
	}
	return c
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg      Config
	source   Source
	cache    *cache.Cache
	log      logger.Logger
	observer Observer
	now      func() time.Time
	newRunID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver attaches a metrics observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine. c may be a disabled cache but not nil.
func New(cfg Config, src Source, c *cache.Cache, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg.withDefaults(),
		source:   src,
		cache:    c,
		log:      log.With(logger.Component("engine")),
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Cache returns the engine's document cache.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Facts is the structural input shared by every view of a run.
type Facts struct {
	Forest  *hierarchy.Forest
	Mapping *mapping.Mapping
	// Titles is sorted by number.
	Titles  []domain.Title
	byTitle map[int]domain.Title
}

// Title looks up title metadata.
func (f *Facts) Title(n int) (domain.Title, bool) {
	t, ok := f.byTitle[n]
	return t, ok
}

// Warnings lists structural issues: hierarchy repairs, dropped references
// and agencies without references.
func (f *Facts) Warnings() []domain.Skip {
	var out []domain.Skip
	for _, issue := range f.Forest.Issues() {
		out = append(out, issue.Skip())
	}
	out = append(out, f.Mapping.Issues()...)
	for _, slug := range f.Mapping.Gaps() {
		out = append(out, domain.Skip{
			Cause:  domain.CauseMappingGap,
			Agency: slug,
			Reason: "agency has no title references",
		})
	}
	return out
}

// NewFacts assembles facts from already-retrieved records and titles.
func NewFacts(records []domain.AgencyRecord, titles []domain.Title) *Facts {
	forest := hierarchy.Build(records)
	f := &Facts{
		Forest:  forest,
		Mapping: mapping.Resolve(forest, titles),
		Titles:  titles,
		byTitle: make(map[int]domain.Title, len(titles)),
	}
	for _, t := range titles {
		f.byTitle[t.Number] = t
	}
	return f
}

// Load retrieves agency records and title metadata. Either failing is fatal
// and wrapped with domain.ErrFoundationData.
func (e *Engine) Load(ctx context.Context) (*Facts, error) {
	records, err := e.source.Agencies(ctx)
	if err != nil {
		e.log.Error("agency list unavailable", logger.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrFoundationData, err)
	}
	titles, err := e.source.Titles(ctx)
	if err != nil {
		e.log.Error("title list unavailable", logger.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrFoundationData, err)
	}

	facts := NewFacts(records, titles)
	e.log.Info("facts loaded",
		logger.Int("agencies", facts.Forest.Len()),
		logger.Int("titles", len(titles)),
		logger.Int("warnings", len(facts.Warnings())),
	)
	return facts, nil
}

// SelectTitles applies the title limit: the first n titles in number order.
// Reserved titles count toward the limit and are skipped later.
func SelectTitles(facts *Facts, n int) []int {
	out := make([]int, 0, n)
	for _, t := range facts.Titles {
		if len(out) == n {
			break
		}
		out = append(out, t.Number)
	}
	return out
}
