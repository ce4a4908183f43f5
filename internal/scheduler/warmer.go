// Package scheduler keeps the word-count cache warm by running the default
// analysis on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/regcount/internal/engine"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

// ErrAlreadyRunning is returned by RunOnce while a warm-up is in progress.
var ErrAlreadyRunning = errors.New("warm-up already running")

// Analyzer runs one analysis. *engine.Engine satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, asOf time.Time) (*engine.Report, error)
}

// AsOfFunc resolves the as-of date for a run started at now.
type AsOfFunc func(now time.Time) (time.Time, error)

// Warmer triggers Analyze on a cron schedule. Overlapping runs are skipped.
type Warmer struct {
	spec     string
	analyzer Analyzer
	asOf     AsOfFunc
	log      logger.Logger
	cron     *cron.Cron
	entry    cron.EntryID

	mu      sync.Mutex
	running bool
	ctx     context.Context
	last    *engine.Report
}

// New validates spec (standard five-field cron) and creates a Warmer.
func New(spec string, analyzer Analyzer, asOf AsOfFunc, log logger.Logger) (*Warmer, error) {
	w := &Warmer{
		spec:     spec,
		analyzer: analyzer,
		asOf:     asOf,
		log:      log.With(logger.Component("scheduler")),
		ctx:      context.Background(),
	}
	w.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{w.log}),
	)

	id, err := w.cron.AddFunc(spec, w.tick)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	w.entry = id
	return w, nil
}

// Start begins scheduling. Runs use ctx and stop being started once it ends.
func (w *Warmer) Start(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.cron.Start()
	w.log.Info("cache warmer started",
		logger.String("schedule", w.spec),
		logger.Time("next_run", w.Next()),
	)

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
}

// Stop halts scheduling and waits for a running warm-up to finish.
func (w *Warmer) Stop() {
	<-w.cron.Stop().Done()
}

// Next returns the next scheduled run time after now.
func (w *Warmer) Next() time.Time {
	return w.cron.Entry(w.entry).Schedule.Next(time.Now().UTC())
}

// Last returns the report of the most recent successful run, if any.
func (w *Warmer) Last() *engine.Report {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *Warmer) tick() {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if err := w.RunOnce(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
		w.log.Error("scheduled warm-up failed", logger.Error(err))
	}
}

// RunOnce runs one warm-up now.
func (w *Warmer) RunOnce(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.log.Warn("skipping warm-up, previous run still in progress")
		return ErrAlreadyRunning
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	start := time.Now()
	asOf, err := w.asOf(start)
	if err != nil {
		return fmt.Errorf("resolve as-of date: %w", err)
	}

	report, err := w.analyzer.Analyze(ctx, asOf)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.last = report
	w.mu.Unlock()

	w.log.Info("warm-up complete",
		logger.String("run_id", report.Manifest.RunID),
		logger.Int("titles", len(report.Titles)),
		logger.Int("skipped", len(report.Manifest.Skipped)),
		logger.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(kv []any) []logger.Field {
	out := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		out = append(out, logger.Any(key, kv[i+1]))
	}
	return out
}
