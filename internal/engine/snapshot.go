package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/jonesrussell/north-cloud/regcount/internal/cache"
	"github.com/jonesrussell/north-cloud/regcount/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
	"github.com/jonesrussell/north-cloud/regcount/internal/parser"
	"github.com/jonesrussell/north-cloud/regcount/internal/retry"
	"github.com/jonesrussell/north-cloud/regcount/internal/worker"
)

// Snapshot holds the word counts gathered for one as-of date.
type Snapshot struct {
	AsOf  time.Time
	Facts *Facts
	// Counts holds one fact per successfully counted title.
	Counts map[int]domain.WordCount
	// Attempted lists every title in scope, counted or not, ascending.
	Attempted []int
	Manifest  domain.Manifest
}

// Count returns the word count for title, if it was counted.
func (s *Snapshot) Count(title int) (domain.WordCount, bool) {
	wc, ok := s.Counts[title]
	return wc, ok
}

func (s *Snapshot) attempted(title int) bool {
	_, found := slices.BinarySearch(s.Attempted, title)
	return found
}

type titleOutcome struct {
	count domain.WordCount
	skip  *domain.Skip
}

// Snapshot counts words for titles as they stood at asOf. Titles are
// processed concurrently by the worker pool, bounded by the run timeout.
// Failures and policy skips land in the manifest; nothing here is fatal.
func (e *Engine) Snapshot(ctx context.Context, facts *Facts, asOf time.Time, titles []int) *Snapshot {
	start := e.now()
	if e.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RunTimeout)
		defer cancel()
	}

	attempted := slices.Clone(titles)
	slices.Sort(attempted)
	attempted = slices.Compact(attempted)

	snap := &Snapshot{
		AsOf:      asOf,
		Facts:     facts,
		Counts:    make(map[int]domain.WordCount, len(attempted)),
		Attempted: attempted,
		Manifest: domain.Manifest{
			RunID:       e.newRunID(),
			GeneratedAt: start.UTC(),
			Warnings:    facts.Warnings(),
		},
	}

	pool := worker.NewPool[int, titleOutcome](e.cfg.Workers)
	for res := range pool.Run(ctx, attempted, func(ctx context.Context, n int) (titleOutcome, error) {
		return e.processTitle(ctx, facts, asOf, n)
	}) {
		switch {
		case res.Err != nil:
			skip := e.failureSkip(ctx, res.Task, asOf, res.Err)
			snap.Manifest.Add(skip)
			e.observeTitle(skip.Cause)
		case res.Value.skip != nil:
			snap.Manifest.Add(*res.Value.skip)
			e.observeTitle(res.Value.skip.Cause)
		default:
			snap.Counts[res.Task] = res.Value.count
			e.observeTitle("")
		}
	}

	slices.SortFunc(snap.Manifest.Skipped, func(a, b domain.Skip) int { return a.Title - b.Title })

	var runErr error
	if err := ctx.Err(); err != nil {
		runErr = err
		e.log.Warn("run ended early", logger.Error(err))
	}
	if e.observer != nil {
		e.observer.ObserveRun(e.now().Sub(start), runErr)
	}

	e.log.Info("snapshot complete",
		logger.String("run_id", snap.Manifest.RunID),
		logger.String("as_of", domain.FormatDate(asOf)),
		logger.Int("titles", len(attempted)),
		logger.Int("counted", len(snap.Counts)),
		logger.Int("skipped", len(snap.Manifest.Skipped)),
		logger.Duration("elapsed", e.now().Sub(start)),
	)
	return snap
}

// processTitle applies skip policy, then fetches, parses and caches one
// title. A returned error is a per-title failure.
func (e *Engine) processTitle(ctx context.Context, facts *Facts, asOf time.Time, n int) (titleOutcome, error) {
	meta, ok := facts.Title(n)
	if !ok {
		return skipOutcome(domain.CauseUnknownTitle, n, asOf, "title not in title metadata"), nil
	}
	if meta.Reserved && e.cfg.SkipReserved {
		return skipOutcome(domain.CauseReserved, n, asOf, "title is reserved"), nil
	}
	if e.cfg.SkipLargeTitles && slices.Contains(e.cfg.LargeTitles, n) {
		return skipOutcome(domain.CauseSkippedLarge, n, asOf, "known large title skipped"), nil
	}

	date := meta.EffectiveDate(asOf)
	key := cache.Key{
		Kind:          cache.KindWordCount,
		Resource:      "title-" + strconv.Itoa(n),
		AsOf:          domain.FormatDate(date),
		EngineVersion: e.cfg.EngineVersion,
	}

	raw, err := e.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		body, err := e.fetchTitle(ctx, date, n)
		if err != nil {
			return nil, err
		}
		parseStart := time.Now()
		words, err := parser.CountWords(body)
		if err != nil {
			return nil, err
		}
		if e.observer != nil {
			e.observer.ObserveParse(words, time.Since(parseStart))
		}
		return strconv.AppendInt(nil, words, 10), nil
	})
	if err != nil {
		return titleOutcome{}, err
	}

	words, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || words < 0 {
		return titleOutcome{}, &domain.ParseError{Reason: fmt.Errorf("corrupt cached count %q", raw), Size: len(raw)}
	}
	return titleOutcome{count: domain.WordCount{Title: n, AsOf: date, Count: words}}, nil
}

func (e *Engine) fetchTitle(ctx context.Context, date time.Time, n int) ([]byte, error) {
	cfg := e.cfg.Retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		e.log.Warn("retrying title fetch",
			logger.Int("title", n),
			logger.Int("attempt", attempt),
			logger.Duration("backoff", delay),
			logger.Error(err),
		)
	}

	var body []byte
	err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		var fetchErr error
		body, fetchErr = e.source.FullText(ctx, date, n)
		return fetchErr
	})
	return body, err
}

func (e *Engine) failureSkip(ctx context.Context, title int, asOf time.Time, err error) domain.Skip {
	cause := domain.CauseOf(err)
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		cause = domain.CauseCircuitOpen
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		// the run ended, not the request
		cause = domain.CauseCancelled
	}
	e.log.Warn("title skipped",
		logger.Int("title", title),
		logger.String("cause", string(cause)),
		logger.Error(err),
	)
	return domain.Skip{
		Cause:  cause,
		Title:  title,
		Date:   domain.FormatDate(asOf),
		Reason: err.Error(),
	}
}

func skipOutcome(cause domain.SkipCause, title int, asOf time.Time, reason string) titleOutcome {
	return titleOutcome{skip: &domain.Skip{
		Cause:  cause,
		Title:  title,
		Date:   domain.FormatDate(asOf),
		Reason: reason,
	}}
}

func (e *Engine) observeTitle(cause domain.SkipCause) {
	if e.observer != nil {
		e.observer.ObserveTitle(cause)
	}
}
