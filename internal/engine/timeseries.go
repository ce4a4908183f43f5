package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
)

// Earliest year the versioner API serves full text for.
const MinSeriesYear = 2010

// PointStatus qualifies a time-series value.
type PointStatus string

const (
	// PointAvailable means every referenced title was counted.
	PointAvailable PointStatus = "available"
	// PointPartial means some titles were counted and some failed.
	PointPartial PointStatus = "partial"
	// PointUnavailable means no count exists; Words carries no meaning.
	PointUnavailable PointStatus = "unavailable"
)

// SeriesPoint is an agency's with-subagencies total at one date.
type SeriesPoint struct {
	Date    time.Time   `json:"date"`
	Status  PointStatus `json:"status"`
	Words   int64       `json:"words"`
	Titles  []int       `json:"titles"`
	Missing []int       `json:"missing,omitempty"`
}

// Available reports whether the point carries a number.
func (p SeriesPoint) Available() bool { return p.Status != PointUnavailable }

// TimeSeries is one agency's word count across dates.
type TimeSeries struct {
	Agency   domain.Agency   `json:"agency"`
	Points   []SeriesPoint   `json:"points"`
	Manifest domain.Manifest `json:"manifest"`
}

// TimeSeries counts the agency's subtree titles at every date. Dates are
// cached independently and run with bounded concurrency. A date where no
// title could be counted is Unavailable, never zero.
func (e *Engine) TimeSeries(ctx context.Context, facts *Facts, slug string, dates []time.Time) (*TimeSeries, error) {
	agency, ok := facts.Forest.Agency(slug)
	if !ok {
		return nil, unknownAgency(slug)
	}
	titles := facts.Mapping.SubtreeTitles(slug)

	ts := &TimeSeries{
		Agency: agency,
		Points: make([]SeriesPoint, len(dates)),
		Manifest: domain.Manifest{
			RunID:       e.newRunID(),
			GeneratedAt: e.now().UTC(),
			Warnings:    facts.Warnings(),
		},
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.DateConcurrency)

	for i, date := range dates {
		g.Go(func() error {
			if len(titles) == 0 {
				mu.Lock()
				ts.Points[i] = SeriesPoint{Date: date, Status: PointUnavailable, Titles: []int{}}
				ts.Manifest.Skipped = append(ts.Manifest.Skipped, domain.Skip{
					Cause:  domain.CauseMappingGap,
					Date:   domain.FormatDate(date),
					Agency: slug,
					Reason: "agency has no resolvable title references",
				})
				mu.Unlock()
				return nil
			}

			snap := e.Snapshot(gctx, facts, date, titles)
			point := seriesPoint(snap, agency, titles)

			mu.Lock()
			ts.Points[i] = point
			ts.Manifest.Skipped = append(ts.Manifest.Skipped, snap.Manifest.Skipped...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(ts.Manifest.Skipped, func(a, b domain.Skip) int {
		if a.Date != b.Date {
			if a.Date < b.Date {
				return -1
			}
			return 1
		}
		return a.Title - b.Title
	})
	return ts, nil
}

func seriesPoint(snap *Snapshot, agency domain.Agency, titles []int) SeriesPoint {
	total := totalFor(snap, agency, titles)
	p := SeriesPoint{
		Date:    snap.AsOf,
		Words:   total.Words,
		Titles:  total.Titles,
		Missing: total.Missing,
	}
	switch {
	case len(total.Titles) == 0:
		p.Status = PointUnavailable
		p.Words = 0
	case len(total.Missing) > 0:
		p.Status = PointPartial
	default:
		p.Status = PointAvailable
	}
	return p
}

// YearDates expands an inclusive year range to January 1 of each year.
// Years are bounded to MinSeriesYear and the current year.
func YearDates(from, to int, now time.Time) ([]time.Time, error) {
	current := now.UTC().Year()
	if from < MinSeriesYear || to > current {
		return nil, fmt.Errorf("year range must be within %d..%d", MinSeriesYear, current)
	}
	if from > to {
		return nil, fmt.Errorf("start year %d is after end year %d", from, to)
	}

	dates := make([]time.Time, 0, to-from+1)
	for y := from; y <= to; y++ {
		dates = append(dates, time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC))
	}
	return dates, nil
}
