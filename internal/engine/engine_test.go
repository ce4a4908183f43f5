package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regcount/internal/cache"
	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/engine"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
	"github.com/jonesrussell/north-cloud/regcount/internal/retry"
)

var asOf2025 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeSource serves generated documents: title n has words[n] words.
type fakeSource struct {
	mu        sync.Mutex
	records   []domain.AgencyRecord
	titles    []domain.Title
	words     map[int]int
	fail      map[int]error
	failDates map[string]bool
	flaky     map[int]int
	agencyErr error
	calls     map[int]int
	dates     map[int][]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		words:     map[int]int{},
		fail:      map[int]error{},
		failDates: map[string]bool{},
		flaky:     map[int]int{},
		calls:     map[int]int{},
		dates:     map[int][]string{},
	}
}

func (f *fakeSource) Agencies(context.Context) ([]domain.AgencyRecord, error) {
	return f.records, f.agencyErr
}

func (f *fakeSource) Titles(context.Context) ([]domain.Title, error) {
	return f.titles, nil
}

func (f *fakeSource) FullText(_ context.Context, date time.Time, title int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d := domain.FormatDate(date)
	f.calls[title]++
	f.dates[title] = append(f.dates[title], d)

	url := "https://example.test/title-" + d
	if f.failDates[d] {
		return nil, domain.NewStatusError(url, 404)
	}
	if err, ok := f.fail[title]; ok {
		return nil, err
	}
	if f.flaky[title] > 0 {
		f.flaky[title]--
		return nil, domain.NewStatusError(url, 504)
	}
	return []byte("<ECFR><P>" + strings.Repeat("word ", f.words[title]) + "</P></ECFR>"), nil
}

func (f *fakeSource) callCount(title int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[title]
}

func titlesMeta(nums ...int) []domain.Title {
	out := make([]domain.Title, 0, len(nums))
	for _, n := range nums {
		out = append(out, domain.Title{Number: n, Name: "Title name"})
	}
	return out
}

func ref(n int) domain.TitleReference { return domain.TitleReference{Title: n} }

func testEngine(src engine.Source, c *cache.Cache, mutate ...func(*engine.Config)) *engine.Engine {
	cfg := engine.Config{
		Workers:   3,
		MaxTitles: 50,
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	if c == nil {
		c = cache.Disabled(logger.NewNop())
	}
	return engine.New(cfg, src, c, logger.NewNop())
}

func load(t *testing.T, e *engine.Engine) *engine.Facts {
	t.Helper()
	facts, err := e.Load(context.Background())
	require.NoError(t, err)
	return facts
}

func TestSnapshot_PartialFailure(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(1, 2, 3, 4, 5, 42)
	for n := 1; n <= 5; n++ {
		src.words[n] = n * 10
	}
	src.fail[42] = domain.NewStatusError("https://example.test/42", 404)

	e := testEngine(src, nil)
	facts := load(t, e)
	snap := e.Snapshot(context.Background(), facts, asOf2025, []int{1, 2, 3, 4, 5, 42})

	totals := engine.TitleTotals(snap)
	require.Len(t, totals, 5)
	assert.Equal(t, int64(30), totals[2].Words)

	skip, ok := snap.Manifest.SkippedTitle(42)
	require.True(t, ok)
	assert.Equal(t, domain.CauseFetch, skip.Cause)
	assert.NotEmpty(t, snap.Manifest.RunID)
	assert.Equal(t, 1, src.callCount(42), "404 is not retried")
}

func TestAgencyTotals_DeduplicatesSharedTitles(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(7, 9)
	src.words[7] = 100
	src.words[9] = 5
	src.records = []domain.AgencyRecord{{
		Slug:       "parent",
		References: []domain.TitleReference{ref(7)},
		Children: []domain.AgencyRecord{
			{Slug: "child", References: []domain.TitleReference{ref(7), ref(9)}},
		},
	}}

	e := testEngine(src, nil)
	facts := load(t, e)
	snap := e.Snapshot(context.Background(), facts, asOf2025, []int{7, 9})

	full := byAgency(engine.AgencyTotals(snap, false))
	senior := byAgency(engine.AgencyTotals(snap, true))

	assert.Equal(t, int64(105), full["parent"].Words)
	assert.Equal(t, int64(100), senior["parent"].Words)
	assert.Equal(t, int64(105), full["child"].Words)
	assert.True(t, full["parent"].Complete())
}

func TestRootsOnly_ListsTopLevelAgencies(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(1, 2, 3)
	src.words[1] = 10
	src.words[2] = 20
	src.words[3] = 30
	src.records = []domain.AgencyRecord{
		{
			Slug:       "agriculture",
			References: []domain.TitleReference{ref(1)},
			Children: []domain.AgencyRecord{
				{Slug: "forest-service", References: []domain.TitleReference{ref(2)}},
			},
		},
		{Slug: "commerce", References: []domain.TitleReference{ref(3)}},
		{Slug: "orphan", ParentSlug: "missing", References: []domain.TitleReference{ref(3)}},
	}

	e := testEngine(src, nil)
	rep := e.AnalyzeFacts(context.Background(), load(t, e), asOf2025)

	roots := byAgency(rep.RootTotals)
	require.Len(t, roots, 3)
	assert.NotContains(t, roots, "forest-service")
	assert.Equal(t, int64(30), roots["agriculture"].Words, "sub-agency titles included")
	assert.Contains(t, roots, "orphan", "unknown parent makes a root")

	own := byAgency(engine.RootsOnly(rep.SeniorTotals))
	require.Len(t, own, 3)
	assert.Equal(t, int64(10), own["agriculture"].Words)
}

func TestAgencyTotals_ExcludesFailuresInsteadOfZeroing(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(1, 2)
	src.words[1] = 50
	src.fail[2] = errors.New("connection reset")
	src.records = []domain.AgencyRecord{{Slug: "a", References: []domain.TitleReference{ref(1), ref(2)}}}

	e := testEngine(src, nil)
	snap := e.Snapshot(context.Background(), load(t, e), asOf2025, []int{1, 2})

	row := byAgency(engine.AgencyTotals(snap, false))["a"]
	assert.Equal(t, int64(50), row.Words)
	assert.Equal(t, []int{1}, row.Titles)
	assert.Equal(t, []int{2}, row.Missing)
	assert.False(t, row.Complete())
}

func TestComposition_PercentagesSumToOne(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(1, 2, 3)
	src.words[1] = 7
	src.words[2] = 13
	src.words[3] = 29
	src.records = []domain.AgencyRecord{{
		Slug:       "agency",
		References: []domain.TitleReference{ref(1), ref(2)},
		Children:   []domain.AgencyRecord{{Slug: "sub", References: []domain.TitleReference{ref(3)}}},
	}}

	e := testEngine(src, nil)
	facts := load(t, e)
	comp, manifest, err := e.AgencyComposition(context.Background(), facts, "agency", asOf2025)
	require.NoError(t, err)
	assert.Empty(t, manifest.Skipped)

	assert.Equal(t, int64(49), comp.Total)
	require.Len(t, comp.Rows, 3)
	assert.Equal(t, 3, comp.Rows[0].Title, "largest share first")

	var sum float64
	var words int64
	for _, r := range comp.Rows {
		sum += r.Percent
		words += r.Words
	}
	assert.InDelta(t, 100.0, sum, 1e-6)
	assert.Equal(t, comp.Total, words)
}

func TestComposition_ZeroTotalIsEmpty(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(1)
	src.fail[1] = domain.NewStatusError("u", 404)
	src.records = []domain.AgencyRecord{{Slug: "a", References: []domain.TitleReference{ref(1)}}, {Slug: "gap"}}

	e := testEngine(src, nil)
	facts := load(t, e)

	comp, _, err := e.AgencyComposition(context.Background(), facts, "a", asOf2025)
	require.NoError(t, err)
	assert.Zero(t, comp.Total)
	assert.Empty(t, comp.Rows)

	comp, _, err = e.AgencyComposition(context.Background(), facts, "gap", asOf2025)
	require.NoError(t, err)
	assert.Empty(t, comp.Rows)

	_, _, err = e.AgencyComposition(context.Background(), facts, "nobody", asOf2025)
	require.ErrorIs(t, err, domain.ErrUnknownAgency)
}

func TestComposition_Collapse(t *testing.T) {
	t.Parallel()

	comp := engine.Composition{Total: 1000}
	// one dominant title and eleven small ones
	comp.Rows = append(comp.Rows, engine.CompositionRow{Title: 1, Words: 890, Percent: 89})
	for n := 2; n <= 12; n++ {
		comp.Rows = append(comp.Rows, engine.CompositionRow{Title: n, Words: 10, Percent: 1})
	}

	collapsed := comp.Collapse(2, 10)
	require.Len(t, collapsed.Rows, 2)
	other := collapsed.Rows[1]
	assert.Equal(t, engine.OtherTitlesName, other.Name)
	assert.Equal(t, int64(110), other.Words)
	assert.InDelta(t, 11.0, other.Percent, 1e-9)

	assert.Len(t, comp.Collapse(2, 20).Rows, 12, "too few rows to collapse")
	assert.InDelta(t, 33.33, engine.CompositionRow{Percent: 33.333333}.RoundedPercent(), 1e-9)
}

func TestTimeSeries_UnavailableDate(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(3)
	src.words[3] = 40
	src.failDates["2010-01-01"] = true
	src.records = []domain.AgencyRecord{{Slug: "a", References: []domain.TitleReference{ref(3)}}}

	e := testEngine(src, nil)
	facts := load(t, e)
	dates, err := engine.YearDates(2010, 2010, asOf2025)
	require.NoError(t, err)
	dates = append(dates, asOf2025)

	ts, err := e.TimeSeries(context.Background(), facts, "a", dates)
	require.NoError(t, err)
	require.Len(t, ts.Points, 2)

	assert.Equal(t, engine.PointUnavailable, ts.Points[0].Status)
	assert.False(t, ts.Points[0].Available())
	assert.Equal(t, engine.PointAvailable, ts.Points[1].Status)
	assert.Equal(t, int64(40), ts.Points[1].Words)
	require.Len(t, ts.Manifest.Skipped, 1)
	assert.Equal(t, "2010-01-01", ts.Manifest.Skipped[0].Date)
}

func TestTimeSeries_PartialAndGap(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(1, 2)
	src.words[1] = 10
	src.fail[2] = domain.NewStatusError("u", 500)
	src.records = []domain.AgencyRecord{
		{Slug: "a", References: []domain.TitleReference{ref(1), ref(2)}},
		{Slug: "empty"},
	}

	e := testEngine(src, nil)
	facts := load(t, e)

	ts, err := e.TimeSeries(context.Background(), facts, "a", []time.Time{asOf2025})
	require.NoError(t, err)
	assert.Equal(t, engine.PointPartial, ts.Points[0].Status)
	assert.Equal(t, int64(10), ts.Points[0].Words)
	assert.Equal(t, 3, src.callCount(2), "5xx is retried up to the attempt limit")

	asOf2024 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts, err = e.TimeSeries(context.Background(), facts, "empty", []time.Time{asOf2025, asOf2024})
	require.NoError(t, err)
	assert.Equal(t, engine.PointUnavailable, ts.Points[0].Status)
	assert.Equal(t, engine.PointUnavailable, ts.Points[1].Status)

	require.Len(t, ts.Manifest.Skipped, 2, "every unavailable date is listed")
	assert.Equal(t, "2024-01-01", ts.Manifest.Skipped[0].Date)
	assert.Equal(t, "2025-01-01", ts.Manifest.Skipped[1].Date)
	for _, skip := range ts.Manifest.Skipped {
		assert.Equal(t, domain.CauseMappingGap, skip.Cause)
		assert.Equal(t, "empty", skip.Agency)
	}
}

func TestSnapshot_RetriesGatewayTimeout(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(4)
	src.words[4] = 12
	src.flaky[4] = 2

	e := testEngine(src, nil)
	snap := e.Snapshot(context.Background(), load(t, e), asOf2025, []int{4})

	wc, ok := snap.Count(4)
	require.True(t, ok)
	assert.Equal(t, int64(12), wc.Count)
	assert.Equal(t, 3, src.callCount(4))
}

func TestSnapshot_SkipPolicies(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = []domain.Title{{Number: 35, Reserved: true}, {Number: 40}, {Number: 41}}
	src.words[41] = 3

	e := testEngine(src, nil, func(c *engine.Config) {
		c.SkipReserved = true
		c.SkipLargeTitles = true
		c.LargeTitles = []int{40}
	})
	snap := e.Snapshot(context.Background(), load(t, e), asOf2025, []int{35, 40, 41, 60})

	causes := map[int]domain.SkipCause{}
	for _, s := range snap.Manifest.Skipped {
		causes[s.Title] = s.Cause
	}
	assert.Equal(t, map[int]domain.SkipCause{
		35: domain.CauseReserved,
		40: domain.CauseSkippedLarge,
		60: domain.CauseUnknownTitle,
	}, causes)
	assert.Zero(t, src.callCount(35))
	assert.Zero(t, src.callCount(40))
	assert.Len(t, snap.Counts, 1)
}

func TestSnapshot_UsesEffectiveDateAndCache(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	amended := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	src.titles = []domain.Title{{Number: 5, LatestAmendedOn: amended}}
	src.words[5] = 8

	c := cache.New(cache.NewMemoryStore(0), logger.NewNop())
	e := testEngine(src, c)
	facts := load(t, e)

	first := e.Snapshot(context.Background(), facts, asOf2025, []int{5})
	second := e.Snapshot(context.Background(), facts, asOf2025.AddDate(0, 6, 0), []int{5})

	assert.Equal(t, 1, src.callCount(5), "both as-of dates resolve to the same effective date")
	assert.Equal(t, []string{"2023-06-01"}, src.dates[5])
	assert.Equal(t, first.Counts[5].Count, second.Counts[5].Count)
	assert.Equal(t, amended, first.Counts[5].AsOf)
}

func TestSnapshot_FailuresNotCached(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(6)
	src.fail[6] = domain.NewStatusError("u", 404)

	c := cache.New(cache.NewMemoryStore(0), logger.NewNop())
	e := testEngine(src, c)
	facts := load(t, e)

	e.Snapshot(context.Background(), facts, asOf2025, []int{6})
	delete(src.fail, 6)
	src.words[6] = 2
	snap := e.Snapshot(context.Background(), facts, asOf2025, []int{6})

	assert.Equal(t, int64(2), snap.Counts[6].Count)
	assert.Equal(t, 2, src.callCount(6))
}

func TestSnapshot_CancelledRunKeepsCompletedWork(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(1, 2)
	src.words[1] = 1
	src.words[2] = 2

	e := testEngine(src, nil)
	facts := load(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap := e.Snapshot(ctx, facts, asOf2025, []int{1, 2})

	assert.Empty(t, snap.Counts)
	require.Len(t, snap.Manifest.Skipped, 2)
	for _, s := range snap.Manifest.Skipped {
		assert.Equal(t, domain.CauseCancelled, s.Cause)
	}
}

func TestLoad_FoundationFailureIsFatal(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.agencyErr = domain.NewStatusError("https://example.test/agencies.json", 503)

	_, err := testEngine(src, nil).Analyze(context.Background(), asOf2025)
	require.ErrorIs(t, err, domain.ErrFoundationData)
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
}

func TestAnalyze_AppliesTitleLimit(t *testing.T) {
	t.Parallel()

	src := newFakeSource()
	src.titles = titlesMeta(1, 2, 3, 4)
	for n := 1; n <= 4; n++ {
		src.words[n] = n
	}
	src.records = []domain.AgencyRecord{{Slug: "a", References: []domain.TitleReference{ref(1), ref(4)}}, {Slug: "nothing"}}

	e := testEngine(src, nil, func(c *engine.Config) { c.MaxTitles = 2 })
	report, err := e.Analyze(context.Background(), asOf2025)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, report.Titles)
	assert.Len(t, report.TitleTotals, 2)
	a := byAgency(report.FullTotals)["a"]
	assert.Equal(t, int64(1), a.Words)
	assert.Empty(t, a.Missing, "title 4 is outside the run scope, not missing")

	var gaps []string
	for _, w := range report.Manifest.Warnings {
		if w.Cause == domain.CauseMappingGap {
			gaps = append(gaps, w.Agency)
		}
	}
	assert.Equal(t, []string{"nothing"}, gaps)
}

func TestYearDates(t *testing.T) {
	t.Parallel()

	dates, err := engine.YearDates(2022, 2024, asOf2025)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "2022-01-01", domain.FormatDate(dates[0]))

	_, err = engine.YearDates(2009, 2012, asOf2025)
	require.Error(t, err)
	_, err = engine.YearDates(2024, 2022, asOf2025)
	require.Error(t, err)
	_, err = engine.YearDates(2024, 2026, asOf2025)
	require.Error(t, err)
}

func byAgency(rows []engine.AgencyTotal) map[string]engine.AgencyTotal {
	out := make(map[string]engine.AgencyTotal, len(rows))
	for _, r := range rows {
		out[r.Agency.Slug] = r
	}
	return out
}
