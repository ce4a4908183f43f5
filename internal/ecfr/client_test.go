package ecfr_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regcount/internal/cache"
	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/ecfr"
	"github.com/jonesrussell/north-cloud/regcount/internal/fetcher"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

const agenciesJSON = `{"agencies":[
  {"name":"Department of Agriculture","short_name":"USDA","display_name":"Agriculture Department",
   "slug":"agriculture-department",
   "cfr_references":[{"title":7,"subtitle":"A"},{"title":2,"chapter":"IV"}],
   "children":[{"name":"Forest Service","slug":"forest-service","cfr_references":[{"title":36,"chapter":"II"}],"children":[]}]},
  {"name":"Federal Reserve System","slug":"federal-reserve-system","cfr_references":[{"title":12,"chapter":"II"}],"children":[]}
]}`

const titlesJSON = `{"titles":[
  {"number":2,"name":"Grants and Agreements","latest_amended_on":"2024-05-01","up_to_date_as_of":"2025-01-02","reserved":false},
  {"number":1,"name":"General Provisions","latest_amended_on":"2022-12-29","up_to_date_as_of":"2025-01-02","reserved":false},
  {"number":35,"name":"[Reserved]","latest_amended_on":null,"up_to_date_as_of":null,"reserved":true}
]}`

type upstream struct {
	*httptest.Server
	hits atomic.Int32
	path atomic.Value
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/admin/v1/agencies.json", func(w http.ResponseWriter, _ *http.Request) {
		u.hits.Add(1)
		_, _ = w.Write([]byte(agenciesJSON))
	})
	mux.HandleFunc("/api/versioner/v1/titles.json", func(w http.ResponseWriter, _ *http.Request) {
		u.hits.Add(1)
		_, _ = w.Write([]byte(titlesJSON))
	})
	mux.HandleFunc("/api/versioner/v1/full/", func(w http.ResponseWriter, r *http.Request) {
		u.hits.Add(1)
		u.path.Store(r.URL.Path)
		_, _ = w.Write([]byte("<ECFR><P>text</P></ECFR>"))
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func newClient(u *upstream, c *cache.Cache) *ecfr.Client {
	log := logger.NewNop()
	return ecfr.New(ecfr.Config{
		BaseURL:           u.URL + "/",
		Timeout:           time.Second,
		LargeTitleTimeout: 5 * time.Second,
		LargeTitles:       []int{40},
		EngineVersion:     "1",
	}, fetcher.New(fetcher.Config{}, log), c, log)
}

func TestClient_Agencies(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	records, err := newClient(u, cache.Disabled(logger.NewNop())).Agencies(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 2)
	usda := records[0]
	assert.Equal(t, "agriculture-department", usda.Slug)
	assert.Equal(t, "USDA", usda.ShortName)
	assert.Equal(t, []domain.TitleReference{{Title: 7, Subtitle: "A"}, {Title: 2, Chapter: "IV"}}, usda.References)
	require.Len(t, usda.Children, 1)
	assert.Equal(t, "forest-service", usda.Children[0].Slug)
}

func TestClient_TitlesSortedWithOptionalDates(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	titles, err := newClient(u, cache.Disabled(logger.NewNop())).Titles(context.Background())
	require.NoError(t, err)

	require.Len(t, titles, 3)
	assert.Equal(t, []int{1, 2, 35}, []int{titles[0].Number, titles[1].Number, titles[2].Number})
	assert.Equal(t, "2022-12-29", domain.FormatDate(titles[0].LatestAmendedOn))
	assert.True(t, titles[2].Reserved)
	assert.True(t, titles[2].LatestAmendedOn.IsZero())
}

func TestClient_ListsAreCached(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	c := newClient(u, cache.New(cache.NewMemoryStore(0), logger.NewNop()))

	for range 3 {
		_, err := c.Agencies(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), u.hits.Load())
}

func TestClient_FullText(t *testing.T) {
	t.Parallel()

	u := newUpstream(t)
	c := newClient(u, cache.Disabled(logger.NewNop()))

	body, err := c.FullText(context.Background(), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 3)
	require.NoError(t, err)
	assert.Equal(t, "<ECFR><P>text</P></ECFR>", string(body))
	assert.Equal(t, "/api/versioner/v1/full/2025-01-01/title-3.xml", u.path.Load())

	assert.Equal(t, 5*time.Second, c.TimeoutFor(40))
	assert.Equal(t, time.Second, c.TimeoutFor(3))
}

func TestClient_FoundationFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	log := logger.NewNop()
	c := ecfr.New(ecfr.Config{BaseURL: srv.URL, Timeout: time.Second}, fetcher.New(fetcher.Config{}, log), cache.Disabled(log), log)

	_, err := c.Titles(context.Background())
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusServiceUnavailable, fe.Status)
}
