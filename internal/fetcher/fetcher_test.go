package fetcher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/fetcher"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

type recordingObserver struct {
	mu       sync.Mutex
	statuses []int
}

func (r *recordingObserver) ObserveFetch(status int, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func TestFetch_ReturnsBody(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<TITLE>hello world</TITLE>"))
	}))
	t.Cleanup(srv.Close)

	obs := &recordingObserver{}
	f := fetcher.New(fetcher.Config{UserAgent: "regcount-test"}, logger.NewNop(), fetcher.WithObserver(obs))

	body, err := f.Fetch(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "<TITLE>hello world</TITLE>", string(body))
	assert.Equal(t, "regcount-test", gotUA)
	assert.Equal(t, []int{http.StatusOK}, obs.statuses)
}

func TestFetch_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{name: "gateway timeout", status: http.StatusGatewayTimeout, retryable: true},
		{name: "too many requests", status: http.StatusTooManyRequests, retryable: true},
		{name: "not found", status: http.StatusNotFound, retryable: false},
		{name: "bad request", status: http.StatusBadRequest, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			f := fetcher.New(fetcher.Config{}, logger.NewNop())
			_, err := f.Fetch(context.Background(), srv.URL, time.Second)

			var fe *domain.FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.status, fe.Status)
			assert.Equal(t, tt.retryable, fe.Retryable)
		})
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	t.Parallel()

	const doc = "<a>one two three four five six</a>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	t.Cleanup(srv.Close)

	t.Run("over limit", func(t *testing.T) {
		t.Parallel()

		obs := &recordingObserver{}
		f := fetcher.New(fetcher.Config{MaxBodyBytes: 12}, logger.NewNop(), fetcher.WithObserver(obs))
		body, err := f.Fetch(context.Background(), srv.URL, time.Second)

		assert.Nil(t, body)
		var fe *domain.FetchError
		require.ErrorAs(t, err, &fe)
		require.ErrorIs(t, err, domain.ErrBodyTooLarge)
		assert.False(t, fe.Retryable)
		assert.False(t, domain.IsRetryable(err))
		assert.Equal(t, []int{http.StatusOK}, obs.statuses)
	})

	t.Run("exactly at limit", func(t *testing.T) {
		t.Parallel()

		f := fetcher.New(fetcher.Config{MaxBodyBytes: int64(len(doc))}, logger.NewNop())
		body, err := f.Fetch(context.Background(), srv.URL, time.Second)
		require.NoError(t, err)
		assert.Equal(t, doc, string(body))
	})
}

func TestFetch_TimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	defer close(release)

	f := fetcher.New(fetcher.Config{}, logger.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL, 20*time.Millisecond)

	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.Status)
	assert.True(t, fe.Retryable)
}

func TestFetch_RateGateSpacesRequests(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var arrivals []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	const delay = 40 * time.Millisecond
	f := fetcher.New(fetcher.Config{Delay: delay}, logger.NewNop())

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.Fetch(context.Background(), srv.URL, time.Second)
		}()
	}
	wg.Wait()

	require.Len(t, arrivals, 3)
	first, last := arrivals[0], arrivals[0]
	for _, a := range arrivals {
		if a.Before(first) {
			first = a
		}
		if a.After(last) {
			last = a
		}
	}
	// three requests need at least two gaps
	assert.GreaterOrEqual(t, last.Sub(first), 2*delay-5*time.Millisecond)
}

func TestFetch_CancelledWhileWaitingForGate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	t.Cleanup(srv.Close)

	f := fetcher.New(fetcher.Config{Delay: time.Hour}, logger.NewNop())
	_, err := f.Fetch(context.Background(), srv.URL, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, srv.URL, time.Second)
	require.Error(t, err)
}
