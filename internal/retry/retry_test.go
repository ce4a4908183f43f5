package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/retry"
)

func fastConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		if calls < 3 {
			return domain.NewStatusError("u", 504)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return domain.NewStatusError("u", 404)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.NotErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	var retries []int
	cfg := fastConfig()
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) {
		retries = append(retries, attempt)
	}

	err := retry.Do(context.Background(), cfg, func(context.Context) error {
		return domain.NewStatusError("u", 503)
	})

	require.ErrorIs(t, err, retry.ErrMaxAttemptsExceeded)
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 503, fe.Status)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour
	cfg.OnRetry = func(int, time.Duration, error) { cancel() }

	err := retry.Do(ctx, cfg, func(context.Context) error {
		return domain.NewStatusError("u", 504)
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoff_CapsAtMaxDelay(t *testing.T) {
	t.Parallel()

	cfg := retry.Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, cfg.Backoff(1))
	assert.Equal(t, 2*time.Second, cfg.Backoff(2))
	assert.Equal(t, 3*time.Second, cfg.Backoff(3))
}

func TestDo_CustomClassifier(t *testing.T) {
	t.Parallel()

	errFlaky := errors.New("flaky")
	cfg := fastConfig()
	cfg.IsRetryable = func(err error) bool { return errors.Is(err, errFlaky) }

	calls := 0
	err := retry.Do(context.Background(), cfg, func(context.Context) error {
		calls++
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}
