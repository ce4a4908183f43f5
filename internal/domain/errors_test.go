package domain_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNewStatusError_Retryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusTooManyRequests, true},
		{http.StatusNotFound, false},
		{http.StatusBadRequest, false},
		{http.StatusForbidden, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			t.Parallel()
			err := domain.NewStatusError("https://example.test/x", tt.status)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.retryable, domain.IsRetryable(fmt.Errorf("wrapped: %w", err)))
		})
	}
}

func TestNewTransportError_TimeoutIsRetryable(t *testing.T) {
	t.Parallel()

	timeout := domain.NewTransportError("u", fmt.Errorf("get: %w", context.DeadlineExceeded))
	assert.True(t, timeout.Retryable)

	refused := domain.NewTransportError("u", errors.New("dial tcp: connection refused"))
	assert.False(t, refused.Retryable)
}

func TestCauseOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.CauseParse, domain.CauseOf(&domain.ParseError{Reason: domain.ErrEmptyDocument}))
	assert.Equal(t, domain.CauseFetch, domain.CauseOf(domain.NewStatusError("u", http.StatusNotFound)))
	assert.Equal(t, domain.CauseCancelled, domain.CauseOf(fmt.Errorf("run: %w", context.Canceled)))
}

func TestParseError_UnwrapsReason(t *testing.T) {
	t.Parallel()

	err := &domain.ParseError{Reason: domain.ErrNonText, Size: 12}
	assert.ErrorIs(t, err, domain.ErrNonText)
	assert.Contains(t, err.Error(), "12 bytes")
}

func TestIsRetryable_PlainError(t *testing.T) {
	t.Parallel()

	assert.False(t, domain.IsRetryable(errors.New("boom")))
}
