package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Sentinel errors for broad classification.
var (
	ErrEmptyDocument  = errors.New("empty document")
	ErrNonText        = errors.New("non-text payload")
	ErrUnknownAgency  = errors.New("unknown agency")
	ErrFoundationData = errors.New("foundation data unavailable")
	ErrBodyTooLarge   = errors.New("response body too large")
)

// FetchError is returned by the fetcher for transport failures and
// non-success HTTP statuses. Status is zero for transport failures.
type FetchError struct {
	URL       string
	Status    int
	Retryable bool
	Err       error
}

func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStatusError classifies a non-success HTTP status. 5xx and 429 are
// retryable, every other 4xx is not.
func NewStatusError(url string, status int) *FetchError {
	return &FetchError{
		URL:       url,
		Status:    status,
		Retryable: status >= http.StatusInternalServerError || status == http.StatusTooManyRequests,
	}
}

// NewTransportError classifies a transport failure. Timeouts are retryable.
func NewTransportError(url string, err error) *FetchError {
	return &FetchError{
		URL:       url,
		Retryable: isTimeout(err),
		Err:       err,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// IsRetryable reports whether err carries a retryable FetchError.
func IsRetryable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return false
}

// ParseError is returned when a payload holds no recoverable text.
type ParseError struct {
	Reason error
	Size   int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse document (%d bytes): %v", e.Size, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Reason
}
