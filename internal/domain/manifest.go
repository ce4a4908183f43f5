package domain

import (
	"context"
	"errors"
	"time"
)

// SkipCause classifies why an item did not contribute to an aggregate.
type SkipCause string

const (
	CauseFetch         SkipCause = "fetch_error"
	CauseParse         SkipCause = "parse_error"
	CauseReserved      SkipCause = "reserved"
	CauseSkippedLarge  SkipCause = "skipped_large"
	CauseCancelled     SkipCause = "cancelled"
	CauseCircuitOpen   SkipCause = "circuit_open"
	CauseMappingGap    SkipCause = "mapping_gap"
	CauseCycle         SkipCause = "cycle_detected"
	CauseOrphanParent  SkipCause = "orphan_parent"
	CauseDuplicateSlug SkipCause = "duplicate_slug"
	CauseUnknownTitle  SkipCause = "unknown_title"
	CauseInvalidRecord SkipCause = "invalid_record"
)

// Skip records one title, date or agency left out of a sum and why.
type Skip struct {
	Cause  SkipCause `json:"cause"`
	Title  int       `json:"title,omitempty"`
	Date   string    `json:"date,omitempty"`
	Agency string    `json:"agency,omitempty"`
	Reason string    `json:"reason"`
}

// Manifest accompanies every aggregate view.
type Manifest struct {
	RunID       string    `json:"run_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Skipped     []Skip    `json:"skipped"`
	Warnings    []Skip    `json:"warnings"`
}

// Add records a skipped item.
func (m *Manifest) Add(s Skip) {
	m.Skipped = append(m.Skipped, s)
}

// Warn records a reportable, non-excluding condition.
func (m *Manifest) Warn(s Skip) {
	m.Warnings = append(m.Warnings, s)
}

// SkippedTitle returns the skip entry for a title, if any.
func (m *Manifest) SkippedTitle(title int) (Skip, bool) {
	for _, s := range m.Skipped {
		if s.Title == title {
			return s, true
		}
	}
	return Skip{}, false
}

// CauseOf maps an error to the manifest cause it should be recorded under.
func CauseOf(err error) SkipCause {
	var fe *FetchError
	var pe *ParseError
	switch {
	case errors.As(err, &pe):
		return CauseParse
	case errors.As(err, &fe):
		return CauseFetch
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CauseCancelled
	default:
		return CauseFetch
	}
}
