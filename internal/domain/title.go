package domain

import "time"

// DateLayout is the eCFR date format used in URLs and metadata.
const DateLayout = "2006-01-02"

// Title is one of the 50 numbered divisions of the regulatory code.
type Title struct {
	Number          int       `json:"number"`
	Name            string    `json:"name"`
	LatestAmendedOn time.Time `json:"latest_amended_on"`
	UpToDateAsOf    time.Time `json:"up_to_date_as_of"`
	Reserved        bool      `json:"reserved"`
}

// EffectiveDate is the date the title should be fetched at for a requested
// as-of date: titles that have not been amended since an earlier date are
// requested at that date instead.
func (t Title) EffectiveDate(asOf time.Time) time.Time {
	if !t.LatestAmendedOn.IsZero() && t.LatestAmendedOn.Before(asOf) {
		return t.LatestAmendedOn
	}
	return asOf
}

// WordCount is the atomic fact every aggregate derives from.
type WordCount struct {
	Title int       `json:"title"`
	AsOf  time.Time `json:"as_of"`
	Count int64     `json:"count"`
}

// FormatDate renders a date in the eCFR layout.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses an eCFR date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
