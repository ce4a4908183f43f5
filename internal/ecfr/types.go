package ecfr

import (
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
)

// agenciesResponse is the body of /api/admin/v1/agencies.json.
type agenciesResponse struct {
	Agencies []agencyDTO `json:"agencies"`
}

type agencyDTO struct {
	Name          string         `json:"name"`
	ShortName     string         `json:"short_name"`
	DisplayName   string         `json:"display_name"`
	Slug          string         `json:"slug"`
	ParentSlug    string         `json:"parent_slug,omitempty"`
	Children      []agencyDTO    `json:"children"`
	CFRReferences []referenceDTO `json:"cfr_references"`
}

type referenceDTO struct {
	Title      int    `json:"title"`
	Subtitle   string `json:"subtitle,omitempty"`
	Chapter    string `json:"chapter,omitempty"`
	Subchapter string `json:"subchapter,omitempty"`
	Part       string `json:"part,omitempty"`
}

// titlesResponse is the body of /api/versioner/v1/titles.json.
type titlesResponse struct {
	Titles []titleDTO `json:"titles"`
}

type titleDTO struct {
	Number          int    `json:"number"`
	Name            string `json:"name"`
	LatestAmendedOn string `json:"latest_amended_on"`
	UpToDateAsOf    string `json:"up_to_date_as_of"`
	Reserved        bool   `json:"reserved"`
}

func (a agencyDTO) toRecord() domain.AgencyRecord {
	rec := domain.AgencyRecord{
		Slug:        strings.TrimSpace(a.Slug),
		Name:        a.Name,
		ShortName:   a.ShortName,
		DisplayName: a.DisplayName,
		ParentSlug:  a.ParentSlug,
	}
	for _, r := range a.CFRReferences {
		rec.References = append(rec.References, domain.TitleReference{
			Title:      r.Title,
			Subtitle:   r.Subtitle,
			Chapter:    r.Chapter,
			Subchapter: r.Subchapter,
			Part:       r.Part,
		})
	}
	for _, c := range a.Children {
		rec.Children = append(rec.Children, c.toRecord())
	}
	return rec
}

func (t titleDTO) toTitle() domain.Title {
	return domain.Title{
		Number:          t.Number,
		Name:            t.Name,
		LatestAmendedOn: parseOptionalDate(t.LatestAmendedOn),
		UpToDateAsOf:    parseOptionalDate(t.UpToDateAsOf),
		Reserved:        t.Reserved,
	}
}

// parseOptionalDate returns the zero time for missing or malformed dates.
func parseOptionalDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return time.Time{}
	}
	return d
}
