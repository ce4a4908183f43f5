package engine

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
)

// AgencyTotal is one row of the agency totals view.
type AgencyTotal struct {
	Agency domain.Agency `json:"agency"`
	Words  int64         `json:"words"`
	// Titles contributed a count to Words.
	Titles []int `json:"titles"`
	// Missing titles were in scope and referenced but have no count.
	Missing []int `json:"missing,omitempty"`
}

// Complete reports whether every in-scope referenced title was counted.
func (t AgencyTotal) Complete() bool { return len(t.Missing) == 0 }

// AgencyTotals sums word counts per agency. With seniorOnly the sum covers
// the agency's own references; otherwise it covers the agency and all its
// descendants, each title counted once however many agencies in the subtree
// reference it. Rows are in hierarchy input order.
func AgencyTotals(snap *Snapshot, seniorOnly bool) []AgencyTotal {
	facts := snap.Facts
	agencies := facts.Forest.Agencies()
	out := make([]AgencyTotal, 0, len(agencies))

	for _, a := range agencies {
		titles := facts.Mapping.SubtreeTitles(a.Slug)
		if seniorOnly {
			titles = facts.Mapping.Titles(a.Slug)
		}
		out = append(out, totalFor(snap, a, titles))
	}
	return out
}

func totalFor(snap *Snapshot, a domain.Agency, titles []int) AgencyTotal {
	row := AgencyTotal{Agency: a, Titles: []int{}}
	for _, n := range titles {
		if wc, ok := snap.Count(n); ok {
			row.Words += wc.Count
			row.Titles = append(row.Titles, n)
			continue
		}
		if snap.attempted(n) {
			row.Missing = append(row.Missing, n)
		}
	}
	return row
}

// RootsOnly keeps the rows of top-level agencies, in order.
func RootsOnly(rows []AgencyTotal) []AgencyTotal {
	out := make([]AgencyTotal, 0, len(rows))
	for _, r := range rows {
		if r.Agency.IsRoot() {
			out = append(out, r)
		}
	}
	return out
}

// SortByWords orders totals by words descending, then slug.
func SortByWords(rows []AgencyTotal) {
	slices.SortStableFunc(rows, func(a, b AgencyTotal) int {
		if c := cmp.Compare(b.Words, a.Words); c != 0 {
			return c
		}
		return cmp.Compare(a.Agency.Slug, b.Agency.Slug)
	})
}

// TitleTotal is one row of the title totals view.
type TitleTotal struct {
	Title domain.Title `json:"title"`
	// AsOf is the effective date the count was taken at.
	AsOf     time.Time `json:"as_of"`
	Words    int64     `json:"words"`
	Agencies []string  `json:"agencies"`
}

// TitleTotals returns one row per counted title, ascending by number.
func TitleTotals(snap *Snapshot) []TitleTotal {
	out := make([]TitleTotal, 0, len(snap.Counts))
	for _, n := range snap.Attempted {
		wc, ok := snap.Count(n)
		if !ok {
			continue
		}
		meta, _ := snap.Facts.Title(n)
		out = append(out, TitleTotal{
			Title:    meta,
			AsOf:     wc.AsOf,
			Words:    wc.Count,
			Agencies: snap.Facts.Mapping.AgenciesForTitle(n),
		})
	}
	return out
}

// OtherTitlesName labels the collapsed composition row.
const OtherTitlesName = "Other Titles"

// CompositionRow is one title's share of an agency's total.
type CompositionRow struct {
	// Title is zero for the collapsed "Other Titles" row.
	Title      int                     `json:"title"`
	Name       string                  `json:"name"`
	References []domain.TitleReference `json:"references,omitempty"`
	Words      int64                   `json:"words"`
	Percent    float64                 `json:"percent"`
}

// RoundedPercent is Percent rounded to two decimals.
func (r CompositionRow) RoundedPercent() float64 {
	return math.Round(r.Percent*100) / 100
}

// Composition breaks an agency's with-subagencies total down by title.
type Composition struct {
	Agency  domain.Agency    `json:"agency"`
	Total   int64            `json:"total"`
	Rows    []CompositionRow `json:"rows"`
	Missing []int            `json:"missing,omitempty"`
}

// ComputeComposition computes the per-title breakdown of slug's total (the
// with-subagencies total). Percentages sum to 100. When the total is zero
// the composition has no rows.
func ComputeComposition(snap *Snapshot, slug string) (Composition, error) {
	facts := snap.Facts
	agency, ok := facts.Forest.Agency(slug)
	if !ok {
		return Composition{}, unknownAgency(slug)
	}

	subtree := append([]domain.Agency{agency}, facts.Forest.Descendants(slug)...)
	total := totalFor(snap, agency, facts.Mapping.SubtreeTitles(slug))

	comp := Composition{Agency: agency, Total: total.Words, Missing: total.Missing, Rows: []CompositionRow{}}
	if total.Words == 0 {
		return comp, nil
	}

	for _, n := range total.Titles {
		wc, _ := snap.Count(n)
		meta, _ := facts.Title(n)

		var refs []domain.TitleReference
		for _, a := range subtree {
			refs = append(refs, facts.Mapping.ReferencesForTitle(a.Slug, n)...)
		}

		comp.Rows = append(comp.Rows, CompositionRow{
			Title:      n,
			Name:       meta.Name,
			References: refs,
			Words:      wc.Count,
			Percent:    float64(wc.Count) / float64(total.Words) * 100,
		})
	}

	slices.SortStableFunc(comp.Rows, func(a, b CompositionRow) int {
		if c := cmp.Compare(b.Words, a.Words); c != 0 {
			return c
		}
		return cmp.Compare(a.Title, b.Title)
	})
	return comp, nil
}

// Collapse merges rows below threshold percent into one "Other Titles" row,
// but only when there are more than minRows rows. The total is unchanged.
func (c Composition) Collapse(threshold float64, minRows int) Composition {
	if len(c.Rows) <= minRows || threshold <= 0 {
		return c
	}

	out := c
	out.Rows = make([]CompositionRow, 0, len(c.Rows))
	other := CompositionRow{Name: OtherTitlesName}
	merged := 0
	for _, r := range c.Rows {
		if r.Percent < threshold {
			other.Words += r.Words
			other.Percent += r.Percent
			merged++
			continue
		}
		out.Rows = append(out.Rows, r)
	}
	if merged == 0 {
		return c
	}
	out.Rows = append(out.Rows, other)
	return out
}

func unknownAgency(slug string) error {
	return fmt.Errorf("%w: %s", domain.ErrUnknownAgency, slug)
}
