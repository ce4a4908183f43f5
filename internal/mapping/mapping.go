// Package mapping joins agencies to the titles they regulate.
package mapping

import (
	"fmt"
	"slices"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/hierarchy"
)

// Mapping is read-only once resolved.
type Mapping struct {
	forest  *hierarchy.Forest
	refs    map[string][]domain.TitleReference
	titles  map[string][]int
	byTitle map[int][]string
	gaps    []string
	issues  []domain.Skip
}

// Resolve builds the mapping from each agency's own references. When titles
// is non-empty, references to titles it does not list are dropped and
// reported. An agency without references is a gap, not an error.
func Resolve(forest *hierarchy.Forest, titles []domain.Title) *Mapping {
	known := make(map[int]bool, len(titles))
	for _, t := range titles {
		known[t.Number] = true
	}

	m := &Mapping{
		forest:  forest,
		refs:    make(map[string][]domain.TitleReference),
		titles:  make(map[string][]int),
		byTitle: make(map[int][]string),
	}

	for _, a := range forest.Agencies() {
		seen := make(map[domain.TitleReference]bool)
		var refs []domain.TitleReference
		for _, r := range a.References {
			if !r.Valid() || (len(known) > 0 && !known[r.Title]) {
				m.issues = append(m.issues, domain.Skip{
					Cause:  domain.CauseUnknownTitle,
					Agency: a.Slug,
					Title:  r.Title,
					Reason: fmt.Sprintf("reference to unknown title %d", r.Title),
				})
				continue
			}
			if seen[r] {
				continue
			}
			seen[r] = true
			refs = append(refs, r)
		}

		if len(refs) == 0 {
			m.gaps = append(m.gaps, a.Slug)
			continue
		}
		m.refs[a.Slug] = refs

		nums := distinctTitles(refs)
		m.titles[a.Slug] = nums
		for _, n := range nums {
			m.byTitle[n] = append(m.byTitle[n], a.Slug)
		}
	}
	return m
}

func distinctTitles(refs []domain.TitleReference) []int {
	nums := make([]int, 0, len(refs))
	for _, r := range refs {
		nums = append(nums, r.Title)
	}
	slices.Sort(nums)
	return slices.Compact(nums)
}

// Forest returns the hierarchy the mapping was resolved against.
func (m *Mapping) Forest() *hierarchy.Forest { return m.forest }

// References returns the agency's own references in input order.
func (m *Mapping) References(slug string) []domain.TitleReference {
	return slices.Clone(m.refs[slug])
}

// ReferencesForTitle returns the agency's own references into one title.
func (m *Mapping) ReferencesForTitle(slug string, title int) []domain.TitleReference {
	var out []domain.TitleReference
	for _, r := range m.refs[slug] {
		if r.Title == title {
			out = append(out, r)
		}
	}
	return out
}

// Titles returns the distinct title numbers the agency itself references, ascending.
func (m *Mapping) Titles(slug string) []int {
	return slices.Clone(m.titles[slug])
}

// SubtreeTitles returns the distinct titles referenced by the agency or any
// descendant, ascending. A title shared along the subtree appears once.
func (m *Mapping) SubtreeTitles(slug string) []int {
	nums := slices.Clone(m.titles[slug])
	for _, d := range m.forest.Descendants(slug) {
		nums = append(nums, m.titles[d.Slug]...)
	}
	slices.Sort(nums)
	return slices.Compact(nums)
}

// AgenciesForTitle returns the slugs that reference title directly.
func (m *Mapping) AgenciesForTitle(title int) []string {
	return slices.Clone(m.byTitle[title])
}

// AllTitles returns every title referenced by any agency, ascending.
func (m *Mapping) AllTitles() []int {
	nums := make([]int, 0, len(m.byTitle))
	for n := range m.byTitle {
		nums = append(nums, n)
	}
	slices.Sort(nums)
	return nums
}

// Gaps returns agencies with no resolvable references, in input order.
func (m *Mapping) Gaps() []string {
	return slices.Clone(m.gaps)
}

// IsGap reports whether the agency has no references of its own.
func (m *Mapping) IsGap(slug string) bool {
	_, ok := m.refs[slug]
	return !ok
}

// Issues returns dropped references.
func (m *Mapping) Issues() []domain.Skip {
	return slices.Clone(m.issues)
}
