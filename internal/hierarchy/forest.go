// Package hierarchy builds the agency forest from agency records.
//
// Nodes live in an arena keyed by slug; parent and child links are slugs
// resolved through the arena. Structural problems are repaired once, at
// construction, and reported as Issues:
//
//   - a record with no slug is dropped
//   - a repeated slug keeps the first record
//   - a parent slug that names no agency makes the record a root
//   - a parent chain that loops back on itself has its closing edge cut,
//     making that agency a root
//
// After Build the forest is acyclic, so traversals never revisit a node.
package hierarchy

import (
	"fmt"
	"strings"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
)

// Issue is a structural problem found and repaired during Build.
type Issue struct {
	Cause  domain.SkipCause `json:"cause"`
	Agency string           `json:"agency"`
	Parent string           `json:"parent,omitempty"`
	// Path lists the cycle members, starting and ending at Agency's parent.
	Path []string `json:"path,omitempty"`
}

func (i Issue) Error() string {
	switch i.Cause {
	case domain.CauseCycle:
		return fmt.Sprintf("cycle detected at %s: %s", i.Agency, strings.Join(i.Path, " -> "))
	case domain.CauseOrphanParent:
		return fmt.Sprintf("agency %s references unknown parent %s", i.Agency, i.Parent)
	case domain.CauseDuplicateSlug:
		return fmt.Sprintf("duplicate agency slug %s", i.Agency)
	default:
		return fmt.Sprintf("%s: %s", i.Cause, i.Agency)
	}
}

// Skip converts the issue to a manifest entry.
func (i Issue) Skip() domain.Skip {
	return domain.Skip{Cause: i.Cause, Agency: i.Agency, Reason: i.Error()}
}

type node struct {
	agency   domain.Agency
	children []string
}

// Forest is immutable after Build and safe for concurrent reads.
type Forest struct {
	nodes  map[string]*node
	order  []string
	roots  []string
	issues []Issue
}

// Build constructs the forest. Records may describe structure through
// ParentSlug, nested Children, or both; a nested child without its own
// ParentSlug inherits the enclosing record's slug.
func Build(records []domain.AgencyRecord) *Forest {
	f := &Forest{nodes: make(map[string]*node)}

	for _, rec := range flatten(records, "") {
		f.add(rec)
	}
	f.resolveParents()
	f.cutCycles()
	f.link()
	return f
}

func flatten(records []domain.AgencyRecord, parent string) []domain.AgencyRecord {
	out := make([]domain.AgencyRecord, 0, len(records))
	for _, rec := range records {
		if rec.ParentSlug == "" {
			rec.ParentSlug = parent
		}
		children := rec.Children
		rec.Children = nil
		out = append(out, rec)
		out = append(out, flatten(children, rec.Slug)...)
	}
	return out
}

func (f *Forest) add(rec domain.AgencyRecord) {
	slug := strings.TrimSpace(rec.Slug)
	if slug == "" {
		f.issues = append(f.issues, Issue{Cause: domain.CauseInvalidRecord, Agency: rec.Name})
		return
	}
	if _, dup := f.nodes[slug]; dup {
		f.issues = append(f.issues, Issue{Cause: domain.CauseDuplicateSlug, Agency: slug})
		return
	}

	f.nodes[slug] = &node{agency: domain.Agency{
		Slug:        slug,
		Name:        rec.Name,
		ShortName:   rec.ShortName,
		DisplayName: rec.DisplayName,
		Parent:      strings.TrimSpace(rec.ParentSlug),
		References:  rec.References,
	}}
	f.order = append(f.order, slug)
}

func (f *Forest) resolveParents() {
	for _, slug := range f.order {
		a := &f.nodes[slug].agency
		if a.Parent == "" {
			continue
		}
		if _, ok := f.nodes[a.Parent]; !ok {
			f.issues = append(f.issues, Issue{Cause: domain.CauseOrphanParent, Agency: slug, Parent: a.Parent})
			a.Parent = ""
		}
	}
}

// cutCycles walks each parent chain once. When a chain re-enters itself the
// edge that closed the loop is removed.
func (f *Forest) cutCycles() {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, len(f.order))

	for _, start := range f.order {
		if state[start] == done {
			continue
		}

		var path []string
		cur := start
		for cur != "" && state[cur] == unvisited {
			state[cur] = onPath
			path = append(path, cur)
			cur = f.nodes[cur].agency.Parent
		}

		if cur != "" && state[cur] == onPath {
			last := path[len(path)-1]
			cycle := cycleFrom(path, cur)
			f.issues = append(f.issues, Issue{
				Cause:  domain.CauseCycle,
				Agency: last,
				Parent: cur,
				Path:   append(cycle, cur),
			})
			f.nodes[last].agency.Parent = ""
		}

		for _, s := range path {
			state[s] = done
		}
	}
}

func cycleFrom(path []string, entry string) []string {
	for i, s := range path {
		if s == entry {
			return append([]string(nil), path[i:]...)
		}
	}
	return nil
}

func (f *Forest) link() {
	for _, slug := range f.order {
		parent := f.nodes[slug].agency.Parent
		if parent == "" {
			f.roots = append(f.roots, slug)
			continue
		}
		p := f.nodes[parent]
		p.children = append(p.children, slug)
	}
}

func (f *Forest) list(slugs []string) []domain.Agency {
	out := make([]domain.Agency, 0, len(slugs))
	for _, s := range slugs {
		out = append(out, f.nodes[s].agency)
	}
	return out
}

// Len returns the number of agencies.
func (f *Forest) Len() int { return len(f.order) }

// Agencies returns every agency in input order.
func (f *Forest) Agencies() []domain.Agency { return f.list(f.order) }

// Roots returns the senior agencies in input order.
func (f *Forest) Roots() []domain.Agency { return f.list(f.roots) }

// Issues returns the problems repaired during Build.
func (f *Forest) Issues() []Issue { return append([]Issue(nil), f.issues...) }

// Agency looks up a node.
func (f *Forest) Agency(slug string) (domain.Agency, bool) {
	n, ok := f.nodes[slug]
	if !ok {
		return domain.Agency{}, false
	}
	return n.agency, true
}

// Parent returns the parent of slug; false for roots and unknown slugs.
func (f *Forest) Parent(slug string) (domain.Agency, bool) {
	n, ok := f.nodes[slug]
	if !ok || n.agency.Parent == "" {
		return domain.Agency{}, false
	}
	return f.nodes[n.agency.Parent].agency, true
}

// Children returns the direct children of slug.
func (f *Forest) Children(slug string) []domain.Agency {
	n, ok := f.nodes[slug]
	if !ok {
		return nil
	}
	return f.list(n.children)
}

// Descendants returns the transitive children of slug in depth-first
// pre-order. The agency itself is never included.
func (f *Forest) Descendants(slug string) []domain.Agency {
	n, ok := f.nodes[slug]
	if !ok {
		return nil
	}

	visited := map[string]bool{slug: true}
	var out []domain.Agency
	var visit func(children []string)
	visit = func(children []string) {
		for _, c := range children {
			if visited[c] {
				continue
			}
			visited[c] = true
			out = append(out, f.nodes[c].agency)
			visit(f.nodes[c].children)
		}
	}
	visit(n.children)
	return out
}

// Senior returns the root above slug, or slug itself if it is a root.
func (f *Forest) Senior(slug string) (domain.Agency, bool) {
	n, ok := f.nodes[slug]
	if !ok {
		return domain.Agency{}, false
	}
	for n.agency.Parent != "" {
		n = f.nodes[n.agency.Parent]
	}
	return n.agency, true
}

// ParentAgencies returns agencies that have at least one child.
func (f *Forest) ParentAgencies() []domain.Agency {
	var out []domain.Agency
	for _, s := range f.order {
		if len(f.nodes[s].children) > 0 {
			out = append(out, f.nodes[s].agency)
		}
	}
	return out
}

// Independent returns roots with no children.
func (f *Forest) Independent() []domain.Agency {
	var out []domain.Agency
	for _, s := range f.roots {
		if len(f.nodes[s].children) == 0 {
			out = append(out, f.nodes[s].agency)
		}
	}
	return out
}

// HasChildren reports whether slug has at least one child.
func (f *Forest) HasChildren(slug string) bool {
	n, ok := f.nodes[slug]
	return ok && len(n.children) > 0
}

// Walk visits every agency in pre-order from the roots. depth is zero for
// roots. Returning false from fn skips that agency's subtree.
func (f *Forest) Walk(fn func(a domain.Agency, depth int) bool) {
	var visit func(slugs []string, depth int)
	visit = func(slugs []string, depth int) {
		for _, s := range slugs {
			n := f.nodes[s]
			if fn(n.agency, depth) {
				visit(n.children, depth+1)
			}
		}
	}
	visit(f.roots, 0)
}
