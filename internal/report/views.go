package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/engine"
	"github.com/jonesrussell/north-cloud/regcount/internal/mapping"
)

const unavailable = "n/a"

// AgencyTable lists agency totals in the order given.
func AgencyTable(title string, rows []engine.AgencyTotal) Table {
	t := Table{
		Title:  title,
		Header: table.Row{"#", "Agency", "Slug", "Words", "Titles", "Missing"},
		Right:  []int{1, 4},
		Data:   rows,
	}
	var sum int64
	for i, r := range rows {
		sum += r.Words
		t.Rows = append(t.Rows, table.Row{
			i + 1, r.Agency.Label(), r.Agency.Slug, Number(r.Words), joinInts(r.Titles), joinInts(r.Missing),
		})
	}
	t.Footer = table.Row{"", "", "Total", Number(sum), "", ""}
	t.Caption = "Totals count each title once per agency, shared titles appear under every agency that references them."
	return t
}

// TitleTable lists title totals.
func TitleTable(rows []engine.TitleTotal) Table {
	t := Table{
		Title:  "Word count by title",
		Header: table.Row{"Title", "Name", "As of", "Words", "Agencies"},
		Right:  []int{1, 4},
		Data:   rows,
	}
	var sum int64
	for _, r := range rows {
		sum += r.Words
		t.Rows = append(t.Rows, table.Row{
			r.Title.Number, r.Title.Name, domain.FormatDate(r.AsOf), Number(r.Words), len(r.Agencies),
		})
	}
	t.Footer = table.Row{"", "", "Total", Number(sum), ""}
	return t
}

// CompositionTable shows an agency's per-title breakdown.
func CompositionTable(c engine.Composition) Table {
	t := Table{
		Title:  "Composition of " + c.Agency.Label(),
		Header: table.Row{"Title", "Name", "References", "Words", "Share"},
		Right:  []int{1, 4, 5},
		Data:   c,
	}
	for _, r := range c.Rows {
		num := ""
		if r.Title != 0 {
			num = strconv.Itoa(r.Title)
		}
		t.Rows = append(t.Rows, table.Row{num, r.Name, len(r.References), Number(r.Words), Percent(r.Percent)})
	}
	t.Footer = table.Row{"", "", "Total", Number(c.Total), ""}
	if len(c.Missing) > 0 {
		t.Caption = "Not counted: titles " + joinInts(c.Missing)
	}
	return t
}

// TimeSeriesTable shows one row per date; unavailable points show n/a.
func TimeSeriesTable(ts *engine.TimeSeries) Table {
	t := Table{
		Title:  "Word count over time for " + ts.Agency.Label(),
		Header: table.Row{"Date", "Words", "Status", "Missing"},
		Right:  []int{2},
		Data:   ts,
	}
	for _, p := range ts.Points {
		words := unavailable
		if p.Available() {
			words = Number(p.Words)
		}
		t.Rows = append(t.Rows, table.Row{domain.FormatDate(p.Date), words, string(p.Status), joinInts(p.Missing)})
	}
	return t
}

// Node is one agency of the hierarchy export.
type Node struct {
	Agency   domain.Agency `json:"agency"`
	Titles   []int         `json:"titles"`
	Children []Node        `json:"children,omitempty"`
}

// HierarchyTable renders the agency forest with indentation by depth.
func HierarchyTable(m *mapping.Mapping) Table {
	forest := m.Forest()
	t := Table{
		Title:  "Agency hierarchy",
		Header: table.Row{"Level", "Agency", "Short name", "Slug", "Has children", "Own titles", "Subtree titles"},
		Right:  []int{1, 7},
	}
	forest.Walk(func(a domain.Agency, depth int) bool {
		t.Rows = append(t.Rows, table.Row{
			depth,
			strings.Repeat("  ", depth) + a.Label(),
			a.ShortName,
			a.Slug,
			yesNo(forest.HasChildren(a.Slug)),
			joinInts(m.Titles(a.Slug)),
			len(m.SubtreeTitles(a.Slug)),
		})
		return true
	})

	var build func(a domain.Agency) Node
	build = func(a domain.Agency) Node {
		n := Node{Agency: a, Titles: m.Titles(a.Slug)}
		for _, c := range forest.Children(a.Slug) {
			n.Children = append(n.Children, build(c))
		}
		return n
	}
	nodes := []Node{}
	for _, root := range forest.Roots() {
		nodes = append(nodes, build(root))
	}
	t.Data = nodes
	t.Caption = fmt.Sprintf("%d agencies, %d top level", forest.Len(), len(nodes))
	return t
}

// AgencyListTable lists agencies flat, as for the parent-agency and
// independent-agency views.
func AgencyListTable(title string, agencies []domain.Agency, m *mapping.Mapping) Table {
	t := Table{
		Title:  title,
		Header: table.Row{"Agency", "Short name", "Slug", "Sub-agencies", "Titles"},
		Right:  []int{4},
		Data:   agencies,
	}
	forest := m.Forest()
	for _, a := range agencies {
		t.Rows = append(t.Rows, table.Row{
			a.Label(), a.ShortName, a.Slug, len(forest.Descendants(a.Slug)), joinInts(m.Titles(a.Slug)),
		})
	}
	t.Caption = fmt.Sprintf("%d agencies", len(agencies))
	return t
}

// ManifestTable lists skipped items followed by warnings.
func ManifestTable(m domain.Manifest) Table {
	t := Table{
		Title:  "Run " + m.RunID,
		Header: table.Row{"Kind", "Cause", "Title", "Date", "Agency", "Reason"},
		Data:   m,
	}
	add := func(kind string, skips []domain.Skip) {
		for _, s := range skips {
			title := ""
			if s.Title != 0 {
				title = strconv.Itoa(s.Title)
			}
			t.Rows = append(t.Rows, table.Row{kind, string(s.Cause), title, s.Date, s.Agency, s.Reason})
		}
	}
	add("skipped", m.Skipped)
	add("warning", m.Warnings)
	t.Caption = fmt.Sprintf("%d skipped, %d warnings", len(m.Skipped), len(m.Warnings))
	return t
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
