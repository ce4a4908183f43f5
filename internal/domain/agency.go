package domain

import (
	"fmt"
	"strings"
)

// Title numbers span 1..50 in the Code of Federal Regulations.
const (
	MinTitleNumber = 1
	MaxTitleNumber = 50
)

// TitleReference identifies a slice of regulatory text attributable to an
// agency. Chapter and Part are optional and empty when absent.
type TitleReference struct {
	Title      int    `json:"title"`
	Subtitle   string `json:"subtitle,omitempty"`
	Chapter    string `json:"chapter,omitempty"`
	Subchapter string `json:"subchapter,omitempty"`
	Part       string `json:"part,omitempty"`
}

// Valid reports whether the title number is inside the CFR range.
func (r TitleReference) Valid() bool {
	return r.Title >= MinTitleNumber && r.Title <= MaxTitleNumber
}

// String renders the reference as "Title 40, Chapter I, Part 50".
func (r TitleReference) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title %d", r.Title)
	if r.Subtitle != "" {
		fmt.Fprintf(&b, ", Subtitle %s", r.Subtitle)
	}
	if r.Chapter != "" {
		fmt.Fprintf(&b, ", Chapter %s", r.Chapter)
	}
	if r.Subchapter != "" {
		fmt.Fprintf(&b, ", Subchapter %s", r.Subchapter)
	}
	if r.Part != "" {
		fmt.Fprintf(&b, ", Part %s", r.Part)
	}
	return b.String()
}

// AgencyRecord is an agency as delivered by the agency list, before the
// hierarchy is built. Either ParentSlug or Children (or neither) carries the
// structure.
type AgencyRecord struct {
	Slug        string
	Name        string
	ShortName   string
	DisplayName string
	ParentSlug  string
	References  []TitleReference
	Children    []AgencyRecord
}

// Agency is a node of the hierarchy forest. Parent is empty for roots.
type Agency struct {
	Slug        string           `json:"slug"`
	Name        string           `json:"name"`
	ShortName   string           `json:"short_name,omitempty"`
	DisplayName string           `json:"display_name,omitempty"`
	Parent      string           `json:"parent,omitempty"`
	References  []TitleReference `json:"cfr_references,omitempty"`
}

// IsRoot reports whether the agency has no parent.
func (a Agency) IsRoot() bool {
	return a.Parent == ""
}

// Label is the best human-readable name for the agency.
func (a Agency) Label() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.DisplayName != "":
		return a.DisplayName
	default:
		return a.Slug
	}
}
