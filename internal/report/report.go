// Package report renders engine views for the terminal and for export.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Formats lists every supported format.
var Formats = []Format{FormatTable, FormatCSV, FormatMarkdown, FormatJSON}

// ParseFormat validates a format name. An empty name means FormatTable.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatTable, nil
	}
	f := Format(strings.ToLower(s))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want one of table, csv, markdown, json)", s)
}

// Table is a rendered view. Data is what the JSON format encodes; the other
// formats use Header and Rows.
type Table struct {
	Title   string
	Header  table.Row
	Rows    []table.Row
	Footer  table.Row
	Caption string
	// Right aligns these 1-based column numbers.
	Right []int
	Data  any
}

var numbers = message.NewPrinter(language.English)

// Number formats n with thousands separators.
func Number(n int64) string {
	return numbers.Sprintf("%d", n)
}

// Percent formats p (0..100) with two decimals.
func Percent(p float64) string {
	return numbers.Sprintf("%.2f%%", p)
}

// Render writes t to w in format f.
func Render(w io.Writer, t Table, f Format) error {
	if f == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(t.Data); err != nil {
			return fmt.Errorf("encode %s: %w", t.Title, err)
		}
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(t.Header)
	tw.AppendRows(t.Rows)
	if len(t.Footer) > 0 {
		tw.AppendFooter(t.Footer)
	}

	configs := make([]table.ColumnConfig, 0, len(t.Right))
	for _, col := range t.Right {
		configs = append(configs, table.ColumnConfig{Number: col, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)

	switch f {
	case FormatCSV:
		tw.RenderCSV()
	case FormatMarkdown:
		tw.RenderMarkdown()
	case FormatTable, "":
		tw.SetTitle(t.Title)
		tw.SetCaption(t.Caption)
		tw.SetStyle(table.StyleLight)
		tw.Render()
	default:
		return fmt.Errorf("unknown output format %q", f)
	}
	return nil
}
