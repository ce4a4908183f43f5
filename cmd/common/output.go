package common

import (
	"fmt"
	"io"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/report"
)

// Output writes a view followed by its manifest. JSON output nests both
// in one document.
func Output(w io.Writer, format report.Format, view report.Table, manifest domain.Manifest, warnings bool) error {
	if !warnings {
		manifest.Warnings = nil
	}

	if format == report.FormatJSON {
		doc := report.Table{
			Title: view.Title,
			Data: struct {
				View     any             `json:"view"`
				Manifest domain.Manifest `json:"manifest"`
			}{view.Data, manifest},
		}
		return report.Render(w, doc, format)
	}

	if err := report.Render(w, view, format); err != nil {
		return err
	}
	if len(manifest.Skipped) == 0 && len(manifest.Warnings) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	return report.Render(w, report.ManifestTable(manifest), format)
}
