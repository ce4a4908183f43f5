package engine

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
)

// Report bundles the views of one analysis run. Every view derives from the
// same Snapshot.
type Report struct {
	AsOf         time.Time       `json:"as_of"`
	Titles       []int           `json:"titles"`
	SeniorTotals []AgencyTotal   `json:"senior_totals"`
	FullTotals   []AgencyTotal   `json:"full_totals"`
	// RootTotals lists top-level agencies only, with sub-agencies included.
	RootTotals   []AgencyTotal   `json:"root_totals"`
	TitleTotals  []TitleTotal    `json:"title_totals"`
	Manifest     domain.Manifest `json:"manifest"`

	Facts    *Facts    `json:"-"`
	Snapshot *Snapshot `json:"-"`
}

// Analyze loads the facts, counts the first MaxTitles titles at asOf and
// computes agency and title totals. Only a foundational failure is returned
// as an error.
func (e *Engine) Analyze(ctx context.Context, asOf time.Time) (*Report, error) {
	facts, err := e.Load(ctx)
	if err != nil {
		return nil, err
	}
	return e.AnalyzeFacts(ctx, facts, asOf), nil
}

// AnalyzeFacts is Analyze over already-loaded facts.
func (e *Engine) AnalyzeFacts(ctx context.Context, facts *Facts, asOf time.Time) *Report {
	titles := SelectTitles(facts, e.cfg.MaxTitles)
	snap := e.Snapshot(ctx, facts, asOf, titles)
	return NewReport(snap)
}

// NewReport derives every totals view from snap.
func NewReport(snap *Snapshot) *Report {
	full := AgencyTotals(snap, false)
	return &Report{
		AsOf:         snap.AsOf,
		Titles:       snap.Attempted,
		SeniorTotals: AgencyTotals(snap, true),
		FullTotals:   full,
		RootTotals:   RootsOnly(full),
		TitleTotals:  TitleTotals(snap),
		Manifest:     snap.Manifest,
		Facts:        snap.Facts,
		Snapshot:     snap,
	}
}

// AgencyComposition counts every title in the agency's subtree at asOf,
// ignoring the title limit, and returns its composition with the snapshot's
// manifest.
func (e *Engine) AgencyComposition(ctx context.Context, facts *Facts, slug string, asOf time.Time) (Composition, domain.Manifest, error) {
	if _, ok := facts.Forest.Agency(slug); !ok {
		return Composition{}, domain.Manifest{}, unknownAgency(slug)
	}
	snap := e.Snapshot(ctx, facts, asOf, facts.Mapping.SubtreeTitles(slug))
	comp, err := ComputeComposition(snap, slug)
	return comp, snap.Manifest, err
}
