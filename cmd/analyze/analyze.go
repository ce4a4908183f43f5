// Package analyze implements the analysis commands: agency and title totals,
// agency composition, agency time series and the agency hierarchy.
package analyze

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/regcount/cmd/common"
	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/engine"
	"github.com/jonesrussell/north-cloud/regcount/internal/report"
)

// Command returns the analyze command tree.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Count regulation words by agency and title",
		Long: `Fetch the current or historical text of the Code of Federal Regulations,
count its words per title and aggregate the counts by agency.`,
	}
	cmd.AddCommand(
		agenciesCommand(),
		titlesCommand(),
		compositionCommand(),
		timeSeriesCommand(),
		hierarchyCommand(),
	)
	return cmd
}

// session is what every analysis command needs after flag parsing.
type session struct {
	deps   *common.Deps
	format report.Format
	asOf   time.Time
}

func start(flags *common.RunFlags) (*session, error) {
	format, err := flags.OutputFormat()
	if err != nil {
		return nil, err
	}
	deps, err := common.NewDeps(flags.Apply)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	asOf, err := deps.Config.Analysis.AsOfDate(time.Now())
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("invalid as-of date: %w", err)
	}
	return &session{deps: deps, format: format, asOf: asOf}, nil
}

func agenciesCommand() *cobra.Command {
	var (
		flags      common.RunFlags
		seniorOnly bool
		rootsOnly  bool
		byWords    bool
	)
	cmd := &cobra.Command{
		Use:   "agencies",
		Short: "Word counts per agency",
		Long: `Word counts per agency, including sub-agencies. With --senior-only each
agency counts only the titles it references itself. With --roots only
top-level agencies are listed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := start(&flags)
			if err != nil {
				return err
			}
			defer s.deps.Close()

			rep, err := s.deps.Engine.Analyze(flags.Context(cmd.Context()), s.asOf)
			if err != nil {
				return err
			}

			rows, title := rep.FullTotals, "Word count by agency (with sub-agencies)"
			if seniorOnly {
				rows, title = rep.SeniorTotals, "Word count by agency (own references)"
			}
			if rootsOnly {
				rows, title = engine.RootsOnly(rows), title+", top-level only"
			}
			if byWords {
				engine.SortByWords(rows)
			}
			return common.Output(cmd.OutOrStdout(), s.format, report.AgencyTable(title, rows), rep.Manifest, flags.Warnings)
		},
	}
	flags.Register(cmd)
	cmd.Flags().BoolVar(&seniorOnly, "senior-only", false, "count only each agency's own references")
	cmd.Flags().BoolVar(&rootsOnly, "roots", false, "list top-level agencies only")
	cmd.Flags().BoolVar(&byWords, "sort-words", false, "sort by word count, largest first")
	return cmd
}

func titlesCommand() *cobra.Command {
	var flags common.RunFlags
	cmd := &cobra.Command{
		Use:   "titles",
		Short: "Word counts per title",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := start(&flags)
			if err != nil {
				return err
			}
			defer s.deps.Close()

			rep, err := s.deps.Engine.Analyze(flags.Context(cmd.Context()), s.asOf)
			if err != nil {
				return err
			}
			return common.Output(cmd.OutOrStdout(), s.format, report.TitleTable(rep.TitleTotals), rep.Manifest, flags.Warnings)
		},
	}
	flags.Register(cmd)
	return cmd
}

func compositionCommand() *cobra.Command {
	var (
		flags     common.RunFlags
		collapse  bool
		threshold float64
		minRows   int
	)
	cmd := &cobra.Command{
		Use:   "composition <agency-slug>",
		Short: "Break an agency's word count down by title",
		Long: `Break an agency's word count, including sub-agencies, down by title. Every
title the agency regulates is counted regardless of --max-titles.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := start(&flags)
			if err != nil {
				return err
			}
			defer s.deps.Close()

			ctx := flags.Context(cmd.Context())
			facts, err := s.deps.Engine.Load(ctx)
			if err != nil {
				return err
			}
			comp, manifest, err := s.deps.Engine.AgencyComposition(ctx, facts, args[0], s.asOf)
			if err != nil {
				return err
			}

			if collapse {
				analysis := s.deps.Config.Analysis
				if !cmd.Flags().Changed("threshold") {
					threshold = analysis.CollapseThreshold
				}
				if !cmd.Flags().Changed("min-rows") {
					minRows = analysis.CollapseMinRows
				}
				comp = comp.Collapse(threshold, minRows)
			}
			return common.Output(cmd.OutOrStdout(), s.format, report.CompositionTable(comp), manifest, flags.Warnings)
		},
	}
	flags.Register(cmd)
	cmd.Flags().BoolVar(&collapse, "collapse", false, "merge small titles into one Other Titles row")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "collapse rows below this percentage")
	cmd.Flags().IntVar(&minRows, "min-rows", 0, "collapse only when there are more rows than this")
	return cmd
}

func timeSeriesCommand() *cobra.Command {
	var (
		flags    common.RunFlags
		fromYear int
		toYear   int
		dates    []string
	)
	cmd := &cobra.Command{
		Use:   "timeseries <agency-slug>",
		Short: "Track an agency's word count over time",
		Long: `Count an agency's titles, including sub-agencies, on January 1 of every year
in the range, or at the explicit --date values. Dates where nothing could be
counted are reported as unavailable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := start(&flags)
			if err != nil {
				return err
			}
			defer s.deps.Close()

			points, err := seriesDates(s, cmd, fromYear, toYear, dates)
			if err != nil {
				return err
			}

			ctx := flags.Context(cmd.Context())
			facts, err := s.deps.Engine.Load(ctx)
			if err != nil {
				return err
			}
			ts, err := s.deps.Engine.TimeSeries(ctx, facts, args[0], points)
			if err != nil {
				return err
			}
			return common.Output(cmd.OutOrStdout(), s.format, report.TimeSeriesTable(ts), ts.Manifest, flags.Warnings)
		},
	}
	flags.Register(cmd)
	cmd.Flags().IntVar(&fromYear, "from-year", 0, "first year of the range (default from config)")
	cmd.Flags().IntVar(&toYear, "to-year", 0, "last year of the range (default from config)")
	cmd.Flags().StringSliceVar(&dates, "date", nil, "explicit dates YYYY-MM-DD, replaces the year range")
	return cmd
}

func seriesDates(s *session, cmd *cobra.Command, fromYear, toYear int, dates []string) ([]time.Time, error) {
	if len(dates) > 0 {
		out := make([]time.Time, 0, len(dates))
		for _, d := range dates {
			t, err := time.Parse(time.DateOnly, d)
			if err != nil {
				return nil, fmt.Errorf("invalid --date %q: %w", d, err)
			}
			out = append(out, t)
		}
		return out, nil
	}

	analysis := s.deps.Config.Analysis
	if !cmd.Flags().Changed("from-year") {
		fromYear = analysis.FromYear
	}
	if !cmd.Flags().Changed("to-year") {
		toYear = analysis.ToYear
	}
	return engine.YearDates(fromYear, toYear, time.Now())
}

const (
	viewAll         = "all"
	viewParents     = "parents"
	viewIndependent = "independent"
)

func hierarchyCommand() *cobra.Command {
	var (
		flags common.RunFlags
		view  string
	)
	cmd := &cobra.Command{
		Use:   "hierarchy",
		Short: "Show the agency hierarchy",
		Long: `Show the agency hierarchy as an indented tree (--view all), only agencies
with sub-agencies (--view parents) or only top-level agencies without
sub-agencies (--view independent).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := start(&flags)
			if err != nil {
				return err
			}
			defer s.deps.Close()

			facts, err := s.deps.Engine.Load(flags.Context(cmd.Context()))
			if err != nil {
				return err
			}

			var tbl report.Table
			switch view {
			case viewAll:
				tbl = report.HierarchyTable(facts.Mapping)
			case viewParents:
				tbl = report.AgencyListTable("Parent agencies", facts.Forest.ParentAgencies(), facts.Mapping)
			case viewIndependent:
				tbl = report.AgencyListTable("Independent agencies", facts.Forest.Independent(), facts.Mapping)
			default:
				return fmt.Errorf("unknown view %q (want all, parents or independent)", view)
			}

			// structural warnings are the point of this view
			manifest := domain.Manifest{Warnings: facts.Warnings()}
			return common.Output(cmd.OutOrStdout(), s.format, tbl, manifest, true)
		},
	}
	flags.Register(cmd)
	cmd.Flags().StringVar(&view, "view", viewAll, "all, parents or independent")
	return cmd
}
