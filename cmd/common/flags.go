package common

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/regcount/internal/cache"
	"github.com/jonesrussell/north-cloud/regcount/internal/config"
	"github.com/jonesrussell/north-cloud/regcount/internal/report"
)

// RunFlags are the options shared by every analysis command.
type RunFlags struct {
	AsOf         string
	MaxTitles    int
	NoCache      bool
	Refresh      bool
	IncludeLarge bool
	Delay        time.Duration
	Timeout      time.Duration
	Workers      int
	Format       string
	Warnings     bool
}

// Register adds the flags to cmd.
func (f *RunFlags) Register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.AsOf, "as-of", "", "as-of date YYYY-MM-DD (default today)")
	fs.IntVar(&f.MaxTitles, "max-titles", 0, "number of titles to process, 1-50")
	fs.BoolVar(&f.NoCache, "no-cache", false, "disable the document cache")
	fs.BoolVar(&f.Refresh, "refresh", false, "ignore cached entries and refetch")
	fs.BoolVar(&f.IncludeLarge, "include-large", false, "process known-large titles with the longer timeout")
	fs.DurationVar(&f.Delay, "delay", -1, "minimum spacing between requests")
	fs.DurationVar(&f.Timeout, "timeout", 0, "per-request timeout")
	fs.IntVar(&f.Workers, "workers", 0, "concurrent title workers")
	fs.StringVarP(&f.Format, "format", "o", string(report.FormatTable), "output format: table, csv, markdown, json")
	fs.BoolVar(&f.Warnings, "warnings", false, "include structural warnings in the manifest output")
}

// Apply copies the set flags onto cfg.
func (f *RunFlags) Apply(cfg *config.Config) {
	if f.AsOf != "" {
		cfg.Analysis.AsOf = f.AsOf
	}
	if f.MaxTitles != 0 {
		cfg.Analysis.MaxTitles = f.MaxTitles
	}
	if f.NoCache {
		cfg.Cache.Enabled = false
	}
	if f.IncludeLarge {
		cfg.Analysis.SkipLargeTitles = false
	}
	if f.Delay >= 0 {
		cfg.Fetch.Delay = f.Delay
	}
	if f.Timeout > 0 {
		cfg.Fetch.Timeout = f.Timeout
	}
	if f.Workers > 0 {
		cfg.Fetch.Workers = f.Workers
	}
}

// Context applies --refresh to ctx.
func (f *RunFlags) Context(ctx context.Context) context.Context {
	if f.Refresh {
		return cache.WithForceRefresh(ctx)
	}
	return ctx
}

// OutputFormat validates --format.
func (f *RunFlags) OutputFormat() (report.Format, error) {
	return report.ParseFormat(f.Format)
}
