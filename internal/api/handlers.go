// Package api exposes the engine's views over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regcount/internal/cache"
	"github.com/jonesrussell/north-cloud/regcount/internal/config"
	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/engine"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
	"github.com/jonesrussell/north-cloud/regcount/internal/report"
)

const trueString = "true"

// Handler serves the analysis endpoints.
type Handler struct {
	engine   *engine.Engine
	analysis config.AnalysisConfig
	log      logger.Logger
	started  time.Time
	version  string
	now      func() time.Time
}

// NewHandler creates a Handler. analysis supplies the defaults for as-of
// date, year range and composition collapsing.
func NewHandler(e *engine.Engine, analysis config.AnalysisConfig, version string, log logger.Logger) *Handler {
	return &Handler{
		engine:   e,
		analysis: analysis,
		log:      log,
		started:  time.Now(),
		version:  version,
		now:      time.Now,
	}
}

// AgencyTotals handles GET /api/v1/agencies/totals.
func (h *Handler) AgencyTotals(c *gin.Context) {
	asOf, err := h.asOf(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	seniorOnly := c.Query("senior_only") == trueString
	rootsOnly := c.Query("roots") == trueString

	rep, err := h.engine.Analyze(requestContext(c), asOf)
	if err != nil {
		fail(c, err)
		return
	}

	totals := rep.FullTotals
	if seniorOnly {
		totals = rep.SeniorTotals
	}
	if rootsOnly {
		totals = engine.RootsOnly(totals)
	}
	if c.Query("sort") == "words" {
		engine.SortByWords(totals)
	}
	c.JSON(http.StatusOK, TotalsResponse{
		AsOf:       domain.FormatDate(asOf),
		SeniorOnly: seniorOnly,
		RootsOnly:  rootsOnly,
		Titles:     rep.Titles,
		Totals:     totals,
		Manifest:   rep.Manifest,
	})
}

// TitleTotals handles GET /api/v1/titles/totals.
func (h *Handler) TitleTotals(c *gin.Context) {
	asOf, err := h.asOf(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	rep, err := h.engine.Analyze(requestContext(c), asOf)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, TitleTotalsResponse{
		AsOf:     domain.FormatDate(asOf),
		Totals:   rep.TitleTotals,
		Manifest: rep.Manifest,
	})
}

// Composition handles GET /api/v1/agencies/:slug/composition.
func (h *Handler) Composition(c *gin.Context) {
	asOf, err := h.asOf(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	ctx := requestContext(c)
	facts, err := h.engine.Load(ctx)
	if err != nil {
		fail(c, err)
		return
	}

	comp, manifest, err := h.engine.AgencyComposition(ctx, facts, c.Param("slug"), asOf)
	if err != nil {
		fail(c, err)
		return
	}
	if c.Query("collapse") == trueString {
		comp = comp.Collapse(h.analysis.CollapseThreshold, h.analysis.CollapseMinRows)
	}
	c.JSON(http.StatusOK, CompositionResponse{
		AsOf:        domain.FormatDate(asOf),
		Composition: comp,
		Manifest:    manifest,
	})
}

// TimeSeries handles GET /api/v1/agencies/:slug/timeseries. Dates come from
// a comma-separated dates parameter or from the from_year..to_year range.
func (h *Handler) TimeSeries(c *gin.Context) {
	dates, err := h.seriesDates(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	ctx := requestContext(c)
	facts, err := h.engine.Load(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	ts, err := h.engine.TimeSeries(ctx, facts, c.Param("slug"), dates)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ts)
}

// HierarchyResponse is the agency forest with its structural warnings.
type HierarchyResponse struct {
	Agencies []report.Node `json:"agencies"`
	Warnings []domain.Skip `json:"warnings"`
}

// Hierarchy handles GET /api/v1/agencies/hierarchy.
func (h *Handler) Hierarchy(c *gin.Context) {
	facts, err := h.engine.Load(requestContext(c))
	if err != nil {
		fail(c, err)
		return
	}
	nodes, _ := report.HierarchyTable(facts.Mapping).Data.([]report.Node)
	c.JSON(http.StatusOK, HierarchyResponse{Agencies: nodes, Warnings: facts.Warnings()})
}

// ClearCache handles DELETE /api/v1/cache.
func (h *Handler) ClearCache(c *gin.Context) {
	if err := h.engine.Cache().Clear(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	logger.FromContext(c.Request.Context()).Info("cache cleared")
	c.JSON(http.StatusOK, CacheClearResponse{Cleared: true})
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Cache   bool   `json:"cache_enabled"`
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: "regcount",
		Version: h.version,
		Uptime:  time.Since(h.started).Truncate(time.Second).String(),
		Cache:   h.engine.Cache().Enabled(),
	})
}

func (h *Handler) asOf(c *gin.Context) (time.Time, error) {
	if s := c.Query("as_of"); s != "" {
		d, err := domain.ParseDate(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("as_of must be YYYY-MM-DD: %w", err)
		}
		return d, nil
	}
	return h.analysis.AsOfDate(h.now())
}

func (h *Handler) seriesDates(c *gin.Context) ([]time.Time, error) {
	if raw := c.Query("dates"); raw != "" {
		var dates []time.Time
		for _, s := range strings.Split(raw, ",") {
			d, err := domain.ParseDate(strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("dates must be YYYY-MM-DD: %w", err)
			}
			dates = append(dates, d)
		}
		return dates, nil
	}

	from, err := intQuery(c, "from_year", h.analysis.FromYear)
	if err != nil {
		return nil, err
	}
	to, err := intQuery(c, "to_year", h.analysis.ToYear)
	if err != nil {
		return nil, err
	}
	return engine.YearDates(from, to, h.now())
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	s := c.Query(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

// requestContext tags the request logger with the agency, if any, and honors
// refresh=true by bypassing cache reads.
func requestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if slug := c.Param("slug"); slug != "" {
		ctx = logger.WithFields(ctx, logger.String("agency", slug))
		c.Request = c.Request.WithContext(ctx)
	}
	if c.Query("refresh") == trueString {
		ctx = cache.WithForceRefresh(ctx)
	}
	return ctx
}
