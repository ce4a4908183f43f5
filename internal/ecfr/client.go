// Package ecfr reads the agency list, title metadata and full title text
// from the eCFR API.
package ecfr

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/regcount/internal/cache"
	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

const (
	agenciesPath = "/api/admin/v1/agencies.json"
	titlesPath   = "/api/versioner/v1/titles.json"
	fullTextPath = "/api/versioner/v1/full/%s/title-%d.xml"
)

// Fetcher is the subset of fetcher.Fetcher the client needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// Config configures a Client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	LargeTitleTimeout time.Duration
	LargeTitles       []int
	// EngineVersion is folded into every cache key.
	EngineVersion string
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	fetcher Fetcher
	cache   *cache.Cache
	log     logger.Logger
	now     func() time.Time
}

// New creates a Client. The agency and title lists are cached per calendar
// day; pass cache.Disabled to always fetch.
func New(cfg Config, f Fetcher, c *cache.Cache, log logger.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		fetcher: f,
		cache:   c,
		log:     log.With(logger.Component("ecfr")),
		now:     time.Now,
	}
}

// Agencies returns the top-level agency records with nested children.
func (c *Client) Agencies(ctx context.Context) ([]domain.AgencyRecord, error) {
	body, err := c.cachedList(ctx, cache.KindAgencies, agenciesPath)
	if err != nil {
		return nil, fmt.Errorf("fetch agencies: %w", err)
	}

	var resp agenciesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode agencies: %w", err)
	}

	records := make([]domain.AgencyRecord, 0, len(resp.Agencies))
	for _, a := range resp.Agencies {
		records = append(records, a.toRecord())
	}
	c.log.Debug("agencies loaded", logger.Int("top_level", len(records)))
	return records, nil
}

// Titles returns title metadata sorted by title number.
func (c *Client) Titles(ctx context.Context) ([]domain.Title, error) {
	body, err := c.cachedList(ctx, cache.KindTitles, titlesPath)
	if err != nil {
		return nil, fmt.Errorf("fetch titles: %w", err)
	}

	var resp titlesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode titles: %w", err)
	}

	titles := make([]domain.Title, 0, len(resp.Titles))
	for _, t := range resp.Titles {
		if t.Number < domain.MinTitleNumber || t.Number > domain.MaxTitleNumber {
			continue
		}
		titles = append(titles, t.toTitle())
	}
	slices.SortFunc(titles, func(a, b domain.Title) int { return a.Number - b.Number })
	c.log.Debug("titles loaded", logger.Int("count", len(titles)))
	return titles, nil
}

// FullText returns the XML of title as it stood on date. Known-large titles
// get the longer timeout. The document itself is never cached.
func (c *Client) FullText(ctx context.Context, date time.Time, title int) ([]byte, error) {
	return c.fetcher.Fetch(ctx, c.FullTextURL(date, title), c.TimeoutFor(title))
}

// FullTextURL builds the versioner URL for one title at one date.
func (c *Client) FullTextURL(date time.Time, title int) string {
	return c.cfg.BaseURL + fmt.Sprintf(fullTextPath, url.PathEscape(domain.FormatDate(date)), title)
}

// TimeoutFor returns the request timeout used for title.
func (c *Client) TimeoutFor(title int) time.Duration {
	if c.cfg.LargeTitleTimeout > 0 && slices.Contains(c.cfg.LargeTitles, title) {
		return c.cfg.LargeTitleTimeout
	}
	return c.cfg.Timeout
}

// IsLargeTitle reports whether title is on the known-large list.
func (c *Client) IsLargeTitle(title int) bool {
	return slices.Contains(c.cfg.LargeTitles, title)
}

func (c *Client) cachedList(ctx context.Context, kind cache.Kind, path string) ([]byte, error) {
	key := cache.Key{
		Kind:          kind,
		Resource:      path,
		AsOf:          domain.FormatDate(c.now()),
		EngineVersion: c.cfg.EngineVersion,
	}
	return c.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]byte, error) {
		body, err := c.fetcher.Fetch(ctx, c.cfg.BaseURL+path, c.cfg.Timeout)
		if err != nil {
			return nil, err
		}
		if !json.Valid(body) {
			return nil, fmt.Errorf("%s: response is not JSON", path)
		}
		return body, nil
	})
}
