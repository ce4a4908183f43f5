package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regcount/internal/domain"
	"github.com/jonesrussell/north-cloud/regcount/internal/engine"
	"github.com/jonesrussell/north-cloud/regcount/internal/logger"
)

const (
	codeInvalidRequest = "INVALID_REQUEST"
	codeNotFound       = "NOT_FOUND"
	codeUpstream       = "UPSTREAM_UNAVAILABLE"
	codeInternal       = "INTERNAL_ERROR"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// TotalsResponse carries agency totals for one run.
type TotalsResponse struct {
	AsOf       string               `json:"as_of"`
	SeniorOnly bool                 `json:"senior_only"`
	RootsOnly  bool                 `json:"roots"`
	Titles     []int                `json:"titles"`
	Totals     []engine.AgencyTotal `json:"totals"`
	Manifest   domain.Manifest      `json:"manifest"`
}

// TitleTotalsResponse carries title totals for one run.
type TitleTotalsResponse struct {
	AsOf     string              `json:"as_of"`
	Totals   []engine.TitleTotal `json:"totals"`
	Manifest domain.Manifest     `json:"manifest"`
}

// CompositionResponse carries one agency's composition.
type CompositionResponse struct {
	AsOf        string             `json:"as_of"`
	Composition engine.Composition `json:"composition"`
	Manifest    domain.Manifest    `json:"manifest"`
}

// CacheClearResponse confirms a cache clear.
type CacheClearResponse struct {
	Cleared bool `json:"cleared"`
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: codeInvalidRequest, Timestamp: time.Now().UTC()})
}

// fail maps an engine error to a status: unknown agencies are 404 and
// foundational upstream failures 502.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status, code := http.StatusInternalServerError, codeInternal
	switch {
	case errors.Is(err, domain.ErrUnknownAgency):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrFoundationData):
		status, code = http.StatusBadGateway, codeUpstream
	default:
		logger.FromContext(c.Request.Context()).Error("request failed", logger.Error(err))
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code, Timestamp: time.Now().UTC()})
}
