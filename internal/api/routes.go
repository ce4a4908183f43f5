package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the API, health and metrics routes. metrics may be nil.
func SetupRoutes(router *gin.Engine, h *Handler, metrics http.Handler) {
	router.GET("/health", h.Health)
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	v1 := router.Group("/api/v1")
	{
		agencies := v1.Group("/agencies")
		agencies.GET("/totals", h.AgencyTotals)
		agencies.GET("/hierarchy", h.Hierarchy)
		agencies.GET("/:slug/composition", h.Composition)
		agencies.GET("/:slug/timeseries", h.TimeSeries)

		v1.GET("/titles/totals", h.TitleTotals)
		v1.DELETE("/cache", h.ClearCache)
	}
}
