package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/aqi-station-viewer/services/api/boundary"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/layers"
)

// handleV1ListOverlays reports which population overlays have loaded
// GET /api/v1/overlays
func (s *Server) handleV1ListOverlays(c *gin.Context) {
	overlays := make([]gin.H, 0, len(layers.Overlays))
	for _, name := range layers.Overlays {
		overlays = append(overlays, gin.H{
			"name":  name,
			"ready": s.deps.Overlays != nil && s.deps.Overlays.Ready(name),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"data": overlays,
		"meta": gin.H{"count": len(overlays)},
	})
}

// handleV1Overlay returns a choropleth FeatureCollection; every feature
// carries "fill" and, when known, "population" properties
// GET /api/v1/overlays/:name
func (s *Server) handleV1Overlay(c *gin.Context) {
	if s.deps.Overlays == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": boundary.ErrNotReady.Error()})
		return
	}

	doc, err := s.deps.Overlays.GeoJSON(c.Param("name"))
	switch {
	case errors.Is(err, boundary.ErrUnknownOverlay):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, boundary.ErrNotReady):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/geo+json", doc)
}
