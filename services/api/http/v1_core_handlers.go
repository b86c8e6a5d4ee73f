package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/chart"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/focus"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
)

// stationView is a normalised station with its derived fields.
type stationView struct {
	station.Record
	Identity string `json:"identity,omitempty"`
	Color    string `json:"color"`
}

// handleV1ListStations returns every usable station in the feed
// GET /api/v1/core/stations
func (s *Server) handleV1ListStations(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	raws, err := s.deps.Stations.FetchStations(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	stations := make([]stationView, 0, len(raws))
	rejected := 0
	for _, raw := range raws {
		rec, err := station.Normalize(raw)
		if err != nil {
			rejected++
			continue
		}
		v := stationView{Record: rec, Color: rec.Color()}
		if id, err := rec.Identity(); err == nil {
			v.Identity = string(id)
		}
		stations = append(stations, v)
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stations,
		"meta": gin.H{
			"count":    len(stations),
			"rejected": rejected,
		},
	})
}

// handleV1StationHistory returns a station's recent series
// GET /api/v1/core/stations/:identity/history
func (s *Server) handleV1StationHistory(c *gin.Context) {
	id, entries, ok := s.loadHistory(c)
	if !ok {
		return
	}

	meta := gin.H{
		"identity": id,
		"count":    len(entries),
	}
	if latest, found := history.Latest(entries); found {
		meta["last_updated"] = focus.FormatLastUpdated(latest.Time)
	}
	c.JSON(http.StatusOK, gin.H{
		"data": entries,
		"meta": meta,
	})
}

// handleV1StationChart draws a station's recent series
// GET /api/v1/core/stations/:identity/chart.png?theme=dark
func (s *Server) handleV1StationChart(c *gin.Context) {
	id, entries, ok := s.loadHistory(c)
	if !ok {
		return
	}
	if len(entries) < focus.MinChartPoints {
		c.JSON(http.StatusNotFound, gin.H{"error": focus.NoHistory})
		return
	}
	dark := strings.EqualFold(c.Query("theme"), "dark")
	s.writeChart(c, string(id), entries, dark)
}

func (s *Server) loadHistory(c *gin.Context) (station.Identity, []history.Entry, bool) {
	id := station.Identity(strings.TrimSpace(c.Param("identity")))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity is required"})
		return "", nil, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	entries, err := s.deps.History.Load(ctx, id)
	if err != nil {
		status := http.StatusInternalServerError
		if station.IsFetchFailure(err) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return "", nil, false
	}
	return id, entries, true
}

func (s *Server) writeChart(c *gin.Context, title string, entries []history.Entry, dark bool) {
	var buf bytes.Buffer
	if err := chart.Render(&buf, title, entries, chart.Options{Dark: dark}); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, chart.ErrTooFewPoints) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}
