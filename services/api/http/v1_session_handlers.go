package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/layers"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/search"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/view"
)

type sessionHandler func(c *gin.Context, sess *view.Session)

// withSession resolves the :id parameter to a live session.
func (s *Server) withSession(h sessionHandler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}
		sess, ok := s.deps.Sessions.Get(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h(c, sess)
	}
}

// respondSnapshot writes the session state. With ?wait=true it first waits
// for outstanding fetches so the snapshot includes their results.
func respondSnapshot(c *gin.Context, sess *view.Session, status int) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		if err := sess.Settle(ctx); err != nil {
			respondSessionError(c, err)
			return
		}
	}
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(status, gin.H{"data": snap})
}

func respondSessionError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, view.ErrClosed),
		errors.Is(err, view.ErrUnknownMarker),
		errors.Is(err, search.ErrNoSuchResult),
		errors.Is(err, layers.ErrUnknownOverlay):
		status = http.StatusNotFound
	case errors.Is(err, view.ErrNotLoaded):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

type createSessionRequest struct {
	ClientID string `json:"client_id"`
}

// handleV1CreateSession opens a map view and loads its stations
// POST /api/v1/sessions
func (s *Server) handleV1CreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.ClientID == "" {
		req.ClientID = c.GetHeader("X-Client-ID")
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	sess, err := s.deps.Sessions.Create(ctx, strings.TrimSpace(req.ClientID))
	if err != nil {
		respondSessionError(c, err)
		return
	}
	if err := sess.Settle(ctx); err != nil {
		respondSessionError(c, err)
		return
	}
	c.Header("Location", "/api/v1/sessions/"+sess.ID().String())
	respondSnapshot(c, sess, http.StatusCreated)
}

// handleV1GetSession returns the session state
// GET /api/v1/sessions/:id?wait=true
func (s *Server) handleV1GetSession(c *gin.Context, sess *view.Session) {
	respondSnapshot(c, sess, http.StatusOK)
}

// handleV1DeleteSession closes a session
// DELETE /api/v1/sessions/:id
func (s *Server) handleV1DeleteSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	if !s.deps.Sessions.Delete(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// handleV1ClickMarker focuses a station from the map
// POST /api/v1/sessions/:id/markers/:marker/click
func (s *Server) handleV1ClickMarker(c *gin.Context, sess *view.Session) {
	marker, err := strconv.Atoi(c.Param("marker"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid marker id"})
		return
	}
	if err := sess.ClickMarker(c.Request.Context(), marker); err != nil {
		respondSessionError(c, err)
		return
	}
	respondSnapshot(c, sess, http.StatusOK)
}

type searchRequest struct {
	Query string `json:"query"`
}

// handleV1Search runs a search; a blank query hides the result list
// PUT /api/v1/sessions/:id/search
func (s *Server) handleV1Search(c *gin.Context, sess *view.Session) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := sess.Search(c.Request.Context(), req.Query); err != nil {
		respondSessionError(c, err)
		return
	}
	respondSnapshot(c, sess, http.StatusOK)
}

type keyRequest struct {
	Key string `json:"key" binding:"required"`
}

// handleV1SearchKey moves through the result list or selects the active result
// POST /api/v1/sessions/:id/search/keys
func (s *Server) handleV1SearchKey(c *gin.Context, sess *view.Session) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key, err := search.ParseKey(req.Key)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := sess.SearchKey(c.Request.Context(), key); err != nil {
		respondSessionError(c, err)
		return
	}
	respondSnapshot(c, sess, http.StatusOK)
}

// handleV1SelectResult focuses the n-th search result
// POST /api/v1/sessions/:id/search/results/:index/select
func (s *Server) handleV1SelectResult(c *gin.Context, sess *view.Session) {
	n, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result index"})
		return
	}
	if err := sess.SelectResult(c.Request.Context(), n); err != nil {
		respondSessionError(c, err)
		return
	}
	respondSnapshot(c, sess, http.StatusOK)
}

type visibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// handleV1SetSource shows or hides one sensor network
// PUT /api/v1/sessions/:id/layers/sources/:source
func (s *Server) handleV1SetSource(c *gin.Context, sess *view.Session) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	src, err := station.ParseSource(c.Param("source"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err := sess.SetSourceVisible(c.Request.Context(), src, *req.Visible); err != nil {
		respondSessionError(c, err)
		return
	}
	respondSnapshot(c, sess, http.StatusOK)
}

// handleV1SetAllSources shows or hides every sensor network
// PUT /api/v1/sessions/:id/layers/sources
func (s *Server) handleV1SetAllSources(c *gin.Context, sess *view.Session) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := sess.SetAllSourcesVisible(c.Request.Context(), *req.Visible); err != nil {
		respondSessionError(c, err)
		return
	}
	respondSnapshot(c, sess, http.StatusOK)
}

// handleV1ToggleOverlay flips a population overlay
// POST /api/v1/sessions/:id/layers/overlays/:name/toggle
func (s *Server) handleV1ToggleOverlay(c *gin.Context, sess *view.Session) {
	if err := sess.ToggleOverlay(c.Request.Context(), c.Param("name")); err != nil {
		respondSessionError(c, err)
		return
	}
	respondSnapshot(c, sess, http.StatusOK)
}

// handleV1ToggleTheme swaps the basemap and persists the choice
// POST /api/v1/sessions/:id/theme/toggle
func (s *Server) handleV1ToggleTheme(c *gin.Context, sess *view.Session) {
	if _, err := sess.ToggleTheme(c.Request.Context()); err != nil {
		respondSessionError(c, err)
		return
	}
	respondSnapshot(c, sess, http.StatusOK)
}

// handleV1ClosePanel hides the detail panel
// POST /api/v1/sessions/:id/panel/close
func (s *Server) handleV1ClosePanel(c *gin.Context, sess *view.Session) {
	if err := sess.ClosePanel(c.Request.Context()); err != nil {
		respondSessionError(c, err)
		return
	}
	respondSnapshot(c, sess, http.StatusOK)
}

// handleV1Refresh re-centres the map
// POST /api/v1/sessions/:id/refresh
func (s *Server) handleV1Refresh(c *gin.Context, sess *view.Session) {
	if err := sess.Refresh(c.Request.Context()); err != nil {
		respondSessionError(c, err)
		return
	}
	respondSnapshot(c, sess, http.StatusOK)
}

// handleV1SessionChart draws the chart shown in the panel, in the session's theme
// GET /api/v1/sessions/:id/chart.png
func (s *Server) handleV1SessionChart(c *gin.Context, sess *view.Session) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	data, ok, err := sess.Chart(ctx)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no chart in panel"})
		return
	}
	snap, err := sess.Snapshot(ctx)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	s.writeChart(c, data.Title, data.Series, snap.Layers.Theme == layers.ThemeDark)
}
