package http

// registerV1Routes sets up the v1 API structure
// Groups: /api/v1/core, /api/v1/overlays, /api/v1/sessions
func (s *Server) registerV1Routes() {
	v1 := s.engine.Group("/api/v1")
	v1.Use(apiVersionMiddleware()) // Add X-API-Version: v1 header

	// Core endpoints - station feed and history
	core := v1.Group("/core")
	{
		core.GET("/stations", s.handleV1ListStations)
		core.GET("/stations/:identity/history", s.handleV1StationHistory)
		core.GET("/stations/:identity/chart.png", s.handleV1StationChart)
	}

	// Overlay endpoints - choropleth GeoJSON
	v1.GET("/overlays", s.handleV1ListOverlays)
	v1.GET("/overlays/:name", s.handleV1Overlay)

	// Session endpoints - one map view per session
	sessions := v1.Group("/sessions")
	{
		sessions.POST("", s.handleV1CreateSession)
		sessions.GET("/:id", s.withSession(s.handleV1GetSession))
		sessions.DELETE("/:id", s.handleV1DeleteSession)

		sessions.POST("/:id/markers/:marker/click", s.withSession(s.handleV1ClickMarker))
		sessions.PUT("/:id/search", s.withSession(s.handleV1Search))
		sessions.POST("/:id/search/keys", s.withSession(s.handleV1SearchKey))
		sessions.POST("/:id/search/results/:index/select", s.withSession(s.handleV1SelectResult))

		sessions.PUT("/:id/layers/sources", s.withSession(s.handleV1SetAllSources))
		sessions.PUT("/:id/layers/sources/:source", s.withSession(s.handleV1SetSource))
		sessions.POST("/:id/layers/overlays/:name/toggle", s.withSession(s.handleV1ToggleOverlay))
		sessions.POST("/:id/theme/toggle", s.withSession(s.handleV1ToggleTheme))

		sessions.POST("/:id/panel/close", s.withSession(s.handleV1ClosePanel))
		sessions.POST("/:id/refresh", s.withSession(s.handleV1Refresh))
		sessions.GET("/:id/chart.png", s.withSession(s.handleV1SessionChart))
	}
}
