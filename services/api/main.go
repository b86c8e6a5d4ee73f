package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/02loveslollipop/aqi-station-viewer/services/api/boundary"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/config"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/db"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/feed"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
	httpserver "github.com/02loveslollipop/aqi-station-viewer/services/api/http"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/layers"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/metrics"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector("aqi")

	var store *db.Store
	if cfg.UsesPostgres() {
		store, err = db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connection error: %v", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			log.Fatalf("db migration error: %v", err)
		}
	}

	var stations view.StationSource = &feed.JSONSource{Location: cfg.StationSource}
	if cfg.StationsFromPostgres() {
		stations = store
	}

	var table history.Table
	switch cfg.HistoryBackend {
	case config.BackendPostgres:
		table = store
	case config.BackendSQLite:
		sqlite, err := db.OpenSQLiteHistory(ctx, cfg.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite error: %v", err)
		}
		defer sqlite.Close()
		table = sqlite
	default:
		table = &feed.JSONHistory{Location: cfg.HistorySource}
	}
	histories := history.NewStore(table, collector)

	catalog := boundary.NewCatalog([]boundary.Source{
		{Name: layers.OverlayDivisions, BoundaryPath: cfg.BoundaryDivisionsPath, PopulationPath: cfg.PopulationDivisionsPath},
		{Name: layers.OverlayDistricts, BoundaryPath: cfg.BoundaryDistrictsPath, PopulationPath: cfg.PopulationDistrictsPath},
	}, collector)
	go catalog.Load(ctx)

	var prefs view.PreferencesFunc
	if store != nil {
		prefs = store.Preferences
	}
	sessions := view.NewManager(view.Deps{
		Stations:     stations,
		History:      histories,
		Overlays:     catalog,
		Observer:     collector,
		FetchTimeout: cfg.FetchTimeout,
	}, prefs, cfg.SessionIdleTTL)
	go sessions.Run(ctx)

	srv := httpserver.New(cfg, httpserver.Deps{
		Stations: stations,
		History:  histories,
		Overlays: catalog,
		Sessions: sessions,
		Metrics:  collector,
	})
	log.Printf("REST API listening on %s (history backend %s)", cfg.ListenAddr(), cfg.HistoryBackend)

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
