package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/config"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/db"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/models"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/providers"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/utils"
)

// provider is one sensor network.
type provider interface {
	Name() string
	Fetch(ctx context.Context) []models.Reading
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("watcher failed: %v", err)
	}
}

func run() error {
	mode := ""
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	cfg, err := config.Load(mode)
	if err != nil {
		return err
	}

	// Worst case every station exhausts its retries, one network at a time.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	client := providers.NewClient(cfg.RequestTimeout, cfg.MaxAttempts)
	readings := collect(ctx, selectProviders(cfg, client))
	log.Printf("collected %d readings (mode=%s)", len(readings), cfg.Mode)

	feed := utils.BuildFeed(readings)
	stations, history := utils.BuildRows(readings)

	if cfg.DryRun {
		for _, s := range stations {
			log.Printf("dry-run: would write station=%s aqi=%d category=%q", s.Identity, s.AQI, s.Category)
		}
		return nil
	}

	if err := utils.SaveJSON(cfg.OutputPath, feed); err != nil {
		return err
	}
	log.Printf("saved %d stations to %s", len(feed), cfg.OutputPath)

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := db.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		if err := db.UpsertStations(ctx, pool, stations); err != nil {
			return err
		}
		if err := db.AppendHistory(ctx, pool, history); err != nil {
			return err
		}
		log.Printf("upserted %d stations, appended %d history rows", len(stations), len(history))
	}

	if cfg.SQLitePath != "" {
		if err := db.AppendSQLite(ctx, cfg.SQLitePath, history); err != nil {
			return err
		}
		log.Printf("appended %d history rows to %s", len(history), cfg.SQLitePath)
	}

	return nil
}

func selectProviders(cfg config.Config, client *providers.Client) []provider {
	var out []provider
	if cfg.Wants(config.ModePurpleAir) {
		if cfg.PurpleAirAPIKey == "" {
			log.Printf("skipping PurpleAir: PURPLEAIR_API_KEY not set")
		} else {
			out = append(out, &providers.PurpleAir{Client: client, APIKey: cfg.PurpleAirAPIKey, Sensors: providers.DefaultPurpleAirSensors})
		}
	}
	if cfg.Wants(config.ModeIQAir) {
		if cfg.IQAirAPIKey == "" {
			log.Printf("skipping IQAir: IQAIR_API_KEY not set")
		} else {
			out = append(out, &providers.IQAir{Client: client, APIKey: cfg.IQAirAPIKey, Cities: providers.DefaultIQAirCities})
		}
	}
	if cfg.Wants(config.ModeWAQI) {
		if cfg.WAQIToken == "" || len(cfg.WAQIStations) == 0 {
			log.Printf("skipping WAQI: WAQI_TOKEN or WAQI_STATIONS not set")
		} else {
			out = append(out, &providers.WAQI{Client: client, Token: cfg.WAQIToken, Stations: cfg.WAQIStations})
		}
	}
	return out
}

// collect fetches every network concurrently. Readings keep provider order.
func collect(ctx context.Context, ps []provider) []models.Reading {
	results := make([][]models.Reading, len(ps))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range ps {
		g.Go(func() error {
			results[i] = p.Fetch(gctx)
			log.Printf("%s: %d readings", p.Name(), len(results[i]))
			return nil
		})
	}
	_ = g.Wait()

	var out []models.Reading
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}
