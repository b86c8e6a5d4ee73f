package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	apidb "github.com/02loveslollipop/aqi-station-viewer/services/api/db"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/models"
)

const schemaDDL = `
CREATE SCHEMA IF NOT EXISTS aq;
CREATE TABLE IF NOT EXISTS aq.stations (
    identity   text PRIMARY KEY,
    name       text NOT NULL,
    lat        double precision NOT NULL,
    lon        double precision NOT NULL,
    aqi        double precision,
    category   text,
    source     text NOT NULL,
    station_id text,
    idx        integer,
    updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS aq.history (
    identity text NOT NULL,
    ts       timestamptz NOT NULL,
    aqi      integer NOT NULL,
    PRIMARY KEY (identity, ts)
)`

// EnsureSchema creates the station and history tables.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertStations inserts/updates the current reading of each station.
func UpsertStations(ctx context.Context, pool *pgxpool.Pool, stations []models.StationRow) error {
	if len(stations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO aq.stations (identity, name, lat, lon, aqi, category, source, station_id, idx, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW())
ON CONFLICT (identity) DO UPDATE
SET name = EXCLUDED.name,
    lat = EXCLUDED.lat,
    lon = EXCLUDED.lon,
    aqi = EXCLUDED.aqi,
    category = EXCLUDED.category,
    source = EXCLUDED.source,
    station_id = EXCLUDED.station_id,
    idx = EXCLUDED.idx,
    updated_at = NOW()`

	for _, s := range stations {
		batch.Queue(query, s.Identity, s.Name, s.Lat, s.Lon, float64(s.AQI), s.Category, s.Source, s.StationID, s.Idx)
	}

	res := pool.SendBatch(ctx, batch)
	defer res.Close()

	for range stations {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}

	return nil
}

// AppendHistory writes readings to aq.history, replacing a reading already
// stored for the same station and timestamp.
func AppendHistory(ctx context.Context, pool *pgxpool.Pool, rows []models.HistoryRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO aq.history (identity, ts, aqi)
VALUES ($1,$2,$3)
ON CONFLICT (identity, ts) DO UPDATE
SET aqi = EXCLUDED.aqi`

	for _, r := range rows {
		batch.Queue(query, r.Identity, r.TS.UTC().Truncate(time.Second), r.AQI)
	}

	res := pool.SendBatch(ctx, batch)
	defer res.Close()

	for range rows {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}

	return nil
}

// AppendSQLite writes readings to the SQLite history file the API can read.
func AppendSQLite(ctx context.Context, path string, rows []models.HistoryRow) error {
	if len(rows) == 0 {
		return nil
	}
	h, err := apidb.OpenSQLiteHistory(ctx, path)
	if err != nil {
		return err
	}
	defer h.Close()

	for id, entries := range GroupHistory(rows) {
		if err := h.Append(ctx, id, entries); err != nil {
			return err
		}
	}
	return nil
}

// GroupHistory groups rows by station identity.
func GroupHistory(rows []models.HistoryRow) map[station.Identity][]history.Entry {
	out := make(map[station.Identity][]history.Entry)
	for _, r := range rows {
		id := station.Identity(r.Identity)
		out[id] = append(out[id], history.Entry{Time: r.TS.UTC(), AQI: r.AQI})
	}
	return out
}
