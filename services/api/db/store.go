package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/layers"
)

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const preferencesDDL = `
CREATE SCHEMA IF NOT EXISTS aq;
CREATE TABLE IF NOT EXISTS aq.preferences (
    client_id  text PRIMARY KEY,
    theme      text NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
)`

// Migrate creates the tables the API writes to. The station and history
// tables belong to the watcher.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, preferencesDDL); err != nil {
		return fmt.Errorf("migrate preferences: %w", err)
	}
	return nil
}

const listStationsSQL = `
    SELECT name, lat, lon, aqi, category, source, station_id, idx
    FROM aq.stations
    ORDER BY source, name
`

// FetchStations returns the current station feed in the shape the JSON
// feed uses, so both go through the same normalisation.
func (s *Store) FetchStations(ctx context.Context) ([]station.Raw, error) {
	rows, err := s.pool.Query(ctx, listStationsSQL)
	if err != nil {
		return nil, &station.FetchFailure{Resource: "station feed", Err: err}
	}
	defer rows.Close()

	out := make([]station.Raw, 0)
	for rows.Next() {
		var (
			raw       station.Raw
			aqiValue  *float64
			category  *string
			stationID *string
			idx       *int32
		)
		if err := rows.Scan(
			&raw.Name,
			&raw.Lat,
			&raw.Lon,
			&aqiValue,
			&category,
			&raw.Source,
			&stationID,
			&idx,
		); err != nil {
			return nil, &station.FetchFailure{Resource: "station feed", Err: err}
		}
		raw.AQI = aqiValue
		if category != nil {
			raw.Category = *category
		}
		if stationID != nil {
			raw.StationID = station.FlexString(*stationID)
		}
		if idx != nil {
			v := int(*idx)
			raw.Idx = &v
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, &station.FetchFailure{Resource: "station feed", Err: err}
	}
	return out, nil
}

const allHistorySQL = `
    SELECT identity, ts, aqi
    FROM aq.history
    ORDER BY identity, ts
`

// Fetch reads the whole history table.
func (s *Store) Fetch(ctx context.Context) (map[station.Identity][]history.Entry, error) {
	rows, err := s.pool.Query(ctx, allHistorySQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[station.Identity][]history.Entry)
	for rows.Next() {
		var (
			id string
			e  history.Entry
		)
		if err := rows.Scan(&id, &e.Time, &e.AQI); err != nil {
			return nil, err
		}
		e.Time = e.Time.UTC()
		out[station.Identity(id)] = append(out[station.Identity(id)], e)
	}
	return out, rows.Err()
}

const stationHistorySQL = `
    SELECT ts, aqi
    FROM aq.history
    WHERE identity = $1
    ORDER BY ts DESC
    LIMIT $2
`

// FetchStation reads the most recent window of one station's rows.
func (s *Store) FetchStation(ctx context.Context, id station.Identity) ([]history.Entry, bool, error) {
	rows, err := s.pool.Query(ctx, stationHistorySQL, string(id), history.Window)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	out := make([]history.Entry, 0, history.Window)
	for rows.Next() {
		var e history.Entry
		if err := rows.Scan(&e.Time, &e.AQI); err != nil {
			return nil, false, err
		}
		e.Time = e.Time.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}

// Preferences returns the theme store of one client.
func (s *Store) Preferences(clientID string) layers.PreferenceStore {
	return &preferences{pool: s.pool, clientID: strings.TrimSpace(clientID)}
}

type preferences struct {
	pool     *pgxpool.Pool
	clientID string
}

const (
	loadThemeSQL = `SELECT theme FROM aq.preferences WHERE client_id = $1`
	saveThemeSQL = `
INSERT INTO aq.preferences (client_id, theme, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (client_id) DO UPDATE
SET theme = EXCLUDED.theme,
    updated_at = EXCLUDED.updated_at`
)

func (p *preferences) LoadTheme(ctx context.Context) (layers.Theme, error) {
	if p.clientID == "" {
		return layers.ThemeLight, nil
	}
	var raw string
	err := p.pool.QueryRow(ctx, loadThemeSQL, p.clientID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return layers.ThemeLight, nil
	}
	if err != nil {
		return layers.ThemeLight, err
	}
	return layers.ParseTheme(raw)
}

func (p *preferences) SaveTheme(ctx context.Context, theme layers.Theme) error {
	if p.clientID == "" {
		return nil
	}
	_, err := p.pool.Exec(ctx, saveThemeSQL, p.clientID, string(theme), time.Now().UTC())
	return err
}
