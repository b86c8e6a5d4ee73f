package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
)

const sqliteHistoryDDL = `
CREATE TABLE IF NOT EXISTS history (
    identity TEXT    NOT NULL,
    ts       INTEGER NOT NULL,
    aqi      INTEGER NOT NULL,
    PRIMARY KEY (identity, ts)
)`

// SQLiteHistory is a history table kept in a single SQLite file.
type SQLiteHistory struct {
	db *sql.DB
}

// OpenSQLiteHistory opens (and creates, if needed) the history file at path.
func OpenSQLiteHistory(ctx context.Context, path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection; SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragma: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteHistoryDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

// Close closes the file.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}

// Fetch reads the whole table.
func (h *SQLiteHistory) Fetch(ctx context.Context) (map[station.Identity][]history.Entry, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT identity, ts, aqi FROM history ORDER BY identity, ts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[station.Identity][]history.Entry)
	for rows.Next() {
		var (
			id  string
			ts  int64
			val int
		)
		if err := rows.Scan(&id, &ts, &val); err != nil {
			return nil, err
		}
		key := station.Identity(id)
		out[key] = append(out[key], history.Entry{Time: time.Unix(ts, 0).UTC(), AQI: val})
	}
	return out, rows.Err()
}

// FetchStation reads the most recent window of one station's rows.
func (h *SQLiteHistory) FetchStation(ctx context.Context, id station.Identity) ([]history.Entry, bool, error) {
	rows, err := h.db.QueryContext(ctx,
		`SELECT ts, aqi FROM history WHERE identity = ? ORDER BY ts DESC LIMIT ?`,
		string(id), history.Window)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	out := make([]history.Entry, 0)
	for rows.Next() {
		var (
			ts  int64
			val int
		)
		if err := rows.Scan(&ts, &val); err != nil {
			return nil, false, err
		}
		out = append(out, history.Entry{Time: time.Unix(ts, 0).UTC(), AQI: val})
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return out, len(out) > 0, nil
}

// Append stores entries under id, replacing readings with the same timestamp.
func (h *SQLiteHistory) Append(ctx context.Context, id station.Identity, entries []history.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO history (identity, ts, aqi) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, string(id), e.Time.Unix(), e.AQI); err != nil {
			return fmt.Errorf("append %s: %w", id, err)
		}
	}
	return tx.Commit()
}
