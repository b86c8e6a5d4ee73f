package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apidb "github.com/02loveslollipop/aqi-station-viewer/services/api/db"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/models"
)

func TestAppendSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aq_history.db")
	ts := time.Date(2025, 10, 20, 7, 0, 0, 0, time.UTC)

	rows := []models.HistoryRow{
		{Identity: "iqair_Colombo", TS: ts, AQI: 87},
		{Identity: "12451", TS: ts, AQI: 42},
	}
	if err := AppendSQLite(ctx, path, rows); err != nil {
		t.Fatal(err)
	}
	next := []models.HistoryRow{{Identity: "iqair_Colombo", TS: ts.Add(time.Hour), AQI: 90}}
	if err := AppendSQLite(ctx, path, next); err != nil {
		t.Fatal(err)
	}

	h, err := apidb.OpenSQLiteHistory(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	entries, found, err := h.FetchStation(ctx, "iqair_Colombo")
	if err != nil || !found || len(entries) != 2 {
		t.Fatalf("entries = %v found = %v err = %v", entries, found, err)
	}
}

func TestGroupHistory(t *testing.T) {
	ts := time.Date(2025, 10, 20, 7, 0, 0, 0, time.UTC)
	got := GroupHistory([]models.HistoryRow{
		{Identity: "a", TS: ts, AQI: 1},
		{Identity: "b", TS: ts, AQI: 2},
		{Identity: "a", TS: ts.Add(time.Hour), AQI: 3},
	})
	if len(got["a"]) != 2 || len(got["b"]) != 1 || got["a"][1].AQI != 3 {
		t.Errorf("groups = %v", got)
	}
}
