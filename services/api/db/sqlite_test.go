package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
)

func openTemp(t *testing.T) *SQLiteHistory {
	t.Helper()
	h, err := OpenSQLiteHistory(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteHistory() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func hourly(n int, start time.Time) []history.Entry {
	out := make([]history.Entry, n)
	for i := range out {
		out[i] = history.Entry{Time: start.Add(time.Duration(i) * time.Hour), AQI: 50 + i%10}
	}
	return out
}

func TestSQLiteAppendAndFetch(t *testing.T) {
	ctx := context.Background()
	h := openTemp(t)
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)

	if err := h.Append(ctx, "Colombo-IQAir", hourly(3, start)); err != nil {
		t.Fatal(err)
	}
	if err := h.Append(ctx, "12451-PurpleAir", hourly(2, start)); err != nil {
		t.Fatal(err)
	}
	// Same timestamp replaces the reading.
	if err := h.Append(ctx, "Colombo-IQAir", []history.Entry{{Time: start, AQI: 99}}); err != nil {
		t.Fatal(err)
	}

	all, err := h.Fetch(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all["Colombo-IQAir"]) != 3 || len(all["12451-PurpleAir"]) != 2 {
		t.Fatalf("Fetch() sizes = %d, %d", len(all["Colombo-IQAir"]), len(all["12451-PurpleAir"]))
	}
	if got := all["Colombo-IQAir"][0]; got.AQI != 99 || !got.Time.Equal(start) {
		t.Errorf("first entry = %+v", got)
	}
}

func TestSQLiteFetchStationWindow(t *testing.T) {
	ctx := context.Background()
	h := openTemp(t)
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	if err := h.Append(ctx, "@8675-WAQI", hourly(history.Window+20, start)); err != nil {
		t.Fatal(err)
	}

	entries, found, err := h.FetchStation(ctx, "@8675-WAQI")
	if err != nil || !found {
		t.Fatalf("FetchStation() found=%v err=%v", found, err)
	}
	if len(entries) != history.Window {
		t.Fatalf("len = %d, want %d", len(entries), history.Window)
	}

	got, err := history.NewStore(h, nil).Load(ctx, "@8675-WAQI")
	if err != nil {
		t.Fatal(err)
	}
	want := start.Add(time.Duration(history.Window+19) * time.Hour)
	if last, _ := history.Latest(got); !last.Time.Equal(want) {
		t.Errorf("latest = %v, want %v", last.Time, want)
	}
	if !got[0].Time.Before(got[1].Time) {
		t.Error("series not ascending")
	}

	_, found, err = h.FetchStation(ctx, station.Identity("missing"))
	if err != nil || found {
		t.Errorf("missing station found=%v err=%v", found, err)
	}
}
