package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/models"
)

func readings() []models.Reading {
	ts := time.Date(2025, 10, 20, 7, 0, 0, 0, time.UTC)
	idx := 8123
	return []models.Reading{
		{Name: "FECT Akurana", Lat: 7.718, Lon: 80.633, AQI: 42, Category: "Good", Source: "PurpleAir", StationID: "12451", TS: ts},
		{Name: "Colombo", Lat: 6.927, Lon: 79.861, AQI: 87, Category: "Moderate", Source: "IQAir", TS: ts},
		{Name: "Kandy", Lat: 7.29, Lon: 80.63, AQI: 155, Source: "WAQI", Idx: &idx, TS: ts},
		{Name: "No Id", Lat: 7, Lon: 80, AQI: 10, Source: "PurpleAir", TS: ts},
	}
}

func TestBuildRows(t *testing.T) {
	stations, history := BuildRows(readings())
	if len(stations) != 3 || len(history) != 3 {
		t.Fatalf("rows = %d stations, %d history", len(stations), len(history))
	}
	want := []string{"12451", "iqair_Colombo", "waqi_8123"}
	for i, id := range want {
		if stations[i].Identity != id || history[i].Identity != id {
			t.Errorf("row %d identity = %s / %s, want %s", i, stations[i].Identity, history[i].Identity, id)
		}
	}
	if stations[2].Category != "Unhealthy" {
		t.Errorf("derived category = %q", stations[2].Category)
	}
	if stations[0].StationID == nil || *stations[0].StationID != "12451" || stations[1].StationID != nil {
		t.Error("station ids not carried")
	}
}

func TestSaveJSONRoundTripsThroughFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aq_stations.json")
	if err := SaveJSON(path, BuildFeed(readings())); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var raws []station.Raw
	if err := json.Unmarshal(data, &raws); err != nil {
		t.Fatal(err)
	}
	if len(raws) != 4 {
		t.Fatalf("len = %d", len(raws))
	}
	rec, err := station.Normalize(raws[2])
	if err != nil {
		t.Fatal(err)
	}
	if id, err := rec.Identity(); err != nil || id != "waqi_8123" {
		t.Errorf("identity = %s, %v", id, err)
	}
}

func TestBuildFeedCarriesCollectorExtras(t *testing.T) {
	rs := readings()
	pm := 12.0
	rs[0].PM25TenMinute = &pm
	rs[1].NearestStation = "Colombo"
	rs[1].MainPollutant = "p2"

	data, err := json.Marshal(BuildFeed(rs))
	if err != nil {
		t.Fatal(err)
	}
	var got []map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got[0]["pm25_10min"] != 12.0 {
		t.Errorf("pm25_10min = %v", got[0]["pm25_10min"])
	}
	if got[1]["nearest_station"] != "Colombo" || got[1]["main_pollutant"] != "p2" {
		t.Errorf("iqair extras = %v", got[1])
	}
	if got[1]["timestamp"] != "2025-10-20T07:00:00Z" {
		t.Errorf("timestamp = %v", got[1]["timestamp"])
	}
	if _, ok := got[2]["pm25_10min"]; ok {
		t.Error("pm25_10min written for a station without it")
	}
	if _, ok := got[2]["main_pollutant"]; ok {
		t.Error("main_pollutant written for a station without it")
	}
}
