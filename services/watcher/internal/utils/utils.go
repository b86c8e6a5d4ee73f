package utils

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/models"
)

// BuildFeed converts readings into feed records.
func BuildFeed(readings []models.Reading) []station.Raw {
	out := make([]station.Raw, 0, len(readings))
	for _, r := range readings {
		value := float64(r.AQI)
		raw := station.Raw{
			Name:      r.Name,
			Lat:       r.Lat,
			Lon:       r.Lon,
			AQI:       &value,
			Category:  r.Category,
			Source:    r.Source,
			StationID: station.FlexString(r.StationID),

			NearestStation: r.NearestStation,
			MainPollutant:  r.MainPollutant,
		}
		if r.Idx != nil {
			idx := *r.Idx
			raw.Idx = &idx
		}
		if r.PM25TenMinute != nil {
			pm := *r.PM25TenMinute
			raw.PM25TenMinute = &pm
		}
		if !r.TS.IsZero() {
			ts := r.TS
			raw.Timestamp = &ts
		}
		out = append(out, raw)
	}
	return out
}

// BuildRows derives each reading's identity and returns the station and
// history rows. Readings without a usable identity are logged and left out.
func BuildRows(readings []models.Reading) ([]models.StationRow, []models.HistoryRow) {
	stations := make([]models.StationRow, 0, len(readings))
	history := make([]models.HistoryRow, 0, len(readings))
	for i, raw := range BuildFeed(readings) {
		rec, err := station.Normalize(raw)
		if err != nil {
			log.Printf("skip %s %q: %v", raw.Source, raw.Name, err)
			continue
		}
		id, err := rec.Identity()
		if err != nil {
			log.Printf("skip %s %q: %v", raw.Source, raw.Name, err)
			continue
		}

		row := models.StationRow{
			Identity: string(id),
			Name:     rec.Name,
			Lat:      rec.Lat,
			Lon:      rec.Lon,
			AQI:      rec.AQI,
			Category: rec.Category,
			Source:   rec.Source.String(),
			Idx:      rec.SourceIndex,
		}
		if rec.NativeID != "" {
			nid := rec.NativeID
			row.StationID = &nid
		}
		stations = append(stations, row)
		history = append(history, models.HistoryRow{Identity: string(id), TS: readings[i].TS, AQI: rec.AQI})
	}
	return stations, history
}

// SaveJSON writes v as indented JSON, replacing path atomically.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".aq-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
