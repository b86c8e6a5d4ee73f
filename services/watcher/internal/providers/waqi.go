package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/aqi"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/models"
)

const waqiBaseURL = "https://api.waqi.info"

// WAQI reads stations of the World Air Quality Index project by index.
type WAQI struct {
	Client   *Client
	Token    string
	BaseURL  string
	Stations []int
	Now      func() time.Time
}

func (w *WAQI) Name() string { return "WAQI" }

// Fetch reads every station. Failures are logged and the station skipped.
func (w *WAQI) Fetch(ctx context.Context) []models.Reading {
	out := make([]models.Reading, 0, len(w.Stations))
	for _, idx := range w.Stations {
		r, err := w.fetchStation(ctx, idx)
		if err != nil {
			log.Printf("waqi @%d: %v", idx, err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func (w *WAQI) fetchStation(ctx context.Context, idx int) (models.Reading, error) {
	base := strings.TrimRight(w.BaseURL, "/")
	if base == "" {
		base = waqiBaseURL
	}
	endpoint := fmt.Sprintf("%s/feed/@%d/?token=%s", base, idx, url.QueryEscape(w.Token))

	var resp models.WAQIResponse
	if err := w.Client.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return models.Reading{}, err
	}
	if resp.Status != "ok" {
		return models.Reading{}, fmt.Errorf("api status %q: %s", resp.Status, resp.Data.Message)
	}

	// "-" marks a station without a current reading.
	var value float64
	if err := json.Unmarshal(resp.Data.AQI, &value); err != nil || value < 0 {
		return models.Reading{}, fmt.Errorf("no current aqi (%s)", string(resp.Data.AQI))
	}
	geo := resp.Data.City.Geo
	if len(geo) != 2 {
		return models.Reading{}, fmt.Errorf("station has no coordinates")
	}

	ts := now(w.Now)
	if parsed, err := time.Parse(time.RFC3339, resp.Data.Time.ISO); err == nil {
		ts = parsed.UTC()
	}
	stationIdx := idx
	if resp.Data.Idx != 0 {
		stationIdx = resp.Data.Idx
	}
	rounded := int(math.Round(value))
	return models.Reading{
		Name:     strings.TrimSpace(resp.Data.City.Name),
		Lat:      geo[0],
		Lon:      geo[1],
		AQI:      rounded,
		Category: aqi.CategoryFor(rounded),
		Source:   "WAQI",
		Idx:      &stationIdx,
		TS:       ts,
	}, nil
}
