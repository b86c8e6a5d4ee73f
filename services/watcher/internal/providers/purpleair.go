package providers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/aqi"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/models"
)

const purpleAirBaseURL = "https://api.purpleair.com/v1"

// DefaultPurpleAirSensors is the PurpleAir catalogue.
var DefaultPurpleAirSensors = []models.PurpleAirSensor{
	{ID: 12451, Name: "FECT Akurana", Lat: 7.718, Lon: 80.633},
	{ID: 157599, Name: "Gregory's Road", Lat: 6.927, Lon: 79.861},
}

// PurpleAir converts each sensor's 10-minute PM2.5 average into an AQI.
type PurpleAir struct {
	Client  *Client
	APIKey  string
	BaseURL string
	Sensors []models.PurpleAirSensor
	Now     func() time.Time
}

func (p *PurpleAir) Name() string { return "PurpleAir" }

// Fetch reads every sensor. Failures are logged and the sensor skipped.
func (p *PurpleAir) Fetch(ctx context.Context) []models.Reading {
	out := make([]models.Reading, 0, len(p.Sensors))
	for _, s := range p.Sensors {
		r, err := p.fetchSensor(ctx, s)
		if err != nil {
			log.Printf("purpleair %s: %v", s.Name, err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func (p *PurpleAir) fetchSensor(ctx context.Context, s models.PurpleAirSensor) (models.Reading, error) {
	base := strings.TrimRight(p.BaseURL, "/")
	if base == "" {
		base = purpleAirBaseURL
	}
	url := fmt.Sprintf("%s/sensors/%d?fields=name,pm2.5_10minute", base, s.ID)
	header := http.Header{}
	header.Set("X-API-Key", p.APIKey)

	var resp models.PurpleAirResponse
	if err := p.Client.GetJSON(ctx, url, header, &resp); err != nil {
		return models.Reading{}, err
	}
	if resp.Sensor == nil {
		return models.Reading{}, errors.New("'sensor' missing")
	}
	pm := resp.Sensor.Stats.PM25TenMinute
	if pm == nil {
		return models.Reading{}, errors.New("pm2.5_10minute not found in stats")
	}
	value, ok := aqi.FromPM25(*pm)
	if !ok {
		return models.Reading{}, fmt.Errorf("pm2.5 %.1f outside the AQI scale", *pm)
	}

	name := strings.TrimSpace(resp.Sensor.Name)
	if name == "" {
		name = s.Name
	}
	return models.Reading{
		Name:      name,
		Lat:       s.Lat,
		Lon:       s.Lon,
		AQI:       value,
		Category:  aqi.CategoryFor(value),
		Source:    "PurpleAir",
		StationID: strconv.Itoa(s.ID),
		TS:        now(p.Now),

		PM25TenMinute: pm,
	}, nil
}

func now(fn func() time.Time) time.Time {
	if fn != nil {
		return fn().UTC()
	}
	return time.Now().UTC()
}
