package providers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/aqi"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/models"
)

const iqAirBaseURL = "https://api.airvisual.com/v2"

// DefaultIQAirCities is the IQAir catalogue.
var DefaultIQAirCities = []models.IQAirCity{
	{City: "Battaramulla", Lat: 6.899, Lon: 79.923},
	{City: "Colombo", Lat: 6.927, Lon: 79.861},
	{City: "Gampaha", Lat: 7.086, Lon: 79.999},
	{City: "Negombo", Lat: 7.208, Lon: 79.835},
	{City: "Nugegoda", Lat: 6.852, Lon: 79.901},
}

// IQAir reads the US AQI of the monitored city nearest each catalogue entry.
// The reading keeps the catalogue name, which is what its identity is built from.
type IQAir struct {
	Client  *Client
	APIKey  string
	BaseURL string
	Cities  []models.IQAirCity
	Now     func() time.Time
}

func (q *IQAir) Name() string { return "IQAir" }

// Fetch reads every city. Failures are logged and the city skipped.
func (q *IQAir) Fetch(ctx context.Context) []models.Reading {
	out := make([]models.Reading, 0, len(q.Cities))
	for _, c := range q.Cities {
		r, err := q.fetchCity(ctx, c)
		if err != nil {
			log.Printf("iqair %s: %v", c.City, err)
			continue
		}
		out = append(out, r)
	}
	return out
}

func (q *IQAir) fetchCity(ctx context.Context, c models.IQAirCity) (models.Reading, error) {
	base := strings.TrimRight(q.BaseURL, "/")
	if base == "" {
		base = iqAirBaseURL
	}
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(c.Lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(c.Lon, 'f', -1, 64))
	params.Set("key", q.APIKey)

	var resp models.IQAirResponse
	if err := q.Client.GetJSON(ctx, base+"/nearest_city?"+params.Encode(), nil, &resp); err != nil {
		return models.Reading{}, err
	}
	if resp.Status != "success" {
		return models.Reading{}, fmt.Errorf("api status %q", resp.Status)
	}
	pollution := resp.Data.Current.Pollution
	if pollution.AQIUS == nil || *pollution.AQIUS < 0 {
		return models.Reading{}, errors.New("aqius missing")
	}
	value := int(math.Round(*pollution.AQIUS))

	if resp.Data.City != "" && !strings.EqualFold(resp.Data.City, c.City) {
		log.Printf("iqair %s: nearest station is %s", c.City, resp.Data.City)
	}
	ts := pollution.TS.UTC()
	if ts.IsZero() {
		ts = now(q.Now)
	}
	return models.Reading{
		Name:     c.City,
		Lat:      c.Lat,
		Lon:      c.Lon,
		AQI:      value,
		Category: aqi.CategoryFor(value),
		Source:   "IQAir",
		TS:       ts,

		NearestStation: resp.Data.City,
		MainPollutant:  pollution.MainUS,
	}, nil
}
