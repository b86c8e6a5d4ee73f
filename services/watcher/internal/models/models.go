package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// PurpleAirSensor is one entry of the PurpleAir catalogue.
type PurpleAirSensor struct {
	ID   int
	Name string
	Lat  float64
	Lon  float64
}

// IQAirCity is one entry of the IQAir catalogue. The API reports the
// nearest monitored city to the coordinates.
type IQAirCity struct {
	City string
	Lat  float64
	Lon  float64
}

// PurpleAirResponse models GET /v1/sensors/{id}?fields=name,pm2.5_10minute.
type PurpleAirResponse struct {
	Sensor *struct {
		Name  string `json:"name"`
		Stats struct {
			PM25TenMinute *float64 `json:"pm2.5_10minute"`
		} `json:"stats"`
	} `json:"sensor"`
}

// IQAirResponse models GET /v2/nearest_city.
type IQAirResponse struct {
	Status string `json:"status"`
	Data   struct {
		City    string `json:"city"`
		Current struct {
			Pollution struct {
				TS     time.Time `json:"ts"`
				AQIUS  *float64  `json:"aqius"`
				MainUS string    `json:"mainus"`
			} `json:"pollution"`
		} `json:"current"`
	} `json:"data"`
}

// WAQIResponse models GET /feed/@{idx}/. Data is a string message when
// Status is "error".
type WAQIResponse struct {
	Status string   `json:"status"`
	Data   WAQIData `json:"data"`
}

// WAQIData is the station payload of a successful WAQI response.
type WAQIData struct {
	AQI  json.RawMessage `json:"aqi"`
	Idx  int             `json:"idx"`
	City struct {
		Name string    `json:"name"`
		Geo  []float64 `json:"geo"`
	} `json:"city"`
	Time struct {
		ISO string `json:"iso"`
	} `json:"time"`
	Message string `json:"-"`
}

// UnmarshalJSON keeps the message of an error response.
func (d *WAQIData) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		*d = WAQIData{}
		return json.Unmarshal(b, &d.Message)
	}
	type plain WAQIData
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*d = WAQIData(p)
	return nil
}

// Reading is a station's current value as collected, before it is written
// to the feed and the history sinks.
type Reading struct {
	Name      string
	Lat       float64
	Lon       float64
	AQI       int
	Category  string
	Source    string
	StationID string
	Idx       *int
	TS        time.Time

	PM25TenMinute  *float64
	NearestStation string
	MainPollutant  string
}

// StationRow is an aq.stations row.
type StationRow struct {
	Identity  string
	Name      string
	Lat       float64
	Lon       float64
	AQI       int
	Category  string
	Source    string
	StationID *string
	Idx       *int
}

// HistoryRow is an aq.history row.
type HistoryRow struct {
	Identity string
	TS       time.Time
	AQI      int
}
