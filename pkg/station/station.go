// Package station normalises heterogeneous sensor-network records into a
// single station model and derives the identity used to join a station with
// its stored history.
package station

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/aqi"
)

// Source is the sensor network a station reports through.
type Source int

const (
	SourceUnknown Source = iota
	PurpleAir
	IQAir
	WAQI
)

// Sources lists the supported networks in display order.
var Sources = []Source{PurpleAir, IQAir, WAQI}

var sourceNames = map[Source]string{
	PurpleAir: "PurpleAir",
	IQAir:     "IQAir",
	WAQI:      "WAQI",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON writes the network name.
func (s Source) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ParseSource matches a feed source string case-insensitively.
func ParseSource(raw string) (Source, error) {
	trimmed := strings.TrimSpace(raw)
	for src, name := range sourceNames {
		if strings.EqualFold(trimmed, name) {
			return src, nil
		}
	}
	return SourceUnknown, &DataIntegrityError{
		Field:   "source",
		Value:   raw,
		Message: "not one of PurpleAir, IQAir, WAQI",
		Err:     ErrUnknownSource,
	}
}

// Identity is the key a station's live record shares with its history series.
type Identity string

// Record is one station's current reading. Identity-bearing fields (Name,
// Source, NativeID, SourceIndex) never change after Normalize.
type Record struct {
	Name        string  `json:"name"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	AQI         int     `json:"aqi"`
	Category    string  `json:"category"`
	Source      Source  `json:"source"`
	NativeID    string  `json:"native_id,omitempty"`
	SourceIndex *int    `json:"source_index,omitempty"`
}

// Identity derives the history join key:
//
//	IQAir     -> "iqair_" + name
//	WAQI      -> pre-supplied station id, else "waqi_" + idx
//	PurpleAir -> native sensor id
func (r Record) Identity() (Identity, error) {
	switch r.Source {
	case IQAir:
		if strings.TrimSpace(r.Name) == "" {
			return "", malformed("name", r.Name, "iqair station needs a name")
		}
		return Identity("iqair_" + r.Name), nil
	case WAQI:
		if r.NativeID != "" {
			return Identity(r.NativeID), nil
		}
		if r.SourceIndex == nil {
			return "", malformed("idx", "", "waqi station needs idx or stationId")
		}
		return Identity("waqi_" + strconv.Itoa(*r.SourceIndex)), nil
	case PurpleAir:
		if r.NativeID == "" {
			return "", malformed("stationId", "", "purpleair station needs a sensor id")
		}
		return Identity(r.NativeID), nil
	default:
		return "", &DataIntegrityError{
			Field:   "source",
			Value:   r.Source.String(),
			Message: "no identity rule",
			Err:     ErrUnknownSource,
		}
	}
}

// Color returns the marker colour for the record's index value.
func (r Record) Color() string {
	return aqi.ColorFor(r.AQI)
}

func malformed(field, value, msg string) error {
	return &DataIntegrityError{Field: field, Value: value, Message: msg, Err: ErrMalformedIdentity}
}

// FlexString decodes a JSON string or number into its string form.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// Raw is a station as it appears in the feed. Collectors for different
// networks fill different optional fields.
type Raw struct {
	Name      string     `json:"name"`
	Lat       float64    `json:"lat"`
	Lon       float64    `json:"lon"`
	AQI       *float64   `json:"aqi"`
	Category  string     `json:"category,omitempty"`
	Source    string     `json:"source"`
	StationID FlexString `json:"stationId,omitempty"`
	Idx       *int       `json:"idx,omitempty"`

	// Written by the collector for reference; the viewer does not read them.
	PM25TenMinute  *float64   `json:"pm25_10min,omitempty"`
	NearestStation string     `json:"nearest_station,omitempty"`
	MainPollutant  string     `json:"main_pollutant,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// Normalize validates raw and converts it into a Record. Only the source and
// the index value are checked here; a record whose identity cannot be derived
// is still a drawable station. It has no side effects.
func Normalize(raw Raw) (Record, error) {
	src, err := ParseSource(raw.Source)
	if err != nil {
		return Record{}, err
	}

	if raw.AQI == nil || math.IsNaN(*raw.AQI) {
		return Record{}, &DataIntegrityError{Field: "aqi", Message: "missing", Err: ErrInvalidAQI}
	}
	if *raw.AQI < 0 {
		return Record{}, &DataIntegrityError{
			Field:   "aqi",
			Value:   strconv.FormatFloat(*raw.AQI, 'f', -1, 64),
			Message: "must be >= 0",
			Err:     ErrInvalidAQI,
		}
	}

	rec := Record{
		Name:     strings.TrimSpace(raw.Name),
		Lat:      raw.Lat,
		Lon:      raw.Lon,
		AQI:      int(math.Round(*raw.AQI)),
		Category: strings.TrimSpace(raw.Category),
		Source:   src,
		NativeID: string(raw.StationID),
	}
	if raw.Idx != nil {
		idx := *raw.Idx
		rec.SourceIndex = &idx
	}
	if rec.Category == "" {
		rec.Category = aqi.CategoryFor(rec.AQI)
	}
	return rec, nil
}
