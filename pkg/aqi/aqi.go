// Package aqi maps Air Quality Index values onto the US EPA severity bands
// and converts raw PM2.5 concentrations into an index value.
package aqi

import "math"

// Band is one severity bucket of the index scale.
type Band struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Max   int    `json:"max"` // inclusive upper bound, -1 for the open-ended top band
}

const (
	Good                     = "Good"
	Moderate                 = "Moderate"
	UnhealthySensitiveGroups = "Unhealthy for Sensitive Groups"
	Unhealthy                = "Unhealthy"
	VeryUnhealthy            = "Very Unhealthy"
	Hazardous                = "Hazardous"
)

// Bands lists the scale in ascending order. Each band covers (previous Max, Max].
var Bands = []Band{
	{Name: Good, Color: "#009966", Max: 50},
	{Name: Moderate, Color: "#ffde33", Max: 100},
	{Name: UnhealthySensitiveGroups, Color: "#ff9933", Max: 150},
	{Name: Unhealthy, Color: "#cc0033", Max: 200},
	{Name: VeryUnhealthy, Color: "#660099", Max: 300},
	{Name: Hazardous, Color: "#7e0023", Max: -1},
}

// BandFor returns the band containing v.
func BandFor(v int) Band {
	for _, b := range Bands {
		if b.Max >= 0 && v <= b.Max {
			return b
		}
	}
	return Bands[len(Bands)-1]
}

// CategoryFor returns the band name for v.
func CategoryFor(v int) string {
	return BandFor(v).Name
}

// ColorFor returns the marker colour for v.
func ColorFor(v int) string {
	return BandFor(v).Color
}

type breakpoint struct {
	cLow, cHigh float64
	iLow, iHigh float64
}

// pm25Breakpoints are the EPA 24h PM2.5 breakpoints.
var pm25Breakpoints = []breakpoint{
	{0.0, 12.0, 0, 50},
	{12.1, 35.4, 51, 100},
	{35.5, 55.4, 101, 150},
	{55.5, 150.4, 151, 200},
	{150.5, 250.4, 201, 300},
	{250.5, 500.4, 301, 500},
}

// FromPM25 converts a PM2.5 concentration (µg/m³) to an index value by
// linear interpolation inside its breakpoint. Concentrations that fall
// outside every breakpoint (negative, above 500.4, or in the gaps between
// rounded bounds) report false.
func FromPM25(pm float64) (int, bool) {
	if math.IsNaN(pm) {
		return 0, false
	}
	for _, bp := range pm25Breakpoints {
		if pm >= bp.cLow && pm <= bp.cHigh {
			v := (bp.iHigh-bp.iLow)/(bp.cHigh-bp.cLow)*(pm-bp.cLow) + bp.iLow
			return int(math.Round(v)), true
		}
	}
	return 0, false
}
