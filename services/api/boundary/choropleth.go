package boundary

import (
	"github.com/paulmach/orb/geojson"
)

// Step is one class of the population ramp: regions with at most Max people
// get Color.
type Step struct {
	Max   int64
	Color string
}

// Ramp is ordered by Max; counts above the last step get the last colour.
var Ramp = []Step{
	{50_000, "#ffffb2"},
	{100_000, "#fed976"},
	{250_000, "#feb24c"},
	{500_000, "#fd8d3c"},
	{1_000_000, "#f03b20"},
	{2_000_000, "#bd0026"},
}

// NoDataColor fills regions missing from the population table.
const NoDataColor = "#cccccc"

// ColorFor picks the ramp colour of a head count.
func ColorFor(population int64) string {
	for _, s := range Ramp {
		if population <= s.Max {
			return s.Color
		}
	}
	return Ramp[len(Ramp)-1].Color
}

// nameProperties are checked in order for a feature's region name.
var nameProperties = []string{"name", "NAME", "shapeName", "ADM3_EN", "ADM2_EN", "district", "division"}

// RegionName extracts a feature's region name, or "".
func RegionName(f *geojson.Feature) string {
	for _, key := range nameProperties {
		if v, ok := f.Properties[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Colorize sets "fill" and, when known, "population" on every feature.
func Colorize(fc *geojson.FeatureCollection, pop Population) {
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		n, ok := pop.Lookup(RegionName(f))
		if !ok {
			f.Properties["fill"] = NoDataColor
			continue
		}
		f.Properties["population"] = n
		f.Properties["fill"] = ColorFor(n)
	}
}
