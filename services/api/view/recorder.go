package view

import (
	"sort"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/focus"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/layers"
)

// Camera is the map centre and zoom.
type Camera struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Zoom int     `json:"zoom"`
}

// Marker is one station pin.
type Marker struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	AQI      int     `json:"aqi"`
	Color    string  `json:"color"`
	Source   string  `json:"source"`
	Identity string  `json:"identity,omitempty"`
	Visible  bool    `json:"visible"`
}

// Pulse is the last glow animation request. Seq grows with every replay so a
// client can tell a repeated pulse on the same marker from a stale one.
type Pulse struct {
	MarkerID int `json:"marker_id"`
	Seq      int `json:"seq"`
}

// Panel is what the detail sidebar shows.
type Panel struct {
	Open        bool           `json:"open"`
	Details     *focus.Details `json:"details,omitempty"`
	LastUpdated string         `json:"last_updated,omitempty"`
	Placeholder string         `json:"placeholder,omitempty"`
}

// ChartData is the series currently drawn in the panel.
type ChartData struct {
	Title   string          `json:"title"`
	Series  []history.Entry `json:"series"`
	Version int             `json:"version"`
}

// Recorder stands in for the browser: it implements the map surface, the
// detail panel and the chart, and remembers what each of them shows.
type Recorder struct {
	camera   Camera
	markers  map[int]pin
	attached map[string]bool
	pulse    Pulse
	panel    Panel
	chart    *ChartData
	charts   int
	notice   string
}

// NewRecorder starts at the default view.
func NewRecorder() *Recorder {
	return &Recorder{
		camera:   Camera{Lat: focus.DefaultLat, Lon: focus.DefaultLon, Zoom: focus.DefaultZoom},
		markers:  make(map[int]pin),
		attached: make(map[string]bool),
	}
}

func (r *Recorder) FlyTo(lat, lon float64, zoom int) {
	r.camera = Camera{Lat: lat, Lon: lon, Zoom: zoom}
}

func (r *Recorder) Pulse(markerID int) {
	r.pulse = Pulse{MarkerID: markerID, Seq: r.pulse.Seq + 1}
}

func (r *Recorder) AttachLayer(name string) { r.attached[name] = true }
func (r *Recorder) DetachLayer(name string) { delete(r.attached, name) }

// AddMarker creates or replaces the pin for id.
func (r *Recorder) AddMarker(id int, rec station.Record) {
	m := Marker{
		ID:     id,
		Name:   rec.Name,
		Lat:    rec.Lat,
		Lon:    rec.Lon,
		AQI:    rec.AQI,
		Color:  rec.Color(),
		Source: rec.Source.String(),
	}
	if ident, err := rec.Identity(); err == nil {
		m.Identity = string(ident)
	}
	r.markers[id] = pin{Marker: m, source: rec.Source}
}

type pin struct {
	Marker
	source station.Source
}

// RemoveMarker drops the pin for id.
func (r *Recorder) RemoveMarker(id int) {
	delete(r.markers, id)
}

func (r *Recorder) ShowDetails(d focus.Details) {
	r.panel.Details = &d
}

func (r *Recorder) Open() { r.panel.Open = true }
func (r *Recorder) Hide() { r.panel.Open = false }

func (r *Recorder) SetLastUpdated(text string) {
	r.panel.LastUpdated = text
}

func (r *Recorder) ShowPlaceholder(text string) {
	r.panel.Placeholder = text
	r.chart = nil
}

// Render replaces the chart. The series is copied.
func (r *Recorder) Render(title string, series []history.Entry) {
	r.charts++
	r.panel.Placeholder = ""
	r.chart = &ChartData{
		Title:   title,
		Series:  append([]history.Entry(nil), series...),
		Version: r.charts,
	}
}

// Notify shows a blocking notice.
func (r *Recorder) Notify(text string) {
	r.notice = text
}

func (r *Recorder) markerList() []Marker {
	out := make([]Marker, 0, len(r.markers))
	for _, p := range r.markers {
		m := p.Marker
		m.Visible = r.attached[layers.SourceLayer(p.source)]
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Recorder) attachedList() []string {
	out := make([]string, 0, len(r.attached))
	for name := range r.attached {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (r *Recorder) chartCopy() (ChartData, bool) {
	if r.chart == nil {
		return ChartData{}, false
	}
	c := *r.chart
	c.Series = append([]history.Entry(nil), r.chart.Series...)
	return c, true
}
