// Package focus decides which station the detail panel shows and keeps the
// panel consistent while history requests resolve out of order.
//
// A Controller is driven from a single goroutine. History is loaded through a
// Dispatcher, which runs the fetch elsewhere and hands the completion back to
// that same goroutine; nothing in the controller is locked.
package focus

import (
	"context"
	"strconv"
	"time"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
)

// Map positions used by the controller.
const (
	DetailZoom  = 12
	DefaultLat  = 7.8731
	DefaultLon  = 80.7718
	DefaultZoom = 8
)

// Panel text.
const (
	NotAvailable = "Not available"
	NoHistory    = "No historical data yet"
	Loading      = "Loading..."
)

// MinChartPoints is the shortest series drawn as a chart.
const MinChartPoints = 3

// LastUpdatedLayout formats the newest history timestamp, in UTC.
const LastUpdatedLayout = "2006-01-02 15:04"

// Trigger names what caused a focus change.
type Trigger string

const (
	TriggerMarker Trigger = "marker"
	TriggerSearch Trigger = "search"
)

// Surface is the part of the map the controller drives.
type Surface interface {
	FlyTo(lat, lon float64, zoom int)
	Pulse(markerID int)
}

// Details are the synchronous header fields of the panel.
type Details struct {
	Name     string `json:"name"`
	AQI      int    `json:"aqi"`
	Category string `json:"category"`
	Source   string `json:"source"`
	Color    string `json:"color"`
}

// DetailsFor builds the header of rec.
func DetailsFor(rec station.Record) Details {
	return Details{
		Name:     rec.Name,
		AQI:      rec.AQI,
		Category: rec.Category,
		Source:   rec.Source.String(),
		Color:    rec.Color(),
	}
}

// Panel is the station detail sidebar.
type Panel interface {
	ShowDetails(d Details)
	Open()
	Hide()
	SetLastUpdated(text string)
	// ShowPlaceholder replaces any chart with text.
	ShowPlaceholder(text string)
}

// Chart redraws the panel chart, replacing the previous one.
type Chart interface {
	Render(title string, series []history.Entry)
}

// Loader fetches a station's history series.
type Loader interface {
	Load(ctx context.Context, id station.Identity) ([]history.Entry, error)
}

// Dispatcher runs work off the controller's goroutine. The function work
// returns must be invoked back on the controller's goroutine.
type Dispatcher interface {
	Go(work func(ctx context.Context) func())
}

// Observer is told about transitions and discarded responses; it may be nil.
type Observer interface {
	Focused(trigger Trigger)
	HistoryStale()
}

// Focus is the station currently selected.
type Focus struct {
	MarkerID int
	Record   station.Record
}

// Controller is the focus state machine: Idle until the first Focus call,
// Focused afterwards. Close hides the panel but keeps the focus.
type Controller struct {
	surface  Surface
	panel    Panel
	chart    Chart
	loader   Loader
	dispatch Dispatcher
	observer Observer

	current   *Focus
	token     uint64
	panelOpen bool
	pending   bool
}

// Config wires a Controller. Observer may be nil.
type Config struct {
	Surface    Surface
	Panel      Panel
	Chart      Chart
	Loader     Loader
	Dispatcher Dispatcher
	Observer   Observer
}

// New returns an idle controller.
func New(cfg Config) *Controller {
	return &Controller{
		surface:  cfg.Surface,
		panel:    cfg.Panel,
		chart:    cfg.Chart,
		loader:   cfg.Loader,
		dispatch: cfg.Dispatcher,
		observer: cfg.Observer,
	}
}

// Focus moves the panel to rec. Every call supersedes any history request
// still outstanding for a previous focus.
func (c *Controller) Focus(markerID int, rec station.Record, trigger Trigger) {
	c.token++
	token := c.token
	c.current = &Focus{MarkerID: markerID, Record: rec}
	c.pending = false

	if c.observer != nil {
		c.observer.Focused(trigger)
	}

	c.surface.FlyTo(rec.Lat, rec.Lon, DetailZoom)
	c.surface.Pulse(markerID)
	c.panel.ShowDetails(DetailsFor(rec))
	c.panel.SetLastUpdated(Loading)
	c.panel.ShowPlaceholder(Loading)
	c.panel.Open()
	c.panelOpen = true

	id, err := rec.Identity()
	if err != nil {
		c.showUnavailable()
		return
	}

	c.pending = true
	c.dispatch.Go(func(ctx context.Context) func() {
		entries, err := c.loader.Load(ctx, id)
		return func() { c.resolve(token, rec.Name, entries, err) }
	})
}

func (c *Controller) resolve(token uint64, name string, entries []history.Entry, err error) {
	if token != c.token {
		if c.observer != nil {
			c.observer.HistoryStale()
		}
		return
	}
	c.pending = false

	if err != nil {
		c.showUnavailable()
		return
	}

	latest, ok := history.Latest(entries)
	if !ok {
		c.showUnavailable()
		return
	}
	c.panel.SetLastUpdated(FormatLastUpdated(latest.Time))

	if len(entries) < MinChartPoints {
		c.panel.ShowPlaceholder(NoHistory)
		return
	}
	c.chart.Render(name, entries)
}

func (c *Controller) showUnavailable() {
	c.panel.SetLastUpdated(NotAvailable)
	c.panel.ShowPlaceholder(NoHistory)
}

// Close hides the panel. The focused station is kept.
func (c *Controller) Close() {
	c.panelOpen = false
	c.panel.Hide()
}

// Refresh re-centres the map on the default view.
func (c *Controller) Refresh() {
	c.surface.FlyTo(DefaultLat, DefaultLon, DefaultZoom)
}

// Current returns the focused station, if any.
func (c *Controller) Current() (Focus, bool) {
	if c.current == nil {
		return Focus{}, false
	}
	return *c.current, true
}

// PanelOpen reports whether the panel is shown.
func (c *Controller) PanelOpen() bool {
	return c.panelOpen
}

// Pending reports whether the current focus still waits for its history.
func (c *Controller) Pending() bool {
	return c.pending
}

// Token returns the current request token; 0 before the first focus.
func (c *Controller) Token() uint64 {
	return c.token
}

// FormatLastUpdated renders t for the panel.
func FormatLastUpdated(t time.Time) string {
	return t.UTC().Format(LastUpdatedLayout)
}

// String describes the state, for logs.
func (c *Controller) String() string {
	if c.current == nil {
		return "idle"
	}
	return "focused(" + c.current.Record.Name + ", token " + strconv.FormatUint(c.token, 10) + ")"
}
