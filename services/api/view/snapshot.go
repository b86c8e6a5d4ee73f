package view

import (
	"context"

	"github.com/02loveslollipop/aqi-station-viewer/services/api/layers"
)

// SearchResult is one entry of the visible result list.
type SearchResult struct {
	MarkerID int    `json:"marker_id"`
	Name     string `json:"name"`
	Source   string `json:"source"`
}

// SearchState is the search box and its result list.
type SearchState struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Active  int            `json:"active_index"`
	Visible bool           `json:"visible"`
}

// FocusState describes the focused station.
type FocusState struct {
	MarkerID int    `json:"marker_id"`
	Name     string `json:"name"`
	Identity string `json:"identity,omitempty"`
	Token    uint64 `json:"token"`
	Pending  bool   `json:"pending"`
}

// ChartSummary tells a client whether to fetch a new chart image.
type ChartSummary struct {
	Title   string `json:"title"`
	Points  int    `json:"points"`
	Version int    `json:"version"`
}

// Snapshot is everything a client needs to draw the session.
type Snapshot struct {
	ID       string        `json:"id"`
	Status   string        `json:"status"`
	Notice   string        `json:"notice,omitempty"`
	Camera   Camera        `json:"camera"`
	Pulse    Pulse         `json:"pulse"`
	Markers  []Marker      `json:"markers"`
	Layers   layers.State  `json:"layers"`
	Attached []string      `json:"attached_layers"`
	Panel    Panel         `json:"panel"`
	Chart    *ChartSummary `json:"chart,omitempty"`
	Focus    *FocusState   `json:"focus,omitempty"`
	Search   SearchState   `json:"search"`
	Rejected int           `json:"rejected_stations"`
}

// Snapshot copies the current session state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.Do(ctx, func() { snap = s.snapshot() })
	return snap, err
}

func (s *Session) snapshot() Snapshot {
	r := s.recorder
	snap := Snapshot{
		ID:       s.id.String(),
		Status:   s.status,
		Notice:   r.notice,
		Camera:   r.camera,
		Pulse:    r.pulse,
		Markers:  r.markerList(),
		Layers:   s.layers.State(),
		Attached: r.attachedList(),
		Panel:    r.panel,
		Search:   SearchState{Active: -1, Results: []SearchResult{}},
		Rejected: s.rejected,
	}
	if r.panel.Details != nil {
		d := *r.panel.Details
		snap.Panel.Details = &d
	}
	if r.chart != nil {
		snap.Chart = &ChartSummary{Title: r.chart.Title, Points: len(r.chart.Series), Version: r.chart.Version}
	}
	if cur, ok := s.focus.Current(); ok {
		fs := &FocusState{
			MarkerID: cur.MarkerID,
			Name:     cur.Record.Name,
			Token:    s.focus.Token(),
			Pending:  s.focus.Pending(),
		}
		if id, err := cur.Record.Identity(); err == nil {
			fs.Identity = string(id)
		}
		snap.Focus = fs
	}
	if s.search != nil {
		snap.Search.Query = s.search.LastQuery()
		snap.Search.Active = s.search.ActiveIndex()
		snap.Search.Visible = s.search.Visible()
		if snap.Search.Visible {
			for _, e := range s.search.Entries() {
				snap.Search.Results = append(snap.Search.Results, SearchResult{
					MarkerID: e.MarkerID,
					Name:     e.Record.Name,
					Source:   e.Record.Source.String(),
				})
			}
		}
	}
	return snap
}
