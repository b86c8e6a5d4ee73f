// Package view runs server-side map sessions. Each session owns its focus,
// layer and search state on a single goroutine; HTTP handlers and background
// fetches talk to it by queueing closures.
package view

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/focus"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/layers"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/search"
)

// FeedFailureNotice is shown when the station list cannot be loaded.
const FeedFailureNotice = "Failed to load AQI data."

// Session load status.
const (
	StatusLoading = "loading"
	StatusReady   = "ready"
	StatusFailed  = "failed"
)

var (
	// ErrClosed is returned for operations on a closed or evicted session.
	ErrClosed = errors.New("session closed")
	// ErrNotLoaded is returned by station operations before the feed has loaded
	// or after it failed.
	ErrNotLoaded = errors.New("stations not loaded")
	// ErrUnknownMarker is returned for a marker id the session never created.
	ErrUnknownMarker = errors.New("unknown marker")
)

// StationSource provides the raw station feed.
type StationSource interface {
	FetchStations(ctx context.Context) ([]station.Raw, error)
}

// OverlaySource reports when an overlay's boundary data becomes available.
// fn may run on any goroutine, immediately if the overlay is already loaded.
type OverlaySource interface {
	OnReady(name string, fn func())
}

// Observer receives session events; it may be nil.
type Observer interface {
	focus.Observer
	StationRejected(reason string)
	SessionsActive(n int)
}

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Stations     StationSource
	History      focus.Loader
	Overlays     OverlaySource
	Observer     Observer
	FetchTimeout time.Duration
}

// Session is one user's map view.
type Session struct {
	id     uuid.UUID
	deps   Deps
	events chan func()
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	used   atomic.Int64

	// Everything below is owned by the loop goroutine.
	recorder *Recorder
	prefs    layers.PreferenceStore
	layers   *layers.Registry
	focus    *focus.Controller
	search   *search.Index
	markers  map[int]station.Record
	status   string
	rejected int
	inflight int
	waiters  []chan struct{}

	// Theme writes run one at a time; a toggle made during a write is queued.
	savingTheme  bool
	pendingTheme layers.Theme
}

func newSession(id uuid.UUID, deps Deps, prefs layers.PreferenceStore) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:       id,
		deps:     deps,
		events:   make(chan func()),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		recorder: NewRecorder(),
		prefs:    prefs,
		markers:  make(map[int]station.Record),
		status:   StatusLoading,
	}
	s.touch()
	s.layers = layers.New(s.recorder)
	s.focus = focus.New(focus.Config{
		Surface:    s.recorder,
		Panel:      s.recorder,
		Chart:      s.recorder,
		Loader:     deps.History,
		Dispatcher: s,
		Observer:   deps.Observer,
	})
	go s.run()
	return s
}

// ID returns the session id.
func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.events:
			fn()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) post(fn func()) bool {
	select {
	case s.events <- fn:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// Do runs fn on the session goroutine and waits for it to return.
func (s *Session) Do(ctx context.Context, fn func()) error {
	s.touch()
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.events <- task:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Go runs work on its own goroutine and queues the completion it returns back
// onto the session loop. It must be called from the loop.
func (s *Session) Go(work func(ctx context.Context) func()) {
	s.inflight++
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.fetchTimeout())
		done := work(ctx)
		cancel()
		s.post(func() {
			if done != nil {
				done()
			}
			s.inflight--
			if s.inflight == 0 {
				for _, w := range s.waiters {
					close(w)
				}
				s.waiters = nil
			}
		})
	}()
}

func (s *Session) fetchTimeout() time.Duration {
	if s.deps.FetchTimeout > 0 {
		return s.deps.FetchTimeout
	}
	return 15 * time.Second
}

// Settle waits until no fetch started by the session is outstanding and every
// completion has been applied.
func (s *Session) Settle(ctx context.Context) error {
	idle := make(chan struct{})
	err := s.Do(ctx, func() {
		if s.inflight == 0 {
			close(idle)
			return
		}
		s.waiters = append(s.waiters, idle)
	})
	if err != nil {
		return err
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrClosed
	}
}

// Close stops the loop. Outstanding fetches are cancelled and their results
// dropped.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) touch() {
	s.used.Store(time.Now().UnixNano())
}

// LastUsed is the time of the last operation.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.used.Load())
}

// start requests the theme preference, subscribes to overlay readiness and
// requests the station feed. It runs on the loop.
func (s *Session) start() {
	s.loadTheme()
	if s.deps.Overlays != nil {
		for _, name := range layers.Overlays {
			s.deps.Overlays.OnReady(name, func() {
				go s.post(func() { s.markOverlayReady(name) })
			})
		}
	}
	s.loadStations()
}

func (s *Session) loadTheme() {
	if s.prefs == nil {
		s.layers.RestoreTheme(layers.ThemeLight)
		return
	}
	s.Go(func(ctx context.Context) func() {
		theme := layers.ReadTheme(ctx, s.prefs)
		return func() { s.layers.RestoreTheme(theme) }
	})
}

// saveTheme persists theme off the loop. Writes never overlap, so the last
// toggle is the one that sticks.
func (s *Session) saveTheme(theme layers.Theme) {
	if s.prefs == nil {
		return
	}
	if s.savingTheme {
		s.pendingTheme = theme
		return
	}
	s.savingTheme = true
	s.Go(func(ctx context.Context) func() {
		err := s.prefs.SaveTheme(ctx, theme)
		return func() {
			s.savingTheme = false
			if err != nil {
				log.Printf("session %s: save theme: %v", s.id, err)
			}
			if next := s.pendingTheme; next != "" {
				s.pendingTheme = ""
				s.saveTheme(next)
			}
		}
	})
}

func (s *Session) loadStations() {
	s.status = StatusLoading
	s.Go(func(ctx context.Context) func() {
		raws, err := s.deps.Stations.FetchStations(ctx)
		return func() { s.applyStations(raws, err) }
	})
}

func (s *Session) applyStations(raws []station.Raw, err error) {
	if err != nil {
		log.Printf("session %s: station feed: %v", s.id, err)
		s.status = StatusFailed
		s.recorder.Notify(FeedFailureNotice)
		return
	}

	for id := range s.markers {
		s.recorder.RemoveMarker(id)
	}
	s.markers = make(map[int]station.Record, len(raws))
	s.rejected = 0

	entries := make([]search.Entry, 0, len(raws))
	for i, raw := range raws {
		rec, err := station.Normalize(raw)
		if err != nil {
			reason := rejectReason(err)
			log.Printf("session %s: drop station %d (%q): %v", s.id, i, raw.Name, err)
			s.rejected++
			if s.deps.Observer != nil {
				s.deps.Observer.StationRejected(reason)
			}
			continue
		}
		id := len(entries)
		s.markers[id] = rec
		s.recorder.AddMarker(id, rec)
		entries = append(entries, search.Entry{MarkerID: id, Record: rec})
	}
	s.search = search.New(entries, s)
	s.status = StatusReady
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, station.ErrUnknownSource):
		return "unknown_source"
	case errors.Is(err, station.ErrInvalidAQI):
		return "invalid_aqi"
	default:
		return "other"
	}
}

func (s *Session) markOverlayReady(name string) {
	if err := s.layers.MarkOverlayReady(name); err != nil {
		log.Printf("session %s: %v", s.id, err)
	}
}

// FocusFromSearch lets the search index move the focus.
func (s *Session) FocusFromSearch(markerID int, rec station.Record) {
	s.focus.Focus(markerID, rec, focus.TriggerSearch)
}

// ClickMarker focuses the station behind a marker.
func (s *Session) ClickMarker(ctx context.Context, markerID int) error {
	var opErr error
	err := s.Do(ctx, func() {
		if s.status != StatusReady {
			opErr = ErrNotLoaded
			return
		}
		rec, ok := s.markers[markerID]
		if !ok {
			opErr = ErrUnknownMarker
			return
		}
		s.focus.Focus(markerID, rec, focus.TriggerMarker)
	})
	if err != nil {
		return err
	}
	return opErr
}

// Search runs a name query and returns the matching stations.
func (s *Session) Search(ctx context.Context, q string) ([]station.Record, error) {
	var out []station.Record
	var opErr error
	err := s.Do(ctx, func() {
		if s.search == nil {
			opErr = ErrNotLoaded
			return
		}
		out = s.search.Query(q)
	})
	if err != nil {
		return nil, err
	}
	return out, opErr
}

// SearchKey forwards a navigation key to the search index.
func (s *Session) SearchKey(ctx context.Context, key search.Key) error {
	var opErr error
	err := s.Do(ctx, func() {
		if s.search == nil {
			opErr = ErrNotLoaded
			return
		}
		s.search.Key(key)
	})
	if err != nil {
		return err
	}
	return opErr
}

// SelectResult focuses result n of the current search.
func (s *Session) SelectResult(ctx context.Context, n int) error {
	var opErr error
	err := s.Do(ctx, func() {
		if s.search == nil {
			opErr = ErrNotLoaded
			return
		}
		opErr = s.search.Select(n)
	})
	if err != nil {
		return err
	}
	return opErr
}

// SetSourceVisible shows or hides one source group.
func (s *Session) SetSourceVisible(ctx context.Context, src station.Source, visible bool) error {
	return s.Do(ctx, func() { s.layers.SetSourceVisible(src, visible) })
}

// SetAllSourcesVisible shows or hides every source group.
func (s *Session) SetAllSourcesVisible(ctx context.Context, visible bool) error {
	return s.Do(ctx, func() { s.layers.SetAllSourcesVisible(visible) })
}

// ToggleOverlay flips a population overlay.
func (s *Session) ToggleOverlay(ctx context.Context, name string) error {
	var opErr error
	if err := s.Do(ctx, func() { opErr = s.layers.ToggleOverlay(name) }); err != nil {
		return err
	}
	return opErr
}

// ToggleTheme swaps the basemap and starts persisting the choice. A failed
// write is logged; the swap stands.
func (s *Session) ToggleTheme(ctx context.Context) (layers.Theme, error) {
	var theme layers.Theme
	err := s.Do(ctx, func() {
		theme = s.layers.ToggleTheme()
		s.saveTheme(theme)
	})
	return theme, err
}

// ClosePanel hides the detail panel without clearing the focus.
func (s *Session) ClosePanel(ctx context.Context) error {
	return s.Do(ctx, s.focus.Close)
}

// Refresh re-centres the map.
func (s *Session) Refresh(ctx context.Context) error {
	return s.Do(ctx, s.focus.Refresh)
}

// Chart returns the series drawn in the panel, if any.
func (s *Session) Chart(ctx context.Context) (ChartData, bool, error) {
	var data ChartData
	var ok bool
	err := s.Do(ctx, func() { data, ok = s.recorder.chartCopy() })
	return data, ok, err
}
