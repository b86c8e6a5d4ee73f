package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/focus"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/layers"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/search"
)

func f(v float64) *float64 { return &v }
func n(v int) *int         { return &v }

func feedFixture() []station.Raw {
	return []station.Raw{
		{Name: "FECT Akurana", Lat: 7.718, Lon: 80.633, AQI: f(42), Category: "Good", Source: "PurpleAir", StationID: "12451"},
		{Name: "Colombo", Lat: 6.927, Lon: 79.861, AQI: f(87), Category: "Moderate", Source: "IQAir"},
		{Name: "Somewhere", Lat: 1, Lon: 1, AQI: f(10), Source: "OpenAQ"},
		{Name: "Kandy", Lat: 7.29, Lon: 80.63, AQI: f(155), Source: "WAQI", Idx: n(8123)},
		{Name: "Broken", Lat: 7, Lon: 80, Source: "IQAir"},
		{Name: "Orphan Sensor", Lat: 7.1, Lon: 80.1, AQI: f(30), Source: "PurpleAir"},
	}
}

type stubStations struct {
	raws []station.Raw
	err  error
}

func (s *stubStations) FetchStations(context.Context) ([]station.Raw, error) {
	return s.raws, s.err
}

// gatedLoader blocks each identity's history until its gate is opened.
type gatedLoader struct {
	mu    sync.Mutex
	gates map[station.Identity]chan struct{}
	rows  map[station.Identity][]history.Entry
	calls []station.Identity
}

func newGatedLoader(rows map[station.Identity][]history.Entry) *gatedLoader {
	return &gatedLoader{gates: map[station.Identity]chan struct{}{}, rows: rows}
}

func (g *gatedLoader) gate(id station.Identity) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[id]
	if !ok {
		ch = make(chan struct{})
		g.gates[id] = ch
	}
	return ch
}

func (g *gatedLoader) open(id station.Identity) { close(g.gate(id)) }

func (g *gatedLoader) Load(ctx context.Context, id station.Identity) ([]history.Entry, error) {
	g.mu.Lock()
	g.calls = append(g.calls, id)
	g.mu.Unlock()
	select {
	case <-g.gate(id):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return history.Recent(g.rows[id], history.Window), nil
}

type instantLoader map[station.Identity][]history.Entry

func (l instantLoader) Load(_ context.Context, id station.Identity) ([]history.Entry, error) {
	return history.Recent(l[id], history.Window), nil
}

type fakeOverlays struct {
	mu  sync.Mutex
	fns map[string][]func()
}

func (o *fakeOverlays) OnReady(name string, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = map[string][]func(){}
	}
	o.fns[name] = append(o.fns[name], fn)
}

func (o *fakeOverlays) fire(name string) {
	o.mu.Lock()
	fns := o.fns[name]
	o.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type countingObserver struct {
	mu       sync.Mutex
	rejected map[string]int
	stale    int
	focused  int
	active   int
}

func (c *countingObserver) Focused(focus.Trigger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused++
}

func (c *countingObserver) HistoryStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale++
}

func (c *countingObserver) StationRejected(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rejected == nil {
		c.rejected = map[string]int{}
	}
	c.rejected[reason]++
}

func (c *countingObserver) SessionsActive(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = n
}

func hourly(n int) []history.Entry {
	start := time.Date(2025, 10, 12, 0, 0, 0, 0, time.UTC)
	out := make([]history.Entry, n)
	for i := range out {
		out[i] = history.Entry{Time: start.Add(time.Duration(i) * time.Hour), AQI: 50 + i}
	}
	return out
}

func newTestSession(t *testing.T, deps Deps) *Session {
	t.Helper()
	m := NewManager(deps, nil, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Settle(ctx); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	return s
}

func snapshot(t *testing.T, s *Session) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return snap
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestLoadStationsRejectsUnknownSources(t *testing.T) {
	obs := &countingObserver{}
	s := newTestSession(t, Deps{
		Stations: &stubStations{raws: feedFixture()},
		History:  instantLoader{},
		Observer: obs,
	})

	snap := snapshot(t, s)
	if snap.Status != StatusReady {
		t.Fatalf("status = %q", snap.Status)
	}
	if len(snap.Markers) != 4 {
		t.Fatalf("markers = %d, want 4", len(snap.Markers))
	}
	wantNames := []string{"FECT Akurana", "Colombo", "Kandy", "Orphan Sensor"}
	for i, m := range snap.Markers {
		if m.ID != i || m.Name != wantNames[i] || !m.Visible {
			t.Errorf("marker %d = %+v", i, m)
		}
	}
	if snap.Markers[2].Identity != "waqi_8123" || snap.Markers[3].Identity != "" {
		t.Errorf("identities = %q, %q", snap.Markers[2].Identity, snap.Markers[3].Identity)
	}
	if snap.Markers[2].Color != "#cc0033" {
		t.Errorf("Kandy colour = %s", snap.Markers[2].Color)
	}
	if snap.Rejected != 2 {
		t.Errorf("rejected = %d", snap.Rejected)
	}
	if obs.rejected["unknown_source"] != 1 || obs.rejected["invalid_aqi"] != 1 {
		t.Errorf("observer rejected = %v", obs.rejected)
	}
	if snap.Layers.Theme != layers.ThemeLight {
		t.Errorf("theme = %q", snap.Layers.Theme)
	}
}

func TestFeedFailureIsTerminal(t *testing.T) {
	s := newTestSession(t, Deps{
		Stations: &stubStations{err: &station.FetchFailure{Resource: "station feed", Err: errors.New("404")}},
		History:  instantLoader{},
	})

	snap := snapshot(t, s)
	if snap.Status != StatusFailed || snap.Notice != FeedFailureNotice {
		t.Fatalf("status=%q notice=%q", snap.Status, snap.Notice)
	}
	ctx := context.Background()
	if err := s.ClickMarker(ctx, 0); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("ClickMarker() error = %v", err)
	}
	if _, err := s.Search(ctx, "col"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Search() error = %v", err)
	}
}

func TestClickMarkerShowsHistory(t *testing.T) {
	s := newTestSession(t, Deps{
		Stations: &stubStations{raws: feedFixture()},
		History:  instantLoader{"iqair_Colombo": hourly(200)},
	})
	ctx := context.Background()

	if err := s.ClickMarker(ctx, 99); !errors.Is(err, ErrUnknownMarker) {
		t.Errorf("ClickMarker(99) error = %v", err)
	}
	if err := s.ClickMarker(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Settle(ctx); err != nil {
		t.Fatal(err)
	}

	snap := snapshot(t, s)
	if snap.Camera != (Camera{Lat: 6.927, Lon: 79.861, Zoom: focus.DetailZoom}) {
		t.Errorf("camera = %+v", snap.Camera)
	}
	if snap.Pulse.MarkerID != 1 || snap.Pulse.Seq != 1 {
		t.Errorf("pulse = %+v", snap.Pulse)
	}
	if !snap.Panel.Open || snap.Panel.Details == nil || snap.Panel.Details.Name != "Colombo" {
		t.Fatalf("panel = %+v", snap.Panel)
	}
	if snap.Panel.LastUpdated != "2025-10-20 07:00" {
		t.Errorf("last updated = %q", snap.Panel.LastUpdated)
	}
	if snap.Chart == nil || snap.Chart.Points != history.Window || snap.Chart.Title != "Colombo" {
		t.Fatalf("chart = %+v", snap.Chart)
	}
	if snap.Focus == nil || snap.Focus.Identity != "iqair_Colombo" || snap.Focus.Pending {
		t.Errorf("focus = %+v", snap.Focus)
	}

	data, ok, err := s.Chart(ctx)
	if err != nil || !ok || len(data.Series) != history.Window {
		t.Errorf("Chart() = %d points, %v, %v", len(data.Series), ok, err)
	}
}

func TestMalformedIdentityRendersWithoutHistory(t *testing.T) {
	loader := newGatedLoader(nil)
	s := newTestSession(t, Deps{Stations: &stubStations{raws: feedFixture()}, History: loader})
	ctx := context.Background()

	if err := s.ClickMarker(ctx, 3); err != nil {
		t.Fatal(err)
	}
	snap := snapshot(t, s)
	if snap.Panel.LastUpdated != focus.NotAvailable || snap.Panel.Placeholder != focus.NoHistory {
		t.Errorf("panel = %+v", snap.Panel)
	}
	if len(loader.calls) != 0 {
		t.Errorf("history requested: %v", loader.calls)
	}
}

func TestRapidRefocusKeepsLatestStation(t *testing.T) {
	loader := newGatedLoader(map[station.Identity][]history.Entry{
		"12451":         hourly(30),
		"iqair_Colombo": hourly(10),
	})
	obs := &countingObserver{}
	s := newTestSession(t, Deps{Stations: &stubStations{raws: feedFixture()}, History: loader, Observer: obs})
	ctx := context.Background()

	if err := s.ClickMarker(ctx, 0); err != nil { // A: Akurana
		t.Fatal(err)
	}
	if err := s.ClickMarker(ctx, 1); err != nil { // B: Colombo
		t.Fatal(err)
	}

	loader.open("iqair_Colombo")
	eventually(t, func() bool { return snapshot(t, s).Chart != nil })
	loader.open("12451")
	if err := s.Settle(ctx); err != nil {
		t.Fatal(err)
	}

	snap := snapshot(t, s)
	if snap.Panel.Details.Name != "Colombo" {
		t.Errorf("header = %q", snap.Panel.Details.Name)
	}
	if snap.Chart == nil || snap.Chart.Title != "Colombo" || snap.Chart.Points != 10 {
		t.Errorf("chart = %+v", snap.Chart)
	}
	if obs.stale != 1 {
		t.Errorf("stale = %d", obs.stale)
	}
}

func TestSearchFlow(t *testing.T) {
	s := newTestSession(t, Deps{
		Stations: &stubStations{raws: feedFixture()},
		History:  instantLoader{"waqi_8123": hourly(2)},
	})
	ctx := context.Background()

	got, err := s.Search(ctx, "kan")
	if err != nil || len(got) != 1 || got[0].Name != "Kandy" {
		t.Fatalf("Search() = %v, %v", got, err)
	}
	snap := snapshot(t, s)
	if !snap.Search.Visible || len(snap.Search.Results) != 1 || snap.Search.Results[0].MarkerID != 2 {
		t.Fatalf("search = %+v", snap.Search)
	}

	if err := s.SearchKey(ctx, search.KeyDown); err != nil {
		t.Fatal(err)
	}
	if err := s.SearchKey(ctx, search.KeyEnter); err != nil {
		t.Fatal(err)
	}
	if err := s.Settle(ctx); err != nil {
		t.Fatal(err)
	}

	snap = snapshot(t, s)
	if snap.Search.Visible || snap.Search.Active != -1 {
		t.Errorf("search after select = %+v", snap.Search)
	}
	if snap.Focus == nil || snap.Focus.MarkerID != 2 {
		t.Fatalf("focus = %+v", snap.Focus)
	}
	if snap.Panel.Placeholder != focus.NoHistory || snap.Chart != nil {
		t.Errorf("short history should show placeholder: %+v", snap.Panel)
	}

	if err := s.SelectResult(ctx, 0); !errors.Is(err, search.ErrNoSuchResult) {
		t.Errorf("SelectResult() on the hidden list error = %v", err)
	}

	if _, err := s.Search(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.SelectResult(ctx, 0); !errors.Is(err, search.ErrNoSuchResult) {
		t.Errorf("SelectResult() error = %v", err)
	}
}

func TestLayerOperations(t *testing.T) {
	overlays := &fakeOverlays{}
	s := newTestSession(t, Deps{
		Stations: &stubStations{raws: feedFixture()},
		History:  instantLoader{},
		Overlays: overlays,
	})
	ctx := context.Background()

	if err := s.SetSourceVisible(ctx, station.IQAir, false); err != nil {
		t.Fatal(err)
	}
	snap := snapshot(t, s)
	if snap.Layers.AllSources || snap.Markers[1].Visible || !snap.Markers[0].Visible {
		t.Errorf("layers = %+v markers = %+v", snap.Layers, snap.Markers)
	}

	if err := s.SetAllSourcesVisible(ctx, true); err != nil {
		t.Fatal(err)
	}
	if snap := snapshot(t, s); !snap.Layers.AllSources || !snap.Markers[1].Visible {
		t.Errorf("all sources not restored: %+v", snap.Layers)
	}

	if err := s.ToggleOverlay(ctx, layers.OverlayDistricts); err != nil {
		t.Fatal(err)
	}
	if err := s.ToggleOverlay(ctx, "rivers"); !errors.Is(err, layers.ErrUnknownOverlay) {
		t.Errorf("ToggleOverlay(rivers) error = %v", err)
	}
	snap = snapshot(t, s)
	for _, name := range snap.Attached {
		if name == "overlay:population-districts" {
			t.Fatal("overlay attached before ready")
		}
	}

	overlays.fire(layers.OverlayDistricts)
	eventually(t, func() bool {
		for _, name := range snapshot(t, s).Attached {
			if name == "overlay:population-districts" {
				return true
			}
		}
		return false
	})

	theme, err := s.ToggleTheme(ctx)
	if err != nil || theme != layers.ThemeDark {
		t.Errorf("ToggleTheme() = %q, %v", theme, err)
	}
}

func TestCloseAndRefreshKeepFocus(t *testing.T) {
	s := newTestSession(t, Deps{
		Stations: &stubStations{raws: feedFixture()},
		History:  instantLoader{},
	})
	ctx := context.Background()

	if err := s.ClickMarker(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.ClosePanel(ctx); err != nil {
		t.Fatal(err)
	}
	if err := s.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	snap := snapshot(t, s)
	if snap.Panel.Open {
		t.Error("panel still open")
	}
	if snap.Focus == nil || snap.Focus.Name != "FECT Akurana" {
		t.Errorf("focus = %+v", snap.Focus)
	}
	if snap.Camera != (Camera{Lat: focus.DefaultLat, Lon: focus.DefaultLon, Zoom: focus.DefaultZoom}) {
		t.Errorf("camera = %+v", snap.Camera)
	}
}

func TestClosedSession(t *testing.T) {
	s := newTestSession(t, Deps{Stations: &stubStations{}, History: instantLoader{}})
	s.Close()
	if _, err := s.Snapshot(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Snapshot() error = %v", err)
	}
}

// gatedPreferences blocks every read and write until its gates are opened.
type gatedPreferences struct {
	mu        sync.Mutex
	saved     layers.Theme
	writes    []layers.Theme
	readGate  chan struct{}
	writeGate chan struct{}
}

func (g *gatedPreferences) LoadTheme(ctx context.Context) (layers.Theme, error) {
	select {
	case <-g.readGate:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saved, nil
}

func (g *gatedPreferences) SaveTheme(ctx context.Context, theme layers.Theme) error {
	select {
	case <-g.writeGate:
	case <-ctx.Done():
		return ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes = append(g.writes, theme)
	g.saved = theme
	return nil
}

func (g *gatedPreferences) written() []layers.Theme {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]layers.Theme(nil), g.writes...)
}

func TestThemePreferenceIOStaysOffTheLoop(t *testing.T) {
	prefs := &gatedPreferences{saved: layers.ThemeDark, readGate: make(chan struct{}), writeGate: make(chan struct{})}
	m := NewManager(Deps{Stations: &stubStations{raws: feedFixture()}, History: instantLoader{}},
		func(string) layers.PreferenceStore { return prefs }, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := m.Create(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)

	// The preference read is still blocked; the loop must keep serving.
	if err := s.SetSourceVisible(ctx, station.WAQI, false); err != nil {
		t.Fatal(err)
	}
	if got := snapshot(t, s); got.Layers.Sources["WAQI"] {
		t.Error("source toggle not applied while the theme read was pending")
	}

	// Two toggles while the first write is blocked.
	if theme, err := s.ToggleTheme(ctx); err != nil || theme != layers.ThemeDark {
		t.Fatalf("ToggleTheme() = %q, %v", theme, err)
	}
	if theme, err := s.ToggleTheme(ctx); err != nil || theme != layers.ThemeLight {
		t.Fatalf("ToggleTheme() = %q, %v", theme, err)
	}

	close(prefs.readGate)
	close(prefs.writeGate)
	if err := s.Settle(ctx); err != nil {
		t.Fatal(err)
	}

	snap := snapshot(t, s)
	if snap.Layers.Theme != layers.ThemeLight {
		t.Errorf("theme = %q, the saved dark preference overrode the toggles", snap.Layers.Theme)
	}
	writes := prefs.written()
	if len(writes) != 2 || writes[0] != layers.ThemeDark || writes[1] != layers.ThemeLight {
		t.Errorf("writes = %v, want [dark light]", writes)
	}
}

func TestSavedThemeAppliedAfterRead(t *testing.T) {
	prefs := &gatedPreferences{saved: layers.ThemeDark, readGate: make(chan struct{}), writeGate: make(chan struct{})}
	close(prefs.readGate)
	m := NewManager(Deps{Stations: &stubStations{}, History: instantLoader{}},
		func(string) layers.PreferenceStore { return prefs }, time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := m.Create(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	if err := s.Settle(ctx); err != nil {
		t.Fatal(err)
	}
	if snap := snapshot(t, s); snap.Layers.Theme != layers.ThemeDark {
		t.Errorf("theme = %q, want dark", snap.Layers.Theme)
	}
}
