// Package layers keeps the visibility bookkeeping for a map view: one group per
// station source, two population overlays and the basemap theme. It holds
// booleans only; attaching and detaching the actual layers is the Surface's job.
//
// A Registry is not safe for concurrent use. It is owned by a single view
// session loop.
package layers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
)

// Overlay names.
const (
	OverlayDivisions = "population-divisions"
	OverlayDistricts = "population-districts"
)

// Overlays lists the population overlays, fine-grained first.
var Overlays = []string{OverlayDivisions, OverlayDistricts}

// ErrUnknownOverlay is returned for an overlay name the registry does not own.
var ErrUnknownOverlay = errors.New("unknown overlay")

// Theme is the basemap flavour.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme accepts "light" or "dark" in any case.
func ParseTheme(raw string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(raw))) {
	case ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	}
	return "", fmt.Errorf("invalid theme %q", raw)
}

// Other returns the opposite theme.
func (t Theme) Other() Theme {
	if t == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}

// Surface attaches and detaches named layer groups on the map.
type Surface interface {
	AttachLayer(name string)
	DetachLayer(name string)
}

// PreferenceStore persists the theme flag.
type PreferenceStore interface {
	LoadTheme(ctx context.Context) (Theme, error)
	SaveTheme(ctx context.Context, theme Theme) error
}

// SourceLayer names the marker group of src.
func SourceLayer(src station.Source) string {
	return "source:" + src.String()
}

// OverlayLayer names a population overlay.
func OverlayLayer(name string) string {
	return "overlay:" + name
}

// BasemapLayer names the tile layer of a theme.
func BasemapLayer(t Theme) string {
	return "basemap:" + string(t)
}

type overlay struct {
	visible bool
	ready   bool
}

// Registry owns the layer flags of one view.
type Registry struct {
	surface Surface

	sources  map[station.Source]bool
	overlays map[string]*overlay
	theme    Theme
	themeSet bool
}

// New creates a registry with every source visible, both overlays hidden and
// not ready, and no basemap attached until RestoreTheme or ToggleTheme runs.
// Every marker group is attached to surface immediately.
func New(surface Surface) *Registry {
	r := &Registry{
		surface:  surface,
		sources:  make(map[station.Source]bool, len(station.Sources)),
		overlays: make(map[string]*overlay, len(Overlays)),
		theme:    ThemeLight,
	}
	for _, src := range station.Sources {
		r.sources[src] = true
		surface.AttachLayer(SourceLayer(src))
	}
	for _, name := range Overlays {
		r.overlays[name] = &overlay{}
	}
	return r
}

// SetSourceVisible shows or hides one source group. Unknown sources are ignored.
func (r *Registry) SetSourceVisible(src station.Source, visible bool) {
	current, ok := r.sources[src]
	if !ok || current == visible {
		return
	}
	r.sources[src] = visible
	r.apply(SourceLayer(src), visible)
}

// SetAllSourcesVisible writes visible to every source group.
func (r *Registry) SetAllSourcesVisible(visible bool) {
	for _, src := range station.Sources {
		r.SetSourceVisible(src, visible)
	}
}

// SourceVisible reports whether src's markers are shown.
func (r *Registry) SourceVisible(src station.Source) bool {
	return r.sources[src]
}

// AllSourcesVisible is true only while every source group is visible.
func (r *Registry) AllSourcesVisible() bool {
	for _, src := range station.Sources {
		if !r.sources[src] {
			return false
		}
	}
	return true
}

// ToggleOverlay flips an overlay's flag. The surface is only touched once the
// overlay's data is ready; before that the flag is recorded and applied by
// MarkOverlayReady.
func (r *Registry) ToggleOverlay(name string) error {
	o, ok := r.overlays[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOverlay, name)
	}
	o.visible = !o.visible
	if o.ready {
		r.apply(OverlayLayer(name), o.visible)
	}
	return nil
}

// OverlayVisible returns the recorded flag of an overlay, ready or not.
func (r *Registry) OverlayVisible(name string) bool {
	o, ok := r.overlays[name]
	return ok && o.visible
}

// OverlayReady reports whether an overlay's boundary data has loaded.
func (r *Registry) OverlayReady(name string) bool {
	o, ok := r.overlays[name]
	return ok && o.ready
}

// MarkOverlayReady records that an overlay's layer group exists and attaches
// it at once if the user already switched it on. Repeated calls are no-ops.
func (r *Registry) MarkOverlayReady(name string) error {
	o, ok := r.overlays[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOverlay, name)
	}
	if o.ready {
		return nil
	}
	o.ready = true
	if o.visible {
		r.surface.AttachLayer(OverlayLayer(name))
	}
	return nil
}

// ReadTheme loads the persisted theme from prefs. A nil store or a failed read
// yields light.
func ReadTheme(ctx context.Context, prefs PreferenceStore) Theme {
	if prefs == nil {
		return ThemeLight
	}
	saved, err := prefs.LoadTheme(ctx)
	if err != nil {
		log.Printf("layers: load theme preference: %v", err)
		return ThemeLight
	}
	if saved == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// RestoreTheme attaches the tile layer of a persisted theme. It does nothing
// once a basemap is attached, so a toggle made while the preference was being
// read wins. It reports whether t was applied.
func (r *Registry) RestoreTheme(t Theme) bool {
	if r.themeSet {
		return false
	}
	r.setTheme(t)
	return true
}

// ToggleTheme swaps the basemap and returns the new theme. Persisting it is
// the caller's job.
func (r *Registry) ToggleTheme() Theme {
	next := r.theme.Other()
	r.setTheme(next)
	return next
}

// Theme returns the active basemap theme.
func (r *Registry) Theme() Theme {
	return r.theme
}

func (r *Registry) setTheme(t Theme) {
	if r.themeSet && r.theme == t {
		return
	}
	if r.themeSet {
		r.surface.DetachLayer(BasemapLayer(r.theme))
	}
	r.surface.AttachLayer(BasemapLayer(t))
	r.theme = t
	r.themeSet = true
}

func (r *Registry) apply(layer string, visible bool) {
	if visible {
		r.surface.AttachLayer(layer)
	} else {
		r.surface.DetachLayer(layer)
	}
}

// OverlayState is the exported view of one overlay.
type OverlayState struct {
	Visible bool `json:"visible"`
	Ready   bool `json:"ready"`
}

// State is a copy of the registry flags.
type State struct {
	Sources    map[string]bool         `json:"sources"`
	AllSources bool                    `json:"all_sources"`
	Overlays   map[string]OverlayState `json:"overlays"`
	Theme      Theme                   `json:"theme"`
}

// State copies the current flags.
func (r *Registry) State() State {
	st := State{
		Sources:    make(map[string]bool, len(r.sources)),
		AllSources: r.AllSourcesVisible(),
		Overlays:   make(map[string]OverlayState, len(r.overlays)),
		Theme:      r.theme,
	}
	for src, v := range r.sources {
		st.Sources[src.String()] = v
	}
	for name, o := range r.overlays {
		st.Overlays[name] = OverlayState{Visible: o.visible, Ready: o.ready}
	}
	return st
}

// MemoryPreferences keeps the theme in process memory.
type MemoryPreferences struct {
	mu    sync.Mutex
	theme Theme
}

func (m *MemoryPreferences) LoadTheme(context.Context) (Theme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.theme == "" {
		return ThemeLight, nil
	}
	return m.theme, nil
}

func (m *MemoryPreferences) SaveTheme(_ context.Context, theme Theme) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.theme = theme
	return nil
}

// MemoryPreferenceSet hands out one MemoryPreferences per client id.
type MemoryPreferenceSet struct {
	mu      sync.Mutex
	clients map[string]*MemoryPreferences
}

// NewMemoryPreferenceSet returns an empty set.
func NewMemoryPreferenceSet() *MemoryPreferenceSet {
	return &MemoryPreferenceSet{clients: make(map[string]*MemoryPreferences)}
}

// For returns clientID's store. An empty id gets a fresh, unshared store.
func (s *MemoryPreferenceSet) For(clientID string) PreferenceStore {
	if clientID == "" {
		return &MemoryPreferences{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.clients[clientID]
	if !ok {
		p = &MemoryPreferences{}
		s.clients[clientID] = p
	}
	return p
}
