// Package boundary loads the administrative boundary polygons and population
// tables behind the two population overlays and colours each region by its
// population.
package boundary

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
)

var (
	// ErrUnknownOverlay is returned for an overlay the catalog was not given.
	ErrUnknownOverlay = errors.New("unknown overlay")
	// ErrNotReady is returned while an overlay is still loading or failed to load.
	ErrNotReady = errors.New("overlay not ready")
)

// Source names the files of one overlay.
type Source struct {
	Name           string
	BoundaryPath   string
	PopulationPath string
}

// Observer is told when an overlay finishes loading; it may be nil.
type Observer interface {
	OverlayLoaded(name string, ok bool)
}

type overlay struct {
	src     Source
	ready   bool
	doc     []byte
	regions int
	waiters []func()
}

// Catalog holds the overlays. It is safe for concurrent use.
type Catalog struct {
	observer Observer

	mu       sync.RWMutex
	overlays map[string]*overlay
}

// NewCatalog registers sources without reading them.
func NewCatalog(sources []Source, observer Observer) *Catalog {
	c := &Catalog{observer: observer, overlays: make(map[string]*overlay, len(sources))}
	for _, src := range sources {
		c.overlays[src.Name] = &overlay{src: src}
	}
	return c
}

// Load reads every overlay concurrently. A failed overlay is logged and
// stays not ready; the others are unaffected.
func (c *Catalog) Load(ctx context.Context) {
	var g errgroup.Group
	for name, o := range c.overlays {
		src := o.src
		g.Go(func() error {
			doc, regions, err := build(ctx, src)
			if err != nil {
				log.Printf("boundary %s: %v", name, err)
				c.report(name, false)
				return nil
			}
			c.markReady(name, doc, regions)
			c.report(name, true)
			log.Printf("boundary %s ready (%d regions)", name, regions)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Catalog) report(name string, ok bool) {
	if c.observer != nil {
		c.observer.OverlayLoaded(name, ok)
	}
}

func (c *Catalog) markReady(name string, doc []byte, regions int) {
	c.mu.Lock()
	o := c.overlays[name]
	o.doc, o.regions, o.ready = doc, regions, true
	waiters := o.waiters
	o.waiters = nil
	c.mu.Unlock()

	for _, fn := range waiters {
		fn()
	}
}

// OnReady runs fn once the overlay has loaded, immediately if it already has.
// Unknown names never fire.
func (c *Catalog) OnReady(name string, fn func()) {
	c.mu.Lock()
	o, ok := c.overlays[name]
	if !ok {
		c.mu.Unlock()
		return
	}
	if !o.ready {
		o.waiters = append(o.waiters, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

// Ready reports whether name has loaded.
func (c *Catalog) Ready(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.overlays[name]
	return ok && o.ready
}

// GeoJSON returns the coloured feature collection of name.
func (c *Catalog) GeoJSON(name string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.overlays[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOverlay, name)
	}
	if !o.ready {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, name)
	}
	return o.doc, nil
}

func build(ctx context.Context, src Source) ([]byte, int, error) {
	if src.BoundaryPath == "" {
		return nil, 0, errors.New("no boundary file configured")
	}
	raw, err := os.ReadFile(src.BoundaryPath)
	if err != nil {
		return nil, 0, &station.FetchFailure{Resource: "boundary " + src.Name, Err: err}
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, 0, &station.FetchFailure{Resource: "boundary " + src.Name, Err: err}
	}

	pop := Population{}
	if src.PopulationPath != "" {
		f, err := os.Open(src.PopulationPath)
		if err != nil {
			return nil, 0, &station.FetchFailure{Resource: "population " + src.Name, Err: err}
		}
		pop, err = ReadPopulation(f)
		f.Close()
		if err != nil {
			return nil, 0, &station.FetchFailure{Resource: "population " + src.Name, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	Colorize(fc, pop)
	doc, err := fc.MarshalJSON()
	if err != nil {
		return nil, 0, err
	}
	return doc, len(fc.Features), nil
}

// NormalizeName is the lookup key of a region: trimmed and lower-cased.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Population maps normalised region names to head counts.
type Population map[string]int64

// Lookup finds name after normalising it.
func (p Population) Lookup(name string) (int64, bool) {
	v, ok := p[NormalizeName(name)]
	return v, ok
}

var (
	nameColumns       = []string{"name", "region", "district", "division", "ds_division", "adm_name"}
	populationColumns = []string{"population", "pop", "total", "total_population"}
)

// ReadPopulation parses a CSV with a header row. The region column is the
// first header among name/region/district/division; the count column is the
// first among population/pop/total. Thousands separators are accepted.
func ReadPopulation(r io.Reader) (Population, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	nameCol := column(header, nameColumns)
	popCol := column(header, populationColumns)
	if nameCol < 0 || popCol < 0 {
		return nil, fmt.Errorf("population header %v lacks a name or population column", header)
	}

	out := make(Population)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if nameCol >= len(rec) || popCol >= len(rec) {
			continue
		}
		key := NormalizeName(rec[nameCol])
		if key == "" {
			continue
		}
		n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(rec[popCol]), ",", ""), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: population %q: %w", line, rec[popCol], err)
		}
		out[key] = n
	}
	return out, nil
}

func column(header, candidates []string) int {
	for _, want := range candidates {
		for i, h := range header {
			if NormalizeName(h) == want {
				return i
			}
		}
	}
	return -1
}
