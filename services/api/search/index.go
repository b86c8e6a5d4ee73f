// Package search matches station names as the user types and tracks the
// keyboard highlight over the result list.
package search

import (
	"errors"
	"fmt"
	"strings"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
)

// Key is a navigation key.
type Key string

const (
	KeyDown  Key = "down"
	KeyUp    Key = "up"
	KeyEnter Key = "enter"
)

// ParseKey accepts the key names browsers report ("ArrowDown", "Enter") as
// well as the short forms.
func ParseKey(raw string) (Key, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "down", "arrowdown":
		return KeyDown, nil
	case "up", "arrowup":
		return KeyUp, nil
	case "enter":
		return KeyEnter, nil
	}
	return "", fmt.Errorf("unsupported key %q", raw)
}

// ErrNoSuchResult is returned by Select for an index outside the result list.
var ErrNoSuchResult = errors.New("no such search result")

// Entry is one searchable station and the marker it belongs to.
type Entry struct {
	MarkerID int
	Record   station.Record
}

// Focuser receives the selected station.
type Focuser interface {
	FocusFromSearch(markerID int, rec station.Record)
}

// Index holds the station list, the current results and the highlight.
// It is not safe for concurrent use.
type Index struct {
	entries []Entry
	lower   []string
	focuser Focuser

	query   string
	results []Entry
	active  int
	visible bool
}

// New indexes entries in the given order.
func New(entries []Entry, focuser Focuser) *Index {
	idx := &Index{
		entries: entries,
		lower:   make([]string, len(entries)),
		focuser: focuser,
		active:  -1,
	}
	for i, e := range entries {
		idx.lower[i] = strings.ToLower(e.Record.Name)
	}
	return idx
}

// Query replaces the current results with the stations whose names contain q,
// case-insensitively, in station-list order. A blank q hides the list. The
// highlight is cleared either way.
func (i *Index) Query(q string) []station.Record {
	i.query = q
	i.active = -1
	i.results = nil
	i.visible = false

	if strings.TrimSpace(q) == "" {
		return []station.Record{}
	}
	needle := strings.ToLower(q)
	for n, e := range i.entries {
		if strings.Contains(i.lower[n], needle) {
			i.results = append(i.results, e)
		}
	}
	i.visible = len(i.results) > 0
	return i.Results()
}

// Results returns the stations of the current result list.
func (i *Index) Results() []station.Record {
	out := make([]station.Record, len(i.results))
	for n, e := range i.results {
		out[n] = e.Record
	}
	return out
}

// Key moves the highlight or activates the highlighted result. Keys are
// ignored while the list is hidden.
func (i *Index) Key(k Key) {
	if !i.visible {
		return
	}
	n := len(i.results)
	switch k {
	case KeyDown:
		if n == 0 {
			return
		}
		i.active = (i.active + 1) % n
	case KeyUp:
		if n == 0 {
			return
		}
		if i.active <= 0 {
			i.active = n - 1
		} else {
			i.active--
		}
	case KeyEnter:
		if i.active >= 0 && i.active < n {
			_ = i.Select(i.active)
		}
	}
}

// Select focuses result n and hides the list. A hidden list has no results.
func (i *Index) Select(n int) error {
	if n < 0 || n >= len(i.results) {
		return fmt.Errorf("%w: %d", ErrNoSuchResult, n)
	}
	e := i.results[n]
	i.results = nil
	i.visible = false
	i.active = -1
	i.focuser.FocusFromSearch(e.MarkerID, e.Record)
	return nil
}

// ActiveIndex is the highlighted result, or -1.
func (i *Index) ActiveIndex() int {
	return i.active
}

// Visible reports whether the result list is shown.
func (i *Index) Visible() bool {
	return i.visible
}

// LastQuery returns the text of the last Query call.
func (i *Index) LastQuery() string {
	return i.query
}

// Entries returns the current results with their marker ids.
func (i *Index) Entries() []Entry {
	return append([]Entry(nil), i.results...)
}
