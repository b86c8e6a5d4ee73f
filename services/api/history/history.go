// Package history loads the recent AQI series of a single station from the
// shared history table.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
)

// Window is the number of hourly samples kept for a station: seven days.
const Window = 168

// Entry is one stored reading.
type Entry struct {
	Time time.Time `json:"time"`
	AQI  int       `json:"aqi"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// UnmarshalJSON accepts RFC 3339 strings, a few zone-less layouts (read as
// UTC) and unix seconds.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw struct {
		Time json.RawMessage `json:"time"`
		AQI  float64         `json:"aqi"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	ts, err := parseTime(raw.Time)
	if err != nil {
		return err
	}
	e.Time = ts
	e.AQI = int(math.Round(raw.AQI))
	return nil
}

func parseTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("history entry: missing time")
	}
	if raw[0] != '"' {
		secs, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("history entry: invalid time %s", raw)
		}
		return time.Unix(int64(secs), 0).UTC(), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("history entry: unrecognised time %q", s)
}

// Table is the full history table, fetched fresh on every call.
type Table interface {
	Fetch(ctx context.Context) (map[station.Identity][]Entry, error)
}

// StationTable is implemented by tables that can return one station's rows
// without reading everything. found is false when the station has no rows.
type StationTable interface {
	FetchStation(ctx context.Context, id station.Identity) (entries []Entry, found bool, err error)
}

// Observer receives load outcomes; it may be nil.
type Observer interface {
	HistoryFetched(outcome string, elapsed time.Duration)
}

// Load outcomes reported to the Observer.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Store answers history queries. It keeps no cache: queries follow discrete
// user actions, so every call reads the table again.
type Store struct {
	table    Table
	observer Observer
	now      func() time.Time
}

// NewStore wraps table.
func NewStore(table Table, observer Observer) *Store {
	return &Store{table: table, observer: observer, now: time.Now}
}

// Load returns up to Window of id's most recent entries in ascending time
// order. A station with no rows yields an empty slice and no error; a table
// that cannot be read yields a *station.FetchFailure.
func (s *Store) Load(ctx context.Context, id station.Identity) ([]Entry, error) {
	start := s.now()

	entries, err := s.lookup(ctx, id)
	if err != nil {
		s.observe(OutcomeError, start)
		return nil, &station.FetchFailure{Resource: "history table", Err: err}
	}

	out := Recent(entries, Window)
	if len(out) == 0 {
		s.observe(OutcomeEmpty, start)
	} else {
		s.observe(OutcomeOK, start)
	}
	return out, nil
}

func (s *Store) lookup(ctx context.Context, id station.Identity) ([]Entry, error) {
	if st, ok := s.table.(StationTable); ok {
		entries, _, err := st.FetchStation(ctx, id)
		return entries, err
	}
	all, err := s.table.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return all[id], nil
}

func (s *Store) observe(outcome string, start time.Time) {
	if s.observer != nil {
		s.observer.HistoryFetched(outcome, s.now().Sub(start))
	}
}

// Recent copies entries, sorts the copy ascending by time and keeps the last
// n. The input slice is left untouched.
func Recent(entries []Entry, n int) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Time.Before(out[j].Time)
	})
	if n >= 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Latest returns the newest entry of an ascending series.
func Latest(entries []Entry) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}
	return entries[len(entries)-1], true
}
