// Package feed reads the station list and the history table from JSON
// documents, either local files or http(s) URLs.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
)

// IsURL reports whether location should be fetched over HTTP.
func IsURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// open returns the body of location.
func open(ctx context.Context, client *http.Client, location string) (io.ReadCloser, error) {
	if !IsURL(location) {
		return os.Open(location)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", location, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

func decode(ctx context.Context, client *http.Client, location string, v any) error {
	body, err := open(ctx, client, location)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func clientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}

// JSONSource is the station feed written by the watcher (aq_stations.json).
type JSONSource struct {
	Location string
	Client   *http.Client
}

// FetchStations reads the feed. Any failure is a *station.FetchFailure.
func (s *JSONSource) FetchStations(ctx context.Context) ([]station.Raw, error) {
	var raws []station.Raw
	if err := decode(ctx, clientOrDefault(s.Client), s.Location, &raws); err != nil {
		return nil, &station.FetchFailure{Resource: "station feed", Err: err}
	}
	return raws, nil
}

// JSONHistory is a history table document: an object keyed by station
// identity whose values are lists of {time, aqi}.
type JSONHistory struct {
	Location string
	Client   *http.Client
}

// Fetch reads the whole table.
func (h *JSONHistory) Fetch(ctx context.Context) (map[station.Identity][]history.Entry, error) {
	table := make(map[station.Identity][]history.Entry)
	if err := decode(ctx, clientOrDefault(h.Client), h.Location, &table); err != nil {
		return nil, err
	}
	return table, nil
}
