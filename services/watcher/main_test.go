package main

import (
	"context"
	"testing"

	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/config"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/models"
	"github.com/02loveslollipop/aqi-station-viewer/services/watcher/internal/providers"
)

type fixedProvider struct {
	name     string
	readings []models.Reading
}

func (f fixedProvider) Name() string { return f.name }

func (f fixedProvider) Fetch(context.Context) []models.Reading { return f.readings }

func TestCollectKeepsProviderOrder(t *testing.T) {
	got := collect(context.Background(), []provider{
		fixedProvider{name: "a", readings: []models.Reading{{Name: "a1"}, {Name: "a2"}}},
		fixedProvider{name: "b"},
		fixedProvider{name: "c", readings: []models.Reading{{Name: "c1"}}},
	})
	want := []string{"a1", "a2", "c1"}
	if len(got) != len(want) {
		t.Fatalf("readings = %+v", got)
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("reading %d = %s, want %s", i, got[i].Name, name)
		}
	}
}

func TestSelectProvidersSkipsMissingCredentials(t *testing.T) {
	client := providers.NewClient(0, 1)
	cfg := config.Config{Mode: config.ModeAll, IQAirAPIKey: "k", WAQIToken: "t"}

	ps := selectProviders(cfg, client)
	if len(ps) != 1 || ps[0].Name() != "IQAir" {
		t.Fatalf("providers = %v", ps)
	}

	cfg.WAQIStations = []int{8123}
	if ps := selectProviders(cfg, client); len(ps) != 2 || ps[1].Name() != "WAQI" {
		t.Errorf("providers = %v", ps)
	}
}
