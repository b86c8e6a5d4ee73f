package aqi

import "testing"

func TestBandForBoundaries(t *testing.T) {
	tests := []struct {
		aqi  int
		want string
	}{
		{0, Good},
		{50, Good},
		{51, Moderate},
		{100, Moderate},
		{101, UnhealthySensitiveGroups},
		{150, UnhealthySensitiveGroups},
		{151, Unhealthy},
		{200, Unhealthy},
		{201, VeryUnhealthy},
		{300, VeryUnhealthy},
		{301, Hazardous},
		{999, Hazardous},
	}

	for _, tt := range tests {
		if got := CategoryFor(tt.aqi); got != tt.want {
			t.Errorf("CategoryFor(%d) = %q, want %q", tt.aqi, got, tt.want)
		}
	}
}

func TestEveryValueInBandMatches(t *testing.T) {
	lower := 0
	for _, b := range Bands[:len(Bands)-1] {
		for v := lower; v <= b.Max; v++ {
			if got := BandFor(v); got.Name != b.Name {
				t.Fatalf("BandFor(%d) = %q, want %q", v, got.Name, b.Name)
			}
		}
		lower = b.Max + 1
	}
}

func TestColorFor(t *testing.T) {
	if got := ColorFor(42); got != "#009966" {
		t.Errorf("ColorFor(42) = %s", got)
	}
	if got := ColorFor(420); got != "#7e0023" {
		t.Errorf("ColorFor(420) = %s", got)
	}
}

func TestFromPM25(t *testing.T) {
	tests := []struct {
		pm   float64
		want int
		ok   bool
	}{
		{0, 0, true},
		{12.0, 50, true},
		{12.1, 51, true},
		{35.4, 100, true},
		{35.5, 101, true},
		{55.5, 151, true},
		{250.5, 301, true},
		{500.4, 500, true},
		{6.0, 25, true},
		{-1, 0, false},
		{600, 0, false},
		{12.05, 0, false},
	}

	for _, tt := range tests {
		got, ok := FromPM25(tt.pm)
		if ok != tt.ok || got != tt.want {
			t.Errorf("FromPM25(%v) = %d,%v want %d,%v", tt.pm, got, ok, tt.want, tt.ok)
		}
	}
}
