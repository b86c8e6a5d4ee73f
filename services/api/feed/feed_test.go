package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/station"
)

const stationsJSON = `[
  {"name":"FECT Akurana","lat":7.718,"lon":80.633,"aqi":42,"category":"Good","source":"PurpleAir","stationId":"12451"},
  {"name":"Colombo","lat":6.927,"lon":79.861,"aqi":87,"category":"Moderate","source":"IQAir"}
]`

const historyJSON = `{
  "iqair_Colombo": [
    {"time":"2025-10-12T10:00:00Z","aqi":80},
    {"time":"2025-10-12T09:00:00Z","aqi":75}
  ],
  "12451": [{"time":1760259600,"aqi":40}]
}`

func TestJSONSourceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aq_stations.json")
	if err := os.WriteFile(path, []byte(stationsJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	raws, err := (&JSONSource{Location: path}).FetchStations(context.Background())
	if err != nil {
		t.Fatalf("FetchStations() error = %v", err)
	}
	if len(raws) != 2 || raws[0].StationID != "12451" || raws[1].Source != "IQAir" {
		t.Errorf("raws = %+v", raws)
	}
}

func TestJSONSourceFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		default:
			_, _ = w.Write([]byte("{not json"))
		}
	}))
	defer srv.Close()

	for _, loc := range []string{srv.URL + "/missing", srv.URL + "/garbage", filepath.Join(t.TempDir(), "nope.json")} {
		_, err := (&JSONSource{Location: loc, Client: srv.Client()}).FetchStations(context.Background())
		if !station.IsFetchFailure(err) {
			t.Errorf("%s: error = %v, want FetchFailure", loc, err)
		}
	}
}

func TestJSONHistoryOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(historyJSON))
	}))
	defer srv.Close()

	table, err := (&JSONHistory{Location: srv.URL + "/aq_history.json", Client: srv.Client()}).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(table["iqair_Colombo"]) != 2 || table["iqair_Colombo"][0].AQI != 80 {
		t.Errorf("Colombo = %+v", table["iqair_Colombo"])
	}
	if got := table["12451"]; len(got) != 1 || got[0].Time.Hour() != 9 {
		t.Errorf("12451 = %+v", got)
	}
}

func TestIsURL(t *testing.T) {
	if !IsURL("https://example.org/x.json") || IsURL("./aq_stations.json") {
		t.Error("IsURL misclassified")
	}
}
