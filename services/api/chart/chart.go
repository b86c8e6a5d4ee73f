// Package chart draws a station's AQI history as a PNG line chart.
package chart

import (
	"errors"
	"io"
	"strings"
	"time"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/02loveslollipop/aqi-station-viewer/pkg/aqi"
	"github.com/02loveslollipop/aqi-station-viewer/services/api/history"
)

// ErrTooFewPoints is returned for a series the renderer cannot scale.
var ErrTooFewPoints = errors.New("chart needs at least two points")

// Default image size.
const (
	DefaultWidth  = 720
	DefaultHeight = 320
)

// Options adjusts a rendering; zero values take the defaults.
type Options struct {
	Width  int
	Height int
	Dark   bool
}

// Render writes series as a PNG. The line takes the colour of the latest
// reading's AQI band.
func Render(w io.Writer, title string, series []history.Entry, opts Options) error {
	if len(series) < 2 {
		return ErrTooFewPoints
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}

	xs := make([]time.Time, len(series))
	ys := make([]float64, len(series))
	maxAQI := 0.0
	for i, e := range series {
		xs[i] = e.Time
		ys[i] = float64(e.AQI)
		if ys[i] > maxAQI {
			maxAQI = ys[i]
		}
	}
	if maxAQI < 50 {
		maxAQI = 50
	}

	line := drawing.ColorFromHex(strings.TrimPrefix(aqi.ColorFor(series[len(series)-1].AQI), "#"))
	fg, bg := drawing.ColorFromHex("333333"), drawing.ColorWhite
	if opts.Dark {
		fg, bg = drawing.ColorFromHex("dddddd"), drawing.ColorFromHex("1e1e1e")
	}
	axis := gochart.Style{FontColor: fg, StrokeColor: fg}

	ch := gochart.Chart{
		Title:      title,
		TitleStyle: gochart.Style{FontColor: fg},
		Width:      opts.Width,
		Height:     opts.Height,
		Background: gochart.Style{FillColor: bg, Padding: gochart.Box{Top: 24, Left: 16, Right: 16, Bottom: 12}},
		Canvas:     gochart.Style{FillColor: bg},
		XAxis: gochart.XAxis{
			Style:          axis,
			ValueFormatter: gochart.TimeValueFormatterWithFormat("01-02 15h"),
		},
		YAxis: gochart.YAxis{
			Name:      "AQI",
			NameStyle: axis,
			Style:     axis,
			Range:     &gochart.ContinuousRange{Min: 0, Max: maxAQI * 1.1},
		},
		Series: []gochart.Series{
			gochart.TimeSeries{
				Name:    "AQI",
				XValues: xs,
				YValues: ys,
				Style: gochart.Style{
					StrokeColor: line,
					StrokeWidth: 2,
					FillColor:   line.WithAlpha(48),
				},
			},
		},
	}
	return ch.Render(gochart.PNG, w)
}
