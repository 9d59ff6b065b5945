// Package charter renders logged sessions as standalone HTML line charts.
package charter

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/Mavwarf/driftsynth/internal/eventlog"
	"github.com/Mavwarf/driftsynth/internal/mapper"
)

// Render writes a page with two charts for snaps: the eight voice
// frequencies and the root filter cutoffs, both against snapshot time.
func Render(w io.Writer, title string, snaps []eventlog.Snapshot) error {
	if len(snaps) == 0 {
		return fmt.Errorf("charter: no snapshots to chart")
	}
	xLabels := make([]string, len(snaps))
	for i, s := range snaps {
		xLabels[i] = s.Time.Local().Format("15:04:05")
	}

	voices := newLine(title, "voice frequencies (Hz)")
	voices.SetXAxis(xLabels)
	for v := range mapper.Voices {
		voices.AddSeries(fmt.Sprintf("voice %d", v), series(snaps, func(s eventlog.Snapshot) float64 {
			return s.Frequencies[v]
		}))
	}
	voices.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: false}))

	filters := newLine(title, "root filter cutoffs (Hz)")
	filters.SetXAxis(xLabels).
		AddSeries("lowpass", series(snaps, func(s eventlog.Snapshot) float64 { return s.Lowpass })).
		AddSeries("highpass", series(snaps, func(s eventlog.Snapshot) float64 { return s.Highpass })).
		AddSeries("fundamental", series(snaps, func(s eventlog.Snapshot) float64 { return s.Fundamental })).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: false}))

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(voices, filters)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("charter: %w", err)
	}
	return nil
}

func newLine(title, subtitle string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: subtitle,
		}),
	)
	return line
}

func series(snaps []eventlog.Snapshot, value func(eventlog.Snapshot) float64) []opts.LineData {
	items := make([]opts.LineData, len(snaps))
	for i, s := range snaps {
		items[i] = opts.LineData{Value: value(s)}
	}
	return items
}
