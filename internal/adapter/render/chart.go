package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/covid-risk-etl/internal/config"
	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// Chart geometry in SVG user units.
const (
	chartWidth  = 900
	chartHeight = 420
	marginLeft  = 60
	marginRight = 20
	marginTop   = 20
	marginBot   = 40
	bandOpacity = 0.3
)

// ChartFile names the time-series chart for an identifier and window.
func ChartFile(id string, window int) string {
	return fmt.Sprintf("chart_%s_%dd.html", id, window)
}

// ChartWriter renders a per-100k rate time series for selected localities,
// drawn over the threshold bands of one scheme.
// It implements pipeline.Loader.
type ChartWriter struct {
	dir        string
	localities []string
	scheme     string
	logger     *slog.Logger
}

// NewChartWriter creates a writer for CHART_LOCALITIES using CHART_SCHEME.
func NewChartWriter(cfg *config.Config, logger *slog.Logger) *ChartWriter {
	return &ChartWriter{dir: cfg.OutputDir, localities: cfg.ChartLocalities, scheme: cfg.ChartScheme, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *ChartWriter) Name() string { return "chart" }

type chartView struct {
	Title       string
	Caption     string
	Source      string
	GeneratedAt string
	Width       int
	Height      int
	PlotLeft    int
	PlotRight   int
	PlotTop     int
	PlotBottom  int
	Bands       []chartBand
	YTicks      []chartTick
	XTicks      []chartTick
	Path        string
	Latest      string
}

type chartBand struct {
	Y, Height float64
	Color     string
	Label     string
	Opacity   float64
}

type chartTick struct {
	Pos   float64
	Label string
}

type point struct {
	date time.Time
	rate float64
}

// Load writes one chart per configured locality. Localities missing from the
// history are skipped with a warning.
func (w *ChartWriter) Load(_ context.Context, report domain.Report) error {
	if len(w.localities) == 0 {
		return nil
	}
	scheme, err := domain.FindScheme(report.Schemes, w.scheme)
	if err != nil {
		return err
	}

	for _, id := range w.localities {
		history := domain.History(report.History, id)
		points := series(history, scheme.Window)
		if len(points) == 0 {
			w.logger.Warn("no rate history for chart locality", "id", id, "window", scheme.Window)
			continue
		}
		name := history[len(history)-1].Name
		if name == "" {
			name = id
		}

		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, "chart.html.tmpl", chartFor(name, scheme, points, report.GeneratedAt)); err != nil {
			return fmt.Errorf("render chart %s: %w", id, err)
		}
		path := filepath.Join(w.dir, ChartFile(id, scheme.Window))
		if err := writeFile(path, buf.Bytes()); err != nil {
			return err
		}
		w.logger.Info("chart written", "id", id, "path", path, "points", len(points))
	}
	return nil
}

// series keeps the dates with a known rate for window.
func series(history []domain.LocalityMetrics, window int) []point {
	var out []point
	for _, m := range history {
		if v, ok := m.Rate(window).Value(); ok {
			out = append(out, point{date: m.ReportDate, rate: v})
		}
	}
	return out
}

// axisMax rounds the peak up to a multiple of 40 with one step of headroom.
func axisMax(peak float64) float64 {
	return float64((int(peak/40) + 2) * 40)
}

func chartFor(name string, s domain.Scheme, points []point, generated time.Time) chartView {
	peak, floor := 0.0, 0.0
	for _, p := range points {
		peak = math.Max(peak, p.rate)
		floor = math.Min(floor, p.rate)
	}
	vmax := axisMax(peak)

	left, right := float64(marginLeft), float64(chartWidth-marginRight)
	top, bottom := float64(marginTop), float64(chartHeight-marginBot)
	y := func(v float64) float64 { return bottom - (v-floor)/(vmax-floor)*(bottom-top) }

	first, last := points[0].date, points[len(points)-1].date
	span := last.Sub(first).Hours()
	x := func(t time.Time) float64 {
		if span == 0 {
			return (left + right) / 2
		}
		return left + t.Sub(first).Hours()/span*(right-left)
	}

	v := chartView{
		Title:       fmt.Sprintf("%s: new cases per 100k over %d days", name, s.Window),
		Caption:     s.Caption,
		Source:      s.Source,
		GeneratedAt: generated.UTC().Format("2006-01-02 15:04 MST"),
		Width:       chartWidth,
		Height:      chartHeight,
		PlotLeft:    marginLeft,
		PlotRight:   chartWidth - marginRight,
		PlotTop:     marginTop,
		PlotBottom:  chartHeight - marginBot,
		Latest:      fmt.Sprintf("%.1f on %s", points[len(points)-1].rate, last.Format(domain.DateLayout)),
	}

	// Rates go negative only when corrections are tolerated.
	lower := floor
	for _, b := range s.Buckets {
		if lower >= vmax {
			break
		}
		upper := math.Min(b.UpperBound, vmax)
		if upper > lower {
			v.Bands = append(v.Bands, chartBand{
				Y:       y(upper),
				Height:  y(lower) - y(upper),
				Color:   b.Color,
				Label:   b.Label,
				Opacity: bandOpacity,
			})
		}
		lower = math.Max(lower, b.UpperBound)
	}

	step := 40 * math.Ceil(vmax/400)
	if floor < 0 {
		v.YTicks = append(v.YTicks, chartTick{Pos: y(floor), Label: fmt.Sprintf("%.1f", floor)})
	}
	for t := 0.0; t <= vmax; t += step {
		v.YTicks = append(v.YTicks, chartTick{Pos: y(t), Label: formatBound(t)})
	}

	v.XTicks = append(v.XTicks, chartTick{Pos: x(first), Label: first.Format(domain.DateLayout)})
	if span > 0 {
		mid := first.Add(last.Sub(first) / 2)
		v.XTicks = append(v.XTicks,
			chartTick{Pos: x(mid), Label: domain.Day(mid).Format(domain.DateLayout)},
			chartTick{Pos: x(last), Label: last.Format(domain.DateLayout)},
		)
	}

	var path strings.Builder
	for i, p := range points {
		cmd := "L"
		if i == 0 {
			cmd = "M"
		}
		fmt.Fprintf(&path, "%s%.1f,%.1f ", cmd, x(p.date), y(p.rate))
	}
	v.Path = strings.TrimSpace(path.String())
	return v
}
