package render

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/covid-risk-etl/internal/config"
	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// NoDataColor fills features without case data.
const NoDataColor = "#bdbdbd"

// MapFile names the choropleth for a scheme.
func MapFile(scheme string) string { return "map_" + scheme + ".html" }

// MapWriter renders one Leaflet choropleth per risk scheme.
// It implements pipeline.Loader.
type MapWriter struct {
	dir    string
	center [2]float64
	zoom   int
	logger *slog.Logger
}

// NewMapWriter creates a writer targeting OUTPUT_DIR.
func NewMapWriter(cfg *config.Config, logger *slog.Logger) *MapWriter {
	return &MapWriter{dir: cfg.OutputDir, center: cfg.MapCenter, zoom: cfg.MapZoom, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *MapWriter) Name() string { return "map" }

type mapView struct {
	Title       string
	Caption     string
	Source      string
	ReportDate  string
	GeneratedAt string
	Lat, Lon    float64
	Zoom        int
	Property    string
	Colors      map[string]string
	NoData      string
	Legend      []legendEntry
	Fields      []tooltipField
	Features    *geojson.FeatureCollection
}

type legendEntry struct {
	Range string
	Label string
	Color string
}

type tooltipField struct {
	Property string `json:"property"`
	Alias    string `json:"alias"`
}

// Load writes map_<scheme>.html for every scheme in the report.
func (w *MapWriter) Load(_ context.Context, report domain.Report) error {
	if report.Features == nil {
		return fmt.Errorf("report has no feature collection")
	}
	for _, s := range report.Schemes {
		var buf bytes.Buffer
		if err := templates.ExecuteTemplate(&buf, "map.html.tmpl", w.view(s, report)); err != nil {
			return fmt.Errorf("render map %s: %w", s.Name, err)
		}
		path := filepath.Join(w.dir, MapFile(s.Name))
		if err := writeFile(path, buf.Bytes()); err != nil {
			return err
		}
		w.logger.Info("map written", "scheme", s.Name, "path", path)
	}
	return nil
}

func (w *MapWriter) view(s domain.Scheme, report domain.Report) mapView {
	colors := make(map[string]string, len(s.Buckets)+1)
	for _, b := range s.Buckets {
		colors[b.Label] = b.Color
	}
	colors[domain.UnknownLabel] = NoDataColor

	title := s.Title
	if title == "" {
		title = s.Name
	}
	reportDate := ""
	if d := report.LatestReportDate(); !d.IsZero() {
		reportDate = d.Format(domain.DateLayout)
	}

	return mapView{
		Title:       title,
		Caption:     s.Caption,
		Source:      s.Source,
		ReportDate:  reportDate,
		GeneratedAt: report.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"),
		Lat:         w.center[0],
		Lon:         w.center[1],
		Zoom:        w.zoom,
		Property:    domain.RiskProperty(s.Name),
		Colors:      colors,
		NoData:      NoDataColor,
		Legend:      legend(s),
		Fields:      tooltipFields(report),
		Features:    report.Features,
	}
}

// legend describes each bucket as a half-open range.
func legend(s domain.Scheme) []legendEntry {
	out := make([]legendEntry, 0, len(s.Buckets)+1)
	lower := math.Inf(-1)
	for _, b := range s.Buckets {
		var r string
		switch {
		case math.IsInf(lower, -1) && math.IsInf(b.UpperBound, 1):
			r = "all"
		case math.IsInf(lower, -1):
			r = "< " + formatBound(b.UpperBound)
		case math.IsInf(b.UpperBound, 1):
			r = "≥ " + formatBound(lower)
		default:
			r = formatBound(lower) + " to < " + formatBound(b.UpperBound)
		}
		out = append(out, legendEntry{Range: r, Label: b.Label, Color: b.Color})
		lower = b.UpperBound
	}
	out = append(out, legendEntry{Range: "no data", Label: domain.UnknownLabel, Color: NoDataColor})
	return out
}

func tooltipFields(report domain.Report) []tooltipField {
	fields := []tooltipField{
		{domain.PropName, "Locality"},
		{domain.PropReportDate, "Date"},
	}
	if hasDistrict(report.History) {
		fields = append(fields, tooltipField{domain.PropDistrict, "District"})
	}
	for _, win := range report.Windows {
		fields = append(fields, tooltipField{domain.RateProperty(win), fmt.Sprintf("Cases/%dd/100k", win)})
	}
	for _, s := range report.Schemes {
		alias := s.Title
		if alias == "" {
			alias = s.Name
		}
		fields = append(fields, tooltipField{domain.RiskProperty(s.Name), alias})
	}
	fields = append(fields,
		tooltipField{domain.PropPopulation, "Population"},
		tooltipField{domain.PropRank, "Rank"},
	)
	return fields
}

func hasDistrict(history []domain.LocalityMetrics) bool {
	for _, m := range history {
		if m.District != "" {
			return true
		}
	}
	return false
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
