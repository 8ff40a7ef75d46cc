package render

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/covid-risk-etl/internal/config"
	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// GeoJSONFile is the name of the feature collection written to the output dir.
const GeoJSONFile = "covid_risk.geojson"

// GeoJSONWriter writes the geometry-joined feature collection.
// It implements pipeline.Loader.
type GeoJSONWriter struct {
	path   string
	logger *slog.Logger
}

// NewGeoJSONWriter creates a writer targeting OUTPUT_DIR.
func NewGeoJSONWriter(cfg *config.Config, logger *slog.Logger) *GeoJSONWriter {
	return &GeoJSONWriter{path: filepath.Join(cfg.OutputDir, GeoJSONFile), logger: logger}
}

// Name identifies the sink in logs and metrics.
func (w *GeoJSONWriter) Name() string { return "geojson" }

// Load writes report.Features to disk.
func (w *GeoJSONWriter) Load(_ context.Context, report domain.Report) error {
	if report.Features == nil {
		return errors.New("report has no feature collection")
	}
	data, err := report.Features.MarshalJSON()
	if err != nil {
		return err
	}
	if err := writeFile(w.path, data); err != nil {
		return err
	}
	w.logger.Info("geojson written", "path", w.path, "features", len(report.Features.Features))
	return nil
}
