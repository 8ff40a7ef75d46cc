package geometry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/covid-risk-etl/internal/adapter/source"
	"github.com/couchcryptid/covid-risk-etl/internal/config"
	"github.com/couchcryptid/covid-risk-etl/internal/domain"
	"github.com/couchcryptid/covid-risk-etl/internal/observability"
)

// Provider loads boundary features from a GeoJSON document.
// It implements pipeline.GeometryProvider.
type Provider struct {
	url        string
	idProperty string
	keyPrefix  string
	fetcher    *source.Fetcher
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewProvider creates a Provider for the configured boundary file.
func NewProvider(cfg *config.Config, fetcher *source.Fetcher, logger *slog.Logger, metrics *observability.Metrics) *Provider {
	return &Provider{
		url:        cfg.GeometryURL,
		idProperty: cfg.GeometryIDProperty,
		keyPrefix:  cfg.GeometryKeyPrefix,
		fetcher:    fetcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// Boundaries returns the boundary features, restricted to identifiers that
// start with the configured prefix. The national county file is filtered to
// one state this way.
func (p *Provider) Boundaries(ctx context.Context) (*geojson.FeatureCollection, error) {
	data, err := p.fetcher.Fetch(ctx, p.url)
	if err != nil {
		return nil, fmt.Errorf("fetch geometry: %w", err)
	}
	fc, err := Decode(data)
	if err != nil {
		return nil, err
	}

	total := len(fc.Features)
	fc = Filter(fc, p.idProperty, p.keyPrefix)
	p.metrics.RecordsExtracted.WithLabelValues("geometry").Add(float64(len(fc.Features)))
	p.logger.Info("geometry loaded", "features", len(fc.Features), "filtered_out", total-len(fc.Features))
	return fc, nil
}

// Decode parses a GeoJSON FeatureCollection.
func Decode(data []byte) (*geojson.FeatureCollection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	if len(fc.Features) == 0 {
		return nil, fmt.Errorf("decode geometry: no features")
	}
	return fc, nil
}

// Filter returns a collection holding the features whose identifier starts
// with prefix. An empty prefix keeps everything.
func Filter(fc *geojson.FeatureCollection, idProperty, prefix string) *geojson.FeatureCollection {
	if prefix == "" {
		return fc
	}
	out := geojson.NewFeatureCollection()
	out.BBox = fc.BBox
	for _, f := range fc.Features {
		if strings.HasPrefix(domain.FeatureKey(f, idProperty), prefix) {
			out.Append(f)
		}
	}
	return out
}
