package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
	"github.com/couchcryptid/covid-risk-etl/internal/observability"
)

// CaseExtractor reads the cumulative case dataset.
type CaseExtractor interface {
	ExtractCases(ctx context.Context) ([]domain.CaseRecord, error)
}

// PopulationExtractor reads the population reference table.
type PopulationExtractor interface {
	ExtractPopulations(ctx context.Context) ([]domain.PopulationRecord, error)
}

// GeometryProvider reads boundary features.
type GeometryProvider interface {
	Boundaries(ctx context.Context) (*geojson.FeatureCollection, error)
}

// Loader writes a finished report to one destination.
type Loader interface {
	Name() string
	Load(ctx context.Context, report domain.Report) error
}

// Pipeline runs one extract-transform-load batch.
type Pipeline struct {
	cases      CaseExtractor
	population PopulationExtractor
	geometry   GeometryProvider
	loaders    []Loader
	opts       Options
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Pipeline with the given stages and observability. Loaders run
// in order.
func New(c CaseExtractor, p PopulationExtractor, g GeometryProvider, loaders []Loader, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		cases:      c,
		population: p,
		geometry:   g,
		loaders:    loaders,
		opts:       opts,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run extracts all inputs, transforms them and hands the report to every
// loader. Any error aborts the run; a transform error means no loader is
// called.
func (p *Pipeline) Run(ctx context.Context) (domain.Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID)
	logger.Info("pipeline started", "windows", p.opts.Windows, "schemes", len(p.opts.Schemes))

	cases, err := p.cases.ExtractCases(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	populations, err := p.population.ExtractPopulations(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	boundaries, err := p.geometry.Boundaries(ctx)
	if err != nil {
		return domain.Report{}, err
	}

	result, err := Transform(cases, populations, boundaries, p.opts)
	if err != nil {
		var integrity *domain.DataIntegrityError
		if errors.As(err, &integrity) {
			p.metrics.IntegrityErrors.Inc()
		}
		return domain.Report{}, err
	}

	report := domain.Report{
		RunID:       runID,
		GeneratedAt: domain.Now(),
		Windows:     p.opts.Windows,
		Schemes:     p.opts.Schemes,
		History:     result.History,
		Features:    result.Features,
		Stats:       result.Stats,
	}

	p.metrics.UnknownRates.Add(float64(result.UnknownRates))
	p.metrics.FeaturesJoined.WithLabelValues("matched").Set(float64(result.Stats.Matched))
	p.metrics.FeaturesJoined.WithLabelValues("unmatched").Set(float64(result.Stats.Unmatched))
	if latest := report.LatestReportDate(); !latest.IsZero() {
		p.metrics.LatestReportDate.Set(float64(latest.Unix()))
	}
	logger.Info("transform complete",
		"records", len(cases),
		"localities", len(result.History),
		"features", result.Stats.Features,
		"matched", result.Stats.Matched,
		"unmatched", result.Stats.Unmatched,
		"unknown_rates", result.UnknownRates,
	)
	if len(result.Stats.Orphans) > 0 {
		logger.Warn("identifiers without boundary features", "ids", result.Stats.Orphans)
	}

	for _, l := range p.loaders {
		if err := l.Load(ctx, report); err != nil {
			p.metrics.SinkErrors.WithLabelValues(l.Name()).Inc()
			return report, fmt.Errorf("load %s: %w", l.Name(), err)
		}
	}

	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	p.metrics.LastSuccess.Set(float64(domain.Now().Unix()))
	logger.Info("pipeline finished", "duration", time.Since(start))
	return report, nil
}
