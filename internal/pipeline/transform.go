package pipeline

import (
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// Options tune the transform stage.
type Options struct {
	Windows   []int
	Tolerance int64
	Schemes   []domain.Scheme
	// IDProperty names the boundary feature property holding the identifier.
	// Empty means the feature id.
	IDProperty   string
	AsOf         time.Time
	RankWindow   int
	RateDecimals int32
}

// Result is the output of Transform.
type Result struct {
	History      []domain.LocalityMetrics
	Features     *geojson.FeatureCollection
	Stats        domain.JoinStats
	UnknownRates int
}

// Transform runs the pure part of the pipeline: deltas, rates, labels and the
// geometry join. Inputs are not modified.
func Transform(cases []domain.CaseRecord, populations []domain.PopulationRecord, boundaries *geojson.FeatureCollection, opts Options) (Result, error) {
	if err := domain.ValidateWindows(opts.Windows); err != nil {
		return Result{}, err
	}
	if err := domain.ValidateSchemes(opts.Schemes, opts.Windows); err != nil {
		return Result{}, err
	}

	pops, err := domain.IndexPopulations(populations)
	if err != nil {
		return Result{}, fmt.Errorf("index populations: %w", err)
	}
	deltas, err := domain.NormalizeSeries(cases, opts.Windows, opts.Tolerance)
	if err != nil {
		return Result{}, fmt.Errorf("normalize series: %w", err)
	}
	rates, err := domain.ComputeRates(deltas, pops)
	if err != nil {
		return Result{}, fmt.Errorf("compute rates: %w", err)
	}

	unknown := 0
	for _, r := range rates {
		if !r.Per100k.Known() {
			unknown++
		}
	}

	history := domain.BuildMetrics(cases, rates, pops, opts.Schemes)
	features, stats := domain.JoinGeometry(boundaries, history, domain.JoinOptions{
		IDProperty:   opts.IDProperty,
		AsOf:         opts.AsOf,
		Windows:      opts.Windows,
		Schemes:      opts.Schemes,
		RankWindow:   opts.RankWindow,
		RateDecimals: opts.RateDecimals,
	})

	return Result{
		History:      history,
		Features:     features,
		Stats:        stats,
		UnknownRates: unknown,
	}, nil
}
