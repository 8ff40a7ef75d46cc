package dataset

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/covid-risk-etl/internal/adapter/source"
	"github.com/couchcryptid/covid-risk-etl/internal/config"
	"github.com/couchcryptid/covid-risk-etl/internal/domain"
	"github.com/couchcryptid/covid-risk-etl/internal/observability"
)

// CaseExtractor loads the cumulative case dataset through the local cache.
// It implements pipeline.CaseExtractor.
type CaseExtractor struct {
	url       string
	cachePath string
	format    string
	cache     *source.Cache
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewCaseExtractor creates an extractor for the configured case dataset.
func NewCaseExtractor(cfg *config.Config, cache *source.Cache, logger *slog.Logger, metrics *observability.Metrics) *CaseExtractor {
	return &CaseExtractor{
		url:       cfg.CasesURL,
		cachePath: cfg.CasesCachePath,
		format:    cfg.CasesFormat,
		cache:     cache,
		logger:    logger,
		metrics:   metrics,
	}
}

// ExtractCases fetches (or reuses) the case dataset and parses it.
func (e *CaseExtractor) ExtractCases(ctx context.Context) ([]domain.CaseRecord, error) {
	var (
		latest source.LatestDateFunc
		parse  func([]byte) ([]domain.CaseRecord, error)
	)
	switch e.format {
	case config.FormatVDH:
		latest = LatestVDHDate
		parse = func(data []byte) ([]domain.CaseRecord, error) { return ParseVDHCases(bytes.NewReader(data)) }
	case config.FormatCovidTracking:
		latest = LatestCovidTrackingDate
		parse = ParseCovidTracking
	default:
		return nil, fmt.Errorf("unsupported case format %q", e.format)
	}

	data, err := e.cache.Get(ctx, e.url, e.cachePath, latest)
	if err != nil {
		return nil, fmt.Errorf("extract cases: %w", err)
	}
	records, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s cases: %w", e.format, err)
	}

	e.metrics.RecordsExtracted.WithLabelValues("cases").Add(float64(len(records)))
	e.logger.Info("cases extracted", "format", e.format, "records", len(records))
	return records, nil
}

// PopulationExtractor loads the census population reference table.
// It implements pipeline.PopulationExtractor.
type PopulationExtractor struct {
	url     string
	format  string
	state   string
	column  string
	fetcher *source.Fetcher
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPopulationExtractor creates an extractor for the configured census file.
func NewPopulationExtractor(cfg *config.Config, fetcher *source.Fetcher, logger *slog.Logger, metrics *observability.Metrics) *PopulationExtractor {
	return &PopulationExtractor{
		url:     cfg.PopulationURL,
		format:  cfg.PopulationFormat,
		state:   cfg.PopulationState,
		column:  cfg.PopulationColumn,
		fetcher: fetcher,
		logger:  logger,
		metrics: metrics,
	}
}

// ExtractPopulations fetches and parses the population table.
func (e *PopulationExtractor) ExtractPopulations(ctx context.Context) ([]domain.PopulationRecord, error) {
	data, err := e.fetcher.Fetch(ctx, e.url)
	if err != nil {
		return nil, fmt.Errorf("extract population: %w", err)
	}

	var records []domain.PopulationRecord
	switch e.format {
	case config.FormatCensusCounty:
		records, err = ParseCensusCounties(bytes.NewReader(data), e.state, e.column)
	case config.FormatCensusState:
		records, err = ParseCensusStates(bytes.NewReader(data), e.column)
	default:
		return nil, fmt.Errorf("unsupported population format %q", e.format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s population: %w", e.format, err)
	}

	e.metrics.RecordsExtracted.WithLabelValues("population").Add(float64(len(records)))
	e.logger.Info("population extracted", "format", e.format, "records", len(records))
	return records, nil
}
