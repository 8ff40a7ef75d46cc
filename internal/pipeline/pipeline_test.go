package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
	"github.com/couchcryptid/covid-risk-etl/internal/observability"
	"github.com/couchcryptid/covid-risk-etl/internal/pipeline"
)

const (
	york     = "51199"
	accomack = "51001"
	fairfax  = "51059"
)

// --- mocks ---

type mockCases struct {
	records []domain.CaseRecord
	err     error
}

func (m *mockCases) ExtractCases(context.Context) ([]domain.CaseRecord, error) {
	return m.records, m.err
}

type mockPopulation struct {
	records []domain.PopulationRecord
	err     error
}

func (m *mockPopulation) ExtractPopulations(context.Context) ([]domain.PopulationRecord, error) {
	return m.records, m.err
}

type mockGeometry struct {
	fc  *geojson.FeatureCollection
	err error
}

func (m *mockGeometry) Boundaries(context.Context) (*geojson.FeatureCollection, error) {
	return m.fc, m.err
}

type mockLoader struct {
	name    string
	err     error
	reports []domain.Report
}

func (m *mockLoader) Name() string { return m.name }

func (m *mockLoader) Load(_ context.Context, r domain.Report) error {
	if m.err != nil {
		return m.err
	}
	m.reports = append(m.reports, r)
	return nil
}

// --- fixtures ---

var d0 = time.Date(2020, 11, 1, 0, 0, 0, 0, time.UTC)

func series(id string, counts ...int64) []domain.CaseRecord {
	out := make([]domain.CaseRecord, len(counts))
	for i, c := range counts {
		out[i] = domain.CaseRecord{ID: id, ReportDate: d0.AddDate(0, 0, i), Cumulative: c}
	}
	return out
}

func boundaries(ids ...string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, id := range ids {
		x := float64(i)
		f := geojson.NewFeature(orb.Polygon{{{x, 0}, {x + 1, 0}, {x + 1, 1}, {x, 1}, {x, 0}}})
		f.ID = id
		fc.Append(f)
	}
	return fc
}

func testOptions() pipeline.Options {
	return pipeline.Options{
		Windows:      domain.DefaultWindows,
		Schemes:      domain.DefaultSchemes(),
		RankWindow:   28,
		RateDecimals: 2,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freezeClock(t *testing.T, now time.Time) {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func featureByID(t *testing.T, fc *geojson.FeatureCollection, id string) geojson.Properties {
	t.Helper()
	for _, f := range fc.Features {
		if f.Properties[domain.PropIdentifier] == id {
			return f.Properties
		}
	}
	t.Fatalf("feature %s not found", id)
	return nil
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	now := time.Date(2020, 11, 5, 8, 0, 0, 0, time.UTC)
	freezeClock(t, now)

	cases := append(series(york, 10, 12, 15, 20), series(fairfax, 1, 2, 3, 4)...)
	pops := []domain.PopulationRecord{{ID: york, Name: "York County", Population: 100000}}

	first, second := &mockLoader{name: "first"}, &mockLoader{name: "second"}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(
		&mockCases{records: cases},
		&mockPopulation{records: pops},
		&mockGeometry{fc: boundaries(york, accomack, fairfax)},
		[]pipeline.Loader{first, second},
		testOptions(),
		testLogger(),
		metrics,
	)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, first.reports, 1)
	require.Len(t, second.reports, 1)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, now, report.GeneratedAt)
	assert.Equal(t, domain.JoinStats{Features: 3, Matched: 2, Unmatched: 1}, report.Stats)

	t.Run("daily rates equal deltas at population 100000", func(t *testing.T) {
		var got []float64
		for _, m := range domain.History(report.History, york) {
			v, ok := m.Rate(1).Value()
			require.True(t, ok)
			got = append(got, v)
		}
		if diff := cmp.Diff([]float64{10, 2, 3, 5}, got); diff != "" {
			t.Errorf("1-day rates (-want +got):\n%s", diff)
		}
	})

	t.Run("missing population yields unknown rate and label", func(t *testing.T) {
		p := featureByID(t, report.Features, fairfax)
		assert.Equal(t, true, p[domain.PropHasData])
		assert.Nil(t, p[domain.RateProperty(14)])
		assert.Equal(t, int64(4), p[domain.CasesProperty(28)])
		assert.Equal(t, domain.UnknownLabel, p[domain.RiskProperty(domain.SchemeSchoolTransmission)])
	})

	t.Run("unmatched geometry retained with nulls", func(t *testing.T) {
		p := featureByID(t, report.Features, accomack)
		assert.Equal(t, false, p[domain.PropHasData])
		v, present := p[domain.RateProperty(28)]
		assert.True(t, present)
		assert.Nil(t, v)
	})

	t.Run("metrics recorded", func(t *testing.T) {
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.FeaturesJoined.WithLabelValues("matched")))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FeaturesJoined.WithLabelValues("unmatched")))
		assert.Equal(t, 16.0, testutil.ToFloat64(metrics.UnknownRates))
		assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(metrics.LastSuccess))
	})
}

func TestPipeline_Run_IntegrityErrorWritesNothing(t *testing.T) {
	loader := &mockLoader{name: "geojson"}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(
		&mockCases{records: series(york, 10, 12, 9, 20)},
		&mockPopulation{records: []domain.PopulationRecord{{ID: york, Population: 68280}}},
		&mockGeometry{fc: boundaries(york)},
		[]pipeline.Loader{loader},
		testOptions(),
		testLogger(),
		metrics,
	)

	_, err := p.Run(context.Background())
	require.Error(t, err)

	var integrity *domain.DataIntegrityError
	require.True(t, errors.As(err, &integrity))
	assert.Equal(t, york, integrity.ID)
	assert.Equal(t, int64(12), integrity.Previous)
	assert.Equal(t, int64(9), integrity.Current)
	assert.Empty(t, loader.reports)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IntegrityErrors))
}

func TestPipeline_Run_ToleranceAllowsSmallCorrections(t *testing.T) {
	loader := &mockLoader{name: "geojson"}
	opts := testOptions()
	opts.Tolerance = 5
	p := pipeline.New(
		&mockCases{records: series(york, 10, 12, 9, 20)},
		&mockPopulation{records: []domain.PopulationRecord{{ID: york, Population: 68280}}},
		&mockGeometry{fc: boundaries(york)},
		[]pipeline.Loader{loader},
		opts,
		testLogger(),
		observability.NewMetricsForTesting(),
	)

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, loader.reports, 1)
}

func TestPipeline_Run_ExtractErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		c    *mockCases
		p    *mockPopulation
		g    *mockGeometry
	}{
		{"cases", &mockCases{err: boom}, &mockPopulation{}, &mockGeometry{}},
		{"population", &mockCases{}, &mockPopulation{err: boom}, &mockGeometry{}},
		{"geometry", &mockCases{}, &mockPopulation{}, &mockGeometry{err: boom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &mockLoader{name: "geojson"}
			p := pipeline.New(tt.c, tt.p, tt.g, []pipeline.Loader{loader}, testOptions(), testLogger(), observability.NewMetricsForTesting())
			_, err := p.Run(context.Background())
			require.ErrorIs(t, err, boom)
			assert.Empty(t, loader.reports)
		})
	}
}

func TestPipeline_Run_LoaderErrorStopsRun(t *testing.T) {
	failing := &mockLoader{name: "kafka", err: errors.New("broker down")}
	after := &mockLoader{name: "map"}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(
		&mockCases{records: series(york, 1, 2)},
		&mockPopulation{records: []domain.PopulationRecord{{ID: york, Population: 68280}}},
		&mockGeometry{fc: boundaries(york)},
		[]pipeline.Loader{failing, after},
		testOptions(),
		testLogger(),
		metrics,
	)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load kafka")
	assert.Empty(t, after.reports)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SinkErrors.WithLabelValues("kafka")))
}

func TestTransform_ConfigurationErrors(t *testing.T) {
	var cfgErr *domain.ConfigurationError

	_, err := pipeline.Transform(series(york, 1), []domain.PopulationRecord{{ID: york, Population: 0}}, boundaries(york), testOptions())
	require.ErrorAs(t, err, &cfgErr)

	opts := testOptions()
	opts.Windows = []int{7, 7}
	_, err = pipeline.Transform(series(york, 1), nil, boundaries(york), opts)
	require.ErrorAs(t, err, &cfgErr)

	opts = testOptions()
	opts.Windows = []int{1, 7}
	_, err = pipeline.Transform(series(york, 1), nil, boundaries(york), opts)
	require.ErrorAs(t, err, &cfgErr, "scheme window 14 not computed")
}

func TestTransform_InputsUntouched(t *testing.T) {
	cases := []domain.CaseRecord{
		{ID: york, ReportDate: d0.AddDate(0, 0, 1), Cumulative: 12},
		{ID: york, ReportDate: d0, Cumulative: 10},
	}
	before := append([]domain.CaseRecord(nil), cases...)
	fc := boundaries(york)

	_, err := pipeline.Transform(cases, []domain.PopulationRecord{{ID: york, Population: 100}}, fc, testOptions())
	require.NoError(t, err)

	if diff := cmp.Diff(before, cases); diff != "" {
		t.Errorf("cases modified (-before +after):\n%s", diff)
	}
	_, joined := fc.Features[0].Properties[domain.PropHasData]
	assert.False(t, joined)
}

func TestTransform_AsOfDate(t *testing.T) {
	opts := testOptions()
	opts.AsOf = d0.AddDate(0, 0, 1)

	res, err := pipeline.Transform(series(york, 10, 12, 15), []domain.PopulationRecord{{ID: york, Population: 100000}}, boundaries(york), opts)
	require.NoError(t, err)

	p := res.Features.Features[0].Properties
	assert.Equal(t, "2020-11-02", p[domain.PropReportDate])
	assert.Equal(t, int64(12), p[domain.PropCumulative])
	assert.Equal(t, 2.0, p[domain.RateProperty(1)])
}
