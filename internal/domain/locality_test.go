package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestMetrics(t *testing.T, records []CaseRecord, pops []PopulationRecord) []LocalityMetrics {
	t.Helper()
	deltas, err := NormalizeSeries(records, DefaultWindows, 0)
	require.NoError(t, err)
	idx, err := IndexPopulations(pops)
	require.NoError(t, err)
	rates, err := ComputeRates(deltas, idx)
	require.NoError(t, err)
	return BuildMetrics(records, rates, idx, DefaultSchemes())
}

func TestBuildMetrics(t *testing.T) {
	recs := append(series(testYork, 100, 150, 300), series("51830", 5, 6)...)
	metrics := buildTestMetrics(t, recs, []PopulationRecord{{ID: testYork, Name: "York County", Population: 100000}})
	require.Len(t, metrics, 5)

	first := metrics[0]
	assert.Equal(t, testYork, first.ID)
	assert.Equal(t, "York", first.Name, "case dataset name wins")
	assert.True(t, first.HasPopulation)

	last := metrics[2]
	assert.Equal(t, day(2), last.ReportDate)
	assert.Equal(t, int64(150), last.Cases[1])
	v, ok := last.Rate(14).Value()
	require.True(t, ok)
	assert.InDelta(t, 300.0, v, 1e-9)
	assert.Equal(t, testHighest, last.Labels[SchemeSchoolTransmission])
	assert.Equal(t, "Level 4, Very High: Travelers should avoid all travel", last.Labels[SchemeForeignTravel])

	noPop := metrics[4]
	assert.Equal(t, "51830", noPop.ID)
	assert.False(t, noPop.HasPopulation)
	assert.False(t, noPop.Rate(14).Known())
	for _, s := range DefaultSchemes() {
		assert.Equal(t, UnknownLabel, noPop.Labels[s.Name], s.Name)
	}
}

func TestBuildMetrics_NameFallsBackToPopulation(t *testing.T) {
	recs := []CaseRecord{{ID: "VA", ReportDate: day(0), Cumulative: 10}}
	metrics := buildTestMetrics(t, recs, []PopulationRecord{{ID: "VA", Name: "Virginia", Population: 8535519}})
	require.Len(t, metrics, 1)
	assert.Equal(t, "Virginia", metrics[0].Name)
}

func TestLatest(t *testing.T) {
	recs := append(series(testYork, 1, 2, 3), series("51700", 1)...)
	metrics := buildTestMetrics(t, recs, nil)

	t.Run("most recent per identifier", func(t *testing.T) {
		latest := Latest(metrics, time.Time{})
		require.Len(t, latest, 2)
		assert.Equal(t, day(2), latest[testYork].ReportDate)
		assert.Equal(t, day(0), latest["51700"].ReportDate)
	})

	t.Run("explicit as-of date", func(t *testing.T) {
		latest := Latest(metrics, day(1).Add(13*time.Hour))
		require.Len(t, latest, 1)
		assert.Equal(t, int64(2), latest[testYork].Cumulative)
		_, ok := latest["51700"]
		assert.False(t, ok, "no row on the as-of date")
	})
}

func TestRank(t *testing.T) {
	latest := map[string]LocalityMetrics{
		"a": {ID: "a", Rates: map[int]Rate{28: KnownRate(50)}},
		"b": {ID: "b", Rates: map[int]Rate{28: KnownRate(900)}},
		"c": {ID: "c", Rates: map[int]Rate{28: UnknownRate()}},
		"d": {ID: "d", Rates: map[int]Rate{28: KnownRate(50)}},
	}
	ranks := Rank(latest, 28)
	assert.Equal(t, map[string]int{"b": 1, "a": 2, "d": 3}, ranks)
}

func TestHistory(t *testing.T) {
	recs := append(series(testYork, 1, 2, 3), series("51700", 1)...)
	metrics := buildTestMetrics(t, recs, nil)
	h := History(metrics, testYork)
	require.Len(t, h, 3)
	assert.Equal(t, day(0), h[0].ReportDate)
	assert.Empty(t, History(metrics, "nope"))
}
