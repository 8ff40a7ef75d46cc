package domain

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(x, y float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func countyCollection(ids ...string) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, id := range ids {
		f := geojson.NewFeature(square(float64(i), 0))
		f.Properties["GEOID"] = id
		fc.Append(f)
	}
	return fc
}

func joinOpts() JoinOptions {
	return JoinOptions{
		IDProperty:   "GEOID",
		Windows:      DefaultWindows,
		Schemes:      DefaultSchemes(),
		RankWindow:   28,
		RateDecimals: 2,
	}
}

func TestJoinGeometry(t *testing.T) {
	recs := series(testYork, 10, 12, 15, 20)
	metrics := buildTestMetrics(t, recs, []PopulationRecord{{ID: testYork, Name: "York County", Population: 68280}})
	fc := countyCollection(testYork, "51001")

	out, stats := JoinGeometry(fc, metrics, joinOpts())
	require.Len(t, out.Features, 2)
	assert.Equal(t, JoinStats{Features: 2, Matched: 1, Unmatched: 1}, stats)

	york := out.Features[0].Properties
	assert.Equal(t, testYork, york[PropIdentifier])
	assert.Equal(t, true, york[PropHasData])
	assert.Equal(t, "York", york[PropName])
	assert.Equal(t, "2020-11-04", york[PropReportDate])
	assert.Equal(t, int64(68280), york[PropPopulation])
	assert.Equal(t, int64(5), york[CasesProperty(1)])
	assert.Equal(t, 7.32, york[RateProperty(1)])
	assert.Equal(t, 29.29, york[RateProperty(14)])
	assert.Equal(t, "Moderate risk of transmission in schools", york[RiskProperty(SchemeSchoolTransmission)])
	assert.Equal(t, 1, york[PropRank])
	assert.Equal(t, testYork, york["GEOID"], "boundary properties kept")

	t.Run("unmatched geometry retained with nulls", func(t *testing.T) {
		empty := out.Features[1]
		assert.NotNil(t, empty.Geometry)
		p := empty.Properties
		assert.Equal(t, false, p[PropHasData])
		for _, k := range []string{PropReportDate, PropPopulation, RateProperty(14), CasesProperty(28), RiskProperty(SchemeForeignTravel), PropRank} {
			v, present := p[k]
			assert.True(t, present, k)
			assert.Nil(t, v, k)
		}

		data, err := json.Marshal(empty)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"per100k_14d":null`)
		assert.NotContains(t, string(data), `"per100k_14d":0`)
	})

	t.Run("input collection untouched", func(t *testing.T) {
		_, ok := fc.Features[0].Properties[PropHasData]
		assert.False(t, ok)
	})
}

func TestJoinGeometry_UnknownPopulation(t *testing.T) {
	metrics := buildTestMetrics(t, series(testYork, 10, 20), nil)
	out, stats := JoinGeometry(countyCollection(testYork), metrics, joinOpts())
	assert.Equal(t, 1, stats.Matched)

	p := out.Features[0].Properties
	assert.Equal(t, true, p[PropHasData])
	assert.Nil(t, p[PropPopulation])
	assert.Nil(t, p[RateProperty(14)])
	assert.Equal(t, int64(20), p[CasesProperty(14)], "raw cases still known")
	assert.Equal(t, UnknownLabel, p[RiskProperty(SchemeSchoolTransmission)])
	assert.Nil(t, p[PropRank])
}

func TestJoinGeometry_FeatureIDAndOrphans(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	f := geojson.NewFeature(square(0, 0))
	f.ID = "VA"
	f.Properties["name"] = "Virginia"
	fc.Append(f)
	g := geojson.NewFeature(square(2, 0))
	g.ID = "MD"
	g.Properties["name"] = "Maryland"
	fc.Append(g)

	recs := []CaseRecord{
		{ID: "VA", ReportDate: day(0), Cumulative: 100},
		{ID: "PR", ReportDate: day(0), Cumulative: 5},
	}
	metrics := buildTestMetrics(t, recs, []PopulationRecord{{ID: "VA", Name: "Virginia", Population: 8535519}})

	opts := joinOpts()
	opts.IDProperty = ""
	out, stats := JoinGeometry(fc, metrics, opts)

	assert.Equal(t, []string{"PR"}, stats.Orphans)
	assert.Equal(t, "VA", out.Features[0].ID)
	assert.Equal(t, "Virginia", out.Features[0].Properties[PropName])
	assert.Equal(t, "Maryland", out.Features[1].Properties[PropName], "boundary name kept when unmatched")
	assert.Nil(t, out.Features[1].Properties[PropReportDate])
}

func TestFeatureKey(t *testing.T) {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties["GEOID"] = 51199.0
	f.Properties["code"] = " 51199 "
	f.ID = "VA"

	assert.Equal(t, "51199", FeatureKey(f, "GEOID"))
	assert.Equal(t, "51199", FeatureKey(f, "code"))
	assert.Equal(t, "VA", FeatureKey(f, ""))
	assert.Equal(t, "", FeatureKey(f, "missing"))
}
