package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/shopspring/decimal"
)

// Feature property names written by JoinGeometry.
const (
	PropIdentifier = "identifier"
	PropName       = "name"
	PropDistrict   = "district"
	PropReportDate = "report_date"
	PropPopulation = "population"
	PropCumulative = "total_cases"
	PropRank       = "rank"
	PropHasData    = "has_data"
)

// CasesProperty names the raw case delta property for a window.
func CasesProperty(window int) string { return fmt.Sprintf("cases_%dd", window) }

// RateProperty names the per-100k rate property for a window.
func RateProperty(window int) string { return fmt.Sprintf("per100k_%dd", window) }

// RiskProperty names the risk label property for a scheme.
func RiskProperty(scheme string) string {
	return "risk_" + strings.ReplaceAll(scheme, "-", "_")
}

// JoinOptions controls how boundary features are matched to metrics.
type JoinOptions struct {
	// IDProperty is the feature property holding the identifier. Empty means
	// the feature's top-level id is used.
	IDProperty string
	// AsOf selects an explicit report date instead of each identifier's latest.
	AsOf       time.Time
	Windows    []int
	Schemes    []Scheme
	RankWindow int
	// RateDecimals is the number of decimal places kept for rates.
	RateDecimals int32
}

// JoinStats summarizes a geometry join.
type JoinStats struct {
	Features  int
	Matched   int
	Unmatched int
	// Orphans are identifiers with metrics but no boundary feature.
	Orphans []string
}

// JoinGeometry left-joins every boundary feature with the selected metrics
// for its identifier. Features without data keep their geometry and carry
// every attribute key with a null value. The input collection is not modified.
func JoinGeometry(fc *geojson.FeatureCollection, metrics []LocalityMetrics, opts JoinOptions) (*geojson.FeatureCollection, JoinStats) {
	latest := Latest(metrics, opts.AsOf)
	ranks := map[string]int{}
	if opts.RankWindow > 0 {
		ranks = Rank(latest, opts.RankWindow)
	}

	out := geojson.NewFeatureCollection()
	var stats JoinStats
	used := make(map[string]bool, len(latest))

	if fc != nil {
		for _, f := range fc.Features {
			key := FeatureKey(f, opts.IDProperty)
			nf := geojson.NewFeature(f.Geometry)
			nf.ID = f.ID
			nf.BBox = f.BBox
			nf.Properties = f.Properties.Clone()
			if nf.Properties == nil {
				nf.Properties = geojson.Properties{}
			}
			nf.Properties[PropIdentifier] = key

			m, ok := latest[key]
			if ok && key != "" {
				setAttributes(nf.Properties, m, ranks, opts)
				used[key] = true
				stats.Matched++
			} else {
				setNullAttributes(nf.Properties, opts)
				stats.Unmatched++
			}
			out.Append(nf)
			stats.Features++
		}
	}

	for id := range latest {
		if !used[id] {
			stats.Orphans = append(stats.Orphans, id)
		}
	}
	sort.Strings(stats.Orphans)
	return out, stats
}

// FeatureKey extracts the join identifier from a feature property, or from
// the feature id when prop is empty. Numeric values are formatted without
// a fractional part.
func FeatureKey(f *geojson.Feature, prop string) string {
	var v any
	if prop == "" {
		v = f.ID
	} else {
		v = f.Properties[prop]
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func setAttributes(p geojson.Properties, m LocalityMetrics, ranks map[string]int, opts JoinOptions) {
	p[PropHasData] = true
	if m.Name != "" {
		p[PropName] = m.Name
	} else if _, ok := p[PropName]; !ok {
		p[PropName] = nil
	}
	p[PropDistrict] = nullIfEmpty(m.District)
	p[PropReportDate] = m.ReportDate.Format(DateLayout)
	p[PropCumulative] = m.Cumulative
	if m.HasPopulation {
		p[PropPopulation] = m.Population
	} else {
		p[PropPopulation] = nil
	}
	for _, w := range opts.Windows {
		if c, ok := m.Cases[w]; ok {
			p[CasesProperty(w)] = c
		} else {
			p[CasesProperty(w)] = nil
		}
		p[RateProperty(w)] = roundRate(m.Rate(w), opts.RateDecimals)
	}
	for _, s := range opts.Schemes {
		label, ok := m.Labels[s.Name]
		if !ok {
			label = UnknownLabel
		}
		p[RiskProperty(s.Name)] = label
	}
	if r, ok := ranks[m.ID]; ok {
		p[PropRank] = r
	} else if opts.RankWindow > 0 {
		p[PropRank] = nil
	}
}

func setNullAttributes(p geojson.Properties, opts JoinOptions) {
	p[PropHasData] = false
	for _, k := range []string{PropName, PropDistrict, PropReportDate, PropCumulative, PropPopulation} {
		// Keep a display name already present on the boundary feature.
		if k == PropName {
			if _, ok := p[k]; ok {
				continue
			}
		}
		p[k] = nil
	}
	for _, w := range opts.Windows {
		p[CasesProperty(w)] = nil
		p[RateProperty(w)] = nil
	}
	for _, s := range opts.Schemes {
		p[RiskProperty(s.Name)] = nil
	}
	if opts.RankWindow > 0 {
		p[PropRank] = nil
	}
}

// roundRate returns nil for unknown rates so they serialize as JSON null.
func roundRate(r Rate, places int32) any {
	v, ok := r.Value()
	if !ok {
		return nil
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
