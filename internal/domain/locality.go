package domain

import (
	"sort"
	"time"
)

type seriesKey struct {
	id   string
	date time.Time
}

// BuildMetrics rolls rate records up into one LocalityMetrics per identifier
// and report date, attaching names, population and a label per scheme.
// Output is ordered by identifier then date.
func BuildMetrics(records []CaseRecord, rates []RateRecord, populations map[string]PopulationRecord, schemes []Scheme) []LocalityMetrics {
	byKey := make(map[seriesKey]*LocalityMetrics, len(records))
	keys := make([]seriesKey, 0, len(records))

	for _, rec := range records {
		k := seriesKey{id: rec.ID, date: Day(rec.ReportDate)}
		if _, ok := byKey[k]; ok {
			continue
		}
		m := &LocalityMetrics{
			ID:         rec.ID,
			Name:       rec.Name,
			District:   rec.District,
			ReportDate: k.date,
			Cumulative: rec.Cumulative,
			Cases:      make(map[int]int64),
			Rates:      make(map[int]Rate),
		}
		if pop, ok := populations[rec.ID]; ok {
			m.Population = pop.Population
			m.HasPopulation = true
			if m.Name == "" {
				m.Name = pop.Name
			}
		}
		byKey[k] = m
		keys = append(keys, k)
	}

	for _, r := range rates {
		m, ok := byKey[seriesKey{id: r.ID, date: Day(r.ReportDate)}]
		if !ok {
			continue
		}
		m.Cases[r.Window] = r.Cases
		m.Rates[r.Window] = r.Per100k
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].id != keys[j].id {
			return keys[i].id < keys[j].id
		}
		return keys[i].date.Before(keys[j].date)
	})

	out := make([]LocalityMetrics, 0, len(keys))
	for _, k := range keys {
		m := byKey[k]
		m.Labels = make(map[string]string, len(schemes))
		for _, l := range ClassifyAll(schemes, m.Rates) {
			m.Labels[l.Scheme] = l.Label
		}
		out = append(out, *m)
	}
	return out
}

// Latest picks one LocalityMetrics per identifier: the most recent report
// date, or exactly asOf when asOf is non-zero. Identifiers with no row on
// asOf are absent from the result.
func Latest(metrics []LocalityMetrics, asOf time.Time) map[string]LocalityMetrics {
	out := make(map[string]LocalityMetrics)
	if !asOf.IsZero() {
		asOf = Day(asOf)
	}
	for _, m := range metrics {
		if !asOf.IsZero() {
			if m.ReportDate.Equal(asOf) {
				out[m.ID] = m
			}
			continue
		}
		if cur, ok := out[m.ID]; !ok || m.ReportDate.After(cur.ReportDate) {
			out[m.ID] = m
		}
	}
	return out
}

// Rank orders identifiers by descending rate for a window, 1 being the
// highest. Ties are broken by identifier; unknown rates are not ranked.
func Rank(latest map[string]LocalityMetrics, window int) map[string]int {
	type ranked struct {
		id   string
		rate float64
	}
	list := make([]ranked, 0, len(latest))
	for id, m := range latest {
		if v, ok := m.Rate(window).Value(); ok {
			list = append(list, ranked{id: id, rate: v})
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].rate != list[j].rate {
			return list[i].rate > list[j].rate
		}
		return list[i].id < list[j].id
	})
	out := make(map[string]int, len(list))
	for i, r := range list {
		out[r.id] = i + 1
	}
	return out
}

// History returns the date-ordered rows for one identifier.
func History(metrics []LocalityMetrics, id string) []LocalityMetrics {
	var out []LocalityMetrics
	for _, m := range metrics {
		if m.ID == id {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReportDate.Before(out[j].ReportDate) })
	return out
}
