package domain

// IndexPopulations builds the exact-match lookup used by ComputeRates.
// Non-positive populations and duplicate identifiers are configuration errors.
func IndexPopulations(records []PopulationRecord) (map[string]PopulationRecord, error) {
	index := make(map[string]PopulationRecord, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			return nil, configErrorf("population", "record %q has no identifier", rec.Name)
		}
		if rec.Population <= 0 {
			return nil, configErrorf("population", "%s has non-positive population %d", rec.ID, rec.Population)
		}
		if _, dup := index[rec.ID]; dup {
			return nil, configErrorf("population", "%s listed twice", rec.ID)
		}
		index[rec.ID] = rec
	}
	return index, nil
}

// ComputeRates normalizes each delta per 100k population. Identifiers with
// no population entry get an unknown rate rather than zero.
func ComputeRates(deltas []Delta, populations map[string]PopulationRecord) ([]RateRecord, error) {
	out := make([]RateRecord, 0, len(deltas))
	for _, d := range deltas {
		rate := UnknownRate()
		if pop, ok := populations[d.ID]; ok {
			if pop.Population <= 0 {
				return nil, configErrorf("population", "%s has non-positive population %d", d.ID, pop.Population)
			}
			rate = KnownRate(float64(d.Cases) * Per100k / float64(pop.Population))
		}
		out = append(out, RateRecord{
			ID:         d.ID,
			ReportDate: d.ReportDate,
			Window:     d.Window,
			Cases:      d.Cases,
			Per100k:    rate,
		})
	}
	return out, nil
}
