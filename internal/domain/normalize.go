package domain

import (
	"sort"
	"time"
)

// DefaultWindows are the trailing windows, in days, computed for every series.
var DefaultWindows = []int{1, 7, 14, 28}

// ValidateWindows requires at least one window, all positive and unique.
func ValidateWindows(windows []int) error {
	if len(windows) == 0 {
		return configErrorf("windows", "at least one window is required")
	}
	seen := make(map[int]bool, len(windows))
	for _, w := range windows {
		if w <= 0 {
			return configErrorf("windows", "window %d must be positive", w)
		}
		if seen[w] {
			return configErrorf("windows", "window %d listed twice", w)
		}
		seen[w] = true
	}
	return nil
}

// NormalizeSeries groups records by identifier, orders each group by report
// date and computes, for every window w, the cases added since the last
// observation on or before date-w. Dates with no such observation use a zero
// baseline, so the delta equals the cumulative count.
//
// A cumulative count that drops by more than tolerance between consecutive
// dates, a negative count, a missing identifier or a repeated report date
// fails with *DataIntegrityError. Output is ordered by identifier, date, then
// window in the order given. The input slice is not modified.
func NormalizeSeries(records []CaseRecord, windows []int, tolerance int64) ([]Delta, error) {
	if err := ValidateWindows(windows); err != nil {
		return nil, err
	}
	if tolerance < 0 {
		return nil, configErrorf("tolerance", "must not be negative, got %d", tolerance)
	}

	groups, err := groupSeries(records)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Delta, 0, len(records)*len(windows))
	for _, id := range ids {
		series := groups[id]
		if err := checkSeries(series, tolerance); err != nil {
			return nil, err
		}
		for i, rec := range series {
			for _, w := range windows {
				base := baseline(series[:i], rec.ReportDate.AddDate(0, 0, -w))
				out = append(out, Delta{
					ID:         id,
					ReportDate: rec.ReportDate,
					Window:     w,
					Cumulative: rec.Cumulative,
					Cases:      rec.Cumulative - base,
				})
			}
		}
	}
	return out, nil
}

// groupSeries copies records into per-identifier slices sorted by date.
func groupSeries(records []CaseRecord) (map[string][]CaseRecord, error) {
	groups := make(map[string][]CaseRecord)
	for _, rec := range records {
		if rec.ID == "" {
			return nil, &DataIntegrityError{ReportDate: rec.ReportDate, Reason: "record has no identifier"}
		}
		rec.ReportDate = Day(rec.ReportDate)
		groups[rec.ID] = append(groups[rec.ID], rec)
	}
	for _, series := range groups {
		sort.SliceStable(series, func(i, j int) bool {
			return series[i].ReportDate.Before(series[j].ReportDate)
		})
	}
	return groups, nil
}

func checkSeries(series []CaseRecord, tolerance int64) error {
	for i, rec := range series {
		if rec.Cumulative < 0 {
			return &DataIntegrityError{
				ID:         rec.ID,
				ReportDate: rec.ReportDate,
				Current:    rec.Cumulative,
				Reason:     "negative cumulative count",
			}
		}
		if i == 0 {
			continue
		}
		prev := series[i-1]
		if prev.ReportDate.Equal(rec.ReportDate) {
			return &DataIntegrityError{
				ID:         rec.ID,
				ReportDate: rec.ReportDate,
				Reason:     "duplicate report date",
			}
		}
		if prev.Cumulative-rec.Cumulative > tolerance {
			return &DataIntegrityError{
				ID:           rec.ID,
				ReportDate:   rec.ReportDate,
				PreviousDate: prev.ReportDate,
				Previous:     prev.Cumulative,
				Current:      rec.Cumulative,
				Reason:       "cumulative count decreased beyond tolerance",
			}
		}
	}
	return nil
}

// baseline returns the cumulative count of the last observation in history
// dated on or before cutoff, or zero if there is none. history is sorted.
func baseline(history []CaseRecord, cutoff time.Time) int64 {
	n := sort.Search(len(history), func(i int) bool {
		return history[i].ReportDate.After(cutoff)
	})
	if n == 0 {
		return 0
	}
	return history[n-1].Cumulative
}
