package domain

import "time"

// CaseRecord is one row of a case dataset snapshot: the cumulative confirmed
// case count for a locality or state on a report date.
type CaseRecord struct {
	ID         string    // FIPS code or two-letter state code
	Name       string    // display name, may be empty
	District   string    // health district, VDH data only
	ReportDate time.Time // calendar date, UTC midnight
	Cumulative int64
}

// PopulationRecord is static reference data for one identifier.
type PopulationRecord struct {
	ID         string
	Name       string
	Population int64
}

// Delta is the case count added over a trailing window ending at ReportDate.
type Delta struct {
	ID         string
	ReportDate time.Time
	Window     int
	Cumulative int64
	Cases      int64
}

// RateRecord is a Delta normalized per 100k population. Per100k is unknown
// when no population matched the identifier.
type RateRecord struct {
	ID         string
	ReportDate time.Time
	Window     int
	Cases      int64
	Per100k    Rate
}

// RiskLabel is the outcome of one classification scheme for one rate.
type RiskLabel struct {
	Scheme string
	Window int
	Label  string
}

// LocalityMetrics rolls up every window and scheme for one identifier on one
// report date. Population is zero when HasPopulation is false.
type LocalityMetrics struct {
	ID            string
	Name          string
	District      string
	ReportDate    time.Time
	Cumulative    int64
	Population    int64
	HasPopulation bool
	Cases         map[int]int64
	Rates         map[int]Rate
	Labels        map[string]string
}

// Rate returns the per-100k rate for a window, unknown if not computed.
func (m LocalityMetrics) Rate(window int) Rate {
	if r, ok := m.Rates[window]; ok {
		return r
	}
	return UnknownRate()
}
