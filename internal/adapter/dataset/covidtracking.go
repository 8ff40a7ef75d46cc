package dataset

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// trackingRow is one element of the COVID Tracking Project
// /v1/states/daily.json array.
type trackingRow struct {
	Date     int    `json:"date"`
	State    string `json:"state"`
	Positive *int64 `json:"positive"`
}

// ParseCovidTracking reads the COVID Tracking Project state history. Rows
// without a positive count are skipped; they predate reporting in that state.
// Names are left empty so the population table supplies them.
func ParseCovidTracking(data []byte) ([]domain.CaseRecord, error) {
	var rows []trackingRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode covidtracking json: %w", err)
	}

	out := make([]domain.CaseRecord, 0, len(rows))
	for i, row := range rows {
		if row.Positive == nil {
			continue
		}
		state := strings.ToUpper(strings.TrimSpace(row.State))
		if state == "" {
			return nil, fmt.Errorf("element %d: empty state", i)
		}
		date, err := time.Parse("20060102", strconv.Itoa(row.Date))
		if err != nil {
			return nil, fmt.Errorf("element %d: invalid date %d", i, row.Date)
		}
		out = append(out, domain.CaseRecord{
			ID:         state,
			ReportDate: domain.Day(date),
			Cumulative: *row.Positive,
		})
	}
	return out, nil
}

// LatestCovidTrackingDate returns the newest date in a state history.
func LatestCovidTrackingDate(data []byte) (time.Time, error) {
	records, err := ParseCovidTracking(data)
	if err != nil {
		return time.Time{}, err
	}
	return LatestReportDate(records)
}
