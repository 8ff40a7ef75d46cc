package dataset

import (
	"errors"
	"time"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// LatestReportDate returns the newest report date among records.
func LatestReportDate(records []domain.CaseRecord) (time.Time, error) {
	if len(records) == 0 {
		return time.Time{}, errors.New("no case records")
	}
	var latest time.Time
	for _, r := range records {
		if r.ReportDate.After(latest) {
			latest = r.ReportDate
		}
	}
	return latest, nil
}
