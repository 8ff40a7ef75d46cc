package domain

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

// Report is the output of one pipeline run, handed to every sink.
// History holds all dated metrics; Features is the geometry-joined snapshot.
type Report struct {
	RunID       string
	GeneratedAt time.Time
	Windows     []int
	Schemes     []Scheme
	History     []LocalityMetrics
	Features    *geojson.FeatureCollection
	Stats       JoinStats
}

// LatestReportDate returns the newest report date in the history, or the
// zero time when there is none.
func (r Report) LatestReportDate() time.Time {
	var latest time.Time
	for _, m := range r.History {
		if m.ReportDate.After(latest) {
			latest = m.ReportDate
		}
	}
	return latest
}
