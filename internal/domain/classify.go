package domain

import (
	"fmt"
	"math"
)

// UnknownLabel is assigned when the rate could not be computed. Missing data
// is never reported as the lowest tier.
const UnknownLabel = "Unknown"

// Bucket is one tier of a scheme: rates strictly below UpperBound, and at or
// above the previous bucket's bound, get Label. The last bucket is unbounded.
type Bucket struct {
	UpperBound float64
	Label      string
	Color      string
}

// Scheme is a named threshold table applied to the per-100k rate of one
// window. Caption and Source describe the legend and where it comes from.
type Scheme struct {
	Name    string
	Window  int
	Title   string
	Caption string
	Source  string
	Buckets []Bucket
}

// Validate checks the threshold table: at least one bucket, non-empty labels,
// strictly increasing bounds and an unbounded last bucket.
func (s Scheme) Validate() error {
	field := "scheme " + s.Name
	if s.Name == "" {
		return configErrorf("scheme", "name is required")
	}
	if s.Window <= 0 {
		return configErrorf(field, "window %d must be positive", s.Window)
	}
	if len(s.Buckets) == 0 {
		return configErrorf(field, "at least one bucket is required")
	}
	for i, b := range s.Buckets {
		if b.Label == "" {
			return configErrorf(field, "bucket %d has no label", i)
		}
		if math.IsNaN(b.UpperBound) {
			return configErrorf(field, "bucket %q bound is NaN", b.Label)
		}
		if i > 0 && b.UpperBound <= s.Buckets[i-1].UpperBound {
			return configErrorf(field, "bounds must be strictly increasing: %g after %g",
				b.UpperBound, s.Buckets[i-1].UpperBound)
		}
	}
	if last := s.Buckets[len(s.Buckets)-1]; !math.IsInf(last.UpperBound, 1) {
		return configErrorf(field, "last bucket %q must be unbounded", last.Label)
	}
	return nil
}

// Classify returns the label of the first bucket whose bound is strictly
// greater than the rate, so a rate equal to a bound lands in the higher tier.
func (s Scheme) Classify(r Rate) string {
	v, ok := r.Value()
	if !ok || math.IsNaN(v) {
		return UnknownLabel
	}
	for _, b := range s.Buckets {
		if v < b.UpperBound {
			return b.Label
		}
	}
	return s.Buckets[len(s.Buckets)-1].Label
}

// Bucket returns the index of the bucket a rate falls into, or -1 when the
// rate is unknown.
func (s Scheme) Bucket(r Rate) int {
	v, ok := r.Value()
	if !ok || math.IsNaN(v) {
		return -1
	}
	for i, b := range s.Buckets {
		if v < b.UpperBound {
			return i
		}
	}
	return len(s.Buckets) - 1
}

// ClassifyAll evaluates every scheme against the rate of its window.
func ClassifyAll(schemes []Scheme, rates map[int]Rate) []RiskLabel {
	out := make([]RiskLabel, 0, len(schemes))
	for _, s := range schemes {
		r, ok := rates[s.Window]
		if !ok {
			r = UnknownRate()
		}
		out = append(out, RiskLabel{Scheme: s.Name, Window: s.Window, Label: s.Classify(r)})
	}
	return out
}

// ValidateSchemes validates each scheme, rejects duplicate names and requires
// every scheme window to be one of the computed windows.
func ValidateSchemes(schemes []Scheme, windows []int) error {
	computed := make(map[int]bool, len(windows))
	for _, w := range windows {
		computed[w] = true
	}
	names := make(map[string]bool, len(schemes))
	for _, s := range schemes {
		if err := s.Validate(); err != nil {
			return err
		}
		if names[s.Name] {
			return configErrorf("scheme "+s.Name, "name listed twice")
		}
		names[s.Name] = true
		if !computed[s.Window] {
			return configErrorf("scheme "+s.Name, "window %d is not among computed windows %v", s.Window, windows)
		}
	}
	return nil
}

// FindScheme looks a scheme up by name.
func FindScheme(schemes []Scheme, name string) (Scheme, error) {
	for _, s := range schemes {
		if s.Name == name {
			return s, nil
		}
	}
	return Scheme{}, fmt.Errorf("unknown scheme %q", name)
}

// Scheme names shipped by default.
const (
	SchemeSchoolTransmission   = "school-transmission"
	SchemeSchoolTransmission7d = "school-transmission-7d"
	SchemeForeignTravel        = "foreign-travel"
)

// DefaultSchemes returns the CDC school-transmission tiers (14-day and the
// later 7-day revision) and the CDC foreign-travel advisory levels (28-day).
func DefaultSchemes() []Scheme {
	inf := math.Inf(1)
	return []Scheme{
		{
			Name:    SchemeSchoolTransmission,
			Window:  14,
			Title:   "COVID risk per CDC School Risk Categories",
			Caption: "New Cases/14days/100k. Red is CDC >200cases/14days/100k, \"Highest risk of transmission in schools\".",
			Source:  "https://www.cdc.gov/coronavirus/2019-ncov/community/schools-childcare/indicators.html#interpretation",
			Buckets: []Bucket{
				{UpperBound: 5, Label: "Lowest risk of transmission in schools", Color: "blue"},
				{UpperBound: 20, Label: "Lower risk of transmission in schools", Color: "green"},
				{UpperBound: 50, Label: "Moderate risk of transmission in schools", Color: "yellow"},
				{UpperBound: 200, Label: "Higher risk of transmission in schools", Color: "orange"},
				{UpperBound: inf, Label: "Highest risk of transmission in schools", Color: "red"},
			},
		},
		{
			Name:    SchemeSchoolTransmission7d,
			Window:  7,
			Title:   "COVID risk per revised CDC School Risk Categories",
			Caption: "New Cases/7days/100k. Red is CDC >100cases/7days/100k, \"High risk of transmission in schools\".",
			Source:  "https://www.cdc.gov/coronavirus/2019-ncov/community/schools-childcare/indicators.html#interpretation",
			Buckets: []Bucket{
				{UpperBound: 10, Label: "Low risk of transmission in schools", Color: "blue"},
				{UpperBound: 25, Label: "Moderate risk of transmission in schools", Color: "yellow"},
				{UpperBound: 100, Label: "Substantial risk of transmission in schools", Color: "orange"},
				{UpperBound: inf, Label: "High risk of transmission in schools", Color: "red"},
			},
		},
		{
			Name:    SchemeForeignTravel,
			Window:  28,
			Title:   "COVID risk per CDC Foreign Travel Risk Categories",
			Caption: "New Cases/28days/100k. Red is CDC Level 4: >100cases/28days/100k, \"Very High, avoid all travel\".",
			Source:  "https://www.cdc.gov/coronavirus/2019-ncov/travelers/map-and-travel-notices.html",
			Buckets: []Bucket{
				{UpperBound: 5, Label: "Level 1, Low: All travelers should wear a mask", Color: "yellow"},
				{UpperBound: 20, Label: "Level 2, Moderate: Travelers at increased risk for severe illness should avoid all nonessential travel", Color: "orange"},
				{UpperBound: 100, Label: "Level 3, High: Travelers should avoid all nonessential travel", Color: "darkorange"},
				{UpperBound: inf, Label: "Level 4, Very High: Travelers should avoid all travel", Color: "red"},
			},
		},
	}
}
