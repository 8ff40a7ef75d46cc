// Package domain models COVID-19 case series and the CDC-style risk tiers
// derived from them.
//
// # Data Sources
//
// Locality data comes from the Virginia Department of Health public use
// dataset (https://data.virginia.gov/Government/VDH-COVID-19-PublicUseDataset-Cases/bre9-aqqr),
// one row per locality and report date with a cumulative "Total Cases" count.
// State data comes from the COVID Tracking Project daily history
// (https://api.covidtracking.com/v1/states/daily.json), where "positive" is the
// cumulative count. Population estimates come from the Census Bureau 2019
// vintage county and state files.
//
// # Identifiers
//
//	Localities: five-digit FIPS code, e.g. "51199" for York County, VA.
//	States:     two-letter USPS code, e.g. "VA".
//
// The identifier is the join key between cases, population and boundaries.
//
// # Pipeline
//
//	CaseRecord ──NormalizeSeries──▶ Delta ──ComputeRates──▶ RateRecord
//	RateRecord ──BuildMetrics/ClassifyAll──▶ LocalityMetrics
//	LocalityMetrics + boundaries ──JoinGeometry──▶ GeoJSON feature collection
//
// Every stage returns new values and leaves its input untouched.
//
// # Windows
//
// A window is a trailing span of N days. The delta for a date is the
// cumulative count minus the count at the last observation on or before
// date-N. A series' first N days have no such observation and use a zero
// baseline, so their delta is the cumulative count itself.
//
// # Risk Tiers
//
// A Scheme is an ordered list of exclusive upper bounds. A rate equal to a
// bound belongs to the higher tier: 200 cases/14 days/100k is "Highest risk
// of transmission in schools", not "Higher". The last tier is unbounded.
//
//	school-transmission     14 days  5 / 20 / 50 / 200
//	school-transmission-7d   7 days  10 / 25 / 100
//	foreign-travel          28 days  5 / 20 / 100
//
// # Missing Data
//
// A locality without a population estimate has an unknown rate, labelled
// "Unknown". A boundary without any case data is kept with null attributes.
// Neither is ever coerced to zero, which would render as the lowest tier.
package domain
