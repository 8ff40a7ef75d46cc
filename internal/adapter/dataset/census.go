package dataset

import (
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// Census Bureau population estimate columns.
const (
	censusSumLev = "SUMLEV"
	censusState  = "STATE"
	censusCounty = "COUNTY"
	censusStName = "STNAME"
	censusCtName = "CTYNAME"
	censusName   = "NAME"
)

// Summary levels in the estimates files.
const (
	sumLevState  = "040"
	sumLevCounty = "050"
)

// latin1 wraps r so Census files, which are ISO-8859-1 encoded
// ("Doña Ana County"), decode to UTF-8.
func latin1(r io.Reader) io.Reader {
	return transform.NewReader(r, charmap.ISO8859_1.NewDecoder())
}

// ParseCensusCounties reads co-est*-alldata.csv and returns county-level rows
// for stateName, keyed by the five-digit FIPS code. column selects the
// estimate year, for example POPESTIMATE2019.
func ParseCensusCounties(r io.Reader, stateName, column string) ([]domain.PopulationRecord, error) {
	t, err := readTable(latin1(r), censusSumLev, censusState, censusCounty, censusStName, censusCtName, column)
	if err != nil {
		return nil, err
	}

	var out []domain.PopulationRecord
	for i, row := range t.rows {
		if t.get(row, censusSumLev) != sumLevCounty {
			continue
		}
		if stateName != "" && t.get(row, censusStName) != stateName {
			continue
		}
		line := i + 2
		state, err := strconv.Atoi(t.get(row, censusState))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid STATE", line)
		}
		county, err := strconv.Atoi(t.get(row, censusCounty))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid COUNTY", line)
		}
		pop, err := parseCount(t.get(row, column))
		if err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", line, column, err)
		}
		out = append(out, domain.PopulationRecord{
			ID:         fmt.Sprintf("%05d", state*1000+county),
			Name:       t.get(row, censusCtName),
			Population: pop,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no county rows for state %q", stateName)
	}
	return out, nil
}

// ParseCensusStates reads nst-est*-alldata.csv and returns state-level rows
// keyed by USPS code, matching the COVID Tracking Project identifiers.
// Rows whose FIPS code has no USPS mapping are skipped.
func ParseCensusStates(r io.Reader, column string) ([]domain.PopulationRecord, error) {
	t, err := readTable(latin1(r), censusSumLev, censusState, censusName, column)
	if err != nil {
		return nil, err
	}

	var out []domain.PopulationRecord
	for i, row := range t.rows {
		if t.get(row, censusSumLev) != sumLevState {
			continue
		}
		line := i + 2
		fips, err := strconv.Atoi(t.get(row, censusState))
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid STATE", line)
		}
		code, ok := USPSCode(fips)
		if !ok {
			continue
		}
		pop, err := parseCount(t.get(row, column))
		if err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", line, column, err)
		}
		out = append(out, domain.PopulationRecord{
			ID:         code,
			Name:       t.get(row, censusName),
			Population: pop,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no state rows in population file")
	}
	return out, nil
}
