package dataset

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/covid-risk-etl/internal/domain"
)

// VDH locality export columns.
const (
	vdhReportDate = "Report Date"
	vdhFIPS       = "FIPS"
	vdhLocality   = "Locality"
	vdhDistrict   = "VDH Health District"
	vdhTotalCases = "Total Cases"
)

// The portal has switched date formats more than once.
var vdhDateLayouts = []string{"01/02/2006", "1/2/2006", domain.DateLayout, "2006-01-02T15:04:05"}

// ParseVDHCases reads the Virginia Department of Health cumulative case
// export, one row per locality per report date. FIPS codes are zero-padded to
// five digits so they match census keys.
func ParseVDHCases(r io.Reader) ([]domain.CaseRecord, error) {
	t, err := readTable(r, vdhReportDate, vdhFIPS, vdhTotalCases)
	if err != nil {
		return nil, err
	}

	out := make([]domain.CaseRecord, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		date, err := parseVDHDate(t.get(row, vdhReportDate))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		id, err := padFIPS(t.get(row, vdhFIPS), 5)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		total, err := parseCount(t.get(row, vdhTotalCases))
		if err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", line, vdhTotalCases, err)
		}
		out = append(out, domain.CaseRecord{
			ID:         id,
			Name:       t.get(row, vdhLocality),
			District:   t.get(row, vdhDistrict),
			ReportDate: date,
			Cumulative: total,
		})
	}
	return out, nil
}

// LatestVDHDate returns the newest report date in a VDH export.
func LatestVDHDate(data []byte) (time.Time, error) {
	records, err := ParseVDHCases(bytes.NewReader(data))
	if err != nil {
		return time.Time{}, err
	}
	return LatestReportDate(records)
}

func parseVDHDate(s string) (time.Time, error) {
	for _, layout := range vdhDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized report date %q", s)
}

// padFIPS normalizes a numeric FIPS code to width digits.
func padFIPS(s string, width int) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty FIPS")
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return "", fmt.Errorf("invalid FIPS %q", s)
	}
	return fmt.Sprintf("%0*d", width, n), nil
}

// parseCount accepts thousands separators, which appear in some exports.
func parseCount(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, fmt.Errorf("empty count")
	}
	return strconv.ParseInt(s, 10, 64)
}
