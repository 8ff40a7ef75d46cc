package domain

import (
	"fmt"
	"time"
)

// DataIntegrityError reports a case series that cannot be trusted, such as a
// cumulative count that drops by more than the configured tolerance.
type DataIntegrityError struct {
	ID           string
	ReportDate   time.Time
	PreviousDate time.Time
	Previous     int64
	Current      int64
	Reason       string
}

func (e *DataIntegrityError) Error() string {
	if e.PreviousDate.IsZero() {
		return fmt.Sprintf("data integrity: %s on %s: %s",
			e.ID, e.ReportDate.Format(DateLayout), e.Reason)
	}
	return fmt.Sprintf("data integrity: %s: %s (%d on %s, %d on %s)",
		e.ID, e.Reason,
		e.Previous, e.PreviousDate.Format(DateLayout),
		e.Current, e.ReportDate.Format(DateLayout))
}

// ConfigurationError reports invalid reference data or pipeline settings:
// non-positive populations, malformed threshold tables, bad window lists.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

func configErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
