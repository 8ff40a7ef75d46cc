package domain

import (
	"bytes"
	"encoding/json"
	"math"
)

// Per100k is the population base rates are normalized to.
const Per100k = 100000

// Rate is a per-100k case rate or the distinguished unknown state. The zero
// value is unknown, so a missing rate can never read as a true zero.
type Rate struct {
	value float64
	known bool
}

// KnownRate wraps a computed rate.
func KnownRate(v float64) Rate {
	return Rate{value: v, known: true}
}

// UnknownRate returns a rate that could not be computed.
func UnknownRate() Rate {
	return Rate{}
}

// Value returns the rate and whether it is known.
func (r Rate) Value() (float64, bool) {
	return r.value, r.known
}

// Known reports whether the rate was computed.
func (r Rate) Known() bool {
	return r.known
}

// MarshalJSON encodes unknown rates as null.
func (r Rate) MarshalJSON() ([]byte, error) {
	if !r.known || math.IsNaN(r.value) || math.IsInf(r.value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(r.value)
}

// UnmarshalJSON decodes null as unknown.
func (r *Rate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*r = UnknownRate()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = KnownRate(v)
	return nil
}
