// Package series turns raw gauge exports into uniform-interval time series and
// finds the gaps in them.
package series

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"streamevents/internal/models"
)

var (
	// ErrNotFound is returned when no source file matches a station
	ErrNotFound = errors.New("no source file found")
	// ErrMalformedInput is returned when a source file lacks required columns
	ErrMalformedInput = errors.New("malformed input")
)

// Column is a named nullable numeric column
type Column struct {
	Name   string
	Values []sql.NullFloat64
}

// Series is one station's observations on a strictly increasing time index.
// Values holds the primary column, Aux any remaining columns.
type Series struct {
	Station    string
	Kind       models.DataKind
	Name       string
	Timestamps []time.Time
	Values     []sql.NullFloat64
	Aux        []Column
}

// New creates a series, checking lengths and ordering.
func New(name string, timestamps []time.Time, values []sql.NullFloat64) (*Series, error) {
	if len(timestamps) != len(values) {
		return nil, fmt.Errorf("timestamps and values must have the same length (%d != %d)", len(timestamps), len(values))
	}
	for i := 1; i < len(timestamps); i++ {
		if !timestamps[i].After(timestamps[i-1]) {
			return nil, fmt.Errorf("timestamps must be strictly increasing at position %d", i)
		}
	}
	return &Series{Name: name, Timestamps: timestamps, Values: values}, nil
}

// Float wraps a value as a valid nullable float. NaN maps to null.
func Float(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// Floats wraps a slice of values; NaN entries become null.
func Floats(values ...float64) []sql.NullFloat64 {
	out := make([]sql.NullFloat64, len(values))
	for i, v := range values {
		out[i] = Float(v)
	}
	return out
}

// Len returns the number of positions, null or not.
func (s *Series) Len() int {
	return len(s.Timestamps)
}

// Count returns the number of non-null primary values.
func (s *Series) Count() int {
	n := 0
	for _, v := range s.Values {
		if v.Valid {
			n++
		}
	}
	return n
}

// Start returns the timestamp of the first non-null primary value.
func (s *Series) Start() (time.Time, bool) {
	for i, v := range s.Values {
		if v.Valid {
			return s.Timestamps[i], true
		}
	}
	return time.Time{}, false
}

// Complete reports whether every column at position i is non-null.
func (s *Series) Complete(i int) bool {
	if !s.Values[i].Valid {
		return false
	}
	for _, c := range s.Aux {
		if !c.Values[i].Valid {
			return false
		}
	}
	return true
}
