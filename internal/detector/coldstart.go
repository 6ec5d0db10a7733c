package detector

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// SuppressColdStart returns a copy of flags with every row whose age is under
// minDays whole days forced to an explicit false, whether or not min periods
// was met there.
func SuppressColdStart(flags []sql.NullBool, ages []time.Duration, minDays int) ([]sql.NullBool, error) {
	if len(flags) != len(ages) {
		return nil, fmt.Errorf("flags and ages must have the same length (%d != %d)", len(flags), len(ages))
	}

	out := make([]sql.NullBool, len(flags))
	copy(out, flags)
	for i, age := range ages {
		if ageDays(age) < minDays {
			out[i] = sql.NullBool{Bool: false, Valid: true}
		}
	}
	return out, nil
}

// AgesSince measures each timestamp from start.
func AgesSince(timestamps []time.Time, start time.Time) []time.Duration {
	ages := make([]time.Duration, len(timestamps))
	for i, t := range timestamps {
		ages[i] = t.Sub(start)
	}
	return ages
}

// SuppressColdStart applies the warm-up rule to the named flags of the frame.
// ages maps a flag name to the per-row age used for it.
func (f *Frame) SuppressColdStart(ages map[string][]time.Duration, minDays int) error {
	for name, a := range ages {
		flag, ok := f.Flag(name)
		if !ok {
			return fmt.Errorf("unknown flag %q", name)
		}
		suppressed, err := SuppressColdStart(flag.Values, a, minDays)
		if err != nil {
			return fmt.Errorf("flag %s: %w", name, err)
		}
		flag.Values = suppressed
	}
	return nil
}

// ageDays truncates toward negative infinity, so a row before the start is
// always younger than any threshold.
func ageDays(age time.Duration) int {
	return int(math.Floor(age.Hours() / 24))
}
