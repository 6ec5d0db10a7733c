package detector

import (
	"database/sql"
	"fmt"
	"time"

	"streamevents/internal/models"
	"streamevents/internal/series"
)

// Frequencies counts how often each flag fired per period and returns the mean
// count over all complete periods, keyed by <flag>_<gh|sf>. The first period is
// dropped since the record may start partway through it. Null flags do not
// count as fired.
func Frequencies(f *Frame, interval series.Interval, kind models.DataKind) (models.FrequencyRow, error) {
	suffix := kind.Suffix()
	if suffix == "" {
		return nil, fmt.Errorf("unknown data kind %q", kind)
	}

	row := make(models.FrequencyRow, len(f.Flags))
	ts := f.Series.Timestamps
	if len(ts) == 0 {
		for _, flag := range f.Flags {
			row[flag.Name+"_"+suffix] = sql.NullFloat64{}
		}
		return row, nil
	}

	periods := periodIndex(ts, interval)
	nPeriods := periods[len(periods)-1] + 1

	for _, flag := range f.Flags {
		counts := make([]int, nPeriods)
		for i, v := range flag.Values {
			if v.Valid && v.Bool {
				counts[periods[i]]++
			}
		}

		name := flag.Name + "_" + suffix
		if nPeriods < 2 {
			row[name] = sql.NullFloat64{}
			continue
		}
		total := 0
		for _, c := range counts[1:] {
			total += c
		}
		row[name] = sql.NullFloat64{Float64: float64(total) / float64(nPeriods-1), Valid: true}
	}
	return row, nil
}

// periodIndex assigns every timestamp to a contiguous period number; empty
// periods in between still get a number and so count as zero.
func periodIndex(ts []time.Time, interval series.Interval) []int {
	origin := ts[0]
	out := make([]int, len(ts))

	bin := interval.Floor(origin, origin)
	idx := 0
	for i, t := range ts {
		target := interval.Floor(t, origin)
		for bin.Before(target) {
			bin = interval.Next(bin)
			idx++
		}
		out[i] = idx
	}
	return out
}

// MinimumMeasurements reports whether the rolling observation count ever
// reaches threshold. It is advisory: callers decide whether to exclude the
// station.
func MinimumMeasurements(s *series.Series, w series.Window, threshold int) bool {
	if s.Len() == 0 {
		return threshold <= 0
	}
	r := newRolling(s, w)
	best := 0
	for _, c := range r.counts() {
		if c > best {
			best = c
		}
	}
	return best >= threshold
}
