package detector

import (
	"database/sql"
	"math"
	"sort"

	"streamevents/internal/series"
)

// rolling walks the trailing windows of a series' primary column.
type rolling struct {
	values     []sql.NullFloat64
	starts     []int
	minPeriods int
	buf        []float64
}

func newRolling(s *series.Series, w series.Window) *rolling {
	return &rolling{
		values:     s.Values,
		starts:     w.Starts(s.Timestamps),
		minPeriods: w.MinPeriods,
	}
}

// window returns the non-null values in the window ending at i and whether
// there are enough of them. The returned slice is reused between calls.
func (r *rolling) window(i int) ([]float64, bool) {
	r.buf = r.buf[:0]
	for j := r.starts[i]; j <= i; j++ {
		if r.values[j].Valid {
			r.buf = append(r.buf, r.values[j].Float64)
		}
	}
	return r.buf, len(r.buf) >= r.minPeriods
}

// sortedWindow is window with its values sorted ascending.
func (r *rolling) sortedWindow(i int) ([]float64, bool) {
	w, ok := r.window(i)
	if ok {
		sort.Float64s(w)
	}
	return w, ok
}

// counts returns the number of non-null values in each window, ignoring
// min periods.
func (r *rolling) counts() []int {
	prefix := make([]int, len(r.values)+1)
	for i, v := range r.values {
		prefix[i+1] = prefix[i]
		if v.Valid {
			prefix[i+1]++
		}
	}

	out := make([]int, len(r.values))
	for i := range r.values {
		out[i] = prefix[i+1] - prefix[r.starts[i]]
	}
	return out
}

// quantile interpolates linearly between the order statistics of sorted,
// so q=0 is the minimum and q=1 the maximum.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := q * float64(n-1)
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1]
	}
	if i < 0 {
		return sorted[0]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// exceeds compares an observation against a threshold; unknown if either is null.
func exceeds(value, threshold sql.NullFloat64) sql.NullBool {
	if !value.Valid || !threshold.Valid {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: value.Float64 > threshold.Float64, Valid: true}
}
