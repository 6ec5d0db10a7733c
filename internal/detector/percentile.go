package detector

import (
	"database/sql"
	"fmt"
	"sort"
	"strconv"

	"streamevents/internal/series"
)

// iqrFence is the classical Tukey multiplier
const iqrFence = 1.5

// Threshold is a rolling percentile with its exceedance flag
type Threshold struct {
	Percentile float64
	Values     []sql.NullFloat64
	Exceeds    []sql.NullBool
}

// Label is the threshold column name, e.g. percentile90
func (t *Threshold) Label() string {
	return "percentile" + strconv.FormatFloat(t.Percentile, 'f', -1, 64)
}

// FlagLabel is the exceedance flag column name
func (t *Threshold) FlagLabel() string {
	return t.Label() + "_bool"
}

// PercentileThresholds computes one rolling quantile per requested percentile
// in a single pass over the windows. Duplicates are collapsed and the result
// is ordered by percentile.
func PercentileThresholds(s *series.Series, w series.Window, percentiles []float64) ([]*Threshold, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	seen := make(map[float64]bool)
	var ps []float64
	for _, p := range percentiles {
		if p < 0 || p > 100 {
			return nil, fmt.Errorf("percentile must be in [0, 100], got %v", p)
		}
		if !seen[p] {
			seen[p] = true
			ps = append(ps, p)
		}
	}
	sort.Float64s(ps)

	n := s.Len()
	out := make([]*Threshold, len(ps))
	for k, p := range ps {
		out[k] = &Threshold{
			Percentile: p,
			Values:     make([]sql.NullFloat64, n),
			Exceeds:    make([]sql.NullBool, n),
		}
	}
	if len(ps) == 0 {
		return out, nil
	}

	r := newRolling(s, w)
	for i := 0; i < n; i++ {
		sorted, ok := r.sortedWindow(i)
		if !ok {
			continue
		}
		for _, th := range out {
			th.Values[i] = sql.NullFloat64{Float64: quantile(sorted, th.Percentile/100), Valid: true}
			th.Exceeds[i] = exceeds(s.Values[i], th.Values[i])
		}
	}
	return out, nil
}

// IQRThreshold is the rolling upper Tukey fence
type IQRThreshold struct {
	Q1        []sql.NullFloat64
	Q3        []sql.NullFloat64
	Threshold []sql.NullFloat64
	Exceeds   []sql.NullBool
}

const iqrLabel = "iqr_outlier"

// IQROutlier computes Q3 + 1.5*(Q3-Q1) over the trailing window. Only the
// upper tail is flagged.
func IQROutlier(s *series.Series, w series.Window) (*IQRThreshold, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	n := s.Len()
	out := &IQRThreshold{
		Q1:        make([]sql.NullFloat64, n),
		Q3:        make([]sql.NullFloat64, n),
		Threshold: make([]sql.NullFloat64, n),
		Exceeds:   make([]sql.NullBool, n),
	}

	r := newRolling(s, w)
	for i := 0; i < n; i++ {
		sorted, ok := r.sortedWindow(i)
		if !ok {
			continue
		}
		q1 := quantile(sorted, 0.25)
		q3 := quantile(sorted, 0.75)
		out.Q1[i] = sql.NullFloat64{Float64: q1, Valid: true}
		out.Q3[i] = sql.NullFloat64{Float64: q3, Valid: true}
		out.Threshold[i] = sql.NullFloat64{Float64: q3 + iqrFence*(q3-q1), Valid: true}
		out.Exceeds[i] = exceeds(s.Values[i], out.Threshold[i])
	}
	return out, nil
}
