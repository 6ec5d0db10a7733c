package detector

import (
	"database/sql"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"streamevents/internal/series"
)

// Envelope is a t-based confidence envelope around a moving average
type Envelope struct {
	AverageLabel  string // ma_<window>
	MarginLabel   string // moe<confidence>
	MovingAverage []sql.NullFloat64
	MarginOfError []sql.NullFloat64
	UpperBound    []sql.NullFloat64
	Exceeds       []sql.NullBool
	Count         []int
}

// FlagLabel is the name of the exceedance flag column
func (e *Envelope) FlagLabel() string {
	return e.MarginLabel + "_bool"
}

// ConfidenceEnvelope computes the rolling mean, sample standard deviation and
// the two-tailed Student-t margin of error at significance alpha.
func ConfidenceEnvelope(s *series.Series, w series.Window, alpha float64) (*Envelope, error) {
	if alpha <= 0 || alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1), got %v", alpha)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	n := s.Len()
	env := &Envelope{
		AverageLabel:  "ma_" + w.Label,
		MarginLabel:   fmt.Sprintf("moe%d", int((1-alpha)*100)),
		MovingAverage: make([]sql.NullFloat64, n),
		MarginOfError: make([]sql.NullFloat64, n),
		UpperBound:    make([]sql.NullFloat64, n),
		Exceeds:       make([]sql.NullBool, n),
		Count:         make([]int, n),
	}

	critical := newTCritical(alpha)
	r := newRolling(s, w)
	for i := 0; i < n; i++ {
		window, ok := r.window(i)
		if !ok {
			continue
		}

		count := len(window)
		env.Count[i] = count

		// a plain sum can leave the mean of a flat window one ulp below it
		if constant(window) {
			mean := window[0]
			env.MovingAverage[i] = sql.NullFloat64{Float64: mean, Valid: true}
			// a single observation has no spread and no degrees of freedom
			if count < 2 {
				continue
			}
			env.MarginOfError[i] = sql.NullFloat64{Float64: 0, Valid: true}
			env.UpperBound[i] = sql.NullFloat64{Float64: mean, Valid: true}
			env.Exceeds[i] = exceeds(s.Values[i], env.UpperBound[i])
			continue
		}

		mean := stat.Mean(window, nil)
		env.MovingAverage[i] = sql.NullFloat64{Float64: mean, Valid: true}

		std := stat.StdDev(window, nil)
		if math.IsNaN(std) {
			continue
		}
		t := critical.at(count - 1)
		if math.IsNaN(t) {
			continue
		}

		moe := t * std / math.Sqrt(float64(count))
		env.MarginOfError[i] = sql.NullFloat64{Float64: moe, Valid: true}
		env.UpperBound[i] = sql.NullFloat64{Float64: mean + moe, Valid: true}
		env.Exceeds[i] = exceeds(s.Values[i], env.UpperBound[i])
	}

	return env, nil
}

func constant(window []float64) bool {
	return floats.Min(window) == floats.Max(window)
}

// tCritical caches two-tailed critical values by degrees of freedom
type tCritical struct {
	p     float64
	cache map[int]float64
}

func newTCritical(alpha float64) *tCritical {
	return &tCritical{p: 1 - alpha/2, cache: make(map[int]float64)}
}

func (c *tCritical) at(df int) float64 {
	if df < 1 {
		return math.NaN()
	}
	if v, ok := c.cache[df]; ok {
		return v
	}
	v := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(df)}.Quantile(c.p)
	c.cache[df] = v
	return v
}
