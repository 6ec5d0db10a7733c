package detector

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamevents/internal/models"
	"streamevents/internal/series"
)

var jan1 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// daily builds a daily series starting at start from values; NaN is null.
func daily(t *testing.T, start time.Time, values ...float64) *series.Series {
	t.Helper()
	ts := make([]time.Time, len(values))
	for i := range values {
		ts[i] = start.AddDate(0, 0, i)
	}
	s, err := series.New("mean_1D", ts, series.Floats(values...))
	require.NoError(t, err)
	s.Station = "01646500"
	s.Kind = models.GaugeHeight
	return s
}

func countWindow(n, minPeriods int) series.Window {
	return series.Window{Label: "n", Count: n, MinPeriods: minPeriods}
}

func bools(values ...bool) []sql.NullBool {
	out := make([]sql.NullBool, len(values))
	for i, v := range values {
		out[i] = sql.NullBool{Bool: v, Valid: true}
	}
	return out
}
