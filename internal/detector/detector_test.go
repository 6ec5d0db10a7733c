package detector

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamevents/internal/models"
	"streamevents/internal/series"
)

func testConfig() Config {
	return Config{
		Window:            countWindow(10, 1),
		Alpha:             0.05,
		Percentiles:       []float64{90, 99},
		IQR:               true,
		GapThreshold:      5 * 24 * time.Hour,
		FrequencyInterval: series.MustParseInterval("YE"),
		MinMeasurements:   5,
	}
}

func TestNewAnomalyDetector(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"bad window", func(c *Config) { c.Window = series.Window{} }, true},
		{"alpha zero", func(c *Config) { c.Alpha = 0 }, true},
		{"alpha one", func(c *Config) { c.Alpha = 1 }, true},
		{"no frequency interval", func(c *Config) { c.FrequencyInterval = series.Interval{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			_, err := NewAnomalyDetector(cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func seasonal(n int) []float64 {
	values := make([]float64, n)
	for i := range values {
		values[i] = 3 + math.Sin(float64(i)/10)
	}
	return values
}

func TestAnalyzeNoNullFlags(t *testing.T) {
	cfg := testConfig()
	cfg.ColdStartDays = 1
	ad, err := NewAnomalyDetector(cfg, nil)
	require.NoError(t, err)

	res, err := ad.Analyze(daily(t, jan1, seasonal(400)...))
	require.NoError(t, err)

	// moe95, percentile90, percentile99, iqr
	require.Len(t, res.Frame.Flags, 4)
	for _, fl := range res.Frame.Flags {
		for i, v := range fl.Values {
			assert.True(t, v.Valid, "%s at %d", fl.Name, i)
		}
	}
}

func TestAnalyzeWithoutColdStart(t *testing.T) {
	ad, err := NewAnomalyDetector(testConfig(), nil)
	require.NoError(t, err)

	res, err := ad.Analyze(daily(t, jan1, seasonal(50)...))
	require.NoError(t, err)

	env, ok := res.Frame.Flag("moe95_bool")
	require.True(t, ok)
	assert.False(t, env.Values[0].Valid, "single observation has no margin of error")
	assert.True(t, env.Values[1].Valid)

	p90, ok := res.Frame.Flag("percentile90_bool")
	require.True(t, ok)
	assert.True(t, p90.Values[0].Valid)
}

func TestAnalyzeResult(t *testing.T) {
	values := seasonal(800)
	values[500] = 40
	for i := 200; i < 215; i++ {
		values[i] = math.NaN()
	}

	cfg := testConfig()
	cfg.Window = countWindow(30, 10)
	cfg.ColdStartDays = 30
	ad, err := NewAnomalyDetector(cfg, nil)
	require.NoError(t, err)

	s := daily(t, jan1, values...)
	res, err := ad.Analyze(s)
	require.NoError(t, err)

	assert.Equal(t, "01646500", res.SiteNo)
	assert.Equal(t, models.GaugeHeight, res.Kind)
	assert.True(t, res.Sufficient)

	require.Len(t, res.Gaps, 1)
	assert.True(t, res.Gaps[0].End.Equal(jan1.AddDate(0, 0, 215)))

	for _, name := range []string{"moe95_bool_gh", "percentile90_bool_gh", "percentile99_bool_gh", "iqr_outlier_bool_gh"} {
		v, ok := res.Frequencies[name]
		require.True(t, ok, name)
		assert.True(t, v.Valid, name)
	}

	for _, fl := range res.Frame.Flags {
		for i := 0; i < 30; i++ {
			assert.Equal(t, false, fl.Values[i].Bool, "%s suppressed at %d", fl.Name, i)
			assert.True(t, fl.Values[i].Valid)
		}
	}

	sr := res.StationResult("run-1")
	assert.Equal(t, s.Count(), sr.Observations)
	var spike []models.Exceedance
	for _, e := range sr.Exceedances {
		assert.Equal(t, "run-1", e.RunID)
		assert.Greater(t, e.Value, e.Threshold.Float64, "%s at %s", e.Flag, e.Timestamp)
		if e.Timestamp.Equal(jan1.AddDate(0, 0, 500)) {
			spike = append(spike, e)
		}
	}
	assert.Len(t, spike, 4, "every flag fires on the spike")
}

func TestAnalyzeInsufficient(t *testing.T) {
	cfg := testConfig()
	cfg.MinMeasurements = 50
	ad, err := NewAnomalyDetector(cfg, nil)
	require.NoError(t, err)

	res, err := ad.Analyze(daily(t, jan1, 1, 2, 3))
	require.NoError(t, err)
	assert.False(t, res.Sufficient)
	assert.NotNil(t, res.Frequencies)
}

func TestAnalyzeStation(t *testing.T) {
	n, err := series.NewNormalizer(nil)
	require.NoError(t, err)
	ad, err := NewAnomalyDetector(testConfig(), n)
	require.NoError(t, err)

	dir := t.TempDir()
	_, err = ad.AnalyzeStation(dir, "01646500", models.GaugeHeight)
	assert.True(t, errors.Is(err, series.ErrNotFound))

	content := "agency_cd,site_no,datetime,tz_cd,00065,00065_cd\n" +
		"USGS,01646500,2020-01-01 00:00,EST,2.1,A\n" +
		"USGS,01646500,2020-01-02 00:00,EST,2.2,A\n" +
		"USGS,01646500,2021-01-05 00:00,EST,2.5,A\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01646500_gh.csv"), []byte(content), 0o644))

	res, err := ad.AnalyzeStation(dir, "01646500", models.GaugeHeight)
	require.NoError(t, err)
	assert.Equal(t, "01646500", res.SiteNo)
	require.Len(t, res.Gaps, 1)

	noNormalizer, err := NewAnomalyDetector(testConfig(), nil)
	require.NoError(t, err)
	_, err = noNormalizer.AnalyzeStation(dir, "01646500", models.GaugeHeight)
	assert.Error(t, err)
}
