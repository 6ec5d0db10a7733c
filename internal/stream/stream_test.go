package stream

import (
	"database/sql"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamevents/internal/models"
)

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	result := models.StationResult{
		RunID:  "run-1",
		SiteNo: "01646500",
		Kind:   models.Streamflow,
		Frequencies: models.FrequencyRow{
			"moe95_bool_sf":        {Float64: 4.5, Valid: true},
			"percentile99_bool_sf": {},
		},
		Exceedances: []models.Exceedance{{
			SiteNo:    "01646500",
			Kind:      models.Streamflow,
			Timestamp: ts,
			Flag:      "moe95_bool",
			Value:     1200,
			Threshold: sql.NullFloat64{Float64: 950, Valid: true},
		}},
		Observations: 365,
	}

	values, err := Encode(result)
	require.NoError(t, err)
	require.Contains(t, values, "data")

	got, err := Decode(redis.XMessage{ID: "1-0", Values: values})
	require.NoError(t, err)

	assert.Equal(t, "01646500", got.SiteNo)
	assert.Equal(t, models.Streamflow, got.Kind)
	assert.Equal(t, 4.5, got.Frequencies["moe95_bool_sf"].Float64)
	assert.False(t, got.Frequencies["percentile99_bool_sf"].Valid)
	require.Len(t, got.Exceedances, 1)
	assert.True(t, got.Exceedances[0].Timestamp.Equal(ts))
	assert.Equal(t, 950.0, got.Exceedances[0].Threshold.Float64)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]interface{}
	}{
		{"missing field", map[string]interface{}{"other": "x"}},
		{"wrong type", map[string]interface{}{"data": 42}},
		{"bad json", map[string]interface{}{"data": "{not json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(redis.XMessage{ID: "1-0", Values: tt.values})
			assert.Error(t, err)
		})
	}
}

func TestStaleIDs(t *testing.T) {
	pending := []redis.XPendingExt{
		{ID: "1-0", Consumer: "consumer-1", Idle: 2 * time.Minute, RetryCount: 1},
		{ID: "2-0", Consumer: "consumer-1", Idle: 10 * time.Second, RetryCount: 1},
		{ID: "3-0", Consumer: "consumer-2", Idle: time.Minute, RetryCount: 3},
	}

	assert.Equal(t, []string{"1-0", "3-0"}, staleIDs(pending, time.Minute))
	assert.Empty(t, staleIDs(pending, time.Hour))
	assert.Empty(t, staleIDs(nil, time.Minute))
}
