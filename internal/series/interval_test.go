package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in       string
		duration time.Duration
		calendar bool
		wantErr  bool
	}{
		{in: "1D", duration: 24 * time.Hour},
		{in: "D", duration: 24 * time.Hour},
		{in: "5D", duration: 5 * 24 * time.Hour},
		{in: "6H", duration: 6 * time.Hour},
		{in: "15min", duration: 15 * time.Minute},
		{in: "2W", duration: 14 * 24 * time.Hour},
		{in: "YE", calendar: true},
		{in: "ME", calendar: true},
		{in: "3M", calendar: true},
		{in: "", wantErr: true},
		{in: "0D", wantErr: true},
		{in: "5X", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			iv, err := ParseInterval(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.calendar, iv.IsCalendar())
			assert.Equal(t, tt.duration, iv.Duration)
			assert.Equal(t, tt.in, iv.String())
		})
	}
}

func TestIntervalFloor(t *testing.T) {
	origin := time.Date(2020, 3, 15, 7, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		interval string
		at       time.Time
		want     time.Time
	}{
		{"daily same day", "1D", origin, time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"daily later", "1D", time.Date(2020, 3, 17, 23, 59, 0, 0, time.UTC), time.Date(2020, 3, 17, 0, 0, 0, 0, time.UTC)},
		{"multi day bins from origin midnight", "5D", time.Date(2020, 3, 21, 1, 0, 0, 0, time.UTC), time.Date(2020, 3, 20, 0, 0, 0, 0, time.UTC)},
		{"before origin", "1D", time.Date(2020, 3, 14, 12, 0, 0, 0, time.UTC), time.Date(2020, 3, 14, 0, 0, 0, 0, time.UTC)},
		{"yearly", "YE", time.Date(2021, 8, 1, 0, 0, 0, 0, time.UTC), time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"monthly", "ME", time.Date(2020, 5, 31, 0, 0, 0, 0, time.UTC), time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"quarterly from origin month", "3M", time.Date(2020, 7, 4, 0, 0, 0, 0, time.UTC), time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv := MustParseInterval(tt.interval)
			assert.Equal(t, tt.want, iv.Floor(tt.at, origin))
		})
	}
}

func TestIntervalNext(t *testing.T) {
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), MustParseInterval("YE").Next(at))
	assert.Equal(t, time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), MustParseInterval("ME").Next(at))
	assert.Equal(t, at.Add(6*time.Hour), MustParseInterval("6H").Next(at))
}

func TestMustParseIntervalPanics(t *testing.T) {
	assert.Panics(t, func() { MustParseInterval("bogus") })
}
