package series

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usgsExport = `# ---------------------------------------------------
# U.S. Geological Survey instantaneous values
# ---------------------------------------------------
agency_cd,site_no,datetime,tz_cd,00065,00065_cd,junk
5s,15s,20d,6s,14n,10s,
USGS,01646500,2020-01-01 00:00,EST,2.10,A,x
USGS,01646500,2020-01-01 12:00,EST,2.30,A,x
USGS,01646500,2020-01-02 06:00,EST,Ice,A,x
USGS,01646500,2020-01-04 00:00,EST,3.00,P,x
`

func TestNormalizerLoad(t *testing.T) {
	n, err := NewNormalizer(DefaultOptions())
	require.NoError(t, err)

	s, schema, err := n.Load(strings.NewReader(usgsExport))
	require.NoError(t, err)

	assert.Equal(t, "mean_1D", s.Name)
	assert.Equal(t, "mean_1D", schema.Primary)
	assert.Equal(t, "datetime", schema.Timestamp)
	assert.Equal(t, []string{"agency_cd", "site_no", "tz_cd", "00065_cd"}, schema.Dropped)
	assert.Empty(t, schema.Aux)

	// contiguous daily grid from the first day to the last
	require.Equal(t, 4, s.Len())
	for i, ts := range s.Timestamps {
		assert.True(t, ts.Equal(jan1.AddDate(0, 0, i)), "position %d", i)
	}

	assert.InDelta(t, 2.2, s.Values[0].Float64, 1e-9)
	assert.False(t, s.Values[1].Valid, "non-numeric token becomes null")
	assert.False(t, s.Values[2].Valid, "empty bin stays null")
	assert.InDelta(t, 3.0, s.Values[3].Float64, 1e-9)
}

func TestNormalizerAuxColumns(t *testing.T) {
	n, err := NewNormalizer(&Options{DropColumns: []int{0}, Resample: "1D"})
	require.NoError(t, err)

	s, schema, err := n.Load(strings.NewReader("site,datetime,flow,temp\n" +
		"a,2020-01-01 00:00,10,5\n" +
		"a,2020-01-01 06:00,20,\n" +
		"a,2020-01-02 00:00,30,7\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"temp"}, schema.Aux)
	require.Len(t, s.Aux, 1)
	assert.InDelta(t, 15.0, s.Values[0].Float64, 1e-9)
	assert.InDelta(t, 5.0, s.Aux[0].Values[0].Float64, 1e-9)
	assert.InDelta(t, 7.0, s.Aux[0].Values[1].Float64, 1e-9)
}

func TestNormalizerErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    *Options
		content string
	}{
		{"empty file", nil, ""},
		{"drop out of range", &Options{DropColumns: []int{7}}, "datetime,v\n2020-01-01,1\n"},
		{"missing timestamp column", &Options{DropColumns: []int{}}, "when,v\n2020-01-01,1\n"},
		{"no observation column", &Options{DropColumns: []int{1}}, "datetime,v\n2020-01-01,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewNormalizer(tt.opts)
			require.NoError(t, err)
			_, _, err = n.Load(strings.NewReader(tt.content))
			assert.True(t, errors.Is(err, ErrMalformedInput), "got %v", err)
		})
	}
}

func TestNewNormalizerInvalidInterval(t *testing.T) {
	_, err := NewNormalizer(&Options{Resample: "fortnight"})
	assert.Error(t, err)
}

func TestNormalizerHourly(t *testing.T) {
	n, err := NewNormalizer(&Options{DropColumns: []int{}, Resample: "6H"})
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, n.Interval().Duration)

	s, _, err := n.Load(strings.NewReader("datetime,v\n2020-01-01 01:00,1\n2020-01-01 13:00,3\n"))
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())
	assert.True(t, s.Timestamps[0].Equal(jan1))
	assert.False(t, s.Values[1].Valid)
}

func TestLocate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01646500_gh.csv"), []byte(usgsExport), 0o644))

	path, err := Locate(dir, "01646500")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "01646500_gh.csv"), path)

	_, err = Locate(dir, "09999999")
	assert.True(t, errors.Is(err, ErrNotFound))

	n, err := NewNormalizer(nil)
	require.NoError(t, err)
	s, _, err := n.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())
}
