package series

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadStations(t *testing.T) {
	listing := `# USGS site listing
agency_cd,site_no,station_nm,dec_lat_va,dec_long_va
USGS,01646500,"POTOMAC RIVER NEAR WASH, DC LITTLE FALLS PUMP STA",38.94977778,-77.12763889
USGS,01594440,PATUXENT RIVER NEAR BOWIE,,-76.69
USGS,03010500,ALLEGHENY RIVER AT ELDRED,41.96,-78.38
`
	stations, skipped, err := ReadStations(strings.NewReader(listing))
	require.NoError(t, err)

	assert.Equal(t, 1, skipped)
	require.Len(t, stations, 2)
	assert.Equal(t, "01646500", stations[0].SiteNo)
	assert.Equal(t, "POTOMAC RIVER NEAR WASH, DC LITTLE FALLS PUMP STA", stations[0].Name)
	assert.InDelta(t, -77.1276, stations[0].Longitude, 1e-4)
	assert.Equal(t, "03010500", stations[1].SiteNo)
}

func TestReadStationsMissingColumn(t *testing.T) {
	_, _, err := ReadStations(strings.NewReader("site_no,station_nm\n01646500,POTOMAC\n"))
	assert.True(t, errors.Is(err, ErrMalformedInput))
}
