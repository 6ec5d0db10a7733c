package series

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cast"

	"streamevents/internal/log"
	"streamevents/internal/models"
)

var stationColumns = []string{"site_no", "station_nm", "dec_lat_va", "dec_long_va"}

// ReadStationsFile reads a USGS site listing from path
func ReadStationsFile(path string) ([]models.Station, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ReadStations(f)
}

// ReadStations parses a USGS site listing with site_no, station_nm,
// dec_lat_va and dec_long_va columns in any order. Site numbers keep their
// leading zeros. Rows with unparseable coordinates are skipped and counted.
func ReadStations(r io.Reader) ([]models.Station, int, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read header: %w", err)
	}

	pos := make(map[string]int, len(stationColumns))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, c := range stationColumns {
		if _, ok := pos[c]; !ok {
			return nil, 0, fmt.Errorf("missing column %q: %w", c, ErrMalformedInput)
		}
	}

	var stations []models.Station
	skipped := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to read record: %w", err)
		}

		field := func(name string) string {
			if i := pos[name]; i < len(record) {
				return strings.TrimSpace(record[i])
			}
			return ""
		}

		site := field("site_no")
		lat, latErr := coordinate(field("dec_lat_va"))
		lon, lonErr := coordinate(field("dec_long_va"))
		if site == "" || latErr != nil || lonErr != nil {
			log.Debugf("skipping station record %v", record)
			skipped++
			continue
		}

		stations = append(stations, models.Station{
			SiteNo:    site,
			Name:      field("station_nm"),
			Latitude:  lat,
			Longitude: lon,
		})
	}

	return stations, skipped, nil
}

func coordinate(token string) (float64, error) {
	if token == "" {
		return 0, errors.New("empty coordinate")
	}
	return cast.ToFloat64E(token)
}
