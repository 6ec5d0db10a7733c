package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DataKind is the measured quantity of a gauge series
type DataKind string

const (
	GaugeHeight DataKind = "gauge height"
	Streamflow  DataKind = "streamflow"
)

// Suffix returns the column tag used in the frequency summary ("gh" or "sf")
func (k DataKind) Suffix() string {
	switch k {
	case GaugeHeight:
		return "gh"
	case Streamflow:
		return "sf"
	}
	return ""
}

// ParseDataKind accepts the long names and the short suffixes
func ParseDataKind(s string) (DataKind, error) {
	switch s {
	case "gauge height", "gage height", "gauge_height", "gh":
		return GaugeHeight, nil
	case "streamflow", "sf":
		return Streamflow, nil
	}
	return "", fmt.Errorf("unknown data kind %q", s)
}

// Station represents a USGS monitoring site
type Station struct {
	SiteNo    string  `json:"site_no"`
	Name      string  `json:"station_nm"`
	Latitude  float64 `json:"dec_lat_va"`
	Longitude float64 `json:"dec_long_va"`
}

// GapInterval marks a silence in the observation record
type GapInterval struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`         // first observation after the gap
	StartIndex int       `json:"start_index"` // position of the last observation before the gap
}

// Duration returns the length of the silence
func (g GapInterval) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

// Exceedance represents a single fired flag at one timestamp
type Exceedance struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	SiteNo    string          `json:"site_no"`
	Kind      DataKind        `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Flag      string          `json:"flag"`
	Value     float64         `json:"value"`
	Threshold sql.NullFloat64 `json:"-"`
}

type exceedanceJSON struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	SiteNo    string    `json:"site_no"`
	Kind      DataKind  `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Flag      string    `json:"flag"`
	Value     float64   `json:"value"`
	Threshold *float64  `json:"threshold"`
}

func (e Exceedance) MarshalJSON() ([]byte, error) {
	return json.Marshal(exceedanceJSON{
		ID:        e.ID,
		RunID:     e.RunID,
		SiteNo:    e.SiteNo,
		Kind:      e.Kind,
		Timestamp: e.Timestamp,
		Flag:      e.Flag,
		Value:     e.Value,
		Threshold: nullable(e.Threshold),
	})
}

func (e *Exceedance) UnmarshalJSON(data []byte) error {
	var v exceedanceJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*e = Exceedance{
		ID:        v.ID,
		RunID:     v.RunID,
		SiteNo:    v.SiteNo,
		Kind:      v.Kind,
		Timestamp: v.Timestamp,
		Flag:      v.Flag,
		Value:     v.Value,
	}
	if v.Threshold != nil {
		e.Threshold = sql.NullFloat64{Float64: *v.Threshold, Valid: true}
	}
	return nil
}

// FrequencyRow maps a suffix-tagged flag column to the mean count per complete period.
// A null value means no complete period was available.
type FrequencyRow map[string]sql.NullFloat64

// MarshalJSON writes nulls as JSON null
func (r FrequencyRow) MarshalJSON() ([]byte, error) {
	out := make(map[string]*float64, len(r))
	for k, v := range r {
		out[k] = nullable(v)
	}
	return json.Marshal(out)
}

func (r *FrequencyRow) UnmarshalJSON(data []byte) error {
	var in map[string]*float64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	row := make(FrequencyRow, len(in))
	for k, v := range in {
		if v == nil {
			row[k] = sql.NullFloat64{}
		} else {
			row[k] = sql.NullFloat64{Float64: *v, Valid: true}
		}
	}
	*r = row
	return nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// StationResult is what one station contributes to an analysis run
type StationResult struct {
	RunID        string        `json:"run_id"`
	SiteNo       string        `json:"site_no"`
	Kind         DataKind      `json:"kind"`
	Frequencies  FrequencyRow  `json:"frequencies"`
	Gaps         []GapInterval `json:"gaps"`
	Exceedances  []Exceedance  `json:"exceedances"`
	SufficientN  bool          `json:"sufficient_measurements"`
	Observations int           `json:"observations"`
}

// AnalysisRun records one batch invocation
type AnalysisRun struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Stations    int       `json:"stations"`
	Errors      int       `json:"errors"`
}
