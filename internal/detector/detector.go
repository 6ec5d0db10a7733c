// Package detector flags elevated stream-gauge observations with rolling
// confidence envelopes, percentile thresholds and IQR fences, and summarizes
// how often each flag fires.
package detector

import (
	"fmt"
	"sync"
	"time"

	"streamevents/internal/log"
	"streamevents/internal/metrics"
	"streamevents/internal/models"
	"streamevents/internal/series"
)

// Config holds the caller-supplied analysis parameters
type Config struct {
	Window            series.Window
	Alpha             float64
	Percentiles       []float64
	IQR               bool // the IQR fence is optional
	GapThreshold      time.Duration
	ColdStartDays     int
	FrequencyInterval series.Interval
	MinMeasurements   int
}

// Result is everything computed for one station and data kind
type Result struct {
	SiteNo      string
	Kind        models.DataKind
	Frame       *Frame
	Gaps        []models.GapInterval
	Frequencies models.FrequencyRow
	Sufficient  bool // advisory minimum-measurement gate
}

// AnomalyDetector runs the rolling estimators over station series
type AnomalyDetector struct {
	cfg        Config
	normalizer *series.Normalizer
}

// NewAnomalyDetector validates cfg. normalizer may be nil when only
// Analyze is used.
func NewAnomalyDetector(cfg Config, normalizer *series.Normalizer) (*AnomalyDetector, error) {
	if err := cfg.Window.Validate(); err != nil {
		return nil, err
	}
	if cfg.Alpha <= 0 || cfg.Alpha >= 1 {
		return nil, fmt.Errorf("alpha must be in (0, 1), got %v", cfg.Alpha)
	}
	if cfg.FrequencyInterval.Label == "" {
		return nil, fmt.Errorf("frequency interval is required")
	}
	return &AnomalyDetector{cfg: cfg, normalizer: normalizer}, nil
}

// AnalyzeStation locates the export for siteNo under dir, normalizes it and
// analyzes it.
func (ad *AnomalyDetector) AnalyzeStation(dir, siteNo string, kind models.DataKind) (*Result, error) {
	if ad.normalizer == nil {
		return nil, fmt.Errorf("no normalizer configured")
	}

	path, err := series.Locate(dir, siteNo)
	if err != nil {
		return nil, err
	}
	s, _, err := ad.normalizer.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	s.Station = siteNo
	s.Kind = kind

	return ad.Analyze(s)
}

// Analyze runs gap detection, the three estimators, cold-start suppression
// and frequency aggregation over one normalized series.
func (ad *AnomalyDetector) Analyze(s *series.Series) (*Result, error) {
	result := &Result{
		SiteNo: s.Station,
		Kind:   s.Kind,
		Gaps:   series.DetectGaps(s, ad.cfg.GapThreshold),
	}

	var (
		wg         sync.WaitGroup
		envelope   *Envelope
		thresholds []*Threshold
		iqr        *IQRThreshold
		envErr     error
		pctErr     error
		iqrErr     error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer metrics.ObserveEstimator("envelope", time.Now())
		envelope, envErr = ConfidenceEnvelope(s, ad.cfg.Window, ad.cfg.Alpha)
	}()
	go func() {
		defer wg.Done()
		defer metrics.ObserveEstimator("percentile", time.Now())
		thresholds, pctErr = PercentileThresholds(s, ad.cfg.Window, ad.cfg.Percentiles)
	}()
	if ad.cfg.IQR {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer metrics.ObserveEstimator("iqr", time.Now())
			iqr, iqrErr = IQROutlier(s, ad.cfg.Window)
		}()
	}
	wg.Wait()

	for _, err := range []error{envErr, pctErr, iqrErr} {
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", s.Station, err)
		}
	}

	frame := NewFrame(s)
	frame.AddEnvelope(envelope)
	for _, t := range thresholds {
		frame.AddThreshold(t)
	}
	if iqr != nil {
		frame.AddIQR(iqr)
	}

	if start, ok := s.Start(); ok && ad.cfg.ColdStartDays > 0 {
		ages := AgesSince(s.Timestamps, start)
		byFlag := make(map[string][]time.Duration, len(frame.Flags))
		for _, fl := range frame.Flags {
			byFlag[fl.Name] = ages
		}
		if err := frame.SuppressColdStart(byFlag, ad.cfg.ColdStartDays); err != nil {
			return nil, fmt.Errorf("station %s: %w", s.Station, err)
		}
	}
	result.Frame = frame

	result.Sufficient = MinimumMeasurements(s, ad.cfg.Window, ad.cfg.MinMeasurements)
	if !result.Sufficient {
		log.Warnf("%s (%s): rolling count never reaches %d observations", s.Station, s.Kind, ad.cfg.MinMeasurements)
	}

	freqs, err := Frequencies(frame, ad.cfg.FrequencyInterval, s.Kind)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", s.Station, err)
	}
	result.Frequencies = freqs

	log.Debugf("%s (%s): %d positions, %d observations, %d gaps", s.Station, s.Kind, s.Len(), s.Count(), len(result.Gaps))
	return result, nil
}

// Exceedances lists every fired flag of the result
func (r *Result) Exceedances(runID string) []models.Exceedance {
	var out []models.Exceedance
	s := r.Frame.Series
	for _, fl := range r.Frame.Flags {
		for i, v := range fl.Values {
			if !v.Valid || !v.Bool {
				continue
			}
			e := models.Exceedance{
				RunID:     runID,
				SiteNo:    r.SiteNo,
				Kind:      r.Kind,
				Timestamp: s.Timestamps[i],
				Flag:      fl.Name,
				Value:     s.Values[i].Float64,
			}
			if fl.Threshold != nil {
				e.Threshold = fl.Threshold[i]
			}
			out = append(out, e)
		}
	}
	return out
}

// StationResult converts the result into its persisted form
func (r *Result) StationResult(runID string) models.StationResult {
	return models.StationResult{
		RunID:        runID,
		SiteNo:       r.SiteNo,
		Kind:         r.Kind,
		Frequencies:  r.Frequencies,
		Gaps:         r.Gaps,
		Exceedances:  r.Exceedances(runID),
		SufficientN:  r.Sufficient,
		Observations: r.Frame.Series.Count(),
	}
}
