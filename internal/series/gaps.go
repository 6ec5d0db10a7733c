package series

import (
	"time"

	"streamevents/internal/models"
)

// DetectGaps returns the silences longer than threshold. Only rows where every
// column is non-null count as observations, so empty resample bins do not
// open gaps of their own; StartIndex is a position within that restriction.
func DetectGaps(s *Series, threshold time.Duration) []models.GapInterval {
	var observed []time.Time
	for i := range s.Timestamps {
		if s.Complete(i) {
			observed = append(observed, s.Timestamps[i])
		}
	}

	var gaps []models.GapInterval
	for i := 1; i < len(observed); i++ {
		if observed[i].Sub(observed[i-1]) > threshold {
			gaps = append(gaps, models.GapInterval{
				Start:      observed[i-1],
				End:        observed[i],
				StartIndex: i - 1,
			})
		}
	}
	return gaps
}
