package series

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a trailing rolling window, either a duration ("90D") or a row
// count ("30"). A statistic at a position is defined only when at least
// MinPeriods non-null observations fall inside the window ending there.
type Window struct {
	Label      string
	Duration   time.Duration
	Count      int
	MinPeriods int
}

// ParseWindow parses a window length. Plain integers are row counts, anything
// else must be a fixed interval.
func ParseWindow(s string, minPeriods int) (Window, error) {
	label := strings.TrimSpace(s)
	w := Window{Label: label, MinPeriods: minPeriods}

	if n, err := strconv.Atoi(label); err == nil {
		w.Count = n
	} else {
		iv, err := ParseInterval(label)
		if err != nil {
			return Window{}, fmt.Errorf("invalid window %q: %w", s, err)
		}
		if iv.IsCalendar() {
			return Window{}, fmt.Errorf("invalid window %q: calendar windows are not supported", s)
		}
		w.Duration = iv.Duration
	}

	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// Validate checks the window invariants.
func (w Window) Validate() error {
	if w.Count <= 0 && w.Duration <= 0 {
		return fmt.Errorf("window %q must have a positive length", w.Label)
	}
	if w.MinPeriods < 1 {
		return fmt.Errorf("window %q: min periods must be at least 1, got %d", w.Label, w.MinPeriods)
	}
	if w.Count > 0 && w.MinPeriods > w.Count {
		return fmt.Errorf("window %q: min periods %d exceeds window length %d", w.Label, w.MinPeriods, w.Count)
	}
	return nil
}

// Starts returns, for every position i, the first index inside the window
// ending at i. Duration windows cover (t[i]-Duration, t[i]].
func (w Window) Starts(timestamps []time.Time) []int {
	starts := make([]int, len(timestamps))
	if w.Count > 0 {
		for i := range timestamps {
			if s := i - w.Count + 1; s > 0 {
				starts[i] = s
			}
		}
		return starts
	}

	j := 0
	for i, t := range timestamps {
		lower := t.Add(-w.Duration)
		for j < i && !timestamps[j].After(lower) {
			j++
		}
		starts[i] = j
	}
	return starts
}

func (w Window) String() string {
	return w.Label
}
