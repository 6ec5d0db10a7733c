package series

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

type calendarUnit int

const (
	fixed calendarUnit = iota
	monthly
	yearly
)

// Interval is a resampling step. Fixed intervals ("1D", "6H", "15min") bin from
// midnight of the first day; calendar intervals ("YE", "ME") bin by calendar
// year or month.
type Interval struct {
	Label    string
	Duration time.Duration
	n        int
	unit     calendarUnit
}

var fixedUnits = map[string]time.Duration{
	"W":   7 * day,
	"D":   day,
	"H":   time.Hour,
	"h":   time.Hour,
	"min": time.Minute,
	"T":   time.Minute,
	"S":   time.Second,
	"s":   time.Second,
}

// ParseInterval parses a pandas-style frequency string.
func ParseInterval(s string) (Interval, error) {
	label := strings.TrimSpace(s)
	if label == "" {
		return Interval{}, fmt.Errorf("empty interval")
	}

	i := 0
	for i < len(label) && label[i] >= '0' && label[i] <= '9' {
		i++
	}
	n := 1
	if i > 0 {
		parsed, err := strconv.Atoi(label[:i])
		if err != nil || parsed <= 0 {
			return Interval{}, fmt.Errorf("invalid interval multiplier in %q", s)
		}
		n = parsed
	}

	unit := label[i:]
	switch unit {
	case "YE", "Y", "A", "AS", "YS":
		return Interval{Label: label, n: n, unit: yearly}, nil
	case "ME", "M", "MS":
		return Interval{Label: label, n: n, unit: monthly}, nil
	}

	d, ok := fixedUnits[unit]
	if !ok {
		return Interval{}, fmt.Errorf("unknown interval unit %q in %q", unit, s)
	}
	return Interval{Label: label, Duration: time.Duration(n) * d, n: n, unit: fixed}, nil
}

// MustParseInterval is ParseInterval for literals known to be valid.
func MustParseInterval(s string) Interval {
	iv, err := ParseInterval(s)
	if err != nil {
		panic(err)
	}
	return iv
}

// IsCalendar reports whether the interval follows calendar months or years.
func (iv Interval) IsCalendar() bool {
	return iv.unit != fixed
}

// Floor returns the start of the bin containing t. origin is the first
// timestamp of the series being resampled.
func (iv Interval) Floor(t, origin time.Time) time.Time {
	switch iv.unit {
	case yearly:
		y := t.Year() - mod(t.Year()-origin.Year(), iv.n)
		return time.Date(y, time.January, 1, 0, 0, 0, 0, t.Location())
	case monthly:
		months := monthIndex(t) - mod(monthIndex(t)-monthIndex(origin), iv.n)
		return time.Date(months/12, time.Month(months%12+1), 1, 0, 0, 0, 0, t.Location())
	}

	start := midnight(origin)
	offset := t.Sub(start)
	steps := offset / iv.Duration
	if offset < 0 && offset%iv.Duration != 0 {
		steps--
	}
	return start.Add(steps * iv.Duration)
}

// Next returns the start of the bin after the one starting at t.
func (iv Interval) Next(t time.Time) time.Time {
	switch iv.unit {
	case yearly:
		return t.AddDate(iv.n, 0, 0)
	case monthly:
		return t.AddDate(0, iv.n, 0)
	}
	return t.Add(iv.Duration)
}

func (iv Interval) String() string {
	return iv.Label
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}
