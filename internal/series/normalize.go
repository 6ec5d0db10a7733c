package series

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"streamevents/internal/log"
)

// maxRawColumns is how many leading columns of a USGS export are kept; the
// tail of the file may carry junk columns.
const maxRawColumns = 6

// Options holds options for reading a station export.
type Options struct {
	DropColumns     []int  // positions to drop after truncation (default: 0,1,3,5)
	Resample        string // target interval (default: "1D")
	TimestampColumn string // default: "datetime"
	TimestampLayout string // default: "2006-01-02 15:04"
}

// DefaultOptions matches the layout written for USGS instantaneous values:
// agency_cd, site_no, datetime, tz_cd, value, value_cd.
func DefaultOptions() *Options {
	return &Options{
		DropColumns:     []int{0, 1, 3, 5},
		Resample:        "1D",
		TimestampColumn: "datetime",
		TimestampLayout: "2006-01-02 15:04",
	}
}

// Schema is the typed view of a parsed header.
type Schema struct {
	Timestamp string
	Primary   string
	Aux       []string
	Dropped   []string
}

// Normalizer parses station exports into uniform-interval series.
type Normalizer struct {
	opts     Options
	interval Interval
}

// NewNormalizer validates opts and builds a normalizer.
func NewNormalizer(opts *Options) (*Normalizer, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.Resample == "" {
		o.Resample = "1D"
	}
	if o.TimestampColumn == "" {
		o.TimestampColumn = "datetime"
	}
	if o.TimestampLayout == "" {
		o.TimestampLayout = "2006-01-02 15:04"
	}

	iv, err := ParseInterval(o.Resample)
	if err != nil {
		return nil, fmt.Errorf("invalid resample interval: %w", err)
	}
	return &Normalizer{opts: o, interval: iv}, nil
}

// Interval returns the resample interval.
func (n *Normalizer) Interval() Interval {
	return n.interval
}

// Locate finds the export for station under dir (<dir>/<station>*.csv).
func Locate(dir, station string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, station+"*.csv"))
	if err != nil {
		return "", fmt.Errorf("failed to search %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("station %s in %s: %w", station, dir, ErrNotFound)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// LoadFile reads and normalizes one export.
func (n *Normalizer) LoadFile(path string) (*Series, *Schema, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return n.Load(file)
}

// Load reads an export from r and resamples it onto the target grid.
func (n *Normalizer) Load(r io.Reader) (*Series, *Schema, error) {
	raw, err := n.parse(r)
	if err != nil {
		return nil, nil, err
	}
	return n.resample(raw), &raw.schema, nil
}

type rawRow struct {
	at     time.Time
	values []sql.NullFloat64 // primary first, then aux
}

type rawTable struct {
	schema Schema
	rows   []rawRow
}

func (n *Normalizer) parse(r io.Reader) (*rawTable, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file: %w", ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	keep, schema, err := n.layout(header)
	if err != nil {
		return nil, err
	}

	table := &rawTable{schema: schema}
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}

		tsIdx := keep[0]
		if tsIdx >= len(record) {
			skipped++
			continue
		}
		at, ok := n.parseTimestamp(record[tsIdx])
		if !ok {
			skipped++
			continue
		}

		values := make([]sql.NullFloat64, len(keep)-1)
		for i, idx := range keep[1:] {
			if idx < len(record) {
				values[i] = coerce(record[idx])
			}
		}
		table.rows = append(table.rows, rawRow{at: at, values: values})
	}

	if skipped > 0 {
		log.Debugf("skipped %d rows with unparseable timestamps", skipped)
	}
	return table, nil
}

// layout applies truncation and drops, returning the kept raw positions with
// the timestamp position first.
func (n *Normalizer) layout(header []string) ([]int, Schema, error) {
	if len(header) > maxRawColumns {
		header = header[:maxRawColumns]
	}

	drop := make(map[int]bool, len(n.opts.DropColumns))
	for _, idx := range n.opts.DropColumns {
		if idx < 0 || idx >= len(header) {
			return nil, Schema{}, fmt.Errorf("drop column %d out of range for %d columns: %w", idx, len(header), ErrMalformedInput)
		}
		drop[idx] = true
	}

	var schema Schema
	tsIdx := -1
	var rest []int
	for i, h := range header {
		name := strings.TrimSpace(h)
		if drop[i] {
			schema.Dropped = append(schema.Dropped, name)
			continue
		}
		if name == n.opts.TimestampColumn && tsIdx == -1 {
			tsIdx = i
			continue
		}
		rest = append(rest, i)
	}

	if tsIdx == -1 {
		return nil, Schema{}, fmt.Errorf("timestamp column %q not found: %w", n.opts.TimestampColumn, ErrMalformedInput)
	}
	if len(rest) == 0 {
		return nil, Schema{}, fmt.Errorf("no observation column: %w", ErrMalformedInput)
	}

	schema.Timestamp = n.opts.TimestampColumn
	schema.Primary = "mean_" + n.interval.Label
	for _, idx := range rest[1:] {
		schema.Aux = append(schema.Aux, strings.TrimSpace(header[idx]))
	}
	return append([]int{tsIdx}, rest...), schema, nil
}

func (n *Normalizer) parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	layouts := []string{
		n.opts.TimestampLayout,
		"2006-01-02 15:04:05",
		time.RFC3339,
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// coerce maps a token to a number, anything non-numeric to null.
func coerce(token string) sql.NullFloat64 {
	token = strings.TrimSpace(token)
	if token == "" {
		return sql.NullFloat64{}
	}
	v, err := cast.ToFloat64E(token)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

type accumulator struct {
	sum   []float64
	count []int
}

// resample bins rows onto the interval grid and averages duplicates. Bins
// without any non-null value stay null.
func (n *Normalizer) resample(raw *rawTable) *Series {
	out := &Series{Name: raw.schema.Primary}
	for _, name := range raw.schema.Aux {
		out.Aux = append(out.Aux, Column{Name: name})
	}
	if len(raw.rows) == 0 {
		return out
	}

	sort.SliceStable(raw.rows, func(i, j int) bool {
		return raw.rows[i].at.Before(raw.rows[j].at)
	})

	origin := raw.rows[0].at
	width := len(raw.rows[0].values)
	bins := make(map[time.Time]*accumulator)
	for _, row := range raw.rows {
		key := n.interval.Floor(row.at, origin)
		acc, ok := bins[key]
		if !ok {
			acc = &accumulator{sum: make([]float64, width), count: make([]int, width)}
			bins[key] = acc
		}
		for i, v := range row.values {
			if v.Valid {
				acc.sum[i] += v.Float64
				acc.count[i]++
			}
		}
	}

	last := n.interval.Floor(raw.rows[len(raw.rows)-1].at, origin)
	for t := n.interval.Floor(origin, origin); !t.After(last); t = n.interval.Next(t) {
		acc := bins[t]
		out.Timestamps = append(out.Timestamps, t)
		out.Values = append(out.Values, mean(acc, 0))
		for i := range out.Aux {
			out.Aux[i].Values = append(out.Aux[i].Values, mean(acc, i+1))
		}
	}
	return out
}

func mean(acc *accumulator, i int) sql.NullFloat64 {
	if acc == nil || acc.count[i] == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: acc.sum[i] / float64(acc.count[i]), Valid: true}
}
