package detector

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"streamevents/internal/series"
)

// Flag is a boolean exceedance column. Threshold holds the value the
// observation was compared against, where one exists.
type Flag struct {
	Name      string
	Values    []sql.NullBool
	Threshold []sql.NullFloat64
}

// Frame is a normalized series augmented with derived columns and flags
type Frame struct {
	Series  *series.Series
	Columns []series.Column
	Flags   []Flag
}

// NewFrame starts a frame over s
func NewFrame(s *series.Series) *Frame {
	return &Frame{Series: s}
}

// AddColumn appends a derived numeric column
func (f *Frame) AddColumn(name string, values []sql.NullFloat64) {
	f.Columns = append(f.Columns, series.Column{Name: name, Values: values})
}

// AddFlag appends a flag column
func (f *Frame) AddFlag(name string, values []sql.NullBool, threshold []sql.NullFloat64) {
	f.Flags = append(f.Flags, Flag{Name: name, Values: values, Threshold: threshold})
}

// AddEnvelope adds ma_<window>, moe<level> and moe<level>_bool
func (f *Frame) AddEnvelope(e *Envelope) {
	f.AddColumn(e.AverageLabel, e.MovingAverage)
	f.AddColumn(e.MarginLabel, e.MarginOfError)
	f.AddFlag(e.FlagLabel(), e.Exceeds, e.UpperBound)
}

// AddThreshold adds percentile<p> and percentile<p>_bool
func (f *Frame) AddThreshold(t *Threshold) {
	f.AddColumn(t.Label(), t.Values)
	f.AddFlag(t.FlagLabel(), t.Exceeds, t.Values)
}

// AddIQR adds iqr_outlier and iqr_outlier_bool
func (f *Frame) AddIQR(q *IQRThreshold) {
	f.AddColumn(iqrLabel, q.Threshold)
	f.AddFlag(iqrLabel+"_bool", q.Exceeds, q.Threshold)
}

// Flag looks up a flag column by name
func (f *Frame) Flag(name string) (*Flag, bool) {
	for i := range f.Flags {
		if f.Flags[i].Name == name {
			return &f.Flags[i], true
		}
	}
	return nil, false
}

// Column looks up a derived column by name
func (f *Frame) Column(name string) (*series.Column, bool) {
	for i := range f.Columns {
		if f.Columns[i].Name == name {
			return &f.Columns[i], true
		}
	}
	return nil, false
}

// WriteCSV writes the augmented series: datetime, primary and aux columns,
// derived columns, then flags. Nulls are written as empty fields.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	s := f.Series
	header := []string{"datetime", s.Name}
	for _, c := range s.Aux {
		header = append(header, c.Name)
	}
	for _, c := range f.Columns {
		header = append(header, c.Name)
	}
	for _, fl := range f.Flags {
		header = append(header, fl.Name)
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(header))
	for i, t := range s.Timestamps {
		record = record[:0]
		record = append(record, t.Format(time.RFC3339), formatFloat(s.Values[i]))
		for _, c := range s.Aux {
			record = append(record, formatFloat(c.Values[i]))
		}
		for _, c := range f.Columns {
			record = append(record, formatFloat(c.Values[i]))
		}
		for _, fl := range f.Flags {
			record = append(record, formatBool(fl.Values[i]))
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v sql.NullFloat64) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'g', -1, 64)
}

func formatBool(v sql.NullBool) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatBool(v.Bool)
}
