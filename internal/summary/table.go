// Package summary holds the per-station frequency table produced by an
// analysis run.
package summary

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"streamevents/internal/models"
)

// KeyColumn is the station identifier column
const KeyColumn = "site_no"

// Table is keyed by station id with one nullable value per frequency column.
// Columns are created on first sight with null for every existing row.
type Table struct {
	mu      sync.RWMutex
	columns []string
	index   map[string]int
	keys    []string
	rows    map[string]map[string]sql.NullFloat64
}

// NewTable creates a table with one empty row per station.
func NewTable(stations []string) *Table {
	t := &Table{
		index: make(map[string]int),
		rows:  make(map[string]map[string]sql.NullFloat64),
	}
	for _, s := range stations {
		t.ensureRow(s)
	}
	return t
}

// AddColumn creates a column if it does not exist yet. It reports whether the
// column was created.
func (t *Table) AddColumn(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.addColumn(name)
}

func (t *Table) addColumn(name string) bool {
	if _, ok := t.index[name]; ok {
		return false
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	for _, row := range t.rows {
		row[name] = sql.NullFloat64{}
	}
	return true
}

func (t *Table) ensureRow(station string) map[string]sql.NullFloat64 {
	row, ok := t.rows[station]
	if ok {
		return row
	}
	row = make(map[string]sql.NullFloat64, len(t.columns))
	for _, c := range t.columns {
		row[c] = sql.NullFloat64{}
	}
	t.rows[station] = row
	t.keys = append(t.keys, station)
	return row
}

// Upsert merges freqs into the row for station, creating missing columns and
// the row itself when needed.
func (t *Table) Upsert(station string, freqs models.FrequencyRow) {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(freqs))
	for name := range freqs {
		names = append(names, name)
	}
	sort.Strings(names)

	row := t.ensureRow(station)
	for _, name := range names {
		t.addColumn(name)
		row[name] = freqs[name]
	}
}

// Get returns the value of column for station.
func (t *Table) Get(station, column string) (sql.NullFloat64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	row, ok := t.rows[station]
	if !ok {
		return sql.NullFloat64{}, false
	}
	v, ok := row[column]
	return v, ok
}

// Columns returns the frequency columns in creation order.
func (t *Table) Columns() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.columns...)
}

// Stations returns the station ids in insertion order.
func (t *Table) Stations() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.keys...)
}

// Row returns a copy of the row for station.
func (t *Table) Row(station string) (models.FrequencyRow, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	row, ok := t.rows[station]
	if !ok {
		return nil, false
	}
	out := make(models.FrequencyRow, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out, true
}

// WriteCSV writes site_no followed by every frequency column. Nulls are empty.
func (t *Table) WriteCSV(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{KeyColumn}, t.columns...)); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, key := range t.keys {
		record := []string{key}
		row := t.rows[key]
		for _, c := range t.columns {
			v := row[c]
			if v.Valid {
				record = append(record, strconv.FormatFloat(v.Float64, 'g', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row %s: %w", key, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
