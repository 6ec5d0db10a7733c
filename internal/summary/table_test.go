package summary

import (
	"bytes"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamevents/internal/models"
)

func freq(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}

func TestUpsertCreatesColumnsWithNullDefault(t *testing.T) {
	table := NewTable([]string{"01646500", "01594440"})
	assert.Empty(t, table.Columns())

	table.Upsert("01646500", models.FrequencyRow{"moe95_bool_gh": freq(4)})

	v, ok := table.Get("01646500", "moe95_bool_gh")
	require.True(t, ok)
	assert.Equal(t, freq(4), v)

	v, ok = table.Get("01594440", "moe95_bool_gh")
	require.True(t, ok, "existing rows get the new column")
	assert.False(t, v.Valid)
}

func TestUpsertUpdatesAndInserts(t *testing.T) {
	table := NewTable([]string{"A"})
	table.Upsert("A", models.FrequencyRow{"x_gh": freq(1)})
	table.Upsert("A", models.FrequencyRow{"x_gh": freq(2), "y_sf": {}})
	table.Upsert("B", models.FrequencyRow{"y_sf": freq(3)})

	assert.Equal(t, []string{"A", "B"}, table.Stations())
	assert.Equal(t, []string{"x_gh", "y_sf"}, table.Columns())

	v, _ := table.Get("A", "x_gh")
	assert.Equal(t, 2.0, v.Float64)

	v, ok := table.Get("B", "x_gh")
	require.True(t, ok, "new rows get every existing column")
	assert.False(t, v.Valid)

	_, ok = table.Get("C", "x_gh")
	assert.False(t, ok)
}

func TestAddColumn(t *testing.T) {
	table := NewTable([]string{"A"})
	assert.True(t, table.AddColumn("x"))
	assert.False(t, table.AddColumn("x"))

	row, ok := table.Row("A")
	require.True(t, ok)
	assert.Contains(t, row, "x")

	_, ok = table.Row("missing")
	assert.False(t, ok)
}

func TestConcurrentUpsert(t *testing.T) {
	table := NewTable(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			station := string(rune('A' + i%10))
			table.Upsert(station, models.FrequencyRow{"moe95_bool_gh": freq(float64(i)), "moe95_bool_sf": freq(1)})
		}(i)
	}
	wg.Wait()

	assert.Len(t, table.Stations(), 10)
	assert.Len(t, table.Columns(), 2)
}

func TestWriteCSV(t *testing.T) {
	table := NewTable([]string{"01646500", "01594440"})
	table.Upsert("01646500", models.FrequencyRow{"moe95_bool_gh": freq(4.5), "percentile99_bool_gh": {}})

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))

	want := "site_no,moe95_bool_gh,percentile99_bool_gh\n" +
		"01646500,4.5,\n" +
		"01594440,,\n"
	assert.Equal(t, want, buf.String())
}
