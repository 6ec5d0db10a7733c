package series

import (
	"database/sql"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectGaps(t *testing.T) {
	threshold := 5 * 24 * time.Hour

	t.Run("single ten day gap", func(t *testing.T) {
		s, err := New("v", days(jan1, 0, 1, 2, 12, 13), Floats(1, 2, 3, 4, 5))
		require.NoError(t, err)

		gaps := DetectGaps(s, threshold)
		require.Len(t, gaps, 1)
		assert.True(t, gaps[0].Start.Equal(jan1.AddDate(0, 0, 2)))
		assert.True(t, gaps[0].End.Equal(jan1.AddDate(0, 0, 12)))
		assert.Equal(t, 2, gaps[0].StartIndex)
		assert.Equal(t, 10*24*time.Hour, gaps[0].Duration())
	})

	t.Run("exactly threshold is not a gap", func(t *testing.T) {
		s, err := New("v", days(jan1, 0, 5), Floats(1, 2))
		require.NoError(t, err)
		assert.Empty(t, DetectGaps(s, threshold))
	})

	t.Run("null rows are silence", func(t *testing.T) {
		offsets := make([]int, 12)
		for i := range offsets {
			offsets[i] = i
		}
		values := Floats(1, math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), math.NaN(), 8, 9, 10, 11, 12)
		s, err := New("v", days(jan1, offsets...), values)
		require.NoError(t, err)

		gaps := DetectGaps(s, threshold)
		require.Len(t, gaps, 1)
		assert.True(t, gaps[0].Start.Equal(jan1))
		assert.True(t, gaps[0].End.Equal(jan1.AddDate(0, 0, 7)))
		assert.Equal(t, 0, gaps[0].StartIndex)
	})

	t.Run("incomplete aux rows are dropped", func(t *testing.T) {
		s, err := New("v", days(jan1, 0, 1, 8), Floats(1, 2, 3))
		require.NoError(t, err)
		s.Aux = []Column{{Name: "aux", Values: []sql.NullFloat64{{Float64: 1, Valid: true}, {}, {Float64: 1, Valid: true}}}}

		gaps := DetectGaps(s, threshold)
		require.Len(t, gaps, 1)
		assert.True(t, gaps[0].Start.Equal(jan1))
	})

	t.Run("empty and single", func(t *testing.T) {
		empty, err := New("v", nil, nil)
		require.NoError(t, err)
		assert.Empty(t, DetectGaps(empty, threshold))

		one, err := New("v", days(jan1, 0), Floats(1))
		require.NoError(t, err)
		assert.Empty(t, DetectGaps(one, threshold))
	})
}
