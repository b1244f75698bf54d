package calc

import (
	"math"
	"testing"
	"time"

	"github.com/jing2uo/rufeng/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func bars(closes ...float64) []model.Quote {
	quotes := make([]model.Quote, len(closes))
	for i, c := range closes {
		quotes[i] = model.Quote{Date: day(i), Open: c, High: c, Low: c, Close: c, Turnover: c / 10, Factor: 1}
	}
	return quotes
}

func TestSMA(t *testing.T) {
	v, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v, 1e-9)

	_, err = SMA([]float64{1, 2}, 3)
	assert.ErrorIs(t, err, ErrNotEnoughData)

	_, err = SMA([]float64{1, 2}, 0)
	assert.Error(t, err)
}

func TestSMASeries(t *testing.T) {
	out := SMASeries([]float64{1, 2, 3, 4}, 2)
	require.Len(t, out, 4)
	assert.True(t, math.IsNaN(out[0]))
	assert.InDelta(t, 1.5, out[1], 1e-9)
	assert.InDelta(t, 3.5, out[3], 1e-9)

	for _, v := range SMASeries([]float64{1, 2}, 0) {
		assert.True(t, math.IsNaN(v))
	}
}

func TestTurnoverAvg(t *testing.T) {
	avg, err := TurnoverAvg(bars(10, 20, 30, 40, 50, 60), 5)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, avg, 1e-9)

	_, err = TurnoverAvg(bars(10), 5)
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestWindowMinAndPosition(t *testing.T) {
	quotes := bars(5, 8, 9, 10, 12)

	low, err := WindowMin(quotes, 3)
	require.NoError(t, err)
	assert.Equal(t, 9.0, low)

	low, err = WindowMin(quotes, 60)
	require.NoError(t, err)
	assert.Equal(t, 5.0, low)

	_, err = WindowMin(nil, 3)
	assert.Error(t, err)

	pos, err := Position(12, 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, pos, 1e-9)

	pos, err = Position(9, 10)
	require.NoError(t, err)
	assert.Less(t, pos, 0.0)

	_, err = Position(9, 0)
	assert.Error(t, err)
}

func TestQFQ(t *testing.T) {
	quotes := []model.Quote{
		{Date: day(0), Open: 10, High: 10, Low: 10, Close: 10, Factor: 1},
		{Date: day(1), Open: 5, High: 5, Low: 5, Close: 5, Factor: 2},
	}

	adj := QFQ(quotes)
	assert.InDelta(t, 5.0, adj[0].Close, 1e-9)
	assert.InDelta(t, 5.0, adj[1].Close, 1e-9)
	// input untouched
	assert.Equal(t, 10.0, quotes[0].Close)

	assert.Empty(t, QFQ(nil))

	noFactor := []model.Quote{{Close: 3}}
	assert.Equal(t, 3.0, QFQ(noFactor)[0].Close)
}

func TestFactorChanges(t *testing.T) {
	quotes := []model.Quote{
		{Date: day(0), Factor: 1},
		{Date: day(1), Factor: 1},
		{Date: day(2), Factor: 1.2},
		{Date: day(3), Factor: 0},
	}
	changes := FactorChanges(quotes)
	require.Len(t, changes, 1)
	assert.Equal(t, day(2), changes[0].Date)
	assert.Equal(t, 1.2, changes[0].To)
}

func TestFindGaps(t *testing.T) {
	index := bars(1, 1, 1, 1, 1, 1)
	stock := []model.Quote{
		{Date: day(0)},
		{Date: day(1)},
		{Date: day(4)}, // day 2 and 3 missing
		{Date: day(5)},
		{Date: day(9)}, // not in the index calendar
	}

	gaps, unknown := FindGaps(stock, index)
	require.Len(t, gaps, 1)
	assert.Equal(t, day(1), gaps[0].From)
	assert.Equal(t, day(4), gaps[0].To)
	assert.Equal(t, 2, gaps[0].Days)

	require.Len(t, unknown, 1)
	assert.Equal(t, day(9), unknown[0])

	gaps, unknown = FindGaps(nil, index)
	assert.Nil(t, gaps)
	assert.Nil(t, unknown)
}
