package calc

import (
	"errors"
	"math"

	"github.com/jing2uo/rufeng/model"
)

var ErrNotEnoughData = errors.New("not enough data")

// SMA computes the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, ErrNotEnoughData
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// SMASeries returns the moving average aligned with values; the first
// period-1 entries are NaN.
func SMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i < period-1 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(period)
	}
	return out
}

// TurnoverAvg averages the turnover of the last n bars.
func TurnoverAvg(quotes []model.Quote, n int) (float64, error) {
	if n <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(quotes) < n {
		return 0, ErrNotEnoughData
	}
	sum := 0.0
	for _, q := range quotes[len(quotes)-n:] {
		sum += q.Turnover
	}
	return sum / float64(n), nil
}

// WindowMin returns the lowest close over the last n bars, or all bars when
// fewer are available.
func WindowMin(quotes []model.Quote, n int) (float64, error) {
	if len(quotes) == 0 {
		return 0, ErrNotEnoughData
	}
	start := len(quotes) - n
	if start < 0 || n <= 0 {
		start = 0
	}
	low := math.Inf(1)
	for _, q := range quotes[start:] {
		if q.Close < low {
			low = q.Close
		}
	}
	return low, nil
}

// Position is how far price sits above low, as a ratio of low. A price
// under the low yields a negative position.
func Position(price, low float64) (float64, error) {
	if low <= 0 {
		return 0, errors.New("low must be positive")
	}
	return (price - low) / low, nil
}

func Closes(quotes []model.Quote) []float64 {
	closes := make([]float64, len(quotes))
	for i, q := range quotes {
		closes[i] = q.Close
	}
	return closes
}
