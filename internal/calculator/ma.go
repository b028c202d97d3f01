package calculator

import (
	"errors"
	"math"

	"ClimaxHunter/internal/model"
)

// ErrInsufficientData is returned when a series is shorter than the indicator needs.
var ErrInsufficientData = errors.New("not enough data")

// CalculateSMA computes the simple moving average of the last period prices.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(prices) < period {
		return 0, ErrInsufficientData
	}
	return Mean(prices[len(prices)-period:]), nil
}

// Mean returns the arithmetic mean, or zero for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// RollingMean returns, for each index, the mean of the window ending there.
// The first period-1 entries average whatever prefix exists.
func RollingMean(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		n := i + 1
		if n > period {
			n = period
		}
		out[i] = sum / float64(n)
	}
	return out
}

// RollingWindowMean is RollingMean without the partial prefix: entries before
// a full window are NaN, so comparisons against them are false.
func RollingWindowMean(values []float64, period int) []float64 {
	out := RollingMean(values, period)
	for i := range out {
		if period <= 0 || i < period-1 {
			out[i] = math.NaN()
		}
	}
	return out
}

// EMA returns the exponential moving average series with alpha 2/(span+1),
// seeded with the first value.
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || span <= 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// PctChange returns closes[last]/closes[last-periods] - 1.
func PctChange(closes []float64, periods int) (float64, error) {
	n := len(closes)
	if periods <= 0 || n <= periods {
		return 0, ErrInsufficientData
	}
	base := closes[n-1-periods]
	if base == 0 {
		return 0, ErrInsufficientData
	}
	return closes[n-1]/base - 1, nil
}

// Closes extracts close prices.
func Closes(bars []model.Candle) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// Volumes extracts volumes.
func Volumes(bars []model.Candle) []float64 {
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
	}
	return vols
}
