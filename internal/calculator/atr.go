package calculator

import (
	"errors"
	"math"

	"ClimaxHunter/internal/model"
)

// CalculateATR returns the latest Average True Range using Wilder smoothing
// (alpha = 1/period) seeded with the first bar's high-low range.
func CalculateATR(bars []model.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(bars) < period {
		return 0, ErrInsufficientData
	}
	alpha := 1.0 / float64(period)
	atr := bars[0].High - bars[0].Low
	for i := 1; i < len(bars); i++ {
		b, prevClose := bars[i], bars[i-1].Close
		tr := math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prevClose), math.Abs(b.Low-prevClose)))
		atr = alpha*tr + (1-alpha)*atr
	}
	return atr, nil
}
