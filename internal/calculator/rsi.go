package calculator

import (
	"errors"
	"math"

	"ClimaxHunter/internal/model"
)

// RSISeries computes the Wilder-smoothed RSI for every bar. Entries before the
// first full period are NaN.
func RSISeries(bars []model.Candle, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}
	out := make([]float64, len(bars))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(bars) < period+1 {
		return out, ErrInsufficientData
	}

	closes := Closes(bars)

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out, nil
}

// CalculateRSI returns the latest RSI value.
func CalculateRSI(bars []model.Candle, period int) (float64, error) {
	series, err := RSISeries(bars, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}
