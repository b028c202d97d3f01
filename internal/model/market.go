package model

import "time"

// Candle represents a single candlestick bar. Time is the bar's open time.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Ticker is the 24h snapshot of one instrument as reported by the candle source.
type Ticker struct {
	Symbol      string
	QuoteAsset  string
	Perpetual   bool
	Last        float64
	QuoteVolume float64
	Percentage  float64 // 24h change in percent
	FundingRate float64
}

// Closed drops the final bar of a live series, which may still be forming.
func Closed(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}
	return candles[:len(candles)-1]
}

// Timeframe is an exchange interval string such as "5m" or "1h".
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Duration returns the bar length of tf, or zero for an unknown interval.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	case "2h":
		return 2 * time.Hour
	case TF4h:
		return 4 * time.Hour
	case "6h":
		return 6 * time.Hour
	case "12h":
		return 12 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}
