package radar

import (
	"math"
	"sort"

	"ClimaxHunter/internal/model"
)

// History keeps the last closed short-timeframe candles per symbol across
// cycles. A History is never mutated in place by the radar: Scan returns a
// fresh copy so callers own both generations.
type History struct {
	limit  int
	series map[string][]model.Candle
}

// NewHistory creates an empty History holding at most limit candles per symbol.
func NewHistory(limit int) *History {
	if limit < 2 {
		limit = 2
	}
	return &History{limit: limit, series: make(map[string][]model.Candle)}
}

// Candles returns the retained candles for symbol, oldest first.
func (h *History) Candles(symbol string) []model.Candle {
	if h == nil {
		return nil
	}
	return h.series[symbol]
}

// Len reports how many symbols carry history.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.series)
}

func (h *History) clone() *History {
	out := &History{limit: h.limit, series: make(map[string][]model.Candle, len(h.series))}
	for sym, bars := range h.series {
		out.series[sym] = append([]model.Candle(nil), bars...)
	}
	return out
}

// merge folds closed candles into symbol's history, replacing bars with the
// same open time and trimming to the retention limit.
func (h *History) merge(symbol string, closed []model.Candle) {
	byTime := make(map[int64]model.Candle, len(h.series[symbol])+len(closed))
	for _, c := range h.series[symbol] {
		byTime[c.Time.UnixNano()] = c
	}
	for _, c := range closed {
		byTime[c.Time.UnixNano()] = c
	}
	bars := make([]model.Candle, 0, len(byTime))
	for _, c := range byTime {
		bars = append(bars, c)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	if len(bars) > h.limit {
		bars = bars[len(bars)-h.limit:]
	}
	h.series[symbol] = bars
}

// acceleration is |latest momentum| over |mean of earlier momentums|, or zero
// while history is too short or the earlier mean is flat.
func (h *History) acceleration(symbol string) float64 {
	bars := h.series[symbol]
	if len(bars) < 2 {
		return 0
	}
	latest, ok := momentum(bars[len(bars)-1])
	if !ok {
		return 0
	}
	var sum float64
	var n int
	for _, c := range bars[:len(bars)-1] {
		if m, ok := momentum(c); ok {
			sum += m
			n++
		}
	}
	if n == 0 {
		return 0
	}
	avg := sum / float64(n)
	if avg == 0 {
		return 0
	}
	return math.Abs(latest) / math.Abs(avg)
}
