package calculator

import (
	"time"

	"ClimaxHunter/internal/model"
)

// Resample aggregates chronological bars into buckets of width d, labelled by
// the bucket's left boundary: open=first, high=max, low=min, close=last,
// volume=sum. Buckets with no bars are never produced.
func Resample(bars []model.Candle, d time.Duration) []model.Candle {
	if len(bars) == 0 || d <= 0 {
		return nil
	}
	var out []model.Candle
	var cur model.Candle
	started := false

	for _, b := range bars {
		boundary := b.Time.UTC().Truncate(d)
		if !started || !boundary.Equal(cur.Time) {
			if started {
				out = append(out, cur)
			}
			cur = model.Candle{Time: boundary, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
			started = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	out = append(out, cur)
	return out
}
