package detector

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"ClimaxHunter/internal/calculator"
	"ClimaxHunter/internal/collector"
	"ClimaxHunter/internal/model"
)

// Config tunes Phase 2.
type Config struct {
	Timeframe model.Timeframe `yaml:"timeframe" default:"5m"`
	Limit     int             `yaml:"limit" default:"100" validate:"gt=1"`

	Lookback       int     `yaml:"lookback" default:"3" validate:"gt=0"`
	VolumeMultiple float64 `yaml:"volume_multiple" default:"2.0" validate:"gt=0"`
	ChangePct      float64 `yaml:"change_pct" default:"1.5" validate:"gt=0"`

	ReversalTimeframe      model.Timeframe `yaml:"reversal_timeframe" default:"15m"`
	ReversalWindow         time.Duration   `yaml:"reversal_window" default:"30m" validate:"gt=0"`
	ReversalVolumeMultiple float64         `yaml:"reversal_volume_multiple" default:"2.5" validate:"gt=0"`
	WickMultiple           float64         `yaml:"wick_multiple" default:"1.5" validate:"gt=0"`
}

// minBody is the smallest body that still allows a wick comparison.
const minBody = 1e-9

// Result aggregates one Phase 2 batch.
type Result struct {
	Accelerations []model.AccelerationCandidate
	Reversals     []model.ReversalSignal
	Skipped       []model.SymbolOutcome
}

// Detector runs acceleration and reversal analysis over a watchlist.
type Detector struct {
	cfg     Config
	fetcher collector.Fetcher
}

// New creates a Detector.
func New(cfg Config, fetcher collector.Fetcher) *Detector {
	return &Detector{cfg: cfg, fetcher: fetcher}
}

// Analyze fetches each watchlist symbol once and runs both analyses on its
// closed candles. Symbols are independent: a failure only skips that symbol.
// The only error returned is context cancellation.
func (d *Detector) Analyze(ctx context.Context, watchlist []string, now time.Time) (*Result, error) {
	res := &Result{}
	seen := make(map[string]struct{})

	for _, sym := range watchlist {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		bars, err := d.fetcher.FetchOHLCV(ctx, sym, d.cfg.Timeframe, d.cfg.Limit)
		if err != nil {
			log.Warn().Err(err).Str("symbol", sym).Msg("detector: fetch failed")
			res.Skipped = append(res.Skipped, model.SymbolOutcome{Symbol: sym, Reason: model.SkipFetchFailed, Err: err})
			continue
		}
		closed := model.Closed(bars)

		cand, reason := Accelerate(sym, closed, d.cfg)
		if reason != "" {
			log.Debug().Str("symbol", sym).Str("reason", string(reason)).Msg("detector: acceleration skipped")
			res.Skipped = append(res.Skipped, model.SymbolOutcome{Symbol: sym, Reason: reason})
		} else {
			res.Accelerations = append(res.Accelerations, cand)
		}

		signals, reason := Reversals(sym, closed, now, d.cfg)
		if reason != "" {
			log.Debug().Str("symbol", sym).Str("reason", string(reason)).Msg("detector: reversal skipped")
			continue
		}
		for _, s := range signals {
			if _, dup := seen[s.Key()]; dup {
				continue
			}
			seen[s.Key()] = struct{}{}
			res.Reversals = append(res.Reversals, s)
		}
	}
	return res, nil
}

// Accelerate scores the last Lookback closed candles against the mean volume
// of everything before them. A non-empty reason means the symbol was skipped.
func Accelerate(symbol string, closed []model.Candle, cfg Config) (model.AccelerationCandidate, model.SkipReason) {
	if len(closed) <= cfg.Lookback {
		return model.AccelerationCandidate{}, model.SkipInsufficientData
	}
	head := closed[:len(closed)-cfg.Lookback]
	tail := closed[len(closed)-cfg.Lookback:]

	baseline := calculator.Mean(calculator.Volumes(head))
	if baseline <= 0 {
		return model.AccelerationCandidate{}, model.SkipZeroBaseline
	}
	first := tail[0].Open
	if first <= 0 {
		return model.AccelerationCandidate{}, model.SkipInvalidPrice
	}
	last := tail[len(tail)-1].Close

	change := (last - first) / first
	volMult := calculator.Mean(calculator.Volumes(tail)) / baseline
	return model.AccelerationCandidate{
		Symbol:         symbol,
		Score:          math.Abs(change) * volMult,
		ChangePct:      change,
		VolumeMultiple: volMult,
		IsStrong:       volMult > cfg.VolumeMultiple && math.Abs(change)*100 > cfg.ChangePct,
		LastClose:      last,
	}, ""
}

// Reversals resamples closed candles to the reversal timeframe and scans
// consecutive buckets newer than now-ReversalWindow for engulfing and wick
// rejection patterns on high volume. The volume baseline is the mean of the
// buckets at or before the cutoff.
func Reversals(symbol string, closed []model.Candle, now time.Time, cfg Config) ([]model.ReversalSignal, model.SkipReason) {
	buckets := calculator.Resample(closed, cfg.ReversalTimeframe.Duration())
	cutoff := now.Add(-cfg.ReversalWindow)

	var recent, older []model.Candle
	for _, b := range buckets {
		if b.Time.After(cutoff) {
			recent = append(recent, b)
		} else {
			older = append(older, b)
		}
	}
	if len(recent) == 0 {
		return nil, ""
	}
	baseline := calculator.Mean(calculator.Volumes(older))
	if baseline <= 0 {
		return nil, model.SkipZeroBaseline
	}

	var out []model.ReversalSignal
	emit := func(c model.Candle, p model.PatternKind) {
		out = append(out, model.ReversalSignal{Symbol: symbol, CandleTime: c.Time, Pattern: p})
	}
	for i := 1; i < len(recent); i++ {
		prev, cur := recent[i-1], recent[i]
		if cur.Volume <= baseline*cfg.ReversalVolumeMultiple {
			continue
		}
		if p, ok := engulfing(prev, cur); ok {
			emit(cur, p)
		}
		if p, ok := wickRejection(cur, cfg.WickMultiple); ok {
			emit(cur, p)
		}
	}
	return out, ""
}

func engulfing(prev, cur model.Candle) (model.PatternKind, bool) {
	switch {
	case cur.Close < prev.Open && cur.Open > prev.Close && prev.Close > prev.Open:
		return model.BearishEngulfing, true
	case cur.Close > prev.Open && cur.Open < prev.Close && prev.Close < prev.Open:
		return model.BullishEngulfing, true
	}
	return "", false
}

// wickRejection checks the upper wick first; a candle long on both sides
// reports only the bearish rejection.
func wickRejection(c model.Candle, mult float64) (model.PatternKind, bool) {
	body := math.Abs(c.Close - c.Open)
	if body <= minBody {
		return "", false
	}
	upper := c.High - math.Max(c.Open, c.Close)
	lower := math.Min(c.Open, c.Close) - c.Low
	switch {
	case upper > body*mult:
		return model.BearishWickRejection, true
	case lower > body*mult:
		return model.BullishWickRejection, true
	}
	return "", false
}
