package model

import "time"

// Direction is the side of a trade.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// PatternKind names a reversal pattern found on resampled candles.
type PatternKind string

const (
	BearishEngulfing     PatternKind = "bearish_engulfing"
	BullishEngulfing     PatternKind = "bullish_engulfing"
	BearishWickRejection PatternKind = "bearish_wick_rejection"
	BullishWickRejection PatternKind = "bullish_wick_rejection"
)

// Bearish reports whether the pattern points to a move down.
func (p PatternKind) Bearish() bool {
	return p == BearishEngulfing || p == BearishWickRejection
}

// MomentumCandidate is one Phase 1 ranking entry.
type MomentumCandidate struct {
	Symbol      string
	MomentumPct float64
	// Acceleration is |latest momentum| / |mean of previous momentums| from the
	// candle history; zero until enough history exists.
	Acceleration float64
}

// AccelerationCandidate is the Phase 2 output for one watchlist symbol.
type AccelerationCandidate struct {
	Symbol         string
	Score          float64
	ChangePct      float64 // short-window change as a fraction
	VolumeMultiple float64
	IsStrong       bool
	LastClose      float64
}

// ReversalSignal is a reversal pattern on one resampled bucket.
type ReversalSignal struct {
	Symbol     string
	CandleTime time.Time
	Pattern    PatternKind
}

// Key identifies a signal for deduplication.
func (s ReversalSignal) Key() string {
	return s.Symbol + "|" + string(s.Pattern) + "|" + s.CandleTime.UTC().Format(time.RFC3339)
}

// SkipReason explains why a symbol produced no result in a batch.
type SkipReason string

const (
	SkipFetchFailed      SkipReason = "fetch_failed"
	SkipInsufficientData SkipReason = "insufficient_data"
	SkipZeroBaseline     SkipReason = "zero_baseline"
	SkipInvalidPrice     SkipReason = "invalid_price"
)

// SymbolOutcome records a skipped symbol. Err is set only for fetch failures.
type SymbolOutcome struct {
	Symbol string
	Reason SkipReason
	Err    error
}
