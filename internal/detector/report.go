package detector

import (
	"sort"

	"ClimaxHunter/internal/model"
)

// TopAccelerations returns up to n candidates by descending score.
func (r *Result) TopAccelerations(n int) []model.AccelerationCandidate {
	out := append([]model.AccelerationCandidate(nil), r.Accelerations...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// LatestReversals returns up to n signals, newest first.
func (r *Result) LatestReversals(n int) []model.ReversalSignal {
	out := append([]model.ReversalSignal(nil), r.Reversals...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CandleTime.After(out[j].CandleTime) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// ReversalsFor returns the signals reported for symbol, newest first.
func (r *Result) ReversalsFor(symbol string) []model.ReversalSignal {
	var out []model.ReversalSignal
	for _, s := range r.LatestReversals(len(r.Reversals)) {
		if s.Symbol == symbol {
			out = append(out, s)
		}
	}
	return out
}

// PatternFor returns the newest pattern for symbol pointing the given way, or
// "" when none does.
func (r *Result) PatternFor(symbol string, bearish bool) model.PatternKind {
	for _, s := range r.ReversalsFor(symbol) {
		if s.Pattern.Bearish() == bearish {
			return s.Pattern
		}
	}
	return ""
}
