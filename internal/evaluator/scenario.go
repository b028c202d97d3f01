package evaluator

// Scenario holds the exit thresholds for one scenario tag, in percent.
type Scenario struct {
	Target      float64 `yaml:"target"`
	TrailingGap float64 `yaml:"trailing_gap"`
}

// DefaultScenarios is the stock lookup: slow reversal setups trail wider,
// wick and rounded setups a little wider, pullbacks tighter.
func DefaultScenarios() map[string]Scenario {
	slow := Scenario{Target: 3.5, TrailingGap: 1.8}
	medium := Scenario{Target: 3.5, TrailingGap: 1.2}
	tight := Scenario{Target: 3.5, TrailingGap: 0.8}
	return map[string]Scenario{
		"bearish_engulfing":      slow,
		"bullish_engulfing":      slow,
		"reentry_consolidation":  slow,
		"triple_top":             slow,
		"bearish_wick_rejection": medium,
		"bullish_wick_rejection": medium,
		"rounded_base":           medium,
		"rounded_top":            medium,
		"pullback_ema21":         tight,
		"pullback_ema21_bearish": tight,
	}
}
