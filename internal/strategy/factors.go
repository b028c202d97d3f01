package strategy

import "fmt"

// Factor is one rule contribution to the quality score.
type Factor struct {
	Name       string
	Points     float64
	Commentary string
}

// Score is the additive rule score with its breakdown.
type Score struct {
	Factors []Factor
	Total   float64
}

// MaxRuleScore is the sum of every factor's best case.
const MaxRuleScore = 38.0

// RuleScore adds up the exhaustion rules for an oriented feature row.
func RuleScore(f Features) Score {
	factors := []Factor{
		scoreRSI4h(f),
		scoreDistance(f),
		scoreOffPeak(f),
		scoreVolumeSpike(f),
		scoreMajors(f),
	}
	var total float64
	for _, fa := range factors {
		total += fa.Points
	}
	return Score{Factors: factors, Total: total}
}

// scoreRSI4h: +10 above 85, +5 above 75.
func scoreRSI4h(f Features) Factor {
	var pts float64
	switch {
	case f.RSI4h > 85:
		pts = 10
	case f.RSI4h > 75:
		pts = 5
	}
	return Factor{Name: "rsi_4h", Points: pts, Commentary: fmt.Sprintf("RSI=%.0f", f.RSI4h)}
}

// scoreDistance: +10 beyond 25% from the 24h mean, +5 beyond 15%.
func scoreDistance(f Features) Factor {
	var pts float64
	switch {
	case f.DistanceMA24 > 0.25:
		pts = 10
	case f.DistanceMA24 > 0.15:
		pts = 5
	}
	return Factor{Name: "distance_ma24", Points: pts, Commentary: fmt.Sprintf("%+.1f%%", f.DistanceMA24*100)}
}

func scoreOffPeak(f Features) Factor {
	if f.OffPeak {
		return Factor{Name: "off_extreme", Points: 5, Commentary: "backed off the extreme"}
	}
	return Factor{Name: "off_extreme", Points: 0, Commentary: "at the extreme"}
}

func scoreVolumeSpike(f Features) Factor {
	var pts float64
	if f.VolumeSpike > 3 {
		pts = 5
	}
	return Factor{Name: "volume_spike_5m", Points: pts, Commentary: fmt.Sprintf("%.1fx", f.VolumeSpike)}
}

// scoreMajors: +8 when BTC and ETH both moved more than 4% the same way.
func scoreMajors(f Features) Factor {
	var pts float64
	if f.BTCChange24h > 0.04 && f.ETHChange24h > 0.04 {
		pts = 8
	}
	return Factor{
		Name:       "majors",
		Points:     pts,
		Commentary: fmt.Sprintf("BTC %+.1f%% ETH %+.1f%%", f.BTCChange24h*100, f.ETHChange24h*100),
	}
}
