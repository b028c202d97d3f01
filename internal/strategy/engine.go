package strategy

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"ClimaxHunter/internal/calculator"
	"ClimaxHunter/internal/collector"
	"ClimaxHunter/internal/model"
)

// Config tunes the signal gate.
type Config struct {
	ModelPath              string          `yaml:"model_path"`
	RuleThreshold          float64         `yaml:"rule_threshold" default:"20" validate:"gt=0"`
	ProbabilityThreshold   float64         `yaml:"probability_threshold" default:"0.85" validate:"gt=0,lte=1"`
	MaxNegativeFundingRate float64         `yaml:"max_negative_funding_rate" default:"-0.005" validate:"lte=0"`
	FeatureLimit           int             `yaml:"feature_limit" default:"60" validate:"gte=26"`
	BTCSymbol              string          `yaml:"btc_symbol" default:"BTCUSDT"`
	ETHSymbol              string          `yaml:"eth_symbol" default:"ETHUSDT"`
	EntryTimeframe         model.Timeframe `yaml:"entry_timeframe" default:"1h"`
	ATRPeriod              int             `yaml:"atr_period" default:"14" validate:"gt=0"`
	StopATR                float64         `yaml:"stop_atr" default:"1.0" validate:"gt=0"`
	TargetATR              float64         `yaml:"target_atr" default:"1.5" validate:"gt=0"`
	SizeTiers              []SizeTier      `yaml:"size_tiers"`
	Diagnostics            Diagnostics     `yaml:"diagnostics"`
}

// Diagnostics are the cut-offs for near-miss classification.
type Diagnostics struct {
	TooLateProbability float64 `yaml:"too_late_probability" default:"0.40"`
	ExtremeRSI         float64 `yaml:"extreme_rsi" default:"80"`
	VolumeSpike        float64 `yaml:"volume_spike" default:"3.0"`
	ExtendedDistance   float64 `yaml:"extended_distance" default:"0.20"`
}

// SizeTier maps a minimum quality-per-risk to a suggested size.
type SizeTier struct {
	MinQuality float64 `yaml:"min_quality"`
	Size       float64 `yaml:"size"`
}

// DefaultSizeTiers returns the stock sizing ladder, highest first.
func DefaultSizeTiers() []SizeTier {
	return []SizeTier{
		{MinQuality: 40, Size: 350},
		{MinQuality: 30, Size: 300},
		{MinQuality: 20, Size: 250},
		{MinQuality: 10, Size: 200},
		{MinQuality: 0, Size: 150},
	}
}

// Candidate is a Phase 2 result the gate should judge.
type Candidate struct {
	Symbol      string
	ChangePct   float64 // short-window change as a fraction
	Price       float64
	FundingRate float64
	Pattern     model.PatternKind // newest reversal agreeing with the trade, if any
}

// DirectionFor fades a move: a rise is shorted, a fall is bought.
func DirectionFor(change float64) model.Direction {
	if change > 0 {
		return model.Short
	}
	return model.Long
}

// Verdict is the gate's decision for one candidate. Alert is nil when the
// candidate was not admitted.
type Verdict struct {
	Symbol      string
	Direction   model.Direction
	Features    Features
	Score       Score
	Probability float64
	Alert       *model.Alert
	Reason      string
	Diagnosis   Diagnosis
}

// Gate scores candidates and turns admitted ones into alerts.
type Gate struct {
	cfg        Config
	fetcher    collector.Fetcher
	classifier Classifier
	now        func() time.Time
}

// NewGate creates a Gate. A nil classifier selects rule-score admission.
func NewGate(cfg Config, fetcher collector.Fetcher, classifier Classifier) *Gate {
	if len(cfg.SizeTiers) == 0 {
		cfg.SizeTiers = DefaultSizeTiers()
	}
	return &Gate{cfg: cfg, fetcher: fetcher, classifier: classifier, now: time.Now}
}

// LoadMajors fetches the reference series once per cycle.
func (g *Gate) LoadMajors(ctx context.Context) (Majors, error) {
	btc, err := g.fetcher.FetchOHLCV(ctx, g.cfg.BTCSymbol, model.TF1h, g.cfg.FeatureLimit)
	if err != nil {
		return Majors{}, fmt.Errorf("fetch %s: %w", g.cfg.BTCSymbol, err)
	}
	eth, err := g.fetcher.FetchOHLCV(ctx, g.cfg.ETHSymbol, model.TF1h, g.cfg.FeatureLimit)
	if err != nil {
		return Majors{}, fmt.Errorf("fetch %s: %w", g.cfg.ETHSymbol, err)
	}
	return Majors{BTC: model.Closed(btc), ETH: model.Closed(eth)}, nil
}

// Evaluate fetches the candidate's multi-timeframe series and judges it. An
// error means the symbol could not be scored this cycle.
func (g *Gate) Evaluate(ctx context.Context, cand Candidate, mj Majors) (*Verdict, error) {
	fr, err := g.fetchFrames(ctx, cand.Symbol)
	if err != nil {
		return nil, err
	}
	return g.Judge(cand, fr, mj)
}

// Judge is Evaluate on already fetched frames.
func (g *Gate) Judge(cand Candidate, fr Frames, mj Majors) (*Verdict, error) {
	dir := DirectionFor(cand.ChangePct)
	f, err := BuildFeatures(fr, mj, dir)
	if err != nil {
		return nil, fmt.Errorf("features %s: %w", cand.Symbol, err)
	}
	v := &Verdict{Symbol: cand.Symbol, Direction: dir, Features: f, Score: RuleScore(f)}

	admitted := false
	if g.classifier != nil {
		proba, err := g.classifier.PredictProba(f.Vector())
		if err != nil {
			return nil, fmt.Errorf("classify %s: %w", cand.Symbol, err)
		}
		v.Probability = proba[1]
		admitted = v.Probability >= g.cfg.ProbabilityThreshold
	} else {
		v.Probability = math.Min(v.Score.Total/MaxRuleScore, 1)
		admitted = v.Score.Total >= g.cfg.RuleThreshold
	}
	v.Diagnosis = Diagnose(f, v.Probability, admitted, g.cfg.Diagnostics)

	if !admitted {
		v.Reason = "below threshold"
		return v, nil
	}
	if g.crowded(dir, cand.FundingRate) {
		v.Reason = fmt.Sprintf("funding rate %.4f%% too crowded", cand.FundingRate*100)
		return v, nil
	}

	entry := cand.Price
	if entry <= 0 {
		entry = f.Close
	}
	atr, err := calculator.CalculateATR(g.entryBars(fr), g.cfg.ATRPeriod)
	if err != nil {
		return nil, fmt.Errorf("atr %s: %w", cand.Symbol, err)
	}
	if entry <= 0 || atr <= 0 {
		v.Reason = "no usable volatility"
		return v, nil
	}

	v.Alert = &model.Alert{
		ID:            uuid.NewString(),
		Symbol:        cand.Symbol,
		Direction:     dir,
		EntryPrice:    entry,
		Score:         v.Score.Total,
		Probability:   v.Probability,
		SuggestedSize: SizeFor(v.Probability, atr/entry, g.cfg.SizeTiers),
		Risk:          RiskFor(dir, entry, atr, g.cfg.StopATR, g.cfg.TargetATR),
		Scenario:      ScenarioFor(dir, cand.Pattern),
		Timeframe:     g.cfg.EntryTimeframe,
		CreatedAt:     g.now().UTC(),
	}
	return v, nil
}

func (g *Gate) fetchFrames(ctx context.Context, symbol string) (Frames, error) {
	var fr Frames
	for _, f := range []struct {
		tf  model.Timeframe
		dst *[]model.Candle
	}{{model.TF1h, &fr.H1}, {model.TF4h, &fr.H4}, {model.TF1d, &fr.D1}, {model.TF5m, &fr.M5}} {
		bars, err := g.fetcher.FetchOHLCV(ctx, symbol, f.tf, g.cfg.FeatureLimit)
		if err != nil {
			return Frames{}, fmt.Errorf("fetch %s %s: %w", symbol, f.tf, err)
		}
		*f.dst = model.Closed(bars)
	}
	return fr, nil
}

func (g *Gate) entryBars(fr Frames) []model.Candle {
	switch g.cfg.EntryTimeframe {
	case model.TF4h:
		return fr.H4
	case model.TF1d:
		return fr.D1
	case model.TF5m:
		return fr.M5
	default:
		return fr.H1
	}
}

// crowded rejects a short into deeply negative funding, and a long into
// the mirrored positive funding.
func (g *Gate) crowded(dir model.Direction, funding float64) bool {
	if dir == model.Short {
		return funding < g.cfg.MaxNegativeFundingRate
	}
	return funding > -g.cfg.MaxNegativeFundingRate
}

// SizeFor steps through tiers by probability per unit of normalized ATR.
func SizeFor(probability, atrNorm float64, tiers []SizeTier) float64 {
	if len(tiers) == 0 {
		tiers = DefaultSizeTiers()
	}
	floor := tiers[len(tiers)-1].Size
	if atrNorm <= 0 {
		return floor
	}
	quality := probability / atrNorm
	for _, t := range tiers {
		if quality >= t.MinQuality {
			return t.Size
		}
	}
	return floor
}

// RiskFor places the stop against the trade and the target with it.
func RiskFor(dir model.Direction, entry, atr, stopMult, targetMult float64) model.RiskLevels {
	s := dir.Sign()
	return model.RiskLevels{
		ATR:        atr,
		StopLoss:   entry - s*atr*stopMult,
		TakeProfit: entry + s*atr*targetMult,
	}
}

// ScenarioFor tags a trade with the reversal pattern that agrees with it.
func ScenarioFor(dir model.Direction, p model.PatternKind) string {
	if p != "" && p.Bearish() == (dir == model.Short) {
		return string(p)
	}
	return "climax"
}

// DiagnosisKind buckets a candidate for the operator.
type DiagnosisKind string

const (
	DiagnosisReady      DiagnosisKind = "ready"
	DiagnosisTooLate    DiagnosisKind = "too_late"
	DiagnosisDeveloping DiagnosisKind = "developing"
)

// Diagnosis explains where a candidate stands.
type Diagnosis struct {
	Kind    DiagnosisKind
	Missing []string
}

func (d Diagnosis) String() string {
	if len(d.Missing) == 0 {
		return string(d.Kind)
	}
	return string(d.Kind) + ": " + strings.Join(d.Missing, ", ")
}

// Diagnose classifies a candidate as ready, too late, or developing with the
// conditions it still lacks.
func Diagnose(f Features, probability float64, admitted bool, d Diagnostics) Diagnosis {
	if admitted {
		return Diagnosis{Kind: DiagnosisReady}
	}
	if probability < d.TooLateProbability && f.RSI4h > d.ExtremeRSI {
		return Diagnosis{Kind: DiagnosisTooLate}
	}
	var missing []string
	if f.RSI4h < d.ExtremeRSI {
		missing = append(missing, fmt.Sprintf("rsi 4h %.1f not extreme", f.RSI4h))
	}
	if f.VolumeSpike < d.VolumeSpike {
		missing = append(missing, fmt.Sprintf("5m volume %.1fx low", f.VolumeSpike))
	}
	if f.DistanceMA24 < d.ExtendedDistance {
		missing = append(missing, "price not overextended")
	}
	if len(missing) == 0 {
		missing = append(missing, "pattern unclear")
	}
	return Diagnosis{Kind: DiagnosisDeveloping, Missing: missing}
}
