package evaluator

import (
	"fmt"
	"math"
	"time"

	"ClimaxHunter/internal/calculator"
	"ClimaxHunter/internal/model"
)

// Exit reasons, in rule priority order.
const (
	ReasonTrailing  = "trailing without volume"
	ReasonTarget    = "target reached"
	ReasonNoIntent  = "profitable without continuation intent"
	ReasonStructure = "reversal with structure loss"
	ReasonTimeStop  = "stalled, time-stop"
)

// Config tunes the close rules.
type Config struct {
	Default        Scenario            `yaml:"default"`
	Scenarios      map[string]Scenario `yaml:"scenarios"`
	Limit          int                 `yaml:"limit" default:"200" validate:"gt=21"`
	VolumeWindow   int                 `yaml:"volume_window" default:"20" validate:"gt=0"`
	EMASpan        int                 `yaml:"ema_span" default:"21" validate:"gt=0"`
	FirmBody       float64             `yaml:"firm_body" default:"0.45"`
	IntentVolume   float64             `yaml:"intent_volume" default:"1.1"`
	StructureBand  float64             `yaml:"structure_band" default:"0.005"`
	MaxHoldCandles int                 `yaml:"max_hold_candles" default:"6" validate:"gt=0"`
	MinProgress    float64             `yaml:"min_progress" default:"0.5"`
}

// DefaultConfig returns the stock rules.
func DefaultConfig() Config {
	return Config{
		Default:        Scenario{Target: 3.5, TrailingGap: 1.0},
		Scenarios:      DefaultScenarios(),
		Limit:          200,
		VolumeWindow:   20,
		EMASpan:        21,
		FirmBody:       0.45,
		IntentVolume:   1.1,
		StructureBand:  0.005,
		MaxHoldCandles: 6,
		MinProgress:    0.5,
	}
}

// Decision is a close verdict on one candle.
type Decision struct {
	Index     int
	ExitTime  time.Time
	ExitPrice float64
	ChangePct float64
	Reason    string
	Candles   int // candles held, counting the exit candle
	Scenario  Scenario
}

func (d Decision) String() string {
	return fmt.Sprintf("%s at %.6g (%+.2f%%) after %d candles", d.Reason, d.ExitPrice, d.ChangePct, d.Candles)
}

// Evaluator walks candles after entry and applies the exit rules.
type Evaluator struct {
	cfg Config
}

// New creates an Evaluator. Zero Default thresholds fall back to the stock ones.
func New(cfg Config) *Evaluator {
	def := DefaultConfig()
	if cfg.Default.Target == 0 {
		cfg.Default = def.Default
	}
	if cfg.Scenarios == nil {
		cfg.Scenarios = def.Scenarios
	}
	if cfg.VolumeWindow <= 0 {
		cfg.VolumeWindow = def.VolumeWindow
	}
	if cfg.EMASpan <= 0 {
		cfg.EMASpan = def.EMASpan
	}
	if cfg.MaxHoldCandles <= 0 {
		cfg.MaxHoldCandles = def.MaxHoldCandles
	}
	return &Evaluator{cfg: cfg}
}

// ScenarioFor resolves a scenario tag, falling back to the default thresholds.
func (e *Evaluator) ScenarioFor(tag string) Scenario {
	if s, ok := e.cfg.Scenarios[tag]; ok {
		return s
	}
	return e.cfg.Default
}

// Evaluate scans closed candles strictly after the position's entry time and
// returns the first exit, or nil when no rule fires. Indicators are computed
// over the whole series so candles before entry warm them up; until a full
// volume window exists the volume conditions are false. The result is
// a pure function of the position and candles.
func (e *Evaluator) Evaluate(pos model.Position, candles []model.Candle) *Decision {
	if len(candles) == 0 || pos.EntryPrice <= 0 {
		return nil
	}
	sc := e.ScenarioFor(pos.Scenario)
	vols := calculator.Volumes(candles)
	volMean := calculator.RollingWindowMean(vols, e.cfg.VolumeWindow)
	ema := calculator.EMA(calculator.Closes(candles), e.cfg.EMASpan)

	held := 0
	for i, c := range candles {
		if !c.Time.After(pos.OpenedAt) {
			continue
		}
		held++

		change := model.RealizedPct(pos.Direction, pos.EntryPrice, c.Close)
		intent := e.intent(pos.Direction, c, volMean[i])
		structureLost := e.structureLost(pos.Direction, c.Close, ema[i])

		var reason string
		switch {
		case change > sc.Target+sc.TrailingGap && c.Volume < volMean[i]:
			reason = ReasonTrailing
		case change > sc.Target:
			reason = ReasonTarget
		case change > 0 && !intent:
			reason = ReasonNoIntent
		case change <= 0 && structureLost && !intent:
			reason = ReasonStructure
		case held >= e.cfg.MaxHoldCandles && change < e.cfg.MinProgress:
			reason = ReasonTimeStop
		default:
			continue
		}
		return &Decision{
			Index:     i,
			ExitTime:  c.Time,
			ExitPrice: c.Close,
			ChangePct: change,
			Reason:    reason,
			Candles:   held,
			Scenario:  sc,
		}
	}
	return nil
}

// intent is a firm candle closing with the trade on above-average volume.
func (e *Evaluator) intent(dir model.Direction, c model.Candle, volMean float64) bool {
	with := c.Close > c.Open
	if dir == model.Short {
		with = c.Close < c.Open
	}
	firm := math.Abs(c.Close-c.Open) > (c.High-c.Low)*e.cfg.FirmBody
	return with && firm && c.Volume > volMean*e.cfg.IntentVolume
}

func (e *Evaluator) structureLost(dir model.Direction, close, ema float64) bool {
	if dir == model.Short {
		return close > ema*(1+e.cfg.StructureBand)
	}
	return close < ema*(1-e.cfg.StructureBand)
}
