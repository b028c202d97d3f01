package strategy

import (
	"fmt"
	"math"
	"time"

	"ClimaxHunter/internal/calculator"
	"ClimaxHunter/internal/model"
)

// FeatureNames is the fixed classifier input contract, in order.
var FeatureNames = []string{
	"change_1h",
	"change_4h",
	"change_12h",
	"change_24h",
	"btc_change_24h",
	"eth_change_24h",
	"rsi_1d",
	"rsi_4h",
	"distance_from_ma_24h",
	"volume_spike_5m",
	"quality_score",
}

// Features describes one symbol at the close of its last closed 1h bar. All
// directional values are oriented to the move being faded: for a long entry
// after a dump, changes and distance are negated and RSI is mirrored, so
// larger always means more exhausted.
type Features struct {
	Change1h     float64
	Change4h     float64
	Change12h    float64
	Change24h    float64
	BTCChange24h float64
	ETHChange24h float64
	RSI1d        float64
	RSI4h        float64
	DistanceMA24 float64
	VolumeSpike  float64
	QualityScore float64

	// Inputs kept for scoring and diagnostics, not part of the vector.
	Close     float64
	Extreme   float64 // running high (short) or low (long) of the 1h series
	OffPeak   bool    // close has backed off the extreme by more than 2%
	At        time.Time
	Direction model.Direction
}

// Vector returns the values in FeatureNames order.
func (f Features) Vector() []float64 {
	return []float64{
		f.Change1h, f.Change4h, f.Change12h, f.Change24h,
		f.BTCChange24h, f.ETHChange24h,
		f.RSI1d, f.RSI4h,
		f.DistanceMA24, f.VolumeSpike, f.QualityScore,
	}
}

// Frames holds the closed series a feature row is built from.
type Frames struct {
	H1 []model.Candle
	H4 []model.Candle
	D1 []model.Candle
	M5 []model.Candle
}

// Majors holds the closed 1h series of the reference markets.
type Majors struct {
	BTC []model.Candle
	ETH []model.Candle
}

const (
	rsiPeriod         = 14
	maPeriod          = 24
	volumeSpikeWindow = 12
	offPeakRatio      = 0.02
)

// BuildFeatures computes the feature row for a trade in direction dir. The
// lower timeframes are joined onto the close of the last 1h bar with a
// strictly backward as-of lookup.
func BuildFeatures(fr Frames, mj Majors, dir model.Direction) (Features, error) {
	if len(fr.H1) < maPeriod+1 {
		return Features{}, fmt.Errorf("1h series: %w", calculator.ErrInsufficientData)
	}
	orient := -dir.Sign()
	closes := calculator.Closes(fr.H1)
	last := fr.H1[len(fr.H1)-1]
	at := last.Time.Add(model.TF1h.Duration())

	f := Features{Close: last.Close, At: at, Direction: dir}

	var err error
	for _, c := range []struct {
		periods int
		dst     *float64
	}{{1, &f.Change1h}, {4, &f.Change4h}, {12, &f.Change12h}, {24, &f.Change24h}} {
		var v float64
		if v, err = calculator.PctChange(closes, c.periods); err != nil {
			return Features{}, fmt.Errorf("change %dh: %w", c.periods, err)
		}
		*c.dst = v * orient
	}

	ma, err := calculator.CalculateSMA(closes, maPeriod)
	if err != nil || last.Close == 0 {
		return Features{}, fmt.Errorf("24h mean: %w", calculator.ErrInsufficientData)
	}
	f.DistanceMA24 = (last.Close - ma) / last.Close * orient

	high, low, err := calculator.RunningExtremes(fr.H1)
	if err != nil {
		return Features{}, err
	}
	if dir == model.Short {
		f.Extreme = high
		f.OffPeak = last.Close < high*(1-offPeakRatio)
	} else {
		f.Extreme = low
		f.OffPeak = last.Close > low*(1+offPeakRatio)
	}

	if f.RSI4h, err = rsiAsOf(fr.H4, model.TF4h, at); err != nil {
		return Features{}, fmt.Errorf("rsi 4h: %w", err)
	}
	if f.RSI1d, err = rsiAsOf(fr.D1, model.TF1d, at); err != nil {
		return Features{}, fmt.Errorf("rsi 1d: %w", err)
	}
	if orient < 0 {
		f.RSI4h = 100 - f.RSI4h
		f.RSI1d = 100 - f.RSI1d
	}

	if f.VolumeSpike, err = volumeSpikeAsOf(fr.M5, at); err != nil {
		return Features{}, fmt.Errorf("volume spike 5m: %w", err)
	}

	if f.BTCChange24h, err = changeAsOf(mj.BTC, at); err != nil {
		return Features{}, fmt.Errorf("btc change 24h: %w", err)
	}
	if f.ETHChange24h, err = changeAsOf(mj.ETH, at); err != nil {
		return Features{}, fmt.Errorf("eth change 24h: %w", err)
	}
	f.BTCChange24h *= orient
	f.ETHChange24h *= orient

	f.QualityScore = RuleScore(f).Total
	return f, nil
}

func rsiAsOf(bars []model.Candle, tf model.Timeframe, at time.Time) (float64, error) {
	rsi, err := calculator.RSISeries(bars, rsiPeriod)
	if err != nil {
		return 0, err
	}
	return lookup(calculator.NewCloseSeries(bars, tf.Duration(), rsi), at)
}

func volumeSpikeAsOf(bars []model.Candle, at time.Time) (float64, error) {
	if len(bars) < volumeSpikeWindow {
		return 0, calculator.ErrInsufficientData
	}
	vols := calculator.Volumes(bars)
	means := calculator.RollingMean(vols, volumeSpikeWindow)
	spikes := make([]float64, len(vols))
	for i := range vols {
		if i < volumeSpikeWindow-1 || means[i] == 0 {
			spikes[i] = math.NaN()
			continue
		}
		spikes[i] = vols[i] / means[i]
	}
	return lookup(calculator.NewCloseSeries(bars, model.TF5m.Duration(), spikes), at)
}

func changeAsOf(bars []model.Candle, at time.Time) (float64, error) {
	closes := calculator.Closes(bars)
	changes := make([]float64, len(closes))
	for i := range closes {
		if i < maPeriod || closes[i-maPeriod] == 0 {
			changes[i] = math.NaN()
			continue
		}
		changes[i] = closes[i]/closes[i-maPeriod] - 1
	}
	return lookup(calculator.NewCloseSeries(bars, model.TF1h.Duration(), changes), at)
}

func lookup(s calculator.Series, at time.Time) (float64, error) {
	v, ok := s.AsOf(at)
	if !ok || math.IsNaN(v) {
		return 0, calculator.ErrInsufficientData
	}
	return v, nil
}
