package calculator

import (
	"sort"
	"time"

	"ClimaxHunter/internal/model"
)

// Series is an indicator column keyed by bar time, in ascending time order.
type Series struct {
	Times  []time.Time
	Values []float64
}

// NewSeries pairs bar open times with indicator values.
func NewSeries(bars []model.Candle, values []float64) Series {
	n := len(bars)
	if len(values) < n {
		n = len(values)
	}
	s := Series{Times: make([]time.Time, n), Values: make([]float64, n)}
	for i := 0; i < n; i++ {
		s.Times[i] = bars[i].Time
		s.Values[i] = values[i]
	}
	return s
}

// AsOf returns the value of the latest entry whose time is at or before t.
// It never looks forward: an entry stamped after t is ignored even if it is
// the closest one.
func (s Series) AsOf(t time.Time) (float64, bool) {
	i := sort.Search(len(s.Times), func(i int) bool { return s.Times[i].After(t) })
	if i == 0 {
		return 0, false
	}
	return s.Values[i-1], true
}

// NewCloseSeries stamps each value with its bar's close time (open + d), so
// an as-of lookup only sees indicators whose bar had finished by then.
func NewCloseSeries(bars []model.Candle, d time.Duration, values []float64) Series {
	s := NewSeries(bars, values)
	for i := range s.Times {
		s.Times[i] = s.Times[i].Add(d)
	}
	return s
}
