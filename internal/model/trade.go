package model

import "time"

// PositionState distinguishes real positions from shadow-tracked ones.
type PositionState string

const (
	StateAccepted        PositionState = "accepted"
	StateRejectedVirtual PositionState = "rejected-virtual"
)

// RiskLevels are the ATR-derived stop and target prices.
type RiskLevels struct {
	ATR        float64 `json:"atr"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// Alert is an admitted signal awaiting an operator decision.
type Alert struct {
	ID            string     `json:"id"`
	Symbol        string     `json:"symbol"`
	Direction     Direction  `json:"direction"`
	EntryPrice    float64    `json:"entry_price"`
	Score         float64    `json:"score"`
	Probability   float64    `json:"probability"`
	SuggestedSize float64    `json:"suggested_size"`
	Risk          RiskLevels `json:"risk_levels"`
	Scenario      string     `json:"scenario"`
	Timeframe     Timeframe  `json:"timeframe"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Position is an open trade.
type Position struct {
	ID          string        `json:"id"`
	AlertID     string        `json:"alert_id,omitempty"`
	Symbol      string        `json:"symbol"`
	Direction   Direction     `json:"direction"`
	EntryPrice  float64       `json:"entry_price"`
	TakeProfit  float64       `json:"take_profit"`
	StopLoss    float64       `json:"stop_loss"`
	Size        float64       `json:"size"`
	Probability float64       `json:"probability"`
	Scenario    string        `json:"scenario"`
	Timeframe   Timeframe     `json:"timeframe"`
	OpenedAt    time.Time     `json:"opened_at"`
	State       PositionState `json:"state"`
}

// ClosedPosition is a ledger entry. ExitPrice and ExitTime are nil for
// alerts rejected without shadow tracking.
type ClosedPosition struct {
	Position
	ExitPrice   *float64   `json:"exit_price"`
	ExitTime    *time.Time `json:"exit_time"`
	ExitReason  string     `json:"exit_reason"`
	RealizedPct *float64   `json:"realized_pct"`
	ClosedAt    time.Time  `json:"closed_at"`
}

// RealizedPct returns the signed return of a trade in percent.
func RealizedPct(dir Direction, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	if dir == Short {
		return (entry - exit) / entry * 100
	}
	return (exit - entry) / entry * 100
}
