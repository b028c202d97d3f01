package recorder

import "time"

// CycleEvent summarizes one orchestrator pass.
type CycleEvent struct {
	StartedAt     time.Time
	Duration      time.Duration
	Liquid        int
	Watchlist     int
	Accelerations int
	Reversals     int
	Scored        int
	Alerts        int
	Closes        int
	Skipped       int
	Overrun       bool
	Err           string
}

// AlertEvent records an alert being created or consumed.
type AlertEvent struct {
	Action      string // "created", "accepted", "rejected", "voided"
	AlertID     string
	Symbol      string
	Direction   string
	EntryPrice  float64
	Score       float64
	Probability float64
	Size        float64
	Scenario    string
}

// CloseEvent records a position moving into the ledger.
type CloseEvent struct {
	PositionID  string
	Symbol      string
	Direction   string
	State       string
	Scenario    string
	EntryPrice  float64
	ExitPrice   float64
	RealizedPct float64
	Reason      string
	OpenedAt    time.Time
	ExitTime    time.Time
	Candles     int
}

// Recorder persists historical data for analysis.
type Recorder interface {
	RecordCycle(evt *CycleEvent) error
	RecordAlert(evt *AlertEvent) error
	RecordClose(evt *CloseEvent) error
	Close() error
}
