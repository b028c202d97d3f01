package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"ClimaxHunter/internal/model"
	"ClimaxHunter/internal/strategy"
)

// FormatAlert formats a new alert for the operator.
func FormatAlert(a model.Alert) string {
	var b strings.Builder

	icon := "🔻"
	if a.Direction == model.Long {
		icon = "🔺"
	}
	b.WriteString(fmt.Sprintf("%s <b>%s %s</b> | %s\n\n", icon, strings.ToUpper(string(a.Direction)), a.Symbol, a.CreatedAt.UTC().Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("Score: %.0f | Probability: %.0f%%\n", a.Score, a.Probability*100))
	b.WriteString(fmt.Sprintf("Entry: %.6g\n", a.EntryPrice))
	b.WriteString(fmt.Sprintf("Stop: %.6g | Target: %.6g (ATR %.4g)\n", a.Risk.StopLoss, a.Risk.TakeProfit, a.Risk.ATR))
	b.WriteString(fmt.Sprintf("Size: %.0f USDT | Scenario: %s\n", a.SuggestedSize, html.EscapeString(a.Scenario)))
	b.WriteString(fmt.Sprintf("\nID: <code>%s</code>", a.ID))
	return b.String()
}

// FormatClose formats an automatic or manual close.
func FormatClose(c model.ClosedPosition) string {
	var b strings.Builder
	icon := "✅"
	if c.RealizedPct != nil && *c.RealizedPct <= 0 {
		icon = "❌"
	}
	tag := ""
	if c.State == model.StateRejectedVirtual {
		tag = " (virtual)"
	}
	b.WriteString(fmt.Sprintf("%s <b>Closed %s %s</b>%s\n\n", icon, strings.ToUpper(string(c.Direction)), c.Symbol, tag))
	b.WriteString(fmt.Sprintf("Entry: %.6g", c.EntryPrice))
	if c.ExitPrice != nil {
		b.WriteString(fmt.Sprintf(" | Exit: %.6g", *c.ExitPrice))
	}
	b.WriteString("\n")
	if c.RealizedPct != nil {
		b.WriteString(fmt.Sprintf("Result: %+.2f%%\n", *c.RealizedPct))
	}
	b.WriteString(fmt.Sprintf("Reason: %s", html.EscapeString(c.ExitReason)))
	return b.String()
}

// DailySummary aggregates the trades closed in one day.
type DailySummary struct {
	Day       time.Time
	Total     int
	Winners   int
	Losers    int
	Best      *model.ClosedPosition
	Worst     *model.ClosedPosition
	Scenarios []ScenarioCount
}

// ScenarioCount is a scenario tag and the number of trades carrying it.
type ScenarioCount struct {
	Scenario string
	Count    int
}

// Summarize builds the summary. Ledger entries without a realized result are
// ignored.
func Summarize(day time.Time, closed []model.ClosedPosition) DailySummary {
	s := DailySummary{Day: day}
	counts := map[string]int{}
	for i := range closed {
		c := &closed[i]
		if c.RealizedPct == nil {
			continue
		}
		s.Total++
		if *c.RealizedPct > 0 {
			s.Winners++
		} else {
			s.Losers++
		}
		if s.Best == nil || *c.RealizedPct > *s.Best.RealizedPct {
			s.Best = c
		}
		if s.Worst == nil || *c.RealizedPct < *s.Worst.RealizedPct {
			s.Worst = c
		}
		counts[c.Scenario]++
	}
	for tag, n := range counts {
		s.Scenarios = append(s.Scenarios, ScenarioCount{Scenario: tag, Count: n})
	}
	sort.Slice(s.Scenarios, func(i, j int) bool {
		if s.Scenarios[i].Count != s.Scenarios[j].Count {
			return s.Scenarios[i].Count > s.Scenarios[j].Count
		}
		return s.Scenarios[i].Scenario < s.Scenarios[j].Scenario
	})
	return s
}

// FormatDailySummary formats a daily summary report.
func FormatDailySummary(s DailySummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 <b>Daily summary</b> | %s\n\n", s.Day.UTC().Format("2006-01-02")))
	if s.Total == 0 {
		b.WriteString("No trades closed.")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Closed: %d | Winners: %d | Losers: %d\n", s.Total, s.Winners, s.Losers))
	b.WriteString(fmt.Sprintf("Best: %s %+.2f%%\n", s.Best.Symbol, *s.Best.RealizedPct))
	b.WriteString(fmt.Sprintf("Worst: %s %+.2f%%\n", s.Worst.Symbol, *s.Worst.RealizedPct))
	b.WriteString("Scenarios:")
	for i, sc := range s.Scenarios {
		if i == 3 {
			break
		}
		b.WriteString(fmt.Sprintf(" %s×%d", sc.Scenario, sc.Count))
	}
	return b.String()
}

// FormatCycleReport renders the momentum watchlist and the acceleration and
// reversal rankings.
func FormatCycleReport(watch []model.MomentumCandidate, accel []model.AccelerationCandidate, reversals []model.ReversalSignal, now time.Time) string {
	var b strings.Builder
	b.WriteString("Momentum watchlist:\n")
	if len(watch) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, m := range watch {
		ratio := "n/a"
		if m.Acceleration > 0 {
			ratio = fmt.Sprintf("%.2f", m.Acceleration)
		}
		b.WriteString(fmt.Sprintf("  %d. %s momentum=%+.2f%% accel×%s\n", i+1, m.Symbol, m.MomentumPct, ratio))
	}
	b.WriteString("Acceleration ranking:\n")
	if len(accel) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, a := range accel {
		strong := ""
		if a.IsStrong {
			strong = " 🔥"
		}
		b.WriteString(fmt.Sprintf("  %d. %s %s score=%.4f change=%+.2f%% vol×%.2f%s\n",
			i+1, a.Symbol, strategy.DirectionFor(a.ChangePct), a.Score, a.ChangePct*100, a.VolumeMultiple, strong))
	}
	b.WriteString("Reversal ranking:\n")
	if len(reversals) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, r := range reversals {
		ago := int(now.Sub(r.CandleTime).Minutes())
		b.WriteString(fmt.Sprintf("  %d. %s %s %dm ago\n", i+1, r.Symbol, r.Pattern, ago))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatAlertsList lists pending alerts.
func FormatAlertsList(alerts []model.Alert) string {
	if len(alerts) == 0 {
		return "No pending alerts."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>Pending alerts</b> (%d)\n", len(alerts)))
	for _, a := range alerts {
		b.WriteString(fmt.Sprintf("• %s %s @ %.6g p=%.2f <code>%s</code>\n", a.Symbol, a.Direction, a.EntryPrice, a.Probability, a.ID))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatOpenList lists open positions.
func FormatOpenList(open []model.Position) string {
	if len(open) == 0 {
		return "No open positions."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📂 <b>Open positions</b> (%d)\n", len(open)))
	for _, p := range open {
		state := ""
		if p.State == model.StateRejectedVirtual {
			state = " (virtual)"
		}
		b.WriteString(fmt.Sprintf("• %s %s @ %.6g since %s%s <code>%s</code>\n",
			p.Symbol, p.Direction, p.EntryPrice, p.OpenedAt.UTC().Format("01-02 15:04"), state, p.ID))
	}
	return strings.TrimRight(b.String(), "\n")
}
