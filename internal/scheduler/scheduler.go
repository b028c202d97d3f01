package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"ClimaxHunter/internal/collector"
	"ClimaxHunter/internal/detector"
	"ClimaxHunter/internal/evaluator"
	"ClimaxHunter/internal/lifecycle"
	"ClimaxHunter/internal/metrics"
	"ClimaxHunter/internal/model"
	"ClimaxHunter/internal/notifier"
	"ClimaxHunter/internal/radar"
	"ClimaxHunter/internal/recorder"
	"ClimaxHunter/internal/strategy"
)

// Config tunes the cycle cadence and alert admission.
type Config struct {
	Refresh           time.Duration `yaml:"refresh" default:"150s" validate:"gt=0"`
	ErrorBackoff      time.Duration `yaml:"error_backoff" default:"60s" validate:"gte=0"`
	SummaryCron       string        `yaml:"summary_cron" default:"0 55 23 * * *"`
	MaxOpenPositions  int           `yaml:"max_open_positions" default:"6" validate:"gt=0"`
	MaxAlertsPerCycle int           `yaml:"max_alerts_per_cycle" default:"1" validate:"gt=0"`
	ReportTop         int           `yaml:"report_top" default:"5" validate:"gt=0"`
}

// Deps are the components one cycle drives.
type Deps struct {
	Fetcher   collector.Fetcher
	Radar     *radar.Radar
	Detector  *detector.Detector
	Gate      *strategy.Gate
	Store     *lifecycle.Store
	Evaluator *evaluator.Evaluator
	EvalLimit int
	Notifier  notifier.Notifier
	Recorder  recorder.Recorder
	Metrics   *metrics.Metrics // optional
	// BreakerState reports the exchange breaker, if any.
	BreakerState func() string
}

// Report summarizes one cycle.
type Report struct {
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Liquid        int           `json:"liquid"`
	Watchlist     int           `json:"watchlist"`
	Accelerations int           `json:"accelerations"`
	Reversals     int           `json:"reversals"`
	Scored        int           `json:"scored"`
	Alerts        int           `json:"alerts"`
	Closes        int           `json:"closes"`
	Skipped       int           `json:"skipped"`
}

// Status is the orchestrator state exposed on /status.
type Status struct {
	Cycles    int     `json:"cycles"`
	LastCycle *Report `json:"last_cycle,omitempty"`
	LastError string  `json:"last_error,omitempty"`
	Breaker   string  `json:"breaker,omitempty"`
}

// Orchestrator runs Radar, Detector, Gate, Lifecycle and Evaluator in order,
// once per refresh period.
type Orchestrator struct {
	cfg  Config
	deps Deps
	cron *cron.Cron

	history *radar.History
	now     func() time.Time

	mu     sync.Mutex
	status Status
}

// New creates an Orchestrator.
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notifier.LogNotifier{}
	}
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.EvalLimit <= 0 {
		deps.EvalLimit = evaluator.DefaultConfig().Limit
	}
	return &Orchestrator{
		cfg:  cfg,
		deps: deps,
		cron: cron.New(cron.WithSeconds()),
		now:  time.Now,
	}
}

// Run loops until ctx is cancelled. The wait after each cycle is the
// remainder of the refresh period; an overrun starts the next cycle at once
// and a failed cycle waits ErrorBackoff instead.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Dur("refresh", o.cfg.Refresh).Msg("orchestrator started")
	for {
		start := time.Now()
		rep, err := o.RunCycle(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("orchestrator stopped")
			return nil
		}
		elapsed := time.Since(start)
		overrun := elapsed > o.cfg.Refresh
		wait := o.cfg.Refresh - elapsed

		switch {
		case err != nil:
			log.Error().Err(err).Dur("backoff", o.cfg.ErrorBackoff).Msg("cycle failed")
			wait = o.cfg.ErrorBackoff
		case overrun:
			log.Warn().Dur("elapsed", elapsed).Dur("refresh", o.cfg.Refresh).Msg("cycle overran the refresh period")
			wait = 0
		}
		o.finish(start, elapsed, rep, err, overrun)

		if wait <= 0 {
			continue
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			log.Info().Msg("orchestrator stopped")
			return nil
		case <-t.C:
		}
	}
}

func (o *Orchestrator) finish(start time.Time, elapsed time.Duration, rep *Report, err error, overrun bool) {
	evt := &recorder.CycleEvent{StartedAt: start, Duration: elapsed, Overrun: overrun}
	if rep != nil {
		evt.Liquid, evt.Watchlist = rep.Liquid, rep.Watchlist
		evt.Accelerations, evt.Reversals = rep.Accelerations, rep.Reversals
		evt.Scored, evt.Alerts, evt.Closes, evt.Skipped = rep.Scored, rep.Alerts, rep.Closes, rep.Skipped
	}
	if err != nil {
		evt.Err = err.Error()
	}
	if rerr := o.deps.Recorder.RecordCycle(evt); rerr != nil {
		log.Error().Err(rerr).Msg("record cycle")
	}
	if m := o.deps.Metrics; m != nil {
		m.ObserveCycle(elapsed, err, overrun)
		if o.deps.BreakerState != nil {
			m.SetBreakerOpen(o.deps.BreakerState() == "open")
		}
	}
}

// RunCycle performs one pass. Universe and persistence failures abort it;
// everything else only skips the affected symbol or position.
func (o *Orchestrator) RunCycle(ctx context.Context) (*Report, error) {
	now := o.now()
	rep := &Report{StartedAt: now}

	scan, hist, err := o.deps.Radar.Scan(ctx, o.history)
	if err != nil {
		o.setError(err)
		return rep, fmt.Errorf("radar: %w", err)
	}
	o.history = hist
	rep.Liquid, rep.Watchlist = scan.Liquid, len(scan.Watchlist)
	o.countSkips("radar", scan.Skipped, rep)

	found, err := o.deps.Detector.Analyze(ctx, scan.Symbols(), now)
	if err != nil {
		return rep, fmt.Errorf("detector: %w", err)
	}
	rep.Accelerations, rep.Reversals = len(found.Accelerations), len(found.Reversals)
	o.countSkips("detector", found.Skipped, rep)
	watch := scan.Watchlist
	if len(watch) > o.cfg.ReportTop {
		watch = watch[:o.cfg.ReportTop]
	}
	log.Info().Msg(notifier.FormatCycleReport(watch, found.TopAccelerations(o.cfg.ReportTop), found.LatestReversals(o.cfg.ReportTop), now))

	if err := o.admit(ctx, scan, found, rep); err != nil {
		o.setError(err)
		return rep, err
	}
	if err := o.evaluateOpen(ctx, rep); err != nil {
		o.setError(err)
		return rep, err
	}

	rep.Duration = o.now().Sub(now)
	o.mu.Lock()
	o.status.Cycles++
	r := *rep
	o.status.LastCycle = &r
	o.status.LastError = ""
	o.mu.Unlock()

	log.Info().Int("liquid", rep.Liquid).Int("watchlist", rep.Watchlist).Int("scored", rep.Scored).
		Int("alerts", rep.Alerts).Int("closes", rep.Closes).Int("skipped", rep.Skipped).Msg("cycle complete")
	return rep, nil
}

// admit scores the acceleration candidates and stores the best admitted ones.
func (o *Orchestrator) admit(ctx context.Context, scan *radar.Result, found *detector.Result, rep *Report) error {
	alerts, err := o.deps.Store.Alerts()
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}
	open, err := o.deps.Store.OpenPositions()
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	o.setOpenGauge(open)

	accepted := 0
	busy := make(map[string]bool, len(alerts)+len(open))
	for _, a := range alerts {
		busy[a.Symbol] = true
	}
	for _, p := range open {
		busy[p.Symbol] = true
		if p.State == model.StateAccepted {
			accepted++
		}
	}
	if accepted >= o.cfg.MaxOpenPositions {
		log.Warn().Int("accepted", accepted).Int("max", o.cfg.MaxOpenPositions).Msg("exposure cap reached, skipping scoring")
		return nil
	}

	var cands []strategy.Candidate
	for _, a := range found.TopAccelerations(len(found.Accelerations)) {
		if busy[a.Symbol] {
			log.Debug().Str("symbol", a.Symbol).Msg("already alerted or open")
			continue
		}
		c := strategy.Candidate{Symbol: a.Symbol, ChangePct: a.ChangePct, Price: a.LastClose}
		if t, ok := scan.Tickers[a.Symbol]; ok {
			c.FundingRate = t.FundingRate
			if t.Last > 0 {
				c.Price = t.Last
			}
		}
		c.Pattern = found.PatternFor(a.Symbol, strategy.DirectionFor(a.ChangePct) == model.Short)
		cands = append(cands, c)
	}
	if len(cands) == 0 {
		return nil
	}

	majors, err := o.deps.Gate.LoadMajors(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("majors unavailable, skipping scoring this cycle")
		return nil
	}

	var admitted []*model.Alert
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := o.deps.Gate.Evaluate(ctx, c, majors)
		if err != nil {
			log.Warn().Err(err).Str("symbol", c.Symbol).Msg("gate: symbol skipped")
			rep.Skipped++
			o.skip("gate", "score_failed")
			continue
		}
		rep.Scored++
		if v.Alert == nil {
			log.Info().Str("symbol", v.Symbol).Str("direction", string(v.Direction)).
				Float64("score", v.Score.Total).Float64("probability", v.Probability).
				Str("reason", v.Reason).Str("diagnosis", v.Diagnosis.String()).Msg("gate: not admitted")
			continue
		}
		admitted = append(admitted, v.Alert)
	}

	sort.SliceStable(admitted, func(i, j int) bool { return admitted[i].Probability > admitted[j].Probability })
	for _, a := range admitted {
		if rep.Alerts >= o.cfg.MaxAlertsPerCycle {
			break
		}
		stored, err := o.deps.Store.CreateAlert(ctx, *a)
		if errors.Is(err, lifecycle.ErrDuplicateAlert) || errors.Is(err, lifecycle.ErrDuplicatePosition) {
			log.Info().Str("symbol", a.Symbol).Err(err).Msg("alert not created")
			continue
		}
		if err != nil {
			return fmt.Errorf("create alert %s: %w", a.Symbol, err)
		}
		rep.Alerts++
		if m := o.deps.Metrics; m != nil {
			m.AlertCreated(string(stored.Direction))
		}
		if err := o.deps.Recorder.RecordAlert(&recorder.AlertEvent{
			Action: "created", AlertID: stored.ID, Symbol: stored.Symbol, Direction: string(stored.Direction),
			EntryPrice: stored.EntryPrice, Score: stored.Score, Probability: stored.Probability,
			Size: stored.SuggestedSize, Scenario: stored.Scenario,
		}); err != nil {
			log.Error().Err(err).Msg("record alert")
		}
		o.notify(ctx, notifier.FormatAlert(*stored))
	}
	return nil
}

// evaluateOpen runs the close rules over every open position.
func (o *Orchestrator) evaluateOpen(ctx context.Context, rep *Report) error {
	open, err := o.deps.Store.OpenPositions()
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	for _, p := range open {
		if err := ctx.Err(); err != nil {
			return err
		}
		tf := p.Timeframe
		if tf == "" {
			tf = model.TF1h
		}
		bars, err := o.deps.Fetcher.FetchOHLCV(ctx, p.Symbol, tf, o.deps.EvalLimit)
		if err != nil {
			log.Warn().Err(err).Str("symbol", p.Symbol).Msg("evaluator: fetch failed")
			rep.Skipped++
			o.skip("evaluator", string(model.SkipFetchFailed))
			continue
		}
		d := o.deps.Evaluator.Evaluate(p, model.Closed(bars))
		if d == nil {
			continue
		}
		closed, err := o.deps.Store.CloseAt(ctx, p.ID, d.ExitPrice, d.ExitTime, d.Reason)
		if errors.Is(err, lifecycle.ErrNotFound) {
			log.Info().Str("id", p.ID).Msg("position already closed elsewhere")
			continue
		}
		if err != nil {
			return fmt.Errorf("close %s: %w", p.Symbol, err)
		}
		rep.Closes++
		log.Info().Str("symbol", p.Symbol).Str("state", string(p.State)).Stringer("decision", d).Msg("position closed")
		if m := o.deps.Metrics; m != nil {
			m.PositionClosed(d.Reason, string(p.State))
		}
		if err := o.deps.Recorder.RecordClose(&recorder.CloseEvent{
			PositionID: p.ID, Symbol: p.Symbol, Direction: string(p.Direction), State: string(p.State),
			Scenario: p.Scenario, EntryPrice: p.EntryPrice, ExitPrice: d.ExitPrice, RealizedPct: d.ChangePct,
			Reason: d.Reason, OpenedAt: p.OpenedAt, ExitTime: d.ExitTime, Candles: d.Candles,
		}); err != nil {
			log.Error().Err(err).Msg("record close")
		}
		o.notify(ctx, notifier.FormatClose(*closed))
	}
	if rep.Closes > 0 {
		if left, err := o.deps.Store.OpenPositions(); err == nil {
			o.setOpenGauge(left)
		}
	}
	return nil
}

// StartCron schedules the daily summary.
func (o *Orchestrator) StartCron(ctx context.Context) error {
	if o.cfg.SummaryCron == "" {
		return nil
	}
	if _, err := o.cron.AddFunc(o.cfg.SummaryCron, func() { o.SendDailySummary(ctx) }); err != nil {
		return fmt.Errorf("register daily summary: %w", err)
	}
	o.cron.Start()
	log.Info().Str("spec", o.cfg.SummaryCron).Msg("daily summary scheduled")
	return nil
}

// StopCron waits for a running summary job to finish.
func (o *Orchestrator) StopCron() {
	<-o.cron.Stop().Done()
}

// DailySummary summarizes the trades closed since UTC midnight.
func (o *Orchestrator) DailySummary() (notifier.DailySummary, error) {
	day := o.now().UTC().Truncate(24 * time.Hour)
	closed, err := o.deps.Store.ClosedSince(day)
	if err != nil {
		return notifier.DailySummary{}, err
	}
	return notifier.Summarize(day, closed), nil
}

// SendDailySummary pushes today's summary to the notifier.
func (o *Orchestrator) SendDailySummary(ctx context.Context) {
	s, err := o.DailySummary()
	if err != nil {
		log.Error().Err(err).Msg("daily summary")
		return
	}
	o.notify(ctx, notifier.FormatDailySummary(s))
}

// HandleCommand answers the read-only chat commands.
func (o *Orchestrator) HandleCommand(command string) string {
	var name string
	if fields := strings.Fields(command); len(fields) > 0 {
		// Group chats address commands as /open@botname.
		name = strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])
	}
	switch name {
	case "/alerts":
		alerts, err := o.deps.Store.Alerts()
		if err != nil {
			return "Failed to load alerts: " + err.Error()
		}
		return notifier.FormatAlertsList(alerts)
	case "/open":
		open, err := o.deps.Store.OpenPositions()
		if err != nil {
			return "Failed to load positions: " + err.Error()
		}
		return notifier.FormatOpenList(open)
	case "/summary":
		s, err := o.DailySummary()
		if err != nil {
			return "Failed to load summary: " + err.Error()
		}
		return notifier.FormatDailySummary(s)
	default:
		return "Commands:\n/alerts - pending alerts\n/open - open positions\n/summary - today's closed trades"
	}
}

// Status returns a snapshot for the ops server.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.status
	if o.deps.BreakerState != nil {
		s.Breaker = o.deps.BreakerState()
	}
	return s
}

func (o *Orchestrator) setError(err error) {
	o.mu.Lock()
	o.status.LastError = err.Error()
	o.mu.Unlock()
}

func (o *Orchestrator) notify(ctx context.Context, text string) {
	if err := o.deps.Notifier.Notify(ctx, text); err != nil {
		log.Error().Err(err).Msg("send notification")
	}
}

func (o *Orchestrator) countSkips(phase string, skipped []model.SymbolOutcome, rep *Report) {
	rep.Skipped += len(skipped)
	for _, s := range skipped {
		o.skip(phase, string(s.Reason))
	}
}

func (o *Orchestrator) skip(phase, reason string) {
	if m := o.deps.Metrics; m != nil {
		m.Skipped(phase, reason)
	}
}

func (o *Orchestrator) setOpenGauge(open []model.Position) {
	m := o.deps.Metrics
	if m == nil {
		return
	}
	counts := map[model.PositionState]int{model.StateAccepted: 0, model.StateRejectedVirtual: 0}
	for _, p := range open {
		counts[p.State]++
	}
	for st, n := range counts {
		m.SetOpen(string(st), n)
	}
}
