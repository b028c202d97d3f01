package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"ClimaxHunter/internal/detector"
	"ClimaxHunter/internal/evaluator"
	"ClimaxHunter/internal/lifecycle"
	"ClimaxHunter/internal/metrics"
	"ClimaxHunter/internal/model"
	"ClimaxHunter/internal/notifier"
	"ClimaxHunter/internal/radar"
	"ClimaxHunter/internal/recorder"
	"ClimaxHunter/internal/scheduler"
	"ClimaxHunter/internal/strategy"
)

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "bot",
		Short:         "ClimaxHunter climax-reversal scanner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			a.close()
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", defaultConfigPath(), "path to the YAML config")

	root.AddCommand(runCmd(a), alertsCmd(a), positionsCmd(a), closedCmd(a), summaryCmd(a))
	return root
}

func runCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scan loop until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			guard, free, err := a.instanceLock(ctx)
			if err != nil {
				return err
			}
			defer free()
			if err := guard.Acquire(ctx); err != nil {
				return fmt.Errorf("acquire instance lock: %w", err)
			}
			defer func() {
				if err := guard.Release(context.Background()); err != nil {
					log.Error().Err(err).Msg("release instance lock")
				}
			}()

			fetcher := a.fetcher()
			log.Info().Str("source", fetcher.Name()).Msg("candle source ready")

			var classifier strategy.Classifier
			if cfg.Gate.ModelPath != "" {
				m, err := strategy.LoadLogisticModel(cfg.Gate.ModelPath)
				if err != nil {
					return err
				}
				classifier = m
				log.Info().Str("model", cfg.Gate.ModelPath).Msg("classifier loaded")
			} else {
				log.Info().Float64("threshold", cfg.Gate.RuleThreshold).Msg("no model configured, using rule score")
			}

			rec := a.openRecorder()
			defer rec.Close()

			var n notifier.Notifier = notifier.LogNotifier{}
			var tn *notifier.TelegramNotifier
			if cfg.Telegram.BotToken != "" {
				tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
				n = tn
			}

			var m *metrics.Metrics
			if cfg.Metrics.Enabled {
				m = metrics.New()
			}

			orch := scheduler.New(cfg.Schedule, scheduler.Deps{
				Fetcher:      fetcher,
				Radar:        radar.New(cfg.Radar, fetcher),
				Detector:     detector.New(cfg.Detector, fetcher),
				Gate:         strategy.NewGate(cfg.Gate, fetcher, classifier),
				Store:        a.store(),
				Evaluator:    evaluator.New(cfg.Evaluator),
				EvalLimit:    cfg.Evaluator.Limit,
				Notifier:     n,
				Recorder:     rec,
				Metrics:      m,
				BreakerState: fetcher.State,
			})

			if m != nil {
				srv := metrics.NewServer(cfg.Metrics.Addr, m, func() any { return orch.Status() })
				go func() {
					if err := srv.Run(ctx); err != nil {
						log.Error().Err(err).Msg("ops server")
					}
				}()
			}
			if err := orch.StartCron(ctx); err != nil {
				return err
			}
			defer orch.StopCron()

			if tn != nil && cfg.Telegram.Polling {
				go tn.StartPolling(ctx, orch.HandleCommand)
				log.Info().Msg("telegram polling started")
			}

			log.Info().Msg("ClimaxHunter is running. Press Ctrl+C to stop.")
			return orch.Run(ctx)
		},
	}
}

func alertsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "alerts", Short: "List and decide pending alerts"}

	list := &cobra.Command{
		Use:  "list",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			alerts, err := a.store().Alerts()
			if err != nil {
				return err
			}
			printAlerts(cmd.OutOrStdout(), alerts)
			return nil
		},
	}

	var price float64
	accept := &cobra.Command{
		Use:   "accept <alert-id>",
		Short: "Open a position from an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := a.store().Accept(cmd.Context(), args[0], price)
			if err != nil {
				return err
			}
			a.audit("accepted", args[0], pos.Symbol, string(pos.Direction), pos.EntryPrice, pos.Probability, pos.Size, pos.Scenario)
			fmt.Fprintf(cmd.OutOrStdout(), "accepted %s %s %s at %.6g\n", pos.ID, pos.Symbol, pos.Direction, pos.EntryPrice)
			return nil
		},
	}
	accept.Flags().Float64Var(&price, "price", 0, "fill price (defaults to the alert's entry)")

	reject := &cobra.Command{
		Use:   "reject <alert-id>",
		Short: "Decline an alert, keeping it for shadow measurement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			al, err := a.store().Reject(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.audit("rejected", al.ID, al.Symbol, string(al.Direction), al.EntryPrice, al.Probability, al.SuggestedSize, al.Scenario)
			fmt.Fprintf(cmd.OutOrStdout(), "rejected %s\n", args[0])
			return nil
		},
	}

	void := &cobra.Command{
		Use:   "void <alert-id>",
		Short: "Discard an invalid alert without a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			al, err := a.store().Void(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.audit("voided", al.ID, al.Symbol, string(al.Direction), al.EntryPrice, al.Probability, al.SuggestedSize, al.Scenario)
			fmt.Fprintf(cmd.OutOrStdout(), "voided %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, accept, reject, void)
	return cmd
}

func positionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "positions", Short: "List, close and reopen positions"}

	list := &cobra.Command{
		Use:  "list",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			open, err := a.store().OpenPositions()
			if err != nil {
				return err
			}
			printOpen(cmd.OutOrStdout(), open)
			return nil
		},
	}

	var (
		price  float64
		reason string
	)
	closeCmd := &cobra.Command{
		Use:   "close <position-id>",
		Short: "Close a position manually",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if price <= 0 {
				return errors.New("--price is required")
			}
			c, err := a.store().Close(cmd.Context(), args[0], price, reason)
			if err != nil {
				return err
			}
			rec := a.openRecorder()
			defer rec.Close()
			evt := &recorder.CloseEvent{
				PositionID: c.ID, Symbol: c.Symbol, Direction: string(c.Direction), State: string(c.State),
				Scenario: c.Scenario, EntryPrice: c.EntryPrice, ExitPrice: price, Reason: c.ExitReason,
				OpenedAt: c.OpenedAt, ExitTime: c.ClosedAt,
			}
			if c.RealizedPct != nil {
				evt.RealizedPct = *c.RealizedPct
			}
			if err := rec.RecordClose(evt); err != nil {
				log.Error().Err(err).Msg("record close")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "closed %s %s at %.6g (%+.2f%%)\n", c.ID, c.Symbol, price, evt.RealizedPct)
			return nil
		},
	}
	closeCmd.Flags().Float64Var(&price, "price", 0, "exit price")
	closeCmd.Flags().StringVar(&reason, "reason", lifecycle.ReasonManual, "exit reason")

	reopen := &cobra.Command{
		Use:   "reopen <position-id>",
		Short: "Move a recently closed position back to the open set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := a.store().Reopen(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.audit("reopened", pos.ID, pos.Symbol, string(pos.Direction), pos.EntryPrice, pos.Probability, pos.Size, pos.Scenario)
			fmt.Fprintf(cmd.OutOrStdout(), "reopened %s %s %s at %.6g\n", pos.ID, pos.Symbol, pos.Direction, pos.EntryPrice)
			return nil
		},
	}

	cmd.AddCommand(list, closeCmd, reopen)
	return cmd
}

func closedCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "closed", Short: "Inspect the closed-position ledger"}
	var since time.Duration
	list := &cobra.Command{
		Use:  "list",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			closed, err := a.store().ClosedSince(time.Now().Add(-since))
			if err != nil {
				return err
			}
			printClosed(cmd.OutOrStdout(), closed)
			return nil
		},
	}
	list.Flags().DurationVar(&since, "since", 7*24*time.Hour, "how far back to list")
	cmd.AddCommand(list)
	return cmd
}

func summaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print today's closed-trade summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day := time.Now().UTC().Truncate(24 * time.Hour)
			closed, err := a.store().ClosedSince(day)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, notifier.FormatDailySummary(notifier.Summarize(day, closed)))

			rec := a.openRecorder()
			defer rec.Close()
			if sr, ok := rec.(*recorder.SQLiteRecorder); ok {
				total, winners, err := sr.WinRate(day.Add(-6 * 24 * time.Hour))
				if err != nil {
					return err
				}
				if total > 0 {
					fmt.Fprintf(out, "7d: %d closed, %.0f%% winners\n", total, float64(winners)/float64(total)*100)
				}
			}
			return nil
		},
	}
}

// audit logs an operator action and mirrors it into the history recorder.
func (a *app) audit(action, id, symbol, direction string, entry, prob, size float64, scenario string) {
	log.Info().Str("action", action).Str("id", id).Str("symbol", symbol).Msg("operator action")
	rec := a.openRecorder()
	defer rec.Close()
	if err := rec.RecordAlert(&recorder.AlertEvent{
		Action: action, AlertID: id, Symbol: symbol, Direction: direction,
		EntryPrice: entry, Probability: prob, Size: size, Scenario: scenario,
	}); err != nil {
		log.Error().Err(err).Msg("record operator action")
	}
}

func printAlerts(w io.Writer, alerts []model.Alert) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tDIR\tENTRY\tPROB\tSIZE\tSCENARIO\tCREATED")
	for _, x := range alerts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.6g\t%.2f\t%.0f\t%s\t%s\n", x.ID, x.Symbol, x.Direction, x.EntryPrice,
			x.Probability, x.SuggestedSize, x.Scenario, x.CreatedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

func printOpen(w io.Writer, open []model.Position) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tDIR\tENTRY\tSTOP\tTARGET\tSTATE\tOPENED")
	for _, p := range open {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.6g\t%.6g\t%.6g\t%s\t%s\n", p.ID, p.Symbol, p.Direction, p.EntryPrice,
			p.StopLoss, p.TakeProfit, p.State, p.OpenedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

func printClosed(w io.Writer, closed []model.ClosedPosition) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSYMBOL\tDIR\tENTRY\tEXIT\tRESULT\tREASON\tCLOSED")
	for _, c := range closed {
		exit, result := "-", "-"
		if c.ExitPrice != nil {
			exit = fmt.Sprintf("%.6g", *c.ExitPrice)
		}
		if c.RealizedPct != nil {
			result = fmt.Sprintf("%+.2f%%", *c.RealizedPct)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.6g\t%s\t%s\t%s\t%s\n", c.ID, c.Symbol, c.Direction, c.EntryPrice,
			exit, result, c.ExitReason, c.ClosedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}
