package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ClimaxHunter/internal/lock"
	"ClimaxHunter/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateAlert    = errors.New("an alert for this symbol already exists")
	ErrDuplicatePosition = errors.New("a position for this symbol is already open")
	ErrReopenExpired     = errors.New("closed outside the reopen window")
)

// Exit reasons recorded by operator actions.
const (
	ReasonManual   = "manual close"
	ReasonRejected = "rejected"
)

// Config locates the state files and tunes operator actions.
type Config struct {
	DataDir        string        `yaml:"data_dir" default:"data"`
	AlertsFile     string        `yaml:"alerts_file" default:"alerts.json"`
	OpenFile       string        `yaml:"open_file" default:"open_positions.json"`
	ClosedFile     string        `yaml:"closed_file" default:"closed_positions.json"`
	ReopenWindow   time.Duration `yaml:"reopen_window" default:"48h" validate:"gt=0"`
	ShadowRejected bool          `yaml:"shadow_rejected"`
	LockTimeout    time.Duration `yaml:"lock_timeout" default:"5s" validate:"gt=0"`
	LockStale      time.Duration `yaml:"lock_stale" default:"30s" validate:"gt=0"`
}

// Store is the only writer of the three state sets. Every mutation reloads
// the sets under an in-process mutex and a cross-process file lock, applies
// the change, and writes the receiving set before the one it was taken from,
// so a failed write can leave a duplicate but never loses a record.
type Store struct {
	cfg    Config
	alerts string
	open   string
	closed string

	mu   sync.Mutex
	flck *lock.FileMutex
	now  func() time.Time
}

// NewStore creates a Store rooted at cfg.DataDir.
func NewStore(cfg Config) *Store {
	return &Store{
		cfg:    cfg,
		alerts: filepath.Join(cfg.DataDir, cfg.AlertsFile),
		open:   filepath.Join(cfg.DataDir, cfg.OpenFile),
		closed: filepath.Join(cfg.DataDir, cfg.ClosedFile),
		flck:   lock.NewFileMutex(filepath.Join(cfg.DataDir, ".store.lock"), cfg.LockTimeout, cfg.LockStale),
		now:    time.Now,
	}
}

// snapshot is the three sets as read under lock.
type snapshot struct {
	alerts []model.Alert
	open   []model.Position
	closed []model.ClosedPosition
}

func (s *Store) load() (*snapshot, error) {
	alerts, err := loadSet[model.Alert](s.alerts)
	if err != nil {
		return nil, err
	}
	open, err := loadSet[model.Position](s.open)
	if err != nil {
		return nil, err
	}
	closed, err := loadSet[model.ClosedPosition](s.closed)
	if err != nil {
		return nil, err
	}
	return &snapshot{alerts: alerts, open: open, closed: closed}, nil
}

// mutate runs fn with exclusive access to freshly loaded sets.
func (s *Store) mutate(ctx context.Context, fn func(*snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.flck.Lock(ctx)
	if err != nil {
		return fmt.Errorf("lock store: %w", err)
	}
	defer unlock()

	snap, err := s.load()
	if err != nil {
		return err
	}
	return fn(snap)
}

// view runs fn on freshly loaded sets without taking the file lock; writers
// only ever rename complete files into place.
func (s *Store) view(fn func(*snapshot)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.load()
	if err != nil {
		return err
	}
	fn(snap)
	return nil
}

// CreateAlert records a new alert unless the symbol already has one.
func (s *Store) CreateAlert(ctx context.Context, a model.Alert) (*model.Alert, error) {
	err := s.mutate(ctx, func(sn *snapshot) error {
		for _, existing := range sn.alerts {
			if existing.Symbol == a.Symbol {
				return fmt.Errorf("%w: %s (%s)", ErrDuplicateAlert, a.Symbol, existing.ID)
			}
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.now().UTC()
		}
		return saveSet(s.alerts, append(sn.alerts, a))
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateAlert) {
			log.Info().Str("symbol", a.Symbol).Msg("alert already active, skipping")
		}
		return nil, err
	}
	log.Info().Str("id", a.ID).Str("symbol", a.Symbol).Str("direction", string(a.Direction)).Msg("alert created")
	return &a, nil
}

// Accept promotes an alert to an open position filled at fillPrice. A
// non-positive fillPrice keeps the alert's entry price.
func (s *Store) Accept(ctx context.Context, alertID string, fillPrice float64) (*model.Position, error) {
	var pos model.Position
	err := s.mutate(ctx, func(sn *snapshot) error {
		idx := findAlert(sn.alerts, alertID)
		if idx < 0 {
			return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
		}
		a := sn.alerts[idx]
		if findOpenSymbol(sn.open, a.Symbol) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicatePosition, a.Symbol)
		}
		pos = positionFromAlert(a, fillPrice, model.StateAccepted, s.now().UTC())
		if err := saveSet(s.open, append(sn.open, pos)); err != nil {
			return err
		}
		return saveSet(s.alerts, removeAt(sn.alerts, idx))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("id", pos.ID).Str("symbol", pos.Symbol).Float64("entry", pos.EntryPrice).Msg("alert accepted")
	return &pos, nil
}

// Reject consumes an alert the operator declined. The declined trade is kept
// for shadow measurement: as a virtual open position when ShadowRejected is
// set, otherwise directly as a ledger entry without exit fields. The consumed
// alert is returned.
func (s *Store) Reject(ctx context.Context, alertID string) (*model.Alert, error) {
	var consumed model.Alert
	err := s.mutate(ctx, func(sn *snapshot) error {
		idx := findAlert(sn.alerts, alertID)
		if idx < 0 {
			return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
		}
		a := sn.alerts[idx]
		consumed = a
		now := s.now().UTC()
		pos := positionFromAlert(a, 0, model.StateRejectedVirtual, now)

		if s.cfg.ShadowRejected && findOpenSymbol(sn.open, a.Symbol) < 0 {
			if err := saveSet(s.open, append(sn.open, pos)); err != nil {
				return err
			}
		} else {
			rec := model.ClosedPosition{Position: pos, ExitReason: ReasonRejected, ClosedAt: now}
			if err := saveSet(s.closed, append(sn.closed, rec)); err != nil {
				return err
			}
		}
		return saveSet(s.alerts, removeAt(sn.alerts, idx))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("id", alertID).Str("symbol", consumed.Symbol).Bool("shadow", s.cfg.ShadowRejected).Msg("alert rejected")
	return &consumed, nil
}

// Void discards an alert without any record and returns it.
func (s *Store) Void(ctx context.Context, alertID string) (*model.Alert, error) {
	var consumed model.Alert
	err := s.mutate(ctx, func(sn *snapshot) error {
		idx := findAlert(sn.alerts, alertID)
		if idx < 0 {
			return fmt.Errorf("alert %s: %w", alertID, ErrNotFound)
		}
		consumed = sn.alerts[idx]
		return saveSet(s.alerts, removeAt(sn.alerts, idx))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("id", alertID).Str("symbol", consumed.Symbol).Msg("alert voided")
	return &consumed, nil
}

// Close moves an open position to the ledger at exitPrice, stamped now.
func (s *Store) Close(ctx context.Context, positionID string, exitPrice float64, reason string) (*model.ClosedPosition, error) {
	return s.CloseAt(ctx, positionID, exitPrice, s.now().UTC(), reason)
}

// CloseAt is Close with an explicit exit time, used when the exit comes from
// a historical candle.
func (s *Store) CloseAt(ctx context.Context, positionID string, exitPrice float64, exitTime time.Time, reason string) (*model.ClosedPosition, error) {
	if reason == "" {
		reason = ReasonManual
	}
	var rec model.ClosedPosition
	err := s.mutate(ctx, func(sn *snapshot) error {
		idx := findOpen(sn.open, positionID)
		if idx < 0 {
			return fmt.Errorf("position %s: %w", positionID, ErrNotFound)
		}
		pos := sn.open[idx]
		realized := model.RealizedPct(pos.Direction, pos.EntryPrice, exitPrice)
		price, at := exitPrice, exitTime.UTC()
		rec = model.ClosedPosition{
			Position:    pos,
			ExitPrice:   &price,
			ExitTime:    &at,
			ExitReason:  reason,
			RealizedPct: &realized,
			ClosedAt:    s.now().UTC(),
		}
		if err := saveSet(s.closed, append(sn.closed, rec)); err != nil {
			return err
		}
		return saveSet(s.open, removeAt(sn.open, idx))
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("id", rec.ID).Str("symbol", rec.Symbol).Str("reason", reason).
		Float64("realized_pct", *rec.RealizedPct).Str("state", string(rec.State)).Msg("position closed")
	return &rec, nil
}

// Reopen moves a recently closed position back to the open set as accepted,
// clearing its exit fields. It is an operator correction and always logged.
func (s *Store) Reopen(ctx context.Context, closedID string) (*model.Position, error) {
	var pos model.Position
	err := s.mutate(ctx, func(sn *snapshot) error {
		idx := -1
		for i := len(sn.closed) - 1; i >= 0; i-- {
			if sn.closed[i].ID == closedID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("closed position %s: %w", closedID, ErrNotFound)
		}
		rec := sn.closed[idx]
		if s.now().Sub(closedTime(rec)) > s.cfg.ReopenWindow {
			return fmt.Errorf("%w: %s closed %s", ErrReopenExpired, closedID, closedTime(rec).Format(time.RFC3339))
		}
		if findOpenSymbol(sn.open, rec.Symbol) >= 0 {
			return fmt.Errorf("%w: %s", ErrDuplicatePosition, rec.Symbol)
		}
		pos = rec.Position
		pos.State = model.StateAccepted
		if err := saveSet(s.open, append(sn.open, pos)); err != nil {
			return err
		}
		return saveSet(s.closed, removeAt(sn.closed, idx))
	})
	if err != nil {
		return nil, err
	}
	log.Warn().Str("id", pos.ID).Str("symbol", pos.Symbol).Msg("position reopened by operator")
	return &pos, nil
}

// Alerts lists active alerts.
func (s *Store) Alerts() ([]model.Alert, error) {
	var out []model.Alert
	err := s.view(func(sn *snapshot) { out = sn.alerts })
	return out, err
}

// OpenPositions lists open positions, real and virtual.
func (s *Store) OpenPositions() ([]model.Position, error) {
	var out []model.Position
	err := s.view(func(sn *snapshot) { out = sn.open })
	return out, err
}

// ClosedPositions lists the ledger in insertion order.
func (s *Store) ClosedPositions() ([]model.ClosedPosition, error) {
	var out []model.ClosedPosition
	err := s.view(func(sn *snapshot) { out = sn.closed })
	return out, err
}

// ClosedSince lists ledger entries closed at or after t.
func (s *Store) ClosedSince(t time.Time) ([]model.ClosedPosition, error) {
	all, err := s.ClosedPositions()
	if err != nil {
		return nil, err
	}
	var out []model.ClosedPosition
	for _, c := range all {
		if !closedTime(c).Before(t) {
			out = append(out, c)
		}
	}
	return out, nil
}

func closedTime(c model.ClosedPosition) time.Time {
	if c.ExitTime != nil && !c.ExitTime.IsZero() {
		return *c.ExitTime
	}
	return c.ClosedAt
}

func positionFromAlert(a model.Alert, fillPrice float64, state model.PositionState, now time.Time) model.Position {
	entry := a.EntryPrice
	if fillPrice > 0 {
		entry = fillPrice
	}
	return model.Position{
		ID:          a.ID,
		AlertID:     a.ID,
		Symbol:      a.Symbol,
		Direction:   a.Direction,
		EntryPrice:  entry,
		TakeProfit:  a.Risk.TakeProfit,
		StopLoss:    a.Risk.StopLoss,
		Size:        a.SuggestedSize,
		Probability: a.Probability,
		Scenario:    a.Scenario,
		Timeframe:   a.Timeframe,
		OpenedAt:    now,
		State:       state,
	}
}

func findAlert(alerts []model.Alert, id string) int {
	for i, a := range alerts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func findOpen(open []model.Position, id string) int {
	for i, p := range open {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func findOpenSymbol(open []model.Position, symbol string) int {
	for i, p := range open {
		if p.Symbol == symbol {
			return i
		}
	}
	return -1
}

func removeAt[T any](items []T, i int) []T {
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:i]...)
	return append(out, items[i+1:]...)
}
