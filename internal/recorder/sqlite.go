package recorder

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists historical data to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the CLI read while the bot writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at     INTEGER NOT NULL,
			duration_ms    INTEGER,
			liquid         INTEGER,
			watchlist      INTEGER,
			accelerations  INTEGER,
			reversals      INTEGER,
			scored         INTEGER,
			alerts         INTEGER,
			closes         INTEGER,
			skipped        INTEGER,
			overrun        INTEGER,
			error          TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON cycles(started_at)`,

		`CREATE TABLE IF NOT EXISTS alert_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			action      TEXT,
			alert_id    TEXT,
			symbol      TEXT,
			direction   TEXT,
			entry_price REAL,
			score       REAL,
			probability REAL,
			size        REAL,
			scenario    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_ts ON alert_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_symbol ON alert_events(symbol)`,

		`CREATE TABLE IF NOT EXISTS position_closes (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			position_id  TEXT,
			symbol       TEXT,
			direction    TEXT,
			state        TEXT,
			scenario     TEXT,
			entry_price  REAL,
			exit_price   REAL,
			realized_pct REAL,
			reason       TEXT,
			opened_at    INTEGER,
			exit_time    INTEGER,
			candles      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closes_ts ON position_closes(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(evt *CycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO cycles
		(started_at, duration_ms, liquid, watchlist, accelerations, reversals,
		 scored, alerts, closes, skipped, overrun, error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		evt.StartedAt.Unix(), evt.Duration.Milliseconds(), evt.Liquid, evt.Watchlist,
		evt.Accelerations, evt.Reversals, evt.Scored, evt.Alerts, evt.Closes,
		evt.Skipped, evt.Overrun, evt.Err,
	)
	return err
}

func (r *SQLiteRecorder) RecordAlert(evt *AlertEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO alert_events
		(timestamp, action, alert_id, symbol, direction, entry_price, score,
		 probability, size, scenario)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		r.now().Unix(), evt.Action, evt.AlertID, evt.Symbol, evt.Direction,
		evt.EntryPrice, evt.Score, evt.Probability, evt.Size, evt.Scenario,
	)
	return err
}

func (r *SQLiteRecorder) RecordClose(evt *CloseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO position_closes
		(timestamp, position_id, symbol, direction, state, scenario, entry_price,
		 exit_price, realized_pct, reason, opened_at, exit_time, candles)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.now().Unix(), evt.PositionID, evt.Symbol, evt.Direction, evt.State,
		evt.Scenario, evt.EntryPrice, evt.ExitPrice, evt.RealizedPct, evt.Reason,
		evt.OpenedAt.Unix(), evt.ExitTime.Unix(), evt.Candles,
	)
	return err
}

// WinRate returns closed-trade count and winners recorded since t.
func (r *SQLiteRecorder) WinRate(since time.Time) (total, winners int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN realized_pct > 0 THEN 1 ELSE 0 END), 0)
		FROM position_closes WHERE timestamp >= ?`, since.Unix())
	if err := row.Scan(&total, &winners); err != nil {
		return 0, 0, fmt.Errorf("query win rate: %w", err)
	}
	return total, winners, nil
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
