package datafeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/fazecat/benfordscan/Internal/utils/config"
	"github.com/fazecat/benfordscan/Internal/utils/logger"
)

var ErrNoDatabase = errors.New("database connection is nil")

// Store persists scan runs and their outcomes, trades and grid results.
type Store struct {
	db  *sqlx.DB
	log *logger.Logger
}

func DSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
}

// Open connects to PostgreSQL and creates the schema if needed.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := NewStore(db, log)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	store.log.Info("database connected",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Name),
	)
	return store, nil
}

func NewStore(db *sqlx.DB, log *logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{db: db, log: log.With(logger.String("component", "store"))}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scan_runs (
	id UUID PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	symbols INTEGER NOT NULL,
	skipped INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS signal_verdicts (
	run_id UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	samples INTEGER NOT NULL,
	mean_return DOUBLE PRECISION,
	win_rate DOUBLE PRECISION,
	median_max_gain DOUBLE PRECISION,
	asymmetry DOUBLE PRECISION,
	passed INTEGER NOT NULL,
	verdict TEXT NOT NULL,
	PRIMARY KEY (run_id, kind)
);

CREATE TABLE IF NOT EXISTS signal_outcomes (
	id BIGSERIAL PRIMARY KEY,
	run_id UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
	symbol TEXT NOT NULL,
	kind TEXT NOT NULL,
	supporting_kinds TEXT[] NOT NULL DEFAULT '{}',
	signal_date DATE NOT NULL,
	entry_price NUMERIC(18,6) NOT NULL,
	forward_returns JSONB NOT NULL,
	max_gain DOUBLE PRECISION,
	max_drawdown DOUBLE PRECISION,
	hit_threshold BOOLEAN NOT NULL
);

CREATE TABLE IF NOT EXISTS simulated_trades (
	id BIGSERIAL PRIMARY KEY,
	run_id UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
	symbol TEXT NOT NULL,
	entry_date DATE NOT NULL,
	entry_price NUMERIC(18,6) NOT NULL,
	exit_date DATE NOT NULL,
	exit_price NUMERIC(18,6) NOT NULL,
	exit_reason TEXT NOT NULL,
	holding_days INTEGER NOT NULL,
	net_return_pct DOUBLE PRECISION NOT NULL
);

CREATE TABLE IF NOT EXISTS grid_results (
	run_id UUID NOT NULL REFERENCES scan_runs(id) ON DELETE CASCADE,
	take_profit_pct DOUBLE PRECISION NOT NULL,
	stop_loss_pct DOUBLE PRECISION NOT NULL,
	cooldown_days INTEGER NOT NULL,
	win_rate DOUBLE PRECISION NOT NULL,
	expected_value DOUBLE PRECISION NOT NULL,
	sample_size INTEGER NOT NULL,
	composite_score DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, take_profit_pct, stop_loss_pct, cooldown_days)
);

CREATE INDEX IF NOT EXISTS idx_outcomes_symbol ON signal_outcomes(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON simulated_trades(symbol);
`

func (s *Store) Migrate(ctx context.Context) error {
	if s.db == nil {
		return ErrNoDatabase
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return ErrNoDatabase
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
