package datafeed

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/fazecat/benfordscan/Internal/strategy/validation"
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/logger"
)

// RunRecord is everything one scan produces that is worth keeping.
type RunRecord struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Symbols    int
	Skipped    int
	Verdicts   []VerdictRecord
	Outcomes   []types.OutcomeRecord
	Trades     []types.Trade
	Grid       []types.GridResult
}

type VerdictRecord struct {
	Kind    types.SignalKind
	Summary validation.Summary
	Verdict validation.Verdict
}

type runRow struct {
	ID         uuid.UUID `db:"id"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
	Symbols    int       `db:"symbols"`
	Skipped    int       `db:"skipped"`
}

type verdictRow struct {
	RunID         uuid.UUID `db:"run_id"`
	Kind          string    `db:"kind"`
	Samples       int       `db:"samples"`
	MeanReturn    *float64  `db:"mean_return"`
	WinRate       float64   `db:"win_rate"`
	MedianMaxGain float64   `db:"median_max_gain"`
	Asymmetry     float64   `db:"asymmetry"`
	Passed        int       `db:"passed"`
	Verdict       string    `db:"verdict"`
}

// horizonReturns is stored as JSONB keyed by horizon in days; missing
// horizons are null.
type horizonReturns map[int]*float64

func (h horizonReturns) Value() (driver.Value, error) {
	if h == nil {
		h = horizonReturns{}
	}
	b, err := json.Marshal(map[int]*float64(h))
	if err != nil {
		return nil, err
	}
	// lib/pq sends []byte as bytea, so hand JSONB a string.
	return string(b), nil
}

type outcomeRow struct {
	RunID          uuid.UUID       `db:"run_id"`
	Symbol         string          `db:"symbol"`
	Kind           string          `db:"kind"`
	Supporting     pq.StringArray  `db:"supporting_kinds"`
	SignalDate     time.Time       `db:"signal_date"`
	EntryPrice     decimal.Decimal `db:"entry_price"`
	ForwardReturns horizonReturns  `db:"forward_returns"`
	MaxGain        *float64        `db:"max_gain"`
	MaxDrawdown    *float64        `db:"max_drawdown"`
	HitThreshold   bool            `db:"hit_threshold"`
}

// TradeRow is a stored simulated trade.
type TradeRow struct {
	RunID        uuid.UUID       `db:"run_id" json:"run_id"`
	Symbol       string          `db:"symbol" json:"symbol"`
	EntryDate    time.Time       `db:"entry_date" json:"entry_date"`
	EntryPrice   decimal.Decimal `db:"entry_price" json:"entry_price"`
	ExitDate     time.Time       `db:"exit_date" json:"exit_date"`
	ExitPrice    decimal.Decimal `db:"exit_price" json:"exit_price"`
	ExitReason   string          `db:"exit_reason" json:"exit_reason"`
	HoldingDays  int             `db:"holding_days" json:"holding_days"`
	NetReturnPct float64         `db:"net_return_pct" json:"net_return_pct"`
}

type gridRow struct {
	RunID          uuid.UUID `db:"run_id"`
	TakeProfitPct  float64   `db:"take_profit_pct"`
	StopLossPct    float64   `db:"stop_loss_pct"`
	CooldownDays   int       `db:"cooldown_days"`
	WinRate        float64   `db:"win_rate"`
	ExpectedValue  float64   `db:"expected_value"`
	SampleSize     int       `db:"sample_size"`
	CompositeScore float64   `db:"composite_score"`
}

func price(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(6)
}

func verdictRows(id uuid.UUID, verdicts []VerdictRecord) []verdictRow {
	rows := make([]verdictRow, 0, len(verdicts))
	for _, v := range verdicts {
		row := verdictRow{
			RunID:         id,
			Kind:          string(v.Kind),
			Samples:       v.Summary.Samples,
			WinRate:       v.Summary.WinRate,
			MedianMaxGain: v.Summary.MedianMaxGain,
			Asymmetry:     v.Summary.Asymmetry,
			Passed:        v.Summary.Passed,
			Verdict:       string(v.Verdict),
		}
		if v.Summary.HorizonCount > 0 {
			mean := v.Summary.MeanReturn()
			row.MeanReturn = &mean
		}
		rows = append(rows, row)
	}
	return rows
}

func outcomeRows(id uuid.UUID, outcomes []types.OutcomeRecord) []outcomeRow {
	rows := make([]outcomeRow, 0, len(outcomes))
	for _, o := range outcomes {
		supporting := make(pq.StringArray, 0, len(o.Signal.Supporting))
		for _, k := range o.Signal.Supporting {
			supporting = append(supporting, string(k))
		}
		rows = append(rows, outcomeRow{
			RunID:          id,
			Symbol:         o.Symbol,
			Kind:           string(o.Signal.Kind),
			Supporting:     supporting,
			SignalDate:     o.Date,
			EntryPrice:     price(o.EntryPrice),
			ForwardReturns: horizonReturns(o.Forward),
			MaxGain:        o.MaxGain,
			MaxDrawdown:    o.MaxDrawdown,
			HitThreshold:   o.HitTarget,
		})
	}
	return rows
}

func tradeRows(id uuid.UUID, trades []types.Trade) []TradeRow {
	rows := make([]TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, TradeRow{
			RunID:        id,
			Symbol:       t.Symbol,
			EntryDate:    t.EntryDate,
			EntryPrice:   price(t.EntryPrice),
			ExitDate:     t.ExitDate,
			ExitPrice:    price(t.ExitPrice),
			ExitReason:   string(t.ExitReason),
			HoldingDays:  t.HoldingDays,
			NetReturnPct: t.NetReturnPct,
		})
	}
	return rows
}

func gridRows(id uuid.UUID, grid []types.GridResult) []gridRow {
	rows := make([]gridRow, 0, len(grid))
	for _, g := range grid {
		rows = append(rows, gridRow{
			RunID:          id,
			TakeProfitPct:  g.Params.TakeProfitPct,
			StopLossPct:    g.Params.StopLossPct,
			CooldownDays:   g.Params.CooldownDays,
			WinRate:        g.WinRate,
			ExpectedValue:  g.ExpectedValue,
			SampleSize:     g.SampleSize,
			CompositeScore: g.CompositeScore,
		})
	}
	return rows
}

// maxBindParams is PostgreSQL's limit on parameters in one statement.
const maxBindParams = 65535

const maxBatchRows = 1000

const (
	verdictInsert = `INSERT INTO signal_verdicts (run_id, kind, samples, mean_return, win_rate, median_max_gain, asymmetry, passed, verdict)
	 VALUES (:run_id, :kind, :samples, :mean_return, :win_rate, :median_max_gain, :asymmetry, :passed, :verdict)`
	verdictColumns = 9

	outcomeInsert = `INSERT INTO signal_outcomes (run_id, symbol, kind, supporting_kinds, signal_date, entry_price, forward_returns, max_gain, max_drawdown, hit_threshold)
	 VALUES (:run_id, :symbol, :kind, :supporting_kinds, :signal_date, :entry_price, :forward_returns, :max_gain, :max_drawdown, :hit_threshold)`
	outcomeColumns = 10

	tradeInsert = `INSERT INTO simulated_trades (run_id, symbol, entry_date, entry_price, exit_date, exit_price, exit_reason, holding_days, net_return_pct)
	 VALUES (:run_id, :symbol, :entry_date, :entry_price, :exit_date, :exit_price, :exit_reason, :holding_days, :net_return_pct)`
	tradeColumns = 9

	gridInsert = `INSERT INTO grid_results (run_id, take_profit_pct, stop_loss_pct, cooldown_days, win_rate, expected_value, sample_size, composite_score)
	 VALUES (:run_id, :take_profit_pct, :stop_loss_pct, :cooldown_days, :win_rate, :expected_value, :sample_size, :composite_score)`
	gridColumns = 8
)

type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// batchSize is the row count per multi-row INSERT that keeps the statement
// under maxBindParams.
func batchSize(columns int) int {
	return min(maxBindParams/columns, maxBatchRows)
}

func chunk[T any](rows []T, size int) [][]T {
	var out [][]T
	for start := 0; start < len(rows); start += size {
		out = append(out, rows[start:min(start+size, len(rows))])
	}
	return out
}

func insertBatches[T any](ctx context.Context, ex namedExecer, query string, columns int, rows []T) error {
	for _, batch := range chunk(rows, batchSize(columns)) {
		if _, err := ex.NamedExecContext(ctx, query, batch); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun writes a run and all its children in one transaction.
func (s *Store) SaveRun(ctx context.Context, run RunRecord) error {
	if s.db == nil {
		return ErrNoDatabase
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := writeRun(ctx, tx, run); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}

	s.log.Info("run saved",
		logger.String("run_id", run.ID.String()),
		logger.Int("outcomes", len(run.Outcomes)),
		logger.Int("trades", len(run.Trades)),
	)
	return nil
}

func writeRun(ctx context.Context, ex namedExecer, run RunRecord) error {
	_, err := ex.NamedExecContext(ctx,
		`INSERT INTO scan_runs (id, started_at, finished_at, symbols, skipped)
		 VALUES (:id, :started_at, :finished_at, :symbols, :skipped)`,
		runRow{ID: run.ID, StartedAt: run.StartedAt, FinishedAt: run.FinishedAt, Symbols: run.Symbols, Skipped: run.Skipped})
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if err := insertBatches(ctx, ex, verdictInsert, verdictColumns, verdictRows(run.ID, run.Verdicts)); err != nil {
		return fmt.Errorf("insert verdicts: %w", err)
	}
	if err := insertBatches(ctx, ex, outcomeInsert, outcomeColumns, outcomeRows(run.ID, run.Outcomes)); err != nil {
		return fmt.Errorf("insert outcomes: %w", err)
	}
	if err := insertBatches(ctx, ex, tradeInsert, tradeColumns, tradeRows(run.ID, run.Trades)); err != nil {
		return fmt.Errorf("insert trades: %w", err)
	}
	if err := insertBatches(ctx, ex, gridInsert, gridColumns, gridRows(run.ID, run.Grid)); err != nil {
		return fmt.Errorf("insert grid results: %w", err)
	}
	return nil
}

// TradeHistory returns the most recent stored trades for symbol.
func (s *Store) TradeHistory(ctx context.Context, symbol string, limit int) ([]TradeRow, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}
	var rows []TradeRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT run_id, symbol, entry_date, entry_price, exit_date, exit_price, exit_reason, holding_days, net_return_pct
		 FROM simulated_trades WHERE symbol = $1 ORDER BY entry_date DESC LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch trade history: %w", err)
	}
	return rows, nil
}

type TradeStats struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	Timeouts      int     `json:"timeouts"`
	WinRate       float64 `json:"win_rate"`
	// Sum of per-trade price moves, exit minus entry.
	TotalPriceMove decimal.Decimal `json:"total_price_move"`
	AvgHoldingDays float64         `json:"avg_holding_days"`
}

// SummarizeTrades aggregates stored trades. WinRate counts closed trades only.
func SummarizeTrades(rows []TradeRow) TradeStats {
	stats := TradeStats{TotalTrades: len(rows), TotalPriceMove: decimal.Zero}
	if len(rows) == 0 {
		return stats
	}

	holding := 0
	for _, r := range rows {
		stats.TotalPriceMove = stats.TotalPriceMove.Add(r.ExitPrice.Sub(r.EntryPrice))
		holding += r.HoldingDays
		switch types.ExitReason(r.ExitReason) {
		case types.ExitTarget:
			stats.WinningTrades++
		case types.ExitStop:
			stats.LosingTrades++
		default:
			stats.Timeouts++
		}
	}

	if closed := stats.WinningTrades + stats.LosingTrades; closed > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(closed) * 100
	}
	stats.AvgHoldingDays = float64(holding) / float64(len(rows))
	return stats
}
