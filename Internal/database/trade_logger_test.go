package datafeed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fazecat/benfordscan/Internal/strategy/validation"
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
)

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: "5433", User: "scan", Password: "pw", Name: "benford", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=scan password=pw dbname=benford sslmode=require", DSN(cfg))
}

func TestOutcomeRows(t *testing.T) {
	id := uuid.New()
	r5, r15, gain := 2.5, -1.0, 12.0
	outcomes := []types.OutcomeRecord{{
		Symbol:     "AAPL",
		Date:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Signal:     types.SignalEvent{Index: 70, Kind: types.SignalCombined, Supporting: []types.SignalKind{types.SignalVPD, types.SignalSDE}},
		EntryPrice: 101.1234567,
		Forward:    map[int]*float64{5: &r5, 15: &r15, 60: nil},
		MaxGain:    &gain,
		HitTarget:  true,
	}, {
		Symbol: "MSFT",
		Signal: types.SignalEvent{Index: 80, Kind: types.SignalVPD},
	}}

	rows := outcomeRows(id, outcomes)
	require.Len(t, rows, 2)
	row := rows[0]
	assert.Equal(t, id, row.RunID)
	assert.Equal(t, "COMBINED", row.Kind)
	assert.Equal(t, pq.StringArray{"VPD", "SDE"}, row.Supporting)
	assert.True(t, decimal.RequireFromString("101.123457").Equal(row.EntryPrice))
	assert.Equal(t, 12.0, *row.MaxGain)
	assert.Nil(t, row.MaxDrawdown)
	assert.True(t, row.HitThreshold)

	v, err := row.ForwardReturns.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"5": 2.5, "15": -1, "60": null}`, v.(string))

	v, err = rows[1].Supporting.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
	v, err = rows[1].ForwardReturns.Value()
	require.NoError(t, err)
	assert.Equal(t, "{}", v)
}

type recordingExecer struct {
	batches []int
	args    int
	err     error
}

func (r *recordingExecer) NamedExecContext(_ context.Context, query string, arg interface{}) (sql.Result, error) {
	_, args, err := sqlx.Named(query, arg)
	if err != nil {
		return nil, err
	}
	if len(args) > maxBindParams {
		return nil, fmt.Errorf("%d bind parameters", len(args))
	}
	r.batches = append(r.batches, len(args))
	r.args += len(args)
	return nil, r.err
}

func TestInsertBatches_StaysUnderBindLimit(t *testing.T) {
	outcomes := make([]types.OutcomeRecord, 7000)
	for i := range outcomes {
		outcomes[i] = types.OutcomeRecord{Symbol: "S", Signal: types.SignalEvent{Kind: types.SignalVPD}}
	}
	rows := outcomeRows(uuid.New(), outcomes)

	_, all, err := sqlx.Named(outcomeInsert, rows)
	require.NoError(t, err)
	require.Greater(t, len(all), maxBindParams, "one statement for every row would be rejected")

	ex := &recordingExecer{}
	require.NoError(t, insertBatches(context.Background(), ex, outcomeInsert, outcomeColumns, rows))
	assert.Len(t, ex.batches, 7)
	assert.Equal(t, 7000*outcomeColumns, ex.args)
	for _, n := range ex.batches {
		assert.LessOrEqual(t, n, maxBindParams)
	}
}

func TestWriteRun(t *testing.T) {
	run := RunRecord{
		ID:       uuid.New(),
		Outcomes: make([]types.OutcomeRecord, 2500),
		Trades:   make([]types.Trade, 10),
		Verdicts: []VerdictRecord{{Kind: types.SignalSDE}},
	}
	ex := &recordingExecer{}
	require.NoError(t, writeRun(context.Background(), ex, run))
	// run + verdicts + 3 outcome batches + trades; no grid rows
	assert.Len(t, ex.batches, 6)

	failing := &recordingExecer{err: errors.New("boom")}
	err := writeRun(context.Background(), failing, run)
	assert.ErrorContains(t, err, "insert run")
}

func TestColumnCounts(t *testing.T) {
	for query, columns := range map[string]int{
		verdictInsert: verdictColumns,
		outcomeInsert: outcomeColumns,
		tradeInsert:   tradeColumns,
		gridInsert:    gridColumns,
	} {
		assert.Equal(t, columns, strings.Count(query, ":"), query)
	}
}

func TestChunk(t *testing.T) {
	assert.Nil(t, chunk([]int{}, 3))
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5}}, chunk([]int{1, 2, 3, 4, 5}, 3))
	assert.Equal(t, 1000, batchSize(outcomeColumns))
	assert.Equal(t, 65535/100, batchSize(100))
}

func TestVerdictRows_NoHorizonDataStoresNullMean(t *testing.T) {
	id := uuid.New()
	rows := verdictRows(id, []VerdictRecord{
		{Kind: types.SignalVPD, Summary: validation.Summary{Samples: 3}, Verdict: validation.VerdictNoGo},
		{Kind: types.SignalSDE, Summary: validation.Summary{Samples: 120, Horizon: 20, HorizonCount: 120, MeanReturns: map[int]float64{20: 4.2}, Passed: 5}, Verdict: validation.VerdictGo},
	})

	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].MeanReturn)
	assert.Equal(t, "NO-GO", rows[0].Verdict)
	require.NotNil(t, rows[1].MeanReturn)
	assert.Equal(t, 4.2, *rows[1].MeanReturn)
	assert.Equal(t, 5, rows[1].Passed)
}

func TestSummarizeTrades(t *testing.T) {
	d := decimal.RequireFromString
	rows := []TradeRow{
		{EntryPrice: d("100"), ExitPrice: d("117"), ExitReason: "TARGET", HoldingDays: 4},
		{EntryPrice: d("50"), ExitPrice: d("46.5"), ExitReason: "STOP", HoldingDays: 2},
		{EntryPrice: d("20"), ExitPrice: d("21"), ExitReason: "TARGET", HoldingDays: 9},
		{EntryPrice: d("10"), ExitPrice: d("10.2"), ExitReason: "TIMEOUT", HoldingDays: 30},
	}

	stats := SummarizeTrades(rows)
	assert.Equal(t, 4, stats.TotalTrades)
	assert.Equal(t, 2, stats.WinningTrades)
	assert.Equal(t, 1, stats.LosingTrades)
	assert.Equal(t, 1, stats.Timeouts)
	assert.InDelta(t, 200.0/3.0, stats.WinRate, 1e-9)
	assert.True(t, d("14.7").Equal(stats.TotalPriceMove), "got %s", stats.TotalPriceMove)
	assert.InDelta(t, 11.25, stats.AvgHoldingDays, 1e-12)

	empty := SummarizeTrades(nil)
	assert.Zero(t, empty.TotalTrades)
	assert.True(t, empty.TotalPriceMove.IsZero())
}
