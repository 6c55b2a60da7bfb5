package formatting

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/fazecat/benfordscan/Internal/strategy/metrics"
	"github.com/fazecat/benfordscan/Internal/strategy/optimizer"
	"github.com/fazecat/benfordscan/Internal/strategy/validation"
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/scanner"
)

func TestSeparator(t *testing.T) {
	assert.Equal(t, "=====", Separator(5))
	assert.Equal(t, "", Separator(0))
}

func TestOptional(t *testing.T) {
	v := 3.456
	assert.Equal(t, "+3.46%", Optional(&v))
	assert.Equal(t, "n/a", Optional(nil))
}

func TestWriteRun(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	res := &scanner.Result{
		RunID:      uuid.MustParse("6f1c1c5e-2b7a-4c47-9d0e-0a1b2c3d4e5f"),
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Series:     []*types.Series{{Symbol: "AAA"}},
		Skipped:    []scanner.Skip{{Symbol: "BAD", Reason: "only 12 bars, need 100"}},
		Reports: []scanner.KindReport{
			{Kind: types.SignalVPD, Events: 0, Verdict: validation.VerdictNoGo},
			{
				Kind:   types.SignalCombined,
				Events: 120,
				Summary: validation.Summary{
					Horizon:      20,
					HorizonCount: 120,
					MeanReturns:  map[int]float64{20: 4.25},
					WinRate:      61,
					Passed:       1,
					Criteria: []validation.Criterion{
						{Name: "sample size", Value: 120, Threshold: 100, Passed: true},
					},
				},
				Verdict: validation.VerdictGo,
			},
		},
	}

	var buf bytes.Buffer
	WriteRun(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "6f1c1c5e-2b7a-4c47-9d0e-0a1b2c3d4e5f")
	assert.Contains(t, out, "1 scanned, 1 skipped")
	assert.Contains(t, out, "skipped BAD")
	assert.Contains(t, out, "+4.25%")
	assert.Contains(t, out, "[PASS] sample size")

	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "VPD") {
			assert.Contains(t, line, "n/a")
			assert.Contains(t, line, "NO-GO")
		}
	}
}

func TestWriteThresholds(t *testing.T) {
	all := []optimizer.ThresholdResult{
		{Threshold: 1.5, Samples: 12, Score: 40},
		{Threshold: 2.5, Samples: 44, Score: 37.2, Eligible: true},
	}

	var buf bytes.Buffer
	WriteThresholds(&buf, &all[1], all)
	out := buf.String()
	assert.Contains(t, out, "too few samples")
	assert.Contains(t, out, "<- best")

	buf.Reset()
	WriteThresholds(&buf, nil, all[:1])
	assert.Contains(t, buf.String(), "No threshold reached")
}

func TestWriteGrid(t *testing.T) {
	results := []types.GridResult{
		{Params: types.ParameterSet{TakeProfitPct: 0.10, StopLossPct: 0.05, CooldownDays: 3}, CompositeScore: 10},
		{Params: types.ParameterSet{TakeProfitPct: 0.30, StopLossPct: 0.05, CooldownDays: 3}, WinRate: 0.5, ExpectedValue: 12.4, SampleSize: 12, CompositeScore: 25},
		{Params: types.ParameterSet{TakeProfitPct: 0.20, StopLossPct: 0.07, CooldownDays: 5}, CompositeScore: 18},
	}

	var buf bytes.Buffer
	WriteGrid(&buf, &results[1], results, 2)
	out := buf.String()
	assert.Contains(t, out, "Best: TP 30%  SL 5%  cooldown 3d  EV +12.40%  win rate 50.0%  n=12")
	assert.Less(t, strings.Index(out, "25.00"), strings.Index(out, "18.00"))
	assert.NotContains(t, out, "10.00")

	buf.Reset()
	WriteGrid(&buf, nil, nil, 5)
	assert.Contains(t, buf.String(), "No parameter set qualified.")
}

func TestWriteInstruments(t *testing.T) {
	results := []optimizer.InstrumentResult{
		{
			Symbol:   "DIP",
			Baseline: &types.GridResult{WinRate: 0.5, ExpectedValue: 7.29},
			Best: &types.GridResult{
				Params:  types.ParameterSet{TakeProfitPct: 0.30, StopLossPct: 0.07, CooldownDays: 3},
				WinRate: 0.5, ExpectedValue: 11.29, SampleSize: 16,
			},
			Qualifying: 40,
		},
		{Symbol: "THIN"},
	}

	var buf bytes.Buffer
	WriteInstruments(&buf, results)
	out := buf.String()
	assert.Contains(t, out, "PER-INSTRUMENT EXIT GRID")
	assert.Regexp(t, `DIP\s+50\.0%\s+\+7\.29%\s+30%\s+7%\s+3\s+50\.0%\s+\+11\.29%\s+\+4\.00\s+16`, out)
	assert.Regexp(t, `THIN\s+-\s+-`, out)

	buf.Reset()
	WriteInstruments(&buf, nil)
	assert.Contains(t, buf.String(), "No instruments.")
}

func TestWriteTrades(t *testing.T) {
	day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	trades := []types.Trade{
		{Symbol: "AAA", EntryDate: day, ExitDate: day.AddDate(0, 0, 4), EntryPrice: 10, ExitPrice: 11.7, ExitReason: types.ExitTarget, HoldingDays: 4, NetReturnPct: 16.79},
		{Symbol: "BBB", EntryDate: day, ExitDate: day.AddDate(0, 0, 2), EntryPrice: 20, ExitPrice: 18.6, ExitReason: types.ExitStop, HoldingDays: 2, NetReturnPct: -7.21},
	}

	var buf bytes.Buffer
	WriteTrades(&buf, trades, 1)
	out := buf.String()
	assert.Contains(t, out, "Trades: 2")
	assert.Contains(t, out, "AAA")
	assert.NotContains(t, out, "BBB")
	assert.Contains(t, out, "... 1 more")

	buf.Reset()
	WriteTrades(&buf, nil, 5)
	assert.Contains(t, buf.String(), "No trades.")
}

func TestWriteSymbolStats(t *testing.T) {
	trades := []types.Trade{
		{Symbol: "BBB", ExitReason: types.ExitStop, NetReturnPct: -7.21},
		{Symbol: "AAA", ExitReason: types.ExitTarget, NetReturnPct: 16.79},
		{Symbol: "BBB", ExitReason: types.ExitTarget, NetReturnPct: 16.79},
	}

	var buf bytes.Buffer
	WriteSymbolStats(&buf, trades, 1)
	out := buf.String()
	assert.Contains(t, out, "BBB")
	assert.Contains(t, out, "50.0%")
	assert.NotContains(t, out, "AAA")

	buf.Reset()
	WriteSymbolStats(&buf, nil, 5)
	assert.Empty(t, buf.String())
}

func TestWriteStops(t *testing.T) {
	a := metrics.StopAnalysis{Stops: 3, Analyzed: 2, RecoveredToTarget: 1, StayedDown: 1, MeanBounce: 9, MedianBounce: 9}
	a.Buckets[1] = 1
	a.Buckets[5] = 1

	var buf bytes.Buffer
	WriteStops(&buf, a)
	out := buf.String()
	assert.Contains(t, out, "Stops analyzed: 2 of 3")
	assert.Contains(t, out, "30%+")

	buf.Reset()
	WriteStops(&buf, metrics.StopAnalysis{Stops: 1})
	assert.Contains(t, buf.String(), "1 stops, none with bars after the exit.")
}

func TestWriteScreens(t *testing.T) {
	screens := []scanner.Screen{
		{Symbol: "LOUD", AlertName: "STRONG", Signals: []string{"STRONG volume digit alert", "within 2% of 10000"}},
		{Symbol: "QUIET", AlertName: "NONE"},
	}

	var buf bytes.Buffer
	WriteScreens(&buf, screens, 1)
	out := buf.String()
	assert.Contains(t, out, "STRONG volume digit alert; within 2% of 10000")
	assert.NotContains(t, out, "QUIET")
}
