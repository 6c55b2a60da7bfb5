package formatting

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fazecat/benfordscan/Internal/strategy/metrics"
	"github.com/fazecat/benfordscan/Internal/strategy/optimizer"
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/scanner"
)

const reportWidth = 72

// Separator returns a line separator of given width
func Separator(width int) string {
	return strings.Repeat("=", width)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func section(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", Separator(reportWidth), title, Separator(reportWidth))
}

// Optional renders a nullable percentage.
func Optional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

// WriteRun prints the run header and the per-kind verdicts.
func WriteRun(w io.Writer, res *scanner.Result) {
	section(w, "BENFORD ACCUMULATION SCAN")
	fmt.Fprintf(w, "Run:      %s\n", res.RunID)
	fmt.Fprintf(w, "Series:   %d scanned, %d skipped\n", len(res.Series), len(res.Skipped))
	fmt.Fprintf(w, "Elapsed:  %s\n", res.FinishedAt.Sub(res.StartedAt).Round(1e6))
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "  skipped %-8s %s\n", s.Symbol, s.Reason)
	}
	WriteVerdicts(w, res.Reports)
}

// WriteVerdicts prints one row per signal kind followed by the criteria of
// each kind.
func WriteVerdicts(w io.Writer, reports []scanner.KindReport) {
	section(w, "VALIDATION")
	tw := newTable(w)
	fmt.Fprintln(tw, "KIND\tEVENTS\tMEAN 20D\tWIN RATE\tMED MAX GAIN\tASYM\tPASSED\tVERDICT")
	for _, r := range reports {
		mean := "n/a"
		if r.Summary.HorizonCount > 0 {
			mean = fmt.Sprintf("%+.2f%%", r.Summary.MeanReturn())
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%.1f%%\t%.2f%%\t%.2f\t%d/%d\t%s\n",
			r.Kind, r.Events, mean, r.Summary.WinRate, r.Summary.MedianMaxGain,
			r.Summary.Asymmetry, r.Summary.Passed, len(r.Summary.Criteria), r.Verdict)
	}
	tw.Flush()

	for _, r := range reports {
		if len(r.Summary.Criteria) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", r.Kind)
		for _, c := range r.Summary.Criteria {
			mark := "FAIL"
			if c.Passed {
				mark = "PASS"
			}
			fmt.Fprintf(w, "  [%s] %-22s %8.2f  (threshold %.2f)\n", mark, c.Name, c.Value, c.Threshold)
		}
	}
}

// WriteThresholds prints the VPD threshold sweep. best may be nil.
func WriteThresholds(w io.Writer, best *optimizer.ThresholdResult, all []optimizer.ThresholdResult) {
	section(w, "VPD THRESHOLD GRID")
	tw := newTable(w)
	fmt.Fprintln(tw, "THRESHOLD\tSAMPLES\tMEAN 20D\tWIN RATE\tMED MAX GAIN\tSCORE\t")
	for _, r := range all {
		note := ""
		switch {
		case best != nil && r.Threshold == best.Threshold:
			note = "<- best"
		case !r.Eligible:
			note = "too few samples"
		}
		fmt.Fprintf(tw, "%.1f\t%d\t%+.2f%%\t%.1f%%\t%.2f%%\t%.2f\t%s\n",
			r.Threshold, r.Samples, r.MeanReturn, r.WinRate, r.MedianMaxGain, r.Score, note)
	}
	tw.Flush()
	if best == nil {
		fmt.Fprintln(w, "No threshold reached the minimum sample size.")
	}
}

// WriteGrid prints the best exit parameters and the top results by score.
func WriteGrid(w io.Writer, best *types.GridResult, results []types.GridResult, top int) {
	section(w, "EXIT PARAMETER GRID")
	if best == nil {
		fmt.Fprintln(w, "No parameter set qualified.")
		return
	}
	fmt.Fprintf(w, "Best: TP %.0f%%  SL %.0f%%  cooldown %dd  EV %+.2f%%  win rate %.1f%%  n=%d\n\n",
		best.Params.TakeProfitPct*100, best.Params.StopLossPct*100, best.Params.CooldownDays,
		best.ExpectedValue, best.WinRate*100, best.SampleSize)

	ranked := append([]types.GridResult(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CompositeScore > ranked[j].CompositeScore
	})
	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "TP\tSL\tCD\tEV\tWIN RATE\tTRADES\tSCORE")
	for _, r := range ranked {
		fmt.Fprintf(tw, "%.0f%%\t%.0f%%\t%d\t%+.2f%%\t%.1f%%\t%d\t%.2f\n",
			r.Params.TakeProfitPct*100, r.Params.StopLossPct*100, r.Params.CooldownDays,
			r.ExpectedValue, r.WinRate*100, r.SampleSize, r.CompositeScore)
	}
	tw.Flush()
}

// WriteInstruments prints each instrument's baseline against its own best
// exit parameters.
func WriteInstruments(w io.Writer, results []optimizer.InstrumentResult) {
	section(w, "PER-INSTRUMENT EXIT GRID")
	if len(results) == 0 {
		fmt.Fprintln(w, "No instruments.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tBASE WR\tBASE EV\tTP\tSL\tCD\tWR\tEV\tGAIN\tTRADES")
	for _, r := range results {
		baseWR, baseEV := "-", "-"
		if r.Baseline != nil {
			baseWR = fmt.Sprintf("%.1f%%", r.Baseline.WinRate*100)
			baseEV = fmt.Sprintf("%+.2f%%", r.Baseline.ExpectedValue)
		}
		if r.Best == nil {
			fmt.Fprintf(tw, "%s\t%s\t%s\t-\t-\t-\t-\t-\t-\t-\n", r.Symbol, baseWR, baseEV)
			continue
		}
		b := r.Best
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%.0f%%\t%d\t%.1f%%\t%+.2f%%\t%+.2f\t%d\n",
			r.Symbol, baseWR, baseEV,
			b.Params.TakeProfitPct*100, b.Params.StopLossPct*100, b.Params.CooldownDays,
			b.WinRate*100, b.ExpectedValue, r.EVGain(), b.SampleSize)
	}
	tw.Flush()
}

// WriteTrades prints trade statistics and the first limit trades.
func WriteTrades(w io.Writer, trades []types.Trade, limit int) {
	section(w, "BACKTEST")
	if len(trades) == 0 {
		fmt.Fprintln(w, "No trades.")
		return
	}

	ev, ok := metrics.CalculateExpectedValue(trades, 1)
	fmt.Fprintf(w, "Trades: %d  closed win rate: %.1f%%  compound: %+.2f%%\n",
		len(trades), metrics.CalculateWinRate(trades), metrics.CompoundReturn(trades))
	if ok {
		fmt.Fprintf(w, "EV: %+.2f%%  avg win %+.2f%%  avg loss %+.2f%%\n", ev.EV, ev.AvgWin, ev.AvgLoss)
	}
	fmt.Fprintf(w, "Sharpe: %.2f  Sortino: %.2f\n\n",
		metrics.CalculateSharpeRatio(trades, 0), metrics.CalculateSortinoRatio(trades, 0))

	shown := trades
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tENTRY\tPRICE\tEXIT\tPRICE\tREASON\tDAYS\tNET")
	for _, t := range shown {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%.2f\t%s\t%d\t%+.2f%%\n",
			t.Symbol, t.EntryDate.Format("2006-01-02"), t.EntryPrice,
			t.ExitDate.Format("2006-01-02"), t.ExitPrice, t.ExitReason, t.HoldingDays, t.NetReturnPct)
	}
	tw.Flush()
	if len(trades) > len(shown) {
		fmt.Fprintf(w, "... %d more\n", len(trades)-len(shown))
	}
}

// WriteSymbolStats prints per-symbol trade counts, most trades first.
func WriteSymbolStats(w io.Writer, trades []types.Trade, limit int) {
	stats := metrics.CalculateSymbolStats(trades)
	if len(stats) == 0 {
		return
	}
	rows := make([]*metrics.SymbolStats, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, st)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalTrades != rows[j].TotalTrades {
			return rows[i].TotalTrades > rows[j].TotalTrades
		}
		return rows[i].Symbol < rows[j].Symbol
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	fmt.Fprintln(w)
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tTRADES\tWINS\tLOSSES\tTIMEOUTS\tWIN RATE\tSHARPE")
	for _, st := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.1f%%\t%.2f\n",
			st.Symbol, st.TotalTrades, st.Wins, st.Losses, st.Timeouts, st.WinRate, st.SharpeRatio)
	}
	tw.Flush()
}

// WriteStops prints the post-exit bounce analysis of stopped trades.
func WriteStops(w io.Writer, a metrics.StopAnalysis) {
	section(w, "STOP-LOSS POST-MORTEM")
	if a.Analyzed == 0 {
		fmt.Fprintf(w, "%d stops, none with bars after the exit.\n", a.Stops)
		return
	}
	fmt.Fprintf(w, "Stops analyzed: %d of %d\n", a.Analyzed, a.Stops)
	fmt.Fprintf(w, "Recovered to target: %d  partial: %d  stayed down: %d\n",
		a.RecoveredToTarget, a.PartialRecovery, a.StayedDown)
	fmt.Fprintf(w, "Bounce mean %.2f%%  median %.2f%%\n", a.MeanBounce, a.MedianBounce)
	for i, label := range metrics.BucketLabels {
		fmt.Fprintf(w, "  %-10s %s %d\n", label, strings.Repeat("#", a.Buckets[i]), a.Buckets[i])
	}
}

// WriteScreens prints the latest-bar screen, strongest first.
func WriteScreens(w io.Writer, screens []scanner.Screen, limit int) {
	section(w, "LATEST BAR SCREEN")
	if limit > 0 && len(screens) > limit {
		screens = screens[:limit]
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "SYMBOL\tDATE\tCLOSE\tALERT\tVOL SCORE\tPRICE SCORE\tNOTES")
	for _, s := range screens {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%.2f\t%.2f\t%s\n",
			s.Symbol, s.Date.Format("2006-01-02"), s.Close, s.AlertName,
			s.VolumeScore, s.PriceChangeScore, strings.Join(s.Signals, "; "))
	}
	tw.Flush()
}
