package metrics

import (
	"math"
	"sort"

	"github.com/fazecat/benfordscan/Internal/types"
)

type SymbolStats struct {
	Symbol       string  `json:"symbol"`
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Timeouts     int     `json:"timeouts"`
	WinRate      float64 `json:"win_rate"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
}

// ExpectedValue summarises closed trades. WinRate is a fraction; the average
// returns and EV are percentages.
type ExpectedValue struct {
	WinRate float64 `json:"win_rate"`
	AvgWin  float64 `json:"avg_win"`
	AvgLoss float64 `json:"avg_loss"`
	EV      float64 `json:"expected_value"`
	Samples int     `json:"samples"`
}

// Average returns the arithmetic mean, 0 for no values.
func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the middle value, 0 for no values.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ClosedTrades drops timeouts; only target and stop exits carry direction.
func ClosedTrades(trades []types.Trade) []types.Trade {
	out := make([]types.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Closed() {
			out = append(out, t)
		}
	}
	return out
}

// CalculateWinRate is target exits over closed trades, in percent.
func CalculateWinRate(trades []types.Trade) float64 {
	wins, closed := 0, 0
	for _, t := range trades {
		if !t.Closed() {
			continue
		}
		closed++
		if t.ExitReason == types.ExitTarget {
			wins++
		}
	}
	if closed == 0 {
		return 0.0
	}
	return float64(wins) / float64(closed) * 100
}

// CalculateExpectedValue computes EV = wr*avgWin + (1-wr)*avgLoss over closed
// trades with finite returns. It reports false when fewer than minClosed
// trades remain, when there is no losing trade, or when EV is not finite.
func CalculateExpectedValue(trades []types.Trade, minClosed int) (ExpectedValue, bool) {
	closed := ClosedTrades(trades)
	if len(closed) < minClosed {
		return ExpectedValue{}, false
	}

	var wins, losses []float64
	for _, t := range closed {
		if !isFinite(t.NetReturnPct) {
			continue
		}
		if t.ExitReason == types.ExitTarget {
			wins = append(wins, t.NetReturnPct)
		} else {
			losses = append(losses, t.NetReturnPct)
		}
	}
	valid := len(wins) + len(losses)
	if valid < minClosed || valid == 0 {
		return ExpectedValue{}, false
	}
	// an all-win sample is treated as overfit
	if len(losses) == 0 {
		return ExpectedValue{}, false
	}

	wr := float64(len(wins)) / float64(valid)
	res := ExpectedValue{
		WinRate: wr,
		AvgWin:  Average(wins),
		AvgLoss: Average(losses),
		Samples: valid,
	}
	res.EV = wr*res.AvgWin + (1-wr)*res.AvgLoss
	if !isFinite(res.EV) {
		return ExpectedValue{}, false
	}
	return res, true
}

func tradeReturns(trades []types.Trade) []float64 {
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		if isFinite(t.NetReturnPct) {
			returns = append(returns, t.NetReturnPct)
		}
	}
	return returns
}

func CalculateSharpeRatio(trades []types.Trade, riskFreeRate float64) float64 {
	returns := tradeReturns(trades)
	if len(returns) == 0 {
		return 0.0
	}
	stdDev := calculateStandardDeviation(returns)
	if stdDev == 0 {
		return 0.0
	}
	return (Average(returns) - riskFreeRate) / stdDev
}

func CalculateSortinoRatio(trades []types.Trade, riskFreeRate float64) float64 {
	returns := tradeReturns(trades)
	if len(returns) == 0 {
		return 0.0
	}
	var negativeReturns []float64
	for _, r := range returns {
		if r < 0 {
			negativeReturns = append(negativeReturns, r)
		}
	}
	downsideDev := calculateStandardDeviation(negativeReturns)
	if downsideDev == 0 {
		return 0.0
	}
	return (Average(returns) - riskFreeRate) / downsideDev
}

// CompoundReturn chains trade returns in entry order, in percent.
func CompoundReturn(trades []types.Trade) float64 {
	ordered := append([]types.Trade(nil), trades...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EntryDate.Before(ordered[j].EntryDate)
	})
	equity := 1.0
	for _, t := range ordered {
		if !isFinite(t.NetReturnPct) {
			continue
		}
		equity *= 1 + t.NetReturnPct/100
	}
	return (equity - 1) * 100
}

func CalculateSymbolStats(trades []types.Trade) map[string]*SymbolStats {
	tradeMap := make(map[string][]types.Trade)
	results := make(map[string]*SymbolStats)

	for _, trade := range trades {
		tradeMap[trade.Symbol] = append(tradeMap[trade.Symbol], trade)
	}

	for symbol, tradesForSymbol := range tradeMap {
		stats := &SymbolStats{
			Symbol:      symbol,
			TotalTrades: len(tradesForSymbol),
			WinRate:     CalculateWinRate(tradesForSymbol),
			// per-trade returns, so no risk-free adjustment
			SharpeRatio:  CalculateSharpeRatio(tradesForSymbol, 0),
			SortinoRatio: CalculateSortinoRatio(tradesForSymbol, 0),
		}
		for _, trade := range tradesForSymbol {
			switch trade.ExitReason {
			case types.ExitTarget:
				stats.Wins++
			case types.ExitStop:
				stats.Losses++
			default:
				stats.Timeouts++
			}
		}
		results[symbol] = stats
	}
	return results
}

func calculateStandardDeviation(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	mean := Average(values)
	varianceSum := 0.0
	for _, v := range values {
		varianceSum += (v - mean) * (v - mean)
	}
	variance := varianceSum / float64(len(values))
	return math.Sqrt(variance)
}
