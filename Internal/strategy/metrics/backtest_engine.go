package metrics

import (
	"sort"

	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
)

// Simulator replays a series forward from a signal day under take-profit,
// stop-loss and timeout exits.
type Simulator struct {
	cfg config.BacktestConfig
}

func NewSimulator(cfg config.BacktestConfig) *Simulator {
	return &Simulator{cfg: cfg}
}

// Simulate opens a position at the signal day's close and walks the following
// bars until the target or stop is touched or MaxHoldDays pass. When one bar
// breaches both levels the open decides: an open at or below the stop exits
// at the stop, anything else exits at the target. Without an exit the trade
// times out at the close of the last evaluated bar. The bool is false when
// the signal index is out of range or the entry close is not positive.
func (sim *Simulator) Simulate(s *types.Series, signalIndex int, p types.ParameterSet) (types.Trade, bool) {
	n := s.Len()
	if signalIndex < 0 || signalIndex >= n {
		return types.Trade{}, false
	}
	entryBar := s.Bars[signalIndex]
	entry := entryBar.Close
	if entry <= 0 {
		return types.Trade{}, false
	}

	trade := types.Trade{
		Symbol:      s.Symbol,
		SignalIndex: signalIndex,
		EntryIndex:  signalIndex,
		EntryDate:   entryBar.Date,
		EntryPrice:  entry,
		TargetPrice: entry * (1 + p.TakeProfitPct),
		StopPrice:   entry * (1 - p.StopLossPct),
	}

	limit := sim.cfg.MaxHoldDays + 1
	if remaining := n - signalIndex; remaining < limit {
		limit = remaining
	}

	for d := 1; d < limit; d++ {
		bar := s.Bars[signalIndex+d]
		trade.HoldingDays = d

		hitTarget := bar.High >= trade.TargetPrice
		hitStop := bar.Low <= trade.StopPrice

		switch {
		case hitTarget && hitStop:
			if bar.Open <= trade.StopPrice {
				sim.close(&trade, s, signalIndex+d, trade.StopPrice, types.ExitStop)
			} else {
				sim.close(&trade, s, signalIndex+d, trade.TargetPrice, types.ExitTarget)
			}
			return trade, true
		case hitTarget:
			sim.close(&trade, s, signalIndex+d, trade.TargetPrice, types.ExitTarget)
			return trade, true
		case hitStop:
			sim.close(&trade, s, signalIndex+d, trade.StopPrice, types.ExitStop)
			return trade, true
		}
	}

	last := signalIndex + sim.cfg.MaxHoldDays
	if last > n-1 {
		last = n - 1
	}
	sim.close(&trade, s, last, s.Bars[last].Close, types.ExitTimeout)
	return trade, true
}

func (sim *Simulator) close(t *types.Trade, s *types.Series, idx int, price float64, reason types.ExitReason) {
	t.ExitIndex = idx
	t.ExitDate = s.Bars[idx].Date
	t.ExitPrice = price
	t.ExitReason = reason
	t.NetReturnPct = NetReturnPct(t.EntryPrice, price, sim.cfg.RoundTripCost)
}

// NetReturnPct is the cost-adjusted return in percent. The round trip cost is
// charged once per trade whatever the outcome.
func NetReturnPct(entry, exit, roundTripCost float64) float64 {
	return (exit/entry - 1 - roundTripCost) * 100
}

// Run simulates every signal in index order, one position at a time. After a
// trade exits, signals before ExitIndex + cooldown are skipped. A run of
// CircuitBreakerLosses consecutive stops extends the cooldown by
// CircuitBreakerExtra days until a non-stop exit resets the run.
func (sim *Simulator) Run(s *types.Series, signals []int, p types.ParameterSet) []types.Trade {
	ordered := append([]int(nil), signals...)
	sort.Ints(ordered)

	var trades []types.Trade
	nextAllowed := -1
	consecutiveStops := 0

	for _, idx := range ordered {
		if idx < nextAllowed {
			continue
		}
		trade, ok := sim.Simulate(s, idx, p)
		if !ok {
			continue
		}
		trades = append(trades, trade)

		if trade.ExitReason == types.ExitStop {
			consecutiveStops++
		} else {
			consecutiveStops = 0
		}

		cooldown := p.CooldownDays
		if sim.cfg.CircuitBreakerLosses > 0 && consecutiveStops >= sim.cfg.CircuitBreakerLosses {
			cooldown += sim.cfg.CircuitBreakerExtra
		}
		nextAllowed = trade.ExitIndex + cooldown
	}
	return trades
}
