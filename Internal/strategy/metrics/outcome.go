package metrics

import (
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
)

// OutcomeMeasurer records what the market did after a signal day.
type OutcomeMeasurer struct {
	cfg config.OutcomeConfig
}

func NewOutcomeMeasurer(cfg config.OutcomeConfig) *OutcomeMeasurer {
	return &OutcomeMeasurer{cfg: cfg}
}

// Measure returns forward returns at each horizon and the best and worst
// excursion over the lookahead window, all as percentages of the entry
// close. Horizons past the end of the series are nil. It returns nil when the
// signal index is out of range or the entry close is not positive.
func (m *OutcomeMeasurer) Measure(s *types.Series, ev types.SignalEvent) *types.OutcomeRecord {
	idx := ev.Index
	n := s.Len()
	if idx < 0 || idx >= n {
		return nil
	}
	entry := s.Bars[idx].Close
	if entry <= 0 {
		return nil
	}

	rec := &types.OutcomeRecord{
		Symbol:     s.Symbol,
		Date:       s.Bars[idx].Date,
		Signal:     ev,
		EntryPrice: entry,
		Forward:    make(map[int]*float64, len(m.cfg.Horizons)),
	}

	for _, h := range m.cfg.Horizons {
		if idx+h < n {
			r := pctChange(entry, s.Bars[idx+h].Close)
			rec.Forward[h] = &r
		} else {
			rec.Forward[h] = nil
		}
	}

	end := idx + m.cfg.LookaheadDays + 1
	if end > n {
		end = n
	}
	if end > idx+1 {
		maxHigh := s.Bars[idx+1].High
		minLow := s.Bars[idx+1].Low
		for _, b := range s.Bars[idx+2 : end] {
			if b.High > maxHigh {
				maxHigh = b.High
			}
			if b.Low < minLow {
				minLow = b.Low
			}
		}
		gain := pctChange(entry, maxHigh)
		drawdown := pctChange(entry, minLow)
		rec.MaxGain = &gain
		rec.MaxDrawdown = &drawdown
		rec.HitTarget = gain >= m.cfg.HitThresholdPct
	}

	return rec
}

// MeasureAll measures every event, dropping those Measure rejects.
func (m *OutcomeMeasurer) MeasureAll(s *types.Series, events []types.SignalEvent) []types.OutcomeRecord {
	out := make([]types.OutcomeRecord, 0, len(events))
	for _, ev := range events {
		if rec := m.Measure(s, ev); rec != nil {
			out = append(out, *rec)
		}
	}
	return out
}

func pctChange(from, to float64) float64 {
	return (to - from) / from * 100
}
