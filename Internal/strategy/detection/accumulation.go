package detection

import (
	"math"

	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
)

// neutralRSI stands in when a series carries no RSI column at all.
const neutralRSI = 50.0

// AccumulationDetector finds raw signal days for each detector kind. Only
// days far enough from both ends of the series to allow warmup and
// lookahead are evaluated.
type AccumulationDetector struct {
	cfg     config.SignalConfig
	benford *MultiWindowDetector
}

func NewAccumulationDetector(signals config.SignalConfig, benford config.BenfordConfig) *AccumulationDetector {
	return &AccumulationDetector{
		cfg:     signals,
		benford: NewMultiWindowDetector(benford),
	}
}

func (d *AccumulationDetector) MultiWindow() *MultiWindowDetector {
	return d.benford
}

// EvaluableRange returns the half-open index range [start, end) of days that
// may carry a signal.
func (d *AccumulationDetector) EvaluableRange(n int) (int, int) {
	start := d.cfg.WarmupDays
	end := n - d.cfg.LookaheadDays
	if end < start {
		return start, start
	}
	return start, end
}

func (d *AccumulationDetector) rsiAllowed(s *types.Series, i int) bool {
	rsi := neutralRSI
	if len(s.RSI) > 0 {
		rsi = types.Indicator(s.RSI, i)
	}
	if math.IsNaN(rsi) {
		return false
	}
	return rsi >= d.cfg.RSIMin && rsi <= d.cfg.RSIMax
}

// VPD fires where the volume-price divergence reaches threshold inside the
// accumulation RSI band.
func (d *AccumulationDetector) VPD(s *types.Series, threshold float64) []int {
	if len(s.VPD) == 0 {
		return nil
	}
	var days []int
	start, end := d.EvaluableRange(s.Len())
	for i := start; i < end; i++ {
		vpd := types.Indicator(s.VPD, i)
		if math.IsNaN(vpd) || vpd < threshold {
			continue
		}
		if d.rsiAllowed(s, i) {
			days = append(days, i)
		}
	}
	return days
}

// Benford fires on STRONG multi-window alerts over the trailing volumes.
func (d *AccumulationDetector) Benford(s *types.Series) []int {
	volumes := s.Volumes()
	lookback := d.cfg.BenfordLookback

	var days []int
	start, end := d.EvaluableRange(s.Len())
	for i := start; i < end; i++ {
		from := i - lookback + 1
		if from < 0 {
			from = 0
		}
		_, level := d.benford.Evaluate(volumes[from : i+1])
		if level != types.AlertStrong {
			continue
		}
		if d.rsiAllowed(s, i) {
			days = append(days, i)
		}
	}
	return days
}

// SDE fires on days whose pattern flag equals the completed phase.
func (d *AccumulationDetector) SDE(s *types.Series) []int {
	if len(s.SDE) == 0 {
		return nil
	}
	var days []int
	start, end := d.EvaluableRange(s.Len())
	for i := start; i < end; i++ {
		if types.Indicator(s.SDE, i) == d.cfg.SDEPhase {
			days = append(days, i)
		}
	}
	return days
}

// DetectAll runs every detector with the configured VPD threshold.
func (d *AccumulationDetector) DetectAll(s *types.Series) map[types.SignalKind][]int {
	return map[types.SignalKind][]int{
		types.SignalVPD:     d.VPD(s, d.cfg.VPDThreshold),
		types.SignalBenford: d.Benford(s),
		types.SignalSDE:     d.SDE(s),
	}
}
