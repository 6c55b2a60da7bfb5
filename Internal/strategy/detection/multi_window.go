package detection

import (
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
)

// MultiWindowDetector runs ChiSquare over several trailing volume windows.
// A sustained long-window deviation together with a fresh short-window
// deviation is read as quiet accumulation.
type MultiWindowDetector struct {
	Windows        []int
	LongWindow     int
	ShortWindows   []int
	LongThreshold  float64
	ShortThreshold float64
	MinSamples     int
}

func NewMultiWindowDetector(cfg config.BenfordConfig) *MultiWindowDetector {
	return &MultiWindowDetector{
		Windows:        cfg.Windows,
		LongWindow:     cfg.LongWindow,
		ShortWindows:   cfg.ShortWindows,
		LongThreshold:  cfg.LongThreshold,
		ShortThreshold: cfg.ShortThreshold,
		MinSamples:     cfg.MinSamples,
	}
}

// Evaluate returns chi2 per window and the derived alert level. Windows
// without enough positive volumes record 0.
func (d *MultiWindowDetector) Evaluate(volumes []float64) (map[int]float64, types.AlertLevel) {
	minSamples := d.MinSamples
	if minSamples < minChiSquareSamples {
		minSamples = minChiSquareSamples
	}

	results := make(map[int]float64, len(d.Windows))
	for _, w := range d.Windows {
		if len(volumes) < w || len(volumes) < minSamples {
			results[w] = 0
			continue
		}
		recent := positiveOnly(volumes[len(volumes)-w:])
		if len(recent) < minSamples {
			results[w] = 0
			continue
		}
		results[w] = ChiSquare(recent).Chi2
	}

	return results, d.Level(results)
}

// Level applies the alert rule to per-window chi2 values.
func (d *MultiWindowDetector) Level(results map[int]float64) types.AlertLevel {
	longAlert := results[d.LongWindow] > d.LongThreshold
	if !longAlert {
		return types.AlertNone
	}
	for _, w := range d.ShortWindows {
		if results[w] > d.ShortThreshold {
			return types.AlertStrong
		}
	}
	return types.AlertLongOnly
}

func positiveOnly(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v > 0 {
			out = append(out, v)
		}
	}
	return out
}
