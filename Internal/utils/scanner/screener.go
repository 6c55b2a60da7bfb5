package scanner

import (
	"fmt"
	"sort"
	"time"

	"github.com/fazecat/benfordscan/Internal/strategy/detection"
	"github.com/fazecat/benfordscan/Internal/types"
)

// Screen is the Benford picture of one series as of its last bar.
type Screen struct {
	Symbol           string           `json:"symbol"`
	Date             time.Time        `json:"date"`
	Close            float64          `json:"close"`
	Alert            types.AlertLevel `json:"-"`
	AlertName        string           `json:"alert"`
	WindowChi2       map[int]float64  `json:"window_chi2"`
	VolumeScore      float64          `json:"volume_score"`
	PriceChangeScore float64          `json:"price_change_score"`
	NearLevel        bool             `json:"near_level"`
	Level            float64          `json:"level"`
	Signals          []string         `json:"signals"`
	// Alert level first, then the volume deviation score.
	Score float64 `json:"score"`
}

// ScreenSeries evaluates the trailing windows ending at the last bar.
func (sc *Scanner) ScreenSeries(s *types.Series) (Screen, bool) {
	n := s.Len()
	if n == 0 {
		return Screen{}, false
	}
	last := s.Bars[n-1]
	bc := sc.cfg.Benford

	volumes := s.Volumes()
	from := n - sc.cfg.Signals.BenfordLookback
	if from < 0 {
		from = 0
	}
	chi2, alert := sc.detector.MultiWindow().Evaluate(volumes[from:])

	screen := Screen{
		Symbol:     s.Symbol,
		Date:       last.Date,
		Close:      last.Close,
		Alert:      alert,
		AlertName:  alert.String(),
		WindowChi2: chi2,
	}
	screen.VolumeScore, _ = sc.digits.VolumeDeviation(volumes, bc.LongWindow)
	screen.PriceChangeScore, _ = sc.digits.PriceChangeDeviation(s.Closes(), bc.LongWindow)
	screen.NearLevel, screen.Level = detection.NearPsychologicalLevel(last.Close, bc.PsychMarginPct)

	if alert != types.AlertNone {
		screen.Signals = append(screen.Signals, fmt.Sprintf("%s volume digit alert", alert))
	}
	if screen.PriceChangeScore >= 0.5 {
		screen.Signals = append(screen.Signals, fmt.Sprintf("price change digits deviate (%.2f)", screen.PriceChangeScore))
	}
	if screen.NearLevel {
		screen.Signals = append(screen.Signals, fmt.Sprintf("within %.0f%% of %.0f", bc.PsychMarginPct*100, screen.Level))
	}

	screen.Score = float64(alert) + screen.VolumeScore
	return screen, true
}

// ScreenAll screens the population, strongest first. Ties keep population
// order.
func (sc *Scanner) ScreenAll(population []*types.Series) []Screen {
	results := make([]Screen, 0, len(population))
	for _, s := range population {
		if screen, ok := sc.ScreenSeries(s); ok {
			results = append(results, screen)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
