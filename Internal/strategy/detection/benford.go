package detection

import (
	"math"
	"strconv"

	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
)

// minChiSquareSamples is the insufficient-data floor for ChiSquare.
const minChiSquareSamples = 5

// defaultScoreMidpoint puts DeviationScore at 0.5 for chi2 = 15.
const defaultScoreMidpoint = 15.0

// benfordExpected[d] is P(leading digit = d) = log10(1 + 1/d); index 0 is unused.
var benfordExpected = func() [10]float64 {
	var p [10]float64
	for d := 1; d <= 9; d++ {
		p[d] = math.Log10(1 + 1/float64(d))
	}
	return p
}()

// BenfordProbability returns the expected frequency of leading digit d.
func BenfordProbability(d int) float64 {
	if d < 1 || d > 9 {
		return 0
	}
	return benfordExpected[d]
}

// LeadingDigit returns the first significant digit of |x|, or 0 for x == 0.
func LeadingDigit(x float64) int {
	x = math.Abs(x)
	if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	for x < 1 {
		x *= 10
	}
	for x >= 10 {
		x /= 10
	}
	return int(x)
}

// DigitHistogram counts leading digits of the non-zero values.
func DigitHistogram(values []float64) (hist [10]int, n int) {
	for _, v := range values {
		if v == 0 {
			continue
		}
		d := LeadingDigit(v)
		if d < 1 || d > 9 {
			continue
		}
		hist[d]++
		n++
	}
	return hist, n
}

// ChiSquare measures how far the leading-digit histogram of values departs
// from Benford's Law. Zeros are dropped; fewer than five remaining values
// yield chi2 = 0.
func ChiSquare(values []float64) types.ChiSquareResult {
	hist, n := DigitHistogram(values)
	if n < minChiSquareSamples {
		return types.ChiSquareResult{Chi2: 0, N: n}
	}

	chi2 := 0.0
	for d := 1; d <= 9; d++ {
		expected := benfordExpected[d] * float64(n)
		if expected <= 0 {
			continue
		}
		diff := float64(hist[d]) - expected
		chi2 += diff * diff / expected
	}
	return types.ChiSquareResult{Chi2: chi2, N: n}
}

// ScoreFromChi2 maps chi2 onto [0,1) with 1 - 1/(1 + chi2/midpoint).
func ScoreFromChi2(chi2, midpoint float64) float64 {
	if midpoint <= 0 {
		midpoint = defaultScoreMidpoint
	}
	if chi2 <= 0 {
		return 0
	}
	return 1.0 - 1.0/(1.0+chi2/midpoint)
}

// Scorer turns chi-square values into bounded deviation scores.
type Scorer struct {
	// Midpoint is the chi2 that scores 0.5.
	Midpoint float64
}

// NewScorer builds a scorer with the configured midpoint.
func NewScorer(cfg config.BenfordConfig) Scorer {
	return Scorer{Midpoint: cfg.ScoreMidpoint}
}

// Deviation returns a bounded deviation score and the raw chi2.
func (sc Scorer) Deviation(values []float64) (float64, float64) {
	chi2 := ChiSquare(values).Chi2
	return ScoreFromChi2(chi2, sc.Midpoint), chi2
}

// VolumeDeviation scores the trailing window of volumes. Series shorter than
// the window score 0.
func (sc Scorer) VolumeDeviation(volumes []float64, window int) (float64, float64) {
	if window <= 0 || len(volumes) < window {
		return 0, 0
	}
	return sc.Deviation(volumes[len(volumes)-window:])
}

// PriceChangeDeviation scores the absolute day-over-day close changes in the
// trailing window. Flat days are ignored.
func (sc Scorer) PriceChangeDeviation(closes []float64, window int) (float64, float64) {
	if window <= 0 || len(closes) < window+1 {
		return 0, 0
	}
	tail := closes[len(closes)-window-1:]
	changes := make([]float64, 0, window)
	for i := 1; i < len(tail); i++ {
		if ch := math.Abs(tail[i] - tail[i-1]); ch > 0 {
			changes = append(changes, ch)
		}
	}
	if len(changes) < minChiSquareSamples {
		return 0, 0
	}
	return sc.Deviation(changes)
}

var defaultScorer = Scorer{Midpoint: defaultScoreMidpoint}

// DeviationScore scores values with the default midpoint: chi2 ≈ 15 scores
// ≈ 0.5 and chi2 ≈ 30 scores ≈ 0.67. The score never reaches 1.
func DeviationScore(values []float64) (float64, float64) {
	return defaultScorer.Deviation(values)
}

func VolumeDeviation(volumes []float64, window int) (float64, float64) {
	return defaultScorer.VolumeDeviation(volumes, window)
}

func PriceChangeDeviation(closes []float64, window int) (float64, float64) {
	return defaultScorer.PriceChangeDeviation(closes, window)
}

// NearPsychologicalLevel reports whether price sits within marginPct of the
// nearest round level at its leading magnitude (e.g. 10,000 for 9,870).
func NearPsychologicalLevel(price, marginPct float64) (bool, float64) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return false, 0
	}
	digits := len(strconv.FormatInt(int64(price), 10))
	magnitude := math.Pow(10, float64(digits-1))
	level := math.Round(price/magnitude) * magnitude
	distance := math.Abs(price-level) / price
	return distance < marginPct, level
}
