package detection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fazecat/benfordscan/Internal/utils/config"
)

// benfordSample builds n values whose leading digits follow Benford's Law
// to within rounding.
func benfordSample(n int) []float64 {
	var values []float64
	for d := 1; d <= 9; d++ {
		count := int(math.Round(BenfordProbability(d) * float64(n)))
		for i := 0; i < count; i++ {
			values = append(values, float64(d)*1000+float64(i%100))
		}
	}
	return values
}

func uniformDigitSample(perDigit int) []float64 {
	var values []float64
	for d := 1; d <= 9; d++ {
		for i := 0; i < perDigit; i++ {
			values = append(values, float64(d)*100+float64(i%50))
		}
	}
	return values
}

func TestLeadingDigit(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int
	}{
		{"zero", 0, 0},
		{"single digit", 7, 7},
		{"large", 98765, 9},
		{"fraction", 0.0042, 4},
		{"negative", -312.5, 3},
		{"exact power of ten", 1000, 1},
		{"nan", math.NaN(), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LeadingDigit(tt.in))
		})
	}
}

func TestLeadingDigit_ScaleInvariant(t *testing.T) {
	for _, x := range []float64{1.5, 23.4, 456, 7890, 0.0123, 5, 999} {
		d := LeadingDigit(x)
		assert.Equal(t, d, LeadingDigit(x*10), "x=%v scaled up", x)
		assert.Equal(t, d, LeadingDigit(x/10), "x=%v scaled down", x)
	}
}

func TestChiSquare_BenfordConformingSampleIsNearZero(t *testing.T) {
	values := benfordSample(1000)
	res := ChiSquare(values)

	assert.Equal(t, 1000, res.N)
	assert.Less(t, res.Chi2, 0.5)
}

func TestChiSquare_UniformDigitsDeviateStrongly(t *testing.T) {
	res := ChiSquare(uniformDigitSample(100))

	assert.Equal(t, 900, res.N)
	assert.Greater(t, res.Chi2, 100.0)
}

func TestChiSquare_InsufficientData(t *testing.T) {
	res := ChiSquare([]float64{0, 0, 0, 12, 250, 3, 44})

	assert.Equal(t, 4, res.N)
	assert.Zero(t, res.Chi2)

	assert.Zero(t, ChiSquare(nil).Chi2)
}

func TestChiSquare_IgnoresZeros(t *testing.T) {
	values := []float64{9, 90, 900, 9000, 90000}
	withZeros := append([]float64{0, 0, 0}, values...)

	assert.InDelta(t, ChiSquare(values).Chi2, ChiSquare(withZeros).Chi2, 1e-12)
}

func TestDeviationScore(t *testing.T) {
	score, chi2 := DeviationScore(nil)
	assert.Zero(t, score)
	assert.Zero(t, chi2)

	assert.InDelta(t, 0.5, ScoreFromChi2(15, 15), 1e-12)
	assert.InDelta(t, 2.0/3.0, ScoreFromChi2(30, 15), 1e-12)

	prev := 0.0
	for chi := 0.0; chi <= 1000; chi += 2.5 {
		s := ScoreFromChi2(chi, 15)
		assert.GreaterOrEqual(t, s, prev)
		assert.Less(t, s, 1.0)
		prev = s
	}

	score, chi2 = DeviationScore(uniformDigitSample(30))
	assert.Greater(t, chi2, 15.0)
	assert.Greater(t, score, 0.5)
}

func TestVolumeDeviation(t *testing.T) {
	score, chi2 := VolumeDeviation([]float64{100, 200, 300}, 20)
	assert.Zero(t, score)
	assert.Zero(t, chi2)

	volumes := append(benfordSample(200), uniformDigitSample(5)...)
	score, chi2 = VolumeDeviation(volumes, 45)
	wantScore, wantChi2 := DeviationScore(volumes[len(volumes)-45:])
	assert.Equal(t, wantScore, score)
	assert.Equal(t, wantChi2, chi2)
}

func TestPriceChangeDeviation(t *testing.T) {
	flat := make([]float64, 25)
	for i := range flat {
		flat[i] = 100
	}
	score, chi2 := PriceChangeDeviation(flat, 20)
	assert.Zero(t, score)
	assert.Zero(t, chi2)

	score, _ = PriceChangeDeviation([]float64{1, 2, 3}, 20)
	assert.Zero(t, score)

	// every change is 9, a digit Benford says is rare
	closes := make([]float64, 21)
	for i := range closes {
		closes[i] = 1000 + 9*float64(i)
	}
	score, chi2 = PriceChangeDeviation(closes, 20)
	assert.Greater(t, chi2, 100.0)
	assert.Greater(t, score, 0.8)
}

func TestScorer_Midpoint(t *testing.T) {
	values := uniformDigitSample(30)
	chi2 := ChiSquare(values).Chi2

	def, defChi2 := DeviationScore(values)
	wide, wideChi2 := NewScorer(config.BenfordConfig{ScoreMidpoint: 45}).Deviation(values)
	assert.Equal(t, defChi2, wideChi2)
	assert.InDelta(t, ScoreFromChi2(chi2, 15), def, 1e-12)
	assert.InDelta(t, ScoreFromChi2(chi2, 45), wide, 1e-12)
	assert.Less(t, wide, def)

	volumes := uniformDigitSample(10)
	tight, _ := Scorer{Midpoint: 5}.VolumeDeviation(volumes, 45)
	loose, _ := VolumeDeviation(volumes, 45)
	assert.Greater(t, tight, loose)
}

func TestNearPsychologicalLevel(t *testing.T) {
	near, level := NearPsychologicalLevel(9870, 0.02)
	assert.True(t, near)
	assert.Equal(t, 10000.0, level)

	near, level = NearPsychologicalLevel(45500, 0.02)
	assert.False(t, near)
	assert.Equal(t, 50000.0, level)

	near, _ = NearPsychologicalLevel(-5, 0.02)
	assert.False(t, near)
}
