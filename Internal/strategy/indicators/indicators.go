package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/fazecat/benfordscan/Internal/types"
)

const (
	RSIPeriod         = 14
	VolumeRatioWindow = 20

	// vpdMinMovePct floors the price move so flat days do not divide by zero.
	vpdMinMovePct = 0.1
	vpdCap        = 20.0
	vpdMinVolume  = 0.5
)

var ErrNotEnoughData = errors.New("not enough data")

func nanColumn(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// CalculateRSI computes Wilder's RSI. The result has the same length as
// closes; days before the first full period are NaN.
func CalculateRSI(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid RSI period %d", period)
	}
	if len(closes) <= period {
		return nil, fmt.Errorf("RSI(%d) needs more than %d closes, got %d: %w", period, period, len(closes), ErrNotEnoughData)
	}

	rsi := nanColumn(len(closes))
	p := float64(period)

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= p
	avgLoss /= p
	rsi[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		rsi[i] = rsiValue(avgGain, avgLoss)
	}
	return rsi, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// VolumeRatio is each day's volume over the trailing window average,
// NaN until the window fills.
func VolumeRatio(volumes []float64, window int) []float64 {
	out := nanColumn(len(volumes))
	if window <= 0 {
		return out
	}
	sum := 0.0
	for i, v := range volumes {
		sum += v
		if i >= window {
			sum -= volumes[i-window]
		}
		if i < window-1 {
			continue
		}
		avg := sum / float64(window)
		if avg > 0 {
			out[i] = v / avg
		}
	}
	return out
}

// VPD is the volume-price divergence: heavy volume on a small move. Days with
// volume below half the average score 0; the value is capped at 20.
func VPD(closes, volRatio []float64) []float64 {
	out := nanColumn(len(closes))
	for i := 1; i < len(closes) && i < len(volRatio); i++ {
		vr := volRatio[i]
		if math.IsNaN(vr) || closes[i-1] <= 0 {
			continue
		}
		if vr < vpdMinVolume {
			out[i] = 0
			continue
		}
		movePct := math.Max(math.Abs((closes[i]-closes[i-1])/closes[i-1])*100, vpdMinMovePct)
		out[i] = math.Min(vr/movePct, vpdCap)
	}
	return out
}

// SDE phase flags.
const (
	SDENone      = 0
	SDEDryingUp  = 2
	SDECompleted = 3
)

const (
	sdeStart          = 30
	sdeMinOffset      = 5
	sdeMaxOffset      = 30
	sdeMinDryupDays   = 3
	shakeoutReturn    = -0.04
	shakeoutVolume    = 1.5
	dryupVolumeLimit  = 1.0
	explosionReturn   = 0.05
	explosionVolume   = 2.0
	defaultRatioValue = 1.0
)

// SDE flags the shakeout, dry-up, explosion pattern. A day is SDEDryingUp when
// a shakeout 5-30 days back was followed by at least three quiet days, and
// SDECompleted when that day is itself the explosion.
func SDE(closes, volRatio []float64) []float64 {
	n := len(closes)
	out := make([]float64, n)

	ratio := func(i int) float64 {
		if i >= len(volRatio) || math.IsNaN(volRatio[i]) {
			return defaultRatioValue
		}
		return volRatio[i]
	}

	for i := sdeStart; i < n; i++ {
		if closes[i-1] <= 0 {
			continue
		}
		dailyReturn := (closes[i] - closes[i-1]) / closes[i-1]
		explosion := dailyReturn >= explosionReturn && ratio(i) >= explosionVolume

		for offset := sdeMinOffset; offset <= sdeMaxOffset; offset++ {
			s := i - offset
			if s < 1 {
				break
			}
			if closes[s-1] <= 0 {
				continue
			}
			sReturn := (closes[s] - closes[s-1]) / closes[s-1]
			if sReturn > shakeoutReturn || ratio(s) < shakeoutVolume {
				continue
			}
			if i-(s+1) < sdeMinDryupDays {
				continue
			}

			sum, count := 0.0, 0
			for d := s + 1; d < i; d++ {
				if d < len(volRatio) && !math.IsNaN(volRatio[d]) {
					sum += volRatio[d]
					count++
				}
			}
			if count == 0 || sum/float64(count) >= dryupVolumeLimit {
				continue
			}

			if explosion {
				out[i] = SDECompleted
			} else {
				out[i] = SDEDryingUp
			}
			break
		}
	}
	return out
}

// Enrich fills the RSI, VPD and SDE columns of s from its bars. A series too
// short for RSI keeps an all-NaN RSI column.
func Enrich(s *types.Series) {
	closes := s.Closes()
	volRatio := VolumeRatio(s.Volumes(), VolumeRatioWindow)

	rsi, err := CalculateRSI(closes, RSIPeriod)
	if err != nil {
		rsi = nanColumn(len(closes))
	}
	s.RSI = rsi
	s.VPD = VPD(closes, volRatio)
	s.SDE = SDE(closes, volRatio)
}
