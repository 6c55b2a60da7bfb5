package metrics

import (
	"github.com/fazecat/benfordscan/Internal/types"
)

// bounceEdges split post-stop bounces into <0, 0-3, 3-7, 7-15, 15-30 and 30+ percent.
var bounceEdges = []float64{0, 3, 7, 15, 30}

const partialRecoveryPct = 15.0

// StopAnalysis tracks what price did after stop-loss exits: the best high in
// the following window measured against the entry price.
type StopAnalysis struct {
	Stops             int       `json:"stops"`
	Analyzed          int       `json:"analyzed"`
	RecoveredToTarget int       `json:"recovered_to_target"`
	PartialRecovery   int       `json:"partial_recovery"`
	StayedDown        int       `json:"stayed_down"`
	Buckets           [6]int    `json:"buckets"`
	MeanBounce        float64   `json:"mean_bounce"`
	MedianBounce      float64   `json:"median_bounce"`
	Bounces           []float64 `json:"-"`
}

// BucketLabels names the entries of StopAnalysis.Buckets.
var BucketLabels = [6]string{"<0%", "0-3%", "3-7%", "7-15%", "15-30%", "30%+"}

// AnalyzeStops examines the window bars after each STOP exit of trades taken
// on s. Stops at the very end of the series are counted but not analyzed.
func AnalyzeStops(s *types.Series, trades []types.Trade, window int) StopAnalysis {
	var res StopAnalysis
	for _, t := range trades {
		if t.ExitReason != types.ExitStop {
			continue
		}
		res.Stops++

		from := t.ExitIndex + 1
		to := from + window
		if to > s.Len() {
			to = s.Len()
		}
		if from >= to || t.EntryPrice <= 0 {
			continue
		}

		maxHigh := s.Bars[from].High
		for _, b := range s.Bars[from+1 : to] {
			if b.High > maxHigh {
				maxHigh = b.High
			}
		}
		bounce := pctChange(t.EntryPrice, maxHigh)
		res.Bounces = append(res.Bounces, bounce)
		res.Analyzed++
		res.Buckets[bucketFor(bounce)]++

		switch {
		case maxHigh >= t.TargetPrice:
			res.RecoveredToTarget++
		case bounce >= partialRecoveryPct:
			res.PartialRecovery++
		default:
			res.StayedDown++
		}
	}
	res.MeanBounce = Average(res.Bounces)
	res.MedianBounce = Median(res.Bounces)
	return res
}

func bucketFor(bounce float64) int {
	for i, edge := range bounceEdges {
		if bounce < edge {
			return i
		}
	}
	return len(bounceEdges)
}

// Merge folds other into a and recomputes the bounce statistics.
func (a *StopAnalysis) Merge(other StopAnalysis) {
	a.Stops += other.Stops
	a.Analyzed += other.Analyzed
	a.RecoveredToTarget += other.RecoveredToTarget
	a.PartialRecovery += other.PartialRecovery
	a.StayedDown += other.StayedDown
	for i := range a.Buckets {
		a.Buckets[i] += other.Buckets[i]
	}
	a.Bounces = append(a.Bounces, other.Bounces...)
	a.MeanBounce = Average(a.Bounces)
	a.MedianBounce = Median(a.Bounces)
}
