package validation

import (
	"sort"

	"github.com/fazecat/benfordscan/Internal/strategy/metrics"
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
)

type Verdict string

const (
	VerdictGo          Verdict = "GO"
	VerdictConditional Verdict = "CONDITIONAL"
	VerdictNoGo        Verdict = "NO-GO"
)

type Criterion struct {
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Passed    bool    `json:"passed"`
}

// Summary aggregates a population of outcomes. Returns and rates are
// percentages; MeanReturns only holds horizons with at least one value.
type Summary struct {
	Samples       int             `json:"samples"`
	MeanReturns   map[int]float64 `json:"mean_returns"`
	Horizon       int             `json:"horizon"`
	HorizonCount  int             `json:"horizon_count"`
	WinRate       float64         `json:"win_rate"`
	MedianMaxGain float64         `json:"median_max_gain"`
	HitRate       float64         `json:"hit_rate"`
	Asymmetry     float64         `json:"asymmetry"`
	Criteria      []Criterion     `json:"criteria"`
	Passed        int             `json:"passed"`
}

// MeanReturn is the mean forward return at the validation horizon.
func (s Summary) MeanReturn() float64 {
	return s.MeanReturns[s.Horizon]
}

type Scorer struct {
	cfg config.ValidationConfig
}

func NewScorer(cfg config.ValidationConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Summarize computes the population statistics without judging them.
func (sc *Scorer) Summarize(outcomes []types.OutcomeRecord) Summary {
	sum := Summary{
		Samples:     len(outcomes),
		MeanReturns: make(map[int]float64),
		Horizon:     sc.cfg.Horizon,
	}

	byHorizon := make(map[int][]float64)
	var maxGains []float64
	hits := 0
	for i := range outcomes {
		o := &outcomes[i]
		for h := range o.Forward {
			if r, ok := o.ForwardReturn(h); ok {
				byHorizon[h] = append(byHorizon[h], r)
			}
		}
		if o.MaxGain != nil {
			maxGains = append(maxGains, *o.MaxGain)
		}
		if o.HitTarget {
			hits++
		}
	}

	horizons := make([]int, 0, len(byHorizon))
	for h := range byHorizon {
		horizons = append(horizons, h)
	}
	sort.Ints(horizons)
	for _, h := range horizons {
		sum.MeanReturns[h] = metrics.Average(byHorizon[h])
	}

	atHorizon := byHorizon[sc.cfg.Horizon]
	sum.HorizonCount = len(atHorizon)
	sum.MedianMaxGain = metrics.Median(maxGains)
	if len(outcomes) > 0 {
		sum.HitRate = float64(hits) / float64(len(outcomes)) * 100
	}

	var pos, neg []float64
	for _, r := range atHorizon {
		switch {
		case r > 0:
			pos = append(pos, r)
		case r < 0:
			neg = append(neg, r)
		}
	}
	if len(atHorizon) > 0 {
		sum.WinRate = float64(len(pos)) / float64(len(atHorizon)) * 100
	}
	sum.Asymmetry = asymmetry(pos, neg)
	return sum
}

// asymmetry is mean winner over |mean loser|. With no losers the
// denominator is 1.
func asymmetry(pos, neg []float64) float64 {
	avgPos := metrics.Average(pos)
	avgNeg := 1.0
	if len(neg) > 0 {
		avgNeg = -metrics.Average(neg)
	}
	if avgNeg <= 0 {
		return 0
	}
	return avgPos / avgNeg
}

// Score summarizes the outcomes and applies the five pass criteria. Four or
// more passes is GO, exactly the conditional count is CONDITIONAL, anything
// else NO-GO. A population with no return at the validation horizon is
// always NO-GO.
func (sc *Scorer) Score(outcomes []types.OutcomeRecord) (Summary, Verdict) {
	sum := sc.Summarize(outcomes)

	sum.Criteria = []Criterion{
		{Name: "sample_size", Value: float64(sum.Samples), Threshold: float64(sc.cfg.MinSamples), Passed: sum.Samples >= sc.cfg.MinSamples},
		{Name: "mean_return", Value: sum.MeanReturn(), Threshold: sc.cfg.MinMeanReturn, Passed: sum.MeanReturn() > sc.cfg.MinMeanReturn},
		{Name: "win_rate", Value: sum.WinRate, Threshold: sc.cfg.MinWinRate, Passed: sum.WinRate >= sc.cfg.MinWinRate},
		{Name: "median_max_gain", Value: sum.MedianMaxGain, Threshold: sc.cfg.MinMedianMaxGain, Passed: sum.MedianMaxGain >= sc.cfg.MinMedianMaxGain},
		{Name: "asymmetry", Value: sum.Asymmetry, Threshold: sc.cfg.MinAsymmetry, Passed: sum.Asymmetry > sc.cfg.MinAsymmetry},
	}
	for _, c := range sum.Criteria {
		if c.Passed {
			sum.Passed++
		}
	}

	if sum.HorizonCount == 0 {
		return sum, VerdictNoGo
	}
	return sum, sc.verdict(sum.Passed)
}

func (sc *Scorer) verdict(passed int) Verdict {
	switch {
	case passed >= sc.cfg.GoCriteria:
		return VerdictGo
	case passed >= sc.cfg.ConditionalMin:
		return VerdictConditional
	default:
		return VerdictNoGo
	}
}
