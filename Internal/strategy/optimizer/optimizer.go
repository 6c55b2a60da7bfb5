package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fazecat/benfordscan/Internal/strategy/detection"
	"github.com/fazecat/benfordscan/Internal/strategy/metrics"
	"github.com/fazecat/benfordscan/Internal/strategy/signals"
	"github.com/fazecat/benfordscan/Internal/strategy/validation"
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
	"github.com/fazecat/benfordscan/Internal/utils/logger"
	"github.com/fazecat/benfordscan/Internal/utils/telemetry"
)

// ErrNoCandidate means no parameter set met the sample size, loss and
// reward:risk constraints. Callers choose their own fallback.
var ErrNoCandidate = errors.New("no qualifying parameter set")

// stabilityPoints is the score a fully trusted sample size contributes
// before weighting.
const stabilityPoints = 30.0

// rewardRiskTolerance keeps ratios like 0.15/0.10 from falling under a 1.5
// floor through rounding.
const rewardRiskTolerance = 1e-9

// Instrument is one series with its deduplicated signal days.
type Instrument struct {
	Series  *types.Series
	Signals []int
}

type ThresholdResult struct {
	Threshold     float64 `json:"threshold"`
	Samples       int     `json:"samples"`
	MeanReturn    float64 `json:"mean_return"`
	WinRate       float64 `json:"win_rate"`
	MedianMaxGain float64 `json:"median_max_gain"`
	Score         float64 `json:"score"`
	Eligible      bool    `json:"eligible"`
}

// InstrumentResult is one instrument's own exit grid next to its score under
// the baseline parameters. Baseline and Best are nil when nothing passes the
// expected-value gates.
type InstrumentResult struct {
	Symbol     string            `json:"symbol"`
	Baseline   *types.GridResult `json:"baseline,omitempty"`
	Best       *types.GridResult `json:"best,omitempty"`
	Qualifying int               `json:"qualifying"`
}

// EVGain is the optimized minus the baseline expected value, or 0 when
// either side is missing.
func (r InstrumentResult) EVGain() float64 {
	if r.Baseline == nil || r.Best == nil {
		return 0
	}
	return r.Best.ExpectedValue - r.Baseline.ExpectedValue
}

type Optimizer struct {
	cfg *config.Config
	sim *metrics.Simulator
	log *logger.Logger
	rec *telemetry.Recorder
}

// New builds an optimizer. rec may be nil.
func New(cfg *config.Config, log *logger.Logger, rec *telemetry.Recorder) *Optimizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Optimizer{
		cfg: cfg,
		sim: metrics.NewSimulator(cfg.Backtest),
		log: log,
		rec: rec,
	}
}

// Candidates enumerates take profit, then stop loss, then cooldown, dropping
// combinations under the reward:risk floor.
func (o *Optimizer) Candidates() []types.ParameterSet {
	grid := o.cfg.Grid
	var out []types.ParameterSet
	for _, tp := range grid.TakeProfits {
		for _, sl := range grid.StopLosses {
			for _, cd := range grid.Cooldowns {
				p := types.ParameterSet{TakeProfitPct: tp, StopLossPct: sl, CooldownDays: cd}
				if p.RewardRisk() < grid.MinRewardRisk-rewardRiskTolerance {
					continue
				}
				out = append(out, p)
			}
		}
	}
	return out
}

// CompositeScore blends EV, win rate and a sample-size stability term.
func CompositeScore(ev metrics.ExpectedValue, grid config.GridConfig) float64 {
	stability := math.Min(float64(ev.Samples)/float64(grid.StabilityTrades), 1.0)
	return ev.EV*grid.EVWeight +
		ev.WinRate*100*grid.WinRateWeight +
		stability*stabilityPoints*grid.StabilityWeight
}

// Evaluate runs p over the whole population. The bool is false when the
// pooled trades fail the expected-value gates.
func (o *Optimizer) Evaluate(population []Instrument, p types.ParameterSet) (types.GridResult, bool) {
	var trades []types.Trade
	for _, inst := range population {
		trades = append(trades, o.sim.Run(inst.Series, inst.Signals, p)...)
	}
	ev, ok := metrics.CalculateExpectedValue(trades, o.cfg.Grid.MinSampleSize)
	if !ok {
		return types.GridResult{}, false
	}
	return types.GridResult{
		Params:         p,
		WinRate:        ev.WinRate,
		ExpectedValue:  ev.EV,
		SampleSize:     ev.Samples,
		CompositeScore: CompositeScore(ev, o.cfg.Grid),
	}, true
}

// Sweep scores every candidate on a bounded worker pool and returns the
// qualifying results in grid order.
func (o *Optimizer) Sweep(ctx context.Context, population []Instrument) ([]types.GridResult, error) {
	candidates := o.Candidates()
	slots := make([]*types.GridResult, len(candidates))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Grid.Workers)
	for i, p := range candidates {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r, ok := o.Evaluate(population, p); ok {
				slots[i] = &r
				o.rec.RecordGridCandidate("exits", "scored")
			} else {
				o.rec.RecordGridCandidate("exits", "excluded")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("exit grid sweep: %w", err)
	}

	results := make([]types.GridResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

// Best returns the result with the highest composite score. Ties keep the
// earlier result.
func Best(results []types.GridResult) (*types.GridResult, error) {
	var best *types.GridResult
	for i := range results {
		if best == nil || results[i].CompositeScore > best.CompositeScore {
			best = &results[i]
		}
	}
	if best == nil {
		return nil, ErrNoCandidate
	}
	return best, nil
}

// OptimizeExits returns the highest composite score along with every
// qualifying result. Ties keep the earlier candidate in grid order.
func (o *Optimizer) OptimizeExits(ctx context.Context, population []Instrument) (*types.GridResult, []types.GridResult, error) {
	start := time.Now()
	results, err := o.Sweep(ctx, population)
	if err != nil {
		return nil, nil, err
	}
	o.rec.RecordLatency("exit_grid", time.Since(start).Seconds())

	best, err := Best(results)
	if err != nil {
		o.log.Warn("exit grid found no qualifying parameter set",
			logger.Int("instruments", len(population)),
			logger.Int("candidates", len(o.Candidates())))
		return nil, results, err
	}

	o.log.Info("exit grid complete",
		logger.Float("take_profit", best.Params.TakeProfitPct),
		logger.Float("stop_loss", best.Params.StopLossPct),
		logger.Int("cooldown", best.Params.CooldownDays),
		logger.Float("score", best.CompositeScore),
		logger.Int("qualifying", len(results)),
		logger.Duration("elapsed", time.Since(start)))
	return best, results, nil
}

// OptimizeInstruments ranks instruments by their own composite score under
// baseline and then sweeps the exit grid separately for the top ones. top <= 0
// keeps every instrument. Instruments whose baseline trades fail the gates
// rank last, in population order.
func (o *Optimizer) OptimizeInstruments(ctx context.Context, population []Instrument, baseline types.ParameterSet, top int) ([]InstrumentResult, error) {
	start := time.Now()
	scored := make([]InstrumentResult, len(population))
	order := make([]int, len(population))
	for i, inst := range population {
		scored[i] = InstrumentResult{Symbol: inst.Series.Symbol}
		if r, ok := o.Evaluate(population[i:i+1], baseline); ok {
			scored[i].Baseline = &r
		}
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := scored[order[a]].Baseline, scored[order[b]].Baseline
		if ra == nil || rb == nil {
			return ra != nil && rb == nil
		}
		return ra.CompositeScore > rb.CompositeScore
	})
	if top > 0 && len(order) > top {
		order = order[:top]
	}

	out := make([]InstrumentResult, 0, len(order))
	for _, i := range order {
		res := scored[i]
		results, err := o.Sweep(ctx, population[i:i+1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", res.Symbol, err)
		}
		res.Qualifying = len(results)
		if best, err := Best(results); err == nil {
			b := *best
			res.Best = &b
		}
		out = append(out, res)
	}
	o.rec.RecordLatency("instrument_grid", time.Since(start).Seconds())
	o.log.Info("per-instrument grid complete",
		logger.Int("instruments", len(population)),
		logger.Int("optimized", len(out)),
		logger.Duration("elapsed", time.Since(start)))
	return out, nil
}

// OptimizeThreshold sweeps the VPD threshold. Each threshold's signals are
// deduplicated and measured, then ranked by mean return, win rate and median
// max gain at the validation horizon. Thresholds with fewer than
// ThresholdMinResults outcomes are reported but never selected.
func (o *Optimizer) OptimizeThreshold(ctx context.Context, population []*types.Series) (*ThresholdResult, []ThresholdResult, error) {
	grid := o.cfg.Grid
	detector := detection.NewAccumulationDetector(o.cfg.Signals, o.cfg.Benford)
	measurer := metrics.NewOutcomeMeasurer(o.cfg.Outcome)
	scorer := validation.NewScorer(o.cfg.Validation)

	slots := make([]*ThresholdResult, len(grid.Thresholds))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(grid.Workers)
	for i, threshold := range grid.Thresholds {
		i, threshold := i, threshold
		g.Go(func() error {
			var outcomes []types.OutcomeRecord
			for _, s := range population {
				if err := ctx.Err(); err != nil {
					return err
				}
				events := signals.Dedupe(signals.Events(types.SignalVPD, detector.VPD(s, threshold)), o.cfg.Signals.MinGapDays)
				outcomes = append(outcomes, measurer.MeasureAll(s, events)...)
			}
			sum := scorer.Summarize(outcomes)
			if sum.HorizonCount == 0 {
				o.rec.RecordGridCandidate("threshold", "excluded")
				return nil
			}
			r := &ThresholdResult{
				Threshold:     threshold,
				Samples:       len(outcomes),
				MeanReturn:    sum.MeanReturn(),
				WinRate:       sum.WinRate,
				MedianMaxGain: sum.MedianMaxGain,
				Eligible:      len(outcomes) >= grid.ThresholdMinResults,
			}
			r.Score = r.MeanReturn*grid.ReturnWeight + r.WinRate*grid.HitRateWeight + r.MedianMaxGain*grid.MaxGainWeight
			slots[i] = r
			o.rec.RecordGridCandidate("threshold", "scored")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("threshold sweep: %w", err)
	}

	var all []ThresholdResult
	var best *ThresholdResult
	for _, r := range slots {
		if r == nil {
			continue
		}
		all = append(all, *r)
		if r.Eligible && (best == nil || r.Score > best.Score) {
			best = r
		}
	}
	if best == nil {
		return nil, all, ErrNoCandidate
	}
	o.log.Info("threshold grid complete",
		logger.Float("threshold", best.Threshold),
		logger.Int("samples", best.Samples),
		logger.Float("score", best.Score))
	return best, all, nil
}
