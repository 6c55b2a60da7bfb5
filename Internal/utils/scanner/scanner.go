package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fazecat/benfordscan/Internal/strategy/detection"
	"github.com/fazecat/benfordscan/Internal/strategy/indicators"
	"github.com/fazecat/benfordscan/Internal/strategy/metrics"
	"github.com/fazecat/benfordscan/Internal/strategy/optimizer"
	"github.com/fazecat/benfordscan/Internal/strategy/signals"
	"github.com/fazecat/benfordscan/Internal/strategy/validation"
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
	"github.com/fazecat/benfordscan/Internal/utils/logger"
	"github.com/fazecat/benfordscan/Internal/utils/telemetry"
)

// ReportKinds is the order in which signal kinds are validated and reported.
var ReportKinds = []types.SignalKind{
	types.SignalVPD,
	types.SignalBenford,
	types.SignalSDE,
	types.SignalCombined,
}

// SeriesSource loads one instrument's history.
type SeriesSource interface {
	LoadSeries(ctx context.Context, symbol string) (*types.Series, error)
}

type Skip struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// KindReport is the validation of one signal kind over the whole population.
type KindReport struct {
	Kind        types.SignalKind       `json:"kind"`
	Events      int                    `json:"events"`
	Outcomes    []types.OutcomeRecord  `json:"-"`
	Instruments []optimizer.Instrument `json:"-"`
	Summary     validation.Summary     `json:"summary"`
	Verdict     validation.Verdict     `json:"verdict"`
}

type Result struct {
	RunID      uuid.UUID       `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Series     []*types.Series `json:"-"`
	Skipped    []Skip          `json:"skipped"`
	Reports    []KindReport    `json:"reports"`
	Screens    []Screen        `json:"screens"`
}

// Report returns the report for kind, or nil.
func (r *Result) Report(kind types.SignalKind) *KindReport {
	for i := range r.Reports {
		if r.Reports[i].Kind == kind {
			return &r.Reports[i]
		}
	}
	return nil
}

type Scanner struct {
	cfg      *config.Config
	src      SeriesSource
	detector *detection.AccumulationDetector
	digits   detection.Scorer
	measurer *metrics.OutcomeMeasurer
	scorer   *validation.Scorer
	sim      *metrics.Simulator
	log      *logger.Logger
	rec      *telemetry.Recorder
}

// New builds a scanner. src may be nil when series are passed in directly;
// rec may be nil.
func New(cfg *config.Config, src SeriesSource, log *logger.Logger, rec *telemetry.Recorder) *Scanner {
	if log == nil {
		log = logger.Nop()
	}
	return &Scanner{
		cfg:      cfg,
		src:      src,
		detector: detection.NewAccumulationDetector(cfg.Signals, cfg.Benford),
		digits:   detection.NewScorer(cfg.Benford),
		measurer: metrics.NewOutcomeMeasurer(cfg.Outcome),
		scorer:   validation.NewScorer(cfg.Validation),
		sim:      metrics.NewSimulator(cfg.Backtest),
		log:      log.With(logger.String("component", "scanner")),
		rec:      rec,
	}
}

// Load fetches every symbol concurrently. Symbols that fail to load or are
// too short are returned as skips, not errors; only cancellation fails the
// load. The population keeps the order of symbols.
func (sc *Scanner) Load(ctx context.Context, symbols []string) ([]*types.Series, []Skip, error) {
	if sc.src == nil {
		return nil, nil, fmt.Errorf("scanner has no series source")
	}

	slots := make([]*types.Series, len(symbols))
	reasons := make([]string, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sc.cfg.Scanner.Workers)
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			s, err := sc.src.LoadSeries(gctx, symbol)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				sc.rec.RecordError("load")
				sc.log.Warn("skipping symbol", logger.String("symbol", symbol), logger.Error(err))
				reasons[i] = err.Error()
				return nil
			}
			s, reason := sc.Prepare(s)
			if s == nil {
				reasons[i] = reason
				return nil
			}
			if s.Symbol == "" {
				s.Symbol = symbol
			}
			slots[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("load population: %w", err)
	}

	var population []*types.Series
	var skipped []Skip
	for i, s := range slots {
		if s != nil {
			population = append(population, s)
			continue
		}
		skipped = append(skipped, Skip{Symbol: symbols[i], Reason: reasons[i]})
	}
	return population, skipped, nil
}

// Prepare checks the minimum history and derives indicator columns when the
// series carries none. It returns nil and a reason for unusable series.
func (sc *Scanner) Prepare(s *types.Series) (*types.Series, string) {
	if s == nil {
		return nil, "no series"
	}
	if s.Len() < sc.cfg.Scanner.MinBars {
		return nil, fmt.Sprintf("only %d bars, need %d", s.Len(), sc.cfg.Scanner.MinBars)
	}
	if len(s.RSI) == 0 && len(s.VPD) == 0 && len(s.SDE) == 0 {
		indicators.Enrich(s)
	}
	return s, ""
}

type seriesSignals struct {
	events   map[types.SignalKind][]types.SignalEvent
	outcomes map[types.SignalKind][]types.OutcomeRecord
}

func (sc *Scanner) analyzeSeries(s *types.Series) seriesSignals {
	days := sc.detector.DetectAll(s)
	out := seriesSignals{
		events:   make(map[types.SignalKind][]types.SignalEvent, len(ReportKinds)),
		outcomes: make(map[types.SignalKind][]types.OutcomeRecord, len(ReportKinds)),
	}
	for _, kind := range ReportKinds {
		events := signals.Dedupe(signals.Detect(kind, days, s.Len(), sc.cfg.Signals), sc.cfg.Signals.MinGapDays)
		out.events[kind] = events
		out.outcomes[kind] = sc.measurer.MeasureAll(s, events)
	}
	return out
}

// Analyze detects, deduplicates, measures and scores every signal kind over
// the population. Series are processed concurrently; reports come back in
// ReportKinds order and outcomes in population order.
func (sc *Scanner) Analyze(ctx context.Context, population []*types.Series) ([]KindReport, error) {
	start := time.Now()
	slots := make([]seriesSignals, len(population))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sc.cfg.Scanner.Workers)
	for i, s := range population {
		i, s := i, s
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = sc.analyzeSeries(s)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analyze population: %w", err)
	}

	reports := make([]KindReport, 0, len(ReportKinds))
	for _, kind := range ReportKinds {
		r := KindReport{Kind: kind}
		for i, s := range population {
			events := slots[i].events[kind]
			r.Events += len(events)
			r.Outcomes = append(r.Outcomes, slots[i].outcomes[kind]...)
			r.Instruments = append(r.Instruments, optimizer.Instrument{Series: s, Signals: eventDays(events)})
			sc.rec.RecordSeriesScanned(string(kind))
		}
		r.Summary, r.Verdict = sc.scorer.Score(r.Outcomes)

		sc.rec.RecordSignals(string(kind), r.Events)
		sc.rec.RecordVerdict(string(kind), string(r.Verdict))
		sc.log.Info("signal kind validated",
			logger.String("kind", string(kind)),
			logger.Int("events", r.Events),
			logger.Int("outcomes", len(r.Outcomes)),
			logger.Int("criteria_passed", r.Summary.Passed),
			logger.String("verdict", string(r.Verdict)),
		)
		reports = append(reports, r)
	}

	sc.rec.RecordLatency("analyze", time.Since(start).Seconds())
	return reports, nil
}

func eventDays(events []types.SignalEvent) []int {
	days := make([]int, len(events))
	for i, ev := range events {
		days[i] = ev.Index
	}
	return days
}

// Backtest replays each instrument's signals with p and returns all trades,
// instrument by instrument.
func (sc *Scanner) Backtest(instruments []optimizer.Instrument, p types.ParameterSet) []types.Trade {
	var trades []types.Trade
	for _, inst := range instruments {
		trades = append(trades, sc.sim.Run(inst.Series, inst.Signals, p)...)
	}
	return trades
}

// Run loads symbols, validates every signal kind and screens the latest bar.
func (sc *Scanner) Run(ctx context.Context, symbols []string) (*Result, error) {
	res := &Result{RunID: uuid.New(), StartedAt: time.Now()}
	log := sc.log.With(logger.String("run_id", res.RunID.String()))
	log.Info("scan started", logger.Int("symbols", len(symbols)))

	population, skipped, err := sc.Load(ctx, symbols)
	if err != nil {
		return nil, err
	}
	res.Series = population
	res.Skipped = skipped

	if err := sc.Scan(ctx, res); err != nil {
		return nil, err
	}

	log.Info("scan finished",
		logger.Int("series", len(population)),
		logger.Int("skipped", len(skipped)),
		logger.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	return res, nil
}

// Scan fills the reports and screens of res from res.Series.
func (sc *Scanner) Scan(ctx context.Context, res *Result) error {
	reports, err := sc.Analyze(ctx, res.Series)
	if err != nil {
		return err
	}
	res.Reports = reports
	res.Screens = sc.ScreenAll(res.Series)
	res.FinishedAt = time.Now()
	return nil
}

// StopPostMortem backtests each instrument with p and pools the analysis of
// its stop-loss exits.
func (sc *Scanner) StopPostMortem(instruments []optimizer.Instrument, p types.ParameterSet) metrics.StopAnalysis {
	var total metrics.StopAnalysis
	for _, inst := range instruments {
		trades := sc.sim.Run(inst.Series, inst.Signals, p)
		total.Merge(metrics.AnalyzeStops(inst.Series, trades, sc.cfg.Backtest.PostStopWindow))
	}
	return total
}
