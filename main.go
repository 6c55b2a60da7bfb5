package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	datafeed "github.com/fazecat/benfordscan/Internal/database"
	"github.com/fazecat/benfordscan/Internal/strategy/optimizer"
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
	"github.com/fazecat/benfordscan/Internal/utils/formatting"
	"github.com/fazecat/benfordscan/Internal/utils/logger"
	"github.com/fazecat/benfordscan/Internal/utils/scanner"
)

type options struct {
	configPath string
	symbols    string
	days       int
	kind       string
	persist    bool
	dumpConfig string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	flag.StringVar(&opts.symbols, "symbols", "", "comma-separated symbols; empty scans every tradable US equity")
	flag.IntVar(&opts.days, "days", 0, "calendar days of history to load (overrides config)")
	flag.StringVar(&opts.kind, "kind", string(types.SignalCombined), "signal kind to backtest and optimize")
	flag.BoolVar(&opts.persist, "persist", false, "save the run to PostgreSQL")
	flag.StringVar(&opts.dumpConfig, "dump-config", "", "write the effective configuration to this path and exit")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "benfordscan: %v\n", err)
		os.Exit(1)
	}
}

func parseSymbols(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func run(opts options) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.days > 0 {
		cfg.DataFeed.Days = opts.days
	}
	if opts.dumpConfig != "" {
		return config.SaveConfig(cfg, opts.dumpConfig)
	}
	kind := types.SignalKind(strings.ToUpper(opts.kind))
	if !slices.Contains(scanner.ReportKinds, kind) {
		return fmt.Errorf("unknown signal kind %q", opts.kind)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed, err := datafeed.NewBarFeed(cfg.DataFeed, log)
	if err != nil {
		return err
	}

	var src scanner.SeriesSource = feed
	if cfg.Cache.Enabled {
		redisStore := datafeed.NewRedisStore(cfg.Cache)
		defer redisStore.Close()
		if err := redisStore.Ping(ctx); err != nil {
			log.Warn("bar cache unavailable, loading directly", logger.Error(err))
		} else {
			src = datafeed.NewCachedFeed(feed, redisStore, cfg.Cache.TTL, cfg.DataFeed, log)
		}
	}

	symbols := parseSymbols(opts.symbols)
	if len(symbols) == 0 {
		if symbols, err = feed.TradableSymbols(ctx); err != nil {
			return err
		}
		log.Info("scanning tradable universe", logger.Int("symbols", len(symbols)))
	}

	sc := scanner.New(cfg, src, log, nil)
	res, err := sc.Run(ctx, symbols)
	if err != nil {
		return err
	}
	if len(res.Series) == 0 {
		return errors.New("no usable series loaded")
	}

	out := os.Stdout
	formatting.WriteRun(out, res)
	formatting.WriteScreens(out, res.Screens, cfg.Scanner.TopTrades)

	opt := optimizer.New(cfg, log, nil)
	threshold, thresholds, err := opt.OptimizeThreshold(ctx, res.Series)
	if err != nil && !errors.Is(err, optimizer.ErrNoCandidate) {
		return err
	}
	formatting.WriteThresholds(out, threshold, thresholds)

	report := res.Report(kind)
	best, grid, err := opt.OptimizeExits(ctx, report.Instruments)
	if err != nil && !errors.Is(err, optimizer.ErrNoCandidate) {
		return err
	}
	formatting.WriteGrid(out, best, grid, cfg.Scanner.TopTrades)

	perInstrument, err := opt.OptimizeInstruments(ctx, report.Instruments, cfg.Backtest.Default, cfg.Grid.TopInstruments)
	if err != nil {
		return err
	}
	formatting.WriteInstruments(out, perInstrument)

	params := cfg.Backtest.Default
	if best != nil {
		params = best.Params
	}
	trades := sc.Backtest(report.Instruments, params)
	formatting.WriteTrades(out, trades, cfg.Scanner.TopTrades)
	formatting.WriteSymbolStats(out, trades, cfg.Scanner.TopTrades)
	formatting.WriteStops(out, sc.StopPostMortem(report.Instruments, params))

	if !opts.persist {
		return nil
	}
	return persist(ctx, cfg, log, res, trades, grid)
}

func persist(ctx context.Context, cfg *config.Config, log *logger.Logger, res *scanner.Result, trades []types.Trade, grid []types.GridResult) error {
	store, err := datafeed.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer store.Close()

	run := datafeed.RunRecord{
		ID:         res.RunID,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Symbols:    len(res.Series),
		Skipped:    len(res.Skipped),
		Trades:     trades,
		Grid:       grid,
	}
	for _, r := range res.Reports {
		run.Verdicts = append(run.Verdicts, datafeed.VerdictRecord{Kind: r.Kind, Summary: r.Summary, Verdict: r.Verdict})
		run.Outcomes = append(run.Outcomes, r.Outcomes...)
	}
	if err := store.SaveRun(ctx, run); err != nil {
		return err
	}
	fmt.Printf("\nSaved run %s\n", res.RunID)
	return nil
}
