package datafeed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"golang.org/x/time/rate"

	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
	"github.com/fazecat/benfordscan/Internal/utils/logger"
)

var (
	ErrNoBars             = errors.New("no bars returned")
	ErrMissingCredentials = errors.New("ALPACA_API_KEY or ALPACA_API_SECRET not set")
)

// BarsClient is the part of the Alpaca market data client the feed uses.
type BarsClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AssetsClient is the part of the Alpaca trading client the feed uses.
type AssetsClient interface {
	GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error)
}

// BarFeed loads daily bars from Alpaca, oldest first.
type BarFeed struct {
	bars    BarsClient
	assets  AssetsClient
	cfg     config.DataFeedConfig
	limiter *rate.Limiter
	retry   RetryConfig
	log     *logger.Logger
	now     func() time.Time
}

func NewBarFeed(cfg config.DataFeedConfig, log *logger.Logger) (*BarFeed, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrMissingCredentials
	}

	md := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.DataURL,
		Feed:      marketdata.Feed(cfg.Feed),
	})
	trading := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	return NewBarFeedWithClients(cfg, md, trading, log), nil
}

// NewBarFeedWithClients builds a feed over arbitrary clients. assets may be nil
// when the asset universe is not needed.
func NewBarFeedWithClients(cfg config.DataFeedConfig, bars BarsClient, assets AssetsClient, log *logger.Logger) *BarFeed {
	if log == nil {
		log = logger.Nop()
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 180
	}
	retry := DefaultRetryConfig()
	if cfg.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.MaxAttempts
	}

	return &BarFeed{
		bars:    bars,
		assets:  assets,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
		retry:   retry,
		log:     log.With(logger.String("component", "bar_feed")),
		now:     time.Now,
	}
}

// LoadSeries fetches cfg.Days calendar days of split and dividend adjusted
// daily bars ending now.
func (f *BarFeed) LoadSeries(ctx context.Context, symbol string) (*types.Series, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	end := f.now().UTC()
	start := end.AddDate(0, 0, -f.cfg.Days)

	req := marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Adjustment: marketdata.All,
		Start:      start,
		End:        end,
		Feed:       marketdata.Feed(f.cfg.Feed),
	}

	var raw []marketdata.Bar
	err := RetryWithBackoff(ctx, f.retry, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return Permanent(err)
		}
		var err error
		raw, err = f.bars.GetBars(symbol, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get bars for %s: %w", symbol, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoBars)
	}

	f.log.Debug("loaded bars",
		logger.String("symbol", symbol),
		logger.Int("bars", len(raw)),
	)
	return &types.Series{Symbol: symbol, Bars: ConvertBars(raw)}, nil
}

// ConvertBars maps Alpaca bars onto the series bar type, oldest first.
func ConvertBars(raw []marketdata.Bar) []types.Bar {
	bars := make([]types.Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, types.Bar{
			Date:   b.Timestamp.UTC(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: int64(b.Volume),
		})
	}
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})
	return bars
}

// TradableSymbols lists active, tradable US equities.
func (f *BarFeed) TradableSymbols(ctx context.Context) ([]string, error) {
	if f.assets == nil {
		return nil, errors.New("asset client not configured")
	}

	var assets []alpaca.Asset
	err := RetryWithBackoff(ctx, f.retry, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return Permanent(err)
		}
		var err error
		assets, err = f.assets.GetAssets(alpaca.GetAssetsRequest{Status: "active"})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get assets: %w", err)
	}

	var symbols []string
	for _, asset := range assets {
		if string(asset.Class) == "us_equity" && asset.Tradable {
			symbols = append(symbols, asset.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}
