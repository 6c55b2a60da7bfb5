package datafeed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/fazecat/benfordscan/Internal/utils/config"
)

type fakeBars struct {
	calls    int
	failures int
	bars     []marketdata.Bar
	lastReq  marketdata.GetBarsRequest
	lastSym  string
}

func (f *fakeBars) GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.calls++
	f.lastSym = symbol
	f.lastReq = req
	if f.calls <= f.failures {
		return nil, errors.New("503 service unavailable")
	}
	return f.bars, nil
}

type fakeAssets struct {
	assets []alpaca.Asset
}

func (f *fakeAssets) GetAssets(req alpaca.GetAssetsRequest) ([]alpaca.Asset, error) {
	return f.assets, nil
}

var feedNow = time.Date(2024, 6, 3, 21, 0, 0, 0, time.UTC)

func testFeed(bars BarsClient, assets AssetsClient) *BarFeed {
	f := NewBarFeedWithClients(config.DataFeedConfig{Feed: "iex", Days: 400}, bars, assets, nil)
	f.limiter = rate.NewLimiter(rate.Inf, 1)
	f.retry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}
	f.now = func() time.Time { return feedNow }
	return f
}

func TestNewBarFeed_RequiresCredentials(t *testing.T) {
	_, err := NewBarFeed(config.DataFeedConfig{APIKey: "key"}, nil)
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestLoadSeries(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 5, d, 4, 0, 0, 0, time.UTC) }
	client := &fakeBars{
		failures: 1,
		bars: []marketdata.Bar{
			{Timestamp: day(2), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 2000},
			{Timestamp: day(1), Open: 9, High: 10, Low: 8, Close: 9.5, Volume: 1000},
		},
	}
	feed := testFeed(client, nil)

	s, err := feed.LoadSeries(context.Background(), " aapl ")
	require.NoError(t, err)

	assert.Equal(t, 2, client.calls, "one retry after the transient failure")
	assert.Equal(t, "AAPL", client.lastSym)
	assert.Equal(t, marketdata.OneDay, client.lastReq.TimeFrame)
	assert.Equal(t, marketdata.All, client.lastReq.Adjustment)
	assert.Equal(t, feedNow.AddDate(0, 0, -400), client.lastReq.Start)

	require.Equal(t, 2, s.Len())
	assert.Equal(t, "AAPL", s.Symbol)
	assert.Equal(t, day(1), s.Bars[0].Date)
	assert.Equal(t, int64(1000), s.Bars[0].Volume)
	assert.Equal(t, 10.5, s.Bars[1].Close)
}

func TestLoadSeries_NoBars(t *testing.T) {
	feed := testFeed(&fakeBars{}, nil)
	_, err := feed.LoadSeries(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrNoBars)
}

func TestLoadSeries_GivesUpAfterMaxAttempts(t *testing.T) {
	client := &fakeBars{failures: 10}
	feed := testFeed(client, nil)

	_, err := feed.LoadSeries(context.Background(), "MSFT")
	assert.Error(t, err)
	assert.Equal(t, 3, client.calls)
}

func TestTradableSymbols(t *testing.T) {
	assets := &fakeAssets{assets: []alpaca.Asset{
		{Symbol: "MSFT", Class: "us_equity", Tradable: true},
		{Symbol: "BTC/USD", Class: "crypto", Tradable: true},
		{Symbol: "AAPL", Class: "us_equity", Tradable: true},
		{Symbol: "HALT", Class: "us_equity", Tradable: false},
	}}
	feed := testFeed(&fakeBars{}, assets)

	symbols, err := feed.TradableSymbols(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	_, err = testFeed(&fakeBars{}, nil).TradableSymbols(context.Background())
	assert.Error(t, err)
}
