package metrics

import (
	"time"

	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
)

var testStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// flatBars returns n bars closing at 100 with a narrow range.
func flatBars(n int) []types.Bar {
	bars := make([]types.Bar, n)
	for i := range bars {
		bars[i] = types.Bar{
			Date:   testStart.AddDate(0, 0, i),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100,
			Volume: 1000,
		}
	}
	return bars
}

func series(bars []types.Bar) *types.Series {
	return &types.Series{Symbol: "TEST", Name: "Test Corp", Bars: bars}
}

func testBacktestConfig() config.BacktestConfig {
	return config.Default().Backtest
}
