package internal

import (
	"errors"
	"math"
	"strings"

	"github.com/fazecat/benfordscan/Internal/strategy/metrics"
	"github.com/fazecat/benfordscan/Internal/strategy/optimizer"
	"github.com/fazecat/benfordscan/Internal/strategy/validation"
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/scanner"
)

var ErrInvalidRequest = errors.New("invalid request")

// SeriesPayload is a series as sent over JSON. Indicator columns are optional;
// null entries mean not applicable.
type SeriesPayload struct {
	Symbol string      `json:"symbol" validate:"required"`
	Name   string      `json:"name"`
	Bars   []types.Bar `json:"bars" validate:"required,min=1"`
	RSI    []*float64  `json:"rsi"`
	VPD    []*float64  `json:"vpd"`
	SDE    []*float64  `json:"sde"`
}

func column(values []*float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out
}

func (p SeriesPayload) Series() *types.Series {
	return &types.Series{
		Symbol: strings.ToUpper(p.Symbol),
		Name:   p.Name,
		Bars:   p.Bars,
		RSI:    column(p.RSI),
		VPD:    column(p.VPD),
		SDE:    column(p.SDE),
	}
}

type TokenRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Email  string `json:"email" validate:"omitempty,email"`
	APIKey string `json:"api_key" validate:"required"`
}

type ValidateRequest struct {
	Series []SeriesPayload `json:"series" validate:"required,min=1,dive"`
}

type BacktestRequest struct {
	Series  []SeriesPayload     `json:"series" validate:"required,min=1,dive"`
	Kind    string              `json:"kind" validate:"omitempty,oneof=VPD BENFORD SDE COMBINED"`
	Profile string              `json:"profile"`
	Params  *types.ParameterSet `json:"params"`
	Limit   int                 `json:"limit" validate:"gte=0"`
}

type OptimizeRequest struct {
	Series []SeriesPayload `json:"series" validate:"required,min=1,dive"`
	Kind   string          `json:"kind" validate:"omitempty,oneof=VPD BENFORD SDE COMBINED"`
	// Instruments given their own exit grid; 0 uses the configured count.
	TopInstruments int `json:"top_instruments" validate:"gte=0"`
}

type KindVerdict struct {
	Kind    types.SignalKind   `json:"kind"`
	Events  int                `json:"events"`
	Summary validation.Summary `json:"summary"`
	Verdict validation.Verdict `json:"verdict"`
}

type ValidateResponse struct {
	RunID   string           `json:"run_id"`
	Reports []KindVerdict    `json:"reports"`
	Screens []scanner.Screen `json:"screens"`
	Skipped []scanner.Skip   `json:"skipped,omitempty"`
}

type BacktestResponse struct {
	Kind          types.SignalKind                `json:"kind"`
	Params        types.ParameterSet              `json:"params"`
	TotalTrades   int                             `json:"total_trades"`
	WinRate       float64                         `json:"win_rate"`
	ExpectedValue *metrics.ExpectedValue          `json:"expected_value"`
	Compound      float64                         `json:"compound_return"`
	Sharpe        float64                         `json:"sharpe_ratio"`
	Sortino       float64                         `json:"sortino_ratio"`
	Stops         metrics.StopAnalysis            `json:"stops"`
	BySymbol      map[string]*metrics.SymbolStats `json:"by_symbol"`
	Trades        []types.Trade                   `json:"trades"`
	Skipped       []scanner.Skip                  `json:"skipped,omitempty"`
}

type OptimizeResponse struct {
	Kind        types.SignalKind             `json:"kind"`
	Best        *types.GridResult            `json:"best"`
	Results     []types.GridResult           `json:"results"`
	Instruments []optimizer.InstrumentResult `json:"instruments"`
	Threshold   *optimizer.ThresholdResult   `json:"threshold"`
	Thresholds  []optimizer.ThresholdResult  `json:"thresholds"`
	Skipped     []scanner.Skip               `json:"skipped,omitempty"`
}
