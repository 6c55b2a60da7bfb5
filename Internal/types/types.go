package types

import (
	"math"
	"time"
)

type Bar struct {
	Date   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume int64     `json:"v"`
}

// Series is one instrument's daily bars plus optional indicator columns.
// Indicator slices are either empty or the same length as Bars; NaN marks
// a day where the indicator is not applicable.
type Series struct {
	Symbol string    `json:"symbol"`
	Name   string    `json:"name"`
	Bars   []Bar     `json:"bars"`
	RSI    []float64 `json:"rsi,omitempty"`
	VPD    []float64 `json:"vpd,omitempty"`
	SDE    []float64 `json:"sde,omitempty"`
}

func (s *Series) Len() int {
	return len(s.Bars)
}

func (s *Series) Volumes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = float64(b.Volume)
	}
	return out
}

func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Indicator returns column[i] or NaN when the column is missing or short.
func Indicator(column []float64, i int) float64 {
	if i < 0 || i >= len(column) {
		return math.NaN()
	}
	return column[i]
}

type ChiSquareResult struct {
	Chi2 float64 `json:"chi2"`
	N    int     `json:"n"`
}

type AlertLevel int

const (
	AlertNone AlertLevel = iota
	AlertLongOnly
	AlertStrong
)

func (a AlertLevel) String() string {
	switch a {
	case AlertLongOnly:
		return "LONG_ONLY"
	case AlertStrong:
		return "STRONG"
	}
	return "NONE"
}

type SignalKind string

const (
	SignalVPD      SignalKind = "VPD"
	SignalBenford  SignalKind = "BENFORD"
	SignalSDE      SignalKind = "SDE"
	SignalCombined SignalKind = "COMBINED"
)

// DetectorKinds is the fixed evaluation order used when fusing detectors.
var DetectorKinds = []SignalKind{SignalVPD, SignalBenford, SignalSDE}

type SignalEvent struct {
	Index      int          `json:"series_index"`
	Kind       SignalKind   `json:"kind"`
	Supporting []SignalKind `json:"supporting_kinds,omitempty"`
}

type OutcomeRecord struct {
	Symbol      string           `json:"symbol"`
	Date        time.Time        `json:"date"`
	Signal      SignalEvent      `json:"signal"`
	EntryPrice  float64          `json:"entry_price"`
	Forward     map[int]*float64 `json:"forward_returns"`
	MaxGain     *float64         `json:"max_gain_30d"`
	MaxDrawdown *float64         `json:"max_drawdown_30d"`
	HitTarget   bool             `json:"hit_threshold"`
}

// ForwardReturn returns the horizon return and whether it exists.
func (o *OutcomeRecord) ForwardReturn(horizon int) (float64, bool) {
	v, ok := o.Forward[horizon]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

type ExitReason string

const (
	ExitTarget  ExitReason = "TARGET"
	ExitStop    ExitReason = "STOP"
	ExitTimeout ExitReason = "TIMEOUT"
)

type Trade struct {
	Symbol       string     `json:"symbol"`
	SignalIndex  int        `json:"signal_index"`
	EntryIndex   int        `json:"entry_index"`
	ExitIndex    int        `json:"exit_index"`
	EntryDate    time.Time  `json:"entry_date"`
	EntryPrice   float64    `json:"entry_price"`
	ExitDate     time.Time  `json:"exit_date"`
	ExitPrice    float64    `json:"exit_price"`
	TargetPrice  float64    `json:"target_price"`
	StopPrice    float64    `json:"stop_price"`
	ExitReason   ExitReason `json:"exit_reason"`
	HoldingDays  int        `json:"holding_days"`
	NetReturnPct float64    `json:"net_return_pct"`
}

func (t Trade) Closed() bool {
	return t.ExitReason == ExitTarget || t.ExitReason == ExitStop
}

type ParameterSet struct {
	TakeProfitPct float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	StopLossPct   float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	CooldownDays  int     `json:"cooldown_days" yaml:"cooldown_days"`
	Threshold     float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// RewardRisk is take profit over stop loss; zero stop gives +Inf.
func (p ParameterSet) RewardRisk() float64 {
	if p.StopLossPct <= 0 {
		return math.Inf(1)
	}
	return p.TakeProfitPct / p.StopLossPct
}

type GridResult struct {
	Params         ParameterSet `json:"params"`
	WinRate        float64      `json:"win_rate"`
	ExpectedValue  float64      `json:"expected_value"`
	SampleSize     int          `json:"sample_size"`
	CompositeScore float64      `json:"composite_score"`
}
