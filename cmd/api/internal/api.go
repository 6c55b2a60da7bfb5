package internal

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	datafeed "github.com/fazecat/benfordscan/Internal/database"
	"github.com/fazecat/benfordscan/Internal/strategy/metrics"
	"github.com/fazecat/benfordscan/Internal/strategy/optimizer"
	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
	"github.com/fazecat/benfordscan/Internal/utils/logger"
	"github.com/fazecat/benfordscan/Internal/utils/scanner"
	"github.com/fazecat/benfordscan/Internal/utils/telemetry"
)

// TradeStore is the read side of the results store.
type TradeStore interface {
	TradeHistory(ctx context.Context, symbol string, limit int) ([]datafeed.TradeRow, error)
	HealthCheck(ctx context.Context) error
}

type API struct {
	Config    *config.Config
	Scanner   *scanner.Scanner
	Optimizer *optimizer.Optimizer
	JWT       *JWTManager
	Store     TradeStore
	Log       *logger.Logger
	validate  *validator.Validate
}

// NewAPI wires the handlers. store and rec may be nil.
func NewAPI(cfg *config.Config, log *logger.Logger, rec *telemetry.Recorder, jwtMgr *JWTManager, store TradeStore) *API {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.String("component", "api"))
	return &API{
		Config:    cfg,
		Scanner:   scanner.New(cfg, nil, log, rec),
		Optimizer: optimizer.New(cfg, log, rec),
		JWT:       jwtMgr,
		Store:     store,
		Log:       log,
		validate:  validator.New(),
	}
}

func (api *API) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		WriteError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	if err := api.validate.Struct(dst); err != nil {
		WriteError(w, r, http.StatusBadRequest, fmt.Sprintf("%v: %v", ErrInvalidRequest, err))
		return false
	}
	return true
}

func columnMismatch(p SeriesPayload) bool {
	n := len(p.Bars)
	for _, col := range [][]*float64{p.RSI, p.VPD, p.SDE} {
		if len(col) > 0 && len(col) != n {
			return true
		}
	}
	return false
}

// population prepares the request series the same way the scanner prepares
// loaded ones. It writes a 422 and returns false when nothing is usable.
func (api *API) population(w http.ResponseWriter, r *http.Request, payloads []SeriesPayload) ([]*types.Series, []scanner.Skip, bool) {
	var population []*types.Series
	var skipped []scanner.Skip
	for _, p := range payloads {
		if columnMismatch(p) {
			skipped = append(skipped, scanner.Skip{Symbol: p.Symbol, Reason: "indicator column length differs from bars"})
			continue
		}
		s, reason := api.Scanner.Prepare(p.Series())
		if s == nil {
			skipped = append(skipped, scanner.Skip{Symbol: p.Symbol, Reason: reason})
			continue
		}
		population = append(population, s)
	}
	if len(population) == 0 {
		WriteError(w, r, http.StatusUnprocessableEntity, "No usable series in request")
		return nil, skipped, false
	}
	return population, skipped, true
}

func kindOrDefault(kind string) types.SignalKind {
	if kind == "" {
		return types.SignalCombined
	}
	return types.SignalKind(kind)
}

func (api *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "healthy", "database": "disabled"}
	if api.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := api.Store.HealthCheck(ctx); err != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			WriteJSON(w, r, http.StatusServiceUnavailable, status)
			return
		}
		status["database"] = "ok"
	}
	WriteJSON(w, r, http.StatusOK, status)
}

func (api *API) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !api.decode(w, r, &req) {
		return
	}
	if api.Config.API.APIKey == "" {
		WriteError(w, r, http.StatusServiceUnavailable, "Token issuance is disabled")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(api.Config.API.APIKey)) != 1 {
		api.Log.Warn("token request with bad api key", logger.String("user_id", req.UserID))
		WriteError(w, r, http.StatusUnauthorized, "Invalid API key")
		return
	}
	token, err := api.JWT.GenerateToken(req.UserID, req.Email)
	if err != nil {
		api.Log.Error("token generation failed", logger.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	WriteJSON(w, r, http.StatusOK, map[string]string{"token": token})
}

// HandleValidate scores every signal kind over the posted series.
func (api *API) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !api.decode(w, r, &req) {
		return
	}
	population, skipped, ok := api.population(w, r, req.Series)
	if !ok {
		return
	}

	res := &scanner.Result{RunID: uuid.New(), StartedAt: time.Now(), Series: population, Skipped: skipped}
	if err := api.Scanner.Scan(r.Context(), res); err != nil {
		api.Log.Error("validation scan failed", logger.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "Validation failed")
		return
	}

	resp := ValidateResponse{RunID: res.RunID.String(), Screens: res.Screens, Skipped: skipped}
	for _, rep := range res.Reports {
		resp.Reports = append(resp.Reports, KindVerdict{
			Kind:    rep.Kind,
			Events:  rep.Events,
			Summary: rep.Summary,
			Verdict: rep.Verdict,
		})
	}
	WriteJSON(w, r, http.StatusOK, resp)
}

func (api *API) backtestParams(req BacktestRequest) (types.ParameterSet, error) {
	switch {
	case req.Params != nil:
		if req.Params.TakeProfitPct <= 0 || req.Params.StopLossPct <= 0 || req.Params.CooldownDays < 0 {
			return types.ParameterSet{}, fmt.Errorf("%w: params need positive take_profit_pct and stop_loss_pct", ErrInvalidRequest)
		}
		return *req.Params, nil
	case req.Profile != "":
		p := api.Config.GetProfile(req.Profile)
		if p == nil {
			return types.ParameterSet{}, fmt.Errorf("%w: unknown profile %q", ErrInvalidRequest, req.Profile)
		}
		return *p, nil
	}
	return api.Config.Backtest.Default, nil
}

// HandleBacktest replays one signal kind with fixed exit parameters.
func (api *API) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if !api.decode(w, r, &req) {
		return
	}
	params, err := api.backtestParams(req)
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	population, skipped, ok := api.population(w, r, req.Series)
	if !ok {
		return
	}

	kind := kindOrDefault(req.Kind)
	reports, err := api.Scanner.Analyze(r.Context(), population)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "Analysis failed")
		return
	}
	report := (&scanner.Result{Reports: reports}).Report(kind)

	trades := api.Scanner.Backtest(report.Instruments, params)
	resp := BacktestResponse{
		Kind:        kind,
		Params:      params,
		TotalTrades: len(trades),
		WinRate:     metrics.CalculateWinRate(trades),
		Compound:    metrics.CompoundReturn(trades),
		Sharpe:      metrics.CalculateSharpeRatio(trades, 0),
		Sortino:     metrics.CalculateSortinoRatio(trades, 0),
		Stops:       api.Scanner.StopPostMortem(report.Instruments, params),
		BySymbol:    metrics.CalculateSymbolStats(trades),
		Trades:      trades,
		Skipped:     skipped,
	}
	if ev, ok := metrics.CalculateExpectedValue(trades, 1); ok {
		resp.ExpectedValue = &ev
	}
	if req.Limit > 0 && len(resp.Trades) > req.Limit {
		resp.Trades = resp.Trades[:req.Limit]
	}
	WriteJSON(w, r, http.StatusOK, resp)
}

// HandleOptimize runs the pooled and per-instrument exit grids for one signal
// kind and the VPD threshold grid.
func (api *API) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !api.decode(w, r, &req) {
		return
	}
	population, skipped, ok := api.population(w, r, req.Series)
	if !ok {
		return
	}

	kind := kindOrDefault(req.Kind)
	reports, err := api.Scanner.Analyze(r.Context(), population)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "Analysis failed")
		return
	}
	report := (&scanner.Result{Reports: reports}).Report(kind)

	best, results, err := api.Optimizer.OptimizeExits(r.Context(), report.Instruments)
	if err != nil && !errors.Is(err, optimizer.ErrNoCandidate) {
		WriteError(w, r, http.StatusInternalServerError, "Exit grid failed")
		return
	}

	top := req.TopInstruments
	if top == 0 {
		top = api.Config.Grid.TopInstruments
	}
	instruments, err := api.Optimizer.OptimizeInstruments(r.Context(), report.Instruments, api.Config.Backtest.Default, top)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "Per-instrument grid failed")
		return
	}

	threshold, thresholds, err := api.Optimizer.OptimizeThreshold(r.Context(), population)
	if err != nil && !errors.Is(err, optimizer.ErrNoCandidate) {
		WriteError(w, r, http.StatusInternalServerError, "Threshold grid failed")
		return
	}

	WriteJSON(w, r, http.StatusOK, OptimizeResponse{
		Kind:        kind,
		Best:        best,
		Results:     results,
		Instruments: instruments,
		Threshold:   threshold,
		Thresholds:  thresholds,
		Skipped:     skipped,
	})
}

// HandleGetTrades lists stored simulated trades for a symbol with summary
// statistics.
func (api *API) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	if api.Store == nil {
		WriteError(w, r, http.StatusServiceUnavailable, "Results store is not configured")
		return
	}
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	if symbol == "" {
		WriteError(w, r, http.StatusBadRequest, "symbol is required")
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	rows, err := api.Store.TradeHistory(r.Context(), symbol, limit)
	if err != nil {
		api.Log.Error("fetching trades failed", logger.String("symbol", symbol), logger.Error(err))
		WriteError(w, r, http.StatusInternalServerError, "Failed to fetch trades")
		return
	}
	WriteJSON(w, r, http.StatusOK, map[string]interface{}{
		"trades":     rows,
		"statistics": datafeed.SummarizeTrades(rows),
	})
}
