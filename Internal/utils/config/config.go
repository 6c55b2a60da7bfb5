package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/fazecat/benfordscan/Internal/types"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	Benford    BenfordConfig    `yaml:"benford"`
	Signals    SignalConfig     `yaml:"signals"`
	Outcome    OutcomeConfig    `yaml:"outcome"`
	Backtest   BacktestConfig   `yaml:"backtest"`
	Grid       GridConfig       `yaml:"grid"`
	Validation ValidationConfig `yaml:"validation"`
	Scanner    ScannerConfig    `yaml:"scanner"`

	// Exit parameter presets by instrument profile.
	Profiles map[string]types.ParameterSet `yaml:"profiles"`

	DataFeed DataFeedConfig `yaml:"data_feed"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LogConfig      `yaml:"logging"`
	API      APIConfig      `yaml:"api"`
}

// BenfordConfig holds the digit-distribution calibration. The alert
// thresholds and score midpoint were fitted on one historical case and are
// tunable, not physical constants.
type BenfordConfig struct {
	Windows        []int   `yaml:"windows" default:"[5,7,10,15,30]" validate:"min=1,dive,gt=0"`
	LongWindow     int     `yaml:"long_window" default:"30" validate:"gt=0"`
	ShortWindows   []int   `yaml:"short_windows" default:"[5,7,10]" validate:"dive,gt=0"`
	LongThreshold  float64 `yaml:"long_threshold" default:"20" validate:"gte=0"`
	ShortThreshold float64 `yaml:"short_threshold" default:"15" validate:"gte=0"`
	MinSamples     int     `yaml:"min_samples" default:"5" validate:"gte=1"`
	ScoreMidpoint  float64 `yaml:"score_midpoint" default:"15" validate:"gt=0"`
	PsychMarginPct float64 `yaml:"psych_margin_pct" default:"0.02" validate:"gte=0"`
}

type SignalConfig struct {
	ToleranceDays   int     `yaml:"tolerance_days" default:"5" validate:"gte=0"`
	MinGapDays      int     `yaml:"min_gap_days" default:"10" validate:"gte=0"`
	MinDetectors    int     `yaml:"min_detectors" default:"2" validate:"gte=1"`
	WarmupDays      int     `yaml:"warmup_days" default:"60" validate:"gte=0"`
	LookaheadDays   int     `yaml:"lookahead_days" default:"30" validate:"gte=0"`
	VPDThreshold    float64 `yaml:"vpd_threshold" default:"3.0"`
	RSIMin          float64 `yaml:"rsi_min" default:"25"`
	RSIMax          float64 `yaml:"rsi_max" default:"70"`
	SDEPhase        float64 `yaml:"sde_phase" default:"3"`
	BenfordLookback int     `yaml:"benford_lookback" default:"31" validate:"gt=0"`
}

type OutcomeConfig struct {
	Horizons        []int   `yaml:"horizons" default:"[5,10,20,30]" validate:"min=1,dive,gt=0"`
	LookaheadDays   int     `yaml:"lookahead_days" default:"30" validate:"gt=0"`
	HitThresholdPct float64 `yaml:"hit_threshold_pct" default:"10"`
}

type BacktestConfig struct {
	// Commission on both legs plus sell-side tax, as a fraction.
	RoundTripCost        float64            `yaml:"round_trip_cost" default:"0.0021" validate:"gte=0"`
	MaxHoldDays          int                `yaml:"max_hold_days" default:"30" validate:"gt=0"`
	Default              types.ParameterSet `yaml:"default_params"`
	CircuitBreakerLosses int                `yaml:"circuit_breaker_losses" default:"5" validate:"gte=0"`
	CircuitBreakerExtra  int                `yaml:"circuit_breaker_extra_days" default:"15" validate:"gte=0"`
	PostStopWindow       int                `yaml:"post_stop_window" default:"30" validate:"gt=0"`
}

// GridConfig defines the parameter sweep and the composite score weights.
// The weights are a heuristic ranking, kept here so they can be revisited
// without touching the simulator.
type GridConfig struct {
	TakeProfits   []float64 `yaml:"take_profits" default:"[0.10,0.15,0.17,0.20,0.25,0.30]" validate:"min=1,dive,gt=0"`
	StopLosses    []float64 `yaml:"stop_losses" default:"[0.05,0.07,0.09,0.11,0.13]" validate:"min=1,dive,gt=0"`
	Cooldowns     []int     `yaml:"cooldowns" default:"[3,5,7]" validate:"min=1,dive,gte=0"`
	MinRewardRisk float64   `yaml:"min_reward_risk" default:"1.5" validate:"gte=0"`
	MinSampleSize int       `yaml:"min_sample_size" default:"8" validate:"gte=1"`
	Workers       int       `yaml:"workers" default:"4" validate:"gte=1"`

	// Instruments given their own exit grid, best baseline first.
	TopInstruments int `yaml:"top_instruments" default:"10" validate:"gte=0"`

	EVWeight        float64 `yaml:"ev_weight" default:"0.40"`
	WinRateWeight   float64 `yaml:"win_rate_weight" default:"0.30"`
	StabilityWeight float64 `yaml:"stability_weight" default:"0.30"`
	StabilityTrades int     `yaml:"stability_trades" default:"30" validate:"gt=0"`

	Thresholds          []float64 `yaml:"thresholds" default:"[1.5,2.0,2.5,3.0,3.5,4.0,5.0]" validate:"dive,gt=0"`
	ThresholdMinResults int       `yaml:"threshold_min_results" default:"30" validate:"gte=1"`
	ReturnWeight        float64   `yaml:"return_weight" default:"0.5"`
	HitRateWeight       float64   `yaml:"hit_rate_weight" default:"0.3"`
	MaxGainWeight       float64   `yaml:"max_gain_weight" default:"0.2"`
}

type ValidationConfig struct {
	Horizon          int     `yaml:"horizon" default:"20" validate:"gt=0"`
	MinSamples       int     `yaml:"min_samples" default:"100"`
	MinMeanReturn    float64 `yaml:"min_mean_return" default:"3.0"`
	MinWinRate       float64 `yaml:"min_win_rate" default:"55"`
	MinMedianMaxGain float64 `yaml:"min_median_max_gain" default:"8.0"`
	MinAsymmetry     float64 `yaml:"min_asymmetry" default:"1.3"`
	GoCriteria       int     `yaml:"go_criteria" default:"4" validate:"gte=1,lte=5"`
	ConditionalMin   int     `yaml:"conditional_criteria" default:"3" validate:"gte=0,lte=5"`
}

type ScannerConfig struct {
	Workers   int `yaml:"workers" default:"4" validate:"gte=1"`
	MinBars   int `yaml:"min_bars" default:"100" validate:"gte=0"`
	TopTrades int `yaml:"top_trades" default:"10" validate:"gte=0"`
}

type DataFeedConfig struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url" default:"https://paper-api.alpaca.markets"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed" default:"iex" validate:"oneof=iex sip otc"`
	Days      int    `yaml:"days" default:"600" validate:"gt=0"`
	// Alpaca's free tier allows 200 requests per minute.
	RequestsPerMinute int `yaml:"requests_per_minute" default:"180" validate:"gt=0"`
	MaxAttempts       int `yaml:"max_attempts" default:"3" validate:"gte=1"`
}

type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl" default:"12h"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host" default:"localhost"`
	Port     string `yaml:"port" default:"5432"`
	User     string `yaml:"user" default:"postgres"`
	Password string `yaml:"password"`
	Name     string `yaml:"name" default:"benfordscan"`
	SSLMode  string `yaml:"sslmode" default:"disable"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
	Output string `yaml:"output" default:"stderr"`
}

type APIConfig struct {
	Addr          string `yaml:"addr" default:":8080"`
	JWTSecret     string `yaml:"jwt_secret"`
	// APIKey must accompany token requests; empty disables /api/token.
	APIKey        string `yaml:"api_key"`
	TokenTTLHours int    `yaml:"token_ttl_hours" default:"24" validate:"gt=0"`
}

var validate = validator.New()

func defaultProfiles() map[string]types.ParameterSet {
	return map[string]types.ParameterSet{
		"default":         {TakeProfitPct: 0.17, StopLossPct: 0.07, CooldownDays: 3},
		"large_cap":       {TakeProfitPct: 0.10, StopLossPct: 0.10, CooldownDays: 5},
		"force_following": {TakeProfitPct: 0.21, StopLossPct: 0.07, CooldownDays: 5},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		// tags are static, so this only fires on a programming error
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.Backtest.Default = types.ParameterSet{TakeProfitPct: 0.25, StopLossPct: 0.10}
	cfg.Profiles = defaultProfiles()
	return &cfg
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// and the environment. An empty path searches the usual locations.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	data, foundPath, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if foundPath != "" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", foundPath, err)
		}
	}
	if len(cfg.Profiles) == 0 {
		cfg.Profiles = defaultProfiles()
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("read config: %w", err)
		}
		return data, path, nil
	}

	possiblePaths := []string{
		"config.yaml",
		filepath.Join("Internal", "utils", "config", "config.yaml"),
	}
	for _, p := range possiblePaths {
		data, err := os.ReadFile(p)
		if err == nil {
			return data, p, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("read config %s: %w", p, err)
		}
	}
	return nil, "", nil
}

// envOverrides lists the environment variables that override file values.
// Unset variables leave the pointer nil.
type envOverrides struct {
	Environment   *string  `envconfig:"BENFORD_ENV"`
	LogLevel      *string  `envconfig:"BENFORD_LOG_LEVEL"`
	RoundTripCost *float64 `envconfig:"BENFORD_ROUND_TRIP_COST"`
	Windows       []int    `envconfig:"BENFORD_WINDOWS"`
	AlpacaKey     *string  `envconfig:"ALPACA_API_KEY"`
	AlpacaSecret  *string  `envconfig:"ALPACA_API_SECRET"`
	RedisAddr     *string  `envconfig:"REDIS_ADDR"`
	DBHost        *string  `envconfig:"DB_HOST"`
	DBPort        *string  `envconfig:"DB_PORT"`
	DBUser        *string  `envconfig:"DB_USER"`
	DBPassword    *string  `envconfig:"DB_PASSWORD"`
	DBName        *string  `envconfig:"DB_NAME"`
	JWTSecret     *string  `envconfig:"JWT_SECRET_KEY"`
	APIKey        *string  `envconfig:"BENFORD_API_KEY"`
}

func applyEnv(c *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	setString(&c.Environment, env.Environment)
	setString(&c.Logging.Level, env.LogLevel)
	if env.RoundTripCost != nil {
		c.Backtest.RoundTripCost = *env.RoundTripCost
	}
	if len(env.Windows) > 0 {
		c.Benford.Windows = env.Windows
	}
	setString(&c.DataFeed.APIKey, env.AlpacaKey)
	setString(&c.DataFeed.APISecret, env.AlpacaSecret)
	if env.RedisAddr != nil && *env.RedisAddr != "" {
		c.Cache.Addr = *env.RedisAddr
		c.Cache.Enabled = true
	}
	setString(&c.Database.Host, env.DBHost)
	setString(&c.Database.Port, env.DBPort)
	setString(&c.Database.User, env.DBUser)
	setString(&c.Database.Password, env.DBPassword)
	setString(&c.Database.Name, env.DBName)
	setString(&c.API.JWTSecret, env.JWTSecret)
	setString(&c.API.APIKey, env.APIKey)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil && *v != "" {
		*dst = *v
	}
}

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Signals.RSIMin > c.Signals.RSIMax {
		return fmt.Errorf("signals.rsi_min %.1f exceeds rsi_max %.1f", c.Signals.RSIMin, c.Signals.RSIMax)
	}
	if !slices.Contains(c.Benford.Windows, c.Benford.LongWindow) {
		return fmt.Errorf("benford.long_window %d is not one of benford.windows %v", c.Benford.LongWindow, c.Benford.Windows)
	}
	for _, w := range c.Benford.ShortWindows {
		if !slices.Contains(c.Benford.Windows, w) {
			return fmt.Errorf("benford.short_windows entry %d is not one of benford.windows %v", w, c.Benford.Windows)
		}
	}
	if c.Validation.ConditionalMin > c.Validation.GoCriteria {
		return fmt.Errorf("validation.conditional_criteria must not exceed go_criteria")
	}
	for name, p := range c.Profiles {
		if p.TakeProfitPct <= 0 || p.StopLossPct <= 0 {
			return fmt.Errorf("profile %q needs positive take_profit_pct and stop_loss_pct", name)
		}
	}
	return nil
}

func (c *Config) GetProfile(profileName string) *types.ParameterSet {
	if profile, exists := c.Profiles[profileName]; exists {
		return &profile
	}
	return nil
}

func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
