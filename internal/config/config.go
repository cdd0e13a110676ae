package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the backtesting harness.
type Config struct {
	Data       Data             `yaml:"data"`
	Alpaca     Alpaca           `yaml:"alpaca"`
	Broker     Broker           `yaml:"broker"`
	Signal     Signal           `yaml:"signal"`
	Strategies []StrategyConfig `yaml:"strategies"`
	Analysis   Analysis         `yaml:"analysis"`
	Backtest   Backtest         `yaml:"backtest"`
	Logging    Logging          `yaml:"logging"`
	Report     Report           `yaml:"report"`
}

// Data selects the price source and the cache that sits in front of it.
type Data struct {
	Source      string `yaml:"source"` // "alpaca" or "csv"
	Symbol      string `yaml:"symbol"`
	StartDate   string `yaml:"start_date"`
	EndDate     string `yaml:"end_date"`
	CSVPath     string `yaml:"csv_path"`
	CacheDir    string `yaml:"cache_dir"`
	CacheFormat string `yaml:"cache_format"` // "csv" or "parquet"
	CatalogPath string `yaml:"catalog_path"` // SQLite cache catalog; empty disables
}

// Alpaca holds credentials and request options for the Alpaca market-data
// API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed"`
	Adjustment      string `yaml:"adjustment"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	MaxAttempts     int    `yaml:"max_attempts"`
}

// Broker configures the simulated broker.
type Broker struct {
	InitialCash    float64 `yaml:"initial_cash"`
	Commission     float64 `yaml:"commission"` // fraction of notional
	FillOn         string  `yaml:"fill_on"`    // "close" or "next_open"
	LotSize        int64   `yaml:"lot_size"`
	MaxPositionPct float64 `yaml:"max_position_pct"`
}

// Signal holds the RSRS window lengths shared by every strategy unless a
// strategy overrides them.
type Signal struct {
	RSRSPeriod int `yaml:"rsrs_period"`
	DistPeriod int `yaml:"dist_period"` // 0 keeps each selector's default
	RankPeriod int `yaml:"rank_period"`
}

// StrategyConfig describes one strategy variant. Unset thresholds and
// periods fall back to the selector's defaults.
type StrategyConfig struct {
	Name          string   `yaml:"name"`
	Selector      string   `yaml:"selector"`
	BuyThreshold  *float64 `yaml:"buy_threshold"`
	SellThreshold *float64 `yaml:"sell_threshold"`
	TargetPercent float64  `yaml:"target_percent"`
	DistPeriod    int      `yaml:"dist_period"`
}

// Analysis configures signal evaluation and annualization.
type Analysis struct {
	ICPeriod       int `yaml:"ic_period"`
	ICMinSamples   int `yaml:"ic_min_samples"`
	PeriodsPerYear int `yaml:"periods_per_year"`
}

// Backtest controls how the batch of runs is executed.
type Backtest struct {
	MaxWorkers       int  `yaml:"max_workers"`
	IncludeBenchmark bool `yaml:"include_benchmark"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Report selects the output format of the comparison table.
type Report struct {
	Format string `yaml:"format"` // "table" or "csv"
	Output string `yaml:"output"` // file path; empty writes to stdout
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default returns a Config populated with the harness defaults.
func Default() *Config {
	return &Config{
		Data: Data{
			Source:      "alpaca",
			Symbol:      "SPY",
			StartDate:   "2020-01-01",
			EndDate:     "2025-01-31",
			CacheDir:    "data",
			CacheFormat: "csv",
		},
		Alpaca: Alpaca{
			Feed:            "sip",
			Adjustment:      "all",
			RateLimitPerMin: 200,
			MaxAttempts:     3,
		},
		Broker: Broker{
			InitialCash:    100000,
			FillOn:         "close",
			LotSize:        1,
			MaxPositionPct: 1.0,
		},
		Signal: Signal{
			RSRSPeriod: 18,
			RankPeriod: 252,
		},
		Analysis: Analysis{
			ICPeriod:       10,
			ICMinSamples:   15,
			PeriodsPerYear: 252,
		},
		Backtest: Backtest{MaxWorkers: 1},
		Logging:  Logging{Level: "info", Format: "text"},
		Report:   Report{Format: "table"},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path over the
// defaults, applies environment variable overrides and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RSRS_DATA_DIR"); v != "" {
		cfg.Data.CacheDir = v
	}

	if v := os.Getenv("RSRS_SYMBOL"); v != "" {
		cfg.Data.Symbol = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by the SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate checks the fields the backtest depends on.
func (c *Config) Validate() error {
	switch c.Data.Source {
	case "alpaca":
	case "csv":
		if c.Data.CSVPath == "" {
			return fmt.Errorf("%w: data.csv_path is required for the csv source", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown data.source %q", ErrInvalid, c.Data.Source)
	}
	if c.Data.Symbol == "" {
		return fmt.Errorf("%w: data.symbol is required", ErrInvalid)
	}
	start, err := time.Parse(time.DateOnly, c.Data.StartDate)
	if err != nil {
		return fmt.Errorf("%w: data.start_date: %v", ErrInvalid, err)
	}
	end, err := time.Parse(time.DateOnly, c.Data.EndDate)
	if err != nil {
		return fmt.Errorf("%w: data.end_date: %v", ErrInvalid, err)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: data.end_date %s is before start_date %s", ErrInvalid, c.Data.EndDate, c.Data.StartDate)
	}
	if c.Data.CacheFormat != "csv" && c.Data.CacheFormat != "parquet" {
		return fmt.Errorf("%w: unknown data.cache_format %q", ErrInvalid, c.Data.CacheFormat)
	}

	if c.Broker.InitialCash <= 0 {
		return fmt.Errorf("%w: broker.initial_cash must be positive", ErrInvalid)
	}
	if c.Broker.Commission < 0 {
		return fmt.Errorf("%w: broker.commission must not be negative", ErrInvalid)
	}
	if c.Broker.FillOn != "close" && c.Broker.FillOn != "next_open" {
		return fmt.Errorf("%w: unknown broker.fill_on %q", ErrInvalid, c.Broker.FillOn)
	}
	if c.Broker.LotSize <= 0 {
		return fmt.Errorf("%w: broker.lot_size must be positive", ErrInvalid)
	}

	if c.Signal.RSRSPeriod < 2 || c.Signal.DistPeriod < 0 || c.Signal.RankPeriod < 1 {
		return fmt.Errorf("%w: signal periods must be positive (rsrs_period >= 2)", ErrInvalid)
	}
	for i, s := range c.Strategies {
		if s.Selector == "" {
			return fmt.Errorf("%w: strategies[%d].selector is required", ErrInvalid, i)
		}
		if s.DistPeriod < 0 {
			return fmt.Errorf("%w: strategies[%d].dist_period must not be negative", ErrInvalid, i)
		}
		if s.TargetPercent < 0 || s.TargetPercent > 1 {
			return fmt.Errorf("%w: strategies[%d].target_percent must be within [0, 1]", ErrInvalid, i)
		}
	}

	if c.Analysis.ICPeriod < 1 || c.Analysis.ICMinSamples < 2 {
		return fmt.Errorf("%w: analysis.ic_period >= 1 and ic_min_samples >= 2 required", ErrInvalid)
	}
	if c.Analysis.PeriodsPerYear < 1 {
		return fmt.Errorf("%w: analysis.periods_per_year must be positive", ErrInvalid)
	}
	if c.Report.Format != "table" && c.Report.Format != "csv" {
		return fmt.Errorf("%w: unknown report.format %q", ErrInvalid, c.Report.Format)
	}
	return nil
}

// DateRange parses the configured start and end dates.
func (c *Config) DateRange() (start, end time.Time, err error) {
	start, err = time.Parse(time.DateOnly, c.Data.StartDate)
	if err != nil {
		return start, end, fmt.Errorf("parsing start date %q: %w", c.Data.StartDate, err)
	}
	end, err = time.Parse(time.DateOnly, c.Data.EndDate)
	if err != nil {
		return start, end, fmt.Errorf("parsing end date %q: %w", c.Data.EndDate, err)
	}
	return start, end, nil
}
