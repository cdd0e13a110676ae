package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rsrs.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"RSRS_DATA_DIR", "RSRS_SYMBOL", "ALPACA_API_KEY", "ALPACA_API_SECRET",
		"ALPACA_DATA_URL", "LOG_LEVEL", "APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFull(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
data:
  source: "csv"
  symbol: "512800"
  start_date: "2020-01-01"
  end_date: "2025-01-31"
  csv_path: "data/512800.csv"
  cache_dir: "/tmp/rsrs/cache"
  cache_format: "parquet"
  catalog_path: "/tmp/rsrs/cache.db"
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  feed: "iex"
broker:
  initial_cash: 50000
  commission: 0.001
  fill_on: "next_open"
  lot_size: 100
signal:
  rsrs_period: 20
  dist_period: 300
  rank_period: 200
strategies:
  - name: "fast-z"
    selector: "zscore"
    buy_threshold: 1.0
    sell_threshold: -1.0
    target_percent: 0.5
analysis:
  ic_period: 5
  ic_min_samples: 30
backtest:
  max_workers: 4
  include_benchmark: true
logging:
  level: "debug"
  format: "json"
report:
  format: "csv"
  output: "/tmp/rsrs/report.csv"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Data --
	if cfg.Data.Source != "csv" {
		t.Errorf("Data.Source = %q, want %q", cfg.Data.Source, "csv")
	}
	if cfg.Data.Symbol != "512800" {
		t.Errorf("Data.Symbol = %q, want %q", cfg.Data.Symbol, "512800")
	}
	if cfg.Data.CacheFormat != "parquet" {
		t.Errorf("Data.CacheFormat = %q, want %q", cfg.Data.CacheFormat, "parquet")
	}
	if cfg.Data.CatalogPath != "/tmp/rsrs/cache.db" {
		t.Errorf("Data.CatalogPath = %q, want %q", cfg.Data.CatalogPath, "/tmp/rsrs/cache.db")
	}

	// -- Alpaca --
	if cfg.Alpaca.Feed != "iex" {
		t.Errorf("Alpaca.Feed = %q, want %q", cfg.Alpaca.Feed, "iex")
	}
	if cfg.Alpaca.Adjustment != "all" {
		t.Errorf("Alpaca.Adjustment = %q, want default %q", cfg.Alpaca.Adjustment, "all")
	}

	// -- Broker --
	if cfg.Broker.InitialCash != 50000 {
		t.Errorf("Broker.InitialCash = %v, want 50000", cfg.Broker.InitialCash)
	}
	if cfg.Broker.FillOn != "next_open" {
		t.Errorf("Broker.FillOn = %q, want %q", cfg.Broker.FillOn, "next_open")
	}
	if cfg.Broker.LotSize != 100 {
		t.Errorf("Broker.LotSize = %d, want 100", cfg.Broker.LotSize)
	}
	if cfg.Broker.MaxPositionPct != 1.0 {
		t.Errorf("Broker.MaxPositionPct = %v, want default 1.0", cfg.Broker.MaxPositionPct)
	}

	// -- Signal --
	if cfg.Signal.RSRSPeriod != 20 || cfg.Signal.DistPeriod != 300 || cfg.Signal.RankPeriod != 200 {
		t.Errorf("Signal = %+v, want {20 300 200}", cfg.Signal)
	}

	// -- Strategies --
	if len(cfg.Strategies) != 1 {
		t.Fatalf("len(Strategies) = %d, want 1", len(cfg.Strategies))
	}
	s := cfg.Strategies[0]
	if s.Name != "fast-z" || s.Selector != "zscore" {
		t.Errorf("Strategies[0] = %+v, want fast-z/zscore", s)
	}
	if s.BuyThreshold == nil || *s.BuyThreshold != 1.0 {
		t.Errorf("Strategies[0].BuyThreshold = %v, want 1.0", s.BuyThreshold)
	}
	if s.SellThreshold == nil || *s.SellThreshold != -1.0 {
		t.Errorf("Strategies[0].SellThreshold = %v, want -1.0", s.SellThreshold)
	}

	// -- Analysis --
	if cfg.Analysis.ICPeriod != 5 || cfg.Analysis.ICMinSamples != 30 {
		t.Errorf("Analysis = %+v, want period 5, min samples 30", cfg.Analysis)
	}
	if cfg.Analysis.PeriodsPerYear != 252 {
		t.Errorf("Analysis.PeriodsPerYear = %d, want default 252", cfg.Analysis.PeriodsPerYear)
	}

	// -- Backtest / Logging / Report --
	if cfg.Backtest.MaxWorkers != 4 || !cfg.Backtest.IncludeBenchmark {
		t.Errorf("Backtest = %+v, want 4 workers with benchmark", cfg.Backtest)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
	if cfg.Report.Format != "csv" || cfg.Report.Output != "/tmp/rsrs/report.csv" {
		t.Errorf("Report = %+v, want csv to /tmp/rsrs/report.csv", cfg.Report)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "data:\n  symbol: \"QQQ\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Data.Symbol != "QQQ" {
		t.Errorf("Data.Symbol = %q, want %q", cfg.Data.Symbol, "QQQ")
	}
	if cfg.Data.Source != "alpaca" {
		t.Errorf("Data.Source = %q, want %q", cfg.Data.Source, "alpaca")
	}
	if cfg.Broker.InitialCash != 100000 {
		t.Errorf("Broker.InitialCash = %v, want 100000", cfg.Broker.InitialCash)
	}
	if cfg.Signal.RSRSPeriod != 18 || cfg.Signal.DistPeriod != 0 {
		t.Errorf("Signal = %+v, want 18 with selector-default dist period", cfg.Signal)
	}
	if cfg.Analysis.ICPeriod != 10 || cfg.Analysis.ICMinSamples != 15 {
		t.Errorf("Analysis = %+v, want 10/15", cfg.Analysis)
	}
	if len(cfg.Strategies) != 0 {
		t.Errorf("len(Strategies) = %d, want 0", len(cfg.Strategies))
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
data:
  cache_dir: "/original/data"
`)

	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("RSRS_DATA_DIR", "/env/data")
	t.Setenv("RSRS_SYMBOL", "IWM")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	// api_secret should remain from YAML since no env override was set.
	if cfg.Alpaca.APISecret != "yaml-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (from YAML)", cfg.Alpaca.APISecret, "yaml-secret")
	}
	if cfg.Data.CacheDir != "/env/data" {
		t.Errorf("Data.CacheDir = %q, want %q (env override)", cfg.Data.CacheDir, "/env/data")
	}
	if cfg.Data.Symbol != "IWM" {
		t.Errorf("Data.Symbol = %q, want %q (env override)", cfg.Data.Symbol, "IWM")
	}

	t.Setenv("APCA_API_KEY_ID", "canonical-key")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Alpaca.APIKey != "canonical-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (APCA override wins)", cfg.Alpaca.APIKey, "canonical-key")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown source", func(c *Config) { c.Data.Source = "akshare" }},
		{"csv without path", func(c *Config) { c.Data.Source = "csv" }},
		{"empty symbol", func(c *Config) { c.Data.Symbol = "" }},
		{"bad start date", func(c *Config) { c.Data.StartDate = "20200101" }},
		{"end before start", func(c *Config) { c.Data.EndDate = "2019-01-01" }},
		{"cache format", func(c *Config) { c.Data.CacheFormat = "json" }},
		{"no cash", func(c *Config) { c.Broker.InitialCash = 0 }},
		{"negative commission", func(c *Config) { c.Broker.Commission = -0.1 }},
		{"fill policy", func(c *Config) { c.Broker.FillOn = "vwap" }},
		{"lot size", func(c *Config) { c.Broker.LotSize = 0 }},
		{"rsrs period", func(c *Config) { c.Signal.RSRSPeriod = 1 }},
		{"dist period", func(c *Config) { c.Signal.DistPeriod = -1 }},
		{"strategy selector", func(c *Config) { c.Strategies = []StrategyConfig{{Name: "x"}} }},
		{"target percent", func(c *Config) {
			c.Strategies = []StrategyConfig{{Selector: "slope", TargetPercent: 1.5}}
		}},
		{"ic samples", func(c *Config) { c.Analysis.ICMinSamples = 1 }},
		{"report format", func(c *Config) { c.Report.Format = "html" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestDateRange(t *testing.T) {
	cfg := Default()
	start, end, err := cfg.DateRange()
	if err != nil {
		t.Fatalf("DateRange() error: %v", err)
	}
	if start.Year() != 2020 || end.Year() != 2025 || end.Month() != 1 || end.Day() != 31 {
		t.Errorf("DateRange() = %v, %v, want 2020-01-01..2025-01-31", start, end)
	}
}
