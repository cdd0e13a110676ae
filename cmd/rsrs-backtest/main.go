package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"rsrs/internal/analysis"
	"rsrs/internal/config"
	"rsrs/internal/datasource"
	"rsrs/internal/report"
	"rsrs/internal/store"
	"rsrs/internal/strategy"
	"rsrs/internal/util"
)

func main() {
	cfgFlag := flag.String("config", "", "path to the YAML config (default $RSRS_CONFIG or config/rsrs.yaml)")
	symbol := flag.String("symbol", "", "override data.symbol")
	start := flag.String("start", "", "override data.start_date (YYYY-MM-DD)")
	end := flag.String("end", "", "override data.end_date (YYYY-MM-DD)")
	source := flag.String("source", "", "override data.source (alpaca or csv)")
	csvPath := flag.String("csv", "", "CSV file to read bars from; implies -source csv")
	format := flag.String("format", "", "override report.format (table or csv)")
	output := flag.String("output", "", "override report.output")
	workers := flag.Int("workers", 0, "override backtest.max_workers")
	benchmark := flag.Bool("benchmark", false, "include the buy-and-hold benchmark")
	listCache := flag.Bool("list-cache", false, "list the cache catalog and exit")
	flag.Parse()

	cfgPath := "config/rsrs.yaml"
	if p := os.Getenv("RSRS_CONFIG"); p != "" {
		cfgPath = p
	}
	if *cfgFlag != "" {
		cfgPath = *cfgFlag
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags take precedence over the file and the environment.
	if *symbol != "" {
		cfg.Data.Symbol = *symbol
	}
	if *start != "" {
		cfg.Data.StartDate = *start
	}
	if *end != "" {
		cfg.Data.EndDate = *end
	}
	if *source != "" {
		cfg.Data.Source = *source
	}
	if *csvPath != "" {
		cfg.Data.Source = "csv"
		cfg.Data.CSVPath = *csvPath
	}
	if *format != "" {
		cfg.Report.Format = *format
	}
	if *output != "" {
		cfg.Report.Output = *output
	}
	if *workers > 0 {
		cfg.Backtest.MaxWorkers = *workers
	}
	if *benchmark {
		cfg.Backtest.IncludeBenchmark = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid flags: %v", err)
	}

	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var catalog *store.Catalog
	if cfg.Data.CatalogPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Data.CatalogPath), 0o755); err != nil {
			log.Fatalf("failed to create catalog directory: %v", err)
		}
		catalog, err = store.NewCatalog(cfg.Data.CatalogPath)
		if err != nil {
			log.Fatalf("failed to open cache catalog: %v", err)
		}
		defer catalog.Close()
	}

	if *listCache {
		if catalog == nil {
			log.Fatalf("data.catalog_path is not configured")
		}
		if err := printCatalog(ctx, os.Stdout, catalog); err != nil {
			log.Fatalf("failed to list cache catalog: %v", err)
		}
		return
	}

	cache, err := store.NewBarCache(cfg.Data.CacheFormat, cfg.Data.CacheDir)
	if err != nil {
		log.Fatalf("failed to create bar cache: %v", err)
	}
	loader := datasource.NewLoader(newSource(cfg), cache, catalog)

	startDate, endDate, err := cfg.DateRange()
	if err != nil {
		log.Fatalf("invalid date range: %v", err)
	}
	bars, err := loader.Load(ctx, cfg.Data.Symbol, startDate, endDate)
	if err != nil {
		log.Fatalf("failed to load bars: %v", err)
	}
	slog.Info("bars loaded", "symbol", cfg.Data.Symbol, "bars", len(bars),
		"first", bars[0].Timestamp.Format("2006-01-02"), "last", bars[len(bars)-1].Timestamp.Format("2006-01-02"))

	reg, names, err := buildRegistry(cfg)
	if err != nil {
		log.Fatalf("failed to build strategies: %v", err)
	}

	bt := strategy.NewBacktester(reg, strategy.Options{
		InitialCash:    cfg.Broker.InitialCash,
		Commission:     cfg.Broker.Commission,
		FillOn:         strategy.FillPolicy(cfg.Broker.FillOn),
		LotSize:        cfg.Broker.LotSize,
		MaxPositionPct: cfg.Broker.MaxPositionPct,
		MaxWorkers:     cfg.Backtest.MaxWorkers,
	})
	ic := analysis.NewICAnalyzer(cfg.Analysis.ICPeriod, cfg.Analysis.ICMinSamples)

	var reports []report.Performance
	for _, out := range bt.RunAll(ctx, names, bars) {
		if out.Err != nil {
			slog.Error("backtest failed", "strategy", out.Name, "error", out.Err)
			continue
		}
		res, err := ic.Evaluate(out.Result.SignalSeries(), out.Result.AssetReturns)
		if err != nil {
			slog.Error("signal evaluation failed", "strategy", out.Name, "error", err)
			continue
		}
		reports = append(reports, report.Generate(out.Result, res, cfg.Analysis.PeriodsPerYear))
	}
	if len(reports) == 0 {
		log.Fatalf("no strategy completed")
	}

	if err := writeReport(cfg.Report, reports); err != nil {
		log.Fatalf("failed to write report: %v", err)
	}
}

func newSource(cfg *config.Config) datasource.Source {
	if cfg.Data.Source == "csv" {
		return datasource.NewCSVFileSource(cfg.Data.CSVPath)
	}
	return datasource.NewAlpacaSource(datasource.AlpacaOptions{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		DataURL:         cfg.Alpaca.DataURL,
		Feed:            cfg.Alpaca.Feed,
		Adjustment:      cfg.Alpaca.Adjustment,
		RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
		MaxAttempts:     cfg.Alpaca.MaxAttempts,
	})
}

func writeReport(rc config.Report, reports []report.Performance) error {
	var w io.Writer = os.Stdout
	if rc.Output != "" {
		if err := os.MkdirAll(filepath.Dir(rc.Output), 0o755); err != nil {
			return err
		}
		f, err := os.Create(rc.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if rc.Format == "csv" {
		return report.WriteCSV(w, reports)
	}
	return report.RenderTable(w, reports)
}

func printCatalog(ctx context.Context, w io.Writer, catalog *store.Catalog) error {
	entries, err := catalog.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%-10s %s..%s  %-7s %-7s rows=%-6d fetched=%s  %s\n",
			e.Key.Symbol, e.Key.Start.Format("2006-01-02"), e.Key.End.Format("2006-01-02"),
			e.Key.Source, e.Format, e.Rows, e.FetchedAt.Format("2006-01-02 15:04"), e.Path)
	}
	fmt.Fprintf(w, "%d cache entries\n", len(entries))
	return nil
}
