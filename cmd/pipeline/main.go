package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"featcli/internal/cleaning"
	"featcli/internal/config"
	"featcli/internal/exporter"
	"featcli/internal/features"
	"featcli/internal/infrastructure"
	"featcli/pkg/contracts"
)

func main() {
	inPath := flag.String("in", "", "input raw CSV (defaults to data/raw/<symbol>.csv)")
	outPath := flag.String("out", "", "output features CSV (defaults to data/features/<symbol>_features.csv)")
	symbol := flag.String("symbol", "", "symbol stamped on the output (defaults to the configured symbol)")
	backend := flag.String("backend", "", "indicator backend: native | talib (defaults to the configured backend)")
	fromStr := flag.String("from", "", "drop bars before this date (YYYY-MM-DD)")
	toStr := flag.String("to", "", "drop bars after this date (YYYY-MM-DD)")
	xlsx := flag.Bool("xlsx", true, "also write the Excel workbook")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	// Initialize paths first to get default directories
	paths, err := config.GetPaths()
	if err != nil {
		fmt.Printf("Error: failed to initialize paths: %v\n", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		fmt.Printf("Error: failed to create required directories: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Warning: failed to load config, using defaults: %v\n", err)
		cfg = config.Default()
		cfg.Logging.FilePath = paths.GetLogPath("pipeline.log")
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Warning: failed to initialize logger, using default: %v\n", err)
		logger = slog.Default()
	}

	if *symbol == "" {
		*symbol = cfg.Fetch.Symbol
	}
	if *inPath == "" {
		*inPath = paths.GetRawCSVPath(*symbol)
	}
	if *outPath == "" {
		*outPath = paths.GetFeaturesCSVPath(*symbol)
	}

	opts := cleaning.Options{Symbol: *symbol}
	if *fromStr != "" {
		from, parseErr := time.Parse("2006-01-02", *fromStr)
		if parseErr != nil {
			logger.Error("Invalid --from date", slog.String("error", parseErr.Error()))
			os.Exit(1)
		}
		opts.From = from
	}
	if *toStr != "" {
		to, parseErr := time.Parse("2006-01-02", *toStr)
		if parseErr != nil {
			logger.Error("Invalid --to date", slog.String("error", parseErr.Error()))
			os.Exit(1)
		}
		opts.To = to
	}

	logger.Info("Feature pipeline starting",
		slog.String("symbol", *symbol),
		slog.String("input", *inPath),
		slog.String("output", *outPath),
		slog.String("backend", *backend),
		slog.Bool("xlsx", *xlsx))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start := time.Now()

	cleaner := cleaning.NewCleaner(logger)
	series, report, err := cleaner.CleanFile(ctx, *inPath, opts)
	if err != nil {
		logger.Error("Cleaning failed",
			slog.String("input", *inPath),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Series cleaned",
		slog.Int("rows_in", report.RowsIn),
		slog.Int("rows_out", report.RowsOut),
		slog.Int("duplicates_dropped", report.DuplicatesDropped),
		slog.Int("cells_filled", report.CellsFilled))

	barExporter := exporter.NewBarExporter(paths)
	processedPath, err := barExporter.ExportProcessed(series)
	if err != nil {
		logger.Error("Failed to write processed CSV", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pipeline, err := features.NewPipeline(buildFeatureConfig(cfg.Pipeline, *backend), logger)
	if err != nil {
		logger.Error("Pipeline configuration rejected", slog.String("error", err.Error()))
		os.Exit(1)
	}

	table, diag, err := pipeline.Run(ctx, series)
	if err != nil {
		logger.Error("Feature derivation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	featureExporter := exporter.NewFeatureExporter(paths)
	if err := featureExporter.ExportTableTo(table, *outPath); err != nil {
		logger.Error("Failed to write features CSV",
			slog.String("path", *outPath),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	diagPath, err := featureExporter.ExportDiagnostics(diag)
	if err != nil {
		logger.Error("Failed to write diagnostics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	workbookPath := ""
	if *xlsx && cfg.Pipeline.ExportExcel {
		workbookExporter := exporter.NewWorkbookExporter(paths)
		workbookPath, err = workbookExporter.ExportWorkbook(series, table, diag)
		if err != nil {
			logger.Error("Failed to write workbook", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	logger.Info("Feature pipeline complete",
		slog.String("symbol", table.Symbol()),
		slog.String("backend_used", diag.BackendUsed),
		slog.Int("rows_examined", diag.RowsExamined),
		slog.Int("rows_emitted", diag.RowsEmitted),
		slog.Int("rows_dropped", diag.RowsDropped),
		slog.Int("columns", len(diag.Columns)),
		slog.Int("fallbacks", len(diag.Fallbacks)),
		slog.String("features_csv", *outPath),
		slog.String("processed_csv", processedPath),
		slog.String("diagnostics", diagPath),
		slog.String("workbook", workbookPath),
		slog.Duration("elapsed", time.Since(start)))

	if !diag.Healthy() {
		for _, failure := range diag.Failures {
			logger.Warn("Indicator failed during run",
				slog.String("indicator", failure.Indicator),
				slog.String("message", failure.Message))
		}
		os.Exit(1)
	}
}

// buildFeatureConfig overlays the application pipeline configuration and
// the backend flag onto the engine defaults.
func buildFeatureConfig(pc config.PipelineConfig, backend string) features.Config {
	cfg := features.DefaultConfig()

	if pc.Backend != "" {
		cfg.Backend = pc.Backend
	}
	cfg.Parallel = pc.Parallel
	if len(pc.SMAWindows) > 0 {
		cfg.SMAWindows = pc.SMAWindows
	}
	if len(pc.EMASpans) > 0 {
		cfg.EMASpans = pc.EMASpans
	}
	if pc.RSIPeriod > 0 {
		cfg.RSIPeriod = pc.RSIPeriod
	}
	if pc.MACDFast > 0 {
		cfg.MACDFast = pc.MACDFast
	}
	if pc.MACDSlow > 0 {
		cfg.MACDSlow = pc.MACDSlow
	}
	if pc.MACDSignal > 0 {
		cfg.MACDSignal = pc.MACDSignal
	}
	if pc.BollingerWindow > 0 {
		cfg.BollingerWindow = pc.BollingerWindow
	}
	if pc.BollingerK > 0 {
		cfg.BollingerK = pc.BollingerK
	}
	if len(pc.CloseLags) > 0 {
		cfg.CloseLags = pc.CloseLags
	}
	if len(pc.ReturnLags) > 0 {
		cfg.ReturnLags = pc.ReturnLags
	}
	if len(pc.VolumeLags) > 0 {
		cfg.VolumeLags = pc.VolumeLags
	}

	if backend != "" {
		cfg.Backend = backend
	}

	return cfg
}
