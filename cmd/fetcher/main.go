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

	"featcli/internal/config"
	"featcli/internal/exporter"
	"featcli/internal/fetch"
	"featcli/internal/infrastructure"
	"featcli/pkg/contracts"
	"featcli/pkg/contracts/domain"
)

func main() {
	symbol := flag.String("symbol", "", "instrument to download (defaults to the configured symbol)")
	fromStr := flag.String("from", "", "start date (YYYY-MM-DD); blank uses the configured lookback")
	toStr := flag.String("to", "", "end date (YYYY-MM-DD); blank means today")
	outPath := flag.String("out", "", "output CSV path (defaults to data/raw/<symbol>.csv)")
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
		cfg.Logging.FilePath = paths.GetLogPath("fetcher.log")
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Printf("Warning: failed to initialize logger, using default: %v\n", err)
		logger = slog.Default()
	}

	if *symbol != "" {
		cfg.Fetch.Symbol = *symbol
	}
	if *outPath == "" {
		*outPath = paths.GetRawCSVPath(cfg.Fetch.Symbol)
	}

	logger.Info("Candle fetcher starting",
		slog.String("symbol", cfg.Fetch.Symbol),
		slog.String("base_url", cfg.Fetch.BaseURL),
		slog.String("from", *fromStr),
		slog.String("to", *toStr),
		slog.String("output", *outPath))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := fetch.NewClient(cfg.Fetch, logger)
	client.OnProgress = func(pagesDone, pagesTotal int) {
		logger.Info("Fetch progress",
			slog.Int("pages_done", pagesDone),
			slog.Int("pages_total", pagesTotal))
	}

	start := time.Now()

	var series *domain.BarSeries
	if *fromStr == "" && *toStr == "" {
		series, err = client.FetchLookback(ctx)
	} else {
		from, to, rangeErr := parseRange(*fromStr, *toStr, cfg.Fetch.LookbackYears)
		if rangeErr != nil {
			logger.Error("Invalid date range", slog.String("error", rangeErr.Error()))
			os.Exit(1)
		}
		series, err = client.Fetch(ctx, from, to)
	}
	if err != nil {
		logger.Error("Fetch failed",
			slog.String("symbol", cfg.Fetch.Symbol),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	barExporter := exporter.NewBarExporter(paths)
	if err := barExporter.ExportBars(series, *outPath); err != nil {
		logger.Error("Failed to write raw CSV",
			slog.String("path", *outPath),
			slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Fetch complete",
		slog.String("symbol", series.Symbol),
		slog.Int("bars", series.Len()),
		slog.String("output", *outPath),
		slog.Duration("elapsed", time.Since(start)))
}

// parseRange resolves the date flags into a closed range. A blank --to
// means today; a blank --from means lookbackYears before the end.
func parseRange(fromStr, toStr string, lookbackYears int) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if toStr != "" {
		parsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q: %w", toStr, err)
		}
		to = parsed
	}

	from := to.AddDate(-lookbackYears, 0, 0)
	if fromStr != "" {
		parsed, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q: %w", fromStr, err)
		}
		from = parsed
	}

	return from, to, nil
}
