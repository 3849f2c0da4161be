package operations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"featcli/internal/cleaning"
	"featcli/internal/config"
	"featcli/internal/exporter"
	"featcli/internal/features"
	"featcli/internal/fetch"
	"featcli/pkg/contracts/domain"
)

const dateLayout = "2006-01-02"

// updateProgress records step progress on the in-memory state and
// broadcasts it in one call.
func updateProgress(b *StatusBroadcaster, state *OperationState, stepID string, progress float64, message string) {
	if stepState := state.GetStep(stepID); stepState != nil {
		stepState.UpdateProgress(progress, message)
	}
	if b != nil {
		b.UpdateStepProgress(state.ID, stepID, int(progress), message)
	}
}

// parseDateRange parses the optional run window. Zero times mean the
// corresponding bound was not set.
func parseDateRange(cfg domain.OperationConfig) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if cfg.StartDate != "" {
		if from, err = time.Parse(dateLayout, cfg.StartDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", cfg.StartDate, err)
		}
	}
	if cfg.EndDate != "" {
		if to, err = time.Parse(dateLayout, cfg.EndDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", cfg.EndDate, err)
		}
	}
	return from, to, nil
}

// FetchStage downloads daily candles for the run's symbol and writes
// the raw CSV artifact.
type FetchStage struct {
	BaseStage
	cfg         config.FetchConfig
	paths       *config.Paths
	logger      *slog.Logger
	broadcaster *StatusBroadcaster
}

// NewFetchStage creates the candle download step
func NewFetchStage(cfg config.FetchConfig, paths *config.Paths, logger *slog.Logger, broadcaster *StatusBroadcaster) *FetchStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &FetchStage{
		BaseStage:   NewBaseStage(domain.StepIDFetch, domain.StepNameFetch),
		cfg:         cfg,
		paths:       paths,
		logger:      logger.With(slog.String("step", domain.StepIDFetch)),
		broadcaster: broadcaster,
	}
}

// Validate skips the download when the run was configured to reuse an
// existing raw CSV.
func (s *FetchStage) Validate(state *OperationState) error {
	if state.Config.SkipFetch {
		return NewSkipError(s.ID(), "fetch disabled for this run")
	}
	return nil
}

// Execute downloads bars and exports the raw CSV
func (s *FetchStage) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())

	cfg := s.cfg
	cfg.Symbol = state.Symbol
	client := fetch.NewClient(cfg, s.logger)

	// Map page progress onto the 10..90 band; the surrounding
	// milestones cover setup and the artifact write.
	client.OnProgress = func(pagesDone, pagesTotal int) {
		if pagesTotal <= 0 {
			return
		}
		pct := 10 + float64(pagesDone)/float64(pagesTotal)*80
		updateProgress(s.broadcaster, state, s.ID(),
			pct, fmt.Sprintf("Downloaded page %d of %d", pagesDone, pagesTotal))
	}

	if tracer := GetOperationTracer(); tracer != nil {
		client.OnRequest = func(statusCode int, retried bool) {
			tracer.RecordFetchRequest(ctx, state.Symbol, statusCode, retried)
		}
	}

	updateProgress(s.broadcaster, state, s.ID(), 10, fmt.Sprintf("Downloading daily candles for %s", state.Symbol))

	from, to, err := parseDateRange(state.Config)
	if err != nil {
		return err
	}

	var series *domain.BarSeries
	if from.IsZero() {
		series, err = client.FetchLookback(ctx)
	} else {
		if to.IsZero() {
			to = time.Now().UTC()
		}
		series, err = client.Fetch(ctx, from, to)
	}
	if err != nil {
		// The client retries transient failures itself, so a returned
		// error is not worth another manager-level attempt.
		return WrapError(err, s.ID(), "candle download failed")
	}

	state.SetRawBars(series)

	updateProgress(s.broadcaster, state, s.ID(), 90, "Writing raw bars")
	rawPath, err := exporter.NewBarExporter(s.paths).ExportRaw(series)
	if err != nil {
		return WrapError(err, s.ID(), "raw bar export failed")
	}
	state.SetArtifact(domain.ArtifactRawCSV, rawPath)

	if stepState != nil {
		stepState.SetMetadata("bars", series.Len())
		stepState.SetMetadata("raw_csv", rawPath)
	}

	updateProgress(s.broadcaster, state, s.ID(), 95, fmt.Sprintf("Downloaded %d bars", series.Len()))
	return nil
}

// CleanStage normalizes raw bars into the series the feature engine
// accepts and writes the cleaned CSV artifact. It prefers the bars the
// fetch step left in memory and falls back to the raw CSV on disk.
type CleanStage struct {
	BaseStage
	paths       *config.Paths
	logger      *slog.Logger
	broadcaster *StatusBroadcaster
}

// NewCleanStage creates the bar cleaning step
func NewCleanStage(paths *config.Paths, logger *slog.Logger, broadcaster *StatusBroadcaster) *CleanStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanStage{
		BaseStage:   NewBaseStage(domain.StepIDClean, domain.StepNameClean),
		paths:       paths,
		logger:      logger.With(slog.String("step", domain.StepIDClean)),
		broadcaster: broadcaster,
	}
}

// Validate requires raw bars in memory or a raw CSV on disk
func (s *CleanStage) Validate(state *OperationState) error {
	if state.RawBars() != nil {
		return nil
	}
	rawPath := s.paths.GetRawCSVPath(state.Symbol)
	if !config.FileExists(rawPath) {
		return fmt.Errorf("no raw bars in memory and no raw CSV at %s", rawPath)
	}
	return nil
}

// Execute cleans the raw bars and exports the processed CSV
func (s *CleanStage) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())

	from, to, err := parseDateRange(state.Config)
	if err != nil {
		return err
	}
	opts := cleaning.Options{Symbol: state.Symbol, From: from, To: to}

	cleaner := cleaning.NewCleaner(s.logger)

	var (
		series *domain.BarSeries
		report *cleaning.Report
	)
	if raw := state.RawBars(); raw != nil {
		updateProgress(s.broadcaster, state, s.ID(), 20, fmt.Sprintf("Cleaning %d bars", raw.Len()))
		series, report, err = cleaner.Clean(ctx, raw.Bars, opts)
	} else {
		rawPath := s.paths.GetRawCSVPath(state.Symbol)
		updateProgress(s.broadcaster, state, s.ID(), 20, fmt.Sprintf("Cleaning bars from %s", rawPath))
		series, report, err = cleaner.CleanFile(ctx, rawPath, opts)
	}
	if err != nil {
		return WrapError(err, s.ID(), "bar cleaning failed")
	}

	state.SetBars(series, report)

	updateProgress(s.broadcaster, state, s.ID(), 80, "Writing cleaned bars")
	cleanPath, err := exporter.NewBarExporter(s.paths).ExportProcessed(series)
	if err != nil {
		return WrapError(err, s.ID(), "cleaned bar export failed")
	}
	state.SetArtifact(domain.ArtifactCleanCSV, cleanPath)

	if stepState != nil {
		stepState.SetMetadata("rows_in", report.RowsIn)
		stepState.SetMetadata("rows_out", report.RowsOut)
		stepState.SetMetadata("duplicates_dropped", report.DuplicatesDropped)
		stepState.SetMetadata("cells_filled", report.CellsFilled)
	}

	updateProgress(s.broadcaster, state, s.ID(), 95, fmt.Sprintf("Cleaned %d bars", series.Len()))
	return nil
}

// FeaturesStage derives the indicator feature table from cleaned bars.
type FeaturesStage struct {
	BaseStage
	base        config.PipelineConfig
	logger      *slog.Logger
	broadcaster *StatusBroadcaster
}

// NewFeaturesStage creates the feature derivation step
func NewFeaturesStage(base config.PipelineConfig, logger *slog.Logger, broadcaster *StatusBroadcaster) *FeaturesStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeaturesStage{
		BaseStage:   NewBaseStage(domain.StepIDFeatures, domain.StepNameFeatures),
		base:        base,
		logger:      logger.With(slog.String("step", domain.StepIDFeatures)),
		broadcaster: broadcaster,
	}
}

// Validate requires cleaned bars on the run state
func (s *FeaturesStage) Validate(state *OperationState) error {
	if state.Bars() == nil {
		return fmt.Errorf("no cleaned bars available; run the clean step first")
	}
	return nil
}

// Execute runs the feature pipeline and stores the trimmed table
func (s *FeaturesStage) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())

	updateProgress(s.broadcaster, state, s.ID(), 10, "Configuring feature pipeline")

	cfg := s.buildConfig(state.Config)
	pipeline, err := features.NewPipeline(cfg, s.logger)
	if err != nil {
		return WrapError(err, s.ID(), "feature pipeline configuration rejected")
	}

	tracer := GetOperationTracer()
	if tracer != nil {
		pipeline.Observer = func(indicator, backend string, elapsed time.Duration, err error) {
			tracer.RecordIndicatorComputation(ctx, indicator, backend, elapsed, err)
		}
	}

	updateProgress(s.broadcaster, state, s.ID(), 20,
		fmt.Sprintf("Deriving features with %s backend", pipeline.BackendName()))

	table, diag, err := pipeline.Run(ctx, state.Bars())
	if err != nil {
		return WrapError(err, s.ID(), "feature derivation failed")
	}

	state.SetTable(table, diag)
	if tracer != nil {
		tracer.RecordDerivation(ctx, diag)
	}

	if stepState != nil {
		stepState.SetMetadata("backend_used", diag.BackendUsed)
		stepState.SetMetadata("rows", table.Len())
		stepState.SetMetadata("columns", len(table.ColumnNames()))
		stepState.SetMetadata("rows_trimmed", diag.RowsDropped)
		if len(diag.Failures) > 0 {
			stepState.SetMetadata("indicator_failures", len(diag.Failures))
		}
	}

	updateProgress(s.broadcaster, state, s.ID(), 95,
		fmt.Sprintf("Derived %d rows x %d columns", table.Len(), len(table.ColumnNames())))
	return nil
}

// buildConfig layers run overrides over the application defaults: the
// engine defaults first, then the configured pipeline parameters, then
// any per-run feature overrides from the request.
func (s *FeaturesStage) buildConfig(opCfg domain.OperationConfig) features.Config {
	cfg := features.DefaultConfig()
	applyPipelineConfig(&cfg, s.base)

	if opCfg.Backend != "" {
		cfg.Backend = opCfg.Backend
	}
	f := opCfg.Features
	if f == nil {
		return cfg
	}
	if len(f.SMAWindows) > 0 {
		cfg.SMAWindows = f.SMAWindows
	}
	if len(f.EMASpans) > 0 {
		cfg.EMASpans = f.EMASpans
	}
	if f.RSIPeriod > 0 {
		cfg.RSIPeriod = f.RSIPeriod
	}
	if f.MACDFast > 0 {
		cfg.MACDFast = f.MACDFast
	}
	if f.MACDSlow > 0 {
		cfg.MACDSlow = f.MACDSlow
	}
	if f.MACDSignal > 0 {
		cfg.MACDSignal = f.MACDSignal
	}
	if f.BollingerWindow > 0 {
		cfg.BollingerWindow = f.BollingerWindow
	}
	if f.BollingerK > 0 {
		cfg.BollingerK = f.BollingerK
	}
	// nil means "keep the defaults"; an explicit empty slice clears
	// the lags for that source column.
	if f.CloseLags != nil {
		cfg.CloseLags = f.CloseLags
	}
	if f.ReturnLags != nil {
		cfg.ReturnLags = f.ReturnLags
	}
	if f.VolumeLags != nil {
		cfg.VolumeLags = f.VolumeLags
	}
	return cfg
}

// applyPipelineConfig overlays the application pipeline configuration
// onto the engine defaults.
func applyPipelineConfig(cfg *features.Config, pc config.PipelineConfig) {
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
}

// ExportStage writes the feature table, diagnostics, and optional Excel
// workbook artifacts.
type ExportStage struct {
	BaseStage
	paths       *config.Paths
	exportExcel bool
	logger      *slog.Logger
	broadcaster *StatusBroadcaster
}

// NewExportStage creates the artifact export step
func NewExportStage(paths *config.Paths, exportExcel bool, logger *slog.Logger, broadcaster *StatusBroadcaster) *ExportStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportStage{
		BaseStage:   NewBaseStage(domain.StepIDExport, domain.StepNameExport),
		paths:       paths,
		exportExcel: exportExcel,
		logger:      logger.With(slog.String("step", domain.StepIDExport)),
		broadcaster: broadcaster,
	}
}

// Validate requires a derived feature table on the run state
func (s *ExportStage) Validate(state *OperationState) error {
	if state.Table() == nil {
		return fmt.Errorf("no feature table available; run the features step first")
	}
	return nil
}

// Execute writes the run artifacts
func (s *ExportStage) Execute(ctx context.Context, state *OperationState) error {
	stepState := state.GetStep(s.ID())
	fx := exporter.NewFeatureExporter(s.paths)

	updateProgress(s.broadcaster, state, s.ID(), 10, "Writing feature table")
	csvPath, err := fx.ExportTable(state.Table())
	if err != nil {
		return WrapError(err, s.ID(), "feature table export failed")
	}
	state.SetArtifact(domain.ArtifactFeaturesCSV, csvPath)

	// The canonical table is overwritten on every run; the dated copy
	// preserves what a given day's refresh produced.
	updateProgress(s.broadcaster, state, s.ID(), 30, "Writing dated snapshot")
	snapshotPath := s.paths.GetDatedFeaturesCSVPath(state.Table().Symbol(), time.Now().UTC())
	if err := fx.ExportTableTo(state.Table(), snapshotPath); err != nil {
		return WrapError(err, s.ID(), "snapshot export failed")
	}
	state.SetArtifact(domain.ArtifactSnapshotCSV, snapshotPath)

	if diag := state.Diagnostics(); diag != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		updateProgress(s.broadcaster, state, s.ID(), 50, "Writing diagnostics")
		diagPath, err := fx.ExportDiagnostics(diag)
		if err != nil {
			return WrapError(err, s.ID(), "diagnostics export failed")
		}
		state.SetArtifact(domain.ArtifactDiagnostics, diagPath)
	}

	if s.exportExcel {
		if err := ctx.Err(); err != nil {
			return err
		}
		updateProgress(s.broadcaster, state, s.ID(), 80, "Writing workbook")
		wbPath, err := exporter.NewWorkbookExporter(s.paths).ExportWorkbook(state.Bars(), state.Table(), state.Diagnostics())
		if err != nil {
			return WrapError(err, s.ID(), "workbook export failed")
		}
		state.SetArtifact(domain.ArtifactWorkbook, wbPath)
	}

	if stepState != nil {
		stepState.SetMetadata("features_csv", csvPath)
		stepState.SetMetadata("rows", state.Table().Len())
	}

	updateProgress(s.broadcaster, state, s.ID(), 95, "Artifacts written")
	return nil
}
