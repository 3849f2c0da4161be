package features

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"featcli/internal/indicators"
	"featcli/pkg/contracts/domain"
)

// Intermediate columns computed during a run but removed before the
// final table is assembled.
const (
	colBollingerMiddle = "Bollinger_Middle"
	colAvgVolumeHelper = "AvgVol_10"
)

// Pipeline derives a FeatureTable from a bar series. Backend resolution
// and descriptor construction happen once in NewPipeline; Run keeps no
// state between invocations, so a Pipeline is safe for concurrent use.
type Pipeline struct {
	cfg     Config
	backend indicators.Backend
	band    indicators.Backend
	descs   []Descriptor
	order   []string
	logger  *slog.Logger

	// resolutionFallbacks holds configuration-time backend
	// substitutions, copied into every run's diagnostics.
	resolutionFallbacks []FallbackEvent

	// Observer, when set before Run, receives each indicator
	// computation outcome. It may be invoked concurrently when
	// Parallel is set.
	Observer func(indicator, backend string, elapsed time.Duration, err error)
}

// NewPipeline validates the configuration and resolves the indicator
// backend. An unknown backend name is not an error: the native backend
// is substituted and the substitution is reported in each run's
// diagnostics. Indicator kinds the selected backend does not support
// are routed to the native backend the same way.
func NewPipeline(cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline configuration: %w", err)
	}

	backend, known := indicators.Resolve(cfg.Backend)
	p := &Pipeline{
		cfg:     cfg,
		backend: backend,
		band:    backend,
		logger:  logger.With(slog.String("component", "features")),
	}

	if !known {
		p.resolutionFallbacks = append(p.resolutionFallbacks, FallbackEvent{
			From:   cfg.Backend,
			To:     backend.Name(),
			Reason: "unknown backend name",
		})
		p.logger.Warn("requested indicator backend unavailable, using default",
			slog.String("requested", cfg.Backend),
			slog.String("using", backend.Name()))
	}

	if !backend.Capabilities().Supports(indicators.KindBand) {
		native, _ := indicators.Resolve(indicators.BackendNative)
		p.band = native
		p.resolutionFallbacks = append(p.resolutionFallbacks, FallbackEvent{
			Indicator: "Bollinger",
			From:      backend.Name(),
			To:        native.Name(),
			Reason:    "backend does not compute band indicators",
		})
	}

	p.descs = buildDescriptors(cfg)
	p.order = columnOrder(cfg, p.descs)
	return p, nil
}

// Columns returns the retained column order of tables this pipeline
// produces.
func (p *Pipeline) Columns() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Descriptors returns the indicator plan built at configuration time.
func (p *Pipeline) Descriptors() []Descriptor {
	out := make([]Descriptor, len(p.descs))
	copy(out, p.descs)
	return out
}

// BackendName returns the name of the backend the pipeline resolved.
func (p *Pipeline) BackendName() string {
	return p.backend.Name()
}

// Run derives the feature table for the series. The input is never
// mutated. On success it returns the trimmed dense table together with
// the run diagnostics; on an input contract violation it returns an
// *InputError and no table. Indicator-level failures do not fail the
// run: the affected columns are NaN, recorded in the diagnostics, and
// removed by trimming.
//
// The context is used for log correlation only; the core computation
// has no cancellation points. Callers bound runtime with their own
// deadlines around Run.
func (p *Pipeline) Run(ctx context.Context, series *domain.BarSeries) (*FeatureTable, *Diagnostics, error) {
	started := time.Now()

	if series == nil {
		return nil, nil, newInputError("", "series is nil", nil)
	}
	if err := series.Validate(); err != nil {
		return nil, nil, newInputError(series.Symbol, "schema violation", err)
	}

	diag := &Diagnostics{
		Symbol:           series.Symbol,
		BackendRequested: p.cfg.Backend,
		BackendUsed:      p.backend.Name(),
		RowsExamined:     series.Len(),
		Columns:          p.Columns(),
		Fallbacks:        append([]FallbackEvent(nil), p.resolutionFallbacks...),
		StartedAt:        started,
	}

	p.logger.DebugContext(ctx, "feature derivation started",
		slog.String("symbol", series.Symbol),
		slog.Int("rows", series.Len()),
		slog.String("backend", p.backend.Name()),
		slog.Bool("parallel", p.cfg.Parallel))

	closes := series.Closes()
	volumes := series.Volumes()
	dates := series.Dates()

	work := make(map[string][]float64, len(p.order)+2)

	// Stage 1: base returns.
	work[ColDailyReturn] = indicators.DailyReturns(closes)

	// Stage 2: indicator columns, optionally fanned out. Goroutines
	// only read closes/volumes and write disjoint keys under the
	// mutex, so output is identical in both modes.
	var mu sync.Mutex
	runJob := func(desc Descriptor) {
		jobStart := time.Now()
		cols, failure := p.computeIndicator(desc, closes, volumes)
		p.observe(desc, time.Since(jobStart), failure)
		mu.Lock()
		defer mu.Unlock()
		for name, col := range cols {
			work[name] = col
		}
		if failure != nil {
			diag.Failures = append(diag.Failures, failure)
		}
	}

	if p.cfg.Parallel {
		var g errgroup.Group
		for _, desc := range p.descs {
			desc := desc
			g.Go(func() error {
				runJob(desc)
				return nil
			})
		}
		// Join before any dependent stage; jobs never return errors.
		_ = g.Wait()
	} else {
		for _, desc := range p.descs {
			runJob(desc)
		}
	}

	for _, failure := range diag.Failures {
		p.logger.ErrorContext(ctx, "indicator computation failed, column left undefined",
			slog.String("symbol", series.Symbol),
			slog.String("indicator", failure.Indicator),
			slog.String("error", failure.Message))
	}

	// Stage 3: lag features over the already-computed base columns.
	for _, lag := range p.cfg.CloseLags {
		work[fmt.Sprintf("Close_Lag_%d", lag)] = indicators.Shift(closes, lag)
	}
	for _, lag := range p.cfg.ReturnLags {
		work[fmt.Sprintf("Return_Lag_%d", lag)] = indicators.Shift(work[ColDailyReturn], lag)
	}
	for _, lag := range p.cfg.VolumeLags {
		work[fmt.Sprintf("Volume_Lag_%d", lag)] = indicators.Shift(volumes, lag)
	}

	// Stage 4: interaction features. Price_vs_SMA10 divides by the
	// SMA_10 column when the configuration produced one so that an
	// upstream indicator failure propagates; otherwise a helper mean
	// is computed and discarded, like the average-volume helper.
	p.computeInteractions(work, closes, volumes, diag)

	// Stage 5: intermediate-column removal happens structurally: the
	// working set still holds the Bollinger middle band and the
	// average-volume helper, but assembly retains only the declared
	// column order.
	full, err := NewTable(series.Symbol, dates, p.order, work)
	if err != nil {
		return nil, nil, fmt.Errorf("assemble feature table for %s: %w", series.Symbol, err)
	}

	// Stage 6: row-wise trimming of undefined cells.
	trimmed, dropped := full.TrimUndefined()
	diag.RowsDropped = dropped
	diag.RowsEmitted = trimmed.Len()
	diag.Elapsed = time.Since(started)

	if trimmed.Len() == 0 {
		p.logger.WarnContext(ctx, "all rows trimmed, feature table is empty",
			slog.String("symbol", series.Symbol),
			slog.Int("rows_examined", diag.RowsExamined),
			slog.String("backend", p.backend.Name()))
	}

	p.logger.InfoContext(ctx, "feature derivation completed",
		slog.String("symbol", series.Symbol),
		slog.Int("rows_examined", diag.RowsExamined),
		slog.Int("rows_dropped", diag.RowsDropped),
		slog.Int("rows_emitted", diag.RowsEmitted),
		slog.Int("failures", len(diag.Failures)),
		slog.Duration("elapsed", diag.Elapsed))

	return trimmed, diag, nil
}

// observe reports one finished indicator job to the Observer, naming
// the backend that actually computed it.
func (p *Pipeline) observe(desc Descriptor, elapsed time.Duration, failure *ComputationError) {
	if p.Observer == nil {
		return
	}
	backend := p.backend
	if desc.Kind == indicators.KindBand {
		backend = p.band
	}
	var err error
	if failure != nil {
		err = fmt.Errorf("%s", failure.Message)
	}
	p.Observer(desc.Name, backend.Name(), elapsed, err)
}

// computeIndicator runs one descriptor against the resolved backend and
// returns its output columns keyed by name, intermediates included. A
// panic inside the computation is recovered here, at indicator
// granularity: the descriptor's columns come back fully NaN along with
// a ComputationError for the diagnostics.
func (p *Pipeline) computeIndicator(desc Descriptor, closes, volumes []float64) (cols map[string][]float64, failure *ComputationError) {
	defer func() {
		if r := recover(); r != nil {
			failure = &ComputationError{
				Indicator: desc.Name,
				Columns:   append([]string(nil), desc.Columns...),
				Message:   fmt.Sprintf("recovered panic: %v", r),
			}
			cols = make(map[string][]float64, len(desc.Columns))
			for _, name := range desc.Columns {
				cols[name] = undefinedColumn(len(closes))
			}
		}
	}()

	cols = make(map[string][]float64, len(desc.Columns))

	switch {
	case desc.Kind == indicators.KindMovingAverage && desc.Params["window"] > 0:
		cols[desc.Columns[0]] = p.backend.Sma(closes, int(desc.Params["window"]))

	case desc.Kind == indicators.KindMovingAverage && desc.Params["span"] > 0:
		cols[desc.Columns[0]] = p.backend.Ema(closes, int(desc.Params["span"]))

	case desc.Kind == indicators.KindOscillator && desc.Params["period"] > 0:
		cols[desc.Columns[0]] = p.backend.Rsi(closes, int(desc.Params["period"]))

	case desc.Kind == indicators.KindOscillator && desc.Params["fast"] > 0:
		line, signal := p.backend.Macd(closes,
			int(desc.Params["fast"]), int(desc.Params["slow"]), int(desc.Params["signal"]))
		cols[desc.Columns[0]] = line
		cols[desc.Columns[1]] = signal

	case desc.Kind == indicators.KindBand:
		upper, middle, lower := p.band.BollingerBands(closes,
			int(desc.Params["window"]), desc.Params["k"])
		cols[desc.Columns[0]] = upper
		cols[desc.Columns[1]] = lower
		cols[colBollingerMiddle] = middle

	case desc.Kind == indicators.KindAccumulator:
		cols[desc.Columns[0]] = p.backend.Obv(closes, volumes)

	default:
		panic(fmt.Sprintf("unroutable descriptor %s (%s)", desc.Name, desc.Kind))
	}

	return cols, nil
}

// computeInteractions fills the two ratio columns. Failures here follow
// the same isolation rule as indicators: the affected column goes fully
// NaN and the run continues.
func (p *Pipeline) computeInteractions(work map[string][]float64, closes, volumes []float64, diag *Diagnostics) {
	n := len(closes)

	sma10, ok := work[fmt.Sprintf("SMA_%d", interactionWindow)]
	if !ok {
		sma10 = p.safeSma(closes, ColPriceVsSMA10, n, diag)
	}
	ratio := make([]float64, n)
	for i := 0; i < n; i++ {
		ratio[i] = closes[i] / sma10[i]
	}
	work[ColPriceVsSMA10] = ratio

	avgVol := p.safeSma(volumes, ColVolumeVsAvg10, n, diag)
	work[colAvgVolumeHelper] = avgVol
	volRatio := make([]float64, n)
	for i := 0; i < n; i++ {
		volRatio[i] = volumes[i] / avgVol[i]
	}
	work[ColVolumeVsAvg10] = volRatio
}

// safeSma computes the 10-day helper mean with the same panic recovery
// as the indicator stage, attributing failures to the interaction
// column that needed it.
func (p *Pipeline) safeSma(series []float64, column string, n int, diag *Diagnostics) (out []float64) {
	defer func() {
		if r := recover(); r != nil {
			diag.Failures = append(diag.Failures, &ComputationError{
				Indicator: column,
				Columns:   []string{column},
				Message:   fmt.Sprintf("recovered panic: %v", r),
			})
			out = undefinedColumn(n)
		}
	}()
	return p.backend.Sma(series, interactionWindow)
}

func undefinedColumn(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
