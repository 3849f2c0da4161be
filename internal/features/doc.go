// Package features implements the feature derivation pipeline that turns a
// cleaned daily bar series into a dense matrix of model-ready signal columns.
//
// The pipeline runs a fixed sequence of stages:
//
//  1. Base returns: daily_return from consecutive closes
//  2. Indicators: SMA/EMA/RSI/MACD/Bollinger/OBV through the configured
//     indicator backend (see internal/indicators)
//  3. Lag features: shifted copies of close, return, and volume
//  4. Interaction features: ratios of price/volume to their rolling means
//  5. Intermediate-column removal: helper columns (Bollinger middle band,
//     average-volume) are dropped before assembly
//  6. Row trimming: any row with an undefined (NaN) cell in a retained
//     column is removed, yielding a rectangular table with zero NaN cells
//
// # Architecture
//
//   - config.go: parameter surface with production defaults
//   - descriptor.go: per-indicator descriptors built once at configuration
//   - pipeline.go: stage orchestration, fan-out, and failure isolation
//   - table.go: the FeatureTable output structure
//   - diagnostics.go: per-run diagnostics (rows dropped, fallbacks, failures)
//   - errors.go: typed core errors (InputError, ComputationError)
//
// # Failure model
//
// Input problems (empty series, unordered dates, non-positive prices) fail
// fast with an InputError and produce no table. A panic inside a single
// indicator is recovered at that indicator's granularity: its column (and,
// for MACD, its pair) is fully NaN for the run, a ComputationError is
// recorded in the diagnostics, and the pipeline continues. Dependent lag and
// interaction columns propagate the NaN values and are removed by trimming.
//
// # Usage Example
//
//	pipeline := features.NewPipeline(features.DefaultConfig(), slog.Default())
//	table, diag, err := pipeline.Run(ctx, series)
//	if err != nil {
//	    return fmt.Errorf("derive features for %s: %w", series.Symbol, err)
//	}
//	slog.Info("features derived",
//	    "rows", table.Len(),
//	    "dropped", diag.RowsDropped,
//	    "backend", diag.BackendUsed)
//
// The pipeline never mutates its input; every stage allocates new slices.
// The core performs no file, network, or process I/O.
package features
