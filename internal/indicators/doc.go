// Package indicators implements the technical indicator primitives the
// feature pipeline composes: simple and exponential moving averages,
// RSI, MACD, Bollinger bands, on-balance volume, daily returns, and
// positional shifts.
//
// Every function takes a value series (and, where noted, a parallel
// volume series) and returns a slice of the same length. Positions where
// the indicator is undefined hold math.NaN(); downstream trimming removes
// them. Inputs are never mutated.
//
// Two interchangeable backends exist: the native one implements the
// recurrences directly and is always available, while the talib one
// delegates to github.com/markcheno/go-talib with per-indicator masking
// so that surviving positions agree with the native output within a
// small floating tolerance. Resolve picks a backend by name once, at
// pipeline configuration.
package indicators
