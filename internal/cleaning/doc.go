// Package cleaning turns raw OHLCV CSV files into validated bar series
// ready for feature derivation.
//
// The cleaning sequence is: load (BOM tolerant, multi-format dates,
// header mapping) → chronological sort → duplicate-date removal (last
// occurrence wins) → optional date-range filter → forward-fill then
// back-fill of missing numeric cells → schema verification. The output
// is a BarSeries that satisfies the engine's input contract, plus a
// Report of what was changed along the way.
package cleaning
