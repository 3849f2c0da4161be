// Package fetch downloads daily OHLCV candles from an exchange-style
// JSON REST API.
//
// The exchange caps candles-per-request, so a multi-year range is
// assembled from consecutive pages. Requests are rate limited, and a
// page that fails with 429, a 5xx status, or a transport error is
// retried with exponential backoff up to a configured cap. Any other
// failure is permanent. The assembled series is sorted ascending by
// date with page-boundary duplicates collapsed; deeper validation and
// gap repair belong to the cleaning stage.
package fetch
