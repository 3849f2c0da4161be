package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

// TA-Lib seeds Ema (and everything built on it) with a leading simple
// average instead of the first observation. The difference decays
// geometrically, so positions past a per-indicator unstable margin agree
// with the native recurrence. The margin is sized for the seed transient
// to shrink by nine decades, which keeps the surviving positions within
// 1e-6 of the native values at any realistic price scale.
const seedDecayFactor = 1e9

// macdSignalSettle pads the MACD margin so the signal line's own filter
// state, fed by still-converging line values, has settled too.
const macdSignalSettle = 10

// emaUnstableMargin returns the number of leading positions to mask for
// an exponential average with alpha = 2/(span+1).
func emaUnstableMargin(span int) int {
	alpha := 2.0 / (float64(span) + 1.0)
	return int(math.Ceil(math.Log(seedDecayFactor) / -math.Log(1.0-alpha)))
}

// wilderUnstableMargin is emaUnstableMargin for Wilder smoothing, where
// alpha = 1/period.
func wilderUnstableMargin(period int) int {
	alpha := 1.0 / float64(period)
	return int(math.Ceil(math.Log(seedDecayFactor) / -math.Log(1.0-alpha)))
}

// TalibBackend computes indicators through github.com/markcheno/go-talib.
// TA-Lib pads the lookback region of every output with zeros and uses
// its own seeding conventions, so each method masks the positions that
// have not yet converged to the native recurrence. Bollinger bands are
// not supplied: TA-Lib only offers population standard deviation, which
// never converges to the sample-deviation contract, so the capability
// report routes that kind back to the native backend.
type TalibBackend struct{}

// NewTalibBackend creates the go-talib accelerated backend.
func NewTalibBackend() *TalibBackend {
	return &TalibBackend{}
}

// Name returns the registry name of this backend.
func (b *TalibBackend) Name() string { return BackendTalib }

// Capabilities reports everything except the band kind.
func (b *TalibBackend) Capabilities() Capabilities {
	return Capabilities{
		KindMovingAverage: true,
		KindOscillator:    true,
		KindBand:          false,
		KindAccumulator:   true,
	}
}

// Sma delegates to TA-Lib and masks the zero-padded lookback region.
// Where defined, the values are identical to the native mean.
func (b *TalibBackend) Sma(series []float64, window int) []float64 {
	if len(series) == 0 {
		return nil
	}
	out := talib.Sma(series, window)
	return maskLeading(out, window-1)
}

// Ema delegates to TA-Lib and masks the unstable margin for the span.
func (b *TalibBackend) Ema(series []float64, span int) []float64 {
	if len(series) == 0 {
		return nil
	}
	out := talib.Ema(series, span)
	return maskLeading(out, emaUnstableMargin(span))
}

// Rsi delegates to TA-Lib and masks the Wilder unstable margin.
func (b *TalibBackend) Rsi(series []float64, period int) []float64 {
	if len(series) == 0 {
		return nil
	}
	out := talib.Rsi(series, period)
	return maskLeading(out, wilderUnstableMargin(period))
}

// Macd delegates to TA-Lib. The line inherits the slow Ema's transient
// and the signal line filters the still-converging line, so both are
// masked with the slow margin plus a settle pad.
func (b *TalibBackend) Macd(series []float64, fast, slow, signal int) (line, signalLine []float64) {
	if len(series) == 0 {
		return nil, nil
	}
	rawLine, rawSignal, _ := talib.Macd(series, fast, slow, signal)
	margin := emaUnstableMargin(slow) + macdSignalSettle
	return maskLeading(rawLine, margin), maskLeading(rawSignal, margin)
}

// BollingerBands is the one indicator this backend does not accelerate.
// It computes the native bands so the interface stays total; the
// pipeline consults Capabilities and records the fallback.
func (b *TalibBackend) BollingerBands(series []float64, window int, k float64) (upper, middle, lower []float64) {
	return BollingerBands(series, window, k)
}

// Obv delegates to TA-Lib and re-bases the result. TA-Lib seeds
// obv[0] = volume[0]; subtracting the seed restores the obv[0] = 0
// contract, after which every step agrees exactly.
func (b *TalibBackend) Obv(close, volume []float64) []float64 {
	if len(close) == 0 {
		return nil
	}
	out := talib.Obv(close, volume)
	base := out[0]
	for i := range out {
		out[i] -= base
	}
	return out
}

// maskLeading sets the first n positions of a series to NaN, in place,
// and returns it.
func maskLeading(series []float64, n int) []float64 {
	if n > len(series) {
		n = len(series)
	}
	for i := 0; i < n; i++ {
		series[i] = math.NaN()
	}
	return series
}
