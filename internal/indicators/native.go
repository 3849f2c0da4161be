package indicators

import "math"

// Sma computes the simple moving average over a trailing window.
// Positions before window-1 are undefined. The mean is recomputed per
// window rather than kept as a running sum, so a NaN cell poisons only
// the windows that contain it.
func Sma(series []float64, window int) []float64 {
	out := nans(len(series))
	if window < 1 {
		return out
	}
	for t := window - 1; t < len(series); t++ {
		sum := 0.0
		for i := t - window + 1; i <= t; i++ {
			sum += series[i]
		}
		out[t] = sum / float64(window)
	}
	return out
}

// Ema computes the exponential moving average with alpha = 2/(span+1),
// seeded with the first observation. Defined from position 0.
func Ema(series []float64, span int) []float64 {
	out := make([]float64, len(series))
	if len(series) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = series[0]
	for t := 1; t < len(series); t++ {
		out[t] = alpha*series[t] + (1.0-alpha)*out[t-1]
	}
	return out
}

// Rsi computes the relative strength index with Wilder smoothing
// (alpha = 1/period), seeded with the first defined gain and loss.
// Position 0 has no delta and stays NaN. A window with gains and no
// losses divides by zero into +Inf and saturates to exactly 100; a
// window with neither gains nor losses is 0/0 and stays NaN.
func Rsi(series []float64, period int) []float64 {
	out := nans(len(series))
	if period < 1 || len(series) < 2 {
		return out
	}
	alpha := 1.0 / float64(period)

	avgGain := math.Max(series[1]-series[0], 0)
	avgLoss := math.Max(series[0]-series[1], 0)
	out[1] = rsiFromAverages(avgGain, avgLoss)

	for t := 2; t < len(series); t++ {
		delta := series[t] - series[t-1]
		avgGain = alpha*math.Max(delta, 0) + (1.0-alpha)*avgGain
		avgLoss = alpha*math.Max(-delta, 0) + (1.0-alpha)*avgLoss
		out[t] = rsiFromAverages(avgGain, avgLoss)
	}
	return out
}

// rsiFromAverages maps smoothed gain/loss averages to the 0..100 scale.
// IEEE semantics carry the edge cases: +Inf RS gives 100, 0/0 gives NaN.
func rsiFromAverages(avgGain, avgLoss float64) float64 {
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// Macd computes the MACD line as Ema(fast) - Ema(slow) and the signal
// line as Ema applied to the MACD line itself. Both are defined from
// position 0 because Ema is.
func Macd(series []float64, fast, slow, signal int) (line, signalLine []float64) {
	emaFast := Ema(series, fast)
	emaSlow := Ema(series, slow)
	line = make([]float64, len(series))
	for i := range line {
		line[i] = emaFast[i] - emaSlow[i]
	}
	signalLine = Ema(line, signal)
	return line, signalLine
}

// BollingerBands computes upper and lower bands at k sample standard
// deviations (ddof=1) around the window's simple moving average. The
// middle band is returned for callers that want it; the pipeline
// discards it. All three share the Sma warm-up region.
func BollingerBands(series []float64, window int, k float64) (upper, middle, lower []float64) {
	middle = Sma(series, window)
	upper = nans(len(series))
	lower = nans(len(series))
	if window < 2 {
		return upper, middle, lower
	}
	for t := window - 1; t < len(series); t++ {
		mean := middle[t]
		var ss float64
		for i := t - window + 1; i <= t; i++ {
			d := series[i] - mean
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(window-1))
		upper[t] = mean + k*sd
		lower[t] = mean - k*sd
	}
	return upper, middle, lower
}

// Obv computes on-balance volume: cumulative volume signed by the
// direction of the close-to-close move. The first position is 0, so the
// series is defined everywhere.
func Obv(close, volume []float64) []float64 {
	out := make([]float64, len(close))
	if len(close) == 0 {
		return out
	}
	out[0] = 0
	for t := 1; t < len(close); t++ {
		switch {
		case close[t] > close[t-1]:
			out[t] = out[t-1] + volume[t]
		case close[t] < close[t-1]:
			out[t] = out[t-1] - volume[t]
		default:
			out[t] = out[t-1]
		}
	}
	return out
}

// DailyReturns computes the simple percentage return
// close[t]/close[t-1] - 1. Position 0 has no prior close and stays NaN.
func DailyReturns(close []float64) []float64 {
	out := nans(len(close))
	for t := 1; t < len(close); t++ {
		out[t] = close[t]/close[t-1] - 1.0
	}
	return out
}

// Shift lags a series by n positions: out[t] = series[t-n]. The first n
// positions are NaN. Shift(s, 0) copies the series.
func Shift(series []float64, n int) []float64 {
	out := nans(len(series))
	if n < 0 {
		return out
	}
	for t := n; t < len(series); t++ {
		out[t] = series[t-n]
	}
	return out
}

// nans allocates a slice with every position undefined.
func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// NativeBackend computes every indicator with the recurrences above.
// It is the default and is always available.
type NativeBackend struct{}

// NewNativeBackend creates the default indicator backend.
func NewNativeBackend() *NativeBackend {
	return &NativeBackend{}
}

// Name returns the registry name of this backend.
func (b *NativeBackend) Name() string { return BackendNative }

// Capabilities reports that the native backend covers every indicator kind.
func (b *NativeBackend) Capabilities() Capabilities {
	return Capabilities{
		KindMovingAverage: true,
		KindOscillator:    true,
		KindBand:          true,
		KindAccumulator:   true,
	}
}

func (b *NativeBackend) Sma(series []float64, window int) []float64 {
	return Sma(series, window)
}

func (b *NativeBackend) Ema(series []float64, span int) []float64 {
	return Ema(series, span)
}

func (b *NativeBackend) Rsi(series []float64, period int) []float64 {
	return Rsi(series, period)
}

func (b *NativeBackend) Macd(series []float64, fast, slow, signal int) (line, signalLine []float64) {
	return Macd(series, fast, slow, signal)
}

func (b *NativeBackend) BollingerBands(series []float64, window int, k float64) (upper, middle, lower []float64) {
	return BollingerBands(series, window, k)
}

func (b *NativeBackend) Obv(close, volume []float64) []float64 {
	return Obv(close, volume)
}
