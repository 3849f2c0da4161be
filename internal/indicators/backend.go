package indicators

import "strings"

// Registry names for the built-in backends.
const (
	BackendNative = "native"
	BackendTalib  = "talib"
)

// Kind classifies indicators by the shape of their computation. The
// capability report and the feature descriptors both speak in kinds.
type Kind string

const (
	KindMovingAverage Kind = "moving_average"
	KindOscillator    Kind = "oscillator"
	KindBand          Kind = "band"
	KindAccumulator   Kind = "accumulator"
)

// Capabilities reports which indicator kinds a backend computes itself.
// A kind mapped to false (or absent) is routed to the native backend by
// the pipeline, with a fallback diagnostic.
type Capabilities map[Kind]bool

// Supports reports whether the backend covers the given kind.
func (c Capabilities) Supports(kind Kind) bool {
	return c[kind]
}

// Backend is a batch indicator computation strategy. Implementations
// must return slices of the same length as their input with NaN at
// undefined positions, and must agree with the native recurrences
// within a small floating tolerance on every position both backends
// mark defined.
type Backend interface {
	Name() string
	Capabilities() Capabilities

	Sma(series []float64, window int) []float64
	Ema(series []float64, span int) []float64
	Rsi(series []float64, period int) []float64
	Macd(series []float64, fast, slow, signal int) (line, signalLine []float64)
	BollingerBands(series []float64, window int, k float64) (upper, middle, lower []float64)
	Obv(close, volume []float64) []float64
}

var backendFactories = map[string]func() Backend{
	BackendNative: func() Backend { return NewNativeBackend() },
	BackendTalib:  func() Backend { return NewTalibBackend() },
}

// Resolve looks up a backend by name. The empty string means the
// default. For an unknown name it returns the default backend and
// false; the caller decides whether that deserves a diagnostic.
// Resolution happens once per pipeline configuration, never per call.
func Resolve(name string) (Backend, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = BackendNative
	}
	factory, ok := backendFactories[key]
	if !ok {
		return NewNativeBackend(), false
	}
	return factory(), true
}

// Available returns the registered backend names in no particular order.
func Available() []string {
	names := make([]string, 0, len(backendFactories))
	for name := range backendFactories {
		names = append(names, name)
	}
	return names
}
