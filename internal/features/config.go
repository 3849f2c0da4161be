package features

import (
	"fmt"

	"featcli/internal/indicators"
)

// Interaction column names. These are fixed outputs of the interaction
// stage and always computed against a 10-day rolling mean regardless of
// the configured SMA windows.
const (
	ColDailyReturn    = "daily_return"
	ColPriceVsSMA10   = "Price_vs_SMA10"
	ColVolumeVsAvg10  = "Volume_vs_AvgVol10"
	interactionWindow = 10
)

// Config is the full parameter surface of the feature pipeline. The zero
// value is not usable; start from DefaultConfig and override fields.
type Config struct {
	// Backend selects the indicator backend by name. Unknown or empty
	// names resolve to the native backend with a fallback diagnostic.
	Backend string

	// Parallel enables the errgroup fan-out over indicator columns.
	// The fan-out joins before the lag stage, so output is identical
	// either way.
	Parallel bool

	SMAWindows []int
	EMASpans   []int

	RSIPeriod int

	MACDFast   int
	MACDSlow   int
	MACDSignal int

	BollingerWindow int
	BollingerK      float64

	// Lag offsets per source column. Empty slices mean no lags for that
	// source, not the defaults; use DefaultConfig for the standard set.
	CloseLags  []int
	ReturnLags []int
	VolumeLags []int
}

// DefaultConfig returns the production parameter set: SMA {5,10},
// EMA {5,10}, RSI 14, MACD (12,26,9), Bollinger (20, 2.0), close lags
// {1,2,3}, return lag {1}, volume lag {1}. Warm-up for this configuration
// is 19 rows, dominated by the Bollinger window.
func DefaultConfig() Config {
	return Config{
		Backend:         indicators.BackendNative,
		Parallel:        true,
		SMAWindows:      []int{5, 10},
		EMASpans:        []int{5, 10},
		RSIPeriod:       14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerWindow: 20,
		BollingerK:      2.0,
		CloseLags:       []int{1, 2, 3},
		ReturnLags:      []int{1},
		VolumeLags:      []int{1},
	}
}

// Validate checks that every configured parameter is usable. It reports
// the first violation found.
func (c Config) Validate() error {
	for _, w := range c.SMAWindows {
		if w < 1 {
			return fmt.Errorf("sma window must be >= 1, got %d", w)
		}
	}
	for _, s := range c.EMASpans {
		if s < 1 {
			return fmt.Errorf("ema span must be >= 1, got %d", s)
		}
	}
	if c.RSIPeriod < 1 {
		return fmt.Errorf("rsi period must be >= 1, got %d", c.RSIPeriod)
	}
	if c.MACDFast < 1 || c.MACDSlow < 1 || c.MACDSignal < 1 {
		return fmt.Errorf("macd periods must be >= 1, got (%d,%d,%d)",
			c.MACDFast, c.MACDSlow, c.MACDSignal)
	}
	if c.MACDFast >= c.MACDSlow {
		return fmt.Errorf("macd fast period %d must be shorter than slow period %d",
			c.MACDFast, c.MACDSlow)
	}
	if c.BollingerWindow < 2 {
		return fmt.Errorf("bollinger window must be >= 2, got %d", c.BollingerWindow)
	}
	if c.BollingerK <= 0 {
		return fmt.Errorf("bollinger k must be positive, got %g", c.BollingerK)
	}
	for _, lag := range c.CloseLags {
		if lag < 1 {
			return fmt.Errorf("close lag must be >= 1, got %d", lag)
		}
	}
	for _, lag := range c.ReturnLags {
		if lag < 1 {
			return fmt.Errorf("return lag must be >= 1, got %d", lag)
		}
	}
	for _, lag := range c.VolumeLags {
		if lag < 1 {
			return fmt.Errorf("volume lag must be >= 1, got %d", lag)
		}
	}
	return nil
}
