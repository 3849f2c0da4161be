package features

import (
	"fmt"

	"featcli/internal/indicators"
)

// Source columns an indicator can depend on.
const (
	SourceClose  = "close"
	SourceVolume = "volume"
)

// Descriptor describes one indicator invocation the pipeline performs:
// which indicator, with which parameters, reading which source column(s),
// and which output columns it fills. Descriptors are built once at
// pipeline configuration and never mutated afterwards.
type Descriptor struct {
	// Name identifies the indicator invocation, e.g. "SMA_5" or "MACD".
	Name string `json:"name"`

	// Kind classifies the indicator for backend capability routing.
	Kind indicators.Kind `json:"kind"`

	// Params holds the numeric parameters of the invocation keyed by
	// role: window, span, period, fast, slow, signal, k.
	Params map[string]float64 `json:"params"`

	// DependsOn lists the source columns the indicator reads.
	DependsOn []string `json:"depends_on"`

	// Columns lists the output columns the invocation fills, in order.
	// Most indicators fill one; MACD and Bollinger fill two.
	Columns []string `json:"columns"`
}

// buildDescriptors expands a Config into the ordered indicator plan.
// The order fixes the column order of the final table.
func buildDescriptors(cfg Config) []Descriptor {
	var descs []Descriptor

	for _, w := range cfg.SMAWindows {
		name := fmt.Sprintf("SMA_%d", w)
		descs = append(descs, Descriptor{
			Name:      name,
			Kind:      indicators.KindMovingAverage,
			Params:    map[string]float64{"window": float64(w)},
			DependsOn: []string{SourceClose},
			Columns:   []string{name},
		})
	}
	for _, s := range cfg.EMASpans {
		name := fmt.Sprintf("EMA_%d", s)
		descs = append(descs, Descriptor{
			Name:      name,
			Kind:      indicators.KindMovingAverage,
			Params:    map[string]float64{"span": float64(s)},
			DependsOn: []string{SourceClose},
			Columns:   []string{name},
		})
	}

	rsiName := fmt.Sprintf("RSI_%d", cfg.RSIPeriod)
	descs = append(descs, Descriptor{
		Name:      rsiName,
		Kind:      indicators.KindOscillator,
		Params:    map[string]float64{"period": float64(cfg.RSIPeriod)},
		DependsOn: []string{SourceClose},
		Columns:   []string{rsiName},
	})

	descs = append(descs, Descriptor{
		Name: "MACD",
		Kind: indicators.KindOscillator,
		Params: map[string]float64{
			"fast":   float64(cfg.MACDFast),
			"slow":   float64(cfg.MACDSlow),
			"signal": float64(cfg.MACDSignal),
		},
		DependsOn: []string{SourceClose},
		Columns:   []string{"MACD", "MACD_Signal"},
	})

	descs = append(descs, Descriptor{
		Name: "Bollinger",
		Kind: indicators.KindBand,
		Params: map[string]float64{
			"window": float64(cfg.BollingerWindow),
			"k":      cfg.BollingerK,
		},
		DependsOn: []string{SourceClose},
		Columns:   []string{"Bollinger_Upper", "Bollinger_Lower"},
	})

	descs = append(descs, Descriptor{
		Name:      "OBV",
		Kind:      indicators.KindAccumulator,
		Params:    map[string]float64{},
		DependsOn: []string{SourceClose, SourceVolume},
		Columns:   []string{"OBV"},
	})

	return descs
}

// columnOrder returns the retained column order of the final table for
// the given configuration: daily_return, indicator columns in descriptor
// order, lag columns, then interaction columns.
func columnOrder(cfg Config, descs []Descriptor) []string {
	order := []string{ColDailyReturn}
	for _, d := range descs {
		order = append(order, d.Columns...)
	}
	for _, lag := range cfg.CloseLags {
		order = append(order, fmt.Sprintf("Close_Lag_%d", lag))
	}
	for _, lag := range cfg.ReturnLags {
		order = append(order, fmt.Sprintf("Return_Lag_%d", lag))
	}
	for _, lag := range cfg.VolumeLags {
		order = append(order, fmt.Sprintf("Volume_Lag_%d", lag))
	}
	order = append(order, ColPriceVsSMA10, ColVolumeVsAvg10)
	return order
}
