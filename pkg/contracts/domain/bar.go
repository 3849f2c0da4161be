package domain

import (
	"fmt"
	"math"
	"time"
)

// Bar represents one day of market activity for a single instrument.
// This is the primary input structure for the feature derivation engine.
type Bar struct {
	Date   time.Time `json:"date" csv:"Date" validate:"required"`
	Open   float64   `json:"open" csv:"Open" validate:"gt=0"`
	High   float64   `json:"high" csv:"High" validate:"gt=0"`
	Low    float64   `json:"low" csv:"Low" validate:"gt=0"`
	Close  float64   `json:"close" csv:"Close" validate:"gt=0"`
	Volume float64   `json:"volume" csv:"Volume" validate:"min=0"`
}

// BarSeries represents a chronologically ordered run of daily bars for
// one symbol. Consumers treat the series as read-only: derivation stages
// allocate new slices rather than mutating the bars in place.
type BarSeries struct {
	Symbol string `json:"symbol" validate:"required"`
	Bars   []Bar  `json:"bars" validate:"required,dive"`
}

// Len returns the number of bars in the series.
func (s *BarSeries) Len() int {
	return len(s.Bars)
}

// Dates returns the bar dates in series order.
func (s *BarSeries) Dates() []time.Time {
	dates := make([]time.Time, len(s.Bars))
	for i, bar := range s.Bars {
		dates[i] = bar.Date
	}
	return dates
}

// Closes returns the closing prices in series order.
func (s *BarSeries) Closes() []float64 {
	closes := make([]float64, len(s.Bars))
	for i, bar := range s.Bars {
		closes[i] = bar.Close
	}
	return closes
}

// Volumes returns the traded volumes in series order.
func (s *BarSeries) Volumes() []float64 {
	volumes := make([]float64, len(s.Bars))
	for i, bar := range s.Bars {
		volumes[i] = bar.Volume
	}
	return volumes
}

// Validate checks the series invariants: at least one bar, strictly
// increasing dates with no duplicates, positive prices, non-negative
// volume, and no NaN cells. It reports the first violation found.
func (s *BarSeries) Validate() error {
	if s == nil {
		return fmt.Errorf("bar series cannot be nil")
	}
	if s.Symbol == "" {
		return fmt.Errorf("bar series symbol is required")
	}
	if len(s.Bars) == 0 {
		return fmt.Errorf("bar series for %s is empty", s.Symbol)
	}

	for i, bar := range s.Bars {
		if bar.Date.IsZero() {
			return fmt.Errorf("bar %d: date is required", i)
		}
		if i > 0 && !bar.Date.After(s.Bars[i-1].Date) {
			return fmt.Errorf("bar %d (%s): date must be after previous bar %s",
				i, bar.Date.Format("2006-01-02"), s.Bars[i-1].Date.Format("2006-01-02"))
		}
		for _, pv := range []struct {
			name  string
			value float64
		}{
			{"open", bar.Open},
			{"high", bar.High},
			{"low", bar.Low},
			{"close", bar.Close},
		} {
			if math.IsNaN(pv.value) {
				return fmt.Errorf("bar %d (%s): %s is NaN",
					i, bar.Date.Format("2006-01-02"), pv.name)
			}
			if pv.value <= 0 {
				return fmt.Errorf("bar %d (%s): %s must be positive, got %g",
					i, bar.Date.Format("2006-01-02"), pv.name, pv.value)
			}
		}
		if math.IsNaN(bar.Volume) {
			return fmt.Errorf("bar %d (%s): volume is NaN", i, bar.Date.Format("2006-01-02"))
		}
		if bar.Volume < 0 {
			return fmt.Errorf("bar %d (%s): volume cannot be negative, got %g",
				i, bar.Date.Format("2006-01-02"), bar.Volume)
		}
	}

	return nil
}

// Slice returns a shallow copy of the series restricted to bars whose
// date falls inside [from, to]. Zero bounds leave that side open.
func (s *BarSeries) Slice(from, to time.Time) *BarSeries {
	out := &BarSeries{Symbol: s.Symbol}
	for _, bar := range s.Bars {
		if !from.IsZero() && bar.Date.Before(from) {
			continue
		}
		if !to.IsZero() && bar.Date.After(to) {
			continue
		}
		out.Bars = append(out.Bars, bar)
	}
	return out
}

// SeriesSummary represents aggregate statistics over a bar series.
// It is used for overview reporting after a fetch or cleaning run.
type SeriesSummary struct {
	Symbol      string    `json:"symbol" validate:"required"`
	FirstDate   time.Time `json:"first_date"`
	LastDate    time.Time `json:"last_date"`
	BarCount    int       `json:"bar_count" validate:"min=0"`
	LastClose   float64   `json:"last_close" validate:"min=0"`
	HighestHigh float64   `json:"highest_high" validate:"min=0"`
	LowestLow   float64   `json:"lowest_low" validate:"min=0"`
	TotalVolume float64   `json:"total_volume" validate:"min=0"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Summarize computes a SeriesSummary for the series. An empty series
// yields a summary with zero counts.
func (s *BarSeries) Summarize() SeriesSummary {
	summary := SeriesSummary{
		Symbol:      s.Symbol,
		BarCount:    len(s.Bars),
		GeneratedAt: time.Now(),
	}
	if len(s.Bars) == 0 {
		return summary
	}

	summary.FirstDate = s.Bars[0].Date
	summary.LastDate = s.Bars[len(s.Bars)-1].Date
	summary.LastClose = s.Bars[len(s.Bars)-1].Close
	summary.LowestLow = math.Inf(1)
	for _, bar := range s.Bars {
		if bar.High > summary.HighestHigh {
			summary.HighestHigh = bar.High
		}
		if bar.Low < summary.LowestLow {
			summary.LowestLow = bar.Low
		}
		summary.TotalVolume += bar.Volume
	}
	return summary
}
