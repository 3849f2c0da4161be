package cleaning

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	apperrors "featcli/internal/errors"
	"featcli/pkg/contracts/domain"
)

// Options controls one cleaning pass.
type Options struct {
	// Symbol is stamped on the output series.
	Symbol string

	// From/To restrict the output to bars inside the closed range.
	// A zero bound leaves that side open.
	From time.Time
	To   time.Time
}

// Report accounts for every row the cleaning pass touched.
type Report struct {
	Symbol            string `json:"symbol"`
	RowsIn            int    `json:"rows_in"`
	RowsOut           int    `json:"rows_out"`
	RowsSkipped       int    `json:"rows_skipped"`
	DuplicatesDropped int    `json:"duplicates_dropped"`
	RowsFiltered      int    `json:"rows_filtered"`
	CellsFilled       int    `json:"cells_filled"`
}

// Cleaner loads and normalizes raw bar data.
type Cleaner struct {
	logger *slog.Logger
}

// NewCleaner creates a cleaner. A nil logger falls back to the default.
func NewCleaner(logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cleaner{logger: logger.With(slog.String("component", "cleaning"))}
}

// CleanFile runs LoadCSV and Clean in one step.
func (c *Cleaner) CleanFile(ctx context.Context, path string, opts Options) (*domain.BarSeries, *Report, error) {
	bars, skipped, err := c.LoadCSV(path)
	if err != nil {
		return nil, nil, err
	}
	series, report, err := c.Clean(ctx, bars, opts)
	if err != nil {
		return nil, nil, err
	}
	report.RowsSkipped = skipped
	return series, report, nil
}

// Clean normalizes loaded bars into a series that satisfies the feature
// engine's input contract: chronological sort, duplicate-date removal
// with the last occurrence winning, optional date filtering, and
// forward-fill then back-fill of NaN numeric cells. The cleaned series
// is verified before being returned; a series that still violates the
// schema (an all-NaN column, a non-positive price) is an error.
func (c *Cleaner) Clean(ctx context.Context, bars []domain.Bar, opts Options) (*domain.BarSeries, *Report, error) {
	if opts.Symbol == "" {
		return nil, nil, apperrors.NewAppValidationError("cleaning requires a symbol")
	}
	report := &Report{Symbol: opts.Symbol, RowsIn: len(bars)}
	if len(bars) == 0 {
		return nil, nil, apperrors.NewAppValidationError(fmt.Sprintf("no rows to clean for %s", opts.Symbol))
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("cleaning cancelled: %w", err)
	}

	// Stable sort keeps same-date rows in file order, so "last wins"
	// below means the row that appeared last in the input.
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	deduped := dedupeLastWins(sorted)
	report.DuplicatesDropped = len(sorted) - len(deduped)

	filtered := filterRange(deduped, opts.From, opts.To)
	report.RowsFiltered = len(deduped) - len(filtered)
	if len(filtered) == 0 {
		return nil, nil, apperrors.NewAppValidationError(
			fmt.Sprintf("no rows remain for %s after date filtering", opts.Symbol))
	}

	report.CellsFilled = fillMissing(filtered)

	series := &domain.BarSeries{Symbol: opts.Symbol, Bars: filtered}
	if err := series.Validate(); err != nil {
		return nil, nil, apperrors.NewAppValidationError(
			fmt.Sprintf("cleaned series for %s still violates the schema", opts.Symbol)).
			WithContext("cause", err.Error())
	}

	report.RowsOut = len(filtered)
	c.logger.InfoContext(ctx, "cleaning completed",
		slog.String("symbol", opts.Symbol),
		slog.Int("rows_in", report.RowsIn),
		slog.Int("rows_out", report.RowsOut),
		slog.Int("duplicates_dropped", report.DuplicatesDropped),
		slog.Int("rows_filtered", report.RowsFiltered),
		slog.Int("cells_filled", report.CellsFilled))

	return series, report, nil
}

// dedupeLastWins collapses runs of equal dates, keeping the final bar
// of each run. Input must already be sorted by date.
func dedupeLastWins(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, bar := range bars {
		if n := len(out); n > 0 && out[n-1].Date.Equal(bar.Date) {
			out[n-1] = bar
			continue
		}
		out = append(out, bar)
	}
	return out
}

func filterRange(bars []domain.Bar, from, to time.Time) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, bar := range bars {
		if !from.IsZero() && bar.Date.Before(from) {
			continue
		}
		if !to.IsZero() && bar.Date.After(to) {
			continue
		}
		out = append(out, bar)
	}
	return out
}

// fillMissing forward-fills then back-fills NaN cells per field, in
// place, and returns the number of cells written. A field that is NaN
// on every row stays NaN; Validate rejects the series afterwards.
func fillMissing(bars []domain.Bar) int {
	filled := 0
	for _, field := range barFields() {
		last := math.NaN()
		for i := range bars {
			v := field.get(&bars[i])
			if math.IsNaN(v) {
				if !math.IsNaN(last) {
					field.set(&bars[i], last)
					filled++
				}
				continue
			}
			last = v
		}

		next := math.NaN()
		for i := len(bars) - 1; i >= 0; i-- {
			v := field.get(&bars[i])
			if math.IsNaN(v) {
				if !math.IsNaN(next) {
					field.set(&bars[i], next)
					filled++
				}
				continue
			}
			next = v
		}
	}
	return filled
}

type barField struct {
	get func(*domain.Bar) float64
	set func(*domain.Bar, float64)
}

func barFields() []barField {
	return []barField{
		{func(b *domain.Bar) float64 { return b.Open }, func(b *domain.Bar, v float64) { b.Open = v }},
		{func(b *domain.Bar) float64 { return b.High }, func(b *domain.Bar, v float64) { b.High = v }},
		{func(b *domain.Bar) float64 { return b.Low }, func(b *domain.Bar, v float64) { b.Low = v }},
		{func(b *domain.Bar) float64 { return b.Close }, func(b *domain.Bar, v float64) { b.Close = v }},
		{func(b *domain.Bar) float64 { return b.Volume }, func(b *domain.Bar, v float64) { b.Volume = v }},
	}
}
