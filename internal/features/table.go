package features

import (
	"fmt"
	"math"
	"time"
)

// FeatureTable is the dense output of the feature pipeline: one row per
// surviving date, one float64 column per retained feature, in a fixed
// order. After trimming the table is rectangular with zero NaN cells.
// Tables are immutable once built; TrimUndefined returns a new table.
type FeatureTable struct {
	symbol  string
	dates   []time.Time
	columns []string
	values  map[string][]float64
}

// NewTable builds a FeatureTable from parallel column slices. Every
// column named in columns must be present in values and have the same
// length as dates.
func NewTable(symbol string, dates []time.Time, columns []string, values map[string][]float64) (*FeatureTable, error) {
	for _, name := range columns {
		col, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("feature table: missing column %q", name)
		}
		if len(col) != len(dates) {
			return nil, fmt.Errorf("feature table: column %q has %d rows, want %d",
				name, len(col), len(dates))
		}
	}
	return &FeatureTable{
		symbol:  symbol,
		dates:   dates,
		columns: columns,
		values:  values,
	}, nil
}

// Symbol returns the instrument symbol the table was derived for.
func (t *FeatureTable) Symbol() string {
	return t.symbol
}

// Len returns the number of rows.
func (t *FeatureTable) Len() int {
	return len(t.dates)
}

// ColumnNames returns a copy of the column order.
func (t *FeatureTable) ColumnNames() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Column returns the values of the named column and whether it exists.
// The returned slice is shared; callers must not modify it.
func (t *FeatureTable) Column(name string) ([]float64, bool) {
	col, ok := t.values[name]
	return col, ok
}

// Date returns the date of row i.
func (t *FeatureTable) Date(i int) time.Time {
	return t.dates[i]
}

// Dates returns a copy of the row dates in order.
func (t *FeatureTable) Dates() []time.Time {
	out := make([]time.Time, len(t.dates))
	copy(out, t.dates)
	return out
}

// Value returns the cell at row i of the named column. It returns NaN
// for an unknown column name.
func (t *FeatureTable) Value(i int, name string) float64 {
	col, ok := t.values[name]
	if !ok {
		return math.NaN()
	}
	return col[i]
}

// Row returns the values of row i in column order.
func (t *FeatureTable) Row(i int) []float64 {
	row := make([]float64, len(t.columns))
	for j, name := range t.columns {
		row[j] = t.values[name][i]
	}
	return row
}

// HasUndefined reports whether any cell in any retained column is NaN.
// A trimmed table always reports false.
func (t *FeatureTable) HasUndefined() bool {
	for _, name := range t.columns {
		for _, v := range t.values[name] {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}

// TrimUndefined removes every row containing at least one NaN cell in a
// retained column and returns the resulting dense table together with
// the number of rows dropped. Trimming is strictly row-wise: columns are
// never removed, and non-NaN values such as ±Inf survive untouched.
func (t *FeatureTable) TrimUndefined() (*FeatureTable, int) {
	keep := make([]bool, len(t.dates))
	kept := 0
	for i := range t.dates {
		keep[i] = true
		for _, name := range t.columns {
			if math.IsNaN(t.values[name][i]) {
				keep[i] = false
				break
			}
		}
		if keep[i] {
			kept++
		}
	}

	if kept == len(t.dates) {
		return t, 0
	}

	dates := make([]time.Time, 0, kept)
	values := make(map[string][]float64, len(t.columns))
	for _, name := range t.columns {
		values[name] = make([]float64, 0, kept)
	}
	for i := range t.dates {
		if !keep[i] {
			continue
		}
		dates = append(dates, t.dates[i])
		for _, name := range t.columns {
			values[name] = append(values[name], t.values[name][i])
		}
	}

	trimmed := &FeatureTable{
		symbol:  t.symbol,
		dates:   dates,
		columns: t.columns,
		values:  values,
	}
	return trimmed, len(t.dates) - kept
}
