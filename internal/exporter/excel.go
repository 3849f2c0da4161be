package exporter

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"featcli/internal/config"
	"featcli/internal/features"
	"featcli/pkg/contracts/domain"
)

// Workbook sheet names
const (
	barsSheet     = "Bars"
	featuresSheet = "Features"
	summarySheet  = "Summary"
)

// WorkbookExporter writes an Excel workbook with the cleaned bars, the
// derived feature table and a run summary sheet
type WorkbookExporter struct {
	paths *config.Paths
}

// NewWorkbookExporter creates a new workbook exporter
func NewWorkbookExporter(paths *config.Paths) *WorkbookExporter {
	return &WorkbookExporter{paths: paths}
}

// ExportWorkbook writes one run's artifacts as a workbook under the
// features directory and returns the written path
func (e *WorkbookExporter) ExportWorkbook(series *domain.BarSeries, table *features.FeatureTable, diag *features.Diagnostics) (string, error) {
	if table == nil {
		return "", fmt.Errorf("nil feature table")
	}

	outputPath := e.paths.GetFeaturesXLSXPath(table.Symbol())
	if err := e.ExportWorkbookTo(series, table, diag, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// ExportWorkbookTo writes the workbook to outputPath
func (e *WorkbookExporter) ExportWorkbookTo(series *domain.BarSeries, table *features.FeatureTable, diag *features.Diagnostics, outputPath string) error {
	if table == nil {
		return fmt.Errorf("nil feature table")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", barsSheet); err != nil {
		return fmt.Errorf("failed to rename bars sheet: %w", err)
	}
	if err := writeBarsSheet(f, series); err != nil {
		return err
	}

	if _, err := f.NewSheet(featuresSheet); err != nil {
		return fmt.Errorf("failed to create features sheet: %w", err)
	}
	if err := writeFeaturesSheet(f, table); err != nil {
		return err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}
	if err := writeSummarySheet(f, table, diag); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// writeBarsSheet writes the cleaned series, oldest bar first
func writeBarsSheet(f *excelize.File, series *domain.BarSeries) error {
	headers := []interface{}{"Date", "Open", "High", "Low", "Close", "Volume"}
	if err := f.SetSheetRow(barsSheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write bar headers: %w", err)
	}
	if series == nil {
		return nil
	}

	for i, bar := range series.Bars {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to build cell name: %w", err)
		}
		row := []interface{}{
			bar.Date.Format("2006-01-02"),
			cellValue(bar.Open),
			cellValue(bar.High),
			cellValue(bar.Low),
			cellValue(bar.Close),
			cellValue(bar.Volume),
		}
		if err := f.SetSheetRow(barsSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write bar row %d: %w", i, err)
		}
	}
	return f.SetColWidth(barsSheet, "A", "A", 12)
}

// writeFeaturesSheet writes the feature table in declared column order
func writeFeaturesSheet(f *excelize.File, table *features.FeatureTable) error {
	headers := []interface{}{"Date"}
	for _, name := range table.ColumnNames() {
		headers = append(headers, name)
	}
	if err := f.SetSheetRow(featuresSheet, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write feature headers: %w", err)
	}

	for i := 0; i < table.Len(); i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to build cell name: %w", err)
		}
		row := []interface{}{table.Date(i).Format("2006-01-02")}
		for _, value := range table.Row(i) {
			row = append(row, cellValue(value))
		}
		if err := f.SetSheetRow(featuresSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write feature row %d: %w", i, err)
		}
	}
	return f.SetColWidth(featuresSheet, "A", "A", 12)
}

// writeSummarySheet writes key/value pairs describing the run
func writeSummarySheet(f *excelize.File, table *features.FeatureTable, diag *features.Diagnostics) error {
	rows := [][]interface{}{
		{"Symbol", table.Symbol()},
		{"Rows", table.Len()},
		{"Columns", len(table.ColumnNames())},
	}
	if table.Len() > 0 {
		rows = append(rows,
			[]interface{}{"First Date", table.Date(0).Format("2006-01-02")},
			[]interface{}{"Last Date", table.Date(table.Len() - 1).Format("2006-01-02")},
		)
	}
	if diag != nil {
		rows = append(rows,
			[]interface{}{"Backend Requested", diag.BackendRequested},
			[]interface{}{"Backend Used", diag.BackendUsed},
			[]interface{}{"Rows Examined", diag.RowsExamined},
			[]interface{}{"Warm-up Rows Dropped", diag.RowsDropped},
			[]interface{}{"Started At", diag.StartedAt.Format("2006-01-02 15:04:05")},
			[]interface{}{"Elapsed", diag.Elapsed.String()},
		)
		for _, fb := range diag.Fallbacks {
			rows = append(rows, []interface{}{
				"Fallback", fmt.Sprintf("%s -> %s (%s)", fb.From, fb.To, fb.Reason),
			})
		}
		for _, failure := range diag.Failures {
			rows = append(rows, []interface{}{
				"Failure", fmt.Sprintf("%s: %s", failure.Indicator, failure.Message),
			})
		}
	}

	// Per-column statistics block
	rows = append(rows, []interface{}{}, []interface{}{"Column", "Min", "Max", "Mean"})
	for _, name := range table.ColumnNames() {
		values, ok := table.Column(name)
		if !ok {
			continue
		}
		min, max, mean := columnStats(values)
		rows = append(rows, []interface{}{name, cellValue(min), cellValue(max), cellValue(mean)})
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to build cell name: %w", err)
		}
		r := row
		if err := f.SetSheetRow(summarySheet, cell, &r); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i, err)
		}
	}
	return f.SetColWidth(summarySheet, "A", "B", 24)
}

// columnStats returns min, max and mean over the defined values of one
// column. An empty or all-NaN column yields NaN throughout.
func columnStats(values []float64) (min, max, mean float64) {
	min, max = math.NaN(), math.NaN()
	var sum float64
	var n int
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if n == 0 || v < min {
			min = v
		}
		if n == 0 || v > max {
			max = v
		}
		sum += v
		n++
	}
	if n == 0 {
		return min, max, math.NaN()
	}
	return min, max, sum / float64(n)
}
