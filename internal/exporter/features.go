package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"featcli/internal/config"
	"featcli/internal/features"
)

// FeatureExporter writes derived feature tables and their run diagnostics
type FeatureExporter struct {
	csvWriter *CSVWriter
	paths     *config.Paths
}

// NewFeatureExporter creates a new feature table exporter
func NewFeatureExporter(paths *config.Paths) *FeatureExporter {
	return &FeatureExporter{
		csvWriter: NewCSVWriter(paths),
		paths:     paths,
	}
}

// ExportTable writes a feature table as CSV under the features directory
// and returns the written path. The first column is the bar date; the
// rest follow the table's declared column order.
func (f *FeatureExporter) ExportTable(table *features.FeatureTable) (string, error) {
	if table == nil {
		return "", fmt.Errorf("nil feature table")
	}

	outputPath := f.paths.GetFeaturesCSVPath(table.Symbol())
	if err := f.ExportTableTo(table, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// ExportTableTo writes a feature table as CSV to outputPath
func (f *FeatureExporter) ExportTableTo(table *features.FeatureTable, outputPath string) error {
	if table == nil {
		return fmt.Errorf("nil feature table")
	}

	headers := append([]string{"Date"}, table.ColumnNames()...)

	csvRecords := make([][]string, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		record := make([]string, 0, len(headers))
		record = append(record, table.Date(i).Format("2006-01-02"))
		for _, value := range table.Row(i) {
			record = append(record, formatValue(value))
		}
		csvRecords = append(csvRecords, record)
	}

	// No BOM: the table is read back by the serving layer
	return f.csvWriter.WriteCSV(outputPath, WriteOptions{
		Headers:   headers,
		Records:   csvRecords,
		Append:    false,
		BOMPrefix: false,
	})
}

// ExportDiagnostics writes run diagnostics as indented JSON under the
// features directory and returns the written path
func (f *FeatureExporter) ExportDiagnostics(diag *features.Diagnostics) (string, error) {
	if diag == nil {
		return "", fmt.Errorf("nil diagnostics")
	}

	outputPath := f.paths.GetDiagnosticsPath(diag.Symbol)

	data, err := json.MarshalIndent(diag, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write diagnostics: %w", err)
	}

	return outputPath, nil
}
