package exporter

import (
	"fmt"
	"sort"

	"featcli/internal/config"
	"featcli/pkg/contracts/domain"
)

// BarExporter writes daily bar series as CSV files
type BarExporter struct {
	csvWriter *CSVWriter
	paths     *config.Paths
}

// NewBarExporter creates a new bar series exporter
func NewBarExporter(paths *config.Paths) *BarExporter {
	return &BarExporter{
		csvWriter: NewCSVWriter(paths),
		paths:     paths,
	}
}

// ExportRaw writes an as-downloaded series under the raw data directory
// and returns the written path
func (b *BarExporter) ExportRaw(series *domain.BarSeries) (string, error) {
	outputPath := b.paths.GetRawCSVPath(series.Symbol)
	if err := b.ExportBars(series, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// ExportProcessed writes a cleaned series under the processed data
// directory and returns the written path
func (b *BarExporter) ExportProcessed(series *domain.BarSeries) (string, error) {
	outputPath := b.paths.GetProcessedCSVPath(series.Symbol)
	if err := b.ExportBars(series, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// ExportBars writes one series to outputPath, oldest bar first
func (b *BarExporter) ExportBars(series *domain.BarSeries, outputPath string) error {
	if series == nil {
		return fmt.Errorf("nil series")
	}

	// Sort a copy by date; callers keep their ordering
	bars := append([]domain.Bar(nil), series.Bars...)
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})

	// Convert bars to CSV format
	csvRecords := make([][]string, 0, len(bars))
	for _, bar := range bars {
		csvRecords = append(csvRecords, barToCSVRow(bar))
	}

	// Write without BOM so the file stays friendly to analysis tools
	return b.csvWriter.WriteCSV(outputPath, WriteOptions{
		Headers:   barHeaders(),
		Records:   csvRecords,
		Append:    false,
		BOMPrefix: false,
	})
}

// ExportBarsStreaming writes one series through the stream writer,
// avoiding a full in-memory record set for multi-year downloads
func (b *BarExporter) ExportBarsStreaming(series *domain.BarSeries, outputPath string) error {
	if series == nil {
		return fmt.Errorf("nil series")
	}

	bars := append([]domain.Bar(nil), series.Bars...)
	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Date.Before(bars[j].Date)
	})

	stream, err := b.csvWriter.CreateStreamWriter(outputPath, barHeaders())
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	for i, bar := range bars {
		if err := stream.WriteRecord(barToCSVRow(bar)); err != nil {
			stream.Close()
			return fmt.Errorf("failed to write bar %d: %w", i, err)
		}
	}

	return stream.Close()
}

// barHeaders returns the CSV headers for daily bars
func barHeaders() []string {
	return []string{"Date", "Open", "High", "Low", "Close", "Volume"}
}

// barToCSVRow converts a bar to a CSV row
func barToCSVRow(bar domain.Bar) []string {
	return []string{
		bar.Date.Format("2006-01-02"),
		formatValue(bar.Open),
		formatValue(bar.High),
		formatValue(bar.Low),
		formatValue(bar.Close),
		formatValue(bar.Volume),
	}
}
