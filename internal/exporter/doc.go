// Package exporter writes pipeline artifacts to disk.
//
// This package contains four main components:
//
// CSVWriter: Core CSV writing functionality with support for headers,
// streaming, and UTF-8 BOM for Excel compatibility.
//
// BarExporter: Writes raw and cleaned daily bar series as CSV files
// under the data/raw and data/processed directories.
//
// FeatureExporter: Writes derived feature tables as CSV plus the run
// diagnostics as JSON under data/features.
//
// WorkbookExporter: Writes an Excel workbook with the cleaned bars,
// the feature table and a run summary sheet.
//
// Example usage:
//
//	bars := exporter.NewBarExporter(paths)
//	path, err := bars.ExportProcessed(series)
//
//	feats := exporter.NewFeatureExporter(paths)
//	path, err = feats.ExportTable(table)
//	path, err = feats.ExportDiagnostics(diag)
package exporter
