package exporter

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featcli/internal/features"
)

// buildTestTable returns a small three-row, two-column feature table
func buildTestTable(t *testing.T) *features.FeatureTable {
	t.Helper()

	dates := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	table, err := features.NewTable("BTC-USD", dates,
		[]string{"daily_return", "SMA_5"},
		map[string][]float64{
			"daily_return": {0.015, -0.0025, 0.011},
			"SMA_5":        {42000.5, 42010.25, 42022},
		})
	require.NoError(t, err)
	return table
}

func TestFeatureExporter_ExportTable(t *testing.T) {
	paths, _ := testPaths(t)
	exporter := NewFeatureExporter(paths)
	table := buildTestTable(t)

	outputPath, err := exporter.ExportTable(table)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(paths.FeaturesDir, "BTC-USD_features.csv"), outputPath)

	records := readCSVFile(t, outputPath)
	require.Len(t, records, 4) // header + 3 rows
	assert.Equal(t, []string{"Date", "daily_return", "SMA_5"}, records[0])
	assert.Equal(t, []string{"2024-01-01", "0.015", "42000.5"}, records[1])
	assert.Equal(t, []string{"2024-01-02", "-0.0025", "42010.25"}, records[2])
	assert.Equal(t, []string{"2024-01-03", "0.011", "42022"}, records[3])

	// No BOM: the serving layer reads this file back
	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, byte('D'), content[0])
}

func TestFeatureExporter_ExportTableTo(t *testing.T) {
	paths, _ := testPaths(t)
	exporter := NewFeatureExporter(paths)
	table := buildTestTable(t)

	outputPath := filepath.Join(paths.DataDir, "custom", "table.csv")
	require.NoError(t, exporter.ExportTableTo(table, outputPath))
	assert.FileExists(t, outputPath)
}

func TestFeatureExporter_InfinityRoundTrips(t *testing.T) {
	paths, _ := testPaths(t)
	exporter := NewFeatureExporter(paths)

	dates := []time.Time{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	table, err := features.NewTable("BTC-USD", dates,
		[]string{"RSI_14"},
		map[string][]float64{"RSI_14": {math.Inf(1)}})
	require.NoError(t, err)

	outputPath := filepath.Join(paths.DataDir, "inf.csv")
	require.NoError(t, exporter.ExportTableTo(table, outputPath))

	records := readCSVFile(t, outputPath)
	require.Len(t, records, 2)
	assert.Equal(t, "+Inf", records[1][1])
}

func TestFeatureExporter_ExportDiagnostics(t *testing.T) {
	paths, _ := testPaths(t)
	exporter := NewFeatureExporter(paths)

	diag := &features.Diagnostics{
		Symbol:           "BTC-USD",
		BackendRequested: "talib",
		BackendUsed:      "native",
		RowsExamined:     40,
		RowsDropped:      19,
		RowsEmitted:      21,
		Columns:          []string{"daily_return"},
		Fallbacks: []features.FallbackEvent{
			{From: "talib", To: "native", Reason: "unknown backend"},
		},
		StartedAt: time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC),
		Elapsed:   42 * time.Millisecond,
	}

	outputPath, err := exporter.ExportDiagnostics(diag)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(paths.FeaturesDir, "BTC-USD_diagnostics.json"), outputPath)

	data, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.True(t, data[len(data)-1] == '\n')

	var decoded features.Diagnostics
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, diag.Symbol, decoded.Symbol)
	assert.Equal(t, diag.BackendUsed, decoded.BackendUsed)
	assert.Equal(t, diag.RowsDropped, decoded.RowsDropped)
	require.Len(t, decoded.Fallbacks, 1)
	assert.Equal(t, "unknown backend", decoded.Fallbacks[0].Reason)

	// Failure list is omitted when empty
	assert.NotContains(t, string(data), "failures")
}

func TestFeatureExporter_NilArguments(t *testing.T) {
	paths, _ := testPaths(t)
	exporter := NewFeatureExporter(paths)

	_, err := exporter.ExportTable(nil)
	assert.Error(t, err)

	_, err = exporter.ExportDiagnostics(nil)
	assert.Error(t, err)
}
