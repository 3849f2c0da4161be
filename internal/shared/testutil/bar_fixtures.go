package testutil

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"featcli/pkg/contracts/domain"
)

// FixtureStartDate is the first bar date every generated series uses.
// Keeping it fixed makes warm-up row assertions reproducible.
var FixtureStartDate = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

// BarTestFixtures provides deterministic bar data and file helpers for
// pipeline testing
type BarTestFixtures struct {
	TestDataDir string
}

// NewBarTestFixtures creates a new fixtures manager
func NewBarTestFixtures(testDataDir string) *BarTestFixtures {
	return &BarTestFixtures{
		TestDataDir: testDataDir,
	}
}

// GetTrendingSeries returns n bars with a gentle upward drift and a
// sinusoidal wiggle. Prices stay positive and dates increase one day at
// a time, so the series passes Validate for any n >= 1.
func (f *BarTestFixtures) GetTrendingSeries(n int) *domain.BarSeries {
	series := &domain.BarSeries{Symbol: "BTC-USD"}
	prevClose := 100.0
	for i := 0; i < n; i++ {
		closePrice := 100.0 + 0.3*float64(i) + 5.0*math.Sin(float64(i)/3.0)
		open := prevClose
		high := math.Max(open, closePrice) * 1.01
		low := math.Min(open, closePrice) * 0.99
		volume := 1_000_000.0 + 100_000.0*float64((i*7919)%13)

		series.Bars = append(series.Bars, domain.Bar{
			Date:   FixtureStartDate.AddDate(0, 0, i),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
		prevClose = closePrice
	}
	return series
}

// GetFlatSeries returns n bars with a constant close. Every delta is
// zero, which drives RSI into its 0/0 undefined case.
func (f *BarTestFixtures) GetFlatSeries(n int) *domain.BarSeries {
	series := &domain.BarSeries{Symbol: "FLAT"}
	for i := 0; i < n; i++ {
		series.Bars = append(series.Bars, domain.Bar{
			Date:   FixtureStartDate.AddDate(0, 0, i),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100,
			Volume: 500_000,
		})
	}
	return series
}

// GetGainOnlySeries returns n bars whose close strictly increases.
// Losses never occur, so RSI saturates at 100 once seeded.
func (f *BarTestFixtures) GetGainOnlySeries(n int) *domain.BarSeries {
	series := &domain.BarSeries{Symbol: "UP"}
	for i := 0; i < n; i++ {
		closePrice := 100.0 + float64(i)
		series.Bars = append(series.Bars, domain.Bar{
			Date:   FixtureStartDate.AddDate(0, 0, i),
			Open:   closePrice - 0.5,
			High:   closePrice + 1,
			Low:    closePrice - 1,
			Close:  closePrice,
			Volume: 750_000,
		})
	}
	return series
}

// GetSeriesWithDuplicateDate returns a series whose second bar repeats
// the first bar's date. Validate must reject it.
func (f *BarTestFixtures) GetSeriesWithDuplicateDate() *domain.BarSeries {
	series := f.GetTrendingSeries(3)
	series.Bars[1].Date = series.Bars[0].Date
	return series
}

// GetSeriesWithNonPositiveClose returns a series containing a zero
// close. Validate must reject it.
func (f *BarTestFixtures) GetSeriesWithNonPositiveClose() *domain.BarSeries {
	series := f.GetTrendingSeries(3)
	series.Bars[2].Close = 0
	return series
}

// GetSeriesWithNaNVolume returns a series containing a NaN volume cell.
// Validate must reject it.
func (f *BarTestFixtures) GetSeriesWithNaNVolume() *domain.BarSeries {
	series := f.GetTrendingSeries(3)
	series.Bars[1].Volume = math.NaN()
	return series
}

// GetTestSymbols returns symbol strings for different validation scenarios
func (f *BarTestFixtures) GetTestSymbols() map[string]string {
	return map[string]string{
		"valid_crypto":  "BTC-USD",
		"valid_equity":  "AAPL",
		"valid_lower":   "eth-usd",
		"empty":         "",
		"spaces":        "   ",
		"special_chars": "BTC/USD;DROP",
		"very_long":     "SYMBOL-WITH-AN-UNREASONABLY-LONG-NAME-THAT-NO-VENUE-USES",
	}
}

// WriteTestBarsCSV writes a series to a CSV file in the fetcher's
// column layout (Date,Open,High,Low,Close,Volume)
func (f *BarTestFixtures) WriteTestBarsCSV(path string, series *domain.BarSeries) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"Date", "Open", "High", "Low", "Close", "Volume"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, bar := range series.Bars {
		record := []string{
			bar.Date.Format("2006-01-02"),
			strconv.FormatFloat(bar.Open, 'f', -1, 64),
			strconv.FormatFloat(bar.High, 'f', -1, 64),
			strconv.FormatFloat(bar.Low, 'f', -1, 64),
			strconv.FormatFloat(bar.Close, 'f', -1, 64),
			strconv.FormatFloat(bar.Volume, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write bar row: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// WriteTestBarsJSON writes a series to a JSON file
func (f *BarTestFixtures) WriteTestBarsJSON(path string, series *domain.BarSeries) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(series, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bar series: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write bar file: %w", err)
	}
	return nil
}

// LoadTestBarsJSON loads a series from a JSON file
func (f *BarTestFixtures) LoadTestBarsJSON(path string) (*domain.BarSeries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bar file: %w", err)
	}

	var series domain.BarSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bar series: %w", err)
	}
	return &series, nil
}

// GenerateTestDataFiles seeds the test data directory with one CSV and
// one JSON series for loader tests
func (f *BarTestFixtures) GenerateTestDataFiles() error {
	series := f.GetTrendingSeries(40)

	csvPath := filepath.Join(f.TestDataDir, "bars", "BTC-USD.csv")
	if err := f.WriteTestBarsCSV(csvPath, series); err != nil {
		return err
	}

	jsonPath := filepath.Join(f.TestDataDir, "bars", "BTC-USD.json")
	return f.WriteTestBarsJSON(jsonPath, series)
}

// CleanupTestData removes everything under the test data directory
func (f *BarTestFixtures) CleanupTestData() error {
	if f.TestDataDir == "" {
		return nil
	}
	return os.RemoveAll(f.TestDataDir)
}
