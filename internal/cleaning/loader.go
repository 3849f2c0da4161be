package cleaning

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "featcli/internal/errors"
	"featcli/pkg/contracts/domain"
)

// Required columns in a raw bar CSV. Extra columns are ignored.
var requiredColumns = []string{"date", "open", "high", "low", "close", "volume"}

// Date layouts accepted in raw files, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// ParseDate parses a bar date in any of the accepted layouts.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if date, err := time.Parse(layout, value); err == nil {
			return date.UTC().Truncate(24 * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

// LoadCSV reads one raw OHLCV file into bars. The file may start with a
// UTF-8 BOM and may order its columns freely as long as a header row
// names the required six. A file without a header row is read
// positionally as Date,Open,High,Low,Close,Volume.
//
// Rows whose date cannot be parsed are skipped with a warning and
// counted; unparseable or empty numeric cells become NaN so the
// cleaning pass can fill them. Ordering, duplicates, and value ranges
// are not checked here.
func (c *Cleaner) LoadCSV(path string) ([]domain.Bar, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, apperrors.NewStorageError(fmt.Sprintf("open raw file %s", path), err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, 0, apperrors.NewParsingError(fmt.Sprintf("read raw file %s", path), err)
	}
	if len(records) == 0 {
		return nil, 0, apperrors.NewParsingError(fmt.Sprintf("raw file %s is empty", path), nil)
	}

	stripBOM(records[0])

	columns, dataStart, err := mapColumns(records[0])
	if err != nil {
		return nil, 0, apperrors.NewParsingError(fmt.Sprintf("raw file %s", path), err)
	}

	var bars []domain.Bar
	skipped := 0
	for i := dataStart; i < len(records); i++ {
		record := records[i]
		if isBlankRecord(record) {
			continue
		}

		bar, err := parseBarRecord(record, columns)
		if err != nil {
			skipped++
			c.logger.Warn("skipping unparseable raw row",
				slog.String("file", path),
				slog.Int("line", i+1),
				slog.String("error", err.Error()))
			continue
		}
		bars = append(bars, bar)
	}

	c.logger.Info("raw file loaded",
		slog.String("file", path),
		slog.Int("rows", len(bars)),
		slog.Int("skipped", skipped))

	return bars, skipped, nil
}

// stripBOM removes a leading UTF-8 byte order mark from the first cell
// in place.
func stripBOM(record []string) {
	if len(record) > 0 {
		record[0] = strings.TrimPrefix(record[0], "\uFEFF")
	}
}

// mapColumns locates the required columns. When the first record is a
// header row it returns the mapped indices and data start 1; otherwise
// the standard positional layout and data start 0.
func mapColumns(first []string) (map[string]int, int, error) {
	if looksLikeHeader(first) {
		columns := make(map[string]int, len(requiredColumns))
		for i, cell := range first {
			name := strings.ToLower(strings.TrimSpace(cell))
			for _, want := range requiredColumns {
				if name == want {
					columns[want] = i
				}
			}
		}
		var missing []string
		for _, want := range requiredColumns {
			if _, ok := columns[want]; !ok {
				missing = append(missing, want)
			}
		}
		if len(missing) > 0 {
			return nil, 0, fmt.Errorf("header missing required columns: %s", strings.Join(missing, ", "))
		}
		return columns, 1, nil
	}

	if len(first) < len(requiredColumns) {
		return nil, 0, fmt.Errorf("headerless file needs %d columns, got %d", len(requiredColumns), len(first))
	}
	columns := make(map[string]int, len(requiredColumns))
	for i, name := range requiredColumns {
		columns[name] = i
	}
	return columns, 0, nil
}

// looksLikeHeader reports whether the record is a header row: its first
// cell does not parse as a date.
func looksLikeHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	_, err := ParseDate(record[0])
	return err != nil
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// parseBarRecord builds a bar from one CSV record. Numeric cells that
// are empty or malformed come back NaN for the fill pass; a bad date
// is an error because the row cannot be positioned without one.
func parseBarRecord(record []string, columns map[string]int) (domain.Bar, error) {
	date, err := ParseDate(cellAt(record, columns["date"]))
	if err != nil {
		return domain.Bar{}, err
	}
	return domain.Bar{
		Date:   date,
		Open:   parseCell(record, columns["open"]),
		High:   parseCell(record, columns["high"]),
		Low:    parseCell(record, columns["low"]),
		Close:  parseCell(record, columns["close"]),
		Volume: parseCell(record, columns["volume"]),
	}, nil
}

func cellAt(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func parseCell(record []string, idx int) float64 {
	raw := strings.TrimSpace(cellAt(record, idx))
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return math.NaN()
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return value
}
