package services

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"featcli/internal/config"
	apperrors "featcli/internal/errors"
	"featcli/internal/features"
)

// Feature table paging bounds.
const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// FeaturePage is one page of the exported feature table. Cells carry
// the CSV text of the table unchanged: full-precision floats, and the
// occasional ±Inf a JSON number could not represent.
type FeaturePage struct {
	Symbol      string     `json:"symbol"`
	Columns     []string   `json:"columns"`
	Rows        [][]string `json:"rows"`
	Page        int        `json:"page"`
	PageSize    int        `json:"page_size"`
	TotalRows   int        `json:"total_rows"`
	TotalPages  int        `json:"total_pages"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// FeatureColumns lists the column order of the exported feature table.
type FeatureColumns struct {
	Symbol  string   `json:"symbol"`
	Columns []string `json:"columns"`
	Count   int      `json:"count"`
}

// FeatureDataService serves the derived artifacts back out of the
// features directory: the latest feature table as paged JSON, its
// column list, and the diagnostics of the run that produced it. It
// never derives anything itself; a missing artifact means the pipeline
// has not produced one yet.
type FeatureDataService struct {
	paths         *config.Paths
	logger        *slog.Logger
	defaultSymbol string
}

// NewFeatureDataService creates the artifact read service. A nil paths
// resolves to the executable-relative layout.
func NewFeatureDataService(cfg *config.Config, paths *config.Paths, logger *slog.Logger) (*FeatureDataService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if paths == nil {
		var err error
		if paths, err = config.GetPaths(); err != nil {
			return nil, fmt.Errorf("failed to resolve paths: %w", err)
		}
	}

	logger.Info("feature data service initialized",
		slog.String("features_dir", paths.FeaturesDir),
		slog.String("default_symbol", cfg.Fetch.Symbol))

	return &FeatureDataService{
		paths:         paths,
		logger:        logger,
		defaultSymbol: cfg.Fetch.Symbol,
	}, nil
}

// GetFeatures returns one page of the latest feature table for the
// symbol. Pages are 1-based; a page past the end comes back with no
// rows rather than an error. An empty symbol serves the configured
// default instrument.
func (ds *FeatureDataService) GetFeatures(ctx context.Context, symbol string, page, pageSize int) (*FeaturePage, error) {
	symbol = ds.resolveSymbol(symbol)
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	path := ds.paths.GetFeaturesCSVPath(symbol)
	ds.logger.DebugContext(ctx, "reading feature table",
		slog.String("symbol", symbol),
		slog.String("path", path),
		slog.Int("page", page),
		slog.Int("page_size", pageSize))

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("feature table for %s: %w", symbol, apperrors.ErrFeaturesNotReady)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("open feature table %s", path), err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("stat feature table %s", path), err)
	}

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("feature table %s has no header", path), err)
	}
	stripLeadingBOM(header)

	start := (page - 1) * pageSize
	end := start + pageSize

	rows := make([][]string, 0, pageSize)
	total := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("feature table %s row %d", path, total+1), err)
		}
		if total >= start && total < end {
			rows = append(rows, record)
		}
		total++
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + pageSize - 1) / pageSize
	}

	return &FeaturePage{
		Symbol:      symbol,
		Columns:     header,
		Rows:        rows,
		Page:        page,
		PageSize:    pageSize,
		TotalRows:   total,
		TotalPages:  totalPages,
		GeneratedAt: info.ModTime().UTC(),
	}, nil
}

// GetColumns returns the column order of the latest feature table for
// the symbol, read from the exported header.
func (ds *FeatureDataService) GetColumns(ctx context.Context, symbol string) (*FeatureColumns, error) {
	symbol = ds.resolveSymbol(symbol)
	path := ds.paths.GetFeaturesCSVPath(symbol)

	ds.logger.DebugContext(ctx, "reading feature columns",
		slog.String("symbol", symbol),
		slog.String("path", path))

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("feature table for %s: %w", symbol, apperrors.ErrFeaturesNotReady)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("open feature table %s", path), err)
	}
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	if err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("feature table %s has no header", path), err)
	}
	stripLeadingBOM(header)

	return &FeatureColumns{
		Symbol:  symbol,
		Columns: header,
		Count:   len(header),
	}, nil
}

// GetDiagnostics returns the diagnostics record of the run that
// produced the latest feature table for the symbol.
func (ds *FeatureDataService) GetDiagnostics(ctx context.Context, symbol string) (*features.Diagnostics, error) {
	symbol = ds.resolveSymbol(symbol)
	path := ds.paths.GetDiagnosticsPath(symbol)

	ds.logger.DebugContext(ctx, "reading diagnostics",
		slog.String("symbol", symbol),
		slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("diagnostics for %s: %w", symbol, apperrors.ErrFeaturesNotReady)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("read diagnostics %s", path), err)
	}

	var diag features.Diagnostics
	if err := json.Unmarshal(data, &diag); err != nil {
		return nil, apperrors.NewParsingError(fmt.Sprintf("diagnostics %s", path), err)
	}
	return &diag, nil
}

// resolveSymbol applies the configured default instrument.
func (ds *FeatureDataService) resolveSymbol(symbol string) string {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return ds.defaultSymbol
	}
	return symbol
}

// stripLeadingBOM removes a UTF-8 byte order mark from the first header
// cell in place.
func stripLeadingBOM(record []string) {
	if len(record) > 0 {
		record[0] = strings.TrimPrefix(record[0], "\uFEFF")
	}
}
