package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Paths contains all the application paths
// This is the single source of truth for ALL file paths in the application
type Paths struct {
	ExecutableDir string
	DataDir       string
	RawDir        string
	ProcessedDir  string
	FeaturesDir   string
	CacheDir      string
	LogsDir       string

	// Well-known output files
	FeaturesCSV     string
	FeaturesXLSX    string
	DiagnosticsJSON string
}

// GetPaths returns the application paths relative to the executable location
// All paths are ALWAYS relative to the executable directory, never the current working directory
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %v", err)
	}

	// Resolve symlinks to get the actual executable location
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %v", err)
	}

	exeDir := filepath.Dir(exe)

	// All paths are relative to the executable directory.
	// Directory structure:
	// dist/
	//   ├── data/
	//   │   ├── raw/         (downloaded bar CSVs)
	//   │   ├── processed/   (cleaned bar CSVs)
	//   │   ├── features/    (feature tables + diagnostics)
	//   │   └── cache/       (temporary files)
	//   └── logs/            (application logs)

	dataDir := filepath.Join(exeDir, "data")
	featuresDir := filepath.Join(dataDir, "features")

	paths := &Paths{
		ExecutableDir: exeDir,
		DataDir:       dataDir,
		RawDir:        filepath.Join(dataDir, "raw"),
		ProcessedDir:  filepath.Join(dataDir, "processed"),
		FeaturesDir:   featuresDir,
		CacheDir:      filepath.Join(dataDir, "cache"),
		LogsDir:       filepath.Join(exeDir, "logs"),

		FeaturesCSV:     filepath.Join(featuresDir, "features.csv"),
		FeaturesXLSX:    filepath.Join(featuresDir, "features.xlsx"),
		DiagnosticsJSON: filepath.Join(featuresDir, "diagnostics.json"),
	}

	return paths, nil
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	directories := []string{
		p.DataDir,
		p.RawDir,
		p.ProcessedDir,
		p.FeaturesDir,
		p.CacheDir,
		p.LogsDir,
	}

	logger := slog.Default()

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %v", dir, err)
		}

		if logger != nil {
			logger.Debug("Ensured directory exists",
				slog.String("directory", dir))
		}
	}

	return nil
}

// GetRelativePath returns a path relative to the executable directory
func (p *Paths) GetRelativePath(subpath string) string {
	return filepath.Join(p.ExecutableDir, subpath)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// GetRawCSVPath returns the path for a raw bar file (e.g. BTC-USD_raw.csv)
func (p *Paths) GetRawCSVPath(symbol string) string {
	filename := fmt.Sprintf("%s_raw.csv", sanitizeSymbol(symbol))
	return filepath.Join(p.RawDir, filename)
}

// GetProcessedCSVPath returns the path for a cleaned bar file (e.g. BTC-USD_daily.csv)
func (p *Paths) GetProcessedCSVPath(symbol string) string {
	filename := fmt.Sprintf("%s_daily.csv", sanitizeSymbol(symbol))
	return filepath.Join(p.ProcessedDir, filename)
}

// GetFeaturesCSVPath returns the path for a per-symbol feature table
func (p *Paths) GetFeaturesCSVPath(symbol string) string {
	filename := fmt.Sprintf("%s_features.csv", sanitizeSymbol(symbol))
	return filepath.Join(p.FeaturesDir, filename)
}

// GetFeaturesXLSXPath returns the path for a per-symbol feature workbook
func (p *Paths) GetFeaturesXLSXPath(symbol string) string {
	filename := fmt.Sprintf("%s_features.xlsx", sanitizeSymbol(symbol))
	return filepath.Join(p.FeaturesDir, filename)
}

// GetDiagnosticsPath returns the path for a per-symbol diagnostics file
func (p *Paths) GetDiagnosticsPath(symbol string) string {
	filename := fmt.Sprintf("%s_diagnostics.json", sanitizeSymbol(symbol))
	return filepath.Join(p.FeaturesDir, filename)
}

// GetLogPath returns the path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// GetCachePath returns the path for a cache file
func (p *Paths) GetCachePath(filename string) string {
	return filepath.Join(p.CacheDir, filename)
}

// GetDatedFeaturesCSVPath returns the path for a dated feature table snapshot
// (e.g. BTC-USD_features_20240115.csv)
func (p *Paths) GetDatedFeaturesCSVPath(symbol string, date time.Time) string {
	filename := fmt.Sprintf("%s_features_%s.csv", sanitizeSymbol(symbol), date.Format("20060102"))
	return filepath.Join(p.FeaturesDir, filename)
}

// sanitizeSymbol makes a symbol safe for use inside a filename
func sanitizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, "\\", "-")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// LogPathResolution logs detailed path resolution information for debugging
func (p *Paths) LogPathResolution() {
	logger := slog.Default()
	if logger == nil {
		return
	}

	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("executable", p.ExecutableDir),
			slog.String("data", p.DataDir),
			slog.String("raw", p.RawDir),
			slog.String("processed", p.ProcessedDir),
			slog.String("features", p.FeaturesDir),
			slog.String("cache", p.CacheDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("output_files",
			slog.String("features_csv", p.FeaturesCSV),
			slog.String("features_xlsx", p.FeaturesXLSX),
			slog.String("diagnostics_json", p.DiagnosticsJSON),
		))
}
