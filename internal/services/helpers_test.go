package services

import (
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"featcli/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testPaths returns a path layout rooted in a per-test temp dir with
// all directories created.
func testPaths(t *testing.T) *config.Paths {
	t.Helper()

	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	featuresDir := filepath.Join(dataDir, "features")

	p := &config.Paths{
		ExecutableDir: root,
		DataDir:       dataDir,
		RawDir:        filepath.Join(dataDir, "raw"),
		ProcessedDir:  filepath.Join(dataDir, "processed"),
		FeaturesDir:   featuresDir,
		CacheDir:      filepath.Join(dataDir, "cache"),
		LogsDir:       filepath.Join(root, "logs"),

		FeaturesCSV:     filepath.Join(featuresDir, "features.csv"),
		FeaturesXLSX:    filepath.Join(featuresDir, "features.xlsx"),
		DiagnosticsJSON: filepath.Join(featuresDir, "diagnostics.json"),
	}
	require.NoError(t, p.EnsureDirectories())
	return p
}

// testConfig returns the default configuration with the Excel export
// switched off so service tests stay fast.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pipeline.ExportExcel = false
	return cfg
}

type hubUpdate struct {
	EventType string
	Subtype   string
	Action    string
	Payload   interface{}
}

type featureUpdate struct {
	Symbol  string
	Rows    int
	Columns int
}

// recordingHub captures everything the service layer broadcasts.
type recordingHub struct {
	mu       sync.Mutex
	updates  []hubUpdate
	features []featureUpdate
}

func (h *recordingHub) BroadcastUpdate(eventType, subtype, action string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, hubUpdate{
		EventType: eventType,
		Subtype:   subtype,
		Action:    action,
		Payload:   payload,
	})
}

func (h *recordingHub) BroadcastFeaturesUpdate(symbol string, rows, columns int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.features = append(h.features, featureUpdate{Symbol: symbol, Rows: rows, Columns: columns})
}

func (h *recordingHub) Updates() []hubUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]hubUpdate, len(h.updates))
	copy(out, h.updates)
	return out
}

func (h *recordingHub) FeatureUpdates() []featureUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]featureUpdate, len(h.features))
	copy(out, h.features)
	return out
}
