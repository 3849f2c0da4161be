package operations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featcli/internal/config"
	"featcli/internal/features"
	"featcli/internal/shared/testutil"
	"featcli/pkg/contracts/domain"
)

// stagePaths builds a Paths rooted at a per-test temporary directory
func stagePaths(t *testing.T) *config.Paths {
	t.Helper()

	tempDir := t.TempDir()
	dataDir := filepath.Join(tempDir, "data")
	return &config.Paths{
		ExecutableDir: tempDir,
		DataDir:       dataDir,
		RawDir:        filepath.Join(dataDir, "raw"),
		ProcessedDir:  filepath.Join(dataDir, "processed"),
		FeaturesDir:   filepath.Join(dataDir, "features"),
		CacheDir:      filepath.Join(dataDir, "cache"),
		LogsDir:       filepath.Join(tempDir, "logs"),
	}
}

func stageState(cfg domain.OperationConfig, stepID, stepName string) *OperationState {
	state := NewOperationState("test-run", cfg)
	state.AddStep(NewStepState(stepID, stepName))
	return state
}

func TestParseDateRange(t *testing.T) {
	tests := []struct {
		name     string
		cfg      domain.OperationConfig
		wantFrom time.Time
		wantTo   time.Time
		wantErr  bool
	}{
		{
			name:     "both bounds",
			cfg:      domain.OperationConfig{StartDate: "2024-01-01", EndDate: "2024-03-15"},
			wantFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantTo:   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "start only",
			cfg:      domain.OperationConfig{StartDate: "2024-01-01"},
			wantFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:   "end only",
			cfg:    domain.OperationConfig{EndDate: "2024-03-15"},
			wantTo: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "neither bound",
			cfg:  domain.OperationConfig{},
		},
		{
			name:    "invalid start",
			cfg:     domain.OperationConfig{StartDate: "01/02/2024"},
			wantErr: true,
		},
		{
			name:    "invalid end",
			cfg:     domain.OperationConfig{StartDate: "2024-01-01", EndDate: "yesterday"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := parseDateRange(tt.cfg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, from.Equal(tt.wantFrom), "from = %v, want %v", from, tt.wantFrom)
			assert.True(t, to.Equal(tt.wantTo), "to = %v, want %v", to, tt.wantTo)
		})
	}
}

func TestFetchStageValidate(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	stage := NewFetchStage(config.FetchConfig{}, stagePaths(t), logger, nil)

	state := stageState(domain.OperationConfig{Symbol: "BTC-USD", SkipFetch: true}, stage.ID(), stage.Name())
	err := stage.Validate(state)
	require.Error(t, err)
	assert.True(t, IsSkip(err), "skip-fetch runs skip rather than fail")

	state = stageState(domain.OperationConfig{Symbol: "BTC-USD"}, stage.ID(), stage.Name())
	assert.NoError(t, stage.Validate(state))
}

func TestFetchStageExecute(t *testing.T) {
	day := func(n int) time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	}
	// Exchange rows are [time, low, high, open, close, volume], newest first.
	rows := [][]float64{
		{float64(day(2).Unix()), 104, 115, 108, 111, 900},
		{float64(day(1).Unix()), 101, 112, 105, 108, 1200},
		{float64(day(0).Unix()), 95, 110, 100, 105, 1000},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/BTC-USD/candles", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(rows))
	}))
	defer server.Close()

	paths := stagePaths(t)
	logger, _ := testutil.NewTestLogger(t)
	stage := NewFetchStage(config.FetchConfig{
		BaseURL:        server.URL,
		LookbackYears:  5,
		PageSize:       300,
		RequestTimeout: 5 * time.Second,
		RPS:            1000,
	}, paths, logger, nil)

	state := stageState(domain.OperationConfig{
		Symbol:    "BTC-USD",
		StartDate: "2024-01-01",
		EndDate:   "2024-01-03",
	}, stage.ID(), stage.Name())

	require.NoError(t, stage.Execute(context.Background(), state))

	raw := state.RawBars()
	require.NotNil(t, raw)
	require.Equal(t, 3, raw.Len())
	assert.Equal(t, "BTC-USD", raw.Symbol)
	assert.True(t, raw.Bars[0].Date.Equal(day(0)), "pages are reassembled oldest first")

	rawPath, ok := state.Artifact(domain.ArtifactRawCSV)
	require.True(t, ok)
	assert.Equal(t, paths.GetRawCSVPath("BTC-USD"), rawPath)
	assert.FileExists(t, rawPath)

	step := state.GetStep(domain.StepIDFetch)
	assert.Equal(t, 3, step.Metadata["bars"])
	assert.Equal(t, rawPath, step.Metadata["raw_csv"])
}

func TestCleanStageValidate(t *testing.T) {
	paths := stagePaths(t)
	logger, _ := testutil.NewTestLogger(t)
	stage := NewCleanStage(paths, logger, nil)
	fixtures := testutil.NewBarTestFixtures("")

	state := stageState(domain.OperationConfig{Symbol: "BTC-USD"}, stage.ID(), stage.Name())
	err := stage.Validate(state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no raw bars")

	// A raw CSV on disk satisfies the stage without in-memory bars
	rawPath := paths.GetRawCSVPath("BTC-USD")
	require.NoError(t, fixtures.WriteTestBarsCSV(rawPath, fixtures.GetTrendingSeries(5)))
	assert.NoError(t, stage.Validate(state))

	state = stageState(domain.OperationConfig{Symbol: "ETH-USD"}, stage.ID(), stage.Name())
	state.SetRawBars(fixtures.GetTrendingSeries(5))
	assert.NoError(t, stage.Validate(state))
}

func TestCleanStageExecute(t *testing.T) {
	fixtures := testutil.NewBarTestFixtures("")

	t.Run("in-memory bars", func(t *testing.T) {
		paths := stagePaths(t)
		logger, _ := testutil.NewTestLogger(t)
		stage := NewCleanStage(paths, logger, nil)

		state := stageState(domain.OperationConfig{Symbol: "BTC-USD"}, stage.ID(), stage.Name())
		state.SetRawBars(fixtures.GetTrendingSeries(30))

		require.NoError(t, stage.Execute(context.Background(), state))

		series := state.Bars()
		require.NotNil(t, series)
		assert.Equal(t, 30, series.Len())
		require.NotNil(t, state.CleanReport())

		cleanPath, ok := state.Artifact(domain.ArtifactCleanCSV)
		require.True(t, ok)
		assert.FileExists(t, cleanPath)

		step := state.GetStep(domain.StepIDClean)
		assert.Equal(t, 30, step.Metadata["rows_in"])
		assert.Equal(t, 30, step.Metadata["rows_out"])
	})

	t.Run("raw csv fallback", func(t *testing.T) {
		paths := stagePaths(t)
		logger, _ := testutil.NewTestLogger(t)
		stage := NewCleanStage(paths, logger, nil)

		rawPath := paths.GetRawCSVPath("BTC-USD")
		require.NoError(t, fixtures.WriteTestBarsCSV(rawPath, fixtures.GetTrendingSeries(30)))

		state := stageState(domain.OperationConfig{Symbol: "BTC-USD"}, stage.ID(), stage.Name())
		require.NoError(t, stage.Execute(context.Background(), state))

		series := state.Bars()
		require.NotNil(t, series)
		assert.Equal(t, 30, series.Len())
	})
}

func TestFeaturesStageValidate(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	stage := NewFeaturesStage(config.PipelineConfig{}, logger, nil)

	state := stageState(domain.OperationConfig{Symbol: "BTC-USD"}, stage.ID(), stage.Name())
	err := stage.Validate(state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cleaned bars")

	state.SetBars(testutil.NewBarTestFixtures("").GetTrendingSeries(5), nil)
	assert.NoError(t, stage.Validate(state))
}

func TestFeaturesStageExecute(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	stage := NewFeaturesStage(config.PipelineConfig{Parallel: true}, logger, nil)

	state := stageState(domain.OperationConfig{Symbol: "BTC-USD"}, stage.ID(), stage.Name())
	state.SetBars(testutil.NewBarTestFixtures("").GetTrendingSeries(60), nil)

	require.NoError(t, stage.Execute(context.Background(), state))

	table := state.Table()
	require.NotNil(t, table)
	diag := state.Diagnostics()
	require.NotNil(t, diag)

	// Warm-up for the default parameters is 19 rows (Bollinger window 20)
	assert.Equal(t, 19, diag.RowsDropped)
	assert.Equal(t, 41, table.Len())
	assert.Equal(t, "native", diag.BackendUsed)
	assert.Empty(t, diag.Failures)

	step := state.GetStep(domain.StepIDFeatures)
	assert.Equal(t, "native", step.Metadata["backend_used"])
	assert.Equal(t, 41, step.Metadata["rows"])
	assert.Equal(t, 19, step.Metadata["rows_trimmed"])
	assert.NotContains(t, step.Metadata, "indicator_failures")
}

func TestFeaturesStageExecuteRejectsBadConfig(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	stage := NewFeaturesStage(config.PipelineConfig{MACDFast: 26, MACDSlow: 12}, logger, nil)

	state := stageState(domain.OperationConfig{Symbol: "BTC-USD"}, stage.ID(), stage.Name())
	state.SetBars(testutil.NewBarTestFixtures("").GetTrendingSeries(60), nil)

	err := stage.Execute(context.Background(), state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature pipeline configuration rejected")
}

func TestFeaturesStageBuildConfig(t *testing.T) {
	t.Run("defaults pass through", func(t *testing.T) {
		stage := NewFeaturesStage(config.PipelineConfig{Parallel: true}, nil, nil)
		cfg := stage.buildConfig(domain.OperationConfig{})
		assert.Equal(t, features.DefaultConfig(), cfg)
	})

	t.Run("application config overlays defaults", func(t *testing.T) {
		stage := NewFeaturesStage(config.PipelineConfig{
			Backend:    "talib",
			SMAWindows: []int{3, 7},
			RSIPeriod:  7,
		}, nil, nil)
		cfg := stage.buildConfig(domain.OperationConfig{})

		assert.Equal(t, "talib", cfg.Backend)
		assert.False(t, cfg.Parallel, "pipeline config owns the parallel flag")
		assert.Equal(t, []int{3, 7}, cfg.SMAWindows)
		assert.Equal(t, 7, cfg.RSIPeriod)
		assert.Equal(t, features.DefaultConfig().MACDSlow, cfg.MACDSlow)
	})

	t.Run("run overrides trump application config", func(t *testing.T) {
		stage := NewFeaturesStage(config.PipelineConfig{Backend: "talib", RSIPeriod: 7}, nil, nil)
		cfg := stage.buildConfig(domain.OperationConfig{
			Backend: "native",
			Features: &domain.FeatureParams{
				SMAWindows: []int{20},
				RSIPeriod:  21,
				BollingerK: 2.5,
			},
		})

		assert.Equal(t, "native", cfg.Backend)
		assert.Equal(t, []int{20}, cfg.SMAWindows)
		assert.Equal(t, 21, cfg.RSIPeriod)
		assert.Equal(t, 2.5, cfg.BollingerK)
	})

	t.Run("nil lags keep defaults, empty lags clear", func(t *testing.T) {
		stage := NewFeaturesStage(config.PipelineConfig{Parallel: true}, nil, nil)
		cfg := stage.buildConfig(domain.OperationConfig{
			Features: &domain.FeatureParams{CloseLags: []int{}},
		})

		assert.Empty(t, cfg.CloseLags)
		assert.Equal(t, features.DefaultConfig().ReturnLags, cfg.ReturnLags)
		assert.Equal(t, features.DefaultConfig().VolumeLags, cfg.VolumeLags)
	})
}

// featureState builds a run state carrying cleaned bars, a derived
// table, and diagnostics, the way the export step receives them.
func featureState(t *testing.T) *OperationState {
	t.Helper()

	logger, _ := testutil.NewTestLogger(t)
	series := testutil.NewBarTestFixtures("").GetTrendingSeries(60)

	pipeline, err := features.NewPipeline(features.DefaultConfig(), logger)
	require.NoError(t, err)
	table, diag, err := pipeline.Run(context.Background(), series)
	require.NoError(t, err)

	state := stageState(domain.OperationConfig{Symbol: "BTC-USD"}, domain.StepIDExport, domain.StepNameExport)
	state.SetBars(series, nil)
	state.SetTable(table, diag)
	return state
}

func TestExportStageValidate(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	stage := NewExportStage(stagePaths(t), false, logger, nil)

	state := stageState(domain.OperationConfig{Symbol: "BTC-USD"}, stage.ID(), stage.Name())
	err := stage.Validate(state)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no feature table")

	assert.NoError(t, stage.Validate(featureState(t)))
}

func TestExportStageExecute(t *testing.T) {
	t.Run("with workbook", func(t *testing.T) {
		paths := stagePaths(t)
		logger, _ := testutil.NewTestLogger(t)
		stage := NewExportStage(paths, true, logger, nil)
		state := featureState(t)

		require.NoError(t, stage.Execute(context.Background(), state))

		for _, key := range []string{domain.ArtifactFeaturesCSV, domain.ArtifactSnapshotCSV, domain.ArtifactDiagnostics, domain.ArtifactWorkbook} {
			path, ok := state.Artifact(key)
			require.True(t, ok, "artifact %s missing", key)
			assert.FileExists(t, path)
		}

		snapPath, _ := state.Artifact(domain.ArtifactSnapshotCSV)
		assert.Contains(t, snapPath, time.Now().UTC().Format("20060102"))

		step := state.GetStep(domain.StepIDExport)
		csvPath, _ := state.Artifact(domain.ArtifactFeaturesCSV)
		assert.Equal(t, csvPath, step.Metadata["features_csv"])
		assert.Equal(t, state.Table().Len(), step.Metadata["rows"])
	})

	t.Run("without workbook", func(t *testing.T) {
		paths := stagePaths(t)
		logger, _ := testutil.NewTestLogger(t)
		stage := NewExportStage(paths, false, logger, nil)
		state := featureState(t)

		require.NoError(t, stage.Execute(context.Background(), state))

		_, ok := state.Artifact(domain.ArtifactWorkbook)
		assert.False(t, ok)

		path, ok := state.Artifact(domain.ArtifactFeaturesCSV)
		require.True(t, ok)
		assert.FileExists(t, path)
	})
}
