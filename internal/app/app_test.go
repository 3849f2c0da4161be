package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featcli/internal/config"
	"featcli/internal/infrastructure"
	"featcli/internal/services"
	ws "featcli/internal/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAppPaths(t *testing.T) *config.Paths {
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

// newTestApplication assembles an Application without the
// network-facing pieces: telemetry exporters stay disabled and the
// listener is never started, but the full router and service graph are
// real.
func newTestApplication(t *testing.T) *Application {
	t.Helper()

	cfg := config.Default()
	cfg.Logging.Development = true

	logger := testLogger()
	paths := testAppPaths(t)

	// Exporters disabled: no spans on stdout, no Prometheus registry
	// collisions between tests.
	providers, err := infrastructure.InitializeOTel(&infrastructure.OTelConfig{
		ServiceName:    "featcli-test",
		ServiceVersion: VERSION,
		Environment:    "test",
	}, logger)
	require.NoError(t, err)

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: providers,
	}

	hub := ws.NewHub(logger)
	hub.Start()
	t.Cleanup(hub.Stop)

	operationService, err := services.NewOperationService(cfg, paths, hub, logger)
	require.NoError(t, err)
	dataService, err := services.NewFeatureDataService(cfg, paths, logger)
	require.NoError(t, err)

	app.WebSocketHub = hub
	app.OperationService = operationService
	app.DataService = dataService
	app.HealthService = services.NewHealthServiceWithBuildInfo(
		VERSION, BuildTime, BuildID, paths, operationService, hub, logger)

	app.setupRouter()
	app.createServer()
	return app
}

func TestGenerateBuildID(t *testing.T) {
	id := generateBuildID()

	assert.Len(t, id, 12)
	assert.Regexp(t, "^[0-9a-f]{12}$", id)
	assert.Equal(t, id, generateBuildID(), "stable for a given version and day")
}

func TestIsDevelopmentMode(t *testing.T) {
	app := &Application{Config: config.Default(), Logger: testLogger()}

	t.Run("config flag wins", func(t *testing.T) {
		t.Setenv("GO_ENV", "")
		app.Config.Logging.Development = true
		assert.True(t, app.isDevelopmentMode())
	})

	t.Run("production by default", func(t *testing.T) {
		t.Setenv("GO_ENV", "")
		app.Config.Logging.Development = false
		assert.False(t, app.isDevelopmentMode())
	})

	t.Run("GO_ENV override", func(t *testing.T) {
		t.Setenv("GO_ENV", "development")
		app.Config.Logging.Development = false
		assert.True(t, app.isDevelopmentMode())
	})
}

func TestGetCORSConfig(t *testing.T) {
	t.Run("development adds dashboard origins", func(t *testing.T) {
		t.Setenv("GO_ENV", "")
		cfg := config.Default()
		cfg.Logging.Development = true
		app := &Application{Config: cfg, Logger: testLogger()}

		corsConfig := app.getCORSConfig()

		assert.Contains(t, corsConfig.AllowedOrigins, "http://localhost:3000")
		assert.Contains(t, corsConfig.AllowedOrigins, "http://localhost:8080")
		assert.True(t, corsConfig.AllowCredentials)
		assert.Equal(t, 300, corsConfig.MaxAge)
		assert.Contains(t, corsConfig.ExposedHeaders, "X-Request-ID")
	})

	t.Run("production appends configured origins", func(t *testing.T) {
		t.Setenv("GO_ENV", "")
		cfg := config.Default()
		cfg.Logging.Development = false
		cfg.Security.EnableCORS = true
		cfg.Security.AllowedOrigins = []string{"https://dashboard.example.com"}
		app := &Application{Config: cfg, Logger: testLogger()}

		corsConfig := app.getCORSConfig()

		assert.NotContains(t, corsConfig.AllowedOrigins, "http://localhost:3000")
		assert.Contains(t, corsConfig.AllowedOrigins, "http://localhost:8080")
		assert.Contains(t, corsConfig.AllowedOrigins, "https://dashboard.example.com")
	})

	t.Run("production without CORS keeps self origins only", func(t *testing.T) {
		t.Setenv("GO_ENV", "")
		cfg := config.Default()
		cfg.Logging.Development = false
		cfg.Security.EnableCORS = false
		cfg.Security.AllowedOrigins = []string{"https://dashboard.example.com"}
		app := &Application{Config: cfg, Logger: testLogger()}

		corsConfig := app.getCORSConfig()

		assert.NotContains(t, corsConfig.AllowedOrigins, "https://dashboard.example.com")
		assert.Contains(t, corsConfig.AllowedOrigins, "http://localhost:8080")
	})
}

func TestCreateServer(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 9321

	app := &Application{Config: cfg, Logger: testLogger(), Router: chi.NewRouter()}
	app.createServer()

	require.NotNil(t, app.Server)
	assert.Equal(t, ":9321", app.Server.Addr)
	assert.Equal(t, cfg.Server.ReadTimeout, app.Server.ReadTimeout)
	assert.Equal(t, cfg.Server.WriteTimeout, app.Server.WriteTimeout)
	assert.Equal(t, cfg.Server.IdleTimeout, app.Server.IdleTimeout)
	assert.Equal(t, cfg.Server.MaxHeaderBytes, app.Server.MaxHeaderBytes)
	assert.Equal(t, app.Router, app.Server.Handler)
}

func TestPerformStartupHealthCheck(t *testing.T) {
	app := &Application{
		Config: config.Default(),
		Paths:  testAppPaths(t),
		Logger: testLogger(),
	}

	require.NoError(t, app.performStartupHealthCheck(context.Background()))

	require.NoError(t, os.RemoveAll(app.Paths.CacheDir))
	err := app.performStartupHealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache directory missing")
}

func TestRouter(t *testing.T) {
	app := newTestApplication(t)

	get := func(path string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		rec := httptest.NewRecorder()
		app.Router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("health endpoint responds", func(t *testing.T) {
		rec := get("/api/health", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	})

	t.Run("liveness is always ok", func(t *testing.T) {
		rec := get("/api/health/live", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("version reports build info", func(t *testing.T) {
		rec := get("/api/version", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), VERSION)
		assert.Contains(t, rec.Body.String(), BuildID)
	})

	t.Run("request id round trips", func(t *testing.T) {
		rec := get("/api/health/live", map[string]string{"X-Request-ID": "req-app-test"})
		assert.Equal(t, "req-app-test", rec.Header().Get("X-Request-ID"))
	})

	t.Run("security headers applied", func(t *testing.T) {
		rec := get("/api/health/live", nil)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	})

	t.Run("cors preflight answered", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		rec := httptest.NewRecorder()
		app.Router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("operations list starts empty", func(t *testing.T) {
		rec := get("/api/operations", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"count":0`)
	})

	t.Run("features absent before first derivation", func(t *testing.T) {
		rec := get("/api/features", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Feature Table Not Ready")
	})

	t.Run("unknown api route yields problem details", func(t *testing.T) {
		rec := get("/api/ghost", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "The requested resource was not found")
	})

	t.Run("wrong method yields problem details", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/version", nil)
		rec := httptest.NewRecorder()
		app.Router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Contains(t, rec.Body.String(), "Method POST is not allowed")
	})

	t.Run("metrics absent when exporter disabled", func(t *testing.T) {
		rec := get("/metrics", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestWebSocketEndpoint(t *testing.T) {
	app := newTestApplication(t)

	server := httptest.NewServer(app.Router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	header := http.Header{}
	header.Set("X-Request-ID", "ws-app-test")

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	// The hub greets every new client.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var welcome map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &welcome))
	data, ok := welcome["data"].(map[string]interface{})
	require.True(t, ok, "welcome frame carries a data object")
	assert.Equal(t, "connected", data["status"])
}

func TestStopShutsDownCleanly(t *testing.T) {
	app := newTestApplication(t)

	// Never started; Shutdown on an unstarted server returns nil.
	require.NoError(t, app.Stop(context.Background()))
}
