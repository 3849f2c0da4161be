package app

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"featcli/internal/config"
	"featcli/internal/errors"
	"featcli/internal/infrastructure"
	customMiddleware "featcli/internal/middleware"
	"featcli/internal/operations"
	"featcli/internal/scheduler"
	"featcli/internal/services"
	handlers "featcli/internal/transport/http"
	ws "featcli/internal/websocket"
	"featcli/pkg/contracts"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
)

const (
	VERSION    = contracts.Version
	AppName    = "featcli - Feature Derivation Service"
	Executable = "featcli-server"
)

var (
	// BuildTime is set at compile time
	BuildTime = time.Now().Format(time.RFC3339)
	// BuildID is a unique identifier for this build
	BuildID = generateBuildID()
)

func generateBuildID() string {
	// Deterministic per version and build date
	h := sha256.New()
	h.Write([]byte(VERSION))
	h.Write([]byte(time.Now().Format("2006-01-02")))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}

// Application wires configuration, services, transport, and
// observability into one runnable server.
type Application struct {
	Config *config.Config
	Paths  *config.Paths
	Logger *slog.Logger
	Router *chi.Mux
	Server *http.Server

	WebSocketHub     *ws.Hub
	OperationService *services.OperationService
	DataService      *services.FeatureDataService
	HealthService    *services.HealthService
	Scheduler        *scheduler.Scheduler

	OTelProviders *infrastructure.OTelProviders
}

// NewApplication creates and initializes a new application instance.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("app", AppName),
		slog.String("version", VERSION),
		slog.String("build_id", BuildID),
		slog.Int("port", cfg.Server.Port))

	paths, err := config.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	paths.LogPathResolution()

	app := &Application{
		Config: cfg,
		Paths:  paths,
		Logger: logger,
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	app.OTelProviders = otelProviders

	// Telemetry singletons are optional; a failure degrades to an
	// uninstrumented server rather than aborting startup.
	if err := operations.InitGlobalOperationTracer(otelProviders); err != nil {
		logger.Warn("Operation tracer unavailable", slog.String("error", err.Error()))
	}
	if err := ws.InitOTelMetrics(); err != nil {
		logger.Warn("WebSocket metrics unavailable", slog.String("error", err.Error()))
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices creates all application services
func (a *Application) initializeServices() error {
	hub := ws.NewHub(a.Logger)
	hub.Start()

	operationService, err := services.NewOperationService(a.Config, a.Paths, hub, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create operation service: %w", err)
	}

	dataService, err := services.NewFeatureDataService(a.Config, a.Paths, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create feature data service: %w", err)
	}

	healthService := services.NewHealthServiceWithBuildInfo(
		VERSION, BuildTime, BuildID, a.Paths, operationService, hub, a.Logger)

	a.WebSocketHub = hub
	a.OperationService = operationService
	a.DataService = dataService
	a.HealthService = healthService

	if a.Config.Schedule.Enabled {
		sched, err := scheduler.New(a.Config.Schedule, operationService, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		a.Scheduler = sched
	}

	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Minimal middleware ahead of the WebSocket route; neither wraps
	// the ResponseWriter, so the upgrade hijack still works.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// WebSocket route stays outside the full group so it is never
	// buffered, timed out, or compressed.
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).HandleFunc("/ws", a.handleWebSocket)

	// Everything else gets the full middleware chain.
	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("Failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.CORS(a.getCORSConfig()))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	// Prometheus scrape endpoint, outside the middleware group
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		errorHandler := errors.NewErrorHandler(a.Logger, false)

		// Read-side endpoints answer fast and share the standard timeout.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

			healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
			r.Get("/health", healthHandler.HealthCheck)
			r.Get("/health/ready", healthHandler.ReadinessCheck)
			r.Get("/health/live", healthHandler.LivenessCheck)
			r.Get("/version", healthHandler.Version)

			queryValidator := customMiddleware.NewQueryParamValidator(a.Logger, errorHandler)
			featuresHandler := handlers.NewFeaturesHandler(a.DataService, queryValidator, a.Logger)
			r.Mount("/features", featuresHandler.Routes())
		})

		// Operation endpoints get the wider operation timeout; the runs
		// themselves execute on a detached context.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.OperationTimeout, a.Logger))

			validation := customMiddleware.NewValidationMiddleware(a.Logger, errorHandler)
			operationsHandler := handlers.NewOperationsHandler(a.OperationService, validation, a.Logger)
			r.Mount("/operations", operationsHandler.Routes())
		})

		r.NotFound(errorHandler.NotFound)
		r.MethodNotAllowed(errorHandler.MethodNotAllowed)
	})
}

// getCORSConfig returns CORS configuration based on environment
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	corsConfig := customMiddleware.CORSConfig{
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Request-ID", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}

	selfOrigins := []string{
		fmt.Sprintf("http://localhost:%d", a.Config.Server.Port),
		fmt.Sprintf("http://127.0.0.1:%d", a.Config.Server.Port),
	}

	if a.isDevelopmentMode() {
		// Allow a local dashboard dev server alongside the API itself.
		corsConfig.AllowedOrigins = append([]string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		}, selfOrigins...)
		a.Logger.Debug("CORS configured for development",
			slog.Any("origins", corsConfig.AllowedOrigins))
	} else {
		corsConfig.AllowedOrigins = selfOrigins
		if a.Config.Security.EnableCORS && len(a.Config.Security.AllowedOrigins) > 0 {
			corsConfig.AllowedOrigins = append(corsConfig.AllowedOrigins, a.Config.Security.AllowedOrigins...)
		}
		a.Logger.Debug("CORS configured for production",
			slog.Any("origins", corsConfig.AllowedOrigins))
	}

	return corsConfig
}

// isDevelopmentMode reports whether relaxed origin checks apply
func (a *Application) isDevelopmentMode() bool {
	if a.Config.Logging.Development {
		return true
	}
	return os.Getenv("GO_ENV") == "development"
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the HTTP listener and background services. The cancel
// func is invoked if the listener fails, so callers waiting on ctx
// observe the failure.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting HTTP server",
		slog.Int("port", a.Config.Server.Port),
		slog.String("data_dir", a.Paths.DataDir),
		slog.String("features_dir", a.Paths.FeaturesDir),
		slog.String("logs_dir", a.Paths.LogsDir))

	if a.Scheduler != nil {
		a.Scheduler.Start()
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings",
			slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))

	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	// Cancel in-flight runs before the hub goes away so final status
	// frames still reach connected clients.
	a.OperationService.Stop()
	a.WebSocketHub.Stop()

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry",
				slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	return a.Stop(context.Background())
}

// handleWebSocket handles WebSocket connections
func (a *Application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// The route bypasses RequestID middleware, so derive one here.
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = fmt.Sprintf("ws-%d", time.Now().UnixNano())
	}

	ctx := infrastructure.WithTraceID(r.Context(), reqID)
	a.Logger.InfoContext(ctx, "WebSocket upgrade request",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("origin", r.Header.Get("Origin")),
		slog.String("host", r.Host))

	upgrader := websocket.Upgrader{
		ReadBufferSize:  a.Config.WebSocket.ReadBufferSize,
		WriteBufferSize: a.Config.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// No origin means a non-browser client or same-origin request.
			if origin == "" {
				return true
			}

			if a.isDevelopmentMode() {
				return true
			}

			corsConfig := a.getCORSConfig()
			for _, allowed := range corsConfig.AllowedOrigins {
				if origin == allowed {
					return true
				}
			}

			a.Logger.WarnContext(ctx, "WebSocket origin rejected",
				slog.String("origin", origin),
				slog.Any("allowed_origins", corsConfig.AllowedOrigins))
			return false
		},
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			a.Logger.ErrorContext(ctx, "WebSocket upgrade error",
				slog.Int("status", status),
				slog.String("reason", reason.Error()),
				slog.String("origin", r.Header.Get("Origin")))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.ErrorContext(ctx, "WebSocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	client := ws.NewClientWithTrace(a.WebSocketHub, conn, reqID, a.Logger)
	a.WebSocketHub.Register(client)

	a.Logger.InfoContext(ctx, "WebSocket client connected",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", reqID))

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				a.Logger.ErrorContext(ctx, "WebSocket write pump panic",
					slog.Any("panic", rec),
					slog.String("request_id", reqID))
			}
		}()
		client.WritePump()
	}()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				a.Logger.ErrorContext(ctx, "WebSocket read pump panic",
					slog.Any("panic", rec),
					slog.String("request_id", reqID))
			}
		}()
		client.ReadPump()
	}()
}

// performStartupHealthCheck verifies every resolved directory is
// present and writable, returning the collected warnings as one error.
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	var warnings []string

	directories := map[string]string{
		"data":      a.Paths.DataDir,
		"raw":       a.Paths.RawDir,
		"processed": a.Paths.ProcessedDir,
		"features":  a.Paths.FeaturesDir,
		"cache":     a.Paths.CacheDir,
		"logs":      a.Paths.LogsDir,
	}

	for name, dir := range directories {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			warnings = append(warnings, fmt.Sprintf("%s directory missing: %s", name, dir))
			continue
		}
		probe := filepath.Join(dir, ".write_test")
		if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s directory not writable: %s", name, dir))
			continue
		}
		os.Remove(probe)
	}

	if len(warnings) > 0 {
		return fmt.Errorf("%s", strings.Join(warnings, "; "))
	}

	a.Logger.DebugContext(ctx, "Startup health check passed",
		slog.Int("directories", len(directories)))
	return nil
}
