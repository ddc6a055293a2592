package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"conceptdeck-engine/internal/application/coordinator"
	"conceptdeck-engine/internal/application/ports"
	"conceptdeck-engine/internal/config"
	"conceptdeck-engine/internal/infrastructure/api"
	"conceptdeck-engine/internal/infrastructure/observability"
	"conceptdeck-engine/internal/infrastructure/tracing"
	enginehttp "conceptdeck-engine/internal/interfaces/http"
	"conceptdeck-engine/internal/interfaces/ws"
)

var (
	configPath string
	addrFlag   string

	rootCmd = &cobra.Command{
		Use:   "conceptdeck-engine",
		Short: "Category hierarchy engine for the concept deck UI",
		Long: `conceptdeck-engine keeps a deck of concepts organized in a category
tree. It builds the hierarchy from the persistence backend, coordinates
structural mutations (create, rename, move, transfer) one at a time, and
streams progress events to connected UI clients.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the engine HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the engine version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
)

// version is set via -ldflags at build time.
var version = "dev"

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	serveCmd.Flags().StringVar(&addrFlag, "addr", "", "listen address override")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addrFlag != "" {
		cfg.Server.Addr = addrFlag
	}

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Collector
	if cfg.Features.EnableMetrics {
		metrics = observability.NewCollector("conceptdeck")
	}

	var tracerProvider *tracing.TracerProvider
	if cfg.Features.EnableTracing {
		tracerProvider, err = tracing.InitTracing("conceptdeck-engine", cfg.Environment, cfg.Features.TracingEndpoint)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	clientOpts := []api.Option{}
	if metrics != nil {
		clientOpts = append(clientOpts, api.WithMetrics(metrics))
	}
	var store ports.PersistenceAPI = api.NewClient(cfg.API.BaseURL, cfg.API.RequestTimeout, logger, clientOpts...)
	if tracerProvider != nil {
		store = tracing.TraceStore(store, otel.Tracer("conceptdeck-engine/store"))
	}

	hub := ws.NewHub(logger)
	go hub.Run()
	defer hub.Stop()

	var engine *coordinator.Coordinator
	if metrics != nil {
		engine = coordinator.New(store, hub, metrics, cfg.Timeouts, logger)
	} else {
		engine = coordinator.New(store, hub, nil, cfg.Timeouts, logger)
	}

	if err := engine.Refresh(ctx); err != nil {
		// The backend may simply not be up yet; the engine serves an
		// empty tree until the first successful refresh.
		logger.Warn("Initial hierarchy refresh failed", zap.Error(err))
	}

	if configPath != "" {
		watcher := config.NewWatcher(configPath, logger, func(next *config.Config) {
			engine.SetTimeouts(next.Timeouts)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	handler := enginehttp.NewHandler(engine, hub, logger)

	var metricsHandler http.Handler
	if metrics != nil {
		metricsHandler = promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})
	}
	router := enginehttp.NewRouter(handler, hub.HandleWebSocket, metricsHandler)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Engine listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("backend", cfg.API.BaseURL),
			zap.String("version", version),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		engine.Cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil

	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
