package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/model-router/internal/config"
	"github.com/tributary-ai/model-router/internal/health"
	"github.com/tributary-ai/model-router/internal/metrics"
	"github.com/tributary-ai/model-router/internal/providers"
	"github.com/tributary-ai/model-router/internal/providers/anthropic"
	"github.com/tributary-ai/model-router/internal/providers/openai"
	"github.com/tributary-ai/model-router/internal/registry"
	"github.com/tributary-ai/model-router/internal/routing"
	"github.com/tributary-ai/model-router/internal/server"
)

var version = "dev"

// Application represents the main application
type Application struct {
	config  *config.Config
	router  *routing.Router
	monitor *health.Monitor
	server  *server.Server
	logger  *logrus.Logger
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	catalog, err := registry.New(cfg.Models, cfg.Providers.Pricing, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build model catalog: %w", err)
	}

	clients := buildProviders(cfg, logger)
	monitor := health.NewMonitor(cfg.Health, logger)
	registerProviders(catalog, clients, monitor, logger)

	routerInstance, err := routing.NewRouter(cfg.ToRouterConfig(), catalog, monitor, catalog, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(promRegistry)
	routerInstance.SetObserver(recorder)

	serverInstance, err := server.NewServer(cfg.ToServerConfig(), server.Dependencies{
		Router:    routerInstance,
		Catalog:   catalog,
		Health:    monitor,
		Providers: clients,
		Metrics:   recorder,
		Gatherer:  promRegistry,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &Application{
		config:  cfg,
		router:  routerInstance,
		monitor: monitor,
		server:  serverInstance,
		logger:  logger,
	}, nil
}

// Run starts the application
func (app *Application) Run() error {
	app.logger.WithField("version", version).Info("Starting model router")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	app.monitor.Start(ctx)
	defer app.monitor.Stop()

	serverErrors := make(chan error, 1)
	go func() {
		app.logger.WithField("address", ":"+app.config.Server.Port).Info("HTTP server starting")
		if err := app.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	app.logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	stats := app.router.Stats()
	app.logger.WithFields(logrus.Fields{
		"total_routings":  stats.TotalRoutings,
		"failed_routings": stats.FailedRoutings,
		"fallback_usage":  stats.FallbackUsage,
	}).Info("Graceful shutdown completed")
	return nil
}

// setupLogger configures the logger based on configuration
func setupLogger(logger *logrus.Logger, config config.LoggingConfig) error {
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	logger.SetLevel(level)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format: %s", config.Format)
	}

	switch config.Output {
	case "", "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		logger.SetOutput(file)
	}

	return nil
}

// buildProviders creates a client for every provider with an API key
func buildProviders(cfg *config.Config, logger *logrus.Logger) *providers.Set {
	set := providers.NewSet()

	if cfg.Providers.OpenAI != nil && cfg.Providers.OpenAI.APIKey != "" {
		set.Add(openai.NewOpenAIProvider(cfg.Providers.OpenAI, logger))
	}
	if cfg.Providers.Anthropic != nil && cfg.Providers.Anthropic.APIKey != "" {
		set.Add(anthropic.NewAnthropicProvider(cfg.Providers.Anthropic, logger))
	}

	return set
}

// registerProviders attaches clients to the health monitor and takes models
// of unconfigured providers out of rotation. With no clients at all the
// catalog is left intact and the service only answers routing decisions.
func registerProviders(catalog *registry.Registry, clients *providers.Set, monitor *health.Monitor, logger *logrus.Logger) {
	configured := clients.Names()
	if len(configured) == 0 {
		logger.Warn("No provider API keys configured, running in routing-only mode")
	}

	for _, id := range catalog.Providers() {
		client, err := clients.Get(id)
		if err != nil {
			monitor.Register(id, nil)
			if len(configured) > 0 {
				catalog.DisableProvider(id)
			}
			continue
		}
		monitor.Register(id, client)
		logger.WithField("provider", id).Info("Provider registered")
	}
}

// printUsage prints application usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY                  OpenAI API key\n")
	fmt.Fprintf(os.Stderr, "  ANTHROPIC_API_KEY               Anthropic API key\n")
	fmt.Fprintf(os.Stderr, "  MODEL_ROUTER_PORT               Server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  MODEL_ROUTER_LOG_LEVEL          Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  MODEL_ROUTER_LOG_FORMAT         Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "  MODEL_ROUTER_DEFAULT_STRATEGY   Default routing strategy\n")
	fmt.Fprintf(os.Stderr, "  MODEL_ROUTER_DEFAULT_MODEL      Model used when nothing else fits\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s --write-config config.yaml\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  OPENAI_API_KEY=sk-xxx ANTHROPIC_API_KEY=sk-ant-xxx %s\n", os.Args[0])
}

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		writeConfig = flag.String("write-config", "", "Write the effective configuration to this path and exit")
		showHelp    = flag.Bool("help", false, "Show help message")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *showVersion {
		fmt.Printf("model-router %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := cfg.SaveToFile(*writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write configuration: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
