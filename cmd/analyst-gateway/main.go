package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/snowflakedb/gosnowflake"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/snowbridge-labs/analyst-gateway/internal/analyst"
	"github.com/snowbridge-labs/analyst-gateway/internal/auth"
	"github.com/snowbridge-labs/analyst-gateway/internal/config"
	"github.com/snowbridge-labs/analyst-gateway/internal/render"
	"github.com/snowbridge-labs/analyst-gateway/internal/server"
	"github.com/snowbridge-labs/analyst-gateway/internal/storage/sqlite"
	"github.com/snowbridge-labs/analyst-gateway/internal/telemetry"
	"github.com/snowbridge-labs/analyst-gateway/internal/token"
	"github.com/snowbridge-labs/analyst-gateway/internal/warehouse"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.InitTracer("analyst-gateway", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	tokens, err := token.New(cfg.Snowflake.Account, cfg.Snowflake.User, cfg.Snowflake.PrivateKeyPath)
	if err != nil {
		log.Fatalf("Failed to initialize token generator: %v", err)
	}
	logger.Info("token generator ready",
		slog.String("account", cfg.Snowflake.Account),
		slog.String("user", cfg.Snowflake.User),
		slog.String("fingerprint", tokens.Principal().Fingerprint),
	)

	client := analyst.NewClient(cfg.Snowflake.Host, cfg.SemanticModel.Ref(), tokens,
		analyst.WithHTTPClient(&http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Server.RequestTimeout(),
		}),
	)

	engine, err := warehouse.Open(cfg.Warehouse.Driver, cfg.Warehouse.DSN)
	if err != nil {
		log.Fatalf("Failed to open warehouse connection: %v", err)
	}
	defer engine.Close()

	var interactions server.InteractionLog
	if cfg.Storage.Path != "" {
		store, err := sqlite.New(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("Failed to open interaction log: %v", err)
		}
		defer store.Close()
		interactions = store
		logger.Info("interaction log enabled", slog.String("path", cfg.Storage.Path))
	}

	authenticator := auth.NewAuthenticator(cfg.APIKeys)
	if authenticator == nil {
		logger.Warn("no API keys configured, requests are unauthenticated")
	}

	handler := server.NewHandler(client, engine,
		render.ChartRoles{
			Measure:   cfg.Chart.MeasureColumn,
			Dimension: cfg.Chart.DimensionColumn,
		},
		interactions, logger)

	srv := server.New(cfg.Server.Port, cfg.Server.RequestTimeout(), logger, authenticator, handler)

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutdown signal received, draining requests")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
