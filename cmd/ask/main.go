// Command ask sends a single question to the analyst service and renders the
// answer to the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/snowflakedb/gosnowflake"

	"github.com/snowbridge-labs/analyst-gateway/internal/analyst"
	"github.com/snowbridge-labs/analyst-gateway/internal/config"
	"github.com/snowbridge-labs/analyst-gateway/internal/dispatch"
	"github.com/snowbridge-labs/analyst-gateway/internal/render"
	"github.com/snowbridge-labs/analyst-gateway/internal/token"
	"github.com/snowbridge-labs/analyst-gateway/internal/warehouse"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	imageDir := flag.String("image-dir", "", "directory to save chart images (omit to skip saving)")
	flag.Parse()

	question := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(question) == "" {
		fmt.Fprintln(os.Stderr, "Usage: ask [-config config.yaml] [-image-dir DIR] <question>")
		os.Exit(2)
	}

	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	if err := run(*configPath, *imageDir, question, logger); err != nil {
		fmt.Fprintf(os.Stderr, "ask: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, imageDir, question string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tokens, err := token.New(cfg.Snowflake.Account, cfg.Snowflake.User, cfg.Snowflake.PrivateKeyPath)
	if err != nil {
		return err
	}

	client := analyst.NewClient(cfg.Snowflake.Host, cfg.SemanticModel.Ref(), tokens,
		analyst.WithHTTPClient(&http.Client{Timeout: cfg.Server.RequestTimeout()}),
	)

	engine, err := warehouse.Open(cfg.Warehouse.Driver, cfg.Warehouse.DSN)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	env, err := client.Ask(ctx, question)
	if err != nil {
		return err
	}

	d := &dispatch.Dispatcher{
		Engine: engine,
		Output: render.NewConsole(os.Stdout, imageDir),
		Chart: render.ChartRoles{
			Measure:   cfg.Chart.MeasureColumn,
			Dimension: cfg.Chart.DimensionColumn,
		},
		Logger: logger,
	}

	// Partial failures are reported after everything renderable has rendered.
	return d.Dispatch(ctx, env)
}
