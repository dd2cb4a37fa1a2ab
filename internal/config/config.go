// Package config loads gateway configuration from a YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/snowbridge-labs/analyst-gateway/internal/analyst"
)

type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Snowflake     SnowflakeConfig     `koanf:"snowflake"`
	SemanticModel SemanticModelConfig `koanf:"semantic_model"`
	Warehouse     WarehouseConfig     `koanf:"warehouse"`
	Chart         ChartConfig         `koanf:"chart"`
	Storage       StorageConfig       `koanf:"storage"`
	APIKeys       []APIKeyConfig      `koanf:"api_keys"`
}

type ServerConfig struct {
	Port    int    `koanf:"port"`
	Timeout string `koanf:"timeout"` // duration string like "30s"
}

// RequestTimeout parses the configured timeout, falling back to 30s.
func (s ServerConfig) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// SnowflakeConfig identifies the principal and endpoint for key-pair auth.
type SnowflakeConfig struct {
	Account        string `koanf:"account"`
	User           string `koanf:"user"`
	Host           string `koanf:"host"`
	PrivateKeyPath string `koanf:"private_key_path"`
}

// SemanticModelConfig locates the pre-registered semantic model on a stage.
type SemanticModelConfig struct {
	Database string `koanf:"database"`
	Schema   string `koanf:"schema"`
	Stage    string `koanf:"stage"`
	File     string `koanf:"file"`
}

// Ref builds the fully-qualified @database.schema.stage/file reference.
func (m SemanticModelConfig) Ref() string {
	return analyst.SemanticModelRef(m.Database, m.Schema, m.Stage, m.File)
}

// WarehouseConfig configures the engine that runs generated statements.
type WarehouseConfig struct {
	Driver string `koanf:"driver"` // snowflake, sqlite
	DSN    string `koanf:"dsn"`
}

// ChartConfig maps chart roles to result column names.
type ChartConfig struct {
	MeasureColumn   string `koanf:"measure_column"`
	DimensionColumn string `koanf:"dimension_column"`
}

// StorageConfig configures the interaction log. An empty path disables it.
type StorageConfig struct {
	Path string `koanf:"path"`
}

type APIKeyConfig struct {
	KeyHash     string `koanf:"key_hash"`
	Description string `koanf:"description"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (when it exists) and then the environment. Environment
// variables use the GATEWAY_ prefix with __ as the section separator, e.g.
// GATEWAY_SNOWFLAKE__ACCOUNT overrides snowflake.account.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = "config.yaml"
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// A missing file is fine, the environment can carry everything.
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	// Default values
	defaults := map[string]interface{}{
		"server.port":            8080,
		"server.timeout":         "30s",
		"semantic_model.stage":   "semantic_models",
		"semantic_model.file":    "support_tickets_semantic_model.yaml",
		"warehouse.driver":       "snowflake",
		"chart.measure_column":   "TICKET_COUNT",
		"chart.dimension_column": "SERVICE_TYPE",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Substitute ${VAR} references so secrets can stay out of the file.
	cfg.Snowflake.PrivateKeyPath = substituteEnvVars(cfg.Snowflake.PrivateKeyPath)
	cfg.Warehouse.DSN = substituteEnvVars(cfg.Warehouse.DSN)

	return &cfg, nil
}

// Validate checks the fields the signed-token client cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.Snowflake.Account == "" {
		missing = append(missing, "snowflake.account")
	}
	if c.Snowflake.User == "" {
		missing = append(missing, "snowflake.user")
	}
	if c.Snowflake.Host == "" {
		missing = append(missing, "snowflake.host")
	}
	if c.Snowflake.PrivateKeyPath == "" {
		missing = append(missing, "snowflake.private_key_path")
	}
	if c.SemanticModel.Database == "" {
		missing = append(missing, "semantic_model.database")
	}
	if c.SemanticModel.Schema == "" {
		missing = append(missing, "semantic_model.schema")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
