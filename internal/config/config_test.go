package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
snowflake:
  account: acme-prod
  user: analyst_bot
  host: acme-prod.snowflakecomputing.com
  private_key_path: /keys/rsa_key.p8
semantic_model:
  database: demo_db
  schema: data
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout() != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", cfg.Server.RequestTimeout())
	}
	if cfg.Chart.MeasureColumn != "TICKET_COUNT" || cfg.Chart.DimensionColumn != "SERVICE_TYPE" {
		t.Errorf("chart defaults = %+v", cfg.Chart)
	}
	if cfg.SemanticModel.Stage != "semantic_models" {
		t.Errorf("stage default = %q", cfg.SemanticModel.Stage)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	want := "@demo_db.data.semantic_models/support_tickets_semantic_model.yaml"
	if got := cfg.SemanticModel.Ref(); got != want {
		t.Errorf("Ref() = %q, want %q", got, want)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
snowflake:
  account: acme-prod
  host: acme-prod.snowflakecomputing.com
`)

	t.Setenv("GATEWAY_SNOWFLAKE__ACCOUNT", "acme-staging")
	t.Setenv("GATEWAY_SERVER__PORT", "7070")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Snowflake.Account != "acme-staging" {
		t.Errorf("account = %q, want env override acme-staging", cfg.Snowflake.Account)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
}

func TestLoad_EnvVarSubstitution(t *testing.T) {
	path := writeConfig(t, `
snowflake:
  private_key_path: ${KEY_DIR}/rsa_key.p8
`)
	t.Setenv("KEY_DIR", "/secrets")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Snowflake.PrivateKeyPath != "/secrets/rsa_key.p8" {
		t.Errorf("private key path = %q", cfg.Snowflake.PrivateKeyPath)
	}
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("GATEWAY_SNOWFLAKE__ACCOUNT", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Snowflake.Account != "from-env" {
		t.Errorf("account = %q", cfg.Snowflake.Account)
	}
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for empty config")
	}
	for _, field := range []string{"snowflake.account", "snowflake.private_key_path", "semantic_model.database"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("validation error missing %q: %v", field, err)
		}
	}
}
