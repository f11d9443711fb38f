package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
graph:
  endpoint: https://graph.example/v1
  page_size: 500
rates:
  endpoint: https://rates.example/price
metadata:
  rpc_endpoint: https://rpc.example
  counterfactual_contract: "0xcf"
store:
  repo: owner/data
  branch: main
  token: file-token
pipeline:
  primary_fee_percent: 2.25
  transactions_limit: 500
database:
  postgres_dsn: postgres://localhost/runs
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Graph.Endpoint != "https://graph.example/v1" || cfg.Graph.PageSize != 500 {
		t.Errorf("graph = %+v", cfg.Graph)
	}
	if cfg.Store.Repo != "owner/data" || cfg.Store.Branch != "main" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Pipeline.PrimaryFeePercent != 2.25 {
		t.Errorf("primary fee = %g", cfg.Pipeline.PrimaryFeePercent)
	}
	if cfg.Database.PostgresDSN != "postgres://localhost/runs" {
		t.Errorf("postgres dsn = %q", cfg.Database.PostgresDSN)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "env-token")
	t.Setenv("GRAPH_ENDPOINT", "https://env.example/graph")
	t.Setenv("PRIMARY_FEE_PERCENT", "3.5")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Token != "env-token" {
		t.Errorf("token = %q, env must win over the file", cfg.Store.Token)
	}
	if cfg.Graph.Endpoint != "https://env.example/graph" {
		t.Errorf("endpoint = %q", cfg.Graph.Endpoint)
	}
	if cfg.Pipeline.PrimaryFeePercent != 3.5 {
		t.Errorf("primary fee = %g", cfg.Pipeline.PrimaryFeePercent)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Branch != "master" {
		t.Errorf("default branch = %q", cfg.Store.Branch)
	}
	if cfg.Schedule.ScanCron == "" || cfg.Metrics.ListenAddr == "" {
		t.Errorf("defaults missing: %+v", cfg)
	}
	if cfg.Metadata.Gateway == "" {
		t.Error("default gateway missing")
	}
}

func TestValidateRequiredFields(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("an empty config must not validate")
	}
}
