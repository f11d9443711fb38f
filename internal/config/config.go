// Package config loads application configuration from a YAML file with
// environment variable overrides for secrets and deploy-time knobs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Graph struct {
		Endpoint string `yaml:"endpoint"`
		PageSize int    `yaml:"page_size"`
	} `yaml:"graph"`
	Rates struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"rates"`
	Metadata struct {
		RPCEndpoint            string `yaml:"rpc_endpoint"`
		Gateway                string `yaml:"gateway"`
		CounterfactualContract string `yaml:"counterfactual_contract"`
	} `yaml:"metadata"`
	Store struct {
		Repo    string `yaml:"repo"` // "owner/name"
		Branch  string `yaml:"branch"`
		Token   string `yaml:"token"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"store"`
	Pipeline struct {
		DailyRetentionMinutes    int     `yaml:"daily_retention_minutes"`
		WeeklyRetentionMinutes   int     `yaml:"weekly_retention_minutes"`
		DailyGranularityMinutes  int     `yaml:"daily_granularity_minutes"`
		WeeklyGranularityMinutes int     `yaml:"weekly_granularity_minutes"`
		TransactionsLimit        int     `yaml:"transactions_limit"`
		PopularTradeCount        int     `yaml:"popular_trade_count"`
		PrimaryFeePercent        float64 `yaml:"primary_fee_percent"`
	} `yaml:"pipeline"`
	Schedule struct {
		ScanCron string `yaml:"scan_cron"`
	} `yaml:"schedule"`
	Database struct {
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickhouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"database"`
	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides. A missing file is fine: everything can come from env.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("GRAPH_ENDPOINT"); v != "" {
		cfg.Graph.Endpoint = v
	}
	if v := os.Getenv("RATES_ENDPOINT"); v != "" {
		cfg.Rates.Endpoint = v
	}
	if v := os.Getenv("RPC_ENDPOINT"); v != "" {
		cfg.Metadata.RPCEndpoint = v
	}
	if v := os.Getenv("STORE_REPO"); v != "" {
		cfg.Store.Repo = v
	}
	if v := os.Getenv("STORE_BRANCH"); v != "" {
		cfg.Store.Branch = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.Store.Token = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		cfg.Database.ClickhouseDSN = v
	}
	if v := os.Getenv("SCAN_CRON"); v != "" {
		cfg.Schedule.ScanCron = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("PRIMARY_FEE_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Pipeline.PrimaryFeePercent = f
		}
	}

	// Defaults
	if cfg.Metadata.Gateway == "" {
		cfg.Metadata.Gateway = "https://ipfs.io/ipfs/"
	}
	if cfg.Store.Branch == "" {
		cfg.Store.Branch = "master"
	}
	if cfg.Schedule.ScanCron == "" {
		cfg.Schedule.ScanCron = "*/10 * * * *"
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Graph.Endpoint == "" {
		return fmt.Errorf("graph.endpoint is required")
	}
	if c.Rates.Endpoint == "" {
		return fmt.Errorf("rates.endpoint is required")
	}
	if c.Metadata.RPCEndpoint == "" {
		return fmt.Errorf("metadata.rpc_endpoint is required")
	}
	if c.Metadata.CounterfactualContract == "" {
		return fmt.Errorf("metadata.counterfactual_contract is required")
	}
	if c.Store.Repo == "" {
		return fmt.Errorf("store.repo is required")
	}
	if c.Store.Token == "" {
		return fmt.Errorf("store.token is required")
	}
	return nil
}
