package infra

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every application setting. Values are loaded from YAML and
// may be overridden through environment variables afterwards.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Market struct {
		WSURL      string   `yaml:"ws_url"`
		Symbols    []string `yaml:"symbols"`
		TickBuffer int      `yaml:"tick_buffer"`
	} `yaml:"market"`

	Risk struct {
		MaxOrderValue  decimal.Decimal `yaml:"max_order_value"`
		MinBalance     decimal.Decimal `yaml:"min_balance"`
		MaxDailyTrades int             `yaml:"max_daily_trades"`
	} `yaml:"risk"`

	Demo struct {
		UserID         int64           `yaml:"user_id"`
		InitialDeposit decimal.Decimal `yaml:"initial_deposit"`
	} `yaml:"demo"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Market.WSURL != "" &&
		!strings.HasPrefix(c.Market.WSURL, "ws://") && !strings.HasPrefix(c.Market.WSURL, "wss://") {
		return fmt.Errorf("invalid market WS URL: %s", c.Market.WSURL)
	}
	if c.Market.WSURL != "" && len(c.Market.Symbols) == 0 {
		return fmt.Errorf("at least one market symbol is required when ingest is enabled")
	}
	if c.Risk.MaxOrderValue.IsNegative() {
		return fmt.Errorf("risk max_order_value must not be negative")
	}
	if c.Risk.MinBalance.IsNegative() {
		return fmt.Errorf("risk min_balance must not be negative")
	}
	if c.Risk.MaxDailyTrades < 0 {
		return fmt.Errorf("risk max_daily_trades must not be negative")
	}
	if c.Demo.UserID < 0 {
		return fmt.Errorf("demo user_id must not be negative")
	}
	if c.Demo.InitialDeposit.IsNegative() {
		return fmt.Errorf("demo initial_deposit must not be negative")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	return nil
}

// overrideWithEnv replaces settings for which an environment variable exists.
func overrideWithEnv(cfg *Config) {
	if path := os.Getenv("APEX_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("APEX_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if url := os.Getenv("APEX_MARKET_WS_URL"); url != "" {
		cfg.Market.WSURL = url
	}
}
