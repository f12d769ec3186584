// Package config loads the run configuration from a YAML file and fills in
// the defaults that make a bare invocation work against the three listed
// ETF option markets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for one run.
type Config struct {
	CalcDate     string  `yaml:"calc_date"`      // valuation date, YYYY-MM-DD
	RiskFreeRate float64 `yaml:"risk_free_rate"` // annual rate; zero or unset falls back to 0.02

	Source    string `yaml:"source"`     // eastmoney, csv, synthetic
	DataDir   string `yaml:"data_dir"`   // chain snapshot directory
	ReportDir string `yaml:"report_dir"` // CSV/JSON output directory

	Filter    string `yaml:"filter"`    // optional row filter expression
	Workers   int    `yaml:"workers"`   // concurrent expiries; 0 = one per CPU
	Verbosity int    `yaml:"verbosity"` // 0 info, 1 debug, 2 trace

	Underlyings []Underlying    `yaml:"underlyings"`
	Fetch       FetchConfig     `yaml:"fetch"`
	Synthetic   SyntheticConfig `yaml:"synthetic"`
	Server      ServerConfig    `yaml:"server"`
}

// Underlying names one ETF whose option chain enters the run.
type Underlying struct {
	Code string `yaml:"code"` // exchange fund code, e.g. 510050
	Name string `yaml:"name"` // label for logs and output
}

// FetchConfig tunes the live quote retrieval.
type FetchConfig struct {
	PageSize       int `yaml:"page_size"`
	MaxPages       int `yaml:"max_pages"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// SyntheticConfig overrides the generated chain. Zero values keep the
// generator's own defaults.
type SyntheticConfig struct {
	Spot       float64 `yaml:"spot"`
	Vol        float64 `yaml:"vol"`
	Rungs      int     `yaml:"rungs"`
	Step       float64 `yaml:"step"`
	ExpiryDays []int   `yaml:"expiry_days"`
}

// ServerConfig configures the optional REST mode.
type ServerConfig struct {
	Listen string `yaml:"listen"` // host:port
}

// Load reads a YAML configuration file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration and applies defaults in place.
func (c *Config) Validate() error {
	if c.CalcDate == "" {
		c.CalcDate = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", c.CalcDate); err != nil {
		return fmt.Errorf("calc_date must be YYYY-MM-DD: %w", err)
	}

	if c.RiskFreeRate == 0 {
		c.RiskFreeRate = 0.02
	}
	if c.RiskFreeRate < -0.05 || c.RiskFreeRate > 0.5 {
		return fmt.Errorf("risk_free_rate %v is outside the plausible range", c.RiskFreeRate)
	}

	if c.Source == "" {
		c.Source = "eastmoney"
	}
	if c.Source != "eastmoney" && c.Source != "csv" && c.Source != "synthetic" {
		return fmt.Errorf("source must be 'eastmoney', 'csv', or 'synthetic'")
	}

	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.ReportDir == "" {
		c.ReportDir = "reports"
	}

	if len(c.Underlyings) == 0 {
		c.Underlyings = []Underlying{
			{Code: "510050", Name: "50ETF"},
			{Code: "510300", Name: "300ETF"},
			{Code: "159919", Name: "300ETF2"},
		}
	}
	for i, u := range c.Underlyings {
		if u.Code == "" {
			return fmt.Errorf("underlyings[%d].code is required", i)
		}
		if u.Name == "" {
			c.Underlyings[i].Name = u.Code
		}
	}

	if c.Fetch.PageSize == 0 {
		c.Fetch.PageSize = 50
	}
	if c.Fetch.MaxPages == 0 {
		c.Fetch.MaxPages = 5
	}
	if c.Fetch.TimeoutSeconds == 0 {
		c.Fetch.TimeoutSeconds = 60
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}

	return nil
}

// CalcTime returns the parsed valuation date. Validate has already checked
// the format.
func (c *Config) CalcTime() time.Time {
	t, _ := time.Parse("2006-01-02", c.CalcDate)
	return t
}
