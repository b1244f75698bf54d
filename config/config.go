package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

// Config holds all application configuration.
type Config struct {
	Core     CoreConfig     `yaml:"core"`
	Crawler  CrawlerConfig  `yaml:"crawler"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
	Calendar CalendarConfig `yaml:"calendar"`
}

type CoreConfig struct {
	// years of history fetched on a cold start
	DataPeriod int    `yaml:"data_period"`
	DB         string `yaml:"db"`
	Source     string `yaml:"source"`
	TdxDir     string `yaml:"tdx_dir"`
	Proxy      string `yaml:"proxy"`
	OutputDir  string `yaml:"output_dir"`
}

type CrawlerConfig struct {
	PoolSize    int           `yaml:"pool_size"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	RateLimit   float64       `yaml:"rate_limit"`
	Burst       int           `yaml:"burst"`
	Timeout     time.Duration `yaml:"timeout"`
	PollTimeout time.Duration `yaml:"poll_timeout"`
}

// AnalyzerConfig thresholds; a nil threshold disables its filter.
type AnalyzerConfig struct {
	MinHistData      *int     `yaml:"min_hist_data"`
	ExcludeST        bool     `yaml:"exclude_st"`
	ExcludeGEM       bool     `yaml:"exclude_gem"`
	ExcludeSTAR      bool     `yaml:"exclude_star"`
	MaxPrice         *float64 `yaml:"max_price"`
	MaxNMC           *float64 `yaml:"max_nmc"` // 亿
	MaxPE            *float64 `yaml:"max_pe"`
	ExcludeLoss      bool     `yaml:"exclude_loss"`
	MinD5TurnoverAvg *float64 `yaml:"min_d5_turnover_avg"`
	MaxPosition      *float64 `yaml:"max_position"`
	MinPosition      *float64 `yaml:"min_position"`
	PositionWindow   int      `yaml:"position_window"`
	RequireMABullish bool     `yaml:"require_ma_bullish"`
	MarketIndex      string   `yaml:"market_index"`
}

type WatchRule struct {
	High        *float64 `yaml:"high"`
	Low         *float64 `yaml:"low"`
	UpPercent   *float64 `yaml:"up_percent"`
	DownPercent *float64 `yaml:"down_percent"`
}

type MonitorConfig struct {
	Interval           time.Duration        `yaml:"interval"`
	IgnoreTradingHours bool                 `yaml:"ignore_trading_hours"`
	Stocks             map[string]WatchRule `yaml:"stocks"`
}

type ScheduleConfig struct {
	UpdateCron string `yaml:"update_cron"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type CalendarConfig struct {
	Holidays  []string `yaml:"holidays"`
	CloseHour int      `yaml:"close_hour"`
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

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

	if v := os.Getenv("RUFENG_DB"); v != "" {
		cfg.Core.DB = v
	}
	if v := os.Getenv("RUFENG_SOURCE"); v != "" {
		cfg.Core.Source = v
	}
	if v := os.Getenv("RUFENG_TDX_DIR"); v != "" {
		cfg.Core.TdxDir = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" && cfg.Core.Proxy == "" {
		cfg.Core.Proxy = v
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Core.DataPeriod == 0 {
		c.Core.DataPeriod = 1
	}
	if c.Core.DB == "" {
		c.Core.DB = "duckdb://rufeng.duckdb"
	}
	if c.Core.Source == "" {
		c.Core.Source = "eastmoney"
	}
	if c.Core.OutputDir == "" {
		c.Core.OutputDir = "output"
	}

	if c.Crawler.PoolSize == 0 {
		c.Crawler.PoolSize = 20
	}
	if c.Crawler.MaxAttempts == 0 {
		c.Crawler.MaxAttempts = 3
	}
	if c.Crawler.Backoff == 0 {
		c.Crawler.Backoff = time.Second
	}
	if c.Crawler.MaxBackoff == 0 {
		c.Crawler.MaxBackoff = 10 * time.Second
	}
	if c.Crawler.RateLimit == 0 {
		c.Crawler.RateLimit = 10
	}
	if c.Crawler.Burst == 0 {
		c.Crawler.Burst = 5
	}
	if c.Crawler.Timeout == 0 {
		c.Crawler.Timeout = 15 * time.Second
	}
	if c.Crawler.PollTimeout == 0 {
		c.Crawler.PollTimeout = 30 * time.Minute
	}

	if c.Analyzer.PositionWindow == 0 {
		c.Analyzer.PositionWindow = 60
	}
	if c.Analyzer.MarketIndex == "" {
		c.Analyzer.MarketIndex = "sh000001"
	}

	if c.Monitor.Interval == 0 {
		c.Monitor.Interval = 3 * time.Second
	}

	if c.Schedule.UpdateCron == "" {
		c.Schedule.UpdateCron = "0 30 15 * * 1-5"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Calendar.CloseHour == 0 {
		c.Calendar.CloseHour = 15
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if c.Core.DataPeriod < 0 {
		return fmt.Errorf("core.data_period must be positive")
	}
	switch c.Core.Source {
	case "eastmoney", "yahoo", "tdx":
	default:
		return fmt.Errorf("core.source %q is not supported", c.Core.Source)
	}
	if c.Core.Source == "tdx" && c.Core.TdxDir == "" {
		return fmt.Errorf("core.tdx_dir is required for the tdx source")
	}
	if c.Crawler.PoolSize < 0 || c.Crawler.MaxAttempts < 0 {
		return fmt.Errorf("crawler.pool_size and crawler.max_attempts must be positive")
	}
	if c.Calendar.CloseHour < 0 || c.Calendar.CloseHour > 23 {
		return fmt.Errorf("calendar.close_hour must be within 0-23")
	}
	if _, err := c.Calendar.HolidayDates(); err != nil {
		return err
	}
	for code := range c.Monitor.Stocks {
		if strings.TrimSpace(code) == "" {
			return fmt.Errorf("monitor.stocks contains an empty code")
		}
	}
	return nil
}

// HolidayDates parses calendar.holidays (YYYY-MM-DD).
func (c CalendarConfig) HolidayDates() ([]time.Time, error) {
	dates := make([]time.Time, 0, len(c.Holidays))
	for _, h := range c.Holidays {
		d, err := time.Parse("2006-01-02", strings.TrimSpace(h))
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		dates = append(dates, d)
	}
	return dates, nil
}
