package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Audit   AuditConfig   `mapstructure:"audit" yaml:"audit"`
	Probe   ProbeConfig   `mapstructure:"probe" yaml:"probe"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// LoggerConfig controls console and file logging.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls how sessions are provisioned.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
}

// AuditConfig controls discovery, deep scanning and click testing.
type AuditConfig struct {
	DefaultURL        string        `mapstructure:"default_url" yaml:"default_url"`
	Workers           int           `mapstructure:"workers" yaml:"workers"`
	Strictness        string        `mapstructure:"strictness" yaml:"strictness"`
	WaitTime          time.Duration `mapstructure:"wait_time" yaml:"wait_time"`
	ObservationWindow time.Duration `mapstructure:"observation_window" yaml:"observation_window"`
	LocateTimeout     time.Duration `mapstructure:"locate_timeout" yaml:"locate_timeout"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout" yaml:"element_timeout"`
	DeepScan          bool          `mapstructure:"deep_scan" yaml:"deep_scan"`
	MaxDepth          int           `mapstructure:"max_depth" yaml:"max_depth"`
	ClickRate         float64       `mapstructure:"click_rate" yaml:"click_rate"`
	// RunTimeout of zero means "derive from wait time and element count".
	RunTimeout time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
}

// ProbeConfig controls the HEAD probe that resolves candidate hrefs.
type ProbeConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size"`
	RPS       float64       `mapstructure:"rps" yaml:"rps"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// StoreConfig controls the optional Postgres mirror of the report slot.
type StoreConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// SetDefaults registers every configuration key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "deadclick")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", defaultUserAgent)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.ignore_tls_errors", false)

	v.SetDefault("audit.default_url", "")
	v.SetDefault("audit.workers", 4)
	v.SetDefault("audit.strictness", "normal")
	v.SetDefault("audit.wait_time", "5s")
	v.SetDefault("audit.observation_window", "2s")
	v.SetDefault("audit.locate_timeout", "2s")
	v.SetDefault("audit.element_timeout", "30s")
	v.SetDefault("audit.deep_scan", true)
	v.SetDefault("audit.max_depth", 2)
	v.SetDefault("audit.click_rate", 8.0)
	v.SetDefault("audit.run_timeout", "0s")

	v.SetDefault("probe.enabled", false)
	v.SetDefault("probe.timeout", "5s")
	v.SetDefault("probe.cache_size", 512)
	v.SetDefault("probe.rps", 4.0)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.request_timeout", "15m")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("store.dsn", "")
}

// The user agent the original auditor shipped with; a plain desktop Chrome.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// NewConfigFromViper unmarshals and validates the effective configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Defaults must always validate.
		panic(fmt.Sprintf("default config is invalid: %v", err))
	}
	return cfg
}

// Validate checks cross-field constraints and clamps obviously broken values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logger.level %q is not one of debug, info, warn, error", c.Logger.Level)
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format %q is not one of console, json", c.Logger.Format)
	}

	if c.Audit.Workers < 1 {
		return fmt.Errorf("audit.workers must be >= 1, got %d", c.Audit.Workers)
	}
	if c.Audit.Workers > 32 {
		return fmt.Errorf("audit.workers must be <= 32, got %d", c.Audit.Workers)
	}
	if _, err := parseStrictness(c.Audit.Strictness); err != nil {
		return fmt.Errorf("audit.strictness: %w", err)
	}
	if c.Audit.WaitTime < time.Second {
		return fmt.Errorf("audit.wait_time must be >= 1s, got %s", c.Audit.WaitTime)
	}
	if c.Audit.MaxDepth < 0 {
		return fmt.Errorf("audit.max_depth must be >= 0, got %d", c.Audit.MaxDepth)
	}
	if c.Audit.ClickRate <= 0 {
		return fmt.Errorf("audit.click_rate must be > 0, got %f", c.Audit.ClickRate)
	}

	if c.Browser.WindowWidth <= 0 || c.Browser.WindowHeight <= 0 {
		return fmt.Errorf("browser window size must be positive, got %dx%d",
			c.Browser.WindowWidth, c.Browser.WindowHeight)
	}

	if c.Probe.Enabled {
		if c.Probe.CacheSize < 1 {
			return fmt.Errorf("probe.cache_size must be >= 1, got %d", c.Probe.CacheSize)
		}
		if c.Probe.RPS <= 0 {
			return fmt.Errorf("probe.rps must be > 0, got %f", c.Probe.RPS)
		}
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	return nil
}

func parseStrictness(s string) (string, error) {
	switch s {
	case "strict", "normal", "loose", "":
		return s, nil
	default:
		return "", fmt.Errorf("invalid value %q (want strict, normal or loose)", s)
	}
}
