// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Session() SessionConfig

	// Browser Setters
	SetBrowserPath(string)
	SetBrowserHeadless(bool)
	SetBrowserKiosk(bool)
	SetBrowserSize(width, height int)

	// Session Setters
	SetSessionCallTimeout(time.Duration)
}

// Config is the root configuration object.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
	SessionCfg SessionConfig `mapstructure:"session" yaml:"session"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }
func (c *Config) Session() SessionConfig { return c.SessionCfg }

// Browser Setters
func (c *Config) SetBrowserPath(p string)   { c.BrowserCfg.Path = p }
func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserKiosk(b bool)    { c.BrowserCfg.Kiosk = b }
func (c *Config) SetBrowserSize(w, h int)   { c.BrowserCfg.Width, c.BrowserCfg.Height = w, h }

// Session Setters
func (c *Config) SetSessionCallTimeout(d time.Duration) { c.SessionCfg.CallTimeout = d }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how the Chromium process is located and launched.
type BrowserConfig struct {
	// Path to the browser binary. Empty means search the usual install locations.
	Path     string `mapstructure:"path" yaml:"path"`
	Headless bool   `mapstructure:"headless" yaml:"headless"`
	// Kiosk opens the page fullscreen without browser chrome instead of as an app window.
	Kiosk  bool `mapstructure:"kiosk" yaml:"kiosk"`
	Width  int  `mapstructure:"width" yaml:"width"`
	Height int  `mapstructure:"height" yaml:"height"`
	// UserDataDir pins the profile directory. Empty means a throwaway temp dir.
	UserDataDir  string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args         []string      `mapstructure:"args" yaml:"args"`
	CloseTimeout time.Duration `mapstructure:"close_timeout" yaml:"close_timeout"`
	// DisableCacheForLocal turns off every browser cache when the page is not served over http(s).
	DisableCacheForLocal bool `mapstructure:"disable_cache_for_local" yaml:"disable_cache_for_local"`
}

// SessionConfig tunes the protocol session.
type SessionConfig struct {
	// Domains overrides the protocol domains enabled after attach. Empty means the defaults.
	Domains       []string      `mapstructure:"domains" yaml:"domains"`
	CallTimeout   time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	EventRate     float64       `mapstructure:"event_rate" yaml:"event_rate"`
	EventBurst    int           `mapstructure:"event_burst" yaml:"event_burst"`
	SkipMalformed bool          `mapstructure:"skip_malformed" yaml:"skip_malformed"`
}

// NewDefaultConfig creates a configuration object populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "cdpipe")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.path", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.kiosk", false)
	v.SetDefault("browser.width", 0)
	v.SetDefault("browser.height", 0)
	v.SetDefault("browser.user_data_dir", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.close_timeout", "5s")
	v.SetDefault("browser.disable_cache_for_local", true)

	// -- Session --
	v.SetDefault("session.domains", []string{})
	v.SetDefault("session.call_timeout", "30s")
	v.SetDefault("session.event_rate", 20.0)
	v.SetDefault("session.event_burst", 50)
	v.SetDefault("session.skip_malformed", true)
}

// NewConfigFromViper unmarshals a viper instance into a validated Config. A leading
// ~ in filesystem paths is expanded to the home directory.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.BrowserCfg.Path, &c.BrowserCfg.UserDataDir, &c.LoggerCfg.LogFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.LoggerCfg.Level); err != nil {
		return fmt.Errorf("logger.level %q is not a valid level", c.LoggerCfg.Level)
	}
	switch strings.ToLower(c.LoggerCfg.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.LoggerCfg.Format)
	}
	if c.BrowserCfg.Width < 0 || c.BrowserCfg.Height < 0 {
		return fmt.Errorf("browser.width and browser.height must not be negative")
	}
	if c.BrowserCfg.Headless && c.BrowserCfg.Kiosk {
		return fmt.Errorf("browser.headless and browser.kiosk are mutually exclusive")
	}
	if c.BrowserCfg.CloseTimeout < 0 {
		return fmt.Errorf("browser.close_timeout must not be negative")
	}
	if c.SessionCfg.CallTimeout <= 0 {
		return fmt.Errorf("session.call_timeout must be a positive duration")
	}
	for _, d := range c.SessionCfg.Domains {
		if d == "" || strings.Contains(d, ".") {
			return fmt.Errorf("session.domains entry %q is not a domain name", d)
		}
	}
	if c.SessionCfg.EventRate < 0 || c.SessionCfg.EventBurst < 0 {
		return fmt.Errorf("session.event_rate and session.event_burst must not be negative")
	}
	return nil
}
