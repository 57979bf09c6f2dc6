package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/casewatch/api/schemas"
)

var (
	instance *Config
	once     sync.Once
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger"`
	Browser BrowserConfig `mapstructure:"browser"`
	Target  TargetConfig  `mapstructure:"target"`
	Captcha CaptchaConfig `mapstructure:"captcha"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Control ControlConfig `mapstructure:"control"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	ServiceName string `mapstructure:"service_name"`
	LogFile     string `mapstructure:"log_file"`
	MaxSize     int    `mapstructure:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAge      int    `mapstructure:"max_age"`
	Compress    bool   `mapstructure:"compress"`
}

// BrowserConfig holds settings for the headless browser.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors"`
	UserAgent       string   `mapstructure:"user_agent"`
	WindowWidth     int      `mapstructure:"window_width"`
	WindowHeight    int      `mapstructure:"window_height"`
	Args            []string `mapstructure:"args"`
}

// TargetConfig identifies the monitored application and its login gate.
// LoginMarker/AppMarker are substrings matched against the current address to
// decide which side of the gate the session is on.
type TargetConfig struct {
	AppURL      string        `mapstructure:"app_url"`
	LoginURL    string        `mapstructure:"login_url"`
	LoginMarker string        `mapstructure:"login_marker"`
	AppMarker   string        `mapstructure:"app_marker"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// CaptchaConfig controls the recognition pipeline.
type CaptchaConfig struct {
	// CodeLength is the exact number of digits a machine-read code must have.
	CodeLength int `mapstructure:"code_length"`
	// ManualMinLength is the minimum accepted length for operator-entered codes.
	ManualMinLength int `mapstructure:"manual_min_length"`
	// MaxAttempts bounds resolve attempts; each failed attempt refreshes once.
	MaxAttempts int `mapstructure:"max_attempts"`
	// RefreshDelay is the settle time after requesting a fresh code image.
	RefreshDelay time.Duration `mapstructure:"refresh_delay"`
	// TessdataPrefix overrides the Tesseract data directory when non-empty.
	TessdataPrefix string `mapstructure:"tessdata_prefix"`
}

// MonitorConfig controls the polling loop.
type MonitorConfig struct {
	PollInterval    time.Duration           `mapstructure:"poll_interval"`
	AuthBackoff     time.Duration           `mapstructure:"auth_backoff"`
	RecoverySleep   time.Duration           `mapstructure:"recovery_sleep"`
	SelectionPolicy schemas.SelectionPolicy `mapstructure:"selection_policy"`
}

// ControlConfig holds settings for the HTTP control surface.
type ControlConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SetDefaults registers defaults so the app can run with a minimal config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "casewatch")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)

	v.SetDefault("target.login_marker", "login")
	v.SetDefault("target.settle_delay", 2*time.Second)

	v.SetDefault("captcha.code_length", 4)
	v.SetDefault("captcha.manual_min_length", 3)
	v.SetDefault("captcha.max_attempts", 3)
	v.SetDefault("captcha.refresh_delay", 2*time.Second)

	v.SetDefault("monitor.poll_interval", 5*time.Second)
	v.SetDefault("monitor.auth_backoff", 10*time.Second)
	v.SetDefault("monitor.recovery_sleep", 5*time.Second)
	v.SetDefault("monitor.selection_policy", string(schemas.SelectOne))

	v.SetDefault("control.listen_addr", ":8080")
	v.SetDefault("control.shutdown_timeout", 10*time.Second)
}

// Validate enforces cross-field rules that viper cannot express.
func (c *Config) Validate() error {
	if c.Target.AppURL == "" {
		return fmt.Errorf("target.app_url is required")
	}
	if c.Target.LoginURL == "" {
		return fmt.Errorf("target.login_url is required")
	}
	// An empty marker matches every address and would flag every session as
	// expired.
	if c.Target.LoginMarker == "" {
		return fmt.Errorf("target.login_marker is required")
	}
	if c.Captcha.CodeLength < 3 {
		return fmt.Errorf("captcha.code_length must be at least 3, got %d", c.Captcha.CodeLength)
	}
	if c.Captcha.ManualMinLength < 1 || c.Captcha.ManualMinLength > c.Captcha.CodeLength {
		return fmt.Errorf("captcha.manual_min_length must be in [1, code_length]")
	}
	if c.Captcha.MaxAttempts < 1 {
		return fmt.Errorf("captcha.max_attempts must be positive")
	}
	if c.Monitor.PollInterval <= 0 || c.Monitor.AuthBackoff <= 0 || c.Monitor.RecoverySleep <= 0 {
		return fmt.Errorf("monitor intervals must be positive")
	}
	switch c.Monitor.SelectionPolicy {
	case schemas.SelectOne, schemas.SelectAll:
	default:
		return fmt.Errorf("monitor.selection_policy must be %q or %q", schemas.SelectOne, schemas.SelectAll)
	}
	return nil
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	var loadErr error
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}
