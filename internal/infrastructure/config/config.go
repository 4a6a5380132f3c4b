package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Policy     PolicyConfig
	Gateway    GatewayConfig
	Classifier ClassifierConfig
	Ledger     LedgerConfig
	Scheduler  SchedulerConfig
	Dispatch   DispatchConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings. Driver selects between
// postgres and an embedded sqlite file for single-host deployments.
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file path
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// PolicyConfig holds the dispatch policy rules
type PolicyConfig struct {
	BusinessStart    string // "HH:MM" in Timezone
	BusinessEnd      string // "HH:MM" in Timezone
	Timezone         string // IANA name, e.g. "Asia/Kolkata"
	MaxRetryAttempts int
	CallsPerMinute   int
	MaxCallDuration  time.Duration
	WatchdogGrace    time.Duration
}

// GatewayConfig holds the voice-call provider settings
type GatewayConfig struct {
	BaseURL       string
	APIKey        string
	PhoneNumberID string
	WebhookSecret string
	// DefaultRegion resolves national phone numbers to E.164
	DefaultRegion string
	Timeout       time.Duration
}

// ClassifierConfig holds the transcript classifier settings
type ClassifierConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LedgerConfig holds the spreadsheet ledger settings
type LedgerConfig struct {
	BaseURL string
	APIKey  string
	// RegistrySheetID is the sheet listing clients and their ledger sheets
	RegistrySheetID string
	Timeout         time.Duration
}

// SchedulerConfig holds the cycle trigger and watchdog settings
type SchedulerConfig struct {
	Enabled bool
	// DailyRunTime is the wall-clock time ("HH:MM") in the policy timezone
	// when the daily cycle fires
	DailyRunTime      string
	WatchdogInterval  time.Duration
	ReconcileInterval time.Duration
}

// DispatchConfig holds the orchestrator tunables
type DispatchConfig struct {
	Workers         int
	RetryDelay      time.Duration
	ClassifyTimeout time.Duration
	CallbackURL     string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with CALLER_ prefix (e.g., CALLER_GATEWAY_API_KEY)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("CALLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		Policy: PolicyConfig{
			BusinessStart:    v.GetString("policy.business_start"),
			BusinessEnd:      v.GetString("policy.business_end"),
			Timezone:         v.GetString("policy.timezone"),
			MaxRetryAttempts: v.GetInt("policy.max_retry_attempts"),
			CallsPerMinute:   v.GetInt("policy.calls_per_minute"),
			MaxCallDuration:  v.GetDuration("policy.max_call_duration"),
			WatchdogGrace:    v.GetDuration("policy.watchdog_grace"),
		},
		Gateway: GatewayConfig{
			BaseURL:       v.GetString("gateway.base_url"),
			APIKey:        v.GetString("gateway.api_key"),
			PhoneNumberID: v.GetString("gateway.phone_number_id"),
			WebhookSecret: v.GetString("gateway.webhook_secret"),
			DefaultRegion: v.GetString("gateway.default_region"),
			Timeout:       v.GetDuration("gateway.timeout"),
		},
		Classifier: ClassifierConfig{
			BaseURL: v.GetString("classifier.base_url"),
			APIKey:  v.GetString("classifier.api_key"),
			Model:   v.GetString("classifier.model"),
			Timeout: v.GetDuration("classifier.timeout"),
		},
		Ledger: LedgerConfig{
			BaseURL:         v.GetString("ledger.base_url"),
			APIKey:          v.GetString("ledger.api_key"),
			RegistrySheetID: v.GetString("ledger.registry_sheet_id"),
			Timeout:         v.GetDuration("ledger.timeout"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           v.GetBool("scheduler.enabled"),
			DailyRunTime:      v.GetString("scheduler.daily_run_time"),
			WatchdogInterval:  v.GetDuration("scheduler.watchdog_interval"),
			ReconcileInterval: v.GetDuration("scheduler.reconcile_interval"),
		},
		Dispatch: DispatchConfig{
			Workers:         v.GetInt("dispatch.workers"),
			RetryDelay:      v.GetDuration("dispatch.retry_delay"),
			ClassifyTimeout: v.GetDuration("dispatch.classify_timeout"),
			CallbackURL:     v.GetString("dispatch.callback_url"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "payment-reminder-caller"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "caller"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "caller.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB, webhook payloads are small
	}
	if cfg.Policy.BusinessStart == "" {
		cfg.Policy.BusinessStart = "10:00"
	}
	if cfg.Policy.BusinessEnd == "" {
		cfg.Policy.BusinessEnd = "19:00"
	}
	if cfg.Policy.Timezone == "" {
		cfg.Policy.Timezone = "Asia/Kolkata"
	}
	if cfg.Policy.MaxRetryAttempts == 0 {
		cfg.Policy.MaxRetryAttempts = 3
	}
	if cfg.Policy.CallsPerMinute == 0 {
		cfg.Policy.CallsPerMinute = 10
	}
	if cfg.Policy.MaxCallDuration == 0 {
		cfg.Policy.MaxCallDuration = 5 * time.Minute
	}
	if cfg.Policy.WatchdogGrace == 0 {
		cfg.Policy.WatchdogGrace = time.Minute
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "https://api.vapi.ai"
	}
	if cfg.Gateway.DefaultRegion == "" {
		cfg.Gateway.DefaultRegion = "IN"
	}
	if cfg.Gateway.Timeout == 0 {
		cfg.Gateway.Timeout = 15 * time.Second
	}
	if cfg.Classifier.BaseURL == "" {
		cfg.Classifier.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "gemini-2.0-flash"
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 30 * time.Second
	}
	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = 20 * time.Second
	}
	if cfg.Scheduler.DailyRunTime == "" {
		cfg.Scheduler.DailyRunTime = "10:00"
	}
	if cfg.Scheduler.WatchdogInterval == 0 {
		cfg.Scheduler.WatchdogInterval = 30 * time.Second
	}
	if cfg.Scheduler.ReconcileInterval == 0 {
		cfg.Scheduler.ReconcileInterval = 5 * time.Minute
	}
	if cfg.Dispatch.Workers == 0 {
		cfg.Dispatch.Workers = 4
	}
	if cfg.Dispatch.RetryDelay == 0 {
		cfg.Dispatch.RetryDelay = 30 * time.Minute
	}
	if cfg.Dispatch.ClassifyTimeout == 0 {
		cfg.Dispatch.ClassifyTimeout = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	// A broken calling policy must never start dialing customers
	if _, err := time.LoadLocation(c.Policy.Timezone); err != nil {
		return fmt.Errorf("policy.timezone is not a valid IANA zone: %w", err)
	}
	if err := validClockTime(c.Policy.BusinessStart); err != nil {
		return fmt.Errorf("policy.business_start: %w", err)
	}
	if err := validClockTime(c.Policy.BusinessEnd); err != nil {
		return fmt.Errorf("policy.business_end: %w", err)
	}
	if err := validClockTime(c.Scheduler.DailyRunTime); err != nil {
		return fmt.Errorf("scheduler.daily_run_time: %w", err)
	}
	if c.Policy.MaxRetryAttempts < 1 {
		return fmt.Errorf("policy.max_retry_attempts must be at least 1")
	}
	if c.Policy.CallsPerMinute < 1 {
		return fmt.Errorf("policy.calls_per_minute must be at least 1")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.Gateway.APIKey == "" {
			return fmt.Errorf("gateway.api_key is required in production")
		}
		if c.Gateway.WebhookSecret == "" {
			return fmt.Errorf("gateway.webhook_secret is required in production")
		}
		if c.Classifier.APIKey == "" {
			return fmt.Errorf("classifier.api_key is required in production")
		}
		if c.Ledger.APIKey == "" {
			return fmt.Errorf("ledger.api_key is required in production")
		}
		if c.Dispatch.CallbackURL == "" {
			return fmt.Errorf("dispatch.callback_url is required in production")
		}
		if c.Database.Driver == "postgres" {
			if c.Database.Password == "" {
				return fmt.Errorf("database.password is required in production")
			}
			if c.Database.SSLMode == "disable" {
				return fmt.Errorf("database.sslmode cannot be 'disable' in production")
			}
		}
	}

	return nil
}

// validClockTime checks an "HH:MM" string
func validClockTime(s string) error {
	if _, err := time.Parse("15:04", s); err != nil {
		return fmt.Errorf("invalid clock time %q", s)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
