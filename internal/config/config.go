package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	OldCRM  CRMConfig     `mapstructure:"old_crm"`
	NewCRM  CRMConfig     `mapstructure:"new_crm"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Backoff BackoffConfig `mapstructure:"backoff"`
	Server  ServerConfig  `mapstructure:"server"`
	Logger  LoggerConfig  `mapstructure:"logger"`
}

// CRMConfig holds connection settings for one EspoCRM endpoint
type CRMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig holds pipeline tuning
type SyncConfig struct {
	PageSize       int           `mapstructure:"page_size"`
	CreatedAfter   string        `mapstructure:"created_after"`
	CycleInterval  time.Duration `mapstructure:"cycle_interval"`
	ReconcileDelay time.Duration `mapstructure:"reconcile_delay"`
	FuzzyThreshold int           `mapstructure:"fuzzy_threshold"`
	AssignedUserID string        `mapstructure:"assigned_user_id"`
	// InvoiceURLTemplate receives the invoice id via %s.
	InvoiceURLTemplate string `mapstructure:"invoice_url_template"`
	// TaxRates maps a two-letter country code to a VAT percentage applied
	// to invoice lines for companies from that country.
	TaxRates map[string]float64 `mapstructure:"tax_rates"`
}

// BackoffConfig holds retry backoff tuning
type BackoffConfig struct {
	Base time.Duration `mapstructure:"base"`
	Cap  time.Duration `mapstructure:"cap"`
}

// ServerConfig holds the status HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level        string `mapstructure:"level"`
	Format       string `mapstructure:"format"`
	ErrorLogPath string `mapstructure:"error_log_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("old_crm.base_url", "https://www.alis-is.com")
	viper.SetDefault("old_crm.timeout", 30*time.Second)
	viper.SetDefault("new_crm.base_url", "https://www.crm.alis-is.com")
	viper.SetDefault("new_crm.timeout", 30*time.Second)

	viper.SetDefault("sync.page_size", 200)
	viper.SetDefault("sync.created_after", "2024-12-09 00:00:00")
	viper.SetDefault("sync.cycle_interval", 5*time.Minute)
	viper.SetDefault("sync.reconcile_delay", 6*time.Minute)
	viper.SetDefault("sync.fuzzy_threshold", 85)
	viper.SetDefault("sync.invoice_url_template", "https://www.crm.alis-is.com/#Invoice/view/%s")
	viper.SetDefault("sync.tax_rates", map[string]float64{"CZ": 21})

	viper.SetDefault("backoff.base", 5*time.Minute)
	viper.SetDefault("backoff.cap", 30*time.Minute)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.error_log_path", "logs/sync-errors.log")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("old_crm.api_key", "OLD_CRM_API_KEY")
	viper.BindEnv("new_crm.api_key", "NEW_CRM_API_KEY")
	viper.BindEnv("old_crm.base_url", "OLD_CRM_URL")
	viper.BindEnv("new_crm.base_url", "NEW_CRM_URL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OldCRM.BaseURL == "" {
		return fmt.Errorf("old_crm.base_url is required")
	}
	if c.OldCRM.APIKey == "" {
		return fmt.Errorf("old_crm.api_key is required")
	}
	if c.NewCRM.BaseURL == "" {
		return fmt.Errorf("new_crm.base_url is required")
	}
	if c.NewCRM.APIKey == "" {
		return fmt.Errorf("new_crm.api_key is required")
	}
	if c.Sync.AssignedUserID == "" {
		return fmt.Errorf("sync.assigned_user_id is required")
	}
	if c.Sync.PageSize <= 0 {
		return fmt.Errorf("sync.page_size must be positive")
	}
	if c.Sync.FuzzyThreshold < 0 || c.Sync.FuzzyThreshold > 100 {
		return fmt.Errorf("sync.fuzzy_threshold must be between 0 and 100")
	}
	if c.Backoff.Base <= 0 || c.Backoff.Cap < c.Backoff.Base {
		return fmt.Errorf("backoff.cap must be at least backoff.base")
	}
	return nil
}
