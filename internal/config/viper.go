// Package config provides Viper-based hierarchical configuration management
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CATIMPORT_LOG_LEVEL.
const EnvPrefix = "CATIMPORT"

// Config represents the complete application configuration
type Config struct {
	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
	} `mapstructure:"log" yaml:"log"`

	CSV struct {
		Delimiter string `mapstructure:"delimiter" yaml:"delimiter"`
	} `mapstructure:"csv" yaml:"csv"`

	Deliverect struct {
		BaseURL            string `mapstructure:"base_url" yaml:"base_url"`
		AuthURL            string `mapstructure:"auth_url" yaml:"auth_url"`
		Audience           string `mapstructure:"audience" yaml:"audience"`
		ClientID           string `mapstructure:"client_id" yaml:"client_id"`
		ClientSecret       string `mapstructure:"client_secret" yaml:"-"` // Never serialize the secret
		DeveloperAccountID string `mapstructure:"developer_account_id" yaml:"developer_account_id"`
		TimeoutSeconds     int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
		RequestsPerSecond  int    `mapstructure:"requests_per_second" yaml:"requests_per_second"`
		ProductPageSize    int    `mapstructure:"product_page_size" yaml:"product_page_size"`
	} `mapstructure:"deliverect" yaml:"deliverect"`

	Import struct {
		Concurrency      int `mapstructure:"concurrency" yaml:"concurrency"`
		MaxAttempts      int `mapstructure:"max_attempts" yaml:"max_attempts"`
		InitialBackoffMS int `mapstructure:"initial_backoff_ms" yaml:"initial_backoff_ms"`
		MaxBackoffMS     int `mapstructure:"max_backoff_ms" yaml:"max_backoff_ms"`
	} `mapstructure:"import" yaml:"import"`

	Report struct {
		Format    string `mapstructure:"format" yaml:"format"`
		Output    string `mapstructure:"output" yaml:"output"`
		ErrorsCSV string `mapstructure:"errors_csv" yaml:"errors_csv"`
	} `mapstructure:"report" yaml:"report"`
}

// Timeout is the per-request timeout of the remote client.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Deliverect.TimeoutSeconds) * time.Second
}

// InitialBackoff is the delay before the first retry of a remote call.
func (c *Config) InitialBackoff() time.Duration {
	return time.Duration(c.Import.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff caps the delay between retries.
func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Import.MaxBackoffMS) * time.Millisecond
}

// DelimiterRune returns the configured CSV delimiter.
func (c *Config) DelimiterRune() rune {
	return []rune(c.CSV.Delimiter)[0]
}

// InitializeConfig initializes Viper configuration with hierarchical loading
func InitializeConfig() (*Config, error) {
	return InitializeConfigFile("")
}

// InitializeConfigFile is InitializeConfig reading the given file instead of
// searching the default locations. The file must exist.
func InitializeConfigFile(path string) (*Config, error) {
	v := viper.New()

	// 1. Set defaults
	setDefaults(v)

	// 2. Config file locations
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.catalog-importer")
		v.AddConfigPath(".catalog-importer")
		v.AddConfigPath(".")
	}

	// 3. Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 4. Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	// 5. Credentials come from the unprefixed variables the API console hands out
	if err := v.BindEnv("deliverect.client_id", "CLIENT_ID", EnvPrefix+"_DELIVERECT_CLIENT_ID"); err != nil {
		return nil, fmt.Errorf("failed to bind CLIENT_ID: %w", err)
	}
	if err := v.BindEnv("deliverect.client_secret", "CLIENT_SECRET", EnvPrefix+"_DELIVERECT_CLIENT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind CLIENT_SECRET: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 6. Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("csv.delimiter", ",")

	v.SetDefault("deliverect.base_url", "https://api.deliverect.io")
	v.SetDefault("deliverect.auth_url", "")
	v.SetDefault("deliverect.audience", "https://api.deliverect.com")
	v.SetDefault("deliverect.client_id", "")
	v.SetDefault("deliverect.client_secret", "")
	v.SetDefault("deliverect.developer_account_id", "690ca201b9c6f85ca05b6eb1")
	v.SetDefault("deliverect.timeout_seconds", 20)
	v.SetDefault("deliverect.requests_per_second", 5)
	v.SetDefault("deliverect.product_page_size", 500)

	v.SetDefault("import.concurrency", 1)
	v.SetDefault("import.max_attempts", 3)
	v.SetDefault("import.initial_backoff_ms", 500)
	v.SetDefault("import.max_backoff_ms", 10000)

	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "")
	v.SetDefault("report.errors_csv", "")
}

// validateConfig validates the configuration values
func validateConfig(config *Config) error {
	if _, err := logrus.ParseLevel(config.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", config.Log.Level)
	}

	if config.Log.Format != "text" && config.Log.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'text' or 'json')", config.Log.Format)
	}

	if len([]rune(config.CSV.Delimiter)) != 1 {
		return fmt.Errorf("CSV delimiter must be a single character, got: %s", config.CSV.Delimiter)
	}

	if config.Deliverect.BaseURL == "" {
		return fmt.Errorf("deliverect.base_url must not be empty")
	}
	if config.Deliverect.TimeoutSeconds < 1 || config.Deliverect.TimeoutSeconds > 300 {
		return fmt.Errorf("deliverect.timeout_seconds must be between 1 and 300, got: %d", config.Deliverect.TimeoutSeconds)
	}
	if config.Deliverect.RequestsPerSecond < 1 {
		return fmt.Errorf("deliverect.requests_per_second must be positive, got: %d", config.Deliverect.RequestsPerSecond)
	}
	if config.Deliverect.ProductPageSize < 1 {
		return fmt.Errorf("deliverect.product_page_size must be positive, got: %d", config.Deliverect.ProductPageSize)
	}

	if config.Import.Concurrency < 1 || config.Import.Concurrency > 32 {
		return fmt.Errorf("import.concurrency must be between 1 and 32, got: %d", config.Import.Concurrency)
	}
	if config.Import.MaxAttempts < 1 {
		return fmt.Errorf("import.max_attempts must be positive, got: %d", config.Import.MaxAttempts)
	}
	if config.Import.InitialBackoffMS < 0 || config.Import.MaxBackoffMS < config.Import.InitialBackoffMS {
		return fmt.Errorf("import backoff must satisfy 0 <= initial_backoff_ms <= max_backoff_ms, got: %d and %d",
			config.Import.InitialBackoffMS, config.Import.MaxBackoffMS)
	}

	switch strings.ToLower(config.Report.Format) {
	case "text", "json", "yaml", "yml":
	default:
		return fmt.Errorf("invalid report format: %s (must be 'text', 'json' or 'yaml')", config.Report.Format)
	}

	return nil
}

// ValidateCredentials reports whether the remote client can authenticate.
// Commands that stay offline skip this check.
func (c *Config) ValidateCredentials() error {
	if c.Deliverect.ClientID == "" || c.Deliverect.ClientSecret == "" {
		return fmt.Errorf("CLIENT_ID and CLIENT_SECRET are required to reach Deliverect")
	}
	return nil
}

// ConfigureLoggingFromConfig configures logging based on the Config struct
func ConfigureLoggingFromConfig(config *Config) *logrus.Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(strings.ToLower(config.Log.Level))
	if err != nil {
		logger.Warnf("Invalid log level '%s', using 'info'", config.Log.Level)
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if strings.ToLower(config.Log.Format) == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
