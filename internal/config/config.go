package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Classify   ClassifyConfig   `yaml:"classify" mapstructure:"classify"`
	Query      QueryConfig      `yaml:"query" mapstructure:"query"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID  string  `yaml:"client_id" mapstructure:"client_id"`
	Username  string  `yaml:"username" mapstructure:"username"`
	KeyPath   string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL  string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// DiscoveryConfig configures metadata bundle assembly.
type DiscoveryConfig struct {
	PrimaryObject    string   `yaml:"primary_object" mapstructure:"primary_object"`
	PersonObject     string   `yaml:"person_object" mapstructure:"person_object"`
	CategoryField    string   `yaml:"category_field" mapstructure:"category_field"`
	SubLedgerObjects []string `yaml:"sub_ledger_objects" mapstructure:"sub_ledger_objects"`
	MaxCustomObjects int      `yaml:"max_custom_objects" mapstructure:"max_custom_objects"`
	Concurrency      int      `yaml:"concurrency" mapstructure:"concurrency"`
	CallTimeoutSecs  int      `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	MaxAttempts      int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	BreakerThreshold int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
}

// CallTimeout returns the per-call deadline as a duration.
func (d DiscoveryConfig) CallTimeout() time.Duration {
	return time.Duration(d.CallTimeoutSecs) * time.Second
}

// ClassifyConfig holds the manual review thresholds.
type ClassifyConfig struct {
	ReviewOverall   float64 `yaml:"review_overall" mapstructure:"review_overall"`
	ReviewHousehold float64 `yaml:"review_household" mapstructure:"review_household"`
}

// QueryConfig configures the household query endpoints.
type QueryConfig struct {
	DefaultLimit int      `yaml:"default_limit" mapstructure:"default_limit"`
	Fields       []string `yaml:"fields" mapstructure:"fields"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ORGMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "orgmap.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 10.0)
	v.SetDefault("discovery.primary_object", "Account")
	v.SetDefault("discovery.person_object", "Contact")
	v.SetDefault("discovery.category_field", "Type")
	v.SetDefault("discovery.sub_ledger_objects", []string{"FinServ__FinancialAccount__c", "FinancialAccount", "Financial_Account__c"})
	v.SetDefault("discovery.max_custom_objects", 25)
	v.SetDefault("discovery.concurrency", 4)
	v.SetDefault("discovery.call_timeout_secs", 20)
	v.SetDefault("discovery.max_attempts", 3)
	v.SetDefault("discovery.breaker_threshold", 5)
	v.SetDefault("classify.review_overall", 0.70)
	v.SetDefault("classify.review_household", 0.60)
	v.SetDefault("query.default_limit", 50)
	v.SetDefault("query.fields", []string{"Id", "Name", "CreatedDate"})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes: "discover"
// needs Salesforce credentials, "store" needs a database, "serve" needs both
// plus a port, "offline" only checks the shared bounds.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "discover":
		errs = append(errs, c.salesforceErrors()...)
	case "store":
		errs = append(errs, c.storeErrors()...)
	case "serve":
		errs = append(errs, c.salesforceErrors()...)
		errs = append(errs, c.storeErrors()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "offline":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Discovery.Concurrency < 1 || c.Discovery.Concurrency > 32 {
		errs = append(errs, "discovery.concurrency must be between 1 and 32")
	}
	if c.Discovery.MaxCustomObjects < 0 {
		errs = append(errs, "discovery.max_custom_objects must be >= 0")
	}
	if c.Discovery.CallTimeoutSecs < 0 {
		errs = append(errs, "discovery.call_timeout_secs must be >= 0")
	}
	if c.Classify.ReviewOverall < 0 || c.Classify.ReviewOverall > 1 {
		errs = append(errs, "classify.review_overall must be between 0 and 1")
	}
	if c.Classify.ReviewHousehold < 0 || c.Classify.ReviewHousehold > 1 {
		errs = append(errs, "classify.review_household must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) salesforceErrors() []string {
	var errs []string
	if c.Salesforce.ClientID == "" {
		errs = append(errs, "salesforce.client_id is required")
	}
	if c.Salesforce.Username == "" {
		errs = append(errs, "salesforce.username is required")
	}
	if c.Salesforce.KeyPath == "" {
		errs = append(errs, "salesforce.key_path is required")
	}
	return errs
}

func (c *Config) storeErrors() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
