package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "orgmap.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "https://login.salesforce.com", cfg.Salesforce.LoginURL)
	assert.InDelta(t, 10.0, cfg.Salesforce.RateLimit, 0.001)
	assert.Equal(t, "Account", cfg.Discovery.PrimaryObject)
	assert.Equal(t, "Contact", cfg.Discovery.PersonObject)
	assert.Equal(t, "Type", cfg.Discovery.CategoryField)
	assert.Contains(t, cfg.Discovery.SubLedgerObjects, "FinServ__FinancialAccount__c")
	assert.Equal(t, 25, cfg.Discovery.MaxCustomObjects)
	assert.Equal(t, 4, cfg.Discovery.Concurrency)
	assert.Equal(t, 20*time.Second, cfg.Discovery.CallTimeout())
	assert.Equal(t, 3, cfg.Discovery.MaxAttempts)
	assert.InDelta(t, 0.70, cfg.Classify.ReviewOverall, 0.001)
	assert.InDelta(t, 0.60, cfg.Classify.ReviewHousehold, 0.001)
	assert.Equal(t, 50, cfg.Query.DefaultLimit)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/orgmap
log:
  level: debug
  format: console
discovery:
  concurrency: 8
  sub_ledger_objects: [Holding__c]
classify:
  review_overall: 0.8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/orgmap", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 8, cfg.Discovery.Concurrency)
	assert.Equal(t, []string{"Holding__c"}, cfg.Discovery.SubLedgerObjects)
	assert.InDelta(t, 0.8, cfg.Classify.ReviewOverall, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.6, cfg.Classify.ReviewHousehold, 0.001)
	assert.Equal(t, 25, cfg.Discovery.MaxCustomObjects)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("ORGMAP_STORE_DRIVER", "sqlite")
	t.Setenv("ORGMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ORGMAP_SERVER_PORT", "3000")
	t.Setenv("ORGMAP_DISCOVERY_CALL_TIMEOUT_SECS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Discovery.CallTimeout())
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Discovery.Concurrency = 4
	cfg.Discovery.MaxCustomObjects = 25
	cfg.Discovery.CallTimeoutSecs = 20
	cfg.Classify.ReviewOverall = 0.7
	cfg.Classify.ReviewHousehold = 0.6
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "orgmap.db"
	cfg.Server.Port = 8080
	return cfg
}

func withSalesforce(cfg *Config) *Config {
	cfg.Salesforce.ClientID = "client"
	cfg.Salesforce.Username = "integration@example.com"
	cfg.Salesforce.KeyPath = "/keys/sf.pem"
	return cfg
}

func TestValidateOffline(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("offline"))
}

func TestValidateDiscover_MissingCredentials(t *testing.T) {
	err := validDefaults().Validate("discover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "salesforce.client_id is required")
	assert.Contains(t, err.Error(), "salesforce.username is required")
	assert.Contains(t, err.Error(), "salesforce.key_path is required")

	assert.NoError(t, withSalesforce(validDefaults()).Validate("discover"))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" is not supported`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateServe(t *testing.T) {
	cfg := withSalesforce(validDefaults())
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"concurrency zero", func(c *Config) { c.Discovery.Concurrency = 0 }, "discovery.concurrency must be between 1 and 32"},
		{"concurrency high", func(c *Config) { c.Discovery.Concurrency = 33 }, "discovery.concurrency must be between 1 and 32"},
		{"negative custom objects", func(c *Config) { c.Discovery.MaxCustomObjects = -1 }, "discovery.max_custom_objects"},
		{"negative timeout", func(c *Config) { c.Discovery.CallTimeoutSecs = -1 }, "discovery.call_timeout_secs"},
		{"overall above one", func(c *Config) { c.Classify.ReviewOverall = 1.1 }, "classify.review_overall"},
		{"household negative", func(c *Config) { c.Classify.ReviewHousehold = -0.1 }, "classify.review_household"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("offline")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
