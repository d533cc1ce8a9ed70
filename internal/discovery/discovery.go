// Package discovery assembles a tenant's MetadataBundle from the CRM's
// describe, query and tooling APIs.
package discovery

import (
	"time"

	"github.com/sells-group/orgmap/internal/config"
	"github.com/sells-group/orgmap/internal/model"
	"github.com/sells-group/orgmap/internal/resilience"
)

// Config controls bundle assembly.
type Config struct {
	PrimaryObject    string
	PersonObject     string
	CategoryField    string
	SubLedgerObjects []string
	MaxCustomObjects int
	Concurrency      int
	CallTimeout      time.Duration
	Retry            resilience.RetryConfig
}

// ConfigFrom builds a Config from the application's discovery settings.
func ConfigFrom(c config.DiscoveryConfig) Config {
	retry := resilience.DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		retry.MaxAttempts = c.MaxAttempts
	}
	return Config{
		PrimaryObject:    c.PrimaryObject,
		PersonObject:     c.PersonObject,
		CategoryField:    c.CategoryField,
		SubLedgerObjects: c.SubLedgerObjects,
		MaxCustomObjects: c.MaxCustomObjects,
		Concurrency:      c.Concurrency,
		CallTimeout:      c.CallTimeout(),
		Retry:            retry,
	}
}

func (c Config) withDefaults() Config {
	if c.PrimaryObject == "" {
		c.PrimaryObject = model.DefaultPrimaryObject
	}
	if c.PersonObject == "" {
		c.PersonObject = model.DefaultPersonObject
	}
	if c.CategoryField == "" {
		c.CategoryField = model.DefaultCategoryField
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxCustomObjects < 0 {
		c.MaxCustomObjects = 0
	}
	return c
}

// knownPackages names managed packages by namespace prefix.
var knownPackages = map[string]string{
	"FinServ": "Financial Services Cloud",
}
