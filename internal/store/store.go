// Package store persists resolved OrgMappings and the metadata bundles they
// were derived from, keyed by tenant.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orgmap/internal/model"
)

// ErrNotFound is returned when a tenant has nothing stored to delete.
var ErrNotFound = eris.New("store: not found")

// MappingSummary is one row of the tenant listing.
type MappingSummary struct {
	TenantID          string              `json:"tenant_id"`
	MappingID         string              `json:"mapping_id"`
	Source            model.MappingSource `json:"source"`
	OverallConfidence float64             `json:"overall_confidence"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Store defines the persistence interface for tenant mappings.
type Store interface {
	// Mappings. The current mapping is replaced on save; every saved
	// mapping is also appended to the tenant's history.
	SaveMapping(ctx context.Context, m *model.OrgMapping) error
	GetMapping(ctx context.Context, tenantID string) (*model.OrgMapping, error)
	DeleteMapping(ctx context.Context, tenantID string) error
	ListTenants(ctx context.Context) ([]MappingSummary, error)
	MappingHistory(ctx context.Context, tenantID string, limit int) ([]MappingSummary, error)

	// Bundles
	SaveBundle(ctx context.Context, b *model.MetadataBundle) error
	GetBundle(ctx context.Context, tenantID string) (*model.MetadataBundle, error)

	// SaveClassification stores a bundle and the mapping classified from it
	// in one transaction; either both are written or neither is.
	SaveClassification(ctx context.Context, b *model.MetadataBundle, m *model.OrgMapping) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// DefaultHistoryLimit bounds MappingHistory when no limit is given.
const DefaultHistoryLimit = 20

func validateBundle(b *model.MetadataBundle) error {
	if b == nil || b.TenantID == "" {
		return eris.New("store: bundle has no tenant id")
	}
	return nil
}

func validateMapping(m *model.OrgMapping) error {
	if m == nil {
		return eris.New("store: mapping is nil")
	}
	if m.TenantID == "" {
		return eris.New("store: mapping has no tenant id")
	}
	if err := m.Validate(); err != nil {
		return eris.Wrap(err, "store: invalid mapping")
	}
	return nil
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
