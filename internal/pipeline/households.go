package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orgmap/internal/model"
	"github.com/sells-group/orgmap/pkg/salesforce"
)

// HouseholdQuery is a generated household query and, when it was run, its
// records.
type HouseholdQuery struct {
	TenantID string           `json:"tenant_id"`
	Object   string           `json:"object"`
	SOQL     string           `json:"soql"`
	Records  []map[string]any `json:"records,omitempty"`
	Executed bool             `json:"executed"`
}

// Households builds the tenant's household list query, or a name search
// when term is non-empty. The query is run when execute is set.
func (p *Pipeline) Households(ctx context.Context, tenantID, term string, limit int, execute bool) (*HouseholdQuery, error) {
	qb, err := p.Builder(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := &HouseholdQuery{TenantID: tenantID, Object: qb.HouseholdObject()}
	if term = strings.TrimSpace(term); term != "" {
		out.SOQL = qb.SearchQuery(term, p.fields, limit)
	} else {
		out.SOQL = qb.ListQuery(p.fields, limit)
	}
	if !execute {
		return out, nil
	}
	if p.salesforce == nil {
		return nil, ErrOffline
	}

	records, err := salesforce.QueryRecords(ctx, p.salesforce, out.SOQL)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: query households for %s", tenantID)
	}
	out.Records = records
	out.Executed = true
	return out, nil
}

// CreateHousehold creates a household record shaped by the tenant's mapping
// and returns its ID.
func (p *Pipeline) CreateHousehold(ctx context.Context, tenantID, name string, extra map[string]any) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", model.NewValidationError("name", "is required")
	}
	if p.salesforce == nil {
		return "", ErrOffline
	}
	qb, err := p.Builder(ctx, tenantID)
	if err != nil {
		return "", err
	}

	id, err := salesforce.CreateRecord(ctx, p.salesforce, qb.HouseholdObject(), qb.CreateFields(name, extra))
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: create household for %s", tenantID)
	}
	zap.L().Info("pipeline: created household",
		zap.String("tenant", tenantID),
		zap.String("object", qb.HouseholdObject()),
		zap.String("id", id),
	)
	return id, nil
}

// CreateContact creates a person record linked to householdID through the
// mapped household lookup and returns its ID.
func (p *Pipeline) CreateContact(ctx context.Context, tenantID, householdID string, fields map[string]any) (string, error) {
	if strings.TrimSpace(householdID) == "" {
		return "", model.NewValidationError("household_id", "is required")
	}
	if p.salesforce == nil {
		return "", ErrOffline
	}
	qb, err := p.Builder(ctx, tenantID)
	if err != nil {
		return "", err
	}

	id, err := salesforce.CreateContact(ctx, p.salesforce, qb.ContactObject(), qb.ContactHouseholdField(), householdID, fields)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: create contact for %s", tenantID)
	}
	return id, nil
}
