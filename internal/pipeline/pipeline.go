// Package pipeline ties discovery, classification, override and query
// building to the mapping store. The CLI and the HTTP API both drive it.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orgmap/internal/classify"
	"github.com/sells-group/orgmap/internal/model"
	"github.com/sells-group/orgmap/internal/override"
	"github.com/sells-group/orgmap/internal/query"
	"github.com/sells-group/orgmap/internal/store"
	"github.com/sells-group/orgmap/pkg/salesforce"
)

var (
	// ErrNoBundle is returned when a tenant has no stored metadata bundle
	// and live discovery is unavailable.
	ErrNoBundle = eris.New("pipeline: no metadata bundle for tenant")
	// ErrNoMapping is returned when a tenant has no stored mapping.
	ErrNoMapping = eris.New("pipeline: no mapping for tenant")
	// ErrOffline is returned by operations that need the CRM when no client
	// is configured.
	ErrOffline = eris.New("pipeline: salesforce is not configured")
)

// Assembler fetches a tenant's metadata bundle.
type Assembler interface {
	Assemble(ctx context.Context, tenantID string) (*model.MetadataBundle, error)
}

// Pipeline orchestrates the mapping lifecycle for many tenants.
type Pipeline struct {
	store      store.Store
	registry   *query.Registry
	assembler  Assembler         // may be nil
	salesforce salesforce.Client // may be nil
	thresholds classify.Thresholds
	fields     []string
	now        func() time.Time
	newID      func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAssembler enables live discovery.
func WithAssembler(a Assembler) Option {
	return func(p *Pipeline) { p.assembler = a }
}

// WithSalesforce enables running queries and creating records.
func WithSalesforce(c salesforce.Client) Option {
	return func(p *Pipeline) { p.salesforce = c }
}

// WithThresholds overrides the manual review thresholds.
func WithThresholds(th classify.Thresholds) Option {
	return func(p *Pipeline) { p.thresholds = th }
}

// WithQueryFields sets the fields selected by household queries.
func WithQueryFields(fields []string) Option {
	return func(p *Pipeline) { p.fields = fields }
}

// WithClock overrides the time and ID sources.
func WithClock(now func() time.Time, newID func() string) Option {
	return func(p *Pipeline) {
		p.now = now
		p.newID = newID
	}
}

// New creates a Pipeline backed by st.
func New(st store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      st,
		registry:   query.NewRegistry(),
		thresholds: classify.DefaultThresholds(),
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the per-tenant mapping caches.
func (p *Pipeline) Registry() *query.Registry {
	return p.registry
}

// ClassifyResult is a fresh mapping plus whether it should be confirmed.
type ClassifyResult struct {
	Mapping     *model.OrgMapping   `json:"mapping"`
	NeedsReview bool                `json:"needs_review"`
	Choices     *override.ChoiceSet `json:"choices,omitempty"`
}

// Discover assembles a live bundle for tenantID and stores it.
func (p *Pipeline) Discover(ctx context.Context, tenantID string) (*model.MetadataBundle, error) {
	if p.assembler == nil {
		return nil, ErrOffline
	}
	b, err := p.assembler.Assemble(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: discover %s", tenantID)
	}
	if err := p.store.SaveBundle(ctx, b); err != nil {
		return nil, eris.Wrapf(err, "pipeline: save bundle %s", tenantID)
	}
	return b, nil
}

// Bundle returns the tenant's stored bundle, discovering one when none is
// stored and discovery is available.
func (p *Pipeline) Bundle(ctx context.Context, tenantID string) (*model.MetadataBundle, error) {
	b, err := p.store.GetBundle(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load bundle %s", tenantID)
	}
	if b != nil {
		return b, nil
	}
	if p.assembler == nil {
		return nil, eris.Wrapf(ErrNoBundle, "tenant %s", tenantID)
	}
	return p.Discover(ctx, tenantID)
}

// Classify classifies b for tenantID. A nil b is loaded with Bundle. When
// persist is set the bundle and mapping are stored and the tenant's cache
// is refreshed. Choices are attached whenever the mapping needs review.
func (p *Pipeline) Classify(ctx context.Context, tenantID string, b *model.MetadataBundle, persist bool) (*ClassifyResult, error) {
	if tenantID == "" {
		return nil, model.NewValidationError("tenant_id", "is required")
	}
	if b == nil {
		var err error
		if b, err = p.Bundle(ctx, tenantID); err != nil {
			return nil, err
		}
	}
	if b.TenantID == "" {
		cp := *b
		cp.TenantID = tenantID
		b = &cp
	}
	if b.TenantID != tenantID {
		return nil, model.NewValidationError("bundle.tenant_id", "does not match tenant "+tenantID)
	}

	m := classify.Classify(b, classify.Options{TenantID: tenantID, Now: p.now, NewID: p.newID})
	res := &ClassifyResult{Mapping: m, NeedsReview: classify.NeedsReview(m, p.thresholds)}
	if res.NeedsReview {
		cs := override.BuildChoicesFor(b, m.Household.Object)
		res.Choices = &cs
	}

	if persist {
		if err := p.store.SaveClassification(ctx, b, m); err != nil {
			return nil, eris.Wrapf(err, "pipeline: save classification %s", tenantID)
		}
		p.registry.For(tenantID).Set(m)
	}

	zap.L().Info("pipeline: classified tenant",
		zap.String("tenant", tenantID),
		zap.String("household", m.Household.Object),
		zap.String("pattern", string(m.Household.Pattern)),
		zap.Float64("overall_confidence", m.OverallConfidence),
		zap.Bool("needs_review", res.NeedsReview),
		zap.Bool("persisted", persist),
	)
	return res, nil
}

// Choices returns the override choices for tenantID. Advisor and AUM
// choices follow the stored mapping's household object when there is one.
func (p *Pipeline) Choices(ctx context.Context, tenantID string, b *model.MetadataBundle) (override.ChoiceSet, error) {
	if b == nil {
		var err error
		if b, err = p.Bundle(ctx, tenantID); err != nil {
			return override.ChoiceSet{}, err
		}
	}
	m, err := p.Mapping(ctx, tenantID)
	switch {
	case err == nil:
		return override.BuildChoicesFor(b, m.Household.Object), nil
	case errors.Is(err, ErrNoMapping):
		return override.BuildChoices(b), nil
	default:
		return override.ChoiceSet{}, err
	}
}

// Override applies answers to the tenant's stored mapping and stores the
// result as the tenant's new mapping.
func (p *Pipeline) Override(ctx context.Context, tenantID string, answers override.Answers) (*model.OrgMapping, error) {
	base, err := p.Mapping(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	b, err := p.store.GetBundle(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load bundle %s", tenantID)
	}
	if b == nil {
		return nil, eris.Wrapf(ErrNoBundle, "tenant %s", tenantID)
	}

	m, err := override.Apply(base, b, answers)
	if err != nil {
		return nil, err
	}
	m.ID = p.newID()
	m.GeneratedAt = p.now().UTC()
	if err := p.save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Mapping returns the tenant's current mapping, from cache when resident.
func (p *Pipeline) Mapping(ctx context.Context, tenantID string) (*model.OrgMapping, error) {
	cache := p.registry.For(tenantID)
	if m := cache.Get(); m != nil {
		return m, nil
	}
	m, err := p.store.GetMapping(ctx, tenantID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load mapping %s", tenantID)
	}
	if m == nil {
		return nil, eris.Wrapf(ErrNoMapping, "tenant %s", tenantID)
	}
	cache.Set(m)
	return m, nil
}

// DeleteMapping removes the tenant's mapping and clears its cache, so
// queries fall back to the built-in defaults.
func (p *Pipeline) DeleteMapping(ctx context.Context, tenantID string) error {
	p.registry.For(tenantID).Clear()
	p.registry.Drop(tenantID)
	if err := p.store.DeleteMapping(ctx, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return eris.Wrapf(ErrNoMapping, "tenant %s", tenantID)
		}
		return eris.Wrapf(err, "pipeline: delete mapping %s", tenantID)
	}
	return nil
}

// Tenants lists every tenant with a stored mapping.
func (p *Pipeline) Tenants(ctx context.Context) ([]store.MappingSummary, error) {
	return p.store.ListTenants(ctx)
}

// History lists the tenant's saved mappings, newest first.
func (p *Pipeline) History(ctx context.Context, tenantID string, limit int) ([]store.MappingSummary, error) {
	return p.store.MappingHistory(ctx, tenantID, limit)
}

// Builder returns a query builder for the tenant. A tenant without a
// mapping gets the built-in defaults.
func (p *Pipeline) Builder(ctx context.Context, tenantID string) (*query.Builder, error) {
	m, err := p.Mapping(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrNoMapping) {
			p.registry.Drop(tenantID)
			return query.NewBuilder(nil), nil
		}
		return nil, err
	}
	return query.NewBuilder(m), nil
}

func (p *Pipeline) save(ctx context.Context, m *model.OrgMapping) error {
	if err := p.store.SaveMapping(ctx, m); err != nil {
		return eris.Wrapf(err, "pipeline: save mapping %s", m.TenantID)
	}
	p.registry.For(m.TenantID).Set(m)
	return nil
}
