// Package query turns an OrgMapping into SOQL fragments and record payloads.
// Every value goes through pkg/soql escaping and every field name through
// identifier validation, since both can originate from tenant metadata.
package query

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/orgmap/internal/model"
	"github.com/sells-group/orgmap/pkg/soql"
)

// Built-in defaults used when no mapping has been established.
const (
	DefaultHouseholdObject       = model.DefaultPrimaryObject
	DefaultCategoryField         = model.DefaultCategoryField
	DefaultHouseholdValue        = "Household"
	DefaultContactObject         = model.DefaultPersonObject
	DefaultContactHouseholdField = "AccountId"
	DefaultAdvisorField          = "OwnerId"
	DefaultNameField             = "Name"
)

// Query limits.
const (
	DefaultLimit = 50
	MaxLimit     = 2000
)

var defaultFields = []string{"Id", "Name"}

// Builder reads a mapping, or the built-in defaults when the mapping is nil.
// The mapping must not be modified while the builder is in use.
type Builder struct {
	m *model.OrgMapping
}

// NewBuilder returns a builder over m. A nil m yields the defaults.
func NewBuilder(m *model.OrgMapping) *Builder {
	return &Builder{m: m}
}

// Mapping returns the mapping the builder reads, nil for defaults.
func (b *Builder) Mapping() *model.OrgMapping {
	return b.m
}

// HouseholdObject returns the object household records live on.
func (b *Builder) HouseholdObject() string {
	if b.m == nil {
		return DefaultHouseholdObject
	}
	return identifier(b.m.Household.Object, DefaultHouseholdObject, "household object")
}

// HouseholdFilter returns the boolean expression selecting household records
// on HouseholdObject, or "" when every record is a household. Hybrid
// mappings OR together every pattern on the household object.
func (b *Builder) HouseholdFilter() string {
	if b.m == nil {
		return fmt.Sprintf("%s = %s", DefaultCategoryField, soql.Quote(DefaultHouseholdValue))
	}
	h := b.m.Household
	if !b.m.IsHybrid {
		return clause(h.RecordType, h.Category)
	}

	var clauses []string
	seen := map[string]bool{}
	for _, p := range b.m.HouseholdPatterns {
		if p.Object != h.Object {
			continue
		}
		c := clause(p.RecordType, p.Category)
		if c == "" {
			// One pattern covers the whole object, so no filter narrows it.
			return ""
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		clauses = append(clauses, c)
	}
	switch len(clauses) {
	case 0:
		return clause(h.RecordType, h.Category)
	case 1:
		return clauses[0]
	default:
		return "(" + strings.Join(clauses, " OR ") + ")"
	}
}

// HouseholdWhere returns "WHERE <filter>", or "" when there is no filter.
func (b *Builder) HouseholdWhere() string {
	if f := b.HouseholdFilter(); f != "" {
		return "WHERE " + f
	}
	return ""
}

// HouseholdAnd returns "AND <filter>", or "" when there is no filter.
func (b *Builder) HouseholdAnd() string {
	if f := b.HouseholdFilter(); f != "" {
		return "AND " + f
	}
	return ""
}

// Discriminator is what a new household record must carry to be found by
// HouseholdFilter. At most one of RecordTypeID and Field is set.
type Discriminator struct {
	RecordTypeID string `json:"record_type_id,omitempty"`
	Field        string `json:"field,omitempty"`
	Value        string `json:"value,omitempty"`
}

// IsZero reports whether no discriminator is needed.
func (d Discriminator) IsZero() bool {
	return d.RecordTypeID == "" && d.Field == ""
}

// HouseholdCreateDiscriminator returns the record type ID or category value
// to set when creating a household, following the canonical pattern.
func (b *Builder) HouseholdCreateDiscriminator() Discriminator {
	if b.m == nil {
		return Discriminator{Field: DefaultCategoryField, Value: DefaultHouseholdValue}
	}
	h := b.m.Household
	switch {
	case h.RecordType != nil && h.RecordType.ID != "":
		return Discriminator{RecordTypeID: h.RecordType.ID}
	case h.Category != nil:
		return Discriminator{
			Field: identifier(h.Category.Field, DefaultCategoryField, "category field"),
			Value: h.Category.Value,
		}
	default:
		return Discriminator{}
	}
}

// ContactObject returns the person object.
func (b *Builder) ContactObject() string {
	if b.m == nil {
		return DefaultContactObject
	}
	return identifier(b.m.Contact.Object, DefaultContactObject, "contact object")
}

// ContactHouseholdField returns the person lookup to the household.
func (b *Builder) ContactHouseholdField() string {
	if b.m == nil {
		return DefaultContactHouseholdField
	}
	return identifier(b.m.Contact.HouseholdField, DefaultContactHouseholdField, "contact household field")
}

// ContactJunction returns the many-to-many junction, or nil. A junction with
// any invalid name is dropped rather than repaired.
func (b *Builder) ContactJunction() *model.Junction {
	if b.m == nil || b.m.Contact.Junction == nil {
		return nil
	}
	j := *b.m.Contact.Junction
	if !soql.ValidIdentifier(j.Object) || !soql.ValidIdentifier(j.ContactField) || !soql.ValidIdentifier(j.HouseholdField) {
		zap.L().Warn("query: dropping junction with invalid identifier", zap.String("object", j.Object))
		return nil
	}
	return &j
}

// AUMField returns the AUM field on the household object, or "".
func (b *Builder) AUMField() string {
	if b.m == nil || b.m.Household.AUMField == "" {
		return ""
	}
	return identifier(b.m.Household.AUMField, "", "aum field")
}

// AdvisorField returns the household's advisor lookup.
func (b *Builder) AdvisorField() string {
	if b.m == nil || b.m.Household.AdvisorField == "" {
		return DefaultAdvisorField
	}
	return identifier(b.m.Household.AdvisorField, DefaultAdvisorField, "advisor field")
}

// ListQuery returns the newest household records.
func (b *Builder) ListQuery(fields []string, limit int) string {
	parts := []string{
		"SELECT " + strings.Join(selectFields(fields), ", "),
		"FROM " + b.HouseholdObject(),
	}
	if w := b.HouseholdWhere(); w != "" {
		parts = append(parts, w)
	}
	parts = append(parts, "ORDER BY CreatedDate DESC", fmt.Sprintf("LIMIT %d", ClampLimit(limit)))
	return strings.Join(parts, " ")
}

// SearchQuery returns household records whose name contains term. SOQL LIKE
// is case-insensitive.
func (b *Builder) SearchQuery(term string, fields []string, limit int) string {
	if fp, ok := soql.Suspicious(term); ok {
		zap.L().Warn("query: search term looks like an injection attempt",
			zap.String("fingerprint", fp),
			zap.Int("length", len(term)),
		)
	}
	where := fmt.Sprintf("WHERE %s LIKE '%%%s%%'", DefaultNameField, soql.EscapeLike(term))
	if a := b.HouseholdAnd(); a != "" {
		where += " " + a
	}
	return strings.Join([]string{
		"SELECT " + strings.Join(selectFields(fields), ", "),
		"FROM " + b.HouseholdObject(),
		where,
		"ORDER BY CreatedDate DESC",
		fmt.Sprintf("LIMIT %d", ClampLimit(limit)),
	}, " ")
}

// CreateFields returns the payload for a new household record. Extra fields
// with invalid names are dropped; Name and the discriminator always win.
func (b *Builder) CreateFields(name string, extra map[string]any) map[string]any {
	out := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		if !soql.ValidIdentifier(k) || strings.Contains(k, ".") {
			zap.L().Warn("query: dropping create field with invalid name", zap.String("field", k))
			continue
		}
		out[k] = v
	}
	out[DefaultNameField] = name

	d := b.HouseholdCreateDiscriminator()
	switch {
	case d.RecordTypeID != "":
		out["RecordTypeId"] = d.RecordTypeID
	case d.Field != "":
		out[d.Field] = d.Value
	}
	return out
}

// ClampLimit bounds limit to [1, MaxLimit]; zero or negative means DefaultLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func clause(rt *model.RecordTypeFilter, cat *model.CategoryFilter) string {
	switch {
	case rt != nil && rt.DeveloperName != "":
		return "RecordType.DeveloperName = " + soql.Quote(rt.DeveloperName)
	case cat != nil:
		field := identifier(cat.Field, DefaultCategoryField, "category field")
		return fmt.Sprintf("%s = %s", field, soql.Quote(cat.Value))
	default:
		return ""
	}
}

func selectFields(fields []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if !soql.ValidIdentifier(f) {
			zap.L().Warn("query: dropping invalid select field", zap.String("field", f))
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return defaultFields
	}
	return out
}

func identifier(name, fallback, what string) string {
	id := soql.Identifier(name, fallback)
	if id != name {
		zap.L().Warn("query: replacing invalid identifier",
			zap.String("kind", what),
			zap.String("fallback", fallback),
		)
	}
	return id
}
