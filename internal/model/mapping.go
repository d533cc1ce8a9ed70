package model

import (
	"fmt"
	"slices"
	"time"
)

// SchemaVersion is bumped whenever the persisted OrgMapping shape changes.
const SchemaVersion = 1

// MappingSource records what produced a mapping.
type MappingSource string

// Mapping sources.
const (
	SourceClassifier MappingSource = "classifier"
	SourceOverride   MappingSource = "override"
)

// HouseholdPatternType identifies the evidence a household match rests on.
type HouseholdPatternType string

// Household patterns in priority order.
const (
	PatternPackageObject HouseholdPatternType = "package_object"
	PatternRecordType    HouseholdPatternType = "record_type"
	PatternPicklist      HouseholdPatternType = "picklist"
	PatternSampledValue  HouseholdPatternType = "sampled_value"
	PatternCustomObject  HouseholdPatternType = "custom_object"
	PatternAllRecords    HouseholdPatternType = "all_records"
	PatternManual        HouseholdPatternType = "manual"
)

// AUMSource identifies where assets under management are read from.
type AUMSource string

// AUM sources.
const (
	AUMSubLedgerRollup AUMSource = "sub_ledger_rollup"
	AUMHouseholdField  AUMSource = "household_field"
	AUMCustomObject    AUMSource = "custom_object"
	AUMNotFound        AUMSource = "not_found"
)

// ComplianceType is the simplified shape of compliance tracking.
type ComplianceType string

// Compliance tracking types.
const (
	ComplianceCustomObject ComplianceType = "custom_object"
	ComplianceTaskBased    ComplianceType = "task_based"
	ComplianceNone         ComplianceType = "none"
)

// PipelineType is the simplified shape of the sales pipeline.
type PipelineType string

// Pipeline types.
const (
	PipelineOpportunity  PipelineType = "opportunity"
	PipelineCustomObject PipelineType = "custom_object"
	PipelineLead         PipelineType = "lead"
	PipelineNone         PipelineType = "none"
)

// RiskLevel grades automation that may interfere with record creation.
type RiskLevel string

// Risk levels.
const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// GapSeverity grades a required-field gap.
type GapSeverity string

// Gap severities.
const (
	GapBlocking GapSeverity = "blocking"
	GapWarning  GapSeverity = "warning"
)

// VisibilityIssue is the kind of field-visibility problem found.
type VisibilityIssue string

// Visibility issues.
const (
	VisibilityNotReadable VisibilityIssue = "not_readable"
	VisibilityNotFound    VisibilityIssue = "not_found"
)

// OrgMapping is the classifier's description of how one tenant models its
// business concepts. It is a plain JSON value so hosts can persist it.
type OrgMapping struct {
	SchemaVersion int           `json:"schema_version"`
	ID            string        `json:"id"`
	TenantID      string        `json:"tenant_id"`
	Source        MappingSource `json:"source"`
	GeneratedAt   time.Time     `json:"generated_at"`

	OverallConfidence float64 `json:"overall_confidence"`

	Household        HouseholdMapping        `json:"household"`
	Contact          ContactMapping          `json:"contact"`
	FinancialAccount FinancialAccountMapping `json:"financial_account"`
	AUM              AUMMapping              `json:"aum"`
	Compliance       ComplianceMapping       `json:"compliance"`
	Pipeline         PipelineMapping         `json:"pipeline"`
	AutomationRisk   AutomationRisk          `json:"automation_risk"`

	RequiredFieldGaps []FieldGap          `json:"required_field_gaps,omitempty"`
	FieldVisibility   []VisibilityWarning `json:"field_visibility,omitempty"`

	HouseholdPatterns []HouseholdPattern `json:"household_patterns,omitempty"`
	IsHybrid          bool               `json:"is_hybrid"`

	Warnings []string `json:"warnings,omitempty"`
}

// RecordTypeFilter narrows an object to one record type.
type RecordTypeFilter struct {
	ID            string `json:"id,omitempty"`
	DeveloperName string `json:"developer_name"`
}

// CategoryFilter narrows an object by an enumerated field value.
type CategoryFilter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// HouseholdMapping says where household records live. At most one of
// RecordType and Category is set; neither is set for a dedicated object.
type HouseholdMapping struct {
	Object        string               `json:"object"`
	Pattern       HouseholdPatternType `json:"pattern"`
	RecordType    *RecordTypeFilter    `json:"record_type,omitempty"`
	Category      *CategoryFilter      `json:"category,omitempty"`
	AdvisorField  string               `json:"advisor_field,omitempty"`
	AUMField      string               `json:"aum_field,omitempty"`
	TierField     string               `json:"tier_field,omitempty"`
	StatusField   string               `json:"status_field,omitempty"`
	UsesHierarchy bool                 `json:"uses_hierarchy"`
	Confidence    float64              `json:"confidence"`
}

// HouseholdPattern is one independently detected household representation.
type HouseholdPattern struct {
	Type       HouseholdPatternType `json:"type"`
	Object     string               `json:"object"`
	RecordType *RecordTypeFilter    `json:"record_type,omitempty"`
	Category   *CategoryFilter      `json:"category,omitempty"`
	Confidence float64              `json:"confidence"`
	Evidence   string               `json:"evidence,omitempty"`
}

// Junction is a many-to-many link between persons and households.
type Junction struct {
	Object         string `json:"object"`
	ContactField   string `json:"contact_field"`
	HouseholdField string `json:"household_field"`
}

// ContactMapping says how contacts are linked to households.
type ContactMapping struct {
	Object         string    `json:"object"`
	HouseholdField string    `json:"household_field"`
	Junction       *Junction `json:"junction,omitempty"`
	Confidence     float64   `json:"confidence"`
}

// FinancialAccountMapping describes the financial sub-ledger, if any.
type FinancialAccountMapping struct {
	Available      bool    `json:"available"`
	Object         string  `json:"object,omitempty"`
	HouseholdField string  `json:"household_field,omitempty"`
	BalanceField   string  `json:"balance_field,omitempty"`
	TypeField      string  `json:"type_field,omitempty"`
	StatusField    string  `json:"status_field,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// AUMMapping says where assets under management are read from.
type AUMMapping struct {
	Source     AUMSource `json:"source"`
	Object     string    `json:"object,omitempty"`
	Field      string    `json:"field,omitempty"`
	Confidence float64   `json:"confidence"`
}

// ComplianceMapping describes compliance tracking.
type ComplianceMapping struct {
	Type        ComplianceType `json:"type"`
	Object      string         `json:"object,omitempty"`
	DateField   string         `json:"date_field,omitempty"`
	StatusField string         `json:"status_field,omitempty"`
	Confidence  float64        `json:"confidence"`
}

// PipelineMapping describes the sales pipeline.
type PipelineMapping struct {
	Type        PipelineType `json:"type"`
	Object      string       `json:"object,omitempty"`
	StageField  string       `json:"stage_field,omitempty"`
	AmountField string       `json:"amount_field,omitempty"`
	Confidence  float64      `json:"confidence"`
}

// AutomationRisk summarizes automation that may block writes.
type AutomationRisk struct {
	Level                   RiskLevel        `json:"level"`
	FlowCount               int              `json:"flow_count"`
	TriggerCount            int              `json:"trigger_count"`
	ValidationRuleCount     int              `json:"validation_rule_count"`
	BlockingValidationRules []ValidationRule `json:"blocking_validation_rules,omitempty"`
}

// FieldGap lists required fields on an object the system cannot populate.
type FieldGap struct {
	Object   string      `json:"object"`
	Fields   []string    `json:"fields"`
	Severity GapSeverity `json:"severity"`
}

// VisibilityWarning flags a field the mapping reads that will silently come back empty.
type VisibilityWarning struct {
	Object string          `json:"object"`
	Field  string          `json:"field"`
	Issue  VisibilityIssue `json:"issue"`
	Impact string          `json:"impact"`
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c != c: // NaN
		return 0
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// OverallFrom returns the unweighted mean of the four headline concept
// confidences.
func OverallFrom(household, contact, financial, aum float64) float64 {
	return ClampConfidence((household + contact + financial + aum) / 4)
}

// Recompute refreshes OverallConfidence from the concept confidences.
func (m *OrgMapping) Recompute() {
	m.OverallConfidence = OverallFrom(
		m.Household.Confidence,
		m.Contact.Confidence,
		m.FinancialAccount.Confidence,
		m.AUM.Confidence,
	)
}

// Clone returns a deep copy of m.
func (m *OrgMapping) Clone() *OrgMapping {
	if m == nil {
		return nil
	}
	out := *m
	out.Household = m.Household.clone()
	if m.Contact.Junction != nil {
		j := *m.Contact.Junction
		out.Contact.Junction = &j
	}
	out.AutomationRisk.BlockingValidationRules = slices.Clone(m.AutomationRisk.BlockingValidationRules)
	if m.RequiredFieldGaps != nil {
		out.RequiredFieldGaps = make([]FieldGap, len(m.RequiredFieldGaps))
		for i, g := range m.RequiredFieldGaps {
			g.Fields = slices.Clone(g.Fields)
			out.RequiredFieldGaps[i] = g
		}
	}
	out.FieldVisibility = slices.Clone(m.FieldVisibility)
	if m.HouseholdPatterns != nil {
		out.HouseholdPatterns = make([]HouseholdPattern, len(m.HouseholdPatterns))
		for i, p := range m.HouseholdPatterns {
			p.RecordType, p.Category = cloneFilters(p.RecordType, p.Category)
			out.HouseholdPatterns[i] = p
		}
	}
	out.Warnings = slices.Clone(m.Warnings)
	return &out
}

func (h HouseholdMapping) clone() HouseholdMapping {
	h.RecordType, h.Category = cloneFilters(h.RecordType, h.Category)
	return h
}

func cloneFilters(rt *RecordTypeFilter, cat *CategoryFilter) (*RecordTypeFilter, *CategoryFilter) {
	if rt != nil {
		cp := *rt
		rt = &cp
	}
	if cat != nil {
		cp := *cat
		cat = &cp
	}
	return rt, cat
}

// Confidences returns every confidence carried by the mapping, keyed by concept.
func (m *OrgMapping) Confidences() map[string]float64 {
	out := map[string]float64{
		"overall":           m.OverallConfidence,
		"household":         m.Household.Confidence,
		"contact":           m.Contact.Confidence,
		"financial_account": m.FinancialAccount.Confidence,
		"aum":               m.AUM.Confidence,
		"compliance":        m.Compliance.Confidence,
		"pipeline":          m.Pipeline.Confidence,
	}
	for i, p := range m.HouseholdPatterns {
		out[fmt.Sprintf("household_pattern_%d", i)] = p.Confidence
	}
	return out
}

// Validate checks the structural invariants of a mapping.
func (m *OrgMapping) Validate() error {
	if m == nil {
		return NewValidationError("mapping", "is nil")
	}
	if m.Household.Object == "" {
		return NewValidationError("household.object", "must not be empty")
	}
	if m.Household.RecordType != nil && m.Household.Category != nil {
		return NewValidationError("household", "record_type and category are mutually exclusive")
	}
	if m.IsHybrid && len(m.HouseholdPatterns) < 2 {
		return NewValidationError("household_patterns", "hybrid mapping needs more than one pattern")
	}
	for name, c := range m.Confidences() {
		if c < 0 || c > 1 || c != c {
			return NewValidationError(name+".confidence", fmt.Sprintf("%v outside [0,1]", c))
		}
	}
	return nil
}
