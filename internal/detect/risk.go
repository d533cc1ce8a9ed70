package detect

import (
	"fmt"
	"slices"
	"sort"

	"github.com/sells-group/orgmap/internal/model"
)

// Automation risk thresholds.
const (
	HighRiskTriggers = 3
	HighRiskBlocking = 3
	HighRiskTotal    = 10
	MediumRiskTotal  = 3
)

const (
	readImpactAUM     = "AUM will read as zero"
	readImpactAdvisor = "advisor assignment will read as blank"
	readImpactEmail   = "contact email will read as blank"
)

// DetectAutomationRisk counts active automation on the household and person
// objects. Validation rules on those objects can reject the records this
// system creates, so they are reported as blocking.
func DetectAutomationRisk(b *model.MetadataBundle, household string) model.AutomationRisk {
	watched := map[string]bool{household: true, b.Person(): true}
	var out model.AutomationRisk
	for _, f := range b.Automation.Flows {
		if watched[f.Object] {
			out.FlowCount++
		}
	}
	for _, t := range b.Automation.Triggers {
		if watched[t.Object] {
			out.TriggerCount++
		}
	}
	for _, vr := range b.Automation.ValidationRules {
		if watched[vr.Object] {
			out.ValidationRuleCount++
			out.BlockingValidationRules = append(out.BlockingValidationRules, vr)
		}
	}

	blocking := len(out.BlockingValidationRules)
	total := out.FlowCount + out.TriggerCount + out.ValidationRuleCount
	switch {
	case out.TriggerCount >= HighRiskTriggers || blocking >= HighRiskBlocking || total >= HighRiskTotal:
		out.Level = model.RiskHigh
	case total >= MediumRiskTotal || blocking > 0:
		out.Level = model.RiskMedium
	default:
		out.Level = model.RiskLow
	}
	return out
}

// populatable lists the fields the system always knows how to fill on create.
var populatable = []string{
	"Name", "FirstName", "LastName", "OwnerId", "RecordTypeId",
	"Email", "Phone", "Type", "AccountId", "CurrencyIsoCode",
}

// DetectRequiredFieldGaps finds required fields the system cannot populate.
// The household and person objects are created directly, so their gaps
// block; the sub-ledger and junction objects only warn.
func DetectRequiredFieldGaps(b *model.MetadataBundle, m *model.OrgMapping) []model.FieldGap {
	known := slices.Clone(populatable)
	known = append(known,
		m.Household.AdvisorField, m.Household.TierField, m.Household.StatusField,
		m.Contact.HouseholdField,
	)
	if m.Household.Category != nil {
		known = append(known, m.Household.Category.Field)
	}

	type target struct {
		object   string
		severity model.GapSeverity
		extra    []string
	}
	targets := []target{
		{m.Household.Object, model.GapBlocking, nil},
		{m.Contact.Object, model.GapBlocking, nil},
	}
	if m.FinancialAccount.Available {
		targets = append(targets, target{m.FinancialAccount.Object, model.GapWarning, []string{m.FinancialAccount.HouseholdField}})
	}
	if j := m.Contact.Junction; j != nil {
		targets = append(targets, target{j.Object, model.GapWarning, []string{j.ContactField, j.HouseholdField}})
	}

	seen := map[string]bool{}
	var out []model.FieldGap
	for _, t := range targets {
		d := b.Describe(t.object)
		if d == nil || seen[t.object] {
			continue
		}
		seen[t.object] = true

		var missing []string
		for _, f := range d.Fields {
			if !f.Required() || slices.Contains(known, f.Name) || slices.Contains(t.extra, f.Name) {
				continue
			}
			missing = append(missing, f.Name)
		}
		if len(missing) == 0 {
			continue
		}
		sort.Strings(missing)
		out = append(out, model.FieldGap{Object: t.object, Fields: missing, Severity: t.severity})
	}
	return out
}

// DetectFieldVisibility checks that every field the mapping reads is
// readable. An unreadable field does not fail a query, it comes back empty.
func DetectFieldVisibility(b *model.MetadataBundle, m *model.OrgMapping) []model.VisibilityWarning {
	type read struct {
		object, field, impact string
	}
	var reads []read
	if m.AUM.Field != "" && m.AUM.Object != "" {
		reads = append(reads, read{m.AUM.Object, m.AUM.Field, readImpactAUM})
	}
	if m.Household.AdvisorField != "" {
		reads = append(reads, read{m.Household.Object, m.Household.AdvisorField, readImpactAdvisor})
	}
	reads = append(reads, read{m.Contact.Object, "Email", readImpactEmail})

	var out []model.VisibilityWarning
	for _, r := range reads {
		d := b.Describe(r.object)
		if d == nil {
			continue
		}
		f := d.Field(r.field)
		switch {
		case f == nil:
			out = append(out, model.VisibilityWarning{
				Object: r.object,
				Field:  r.field,
				Issue:  model.VisibilityNotFound,
				Impact: fmt.Sprintf("%s: field is missing or hidden", r.impact),
			})
		case !f.Accessible:
			out = append(out, model.VisibilityWarning{
				Object: r.object,
				Field:  r.field,
				Issue:  model.VisibilityNotReadable,
				Impact: r.impact,
			})
		}
	}
	return out
}
