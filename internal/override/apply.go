package override

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/orgmap/internal/classify"
	"github.com/sells-group/orgmap/internal/detect"
	"github.com/sells-group/orgmap/internal/model"
)

// Apply returns a copy of base with the household, advisor and AUM portions
// rewritten from answers. Every answer must name a choice BuildChoices would
// offer for b; base is never modified.
func Apply(base *model.OrgMapping, b *model.MetadataBundle, answers Answers) (*model.OrgMapping, error) {
	if base == nil {
		return nil, model.NewValidationError("base", "mapping is required")
	}
	answers = answers.normalized()
	if answers.Empty() {
		return nil, model.NewValidationError("answers", "at least one answer is required")
	}
	if b == nil {
		b = &model.MetadataBundle{}
	}

	householdObject := base.Household.Object
	var household *Choice
	if answers.Household != "" {
		c, ok := Find(householdChoices(b), answers.Household)
		if !ok {
			return nil, unknownChoice("household", answers.Household)
		}
		household = &c
		householdObject = c.household.Object
	}

	choices := BuildChoicesFor(b, householdObject)
	var advisor, aum *Choice
	if answers.Advisor != "" {
		c, ok := Find(choices.Advisor, answers.Advisor)
		if !ok {
			return nil, unknownChoice("advisor", answers.Advisor)
		}
		advisor = &c
	}
	if answers.AUM != "" {
		c, ok := Find(choices.AUM, answers.AUM)
		if !ok {
			return nil, unknownChoice("aum", answers.AUM)
		}
		aum = &c
	}

	m := base.Clone()
	m.Source = model.SourceOverride

	if household != nil {
		applyHousehold(m, b, *household)
	}
	if advisor != nil {
		m.Household.AdvisorField = advisor.field
	}
	if aum != nil {
		a := *aum.aum
		a.Confidence = 1
		m.AUM = a
		m.Household.AUMField = detect.HouseholdAUMField(a, m.Household.Object)
	} else if household != nil && m.AUM.Source == model.AUMHouseholdField && m.AUM.Object != m.Household.Object {
		// The AUM field lived on the old household object.
		m.AUM = model.AUMMapping{Source: model.AUMNotFound, Confidence: detect.ConfidenceAUMNotFound}
		m.Household.AUMField = ""
	}

	m.RequiredFieldGaps = detect.DetectRequiredFieldGaps(b, m)
	m.FieldVisibility = detect.DetectFieldVisibility(b, m)
	m.Recompute()
	m.Warnings = classify.Warnings(b, m)
	if household != nil && !linksHousehold(b, m) {
		m.Warnings = append(m.Warnings, fmt.Sprintf("contact field %s.%s does not reference %s",
			m.Contact.Object, m.Contact.HouseholdField, m.Household.Object))
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	zap.L().Info("applied override",
		zap.String("tenant", m.TenantID),
		zap.String("household", answers.Household),
		zap.String("advisor", answers.Advisor),
		zap.String("aum", answers.AUM),
		zap.Float64("overall_confidence", m.OverallConfidence),
	)
	return m, nil
}

func applyHousehold(m *model.OrgMapping, b *model.MetadataBundle, c Choice) {
	p := *c.household
	p.Confidence = 1
	p.Evidence = "confirmed by override " + c.ID

	fields := detect.DetectHouseholdFields(b, p.Object)
	advisor := m.Household.AdvisorField
	if p.Object != m.Household.Object {
		advisor = fields.Advisor
	}

	m.Household = model.HouseholdMapping{
		Object:        p.Object,
		Pattern:       p.Type,
		RecordType:    p.RecordType,
		Category:      p.Category,
		AdvisorField:  advisor,
		AUMField:      m.Household.AUMField,
		TierField:     fields.Tier,
		StatusField:   fields.Status,
		UsesHierarchy: b.UsesHierarchy && p.Object == b.Primary(),
		Confidence:    1,
	}
	m.HouseholdPatterns = []model.HouseholdPattern{p}
	m.IsHybrid = false
}

// linksHousehold reports whether the contact mapping still reaches the
// household object, directly or through the junction.
func linksHousehold(b *model.MetadataBundle, m *model.OrgMapping) bool {
	if j := m.Contact.Junction; j != nil {
		if f := b.Describe(j.Object).Field(j.HouseholdField); f != nil && f.References(m.Household.Object) {
			return true
		}
	}
	d := b.Describe(m.Contact.Object)
	if d == nil {
		return true
	}
	return d.Field(m.Contact.HouseholdField).References(m.Household.Object)
}

func unknownChoice(field, id string) error {
	return model.NewValidationError(field, fmt.Sprintf("unknown choice %q", id))
}
