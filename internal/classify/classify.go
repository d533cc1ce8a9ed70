// Package classify assembles an OrgMapping from a MetadataBundle by running
// the detectors in priority order.
package classify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/orgmap/internal/detect"
	"github.com/sells-group/orgmap/internal/model"
)

// Options controls the non-deterministic parts of a mapping.
type Options struct {
	TenantID string
	Now      func() time.Time
	NewID    func() string
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func (o Options) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return uuid.NewString()
}

// Thresholds decide when a mapping should be confirmed by a person.
type Thresholds struct {
	Overall   float64
	Household float64
}

// DefaultThresholds returns the review thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{Overall: 0.70, Household: 0.60}
}

// NeedsReview reports whether m is uncertain enough to offer manual override.
func NeedsReview(m *model.OrgMapping, th Thresholds) bool {
	if m == nil {
		return true
	}
	return m.OverallConfidence < th.Overall || m.Household.Confidence < th.Household
}

// Classify builds the canonical mapping for b. It never fails: absence of
// evidence yields a low-confidence fallback.
func Classify(b *model.MetadataBundle, opts Options) *model.OrgMapping {
	if b == nil {
		b = &model.MetadataBundle{}
	}
	tenant := opts.TenantID
	if tenant == "" {
		tenant = b.TenantID
	}
	log := zap.L().With(zap.String("tenant", tenant))

	m := &model.OrgMapping{
		SchemaVersion: model.SchemaVersion,
		ID:            opts.newID(),
		TenantID:      tenant,
		Source:        model.SourceClassifier,
		GeneratedAt:   opts.now(),
	}

	canonical := detect.DetectHousehold(b)
	m.Household = householdFrom(canonical)
	m.Household.UsesHierarchy = b.UsesHierarchy && m.Household.Object == b.Primary()

	hf := detect.DetectHouseholdFields(b, m.Household.Object)
	m.Household.AdvisorField = hf.Advisor
	m.Household.TierField = hf.Tier
	m.Household.StatusField = hf.Status

	m.Contact = detect.DetectContact(b, m.Household.Object)
	m.FinancialAccount = detect.DetectFinancialAccount(b, m.Household.Object)
	m.AUM = detect.DetectAUM(b, m.Household.Object)
	m.Household.AUMField = detect.HouseholdAUMField(m.AUM, m.Household.Object)
	m.Compliance = detect.DetectCompliance(b)
	m.Pipeline = detect.DetectPipeline(b)
	m.AutomationRisk = detect.DetectAutomationRisk(b, m.Household.Object)

	applyPatterns(m, canonical, detect.DetectHouseholdPatterns(b))

	m.RequiredFieldGaps = detect.DetectRequiredFieldGaps(b, m)
	m.FieldVisibility = detect.DetectFieldVisibility(b, m)

	m.Recompute()
	m.Warnings = Warnings(b, m)

	log.Info("classified tenant",
		zap.String("household_object", m.Household.Object),
		zap.String("pattern", string(m.Household.Pattern)),
		zap.Bool("hybrid", m.IsHybrid),
		zap.Float64("overall_confidence", m.OverallConfidence),
		zap.Int("warnings", len(m.Warnings)),
	)
	return m
}

func householdFrom(p model.HouseholdPattern) model.HouseholdMapping {
	h := model.HouseholdMapping{
		Object:     p.Object,
		Pattern:    p.Type,
		Confidence: model.ClampConfidence(p.Confidence),
	}
	if p.RecordType != nil {
		rt := *p.RecordType
		h.RecordType = &rt
	}
	if p.Category != nil {
		c := *p.Category
		h.Category = &c
	}
	return h
}

// applyPatterns records every household match at or above the hybrid floor.
// The rules run in the same order for both views, so the canonical pattern
// leads the list whenever any rule matched.
func applyPatterns(m *model.OrgMapping, canonical model.HouseholdPattern, all []model.HouseholdPattern) {
	if len(all) > 0 && all[0].Type != canonical.Type {
		zap.L().Warn("canonical household pattern is not first in the exhaustive list",
			zap.String("canonical", string(canonical.Type)),
			zap.String("first", string(all[0].Type)),
		)
	}
	m.HouseholdPatterns = all
	m.IsHybrid = len(all) > 1
}

// Warnings lists what a reviewer should know about m before trusting it.
func Warnings(b *model.MetadataBundle, m *model.OrgMapping) []string {
	var out []string
	if m.Household.Pattern == model.PatternAllRecords {
		out = append(out, fmt.Sprintf("no household pattern found; treating every %s record as a household", m.Household.Object))
	}
	if m.IsHybrid {
		out = append(out, fmt.Sprintf("hybrid household configuration: %d patterns detected", len(m.HouseholdPatterns)))
		for _, p := range m.HouseholdPatterns[1:] {
			if p.Object != m.Household.Object {
				out = append(out, fmt.Sprintf("household pattern %s on %s is not on the canonical object %s and is excluded from queries",
					p.Type, p.Object, m.Household.Object))
			}
		}
	}
	if b != nil && len(b.Discovery.Errors) > 0 {
		out = append(out, fmt.Sprintf("discovery was incomplete: %d calls failed", len(b.Discovery.Errors)))
	}
	if m.AutomationRisk.Level == model.RiskHigh {
		out = append(out, fmt.Sprintf("high automation risk: %d flows, %d triggers, %d validation rules",
			m.AutomationRisk.FlowCount, m.AutomationRisk.TriggerCount, m.AutomationRisk.ValidationRuleCount))
	}
	for _, g := range m.RequiredFieldGaps {
		if g.Severity == model.GapBlocking {
			out = append(out, fmt.Sprintf("%s requires fields that cannot be populated: %v", g.Object, g.Fields))
		}
	}
	for _, v := range m.FieldVisibility {
		out = append(out, fmt.Sprintf("%s.%s is %s: %s", v.Object, v.Field, v.Issue, v.Impact))
	}
	return out
}
