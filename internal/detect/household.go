package detect

import (
	"fmt"

	"github.com/sells-group/orgmap/internal/model"
)

// Base confidences for household evidence. They reflect how strongly the
// evidence is declared, not how much data backs it.
const (
	ConfidencePackageObject = 0.95
	ConfidenceRecordType    = 0.95
	ConfidencePicklist      = 0.85
	ConfidenceSampledValue  = 0.90
	ConfidenceCustomObject  = 0.65
	ConfidenceFallback      = 0.40

	// HybridFloor is the minimum confidence for a pattern to count toward
	// hybrid detection.
	HybridFloor = 0.5
)

// HouseholdRule is one entry of the ordered household detector list.
type HouseholdRule struct {
	Pattern    model.HouseholdPatternType
	Confidence float64
	Match      func(b *model.MetadataBundle) (model.HouseholdPattern, bool)
}

// householdRules is consumed twice: short-circuited for the canonical
// answer and exhaustively for hybrid detection, so both views agree.
var householdRules = []HouseholdRule{
	{model.PatternPackageObject, ConfidencePackageObject, matchPackageObject},
	{model.PatternRecordType, ConfidenceRecordType, matchRecordType},
	{model.PatternPicklist, ConfidencePicklist, matchDeclaredPicklist},
	{model.PatternSampledValue, ConfidenceSampledValue, matchSampledValue},
	{model.PatternCustomObject, ConfidenceCustomObject, matchCustomObject},
}

// HouseholdRules returns the household rules in priority order.
func HouseholdRules() []HouseholdRule {
	out := make([]HouseholdRule, len(householdRules))
	copy(out, householdRules)
	return out
}

// DetectHousehold returns the first matching household pattern in priority
// order, or the all-records fallback on the primary object.
func DetectHousehold(b *model.MetadataBundle) model.HouseholdPattern {
	for _, r := range householdRules {
		if p, ok := r.run(b); ok {
			return p
		}
	}
	return FallbackHousehold(b)
}

// DetectHouseholdPatterns runs every rule without short-circuiting and
// returns each match at or above HybridFloor, in priority order.
func DetectHouseholdPatterns(b *model.MetadataBundle) []model.HouseholdPattern {
	var out []model.HouseholdPattern
	for _, r := range householdRules {
		p, ok := r.run(b)
		if !ok || p.Confidence < HybridFloor {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FallbackHousehold treats every record of the primary object as a household.
func FallbackHousehold(b *model.MetadataBundle) model.HouseholdPattern {
	return model.HouseholdPattern{
		Type:       model.PatternAllRecords,
		Object:     b.Primary(),
		Confidence: ConfidenceFallback,
		Evidence:   "no household pattern found",
	}
}

func (r HouseholdRule) run(b *model.MetadataBundle) (model.HouseholdPattern, bool) {
	if b == nil {
		return model.HouseholdPattern{}, false
	}
	p, ok := r.Match(b)
	if !ok {
		return model.HouseholdPattern{}, false
	}
	p.Type = r.Pattern
	p.Confidence = model.ClampConfidence(r.Confidence)
	return p, true
}

func matchPackageObject(b *model.MetadataBundle) (model.HouseholdPattern, bool) {
	for _, pkg := range b.Packages {
		for _, obj := range pkg.Objects {
			if _, ok := MatchAny(Keywords[model.ConceptHousehold], obj, objectLabel(b, obj)); ok {
				return model.HouseholdPattern{
					Object:   obj,
					Evidence: fmt.Sprintf("installed package %s declares %s", pkg.Prefix, obj),
				}, true
			}
		}
	}
	return model.HouseholdPattern{}, false
}

func matchRecordType(b *model.MetadataBundle) (model.HouseholdPattern, bool) {
	d := b.Describe(b.Primary())
	if d == nil {
		return model.HouseholdPattern{}, false
	}
	for _, rt := range d.RecordTypes {
		if !rt.Active || rt.Master || !householdRe.MatchString(rt.DeveloperName) {
			continue
		}
		evidence := fmt.Sprintf("active record type %s", rt.DeveloperName)
		if n, ok := b.RecordTypeCounts[rt.DeveloperName]; ok {
			evidence = fmt.Sprintf("%s (%d records)", evidence, n)
		}
		return model.HouseholdPattern{
			Object:     b.Primary(),
			RecordType: &model.RecordTypeFilter{ID: rt.ID, DeveloperName: rt.DeveloperName},
			Evidence:   evidence,
		}, true
	}
	return model.HouseholdPattern{}, false
}

func matchDeclaredPicklist(b *model.MetadataBundle) (model.HouseholdPattern, bool) {
	f := b.Describe(b.Primary()).Field(b.Category())
	if f == nil {
		return model.HouseholdPattern{}, false
	}
	for _, pv := range f.PicklistValues {
		if !pv.Active || !householdRe.MatchString(pv.Value) {
			continue
		}
		return model.HouseholdPattern{
			Object:   b.Primary(),
			Category: &model.CategoryFilter{Field: f.Name, Value: pv.Value},
			Evidence: fmt.Sprintf("declared %s value %q", f.Name, pv.Value),
		}, true
	}
	return model.HouseholdPattern{}, false
}

// matchSampledValue catches unrestricted picklists: the value is in the data
// but was never declared on the field.
func matchSampledValue(b *model.MetadataBundle) (model.HouseholdPattern, bool) {
	f := b.Describe(b.Primary()).Field(b.Category())
	for _, sv := range b.SampledCategoryValues {
		if sv.Count <= 0 || !householdRe.MatchString(sv.Value) {
			continue
		}
		if f != nil && f.HasPicklistValue(sv.Value) {
			continue
		}
		return model.HouseholdPattern{
			Object:   b.Primary(),
			Category: &model.CategoryFilter{Field: b.Category(), Value: sv.Value},
			Evidence: fmt.Sprintf("%s value %q observed in %d records but not declared", b.Category(), sv.Value, sv.Count),
		}, true
	}
	return model.HouseholdPattern{}, false
}

func matchCustomObject(b *model.MetadataBundle) (model.HouseholdPattern, bool) {
	for _, m := range b.CustomObjectMatches {
		if m.Concept != model.ConceptHousehold || packageObject(b, m.Name) {
			continue
		}
		return model.HouseholdPattern{
			Object:   m.Name,
			Evidence: fmt.Sprintf("custom object %s matched keyword %q", m.Name, m.Keyword),
		}, true
	}
	return model.HouseholdPattern{}, false
}

func objectLabel(b *model.MetadataBundle, name string) string {
	for _, o := range b.Objects {
		if o.Name == name {
			return o.Label
		}
	}
	if d := b.Describe(name); d != nil {
		return d.Label
	}
	return ""
}

func packageObject(b *model.MetadataBundle, name string) bool {
	for _, pkg := range b.Packages {
		for _, obj := range pkg.Objects {
			if obj == name {
				return true
			}
		}
	}
	return false
}
