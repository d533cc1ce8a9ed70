// Package override turns a low-confidence mapping into ranked choices for a
// person and applies the confirmed answers to a new mapping.
package override

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/orgmap/internal/detect"
	"github.com/sells-group/orgmap/internal/model"
)

// Permanent choice IDs.
const (
	ChoiceNone       = "none"
	ChoiceNotTracked = "not_tracked"
)

// Choice is one option offered to a person. Score orders the list and uses
// the same heuristics the classifier does.
type Choice struct {
	ID     string  `json:"id" yaml:"id"`
	Label  string  `json:"label" yaml:"label"`
	Detail string  `json:"detail,omitempty" yaml:"detail,omitempty"`
	Score  float64 `json:"score" yaml:"score"`

	household *model.HouseholdPattern
	aum       *model.AUMMapping
	field     string
}

// ChoiceSet holds the ranked choices for each overridable concept.
type ChoiceSet struct {
	HouseholdObject string   `json:"household_object"`
	Household       []Choice `json:"household"`
	Advisor         []Choice `json:"advisor"`
	AUM             []Choice `json:"aum"`
}

// Find returns the choice with id from list.
func Find(list []Choice, id string) (Choice, bool) {
	for _, c := range list {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// BuildChoices derives choices from b. Advisor and AUM choices are read from
// the household object the classifier would pick.
func BuildChoices(b *model.MetadataBundle) ChoiceSet {
	return BuildChoicesFor(b, detect.DetectHousehold(b).Object)
}

// BuildChoicesFor derives choices with advisor and AUM fields read from
// householdObject.
func BuildChoicesFor(b *model.MetadataBundle, householdObject string) ChoiceSet {
	if b == nil {
		b = &model.MetadataBundle{}
	}
	if householdObject == "" {
		householdObject = b.Primary()
	}
	return ChoiceSet{
		HouseholdObject: householdObject,
		Household:       householdChoices(b),
		Advisor:         advisorChoices(b, householdObject),
		AUM:             aumChoices(b, householdObject),
	}
}

func householdChoices(b *model.MetadataBundle) []Choice {
	primary := b.Primary()
	var out []Choice
	add := func(c Choice) {
		for i := range out {
			if out[i].ID == c.ID {
				if c.Score > out[i].Score {
					out[i] = c
				}
				return
			}
		}
		out = append(out, c)
	}

	if d := b.Describe(primary); d != nil {
		for _, rt := range d.RecordTypes {
			if !rt.Active || rt.Master {
				continue
			}
			score := 0.30
			if detect.IsHouseholdName(rt.DeveloperName) {
				score = detect.ConfidenceRecordType
			}
			add(Choice{
				ID:     "record_type:" + rt.DeveloperName,
				Label:  fmt.Sprintf("%s records of record type %s", primary, labelOr(rt.Name, rt.DeveloperName)),
				Detail: countDetail(b.RecordTypeCounts, rt.DeveloperName),
				Score:  score,
				household: &model.HouseholdPattern{
					Type:       model.PatternRecordType,
					Object:     primary,
					RecordType: &model.RecordTypeFilter{ID: rt.ID, DeveloperName: rt.DeveloperName},
				},
			})
		}
	}

	category := b.Category()
	cf := b.Describe(primary).Field(category)
	if cf != nil {
		for _, pv := range cf.PicklistValues {
			if !pv.Active {
				continue
			}
			score := 0.25
			if detect.IsHouseholdName(pv.Value) {
				score = detect.ConfidencePicklist
			}
			add(categoryChoice(primary, category, pv.Value, score, model.PatternPicklist, "declared value"))
		}
	}
	for _, sv := range b.SampledCategoryValues {
		if sv.Count <= 0 || sv.Value == "" {
			continue
		}
		declared := cf != nil && cf.HasPicklistValue(sv.Value)
		score := 0.20
		pattern := model.PatternSampledValue
		if declared {
			pattern = model.PatternPicklist
		}
		if detect.IsHouseholdName(sv.Value) {
			score = detect.ConfidenceSampledValue
			if declared {
				score = detect.ConfidencePicklist
			}
		}
		add(categoryChoice(primary, category, sv.Value, score, pattern, fmt.Sprintf("%d records", sv.Count)))
	}

	for _, pkg := range b.Packages {
		for _, obj := range pkg.Objects {
			if _, ok := detect.MatchAny(detect.Keywords[model.ConceptHousehold], obj); !ok {
				continue
			}
			add(objectChoice(obj, detect.ConfidencePackageObject, model.PatternPackageObject,
				fmt.Sprintf("from installed package %s", pkg.Prefix)))
		}
	}
	for _, m := range b.CustomObjectMatches {
		if m.Concept != model.ConceptHousehold {
			continue
		}
		add(objectChoice(m.Name, detect.ConfidenceCustomObject, model.PatternCustomObject,
			fmt.Sprintf("custom object %s", labelOr(m.Label, m.Name))))
	}

	rank(out)
	return append(out, Choice{
		ID:        ChoiceNone,
		Label:     fmt.Sprintf("Every %s record is a household (no filter)", primary),
		Score:     detect.ConfidenceFallback,
		household: &model.HouseholdPattern{Type: model.PatternManual, Object: primary},
	})
}

func categoryChoice(object, field, value string, score float64, pattern model.HouseholdPatternType, detail string) Choice {
	return Choice{
		ID:     fmt.Sprintf("category:%s:%s", field, value),
		Label:  fmt.Sprintf("%s records where %s = %s", object, field, value),
		Detail: detail,
		Score:  score,
		household: &model.HouseholdPattern{
			Type:     pattern,
			Object:   object,
			Category: &model.CategoryFilter{Field: field, Value: value},
		},
	}
}

func objectChoice(object string, score float64, pattern model.HouseholdPatternType, detail string) Choice {
	return Choice{
		ID:     "object:" + object,
		Label:  fmt.Sprintf("Every %s record", object),
		Detail: detail,
		Score:  score,
		household: &model.HouseholdPattern{
			Type:   pattern,
			Object: object,
		},
	}
}

func advisorChoices(b *model.MetadataBundle, object string) []Choice {
	var owner *Choice
	var out []Choice
	for _, f := range detect.ReferenceFields(b, object) {
		c := Choice{
			ID:     "field:" + f.Name,
			Label:  labelOr(f.Label, f.Name),
			Detail: strings.Join(f.ReferenceTo, ", "),
			field:  f.Name,
		}
		switch {
		case f.Name == detect.DefaultAdvisorField:
			c.Score = 1
			owner = &c
			continue
		case detect.IsAdvisorField(&f):
			c.Score = 0.80
		case f.References("User"):
			c.Score = 0.50
		default:
			c.Score = 0.20
		}
		out = append(out, c)
	}
	rank(out)
	if owner != nil {
		out = append([]Choice{*owner}, out...)
	}
	return out
}

func aumChoices(b *model.MetadataBundle, object string) []Choice {
	var out []Choice
	if sl := b.SubLedgerObject; sl != "" {
		if f := detect.BalanceField(b.Describe(sl)); f != "" {
			score := detect.ConfidenceSubLedgerEmpty
			if b.Count(sl) > 0 {
				score = detect.ConfidenceAUMSubLedger
			}
			out = append(out, Choice{
				ID:     fmt.Sprintf("sub_ledger:%s.%s", sl, f),
				Label:  fmt.Sprintf("Sum of %s.%s", sl, f),
				Detail: fmt.Sprintf("%d records", b.Count(sl)),
				Score:  score,
				aum:    &model.AUMMapping{Source: model.AUMSubLedgerRollup, Object: sl, Field: f},
			})
		}
	}

	known := detect.KnownAUMField(b, object)
	for _, f := range detect.FieldsOfType(b, object, model.FieldTypeCurrency) {
		score := 0.30
		switch {
		case f.Name == known:
			score = detect.ConfidenceAUMKnownField
		case detect.IsAUMField(&f):
			score = detect.ConfidenceAUMCurrency
		}
		out = append(out, Choice{
			ID:    "field:" + f.Name,
			Label: fmt.Sprintf("%s.%s", object, labelOr(f.Label, f.Name)),
			Score: score,
			aum:   &model.AUMMapping{Source: model.AUMHouseholdField, Object: object, Field: f.Name},
		})
	}

	rank(out)
	return append(out, Choice{
		ID:    ChoiceNotTracked,
		Label: "AUM is not tracked",
		aum:   &model.AUMMapping{Source: model.AUMNotFound},
	})
}

// rank orders choices by score, then label, then ID so the order never
// depends on describe order.
func rank(list []Choice) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Score != list[j].Score {
			return list[i].Score > list[j].Score
		}
		if list[i].Label != list[j].Label {
			return list[i].Label < list[j].Label
		}
		return list[i].ID < list[j].ID
	})
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

func countDetail(counts map[string]int, key string) string {
	n, ok := counts[key]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%d records", n)
}
