package detect

import (
	"github.com/sells-group/orgmap/internal/model"
)

// AUM source confidences.
const (
	ConfidenceAUMSubLedger    = 0.90
	ConfidenceAUMKnownField   = 0.85
	ConfidenceAUMCurrency     = 0.65
	ConfidenceAUMCustomObject = 0.60
	ConfidenceAUMNotFound     = 0.80
)

// DetectAUM finds where assets under management can be read, in order: a
// populated sub-ledger balance, a known rollup on the household, a currency
// field labeled like AUM, a keyword custom object.
func DetectAUM(b *model.MetadataBundle, household string) model.AUMMapping {
	if obj := b.SubLedgerObject; obj != "" && b.Count(obj) > 0 {
		if f := BalanceField(b.Describe(obj)); f != "" {
			return model.AUMMapping{
				Source:     model.AUMSubLedgerRollup,
				Object:     obj,
				Field:      f,
				Confidence: ConfidenceAUMSubLedger,
			}
		}
	}
	if f := KnownAUMField(b, household); f != "" {
		return model.AUMMapping{
			Source:     model.AUMHouseholdField,
			Object:     household,
			Field:      f,
			Confidence: ConfidenceAUMKnownField,
		}
	}
	if f := CurrencyAUMField(b, household); f != "" {
		return model.AUMMapping{
			Source:     model.AUMHouseholdField,
			Object:     household,
			Field:      f,
			Confidence: ConfidenceAUMCurrency,
		}
	}
	for _, m := range b.CustomObjectMatches {
		if m.Concept != model.ConceptAUM {
			continue
		}
		out := model.AUMMapping{
			Source:     model.AUMCustomObject,
			Object:     m.Name,
			Confidence: ConfidenceAUMCustomObject,
		}
		if fs := FieldsOfType(b, m.Name, model.FieldTypeCurrency); len(fs) > 0 {
			out.Field = fs[0].Name
		}
		return out
	}
	return model.AUMMapping{Source: model.AUMNotFound, Confidence: ConfidenceAUMNotFound}
}

// HouseholdAUMField returns the AUM field to record on the household mapping,
// which is only set when the source lives on the household object itself.
func HouseholdAUMField(aum model.AUMMapping, household string) string {
	if aum.Source == model.AUMHouseholdField && aum.Object == household {
		return aum.Field
	}
	return ""
}
