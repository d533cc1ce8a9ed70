package detect

import (
	"sort"

	"github.com/sells-group/orgmap/internal/model"
)

// Financial sub-account confidences.
const (
	ConfidenceSubLedgerActive    = 0.90
	ConfidenceSubLedgerEmpty     = 0.70
	ConfidenceSubLedgerNoBalance = 0.60
	ConfidenceSubLedgerAbsent    = 0.70
)

var (
	balanceWords = []string{"balance", "market value", "current value", "total value"}
	typeWords    = []string{"type", "account type"}
)

// DetectFinancialAccount describes the sub-ledger object, or reports with
// confidence that there is none.
func DetectFinancialAccount(b *model.MetadataBundle, household string) model.FinancialAccountMapping {
	obj := b.SubLedgerObject
	d := b.Describe(obj)
	if obj == "" || d == nil {
		return model.FinancialAccountMapping{Confidence: ConfidenceSubLedgerAbsent}
	}

	out := model.FinancialAccountMapping{
		Available:    true,
		Object:       obj,
		BalanceField: BalanceField(d),
	}
	if f := lookupTo(b, obj, household); f != nil {
		out.HouseholdField = f.Name
	}
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Type != model.FieldTypePicklist {
			continue
		}
		switch {
		case out.TypeField == "" && matches(typeWords, f):
			out.TypeField = f.Name
		case out.StatusField == "" && matches(statusWords, f):
			out.StatusField = f.Name
		}
	}

	switch {
	case out.BalanceField == "":
		out.Confidence = ConfidenceSubLedgerNoBalance
	case b.Count(obj) > 0:
		out.Confidence = ConfidenceSubLedgerActive
	default:
		out.Confidence = ConfidenceSubLedgerEmpty
	}
	return out
}

// BalanceField returns the first currency field that reads as a balance.
func BalanceField(d *model.ObjectDescribe) string {
	if d == nil {
		return ""
	}
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Type == model.FieldTypeCurrency && matches(balanceWords, f) {
			return f.Name
		}
	}
	return ""
}

// describedObjects returns the names of every described object, sorted so
// detectors that scan them stay deterministic.
func describedObjects(b *model.MetadataBundle) []string {
	if b == nil {
		return nil
	}
	names := make([]string, 0, len(b.Describes))
	for name := range b.Describes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
