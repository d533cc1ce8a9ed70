package detect

import (
	"strings"

	"github.com/sells-group/orgmap/internal/model"
)

// DefaultAdvisorField is the owner lookup every standard object carries.
const DefaultAdvisorField = "OwnerId"

var (
	advisorWords = []string{"advisor", "adviser", "planner", "wealth manager", "relationship manager", "primary owner"}
	tierWords    = []string{"tier", "segment", "service level", "service model"}
	statusWords  = []string{"status"}

	// auditFields reference User but never name who services a household.
	auditFields = map[string]bool{
		"CreatedById":      true,
		"LastModifiedById": true,
	}
)

// knownAUMFields are rollup fields that managed packages and common
// implementations put on the household object, compared without a namespace.
var knownAUMFields = []string{
	"AUM__c",
	"Total_AUM__c",
	"Assets_Under_Management__c",
	"Total_Assets__c",
	"TotalFinancialAccounts__c",
}

// HouseholdFields is the set of optional field names found on the household object.
type HouseholdFields struct {
	Advisor string
	Tier    string
	Status  string
}

// DetectHouseholdFields looks for advisor, tier and status fields on object.
func DetectHouseholdFields(b *model.MetadataBundle, object string) HouseholdFields {
	d := b.Describe(object)
	if d == nil {
		return HouseholdFields{Advisor: DefaultAdvisorField}
	}
	var out HouseholdFields
	for i := range d.Fields {
		f := &d.Fields[i]
		switch {
		case out.Advisor == "" && advisorCandidate(f):
			out.Advisor = f.Name
		case out.Tier == "" && f.Type == model.FieldTypePicklist && matches(tierWords, f):
			out.Tier = f.Name
		case out.Status == "" && f.Type == model.FieldTypePicklist && matches(statusWords, f):
			out.Status = f.Name
		}
	}
	if out.Advisor == "" {
		out.Advisor = DefaultAdvisorField
	}
	return out
}

func advisorCandidate(f *model.FieldDescribe) bool {
	if f.Name == DefaultAdvisorField {
		return false
	}
	return IsAdvisorField(f)
}

// IsAdvisorField reports whether f is a User lookup named like a servicing advisor.
func IsAdvisorField(f *model.FieldDescribe) bool {
	if auditFields[f.Name] || !f.References("User") {
		return false
	}
	return matches(advisorWords, f)
}

// IsAUMField reports whether f is a currency field named like AUM.
func IsAUMField(f *model.FieldDescribe) bool {
	return f.Type == model.FieldTypeCurrency && matches(Keywords[model.ConceptAUM], f)
}

// KnownAUMField returns the first known AUM rollup field on object.
func KnownAUMField(b *model.MetadataBundle, object string) string {
	d := b.Describe(object)
	if d == nil {
		return ""
	}
	for _, want := range knownAUMFields {
		for _, f := range d.Fields {
			if stripNamespace(f.Name) == want {
				return f.Name
			}
		}
	}
	return ""
}

// CurrencyAUMField returns the first currency field on object whose name or
// label carries an AUM keyword.
func CurrencyAUMField(b *model.MetadataBundle, object string) string {
	d := b.Describe(object)
	if d == nil {
		return ""
	}
	for i := range d.Fields {
		f := &d.Fields[i]
		if IsAUMField(f) {
			return f.Name
		}
	}
	return ""
}

// ReferenceFields returns the lookup fields on object, in describe order.
func ReferenceFields(b *model.MetadataBundle, object string) []model.FieldDescribe {
	d := b.Describe(object)
	if d == nil {
		return nil
	}
	var out []model.FieldDescribe
	for _, f := range d.Fields {
		if f.Type == model.FieldTypeReference {
			out = append(out, f)
		}
	}
	return out
}

// FieldsOfType returns the fields on object with type typ, in describe order.
func FieldsOfType(b *model.MetadataBundle, object, typ string) []model.FieldDescribe {
	d := b.Describe(object)
	if d == nil {
		return nil
	}
	var out []model.FieldDescribe
	for _, f := range d.Fields {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func matches(words []string, f *model.FieldDescribe) bool {
	_, ok := MatchAny(words, f.Name, f.Label)
	return ok
}

func stripNamespace(name string) string {
	if ns := NamespacePrefix(name); ns != "" {
		return strings.TrimPrefix(name, ns+"__")
	}
	return name
}
