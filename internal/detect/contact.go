package detect

import (
	"github.com/sells-group/orgmap/internal/model"
)

// Contact linkage confidences.
const (
	ConfidenceStandardLookup = 0.90
	ConfidenceCustomLookup   = 0.85
	ConfidenceJunctionOnly   = 0.80
	ConfidenceLookupFallback = 0.40
)

// StandardJunction is the platform's own many-to-many contact relation.
const StandardJunction = "AccountContactRelation"

// defaultHouseholdLookup is the standard person-to-primary lookup.
const defaultHouseholdLookup = "AccountId"

// DetectContact finds how person records point at household records.
// A direct lookup wins; a junction is attached alongside when one exists.
func DetectContact(b *model.MetadataBundle, household string) model.ContactMapping {
	person := b.Person()
	out := model.ContactMapping{Object: person}
	junction := DetectJunction(b, household)

	if f := lookupTo(b, person, household); f != nil {
		out.HouseholdField = f.Name
		out.Confidence = ConfidenceCustomLookup
		if !f.Custom && household == b.Primary() {
			out.Confidence = ConfidenceStandardLookup
		}
		out.Junction = junction
		return out
	}
	if junction != nil {
		out.HouseholdField = defaultHouseholdLookup
		out.Junction = junction
		out.Confidence = ConfidenceJunctionOnly
		return out
	}

	out.HouseholdField = defaultHouseholdLookup
	out.Confidence = ConfidenceLookupFallback
	return out
}

// DetectJunction returns a junction object linking persons to households.
// The standard relation only applies when households live on the primary
// object; otherwise any described object with lookups to both qualifies.
func DetectJunction(b *model.MetadataBundle, household string) *model.Junction {
	person := b.Person()
	if household == b.Primary() && b.HasObject(StandardJunction) {
		return &model.Junction{
			Object:         StandardJunction,
			ContactField:   "ContactId",
			HouseholdField: defaultHouseholdLookup,
		}
	}
	for _, name := range describedObjects(b) {
		if name == person || name == household {
			continue
		}
		c := lookupTo(b, name, person)
		h := lookupTo(b, name, household)
		if c == nil || h == nil || c.Name == h.Name {
			continue
		}
		return &model.Junction{Object: name, ContactField: c.Name, HouseholdField: h.Name}
	}
	return nil
}

// lookupTo returns the first lookup on object that targets target. Standard
// fields are preferred over custom ones.
func lookupTo(b *model.MetadataBundle, object, target string) *model.FieldDescribe {
	d := b.Describe(object)
	if d == nil {
		return nil
	}
	var custom *model.FieldDescribe
	for i := range d.Fields {
		f := &d.Fields[i]
		if !f.References(target) {
			continue
		}
		if !f.Custom {
			return f
		}
		if custom == nil {
			custom = f
		}
	}
	return custom
}
