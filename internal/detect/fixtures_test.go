package detect

import (
	"github.com/sells-group/orgmap/internal/model"
)

func field(name, typ string, refs ...string) model.FieldDescribe {
	return model.FieldDescribe{
		Name:        name,
		Label:       name,
		Type:        typ,
		Custom:      len(name) > 3 && name[len(name)-3:] == "__c",
		ReferenceTo: refs,
		Nillable:    true,
		Createable:  true,
		Updateable:  true,
		Accessible:  true,
	}
}

func picklist(name string, values ...string) model.FieldDescribe {
	f := field(name, model.FieldTypePicklist)
	for _, v := range values {
		f.PicklistValues = append(f.PicklistValues, model.PicklistValue{Value: v, Label: v, Active: true})
	}
	return f
}

func accountDescribe(extra ...model.FieldDescribe) model.ObjectDescribe {
	fields := []model.FieldDescribe{
		field("Id", "id"),
		field("Name", model.FieldTypeString),
		field("OwnerId", model.FieldTypeReference, "User"),
		field("ParentId", model.FieldTypeReference, "Account"),
		field("CreatedById", model.FieldTypeReference, "User"),
	}
	return model.ObjectDescribe{
		Name:       "Account",
		Label:      "Account",
		Createable: true,
		Fields:     append(fields, extra...),
		RecordTypes: []model.RecordTypeInfo{
			{ID: "012000000000000AAA", Name: "Master", DeveloperName: "Master", Active: true, Master: true},
		},
	}
}

func contactDescribe(extra ...model.FieldDescribe) model.ObjectDescribe {
	fields := []model.FieldDescribe{
		field("Id", "id"),
		field("LastName", model.FieldTypeString),
		field("Email", model.FieldTypeEmail),
		field("AccountId", model.FieldTypeReference, "Account"),
	}
	return model.ObjectDescribe{
		Name:       "Contact",
		Label:      "Contact",
		Createable: true,
		Fields:     append(fields, extra...),
	}
}

// baseBundle is a plain tenant: Account and Contact with no household signal.
func baseBundle() *model.MetadataBundle {
	return &model.MetadataBundle{
		TenantID: "tenant-1",
		Objects: []model.ObjectInfo{
			{Name: "Account", Label: "Account", Queryable: true},
			{Name: "Contact", Label: "Contact", Queryable: true},
		},
		Describes: map[string]model.ObjectDescribe{
			"Account": accountDescribe(picklist("Type", "Customer", "Partner")),
			"Contact": contactDescribe(),
		},
		RecordCounts: map[string]int{"Account": 100, "Contact": 250},
	}
}

func withRecordType(b *model.MetadataBundle, id, dev string) {
	d := b.Describes["Account"]
	d.RecordTypes = append(d.RecordTypes, model.RecordTypeInfo{ID: id, Name: dev, DeveloperName: dev, Active: true})
	b.Describes["Account"] = d
}

func withDeclaredType(b *model.MetadataBundle, values ...string) {
	d := b.Describes["Account"]
	for i := range d.Fields {
		if d.Fields[i].Name == "Type" {
			d.Fields[i] = picklist("Type", values...)
		}
	}
	b.Describes["Account"] = d
}
