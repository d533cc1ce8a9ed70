package model

import (
	"strings"

	"github.com/sells-group/orgmap/pkg/salesforce"
)

// FromSObjectDescription converts a remote describe payload into an
// ObjectDescribe. Fields without a name and record types without a developer
// name are dropped here rather than carried into the detectors. Every field
// the platform returns is readable by the integration user (hidden fields are
// omitted from describes), so Accessible starts true.
func FromSObjectDescription(desc *salesforce.SObjectDescription) ObjectDescribe {
	if desc == nil {
		return ObjectDescribe{}
	}
	out := ObjectDescribe{
		Name:       desc.Name,
		Label:      desc.Label,
		Custom:     desc.Custom,
		Createable: desc.Createable,
		Fields:     make([]FieldDescribe, 0, len(desc.Fields)),
	}
	for _, f := range desc.Fields {
		if strings.TrimSpace(f.Name) == "" {
			continue
		}
		fd := FieldDescribe{
			Name:              f.Name,
			Label:             f.Label,
			Type:              strings.ToLower(f.Type),
			Custom:            f.Custom,
			Nillable:          f.Nillable,
			Createable:        f.Createable,
			Updateable:        f.Updateable,
			Accessible:        true,
			DefaultedOnCreate: f.DefaultedOnCreate,
		}
		for _, ref := range f.ReferenceTo {
			if ref != "" {
				fd.ReferenceTo = append(fd.ReferenceTo, ref)
			}
		}
		for _, pv := range f.PicklistValues {
			if pv.Value == "" {
				continue
			}
			fd.PicklistValues = append(fd.PicklistValues, PicklistValue{
				Value:  pv.Value,
				Label:  pv.Label,
				Active: pv.Active,
			})
		}
		out.Fields = append(out.Fields, fd)
	}
	for _, rt := range desc.RecordTypeInfos {
		if rt.DeveloperName == "" {
			continue
		}
		out.RecordTypes = append(out.RecordTypes, RecordTypeInfo{
			ID:            rt.RecordTypeID,
			Name:          rt.Name,
			DeveloperName: rt.DeveloperName,
			Active:        rt.Active,
			Master:        rt.Master,
		})
	}
	return out
}
