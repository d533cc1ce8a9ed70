package model

import (
	"time"
)

// Default object names used when a bundle does not name them.
const (
	DefaultPrimaryObject = "Account"
	DefaultPersonObject  = "Contact"
	DefaultCategoryField = "Type"
)

// Salesforce field types the detectors care about.
const (
	FieldTypeReference = "reference"
	FieldTypePicklist  = "picklist"
	FieldTypeCurrency  = "currency"
	FieldTypeDate      = "date"
	FieldTypeDateTime  = "datetime"
	FieldTypeString    = "string"
	FieldTypeEmail     = "email"
)

// MetadataBundle is a snapshot of one tenant's schema and sampled data.
// It is treated as read-only once assembled; nothing in the classification
// path mutates it.
type MetadataBundle struct {
	TenantID string `json:"tenant_id"`

	Objects       []ObjectInfo              `json:"objects"`
	PrimaryObject string                    `json:"primary_object,omitempty"`
	PersonObject  string                    `json:"person_object,omitempty"`
	Describes     map[string]ObjectDescribe `json:"describes"`

	SubLedgerObject     string              `json:"sub_ledger_object,omitempty"`
	Packages            []InstalledPackage  `json:"packages,omitempty"`
	CustomObjectMatches []CustomObjectMatch `json:"custom_object_matches,omitempty"`
	Automation          AutomationInventory `json:"automation"`

	RecordCounts     map[string]int `json:"record_counts,omitempty"`
	RecordTypeCounts map[string]int `json:"record_type_counts,omitempty"`

	CategoryField         string         `json:"category_field,omitempty"`
	SampledCategoryValues []SampledValue `json:"sampled_category_values,omitempty"`

	UsesHierarchy bool          `json:"uses_hierarchy"`
	Discovery     DiscoveryMeta `json:"discovery"`
}

// ObjectInfo is one entry of the tenant's object catalog.
type ObjectInfo struct {
	Name      string `json:"name"`
	Label     string `json:"label"`
	Custom    bool   `json:"custom"`
	Queryable bool   `json:"queryable"`
}

// ObjectDescribe is the field-level describe of a single object.
type ObjectDescribe struct {
	Name        string           `json:"name"`
	Label       string           `json:"label"`
	Custom      bool             `json:"custom"`
	Createable  bool             `json:"createable"`
	Fields      []FieldDescribe  `json:"fields"`
	RecordTypes []RecordTypeInfo `json:"record_types,omitempty"`
}

// FieldDescribe is the subset of a field describe the detectors read.
type FieldDescribe struct {
	Name              string          `json:"name"`
	Label             string          `json:"label"`
	Type              string          `json:"type"`
	Custom            bool            `json:"custom"`
	ReferenceTo       []string        `json:"reference_to,omitempty"`
	PicklistValues    []PicklistValue `json:"picklist_values,omitempty"`
	Nillable          bool            `json:"nillable"`
	Createable        bool            `json:"createable"`
	Updateable        bool            `json:"updateable"`
	Accessible        bool            `json:"accessible"`
	DefaultedOnCreate bool            `json:"defaulted_on_create"`
}

// PicklistValue is one declared value of an enumerated field.
type PicklistValue struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// RecordTypeInfo describes a record type (sub-type discriminator) of an object.
type RecordTypeInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DeveloperName string `json:"developer_name"`
	Active        bool   `json:"active"`
	Master        bool   `json:"master"`
}

// InstalledPackage is a managed package detected by its namespace prefix.
type InstalledPackage struct {
	Prefix  string   `json:"prefix"`
	Name    string   `json:"name,omitempty"`
	Objects []string `json:"objects"`
}

// Concept names a business concept the keyword scan looks for.
type Concept string

// Concepts matched against custom object names and labels.
const (
	ConceptHousehold  Concept = "household"
	ConceptAUM        Concept = "aum"
	ConceptFinancial  Concept = "financial_account"
	ConceptCompliance Concept = "compliance"
	ConceptPipeline   Concept = "pipeline"
)

// CustomObjectMatch is a custom object whose name or label matched a domain keyword.
type CustomObjectMatch struct {
	Name    string  `json:"name"`
	Label   string  `json:"label"`
	Concept Concept `json:"concept"`
	Keyword string  `json:"keyword"`
}

// AutomationInventory lists active automation, used only for risk scoring.
type AutomationInventory struct {
	Flows           []AutomationItem `json:"flows,omitempty"`
	Triggers        []AutomationItem `json:"triggers,omitempty"`
	ValidationRules []ValidationRule `json:"validation_rules,omitempty"`
}

// AutomationItem is an active flow or trigger bound to an object.
type AutomationItem struct {
	Name   string `json:"name"`
	Object string `json:"object"`
}

// ValidationRule is an active validation rule.
type ValidationRule struct {
	Name         string `json:"name"`
	Object       string `json:"object"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// SampledValue is a category value observed in record data with its frequency.
type SampledValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// DiscoveryMeta records how the bundle was assembled.
type DiscoveryMeta struct {
	Calls    int           `json:"calls"`
	Duration time.Duration `json:"duration"`
	Errors   []string      `json:"errors,omitempty"`
}

// Primary returns the primary party object name.
func (b *MetadataBundle) Primary() string {
	if b == nil || b.PrimaryObject == "" {
		return DefaultPrimaryObject
	}
	return b.PrimaryObject
}

// Person returns the person object name.
func (b *MetadataBundle) Person() string {
	if b == nil || b.PersonObject == "" {
		return DefaultPersonObject
	}
	return b.PersonObject
}

// Category returns the category field on the primary object.
func (b *MetadataBundle) Category() string {
	if b == nil || b.CategoryField == "" {
		return DefaultCategoryField
	}
	return b.CategoryField
}

// Describe returns the describe for the named object, or nil if it was not fetched.
func (b *MetadataBundle) Describe(name string) *ObjectDescribe {
	if b == nil || b.Describes == nil {
		return nil
	}
	d, ok := b.Describes[name]
	if !ok {
		return nil
	}
	return &d
}

// HasObject reports whether the object catalog contains name.
func (b *MetadataBundle) HasObject(name string) bool {
	if b == nil {
		return false
	}
	for _, o := range b.Objects {
		if o.Name == name {
			return true
		}
	}
	if _, ok := b.Describes[name]; ok {
		return true
	}
	return false
}

// Count returns the record count for name, zero when unknown.
func (b *MetadataBundle) Count(name string) int {
	if b == nil {
		return 0
	}
	return b.RecordCounts[name]
}

// Field returns the named field, or nil.
func (d *ObjectDescribe) Field(name string) *FieldDescribe {
	if d == nil {
		return nil
	}
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// References reports whether the field is a lookup to target.
func (f *FieldDescribe) References(target string) bool {
	if f == nil || f.Type != FieldTypeReference {
		return false
	}
	for _, r := range f.ReferenceTo {
		if r == target {
			return true
		}
	}
	return false
}

// Required reports whether the platform demands a value on create that it
// will not supply itself.
func (f *FieldDescribe) Required() bool {
	return !f.Nillable && f.Createable && !f.DefaultedOnCreate
}

// HasPicklistValue reports whether value is a declared active picklist value.
func (f *FieldDescribe) HasPicklistValue(value string) bool {
	for _, pv := range f.PicklistValues {
		if pv.Active && pv.Value == value {
			return true
		}
	}
	return false
}
