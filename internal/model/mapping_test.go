package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hybridMapping() *OrgMapping {
	return &OrgMapping{
		ID:       "m-1",
		TenantID: "t1",
		Household: HouseholdMapping{
			Object:     "Account",
			Pattern:    PatternRecordType,
			RecordType: &RecordTypeFilter{ID: "012H", DeveloperName: "Household"},
			Confidence: 0.95,
		},
		Contact: ContactMapping{
			Object:   "Contact",
			Junction: &Junction{Object: "AccountContactRelation", ContactField: "ContactId", HouseholdField: "AccountId"},
		},
		HouseholdPatterns: []HouseholdPattern{
			{Type: PatternRecordType, Object: "Account", RecordType: &RecordTypeFilter{DeveloperName: "Household"}},
			{Type: PatternPicklist, Object: "Account", Category: &CategoryFilter{Field: "Type", Value: "Household"}},
		},
		IsHybrid:          true,
		RequiredFieldGaps: []FieldGap{{Object: "Account", Fields: []string{"Region__c"}}},
		Warnings:          []string{"hybrid"},
	}
}

func TestClone_DeepCopy(t *testing.T) {
	m := hybridMapping()
	cp := m.Clone()
	require.Equal(t, m, cp)

	cp.Household.RecordType.DeveloperName = "Changed"
	cp.Contact.Junction.Object = "Changed"
	cp.HouseholdPatterns[1].Category.Value = "Changed"
	cp.RequiredFieldGaps[0].Fields[0] = "Changed"
	cp.Warnings[0] = "Changed"

	assert.Equal(t, "Household", m.Household.RecordType.DeveloperName)
	assert.Equal(t, "AccountContactRelation", m.Contact.Junction.Object)
	assert.Equal(t, "Household", m.HouseholdPatterns[1].Category.Value)
	assert.Equal(t, "Region__c", m.RequiredFieldGaps[0].Fields[0])
	assert.Equal(t, "hybrid", m.Warnings[0])
}

func TestClone_NonFiniteConfidence(t *testing.T) {
	m := hybridMapping()
	m.Household.Confidence = math.NaN()
	m.OverallConfidence = math.Inf(1)

	var cp *OrgMapping
	require.NotPanics(t, func() { cp = m.Clone() })
	assert.True(t, math.IsNaN(cp.Household.Confidence))
	assert.Error(t, cp.Validate())
}

func TestClone_Nil(t *testing.T) {
	var m *OrgMapping
	assert.Nil(t, m.Clone())
}

func TestOverallFrom(t *testing.T) {
	assert.InDelta(t, 0.75, OverallFrom(1, 0.5, 0.5, 1), 1e-9)
	assert.Equal(t, 0.0, OverallFrom(math.NaN(), 1, 1, 1))
}
