package salesforce

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/orgmap/pkg/soql"
)

// CreateRecord creates a record of the given object and returns the new Salesforce ID.
// The object name is validated because it usually comes from a discovered mapping.
func CreateRecord(ctx context.Context, c Client, sObjectName string, fields map[string]any) (string, error) {
	if !soql.ValidIdentifier(sObjectName) {
		return "", eris.New(fmt.Sprintf("sf: invalid object name %q", sObjectName))
	}
	if len(fields) == 0 {
		return "", eris.New("sf: no fields to create")
	}
	id, err := c.InsertOne(ctx, sObjectName, fields)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: create %s", sObjectName))
	}
	return id, nil
}

// CreateContact creates a person record linked to a household through
// householdField and returns the new Salesforce ID.
func CreateContact(ctx context.Context, c Client, sObjectName, householdField, householdID string, fields map[string]any) (string, error) {
	if householdID == "" {
		return "", eris.New("sf: household id is required for contact")
	}
	if !soql.ValidIdentifier(householdField) {
		return "", eris.New(fmt.Sprintf("sf: invalid household field %q", householdField))
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	fields[householdField] = householdID
	id, err := CreateRecord(ctx, c, sObjectName, fields)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: create contact for household %s", householdID))
	}
	return id, nil
}

// QueryRecords runs soql and returns the raw records.
func QueryRecords(ctx context.Context, c Client, soql string) ([]map[string]any, error) {
	var records []map[string]any
	if err := c.Query(ctx, soql, &records); err != nil {
		return nil, eris.Wrap(err, "sf: query records")
	}
	return records, nil
}
