package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sells-group/orgmap/internal/model"
	"github.com/sells-group/orgmap/pkg/salesforce"
	"github.com/sells-group/orgmap/pkg/soql"
)

// MaxSampledValues caps the category values kept from the GROUP BY sample.
const MaxSampledValues = 50

func recordCountQuery(object string) string {
	return fmt.Sprintf("SELECT COUNT() FROM %s", soql.Identifier(object, model.DefaultPrimaryObject))
}

func hierarchyQuery(object string) string {
	return fmt.Sprintf("SELECT COUNT() FROM %s WHERE ParentId != null", soql.Identifier(object, model.DefaultPrimaryObject))
}

func recordTypeCountQuery(object string) string {
	return fmt.Sprintf(
		"SELECT RecordType.DeveloperName dev, COUNT(Id) cnt FROM %s WHERE RecordTypeId != null GROUP BY RecordType.DeveloperName",
		soql.Identifier(object, model.DefaultPrimaryObject),
	)
}

func categorySampleQuery(object, field string) string {
	f := soql.Identifier(field, model.DefaultCategoryField)
	return fmt.Sprintf(
		"SELECT %s val, COUNT(Id) cnt FROM %s WHERE %s != null GROUP BY %s ORDER BY COUNT(Id) DESC LIMIT %d",
		f, soql.Identifier(object, model.DefaultPrimaryObject), f, f, MaxSampledValues,
	)
}

const (
	flowQuery           = "SELECT ApiName, TriggerObjectOrEvent.QualifiedApiName FROM FlowDefinitionView WHERE IsActive = true"
	triggerQuery        = "SELECT Name, TableEnumOrId FROM ApexTrigger WHERE Status = 'Active'"
	validationRuleQuery = "SELECT ValidationName, EntityDefinition.QualifiedApiName, ErrorMessage FROM ValidationRule WHERE Active = true"
)

type entityRef struct {
	QualifiedAPIName string `json:"QualifiedApiName"`
}

type flowRecord struct {
	APIName              string     `json:"ApiName"`
	TriggerObjectOrEvent *entityRef `json:"TriggerObjectOrEvent"`
}

type triggerRecord struct {
	Name          string `json:"Name"`
	TableEnumOrID string `json:"TableEnumOrId"`
}

type validationRuleRecord struct {
	ValidationName   string     `json:"ValidationName"`
	EntityDefinition *entityRef `json:"EntityDefinition"`
	ErrorMessage     string     `json:"ErrorMessage"`
}

type toolingResult[T any] struct {
	Records []T `json:"records"`
}

func toolingRecords[T any](ctx context.Context, r *run, client salesforce.Client, op, query string) ([]T, error) {
	res, err := call(ctx, r, op, func(ctx context.Context) (toolingResult[T], error) {
		var out toolingResult[T]
		err := client.ToolingQuery(ctx, query, &out)
		return out, err
	})
	return res.Records, err
}

func (e *entityRef) name() string {
	if e == nil {
		return ""
	}
	return e.QualifiedAPIName
}

// automation reads active flows, triggers and validation rules. Each
// inventory is independent; a failure leaves only that list empty.
func (a *Assembler) automation(ctx context.Context, r *run) model.AutomationInventory {
	var inv model.AutomationInventory

	flows, err := toolingRecords[flowRecord](ctx, r, a.client, "automation flows", flowQuery)
	if err != nil {
		r.soft("automation flows", err)
	}
	for _, f := range flows {
		if obj := f.TriggerObjectOrEvent.name(); obj != "" {
			inv.Flows = append(inv.Flows, model.AutomationItem{Name: f.APIName, Object: obj})
		}
	}

	triggers, err := toolingRecords[triggerRecord](ctx, r, a.client, "automation triggers", triggerQuery)
	if err != nil {
		r.soft("automation triggers", err)
	}
	for _, t := range triggers {
		inv.Triggers = append(inv.Triggers, model.AutomationItem{Name: t.Name, Object: t.TableEnumOrID})
	}

	rules, err := toolingRecords[validationRuleRecord](ctx, r, a.client, "automation validation rules", validationRuleQuery)
	if err != nil {
		r.soft("automation validation rules", err)
	}
	for _, vr := range rules {
		inv.ValidationRules = append(inv.ValidationRules, model.ValidationRule{
			Name:         vr.ValidationName,
			Object:       vr.EntityDefinition.name(),
			ErrorMessage: vr.ErrorMessage,
		})
	}
	return inv
}

// recordTypeCounts returns record counts keyed by record type developer name.
func (a *Assembler) recordTypeCounts(ctx context.Context, r *run, object string) map[string]int {
	op := "record type counts " + object
	rows, err := a.aggregate(ctx, r, op, recordTypeCountQuery(object))
	if err != nil {
		r.soft(op, err)
		return nil
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		if dev := stringValue(row["dev"]); dev != "" {
			out[dev] = intValue(row["cnt"])
		}
	}
	return out
}

// sampleCategory returns the category values present in record data,
// most frequent first.
func (a *Assembler) sampleCategory(ctx context.Context, r *run, object, field string) []model.SampledValue {
	op := "sample " + object + "." + field
	rows, err := a.aggregate(ctx, r, op, categorySampleQuery(object, field))
	if err != nil {
		r.soft(op, err)
		return nil
	}
	var out []model.SampledValue
	for _, row := range rows {
		v := stringValue(row["val"])
		if v == "" {
			continue
		}
		out = append(out, model.SampledValue{Value: v, Count: intValue(row["cnt"])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func (a *Assembler) aggregate(ctx context.Context, r *run, op, query string) ([]map[string]any, error) {
	return call(ctx, r, op, func(ctx context.Context) ([]map[string]any, error) {
		return salesforce.QueryRecords(ctx, a.client, query)
	})
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return int(i)
	default:
		return 0
	}
}
