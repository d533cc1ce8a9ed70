package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orgmap/internal/config"
	"github.com/sells-group/orgmap/internal/detect"
	"github.com/sells-group/orgmap/internal/model"
	"github.com/sells-group/orgmap/internal/resilience"
	"github.com/sells-group/orgmap/pkg/salesforce"
)

// mockClient implements salesforce.Client for testing.
type mockClient struct {
	queryFn           func(ctx context.Context, soql string, out any) error
	queryCountFn      func(ctx context.Context, soql string) (int, error)
	toolingQueryFn    func(ctx context.Context, soql string, out any) error
	describeGlobalFn  func(ctx context.Context) ([]salesforce.SObjectSummary, error)
	describeSObjectFn func(ctx context.Context, name string) (*salesforce.SObjectDescription, error)
}

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockClient) QueryCount(ctx context.Context, soql string) (int, error) {
	if m.queryCountFn != nil {
		return m.queryCountFn(ctx, soql)
	}
	return 0, nil
}

func (m *mockClient) ToolingQuery(ctx context.Context, soql string, out any) error {
	if m.toolingQueryFn != nil {
		return m.toolingQueryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockClient) DescribeGlobal(ctx context.Context) ([]salesforce.SObjectSummary, error) {
	if m.describeGlobalFn != nil {
		return m.describeGlobalFn(ctx)
	}
	return nil, nil
}

func (m *mockClient) DescribeSObject(ctx context.Context, name string) (*salesforce.SObjectDescription, error) {
	if m.describeSObjectFn != nil {
		return m.describeSObjectFn(ctx, name)
	}
	return &salesforce.SObjectDescription{Name: name, Label: name}, nil
}

func (m *mockClient) InsertOne(_ context.Context, _ string, _ map[string]any) (string, error) {
	return "", errors.New("not supported")
}

func testCatalog() []salesforce.SObjectSummary {
	return []salesforce.SObjectSummary{
		{Name: "Account", Label: "Account", Queryable: true},
		{Name: "Contact", Label: "Contact", Queryable: true},
		{Name: "Opportunity", Label: "Opportunity", Queryable: true},
		{Name: "Task", Label: "Task", Queryable: true},
		{Name: "AccountContactRelation", Label: "Account Contact Relationship", Queryable: true},
		{Name: "FinServ__FinancialAccount__c", Label: "Financial Account", Custom: true, Queryable: true},
		{Name: "FinServ__AssetsAndLiabilities__c", Label: "Assets and Liabilities", Custom: true, Queryable: true},
		{Name: "Wealth_Household__c", Label: "Household", Custom: true, Queryable: true},
		{Name: "Maximum_Limit__c", Label: "Maximum Limit", Custom: true, Queryable: true},
	}
}

func accountDescribe() *salesforce.SObjectDescription {
	return &salesforce.SObjectDescription{
		Name:  "Account",
		Label: "Account",
		Fields: []salesforce.SObjectField{
			{Name: "Id", Type: "id"},
			{Name: "Name", Type: "string", Createable: true},
			{Name: "Type", Type: "picklist", Nillable: true, Createable: true, PicklistValues: []salesforce.PicklistEntry{
				{Value: "Customer", Label: "Customer", Active: true},
			}},
			{Name: "ParentId", Type: "reference", Nillable: true, Createable: true, ReferenceTo: []string{"Account"}},
		},
		RecordTypeInfos: []salesforce.RecordTypeInfo{
			{RecordTypeID: "012000000000000AAA", Name: "Master", DeveloperName: "Master", Active: true, Master: true},
			{RecordTypeID: "012H", Name: "Household", DeveloperName: "Household", Active: true},
		},
	}
}

func toolingJSON(soql string) string {
	switch {
	case strings.Contains(soql, "FlowDefinitionView"):
		return `{"records":[
			{"ApiName":"Household_Sync","TriggerObjectOrEvent":{"QualifiedApiName":"Account"}},
			{"ApiName":"Screen_Flow","TriggerObjectOrEvent":null}
		]}`
	case strings.Contains(soql, "ApexTrigger"):
		return `{"records":[{"Name":"ContactTrigger","TableEnumOrId":"Contact"}]}`
	case strings.Contains(soql, "ValidationRule"):
		return `{"records":[{"ValidationName":"Require_Phone","EntityDefinition":{"QualifiedApiName":"Contact"},"ErrorMessage":"Phone is required"}]}`
	}
	return `{"records":[]}`
}

// healthyClient answers every call the assembler makes.
func healthyClient() *mockClient {
	return &mockClient{
		describeGlobalFn: func(_ context.Context) ([]salesforce.SObjectSummary, error) {
			return testCatalog(), nil
		},
		describeSObjectFn: func(_ context.Context, name string) (*salesforce.SObjectDescription, error) {
			if name == "Account" {
				return accountDescribe(), nil
			}
			return &salesforce.SObjectDescription{Name: name, Label: name}, nil
		},
		queryCountFn: func(_ context.Context, soql string) (int, error) {
			switch {
			case strings.Contains(soql, "ParentId != null"):
				return 3, nil
			case soql == "SELECT COUNT() FROM Account":
				return 100, nil
			default:
				return 5, nil
			}
		},
		queryFn: func(_ context.Context, soql string, out any) error {
			rows := out.(*[]map[string]any)
			switch {
			case strings.Contains(soql, "RecordType.DeveloperName"):
				*rows = []map[string]any{{"dev": "Household", "cnt": float64(40)}}
			case strings.Contains(soql, "GROUP BY Type"):
				*rows = []map[string]any{
					{"val": "Household", "cnt": float64(22)},
					{"val": "Customer", "cnt": float64(50)},
					{"val": nil, "cnt": float64(7)},
				}
			}
			return nil
		},
		toolingQueryFn: func(_ context.Context, soql string, out any) error {
			return json.Unmarshal([]byte(toolingJSON(soql)), out)
		},
	}
}

func testConfig() Config {
	return Config{
		SubLedgerObjects: []string{"FinancialAccount", "FinServ__FinancialAccount__c"},
		MaxCustomObjects: 10,
		Concurrency:      4,
		CallTimeout:      time.Second,
		Retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
		},
	}
}

func TestAssemble_FullBundle(t *testing.T) {
	a := NewAssembler(healthyClient(), testConfig(), nil)
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}

	b, err := a.Assemble(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, "t1", b.TenantID)
	assert.Equal(t, "Account", b.PrimaryObject)
	assert.Equal(t, "Contact", b.PersonObject)
	assert.Equal(t, "Type", b.CategoryField)
	assert.Len(t, b.Objects, len(testCatalog()))

	assert.Equal(t, "FinServ__FinancialAccount__c", b.SubLedgerObject)
	require.Len(t, b.Packages, 1)
	assert.Equal(t, "FinServ", b.Packages[0].Prefix)
	assert.Equal(t, "Financial Services Cloud", b.Packages[0].Name)
	assert.Equal(t, []string{"FinServ__AssetsAndLiabilities__c", "FinServ__FinancialAccount__c"}, b.Packages[0].Objects)

	var matched []string
	for _, m := range b.CustomObjectMatches {
		matched = append(matched, m.Name)
	}
	assert.Contains(t, matched, "Wealth_Household__c")
	assert.NotContains(t, matched, "Maximum_Limit__c")

	for _, name := range []string{"Account", "Contact", "FinServ__FinancialAccount__c", "AccountContactRelation", "Wealth_Household__c"} {
		assert.NotNil(t, b.Describe(name), name)
	}
	require.NotNil(t, b.Describe("Account"))
	assert.Len(t, b.Describe("Account").RecordTypes, 2)

	assert.Equal(t, 100, b.Count("Account"))
	assert.Equal(t, 5, b.Count("FinServ__FinancialAccount__c"))
	assert.Equal(t, 5, b.Count("Opportunity"))
	assert.Equal(t, 5, b.Count("Task"))
	assert.Zero(t, b.Count("Lead"))
	assert.Equal(t, map[string]int{"Household": 40}, b.RecordTypeCounts)
	assert.Equal(t, []model.SampledValue{{Value: "Customer", Count: 50}, {Value: "Household", Count: 22}}, b.SampledCategoryValues)
	assert.True(t, b.UsesHierarchy)

	assert.Equal(t, []model.AutomationItem{{Name: "Household_Sync", Object: "Account"}}, b.Automation.Flows)
	assert.Equal(t, []model.AutomationItem{{Name: "ContactTrigger", Object: "Contact"}}, b.Automation.Triggers)
	require.Len(t, b.Automation.ValidationRules, 1)
	assert.Equal(t, "Contact", b.Automation.ValidationRules[0].Object)

	assert.Empty(t, b.Discovery.Errors)
	assert.Greater(t, b.Discovery.Calls, 10)
	assert.Equal(t, time.Second, b.Discovery.Duration)
}

func TestAssemble_RequiresTenant(t *testing.T) {
	_, err := NewAssembler(healthyClient(), testConfig(), nil).Assemble(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant id is required")
}

func TestAssemble_DescribeGlobalFailureIsFatal(t *testing.T) {
	client := healthyClient()
	client.describeGlobalFn = func(_ context.Context) ([]salesforce.SObjectSummary, error) {
		return nil, errors.New("INVALID_SESSION_ID")
	}

	b, err := NewAssembler(client, testConfig(), nil).Assemble(context.Background(), "t1")
	require.Error(t, err)
	assert.Nil(t, b)
	assert.Contains(t, err.Error(), "describe global")
}

func TestAssemble_PersonDescribeFailureIsFatal(t *testing.T) {
	client := healthyClient()
	client.describeSObjectFn = func(_ context.Context, name string) (*salesforce.SObjectDescription, error) {
		if name == "Contact" {
			return nil, errors.New("NOT_FOUND")
		}
		return accountDescribe(), nil
	}

	_, err := NewAssembler(client, testConfig(), nil).Assemble(context.Background(), "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "describe Contact")
}

func TestAssemble_EnrichmentFailuresAreSoft(t *testing.T) {
	client := healthyClient()
	client.queryCountFn = func(_ context.Context, _ string) (int, error) {
		return 0, errors.New("MALFORMED_QUERY")
	}
	client.toolingQueryFn = func(_ context.Context, soql string, out any) error {
		if strings.Contains(soql, "ApexTrigger") {
			return errors.New("INSUFFICIENT_ACCESS")
		}
		return json.Unmarshal([]byte(toolingJSON(soql)), out)
	}

	b, err := NewAssembler(client, testConfig(), nil).Assemble(context.Background(), "t1")
	require.NoError(t, err)

	assert.Nil(t, b.RecordCounts)
	assert.False(t, b.UsesHierarchy)
	assert.Empty(t, b.Automation.Triggers)
	assert.NotEmpty(t, b.Automation.Flows)

	joined := strings.Join(b.Discovery.Errors, "\n")
	assert.Contains(t, joined, "count Account")
	assert.Contains(t, joined, "hierarchy Account")
	assert.Contains(t, joined, "automation triggers")
	assert.Contains(t, joined, "INSUFFICIENT_ACCESS")
}

func TestAssemble_SlowCallTimesOut(t *testing.T) {
	client := healthyClient()
	client.describeSObjectFn = func(ctx context.Context, name string) (*salesforce.SObjectDescription, error) {
		if name == "FinServ__FinancialAccount__c" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if name == "Account" {
			return accountDescribe(), nil
		}
		return &salesforce.SObjectDescription{Name: name}, nil
	}
	cfg := testConfig()
	cfg.CallTimeout = 20 * time.Millisecond

	b, err := NewAssembler(client, cfg, nil).Assemble(context.Background(), "t1")
	require.NoError(t, err)
	assert.Nil(t, b.Describe("FinServ__FinancialAccount__c"))
	assert.Equal(t, "FinServ__FinancialAccount__c", b.SubLedgerObject)
	require.NotEmpty(t, b.Discovery.Errors)
	assert.Contains(t, strings.Join(b.Discovery.Errors, "\n"), "timed out")
}

func TestAssemble_RetriesTransientErrors(t *testing.T) {
	var attempts atomic.Int32
	client := healthyClient()
	client.describeGlobalFn = func(_ context.Context) ([]salesforce.SObjectSummary, error) {
		if attempts.Add(1) == 1 {
			return nil, resilience.NewTransientError(errors.New("SERVER_UNAVAILABLE"), 503)
		}
		return testCatalog(), nil
	}

	b, err := NewAssembler(client, testConfig(), nil).Assemble(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
	assert.NotEmpty(t, b.Objects)
}

func TestAssemble_OpenBreakerFailsFast(t *testing.T) {
	var calls atomic.Int32
	client := healthyClient()
	client.describeGlobalFn = func(_ context.Context) ([]salesforce.SObjectSummary, error) {
		calls.Add(1)
		return nil, errors.New("INVALID_SESSION_ID")
	}
	breakers := resilience.NewTenantBreakers(resilience.BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	a := NewAssembler(client, testConfig(), breakers)

	_, err := a.Assemble(context.Background(), "t1")
	require.Error(t, err)

	_, err = a.Assemble(context.Background(), "t1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(1), calls.Load())

	// Other tenants are unaffected.
	client.describeGlobalFn = func(_ context.Context) ([]salesforce.SObjectSummary, error) {
		return testCatalog(), nil
	}
	_, err = a.Assemble(context.Background(), "t2")
	assert.NoError(t, err)
}

func TestAssemble_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := healthyClient()
	client.describeSObjectFn = func(_ context.Context, name string) (*salesforce.SObjectDescription, error) {
		if name == "Contact" {
			cancel()
		}
		if name == "Account" {
			return accountDescribe(), nil
		}
		return &salesforce.SObjectDescription{Name: name}, nil
	}

	_, err := NewAssembler(client, testConfig(), nil).Assemble(ctx, "t1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAssemble_NoRecordTypesOrCategorySkipsSampling(t *testing.T) {
	var queried atomic.Int32
	client := healthyClient()
	client.describeSObjectFn = func(_ context.Context, name string) (*salesforce.SObjectDescription, error) {
		return &salesforce.SObjectDescription{Name: name}, nil
	}
	client.queryFn = func(_ context.Context, _ string, _ any) error {
		queried.Add(1)
		return nil
	}

	b, err := NewAssembler(client, testConfig(), nil).Assemble(context.Background(), "t1")
	require.NoError(t, err)
	assert.Zero(t, queried.Load())
	assert.Nil(t, b.RecordTypeCounts)
	assert.Nil(t, b.SampledCategoryValues)
	assert.False(t, b.UsesHierarchy)
}

func TestAssemble_ActivityCountsFeedDetectors(t *testing.T) {
	b, err := NewAssembler(healthyClient(), testConfig(), nil).Assemble(context.Background(), "t1")
	require.NoError(t, err)

	assert.Equal(t, model.PipelineOpportunity, detect.DetectPipeline(b).Type)
	assert.Equal(t, model.ComplianceTaskBased, detect.DetectCompliance(b).Type)
}

func TestAssemble_ConcurrentEnrichment(t *testing.T) {
	cfg := testConfig()
	cfg.Concurrency = 8

	for i := 0; i < 25; i++ {
		b, err := NewAssembler(healthyClient(), cfg, nil).Assemble(context.Background(), "t1")
		require.NoError(t, err)
		assert.NotNil(t, b.Describe("AccountContactRelation"))
		assert.Equal(t, map[string]int{"Household": 40}, b.RecordTypeCounts)
		assert.True(t, b.UsesHierarchy)
	}
}

func TestCountTargets(t *testing.T) {
	b := &model.MetadataBundle{
		PrimaryObject:   "Account",
		PersonObject:    "Contact",
		SubLedgerObject: "FinServ__FinancialAccount__c",
		Objects:         []model.ObjectInfo{{Name: "Lead"}, {Name: "Task"}},
		CustomObjectMatches: []model.CustomObjectMatch{
			{Name: "Review__c", Concept: model.ConceptCompliance},
		},
	}

	assert.Equal(t, []string{"Account", "Contact", "FinServ__FinancialAccount__c", "Task", "Lead", "Review__c"}, countTargets(b))
}

func TestDescribeTargets_Capped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxCustomObjects = 1
	a := NewAssembler(&mockClient{}, cfg, nil)

	b := &model.MetadataBundle{
		PrimaryObject:   "Account",
		PersonObject:    "Contact",
		SubLedgerObject: "FinServ__FinancialAccount__c",
		Objects:         []model.ObjectInfo{{Name: "AccountContactRelation"}},
		CustomObjectMatches: []model.CustomObjectMatch{
			{Name: "Wealth_Household__c", Concept: model.ConceptHousehold},
			{Name: "Review__c", Concept: model.ConceptCompliance},
		},
		Packages: []model.InstalledPackage{{Prefix: "FinServ", Objects: []string{"FinServ__FinancialAccount__c", "FinServ__Goal__c"}}},
	}

	assert.Equal(t, []string{"FinServ__FinancialAccount__c", "AccountContactRelation", "Wealth_Household__c"}, a.describeTargets(b))
}

func TestPackages(t *testing.T) {
	got := packages([]model.ObjectInfo{
		{Name: "zz__Thing__c", Custom: true},
		{Name: "FinServ__Goal__c", Custom: true},
		{Name: "FinServ__FinancialAccount__c", Custom: true},
		{Name: "Local__c", Custom: true},
		{Name: "Account"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "FinServ", got[0].Prefix)
	assert.Equal(t, []string{"FinServ__FinancialAccount__c", "FinServ__Goal__c"}, got[0].Objects)
	assert.Equal(t, "zz", got[1].Prefix)
	assert.Empty(t, got[1].Name)
}

func TestQueries(t *testing.T) {
	assert.Equal(t, "SELECT COUNT() FROM Account", recordCountQuery("Account"))
	assert.Equal(t, "SELECT COUNT() FROM Account WHERE ParentId != null", hierarchyQuery("Account"))
	assert.Contains(t, recordTypeCountQuery("Account"), "GROUP BY RecordType.DeveloperName")
	assert.Equal(t,
		"SELECT Type val, COUNT(Id) cnt FROM Account WHERE Type != null GROUP BY Type ORDER BY COUNT(Id) DESC LIMIT 50",
		categorySampleQuery("Account", "Type"),
	)
	// Unsafe names fall back to defaults rather than reaching the query.
	assert.Equal(t, "SELECT COUNT() FROM Account", recordCountQuery("Account; DELETE"))
}

func TestIntValue(t *testing.T) {
	assert.Equal(t, 3, intValue(3))
	assert.Equal(t, 4, intValue(int64(4)))
	assert.Equal(t, 5, intValue(float64(5)))
	assert.Equal(t, 6, intValue(json.Number("6")))
	assert.Equal(t, 0, intValue(json.Number("x")))
	assert.Equal(t, 0, intValue("7"))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.DiscoveryConfig{
		PrimaryObject:    "Account",
		PersonObject:     "Contact",
		CategoryField:    "Type",
		SubLedgerObjects: []string{"Holding__c"},
		MaxCustomObjects: 7,
		Concurrency:      2,
		CallTimeoutSecs:  9,
		MaxAttempts:      5,
	})
	assert.Equal(t, 9*time.Second, cfg.CallTimeout)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, []string{"Holding__c"}, cfg.SubLedgerObjects)
	assert.Equal(t, 2, cfg.Concurrency)

	d := Config{}.withDefaults()
	assert.Equal(t, "Account", d.PrimaryObject)
	assert.Equal(t, 4, d.Concurrency)
}
