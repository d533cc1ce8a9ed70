package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/orgmap/internal/model"
)

func TestHouseholds_DefaultsWithoutMapping(t *testing.T) {
	p, _ := newTestPipeline(t, WithQueryFields([]string{"Id", "Name"}))

	q, err := p.Households(context.Background(), "t1", "", 10, false)
	require.NoError(t, err)
	assert.Equal(t, "Account", q.Object)
	assert.Equal(t, "SELECT Id, Name FROM Account WHERE Type = 'Household' ORDER BY CreatedDate DESC LIMIT 10", q.SOQL)
	assert.False(t, q.Executed)
}

func TestHouseholds_UsesMapping(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()
	_, err := p.Classify(ctx, "t1", recordTypeBundle("t1"), true)
	require.NoError(t, err)

	q, err := p.Households(ctx, "t1", "Smith", 0, false)
	require.NoError(t, err)
	assert.Contains(t, q.SOQL, "WHERE Name LIKE '%Smith%' AND RecordType.DeveloperName = 'Household'")
	assert.Contains(t, q.SOQL, "LIMIT 50")
}

func TestHouseholds_SearchEscapesTerm(t *testing.T) {
	p, _ := newTestPipeline(t)

	q, err := p.Households(context.Background(), "t1", "x' OR Name != '' --", 5, false)
	require.NoError(t, err)
	assert.Contains(t, q.SOQL, `LIKE '%x\' OR Name != \'\' --%'`)
}

func TestHouseholds_Execute(t *testing.T) {
	t.Run("offline", func(t *testing.T) {
		p, _ := newTestPipeline(t)
		_, err := p.Households(context.Background(), "t1", "", 0, true)
		assert.True(t, errors.Is(err, ErrOffline))
	})

	t.Run("runs the query", func(t *testing.T) {
		sf := &mockClient{records: []map[string]any{{"Id": "001A", "Name": "Smith Household"}}}
		p, _ := newTestPipeline(t, WithSalesforce(sf))

		q, err := p.Households(context.Background(), "t1", "", 0, true)
		require.NoError(t, err)
		assert.True(t, q.Executed)
		assert.Len(t, q.Records, 1)
		require.Len(t, sf.queries, 1)
		assert.Equal(t, q.SOQL, sf.queries[0])
	})
}

func TestCreateHousehold(t *testing.T) {
	sf := &mockClient{}
	p, _ := newTestPipeline(t, WithSalesforce(sf))
	ctx := context.Background()

	id, err := p.CreateHousehold(ctx, "t1", "Smith Household", map[string]any{"Phone": "555", "Bad Field": 1})
	require.NoError(t, err)
	assert.Equal(t, "001000000000001", id)
	assert.Equal(t, map[string]any{"Name": "Smith Household", "Phone": "555", "Type": "Household"}, sf.inserted["Account"])

	_, err = p.Classify(ctx, "t1", recordTypeBundle("t1"), true)
	require.NoError(t, err)
	_, err = p.CreateHousehold(ctx, "t1", "Jones Household", nil)
	require.NoError(t, err)
	assert.Equal(t, "012H00000000001", sf.inserted["Account"]["RecordTypeId"])

	_, err = p.CreateHousehold(ctx, "t1", " ", nil)
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestCreateHousehold_Offline(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.CreateHousehold(context.Background(), "t1", "Smith", nil)
	assert.True(t, errors.Is(err, ErrOffline))
}

func TestCreateContact(t *testing.T) {
	sf := &mockClient{}
	p, _ := newTestPipeline(t, WithSalesforce(sf))
	ctx := context.Background()

	id, err := p.CreateContact(ctx, "t1", "001H", map[string]any{"LastName": "Smith"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, map[string]any{"LastName": "Smith", "AccountId": "001H"}, sf.inserted["Contact"])

	_, err = p.CreateContact(ctx, "t1", "", nil)
	assert.True(t, errors.Is(err, model.ErrValidation))
}
