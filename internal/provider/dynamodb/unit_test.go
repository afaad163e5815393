package dynamodb

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// mockDDB is a minimal mock of the DDBAPI interface for unit testing.
type mockDDB struct {
	putItemFn       func(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	queryFn         func(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	describeTableFn func(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	createTableFn   func(ctx context.Context, input *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	deleteTableFn   func(ctx context.Context, input *dynamodb.DeleteTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

func (m *mockDDB) PutItem(ctx context.Context, input *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.putItemFn != nil {
		return m.putItemFn(ctx, input, opts...)
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDB) Query(ctx context.Context, input *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, input, opts...)
	}
	return &dynamodb.QueryOutput{}, nil
}

func (m *mockDDB) DescribeTable(ctx context.Context, input *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if m.describeTableFn != nil {
		return m.describeTableFn(ctx, input, opts...)
	}
	return &dynamodb.DescribeTableOutput{}, nil
}

func (m *mockDDB) CreateTable(ctx context.Context, input *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	if m.createTableFn != nil {
		return m.createTableFn(ctx, input, opts...)
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *mockDDB) DeleteTable(ctx context.Context, input *dynamodb.DeleteTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error) {
	if m.deleteTableFn != nil {
		return m.deleteTableFn(ctx, input, opts...)
	}
	return &dynamodb.DeleteTableOutput{}, nil
}

func newTestProvider(mock *mockDDB) *DynamoDBProvider {
	return NewFromClient(mock, "test-table", false)
}

func mustDate(t *testing.T, s string) types.Date {
	t.Helper()
	d, err := types.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestUpsertPredictions_MarshaledItem(t *testing.T) {
	var captured *dynamodb.PutItemInput
	mock := &mockDDB{
		putItemFn: func(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			captured = input
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	p := newTestProvider(mock)

	res, err := p.UpsertPredictions(context.Background(), []types.Prediction{
		{Symbol: "PLTR", Model: types.ModelEnsemble, Date: mustDate(t, "2025-06-23"), Value: 123.45},
	})
	require.NoError(t, err)
	assert.Equal(t, types.UpsertResult{Upserted: 1}, res)

	require.NotNil(t, captured)
	assert.Equal(t, "test-table", *captured.TableName)
	assert.Equal(t, ddbtypes.ReturnValueAllOld, captured.ReturnValues)
	assert.Equal(t, "PRED#PLTR#ensemble", captured.Item["PK"].(*ddbtypes.AttributeValueMemberS).Value)
	assert.Equal(t, "DATE#2025-06-23", captured.Item["SK"].(*ddbtypes.AttributeValueMemberS).Value)
	assert.Equal(t, "123.45", captured.Item["value"].(*ddbtypes.AttributeValueMemberN).Value)
}

func TestUpsertPredictions_CountsMatchedAndFailed(t *testing.T) {
	bad := mustDate(t, "2025-06-25")
	old := mustDate(t, "2025-06-24")
	var mu sync.Mutex
	calls := 0

	mock := &mockDDB{
		putItemFn: func(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			switch input.Item["SK"].(*ddbtypes.AttributeValueMemberS).Value {
			case dateSK(bad):
				return nil, errors.New("throttled")
			case dateSK(old):
				return &dynamodb.PutItemOutput{Attributes: map[string]ddbtypes.AttributeValue{
					"PK": input.Item["PK"],
				}}, nil
			}
			return &dynamodb.PutItemOutput{}, nil
		},
	}
	p := newTestProvider(mock)

	res, err := p.UpsertPredictions(context.Background(), []types.Prediction{
		{Symbol: "PLTR", Model: types.ModelXGB, Date: mustDate(t, "2025-06-23"), Value: 1},
		{Symbol: "PLTR", Model: types.ModelXGB, Date: old, Value: 2},
		{Symbol: "PLTR", Model: types.ModelXGB, Date: bad, Value: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, types.UpsertResult{Matched: 1, Upserted: 1, Failed: 1}, res)
	assert.Equal(t, 3, calls)
}

func TestQueryPredictions_Paginates(t *testing.T) {
	page := 0
	mock := &mockDDB{
		queryFn: func(_ context.Context, input *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			assert.Equal(t, "PRED#PLTR#ensemble", input.ExpressionAttributeValues[":pk"].(*ddbtypes.AttributeValueMemberS).Value)
			assert.True(t, *input.ScanIndexForward)
			page++
			if page == 1 {
				assert.Nil(t, input.ExclusiveStartKey)
				return &dynamodb.QueryOutput{
					Items: []map[string]ddbtypes.AttributeValue{
						item("2025-06-23", "10.5"),
					},
					LastEvaluatedKey: map[string]ddbtypes.AttributeValue{
						"PK": &ddbtypes.AttributeValueMemberS{Value: "PRED#PLTR#ensemble"},
						"SK": &ddbtypes.AttributeValueMemberS{Value: "DATE#2025-06-23"},
					},
				}, nil
			}
			assert.NotNil(t, input.ExclusiveStartKey)
			return &dynamodb.QueryOutput{
				Items: []map[string]ddbtypes.AttributeValue{
					item("2025-06-24", "11"),
					item("not-a-date", "12"),
				},
			}, nil
		},
	}
	p := newTestProvider(mock)

	got, err := p.QueryPredictions(context.Background(), "PLTR", types.ModelEnsemble)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2025-06-23", got[0].Date.String())
	assert.InDelta(t, 10.5, got[0].Value, 1e-9)
	assert.Equal(t, "2025-06-24", got[1].Date.String())
	assert.Equal(t, 2, page)
}

func TestQueryPredictions_Error(t *testing.T) {
	mock := &mockDDB{
		queryFn: func(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
			return nil, errors.New("network down")
		},
	}
	_, err := newTestProvider(mock).QueryPredictions(context.Background(), "PLTR", types.ModelEnsemble)
	assert.ErrorContains(t, err, "network down")
}

func TestStart_CreatesTableAndToleratesExisting(t *testing.T) {
	created := 0
	mock := &mockDDB{
		createTableFn: func(_ context.Context, input *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
			created++
			assert.Equal(t, ddbtypes.BillingModePayPerRequest, input.BillingMode)
			return nil, &ddbtypes.ResourceInUseException{}
		},
	}
	p := NewFromClient(mock, "t", true)
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, 1, created)
}

func TestPing_Error(t *testing.T) {
	mock := &mockDDB{
		describeTableFn: func(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
			return nil, errors.New("no such table")
		},
	}
	assert.ErrorContains(t, newTestProvider(mock).Ping(context.Background()), "dynamodb ping failed")
}

func item(date, value string) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"PK":    &ddbtypes.AttributeValueMemberS{Value: "PRED#PLTR#ensemble"},
		"SK":    &ddbtypes.AttributeValueMemberS{Value: "DATE#" + date},
		"date":  &ddbtypes.AttributeValueMemberS{Value: date},
		"value": &ddbtypes.AttributeValueMemberN{Value: value},
	}
}
