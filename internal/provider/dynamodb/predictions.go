package dynamodb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

type predictionItem struct {
	PK        string  `dynamodbav:"PK"`
	SK        string  `dynamodbav:"SK"`
	Symbol    string  `dynamodbav:"symbol"`
	Model     string  `dynamodbav:"model"`
	Date      string  `dynamodbav:"date"`
	Value     float64 `dynamodbav:"value"`
	UpdatedAt string  `dynamodbav:"updatedAt"`
}

// UpsertPredictions writes each row with its own PutItem. ReturnValues=ALL_OLD
// tells a replaced item (matched) from a new one (upserted).
func (p *DynamoDBProvider) UpsertPredictions(ctx context.Context, preds []types.Prediction) (types.UpsertResult, error) {
	var (
		mu  sync.Mutex
		res types.UpsertResult
	)
	now := time.Now().UTC().Format(time.RFC3339)

	var g errgroup.Group
	g.SetLimit(upsertParallelism)
	for _, pr := range preds {
		g.Go(func() error {
			replaced, err := p.putPrediction(ctx, pr, now)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failed++
				p.logger.Warn("dynamodb upsert failed",
					"symbol", pr.Symbol, "model", pr.Model, "date", pr.Date.String(), "error", err)
			case replaced:
				res.Matched++
			default:
				res.Upserted++
			}
			return nil
		})
	}
	_ = g.Wait()
	return res, nil
}

func (p *DynamoDBProvider) putPrediction(ctx context.Context, pr types.Prediction, now string) (bool, error) {
	item, err := attributevalue.MarshalMap(predictionItem{
		PK:        predictionPK(pr.Symbol, pr.Model),
		SK:        dateSK(pr.Date),
		Symbol:    pr.Symbol,
		Model:     string(pr.Model),
		Date:      pr.Date.String(),
		Value:     pr.Value,
		UpdatedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("marshal prediction: %w", err)
	}
	out, err := p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:    &p.tableName,
		Item:         item,
		ReturnValues: ddbtypes.ReturnValueAllOld,
	})
	if err != nil {
		return false, err
	}
	return len(out.Attributes) > 0, nil
}

// QueryPredictions pages through the series partition in ascending SK order.
func (p *DynamoDBProvider) QueryPredictions(ctx context.Context, symbol string, model types.Model) ([]types.Prediction, error) {
	var (
		out   []types.Prediction
		start map[string]ddbtypes.AttributeValue
	)
	for {
		resp, err := p.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              &p.tableName,
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pk":     &ddbtypes.AttributeValueMemberS{Value: predictionPK(symbol, model)},
				":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixDate},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamodb query predictions: %w", err)
		}

		var items []predictionItem
		if err := attributevalue.UnmarshalListOfMaps(resp.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal predictions: %w", err)
		}
		for _, it := range items {
			d, err := types.ParseDate(it.Date)
			if err != nil {
				p.logger.Warn("skipping malformed prediction item", "pk", it.PK, "sk", it.SK, "error", err)
				continue
			}
			out = append(out, types.Prediction{Symbol: symbol, Model: model, Date: d, Value: it.Value})
		}

		if len(resp.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = resp.LastEvaluatedKey
	}
}
