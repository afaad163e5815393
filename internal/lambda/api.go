package lambda

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/dwsmith1983/forecastd/internal/artifact"
	"github.com/dwsmith1983/forecastd/internal/query"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// SourceHeader names the path that served a prediction query.
const SourceHeader = "X-Forecast-Source"

// HandleAPIRequest serves GET /api/predictions and POST
// /api/predictions/{symbol}/{model} behind API Gateway.
func HandleAPIRequest(ctx context.Context, d *Deps, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch req.HTTPMethod {
	case http.MethodGet:
		return handleQuery(ctx, d, req), nil
	case http.MethodPost:
		return handleIngest(ctx, d, req), nil
	default:
		return errorResponse(http.StatusMethodNotAllowed, "method not allowed"), nil
	}
}

func handleQuery(ctx context.Context, d *Deps, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	params := req.QueryStringParameters
	symbol := params["ticker"]
	if symbol == "" {
		symbol = params["symbol"]
	}
	if strings.TrimSpace(symbol) == "" {
		return errorResponse(http.StatusBadRequest, "ticker is required")
	}
	q := query.Query{Symbol: symbol, Model: params["model"]}
	if s := params["horizon"]; s != "" {
		h, err := strconv.Atoi(s)
		if err != nil {
			return errorResponse(http.StatusBadRequest, "horizon must be an integer")
		}
		q.Horizon = h
	}

	ans, err := d.Resolver.GetPredictions(ctx, q)
	if err != nil {
		return d.kindError(err)
	}
	points := ans.Points
	if points == nil {
		points = []types.Point{}
	}
	resp := jsonResponse(http.StatusOK, points)
	resp.Headers[SourceHeader] = string(ans.Source)
	return resp
}

func handleIngest(ctx context.Context, d *Deps, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	symbol, err := types.NormalizeSymbol(req.PathParameters["symbol"])
	if err != nil {
		return d.kindError(err)
	}
	model, err := types.ParseModel(req.PathParameters["model"])
	if err != nil {
		return d.kindError(err)
	}

	parsed, err := artifact.ParseCSV(strings.NewReader(req.Body), artifact.DefaultDateColumn, artifact.DefaultValueColumn)
	if err != nil {
		return d.kindError(&types.Error{Kind: types.KindValidation, Op: "ingest", Symbol: symbol, Model: model, Err: err})
	}
	res, err := d.Ingester.Reconcile(ctx, symbol, model, parsed.Rows)
	if err != nil {
		return d.kindError(err)
	}
	return jsonResponse(http.StatusOK, types.ModelResult{
		Matched:  res.Matched,
		Upserted: res.Upserted,
		Failed:   res.Failed,
		Rows:     len(parsed.Rows),
		Skipped:  parsed.Skipped,
	})
}

func (d *Deps) kindError(err error) events.APIGatewayProxyResponse {
	var status int
	switch types.KindOf(err) {
	case types.KindValidation:
		status = http.StatusBadRequest
	case types.KindNotFound:
		status = http.StatusNotFound
	case types.KindStore:
		d.Logger.Error("store failure", "error", err)
		return errorResponse(http.StatusServiceUnavailable, types.ErrStoreUnavailable.Error())
	default:
		d.Logger.Error("request failed", "error", err)
		return errorResponse(http.StatusInternalServerError, "internal error")
	}
	msg := err.Error()
	var e *types.Error
	if errors.As(err, &e) && e.Err != nil {
		msg = e.Err.Error()
	}
	return errorResponse(status, msg)
}

func jsonResponse(status int, v interface{}) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return errorResponse(http.StatusInternalServerError, "failed to encode response")
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}

func errorResponse(status int, msg string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}
}
