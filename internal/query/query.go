// Package query answers prediction reads from the store, falling back to the
// raw artifacts when the store is unhealthy or has nothing for the key.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dwsmith1983/forecastd/internal/artifact"
	"github.com/dwsmith1983/forecastd/internal/metrics"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Store is the read side of the store gateway.
type Store interface {
	Healthy() bool
	Query(ctx context.Context, symbol string, model types.Model) ([]types.Prediction, error)
}

// Artifacts is the single-lookup side of the artifact reader.
type Artifacts interface {
	Find(k artifact.Key) (string, bool)
	Parse(path string) (*artifact.Parsed, error)
}

// Query names the series to read. Horizon is only a hint for the artifact
// fallback; zero means the configured default.
type Query struct {
	Symbol  string
	Model   string
	Horizon int
}

// Answer is a date-ascending series and where it came from.
type Answer struct {
	Points []types.Point
	Source types.Source
}

// Resolver answers queries. It never writes.
type Resolver struct {
	store          Store
	artifacts      Artifacts
	defaultHorizon int
	logger         *slog.Logger
	tracer         trace.Tracer
}

// New creates a Resolver. defaultHorizon applies when a query has no hint.
func New(store Store, artifacts Artifacts, defaultHorizon int) *Resolver {
	if defaultHorizon <= 0 {
		defaultHorizon = types.DefaultHorizon
	}
	return &Resolver{
		store:          store,
		artifacts:      artifacts,
		defaultHorizon: defaultHorizon,
		logger:         slog.Default(),
		tracer:         otel.Tracer("github.com/dwsmith1983/forecastd/internal/query"),
	}
}

// SetLogger replaces the resolver's logger.
func (r *Resolver) SetLogger(l *slog.Logger) { r.logger = l }

// GetPredictions resolves q: store first when healthy, then the artifact for
// the hinted horizon, else a not-found error.
func (r *Resolver) GetPredictions(ctx context.Context, q Query) (*Answer, error) {
	symbol, err := types.NormalizeSymbol(q.Symbol)
	if err != nil {
		return nil, err
	}
	model, err := types.ParseModel(q.Model)
	if err != nil {
		return nil, err
	}
	horizon := q.Horizon
	if horizon <= 0 {
		horizon = r.defaultHorizon
	}

	ctx, span := r.tracer.Start(ctx, "query.GetPredictions", trace.WithAttributes(
		attribute.String("symbol", symbol), attribute.String("model", string(model)),
		attribute.Int("horizon", horizon)))
	defer span.End()

	if r.store.Healthy() {
		preds, err := r.store.Query(ctx, symbol, model)
		switch {
		case err != nil:
			r.logger.Warn("store query failed, falling back to artifact",
				"symbol", symbol, "model", model, "error", err)
		case len(preds) > 0:
			ans := &Answer{Points: pointsOf(preds), Source: types.SourceStore}
			sortPoints(ans.Points)
			r.served(ctx, span, ans.Source)
			return ans, nil
		}
	}

	if ans, ok := r.fromArtifact(symbol, model, horizon); ok {
		r.served(ctx, span, ans.Source)
		return ans, nil
	}

	r.served(ctx, span, "")
	return nil, &types.Error{Kind: types.KindNotFound, Op: "query", Symbol: symbol, Model: model, Horizon: horizon,
		Err: fmt.Errorf("%w for %s (%s)", types.ErrNotFound, symbol, model)}
}

func (r *Resolver) fromArtifact(symbol string, model types.Model, horizon int) (*Answer, bool) {
	path, ok := r.artifacts.Find(artifact.Key{Symbol: symbol, Model: model, Horizon: horizon})
	if !ok {
		return nil, false
	}
	parsed, err := r.artifacts.Parse(path)
	if err != nil {
		if !errors.Is(err, types.ErrArtifactEmpty) {
			r.logger.Warn("artifact fallback unreadable", "file", path, "error", err)
		}
		return nil, false
	}
	pts := make([]types.Point, len(parsed.Rows))
	for i, row := range parsed.Rows {
		pts[i] = types.Point{Date: row.Date, Value: row.Value}
	}
	sortPoints(pts)
	return &Answer{Points: pts, Source: types.SourceArtifact}, true
}

func (r *Resolver) served(ctx context.Context, span trace.Span, source types.Source) {
	span.SetAttributes(attribute.String("source", string(source)))
	metrics.QueryServed(ctx, source)
}

func pointsOf(preds []types.Prediction) []types.Point {
	pts := make([]types.Point, len(preds))
	for i, p := range preds {
		pts[i] = types.Point{Date: p.Date, Value: p.Value}
	}
	return pts
}

func sortPoints(pts []types.Point) {
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].Date.Before(pts[j].Date) })
}
