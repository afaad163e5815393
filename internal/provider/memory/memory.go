// Package memory implements an in-process, non-durable prediction store. It
// backs degraded mode when the configured store is unreachable and doubles as
// the test store.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dwsmith1983/forecastd/internal/provider"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Store = (*Store)(nil)

type seriesKey struct {
	symbol string
	model  types.Model
}

// Store keeps one date-indexed series per (symbol, model).
type Store struct {
	mu     sync.RWMutex
	series map[seriesKey]map[types.Date]float64

	// FailOn, when set, makes the matching rows fail individually. Test hook.
	FailOn func(types.Prediction) bool
}

// New creates an empty store.
func New() *Store {
	return &Store{series: make(map[seriesKey]map[types.Date]float64)}
}

// Name returns the backend identifier.
func (s *Store) Name() string { return string(types.StoreMemory) }

// UpsertPredictions sets every prediction's value, counting replaced keys as matched.
func (s *Store) UpsertPredictions(_ context.Context, preds []types.Prediction) (types.UpsertResult, error) {
	var res types.UpsertResult
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range preds {
		if s.FailOn != nil && s.FailOn(p) {
			res.Failed++
			continue
		}
		k := seriesKey{symbol: p.Symbol, model: p.Model}
		m, ok := s.series[k]
		if !ok {
			m = make(map[types.Date]float64)
			s.series[k] = m
		}
		if _, exists := m[p.Date]; exists {
			res.Matched++
		} else {
			res.Upserted++
		}
		m[p.Date] = p.Value
	}
	return res, nil
}

// QueryPredictions returns the series for (symbol, model) sorted by date.
func (s *Store) QueryPredictions(_ context.Context, symbol string, model types.Model) ([]types.Prediction, error) {
	s.mu.RLock()
	m := s.series[seriesKey{symbol: symbol, model: model}]
	out := make([]types.Prediction, 0, len(m))
	for d, v := range m {
		out = append(out, types.Prediction{Symbol: symbol, Model: model, Date: d, Value: v})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Len returns the total number of stored predictions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.series {
		n += len(m)
	}
	return n
}

func (s *Store) Start(_ context.Context) error { return nil }
func (s *Store) Stop(_ context.Context) error  { return nil }
func (s *Store) Ping(_ context.Context) error  { return nil }
