package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dwsmith1983/forecastd/internal/artifact"
	"github.com/dwsmith1983/forecastd/internal/query"
	"github.com/dwsmith1983/forecastd/pkg/types"
)

var errNoRows = errors.New("request has no rows")

// SourceHeader names the path that served a prediction query.
const SourceHeader = "X-Forecast-Source"

// GetPredictions returns the stored or artifact series for ticker (or symbol),
// model and an optional horizon hint.
func (h *Handlers) GetPredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := firstNonEmpty(q.Get("ticker"), q.Get("symbol"))
	if strings.TrimSpace(symbol) == "" {
		h.writeError(w, http.StatusBadRequest, "ticker is required", nil)
		return
	}
	model := q.Get("model")
	if model == "" {
		model = string(types.DefaultModel)
	}
	var horizon int
	if s := q.Get("horizon"); s != "" {
		n, err := parseHorizon(s)
		if err != nil {
			h.writeKindError(w, err)
			return
		}
		horizon = n
	}

	ans, err := h.deps.Query.GetPredictions(r.Context(), query.Query{Symbol: symbol, Model: model, Horizon: horizon})
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	w.Header().Set(SourceHeader, string(ans.Source))
	points := ans.Points
	if points == nil {
		points = []types.Point{}
	}
	writeJSON(w, http.StatusOK, points)
}

type ingestBody struct {
	Rows []struct {
		Date  string          `json:"date"`
		Value json.RawMessage `json:"value"`
	} `json:"rows"`
}

// IngestPredictions accepts rows for one (symbol, model) written by an external
// job, either JSON {"rows":[{"date","value"}]} or CSV text. Rows are validated
// the same way artifact rows are; invalid rows are skipped and counted.
func (h *Handlers) IngestPredictions(w http.ResponseWriter, r *http.Request) {
	symbol, err := types.NormalizeSymbol(chi.URLParam(r, "symbol"))
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	model, err := types.ParseModel(chi.URLParam(r, "model"))
	if err != nil {
		h.writeKindError(w, err)
		return
	}

	rows, skipped, err := h.decodeRows(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return
		}
		h.writeKindError(w, &types.Error{Kind: types.KindValidation, Op: "ingest", Symbol: symbol, Model: model, Err: err})
		return
	}

	res, err := h.deps.Ingest.Reconcile(r.Context(), symbol, model, rows)
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	h.logger.Info("predictions ingested", "symbol", symbol, "model", model,
		"rows", len(rows), "skipped", skipped, "matched", res.Matched, "upserted", res.Upserted)
	writeJSON(w, http.StatusOK, types.ModelResult{
		Matched:  res.Matched,
		Upserted: res.Upserted,
		Failed:   res.Failed,
		Rows:     len(rows),
		Skipped:  skipped,
	})
}

func (h *Handlers) decodeRows(r *http.Request) ([]types.Row, int, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "text/csv" {
		parsed, err := artifact.ParseCSV(r.Body, h.deps.DateColumn, h.deps.ValueColumn)
		if err != nil {
			return nil, 0, err
		}
		return parsed.Rows, parsed.Skipped, nil
	}

	var body ingestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, errNoRows
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("invalid JSON: %w", err)
	}
	if len(body.Rows) == 0 {
		return nil, 0, errNoRows
	}

	var rows []types.Row
	skipped := 0
	for _, raw := range body.Rows {
		d, okDate := artifact.ParseDate(raw.Date)
		v, okValue := artifact.ParseValue(strings.Trim(string(raw.Value), `"`))
		if !okDate || !okValue {
			skipped++
			continue
		}
		rows = append(rows, types.Row{Date: d, Value: v})
	}
	if len(rows) == 0 {
		return nil, skipped, types.ErrNoValidRows
	}
	return rows, skipped, nil
}
