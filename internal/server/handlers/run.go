package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// RunQuery triggers a run from query parameters:
// ticker (or symbol), period, horizon, models and use_lstm.
func (h *Handlers) RunQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := types.RunRequest{
		Symbol: firstNonEmpty(q.Get("ticker"), q.Get("symbol")),
		Period: q.Get("period"),
	}

	horizon, err := parseHorizon(q.Get("horizon"))
	if err != nil {
		h.writeKindError(w, err)
		return
	}
	req.Horizon = horizon

	if s := q.Get("models"); s != "" {
		models, err := types.ParseModelList(s)
		if err != nil {
			h.writeKindError(w, err)
			return
		}
		req.Models = models
	}
	if strings.EqualFold(q.Get("use_lstm"), "true") && !req.Wants(types.ModelLSTM) {
		if len(req.Models) == 0 {
			req.Models = []types.Model{types.DefaultModel}
		}
		req.Models = append(req.Models, types.ModelLSTM)
	}

	h.run(w, r, req)
}

// RunBody triggers a run from a JSON body {symbol, period, horizon, models}.
func (h *Handlers) RunBody(w http.ResponseWriter, r *http.Request) {
	var req types.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON", nil)
		return
	}
	if req.Horizon == 0 {
		req.Horizon = types.DefaultHorizon
	}
	h.run(w, r, req)
}

// run executes req on the request context; a client disconnect cancels the job.
func (h *Handlers) run(w http.ResponseWriter, r *http.Request, req types.RunRequest) {
	res, err := h.deps.Runs.Run(r.Context(), req)
	if err != nil {
		if res == nil {
			h.writeKindError(w, err)
			return
		}
		h.logger.Error("run failed", "runId", res.RunID, "symbol", res.Symbol, "status", res.Status, "error", err)
		writeJSON(w, StatusFor(types.KindOf(err)), map[string]interface{}{
			"error":    res.Message,
			"runId":    res.RunID,
			"status":   res.Status,
			"exitCode": res.ExitCode,
			"logs":     res.Logs,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseHorizon(s string) (int, error) {
	if s == "" {
		return types.DefaultHorizon, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, types.Errorf(types.KindValidation, "validate", "horizon must be an integer, got %q", s)
	}
	return n, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
