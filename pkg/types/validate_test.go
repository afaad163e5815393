package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	valid := map[string]string{
		"pltr":     "PLTR",
		" AAPL ":   "AAPL",
		"BRK-B":    "BRK-B",
		"BRK.B":    "BRK.B",
		"EURUSD=X": "EURUSD=X",
		"^GSPC":    "^GSPC",
		"^dji":     "^DJI",
	}
	for in, want := range valid {
		got, err := NormalizeSymbol(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "   ", "PLTR;rm", "-PLTR", ".X", "A B", "$(id)", "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456"} {
		_, err := NormalizeSymbol(in)
		require.Error(t, err, in)
		assert.Equal(t, KindValidation, KindOf(err), in)
	}
}

func TestRunRequest_Normalize_IndexTicker(t *testing.T) {
	req, err := RunRequest{Symbol: "^gspc", Horizon: 7}.Normalize(DefaultHorizonBounds())
	require.NoError(t, err)
	assert.Equal(t, "^GSPC", req.Symbol)
	assert.Equal(t, DefaultPeriod, req.Period)
	assert.Equal(t, []Model{DefaultModel}, req.Models)
}

func TestRunRequest_Normalize_Rejects(t *testing.T) {
	bounds := DefaultHorizonBounds()
	tests := map[string]RunRequest{
		"period":  {Symbol: "PLTR", Period: "6 months", Horizon: 7},
		"horizon": {Symbol: "PLTR", Horizon: 15},
		"model":   {Symbol: "PLTR", Horizon: 7, Models: []Model{"arima"}},
	}
	for name, req := range tests {
		_, err := req.Normalize(bounds)
		require.Error(t, err, name)
		assert.Equal(t, KindValidation, KindOf(err), name)
	}
}

func TestRunRequest_Normalize_CollapsesDuplicateModels(t *testing.T) {
	req, err := RunRequest{Symbol: "PLTR", Horizon: 3,
		Models: []Model{ModelXGB, ModelEnsemble, ModelXGB}}.Normalize(DefaultHorizonBounds())
	require.NoError(t, err)
	assert.Equal(t, []Model{ModelXGB, ModelEnsemble}, req.Models)
}
