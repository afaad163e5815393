package dynamodb

import (
	"github.com/dwsmith1983/forecastd/pkg/types"
)

// Attribute names and PK/SK prefixes.
const (
	attrPK = "PK"
	attrSK = "SK"

	prefixPrediction = "PRED#"
	prefixDate       = "DATE#"
)

// predictionPK groups one (symbol, model) series under a single partition.
func predictionPK(symbol string, model types.Model) string {
	return prefixPrediction + symbol + "#" + string(model)
}

// dateSK sorts lexically in date order because dates are zero-padded ISO strings.
func dateSK(d types.Date) string {
	return prefixDate + d.String()
}
