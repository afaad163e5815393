package types

import (
	"fmt"
	"regexp"
	"strings"
)

// Horizon bounds applied when no validation config overrides them.
const (
	DefaultMinHorizon = 1
	DefaultMaxHorizon = 14
	DefaultHorizon    = 7
	DefaultPeriod     = "6mo"
	maxSymbolLen      = 32
)

var (
	symbolPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9._^=-]*$`)
	periodPattern = regexp.MustCompile(`^([0-9]{1,4}(d|wk|mo|y)|ytd|max)$`)
)

// NormalizeSymbol trims and upper-cases s and checks it against the symbol grammar.
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if sym == "" {
		return "", &Error{Kind: KindValidation, Op: "validate", Err: fmt.Errorf("symbol is required")}
	}
	if len(sym) > maxSymbolLen || !symbolPattern.MatchString(sym) {
		return "", &Error{Kind: KindValidation, Op: "validate", Err: fmt.Errorf("invalid symbol %q", s)}
	}
	return sym, nil
}

// ParseModel validates a model name. An empty name yields DefaultModel.
func ParseModel(s string) (Model, error) {
	if s == "" {
		return DefaultModel, nil
	}
	m := Model(strings.TrimSpace(s))
	if !m.Valid() {
		return "", &Error{Kind: KindValidation, Op: "validate", Err: fmt.Errorf("unknown model %q", s)}
	}
	return m, nil
}

// HorizonBounds is the accepted horizon range, inclusive.
type HorizonBounds struct {
	Min int
	Max int
}

// DefaultHorizonBounds returns the default 1-14 range.
func DefaultHorizonBounds() HorizonBounds {
	return HorizonBounds{Min: DefaultMinHorizon, Max: DefaultMaxHorizon}
}

// Check validates h against the bounds.
func (b HorizonBounds) Check(h int) error {
	if h < b.Min || h > b.Max {
		return &Error{Kind: KindValidation, Op: "validate", Horizon: h,
			Err: fmt.Errorf("horizon must be between %d and %d, got %d", b.Min, b.Max, h)}
	}
	return nil
}

// Normalize validates req and returns a copy with a normalized symbol, default
// period and de-duplicated model list. The returned request is safe to turn
// into process arguments.
func (r RunRequest) Normalize(bounds HorizonBounds) (RunRequest, error) {
	sym, err := NormalizeSymbol(r.Symbol)
	if err != nil {
		return RunRequest{}, err
	}
	out := RunRequest{Symbol: sym, Period: strings.TrimSpace(r.Period), Horizon: r.Horizon}
	if out.Period == "" {
		out.Period = DefaultPeriod
	}
	if !periodPattern.MatchString(out.Period) {
		return RunRequest{}, &Error{Kind: KindValidation, Op: "validate", Symbol: sym,
			Err: fmt.Errorf("invalid period %q", r.Period)}
	}
	if err := bounds.Check(out.Horizon); err != nil {
		e := err.(*Error)
		e.Symbol = sym
		return RunRequest{}, e
	}

	seen := make(map[Model]bool, len(r.Models))
	for _, m := range r.Models {
		if !m.Valid() {
			return RunRequest{}, &Error{Kind: KindValidation, Op: "validate", Symbol: sym, Horizon: out.Horizon,
				Err: fmt.Errorf("unknown model %q", m)}
		}
		if !seen[m] {
			seen[m] = true
			out.Models = append(out.Models, m)
		}
	}
	if len(out.Models) == 0 {
		out.Models = []Model{DefaultModel}
	}
	return out, nil
}

// ParseModelList splits a comma-separated model list. Unknown names are an error.
func ParseModelList(s string) ([]Model, error) {
	var out []Model
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m, err := ParseModel(part)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
