package artifact

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dwsmith1983/forecastd/pkg/types"
)

// dateLayouts are tried in order; only the calendar date part is kept.
var dateLayouts = []string{
	types.DateLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// Parsed is the validated content of one artifact.
type Parsed struct {
	Rows []types.Row
	// Total counts data rows read, Skipped the rows rejected for a bad date or value.
	Total   int
	Skipped int
	// Duplicates counts rows whose date repeated an earlier row; the later value wins.
	Duplicates int
}

// Parse reads and validates the artifact at path.
func (r *Reader) Parse(path string) (*Parsed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	p, err := ParseCSV(f, r.cfg.DateColumn, r.cfg.ValueColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p.Skipped > 0 || p.Duplicates > 0 {
		r.logger.Warn("artifact rows rejected", "file", path,
			"skipped", p.Skipped, "duplicates", p.Duplicates, "valid", len(p.Rows))
	}
	return p, nil
}

// ParseCSV reads a header row and data rows from src. Column names match
// case-insensitively. Rows with an unparseable date or a non-finite value are
// skipped and counted.
func ParseCSV(src io.Reader, dateColumn, valueColumn string) (*Parsed, error) {
	cr := csv.NewReader(src)
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, types.ErrArtifactEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrArtifactMalformed, err)
	}

	dateIdx, valueIdx := -1, -1
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		switch {
		case strings.EqualFold(h, dateColumn):
			dateIdx = i
		case strings.EqualFold(h, valueColumn):
			valueIdx = i
		}
	}
	if dateIdx < 0 || valueIdx < 0 {
		return nil, fmt.Errorf("%w: header must contain %q and %q", types.ErrArtifactMalformed, dateColumn, valueColumn)
	}

	p := &Parsed{}
	index := make(map[types.Date]int)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrArtifactMalformed, err)
		}
		p.Total++

		row, ok := parseRow(rec, dateIdx, valueIdx)
		if !ok {
			p.Skipped++
			continue
		}
		if i, seen := index[row.Date]; seen {
			p.Rows[i].Value = row.Value
			p.Duplicates++
			continue
		}
		index[row.Date] = len(p.Rows)
		p.Rows = append(p.Rows, row)
	}

	switch {
	case p.Total == 0:
		return nil, types.ErrArtifactEmpty
	case len(p.Rows) == 0:
		return nil, fmt.Errorf("%w (%d rows rejected)", types.ErrNoValidRows, p.Skipped)
	}
	return p, nil
}

func parseRow(rec []string, dateIdx, valueIdx int) (types.Row, bool) {
	if dateIdx >= len(rec) || valueIdx >= len(rec) {
		return types.Row{}, false
	}
	d, ok := ParseDate(rec[dateIdx])
	if !ok {
		return types.Row{}, false
	}
	v, ok := ParseValue(rec[valueIdx])
	if !ok {
		return types.Row{}, false
	}
	return types.Row{Date: d, Value: v}, true
}

// ParseDate accepts a date in any of the supported layouts.
func ParseDate(s string) (types.Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return types.DateOf(t), true
		}
	}
	return types.Date{}, false
}

// ParseValue accepts a finite decimal number.
func ParseValue(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
