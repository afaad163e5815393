package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the wire and storage layout of a forecast date.
const DateLayout = "2006-01-02"

// Date is a timezone-naive calendar date. The zero value is not a valid date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool { return d.Year == 0 && d.Month == 0 && d.Day == 0 }

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a "YYYY-MM-DD" string.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Prediction is one persisted forecast value. (Symbol, Model, Date) is unique.
type Prediction struct {
	Symbol string  `json:"symbol"`
	Model  Model   `json:"model"`
	Date   Date    `json:"date"`
	Value  float64 `json:"value"`
}

// Point is a single (date, value) pair returned by the query API.
type Point struct {
	Date  Date    `json:"date"`
	Value float64 `json:"value"`
}

// Row is one validated artifact row.
type Row struct {
	Date  Date
	Value float64
}

// UpsertResult summarizes one bulk upsert.
type UpsertResult struct {
	Matched  int `json:"matched"`
	Upserted int `json:"upserted"`
	Failed   int `json:"failed,omitempty"`
}

// Add accumulates another result into r.
func (r *UpsertResult) Add(o UpsertResult) {
	r.Matched += o.Matched
	r.Upserted += o.Upserted
	r.Failed += o.Failed
}

// RunRequest describes one invocation of the external forecasting job.
type RunRequest struct {
	Symbol  string  `json:"symbol"`
	Period  string  `json:"period"`
	Horizon int     `json:"horizon"`
	Models  []Model `json:"models,omitempty"`
}

// Wants reports whether model m was requested.
func (r RunRequest) Wants(m Model) bool {
	for _, x := range r.Models {
		if x == m {
			return true
		}
	}
	return false
}

// ModelResult is the per-model ingestion outcome of a run.
type ModelResult struct {
	Matched  int    `json:"matched"`
	Upserted int    `json:"upserted"`
	Failed   int    `json:"failed,omitempty"`
	Rows     int    `json:"rows,omitempty"`
	Skipped  int    `json:"skipped,omitempty"`
	File     string `json:"file,omitempty"`
	Error    string `json:"error,omitempty"`
}

// OK reports whether the model was ingested.
func (m ModelResult) OK() bool { return m.Error == "" }

// MarshalJSON renders failed models as {"error": "..."} only.
func (m ModelResult) MarshalJSON() ([]byte, error) {
	if m.Error != "" {
		return json.Marshal(map[string]string{"error": m.Error})
	}
	type plain ModelResult
	return json.Marshal(plain(m))
}

// RunResult is the summary of one run returned to the caller.
type RunResult struct {
	RunID      string                `json:"runId"`
	Symbol     string                `json:"symbol"`
	Period     string                `json:"period"`
	Horizon    int                   `json:"horizon"`
	Models     []Model               `json:"models"`
	Status     RunStatus             `json:"status"`
	ExitCode   int                   `json:"exitCode"`
	Message    string                `json:"message,omitempty"`
	Imported   map[Model]ModelResult `json:"imported,omitempty"`
	Logs       string                `json:"logs"`
	StartedAt  time.Time             `json:"startedAt"`
	FinishedAt time.Time             `json:"finishedAt"`
}

// Notification is a run lifecycle event delivered to notify sinks.
type Notification struct {
	Kind      EventKind              `json:"kind"`
	Level     NotifyLevel            `json:"level"`
	RunID     string                 `json:"runId"`
	Symbol    string                 `json:"symbol"`
	Model     Model                  `json:"model,omitempty"`
	Horizon   int                    `json:"horizon,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Logs      string                 `json:"-"`
	Timestamp time.Time              `json:"timestamp"`
}
