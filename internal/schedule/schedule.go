// Package schedule handles the structured flavour of analysis: spotting
// schedule questions, wrapping them in the extraction prompt and turning the
// model's record into a result.
package schedule

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"analysisd/internal/completion"
	"analysisd/pkg/types"
)

// DefaultKeywords mark a query as a schedule question (English and Korean).
var DefaultKeywords = []string{"schedule", "appointment", "meeting", "일정", "예약", "약속"}

const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["date", "time", "title"],
  "properties": {
    "date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "time": {"type": "string", "pattern": "^[0-9]{1,2}:[0-9]{2}$"},
    "title": {"type": "string", "minLength": 1},
    "location": {"type": "string"}
  }
}`

var compiledRecord = jsonschema.MustCompileString("schedule_record.json", recordSchema)

// Classifier decides which queries are structured and how to read their answers.
type Classifier struct {
	keywords []string
	noResult string
}

// NewClassifier returns a Classifier. Empty keywords fall back to DefaultKeywords
// and an empty marker to completion.DefaultNoResultMarker.
func NewClassifier(keywords []string, noResultMarker string) *Classifier {
	c := &Classifier{noResult: noResultMarker}
	if c.noResult == "" {
		c.noResult = completion.DefaultNoResultMarker
	}
	src := keywords
	if len(src) == 0 {
		src = DefaultKeywords
	}
	for _, k := range src {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			c.keywords = append(c.keywords, k)
		}
	}
	return c
}

// IsStructured reports whether query asks about a schedule.
func (c *Classifier) IsStructured(query string) bool {
	q := strings.ToLower(query)
	for _, k := range c.keywords {
		if strings.Contains(q, k) {
			return true
		}
	}
	return false
}

// Prompt returns the text submitted to the engine for query.
func (c *Classifier) Prompt(query string, structured bool) string {
	query = strings.TrimSpace(query)
	if !structured {
		return query
	}
	return "Extract the schedule information from the text below and return it as exact JSON.\n\n" +
		"Format examples:\n" +
		`With a schedule: {"date":"2025-05-23", "time":"14:00", "title":"Hospital appointment", "location":"Seoul National University Hospital"}` + "\n" +
		`Without a schedule: {"` + c.noResult + `": true}` + "\n\n" +
		"Rules:\n" +
		"- date as YYYY-MM-DD\n" +
		"- time as HH:MM (24h)\n" +
		"- return only the JSON, no explanation\n\n" +
		"Text to analyze: " + query
}

// Answer is the interpretation of a completed structured response.
type Answer struct {
	// NoResult is set when the model reported that nothing was found.
	NoResult bool
	// Record is set when the extracted record passed validation.
	Record *types.ScheduleRecord
	// Raw is the extracted record text, or the trimmed response if none was found.
	Raw string
}

// Interpret extracts the record from a structured response and validates it.
func (c *Classifier) Interpret(response string) Answer {
	raw := Extract(response)
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Answer{Raw: raw}
	}
	if v, ok := payload[c.noResult].(bool); ok && v {
		return Answer{NoResult: true, Raw: raw}
	}
	if err := Validate(payload); err != nil {
		return Answer{Raw: raw}
	}
	rec := &types.ScheduleRecord{}
	if err := json.Unmarshal([]byte(raw), rec); err != nil {
		return Answer{Raw: raw}
	}
	return Answer{Record: rec, Raw: raw}
}

// Validate checks a decoded record against the schedule schema.
func Validate(payload any) error {
	if err := compiledRecord.Validate(payload); err != nil {
		return fmt.Errorf("schedule record: %w", err)
	}
	return nil
}

// Extract returns the first complete record in response, or the trimmed
// response when it holds none.
func Extract(response string) string {
	if rec, ok := completion.FirstRecord(response); ok {
		return rec
	}
	return strings.TrimSpace(response)
}
