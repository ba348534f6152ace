// Package completion decides whether streamed model output already forms a
// complete answer. The engine never signals end-of-stream, so this is the
// only way a request can settle before its timeout.
package completion

import (
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Defaults applied when corresponding Config fields are unset.
const (
	DefaultMinLength           = 50
	DefaultMaxLength           = 200
	DefaultTerminalPunctuation = ".!?"
	DefaultNoResultMarker      = "no_schedule"
)

// DefaultRequiredFields are the record fields a structured answer must fill.
var DefaultRequiredFields = []string{"date", "time", "title"}

// Config holds the completion policy values.
type Config struct {
	// MinLength is the rune count free text must exceed before punctuation counts.
	MinLength int
	// MaxLength is the rune count past which free text is complete regardless of punctuation.
	MaxLength int
	// TerminalPunctuation lists the runes that may end a complete sentence.
	TerminalPunctuation string
	// RequiredFields must be present and non-empty in a structured record.
	RequiredFields []string
	// NoResultMarker, when true in a closed record, marks a complete "nothing found" answer.
	NoResultMarker string
}

// Detector evaluates accumulated text. It is immutable and safe for concurrent use.
type Detector struct {
	minLen   int
	maxLen   int
	punct    string
	required []string
	noResult string
}

// New builds a Detector, replacing zero-valued policy fields with defaults.
func New(cfg Config) *Detector {
	d := &Detector{
		minLen:   cfg.MinLength,
		maxLen:   cfg.MaxLength,
		punct:    cfg.TerminalPunctuation,
		required: append([]string(nil), cfg.RequiredFields...),
		noResult: cfg.NoResultMarker,
	}
	if d.minLen <= 0 {
		d.minLen = DefaultMinLength
	}
	if d.maxLen <= 0 {
		d.maxLen = DefaultMaxLength
	}
	if d.maxLen < d.minLen {
		d.maxLen = d.minLen
	}
	if d.punct == "" {
		d.punct = DefaultTerminalPunctuation
	}
	if len(d.required) == 0 {
		d.required = append([]string(nil), DefaultRequiredFields...)
	}
	if d.noResult == "" {
		d.noResult = DefaultNoResultMarker
	}
	return d
}

// IsComplete reports whether text looks like a finished answer.
func (d *Detector) IsComplete(text string, structured bool) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if structured {
		return d.recordComplete(text)
	}
	return d.sentenceComplete(text)
}

// RequiredFields returns a copy of the fields a structured record must fill.
func (d *Detector) RequiredFields() []string { return append([]string(nil), d.required...) }

// NoResultMarker returns the key that marks a "nothing found" record.
func (d *Detector) NoResultMarker() string { return d.noResult }

func (d *Detector) sentenceComplete(text string) bool {
	n := utf8.RuneCountInString(text)
	if n > d.maxLen {
		return true
	}
	if n <= d.minLen {
		return false
	}
	last, _ := utf8.DecodeLastRuneInString(text)
	return strings.ContainsRune(d.punct, last)
}

func (d *Detector) recordComplete(text string) bool {
	rec, ok := FirstRecord(text)
	if !ok {
		return false
	}
	if v := gjson.Get(rec, gjson.Escape(d.noResult)); v.Exists() && v.Bool() {
		return true
	}
	for _, f := range d.required {
		if !filled(gjson.Get(rec, gjson.Escape(f))) {
			return false
		}
	}
	return true
}

// filled reports whether v is a non-blank string or a number. Objects,
// arrays, booleans and null never fill a field.
func filled(v gjson.Result) bool {
	switch v.Type {
	case gjson.String:
		return strings.TrimSpace(v.Str) != ""
	case gjson.Number:
		return true
	default:
		return false
	}
}

// FirstRecord returns the first balanced {...} span of text that is valid
// JSON. Braces inside string literals of an open span do not count, and a
// closed span that is not JSON (prose such as "{here it is}") is skipped.
// ok is false while no valid record has closed.
func FirstRecord(text string) (string, bool) {
	start, depth := -1, 0
	inStr, esc := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if depth == 0 {
			if c == '{' {
				start, depth = i, 1
			}
			continue
		}
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				if span := text[start : i+1]; gjson.Valid(span) {
					return span, true
				}
			}
		}
	}
	return "", false
}
