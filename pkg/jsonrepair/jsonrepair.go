// Package jsonrepair decodes JSON objects embedded in free-form model output.
//
// Model responses often wrap JSON in markdown fences, leave trailing commas,
// embed unescaped quotes or use single quotes. Parse applies an ordered list of
// repair strategies and stops at the first one that decodes.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyInput is returned when there is nothing to parse.
var ErrEmptyInput = errors.New("jsonrepair: empty input")

// Strategy rewrites candidate JSON text before decoding.
type Strategy struct {
	Name  string
	Apply func(string) string
}

// Attempt records one failed strategy.
type Attempt struct {
	Strategy string
	Err      error
}

// ParseError is returned when every strategy failed to produce valid JSON.
type ParseError struct {
	Input    string
	Attempts []Attempt
}

func (e *ParseError) Error() string {
	if e == nil || len(e.Attempts) == 0 {
		return "jsonrepair: malformed structured output"
	}
	last := e.Attempts[len(e.Attempts)-1]
	return fmt.Sprintf("jsonrepair: malformed structured output after %d strategies (last %s: %v)", len(e.Attempts), last.Strategy, last.Err)
}

func (e *ParseError) Unwrap() error {
	if e == nil || len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
	lineCommentRe   = regexp.MustCompile(`(?m)//[^\n]*$`)
	blockCommentRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	singleKeyRe     = regexp.MustCompile(`'(\w+)'\s*:`)
	singleValueRe   = regexp.MustCompile(`:\s*'([^']*)'`)
)

// DefaultStrategies is the ordered repair list used by Parse.
var DefaultStrategies = []Strategy{
	{Name: "direct", Apply: func(s string) string { return s }},
	{Name: "trailing_commas", Apply: StripTrailingCommas},
	{Name: "unescaped_quotes", Apply: EscapeInnerQuotes},
	{Name: "comments", Apply: func(s string) string {
		return EscapeInnerQuotes(StripTrailingCommas(StripComments(s)))
	}},
	{Name: "aggressive", Apply: aggressiveClean},
}

// Parse extracts the JSON object from text and decodes it into v.
func Parse(text string, v any) error {
	return ParseWith(text, v, DefaultStrategies)
}

// ParseWith is Parse with an explicit strategy list.
func ParseWith(text string, v any, strategies []Strategy) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	candidate := Extract(text)
	perr := &ParseError{Input: candidate}
	for _, s := range strategies {
		err := json.Unmarshal([]byte(s.Apply(candidate)), v)
		if err == nil {
			return nil
		}
		perr.Attempts = append(perr.Attempts, Attempt{Strategy: s.Name, Err: err})
	}
	return perr
}

// Extract isolates the most likely JSON object in text: the body of a
// ```json fence, else the first fence that starts with "{", then the span
// from the first "{" to the last "}".
func Extract(text string) string {
	out := fromCodeBlock(text)
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start >= 0 && end > start {
		out = out[start : end+1]
	}
	return out
}

func fromCodeBlock(text string) string {
	if _, after, ok := strings.Cut(text, "```json"); ok {
		body, _, _ := strings.Cut(after, "```")
		return strings.TrimSpace(body)
	}
	if strings.Contains(text, "```") {
		parts := strings.Split(text, "```")
		for _, part := range parts[1:] {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, "{") {
				return part
			}
		}
	}
	return strings.TrimSpace(text)
}

// StripTrailingCommas removes commas that directly precede a closing bracket.
func StripTrailingCommas(s string) string {
	return trailingCommaRe.ReplaceAllString(s, "$1")
}

// StripComments removes // line comments and /* */ block comments.
// Line comments are only recognised outside of string literals.
func StripComments(s string) string {
	s = blockCommentRe.ReplaceAllString(s, "")
	var sb strings.Builder
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			sb.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			sb.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				sb.WriteByte('\n')
			}
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// EscapeInnerQuotes escapes double quotes inside string literals that do not
// look like the end of the literal. A quote closes a string only when the next
// non-space byte is a structural character (, : } ]) or the end of input.
func EscapeInnerQuotes(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			sb.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
			sb.WriteByte(c)
		case c == '\\':
			escaped = true
			sb.WriteByte(c)
		case c == '"':
			if closesString(s, i+1) {
				inString = false
				sb.WriteByte(c)
			} else {
				sb.WriteString(`\"`)
			}
		case c == '\n':
			sb.WriteString(`\n`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func closesString(s string, from int) bool {
	for j := from; j < len(s); j++ {
		switch s[j] {
		case ' ', '\t', '\r', '\n':
			continue
		case ',', ':', '}', ']':
			return true
		default:
			return false
		}
	}
	return true
}

func aggressiveClean(s string) string {
	s = StripComments(s)
	s = strings.Join(strings.Fields(s), " ")
	s = StripTrailingCommas(s)
	s = singleKeyRe.ReplaceAllString(s, `"$1":`)
	s = singleValueRe.ReplaceAllString(s, `: "$1"`)
	if start := strings.Index(s, "{"); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return s
}
