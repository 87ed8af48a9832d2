// Package intent extracts a structured reading of a request: what kind of
// text is wanted, its tone, subject and any hard facts such as dates.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zen-systems/expertgate/pkg/adapter"
	"github.com/zen-systems/expertgate/pkg/gate"
	"github.com/zen-systems/expertgate/pkg/jsonrepair"
)

// ErrExtraction is returned when the model reply cannot be used.
var ErrExtraction = errors.New("intent extraction failed")

// Sources of an Intent.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Intent is the structured request reading shared by instruction building.
type Intent struct {
	Expert       string   `json:"expert"`
	Type         string   `json:"type"`
	Tone         string   `json:"tone"`
	Subject      string   `json:"subject,omitempty"`
	KeyPoints    []string `json:"key_points,omitempty"`
	Dates        []string `json:"dates,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
	Style        string   `json:"style,omitempty"`
	Length       string   `json:"length,omitempty"`
	Source       string   `json:"source"`
}

// Extractor produces an Intent for a request.
type Extractor interface {
	Extract(ctx context.Context, expert, request string) (*Intent, error)
}

// ModelExtractor asks a model for the intent as JSON.
type ModelExtractor struct {
	adapter adapter.Adapter
	model   string
}

// NewModelExtractor creates an extractor backed by an adapter.
func NewModelExtractor(a adapter.Adapter, model string) *ModelExtractor {
	return &ModelExtractor{adapter: a, model: model}
}

// Extract calls the model and parses its reply. Errors wrap ErrExtraction.
func (e *ModelExtractor) Extract(ctx context.Context, expert, request string) (*Intent, error) {
	if e == nil || e.adapter == nil {
		return nil, fmt.Errorf("%w: no adapter", ErrExtraction)
	}
	resp, err := e.adapter.Generate(ctx, adapter.Request{
		Model:       e.model,
		Prompt:      extractionPrompt(expert, request),
		Temperature: adapter.Temperature(0.1),
		MaxTokens:   800,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	var raw map[string]any
	if err := jsonrepair.Parse(resp.Text(), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	in := &Intent{
		Expert:       expert,
		Type:         text(raw["type"]),
		Tone:         text(raw["tone"]),
		Subject:      text(raw["subject"]),
		KeyPoints:    list(raw["key_points"]),
		Dates:        list(raw["dates"]),
		Requirements: list(raw["requirements"]),
		Style:        text(raw["style"]),
		Length:       text(raw["length"]),
		Source:       SourceModel,
	}
	if in.Type == "" {
		return nil, fmt.Errorf("%w: reply has no type", ErrExtraction)
	}
	if expert == "email" {
		in.Dates = mergeDates(in.Dates, gate.ExtractDates(request))
	}
	return in, nil
}

var typeHints = map[string]string{
	"email": "sick_leave, vacation, meeting, thank_you, inquiry, complaint, general",
	"poem":  "haiku, sonnet, limerick, ballad, free_verse",
	"story": "fantasy, sci-fi, romance, mystery, horror, adventure, general",
}

func extractionPrompt(expert, request string) string {
	hint, ok := typeHints[expert]
	if !ok {
		hint = "general"
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Analyze this %s request and extract its intent.\n\n", expert))
	sb.WriteString("USER REQUEST: ")
	sb.WriteString(request)
	sb.WriteString("\n\nReturn ONLY valid JSON with:\n{\n")
	sb.WriteString(fmt.Sprintf("    \"type\": \"one of: %s\",\n", hint))
	sb.WriteString(`    "tone": "tone of the requested text",
    "subject": "recipient for emails, theme for poems, premise for stories",
    "key_points": ["specific facts that must appear"],
    "dates": ["dates exactly as written in the request"],
    "requirements": ["explicit constraints: length, names, documentation"],
    "style": "style preference if any",
    "length": "short, medium or long"
}`)
	return sb.String()
}

func mergeDates(model, found []string) []string {
	seen := make(map[string]bool, len(model)+len(found))
	var out []string
	for _, d := range append(append([]string(nil), model...), found...) {
		key := strings.ToLower(strings.TrimSpace(d))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, strings.TrimSpace(d))
	}
	return out
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case []any:
		return strings.Join(list(t), ", ")
	case nil:
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func list(v any) []string {
	switch t := v.(type) {
	case []any:
		var out []string
		for _, item := range t {
			if s := text(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	}
	return nil
}
