package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zen-systems/expertgate/pkg/adapter"
)

var classifierHints = map[string]string{
	"story": "For creative narratives, tales, fiction, storytelling, adventures, fantasy, sci-fi, mystery, novels, short stories",
	"poem":  "For poetry, verses, rhymes, haikus, sonnets, and all poetic compositions",
	"email": "For professional emails, formal letters, business communication, leave requests, HR messages, meeting requests",
}

// Classifier asks a model to label a request with one expert.
type Classifier struct {
	adapter adapter.Adapter
	model   string
	explain bool
}

// NewClassifier creates a classifier backed by the given adapter and model.
// When explain is set a second call asks the model for a short reason.
func NewClassifier(a adapter.Adapter, model string, explain bool) *Classifier {
	return &Classifier{adapter: a, model: model, explain: explain}
}

// Classify returns the chosen expert among experts. reason is empty unless
// explanation is enabled and succeeded.
func (c *Classifier) Classify(ctx context.Context, text string, experts []string) (expert, reason string, err error) {
	if c == nil || c.adapter == nil {
		return "", "", errors.New("classifier not configured")
	}

	resp, err := c.adapter.Generate(ctx, adapter.Request{
		Model:       c.model,
		Prompt:      buildClassifierPrompt(text, experts),
		Temperature: adapter.Temperature(0),
		MaxTokens:   16,
	})
	if err != nil {
		return "", "", fmt.Errorf("classifier call: %w", err)
	}

	label := parseLabel(resp.Text())
	if label == "" {
		return "", "", errors.New("classifier returned empty response")
	}
	for _, name := range experts {
		if strings.ToUpper(name) == label {
			expert = name
			break
		}
	}
	if expert == "" {
		return "", "", fmt.Errorf("classifier returned unknown label %q", label)
	}

	if c.explain {
		reason = c.reason(ctx, text, expert)
	}
	return expert, reason, nil
}

func (c *Classifier) reason(ctx context.Context, text, expert string) string {
	resp, err := c.adapter.Generate(ctx, adapter.Request{
		Model:       c.model,
		Prompt:      buildReasonPrompt(text, expert),
		Temperature: adapter.Temperature(0),
		MaxTokens:   200,
	})
	if err != nil {
		return ""
	}
	reason := strings.TrimSpace(resp.Text())
	for _, prefix := range []string{"Explanation:", "Reason:"} {
		reason = strings.TrimSpace(strings.TrimPrefix(reason, prefix))
	}
	return reason
}

func buildClassifierPrompt(text string, experts []string) string {
	labels := make([]string, 0, len(experts))

	var sb strings.Builder
	sb.WriteString("You are an expert routing system. Analyze the user's request and determine which expert should handle it.\n\n")
	sb.WriteString("Available experts:\n")
	for _, name := range experts {
		label := strings.ToUpper(name)
		labels = append(labels, label)
		hint, ok := classifierHints[name]
		if !ok {
			hint = "For " + name + " requests"
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", label, hint))
	}
	sb.WriteString(fmt.Sprintf("\nUser request: %q\n\n", text))
	sb.WriteString("Respond with ONLY the expert name in uppercase: ")
	sb.WriteString(joinLabels(labels))
	return sb.String()
}

func buildReasonPrompt(text, expert string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Analyze why the %s expert is the best choice for this request.\n\n", expert))
	sb.WriteString(fmt.Sprintf("User request: %q\n\n", text))
	sb.WriteString("Provide a clear, specific explanation (2-3 sentences) explaining:\n")
	sb.WriteString(fmt.Sprintf("1. What specific elements in the request indicate %s expert is needed\n", expert))
	sb.WriteString("2. Why this expert's capabilities match the request\n")
	sb.WriteString("3. What type of content the user is asking for\n\n")
	sb.WriteString("Response (just the explanation, no labels):")
	return sb.String()
}

// joinLabels renders "A, B, or C".
func joinLabels(labels []string) string {
	switch len(labels) {
	case 0:
		return ""
	case 1:
		return labels[0]
	case 2:
		return labels[0] + " or " + labels[1]
	}
	return strings.Join(labels[:len(labels)-1], ", ") + ", or " + labels[len(labels)-1]
}

// parseLabel normalizes a classifier reply to a bare upper-case token.
func parseLabel(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)
	if fields := strings.Fields(content); len(fields) > 0 {
		content = fields[0]
	}
	content = strings.Trim(content, ".:*\"'`")
	return strings.ToUpper(content)
}
