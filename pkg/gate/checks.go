package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/zen-systems/expertgate/pkg/adapter"
	"github.com/zen-systems/expertgate/pkg/jsonrepair"
	"github.com/zen-systems/expertgate/pkg/keyword"
)

var hrTerms = []string{"hr", "human resource", "human resources"}

// RecipientCheck verifies the email addresses the recipient named in the request.
// With an adapter it asks the model; otherwise, or when the model call fails,
// it applies the HR heuristic.
type RecipientCheck struct {
	Adapter adapter.Adapter
	Model   string
}

// Name returns the check identifier.
func (RecipientCheck) Name() string { return "recipient" }

// Run checks recipient consistency.
func (c RecipientCheck) Run(ctx context.Context, request, candidate string) []Violation {
	if c.Adapter != nil {
		var result struct {
			RecipientMatch *bool    `json:"recipient_match"`
			Issues         []string `json:"issues"`
		}
		if err := askJSON(ctx, c.Adapter, c.Model, recipientPrompt(request, candidate), &result); err == nil && result.RecipientMatch != nil {
			if *result.RecipientMatch {
				return nil
			}
			return violations(c.Name(), result.Issues)
		}
	}

	if keyword.ContainsAny(request, hrTerms...) && !keyword.ContainsAny(candidate, hrTerms...) {
		return []Violation{violation(c.Name(), "Prompt mentions HR but email doesn't address HR")}
	}
	return nil
}

// ContextCheck asks a model whether tense and intent match the request. It
// reports nothing when the model is unavailable or fails.
type ContextCheck struct {
	Adapter adapter.Adapter
	Model   string
}

// Name returns the check identifier.
func (ContextCheck) Name() string { return "context" }

// Run checks tense and intent consistency.
func (c ContextCheck) Run(ctx context.Context, request, candidate string) []Violation {
	if c.Adapter == nil {
		return nil
	}
	var result struct {
		ContextMatch *bool    `json:"context_match"`
		Issues       []string `json:"issues"`
	}
	if err := askJSON(ctx, c.Adapter, c.Model, contextPrompt(request, candidate), &result); err != nil {
		return nil
	}
	if result.ContextMatch == nil || *result.ContextMatch {
		return nil
	}
	return violations(c.Name(), result.Issues)
}

// MinWordsCheck flags text shorter than Min words.
type MinWordsCheck struct {
	Min int
}

// Name returns the check identifier.
func (MinWordsCheck) Name() string { return "min_words" }

// Run counts whitespace-separated words.
func (c MinWordsCheck) Run(_ context.Context, _, candidate string) []Violation {
	if n := len(strings.Fields(candidate)); n < c.Min {
		return []Violation{violation(c.Name(), fmt.Sprintf("Story too short (%d words, minimum %d)", n, c.Min))}
	}
	return nil
}

// TruncationCheck flags text that ends mid-thought.
type TruncationCheck struct{}

// Name returns the check identifier.
func (TruncationCheck) Name() string { return "truncation" }

// Run inspects the trailing characters.
func (c TruncationCheck) Run(_ context.Context, _, candidate string) []Violation {
	trimmed := strings.TrimRight(candidate, " \t\r\n")
	if strings.HasSuffix(trimmed, "...") || strings.HasSuffix(trimmed, "[") {
		return []Violation{violation(c.Name(), "Story appears incomplete or truncated")}
	}
	return nil
}

// ParagraphCheck requires at least Min non-empty paragraphs.
type ParagraphCheck struct {
	Min int
}

// Name returns the check identifier.
func (ParagraphCheck) Name() string { return "structure" }

// Run splits on blank lines.
func (c ParagraphCheck) Run(_ context.Context, _, candidate string) []Violation {
	count := 0
	for _, p := range strings.Split(candidate, "\n\n") {
		if strings.TrimSpace(p) != "" {
			count++
		}
	}
	if count < c.Min {
		return []Violation{violation(c.Name(), "Story lacks clear beginning, middle, or end")}
	}
	return nil
}

// EmailChecks returns the email rules. a may be nil.
func EmailChecks(a adapter.Adapter, model string) []Check {
	return []Check{
		RecipientCheck{Adapter: a, Model: model},
		DateCheck{},
		ContextCheck{Adapter: a, Model: model},
	}
}

// StoryChecks returns the story rules.
func StoryChecks() []Check {
	return []Check{
		MinWordsCheck{Min: 100},
		TruncationCheck{},
		ParagraphCheck{Min: 3},
	}
}

// RunChecks runs every check and concatenates the violations.
func RunChecks(ctx context.Context, checks []Check, request, candidate string) []Violation {
	var out []Violation
	for _, c := range checks {
		out = append(out, c.Run(ctx, request, candidate)...)
	}
	return out
}

func violations(rule string, messages []string) []Violation {
	var out []Violation
	for _, m := range messages {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, violation(rule, m))
		}
	}
	return out
}

func askJSON(ctx context.Context, a adapter.Adapter, model, prompt string, v any) error {
	resp, err := a.Generate(ctx, adapter.Request{
		Model:       model,
		Prompt:      prompt,
		Temperature: adapter.Temperature(0),
		MaxTokens:   512,
	})
	if err != nil {
		return err
	}
	return jsonrepair.Parse(resp.Text(), v)
}

func recipientPrompt(request, candidate string) string {
	return fmt.Sprintf(`Analyze if the recipient in the email matches what was requested in the prompt.

PROMPT: %s

GENERATED EMAIL: %s

Check if:
1. The recipient mentioned in the prompt matches the recipient addressed in the email
2. If prompt mentions a group (like HR, team, department), email should address that group, not a specific person
3. If prompt mentions a specific person, email should address that person

Return ONLY valid JSON:
{"recipient_match": true/false, "issues": ["list any recipient mismatches found"], "prompt_recipient": "...", "email_recipient": "..."}`, request, candidate)
}

func contextPrompt(request, candidate string) string {
	return fmt.Sprintf(`Analyze if the email context and intent match what was requested in the prompt.

PROMPT: %s

GENERATED EMAIL: %s

Check for:
1. Tense consistency: if the prompt requests future action, the email should not use past tense
2. Context match: if the prompt is about requesting leave, the email should request leave, not say it was already taken
3. Intent match: the email should match the intent (request, inquiry, thank you) of the prompt
4. Content relevance

Return ONLY valid JSON:
{"context_match": true/false, "issues": ["list any context/tense/intent mismatches found"], "prompt_intent": "...", "email_intent": "..."}`, request, candidate)
}
