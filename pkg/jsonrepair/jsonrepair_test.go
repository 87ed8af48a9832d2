package jsonrepair

import (
	"errors"
	"testing"
)

type evalDoc struct {
	Score          float64  `json:"overall_score"`
	Feedback       string   `json:"feedback"`
	CriticalErrors []string `json:"critical_errors"`
}

func TestParseRepairs(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		score    float64
		feedback string
	}{
		{
			name:     "fenced json",
			input:    "Here you go:\n```json\n{\"overall_score\": 8, \"feedback\": \"good\"}\n```\nThanks",
			score:    8,
			feedback: "good",
		},
		{
			name:     "bare fence",
			input:    "```\n{\"overall_score\": 6.5, \"feedback\": \"ok\"}\n```",
			score:    6.5,
			feedback: "ok",
		},
		{
			name:     "surrounding prose",
			input:    "The evaluation is {\"overall_score\": 4, \"feedback\": \"weak\"} as requested.",
			score:    4,
			feedback: "weak",
		},
		{
			name:     "trailing commas",
			input:    `{"overall_score": 7, "feedback": "fine", "critical_errors": ["a",],}`,
			score:    7,
			feedback: "fine",
		},
		{
			name:     "unescaped quotes",
			input:    `{"overall_score": 3, "feedback": "uses "Dear Sir" instead of HR"}`,
			score:    3,
			feedback: `uses "Dear Sir" instead of HR`,
		},
		{
			name:     "comments",
			input:    "{\n// score first\n\"overall_score\": 9, /* note */ \"feedback\": \"great\",\n}",
			score:    9,
			feedback: "great",
		},
		{
			name:     "single quotes",
			input:    `{'overall_score': 5, 'feedback': 'meh'}`,
			score:    5,
			feedback: "meh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc evalDoc
			if err := Parse(tt.input, &doc); err != nil {
				t.Fatalf("parse: %v", err)
			}
			if doc.Score != tt.score {
				t.Errorf("score = %v, want %v", doc.Score, tt.score)
			}
			if doc.Feedback != tt.feedback {
				t.Errorf("feedback = %q, want %q", doc.Feedback, tt.feedback)
			}
		})
	}
}

func TestParseFailureIsTyped(t *testing.T) {
	var doc evalDoc
	err := Parse("no structured data here at all", &doc)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if len(perr.Attempts) != len(DefaultStrategies) {
		t.Fatalf("expected %d attempts, got %d", len(DefaultStrategies), len(perr.Attempts))
	}
	if perr.Attempts[0].Strategy != "direct" {
		t.Fatalf("unexpected first strategy %q", perr.Attempts[0].Strategy)
	}
}

func TestParseEmpty(t *testing.T) {
	var doc evalDoc
	if err := Parse("   ", &doc); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestStripCommentsKeepsURLsInStrings(t *testing.T) {
	in := `{"url": "https://example.com"} // trailing`
	got := StripComments(in)
	if got != `{"url": "https://example.com"} ` {
		t.Fatalf("unexpected result %q", got)
	}
}
