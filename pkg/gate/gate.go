// Package gate scores generated text against the request that produced it.
//
// A score combines a model-graded rubric with deterministic checks; every
// check violation costs a fixed penalty and caps the final score.
package gate

import (
	"context"
	"errors"
)

// ErrEvaluation is returned when no score could be produced.
var ErrEvaluation = errors.New("evaluation unavailable")

// Scorer grades a candidate against the request.
type Scorer interface {
	Score(ctx context.Context, request, candidate string) (*Evaluation, error)
}

// Check is a deterministic (or optionally model-assisted) quality rule.
type Check interface {
	Name() string
	Run(ctx context.Context, request, candidate string) []Violation
}

// Violation describes a specific quality issue.
type Violation struct {
	Rule       string `json:"rule"`
	Severity   string `json:"severity"` // "error", "warning", "info"
	Message    string `json:"message"`
	Location   string `json:"location,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Evaluation sources.
const (
	SourceHybrid       = "hybrid"
	SourceProgrammatic = "programmatic"
	SourceUnavailable  = "unavailable"
)

// Evaluation is the outcome of scoring one attempt.
type Evaluation struct {
	Score          float64            `json:"score"`
	Passed         bool               `json:"passed"`
	Feedback       string             `json:"feedback,omitempty"`
	CriticalErrors []string           `json:"critical_errors,omitempty"`
	Suggestions    []string           `json:"suggestions,omitempty"`
	Criteria       map[string]float64 `json:"criteria,omitempty"`
	RubricScore    float64            `json:"rubric_score"`
	Penalty        float64            `json:"penalty"`
	Source         string             `json:"source"`
}

// Unavailable returns the fail-open evaluation recorded when scoring fails.
func Unavailable(defaultScore float64, err error) Evaluation {
	feedback := "evaluation unavailable"
	if err != nil {
		feedback = "evaluation unavailable: " + err.Error()
	}
	return Evaluation{
		Score:       defaultScore,
		Passed:      true,
		Feedback:    feedback,
		RubricScore: defaultScore,
		Source:      SourceUnavailable,
	}
}

func violation(rule, message string) Violation {
	return Violation{Rule: rule, Severity: "error", Message: message}
}
