package gate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/zen-systems/expertgate/pkg/adapter"
	"github.com/zen-systems/expertgate/pkg/logging"
)

type fixedRater struct {
	result *RubricResult
	err    error
}

func (r fixedRater) Rate(context.Context, string, string) (*RubricResult, error) {
	return r.result, r.err
}

type countCheck int

func (countCheck) Name() string { return "count" }

func (c countCheck) Run(context.Context, string, string) []Violation {
	var out []Violation
	for i := 0; i < int(c); i++ {
		out = append(out, violation("count", fmt.Sprintf("issue %d", i+1)))
	}
	return out
}

func emailConfig() ScoreConfig {
	cfg := DefaultScoreConfig()
	cfg.PenaltyPerIssue = 2.5
	cfg.MaxPenalty = 8.0
	return cfg
}

func newScorer(r Rater, checks ...Check) *HybridScorer {
	return NewHybridScorer(r, WithChecks(checks...), WithScoreConfig(emailConfig()), WithLogger(logging.Discard()))
}

func TestScoreNoIssues(t *testing.T) {
	s := newScorer(fixedRater{result: &RubricResult{Score: 8.2, Feedback: "good"}})

	eval, err := s.Score(context.Background(), "req", "cand")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if eval.Score != 8.2 || !eval.Passed || eval.Penalty != 0 || eval.Source != SourceHybrid {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
	if eval.Feedback != "good" {
		t.Errorf("feedback = %q", eval.Feedback)
	}
}

func TestScorePenaltyCapped(t *testing.T) {
	s := newScorer(fixedRater{result: &RubricResult{Score: 10}}, countCheck(10))

	eval, err := s.Score(context.Background(), "req", "cand")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if eval.Penalty != 8.0 {
		t.Errorf("penalty = %v, want 8.0", eval.Penalty)
	}
	if math.Abs(eval.Score-2.0) > 1e-9 {
		t.Errorf("score = %v, want 2.0", eval.Score)
	}
	if eval.Passed {
		t.Error("should not pass")
	}
	if len(eval.CriticalErrors) != 10 {
		t.Errorf("critical errors = %d", len(eval.CriticalErrors))
	}
}

func TestScoreIssueCap(t *testing.T) {
	s := newScorer(fixedRater{result: &RubricResult{Score: 9.5, Feedback: "fine", CriticalErrors: []string{"model error"}}}, countCheck(1))

	eval, err := s.Score(context.Background(), "req", "cand")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	// 9.5 - 2.5 = 7.0, capped to 5.0 because an issue exists.
	if eval.Score != 5.0 || eval.Passed {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
	if eval.Feedback != "CRITICAL ISSUES: issue 1. fine" {
		t.Errorf("feedback = %q", eval.Feedback)
	}
	if len(eval.CriticalErrors) != 2 || eval.CriticalErrors[0] != "model error" || eval.CriticalErrors[1] != "issue 1" {
		t.Errorf("critical errors = %v", eval.CriticalErrors)
	}
}

func TestScoreRubricFailureWithIssues(t *testing.T) {
	s := newScorer(fixedRater{err: errors.New("grader down")}, countCheck(2))

	eval, err := s.Score(context.Background(), "req", "cand")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if eval.Source != SourceProgrammatic || eval.Score != 5.0 {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
	if eval.Feedback != "issue 1; issue 2" {
		t.Errorf("feedback = %q", eval.Feedback)
	}
}

func TestScoreRubricFailureWithoutIssues(t *testing.T) {
	s := newScorer(fixedRater{err: errors.New("grader down")})

	_, err := s.Score(context.Background(), "req", "cand")
	if !errors.Is(err, ErrEvaluation) {
		t.Fatalf("expected ErrEvaluation, got %v", err)
	}
}

func TestScoreNilRater(t *testing.T) {
	if _, err := newScorer(nil).Score(context.Background(), "req", "cand"); !errors.Is(err, ErrEvaluation) {
		t.Fatalf("expected ErrEvaluation, got %v", err)
	}
}

func TestRubricScorerMean(t *testing.T) {
	mock := adapter.NewScriptedMockAdapter(adapter.MockReply{Text: `Here you go:
{"completeness": 8, "structure": "9", "accuracy": 7, "tone": 10, "clarity": 6, "overall_score": 1,
 "feedback": "ok", "critical_errors": ["wrong date"], "missing_elements": ["doctor note"],}`})

	res, err := NewRubricScorer(mock, "m", EmailRubric()).Rate(context.Background(), "req", "cand")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if res.Score != 8.0 {
		t.Errorf("score = %v, want mean 8.0", res.Score)
	}
	if len(res.Criteria) != 5 || res.Criteria["structure"] != 9 {
		t.Errorf("criteria = %v", res.Criteria)
	}
	if len(res.CriticalErrors) != 1 || len(res.Suggestions) != 1 || res.Suggestions[0] != "doctor note" {
		t.Errorf("lists = %v / %v", res.CriticalErrors, res.Suggestions)
	}

	prompt := mock.Requests()[0].Prompt
	for _, c := range EmailRubric().Criteria {
		if !strings.Contains(prompt, `"`+c+`"`) {
			t.Errorf("prompt missing criterion %q", c)
		}
	}
}

func TestRubricScorerOverallFallback(t *testing.T) {
	mock := adapter.NewScriptedMockAdapter(adapter.MockReply{Text: `{"overall_score": 12, "feedback": "x"}`})

	res, err := NewRubricScorer(mock, "m", PoemRubric()).Rate(context.Background(), "req", "cand")
	if err != nil {
		t.Fatalf("rate: %v", err)
	}
	if res.Score != 10 {
		t.Errorf("score = %v, want clamped 10", res.Score)
	}
}

func TestRubricScorerErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply adapter.MockReply
	}{
		{name: "adapter error", reply: adapter.MockReply{Err: errors.New("boom")}},
		{name: "no json", reply: adapter.MockReply{Text: "I cannot grade this."}},
		{name: "no scores", reply: adapter.MockReply{Text: `{"feedback": "nothing"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := adapter.NewScriptedMockAdapter(tt.reply)
			_, err := NewRubricScorer(mock, "m", StoryRubric()).Rate(context.Background(), "req", "cand")
			if !errors.Is(err, ErrEvaluation) {
				t.Fatalf("expected ErrEvaluation, got %v", err)
			}
		})
	}
}

func TestRubricScorerTruncatesCandidate(t *testing.T) {
	mock := adapter.NewScriptedMockAdapter(adapter.MockReply{Text: `{"overall_score": 7}`})
	long := strings.Repeat("x", 5000)

	if _, err := NewRubricScorer(mock, "m", StoryRubric()).Rate(context.Background(), "req", long); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if strings.Contains(mock.Requests()[0].Prompt, strings.Repeat("x", 3001)) {
		t.Error("candidate should be truncated to 3000 characters")
	}
}

func TestUnavailable(t *testing.T) {
	eval := Unavailable(10, errors.New("down"))
	if !eval.Passed || eval.Score != 10 || eval.Source != SourceUnavailable {
		t.Fatalf("unexpected evaluation: %+v", eval)
	}
}
