package workflow

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/zen-systems/expertgate/pkg/adapter"
	"github.com/zen-systems/expertgate/pkg/expert"
	"github.com/zen-systems/expertgate/pkg/gate"
	"github.com/zen-systems/expertgate/pkg/intent"
	"github.com/zen-systems/expertgate/pkg/logging"
	"github.com/zen-systems/expertgate/pkg/repair"
)

type seqScorer struct {
	mu     sync.Mutex
	scores []float64
	calls  int
	err    error
}

func (s *seqScorer) Score(_ context.Context, _, _ string) (*gate.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	score := s.scores[len(s.scores)-1]
	if s.calls <= len(s.scores) {
		score = s.scores[s.calls-1]
	}
	return &gate.Evaluation{
		Score:          score,
		Passed:         score >= 7,
		Feedback:       "needs work",
		CriticalErrors: []string{"missing detail"},
		Source:         gate.SourceHybrid,
	}, nil
}

type fixedRater struct{ score float64 }

func (r fixedRater) Rate(context.Context, string, string) (*gate.RubricResult, error) {
	return &gate.RubricResult{Score: r.score, Feedback: "Clear and polite."}, nil
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string, string) (*intent.Intent, error) {
	return nil, intent.ErrExtraction
}

func testSettings() Settings {
	s := DefaultSettings()
	s.Model = "mock-1"
	s.Temperature = 0.5
	s.TemperatureStep = 0.1
	s.UsePreparer = false
	return s
}

func newTestWorkflow(s expert.Strategy, gen adapter.Adapter, opts ...Option) *Workflow {
	opts = append([]Option{WithSettings(testSettings()), WithLogger(logging.Discard())}, opts...)
	return New(s, gen, opts...)
}

func longEmail(body string) string {
	return "Subject: Sick Leave Request\n\nDear HR,\n\n" + body + "\n\nThank you for your understanding.\n\nBest regards,\nSam"
}

func TestRetryBoundSelectsBest(t *testing.T) {
	gen := adapter.NewScriptedMockAdapter(
		adapter.MockReply{Text: longEmail("first attempt that is long enough to count as a real email body")},
		adapter.MockReply{Text: longEmail("second attempt that is long enough to count as a real email body")},
		adapter.MockReply{Text: longEmail("third attempt that is long enough to count as a real email body")},
	)
	scorer := &seqScorer{scores: []float64{3.0, 5.0, 4.0}}
	w := newTestWorkflow(expert.Email{}, gen, WithScorer(scorer))

	res, err := w.Run(context.Background(), "email HR", Overrides{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Evaluations) != 3 || res.RetryCount != 2 {
		t.Fatalf("expected 3 evaluations and 2 retries, got %d/%d", len(res.Evaluations), res.RetryCount)
	}
	if res.Output != OutputBestAttempt || !strings.Contains(res.Text, "second attempt") {
		t.Fatalf("expected second attempt selected, got %s:\n%s", res.Output, res.Text)
	}
	if res.Final == nil || res.Final.Score != 5.0 {
		t.Fatalf("unexpected final evaluation %+v", res.Final)
	}
}

func TestRetryBoundConstantScore(t *testing.T) {
	gen := adapter.NewMockAdapterWithResponses(nil, "a reply that is comfortably longer than one hundred characters so the email strategy treats it as complete text")
	scorer := &seqScorer{scores: []float64{3.0}}
	w := newTestWorkflow(expert.Email{}, gen, WithScorer(scorer))

	res, _ := w.Run(context.Background(), "email HR", Overrides{})
	if scorer.calls != 3 {
		t.Fatalf("expected 3 scored attempts, got %d", scorer.calls)
	}
	if res.Attempts[0].Text != res.Text {
		t.Fatalf("ties should select the earliest attempt")
	}
}

func TestTemperatureSchedule(t *testing.T) {
	gen := adapter.NewMockAdapterWithResponses(nil, strings.Repeat("text ", 40))
	w := newTestWorkflow(expert.Email{}, gen, WithScorer(&seqScorer{scores: []float64{1}}))
	if _, err := w.Run(context.Background(), "email", Overrides{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []float64{0.5, 0.6, 0.7}
	reqs := gen.Requests()
	if len(reqs) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(reqs))
	}
	for i, r := range reqs {
		if r.Temperature == nil || diff(*r.Temperature, want[i]) > 1e-9 {
			t.Fatalf("attempt %d temperature = %v, want %v", i, r.Temperature, want[i])
		}
	}
	if strings.Contains(reqs[0].Prompt, "CRITICAL FEEDBACK") {
		t.Fatalf("first attempt must not carry feedback")
	}
	if strings.Count(reqs[2].Prompt, "=== CRITICAL FEEDBACK") != 1 {
		t.Fatalf("feedback block should be replaced, not stacked:\n%s", reqs[2].Prompt)
	}
}

func TestTemperatureClamp(t *testing.T) {
	s := Settings{Temperature: 0.9, TemperatureStep: 0.1, MaxTemperature: 1.0}
	if got := s.temperatureFor(5); got != 1.0 {
		t.Fatalf("expected clamp to max, got %v", got)
	}
	s = Settings{Temperature: 0.8, TemperatureStep: -0.1, MaxTemperature: 1.0}
	if got := s.temperatureFor(3); got != 0.8 {
		t.Fatalf("expected base floor, got %v", got)
	}
}

func TestEvaluatorDisabled(t *testing.T) {
	gen := adapter.NewMockAdapterWithResponses(nil, strings.Repeat("word ", 30))
	scorer := &seqScorer{scores: []float64{1}}
	s := testSettings()
	s.UseEvaluator = false
	w := New(expert.Poem{}, gen, WithSettings(s), WithScorer(scorer), WithLogger(logging.Discard()))

	res, err := w.Run(context.Background(), "write a poem", Overrides{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if scorer.calls != 0 || len(res.Evaluations) != 0 || len(res.Attempts) != 1 {
		t.Fatalf("evaluator should be skipped: calls=%d evals=%d", scorer.calls, len(res.Evaluations))
	}
	if res.Output != OutputGenerated || res.Final != nil {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSickLeaveScenario(t *testing.T) {
	request := "Write an email to HR about my sick leave from December 1-3"
	gen := adapter.NewScriptedMockAdapter(
		adapter.MockReply{Text: longEmail("I am unwell and need to take a few days of sick leave next week to recover.")},
		adapter.MockReply{Text: longEmail("I am unwell and need to take sick leave from December 1-3 to recover.")},
	)
	scorer := gate.NewHybridScorer(fixedRater{score: 9},
		gate.WithChecks(gate.DateCheck{}),
		gate.WithScoreConfig(gate.ScoreConfig{Threshold: 7, PenaltyPerIssue: 2.5, MaxPenalty: 8, IssueScoreCap: 5, DefaultScore: 10}),
		gate.WithLogger(logging.Discard()),
	)
	w := newTestWorkflow(expert.Email{}, gen, WithScorer(scorer), WithExtractor(failingExtractor{}))

	res, err := w.Run(context.Background(), request, Overrides{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Evaluations) != 2 || res.RetryCount != 1 {
		t.Fatalf("expected 2 evaluations and 1 retry, got %d/%d", len(res.Evaluations), res.RetryCount)
	}
	if res.Evaluations[0].Passed || res.Evaluations[0].Score > 5 {
		t.Fatalf("first attempt should fail with capped score: %+v", res.Evaluations[0])
	}
	if !res.Evaluations[1].Passed {
		t.Fatalf("second attempt should pass: %+v", res.Evaluations[1])
	}
	if !strings.Contains(res.Text, "December 1-3") || res.Output != OutputGenerated {
		t.Fatalf("expected attempt-2 text, got:\n%s", res.Text)
	}
	if res.Intent.Type != "sick_leave" || res.Intent.Subject != "HR" {
		t.Fatalf("expected keyword fallback intent, got %+v", res.Intent)
	}
	second := gen.Requests()[1].Prompt
	if !strings.Contains(second, "CRITICAL ERRORS TO FIX") || !strings.Contains(second, "December 1-3") {
		t.Fatalf("second prompt lacks feedback:\n%s", second)
	}
}

func TestTruncationRepair(t *testing.T) {
	gen := adapter.NewScriptedMockAdapter(
		adapter.MockReply{Text: "Subject: Hi\n\nDear HR, I am...", Truncated: true},
		adapter.MockReply{Text: longEmail("This is the full body of the email without truncation at all.")},
	)
	scorer := &seqScorer{scores: []float64{9}}
	w := newTestWorkflow(expert.Email{}, gen, WithScorer(scorer))

	res, err := w.Run(context.Background(), "email HR", Overrides{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	reqs := gen.Requests()
	if len(reqs) != 2 || reqs[1].MaxTokens != 4000 {
		t.Fatalf("expected one repair at doubled tokens, got %+v", reqs)
	}
	if *reqs[0].Temperature != *reqs[1].Temperature {
		t.Fatalf("repair must reuse the attempt temperature")
	}
	if res.RetryCount != 0 || res.TruncationRepairs != 1 || len(res.Evaluations) != 1 {
		t.Fatalf("repair should not consume retries: %+v", res)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("expected one record per provider call, got %d", len(res.Attempts))
	}
	truncated, repaired := res.Attempts[0], res.Attempts[1]
	if truncated.Index != 0 || truncated.Repair || !truncated.Truncated || truncated.MaxTokens != 2000 {
		t.Fatalf("unexpected truncated record %+v", truncated)
	}
	if !strings.Contains(truncated.Text, "Dear HR, I am...") || truncated.Scored() {
		t.Fatalf("truncated record should keep its text unscored: %+v", truncated)
	}
	if repaired.Index != 0 || !repaired.Repair || repaired.MaxTokens != 4000 || !repaired.Scored() {
		t.Fatalf("unexpected repair record %+v", repaired)
	}
	if res.Text != repaired.Text || res.BestAttempt != 0 {
		t.Fatalf("repaired text should be returned, best attempt %d", res.BestAttempt)
	}
}

func TestTruncationRepairFailureKeepsText(t *testing.T) {
	gen := adapter.NewScriptedMockAdapter(
		adapter.MockReply{Text: "Subject: Hi\n\nDear HR, I am...", Truncated: true},
		adapter.MockReply{Err: errors.New("provider down")},
	)
	s := testSettings()
	s.UseEvaluator = false
	w := New(expert.Email{}, gen, WithSettings(s), WithLogger(logging.Discard()))

	res, _ := w.Run(context.Background(), "email HR", Overrides{})
	if !strings.Contains(res.Text, "Dear HR, I am...") || res.Output != OutputGenerated {
		t.Fatalf("truncated text should be kept:\n%s", res.Text)
	}
	if len(res.Attempts) != 2 || !res.Attempts[1].Repair || res.Attempts[1].Err == "" || res.Attempts[1].Text != "" {
		t.Fatalf("failed repair should be recorded separately: %+v", res.Attempts)
	}
	if res.TruncationRepairs != 1 || res.RetryCount != 0 || len(res.Errors) != 0 {
		t.Fatalf("unexpected bookkeeping %+v", res)
	}
}

func TestTruncationRepairFailureLogsRunID(t *testing.T) {
	gen := adapter.NewScriptedMockAdapter(
		adapter.MockReply{Text: "Subject: Hi\n\nDear HR, I am...", Truncated: true},
		adapter.MockReply{Err: errors.New("provider down")},
	)
	var buf bytes.Buffer
	s := testSettings()
	s.UseEvaluator = false
	w := New(expert.Email{}, gen, WithSettings(s), WithLogger(logging.New(&buf, "json", "debug")))

	res, _ := w.Run(context.Background(), "email HR", Overrides{})
	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if !strings.Contains(line, "truncation repair failed") {
			continue
		}
		found = true
		if !strings.Contains(line, `"run_id":"`+res.RunID+`"`) {
			t.Fatalf("repair warning lacks run_id: %s", line)
		}
	}
	if !found {
		t.Fatalf("no repair warning logged:\n%s", buf.String())
	}
}

type bareScorer struct{ score float64 }

func (s bareScorer) Score(context.Context, string, string) (*gate.Evaluation, error) {
	return &gate.Evaluation{Score: s.score}, nil
}

func TestBareScoreRegenerationCarriesFeedback(t *testing.T) {
	gen := adapter.NewMockAdapterWithResponses(nil, strings.Repeat("rain falls soft on the hill ", 6))
	w := newTestWorkflow(expert.Poem{}, gen, WithScorer(bareScorer{score: 3}))

	res, err := w.Run(context.Background(), "write a poem about rain", Overrides{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Evaluations) != 3 || res.RetryCount != 2 {
		t.Fatalf("expected 3 evaluations and 2 retries, got %d/%d", len(res.Evaluations), res.RetryCount)
	}
	reqs := gen.Requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 3 generation calls, got %d", len(reqs))
	}
	if repair.HasFeedback(reqs[0].Prompt) {
		t.Fatalf("first prompt must not carry feedback")
	}
	for i, req := range reqs[1:] {
		if n := strings.Count(req.Prompt, repair.Delimiter); n != 1 {
			t.Fatalf("regeneration %d has %d feedback blocks:\n%s", i+1, n, req.Prompt)
		}
		if !strings.Contains(req.Prompt, "IMPORTANT INSTRUCTIONS:") || !strings.Contains(req.Prompt, "Score: 3.0/10") {
			t.Fatalf("regeneration %d lacks corrective instructions:\n%s", i+1, req.Prompt)
		}
	}
	if res.BestAttempt != 0 {
		t.Fatalf("constant scores should select the first attempt, got %d", res.BestAttempt)
	}
}

func TestGenerationFailureFallbacks(t *testing.T) {
	boom := errors.New("boom")

	t.Run("skeleton", func(t *testing.T) {
		gen := adapter.NewScriptedMockAdapter(adapter.MockReply{Err: boom})
		w := newTestWorkflow(expert.Email{}, gen, WithScorer(&seqScorer{scores: []float64{9}}))
		res, err := w.Run(context.Background(), "email HR about sick leave", Overrides{})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Output != OutputSkeleton || !strings.Contains(res.Text, "Dear HR,") {
			t.Fatalf("expected skeleton, got %s:\n%s", res.Output, res.Text)
		}
		if len(res.Attempts) != 1 || res.Attempts[0].Err == "" || len(res.Errors) != 1 {
			t.Fatalf("failed attempt should be recorded: %+v", res.Attempts)
		}
		if res.BestAttempt != -1 {
			t.Fatalf("skeleton output should not name an attempt, got %d", res.BestAttempt)
		}
	})

	t.Run("last good output", func(t *testing.T) {
		gen := adapter.NewScriptedMockAdapter(
			adapter.MockReply{Text: longEmail("the first body is long enough to be complete on its own")},
			adapter.MockReply{Err: boom},
		)
		w := newTestWorkflow(expert.Email{}, gen, WithScorer(&seqScorer{scores: []float64{2}}))
		res, _ := w.Run(context.Background(), "email HR", Overrides{})
		if res.Output != OutputLastGood || !strings.Contains(res.Text, "first body") {
			t.Fatalf("expected last good output, got %s", res.Output)
		}
		if len(res.Evaluations) != 1 {
			t.Fatalf("failed attempt must not be scored")
		}
	})

	t.Run("empty output", func(t *testing.T) {
		gen := adapter.NewScriptedMockAdapter(adapter.MockReply{Text: "   "})
		w := newTestWorkflow(expert.Story{}, gen)
		res, _ := w.Run(context.Background(), "a story about a fox", Overrides{})
		if res.Output != OutputSkeleton || !strings.Contains(res.Errors[0], ErrEmptyOutput.Error()) {
			t.Fatalf("expected skeleton after empty output, got %s %v", res.Output, res.Errors)
		}
	})
}

func TestScorerFailureFailsOpen(t *testing.T) {
	gen := adapter.NewMockAdapterWithResponses(nil, strings.Repeat("word ", 30))
	w := newTestWorkflow(expert.Poem{}, gen, WithScorer(&seqScorer{err: gate.ErrEvaluation}))

	res, _ := w.Run(context.Background(), "a poem", Overrides{})
	if len(res.Evaluations) != 1 || res.Evaluations[0].Source != gate.SourceUnavailable || !res.Evaluations[0].Passed {
		t.Fatalf("expected fail-open evaluation, got %+v", res.Evaluations)
	}
	if res.Evaluations[0].Score != 10 || res.RetryCount != 0 {
		t.Fatalf("unexpected fail-open score %+v", res.Evaluations[0])
	}
}

func TestCancelledRunUsesFallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := adapter.NewMockAdapter()
	w := newTestWorkflow(expert.Email{}, gen)

	res, err := w.Run(ctx, "email HR", Overrides{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(gen.Requests()) != 0 {
		t.Fatalf("no provider call expected after cancellation")
	}
	if res.Output != OutputSkeleton || len(res.Errors) == 0 {
		t.Fatalf("expected skeleton with recorded error, got %+v", res)
	}
}

func TestPreparationRunsOnce(t *testing.T) {
	gen := adapter.NewScriptedMockAdapter(
		adapter.MockReply{Text: "Mira, a lighthouse keeper."},
		adapter.MockReply{Text: "1. hook\n2. rise\n3. climax\n4. fall\n5. end"},
	)
	s := testSettings()
	s.UsePreparer = true
	s.UseEvaluator = false
	w := New(expert.Story{}, gen, WithSettings(s), WithLogger(logging.Discard()))

	res, err := w.Run(context.Background(), "tell me a story about a lighthouse", Overrides{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	reqs := gen.Requests()
	if len(reqs) != 3 {
		t.Fatalf("expected 2 preparation calls and 1 generation, got %d", len(reqs))
	}
	if !strings.Contains(reqs[2].Prompt, "Mira") || !strings.Contains(res.Preparation, "STORY STRUCTURE") {
		t.Fatalf("generation prompt should carry the plan:\n%s", reqs[2].Prompt)
	}
	if len(res.Attempts) != 1 || res.States[1] != StatePrepare {
		t.Fatalf("preparation must not be an attempt: %v", res.States)
	}
}

func TestOverrides(t *testing.T) {
	gen := adapter.NewMockAdapterWithResponses(nil, strings.Repeat("word ", 30))
	w := newTestWorkflow(expert.Poem{}, gen)
	temp := 0.2
	if _, err := w.Run(context.Background(), "poem", Overrides{Temperature: &temp, MaxTokens: 300}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	req := gen.Requests()[0]
	if *req.Temperature != 0.2 || req.MaxTokens != 300 {
		t.Fatalf("overrides not applied: %+v", req)
	}
}

func diff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
