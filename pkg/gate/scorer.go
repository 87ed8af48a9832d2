package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zen-systems/expertgate/pkg/logging"
	"github.com/zen-systems/expertgate/pkg/telemetry"
)

// ScoreConfig holds the penalty and threshold settings.
type ScoreConfig struct {
	Threshold       float64
	PenaltyPerIssue float64
	MaxPenalty      float64
	IssueScoreCap   float64
	DefaultScore    float64
}

// DefaultScoreConfig returns the story/poem defaults.
func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		Threshold:       7.0,
		PenaltyPerIssue: 2.0,
		MaxPenalty:      6.0,
		IssueScoreCap:   5.0,
		DefaultScore:    10.0,
	}
}

// Penalty returns min(n*per_issue, max_penalty).
func (c ScoreConfig) Penalty(issues int) float64 {
	return math.Min(float64(issues)*c.PenaltyPerIssue, c.MaxPenalty)
}

// HybridScorer combines a rubric grade with programmatic checks.
type HybridScorer struct {
	rater  Rater
	checks []Check
	cfg    ScoreConfig
	logger *slog.Logger
}

// ScorerOption configures a HybridScorer.
type ScorerOption func(*HybridScorer)

// WithChecks sets the programmatic checks.
func WithChecks(checks ...Check) ScorerOption {
	return func(s *HybridScorer) {
		s.checks = checks
	}
}

// WithScoreConfig sets penalties and threshold.
func WithScoreConfig(cfg ScoreConfig) ScorerOption {
	return func(s *HybridScorer) {
		s.cfg = cfg
	}
}

// WithLogger sets the scorer logger.
func WithLogger(l *slog.Logger) ScorerOption {
	return func(s *HybridScorer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewHybridScorer creates a scorer. rater may be nil, in which case only
// failing checks produce a score.
func NewHybridScorer(rater Rater, opts ...ScorerOption) *HybridScorer {
	s := &HybridScorer{
		rater:  rater,
		cfg:    DefaultScoreConfig(),
		logger: logging.WithComponent("gate"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score grades candidate. It returns an error wrapping ErrEvaluation only
// when the rubric failed and no check reported an issue.
func (s *HybridScorer) Score(ctx context.Context, request, candidate string) (eval *Evaluation, err error) {
	ctx, span := telemetry.Start(ctx, "gate.score")
	defer func() {
		if eval != nil {
			span.SetAttributes(
				attribute.Float64("gate.score", eval.Score),
				attribute.Bool("gate.passed", eval.Passed),
				attribute.String("gate.source", eval.Source),
			)
		}
		telemetry.End(span, err)
	}()

	var issues []string
	for _, v := range RunChecks(ctx, s.checks, request, candidate) {
		issues = append(issues, v.Message)
	}
	penalty := s.cfg.Penalty(len(issues))
	if len(issues) > 0 {
		s.logger.Warn("programmatic checks failed", "issues", len(issues), "penalty", penalty)
	}

	var rubric *RubricResult
	if s.rater != nil {
		rubric, err = s.rater.Rate(ctx, request, candidate)
	} else {
		err = fmt.Errorf("%w: no rubric configured", ErrEvaluation)
	}

	if err != nil {
		if len(issues) == 0 {
			if !errors.Is(err, ErrEvaluation) {
				err = fmt.Errorf("%w: %v", ErrEvaluation, err)
			}
			return nil, err
		}
		s.logger.Warn("rubric failed, using programmatic checks only", "error", err)
		score := math.Max(0, s.cfg.DefaultScore-penalty)
		return &Evaluation{
			Score:          score,
			Passed:         score >= s.cfg.Threshold,
			Feedback:       strings.Join(issues, "; "),
			CriticalErrors: issues,
			RubricScore:    s.cfg.DefaultScore,
			Penalty:        penalty,
			Source:         SourceProgrammatic,
		}, nil
	}

	final := math.Max(0, rubric.Score-penalty)
	if len(issues) > 0 {
		final = math.Min(final, s.cfg.IssueScoreCap)
	}

	feedback := rubric.Feedback
	if len(issues) > 0 {
		feedback = "CRITICAL ISSUES: " + strings.Join(issues, "; ") + ". " + feedback
	}

	eval = &Evaluation{
		Score:          final,
		Passed:         final >= s.cfg.Threshold,
		Feedback:       feedback,
		CriticalErrors: append(append([]string(nil), rubric.CriticalErrors...), issues...),
		Suggestions:    rubric.Suggestions,
		Criteria:       rubric.Criteria,
		RubricScore:    rubric.Score,
		Penalty:        penalty,
		Source:         SourceHybrid,
	}
	s.logger.Info("evaluation complete",
		"rubric", rubric.Score, "penalty", penalty, "score", final, "passed", eval.Passed)
	return eval, nil
}
