// Package workflow runs the quality-gated generation loop for one expert:
// extract intent, optionally prepare, generate, evaluate and regenerate with
// feedback until the output passes or the retry budget is spent.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zen-systems/expertgate/pkg/adapter"
	"github.com/zen-systems/expertgate/pkg/expert"
	"github.com/zen-systems/expertgate/pkg/gate"
	"github.com/zen-systems/expertgate/pkg/intent"
	"github.com/zen-systems/expertgate/pkg/logging"
	"github.com/zen-systems/expertgate/pkg/repair"
	"github.com/zen-systems/expertgate/pkg/telemetry"
)

// ErrEmptyOutput is recorded when a provider returns no text.
var ErrEmptyOutput = errors.New("empty generation")

// Workflow drives one expert's generation loop. It is safe for concurrent
// use; every Run keeps its own state.
type Workflow struct {
	strategy  expert.Strategy
	gen       adapter.Adapter
	extractor intent.Extractor
	scorer    gate.Scorer
	settings  Settings
	logger    *slog.Logger
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithExtractor sets the model-backed intent extractor.
func WithExtractor(e intent.Extractor) Option {
	return func(w *Workflow) { w.extractor = e }
}

// WithScorer sets the evaluator.
func WithScorer(s gate.Scorer) Option {
	return func(w *Workflow) { w.scorer = s }
}

// WithSettings replaces the generation settings.
func WithSettings(s Settings) Option {
	return func(w *Workflow) { w.settings = s.normalize() }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a workflow for strategy generating through gen.
func New(strategy expert.Strategy, gen adapter.Adapter, opts ...Option) *Workflow {
	w := &Workflow{
		strategy: strategy,
		gen:      gen,
		settings: DefaultSettings(),
		logger:   logging.WithComponent("workflow"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("expert", strategy.Name())
	return w
}

// Strategy returns the expert strategy.
func (w *Workflow) Strategy() expert.Strategy { return w.strategy }

// Settings returns the configured settings.
func (w *Workflow) Settings() Settings { return w.settings }

// Run executes the loop for request. Generation and scoring failures never
// surface as errors; they are recorded in the result and the output falls
// back through the last good attempt, the strategy skeleton and finally the
// placeholder.
func (w *Workflow) Run(ctx context.Context, request string, overrides Overrides) (*Result, error) {
	start := time.Now()
	settings := w.settings.apply(overrides)
	res := &Result{RunID: uuid.NewString(), Expert: w.strategy.Name(), BestAttempt: -1}

	ctx, span := telemetry.Start(ctx, "workflow.run",
		attribute.String("expert", res.Expert),
		attribute.String("run_id", res.RunID),
	)
	logger := w.logger.With("run_id", res.RunID)

	res.visit(StateExtract)
	res.Intent = w.extract(ctx, request, logger)

	var preparation string
	if p, ok := w.strategy.(expert.Preparer); ok && settings.UsePreparer && ctx.Err() == nil {
		res.visit(StatePrepare)
		preparation = w.prepare(ctx, p, res.Intent, request, settings, logger)
		res.Preparation = preparation
	}

	instruction := w.strategy.BuildInstruction(res.Intent, request, preparation)
	err := w.loop(ctx, res, request, instruction, settings, logger)

	res.visit(StateDone)
	res.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("retry_count", res.RetryCount),
		attribute.Int("attempts", len(res.Attempts)),
		attribute.String("output", res.Output),
	)
	if score, ok := res.Score(); ok {
		span.SetAttributes(attribute.Float64("score", score))
	}
	telemetry.End(span, err)
	logger.Info("workflow finished",
		"output", res.Output,
		"retry_count", res.RetryCount,
		"attempts", len(res.Attempts),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, err
}

func (w *Workflow) loop(ctx context.Context, res *Result, request, instruction string, settings Settings, logger *slog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			res.fail(err)
			return w.fallback(res, request)
		}

		res.visit(StateGenerate)
		records, chosen, err := w.generate(ctx, instruction, settings, res, logger)
		idx := len(res.Attempts) + chosen
		res.Attempts = append(res.Attempts, records...)
		att := res.Attempts[idx]
		if err != nil {
			logger.Warn("generation failed", "attempt", att.Index, "error", err)
			res.fail(err)
			return w.fallback(res, request)
		}

		if !settings.UseEvaluator || w.scorer == nil {
			res.Text, res.Output, res.BestAttempt = att.Text, OutputGenerated, att.Index
			return nil
		}
		if err := ctx.Err(); err != nil {
			res.fail(err)
			res.Text, res.Output, res.BestAttempt = att.Text, OutputGenerated, att.Index
			return nil
		}

		res.visit(StateEvaluate)
		eval := w.evaluate(ctx, request, att.Text, settings, logger)
		res.Attempts[idx].Evaluation = &eval
		res.Evaluations = append(res.Evaluations, eval)

		if eval.Passed {
			res.Text, res.Output, res.Final, res.BestAttempt = att.Text, OutputGenerated, &eval, att.Index
			return nil
		}
		if res.RetryCount >= settings.MaxRetries {
			best, _ := res.best()
			res.Text, res.Output, res.Final, res.BestAttempt = best.Text, OutputBestAttempt, best.Evaluation, best.Index
			logger.Info("retry budget exhausted", "best_attempt", best.Index, "score", best.Evaluation.Score)
			return nil
		}

		res.visit(StateRegenerate)
		res.RetryCount++
		block := repair.FeedbackBlock(eval, repair.FeedbackOptions{FinalInstruction: w.strategy.FeedbackInstruction()})
		instruction = repair.AppendFeedback(instruction, block)
		logger.Info("regenerating with feedback", "retry", res.RetryCount, "score", eval.Score)
	}
}

func (w *Workflow) extract(ctx context.Context, request string, logger *slog.Logger) intent.Intent {
	if w.extractor == nil {
		return w.strategy.FallbackIntent(request)
	}
	ctx, span := telemetry.Start(ctx, "workflow.extract")
	in, err := w.extractor.Extract(ctx, w.strategy.Name(), request)
	telemetry.End(span, err)
	if err != nil || in == nil {
		logger.Warn("intent extraction failed, using keyword fallback", "error", err)
		return w.strategy.FallbackIntent(request)
	}
	return *in
}

func (w *Workflow) prepare(ctx context.Context, p expert.Preparer, in intent.Intent, request string, settings Settings, logger *slog.Logger) string {
	ctx, span := telemetry.Start(ctx, "workflow.prepare")
	generate := func(ctx context.Context, prompt string) (string, error) {
		resp, err := w.gen.Generate(ctx, adapter.Request{
			Model:       settings.Model,
			System:      w.strategy.SystemPrompt(),
			Prompt:      prompt,
			Temperature: adapter.Temperature(settings.Temperature),
			MaxTokens:   settings.MaxTokens,
		})
		if err != nil {
			return "", err
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", ErrEmptyOutput
		}
		return text, nil
	}
	out, err := p.Prepare(ctx, generate, in, request)
	telemetry.End(span, err)
	if err != nil || strings.TrimSpace(out) == "" {
		logger.Warn("preparation failed, using built-in plan", "error", err)
		return p.FallbackPreparation(in, request)
	}
	return out
}

// generate runs attempt number res.RetryCount and returns one record per
// provider call. A truncated, incomplete output is repaired once with a
// larger token budget under the same index; the repair does not count as a
// retry. chosen is the position in records of the output to carry forward.
func (w *Workflow) generate(ctx context.Context, instruction string, settings Settings, res *Result, logger *slog.Logger) (records []Attempt, chosen int, err error) {
	index := res.RetryCount
	temperature := settings.temperatureFor(index)
	ctx, span := telemetry.Start(ctx, "workflow.generate",
		attribute.Int("attempt", index),
		attribute.Float64("temperature", temperature),
	)
	defer func() { telemetry.End(span, err) }()

	req := adapter.Request{
		Model:       settings.Model,
		System:      w.strategy.SystemPrompt(),
		Prompt:      instruction,
		Temperature: adapter.Temperature(temperature),
		MaxTokens:   settings.MaxTokens,
	}
	first, raw, err := w.call(ctx, req, index, res.Intent, false)
	records = append(records, first)
	if err != nil {
		return records, 0, err
	}
	if !first.Truncated || w.strategy.Complete(raw) {
		return records, 0, nil
	}

	req.MaxTokens = int(float64(settings.MaxTokens) * settings.TruncationMultiplier)
	res.TruncationRepairs++
	repaired, _, rerr := w.call(ctx, req, index, res.Intent, true)
	records = append(records, repaired)
	span.SetAttributes(attribute.Bool("repaired", rerr == nil))
	if rerr != nil {
		logger.Warn("truncation repair failed, keeping truncated text", "attempt", index, "error", rerr)
		return records, 0, nil
	}
	return records, 1, nil
}

// call performs one provider call and records it.
func (w *Workflow) call(ctx context.Context, req adapter.Request, index int, in intent.Intent, isRepair bool) (Attempt, string, error) {
	start := time.Now()
	att := Attempt{
		Index:       index,
		Temperature: *req.Temperature,
		MaxTokens:   req.MaxTokens,
		Repair:      isRepair,
	}
	resp, err := w.gen.Generate(ctx, req)
	if err == nil && strings.TrimSpace(resp.Text()) == "" {
		err = ErrEmptyOutput
	}
	att.Duration = time.Since(start)
	if err != nil {
		if isRepair {
			err = fmt.Errorf("attempt %d repair: %w", index, err)
		} else {
			err = fmt.Errorf("attempt %d: %w", index, err)
		}
		att.Err = err.Error()
		return att, "", err
	}

	raw := resp.Text()
	att.Truncated = resp.Truncated
	if resp.Artifact != nil {
		att.Adapter, att.Model = resp.Artifact.Adapter, resp.Artifact.Model
	}
	att.Text = w.strategy.Format(in, raw)
	return att, raw, nil
}

func (w *Workflow) evaluate(ctx context.Context, request, candidate string, settings Settings, logger *slog.Logger) gate.Evaluation {
	ctx, span := telemetry.Start(ctx, "workflow.evaluate")
	eval, err := w.scorer.Score(ctx, request, candidate)
	if err == nil && eval == nil {
		err = gate.ErrEvaluation
	}
	telemetry.End(span, err)
	if err != nil {
		logger.Warn("evaluation unavailable, accepting output", "error", err)
		return gate.Unavailable(settings.DefaultScore, err)
	}
	return *eval
}

// fallback finalizes a run whose generation failed.
func (w *Workflow) fallback(res *Result, request string) error {
	if att, ok := res.lastGood(); ok {
		res.Text, res.Output, res.Final, res.BestAttempt = att.Text, OutputLastGood, att.Evaluation, att.Index
		return nil
	}
	if text := w.strategy.Skeleton(res.Intent, request); strings.TrimSpace(text) != "" {
		res.Text, res.Output = text, OutputSkeleton
		return nil
	}
	if text := w.strategy.Placeholder(request); strings.TrimSpace(text) != "" {
		res.Text, res.Output = text, OutputPlaceholder
		return nil
	}
	return fmt.Errorf("workflow %s: no output produced", res.Expert)
}
