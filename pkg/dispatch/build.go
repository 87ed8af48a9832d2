package dispatch

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/zen-systems/expertgate/pkg/adapter"
	"github.com/zen-systems/expertgate/pkg/config"
	"github.com/zen-systems/expertgate/pkg/expert"
	"github.com/zen-systems/expertgate/pkg/gate"
	"github.com/zen-systems/expertgate/pkg/intent"
	"github.com/zen-systems/expertgate/pkg/logging"
	"github.com/zen-systems/expertgate/pkg/router"
	"github.com/zen-systems/expertgate/pkg/workflow"
)

// Build wires a dispatcher from configuration. adapters holds the raw
// provider adapters by name; experts whose adapter is missing are left
// unavailable.
func Build(cfg *config.Config, adapters map[string]adapter.Adapter, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Logger()
	}
	policy := Policy(cfg.Retry)
	registry := expert.DefaultRegistry()

	var routerOpts []router.Option
	routerOpts = append(routerOpts, router.WithLogger(logger.With("component", "router")))
	if cc := cfg.Routing.Classifier; cc.Enabled {
		if a, ok := adapters[cc.Adapter]; ok {
			routerOpts = append(routerOpts, router.WithClassifier(
				router.NewClassifier(adapter.WithPolicy(a, policy), cc.Model, cc.Explain)))
		} else {
			logger.Warn("classifier adapter not configured, model routing disabled", "adapter", cc.Adapter)
		}
	}
	r := router.New(cfg.Routing, routerOpts...)

	workflows := make(map[string]*workflow.Workflow)
	for _, name := range registry.Names() {
		ec, ok := cfg.Expert(name)
		if !ok {
			continue
		}
		primary, ok := adapters[ec.Adapter]
		if !ok {
			logger.Warn("expert adapter not configured", "expert", name, "adapter", ec.Adapter)
			continue
		}
		gen := adapter.WithPolicy(primary, policy, fallbackTargets(ec, adapters)...)
		strategy := registry.MustGet(name)
		workflows[name] = newWorkflow(strategy, gen, ec, logger)
	}

	return New(r, registry, workflows, WithLogger(logger.With("component", "dispatch")))
}

// Policy converts retry configuration into an adapter call policy.
func Policy(rc config.RetryConfig) adapter.Policy {
	p := adapter.Policy{
		MaxRetries:  rc.MaxRetries,
		BaseBackoff: time.Duration(rc.BaseBackoffMs) * time.Millisecond,
		MaxBackoff:  time.Duration(rc.MaxBackoffMs) * time.Millisecond,
		Timeout:     time.Duration(rc.CallTimeoutMs) * time.Millisecond,
	}
	if rc.RequestsPerSecond > 0 {
		burst := rc.Burst
		if burst <= 0 {
			burst = 1
		}
		p.Limiter = rate.NewLimiter(rate.Limit(rc.RequestsPerSecond), burst)
	}
	return p
}

func fallbackTargets(ec config.ExpertConfig, adapters map[string]adapter.Adapter) []adapter.Target {
	var targets []adapter.Target
	for _, fb := range ec.Fallbacks {
		if a, ok := adapters[fb.Adapter]; ok {
			targets = append(targets, adapter.Target{Adapter: a, Model: fb.Model})
		}
	}
	return targets
}

func newWorkflow(strategy expert.Strategy, gen adapter.Adapter, ec config.ExpertConfig, logger *slog.Logger) *workflow.Workflow {
	evalModel := ec.EvaluatorModel
	if evalModel == "" {
		evalModel = ec.Model
	}
	opts := []workflow.Option{
		workflow.WithSettings(workflow.SettingsFromConfig(ec)),
		workflow.WithLogger(logger.With("component", "workflow")),
	}
	if ec.ExtractorEnabled() {
		opts = append(opts, workflow.WithExtractor(intent.NewModelExtractor(gen, evalModel)))
	}
	if ec.EvaluatorEnabled() {
		opts = append(opts, workflow.WithScorer(newScorer(strategy.Name(), gen, evalModel, ec, logger)))
	}
	return workflow.New(strategy, gen, opts...)
}

func newScorer(name string, a adapter.Adapter, model string, ec config.ExpertConfig, logger *slog.Logger) gate.Scorer {
	var (
		rubric gate.Rubric
		checks []gate.Check
	)
	switch name {
	case "email":
		rubric, checks = gate.EmailRubric(), gate.EmailChecks(a, model)
	case "story":
		rubric, checks = gate.StoryRubric(), gate.StoryChecks()
	default:
		rubric = gate.PoemRubric()
	}
	return gate.NewHybridScorer(gate.NewRubricScorer(a, model, rubric),
		gate.WithChecks(checks...),
		gate.WithScoreConfig(gate.ScoreConfig{
			Threshold:       ec.Threshold,
			PenaltyPerIssue: ec.PenaltyPerIssue,
			MaxPenalty:      ec.MaxPenalty,
			IssueScoreCap:   ec.IssueScoreCap,
			DefaultScore:    ec.DefaultScore,
		}),
		gate.WithLogger(logger.With("component", "gate")),
	)
}
