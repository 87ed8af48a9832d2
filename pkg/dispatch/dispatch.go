// Package dispatch connects the router to the per-expert workflows.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zen-systems/expertgate/pkg/expert"
	"github.com/zen-systems/expertgate/pkg/gate"
	"github.com/zen-systems/expertgate/pkg/intent"
	"github.com/zen-systems/expertgate/pkg/logging"
	"github.com/zen-systems/expertgate/pkg/router"
	"github.com/zen-systems/expertgate/pkg/workflow"
)

// ErrExpertUnavailable is returned when a request routes to an expert with
// no configured workflow.
var ErrExpertUnavailable = errors.New("expert unavailable")

// Request is one generation request.
type Request struct {
	Prompt string
	// Expert forces a specific expert when set.
	Expert      string
	Temperature *float64
	MaxTokens   int
}

// Response carries the generated text with its routing and quality history.
type Response struct {
	RunID       string             `json:"run_id"`
	Text        string             `json:"text"`
	Expert      string             `json:"expert"`
	Confidence  float64            `json:"confidence"`
	Method      string             `json:"method"`
	Rationale   string             `json:"rationale"`
	Scores      map[string]int     `json:"scores"`
	Intent      intent.Intent      `json:"intent"`
	RetryCount  int                `json:"retry_count"`
	Evaluations []gate.Evaluation  `json:"evaluations,omitempty"`
	Attempts    []workflow.Attempt `json:"attempts"`
	Final       *gate.Evaluation   `json:"final,omitempty"`
	Output      string             `json:"output"`
	Errors      []string           `json:"errors,omitempty"`
}

// ExpertInfo describes one expert for listings.
type ExpertInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Available   bool     `json:"available"`
}

// Dispatcher routes requests and runs the selected workflow.
type Dispatcher struct {
	router    *router.Router
	registry  *expert.Registry
	workflows map[string]*workflow.Workflow
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a dispatcher. Experts missing from workflows are listed but
// unavailable.
func New(r *router.Router, registry *expert.Registry, workflows map[string]*workflow.Workflow, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		router:    r,
		registry:  registry,
		workflows: workflows,
		logger:    logging.WithComponent("dispatch"),
	}
	if d.workflows == nil {
		d.workflows = make(map[string]*workflow.Workflow)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Router returns the underlying router.
func (d *Dispatcher) Router() *router.Router { return d.router }

// Available reports whether name has a workflow.
func (d *Dispatcher) Available(name string) bool {
	_, ok := d.workflows[strings.ToLower(name)]
	return ok
}

// Dispatch routes req and runs the chosen expert's workflow. Only routing
// errors and ErrExpertUnavailable are returned; generation problems are
// reported inside the response.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Response, error) {
	decision, err := d.router.Route(ctx, req.Prompt, req.Expert)
	if err != nil {
		return nil, err
	}

	wf, ok := d.workflows[decision.Expert]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExpertUnavailable, decision.Expert)
	}
	d.logger.Info("dispatching request",
		"expert", decision.Expert,
		"method", decision.Method,
		"confidence", decision.Confidence,
	)

	res, err := wf.Run(ctx, req.Prompt, workflow.Overrides{Temperature: req.Temperature, MaxTokens: req.MaxTokens})
	if res == nil {
		return nil, err
	}
	if err != nil {
		d.logger.Warn("workflow produced no output", "expert", decision.Expert, "error", err)
	}
	resp := &Response{
		RunID:       res.RunID,
		Text:        res.Text,
		Expert:      decision.Expert,
		Confidence:  decision.Confidence,
		Method:      decision.Method,
		Rationale:   decision.Rationale,
		Scores:      decision.Scores,
		Intent:      res.Intent,
		RetryCount:  res.RetryCount,
		Evaluations: res.Evaluations,
		Attempts:    res.Attempts,
		Final:       res.Final,
		Output:      res.Output,
		Errors:      res.Errors,
	}
	return resp, err
}

// Experts lists every registered expert with sample routing keywords.
func (d *Dispatcher) Experts() []ExpertInfo {
	rules := d.router.Rules()
	names := d.registry.Names()
	out := make([]ExpertInfo, 0, len(names))
	for _, name := range names {
		s, _ := d.registry.Get(name)
		out = append(out, ExpertInfo{
			Name:        name,
			Description: s.Description(),
			Keywords:    rules.Keywords(name, 5),
			Available:   d.Available(name),
		})
	}
	return out
}
