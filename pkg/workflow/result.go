package workflow

import (
	"time"

	"github.com/zen-systems/expertgate/pkg/gate"
	"github.com/zen-systems/expertgate/pkg/intent"
)

// State names a workflow step.
type State string

const (
	StateExtract    State = "extract"
	StatePrepare    State = "prepare"
	StateGenerate   State = "generate"
	StateEvaluate   State = "evaluate"
	StateRegenerate State = "regenerate"
	StateDone       State = "done"
)

// Origins of the final text.
const (
	OutputGenerated   = "generated"
	OutputBestAttempt = "best_attempt"
	OutputLastGood    = "last_output"
	OutputSkeleton    = "skeleton"
	OutputPlaceholder = "placeholder"
)

// Attempt is one provider call. A truncation repair is recorded as its own
// Attempt with Repair set and the Index of the attempt it repairs; only the
// output carried forward is scored.
type Attempt struct {
	Index       int              `json:"index"`
	Text        string           `json:"text,omitempty"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Truncated   bool             `json:"truncated,omitempty"`
	Repair      bool             `json:"repair,omitempty"`
	Adapter     string           `json:"adapter,omitempty"`
	Model       string           `json:"model,omitempty"`
	Evaluation  *gate.Evaluation `json:"evaluation,omitempty"`
	Err         string           `json:"error,omitempty"`
	Duration    time.Duration    `json:"duration_ns"`
}

// Scored reports whether the attempt was evaluated.
func (a Attempt) Scored() bool { return a.Evaluation != nil }

// Result is the outcome of a run.
type Result struct {
	RunID             string        `json:"run_id"`
	Expert            string        `json:"expert"`
	Text              string        `json:"text"`
	Output            string        `json:"output"`
	Intent            intent.Intent `json:"intent"`
	Preparation       string        `json:"preparation,omitempty"`
	RetryCount        int           `json:"retry_count"`
	TruncationRepairs int           `json:"truncation_repairs"`
	// BestAttempt is the Index of the attempt whose text was returned, or -1
	// when the text came from the skeleton or placeholder tier.
	BestAttempt int               `json:"best_attempt"`
	Evaluations []gate.Evaluation `json:"evaluations,omitempty"`
	Attempts    []Attempt         `json:"attempts"`
	Final       *gate.Evaluation  `json:"final,omitempty"`
	Errors      []string          `json:"errors,omitempty"`
	States      []State           `json:"states"`
	Duration    time.Duration     `json:"duration_ns"`
}

// Score returns the final evaluation score, or false when nothing was scored.
func (r *Result) Score() (float64, bool) {
	if r == nil || r.Final == nil {
		return 0, false
	}
	return r.Final.Score, true
}

func (r *Result) visit(s State) {
	r.States = append(r.States, s)
}

func (r *Result) fail(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

// best returns the highest-scoring scored attempt, earliest on ties.
func (r *Result) best() (Attempt, bool) {
	var (
		out   Attempt
		found bool
	)
	for _, a := range r.Attempts {
		if !a.Scored() {
			continue
		}
		if !found || a.Evaluation.Score > out.Evaluation.Score {
			out, found = a, true
		}
	}
	return out, found
}

func (r *Result) lastGood() (Attempt, bool) {
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		if r.Attempts[i].Err == "" && r.Attempts[i].Text != "" {
			return r.Attempts[i], true
		}
	}
	return Attempt{}, false
}
