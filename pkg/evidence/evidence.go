// Package evidence writes run traces: the routing decision, every attempt and
// its evaluation, for offline inspection.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zen-systems/expertgate/pkg/dispatch"
	"github.com/zen-systems/expertgate/pkg/intent"
)

const maxOutputChars = 20000

// RunRecord captures a completed generation.
type RunRecord struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Prompt     string          `json:"prompt"`
	PromptHash string          `json:"prompt_hash"`
	Routing    RoutingRecord   `json:"routing"`
	Intent     intent.Intent   `json:"intent"`
	RetryCount int             `json:"retry_count"`
	Output     string          `json:"output"`
	OutputHash string          `json:"output_hash"`
	Source     string          `json:"source"`
	FinalScore *float64        `json:"final_score,omitempty"`
	Attempts   []AttemptRecord `json:"attempts"`
	Errors     []string        `json:"errors,omitempty"`
}

// RoutingRecord captures the router's decision.
type RoutingRecord struct {
	Expert     string         `json:"expert"`
	Method     string         `json:"method"`
	Confidence float64        `json:"confidence"`
	Rationale  string         `json:"rationale"`
	Scores     map[string]int `json:"scores,omitempty"`
}

// AttemptRecord captures one generation attempt.
type AttemptRecord struct {
	Index          int      `json:"index"`
	Adapter        string   `json:"adapter,omitempty"`
	Model          string   `json:"model,omitempty"`
	Temperature    float64  `json:"temperature"`
	MaxTokens      int      `json:"max_tokens"`
	Truncated      bool     `json:"truncated,omitempty"`
	Repair         bool     `json:"repair,omitempty"`
	OutputHash     string   `json:"output_hash,omitempty"`
	Score          *float64 `json:"score,omitempty"`
	Passed         bool     `json:"passed"`
	EvalSource     string   `json:"evaluation_source,omitempty"`
	CriticalErrors []string `json:"critical_errors,omitempty"`
	Error          string   `json:"error,omitempty"`
	DurationMillis int64    `json:"duration_ms"`
}

// FromResponse builds a record for prompt and its dispatch response.
func FromResponse(prompt string, resp *dispatch.Response) RunRecord {
	id := resp.RunID
	if id == "" {
		id = uuid.NewString()
	}
	rec := RunRecord{
		ID:         id,
		Timestamp:  time.Now().UTC(),
		Prompt:     prompt,
		PromptHash: hashString(prompt),
		Routing: RoutingRecord{
			Expert:     resp.Expert,
			Method:     resp.Method,
			Confidence: resp.Confidence,
			Rationale:  resp.Rationale,
			Scores:     resp.Scores,
		},
		Intent:     resp.Intent,
		RetryCount: resp.RetryCount,
		Output:     truncate(resp.Text, maxOutputChars),
		OutputHash: hashString(resp.Text),
		Source:     resp.Output,
		Errors:     resp.Errors,
	}
	if resp.Final != nil {
		score := resp.Final.Score
		rec.FinalScore = &score
	}
	for _, a := range resp.Attempts {
		ar := AttemptRecord{
			Index:          a.Index,
			Adapter:        a.Adapter,
			Model:          a.Model,
			Temperature:    a.Temperature,
			MaxTokens:      a.MaxTokens,
			Truncated:      a.Truncated,
			Repair:         a.Repair,
			Error:          a.Err,
			DurationMillis: a.Duration.Milliseconds(),
		}
		if a.Text != "" {
			ar.OutputHash = hashString(a.Text)
		}
		if a.Evaluation != nil {
			score := a.Evaluation.Score
			ar.Score = &score
			ar.Passed = a.Evaluation.Passed
			ar.EvalSource = a.Evaluation.Source
			ar.CriticalErrors = a.Evaluation.CriticalErrors
		}
		rec.Attempts = append(rec.Attempts, ar)
	}
	return rec
}

// Writer writes run records under a base directory.
type Writer struct {
	baseDir string
}

// NewWriter creates a writer rooted at baseDir.
func NewWriter(baseDir string) (*Writer, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}
	return &Writer{baseDir: baseDir}, nil
}

// Write stores record as <baseDir>/<id>.json and returns the path.
func (w *Writer) Write(record RunRecord) (string, error) {
	if record.ID == "" {
		return "", fmt.Errorf("run ID is required")
	}
	path := filepath.Join(w.baseDir, record.ID+".json")
	return path, WriteFile(path, record)
}

// WriteFile writes record as indented JSON to path.
func WriteFile(path string, record RunRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func hashString(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:])
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit]
}
