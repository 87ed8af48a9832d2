// Package artifact records one raw model output and where it came from.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Artifact is an immutable provider output.
type Artifact struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Adapter      string    `json:"adapter"`
	Model        string    `json:"model"`
	FinishReason string    `json:"finish_reason,omitempty"`
	PromptHash   string    `json:"prompt_hash"`
	CreatedAt    time.Time `json:"created_at"`
	Hash         string    `json:"hash"`
}

// New records content produced by adapter/model for prompt.
func New(content, adapter, model, prompt, finishReason string) *Artifact {
	return &Artifact{
		ID:           uuid.NewString(),
		Content:      content,
		Adapter:      adapter,
		Model:        model,
		FinishReason: finishReason,
		PromptHash:   digest(prompt),
		CreatedAt:    time.Now().UTC(),
		Hash:         digest(content, adapter, model)[:16],
	}
}

// Text returns the content, tolerating a nil artifact.
func (a *Artifact) Text() string {
	if a == nil {
		return ""
	}
	return a.Content
}

func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
