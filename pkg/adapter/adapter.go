package adapter

import (
	"context"
)

// Adapter defines the interface for LLM provider adapters.
type Adapter interface {
	// Generate sends a request to the model. Implementations must be safe to
	// retry and safe for concurrent use.
	Generate(ctx context.Context, req Request) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// Request is a single generation call.
type Request struct {
	Model  string
	System string
	Prompt string
	// Temperature is left to the provider default when nil.
	Temperature *float64
	// MaxTokens is left to the adapter default when zero.
	MaxTokens int
}

// Temperature returns a pointer suitable for Request.Temperature.
func Temperature(v float64) *float64 {
	return &v
}

// DefaultMaxTokens is used when a request does not set MaxTokens.
const DefaultMaxTokens = 4096

func maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}

func modelOrDefault(model string, a Adapter) string {
	if model != "" {
		return model
	}
	if models := a.Models(); len(models) > 0 {
		return models[0]
	}
	return ""
}
