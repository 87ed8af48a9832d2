package adapter

import "github.com/zen-systems/expertgate/pkg/artifact"

// Usage captures normalized token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CallReport captures adapter call metadata.
type CallReport struct {
	Adapter      string `json:"adapter"`
	Model        string `json:"model"`
	Retries      int    `json:"retries"`
	FallbackUsed bool   `json:"fallback_used"`
	Error        string `json:"error,omitempty"`
}

// Response wraps an adapter output and optional usage data.
type Response struct {
	Artifact     *artifact.Artifact
	Usage        *Usage
	FinishReason string
	// Truncated is set when the provider stopped because the output token
	// budget was exhausted.
	Truncated bool
	Reports   []CallReport
}

// Text returns the generated text, tolerating nil responses.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return r.Artifact.Text()
}

func newResponse(content, adapterName, model, prompt, finishReason string, truncated bool, usage *Usage) *Response {
	return &Response{
		Artifact:     artifact.New(content, adapterName, model, prompt, finishReason),
		Usage:        usage,
		FinishReason: finishReason,
		Truncated:    truncated,
	}
}
