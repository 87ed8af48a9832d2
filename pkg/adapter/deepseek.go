package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekAdapter implements the Adapter interface for DeepSeek models.
// DeepSeek uses an OpenAI-compatible API format.
type DeepSeekAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type deepseekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepseekError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func (e *deepseekError) String() string {
	if e.Type == "" && e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (type: %s, code: %s)", e.Message, e.Type, e.Code)
}

type deepseekResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage          `json:"usage"`
	Error *deepseekError `json:"error,omitempty"`
}

// NewDeepSeekAdapter creates a new DeepSeek adapter.
func NewDeepSeekAdapter(apiKey string) (*DeepSeekAdapter, error) {
	return NewDeepSeekAdapterWithBaseURL(apiKey, deepseekBaseURL, &http.Client{})
}

// NewDeepSeekAdapterWithBaseURL targets any OpenAI-compatible endpoint.
func NewDeepSeekAdapterWithBaseURL(apiKey, baseURL string, client *http.Client) (*DeepSeekAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepseek API key is required")
	}
	if client == nil {
		client = &http.Client{}
	}
	return &DeepSeekAdapter{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: client,
	}, nil
}

// Name returns the adapter identifier.
func (a *DeepSeekAdapter) Name() string {
	return "deepseek"
}

// Models returns the list of supported DeepSeek models.
func (a *DeepSeekAdapter) Models() []string {
	return []string{
		"deepseek-chat",
		"deepseek-reasoner",
	}
}

// Generate sends one chat completion to DeepSeek.
func (a *DeepSeekAdapter) Generate(ctx context.Context, req Request) (*Response, error) {
	model := modelOrDefault(req.Model, a)
	status, body, err := a.post(ctx, newDeepSeekRequest(model, req))
	if err != nil {
		return nil, err
	}

	var out deepseekResponse
	if jsonErr := json.Unmarshal(body, &out); jsonErr != nil && status == http.StatusOK {
		return nil, fmt.Errorf("failed to parse response: %w", jsonErr)
	}
	if status != http.StatusOK {
		msg := strings.TrimSpace(string(body))
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.String()
		}
		return nil, providerError(a.Name(), status, fmt.Errorf("returned status %d: %s", status, msg))
	}
	if out.Error != nil {
		return nil, providerError(a.Name(), status, errors.New(out.Error.String()))
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("deepseek returned no choices")
	}

	choice := out.Choices[0]
	usage := out.Usage
	return newResponse(choice.Message.Content, a.Name(), model, req.Prompt, choice.FinishReason, choice.FinishReason == "length", &usage), nil
}

func newDeepSeekRequest(model string, req Request) deepseekRequest {
	messages := make([]deepseekMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, deepseekMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, deepseekMessage{Role: "user", Content: req.Prompt})
	return deepseekRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens(req),
		Temperature: req.Temperature,
	}
}

// post returns the HTTP status and raw body. Transport failures are
// reported as adapter errors with status 0.
func (a *DeepSeekAdapter) post(ctx context.Context, payload deepseekRequest) (int, []byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, providerError(a.Name(), 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
