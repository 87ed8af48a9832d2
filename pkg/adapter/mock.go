package adapter

import (
	"context"
	"fmt"
	"sync"
)

// MockReply is one scripted mock result.
type MockReply struct {
	Text      string
	Truncated bool
	Err       error
}

// MockAdapter returns deterministic responses for local runs and tests.
// Scripted replies are consumed in order; afterwards the default reply is used.
type MockAdapter struct {
	mu              sync.Mutex
	responses       map[string]string
	script          []MockReply
	defaultResponse string
	requests        []Request
	Usage           *Usage
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined responses
// keyed by exact prompt.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockAdapter{responses: responses, defaultResponse: defaultResponse}
}

// NewScriptedMockAdapter creates a mock adapter that replays replies in order.
func NewScriptedMockAdapter(replies ...MockReply) *MockAdapter {
	m := NewMockAdapter()
	m.script = replies
	return m
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Requests returns a copy of every request received so far.
func (a *MockAdapter) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Request, len(a.requests))
	copy(out, a.requests)
	return out
}

// Generate returns the next scripted reply, a prompt-keyed response, or the
// default response followed by the prompt.
func (a *MockAdapter) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model := modelOrDefault(req.Model, a)

	a.mu.Lock()
	a.requests = append(a.requests, req)
	var reply *MockReply
	if len(a.script) > 0 {
		r := a.script[0]
		a.script = a.script[1:]
		reply = &r
	}
	a.mu.Unlock()

	if reply != nil {
		if reply.Err != nil {
			return nil, reply.Err
		}
		finish := "stop"
		if reply.Truncated {
			finish = "length"
		}
		return a.respond(reply.Text, model, req.Prompt, finish, reply.Truncated), nil
	}
	if response, ok := a.responses[req.Prompt]; ok {
		return a.respond(response, model, req.Prompt, "stop", false), nil
	}
	content := fmt.Sprintf("%s\n%s", a.defaultResponse, req.Prompt)
	return a.respond(content, model, req.Prompt, "stop", false), nil
}

func (a *MockAdapter) respond(content, model, prompt, finish string, truncated bool) *Response {
	resp := newResponse(content, a.Name(), model, prompt, finish, truncated, a.Usage)
	return resp
}
