// Package expert defines the per-genre strategies plugged into the
// quality-gated workflow.
package expert

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zen-systems/expertgate/pkg/intent"
)

// Strategy supplies everything genre-specific about a generation run.
type Strategy interface {
	Name() string
	Description() string
	SystemPrompt() string
	// BuildInstruction renders the generation instruction. It must be
	// deterministic for equal inputs.
	BuildInstruction(in intent.Intent, request, preparation string) string
	FallbackIntent(request string) intent.Intent
	// Complete reports whether text looks finished rather than cut off.
	Complete(text string) bool
	Format(in intent.Intent, text string) string
	// Skeleton is a minimal deterministic rendering used when generation fails.
	Skeleton(in intent.Intent, request string) string
	Placeholder(request string) string
	// FeedbackInstruction is the last line of the corrective feedback block.
	FeedbackInstruction() string
}

// GenerateFunc runs one model call for a preparation step.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// Preparer is implemented by strategies with an unscored planning step.
type Preparer interface {
	Prepare(ctx context.Context, generate GenerateFunc, in intent.Intent, request string) (string, error)
	FallbackPreparation(in intent.Intent, request string) string
}

// Registry holds strategies by name.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates a registry with the given strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// DefaultRegistry returns the email, poem and story strategies.
func DefaultRegistry() *Registry {
	return NewRegistry(Email{}, Poem{}, Story{})
}

// Register adds or replaces a strategy.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[strings.ToLower(s.Name())] = s
}

// Get returns the named strategy.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[strings.ToLower(name)]
	return s, ok
}

// MustGet returns the named strategy or panics.
func (r *Registry) MustGet(name string) Strategy {
	s, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("expert: unknown strategy %q", name))
	}
	return s
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func joinOr(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}

func endsTruncated(text string) bool {
	trimmed := strings.TrimRight(text, " \t\r\n")
	return strings.HasSuffix(trimmed, "...")
}
