package router

import (
	"errors"
	"fmt"
)

// Routing methods reported on a Decision.
const (
	MethodManual          = "manual"
	MethodFastKeyword     = "fast_keyword"
	MethodModelClassified = "model_classified"
	MethodKeywordFallback = "keyword_fallback"
)

// Confidence levels assigned by each stage.
const (
	ConfidenceManual     = 1.0
	ConfidenceFast       = 0.95
	ConfidenceClassified = 0.90
	ConfidenceDefault    = 0.5
)

// Decision captures which expert handles a request and why.
type Decision struct {
	Expert     string         `json:"expert"`
	Confidence float64        `json:"confidence"`
	Method     string         `json:"method"`
	Rationale  string         `json:"rationale"`
	Scores     map[string]int `json:"scores"`
}

// ErrorKind classifies routing failures.
type ErrorKind string

// KindUnknownExpert is returned when a forced expert is not registered.
const KindUnknownExpert ErrorKind = "unknown_expert"

// ErrUnknownExpert matches any RoutingError of kind KindUnknownExpert.
var ErrUnknownExpert = errors.New("unknown expert")

// RoutingError describes a request that could not be routed.
type RoutingError struct {
	Kind      ErrorKind
	Expert    string
	Available []string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("router: unknown expert %q (available: %v)", e.Expert, e.Available)
}

// Is lets errors.Is match ErrUnknownExpert.
func (e *RoutingError) Is(target error) bool {
	return target == ErrUnknownExpert && e.Kind == KindUnknownExpert
}
