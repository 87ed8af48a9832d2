// Package router selects the expert that should handle a request.
//
// Routing is a cascade: a forced expert wins outright, then high-precision
// phrases, then an optional model classifier, then keyword frequency.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zen-systems/expertgate/pkg/config"
	"github.com/zen-systems/expertgate/pkg/logging"
	"github.com/zen-systems/expertgate/pkg/telemetry"
)

const contextWindow = 30

var expertSummaries = map[string]string{
	"story": "creative narrative generation with character development and plot structure",
	"poem":  "poetic composition with various styles and verse forms",
	"email": "professional communication with proper structure and formal tone",
}

// Router implements the hybrid routing cascade.
type Router struct {
	rules      *RuleSet
	classifier *Classifier
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithClassifier enables the model classification stage.
func WithClassifier(c *Classifier) Option {
	return func(r *Router) {
		r.classifier = c
	}
}

// WithLogger sets the router logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a router from routing configuration.
func New(cfg *config.RoutingConfig, opts ...Option) *Router {
	r := &Router{
		rules:  NewRuleSet(cfg),
		logger: logging.WithComponent("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rules returns the compiled rule set.
func (r *Router) Rules() *RuleSet {
	return r.rules
}

// Route picks an expert for text. forced, when non-empty, bypasses the
// cascade. The only error returned is a *RoutingError for an unknown forced
// expert.
func (r *Router) Route(ctx context.Context, text, forced string) (decision *Decision, err error) {
	ctx, span := telemetry.Start(ctx, "router.route")
	defer func() {
		if decision != nil {
			span.SetAttributes(
				attribute.String("router.expert", decision.Expert),
				attribute.String("router.method", decision.Method),
				attribute.Float64("router.confidence", decision.Confidence),
			)
		}
		telemetry.End(span, err)
	}()

	scores := r.rules.Scores(text)

	if forced = strings.ToLower(strings.TrimSpace(forced)); forced != "" {
		if !r.rules.Has(forced) {
			return nil, &RoutingError{Kind: KindUnknownExpert, Expert: forced, Available: r.rules.Experts()}
		}
		return &Decision{
			Expert:     forced,
			Confidence: ConfidenceManual,
			Method:     MethodManual,
			Rationale:  "Expert manually selected by user: " + forced,
			Scores:     scores,
		}, nil
	}

	if m, ok := r.rules.FastMatch(text); ok {
		r.logger.Debug("fast route", "phrase", m.Phrase, "expert", m.Expert)
		return &Decision{
			Expert:     m.Expert,
			Confidence: ConfidenceFast,
			Method:     MethodFastKeyword,
			Rationale:  fastRationale(text, m),
			Scores:     scores,
		}, nil
	}

	if r.classifier != nil {
		expert, reason, cerr := r.classifier.Classify(ctx, text, r.rules.Experts())
		if cerr == nil {
			if reason == "" {
				reason = r.keywordReason(text, expert)
			}
			return &Decision{
				Expert:     expert,
				Confidence: ConfidenceClassified,
				Method:     MethodModelClassified,
				Rationale:  reason,
				Scores:     scores,
			}, nil
		}
		r.logger.Warn("model classification failed, using keyword scoring", "error", cerr)
	}

	return r.fallback(text, scores), nil
}

func (r *Router) fallback(text string, scores map[string]int) *Decision {
	best, n, total := r.rules.Best(scores)
	if total == 0 {
		expert := r.rules.Default()
		return &Decision{
			Expert:     expert,
			Confidence: ConfidenceDefault,
			Method:     MethodKeywordFallback,
			Rationale:  fmt.Sprintf("No specific keywords matched. Defaulting to the %s expert, which handles general text generation requests.", titleCase(expert)),
			Scores:     scores,
		}
	}

	var rationale string
	if matched := r.rules.Matched(best, text); len(matched) > 0 {
		rationale = fmt.Sprintf("Keyword analysis identified %d matching terms in your request, including %s. These terms indicate the need for %s, which the %s expert specializes in.",
			n, keywordList(matched), summary(best), titleCase(best))
	} else {
		rationale = fmt.Sprintf("The %s expert best matches the content type implied by your request.", titleCase(best))
	}
	r.logger.Debug("keyword route", "expert", best, "scores", scores)

	return &Decision{
		Expert:     best,
		Confidence: float64(n) / float64(total),
		Method:     MethodKeywordFallback,
		Rationale:  rationale,
		Scores:     scores,
	}
}

func (r *Router) keywordReason(text, expert string) string {
	matched := r.rules.Matched(expert, text)
	if len(matched) == 0 {
		return fmt.Sprintf("Based on the request analysis, the %s expert is selected because the content requires %s.", titleCase(expert), summary(expert))
	}
	return fmt.Sprintf("The request contains %s-related terms (%s), indicating the need for %s. The %s expert specializes in this type of content generation.",
		expert, keywordList(matched), summary(expert), titleCase(expert))
}

func fastRationale(text string, m PhraseMatch) string {
	start := max(m.Index-contextWindow, 0)
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := min(max(m.End, m.Index)+contextWindow, len(text))
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	excerpt := strings.TrimSpace(strings.ToValidUTF8(text[start:end], ""))
	return fmt.Sprintf("High-confidence keyword match detected: the phrase '%s' in your request ('%s...') indicates you need %s. The %s expert is designed to handle this type of content.",
		m.Phrase, excerpt, summary(m.Expert), titleCase(m.Expert))
}

// keywordList quotes up to five keywords and appends "and N more".
func keywordList(matched []string) string {
	top := matched
	if len(top) > 5 {
		top = top[:5]
	}
	quoted := make([]string, len(top))
	for i, kw := range top {
		quoted[i] = fmt.Sprintf("%q", kw)
	}
	list := strings.Join(quoted, ", ")
	if extra := len(matched) - len(top); extra > 0 {
		list += fmt.Sprintf(" and %d more", extra)
	}
	return list
}

func summary(expert string) string {
	if s, ok := expertSummaries[expert]; ok {
		return s
	}
	return expert + " content"
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ExpertInfo summarizes one expert's routing tables.
type ExpertInfo struct {
	Name     string `json:"name"`
	Phrases  int    `json:"fast_phrases"`
	Keywords int    `json:"keywords"`
}

// Info describes the router configuration.
type Info struct {
	Experts           []ExpertInfo `json:"experts"`
	Priority          []string     `json:"priority"`
	DefaultExpert     string       `json:"default_expert"`
	ClassifierEnabled bool         `json:"model_routing_enabled"`
	Methods           []string     `json:"routing_methods"`
}

// Info returns the router's configuration summary.
func (r *Router) Info() Info {
	info := Info{
		Priority:          r.rules.Experts(),
		DefaultExpert:     r.rules.Default(),
		ClassifierEnabled: r.classifier != nil,
		Methods:           []string{MethodManual, MethodFastKeyword, MethodModelClassified, MethodKeywordFallback},
	}
	for _, name := range info.Priority {
		info.Experts = append(info.Experts, ExpertInfo{
			Name:     name,
			Phrases:  r.rules.PhraseCount(name),
			Keywords: r.rules.KeywordCount(name),
		})
	}
	return info
}
