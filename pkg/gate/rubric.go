package gate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zen-systems/expertgate/pkg/adapter"
	"github.com/zen-systems/expertgate/pkg/jsonrepair"
)

// Rubric names the criteria a model grades and the grading instructions.
type Rubric struct {
	Expert   string
	Criteria []string
	// Guidance is the per-criterion instruction text shown to the grader.
	Guidance string
	// MaxCandidateChars truncates long candidates before grading; 0 disables.
	MaxCandidateChars int
}

// RubricResult is the parsed grader reply.
type RubricResult struct {
	Score          float64
	Criteria       map[string]float64
	Feedback       string
	CriticalErrors []string
	Suggestions    []string
}

// Rater produces a rubric score.
type Rater interface {
	Rate(ctx context.Context, request, candidate string) (*RubricResult, error)
}

// EmailRubric grades completeness, structure, accuracy, tone and clarity.
func EmailRubric() Rubric {
	return Rubric{
		Expert:   "email",
		Criteria: []string{"completeness", "structure", "accuracy", "tone", "clarity"},
		Guidance: `CRITICAL INSTRUCTIONS:
1. Compare dates EXACTLY: if the request says "17-18 November" but the email says "December 10", that's WRONG
2. Check the recipient EXACTLY: if the request says "HR" but the email says "Mr. Smith", that's WRONG
3. Check context: a sick leave request should REQUEST leave, not say "I have taken"
4. Check tense: requesting future leave should use future/present tense
5. BE VERY STRICT: any mismatch in dates, recipients, or context = LOW SCORE

Score each criterion 0-10:
1. COMPLETENESS: are ALL specific details from the request included correctly?
2. STRUCTURE: subject line, greeting to the correct recipient, clear body, professional closing?
3. ACCURACY: do dates, recipient and context match the request exactly?
4. TONE: professional and appropriate for the situation?
5. CLARITY: no contradictions, consistent tense, logical flow?`,
	}
}

// PoemRubric grades adherence, craft, imagery, impact and technique.
func PoemRubric() Rubric {
	return Rubric{
		Expert:   "poem",
		Criteria: []string{"adherence_to_request", "poetic_quality", "imagery_language", "emotional_impact", "technical_skill"},
		Guidance: `Score each (0-10):
1. ADHERENCE: matches type/tone/theme?
2. POETIC QUALITY: well-crafted, artistic?
3. IMAGERY: vivid, original language?
4. EMOTIONAL IMPACT: moving, memorable?
5. TECHNICAL SKILL: rhyme/rhythm/structure?`,
	}
}

// StoryRubric grades adherence, structure, characters, prose and impact.
func StoryRubric() Rubric {
	return Rubric{
		Expert:   "story",
		Criteria: []string{"adherence_to_request", "story_structure", "character_development", "writing_quality", "emotional_impact"},
		Guidance: `Score each (0-10):
1. ADHERENCE: matches the requested genre, tone and subject?
2. STORY STRUCTURE: clear beginning, rising action, climax and resolution?
3. CHARACTER DEVELOPMENT: believable, distinct characters?
4. WRITING QUALITY: vivid, varied, error-free prose?
5. EMOTIONAL IMPACT: engaging and memorable?`,
		MaxCandidateChars: 3000,
	}
}

// RubricScorer asks a model to grade a candidate against a rubric.
type RubricScorer struct {
	adapter adapter.Adapter
	model   string
	rubric  Rubric
}

// NewRubricScorer creates a rubric grader.
func NewRubricScorer(a adapter.Adapter, model string, rubric Rubric) *RubricScorer {
	return &RubricScorer{adapter: a, model: model, rubric: rubric}
}

// Rate grades the candidate. The score is the mean of the parsed criteria,
// or overall_score when no criterion parsed.
func (s *RubricScorer) Rate(ctx context.Context, request, candidate string) (*RubricResult, error) {
	if s == nil || s.adapter == nil {
		return nil, fmt.Errorf("%w: no rubric adapter", ErrEvaluation)
	}
	if limit := s.rubric.MaxCandidateChars; limit > 0 && len(candidate) > limit {
		candidate = candidate[:limit]
	}

	resp, err := s.adapter.Generate(ctx, adapter.Request{
		Model:       s.model,
		Prompt:      s.prompt(request, candidate),
		Temperature: adapter.Temperature(0),
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}

	var raw map[string]any
	if err := jsonrepair.Parse(resp.Text(), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}
	return s.parse(raw)
}

func (s *RubricScorer) parse(raw map[string]any) (*RubricResult, error) {
	result := &RubricResult{Criteria: make(map[string]float64)}

	var sum float64
	for _, name := range s.rubric.Criteria {
		if v, ok := number(raw[name]); ok {
			v = clampScore(v)
			result.Criteria[name] = v
			sum += v
		}
	}
	switch {
	case len(result.Criteria) > 0:
		result.Score = sum / float64(len(result.Criteria))
	default:
		overall, ok := number(raw["overall_score"])
		if !ok {
			return nil, fmt.Errorf("%w: grader reply has no scores", ErrEvaluation)
		}
		result.Score = clampScore(overall)
	}

	if fb, ok := raw["feedback"].(string); ok {
		result.Feedback = fb
	}
	result.CriticalErrors = stringList(raw["critical_errors"])
	result.Suggestions = append(stringList(raw["suggestions"]), stringList(raw["missing_elements"])...)
	return result, nil
}

func (s *RubricScorer) prompt(request, candidate string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are a STRICT %s evaluator. Evaluate this %s against the user's request.\n\n", s.rubric.Expert, s.rubric.Expert))
	sb.WriteString("USER'S REQUEST: ")
	sb.WriteString(request)
	sb.WriteString("\n\n")
	sb.WriteString(strings.ToUpper(s.rubric.Expert))
	sb.WriteString(":\n")
	sb.WriteString(candidate)
	sb.WriteString("\n\n")
	sb.WriteString(s.rubric.Guidance)
	sb.WriteString("\n\nReturn ONLY this JSON structure (no markdown, no backticks):\n{\n")
	for _, name := range s.rubric.Criteria {
		sb.WriteString(fmt.Sprintf("    %q: <0-10>,\n", name))
	}
	sb.WriteString(`    "overall_score": <average of the above>,
    "feedback": "<detailed explanation of issues found>",
    "critical_errors": ["..."],
    "suggestions": ["..."]
}`)
	return sb.String()
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// stringList converts a decoded JSON array to its string elements.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
