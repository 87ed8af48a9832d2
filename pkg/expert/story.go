package expert

import (
	"context"
	"fmt"
	"strings"

	"github.com/zen-systems/expertgate/pkg/intent"
)

const storySystemPrompt = `You are a creative story writer. Generate engaging, imaginative narratives with vivid descriptions and compelling characters. Focus on storytelling elements like plot, character development, and descriptive language.

Your stories should be:
- Engaging and well-structured
- Rich in descriptive detail
- Character-driven with clear motivations
- Thematically coherent
- Appropriate in tone and style

Generate a story based on the user's request.`

const storyPlan = `STORY STRUCTURE:
1. Opening hook: Introduce protagonist in their ordinary world
2. Rising action: Inciting incident occurs; Protagonist faces challenges; Stakes are raised
3. Climax: Protagonist confronts main conflict
4. Falling action: Consequences unfold
5. Conclusion: New equilibrium established`

// Story writes narrative fiction.
type Story struct{}

func (Story) Name() string { return "story" }

func (Story) Description() string {
	return "Creative narratives, fiction and storytelling with plot and characters"
}

func (Story) SystemPrompt() string { return storySystemPrompt }

func (Story) FeedbackInstruction() string {
	return "Generate a complete story with a clear beginning, middle and ending"
}

func (Story) FallbackIntent(request string) intent.Intent { return intent.StoryFallback(request) }

// BuildInstruction renders the story instruction.
func (Story) BuildInstruction(in intent.Intent, request, preparation string) string {
	var sb strings.Builder
	sb.WriteString("Generate a story with the following requirements:\n\n")
	if preparation != "" {
		sb.WriteString(preparation + "\n\n")
	}
	sb.WriteString(fmt.Sprintf("Genre: %s\n", orDefault(in.Type, "general")))
	sb.WriteString(fmt.Sprintf("Tone: %s\n", orDefault(in.Tone, "creative")))
	sb.WriteString(fmt.Sprintf("Key Elements: %s\n", joinOr(in.KeyPoints, "none specified")))
	sb.WriteString(fmt.Sprintf("Length: %s\n", orDefault(in.Length, "medium")))
	if in.Style != "" {
		sb.WriteString(fmt.Sprintf("Style: %s\n", in.Style))
	}
	sb.WriteString("\nWrite at least three paragraphs and finish the story.\n")
	sb.WriteString("\nOriginal request: ")
	sb.WriteString(request)
	return sb.String()
}

// Complete requires 200 characters, more than 100 words and no trailing ellipsis.
func (Story) Complete(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 200 || len(strings.Fields(trimmed)) <= 100 {
		return false
	}
	return !endsTruncated(trimmed)
}

// Format removes markdown emphasis, trims each line and collapses blank runs.
func (Story) Format(_ intent.Intent, text string) string {
	text = strings.ReplaceAll(text, "*", "")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(text, "\n\n"))
}

// Skeleton renders a three-paragraph outline story from the request.
func (Story) Skeleton(in intent.Intent, request string) string {
	genre := orDefault(in.Type, "general")
	premise := strings.TrimSpace(request)
	return fmt.Sprintf("A %s Story\n\nIt began in an ordinary place, on an ordinary day: %s\n\nThen something changed, and the protagonist had to choose what mattered most.\n\nIn the end the world settled into a new shape, and they were different for it.",
		titleWord(genre), premise)
}

func (Story) Placeholder(request string) string {
	return "Once upon a time: " + request
}

// Prepare asks the model for a character sketch and then a structure plan.
func (Story) Prepare(ctx context.Context, generate GenerateFunc, in intent.Intent, request string) (string, error) {
	characters, err := generate(ctx, fmt.Sprintf(`Create a brief character sketch for the protagonist of this story.

Genre: %s
Tone: %s
Request: %s

Give the name, a one-line background, motivation and main flaw. Keep it under 80 words.`,
		orDefault(in.Type, "general"), orDefault(in.Tone, "creative"), request))
	if err != nil {
		return "", fmt.Errorf("character sketch: %w", err)
	}
	plan, err := generate(ctx, fmt.Sprintf(`Create a five-part plot outline for this story: opening hook, rising action, climax, falling action, conclusion.

Protagonist:
%s

Request: %s

One line per part.`, strings.TrimSpace(characters), request))
	if err != nil {
		return "", fmt.Errorf("story plan: %w", err)
	}
	if strings.TrimSpace(plan) == "" {
		return "", fmt.Errorf("story plan: empty output")
	}
	return "CHARACTERS:\n" + strings.TrimSpace(characters) + "\n\nSTORY STRUCTURE:\n" + strings.TrimSpace(plan), nil
}

// FallbackPreparation returns the fixed five-part plan.
func (Story) FallbackPreparation(intent.Intent, string) string { return storyPlan }

func titleWord(s string) string {
	switch s {
	case "sci-fi":
		return "Science Fiction"
	case "", "general":
		return "Short"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
