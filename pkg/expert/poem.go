package expert

import (
	"fmt"
	"strings"

	"github.com/zen-systems/expertgate/pkg/intent"
)

const poemSystemPrompt = `You are a skilled poet. Create beautiful, expressive poetry with attention to rhythm, imagery, and emotional resonance. Use poetic devices like metaphor, simile, and vivid sensory language.

Your poems should be:
- Emotionally resonant
- Rich in imagery and metaphor
- Well-structured with appropriate rhythm
- Thematically coherent
- Stylistically appropriate for the requested type

Generate a poem based on the user's request.`

var poemForms = map[string]string{
	"haiku":    "Three lines of five, seven and five syllables.",
	"sonnet":   "Fourteen lines in iambic pentameter ending in a couplet.",
	"limerick": "Five lines with an AABBA rhyme scheme and a playful rhythm.",
	"ballad":   "Narrative quatrains with a regular rhyme and refrain.",
}

// Poem writes poetry.
type Poem struct{}

func (Poem) Name() string { return "poem" }

func (Poem) Description() string {
	return "Poetry and verse with rhythm, imagery and poetic devices"
}

func (Poem) SystemPrompt() string { return poemSystemPrompt }

func (Poem) FeedbackInstruction() string {
	return "Generate a complete poem that honors the requested form"
}

func (Poem) FallbackIntent(request string) intent.Intent { return intent.PoemFallback(request) }

// BuildInstruction renders the poem instruction.
func (Poem) BuildInstruction(in intent.Intent, request, preparation string) string {
	var sb strings.Builder
	sb.WriteString("Generate a poem with the following requirements:\n\n")
	if form, ok := poemForms[in.Type]; ok {
		sb.WriteString(form + "\n\n")
	}
	if preparation != "" {
		sb.WriteString(preparation + "\n\n")
	}
	sb.WriteString(fmt.Sprintf("Poem Type: %s\n", orDefault(in.Type, "free_verse")))
	sb.WriteString(fmt.Sprintf("Tone: %s\n", orDefault(in.Tone, "expressive")))
	sb.WriteString(fmt.Sprintf("Theme: %s\n", orDefault(in.Subject, "general")))
	sb.WriteString(fmt.Sprintf("Rhyme Scheme: %s\n", orDefault(in.Style, "free_verse")))
	if len(in.Requirements) > 0 {
		sb.WriteString(fmt.Sprintf("Special Requirements: %s\n", strings.Join(in.Requirements, ", ")))
	}
	sb.WriteString("\nOriginal request: ")
	sb.WriteString(request)
	return sb.String()
}

// Complete requires at least 50 characters and more than 20 words.
func (Poem) Complete(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 50 || len(strings.Fields(trimmed)) <= 20 {
		return false
	}
	return !endsTruncated(trimmed)
}

// Format trims trailing whitespace from each line and drops markdown emphasis.
func (Poem) Format(_ intent.Intent, text string) string {
	text = strings.ReplaceAll(text, "**", "")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
}

// Skeleton renders a short free-verse piece on the theme.
func (Poem) Skeleton(in intent.Intent, request string) string {
	theme := orDefault(in.Subject, "general")
	if theme == "general" {
		theme = "the moment"
	}
	return fmt.Sprintf("On %s\n\nI wanted words for %s,\nand found them waiting, quiet, near:\n%s\n", theme, theme, strings.TrimSpace(request))
}

func (Poem) Placeholder(request string) string {
	return "Untitled\n\n" + request
}
