// Package repair builds the corrective feedback appended to an instruction
// when a generated attempt fails evaluation.
package repair

import (
	"fmt"
	"strings"

	"github.com/zen-systems/expertgate/pkg/gate"
)

// Delimiter marks the start of a feedback block inside an instruction.
const Delimiter = "\n\n=== CRITICAL FEEDBACK"

const defaultListLimit = 5

// FeedbackOptions tunes FeedbackBlock.
type FeedbackOptions struct {
	// FinalInstruction is the expert-specific last line of the instruction list.
	FinalInstruction string
	MaxErrors        int
	MaxSuggestions   int
}

// FeedbackBlock renders the evaluation as a corrective block. A failed
// evaluation always yields at least the header and the fixed instructions;
// a passing one with nothing to act on yields "".
func FeedbackBlock(eval gate.Evaluation, opts FeedbackOptions) string {
	if eval.Passed && eval.Feedback == "" && len(eval.CriticalErrors) == 0 && len(eval.Suggestions) == 0 {
		return ""
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = defaultListLimit
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = defaultListLimit
	}

	var sb strings.Builder
	sb.WriteString(Delimiter)
	sb.WriteString(fmt.Sprintf(" FROM PREVIOUS ATTEMPT (Score: %.1f/10) ===\n", eval.Score))

	if len(eval.CriticalErrors) > 0 {
		sb.WriteString("CRITICAL ERRORS TO FIX:\n")
		for i, e := range limit(eval.CriticalErrors, opts.MaxErrors) {
			sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, e))
		}
		sb.WriteString("\n")
	}

	if len(eval.Suggestions) > 0 {
		sb.WriteString("IMPROVEMENTS NEEDED:\n")
		for _, s := range limit(eval.Suggestions, opts.MaxSuggestions) {
			sb.WriteString(fmt.Sprintf("- %s\n", s))
		}
		sb.WriteString("\n")
	}

	if eval.Feedback != "" {
		sb.WriteString("DETAILED FEEDBACK:\n")
		sb.WriteString(eval.Feedback)
		sb.WriteString("\n\n")
	}

	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	if len(eval.CriticalErrors) > 0 || len(eval.Suggestions) > 0 || eval.Feedback != "" {
		sb.WriteString("- You MUST address ALL the issues listed above\n")
	} else {
		sb.WriteString("- The previous attempt scored below the quality threshold; produce a stronger version\n")
	}
	sb.WriteString("- Do NOT use placeholders like [Your Time Zone], [Your Name], etc.\n")
	sb.WriteString("- Use specific, complete information from the original request\n")
	sb.WriteString("- Ensure all dates, times, names, and details are accurate and complete\n")
	if opts.FinalInstruction != "" {
		sb.WriteString("- ")
		sb.WriteString(opts.FinalInstruction)
		sb.WriteString("\n")
	}
	return sb.String()
}

// AppendFeedback replaces any existing feedback block in instruction with block.
func AppendFeedback(instruction, block string) string {
	base := StripFeedback(instruction)
	if block == "" {
		return base
	}
	if !strings.HasPrefix(block, Delimiter) {
		block = Delimiter + " ===\n" + block
	}
	return base + block
}

// StripFeedback removes the feedback block, returning the original instruction.
func StripFeedback(instruction string) string {
	if idx := strings.Index(instruction, Delimiter); idx >= 0 {
		return instruction[:idx]
	}
	return instruction
}

// HasFeedback reports whether instruction carries a feedback block.
func HasFeedback(instruction string) bool {
	return strings.Contains(instruction, Delimiter)
}

func limit(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
