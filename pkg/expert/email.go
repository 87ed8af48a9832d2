package expert

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/zen-systems/expertgate/pkg/intent"
)

const emailSystemPrompt = `You are a professional email writer. Generate clear, professional, and appropriate emails based on user requests.

Your emails should be:
- Professional and appropriate in tone
- Clear and concise
- Properly formatted with subject, greeting, body, and closing
- Accurate to the user's specific requirements (dates, recipients, context)
- Free of errors and contradictions`

var emailSubjects = map[string]string{
	"sick_leave": "Sick Leave Request",
	"vacation":   "Vacation Leave Request",
	"meeting":    "Meeting Request",
	"thank_you":  "Thank You",
}

var (
	blankRuns        = regexp.MustCompile(`\n{3,}`)
	spaceBeforePunct = regexp.MustCompile(`[ \t]+([,.!?])`)
	subjectLabel     = regexp.MustCompile(`(?im)^\s*subject\s*:\s*`)
	emptyGreeting    = regexp.MustCompile(`Dear\s+,`)
	hasSubject       = regexp.MustCompile(`(?im)^\s*Subject:`)
	hasGreeting      = regexp.MustCompile(`(?im)^\s*(Dear|Hello|Hi)\s+`)
	hasClosing       = regexp.MustCompile(`(?im)(best regards|sincerely|regards|thank you|thanks),?\s*$`)
	namePlaceholder  = regexp.MustCompile(`(?i)\[your name\]|\[name\]`)
)

// Email writes professional correspondence.
type Email struct{}

// Name returns "email".
func (Email) Name() string { return "email" }

// Description returns the catalog description.
func (Email) Description() string {
	return "Professional email and formal communication with proper structure"
}

// SystemPrompt returns the writer persona.
func (Email) SystemPrompt() string { return emailSystemPrompt }

// FeedbackInstruction returns the final corrective line.
func (Email) FeedbackInstruction() string {
	return "Generate a complete, ready-to-send email with no placeholders"
}

// FallbackIntent reads the request with keyword rules.
func (Email) FallbackIntent(request string) intent.Intent { return intent.EmailFallback(request) }

// BuildInstruction renders the email instruction.
func (Email) BuildInstruction(in intent.Intent, request, preparation string) string {
	var sb strings.Builder
	sb.WriteString("Generate a professional email with the following requirements:\n\n")
	sb.WriteString(fmt.Sprintf("Email Type: %s\n", orDefault(in.Type, "general")))
	sb.WriteString(fmt.Sprintf("Tone: %s\n", orDefault(in.Tone, "formal")))
	sb.WriteString(fmt.Sprintf("Recipient: %s\n", orDefault(in.Subject, "general")))
	sb.WriteString(fmt.Sprintf("Key Points: %s\n", joinOr(in.KeyPoints, request)))
	if len(in.Dates) > 0 {
		sb.WriteString(fmt.Sprintf("Dates (use exactly as written): %s\n", strings.Join(in.Dates, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Special Requirements: %s\n", joinOr(in.Requirements, "none")))
	if preparation != "" {
		sb.WriteString("\nFollow this structure:\n")
		sb.WriteString(preparation)
		sb.WriteString("\n")
	}
	sb.WriteString("\nInclude a subject line, a greeting to the correct recipient, a clear body and a professional closing.\n")
	sb.WriteString("\nOriginal request: ")
	sb.WriteString(request)
	return sb.String()
}

// Complete requires more than 100 characters that do not trail off.
func (Email) Complete(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= 100 {
		return false
	}
	return !strings.HasSuffix(trimmed, "...") && !strings.HasSuffix(trimmed, "[")
}

// Format strips preamble before the email, ensures subject, greeting and
// closing are present and tidies whitespace.
func (e Email) Format(in intent.Intent, text string) string {
	text = stripEmailPreamble(strings.TrimSpace(text))
	text = strings.ReplaceAll(text, "**", "")

	if !hasSubject.MatchString(text) {
		subject, ok := emailSubjects[in.Type]
		if !ok {
			subject = "Professional Correspondence"
		}
		text = "Subject: " + subject + "\n\n" + text
	}
	if !hasGreeting.MatchString(text) {
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "subject:") {
				rest := append([]string{"", "Dear Recipient,", ""}, lines[i+1:]...)
				lines = append(lines[:i+1], rest...)
				break
			}
		}
		text = strings.Join(lines, "\n")
	}

	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	text = subjectLabel.ReplaceAllString(text, "Subject: ")
	text = emptyGreeting.ReplaceAllString(text, "Dear Recipient,")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	text = strings.Join(lines, "\n")

	sender := senderName(in.KeyPoints)
	if !hasClosing.MatchString(text) {
		text = strings.TrimRight(text, "\n ") + "\n\nBest regards,\n" + orDefault(sender, "[Your Name]")
	}
	if sender != "" {
		text = namePlaceholder.ReplaceAllString(text, sender)
	}
	return strings.TrimSpace(text)
}

// Skeleton renders a plain email from the intent.
func (Email) Skeleton(in intent.Intent, request string) string {
	subject, ok := emailSubjects[in.Type]
	if !ok {
		subject = "Professional Correspondence"
	}
	recipient := in.Subject
	if recipient == "" || recipient == "general" {
		recipient = "Recipient"
	}

	var sb strings.Builder
	sb.WriteString("Subject: " + subject + "\n\n")
	sb.WriteString("Dear " + recipient + ",\n\n")
	sb.WriteString("I am writing regarding the following: " + strings.TrimSpace(request) + "\n")
	if len(in.Dates) > 0 {
		sb.WriteString("\nThe relevant dates are " + strings.Join(in.Dates, ", ") + ".\n")
	}
	sb.WriteString("\nThank you for your time and consideration.\n\n")
	sb.WriteString("Best regards,\n" + orDefault(senderName(in.KeyPoints), "[Your Name]"))
	return sb.String()
}

// Placeholder is the last-resort output.
func (Email) Placeholder(request string) string {
	return "Subject: Professional Correspondence\n\nDear Recipient,\n\n" + request + "\n\nBest regards,\n[Your Name]"
}

// Prepare asks the model for a structural template for this email type.
func (e Email) Prepare(ctx context.Context, generate GenerateFunc, in intent.Intent, request string) (string, error) {
	prompt := fmt.Sprintf(`Generate a structured email outline for this request.

CONTEXT:
- Email Type: %s
- Recipient: %s
- Dates: %s

Request: %s

Return a short outline with the subject line, greeting, the points each body paragraph must cover, and the closing. Do not write the email itself.`,
		orDefault(in.Type, "general"), orDefault(in.Subject, "general"), joinOr(in.Dates, "none"), request)
	out, err := generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("empty template")
	}
	return strings.TrimSpace(out), nil
}

// FallbackPreparation returns the built-in outline for the email type.
func (Email) FallbackPreparation(in intent.Intent, _ string) string {
	subject, ok := emailSubjects[in.Type]
	if !ok {
		subject = "Professional Correspondence"
	}
	body := "State the purpose of the email and the specific details from the request."
	switch in.Type {
	case "sick_leave":
		body = "State that you are unwell, request leave for the exact dates, mention documentation if relevant, note handover or availability."
	case "vacation":
		body = "Request time off for the exact dates, mention coverage of your responsibilities, ask for confirmation."
	case "meeting":
		body = "Propose the meeting purpose, suggested times, attendees and ask for confirmation."
	case "thank_you":
		body = "Thank the recipient for the specific help, describe its impact, close warmly."
	}
	return fmt.Sprintf("Subject: %s\nGreeting: Dear %s,\nBody: %s\nClosing: Best regards, followed by the sender's name",
		subject, orDefault(in.Subject, "Recipient"), body)
}

// stripEmailPreamble drops instruction echo before the real email. With
// several subject lines the last one starts the email; a single subject
// counts only when a greeting follows within five lines.
func stripEmailPreamble(text string) string {
	lines := strings.Split(text, "\n")
	var subjects []int
	for i, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "subject:") {
			subjects = append(subjects, i)
		}
	}
	switch {
	case len(subjects) > 1:
		return strings.Join(lines[subjects[len(subjects)-1]:], "\n")
	case len(subjects) == 1:
		idx := subjects[0]
		for j := idx; j < len(lines) && j <= idx+5; j++ {
			if hasGreeting.MatchString(lines[j]) {
				return strings.Join(lines[idx:], "\n")
			}
		}
	}
	return text
}

func senderName(points []string) string {
	for _, p := range points {
		key, value, ok := strings.Cut(p, ":")
		if ok && strings.EqualFold(strings.TrimSpace(key), "sender") {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
