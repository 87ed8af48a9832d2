package gate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

const monthPattern = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`

var (
	// "17-18 November", "3-5 Oct 2025"
	dayRangeMonth = regexp.MustCompile(`(?i)\b\d{1,2}[-–]\d{1,2}\s+` + monthPattern + `(?:\s+\d{4})?\b`)
	// "November 17-18, 2025"
	monthDayRange = regexp.MustCompile(`(?i)\b` + monthPattern + `\s+\d{1,2}[-–]\d{1,2}(?:,?\s+\d{4})?\b`)
	// "2025-11-17", "11/17/2025", "Dec 10th, 2025"
	singleDate = regexp.MustCompile(`(?i)\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}[-/]\d{1,2}[-/]\d{2,4}|` + monthPattern + `\s+\d{1,2}(?:st|nd|rd|th)?(?:,?\s+\d{4})?)\b`)

	monthToken = regexp.MustCompile(`(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)`)
	numberRun  = regexp.MustCompile(`\d+`)
)

// ExtractDates returns the date expressions found in text, in pattern order,
// without duplicates.
func ExtractDates(text string) []string {
	var dates []string
	seen := make(map[string]bool)
	for _, re := range []*regexp.Regexp{dayRangeMonth, monthDayRange, singleDate} {
		for _, m := range re.FindAllString(text, -1) {
			if !seen[m] {
				seen[m] = true
				dates = append(dates, m)
			}
		}
	}
	return dates
}

// DatesMatch reports whether two date expressions refer to the same day or
// range: either contains the other after normalization, or they share a
// month and at least one number.
func DatesMatch(a, b string) bool {
	na, nb := normalizeDate(a), normalizeDate(b)
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}

	ma := monthToken.FindString(na)
	mb := monthToken.FindString(nb)
	if ma == "" || mb == "" || ma != mb {
		return false
	}
	nums := make(map[string]bool)
	for _, n := range numberRun.FindAllString(na, -1) {
		nums[n] = true
	}
	for _, n := range numberRun.FindAllString(nb, -1) {
		if nums[n] {
			return true
		}
	}
	return false
}

func normalizeDate(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ",", "")
	return strings.ReplaceAll(s, ".", "")
}

// DateCheck verifies that every date in the request appears in the candidate.
type DateCheck struct{}

// Name returns the check identifier.
func (DateCheck) Name() string { return "dates" }

// Run compares request dates against candidate dates.
func (c DateCheck) Run(_ context.Context, request, candidate string) []Violation {
	requested := ExtractDates(request)
	if len(requested) == 0 {
		return nil
	}
	found := ExtractDates(candidate)
	if len(found) == 0 {
		return []Violation{violation(c.Name(), fmt.Sprintf("Prompt specifies dates %v but email has no dates", requested))}
	}

	var out []Violation
	for _, want := range requested {
		matched := false
		for _, got := range found {
			if DatesMatch(want, got) {
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, violation(c.Name(), fmt.Sprintf("Prompt date '%s' not found in email. Email has: %v", want, found)))
		}
	}
	return out
}
