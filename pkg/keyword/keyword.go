// Package keyword provides case-insensitive phrase matching on word
// boundaries.
package keyword

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Contains reports whether text contains phrase as a whole word or phrase.
// Both arguments are compared case-insensitively.
func Contains(text, phrase string) bool {
	return Index(text, phrase) >= 0
}

// Index returns the byte offset in text of the first boundary-aligned
// occurrence of phrase, or -1.
func Index(text, phrase string) int {
	start, _ := Find(text, phrase)
	return start
}

// Find returns the byte span [start, end) in text of the first
// boundary-aligned occurrence of phrase, or -1, -1. Matching folds case, so
// the span can differ in length from phrase; it always lies on rune
// boundaries of text.
func Find(text, phrase string) (start, end int) {
	re := pattern(phrase)
	if re == nil {
		return -1, -1
	}
	for offset := 0; offset <= len(text); {
		loc := re.FindStringIndex(text[offset:])
		if loc == nil {
			return -1, -1
		}
		start, end = offset+loc[0], offset+loc[1]
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return start, end
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
	return -1, -1
}

var patterns sync.Map // normalized phrase -> *regexp.Regexp

func pattern(phrase string) *regexp.Regexp {
	phrase = strings.ToLower(strings.TrimSpace(phrase))
	if phrase == "" {
		return nil
	}
	if re, ok := patterns.Load(phrase); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile("(?i)" + regexp.QuoteMeta(phrase))
	patterns.Store(phrase, re)
	return re
}

// Matches returns the phrases found in text, preserving the input order.
func Matches(text string, phrases []string) []string {
	var found []string
	for _, p := range phrases {
		if Contains(text, p) {
			found = append(found, p)
		}
	}
	return found
}

// ContainsAny reports whether any phrase is present in text.
func ContainsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if Contains(text, p) {
			return true
		}
	}
	return false
}

func boundaryBefore(s string, idx int) bool {
	return idx == 0 || !isWordChar(s[idx-1])
}

func boundaryAfter(s string, idx int) bool {
	return idx >= len(s) || !isWordChar(s[idx])
}

func isWordChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
