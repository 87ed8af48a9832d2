package router

import (
	"sort"
	"strings"

	"github.com/zen-systems/expertgate/pkg/config"
	"github.com/zen-systems/expertgate/pkg/keyword"
)

// RuleSet holds the phrase and keyword tables for each expert.
type RuleSet struct {
	priority      []string
	phrases       map[string][]string
	keywords      map[string][]string
	defaultExpert string
}

// PhraseMatch records a fast-stage hit. Index and End delimit the matched
// bytes of the original request.
type PhraseMatch struct {
	Expert string
	Phrase string
	Index  int
	End    int
}

// NewRuleSet builds a rule set from routing configuration. Experts missing
// from the priority list are appended in name order.
func NewRuleSet(cfg *config.RoutingConfig) *RuleSet {
	if cfg == nil {
		cfg = config.DefaultRoutingConfig()
	}
	rs := &RuleSet{
		phrases:       make(map[string][]string),
		keywords:      make(map[string][]string),
		defaultExpert: strings.ToLower(cfg.DefaultExpert),
	}

	seen := make(map[string]bool)
	for _, name := range cfg.Priority {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		rs.priority = append(rs.priority, name)
	}
	for _, name := range sortedKeys(cfg.Experts) {
		lower := strings.ToLower(name)
		if !seen[lower] {
			seen[lower] = true
			rs.priority = append(rs.priority, lower)
		}
		rules := cfg.Experts[name]
		rs.phrases[lower] = rules.Phrases
		rs.keywords[lower] = rules.Keywords
	}
	if rs.defaultExpert == "" && len(rs.priority) > 0 {
		rs.defaultExpert = rs.priority[len(rs.priority)-1]
	}
	return rs
}

// Experts returns expert names in priority order.
func (rs *RuleSet) Experts() []string {
	out := make([]string, len(rs.priority))
	copy(out, rs.priority)
	return out
}

// Has reports whether name is a known expert.
func (rs *RuleSet) Has(name string) bool {
	for _, p := range rs.priority {
		if p == name {
			return true
		}
	}
	return false
}

// Default returns the expert used when nothing matches.
func (rs *RuleSet) Default() string {
	return rs.defaultExpert
}

// FastMatch scans experts in priority order and returns the first phrase hit.
func (rs *RuleSet) FastMatch(text string) (PhraseMatch, bool) {
	for _, expert := range rs.priority {
		for _, phrase := range rs.phrases[expert] {
			if start, end := keyword.Find(text, phrase); start >= 0 {
				return PhraseMatch{Expert: expert, Phrase: phrase, Index: start, End: end}, true
			}
		}
	}
	return PhraseMatch{}, false
}

// Scores counts distinct vocabulary matches for every expert.
func (rs *RuleSet) Scores(text string) map[string]int {
	scores := make(map[string]int, len(rs.priority))
	for _, expert := range rs.priority {
		scores[expert] = len(keyword.Matches(text, rs.keywords[expert]))
	}
	return scores
}

// Matched returns the vocabulary entries of expert found in text.
func (rs *RuleSet) Matched(expert, text string) []string {
	return keyword.Matches(text, rs.keywords[expert])
}

// Best returns the highest-scoring expert; ties go to the earlier priority.
func (rs *RuleSet) Best(scores map[string]int) (expert string, best, total int) {
	for _, name := range rs.priority {
		n := scores[name]
		total += n
		if n > best {
			best = n
			expert = name
		}
	}
	return expert, best, total
}

// PhraseCount returns the number of fast phrases configured for expert.
func (rs *RuleSet) PhraseCount(expert string) int {
	return len(rs.phrases[expert])
}

// KeywordCount returns the vocabulary size for expert.
func (rs *RuleSet) KeywordCount(expert string) int {
	return len(rs.keywords[expert])
}

// Keywords returns up to n of expert's keywords in configured order; n <= 0
// returns all of them.
func (rs *RuleSet) Keywords(expert string, n int) []string {
	kw := rs.keywords[expert]
	if n > 0 && len(kw) > n {
		kw = kw[:n]
	}
	return append([]string(nil), kw...)
}

func sortedKeys(m map[string]config.RouteRules) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
