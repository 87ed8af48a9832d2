package intent

import (
	"github.com/zen-systems/expertgate/pkg/gate"
	"github.com/zen-systems/expertgate/pkg/keyword"
)

type rule struct {
	label string
	terms []string
}

// first returns the label of the first rule with a match, else def.
func first(text string, rules []rule, def string) string {
	for _, r := range rules {
		if keyword.ContainsAny(text, r.terms...) {
			return r.label
		}
	}
	return def
}

var (
	emailTypes = []rule{
		{"sick_leave", []string{"sick", "ill", "medical"}},
		{"vacation", []string{"vacation", "holiday", "time off"}},
		{"meeting", []string{"meeting", "schedule"}},
		{"thank_you", []string{"thank", "thanks", "appreciate"}},
	}
	emailRecipients = []rule{
		{"HR", []string{"hr", "human resource", "human resources"}},
		{"manager", []string{"manager", "boss", "supervisor"}},
		{"team", []string{"team", "colleagues"}},
	}

	poemTypes = []rule{
		{"haiku", []string{"haiku"}},
		{"sonnet", []string{"sonnet"}},
		{"limerick", []string{"limerick"}},
		{"ballad", []string{"ballad"}},
	}
	poemTones = []rule{
		{"melancholic", []string{"sad", "melancholic", "sorrow", "grief"}},
		{"joyful", []string{"happy", "joyful", "cheerful", "glad"}},
		{"romantic", []string{"romantic", "love", "passion"}},
		{"dark", []string{"dark", "grim", "horror", "eerie"}},
	}
	poemThemes = []rule{
		{"love", []string{"love"}},
		{"nature", []string{"nature"}},
		{"life", []string{"life", "living"}},
		{"death", []string{"death"}},
		{"time", []string{"time"}},
	}

	storyGenres = []rule{
		{"fantasy", []string{"fantasy", "magic", "wizard", "dragon", "elf", "kingdom"}},
		{"sci-fi", []string{"sci-fi", "science fiction", "space", "alien", "robot", "future", "spaceship"}},
		{"romance", []string{"romance", "love", "relationship", "couple", "dating"}},
		{"mystery", []string{"mystery", "detective", "crime", "murder", "clue", "investigate"}},
		{"horror", []string{"horror", "scary", "haunted", "ghost", "terror", "nightmare"}},
		{"adventure", []string{"adventure", "quest", "journey", "treasure", "explore"}},
	}
	storyTones = []rule{
		{"dark", []string{"dark", "grim", "serious"}},
		{"humorous", []string{"funny", "humorous", "comedy"}},
		{"light", []string{"light", "cheerful", "uplifting"}},
	}
)

// EmailFallback reads an email request with keyword rules.
func EmailFallback(request string) Intent {
	return Intent{
		Expert:    "email",
		Type:      first(request, emailTypes, "general"),
		Tone:      "formal",
		Subject:   first(request, emailRecipients, "general"),
		KeyPoints: []string{request},
		Dates:     gate.ExtractDates(request),
		Length:    "medium",
		Source:    SourceFallback,
	}
}

// PoemFallback reads a poem request with keyword rules.
func PoemFallback(request string) Intent {
	style := "free_verse"
	if keyword.ContainsAny(request, "rhyme", "rhyming") {
		style = "rhyming"
	}
	return Intent{
		Expert:  "poem",
		Type:    first(request, poemTypes, "free_verse"),
		Tone:    first(request, poemTones, "expressive"),
		Subject: first(request, poemThemes, "general"),
		Style:   style,
		Length:  "medium",
		Source:  SourceFallback,
	}
}

// StoryFallback reads a story request with keyword rules.
func StoryFallback(request string) Intent {
	return Intent{
		Expert: "story",
		Type:   first(request, storyGenres, "general"),
		Tone:   first(request, storyTones, "creative"),
		Style:  "third person, past tense",
		Length: "medium",
		Source: SourceFallback,
	}
}

// Fallback dispatches to the expert's keyword reading.
func Fallback(expert, request string) Intent {
	switch expert {
	case "email":
		return EmailFallback(request)
	case "poem":
		return PoemFallback(request)
	case "story":
		return StoryFallback(request)
	}
	return Intent{Expert: expert, Type: "general", Tone: "neutral", Length: "medium", Source: SourceFallback}
}
