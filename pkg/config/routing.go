package config

// RoutingConfig defines how prompts are routed to experts.
type RoutingConfig struct {
	// Priority orders experts for fast-phrase matching and tie-breaking.
	Priority      []string              `yaml:"priority" toml:"priority"`
	DefaultExpert string                `yaml:"default_expert" toml:"default_expert"`
	Experts       map[string]RouteRules `yaml:"experts" toml:"experts"`
	Classifier    ClassifierConfig      `yaml:"classifier" toml:"classifier"`
}

// RouteRules holds the phrases and keywords that select an expert.
type RouteRules struct {
	Phrases  []string `yaml:"phrases" toml:"phrases"`
	Keywords []string `yaml:"keywords" toml:"keywords"`
}

// ClassifierConfig configures the optional model classification stage.
type ClassifierConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Adapter string `yaml:"adapter" toml:"adapter"`
	Model   string `yaml:"model" toml:"model"`
	Explain bool   `yaml:"explain" toml:"explain"`
}

// DefaultRoutingConfig returns the built-in phrase and keyword tables.
func DefaultRoutingConfig() *RoutingConfig {
	return &RoutingConfig{
		Priority:      []string{"story", "poem", "email"},
		DefaultExpert: "email",
		Experts: map[string]RouteRules{
			"story": {
				Phrases: []string{
					"write a story", "tell me a story", "create a story", "once upon a time",
					"story about", "short story", "write me a tale", "narrative about",
				},
				Keywords: []string{
					"story", "tale", "narrative", "fiction", "novel", "adventure", "character",
					"plot", "once upon", "chapter", "beginning", "ending", "short story",
					"fantasy", "sci-fi", "science fiction", "mystery", "thriller", "hero",
					"villain", "protagonist", "antagonist", "magic", "quest", "journey",
					"legend", "fable", "chronicles", "saga", "epic", "folklore", "imaginary",
					"fictional", "storytelling", "robot", "dragon",
				},
			},
			"poem": {
				Phrases: []string{
					"write a poem", "compose a poem", "create a poem", "write poetry",
					"haiku about", "sonnet about", "poem about",
				},
				Keywords: []string{
					"poem", "poetry", "verse", "rhyme", "haiku", "sonnet", "stanza", "lyric",
					"ballad", "ode", "limerick", "free verse", "poetic", "metaphor",
					"romantic", "epic poem", "acrostic", "couplet", "quatrain", "iambic",
					"rhythm", "rhyming",
				},
			},
			"email": {
				Phrases: []string{
					"write an email", "draft an email", "compose an email", "email to",
					"write a letter", "professional email", "sick leave", "vacation request",
					"leave request",
				},
				Keywords: []string{
					"email", "mail", "letter", "message", "write", "send", "compose", "draft",
					"correspondence", "leave", "sick", "vacation", "absence", "time off",
					"sick leave", "medical leave", "annual leave", "pto", "day off",
					"days off", "absent", "unavailable", "hr", "human resource",
					"human resources", "manager", "boss", "supervisor", "director",
					"company", "work", "office", "workplace", "department", "team",
					"colleague", "employee", "request", "application", "apply", "asking",
					"inquiry", "proposal", "permission", "meeting", "appointment",
					"schedule", "discuss", "call", "conference", "zoom", "teams",
					"professional", "formal", "business", "official", "corporate",
					"executive", "dear", "sincerely", "regards", "thank", "thanks",
					"gratitude", "appreciate", "appreciation", "follow up", "follow-up",
					"following up", "apology", "apologize", "sorry", "complaint", "concern",
					"issue", "problem", "resignation", "resign", "quit", "leaving",
					"invitation", "invite", "rsvp", "confirmation", "confirm", "reminder",
					"reminding",
				},
			},
		},
		Classifier: ClassifierConfig{
			Adapter: "google",
			Model:   "gemini-2.0-flash-lite",
		},
	}
}

// applyRoutingDefaults fills unset routing fields from the built-in tables.
// Experts named in a file replace the built-in rules for that expert only.
func applyRoutingDefaults(cfg *RoutingConfig) {
	defaults := DefaultRoutingConfig()
	if len(cfg.Priority) == 0 {
		cfg.Priority = defaults.Priority
	}
	if cfg.DefaultExpert == "" {
		cfg.DefaultExpert = defaults.DefaultExpert
	}
	if cfg.Experts == nil {
		cfg.Experts = make(map[string]RouteRules)
	}
	for name, rules := range defaults.Experts {
		if _, ok := cfg.Experts[name]; !ok {
			cfg.Experts[name] = rules
		}
	}
	if cfg.Classifier.Adapter == "" {
		cfg.Classifier.Adapter = defaults.Classifier.Adapter
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = defaults.Classifier.Model
	}
}
