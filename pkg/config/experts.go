package config

// FallbackTarget names an alternate adapter/model tried when the primary fails.
type FallbackTarget struct {
	Adapter string `yaml:"adapter" toml:"adapter"`
	Model   string `yaml:"model" toml:"model"`
}

// ExpertConfig configures one expert's generation and evaluation settings.
// Pointer fields distinguish "unset" from a meaningful zero.
type ExpertConfig struct {
	Adapter        string           `yaml:"adapter" toml:"adapter"`
	Model          string           `yaml:"model" toml:"model"`
	Fallbacks      []FallbackTarget `yaml:"fallbacks,omitempty" toml:"fallbacks"`
	EvaluatorModel string           `yaml:"evaluator_model,omitempty" toml:"evaluator_model"`

	MaxTokens       int     `yaml:"max_tokens" toml:"max_tokens"`
	Temperature     float64 `yaml:"temperature" toml:"temperature"`
	TemperatureStep float64 `yaml:"temperature_step" toml:"temperature_step"`
	MaxTemperature  float64 `yaml:"max_temperature" toml:"max_temperature"`

	UseEvaluator *bool `yaml:"use_evaluator,omitempty" toml:"use_evaluator"`
	UseExtractor *bool `yaml:"use_extractor,omitempty" toml:"use_extractor"`
	UsePreparer  *bool `yaml:"use_preparer,omitempty" toml:"use_preparer"`

	Threshold            float64 `yaml:"threshold" toml:"threshold"`
	MaxRetries           *int    `yaml:"max_retries,omitempty" toml:"max_retries"`
	PenaltyPerIssue      float64 `yaml:"penalty_per_issue" toml:"penalty_per_issue"`
	MaxPenalty           float64 `yaml:"max_penalty" toml:"max_penalty"`
	IssueScoreCap        float64 `yaml:"issue_score_cap" toml:"issue_score_cap"`
	DefaultScore         float64 `yaml:"default_score" toml:"default_score"`
	TruncationMultiplier float64 `yaml:"max_tokens_retry_multiplier" toml:"max_tokens_retry_multiplier"`
}

// Retries returns the configured regeneration budget.
func (e ExpertConfig) Retries() int {
	if e.MaxRetries == nil {
		return 2
	}
	if *e.MaxRetries < 0 {
		return 0
	}
	return *e.MaxRetries
}

// EvaluatorEnabled reports whether generated output is scored.
func (e ExpertConfig) EvaluatorEnabled() bool {
	return e.UseEvaluator == nil || *e.UseEvaluator
}

// ExtractorEnabled reports whether intent extraction calls the model.
func (e ExpertConfig) ExtractorEnabled() bool {
	return e.UseExtractor == nil || *e.UseExtractor
}

// PreparerEnabled reports whether the optional preparation step runs.
func (e ExpertConfig) PreparerEnabled() bool {
	return e.UsePreparer == nil || *e.UsePreparer
}

// DefaultExperts returns the built-in configuration for email, poem and story.
func DefaultExperts() map[string]ExpertConfig {
	return map[string]ExpertConfig{
		"email": {
			Adapter:         "google",
			Model:           "gemini-2.5-flash",
			MaxTokens:       2000,
			Temperature:     0.5,
			TemperatureStep: 0.1,
			PenaltyPerIssue: 2.5,
			MaxPenalty:      8.0,
		},
		"story": {
			Adapter:         "google",
			Model:           "gemini-2.0-flash-exp",
			MaxTokens:       2000,
			Temperature:     0.8,
			TemperatureStep: 0.05,
			PenaltyPerIssue: 2.0,
			MaxPenalty:      6.0,
		},
		"poem": {
			Adapter:         "google",
			Model:           "gemini-2.0-flash-exp",
			MaxTokens:       1000,
			Temperature:     0.9,
			TemperatureStep: 0.05,
			PenaltyPerIssue: 2.0,
			MaxPenalty:      6.0,
		},
	}
}

// mergeExpert overlays the non-zero fields of override onto base.
func mergeExpert(base, override ExpertConfig) ExpertConfig {
	if override.Adapter != "" {
		base.Adapter = override.Adapter
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	if len(override.Fallbacks) > 0 {
		base.Fallbacks = override.Fallbacks
	}
	if override.EvaluatorModel != "" {
		base.EvaluatorModel = override.EvaluatorModel
	}
	if override.MaxTokens != 0 {
		base.MaxTokens = override.MaxTokens
	}
	if override.Temperature != 0 {
		base.Temperature = override.Temperature
	}
	if override.TemperatureStep != 0 {
		base.TemperatureStep = override.TemperatureStep
	}
	if override.MaxTemperature != 0 {
		base.MaxTemperature = override.MaxTemperature
	}
	if override.UseEvaluator != nil {
		base.UseEvaluator = override.UseEvaluator
	}
	if override.UseExtractor != nil {
		base.UseExtractor = override.UseExtractor
	}
	if override.UsePreparer != nil {
		base.UsePreparer = override.UsePreparer
	}
	if override.Threshold != 0 {
		base.Threshold = override.Threshold
	}
	if override.MaxRetries != nil {
		base.MaxRetries = override.MaxRetries
	}
	if override.PenaltyPerIssue != 0 {
		base.PenaltyPerIssue = override.PenaltyPerIssue
	}
	if override.MaxPenalty != 0 {
		base.MaxPenalty = override.MaxPenalty
	}
	if override.IssueScoreCap != 0 {
		base.IssueScoreCap = override.IssueScoreCap
	}
	if override.DefaultScore != 0 {
		base.DefaultScore = override.DefaultScore
	}
	if override.TruncationMultiplier != 0 {
		base.TruncationMultiplier = override.TruncationMultiplier
	}
	return base
}

func applyExpertDefaults(e *ExpertConfig) {
	if e.Adapter == "" {
		e.Adapter = "google"
	}
	if e.MaxTokens <= 0 {
		e.MaxTokens = 2000
	}
	if e.TemperatureStep == 0 {
		e.TemperatureStep = 0.05
	}
	if e.MaxTemperature == 0 {
		e.MaxTemperature = 1.0
	}
	if e.Threshold == 0 {
		e.Threshold = 7.0
	}
	if e.PenaltyPerIssue == 0 {
		e.PenaltyPerIssue = 2.0
	}
	if e.MaxPenalty == 0 {
		e.MaxPenalty = 6.0
	}
	if e.IssueScoreCap == 0 {
		e.IssueScoreCap = 5.0
	}
	if e.DefaultScore == 0 {
		e.DefaultScore = 10.0
	}
	if e.TruncationMultiplier < 1 {
		e.TruncationMultiplier = 2.0
	}
	if e.MaxRetries == nil {
		n := 2
		e.MaxRetries = &n
	}
}
