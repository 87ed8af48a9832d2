package workflow

import "github.com/zen-systems/expertgate/pkg/config"

// Settings are the per-expert generation parameters of a run.
type Settings struct {
	Model                string
	MaxTokens            int
	Temperature          float64
	TemperatureStep      float64
	MaxTemperature       float64
	MaxRetries           int
	TruncationMultiplier float64
	UseEvaluator         bool
	UsePreparer          bool
	// DefaultScore is recorded when the scorer is unavailable.
	DefaultScore float64
}

// DefaultSettings matches the built-in expert defaults without a model.
func DefaultSettings() Settings {
	return Settings{
		MaxTokens:            2000,
		Temperature:          0.7,
		TemperatureStep:      0.05,
		MaxTemperature:       1.0,
		MaxRetries:           2,
		TruncationMultiplier: 2.0,
		UseEvaluator:         true,
		UsePreparer:          true,
		DefaultScore:         10.0,
	}
}

// SettingsFromConfig maps an expert configuration onto run settings.
func SettingsFromConfig(ec config.ExpertConfig) Settings {
	s := Settings{
		Model:                ec.Model,
		MaxTokens:            ec.MaxTokens,
		Temperature:          ec.Temperature,
		TemperatureStep:      ec.TemperatureStep,
		MaxTemperature:       ec.MaxTemperature,
		MaxRetries:           ec.Retries(),
		TruncationMultiplier: ec.TruncationMultiplier,
		UseEvaluator:         ec.EvaluatorEnabled(),
		UsePreparer:          ec.PreparerEnabled(),
		DefaultScore:         ec.DefaultScore,
	}
	return s.normalize()
}

// Overrides are per-request adjustments.
type Overrides struct {
	Temperature *float64
	MaxTokens   int
}

func (s Settings) apply(o Overrides) Settings {
	if o.Temperature != nil {
		s.Temperature = *o.Temperature
	}
	if o.MaxTokens > 0 {
		s.MaxTokens = o.MaxTokens
	}
	return s.normalize()
}

func (s Settings) normalize() Settings {
	def := DefaultSettings()
	if s.MaxTokens <= 0 {
		s.MaxTokens = def.MaxTokens
	}
	if s.MaxTemperature <= 0 {
		s.MaxTemperature = def.MaxTemperature
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	if s.TruncationMultiplier <= 1 {
		s.TruncationMultiplier = def.TruncationMultiplier
	}
	if s.DefaultScore <= 0 {
		s.DefaultScore = def.DefaultScore
	}
	return s
}

// temperatureFor returns the sampling temperature of attempt n (0-based),
// clamped to [base, max]. The base wins when max is below it.
func (s Settings) temperatureFor(n int) float64 {
	t := s.Temperature + float64(n)*s.TemperatureStep
	if t > s.MaxTemperature {
		t = s.MaxTemperature
	}
	if t < s.Temperature {
		t = s.Temperature
	}
	return t
}
