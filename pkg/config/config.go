package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration. It is read once at start and
// treated as immutable afterwards.
type Config struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string
	DeepSeekAPIKey  string
	ConfigDir       string

	Server    ServerConfig
	Telemetry TelemetryConfig
	Retry     RetryConfig
	Routing   *RoutingConfig
	Experts   map[string]ExpertConfig
}

// FileConfig represents the structure of ~/.expertgate/config.yaml (or .toml).
type FileConfig struct {
	APIKeys   APIKeysConfig           `yaml:"api_keys" toml:"api_keys"`
	Server    ServerConfig            `yaml:"server" toml:"server"`
	Telemetry TelemetryConfig         `yaml:"telemetry" toml:"telemetry"`
	Retry     RetryConfig             `yaml:"retry" toml:"retry"`
	Routing   *RoutingConfig          `yaml:"routing" toml:"routing"`
	Experts   map[string]ExpertConfig `yaml:"experts" toml:"experts"`
}

// APIKeysConfig holds API key configuration from file.
type APIKeysConfig struct {
	Anthropic string `yaml:"anthropic" toml:"anthropic"`
	OpenAI    string `yaml:"openai" toml:"openai"`
	Google    string `yaml:"google" toml:"google"`
	DeepSeek  string `yaml:"deepseek" toml:"deepseek"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string  `yaml:"addr" toml:"addr"`
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// TelemetryConfig configures tracing export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
}

// RetryConfig defines adapter retry, backoff and pacing behavior.
type RetryConfig struct {
	MaxRetries        int     `yaml:"max_retries,omitempty" toml:"max_retries"`
	BaseBackoffMs     int     `yaml:"base_backoff_ms,omitempty" toml:"base_backoff_ms"`
	MaxBackoffMs      int     `yaml:"max_backoff_ms,omitempty" toml:"max_backoff_ms"`
	CallTimeoutMs     int     `yaml:"call_timeout_ms,omitempty" toml:"call_timeout_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty" toml:"requests_per_second"`
	Burst             int     `yaml:"burst,omitempty" toml:"burst"`
}

// Load reads configuration from the config directory and environment.
// Environment variables take precedence over file configuration.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	var path string
	for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
		candidate := filepath.Join(configDir, name)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}

	fileConfig := &FileConfig{}
	if path != "" {
		fileConfig, err = readFileConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	return build(fileConfig, configDir), nil
}

// LoadFile loads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	fileConfig, err := readFileConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return build(fileConfig, filepath.Dir(path)), nil
}

// Default returns configuration built from defaults and the environment only.
func Default() *Config {
	return build(&FileConfig{}, "")
}

// HasAdapter returns true if the API key for the given adapter is configured.
func (c *Config) HasAdapter(name string) bool {
	switch name {
	case "anthropic":
		return c.AnthropicAPIKey != ""
	case "openai":
		return c.OpenAIAPIKey != ""
	case "google":
		return c.GoogleAPIKey != ""
	case "deepseek":
		return c.DeepSeekAPIKey != ""
	case "mock":
		return true
	default:
		return false
	}
}

// Expert returns the configuration for the named expert with defaults applied.
func (c *Config) Expert(name string) (ExpertConfig, bool) {
	ec, ok := c.Experts[name]
	return ec, ok
}

func build(fc *FileConfig, configDir string) *Config {
	cfg := &Config{
		AnthropicAPIKey: getEnvOrDefault("ANTHROPIC_API_KEY", fc.APIKeys.Anthropic),
		OpenAIAPIKey:    getEnvOrDefault("OPENAI_API_KEY", fc.APIKeys.OpenAI),
		GoogleAPIKey:    getEnvOrDefault("GOOGLE_API_KEY", getEnvOrDefault("GEMINI_API_KEY", fc.APIKeys.Google)),
		DeepSeekAPIKey:  getEnvOrDefault("DEEPSEEK_API_KEY", fc.APIKeys.DeepSeek),
		ConfigDir:       configDir,
		Server:          fc.Server,
		Telemetry:       fc.Telemetry,
		Retry:           fc.Retry,
		Routing:         fc.Routing,
		Experts:         DefaultExperts(),
	}

	for name, override := range fc.Experts {
		base, ok := cfg.Experts[name]
		if !ok {
			base = ExpertConfig{}
		}
		cfg.Experts[name] = mergeExpert(base, override)
	}

	if cfg.Routing == nil {
		cfg.Routing = DefaultRoutingConfig()
	}
	applyRoutingDefaults(cfg.Routing)
	applyRetryDefaults(&cfg.Retry)
	applyServerDefaults(&cfg.Server)
	applyEnvOverrides(cfg)

	for name, ec := range cfg.Experts {
		applyExpertDefaults(&ec)
		cfg.Experts[name] = ec
	}
	return cfg
}

func readFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func applyRetryDefaults(cfg *RetryConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BaseBackoffMs == 0 {
		cfg.BaseBackoffMs = 200
	}
	if cfg.MaxBackoffMs == 0 {
		cfg.MaxBackoffMs = 2000
	}
	if cfg.MaxBackoffMs < cfg.BaseBackoffMs {
		cfg.MaxBackoffMs = cfg.BaseBackoffMs
	}
	if cfg.CallTimeoutMs == 0 {
		cfg.CallTimeoutMs = 60000
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.RequestsPerSecond == 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst == 0 {
		cfg.Burst = 10
	}
}

// applyEnvOverrides maps the per-expert environment variables onto cfg.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Addr = getEnvOrDefault("EXPERTGATE_ADDR", cfg.Server.Addr)
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.Endpoint = endpoint
	}

	if v, ok := envBool("USE_MODEL_ROUTER"); ok {
		cfg.Routing.Classifier.Enabled = v
	}
	cfg.Routing.Classifier.Model = getEnvOrDefault("ROUTER_MODEL", cfg.Routing.Classifier.Model)

	for name, ec := range cfg.Experts {
		prefix := strings.ToUpper(name)
		ec.Model = getEnvOrDefault(prefix+"_EXPERT_MODEL", ec.Model)
		ec.Adapter = getEnvOrDefault(prefix+"_EXPERT_ADAPTER", ec.Adapter)
		ec.EvaluatorModel = getEnvOrDefault("EVALUATOR_MODEL", ec.EvaluatorModel)
		if v, ok := envInt(prefix + "_MAX_TOKENS"); ok {
			ec.MaxTokens = v
		}
		if v, ok := envFloat(prefix + "_TEMPERATURE"); ok {
			ec.Temperature = v
		}
		if v, ok := envBool("USE_" + prefix + "_EVALUATOR"); ok {
			ec.UseEvaluator = &v
		}
		if v, ok := envFloat("EVALUATOR_THRESHOLD"); ok {
			ec.Threshold = v
		}
		if v, ok := envInt("EVALUATOR_MAX_RETRIES"); ok {
			ec.MaxRetries = &v
		}
		if v, ok := envFloat("MAX_TOKENS_RETRY_MULTIPLIER"); ok {
			ec.TruncationMultiplier = v
		}
		if v, ok := envFloat("MAX_TEMPERATURE"); ok {
			ec.MaxTemperature = v
		}
		cfg.Experts[name] = ec
	}

	if ec, ok := cfg.Experts["email"]; ok {
		if v, ok := envFloat("EVALUATOR_PENALTY_PER_ISSUE"); ok {
			ec.PenaltyPerIssue = v
		}
		if v, ok := envFloat("EVALUATOR_MAX_PENALTY"); ok {
			ec.MaxPenalty = v
		}
		if v, ok := envFloat("EVALUATOR_CRITICAL_ISSUE_SCORE_CAP"); ok {
			ec.IssueScoreCap = v
		}
		cfg.Experts["email"] = ec
	}
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func envInt(name string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func getConfigDir() (string, error) {
	if dir := os.Getenv("EXPERTGATE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".expertgate"), nil
}
