package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	email, ok := cfg.Expert("email")
	if !ok {
		t.Fatal("missing email expert")
	}
	if email.Model != "gemini-2.5-flash" || email.MaxTokens != 2000 || email.Temperature != 0.5 {
		t.Errorf("unexpected email defaults: %+v", email)
	}
	if email.PenaltyPerIssue != 2.5 || email.MaxPenalty != 8.0 {
		t.Errorf("unexpected email penalty: %v/%v", email.PenaltyPerIssue, email.MaxPenalty)
	}
	if email.Threshold != 7.0 || email.Retries() != 2 || !email.EvaluatorEnabled() {
		t.Errorf("unexpected evaluator defaults: %+v", email)
	}
	if email.TruncationMultiplier != 2.0 || email.MaxTemperature != 1.0 {
		t.Errorf("unexpected retry scaling: %+v", email)
	}

	poem, _ := cfg.Expert("poem")
	if poem.MaxTokens != 1000 || poem.Temperature != 0.9 {
		t.Errorf("unexpected poem defaults: %+v", poem)
	}

	if cfg.Server.Addr != ":8000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if got := cfg.Routing.Priority; len(got) != 3 || got[0] != "story" || got[2] != "email" {
		t.Errorf("priority = %v", got)
	}
	if cfg.Routing.DefaultExpert != "email" {
		t.Errorf("default expert = %q", cfg.Routing.DefaultExpert)
	}
}

func TestLoadYAMLOverridesExpert(t *testing.T) {
	dir := isolate(t)

	data := []byte(`experts:
  email:
    model: gemini-2.0-flash-lite
    max_retries: 0
    use_evaluator: false
routing:
  default_expert: poem
`)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	email, _ := cfg.Expert("email")
	if email.Model != "gemini-2.0-flash-lite" {
		t.Errorf("model = %q", email.Model)
	}
	if email.Retries() != 0 {
		t.Errorf("explicit zero retries should survive defaults, got %d", email.Retries())
	}
	if email.EvaluatorEnabled() {
		t.Error("evaluator should be disabled")
	}
	if email.MaxTokens != 2000 {
		t.Errorf("unset fields should keep defaults, max_tokens = %d", email.MaxTokens)
	}
	if cfg.Routing.DefaultExpert != "poem" {
		t.Errorf("default expert = %q", cfg.Routing.DefaultExpert)
	}
	if len(cfg.Routing.Experts["story"].Phrases) == 0 {
		t.Error("built-in routing rules should be filled in")
	}
}

func TestLoadFileTOML(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "expertgate.toml")
	data := []byte(`[server]
addr = ":9090"

[experts.story]
adapter = "anthropic"
model = "claude-sonnet-4-20250514"
threshold = 8.0
`)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	story, _ := cfg.Expert("story")
	if story.Adapter != "anthropic" || story.Threshold != 8.0 {
		t.Errorf("unexpected story config: %+v", story)
	}
	if story.Temperature != 0.8 {
		t.Errorf("temperature should keep default, got %v", story.Temperature)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := isolate(t)

	data := []byte("api_keys:\n  google: file-google\nexperts:\n  email:\n    max_tokens: 1500\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("GEMINI_API_KEY", "env-gemini")
	t.Setenv("EMAIL_MAX_TOKENS", "3000")
	t.Setenv("EMAIL_TEMPERATURE", "0.3")
	t.Setenv("USE_EMAIL_EVALUATOR", "false")
	t.Setenv("EVALUATOR_MAX_RETRIES", "4")
	t.Setenv("EVALUATOR_PENALTY_PER_ISSUE", "3")
	t.Setenv("MAX_TOKENS_RETRY_MULTIPLIER", "1.5")
	t.Setenv("EXPERTGATE_ADDR", ":9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.GoogleAPIKey != "env-gemini" {
		t.Errorf("google key = %q", cfg.GoogleAPIKey)
	}
	email, _ := cfg.Expert("email")
	if email.MaxTokens != 3000 || email.Temperature != 0.3 {
		t.Errorf("env should win: %+v", email)
	}
	if email.EvaluatorEnabled() || email.Retries() != 4 {
		t.Errorf("evaluator env not applied: %+v", email)
	}
	if email.PenaltyPerIssue != 3 || email.TruncationMultiplier != 1.5 {
		t.Errorf("penalty env not applied: %+v", email)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
}

func TestConfigUsesFileAPIKeysWhenEnvUnset(t *testing.T) {
	dir := isolate(t)

	data := []byte("api_keys:\n  anthropic: file-ant\n  deepseek: file-deepseek\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AnthropicAPIKey != "file-ant" || cfg.DeepSeekAPIKey != "file-deepseek" {
		t.Fatalf("expected file API keys, got %q %q", cfg.AnthropicAPIKey, cfg.DeepSeekAPIKey)
	}
	if !cfg.HasAdapter("anthropic") || cfg.HasAdapter("openai") || !cfg.HasAdapter("mock") {
		t.Error("HasAdapter mismatch")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("experts: [\n"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

// isolate points the config dir and HOME at temp dirs and clears env keys.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	setHomeEnv(t, home)
	dir := filepath.Join(home, ".expertgate")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	t.Setenv("EXPERTGATE_CONFIG_DIR", dir)
	for _, key := range []string{
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY", "DEEPSEEK_API_KEY",
		"EXPERTGATE_ADDR", "EVALUATOR_THRESHOLD", "EVALUATOR_MAX_RETRIES", "EVALUATOR_MODEL",
		"MAX_TOKENS_RETRY_MULTIPLIER", "EMAIL_MAX_TOKENS", "EMAIL_TEMPERATURE", "USE_EMAIL_EVALUATOR",
		"EMAIL_EXPERT_MODEL", "STORY_EXPERT_MODEL", "POEM_EXPERT_MODEL", "USE_MODEL_ROUTER",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func setHomeEnv(t *testing.T, home string) {
	t.Helper()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
}
