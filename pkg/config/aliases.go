package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// ModelCatalog maps short model names to canonical provider models and
// records which models each provider serves.
type ModelCatalog struct {
	Aliases   map[string]string   `yaml:"aliases"`
	Providers map[string][]string `yaml:"providers"`
}

// AliasEntry is one resolved alias row.
type AliasEntry struct {
	Alias    string
	Model    string
	Provider string
}

// LoadCatalog reads a model catalog from a YAML file.
func LoadCatalog(path string) (*ModelCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	catalog := &ModelCatalog{}
	if err := yaml.Unmarshal(data, catalog); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if catalog.Aliases == nil {
		catalog.Aliases = map[string]string{}
	}
	if catalog.Providers == nil {
		catalog.Providers = map[string][]string{}
	}
	return catalog, nil
}

// FindCatalog loads models.yaml from the user config dir, then from
// projectPath, and otherwise returns the built-in catalog.
func FindCatalog(projectPath string) (*ModelCatalog, error) {
	candidates := make([]string, 0, 2)
	if dir, err := getConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, "models.yaml"))
	}
	if projectPath != "" {
		candidates = append(candidates, projectPath)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return LoadCatalog(path)
		}
	}
	return DefaultCatalog(), nil
}

// Resolve returns the canonical model for name. Unknown names pass through.
func (c *ModelCatalog) Resolve(name string) string {
	if c == nil {
		return name
	}
	if model, ok := c.Aliases[name]; ok {
		return model
	}
	return name
}

// ProviderOf returns the provider serving model, or "" if none lists it.
func (c *ModelCatalog) ProviderOf(model string) string {
	if c == nil {
		return ""
	}
	for _, provider := range c.ProviderNames() {
		if slices.Contains(c.Providers[provider], model) {
			return provider
		}
	}
	return ""
}

// ProviderNames returns the catalogued providers in sorted order.
func (c *ModelCatalog) ProviderNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns the models served by provider.
func (c *ModelCatalog) Models(provider string) []string {
	if c == nil {
		return nil
	}
	return slices.Clone(c.Providers[provider])
}

// Entries lists every alias with its resolved model and provider, sorted by alias.
func (c *ModelCatalog) Entries() []AliasEntry {
	if c == nil {
		return nil
	}
	entries := make([]AliasEntry, 0, len(c.Aliases))
	for alias, model := range c.Aliases {
		entries = append(entries, AliasEntry{Alias: alias, Model: model, Provider: c.ProviderOf(model)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Alias < entries[j].Alias })
	return entries
}

// Check reports whether adapter serves model. A catalog without provider
// lists accepts everything, and the mock adapter is never checked.
func (c *ModelCatalog) Check(adapter, model string) error {
	if c == nil || len(c.Providers) == 0 || adapter == "mock" {
		return nil
	}
	models, ok := c.Providers[adapter]
	if !ok {
		return fmt.Errorf("unknown adapter %q", adapter)
	}
	if !slices.Contains(models, model) {
		return fmt.Errorf("model %q not served by %s", model, adapter)
	}
	return nil
}

// ValidateExperts checks the primary, evaluator and fallback models of every
// expert. Errors are ordered by expert name.
func (c *ModelCatalog) ValidateExperts(experts map[string]ExpertConfig) []error {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(experts))
	for name := range experts {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		ec := experts[name]
		if err := c.Check(ec.Adapter, c.Resolve(ec.Model)); err != nil {
			errs = append(errs, fmt.Errorf("expert %q: %w", name, err))
		}
		if ec.EvaluatorModel != "" {
			if err := c.Check(ec.Adapter, c.Resolve(ec.EvaluatorModel)); err != nil {
				errs = append(errs, fmt.Errorf("expert %q evaluator: %w", name, err))
			}
		}
		for i, fb := range ec.Fallbacks {
			if err := c.Check(fb.Adapter, c.Resolve(fb.Model)); err != nil {
				errs = append(errs, fmt.Errorf("expert %q fallback %d: %w", name, i, err))
			}
		}
	}
	return errs
}

// ResolveExperts rewrites expert model names to canonical models in place.
func (c *ModelCatalog) ResolveExperts(experts map[string]ExpertConfig) {
	for name, ec := range experts {
		ec.Model = c.Resolve(ec.Model)
		if ec.EvaluatorModel != "" {
			ec.EvaluatorModel = c.Resolve(ec.EvaluatorModel)
		}
		for i := range ec.Fallbacks {
			ec.Fallbacks[i].Model = c.Resolve(ec.Fallbacks[i].Model)
		}
		experts[name] = ec
	}
}

// DefaultCatalog is used when no models.yaml is found.
func DefaultCatalog() *ModelCatalog {
	return &ModelCatalog{
		Aliases: map[string]string{
			"flash":      "gemini-2.5-flash",
			"flash-lite": "gemini-2.0-flash-lite",
			"writer":     "claude-sonnet-4-20250514",
			"deep":       "claude-opus-4-20250514",
			"mini":       "gpt-4o-mini",
			"omni":       "gpt-4o",
			"cheap":      "deepseek-chat",
		},
		Providers: map[string][]string{
			"google":    {"gemini-2.5-flash", "gemini-2.0-flash-lite"},
			"anthropic": {"claude-sonnet-4-20250514", "claude-opus-4-20250514"},
			"openai":    {"gpt-4o-mini", "gpt-4o", "gpt-4.1"},
			"deepseek":  {"deepseek-chat", "deepseek-reasoner"},
		},
	}
}
