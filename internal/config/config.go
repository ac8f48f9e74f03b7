// Package config loads the experiment configuration document (YAML or
// JSON) into typed settings, applies defaults, and resolves disk locations
// relative to the config file's directory.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/valpere/perebench/internal/constraint"
	"github.com/valpere/perebench/internal/hardcheck"
	"github.com/valpere/perebench/internal/llm"
	"github.com/valpere/perebench/internal/prompt"
)

// Defaults applied when the document leaves run settings unset.
const (
	DefaultConcurrency = 2
	DefaultMaxRepairs  = 1
	DefaultJudgeRuns   = 3
)

// RunSettings sizes the orchestrator and the rate limiter and places the
// on-disk outputs.
type RunSettings struct {
	Concurrency       int    `mapstructure:"concurrency"`
	RPM               int    `mapstructure:"rpm"`
	TPM               int    `mapstructure:"tpm"`
	MaxRepairs        int    `mapstructure:"maxRepairs"`
	JudgeRuns         int    `mapstructure:"judgeRuns"`
	OutputDir         string `mapstructure:"outputDir"`
	CacheDir          string `mapstructure:"cacheDir"`
	ResolvedPromptDir string `mapstructure:"resolvedPromptDir"`
}

// HardChecks toggles individual rules. Unset booleans default to the rule's
// standard state (on, except targetLanguage).
type HardChecks struct {
	NoDisallowedJapanese  *bool `mapstructure:"noDisallowedJapanese"`
	GlossaryStrictMatches *bool `mapstructure:"glossaryStrictMatches"`
	NoMetaTalk            *bool `mapstructure:"noMetaTalk"`
	FormatPreserved       *bool `mapstructure:"formatPreserved"`
	TargetLanguage        *bool `mapstructure:"targetLanguage"`
	MaxLength             int   `mapstructure:"maxLength"`
}

// Defaults carries experiment-wide constraint and hard-check defaults.
type Defaults struct {
	Constraints constraint.Partial `mapstructure:"constraints"`
	HardChecks  HardChecks         `mapstructure:"hardChecks"`
}

// Component configures one pipeline stage: its model and prompt source.
type Component struct {
	Model  llm.ModelSpec  `mapstructure:"model"`
	Prompt prompt.Source  `mapstructure:"prompt"`
	Params map[string]any `mapstructure:"params"`
}

// Components wires the stages. Translator is required; the rest are
// optional and fall back to heuristics (or to the default translator for
// translatorWithState).
type Components struct {
	Translator          Component  `mapstructure:"translator"`
	TranslatorWithState *Component `mapstructure:"translatorWithState"`
	StateBuilder        *Component `mapstructure:"stateBuilder"`
	Verifier            *Component `mapstructure:"verifier"`
	Repairer            *Component `mapstructure:"repairer"`
	Judge               *Component `mapstructure:"judge"`
}

// Langfuse toggles the tracing façade.
type Langfuse struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"baseUrl"`
}

// Config is the parsed configuration document.
type Config struct {
	RunSettings     RunSettings       `mapstructure:"runSettings"`
	Defaults        Defaults          `mapstructure:"defaults"`
	Components      Components        `mapstructure:"components"`
	PromptArtifacts map[string]string `mapstructure:"promptArtifacts"`
	Langfuse        Langfuse          `mapstructure:"langfuse"`

	// baseDir is the config file's directory; relative paths resolve
	// against it.
	baseDir string
}

// Load reads and validates the document at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	return finish(v, filepath.Dir(abs))
}

// Parse reads a config document held in memory, e.g. the one stored on an
// experiment record. YAML is a superset of JSON, so both forms parse.
// Relative paths resolve against baseDir.
func Parse(document []byte, baseDir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(string(document))); err != nil {
		return nil, fmt.Errorf("config: parse document: %w", err)
	}
	return finish(v, baseDir)
}

func finish(v *viper.Viper, baseDir string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.baseDir = baseDir
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RunSettings.Concurrency <= 0 {
		c.RunSettings.Concurrency = DefaultConcurrency
	}
	if c.RunSettings.MaxRepairs <= 0 {
		c.RunSettings.MaxRepairs = DefaultMaxRepairs
	}
	if c.RunSettings.JudgeRuns <= 0 {
		c.RunSettings.JudgeRuns = DefaultJudgeRuns
	}
}

func (c *Config) validate() error {
	if c.Components.Translator.Model.Provider == "" {
		return fmt.Errorf("config: components.translator.model.provider is required")
	}
	for name, comp := range c.componentMap() {
		if comp == nil {
			continue
		}
		switch comp.Model.Provider {
		case "mock", "openai":
		default:
			return fmt.Errorf("config: components.%s: unknown provider %q", name, comp.Model.Provider)
		}
	}
	return nil
}

func (c *Config) componentMap() map[string]*Component {
	return map[string]*Component{
		"translator":          &c.Components.Translator,
		"translatorWithState": c.Components.TranslatorWithState,
		"stateBuilder":        c.Components.StateBuilder,
		"verifier":            c.Components.Verifier,
		"repairer":            c.Components.Repairer,
		"judge":               c.Components.Judge,
	}
}

// ResolvePath turns a configured location into an absolute path anchored at
// the config file's directory. Empty stays empty.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// CacheDir returns the resolved cache directory.
func (c *Config) CacheDir() string { return c.ResolvePath(c.RunSettings.CacheDir) }

// OutputDir returns the resolved output directory.
func (c *Config) OutputDir() string { return c.ResolvePath(c.RunSettings.OutputDir) }

// ResolvedPromptDir returns the resolved prompt-dump directory.
func (c *Config) ResolvedPromptDir() string { return c.ResolvePath(c.RunSettings.ResolvedPromptDir) }

// ArtifactPaths returns the prompt artifact map with paths resolved.
func (c *Config) ArtifactPaths() map[string]string {
	out := make(map[string]string, len(c.PromptArtifacts))
	for id, p := range c.PromptArtifacts {
		out[id] = c.ResolvePath(p)
	}
	return out
}

// HardCheckSettings converts the document's toggles into engine settings.
func (c *Config) HardCheckSettings() hardcheck.Settings {
	s := hardcheck.DefaultSettings()
	hc := c.Defaults.HardChecks
	if hc.NoDisallowedJapanese != nil {
		s.NoDisallowedJapanese = *hc.NoDisallowedJapanese
	}
	if hc.GlossaryStrictMatches != nil {
		s.GlossaryStrictMatches = *hc.GlossaryStrictMatches
	}
	if hc.NoMetaTalk != nil {
		s.NoMetaTalk = *hc.NoMetaTalk
	}
	if hc.FormatPreserved != nil {
		s.FormatPreserved = *hc.FormatPreserved
	}
	if hc.TargetLanguage != nil {
		s.TargetLanguage = *hc.TargetLanguage
	}
	s.MaxLength = hc.MaxLength
	return s
}
