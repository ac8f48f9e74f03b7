// Package prompt resolves component prompts from inline text, files, or
// compiled artifacts, and renders {{variable}} placeholders.
package prompt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Source declares where a component's prompt comes from. Exactly one of
// Template, File, or Artifact must be set.
type Source struct {
	Template      string `json:"template,omitempty" mapstructure:"template"`
	File          string `json:"file,omitempty" mapstructure:"file"`
	Artifact      string `json:"artifact,omitempty" mapstructure:"artifact"`
	ArtifactField string `json:"artifactField,omitempty" mapstructure:"artifactField"` // systemPrompt, userPrompt, or template
}

// IsZero reports whether no source was configured at all.
func (s Source) IsZero() bool {
	return s.Template == "" && s.File == "" && s.Artifact == ""
}

// FewShot is one example message carried by a compiled artifact.
type FewShot struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Params are the sampling parameters a compiled artifact pins.
type Params struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

// Artifact is the compiled-prompt JSON produced by the external optimizer.
type Artifact struct {
	Name         string          `json:"name,omitempty"`
	SystemPrompt string          `json:"systemPrompt,omitempty"`
	UserPrompt   string          `json:"userPrompt,omitempty"`
	Template     string          `json:"template,omitempty"`
	FewShots     []FewShot       `json:"fewShots,omitempty"`
	Params       Params          `json:"params,omitempty"`
	Provenance   json.RawMessage `json:"provenance,omitempty"`
}

// Resolved is the outcome of resolution. Artifact and SourcePath identify
// where the prompt came from; run records carry the reference, never the
// body.
type Resolved struct {
	System     string
	Template   string
	FewShots   []FewShot
	Params     Params
	Artifact   string
	SourcePath string
}

// Resolver maps artifact ids to JSON file paths and loads prompt sources.
type Resolver struct {
	artifacts map[string]string
}

func NewResolver(artifacts map[string]string) *Resolver {
	return &Resolver{artifacts: artifacts}
}

// Resolve loads the prompt described by src. A source naming more than one
// origin, or an artifact id with no registered path, is a configuration
// error.
func (r *Resolver) Resolve(src Source) (*Resolved, error) {
	set := 0
	if src.Template != "" {
		set++
	}
	if src.File != "" {
		set++
	}
	if src.Artifact != "" {
		set++
	}
	if set > 1 {
		return nil, fmt.Errorf("prompt: source must set exactly one of template, file, artifact")
	}

	switch {
	case src.Template != "":
		return &Resolved{Template: src.Template}, nil

	case src.File != "":
		data, err := os.ReadFile(src.File)
		if err != nil {
			return nil, fmt.Errorf("prompt: read file: %w", err)
		}
		return &Resolved{Template: string(data), SourcePath: src.File}, nil

	case src.Artifact != "":
		path, ok := r.artifacts[src.Artifact]
		if !ok {
			return nil, fmt.Errorf("prompt: unknown artifact %q", src.Artifact)
		}
		art, err := loadArtifact(path)
		if err != nil {
			return nil, err
		}
		return resolveArtifact(src, art, path)
	}

	return &Resolved{}, nil
}

func loadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("prompt: read artifact: %w", err)
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("prompt: parse artifact %s: %w", path, err)
	}
	return &art, nil
}

func resolveArtifact(src Source, art *Artifact, path string) (*Resolved, error) {
	res := &Resolved{
		System:     art.SystemPrompt,
		FewShots:   art.FewShots,
		Params:     art.Params,
		Artifact:   src.Artifact,
		SourcePath: path,
	}

	field := src.ArtifactField
	if field == "" {
		field = "template"
	}
	switch field {
	case "systemPrompt":
		res.Template = art.SystemPrompt
	case "userPrompt":
		res.Template = art.UserPrompt
	case "template":
		res.Template = art.Template
	default:
		return nil, fmt.Errorf("prompt: invalid artifactField %q", field)
	}

	if res.Template == "" {
		res.Template = art.Template
	}
	return res, nil
}

// placeholderRe matches {{ name }} tokens with optional inner whitespace.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Render expands placeholders from vars. Missing names render as the empty
// string. There is no escaping and no control flow; a template with no
// placeholders round-trips unchanged.
func Render(template string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(tok string) string {
		name := placeholderRe.FindStringSubmatch(tok)[1]
		return vars[name]
	})
}
