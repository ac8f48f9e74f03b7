// Package constraint models translation preferences and policies, and merges
// experiment-level defaults with per-sample overrides into a fully populated
// record.
package constraint

import (
	"fmt"
	"regexp"
	"strings"
)

// GlossaryEntry maps a Japanese term to its required English rendering.
// Strict entries must appear verbatim in the final translation.
type GlossaryEntry struct {
	JA     string `json:"ja" mapstructure:"ja"`
	EN     string `json:"en" mapstructure:"en"`
	Strict bool   `json:"strict,omitempty" mapstructure:"strict"`
}

// Format holds output shape requirements.
type Format struct {
	KeepLineBreaks      *bool `json:"keepLineBreaks,omitempty" mapstructure:"keepLineBreaks"`
	MaxChars            *int  `json:"maxChars,omitempty" mapstructure:"maxChars"`
	NoExtraPrefixSuffix *bool `json:"noExtraPrefixSuffix,omitempty" mapstructure:"noExtraPrefixSuffix"`
}

// Partial is an incomplete constraint record, as it appears in config
// defaults, scene metadata, and dataset samples. Zero values mean "unset".
type Partial struct {
	TargetLang          string          `json:"targetLang,omitempty" mapstructure:"targetLang"`
	Tone                string          `json:"tone,omitempty" mapstructure:"tone"`
	Register            string          `json:"register,omitempty" mapstructure:"register"`
	ReadingLevel        string          `json:"readingLevel,omitempty" mapstructure:"readingLevel"`
	Format              Format          `json:"format,omitempty" mapstructure:"format"`
	Glossary            []GlossaryEntry `json:"glossary,omitempty" mapstructure:"glossary"`
	BannedPatterns      []string        `json:"bannedPatterns,omitempty" mapstructure:"bannedPatterns"`
	AllowJapaneseTokens []string        `json:"allowJapaneseTokens,omitempty" mapstructure:"allowJapaneseTokens"`
}

// Constraints is the fully populated record handed to the pipeline stages.
type Constraints struct {
	TargetLang          string          `json:"targetLang"`
	Tone                string          `json:"tone,omitempty"`
	Register            string          `json:"register,omitempty"`
	ReadingLevel        string          `json:"readingLevel,omitempty"`
	Format              Format          `json:"format"`
	Glossary            []GlossaryEntry `json:"glossary"`
	BannedPatterns      []string        `json:"bannedPatterns"`
	AllowJapaneseTokens []string        `json:"allowJapaneseTokens"`
}

// ValidationError reports a field whose value violates its domain.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("constraint: %s: %s", e.Field, e.Message)
}

// Normalize merges defaults with a per-sample partial and validates the
// result. Scalar fields use sample-wins override; format is shallow-merged;
// list fields are concatenated defaults-first with duplicates retained.
// Target language falls back to "en" when neither side sets it.
func Normalize(defaults, sample Partial) (Constraints, error) {
	c := Constraints{
		TargetLang:   pick(sample.TargetLang, defaults.TargetLang),
		Tone:         pick(sample.Tone, defaults.Tone),
		Register:     pick(sample.Register, defaults.Register),
		ReadingLevel: pick(sample.ReadingLevel, defaults.ReadingLevel),
		Format:       mergeFormat(defaults.Format, sample.Format),
	}
	if c.TargetLang == "" {
		c.TargetLang = "en"
	}

	c.Glossary = append(append([]GlossaryEntry{}, defaults.Glossary...), sample.Glossary...)
	c.BannedPatterns = append(append([]string{}, defaults.BannedPatterns...), sample.BannedPatterns...)
	c.AllowJapaneseTokens = append(append([]string{}, defaults.AllowJapaneseTokens...), sample.AllowJapaneseTokens...)

	if err := c.validate(); err != nil {
		return Constraints{}, err
	}
	return c, nil
}

func pick(sample, def string) string {
	if sample != "" {
		return sample
	}
	return def
}

func mergeFormat(def, sample Format) Format {
	out := def
	if sample.KeepLineBreaks != nil {
		out.KeepLineBreaks = sample.KeepLineBreaks
	}
	if sample.MaxChars != nil {
		out.MaxChars = sample.MaxChars
	}
	if sample.NoExtraPrefixSuffix != nil {
		out.NoExtraPrefixSuffix = sample.NoExtraPrefixSuffix
	}
	return out
}

func (c Constraints) validate() error {
	if c.Format.MaxChars != nil && *c.Format.MaxChars < 0 {
		return ValidationError{Field: "format.maxChars", Message: fmt.Sprintf("must be non-negative, got %d", *c.Format.MaxChars)}
	}
	for i, pat := range c.BannedPatterns {
		if _, err := regexp.Compile("(?i)" + pat); err != nil {
			return ValidationError{Field: fmt.Sprintf("bannedPatterns[%d]", i), Message: fmt.Sprintf("invalid regex %q: %v", pat, err)}
		}
	}
	for i, g := range c.Glossary {
		if g.JA == "" || g.EN == "" {
			return ValidationError{Field: fmt.Sprintf("glossary[%d]", i), Message: "both ja and en are required"}
		}
	}
	return nil
}

// Markdown renders the record in the canonical one-field-per-line form
// embedded into translation prompts.
func (c Constraints) Markdown() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "- Target language: %s\n", c.TargetLang)
	if c.Tone != "" {
		fmt.Fprintf(&sb, "- Tone: %s\n", c.Tone)
	}
	if c.Register != "" {
		fmt.Fprintf(&sb, "- Register: %s\n", c.Register)
	}
	if c.ReadingLevel != "" {
		fmt.Fprintf(&sb, "- Reading level: %s\n", c.ReadingLevel)
	}
	if c.Format.KeepLineBreaks != nil && *c.Format.KeepLineBreaks {
		sb.WriteString("- Preserve the source line breaks exactly\n")
	}
	if c.Format.MaxChars != nil {
		fmt.Fprintf(&sb, "- Maximum length: %d characters\n", *c.Format.MaxChars)
	}
	if c.Format.NoExtraPrefixSuffix != nil && *c.Format.NoExtraPrefixSuffix {
		sb.WriteString("- Output the translation only, with no prefix or suffix\n")
	}
	if len(c.Glossary) > 0 {
		sb.WriteString("- Glossary (use these exact translations):\n")
		for _, g := range c.Glossary {
			marker := ""
			if g.Strict {
				marker = " (required)"
			}
			fmt.Fprintf(&sb, "    %s → %s%s\n", g.JA, g.EN, marker)
		}
	}
	if len(c.BannedPatterns) > 0 {
		sb.WriteString("- Never produce text matching:\n")
		for _, p := range c.BannedPatterns {
			fmt.Fprintf(&sb, "    %s\n", p)
		}
	}

	return sb.String()
}
