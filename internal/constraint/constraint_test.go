package constraint

import (
	"strings"
	"testing"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestNormalize_Defaults(t *testing.T) {
	c, err := Normalize(Partial{}, Partial{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.TargetLang != "en" {
		t.Errorf("expected target lang en, got %q", c.TargetLang)
	}
	if c.Glossary == nil || c.BannedPatterns == nil || c.AllowJapaneseTokens == nil {
		t.Error("expected list fields to be non-nil")
	}
}

func TestNormalize_SampleOverridesScalars(t *testing.T) {
	defaults := Partial{TargetLang: "en", Tone: "neutral", Register: "formal"}
	sample := Partial{Tone: "casual"}

	c, err := Normalize(defaults, sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Tone != "casual" {
		t.Errorf("expected sample tone to win, got %q", c.Tone)
	}
	if c.Register != "formal" {
		t.Errorf("expected default register to survive, got %q", c.Register)
	}
}

func TestNormalize_FormatShallowMerge(t *testing.T) {
	defaults := Partial{Format: Format{KeepLineBreaks: boolPtr(true), MaxChars: intPtr(100)}}
	sample := Partial{Format: Format{MaxChars: intPtr(50)}}

	c, err := Normalize(defaults, sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Format.MaxChars == nil || *c.Format.MaxChars != 50 {
		t.Errorf("expected sample maxChars 50, got %v", c.Format.MaxChars)
	}
	if c.Format.KeepLineBreaks == nil || !*c.Format.KeepLineBreaks {
		t.Error("expected default keepLineBreaks to survive the merge")
	}
}

func TestNormalize_ListsConcatenateDefaultsFirst(t *testing.T) {
	defaults := Partial{Glossary: []GlossaryEntry{{JA: "鍵", EN: "Key"}}}
	sample := Partial{Glossary: []GlossaryEntry{{JA: "鍵", EN: "Key"}, {JA: "城", EN: "Castle"}}}

	c, err := Normalize(defaults, sample)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Glossary) != 3 {
		t.Fatalf("expected duplicates retained, got %d entries", len(c.Glossary))
	}
	if c.Glossary[0].JA != "鍵" || c.Glossary[2].EN != "Castle" {
		t.Errorf("expected defaults-first ordering, got %+v", c.Glossary)
	}
}

func TestNormalize_NegativeMaxChars(t *testing.T) {
	_, err := Normalize(Partial{}, Partial{Format: Format{MaxChars: intPtr(-1)}})
	if err == nil {
		t.Fatal("expected validation error for negative maxChars")
	}
	var verr ValidationError
	if !asValidation(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if verr.Field != "format.maxChars" {
		t.Errorf("expected field format.maxChars, got %q", verr.Field)
	}
}

func TestNormalize_BadBannedPattern(t *testing.T) {
	_, err := Normalize(Partial{BannedPatterns: []string{"[unclosed"}}, Partial{})
	if err == nil {
		t.Fatal("expected validation error for invalid regex")
	}
}

func TestMarkdown_RendersGlossaryAndBans(t *testing.T) {
	c, err := Normalize(Partial{
		Tone:           "somber",
		Glossary:       []GlossaryEntry{{JA: "鍵", EN: "Key", Strict: true}},
		BannedPatterns: []string{`\bliterally\b`},
		Format:         Format{MaxChars: intPtr(80)},
	}, Partial{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	md := c.Markdown()
	for _, want := range []string{"Target language: en", "Tone: somber", "鍵 → Key (required)", `\bliterally\b`, "Maximum length: 80"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}

func asValidation(err error, target *ValidationError) bool {
	v, ok := err.(ValidationError)
	if ok {
		*target = v
	}
	return ok
}
