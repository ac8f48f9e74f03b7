package dataset

import (
	"strings"
	"testing"
)

func TestParse_ValidLines(t *testing.T) {
	input := `{"id":"s1","ja":{"text":"こんにちは、世界。"}}
{"id":"s2","ja":{"text":"鍵はここ。","context":"前の文。"},"constraints":{"glossary":[{"ja":"鍵","en":"Key","strict":true}]},"reference":{"en":"The key is here."}}
`
	samples, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].SampleID != "s1" || samples[0].SourceText != "こんにちは、世界。" {
		t.Errorf("unexpected first sample: %+v", samples[0])
	}
	if samples[1].Context != "前の文。" {
		t.Errorf("expected context parsed, got %q", samples[1].Context)
	}
	if samples[1].ReferenceEN != "The key is here." {
		t.Errorf("expected reference parsed, got %q", samples[1].ReferenceEN)
	}
	if len(samples[1].Constraints.Glossary) != 1 || !samples[1].Constraints.Glossary[0].Strict {
		t.Errorf("expected strict glossary entry, got %+v", samples[1].Constraints.Glossary)
	}
}

func TestParse_SkipsBlankLines(t *testing.T) {
	input := "\n{\"id\":\"s1\",\"ja\":{\"text\":\"x\"}}\n\n"
	samples, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("expected 1 sample, got %d", len(samples))
	}
}

func TestParse_MissingID(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"ja":{"text":"x"}}`))
	if err == nil {
		t.Fatal("expected error for missing id")
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("expected line number in error, got %v", err)
	}
}

func TestParse_MissingText(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"id":"s1"}`))
	if err == nil {
		t.Fatal("expected error for missing ja.text")
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for an empty dataset")
	}
}

func TestContextWindow(t *testing.T) {
	text := "one two three four five"
	if got := ContextWindow(text, 2); got != "four five" {
		t.Errorf("expected last two words, got %q", got)
	}
	if got := ContextWindow(text, 10); got != text {
		t.Errorf("expected whole text when shorter than window, got %q", got)
	}
	if got := ContextWindow("", 3); got != "" {
		t.Errorf("expected empty for empty input, got %q", got)
	}
}
