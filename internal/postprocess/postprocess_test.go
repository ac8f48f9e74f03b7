package postprocess

import (
	"testing"
)

func TestClean_RemovesThinkingBlocks(t *testing.T) {
	input := "<thinking>pondering the register</thinking>The night was quiet."
	if got := Clean(input); got != "The night was quiet." {
		t.Errorf("expected thinking block removed, got %q", got)
	}
}

func TestClean_RemovesTruncatedThinking(t *testing.T) {
	input := "The night was quiet.\n<think>and then the model was cut off"
	if got := Clean(input); got != "The night was quiet." {
		t.Errorf("expected truncated thinking removed, got %q", got)
	}
}

func TestClean_RemovesInstructionEcho(t *testing.T) {
	input := "Here is the translation: The key is here."
	if got := Clean(input); got != "The key is here." {
		t.Errorf("expected echo removed, got %q", got)
	}
}

func TestClean_RemovesQuoteWrapping(t *testing.T) {
	cases := map[string]string{
		`"wrapped"`: "wrapped",
		"«wrapped»": "wrapped",
		"“wrapped”": "wrapped",
	}
	for input, want := range cases {
		if got := Clean(input); got != want {
			t.Errorf("Clean(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestClean_LeavesPlainTextAlone(t *testing.T) {
	input := "She said \"wait\" and left."
	if got := Clean(input); got != input {
		t.Errorf("expected inner quotes preserved, got %q", got)
	}
}

func TestStripJSONFences(t *testing.T) {
	input := "```json\n{\"issues\": []}\n```"
	if got := StripJSONFences(input); got != `{"issues": []}` {
		t.Errorf("expected fences stripped, got %q", got)
	}
}

func TestStripJSONFences_TruncatedFence(t *testing.T) {
	input := "```json\n{\"issues\": []}"
	if got := StripJSONFences(input); got != `{"issues": []}` {
		t.Errorf("expected opening fence stripped, got %q", got)
	}
}

func TestStripJSONFences_NoFence(t *testing.T) {
	input := `{"ok": true}`
	if got := StripJSONFences(input); got != input {
		t.Errorf("expected unfenced input unchanged, got %q", got)
	}
}
