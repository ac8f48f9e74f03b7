package prompt

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRender_Basic(t *testing.T) {
	out := Render("Translate {{text}} into {{lang}}.", map[string]string{
		"text": "こんにちは",
		"lang": "English",
	})
	want := "Translate こんにちは into English."
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestRender_OptionalWhitespace(t *testing.T) {
	out := Render("{{ text }} and {{text}}", map[string]string{"text": "x"})
	if out != "x and x" {
		t.Errorf("expected both spellings to expand, got %q", out)
	}
}

func TestRender_MissingVariableIsEmpty(t *testing.T) {
	out := Render("a{{missing}}b", nil)
	if out != "ab" {
		t.Errorf("expected empty expansion, got %q", out)
	}
}

func TestRender_NoPlaceholdersRoundTrips(t *testing.T) {
	tmpl := "no placeholders here, not even { single } braces"
	if got := Render(tmpl, map[string]string{"x": "y"}); got != tmpl {
		t.Errorf("expected round-trip, got %q", got)
	}
}

func TestResolve_Inline(t *testing.T) {
	r := NewResolver(nil)
	res, err := r.Resolve(Source{Template: "inline {{x}}"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Template != "inline {{x}}" {
		t.Errorf("unexpected template %q", res.Template)
	}
}

func TestResolve_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompt.txt")
	if err := os.WriteFile(path, []byte("from file"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(nil)
	res, err := r.Resolve(Source{File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Template != "from file" {
		t.Errorf("unexpected template %q", res.Template)
	}
	if res.SourcePath != path {
		t.Errorf("expected source path recorded, got %q", res.SourcePath)
	}
}

func writeArtifact(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "artifact.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestResolve_Artifact(t *testing.T) {
	path := writeArtifact(t, `{
		"name": "translator",
		"systemPrompt": "sys",
		"userPrompt": "user {{text}}",
		"template": "tmpl {{text}}",
		"fewShots": [{"role": "user", "content": "例"}],
		"params": {"temperature": 0, "maxOutputTokens": 800},
		"provenance": {"datasetSize": 12}
	}`)

	r := NewResolver(map[string]string{"tr": path})

	res, err := r.Resolve(Source{Artifact: "tr"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Template != "tmpl {{text}}" {
		t.Errorf("expected template field by default, got %q", res.Template)
	}
	if res.System != "sys" {
		t.Errorf("expected system prompt carried, got %q", res.System)
	}
	if len(res.FewShots) != 1 || res.FewShots[0].Content != "例" {
		t.Errorf("expected few shots carried, got %+v", res.FewShots)
	}
	if res.Params.MaxOutputTokens != 800 {
		t.Errorf("expected params carried, got %+v", res.Params)
	}
	if res.Artifact != "tr" {
		t.Errorf("expected artifact id recorded, got %q", res.Artifact)
	}
}

func TestResolve_ArtifactField(t *testing.T) {
	path := writeArtifact(t, `{"systemPrompt": "sys", "userPrompt": "user", "template": "tmpl"}`)
	r := NewResolver(map[string]string{"tr": path})

	res, err := r.Resolve(Source{Artifact: "tr", ArtifactField: "userPrompt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Template != "user" {
		t.Errorf("expected userPrompt selected, got %q", res.Template)
	}

	if _, err := r.Resolve(Source{Artifact: "tr", ArtifactField: "fewShots"}); err == nil {
		t.Error("expected error for invalid artifactField")
	}
}

func TestResolve_UnknownArtifact(t *testing.T) {
	r := NewResolver(nil)
	if _, err := r.Resolve(Source{Artifact: "nope"}); err == nil {
		t.Error("expected error for unregistered artifact")
	}
}

func TestResolve_MultipleOriginsRejected(t *testing.T) {
	r := NewResolver(nil)
	if _, err := r.Resolve(Source{Template: "a", File: "b"}); err == nil {
		t.Error("expected error when both template and file are set")
	}
}
