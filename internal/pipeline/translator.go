package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/valpere/perebench/internal/constraint"
	"github.com/valpere/perebench/internal/llm"
	"github.com/valpere/perebench/internal/postprocess"
	"github.com/valpere/perebench/internal/prompt"
	"github.com/valpere/perebench/internal/record"
)

const defaultTranslatorTemplate = "{{text}}"

// Translator produces the draft translation. Context, narrative state, and
// the constraint record ride in the system prompt so the user message stays
// the bare source text.
type Translator struct {
	component
}

func NewTranslator(gw *llm.Gateway, model llm.ModelSpec, resolved *prompt.Resolved) *Translator {
	return &Translator{component: component{gw: gw, model: model, resolved: resolved}}
}

// PromptReference identifies the configured prompt source, if any.
func (t *Translator) PromptReference() string { return t.promptReference() }

// Translate renders the prompt, calls the model, and returns the cleaned,
// right-trimmed draft. A provider failure is surfaced to the caller; the
// translator has no heuristic fallback.
func (t *Translator) Translate(ctx context.Context, sample record.Sample, cons constraint.Constraints, state *record.State) (string, llm.Usage, error) {
	if !t.hasLLM() {
		return "", llm.Usage{}, fmt.Errorf("translator: no model configured")
	}

	stateJSON := "not provided"
	if state != nil {
		stateJSON = prettyJSON(state, "not provided")
	}

	vars := map[string]string{
		"text":        sample.SourceText,
		"context":     sample.Context,
		"state":       stateJSON,
		"constraints": cons.Markdown(),
	}

	system := prompt.Render(t.systemPrompt(buildTranslatorSystem(sample, cons, state)), vars)
	user := prompt.Render(t.template(defaultTranslatorTemplate), vars)

	resp, err := t.call(ctx, t.messages(system, user), llm.FormatText)
	if err != nil {
		return "", llm.Usage{}, err
	}

	draft := strings.TrimRight(postprocess.Clean(resp.Output), " \t\n")
	return draft, resp.Usage, nil
}

// buildTranslatorSystem assembles the default professional-translator
// persona with the constraint record, narrative state, and sliding-window
// context.
func buildTranslatorSystem(sample record.Sample, cons constraint.Constraints, state *record.State) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are a professional literary translator. Translate the following text from Japanese to %s.\n", cons.TargetLang)
	sb.WriteString("Only respond with the translation, nothing else. No explanations, no quotes, just the translation.")

	if md := cons.Markdown(); md != "" {
		sb.WriteString("\n\nCONSTRAINTS:\n")
		sb.WriteString(md)
	}

	if state != nil {
		sb.WriteString("\nNARRATIVE STATE (facts extracted from the scene):\n")
		sb.WriteString(prettyJSON(state, "not provided"))
		sb.WriteString("\n")
	}

	if sample.Context != "" {
		fmt.Fprintf(&sb, "\nCONTEXT (preceding passage for continuity — do NOT retranslate this):\n%s", sample.Context)
	}

	return sb.String()
}
