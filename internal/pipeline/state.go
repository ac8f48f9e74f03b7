package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/valpere/perebench/internal/llm"
	"github.com/valpere/perebench/internal/postprocess"
	"github.com/valpere/perebench/internal/prompt"
	"github.com/valpere/perebench/internal/record"
)

// maxHeuristicUtterance caps the heuristic utterance extract.
const maxHeuristicUtterance = 120

const defaultStateSystem = "You are a narrative analyst. Extract structured facts from the Japanese utterance. Respond only with JSON."

const defaultStateTemplate = `Utterance:
{{text}}

Preceding context:
{{context}}

Return JSON with fields: utterance, speaker, addressee, entities (array of {name, desc}), coreMeaning, implicature.`

// StateBuilder extracts the narrative state fed to the stateful translator
// variants. It never fails the pipeline: any LLM or parse problem degrades
// to the deterministic heuristic.
type StateBuilder struct {
	component
	logger *zap.Logger
}

func NewStateBuilder(gw *llm.Gateway, model llm.ModelSpec, resolved *prompt.Resolved, logger *zap.Logger) *StateBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateBuilder{component: component{gw: gw, model: model, resolved: resolved}, logger: logger}
}

// heuristicState is the no-LLM fallback and the source of per-field
// defaults when the LLM omits fields.
func heuristicState(text, context string) *record.State {
	return &record.State{
		Utterance:   truncateRunes(text, maxHeuristicUtterance),
		Speaker:     "unknown",
		Addressee:   "unknown",
		Entities:    []record.Entity{},
		CoreMeaning: text,
		Implicature: context,
	}
}

// Build returns the extracted state and the tokens spent extracting it.
func (b *StateBuilder) Build(ctx context.Context, sample record.Sample) (*record.State, llm.Usage) {
	if !b.hasLLM() {
		return heuristicState(sample.SourceText, sample.Context), llm.Usage{}
	}

	user := prompt.Render(b.template(defaultStateTemplate), map[string]string{
		"text":    sample.SourceText,
		"context": sample.Context,
	})
	resp, err := b.call(ctx, b.messages(b.systemPrompt(defaultStateSystem), user), llm.FormatJSON)
	if err != nil {
		b.logger.Warn("state builder falling back to heuristic", zap.String("sample", sample.SampleID), zap.Error(err))
		return heuristicState(sample.SourceText, sample.Context), llm.Usage{}
	}

	state := parseState(resp.Output, sample)
	return state, resp.Usage
}

// parseState decodes the LLM payload with per-field defaulting. Unknown
// fields are discarded; a parse failure yields the full heuristic.
func parseState(raw string, sample record.Sample) *record.State {
	fallback := heuristicState(sample.SourceText, sample.Context)

	var parsed struct {
		Utterance   string `json:"utterance"`
		Speaker     string `json:"speaker"`
		Addressee   string `json:"addressee"`
		Entities    []struct {
			Name string `json:"name"`
			Desc string `json:"desc"`
		} `json:"entities"`
		CoreMeaning string `json:"coreMeaning"`
		Implicature string `json:"implicature"`
	}
	if err := json.Unmarshal([]byte(postprocess.StripJSONFences(raw)), &parsed); err != nil {
		return fallback
	}

	state := &record.State{
		Utterance:   strings.TrimSpace(parsed.Utterance),
		Speaker:     strings.TrimSpace(parsed.Speaker),
		Addressee:   strings.TrimSpace(parsed.Addressee),
		Entities:    []record.Entity{},
		CoreMeaning: strings.TrimSpace(parsed.CoreMeaning),
		Implicature: strings.TrimSpace(parsed.Implicature),
	}
	if state.Utterance == "" {
		state.Utterance = fallback.Utterance
	}
	if state.Speaker == "" {
		state.Speaker = fallback.Speaker
	}
	if state.Addressee == "" {
		state.Addressee = fallback.Addressee
	}
	if state.CoreMeaning == "" {
		state.CoreMeaning = fallback.CoreMeaning
	}
	if state.Implicature == "" {
		state.Implicature = fallback.Implicature
	}
	for _, e := range parsed.Entities {
		if name := strings.TrimSpace(e.Name); name != "" {
			state.Entities = append(state.Entities, record.Entity{Name: name, Desc: strings.TrimSpace(e.Desc)})
		}
	}
	return state
}
