package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/valpere/perebench/internal/constraint"
	"github.com/valpere/perebench/internal/llm"
	"github.com/valpere/perebench/internal/postprocess"
	"github.com/valpere/perebench/internal/prompt"
	"github.com/valpere/perebench/internal/record"
)

const defaultRepairerSystem = "You are a professional translation editor. Fix the reported issues while preserving everything that is already correct. Only respond with the corrected translation."

const defaultRepairerTemplate = `Source (Japanese):
{{text}}

Preceding context:
{{context}}

Current translation:
{{translation}}

Reported issues:
{{issues}}

Constraints:
{{constraints}}

Narrative state:
{{state}}

Rewrite the translation so that every issue is resolved. Output only the corrected translation.`

// Repairer rewrites a translation to resolve reported issues. Severity
// policy lives in the orchestrator; the repairer fixes whatever it is
// handed.
type Repairer struct {
	component
}

func NewRepairer(gw *llm.Gateway, model llm.ModelSpec, resolved *prompt.Resolved) *Repairer {
	return &Repairer{component: component{gw: gw, model: model, resolved: resolved}}
}

// Repair returns the corrected translation. With no issues the input is
// returned unchanged. Without a model, deterministic heuristics apply; with
// one, a provider failure is surfaced to the caller.
func (r *Repairer) Repair(ctx context.Context, sample record.Sample, cons constraint.Constraints, state *record.State, translation string, issues []record.Issue) (string, llm.Usage, error) {
	if len(issues) == 0 {
		return translation, llm.Usage{}, nil
	}

	if !r.hasLLM() {
		return heuristicRepair(cons, translation), llm.Usage{}, nil
	}

	stateJSON := "not provided"
	if state != nil {
		stateJSON = prettyJSON(state, "not provided")
	}

	vars := map[string]string{
		"text":        sample.SourceText,
		"context":     sample.Context,
		"translation": translation,
		"issues":      prettyJSON(issues, "[]"),
		"constraints": prettyJSON(cons, "{}"),
		"state":       stateJSON,
	}
	user := prompt.Render(r.template(defaultRepairerTemplate), vars)

	resp, err := r.call(ctx, r.messages(r.systemPrompt(defaultRepairerSystem), user), llm.FormatText)
	if err != nil {
		return "", llm.Usage{}, err
	}

	repaired := strings.TrimSpace(postprocess.Clean(resp.Output))
	if repaired == "" {
		return translation, resp.Usage, nil
	}
	return repaired, resp.Usage, nil
}

// heuristicRepair strips banned patterns and enforces the length cap when
// no model is available.
func heuristicRepair(cons constraint.Constraints, translation string) string {
	out := translation
	for _, pat := range cons.BannedPatterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			// invalid patterns are rejected at normalization
			continue
		}
		out = re.ReplaceAllString(out, "")
	}
	out = strings.TrimSpace(out)

	if cons.Format.MaxChars != nil && *cons.Format.MaxChars > 0 {
		max := *cons.Format.MaxChars
		if len([]rune(out)) > max {
			out = truncateRunes(out, max-1) + "…"
		}
	}
	return out
}
