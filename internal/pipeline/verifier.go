package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"go.uber.org/zap"

	"github.com/valpere/perebench/internal/constraint"
	"github.com/valpere/perebench/internal/hardcheck"
	"github.com/valpere/perebench/internal/llm"
	"github.com/valpere/perebench/internal/postprocess"
	"github.com/valpere/perebench/internal/prompt"
	"github.com/valpere/perebench/internal/record"
)

const defaultVerifierSystem = "You are a meticulous translation reviewer. Find defects in the candidate translation. Respond only with JSON."

const defaultVerifierTemplate = `Source (Japanese):
{{text}}

Preceding context:
{{context}}

Candidate translation:
{{translation}}

Constraints:
{{constraints}}

List every defect you find. Respond as JSON:
{"issues": [{"id": "...", "type": "MISTRANSLATION|OMISSION|ADDITION|TERM_INCONSISTENCY|PRONOUN_REFERENCE|SPEAKER_MISMATCH|STYLE_VIOLATION|FORMAT_VIOLATION|SAFETY_OR_POLICY|OTHER", "severity": "critical|major|minor", "rationale": "...", "fixSuggestion": "...", "confidence": 0.0}]}
An empty issues array means the translation is acceptable.`

// VerifyResult pairs the combined issue list with the hard-check outcomes
// so the orchestrator can reason about critical failures.
type VerifyResult struct {
	Issues     []record.Issue
	HardChecks []record.HardCheckResult
	Usage      llm.Usage
}

// Verifier runs the hard-check engine and, when a model is configured, the
// LLM reviewer. Hard-check issues always come first in the combined list.
// LLM failures reduce to zero reviewer issues; verification never errors.
type Verifier struct {
	component
	engine *hardcheck.Engine
	logger *zap.Logger
}

func NewVerifier(engine *hardcheck.Engine, gw *llm.Gateway, model llm.ModelSpec, resolved *prompt.Resolved, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{component: component{gw: gw, model: model, resolved: resolved}, engine: engine, logger: logger}
}

// Verify checks the candidate translation and returns hard-check issues
// followed by reviewer issues.
func (v *Verifier) Verify(ctx context.Context, sample record.Sample, cons constraint.Constraints, translation string) VerifyResult {
	hc := v.engine.Run(cons, sample.SourceText, translation)

	res := VerifyResult{
		Issues:     hc.Issues,
		HardChecks: hc.Checks,
	}

	if !v.hasLLM() {
		return res
	}

	vars := map[string]string{
		"text":        sample.SourceText,
		"context":     sample.Context,
		"translation": translation,
		"constraints": cons.Markdown(),
	}
	user := prompt.Render(v.template(defaultVerifierTemplate), vars)

	resp, err := v.call(ctx, v.messages(v.systemPrompt(defaultVerifierSystem), user), llm.FormatJSON)
	if err != nil {
		v.logger.Warn("verifier model failed, using hard checks only", zap.String("sample", sample.SampleID), zap.Error(err))
		return res
	}
	res.Usage = resp.Usage

	res.Issues = append(res.Issues, parseIssues(resp.Output)...)
	return res
}

// parseIssues decodes the reviewer payload. A parse failure yields zero
// issues; individual entries are validated field by field, with enum
// fallbacks and confidence clamped to [0,1].
func parseIssues(raw string) []record.Issue {
	var parsed struct {
		Issues []struct {
			ID            string  `json:"id"`
			Type          string  `json:"type"`
			Severity      string  `json:"severity"`
			Rationale     string  `json:"rationale"`
			FixSuggestion string  `json:"fixSuggestion"`
			Confidence    float64 `json:"confidence"`
		} `json:"issues"`
	}
	if err := json.Unmarshal([]byte(postprocess.StripJSONFences(raw)), &parsed); err != nil {
		return nil
	}

	var issues []record.Issue
	for _, in := range parsed.Issues {
		issue := record.Issue{
			ID:            strings.TrimSpace(in.ID),
			Type:          strings.ToUpper(strings.TrimSpace(in.Type)),
			Severity:      strings.ToLower(strings.TrimSpace(in.Severity)),
			Rationale:     strings.TrimSpace(in.Rationale),
			FixSuggestion: strings.TrimSpace(in.FixSuggestion),
			Confidence:    clamp01(in.Confidence),
		}
		if !record.ValidIssueType(issue.Type) {
			issue.Type = record.IssueOther
		}
		if !record.ValidSeverity(issue.Severity) {
			issue.Severity = record.SeverityMinor
		}
		if issue.Rationale == "" {
			continue
		}
		if issue.ID == "" {
			issue.ID = issueID(issue.Type, issue.Rationale)
		}
		issues = append(issues, issue)
	}
	return issues
}

// issueID synthesizes a stable id from the issue's type and rationale.
func issueID(issueType, rationale string) string {
	h := fnv.New32a()
	h.Write([]byte(issueType))
	h.Write([]byte{0})
	h.Write([]byte(rationale))
	return fmt.Sprintf("i-%08x", h.Sum32())
}
