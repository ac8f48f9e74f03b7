// Package record holds the entities shared across the evaluation pipeline:
// scenes and their segments, the samples derived from them, reviewer issues,
// hard-check outcomes, judge scores, and the RunRecord written for every
// (sample, condition) pair.
package record

import (
	"fmt"

	"github.com/valpere/perebench/internal/constraint"
)

// Segment is one translatable unit inside a scene, ordered by T.
type Segment struct {
	T       int    `json:"t"`
	Kind    string `json:"kind"` // narration, dialogue, sfx
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// Scene is a source narrative unit. Scenes are immutable while an
// experiment runs against them.
type Scene struct {
	SceneID     string                       `json:"sceneId"`
	LangSrc     string                       `json:"langSrc"`
	LangTgt     string                       `json:"langTgt"`
	Segments    []Segment                    `json:"segments"`
	WorldState  map[string]string            `json:"worldState,omitempty"`
	Characters  map[string]map[string]string `json:"characters,omitempty"`
	Constraints constraint.Partial           `json:"constraints,omitempty"`
	EvalTargets []string                     `json:"evalTargets,omitempty"`
	Split       string                       `json:"split,omitempty"`
	Tags        []string                     `json:"tags,omitempty"`
}

// Sample is one (scene, segment) pairing presented to the pipeline.
type Sample struct {
	SampleID    string             `json:"sampleId"`
	SourceText  string             `json:"sourceText"`
	Context     string             `json:"context,omitempty"`
	Constraints constraint.Partial `json:"constraints,omitempty"`
	ReferenceEN string             `json:"referenceEn,omitempty"`
}

// State carries the facts extracted for the stateful translator variants.
type State struct {
	Utterance   string   `json:"utterance"`
	Speaker     string   `json:"speaker"`
	Addressee   string   `json:"addressee"`
	Entities    []Entity `json:"entities"`
	CoreMeaning string   `json:"coreMeaning"`
	Implicature string   `json:"implicature"`
}

// Entity names something the state builder identified in the utterance.
type Entity struct {
	Name string `json:"name"`
	Desc string `json:"desc,omitempty"`
}

// Issue types.
const (
	IssueMistranslation    = "MISTRANSLATION"
	IssueOmission          = "OMISSION"
	IssueAddition          = "ADDITION"
	IssueTermInconsistency = "TERM_INCONSISTENCY"
	IssuePronounReference  = "PRONOUN_REFERENCE"
	IssueSpeakerMismatch   = "SPEAKER_MISMATCH"
	IssueStyleViolation    = "STYLE_VIOLATION"
	IssueFormatViolation   = "FORMAT_VIOLATION"
	IssueSafetyOrPolicy    = "SAFETY_OR_POLICY"
	IssueOther             = "OTHER"
)

// Issue severities.
const (
	SeverityCritical = "critical"
	SeverityMajor    = "major"
	SeverityMinor    = "minor"
)

// Issue is one reviewer-found defect, produced by the verifier or
// synthesized from a failed hard check.
type Issue struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Severity      string  `json:"severity"`
	Rationale     string  `json:"rationale"`
	FixSuggestion string  `json:"fixSuggestion,omitempty"`
	Confidence    float64 `json:"confidence"`
}

// ValidIssueType reports whether t is one of the known issue type constants.
func ValidIssueType(t string) bool {
	switch t {
	case IssueMistranslation, IssueOmission, IssueAddition,
		IssueTermInconsistency, IssuePronounReference, IssueSpeakerMismatch,
		IssueStyleViolation, IssueFormatViolation, IssueSafetyOrPolicy,
		IssueOther:
		return true
	}
	return false
}

// ValidSeverity reports whether s is one of the known severity constants.
func ValidSeverity(s string) bool {
	return s == SeverityCritical || s == SeverityMajor || s == SeverityMinor
}

// HardCheckResult is the outcome of one deterministic rule.
type HardCheckResult struct {
	ID          string `json:"id"`
	Passed      bool   `json:"passed"`
	Description string `json:"description"`
	Details     string `json:"details,omitempty"`
}

// ScoreBreakdown is the judge's five-dimensional rubric. All values are
// clamped to [0,1].
type ScoreBreakdown struct {
	Adequacy             float64 `json:"adequacy"`
	Fluency              float64 `json:"fluency"`
	ConstraintCompliance float64 `json:"constraintCompliance"`
	StyleFit             float64 `json:"styleFit"`
	Overall              float64 `json:"overall"`
}

// Usage sums tokens across every LLM call made for one pair.
type Usage struct {
	PromptTokens     int `json:"prompt"`
	CompletionTokens int `json:"completion"`
	TotalTokens      int `json:"total"`
}

// Add accumulates another usage sample into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Timings records per-stage and total wall-clock milliseconds.
type Timings struct {
	Stages  map[string]int64 `json:"stages"`
	TotalMs int64            `json:"totalMs"`
}

// AddStage accumulates elapsed milliseconds for a named stage.
func (t *Timings) AddStage(stage string, ms int64) {
	if t.Stages == nil {
		t.Stages = make(map[string]int64)
	}
	t.Stages[stage] += ms
}

// Experiment statuses.
const (
	ExperimentDraft     = "draft"
	ExperimentRunning   = "running"
	ExperimentCompleted = "completed"
	ExperimentFailed    = "failed"
)

// SceneFilter selects the scenes an experiment runs over. Empty fields
// match everything.
type SceneFilter struct {
	Split    string   `json:"split,omitempty"`
	SceneIDs []string `json:"sceneIds,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Experiment is a run plan over a scene filter.
type Experiment struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Config      string      `json:"config"`
	Conditions  []string    `json:"conditions"`
	SceneFilter SceneFilter `json:"sceneFilter"`
	Status      string      `json:"status"`
}

// Conditions are the named pipeline variants.
var Conditions = []string{"A0", "A1", "A2", "A3"}

// Capabilities are the stage toggles a condition implies. Stages branch on
// these flags, never on the condition name.
type Capabilities struct {
	HasState        bool
	HasVerifyRepair bool
}

// CapabilitiesFor maps a condition name to its capability flags.
func CapabilitiesFor(condition string) (Capabilities, bool) {
	switch condition {
	case "A0":
		return Capabilities{}, true
	case "A1":
		return Capabilities{HasState: true}, true
	case "A2":
		return Capabilities{HasVerifyRepair: true}, true
	case "A3":
		return Capabilities{HasState: true, HasVerifyRepair: true}, true
	}
	return Capabilities{}, false
}

// Run statuses.
const (
	StatusOK          = "ok"
	StatusNeedsReview = "needs_review"
	StatusError       = "error"
)

// RunRecord is the full artifact for one (sample, condition) pair. The
// engine appends each (runId, sampleId, condition) triple exactly once.
type RunRecord struct {
	RunID                 string                 `json:"runId"`
	Condition             string                 `json:"condition"`
	SampleID              string                 `json:"sampleId"`
	Draft                 string                 `json:"draft"`
	Final                 string                 `json:"final"`
	Issues                []Issue                `json:"issues"`
	HardChecks            []HardCheckResult      `json:"hardChecks"`
	Scores                ScoreBreakdown         `json:"scores"`
	Usage                 Usage                  `json:"usage"`
	Timings               Timings                `json:"timings"`
	State                 *State                 `json:"state,omitempty"`
	NormalizedConstraints constraint.Constraints `json:"normalizedConstraints"`
	Trace                 string                 `json:"trace,omitempty"`
	Status                string                 `json:"status"`
	Error                 string                 `json:"error,omitempty"`
}

// Key returns the identity triple for idempotent persistence.
func (r RunRecord) Key() string {
	return fmt.Sprintf("%s:%s:%s", r.RunID, r.SampleID, r.Condition)
}

// HasCriticalIssue reports whether any issue carries critical severity.
func HasCriticalIssue(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// AllChecksPassed reports whether every hard-check result passed.
func AllChecksPassed(checks []HardCheckResult) bool {
	for _, hc := range checks {
		if !hc.Passed {
			return false
		}
	}
	return true
}
