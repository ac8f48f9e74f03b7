// Package hardcheck runs deterministic, rule-based checks over a candidate
// translation. Checks never error; each produces a pass/fail result, and each
// failure synthesizes a reviewer Issue for the verify-repair loop.
package hardcheck

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/valpere/perebench/internal/constraint"
	"github.com/valpere/perebench/internal/detector"
	"github.com/valpere/perebench/internal/record"
)

// Rule IDs, in evaluation order.
const (
	RuleNoDisallowedJapanese  = "noDisallowedJapanese"
	RuleGlossaryStrictMatches = "glossaryStrictMatches"
	RuleMaxLength             = "maxLength"
	RuleNoMetaTalk            = "noMetaTalk"
	RuleFormatPreserved       = "formatPreserved"
	RuleTargetLanguage        = "targetLanguage"
)

// Settings toggles individual rules and carries the global length cap.
// The zero value disables everything; use DefaultSettings for the
// standard rule set.
type Settings struct {
	NoDisallowedJapanese  bool
	GlossaryStrictMatches bool
	NoMetaTalk            bool
	FormatPreserved       bool
	TargetLanguage        bool
	MaxLength             int // global cap; 0 = unbounded
}

// DefaultSettings enables every rule except the language-detection check,
// which costs noticeably more to build and is opt-in.
func DefaultSettings() Settings {
	return Settings{
		NoDisallowedJapanese:  true,
		GlossaryStrictMatches: true,
		NoMetaTalk:            true,
		FormatPreserved:       true,
	}
}

var metaTalkRe = regexp.MustCompile(`(?i)as an ai`)

// Engine evaluates the rule set. The engine is shared across workers, so
// the language detector is built up front, and only when the
// targetLanguage rule is enabled.
type Engine struct {
	settings Settings
	det      *detector.Detector
}

func New(settings Settings) *Engine {
	e := &Engine{settings: settings}
	if settings.TargetLanguage {
		e.det = detector.New()
	}
	return e
}

// Result pairs the ordered check outcomes with the issues synthesized from
// failures.
type Result struct {
	Checks []record.HardCheckResult
	Issues []record.Issue
}

// Run evaluates every enabled rule against the translation. Rules are
// independent; a failing rule never stops the rest.
func (e *Engine) Run(cons constraint.Constraints, source, translation string) Result {
	var res Result

	if e.settings.NoDisallowedJapanese {
		res.add(e.checkNoDisallowedJapanese(cons, translation))
	}
	if e.settings.GlossaryStrictMatches {
		res.add(e.checkGlossaryStrict(cons, translation))
	}
	if cons.Format.MaxChars != nil || e.settings.MaxLength > 0 {
		res.add(e.checkMaxLength(cons, translation))
	}
	if e.settings.NoMetaTalk {
		res.add(e.checkNoMetaTalk(translation))
	}
	if e.settings.FormatPreserved {
		res.add(e.checkFormatPreserved(cons, source, translation))
	}
	if e.settings.TargetLanguage {
		res.add(e.checkTargetLanguage(cons, translation))
	}

	return res
}

func (r *Result) add(hc record.HardCheckResult) {
	r.Checks = append(r.Checks, hc)
	if hc.Passed {
		return
	}
	issueType := record.IssueStyleViolation
	severity := record.SeverityMinor
	switch hc.ID {
	case RuleFormatPreserved:
		issueType = record.IssueFormatViolation
	case RuleNoDisallowedJapanese:
		severity = record.SeverityMajor
	}
	r.Issues = append(r.Issues, record.Issue{
		ID:            "hc:" + hc.ID,
		Type:          issueType,
		Severity:      severity,
		Rationale:     hc.Description,
		FixSuggestion: "Revise the translation so that the failed constraint is satisfied.",
		Confidence:    0.8,
	})
}

// containsJapanese reports whether any rune of tok falls in the Hiragana,
// Katakana, or CJK Unified Ideograph ranges.
func containsJapanese(tok string) bool {
	for _, r := range tok {
		if unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func (e *Engine) checkNoDisallowedJapanese(cons constraint.Constraints, translation string) record.HardCheckResult {
	allowed := make(map[string]bool, len(cons.AllowJapaneseTokens))
	for _, tok := range cons.AllowJapaneseTokens {
		allowed[tok] = true
	}

	var offending []string
	for _, tok := range strings.Fields(translation) {
		if containsJapanese(tok) && !allowed[tok] {
			offending = append(offending, tok)
		}
	}

	hc := record.HardCheckResult{
		ID:          RuleNoDisallowedJapanese,
		Passed:      len(offending) == 0,
		Description: "Translation must not contain Japanese script outside the allow-list",
	}
	if !hc.Passed {
		hc.Details = fmt.Sprintf("disallowed tokens: %s", strings.Join(offending, " "))
	}
	return hc
}

func (e *Engine) checkGlossaryStrict(cons constraint.Constraints, translation string) record.HardCheckResult {
	var missing []string
	for _, g := range cons.Glossary {
		if g.Strict && !strings.Contains(translation, g.EN) {
			missing = append(missing, g.EN)
		}
	}

	hc := record.HardCheckResult{
		ID:          RuleGlossaryStrictMatches,
		Passed:      len(missing) == 0,
		Description: "Strict glossary terms must appear in the translation",
	}
	if !hc.Passed {
		hc.Details = fmt.Sprintf("missing terms: %s", strings.Join(missing, ", "))
	}
	return hc
}

func (e *Engine) checkMaxLength(cons constraint.Constraints, translation string) record.HardCheckResult {
	// When both the per-sample cap and the global cap are set, both must
	// hold, i.e. the effective bound is the smaller of the two.
	limit := 0
	if cons.Format.MaxChars != nil {
		limit = *cons.Format.MaxChars
	}
	if e.settings.MaxLength > 0 && (limit == 0 || e.settings.MaxLength < limit) {
		limit = e.settings.MaxLength
	}

	length := len([]rune(translation))
	hc := record.HardCheckResult{
		ID:          RuleMaxLength,
		Passed:      limit == 0 || length <= limit,
		Description: fmt.Sprintf("Translation must not exceed %d characters", limit),
	}
	if !hc.Passed {
		hc.Details = fmt.Sprintf("length %d exceeds limit %d", length, limit)
	}
	return hc
}

func (e *Engine) checkNoMetaTalk(translation string) record.HardCheckResult {
	hc := record.HardCheckResult{
		ID:          RuleNoMetaTalk,
		Passed:      !metaTalkRe.MatchString(translation),
		Description: "Translation must not contain assistant meta-talk",
	}
	if !hc.Passed {
		hc.Details = "matched pattern: as an ai"
	}
	return hc
}

func (e *Engine) checkFormatPreserved(cons constraint.Constraints, source, translation string) record.HardCheckResult {
	hc := record.HardCheckResult{
		ID:          RuleFormatPreserved,
		Passed:      true,
		Description: "Translation must preserve the source line-break count",
	}
	if cons.Format.KeepLineBreaks == nil || !*cons.Format.KeepLineBreaks {
		return hc
	}
	srcBreaks := strings.Count(source, "\n")
	tgtBreaks := strings.Count(translation, "\n")
	if srcBreaks != tgtBreaks {
		hc.Passed = false
		hc.Details = fmt.Sprintf("source has %d line breaks, translation has %d", srcBreaks, tgtBreaks)
	}
	return hc
}

func (e *Engine) checkTargetLanguage(cons constraint.Constraints, translation string) record.HardCheckResult {
	hc := record.HardCheckResult{
		ID:          RuleTargetLanguage,
		Passed:      true,
		Description: fmt.Sprintf("Translation should be written in %s", cons.TargetLang),
	}
	detected, ok := e.det.DetectISO(translation)
	if !ok {
		// Too short or ambiguous; cannot validate, pass through.
		return hc
	}
	if !strings.EqualFold(detected, cons.TargetLang) {
		hc.Passed = false
		hc.Details = fmt.Sprintf("expected %s but detected %s", cons.TargetLang, detected)
	}
	return hc
}
