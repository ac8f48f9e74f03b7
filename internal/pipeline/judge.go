package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/valpere/perebench/internal/constraint"
	"github.com/valpere/perebench/internal/llm"
	"github.com/valpere/perebench/internal/postprocess"
	"github.com/valpere/perebench/internal/prompt"
	"github.com/valpere/perebench/internal/record"
)

const defaultJudgeSystem = "You are a strict evaluator of Japanese-to-English literary translation. Score the candidate. Respond only with JSON."

const defaultJudgeTemplate = `Source (Japanese):
{{text}}

Candidate translation:
{{translation}}

Reference translation (may be empty):
{{reference}}

Constraints:
{{constraints}}

Score each dimension between 0.0 and 1.0. Respond as JSON:
{"adequacy": 0.0, "fluency": 0.0, "constraintCompliance": 0.0, "styleFit": 0.0, "overall": 0.0}

This is scoring pass {{pass}}.`

// Heuristic fallback weights for the overall dimension.
const (
	weightAdequacy   = 0.40
	weightFluency    = 0.20
	weightCompliance = 0.25
	weightStyleFit   = 0.15
)

// Judge scores a final translation on the five-dimensional rubric. With a
// model configured it runs N independent scoring calls and reduces each
// dimension by median; without one it returns a single heuristic score.
type Judge struct {
	component
	runs   int
	logger *zap.Logger
}

func NewJudge(gw *llm.Gateway, model llm.ModelSpec, resolved *prompt.Resolved, runs int, logger *zap.Logger) *Judge {
	if runs < 1 {
		runs = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{component: component{gw: gw, model: model, resolved: resolved}, runs: runs, logger: logger}
}

// Score never fails: a model call that cannot be parsed contributes a
// heuristic score for that iteration.
func (j *Judge) Score(ctx context.Context, sample record.Sample, cons constraint.Constraints, final string) (record.ScoreBreakdown, llm.Usage) {
	if !j.hasLLM() {
		return heuristicScore(sample, final), llm.Usage{}
	}

	var usage llm.Usage
	scores := make([]record.ScoreBreakdown, 0, j.runs)

	for pass := 1; pass <= j.runs; pass++ {
		vars := map[string]string{
			"text":        sample.SourceText,
			"translation": final,
			"reference":   sample.ReferenceEN,
			"constraints": cons.Markdown(),
			"pass":        fmt.Sprintf("%d", pass),
		}
		user := prompt.Render(j.template(defaultJudgeTemplate), vars)

		resp, err := j.call(ctx, j.messages(j.systemPrompt(defaultJudgeSystem), user), llm.FormatJSON)
		if err != nil {
			j.logger.Warn("judge call failed, scoring heuristically", zap.String("sample", sample.SampleID), zap.Int("pass", pass), zap.Error(err))
			scores = append(scores, heuristicScore(sample, final))
			continue
		}
		usage.Add(resp.Usage)

		if parsed, ok := parseScore(resp.Output); ok {
			scores = append(scores, parsed)
		} else {
			scores = append(scores, heuristicScore(sample, final))
		}
	}

	return medianScores(scores), usage
}

// parseScore decodes one scoring payload; every dimension is clamped.
func parseScore(raw string) (record.ScoreBreakdown, bool) {
	var parsed struct {
		Adequacy             float64 `json:"adequacy"`
		Fluency              float64 `json:"fluency"`
		ConstraintCompliance float64 `json:"constraintCompliance"`
		StyleFit             float64 `json:"styleFit"`
		Overall              float64 `json:"overall"`
	}
	if err := json.Unmarshal([]byte(postprocess.StripJSONFences(raw)), &parsed); err != nil {
		return record.ScoreBreakdown{}, false
	}
	return record.ScoreBreakdown{
		Adequacy:             clamp01(parsed.Adequacy),
		Fluency:              clamp01(parsed.Fluency),
		ConstraintCompliance: clamp01(parsed.ConstraintCompliance),
		StyleFit:             clamp01(parsed.StyleFit),
		Overall:              clamp01(parsed.Overall),
	}, true
}

// medianScores reduces each dimension independently by median.
func medianScores(scores []record.ScoreBreakdown) record.ScoreBreakdown {
	if len(scores) == 0 {
		return record.ScoreBreakdown{}
	}
	dim := func(get func(record.ScoreBreakdown) float64) float64 {
		vals := make([]float64, len(scores))
		for i, s := range scores {
			vals[i] = get(s)
		}
		return median(vals)
	}
	return record.ScoreBreakdown{
		Adequacy:             dim(func(s record.ScoreBreakdown) float64 { return s.Adequacy }),
		Fluency:              dim(func(s record.ScoreBreakdown) float64 { return s.Fluency }),
		ConstraintCompliance: dim(func(s record.ScoreBreakdown) float64 { return s.ConstraintCompliance }),
		StyleFit:             dim(func(s record.ScoreBreakdown) float64 { return s.StyleFit }),
		Overall:              dim(func(s record.ScoreBreakdown) float64 { return s.Overall }),
	}
}

func median(vals []float64) float64 {
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// heuristicScore is the no-LLM rubric: token-overlap adequacy against the
// reference (or the source when none exists), length-ratio fluency, and
// constant structural scores.
func heuristicScore(sample record.Sample, final string) record.ScoreBreakdown {
	reference := sample.ReferenceEN
	if reference == "" {
		reference = sample.SourceText
	}

	adequacy := tokenOverlap(reference, final)
	fluency := lengthFluency(sample.SourceText, final)
	compliance := 0.7
	styleFit := 0.6

	overall := clamp01(weightAdequacy*adequacy +
		weightFluency*fluency +
		weightCompliance*compliance +
		weightStyleFit*styleFit)

	return record.ScoreBreakdown{
		Adequacy:             clamp01(adequacy),
		Fluency:              clamp01(fluency),
		ConstraintCompliance: compliance,
		StyleFit:             styleFit,
		Overall:              overall,
	}
}

// tokenOverlap is the fraction of reference tokens present in the
// candidate, case-insensitive.
func tokenOverlap(reference, candidate string) float64 {
	refToks := strings.Fields(strings.ToLower(reference))
	if len(refToks) == 0 {
		return 0
	}
	candSet := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(candidate)) {
		candSet[tok] = true
	}
	hit := 0
	for _, tok := range refToks {
		if candSet[tok] {
			hit++
		}
	}
	return float64(hit) / float64(len(refToks))
}

// lengthFluency penalizes candidates whose length diverges far from the
// source. Japanese compresses relative to English, so the band is wide.
func lengthFluency(source, candidate string) float64 {
	srcLen := len([]rune(source))
	candLen := len([]rune(candidate))
	if candLen == 0 {
		return 0
	}
	if srcLen == 0 {
		return 0.5
	}
	ratio := float64(candLen) / float64(srcLen)
	switch {
	case ratio >= 0.5 && ratio <= 3.0:
		return 0.8
	case ratio >= 0.25 && ratio <= 5.0:
		return 0.5
	default:
		return 0.2
	}
}
