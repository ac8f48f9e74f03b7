// Package runner orchestrates the per-sample pipeline: it fans
// (sample, condition) pairs across a bounded worker pool, drives each pair
// through state → translate → verify → repair → judge, and streams the
// resulting run records to the JSONL log and the optional store sink.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/perebench/internal/constraint"
	"github.com/valpere/perebench/internal/llm"
	"github.com/valpere/perebench/internal/pipeline"
	"github.com/valpere/perebench/internal/record"
	"github.com/valpere/perebench/internal/trace"
)

// Pipeline bundles the constructed stages. TranslatorWithState is optional;
// when absent, stateful conditions reuse the default translator.
type Pipeline struct {
	StateBuilder        *pipeline.StateBuilder
	Translator          *pipeline.Translator
	TranslatorWithState *pipeline.Translator
	Verifier            *pipeline.Verifier
	Repairer            *pipeline.Repairer
	Judge               *pipeline.Judge
}

// Settings sizes the pool and the repair loop.
type Settings struct {
	Concurrency       int
	MaxRepairs        int
	Defaults          constraint.Partial
	ResolvedPromptDir string

	// PromptDumps maps component name to its resolved prompt body,
	// written once per run under ResolvedPromptDir/<runId>/.
	PromptDumps map[string]string
}

// Runner executes one experiment run.
type Runner struct {
	pipe     Pipeline
	settings Settings
	tracer   *trace.Tracer
	logger   *zap.Logger
}

func New(pipe Pipeline, settings Settings, tracer *trace.Tracer, logger *zap.Logger) *Runner {
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	if settings.MaxRepairs < 0 {
		settings.MaxRepairs = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{pipe: pipe, settings: settings, tracer: tracer, logger: logger}
}

type pair struct {
	sample    record.Sample
	condition string
}

// Run drives every (sample, condition) pair and appends each record to the
// JSONL stream exactly once. Cancellation stops admission of new pairs;
// in-flight pairs run to completion and are still written. A JSONL append
// failure is fatal; records already on disk are preserved.
func (r *Runner) Run(ctx context.Context, runID string, samples []record.Sample, conditions []string, out io.Writer, sink Sink) error {
	for _, cond := range conditions {
		if _, ok := record.CapabilitiesFor(cond); !ok {
			return fmt.Errorf("runner: unknown condition %q", cond)
		}
	}

	r.dumpPrompts(runID)

	writer := newJSONLWriter(out)
	var pump *sinkPump
	if sink != nil {
		pump = newSinkPump(sink, r.settings.Concurrency*2, r.logger)
	}

	jobs := make(chan pair)
	// Stage execution is detached from the cancel signal: cancellation
	// gates admission only, and admitted pairs run to completion.
	execCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i := 0; i < r.settings.Concurrency; i++ {
		g.Go(func() error {
			var werr error
			for p := range jobs {
				// After a writer failure the run is doomed; keep draining
				// so the feeder never blocks on a dead pool.
				if werr != nil {
					continue
				}
				rec := r.runPair(execCtx, runID, p)
				writer.Append(rec)
				pump.Push(rec)
				werr = writer.Err()
			}
			return werr
		})
	}

feed:
	for _, sample := range samples {
		for _, cond := range conditions {
			if ctx.Err() != nil {
				r.logger.Info("run cancelled, draining in-flight pairs", zap.String("runId", runID))
				break feed
			}
			select {
			case <-ctx.Done():
				r.logger.Info("run cancelled, draining in-flight pairs", zap.String("runId", runID))
				break feed
			case jobs <- pair{sample: sample, condition: cond}:
			}
		}
	}
	close(jobs)

	werr := g.Wait()
	pump.Close()
	if cerr := writer.Close(); cerr != nil && werr == nil {
		werr = cerr
	}

	r.logger.Info("run finished",
		zap.String("runId", runID),
		zap.Int("written", writer.Written()),
		zap.Int("pairs", len(samples)*len(conditions)))

	return werr
}

// RunOne executes a single pair synchronously and returns its record
// without touching any sink.
func (r *Runner) RunOne(ctx context.Context, runID string, sample record.Sample, condition string) (record.RunRecord, error) {
	if _, ok := record.CapabilitiesFor(condition); !ok {
		return record.RunRecord{}, fmt.Errorf("runner: unknown condition %q", condition)
	}
	r.dumpPrompts(runID)
	return r.runPair(ctx, runID, pair{sample: sample, condition: condition}), nil
}

// runPair executes the full stage graph for one pair. It never panics out:
// an unhandled failure becomes a status=error record so the pair is still
// written.
func (r *Runner) runPair(ctx context.Context, runID string, p pair) (rec record.RunRecord) {
	caps, _ := record.CapabilitiesFor(p.condition)
	started := time.Now()

	tr := r.tracer.Start(fmt.Sprintf("%s/%s/%s", runID, p.sample.SampleID, p.condition))
	defer tr.End()

	rec = record.RunRecord{
		RunID:     runID,
		Condition: p.condition,
		SampleID:  p.sample.SampleID,
		Issues:    []record.Issue{},
		Trace:     tr.ID(),
	}
	var usage record.Usage

	defer func() {
		if rv := recover(); rv != nil {
			r.failPair(&rec, fmt.Errorf("panic: %v", rv))
		}
		rec.Usage = usage
		rec.Timings.TotalMs = time.Since(started).Milliseconds()
	}()

	cons, err := constraint.Normalize(r.settings.Defaults, p.sample.Constraints)
	if err != nil {
		r.failPair(&rec, err)
		return rec
	}
	rec.NormalizedConstraints = cons

	var state *record.State
	if caps.HasState {
		end := tr.Span(pipeline.StageState)
		stageStart := time.Now()
		var stateUsage llm.Usage
		state, stateUsage = r.pipe.StateBuilder.Build(ctx, p.sample)
		rec.Timings.AddStage(pipeline.StageState, time.Since(stageStart).Milliseconds())
		addUsage(&usage, stateUsage)
		rec.State = state
		end()
	}

	translator := r.pipe.Translator
	if caps.HasState && r.pipe.TranslatorWithState != nil {
		translator = r.pipe.TranslatorWithState
	}

	end := tr.Span(pipeline.StageTranslate)
	stageStart := time.Now()
	draft, tUsage, err := translator.Translate(ctx, p.sample, cons, state)
	rec.Timings.AddStage(pipeline.StageTranslate, time.Since(stageStart).Milliseconds())
	addUsage(&usage, tUsage)
	end()
	if err != nil {
		r.failPair(&rec, err)
		return rec
	}
	rec.Draft = draft
	current := draft

	verify := func() pipeline.VerifyResult {
		end := tr.Span(pipeline.StageVerify)
		defer end()
		stageStart := time.Now()
		vr := r.pipe.Verifier.Verify(ctx, p.sample, cons, current)
		rec.Timings.AddStage(pipeline.StageVerify, time.Since(stageStart).Milliseconds())
		addUsage(&usage, vr.Usage)
		return vr
	}

	vr := verify()

	if caps.HasVerifyRepair {
		for i := 0; i < r.settings.MaxRepairs; i++ {
			if !record.HasCriticalIssue(vr.Issues) && record.AllChecksPassed(vr.HardChecks) {
				break
			}
			end := tr.Span(pipeline.StageRepair)
			stageStart := time.Now()
			repaired, rUsage, err := r.pipe.Repairer.Repair(ctx, p.sample, cons, state, current, vr.Issues)
			rec.Timings.AddStage(pipeline.StageRepair, time.Since(stageStart).Milliseconds())
			addUsage(&usage, rUsage)
			end()
			if err != nil {
				rec.Final = current
				rec.Issues = vr.Issues
				rec.HardChecks = vr.HardChecks
				r.failPair(&rec, err)
				return rec
			}
			current = repaired
			vr = verify()
		}
	}

	rec.Final = current
	rec.Issues = vr.Issues
	rec.HardChecks = vr.HardChecks

	end = tr.Span(pipeline.StageJudge)
	stageStart = time.Now()
	scores, jUsage := r.pipe.Judge.Score(ctx, p.sample, cons, current)
	rec.Timings.AddStage(pipeline.StageJudge, time.Since(stageStart).Milliseconds())
	addUsage(&usage, jUsage)
	end()
	rec.Scores = scores

	if record.HasCriticalIssue(rec.Issues) || !record.AllChecksPassed(rec.HardChecks) {
		rec.Status = record.StatusNeedsReview
	} else {
		rec.Status = record.StatusOK
	}
	return rec
}

// failPair marks the record as errored and synthesizes the OTHER/critical
// issue describing what went wrong.
func (r *Runner) failPair(rec *record.RunRecord, err error) {
	r.logger.Error("pair failed",
		zap.String("runId", rec.RunID),
		zap.String("sample", rec.SampleID),
		zap.String("condition", rec.Condition),
		zap.Error(err))

	rec.Status = record.StatusError
	rec.Error = err.Error()
	rec.Issues = append(rec.Issues, record.Issue{
		ID:         "pair-error",
		Type:       record.IssueOther,
		Severity:   record.SeverityCritical,
		Rationale:  err.Error(),
		Confidence: 1,
	})
}

func addUsage(total *record.Usage, u llm.Usage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}

// dumpPrompts writes each component's resolved prompt once per run.
func (r *Runner) dumpPrompts(runID string) {
	if r.settings.ResolvedPromptDir == "" || len(r.settings.PromptDumps) == 0 {
		return
	}
	dir := filepath.Join(r.settings.ResolvedPromptDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		r.logger.Warn("prompt dump dir", zap.Error(err))
		return
	}
	for component, body := range r.settings.PromptDumps {
		path := filepath.Join(dir, component+".txt")
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			r.logger.Warn("prompt dump write", zap.String("component", component), zap.Error(err))
		}
	}
}
