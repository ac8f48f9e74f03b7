// Package experiment validates a run plan, expands its scenes into
// samples, and drives the orchestrator in the background while tracking
// the experiment's status transitions.
package experiment

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/valpere/perebench/internal/config"
	"github.com/valpere/perebench/internal/record"
	"github.com/valpere/perebench/internal/runner"
)

// Store is the slice of the persistent store the driver consumes.
type Store interface {
	ListScenes(ctx context.Context, filter record.SceneFilter) ([]record.Scene, error)
	GetExperiment(ctx context.Context, id string) (*record.Experiment, error)
	SetExperimentStatus(ctx context.Context, id, status string) error
	AppendRun(ctx context.Context, rec record.RunRecord) error
}

// StartError is a precondition failure carrying an HTTP-style status hint:
// 400 for malformed plans, 409 for wrong experiment status, 422 for plans
// that expand to nothing. The experiment's status is left untouched.
type StartError struct {
	Status  int
	Message string
}

func (e *StartError) Error() string {
	return fmt.Sprintf("experiment: %s (status %d)", e.Message, e.Status)
}

// Driver launches experiments.
type Driver struct {
	store  Store
	logger *zap.Logger
}

func NewDriver(store Store, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{store: store, logger: logger}
}

// storeSink adapts the store to the runner's per-record sink.
type storeSink struct {
	ctx   context.Context
	store Store
}

func (s storeSink) AppendRun(rec record.RunRecord) error {
	return s.store.AppendRun(s.ctx, rec)
}

// Start validates the experiment and, when it passes, transitions it to
// running and launches the orchestrator in the background. The returned
// channel yields the terminal error (nil on completion) and closes.
// Validation failures are returned synchronously as *StartError.
func (d *Driver) Start(ctx context.Context, id string) (<-chan error, error) {
	exp, err := d.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, &StartError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	if exp.Status != record.ExperimentDraft {
		return nil, &StartError{Status: http.StatusConflict, Message: fmt.Sprintf("experiment %s is %s, not draft", id, exp.Status)}
	}

	if len(exp.Conditions) == 0 {
		return nil, &StartError{Status: http.StatusBadRequest, Message: "experiment has no conditions"}
	}
	for _, cond := range exp.Conditions {
		if _, ok := record.CapabilitiesFor(cond); !ok {
			return nil, &StartError{Status: http.StatusBadRequest, Message: fmt.Sprintf("unknown condition %q", cond)}
		}
	}

	cfg, err := config.Parse([]byte(exp.Config), "")
	if err != nil {
		return nil, &StartError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	scenes, err := d.store.ListScenes(ctx, exp.SceneFilter)
	if err != nil {
		return nil, &StartError{Status: http.StatusBadRequest, Message: err.Error()}
	}
	if len(scenes) == 0 {
		return nil, &StartError{Status: http.StatusUnprocessableEntity, Message: "scene filter matched no scenes"}
	}

	samples := ExpandScenes(scenes)
	if len(samples) == 0 {
		return nil, &StartError{Status: http.StatusUnprocessableEntity, Message: "scenes expanded to no samples"}
	}

	run, err := runner.Build(cfg, d.logger)
	if err != nil {
		return nil, &StartError{Status: http.StatusBadRequest, Message: err.Error()}
	}

	if err := d.store.SetExperimentStatus(ctx, id, record.ExperimentRunning); err != nil {
		return nil, fmt.Errorf("experiment: mark running: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := d.execute(ctx, exp, cfg, run, samples)
		status := record.ExperimentCompleted
		if err != nil {
			status = record.ExperimentFailed
			d.logger.Error("experiment failed", zap.String("id", id), zap.Error(err))
		}
		// Terminal status is written with a fresh context so a cancelled
		// run still lands in a terminal state.
		if serr := d.store.SetExperimentStatus(context.WithoutCancel(ctx), id, status); serr != nil {
			d.logger.Error("experiment status update failed", zap.String("id", id), zap.Error(serr))
		}
		done <- err
	}()
	return done, nil
}

func (d *Driver) execute(ctx context.Context, exp *record.Experiment, cfg *config.Config, run *runner.Runner, samples []record.Sample) error {
	outDir := cfg.OutputDir()
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("experiment: output dir: %w", err)
	}
	outPath := filepath.Join(outDir, exp.ID+".jsonl")
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("experiment: create output: %w", err)
	}
	defer out.Close()

	d.logger.Info("experiment started",
		zap.String("id", exp.ID),
		zap.Int("samples", len(samples)),
		zap.Strings("conditions", exp.Conditions),
		zap.String("output", outPath))

	sink := storeSink{ctx: context.WithoutCancel(ctx), store: d.store}
	return run.Run(ctx, exp.ID, samples, exp.Conditions, out, sink)
}
