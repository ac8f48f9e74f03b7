package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/valpere/perebench/internal/record"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sceneFixture(id, split string, tags ...string) record.Scene {
	return record.Scene{
		SceneID: id,
		LangSrc: "ja",
		LangTgt: "en",
		Split:   split,
		Tags:    tags,
		Segments: []record.Segment{
			{T: 0, Kind: "narration", Text: "夜だった。"},
		},
	}
}

func TestSaveAndListScenes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveScene(ctx, sceneFixture("sc1", "dev", "mystery")); err != nil {
		t.Fatalf("save scene: %v", err)
	}
	if err := s.SaveScene(ctx, sceneFixture("sc2", "test")); err != nil {
		t.Fatalf("save scene: %v", err)
	}

	scenes, err := s.ListScenes(ctx, record.SceneFilter{})
	if err != nil {
		t.Fatalf("list scenes: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d", len(scenes))
	}
	if scenes[0].SceneID != "sc1" {
		t.Errorf("expected ordering by scene id, got %s first", scenes[0].SceneID)
	}
	if len(scenes[0].Segments) != 1 || scenes[0].Segments[0].Text != "夜だった。" {
		t.Errorf("expected segments round-tripped, got %+v", scenes[0].Segments)
	}
}

func TestListScenes_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, scene := range []record.Scene{
		sceneFixture("sc1", "dev", "mystery"),
		sceneFixture("sc2", "dev", "romance"),
		sceneFixture("sc3", "test", "mystery"),
	} {
		if err := s.SaveScene(ctx, scene); err != nil {
			t.Fatalf("save scene: %v", err)
		}
	}

	scenes, err := s.ListScenes(ctx, record.SceneFilter{Split: "dev"})
	if err != nil {
		t.Fatalf("list by split: %v", err)
	}
	if len(scenes) != 2 {
		t.Errorf("expected 2 dev scenes, got %d", len(scenes))
	}

	scenes, err = s.ListScenes(ctx, record.SceneFilter{SceneIDs: []string{"sc1", "sc3"}})
	if err != nil {
		t.Fatalf("list by ids: %v", err)
	}
	if len(scenes) != 2 {
		t.Errorf("expected 2 scenes by id, got %d", len(scenes))
	}

	scenes, err = s.ListScenes(ctx, record.SceneFilter{Tags: []string{"mystery"}})
	if err != nil {
		t.Fatalf("list by tag: %v", err)
	}
	if len(scenes) != 2 {
		t.Errorf("expected 2 mystery scenes, got %d", len(scenes))
	}

	scenes, err = s.ListScenes(ctx, record.SceneFilter{Split: "dev", Tags: []string{"romance"}})
	if err != nil {
		t.Fatalf("list combined: %v", err)
	}
	if len(scenes) != 1 || scenes[0].SceneID != "sc2" {
		t.Errorf("expected only sc2, got %+v", scenes)
	}
}

func runFixture(runID, sampleID, condition string) record.RunRecord {
	return record.RunRecord{
		RunID:     runID,
		SampleID:  sampleID,
		Condition: condition,
		Draft:     "draft",
		Final:     "final",
		Status:    record.StatusOK,
		Scores:    record.ScoreBreakdown{Overall: 0.8},
	}
}

func TestAppendRun_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := runFixture("r1", "s1", "A0")
	if err := s.AppendRun(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec.Final = "revised final"
	if err := s.AppendRun(ctx, rec); err != nil {
		t.Fatalf("re-append: %v", err)
	}

	runs, err := s.ListRuns(ctx, "r1")
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected idempotent append, got %d rows", len(runs))
	}
	if runs[0].Final != "revised final" {
		t.Errorf("expected last write to win, got %q", runs[0].Final)
	}
}

func TestExperimentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exp := record.Experiment{
		ID:         "exp1",
		Name:       "baseline",
		Config:     "components: {}",
		Conditions: []string{"A0", "A2"},
		SceneFilter: record.SceneFilter{
			Split: "dev",
		},
	}
	if err := s.CreateExperiment(ctx, exp); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetExperiment(ctx, "exp1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != record.ExperimentDraft {
		t.Errorf("expected draft status, got %q", got.Status)
	}
	if len(got.Conditions) != 2 || got.Conditions[1] != "A2" {
		t.Errorf("expected conditions round-tripped, got %+v", got.Conditions)
	}
	if got.SceneFilter.Split != "dev" {
		t.Errorf("expected scene filter round-tripped, got %+v", got.SceneFilter)
	}

	if err := s.SetExperimentStatus(ctx, "exp1", record.ExperimentRunning); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, err = s.GetExperiment(ctx, "exp1")
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if got.Status != record.ExperimentRunning {
		t.Errorf("expected running, got %q", got.Status)
	}

	if err := s.SetExperimentStatus(ctx, "ghost", record.ExperimentFailed); err == nil {
		t.Error("expected error for unknown experiment")
	}
}

func TestDeleteExperiment_CascadesToRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateExperiment(ctx, record.Experiment{ID: "exp1", Name: "n", Config: "{}"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, cond := range []string{"A0", "A1"} {
		if err := s.AppendRun(ctx, runFixture("exp1", "s1", cond)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := s.DeleteExperiment(ctx, "exp1"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.GetExperiment(ctx, "exp1"); err == nil {
		t.Error("expected experiment to be gone")
	}
	runs, err := s.ListRuns(ctx, "exp1")
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected runs cascaded away, got %d", len(runs))
	}
}
