// Package store is the sqlite-backed persistent store adapter: scenes,
// experiments, and run records behind the handle the engine consumes.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/valpere/perebench/internal/record"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scenes (
		scene_id TEXT PRIMARY KEY,
		split TEXT,
		tags TEXT,
		payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS experiments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		config TEXT NOT NULL,
		conditions TEXT NOT NULL,
		scene_filter TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- runs are idempotent on the (run_id, sample_id, condition) triple
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT NOT NULL,
		sample_id TEXT NOT NULL,
		condition TEXT NOT NULL,
		status TEXT NOT NULL,
		overall REAL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, sample_id, condition)
	);

	CREATE INDEX IF NOT EXISTS idx_scenes_split ON scenes(split);
	CREATE INDEX IF NOT EXISTS idx_runs_run ON runs(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveScene inserts or replaces a scene. Scenes are stored whole as JSON
// with the filterable columns lifted out.
func (s *Store) SaveScene(ctx context.Context, scene record.Scene) error {
	payload, err := json.Marshal(scene)
	if err != nil {
		return fmt.Errorf("store: marshal scene %s: %w", scene.SceneID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO scenes (scene_id, split, tags, payload) VALUES (?, ?, ?, ?)`,
		scene.SceneID, scene.Split, strings.Join(scene.Tags, ","), string(payload))
	return err
}

// ListScenes returns scenes matching the filter, ordered by scene id.
func (s *Store) ListScenes(ctx context.Context, filter record.SceneFilter) ([]record.Scene, error) {
	query := `SELECT payload, tags FROM scenes`
	var conds []string
	var args []interface{}

	if filter.Split != "" {
		conds = append(conds, `split = ?`)
		args = append(args, filter.Split)
	}
	if len(filter.SceneIDs) > 0 {
		placeholders := strings.Repeat("?,", len(filter.SceneIDs))
		conds = append(conds, fmt.Sprintf(`scene_id IN (%s)`, placeholders[:len(placeholders)-1]))
		for _, id := range filter.SceneIDs {
			args = append(args, id)
		}
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY scene_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenes []record.Scene
	for rows.Next() {
		var payload, tags string
		if err := rows.Scan(&payload, &tags); err != nil {
			return nil, err
		}
		if len(filter.Tags) > 0 && !hasAnyTag(tags, filter.Tags) {
			continue
		}
		var scene record.Scene
		if err := json.Unmarshal([]byte(payload), &scene); err != nil {
			return nil, fmt.Errorf("store: corrupt scene payload: %w", err)
		}
		scenes = append(scenes, scene)
	}
	return scenes, rows.Err()
}

// hasAnyTag reports whether the stored comma-joined tag list contains at
// least one of the wanted tags.
func hasAnyTag(stored string, wanted []string) bool {
	if stored == "" {
		return false
	}
	have := make(map[string]bool)
	for _, t := range strings.Split(stored, ",") {
		have[strings.TrimSpace(t)] = true
	}
	for _, w := range wanted {
		if have[w] {
			return true
		}
	}
	return false
}

// CreateExperiment inserts a new experiment in draft status.
func (s *Store) CreateExperiment(ctx context.Context, exp record.Experiment) error {
	filterJSON, err := json.Marshal(exp.SceneFilter)
	if err != nil {
		return fmt.Errorf("store: marshal scene filter: %w", err)
	}
	status := exp.Status
	if status == "" {
		status = record.ExperimentDraft
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, name, config, conditions, scene_filter, status) VALUES (?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Config, strings.Join(exp.Conditions, ","), string(filterJSON), status)
	return err
}

// GetExperiment loads one experiment by id.
func (s *Store) GetExperiment(ctx context.Context, id string) (*record.Experiment, error) {
	var exp record.Experiment
	var conditions, filterJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, config, conditions, scene_filter, status FROM experiments WHERE id = ?`,
		id).Scan(&exp.ID, &exp.Name, &exp.Config, &conditions, &filterJSON, &exp.Status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("store: experiment not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if conditions != "" {
		exp.Conditions = strings.Split(conditions, ",")
	}
	if err := json.Unmarshal([]byte(filterJSON), &exp.SceneFilter); err != nil {
		return nil, fmt.Errorf("store: corrupt scene filter: %w", err)
	}
	return &exp, nil
}

// SetExperimentStatus updates the status column.
func (s *Store) SetExperimentStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("store: experiment not found: %s", id)
	}
	return nil
}

// AppendRun persists one run record. Re-appending the same
// (runId, sampleId, condition) triple replaces the previous row, so the
// operation is idempotent.
func (s *Store) AppendRun(ctx context.Context, rec record.RunRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal run %s: %w", rec.Key(), err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, sample_id, condition, status, overall, payload) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.SampleID, rec.Condition, rec.Status, rec.Scores.Overall, string(payload))
	return err
}

// ListRuns returns every run record for an experiment's run id.
func (s *Store) ListRuns(ctx context.Context, runID string) ([]record.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM runs WHERE run_id = ? ORDER BY sample_id, condition`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []record.RunRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec record.RunRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("store: corrupt run payload: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteRunsForExperiment removes all runs recorded under the run id.
func (s *Store) DeleteRunsForExperiment(ctx context.Context, runID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteExperiment removes the experiment and cascades to its runs.
func (s *Store) DeleteExperiment(ctx context.Context, id string) error {
	if _, err := s.DeleteRunsForExperiment(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}
