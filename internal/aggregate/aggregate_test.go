package aggregate

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/perebench/internal/record"
)

func rec(runID, sampleID, cond, status string, overall float64, critical int) record.RunRecord {
	r := record.RunRecord{
		RunID:     runID,
		SampleID:  sampleID,
		Condition: cond,
		Status:    status,
		Scores:    record.ScoreBreakdown{Overall: overall},
	}
	for i := 0; i < critical; i++ {
		r.Issues = append(r.Issues, record.Issue{ID: "x", Type: record.IssueOther, Severity: record.SeverityCritical, Rationale: "r"})
	}
	return r
}

func TestSummarize(t *testing.T) {
	recs := []record.RunRecord{
		rec("r1", "s1", "A0", record.StatusOK, 0.9, 0),
		rec("r1", "s2", "A0", record.StatusNeedsReview, 0.5, 1),
		rec("r1", "s1", "A2", record.StatusOK, 0.7, 0),
	}

	rows := Summarize(recs)
	require.Len(t, rows, 2)

	a0 := rows[0]
	assert.Equal(t, "A0", a0.Condition)
	assert.Equal(t, 2, a0.Samples)
	assert.InDelta(t, 0.7, a0.AvgOverall, 1e-9)
	assert.InDelta(t, 0.5, a0.MinOverall, 1e-9)
	assert.InDelta(t, 0.9, a0.MaxOverall, 1e-9)
	assert.InDelta(t, 0.5, a0.FailureRate, 1e-9)
	assert.Equal(t, 1, a0.CriticalIssues)

	a2 := rows[1]
	assert.Equal(t, "A2", a2.Condition)
	assert.Equal(t, 1, a2.Samples)
	assert.Zero(t, a2.CriticalIssues)
}

func TestWriteRows_CSV(t *testing.T) {
	rows := Summarize([]record.RunRecord{rec("r1", "s1", "A0", record.StatusOK, 0.9, 0)})

	var buf bytes.Buffer
	require.NoError(t, WriteRows(&buf, rows, "csv"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "runId,condition,samples,avgOverall,minOverall,maxOverall,failureRate,criticalIssues", lines[0])
	assert.Equal(t, "r1,A0,1,0.9000,0.9000,0.9000,0.0000,0", lines[1])
}

func TestWriteRows_JSON(t *testing.T) {
	rows := Summarize([]record.RunRecord{rec("r1", "s1", "A0", record.StatusOK, 0.9, 0)})

	var buf bytes.Buffer
	require.NoError(t, WriteRows(&buf, rows, "json"))

	var decoded []Row
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "r1", decoded[0].RunID)
}

func TestWriteRows_UnknownFormat(t *testing.T) {
	assert.Error(t, WriteRows(&bytes.Buffer{}, nil, "xml"))
}

func TestExtractFailures(t *testing.T) {
	recs := []record.RunRecord{
		rec("r1", "s1", "A0", record.StatusOK, 0.95, 0),
		rec("r1", "s2", "A0", record.StatusNeedsReview, 0.95, 0),
		rec("r1", "s3", "A0", record.StatusOK, 0.5, 0),
		rec("r1", "s4", "A0", record.StatusError, 0.0, 1),
	}

	var buf bytes.Buffer
	n, err := ExtractFailures(&buf, recs, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "needs_review, low-scoring, and errored records are extracted")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	var first record.RunRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "s2", first.SampleID)
}

func TestReadRuns_Globs(t *testing.T) {
	dir := t.TempDir()

	writeJSONL := func(name string, recs []record.RunRecord) {
		var buf bytes.Buffer
		for _, r := range recs {
			data, err := json.Marshal(r)
			require.NoError(t, err)
			buf.Write(data)
			buf.WriteByte('\n')
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0644))
	}

	writeJSONL("run-a.jsonl", []record.RunRecord{rec("r1", "s1", "A0", record.StatusOK, 0.9, 0)})
	writeJSONL("run-b.jsonl", []record.RunRecord{rec("r2", "s1", "A0", record.StatusOK, 0.8, 0)})

	recs, err := ReadRuns([]string{filepath.Join(dir, "*.jsonl")})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = ReadRuns([]string{filepath.Join(dir, "*.nothing")})
	assert.Error(t, err)
}
