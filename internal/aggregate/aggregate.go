// Package aggregate summarizes run-log JSONL files into per-(runId,
// condition) rows and extracts failing records for review.
package aggregate

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/valpere/perebench/internal/record"
)

// Row is one summary line of the aggregate output.
type Row struct {
	RunID          string  `json:"runId"`
	Condition      string  `json:"condition"`
	Samples        int     `json:"samples"`
	AvgOverall     float64 `json:"avgOverall"`
	MinOverall     float64 `json:"minOverall"`
	MaxOverall     float64 `json:"maxOverall"`
	FailureRate    float64 `json:"failureRate"`
	CriticalIssues int     `json:"criticalIssues"`
}

// ReadRuns loads every run record matched by the glob patterns.
func ReadRuns(globs []string) ([]record.RunRecord, error) {
	var paths []string
	for _, g := range globs {
		matched, err := filepath.Glob(g)
		if err != nil {
			return nil, fmt.Errorf("aggregate: bad glob %q: %w", g, err)
		}
		paths = append(paths, matched...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("aggregate: no files matched")
	}
	sort.Strings(paths)

	var recs []record.RunRecord
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("aggregate: open %s: %w", path, err)
		}
		fileRecs, err := parseRuns(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("aggregate: %s: %w", path, err)
		}
		recs = append(recs, fileRecs...)
	}
	return recs, nil
}

func parseRuns(r io.Reader) ([]record.RunRecord, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var recs []record.RunRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec record.RunRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		recs = append(recs, rec)
	}
	return recs, scanner.Err()
}

// Summarize groups records by (runId, condition) and computes the summary
// rows, ordered by run id then condition.
func Summarize(recs []record.RunRecord) []Row {
	type acc struct {
		count    int
		sum      float64
		min      float64
		max      float64
		failures int
		critical int
	}
	groups := make(map[string]*acc)
	keys := make(map[string][2]string)

	for _, rec := range recs {
		key := rec.RunID + "\x00" + rec.Condition
		a, ok := groups[key]
		if !ok {
			a = &acc{min: 1, max: 0}
			groups[key] = a
			keys[key] = [2]string{rec.RunID, rec.Condition}
		}
		a.count++
		overall := rec.Scores.Overall
		a.sum += overall
		if overall < a.min {
			a.min = overall
		}
		if overall > a.max {
			a.max = overall
		}
		if rec.Status != record.StatusOK {
			a.failures++
		}
		for _, issue := range rec.Issues {
			if issue.Severity == record.SeverityCritical {
				a.critical++
			}
		}
	}

	rows := make([]Row, 0, len(groups))
	for key, a := range groups {
		rows = append(rows, Row{
			RunID:          keys[key][0],
			Condition:      keys[key][1],
			Samples:        a.count,
			AvgOverall:     a.sum / float64(a.count),
			MinOverall:     a.min,
			MaxOverall:     a.max,
			FailureRate:    float64(a.failures) / float64(a.count),
			CriticalIssues: a.critical,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RunID != rows[j].RunID {
			return rows[i].RunID < rows[j].RunID
		}
		return rows[i].Condition < rows[j].Condition
	})
	return rows
}

// WriteRows emits the rows as JSON (an array) or CSV with a header.
func WriteRows(w io.Writer, rows []Row, format string) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"runId", "condition", "samples", "avgOverall", "minOverall", "maxOverall", "failureRate", "criticalIssues"}); err != nil {
			return err
		}
		for _, row := range rows {
			if err := cw.Write([]string{
				row.RunID,
				row.Condition,
				strconv.Itoa(row.Samples),
				formatFloat(row.AvgOverall),
				formatFloat(row.MinOverall),
				formatFloat(row.MaxOverall),
				formatFloat(row.FailureRate),
				strconv.Itoa(row.CriticalIssues),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("aggregate: unknown format %q", format)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// ExtractFailures copies records needing review or scoring under the
// threshold, one JSONL line each.
func ExtractFailures(w io.Writer, recs []record.RunRecord, threshold float64) (int, error) {
	bw := bufio.NewWriter(w)
	n := 0
	for _, rec := range recs {
		if rec.Status == record.StatusOK && rec.Scores.Overall >= threshold {
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return n, fmt.Errorf("aggregate: marshal %s: %w", rec.Key(), err)
		}
		if _, err := bw.Write(append(data, '\n')); err != nil {
			return n, err
		}
		n++
	}
	return n, bw.Flush()
}
