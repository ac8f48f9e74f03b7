// Package dataset reads evaluation samples from JSONL files: one sample
// per line, `id` and `ja.text` required.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/valpere/perebench/internal/constraint"
	"github.com/valpere/perebench/internal/record"
)

// line is the wire shape of one dataset entry.
type line struct {
	ID string `json:"id"`
	JA struct {
		Text    string `json:"text"`
		Context string `json:"context"`
	} `json:"ja"`
	Constraints constraint.Partial `json:"constraints"`
	Reference   struct {
		EN string `json:"en"`
	} `json:"reference"`
}

// Parse decodes samples from r. Blank lines are skipped; any malformed or
// incomplete line fails the whole parse with its line number.
func Parse(r io.Reader) ([]record.Sample, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var samples []record.Sample
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var l line
		if err := json.Unmarshal([]byte(text), &l); err != nil {
			return nil, fmt.Errorf("dataset: line %d: %w", lineNo, err)
		}
		if l.ID == "" {
			return nil, fmt.Errorf("dataset: line %d: missing id", lineNo)
		}
		if l.JA.Text == "" {
			return nil, fmt.Errorf("dataset: line %d (%s): missing ja.text", lineNo, l.ID)
		}

		samples = append(samples, record.Sample{
			SampleID:    l.ID,
			SourceText:  l.JA.Text,
			Context:     l.JA.Context,
			Constraints: l.Constraints,
			ReferenceEN: l.Reference.EN,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: scan: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("dataset: no samples found")
	}
	return samples, nil
}

// ReadFile loads samples from a JSONL file.
func ReadFile(path string) ([]record.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// DefaultContextWords is the sliding-window size used when deriving context
// from raw preceding text.
const DefaultContextWords = 25

// ContextWindow returns the last wordCount words of text joined by single
// spaces, for use as the preceding-context snippet of an ad-hoc sample.
// Text of wordCount words or fewer is returned trimmed, with its own
// spacing and line breaks kept.
func ContextWindow(text string, wordCount int) string {
	if wordCount <= 0 {
		wordCount = DefaultContextWords
	}
	words := strings.Fields(text)
	if len(words) <= wordCount {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[len(words)-wordCount:], " ")
}
