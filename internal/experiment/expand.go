package experiment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/valpere/perebench/internal/record"
)

// contextSegments is how many preceding segments feed each sample's
// sliding-window context.
const contextSegments = 2

// ExpandScenes fans scenes out into samples: one sample per segment, in
// time-index order, with the rendered context of the preceding segments
// and the scene constraints pinned to the scene's target language.
func ExpandScenes(scenes []record.Scene) []record.Sample {
	var samples []record.Sample
	for _, scene := range scenes {
		samples = append(samples, expandScene(scene)...)
	}
	return samples
}

func expandScene(scene record.Scene) []record.Sample {
	segments := append([]record.Segment{}, scene.Segments...)
	sort.Slice(segments, func(i, j int) bool { return segments[i].T < segments[j].T })

	cons := scene.Constraints
	if scene.LangTgt != "" {
		cons.TargetLang = scene.LangTgt
	}

	samples := make([]record.Sample, 0, len(segments))
	for i, seg := range segments {
		start := i - contextSegments
		if start < 0 {
			start = 0
		}
		var lines []string
		for _, prev := range segments[start:i] {
			lines = append(lines, renderSegment(prev))
		}

		samples = append(samples, record.Sample{
			SampleID:    fmt.Sprintf("%s:%d", scene.SceneID, seg.T),
			SourceText:  seg.Text,
			Context:     strings.Join(lines, "\n"),
			Constraints: cons,
		})
	}
	return samples
}

// renderSegment formats one context line as "[kind] speaker: text". The
// kind prefix is omitted for dialogue and the speaker prefix when the
// speaker is unknown.
func renderSegment(seg record.Segment) string {
	var sb strings.Builder
	if seg.Kind != "" && seg.Kind != "dialogue" {
		fmt.Fprintf(&sb, "[%s] ", seg.Kind)
	}
	if seg.Speaker != "" {
		fmt.Fprintf(&sb, "%s: ", seg.Speaker)
	}
	sb.WriteString(seg.Text)
	return sb.String()
}
