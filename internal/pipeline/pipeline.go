// Package pipeline implements the five per-sample stages: state building,
// translation, verification, repair, and judging. Stages share the llm
// gateway and the prompt resolver; each is usable without an LLM, falling
// back to deterministic heuristics where the stage contract allows it.
package pipeline

import (
	"context"
	"encoding/json"

	"github.com/valpere/perebench/internal/llm"
	"github.com/valpere/perebench/internal/prompt"
)

// Stage names as they appear in run-record timings and prompt dumps.
const (
	StageState     = "state"
	StageTranslate = "translate"
	StageVerify    = "verify"
	StageRepair    = "repair"
	StageJudge     = "judge"
)

// component bundles what every LLM-backed stage needs: the gateway, the
// model spec, and the resolved prompt. A nil gateway means the stage runs
// in heuristic mode.
type component struct {
	gw       *llm.Gateway
	model    llm.ModelSpec
	resolved *prompt.Resolved
}

func (c *component) hasLLM() bool { return c != nil && c.gw != nil }

// call renders nothing itself; it sends the prepared messages through the
// gateway with the component's sampling parameters. Artifact params fill in
// whatever the component model leaves unset.
func (c *component) call(ctx context.Context, messages []llm.Message, format string) (*llm.Response, error) {
	opts := llm.Options{ResponseFormat: format}
	if c.resolved != nil {
		if c.model.Temperature == nil && c.resolved.Params.Temperature != nil {
			opts.Temperature = c.resolved.Params.Temperature
		}
		if c.model.MaxOutputTokens == 0 && c.resolved.Params.MaxOutputTokens > 0 {
			opts.MaxOutputTokens = c.resolved.Params.MaxOutputTokens
		}
	}
	return c.gw.Complete(ctx, llm.Request{Model: c.model, Messages: messages, Options: opts})
}

// messages assembles system + few-shots + user into the request message
// list. Empty system prompts are omitted.
func (c *component) messages(system, user string) []llm.Message {
	var msgs []llm.Message
	if system != "" {
		msgs = append(msgs, llm.Message{Role: "system", Content: system})
	}
	if c.resolved != nil {
		for _, fs := range c.resolved.FewShots {
			role := fs.Role
			if role == "" {
				role = "user"
			}
			msgs = append(msgs, llm.Message{Role: role, Content: fs.Content})
		}
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: user})
	return msgs
}

// template returns the configured template, or fallback when none resolved.
func (c *component) template(fallback string) string {
	if c.resolved != nil && c.resolved.Template != "" {
		return c.resolved.Template
	}
	return fallback
}

// systemPrompt returns the artifact/system prompt, or fallback.
func (c *component) systemPrompt(fallback string) string {
	if c.resolved != nil && c.resolved.System != "" {
		return c.resolved.System
	}
	return fallback
}

// promptReference names the prompt source for run-record provenance: the
// artifact id or file path, never the body.
func (c *component) promptReference() string {
	if c.resolved == nil {
		return ""
	}
	if c.resolved.Artifact != "" {
		return "artifact:" + c.resolved.Artifact
	}
	if c.resolved.SourcePath != "" {
		return "file:" + c.resolved.SourcePath
	}
	return ""
}

// prettyJSON renders v as indented JSON for prompt embedding, or the
// fallback string when v is nil or fails to marshal.
func prettyJSON(v any, fallback string) string {
	if v == nil {
		return fallback
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fallback
	}
	return string(data)
}

// clamp01 bounds a score dimension to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
