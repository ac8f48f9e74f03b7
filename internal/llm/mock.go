package llm

import (
	"context"
	"strings"
)

// MockProvider is a deterministic, network-free provider for tests and dry
// runs. It echoes the last user message with Japanese punctuation replaced
// by ASCII equivalents.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) ID() string { return "mock" }

// Each replacement appends a space so that sentence boundaries survive the
// substitution; the whitespace collapse below removes any doubling.
var punctReplacer = strings.NewReplacer(
	"。", ". ",
	"、", ", ",
	"！", "! ",
	"？", "? ",
)

func (p *MockProvider) Complete(_ context.Context, req Request) (*Response, error) {
	var last string
	for _, m := range req.Messages {
		if m.Role == "user" {
			last = m.Content
		}
	}

	out := punctReplacer.Replace(last)
	out = strings.Join(strings.Fields(out), " ")

	promptRunes := 0
	for _, m := range req.Messages {
		promptRunes += len([]rune(m.Content))
	}
	usage := Usage{
		PromptTokens:     promptRunes/4 + 1,
		CompletionTokens: len([]rune(out))/4 + 1,
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return &Response{Output: out, Usage: usage}, nil
}
