// Package llm is the sole doorway to model providers. It layers an on-disk
// response cache and a sliding-window rate limiter over pluggable provider
// implementations behind a single request/response contract.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Response formats accepted by Options.ResponseFormat.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// DefaultTokenCost is the upper-bound token cost charged to the rate
// limiter when a request does not set MaxOutputTokens.
const DefaultTokenCost = 512

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelSpec selects a provider and model plus its sampling parameters.
type ModelSpec struct {
	Provider        string   `json:"provider" mapstructure:"provider"`
	Name            string   `json:"name" mapstructure:"name"`
	Temperature     *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	TopP            *float64 `json:"topP,omitempty" mapstructure:"topP"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty" mapstructure:"maxOutputTokens"`
	JSONMode        bool     `json:"jsonMode,omitempty" mapstructure:"jsonMode"`
}

// Options carries per-call sampling overrides.
type Options struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	ResponseFormat  string   `json:"responseFormat,omitempty"` // text or json
}

// Request is the provider-independent completion request.
type Request struct {
	Model    ModelSpec `json:"model"`
	Messages []Message `json:"messages"`
	Options  Options   `json:"options"`
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int `json:"prompt"`
	CompletionTokens int `json:"completion"`
	TotalTokens      int `json:"total"`
}

// Add accumulates another usage sample into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Response is the provider-independent completion response. Raw preserves
// the provider payload for debugging; it is never interpreted downstream.
type Response struct {
	Output string          `json:"output"`
	Usage  Usage           `json:"usage"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Provider is the interface every model backend implements. A new backend
// only adds a new implementation; callers go through the Gateway.
type Provider interface {
	ID() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Error is a typed provider failure carrying the HTTP status and body when
// available. The gateway never retries; retry policy belongs to the caller.
type Error struct {
	Provider string
	Status   int
	Body     string
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("llm: %s returned status %d: %s", e.Provider, e.Status, e.Body)
	}
	return fmt.Sprintf("llm: %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewProvider constructs a provider by name. Supported: mock, openai.
func NewProvider(name string) (Provider, error) {
	switch name {
	case "mock":
		return NewMockProvider(), nil
	case "openai":
		return NewOpenAIProvider()
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
}
