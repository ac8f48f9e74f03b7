package llm

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements Provider using the OpenAI SDK.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider builds the provider from OPENAI_API_KEY. A missing key
// is a configuration error surfaced at construction, before any run starts.
func NewOpenAIProvider() (*OpenAIProvider, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: OPENAI_API_KEY environment variable not set")
	}
	return &OpenAIProvider{client: openai.NewClient(option.WithAPIKey(apiKey))}, nil
}

func (p *OpenAIProvider) ID() string { return "openai" }

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model.Name),
	}

	maxTokens := req.Options.MaxOutputTokens
	if maxTokens == 0 {
		maxTokens = req.Model.MaxOutputTokens
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	if req.Options.Temperature != nil {
		params.Temperature = openai.Float(*req.Options.Temperature)
	} else if req.Model.Temperature != nil {
		params.Temperature = openai.Float(*req.Model.Temperature)
	}
	if req.Model.TopP != nil {
		params.TopP = openai.Float(*req.Model.TopP)
	}

	if req.Options.ResponseFormat == FormatJSON || req.Model.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case "assistant":
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, &Error{Provider: p.ID(), Status: apierr.StatusCode, Body: apierr.Error(), Err: err}
		}
		return nil, &Error{Provider: p.ID(), Err: err}
	}

	if len(resp.Choices) == 0 {
		return nil, &Error{Provider: p.ID(), Err: fmt.Errorf("response contained no choices")}
	}

	return &Response{
		Output: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Raw: []byte(resp.RawJSON()),
	}, nil
}
