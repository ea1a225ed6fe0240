package oracle

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// anthropicClient adapts the Anthropic Messages API to the Client interface
// so the judge can run against either backend unchanged.
type anthropicClient struct {
	client sdk.Client
	model  string
}

// NewAnthropicClient creates an oracle client backed by the Anthropic SDK.
// If model is empty a current Sonnet model is used.
func NewAnthropicClient(apiKey, model string) Client {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &anthropicClient{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (c *anthropicClient) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	model := req.Model
	if model == "" || model == defaultModel {
		model = c.model
	}

	maxTokens := int64(4000)
	if req.MaxTokens != nil {
		maxTokens = int64(*req.MaxTokens)
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: maxTokens,
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	// System messages become system blocks; the rest map 1:1.
	for _, m := range req.Messages {
		block := sdk.NewTextBlock(m.Content)
		switch m.Role {
		case "system":
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, sdk.NewAssistantMessage(block))
		default:
			params.Messages = append(params.Messages, sdk.NewUserMessage(block))
		}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "oracle: anthropic create message")
	}

	var content string
	for _, b := range msg.Content {
		if b.Type == "" || b.Type == "text" {
			content += b.Text
		}
	}

	return &ChatCompletionResponse{
		ID: msg.ID,
		Choices: []Choice{{
			Message: Message{Role: "assistant", Content: content},
		}},
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}, nil
}
