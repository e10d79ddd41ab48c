package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bryanwahyu/tor-evaluator/internal/domain/ai"
)

const (
	provider         = "anthropic"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 2000
)

// error types reported in the response body, most specific first
var errorTypes = []string{
	"overloaded_error",
	"rate_limit_error",
	"timeout_error",
	"api_error",
	"authentication_error",
	"permission_error",
	"not_found_error",
	"invalid_request_error",
}

// Client implements ai.Client on the Anthropic Messages API.
type Client struct {
	api   anthropic.Client
	Model string
}

// NewClient disables SDK retries; the orchestrator owns the retry policy.
func NewClient(apiKey, model, baseURL string) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")))
	}
	return &Client{api: anthropic.NewClient(opts...), Model: model}
}

func (c *Client) Complete(ctx context.Context, in ai.Request) (string, error) {
	model := c.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(float64(ai.ClampTemperature(in.Temperature))),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(in.Prompt)),
		},
	}
	if in.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: in.SystemPrompt}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", classify(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	out := b.String()
	if strings.TrimSpace(out) == "" {
		return "", ai.Classify(provider, 0, "", ai.ErrEmptyCompletion)
	}
	return out, nil
}

func classify(err error) error {
	wrapped := fmt.Errorf("messages: %w", err)
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return ai.Classify(provider, apiErr.StatusCode, errorType(apiErr.Error()), wrapped)
	}
	return ai.Classify(provider, 0, "", wrapped)
}

func errorType(msg string) string {
	for _, t := range errorTypes {
		if strings.Contains(msg, t) {
			return t
		}
	}
	return ""
}
