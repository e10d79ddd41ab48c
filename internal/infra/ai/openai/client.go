package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/tor-evaluator/internal/domain/ai"
)

const (
	provider         = "openai"
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 2000
)

// Client implements ai.Client on the OpenAI chat completions API.
type Client struct {
	api   *openai.Client
	Model string
}

// NewClient builds a client. baseURL is optional and mainly used for
// compatible gateways and tests.
func NewClient(apiKey, model, baseURL string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &Client{api: openai.NewClientWithConfig(cfg), Model: model}
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
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

	var messages []openai.ChatCompletionMessage
	if in.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: in.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: in.Prompt})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens and the
	// default temperature
	if isReasoningModel(model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
		req.Temperature = ai.ClampTemperature(in.Temperature)
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ai.Classify(provider, 0, "", ai.ErrEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Type
		if s, ok := apiErr.Code.(string); ok && s != "" {
			code = s
		}
		return ai.Classify(provider, apiErr.HTTPStatusCode, code, fmt.Errorf("chat completion: %w", err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return ai.Classify(provider, reqErr.HTTPStatusCode, "", fmt.Errorf("chat completion: %w", err))
	}
	return ai.Classify(provider, 0, "", fmt.Errorf("chat completion: %w", err))
}
