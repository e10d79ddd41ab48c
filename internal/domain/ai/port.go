package ai

import "context"

// Request is a single completion call. Temperature is clamped by the caller.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
}

// Client port for LLM providers. Implementations return errors that
// IsTransient can classify.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// ClampTemperature keeps temperature within [0, 1].
func ClampTemperature(t float32) float32 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
