package llm

import (
	"context"
	"fmt"
)

type Message struct {
	Role    string
	Content string
}

// StreamEvent is one token (or terminal error) from a streaming
// completion. The channel Stream returns is closed after the final event;
// an event with a non-nil Err is always the last event sent.
type StreamEvent struct {
	Delta string
	Err   error
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)

	// Stream opens a streaming completion request. Tokens are arbitrary
	// substrings concatenating to the full response. Canceling ctx must
	// close the underlying HTTP stream promptly and terminate the
	// returned channel without further sends.
	Stream(ctx context.Context, messages []Message) (<-chan StreamEvent, error)
}

// DefaultMaxTokens bounds assistant replies to keep spoken-response
// latency low (~150 tokens).
const DefaultMaxTokens = 150

type Option func(*clientOptions)

type clientOptions struct {
	baseURL   string
	maxTokens int
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithMaxTokens overrides DefaultMaxTokens.
func WithMaxTokens(n int) Option {
	return func(o *clientOptions) {
		o.maxTokens = n
	}
}

func (o *clientOptions) maxTokensOrDefault() int {
	if o.maxTokens > 0 {
		return o.maxTokens
	}
	return DefaultMaxTokens
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}
