// Package llm provides LLM backend implementations.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicLLM is an LLM implementation backed by the official Anthropic SDK.
type AnthropicLLM struct {
	client    anthropic.Client
	maxTokens int64
}

// AnthropicOption configures the Anthropic client.
type AnthropicOption func(*anthropicConfig)

type anthropicConfig struct {
	apiKey    string
	baseURL   string
	maxTokens int64
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) AnthropicOption {
	return func(c *anthropicConfig) {
		c.apiKey = key
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) AnthropicOption {
	return func(c *anthropicConfig) {
		c.baseURL = url
	}
}

// WithMaxOutputTokens sets the default reply length cap.
func WithMaxOutputTokens(n int64) AnthropicOption {
	return func(c *anthropicConfig) {
		c.maxTokens = n
	}
}

// Default Anthropic configuration values
const (
	DefaultAnthropicModel     = "claude-sonnet-4-20250514"
	DefaultAnthropicMaxTokens = 8192
)

// NewAnthropic creates a new Anthropic backend. The API key defaults to
// the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(opts ...AnthropicOption) *AnthropicLLM {
	cfg := anthropicConfig{
		apiKey:    os.Getenv("ANTHROPIC_API_KEY"),
		maxTokens: DefaultAnthropicMaxTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &AnthropicLLM{
		client:    anthropic.NewClient(clientOpts...),
		maxTokens: cfg.maxTokens,
	}
}

// thinkingBudget maps a reasoning effort level onto a thinking token budget.
// Minimal effort disables extended thinking entirely.
func thinkingBudget(effort ReasoningEffort) int64 {
	switch effort {
	case EffortLow:
		return 2048
	case EffortMedium:
		return 8192
	case EffortHigh:
		return 32768
	default:
		return 0
	}
}

// GenerateStream sends a turn to the Messages API and streams the reply.
func (a *AnthropicLLM) GenerateStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	model := req.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := a.maxTokens
	if req.MaxOutputTokens > 0 {
		maxTokens = int64(req.MaxOutputTokens)
	}

	system := req.System
	if req.OutputSchema != nil {
		schemaJSON, err := json.Marshal(req.OutputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal output schema: %w", err)
		}
		// The Messages API has no response_format; constrain via the
		// system prompt instead.
		system += "\n\nRespond with a single JSON object conforming to this JSON Schema, with no surrounding prose:\n" + string(schemaJSON)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  convertMessages(req.Messages),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if budget := thinkingBudget(req.ReasoningEffort); budget > 0 {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	events := make(chan StreamEvent, 64)
	stream := a.client.Messages.NewStreaming(ctx, params)

	go func() {
		defer close(events)

		var inputTokens, outputTokens int
		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				start := event.AsMessageStart()
				inputTokens = int(start.Message.Usage.InputTokens)
				events <- StreamEvent{Type: StreamEventMessageStart}
			case "content_block_delta":
				delta := event.AsContentBlockDelta().Delta
				if delta.Type == "text_delta" && delta.Text != "" {
					events <- StreamEvent{Type: StreamEventContentDelta, Delta: delta.Text}
				}
			case "message_delta":
				delta := event.AsMessageDelta()
				if delta.Usage.OutputTokens > 0 {
					outputTokens = int(delta.Usage.OutputTokens)
				}
			case "message_stop":
				events <- StreamEvent{
					Type:         StreamEventMessageEnd,
					InputTokens:  inputTokens,
					OutputTokens: outputTokens,
				}
				return
			}
		}
		if err := stream.Err(); err != nil {
			events <- StreamEvent{Type: StreamEventError, Error: err}
			return
		}
		// Stream ended without message_stop; still report completion so
		// conversations can settle.
		events <- StreamEvent{
			Type:         StreamEventMessageEnd,
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
		}
	}()

	return events, nil
}

// convertMessages maps conversation history onto Anthropic message params.
func convertMessages(messages []Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(block))
		} else {
			result = append(result, anthropic.NewUserMessage(block))
		}
	}
	return result
}
