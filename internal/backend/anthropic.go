package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 1024

// Anthropic streams fragments from the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropic builds a source. An empty apiKey falls back to ANTHROPIC_API_KEY.
func NewAnthropic(baseURL, apiKey, model string, maxTokens int64) (*Anthropic, error) {
	if strings.TrimSpace(model) == "" {
		return nil, ErrUnavailable("anthropic: model is required")
	}
	var opts []option.RequestOption
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
	}, nil
}

// Load is a no-op; credentials are checked on first use.
func (a *Anthropic) Load(ctx context.Context) error { return ctx.Err() }

// Submit streams a single-turn message.
func (a *Anthropic) Submit(ctx context.Context, prompt string, onFragment func(string)) error {
	stream := a.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	defer stream.Close()
	for stream.Next() {
		ev, ok := stream.Current().AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		if td, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && td.Text != "" {
			onFragment(td.Text)
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("anthropic streaming: %w", err)
	}
	return nil
}
