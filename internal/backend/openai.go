package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI streams fragments from an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewOpenAI builds a source. An empty baseURL targets api.openai.com; an
// empty apiKey falls back to OPENAI_API_KEY as the SDK does.
func NewOpenAI(baseURL, apiKey, model string, maxTokens int64, temperature float64) (*OpenAI, error) {
	if strings.TrimSpace(model) == "" {
		return nil, ErrUnavailable("openai: model is required")
	}
	var opts []option.RequestOption
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

// Load is a no-op: compatible servers differ in which discovery endpoints they expose.
func (o *OpenAI) Load(ctx context.Context) error { return ctx.Err() }

// Submit streams a single-turn chat completion.
func (o *OpenAI) Submit(ctx context.Context, prompt string, onFragment func(string)) error {
	params := openai.ChatCompletionNewParams{
		Model:    o.model,
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if o.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(o.maxTokens)
	}
	if o.temperature > 0 {
		params.Temperature = openai.Float(o.temperature)
	}
	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	for stream.Next() {
		for _, ch := range stream.Current().Choices {
			if ch.Delta.Content != "" {
				onFragment(ch.Delta.Content)
			}
		}
	}
	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("openai streaming: %w", err)
	}
	return nil
}
