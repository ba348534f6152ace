package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini streams fragments from the Google Gemini API.
type Gemini struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int32
	temperature float32

	mu     sync.Mutex
	client *genai.Client
}

// NewGemini builds a source. The client is created in Load.
func NewGemini(baseURL, apiKey, model string, maxTokens int, temperature float64) (*Gemini, error) {
	if strings.TrimSpace(model) == "" {
		return nil, ErrUnavailable("gemini: model is required")
	}
	if apiKey == "" {
		return nil, ErrUnavailable("gemini: api key is required")
	}
	return &Gemini{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: float32(temperature),
	}, nil
}

// Load creates the API client.
func (g *Gemini) Load(ctx context.Context) error {
	opts := []option.ClientOption{option.WithAPIKey(g.apiKey)}
	if g.baseURL != "" {
		opts = append(opts, option.WithEndpoint(g.baseURL))
	}
	c, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return ErrUnavailable("gemini: " + err.Error())
	}
	g.mu.Lock()
	g.client = c
	g.mu.Unlock()
	return nil
}

// Submit streams a single-turn generation.
func (g *Gemini) Submit(ctx context.Context, prompt string, onFragment func(string)) error {
	g.mu.Lock()
	c := g.client
	g.mu.Unlock()
	if c == nil {
		return ErrUnavailable("gemini: not loaded")
	}
	m := c.GenerativeModel(g.model)
	if g.maxTokens > 0 {
		m.SetMaxOutputTokens(g.maxTokens)
	}
	if g.temperature > 0 {
		m.SetTemperature(g.temperature)
	}
	it := m.GenerateContentStream(ctx, genai.Text(prompt))
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gemini stream: %w", err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, p := range cand.Content.Parts {
				if t, ok := p.(genai.Text); ok && t != "" {
					onFragment(string(t))
				}
			}
		}
	}
}

// Close releases the API client.
func (g *Gemini) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}
