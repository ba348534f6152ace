package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// DefaultOllamaURL is used when no base URL is configured.
const DefaultOllamaURL = "http://127.0.0.1:11434"

// Ollama streams fragments from an Ollama server.
type Ollama struct {
	client  *api.Client
	model   string
	options map[string]any
}

// NewOllama builds an Ollama source. options are passed through as model
// options (e.g. temperature, num_predict).
func NewOllama(baseURL, model string, options map[string]any, hc *http.Client) (*Ollama, error) {
	if strings.TrimSpace(model) == "" {
		return nil, ErrUnavailable("ollama: model is required")
	}
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ollama: parse base url: %w", err)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Ollama{client: api.NewClient(u, hc), model: model, options: options}, nil
}

// Load checks that the server answers and the model is available.
func (o *Ollama) Load(ctx context.Context) error {
	if err := o.client.Heartbeat(ctx); err != nil {
		return ErrUnavailable("ollama: server unreachable: " + err.Error())
	}
	if _, err := o.client.Show(ctx, &api.ShowRequest{Model: o.model}); err != nil {
		return ErrUnavailable("ollama: model " + o.model + ": " + err.Error())
	}
	return nil
}

// Submit streams a generate call.
func (o *Ollama) Submit(ctx context.Context, prompt string, onFragment func(string)) error {
	stream := true
	req := &api.GenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  &stream,
		Options: o.options,
	}
	err := o.client.Generate(ctx, req, func(r api.GenerateResponse) error {
		if r.Response != "" {
			onFragment(r.Response)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("ollama generate: %w", err)
	}
	return err
}
