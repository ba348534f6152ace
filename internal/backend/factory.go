package backend

import (
	"fmt"
	"strings"
	"time"

	"analysisd/internal/registry"
)

// LlamaParams are sampling parameters for the in-process engine.
type LlamaParams struct {
	MaxTokens     int
	Threads       int
	TopK          int
	TopP          float32
	Temperature   float32
	RepeatPenalty float32
	Seed          int
	Stop          []string
}

// Config selects and configures an engine.
type Config struct {
	Kind string
	// Model is the model name for remote engines, or the preferred file for
	// llama when ModelPath is a directory.
	Model     string
	ModelPath string
	BaseURL   string
	APIKey    string
	// ContextSize is the llama context window.
	ContextSize int
	MaxTokens   int
	Temperature float64
	Threads     int
	// Script settings for the script engine.
	ScriptFragments []string
	ScriptDelay     time.Duration
}

// New builds the Source named by cfg.Kind.
func New(cfg Config) (Source, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindLlama:
		if !llamaBuilt {
			return NewLlama("", 0, LlamaParams{}), nil
		}
		mdl, err := registry.Resolve(cfg.ModelPath, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("llama: %w", err)
		}
		return NewLlama(mdl.Path, cfg.ContextSize, LlamaParams{
			MaxTokens:   cfg.MaxTokens,
			Threads:     cfg.Threads,
			Temperature: float32(cfg.Temperature),
		}), nil
	case KindOllama:
		var opts map[string]any
		if cfg.MaxTokens > 0 || cfg.Temperature > 0 {
			opts = map[string]any{}
			if cfg.MaxTokens > 0 {
				opts["num_predict"] = cfg.MaxTokens
			}
			if cfg.Temperature > 0 {
				opts["temperature"] = cfg.Temperature
			}
		}
		return NewOllama(cfg.BaseURL, cfg.Model, opts, nil)
	case KindOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, int64(cfg.MaxTokens), cfg.Temperature)
	case KindAnthropic:
		return NewAnthropic(cfg.BaseURL, cfg.APIKey, cfg.Model, int64(cfg.MaxTokens))
	case KindGemini:
		return NewGemini(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature)
	case KindScript, "":
		return &Script{Fragments: append([]string(nil), cfg.ScriptFragments...), Delay: cfg.ScriptDelay}, nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}
