//go:build llama

package backend

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
const llamaBuilt = true

// Llama runs a GGUF model in-process.
type Llama struct {
	path    string
	ctxSize int
	params  LlamaParams

	// mu serializes Predict; a superseded request stops at its next token.
	mu    sync.Mutex
	model *llama.LLama
}

// NewLlama returns an unloaded in-process source for the model at path.
func NewLlama(path string, ctxSize int, params LlamaParams) *Llama {
	return &Llama{path: path, ctxSize: ctxSize, params: params}
}

// Load reads the model into memory.
func (l *Llama) Load(ctx context.Context) error {
	if strings.TrimSpace(l.path) == "" {
		return errors.New("model path is empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := llama.New(l.path, llama.SetContext(zn(l.ctxSize, 2048)))
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.model = m
	l.mu.Unlock()
	return nil
}

// Submit predicts and forwards every token. The token callback returns false
// once ctx is canceled, which stops generation.
func (l *Llama) Submit(ctx context.Context, prompt string, onFragment func(string)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model == nil {
		return errors.New("llama model not initialized")
	}
	l.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		onFragment(tok)
		return true
	})
	_, err := l.model.Predict(prompt, predictOptions(l.params)...)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close frees the model.
func (l *Llama) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		l.model.Free()
		l.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

func predictOptions(p LlamaParams) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(zn(p.MaxTokens, 256)),
		llama.SetThreads(zn(p.Threads, 1)),
		llama.SetTopP(zf(p.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(p.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(p.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(p.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
	if p.Seed != 0 {
		po = append(po, llama.SetSeed(p.Seed))
	}
	if len(p.Stop) > 0 {
		po = append(po, llama.SetStopWords(p.Stop...))
	}
	return po
}
