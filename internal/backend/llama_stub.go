//go:build !llama

package backend

// This file provides a no-CGO stub for the llama source. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.

import "context"

const llamaBuilt = false

const llamaMissing = "llama support not built (missing 'llama' build tag)"

// Llama is a stub that refuses to load without the 'llama' build tag.
type Llama struct{}

// NewLlama returns the stub source.
func NewLlama(path string, ctxSize int, params LlamaParams) *Llama { return &Llama{} }

// Load always fails so the engine never becomes ready.
func (l *Llama) Load(ctx context.Context) error { return ErrUnavailable(llamaMissing) }

// Submit should never run because Load fails, but reports clearly anyway.
func (l *Llama) Submit(ctx context.Context, prompt string, onFragment func(string)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrUnavailable(llamaMissing)
}

// Close is a no-op.
func (l *Llama) Close() error { return nil }
