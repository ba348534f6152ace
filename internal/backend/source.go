// Package backend connects analysisd to inference engines. Every engine is
// exposed as a Source that streams text fragments for a prompt; the engine
// lifecycle (load once, then serve) is tracked by Host.
//
// Engines:
//
//   - llama:     in-process llama.cpp via go-llama.cpp. Build with `-tags=llama`;
//     without the tag a stub reports the dependency as unavailable.
//   - ollama:    a local or remote Ollama server (streaming /api/generate).
//   - openai:    any OpenAI-compatible chat completions endpoint (llama-server, vLLM, OpenAI).
//   - anthropic: the Anthropic Messages API.
//   - gemini:    the Google Gemini API.
//   - script:    canned fragments with a fixed delay, for demos and tests.
package backend

import "context"

// Engine kinds accepted by New.
const (
	KindLlama     = "llama"
	KindOllama    = "ollama"
	KindOpenAI    = "openai"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
	KindScript    = "script"
)

// Source is an inference engine that streams fragments.
type Source interface {
	// Load prepares the engine. It is called once, off the request path.
	Load(ctx context.Context) error
	// Submit runs prompt and calls onFragment for every piece of generated text,
	// from the calling goroutine. It returns when the engine stops or ctx is
	// canceled. Returning carries no completion meaning.
	Submit(ctx context.Context, prompt string, onFragment func(string)) error
}

// unavailableError signals a missing or misconfigured engine dependency.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

// ErrUnavailable constructs an unavailableError.
func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

// IsUnavailable reports whether err indicates a missing engine dependency.
func IsUnavailable(err error) bool {
	_, ok := err.(unavailableError)
	return ok
}
