package backend

import (
	"context"
	"sync"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

// Engine lifecycle states.
const (
	StateUninitialized = "uninitialized"
	StateInitializing  = "initializing"
	StateReady         = "ready"
	StateFailed        = "failed"
)

// Host owns a Source and its load lifecycle. Loading runs in the background;
// Ready and Initializing report progress to admission control.
type Host struct {
	kind string
	src  Source
	log  zerolog.Logger

	mu   sync.Mutex
	fsm  *fsm.FSM
	err  error
	done chan struct{}
}

// NewHost wraps src. kind is informational (status/logs).
func NewHost(kind string, src Source, log zerolog.Logger) *Host {
	h := &Host{kind: kind, src: src, log: log.With().Str("component", "backend").Str("kind", kind).Logger()}
	h.fsm = fsm.NewFSM(
		StateUninitialized,
		fsm.Events{
			{Name: "init", Src: []string{StateUninitialized, StateFailed}, Dst: StateInitializing},
			{Name: "loaded", Src: []string{StateInitializing}, Dst: StateReady},
			{Name: "fail", Src: []string{StateInitializing}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				h.log.Info().Str("from", e.Src).Str("to", e.Dst).Msg("backend state")
			},
		},
	)
	return h
}

// Start begins loading the engine in the background. Calling Start while
// initializing or ready is a no-op; from failed it retries.
func (h *Host) Start(ctx context.Context) {
	h.mu.Lock()
	if err := h.fsm.Event(ctx, "init"); err != nil {
		h.mu.Unlock()
		return
	}
	h.err = nil
	done := make(chan struct{})
	h.done = done
	h.mu.Unlock()

	go func() {
		defer close(done)
		err := h.src.Load(ctx)
		h.mu.Lock()
		defer h.mu.Unlock()
		if err != nil {
			h.err = err
			h.log.Error().Err(err).Msg("backend initialization failed")
			_ = h.fsm.Event(context.Background(), "fail")
			return
		}
		_ = h.fsm.Event(context.Background(), "loaded")
	}()
}

// Wait blocks until the current load attempt finishes and returns its error.
func (h *Host) Wait(ctx context.Context) error {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done == nil {
		return ErrUnavailable("backend not started")
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return h.Err()
}

// Ready reports whether the engine finished loading.
func (h *Host) Ready() bool { return h.State() == StateReady }

// Initializing reports whether a load is in progress.
func (h *Host) Initializing() bool { return h.State() == StateInitializing }

// State returns the lifecycle state name.
func (h *Host) State() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fsm.Current()
}

// Err returns the last load error, if any.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Kind returns the engine kind.
func (h *Host) Kind() string { return h.kind }

// Submit forwards to the wrapped Source.
func (h *Host) Submit(ctx context.Context, prompt string, onFragment func(string)) error {
	return h.src.Submit(ctx, prompt, onFragment)
}
