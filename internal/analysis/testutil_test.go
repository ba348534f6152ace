package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"analysisd/pkg/types"
)

// fakeEngine is an in-memory Engine used for tests.
type fakeEngine struct {
	notReady     bool
	initializing bool
	fragments    []string
	delay        time.Duration
	// block keeps Submit running until its context is canceled.
	block bool
	err   error

	mu       sync.Mutex
	prompts  []string
	canceled int
}

func (f *fakeEngine) Ready() bool        { return !f.notReady && !f.initializing }
func (f *fakeEngine) Initializing() bool { return f.initializing }

func (f *fakeEngine) Submit(ctx context.Context, prompt string, onFragment func(string)) error {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	for _, fr := range f.fragments {
		if f.delay > 0 {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		onFragment(fr)
	}
	if f.err != nil {
		return f.err
	}
	if f.block {
		<-ctx.Done()
		f.mu.Lock()
		f.canceled++
		f.mu.Unlock()
		return ctx.Err()
	}
	return nil
}

func (f *fakeEngine) canceledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.canceled
}

// recordingSink records every notification and counts terminals.
type recordingSink struct {
	mu        sync.Mutex
	partials  []string
	terminals []types.Notification
	done      chan struct{}
	once      sync.Once
}

func newRecordingSink() *recordingSink { return &recordingSink{done: make(chan struct{})} }

func (r *recordingSink) Partial(_ string, text string) error {
	r.mu.Lock()
	r.partials = append(r.partials, text)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) Result(o Outcome) error   { return r.terminal(notification(types.KindResult, o)) }
func (r *recordingSink) NoResult(o Outcome) error { return r.terminal(notification(types.KindNoResult, o)) }
func (r *recordingSink) Error(o Outcome) error    { return r.terminal(notification(types.KindError, o)) }

func (r *recordingSink) terminal(n types.Notification) error {
	r.mu.Lock()
	r.terminals = append(r.terminals, n)
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
	return nil
}

func (r *recordingSink) Terminals() []types.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Notification(nil), r.terminals...)
}

func (r *recordingSink) Partials() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.partials...)
}

// wait blocks until the first terminal notification or fails the test.
func (r *recordingSink) wait(t *testing.T, d time.Duration) types.Notification {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(d):
		t.Fatalf("no terminal notification within %v", d)
	}
	return r.Terminals()[0]
}

func newTestSupervisor(t *testing.T, eng Engine, cfg Config) *Supervisor {
	t.Helper()
	s, err := NewSupervisor(eng, cfg)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// waitIdle polls until the supervisor returns to idle.
func waitIdle(t *testing.T, s *Supervisor) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Snapshot().State == StateIdle {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("supervisor not idle; state=%s", s.Snapshot().State)
}
