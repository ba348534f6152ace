package backend

import (
	"context"
	"time"
)

// Script is a Source that replays fixed fragments. With no fragments it
// never calls the sink, which exercises the timeout path.
type Script struct {
	Fragments []string
	// Delay before each fragment.
	Delay time.Duration
	// LoadDelay simulates a slow engine start.
	LoadDelay time.Duration
	// LoadErr is returned from Load when set.
	LoadErr error
	// SubmitErr is returned from Submit after the fragments are replayed.
	SubmitErr error
}

// Load waits LoadDelay and returns LoadErr.
func (s *Script) Load(ctx context.Context) error {
	if s.LoadDelay > 0 {
		if err := sleepCtx(ctx, s.LoadDelay); err != nil {
			return err
		}
	}
	return s.LoadErr
}

// Submit replays the fragments, then returns SubmitErr.
func (s *Script) Submit(ctx context.Context, prompt string, onFragment func(string)) error {
	for _, f := range s.Fragments {
		if err := sleepCtx(ctx, s.Delay); err != nil {
			return err
		}
		onFragment(f)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.SubmitErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
