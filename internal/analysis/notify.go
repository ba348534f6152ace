package analysis

import (
	"context"
	"sync"
	"sync/atomic"

	"analysisd/pkg/types"
)

// DefaultPartialBuffer is the Stream partial capacity used when none is given.
const DefaultPartialBuffer = 64

// Outcome is the payload of a terminal notification.
type Outcome struct {
	RequestID string
	// Text is the accumulated response (result, no_result).
	Text string
	// Record is set for structured answers that passed validation.
	Record *types.ScheduleRecord
	// Reason names the settlement path, e.g. completed or timeout.
	Reason string
	// Message is the error text (error only).
	Message string
}

// Sink receives notifications for one request. Partial may be called many
// times; exactly one of Result, NoResult or Error is called once.
// Implementations must not block.
type Sink interface {
	Partial(requestID, text string) error
	Result(Outcome) error
	NoResult(Outcome) error
	Error(Outcome) error
}

type discardSink struct{}

func (discardSink) Partial(string, string) error { return nil }
func (discardSink) Result(Outcome) error         { return nil }
func (discardSink) NoResult(Outcome) error       { return nil }
func (discardSink) Error(Outcome) error          { return nil }

// Stream is a Sink backed by channels: a bounded, lossy partial channel and a
// one-slot terminal channel. Delivering the terminal notification closes the
// partial channel, so readers see every buffered partial before the result.
type Stream struct {
	mu       sync.Mutex
	partials chan types.Notification
	terminal chan types.Notification
	settled  bool
	dropped  atomic.Int64
}

// NewStream returns a Stream buffering up to buffer partials.
func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultPartialBuffer
	}
	return &Stream{
		partials: make(chan types.Notification, buffer),
		terminal: make(chan types.Notification, 1),
	}
}

func (s *Stream) Partial(requestID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return ErrSettled
	}
	select {
	case s.partials <- types.Notification{Kind: types.KindPartial, RequestID: requestID, Text: text}:
		return nil
	default:
		s.dropped.Add(1)
		return ErrPartialDropped
	}
}

func (s *Stream) Result(o Outcome) error   { return s.settle(notification(types.KindResult, o)) }
func (s *Stream) NoResult(o Outcome) error { return s.settle(notification(types.KindNoResult, o)) }
func (s *Stream) Error(o Outcome) error    { return s.settle(notification(types.KindError, o)) }

func (s *Stream) settle(n types.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return ErrSettled
	}
	s.settled = true
	s.terminal <- n
	close(s.partials)
	return nil
}

// Partials returns the partial channel. It is closed once the request settles.
func (s *Stream) Partials() <-chan types.Notification { return s.partials }

// Done yields the terminal notification once.
func (s *Stream) Done() <-chan types.Notification { return s.terminal }

// Dropped returns how many partials were discarded because the buffer was full.
func (s *Stream) Dropped() int64 { return s.dropped.Load() }

// Drain passes every partial to fn in order and then returns the terminal
// notification. It stops early when ctx is done or fn fails.
func (s *Stream) Drain(ctx context.Context, fn func(types.Notification) error) (types.Notification, error) {
	for {
		select {
		case n, ok := <-s.partials:
			if !ok {
				select {
				case t := <-s.terminal:
					return t, nil
				case <-ctx.Done():
					return types.Notification{}, ctx.Err()
				}
			}
			if fn != nil {
				if err := fn(n); err != nil {
					return types.Notification{}, err
				}
			}
		case <-ctx.Done():
			return types.Notification{}, ctx.Err()
		}
	}
}

func notification(kind types.NotificationKind, o Outcome) types.Notification {
	return types.Notification{
		Kind:      kind,
		RequestID: o.RequestID,
		Text:      o.Text,
		Record:    o.Record,
		Reason:    o.Reason,
		Error:     o.Message,
	}
}
