package analysis

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"analysisd/internal/completion"
	"analysisd/internal/schedule"
	"analysisd/pkg/types"
)

// AggregatorConfig wires an Aggregator to its request.
type AggregatorConfig struct {
	RequestID  string
	Structured bool
	Detector   *completion.Detector
	// Classifier interprets structured answers; nil uses the defaults.
	Classifier *schedule.Classifier
	Sink       Sink
	Gate       *Gate
	// OnSettle is called with the winning reason after the terminal
	// notification, outside the aggregator lock. Abandon never calls it.
	OnSettle func(reason string)
	Logger   zerolog.Logger
}

// Aggregator owns the accumulated response for one request.
type Aggregator struct {
	id         string
	structured bool
	detector   *completion.Detector
	classifier *schedule.Classifier
	sink       Sink
	gate       *Gate
	onSettle   func(string)
	log        zerolog.Logger

	mu     sync.Mutex
	frags  []string
	buf    strings.Builder
	reason string
}

// NewAggregator returns an Aggregator with an empty buffer.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	a := &Aggregator{
		id:         cfg.RequestID,
		structured: cfg.Structured,
		detector:   cfg.Detector,
		classifier: cfg.Classifier,
		sink:       cfg.Sink,
		gate:       cfg.Gate,
		onSettle:   cfg.OnSettle,
		log:        cfg.Logger,
	}
	if a.detector == nil {
		a.detector = completion.New(completion.Config{})
	}
	if a.classifier == nil {
		a.classifier = schedule.NewClassifier(nil, a.detector.NoResultMarker())
	}
	if a.sink == nil {
		a.sink = discardSink{}
	}
	if a.gate == nil {
		a.gate = &Gate{}
	}
	return a
}

// OnFragment appends text, emits a partial and settles the request when the
// buffer looks complete. Empty fragments and fragments after settlement are ignored.
func (a *Aggregator) OnFragment(text string) {
	if text == "" {
		return
	}
	a.mu.Lock()
	if a.gate.Fired() {
		a.mu.Unlock()
		return
	}
	a.frags = append(a.frags, text)
	a.buf.WriteString(text)
	acc := a.buf.String()
	a.deliverPartial(acc)
	won := a.detector.IsComplete(acc, a.structured) && a.gate.TryFire()
	if won {
		a.reason = types.ReasonCompleted
		a.emitAnswerLocked(acc, types.ReasonCompleted)
	}
	a.mu.Unlock()
	if won && a.onSettle != nil {
		a.onSettle(types.ReasonCompleted)
	}
}

// Expire is the timeout path: it settles with whatever has accumulated.
func (a *Aggregator) Expire() bool {
	return a.fire(types.ReasonTimeout, true, func(text string) {
		a.emitAnswerLocked(text, types.ReasonTimeout)
	})
}

// Fail settles the request with an engine error.
func (a *Aggregator) Fail(err error) bool {
	msg := "engine error"
	if err != nil {
		msg = err.Error()
	}
	return a.fire(types.ReasonEngine, true, func(string) {
		a.deliverTerminal("error", a.sink.Error(Outcome{RequestID: a.id, Reason: types.ReasonEngine, Message: msg}))
	})
}

// Abandon settles the request with an error on behalf of the supervisor,
// which already holds its own lock; OnSettle is not called.
func (a *Aggregator) Abandon(reason, message string) bool {
	return a.fire(reason, false, func(string) {
		a.deliverTerminal("error", a.sink.Error(Outcome{RequestID: a.id, Reason: reason, Message: message}))
	})
}

func (a *Aggregator) fire(reason string, notify bool, emit func(text string)) bool {
	a.mu.Lock()
	if !a.gate.TryFire() {
		a.mu.Unlock()
		return false
	}
	a.reason = reason
	emit(a.buf.String())
	a.mu.Unlock()
	if notify && a.onSettle != nil {
		a.onSettle(reason)
	}
	return true
}

// emitAnswerLocked delivers result or no_result for text. Caller holds a.mu
// and has won the gate.
func (a *Aggregator) emitAnswerLocked(text, reason string) {
	out := Outcome{RequestID: a.id, Text: text, Reason: reason}
	if strings.TrimSpace(text) == "" {
		a.deliverTerminal("no_result", a.sink.NoResult(out))
		return
	}
	if a.structured {
		ans := a.classifier.Interpret(text)
		if ans.NoResult {
			a.deliverTerminal("no_result", a.sink.NoResult(out))
			return
		}
		out.Record = ans.Record
	}
	a.deliverTerminal("result", a.sink.Result(out))
}

func (a *Aggregator) deliverPartial(text string) {
	err := a.sink.Partial(a.id, text)
	switch {
	case err == nil:
	case errors.Is(err, ErrPartialDropped):
		partialsDropped.Inc()
		a.log.Debug().Str("request_id", a.id).Msg("partial dropped")
	default:
		a.log.Warn().Err(err).Str("request_id", a.id).Msg("partial delivery failed")
	}
}

func (a *Aggregator) deliverTerminal(kind string, err error) {
	if err != nil {
		a.log.Error().Err(err).Str("request_id", a.id).Str("kind", kind).Msg("terminal delivery failed")
		return
	}
	a.log.Debug().Str("request_id", a.id).Str("kind", kind).Str("reason", a.reason).Msg("request settled")
}

// Text returns the accumulated response.
func (a *Aggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

// Fragments returns how many non-empty fragments were accepted.
func (a *Aggregator) Fragments() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.frags)
}

// Reason returns the winning settlement reason, or "" while pending.
func (a *Aggregator) Reason() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reason
}
