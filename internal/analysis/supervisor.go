package analysis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"analysisd/internal/completion"
	"analysisd/internal/schedule"
	"analysisd/pkg/types"
)

// Supervisor states.
const (
	StateIdle     = "idle"
	StateAdmitted = "admitted"
	StateActive   = "active"
	StateSettled  = "settled"
	StateClosed   = "closed"
)

const (
	evAdmit    = "admit"
	evReject   = "reject"
	evActivate = "activate"
	evSettle   = "settle"
	evRetire   = "retire"
	evClose    = "close"
)

// Engine is what the supervisor needs from the inference backend.
// backend.Host satisfies it.
type Engine interface {
	Ready() bool
	Initializing() bool
	// Submit streams fragments for prompt to onFragment. Its return does not
	// settle the request; a non-cancellation error does.
	Submit(ctx context.Context, prompt string, onFragment func(string)) error
}

// Ticket identifies an admitted request.
type Ticket struct {
	ID         string
	Structured bool
	AdmittedAt time.Time
}

type request struct {
	Ticket
	agg    *Aggregator
	timer  *time.Timer
	cancel context.CancelFunc
}

// Supervisor admits one request at a time and guarantees each admitted
// request exactly one terminal notification.
type Supervisor struct {
	engine     Engine
	timeout    time.Duration
	policy     string
	detector   *completion.Detector
	classifier *schedule.Classifier
	events     EventPublisher
	log        zerolog.Logger

	mu       sync.Mutex
	fsm      *fsm.FSM
	active   *request
	admitted uint64
	rejected uint64
	timeouts uint64
}

// NewSupervisor builds a Supervisor around engine.
func NewSupervisor(engine Engine, cfg Config) (*Supervisor, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}
	det := completion.New(cfg.Completion)
	s := &Supervisor{
		engine:     engine,
		timeout:    cfg.Timeout,
		policy:     cfg.OverlapPolicy,
		detector:   det,
		classifier: schedule.NewClassifier(cfg.Keywords, det.NoResultMarker()),
		events:     cfg.Events,
		log:        log.With().Str("component", "supervisor").Logger(),
	}
	s.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: evAdmit, Src: []string{StateIdle}, Dst: StateAdmitted},
			{Name: evReject, Src: []string{StateAdmitted}, Dst: StateIdle},
			{Name: evActivate, Src: []string{StateAdmitted}, Dst: StateActive},
			{Name: evSettle, Src: []string{StateActive}, Dst: StateSettled},
			{Name: evRetire, Src: []string{StateSettled}, Dst: StateIdle},
			{Name: evClose, Src: []string{StateIdle}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				s.log.Trace().Str("from", e.Src).Str("to", e.Dst).Msg("supervisor state")
			},
		},
	)
	return s, nil
}

// Analyze admits prompt and returns immediately. Notifications for the
// request go to sink. A rejected admission delivers an error notification
// to sink and returns the typed error.
func (s *Supervisor) Analyze(prompt string, sink Sink) (Ticket, error) {
	if sink == nil {
		sink = discardSink{}
	}
	s.mu.Lock()
	if s.fsm.Is(StateClosed) {
		s.mu.Unlock()
		return s.reject(sink, ErrClosed())
	}
	if !s.fsm.Can(evAdmit) && s.policy == OverlapReject {
		id := s.activeIDLocked()
		s.mu.Unlock()
		return s.reject(sink, ErrBusy(id))
	}
	verr := s.validate(prompt)
	if !s.fsm.Can(evAdmit) {
		if verr != nil {
			s.mu.Unlock()
			return s.reject(sink, verr)
		}
		if s.active != nil {
			s.supersedeLocked(s.active)
		}
	}
	if err := s.transition(evAdmit); err != nil {
		id := s.activeIDLocked()
		s.mu.Unlock()
		return s.reject(sink, ErrBusy(id))
	}
	if verr != nil {
		_ = s.transition(evReject)
		s.mu.Unlock()
		return s.reject(sink, verr)
	}

	structured := s.classifier.IsStructured(prompt)
	reqCtx, cancel := context.WithCancel(context.Background())
	req := &request{
		Ticket: Ticket{ID: uuid.NewString(), Structured: structured, AdmittedAt: time.Now()},
		cancel: cancel,
	}
	req.agg = NewAggregator(AggregatorConfig{
		RequestID:  req.ID,
		Structured: structured,
		Detector:   s.detector,
		Classifier: s.classifier,
		Sink:       sink,
		Gate:       &Gate{},
		OnSettle:   func(reason string) { s.settle(req, reason) },
		Logger:     s.log,
	})
	req.timer = time.AfterFunc(s.timeout, func() { req.agg.Expire() })
	s.active = req
	s.admitted++
	_ = s.transition(evActivate)
	s.mu.Unlock()

	admissionsTotal.WithLabelValues("accepted").Inc()
	s.events.Publish(Event{Name: EventAdmitted, RequestID: req.ID, Fields: map[string]any{"structured": structured}})
	s.log.Info().Str("request_id", req.ID).Bool("structured", structured).Msg("request admitted")

	go s.run(reqCtx, req, s.classifier.Prompt(prompt, structured))
	return req.Ticket, nil
}

// transition fires event on the state machine. Failures are logged and
// returned; callers hold s.mu.
func (s *Supervisor) transition(event string) error {
	if err := s.fsm.Event(context.Background(), event); err != nil {
		s.log.Warn().Err(err).Str("event", event).Str("state", s.fsm.Current()).Msg("supervisor transition failed")
		return err
	}
	return nil
}

func (s *Supervisor) activeIDLocked() string {
	if s.active == nil {
		return ""
	}
	return s.active.ID
}

func (s *Supervisor) validate(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyInput()
	}
	if s.engine == nil {
		return ErrBackendNotReady()
	}
	if s.engine.Initializing() {
		return ErrBackendInitializing()
	}
	if !s.engine.Ready() {
		return ErrBackendNotReady()
	}
	return nil
}

func (s *Supervisor) reject(sink Sink, err error) (Ticket, error) {
	s.mu.Lock()
	s.rejected++
	s.mu.Unlock()
	label := rejectionLabel(err)
	admissionsTotal.WithLabelValues(label).Inc()
	s.events.Publish(Event{Name: EventRejected, Fields: map[string]any{"reason": label}})
	s.log.Info().Str("reason", label).Msg("request rejected")
	if derr := sink.Error(Outcome{Reason: types.ReasonRejected, Message: err.Error()}); derr != nil {
		s.log.Warn().Err(derr).Msg("rejection delivery failed")
	}
	return Ticket{}, err
}

// run drives the engine for req. Completion is decided by the aggregator and
// the timer, never by Submit returning.
func (s *Supervisor) run(ctx context.Context, req *request, prompt string) {
	err := s.engine.Submit(ctx, prompt, req.agg.OnFragment)
	switch {
	case err != nil && ctx.Err() == nil:
		s.log.Warn().Err(err).Str("request_id", req.ID).Msg("engine failed")
		req.agg.Fail(err)
	case err == nil:
		s.log.Debug().Str("request_id", req.ID).Int("fragments", req.agg.Fragments()).Msg("engine stream ended")
	}
}

// settle is the aggregator's callback once a path won the gate.
func (s *Supervisor) settle(req *request, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != req {
		return
	}
	s.retireLocked(req, reason)
}

// supersedeLocked ends the active request in favour of a new admission.
func (s *Supervisor) supersedeLocked(req *request) {
	req.agg.Abandon(types.ReasonSuperseded, "superseded: a newer analysis replaced this request")
	s.retireLocked(req, req.agg.Reason())
}

// retireLocked stops the request's timer and engine and returns to idle.
// The gate has fired by the time this runs.
func (s *Supervisor) retireLocked(req *request, reason string) {
	req.timer.Stop()
	req.cancel()
	s.active = nil
	if s.transition(evSettle) == nil {
		_ = s.transition(evRetire)
	}
	if reason == types.ReasonTimeout {
		s.timeouts++
	}
	dur := time.Since(req.AdmittedAt)
	settlementsTotal.WithLabelValues(reason).Inc()
	requestDuration.WithLabelValues(reason).Observe(dur.Seconds())
	s.events.Publish(Event{Name: EventSettled, RequestID: req.ID, Fields: map[string]any{"reason": reason}})
	s.log.Info().Str("request_id", req.ID).Str("reason", reason).Dur("dur", dur).Msg("request settled")
}

// Close settles any active request with a shutdown error and rejects later
// admissions. It is safe to call more than once.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fsm.Is(StateClosed) {
		return nil
	}
	if req := s.active; req != nil {
		req.agg.Abandon(types.ReasonShutdown, "shutting down")
		s.retireLocked(req, req.agg.Reason())
	}
	return s.transition(evClose)
}

// Ready reports whether the engine can accept work.
func (s *Supervisor) Ready() bool { return s.engine != nil && s.engine.Ready() }

// Initializing reports whether the engine is still loading.
func (s *Supervisor) Initializing() bool { return s.engine != nil && s.engine.Initializing() }

// ActiveSnapshot describes the in-flight request.
type ActiveSnapshot struct {
	Ticket
	Fragments int
}

// Snapshot is a point-in-time view of the supervisor.
type Snapshot struct {
	State         string
	Active        *ActiveSnapshot
	OverlapPolicy string
	Timeout       time.Duration
	Admitted      uint64
	Rejected      uint64
	Timeouts      uint64
	Closed        bool
}

// Snapshot returns the current state and counters.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:         s.fsm.Current(),
		OverlapPolicy: s.policy,
		Timeout:       s.timeout,
		Admitted:      s.admitted,
		Rejected:      s.rejected,
		Timeouts:      s.timeouts,
		Closed:        s.fsm.Is(StateClosed),
	}
	if req := s.active; req != nil {
		snap.Active = &ActiveSnapshot{Ticket: req.Ticket, Fragments: req.agg.Fragments()}
	}
	return snap
}
