package analysis

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"analysisd/pkg/types"
)

const longSentence = "The quarterly report is finished and has been sent to every team lead."

func newTestAggregator(structured bool, sink Sink, settled *atomic.Int32) *Aggregator {
	return NewAggregator(AggregatorConfig{
		RequestID:  "req-1",
		Structured: structured,
		Sink:       sink,
		OnSettle: func(string) {
			if settled != nil {
				settled.Add(1)
			}
		},
	})
}

func TestAggregator_EmptyFragmentIsNoop(t *testing.T) {
	sink := newRecordingSink()
	a := newTestAggregator(false, sink, nil)
	a.OnFragment("")
	assert.Equal(t, 0, a.Fragments())
	assert.Empty(t, a.Text())
	assert.Empty(t, sink.Partials())
	assert.Empty(t, sink.Terminals())
}

func TestAggregator_PartialsCarryFullText(t *testing.T) {
	sink := newRecordingSink()
	a := newTestAggregator(false, sink, nil)
	a.OnFragment("It ")
	a.OnFragment("is at ")
	a.OnFragment("3pm.")
	assert.Equal(t, []string{"It ", "It is at ", "It is at 3pm."}, sink.Partials())
	assert.Empty(t, sink.Terminals(), "short text is not complete")
	assert.Equal(t, 3, a.Fragments())
}

func TestAggregator_CompletesOnce(t *testing.T) {
	sink := newRecordingSink()
	var settled atomic.Int32
	a := newTestAggregator(false, sink, &settled)
	a.OnFragment(longSentence)
	a.OnFragment(" More text.")
	assert.False(t, a.Expire())
	assert.False(t, a.Fail(errors.New("late")))

	terms := sink.Terminals()
	require.Len(t, terms, 1)
	assert.Equal(t, types.KindResult, terms[0].Kind)
	assert.Equal(t, longSentence, terms[0].Text)
	assert.Equal(t, types.ReasonCompleted, terms[0].Reason)
	assert.EqualValues(t, 1, settled.Load())
	assert.Len(t, sink.Partials(), 1, "no partials after settlement")
	assert.Equal(t, types.ReasonCompleted, a.Reason())
}

func TestAggregator_ExpireEmptyIsNoResult(t *testing.T) {
	sink := newRecordingSink()
	var settled atomic.Int32
	a := newTestAggregator(false, sink, &settled)
	require.True(t, a.Expire())
	terms := sink.Terminals()
	require.Len(t, terms, 1)
	assert.Equal(t, types.KindNoResult, terms[0].Kind)
	assert.Equal(t, types.ReasonTimeout, terms[0].Reason)
	assert.EqualValues(t, 1, settled.Load())
}

func TestAggregator_ExpireWithPartialText(t *testing.T) {
	sink := newRecordingSink()
	a := newTestAggregator(false, sink, nil)
	a.OnFragment("half an ans")
	require.True(t, a.Expire())
	terms := sink.Terminals()
	require.Len(t, terms, 1)
	assert.Equal(t, types.KindResult, terms[0].Kind)
	assert.Equal(t, "half an ans", terms[0].Text)
	assert.Equal(t, types.ReasonTimeout, terms[0].Reason)
}

func TestAggregator_StructuredRecord(t *testing.T) {
	sink := newRecordingSink()
	a := newTestAggregator(true, sink, nil)
	a.OnFragment(`{"date":"2025-05-23", "time":"`)
	assert.Empty(t, sink.Terminals())
	a.OnFragment(`14:00", "title":"Dentist"}`)
	terms := sink.Terminals()
	require.Len(t, terms, 1)
	assert.Equal(t, types.KindResult, terms[0].Kind)
	require.NotNil(t, terms[0].Record)
	assert.Equal(t, "2025-05-23", terms[0].Record.Date)
	assert.Equal(t, "14:00", terms[0].Record.Time)
	assert.Equal(t, "Dentist", terms[0].Record.Title)
}

func TestAggregator_StructuredEmptyFieldWaits(t *testing.T) {
	sink := newRecordingSink()
	a := newTestAggregator(true, sink, nil)
	a.OnFragment(`{"date":"2025-05-23","time":"","title":"Dentist"}`)
	assert.Empty(t, sink.Terminals())
}

func TestAggregator_StructuredNoResult(t *testing.T) {
	sink := newRecordingSink()
	a := newTestAggregator(true, sink, nil)
	a.OnFragment(`{"no_schedule": true}`)
	terms := sink.Terminals()
	require.Len(t, terms, 1)
	assert.Equal(t, types.KindNoResult, terms[0].Kind)
	assert.Equal(t, types.ReasonCompleted, terms[0].Reason)
}

func TestAggregator_FailAndAbandon(t *testing.T) {
	sink := newRecordingSink()
	var settled atomic.Int32
	a := newTestAggregator(false, sink, &settled)
	require.True(t, a.Fail(errors.New("engine crashed")))
	terms := sink.Terminals()
	require.Len(t, terms, 1)
	assert.Equal(t, types.KindError, terms[0].Kind)
	assert.Equal(t, "engine crashed", terms[0].Error)
	assert.Equal(t, types.ReasonEngine, terms[0].Reason)

	sink2 := newRecordingSink()
	var settled2 atomic.Int32
	b := newTestAggregator(false, sink2, &settled2)
	require.True(t, b.Abandon(types.ReasonSuperseded, "superseded"))
	assert.EqualValues(t, 0, settled2.Load(), "abandon does not call back")
	assert.Equal(t, types.ReasonSuperseded, sink2.Terminals()[0].Reason)
}

func TestAggregator_CompletionRacesTimeout(t *testing.T) {
	for i := 0; i < 200; i++ {
		sink := newRecordingSink()
		var settled atomic.Int32
		a := newTestAggregator(false, sink, &settled)
		var wg sync.WaitGroup
		wg.Add(3)
		go func() { defer wg.Done(); a.OnFragment(longSentence) }()
		go func() { defer wg.Done(); a.Expire() }()
		go func() { defer wg.Done(); a.OnFragment(strings.Repeat("x", 10)) }()
		wg.Wait()
		if n := len(sink.Terminals()); n != 1 {
			t.Fatalf("iteration %d: %d terminal notifications", i, n)
		}
		if settled.Load() != 1 {
			t.Fatalf("iteration %d: settle callback ran %d times", i, settled.Load())
		}
	}
}

func TestAggregator_DroppedPartialsDoNotAbort(t *testing.T) {
	s := NewStream(1)
	a := newTestAggregator(false, s, nil)
	a.OnFragment("a")
	a.OnFragment("b")
	a.OnFragment("c")
	assert.EqualValues(t, 2, s.Dropped())
	require.True(t, a.Expire())
	n := <-s.Done()
	assert.Equal(t, "abc", n.Text)
}
