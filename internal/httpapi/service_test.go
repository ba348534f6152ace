package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"analysisd/internal/analysis"
	"analysisd/internal/backend"
	"analysisd/pkg/types"
)

func newScriptedService(t *testing.T, script *backend.Script, timeout time.Duration) (Service, *analysis.Supervisor) {
	t.Helper()
	host := backend.NewHost(backend.KindScript, script, zerolog.Nop())
	host.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := host.Wait(ctx); err != nil {
		t.Fatalf("backend: %v", err)
	}
	sup, err := analysis.NewSupervisor(host, analysis.Config{Timeout: timeout})
	if err != nil {
		t.Fatalf("supervisor: %v", err)
	}
	t.Cleanup(func() { _ = sup.Close() })
	return NewService(sup, host), sup
}

func TestAnalyze_EndToEndTimeoutResult(t *testing.T) {
	svc, _ := newScriptedService(t, &backend.Script{Fragments: []string{"It ", "is at ", "3pm."}}, 100*time.Millisecond)
	w := postAnalyze(t, NewMux(svc), `{"prompt":"What time is my appointment?"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	lines := decodeLines(t, w.Body.String())
	last := lines[len(lines)-1]
	if last.Kind != types.KindResult || last.Text != "It is at 3pm." || last.Reason != types.ReasonTimeout {
		t.Fatalf("unexpected terminal: %+v", last)
	}
	for _, n := range lines[:len(lines)-1] {
		if n.Kind != types.KindPartial {
			t.Fatalf("non-partial before terminal: %+v", n)
		}
	}
}

func TestAnalyze_EndToEndBusy(t *testing.T) {
	// Slow script keeps the first request active.
	svc, _ := newScriptedService(t, &backend.Script{Fragments: []string{"slow"}, Delay: time.Second}, 300*time.Millisecond)
	h := NewMux(svc)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- postAnalyze(t, h, `{"prompt":"first"}`) }()
	deadline := time.Now().Add(2 * time.Second)
	for svc.Status().Active == nil {
		if time.Now().After(deadline) {
			t.Fatal("first request never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w := postAnalyze(t, h, `{"prompt":"second"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	first := <-done
	lines := decodeLines(t, first.Body.String())
	if last := lines[len(lines)-1]; last.Kind != types.KindNoResult || last.Reason != types.ReasonTimeout {
		t.Fatalf("unexpected first terminal: %+v", last)
	}
}

func TestAnalyze_EndToEndEngineError(t *testing.T) {
	svc, _ := newScriptedService(t, &backend.Script{SubmitErr: errors.New("engine crashed")}, time.Second)
	w := postAnalyze(t, NewMux(svc), `{"prompt":"hello"}`)
	lines := decodeLines(t, w.Body.String())
	if len(lines) != 1 || lines[0].Kind != types.KindError || lines[0].Error != "engine crashed" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestService_Status(t *testing.T) {
	svc, _ := newScriptedService(t, &backend.Script{}, 50*time.Millisecond)
	_ = postAnalyze(t, NewMux(svc), `{"prompt":"x"}`)
	deadline := time.Now().Add(2 * time.Second)
	for svc.Status().State != analysis.StateIdle {
		if time.Now().After(deadline) {
			t.Fatal("supervisor did not return to idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
	w := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	var st types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.Backend != backend.StateReady || st.BackendKind != backend.KindScript {
		t.Fatalf("unexpected backend fields: %+v", st)
	}
	if st.AdmittedTotal != 1 || st.TimeoutsTotal != 1 || st.TimeoutMillis != 50 {
		t.Fatalf("unexpected counters: %+v", st)
	}
	if st.OverlapPolicy != analysis.OverlapReject {
		t.Fatalf("unexpected policy %q", st.OverlapPolicy)
	}
}
