// Package e2e drives the full stack (engine source, supervisor, HTTP API and
// client) against fake engine servers.
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"analysisd/internal/analysis"
	"analysisd/internal/backend"
	"analysisd/internal/client"
	"analysisd/internal/httpapi"
)

// fakeOpenAI is an OpenAI-compatible chat completions server that streams
// tokens with a delay between them. A nil token list holds the stream open
// until the client goes away.
type fakeOpenAI struct {
	mu      sync.Mutex
	tokens  []string
	delay   time.Duration
	prompts []string
}

func (f *fakeOpenAI) set(tokens []string, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens, f.delay = tokens, delay
}

func (f *fakeOpenAI) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var body struct {
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	b, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(b, &body)

	f.mu.Lock()
	if n := len(body.Messages); n > 0 {
		f.prompts = append(f.prompts, body.Messages[n-1].Content)
	}
	tokens, delay := f.tokens, f.delay
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	fl, _ := w.(http.Flusher)
	if tokens == nil {
		if fl != nil {
			fl.Flush()
		}
		<-r.Context().Done()
		return
	}
	for _, tok := range tokens {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
		fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":null}]}\n\n", tok)
		if fl != nil {
			fl.Flush()
		}
	}
	// The engine stream never reports completion to the supervisor; end quietly.
	fmt.Fprint(w, "data: [DONE]\n\n")
}

type stack struct {
	engine *fakeOpenAI
	events *analysis.MemoryPublisher
	sup    *analysis.Supervisor
	host   *backend.Host
	srv    *httptest.Server
	client *client.Client
}

func newStack(t *testing.T, cfg analysis.Config) *stack {
	t.Helper()
	engine := &fakeOpenAI{}
	engineSrv := httptest.NewServer(engine)
	t.Cleanup(engineSrv.Close)

	src, err := backend.New(backend.Config{Kind: backend.KindOpenAI, BaseURL: engineSrv.URL + "/v1/", APIKey: "test", Model: "m"})
	if err != nil {
		t.Fatalf("backend: %v", err)
	}
	host := backend.NewHost(backend.KindOpenAI, src, zerolog.Nop())
	host.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := host.Wait(ctx); err != nil {
		t.Fatalf("backend load: %v", err)
	}

	events := &analysis.MemoryPublisher{}
	cfg.Events = events
	sup, err := analysis.NewSupervisor(host, cfg)
	if err != nil {
		t.Fatalf("supervisor: %v", err)
	}
	srv := httptest.NewServer(httpapi.NewMux(httpapi.NewService(sup, host)))
	t.Cleanup(func() {
		_ = sup.Close()
		srv.Close()
	})
	return &stack{engine: engine, events: events, sup: sup, host: host, srv: srv, client: client.New(srv.URL, nil)}
}

func (s *stack) waitActive(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.sup.Snapshot().Active == nil {
		if time.Now().After(deadline) {
			t.Fatal("request never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *stack) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for s.sup.Snapshot().State != analysis.StateIdle {
		if time.Now().After(deadline) {
			t.Fatal("supervisor never returned to idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
