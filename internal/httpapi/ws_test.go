package httpapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"analysisd/internal/analysis"
	"analysisd/pkg/types"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

// readUntilTerminal collects frames up to and including the terminal one.
func readUntilTerminal(t *testing.T, conn *websocket.Conn) []types.Notification {
	t.Helper()
	var out []types.Notification
	for {
		var n types.Notification
		if err := conn.ReadJSON(&n); err != nil {
			t.Fatalf("read: %v", err)
		}
		out = append(out, n)
		if n.Kind.Terminal() {
			return out
		}
	}
}

func TestWS_StreamsNotifications(t *testing.T) {
	srv := httptest.NewServer(NewMux(&mockService{partials: []string{"It ", "is at ", "3pm."}}))
	defer srv.Close()
	conn := dialWS(t, srv)

	for round := 0; round < 2; round++ {
		if err := conn.WriteJSON(types.AnalyzeRequest{Prompt: "What time is my appointment?"}); err != nil {
			t.Fatalf("write: %v", err)
		}
		frames := readUntilTerminal(t, conn)
		if len(frames) != 4 {
			t.Fatalf("round %d: expected 4 frames, got %+v", round, frames)
		}
		if last := frames[3]; last.Kind != types.KindResult || last.Text != "It is at 3pm." {
			t.Fatalf("round %d: unexpected terminal %+v", round, last)
		}
	}
}

func TestWS_AdmissionErrorFrame(t *testing.T) {
	srv := httptest.NewServer(NewMux(&mockService{analyzeErr: analysis.ErrBusy("r0")}))
	defer srv.Close()
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(types.AnalyzeRequest{Prompt: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	frames := readUntilTerminal(t, conn)
	if len(frames) != 1 || frames[0].Kind != types.KindError || frames[0].Reason != types.ReasonRejected {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if !strings.Contains(frames[0].Error, "busy") {
		t.Fatalf("unexpected error text %q", frames[0].Error)
	}
}

func TestOriginAllowed(t *testing.T) {
	SetCORSOptions(true, []string{"http://ok.example"}, nil, nil)
	defer SetCORSOptions(false, nil, nil, nil)
	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "http://ok.example")
	if !originAllowed(r) {
		t.Fatal("expected configured origin to be allowed")
	}
	r.Header.Set("Origin", "http://evil.example")
	if originAllowed(r) {
		t.Fatal("expected other origin to be refused")
	}
}

