package blackbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("blackbox: skipped in -short mode")
	}
	binPath := filepath.Join(t.TempDir(), "analysisd")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/analysisd")
	cmd.Dir = projectRootFromThisFile(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "analysisd.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

type serverProc struct {
	cmd  *exec.Cmd
	base string
}

func startServer(t *testing.T, bin, configPath string, extra ...string) *serverProc {
	t.Helper()
	port := findFreePort(t)
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args := append([]string{"serve", "--config", configPath, "--addr", fmt.Sprintf("127.0.0.1:%d", port), "--log-format", "json"}, extra...)
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _ = cmd.Wait() })

	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(base + "/readyz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become ready in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return &serverProc{cmd: cmd, base: base}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, payload string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

type line struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

func lines(t *testing.T, body []byte) []line {
	t.Helper()
	var out []line
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var l line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, l)
	}
	return out
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	cfg := writeConfig(t, `
backend:
  kind: script
  script_fragments: ["It ", "is at ", "3pm."]
  script_delay_ms: 5
analysis:
  timeout_ms: 300
`)
	sp := startServer(t, bin, cfg)

	resp, body := get(t, sp.base+"/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz %d %s", resp.StatusCode, string(body))
	}

	resp, body = postJSON(t, sp.base+"/analyze", `{"prompt":"What time is my appointment?"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/analyze %d %s", resp.StatusCode, string(body))
	}
	if resp.Header.Get("X-Analysis-ID") == "" {
		t.Fatalf("missing X-Analysis-ID header")
	}
	ls := lines(t, body)
	if len(ls) == 0 {
		t.Fatalf("no lines: %q", string(body))
	}
	last := ls[len(ls)-1]
	if last.Kind != "result" || last.Text != "It is at 3pm." || last.Reason != "timeout" {
		t.Fatalf("unexpected terminal: %+v", last)
	}

	resp, body = get(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d %s", resp.StatusCode, string(body))
	}
	var st struct {
		Backend       string `json:"backend"`
		AdmittedTotal int    `json:"admitted_total"`
	}
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("/status json: %v body=%s", err, string(body))
	}
	if st.Backend != "ready" || st.AdmittedTotal != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}

	resp, body = get(t, sp.base+"/metrics")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("analysisd_analysis_admissions_total")) {
		t.Fatalf("/metrics %d missing admissions counter", resp.StatusCode)
	}
}

func TestBlackbox_EmptyPrompt_400(t *testing.T) {
	bin := buildBinary(t)
	sp := startServer(t, bin, writeConfig(t, "backend:\n  kind: script\n"))

	resp, body := postJSON(t, sp.base+"/analyze", `{"prompt":"   "}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d, body=%s", resp.StatusCode, string(body))
	}
}

func TestBlackbox_AskCommand(t *testing.T) {
	bin := buildBinary(t)
	sp := startServer(t, bin, writeConfig(t, `
backend:
  kind: script
  script_fragments: ["Nothing ", "scheduled."]
analysis:
  timeout_ms: 200
`))
	out, err := exec.Command(bin, "ask", "--server", sp.base, "hello there").CombinedOutput()
	if err != nil {
		t.Fatalf("ask: %v\n%s", err, string(out))
	}
	if !strings.Contains(string(out), "Nothing scheduled.") {
		t.Fatalf("ask output missing answer: %q", string(out))
	}
}
