// Package client talks to a running analysisd over HTTP.
package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"analysisd/pkg/types"
)

// maxLine bounds one NDJSON line; partials carry the whole accumulated text.
const maxLine = 1 << 20

// APIError is a non-200 answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("analysisd: %d %s", e.Status, e.Message) }

// IsBusy reports whether err is a single-flight rejection (429).
func IsBusy(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == http.StatusTooManyRequests
}

// ErrNoTerminal is returned when the stream ends before a terminal line.
var ErrNoTerminal = errors.New("stream ended without a terminal notification")

// Client is an analysisd HTTP client.
type Client struct {
	base string
	hc   *http.Client
}

// New returns a client for baseURL (e.g. http://127.0.0.1:8080). A nil hc uses http.DefaultClient.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

// Analyze submits prompt and calls onPartial for each partial line. It returns
// the terminal notification.
func (c *Client) Analyze(ctx context.Context, prompt string, onPartial func(types.Notification)) (types.Notification, error) {
	body, err := json.Marshal(types.AnalyzeRequest{Prompt: prompt})
	if err != nil {
		return types.Notification{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/analyze", bytes.NewReader(body))
	if err != nil {
		return types.Notification{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	resp, err := c.hc.Do(req)
	if err != nil {
		return types.Notification{}, fmt.Errorf("analyze: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.Notification{}, decodeAPIError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var n types.Notification
		if err := json.Unmarshal(line, &n); err != nil {
			return types.Notification{}, fmt.Errorf("analyze: bad line: %w", err)
		}
		if n.Kind.Terminal() {
			return n, nil
		}
		if onPartial != nil {
			onPartial(n)
		}
	}
	if err := sc.Err(); err != nil {
		return types.Notification{}, fmt.Errorf("analyze: %w", err)
	}
	return types.Notification{}, ErrNoTerminal
}

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (types.StatusResponse, error) {
	var st types.StatusResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/status", nil)
	if err != nil {
		return st, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return st, fmt.Errorf("status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st, decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("status: %w", err)
	}
	return st, nil
}

func decodeAPIError(resp *http.Response) error {
	var er types.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	return &APIError{Status: resp.StatusCode, Message: er.Error}
}
