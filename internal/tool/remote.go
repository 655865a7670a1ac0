package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteDelegate invokes tenant-registered tools over HTTP: the
// model-supplied arguments are POSTed to the binding's endpoint and the
// response body is returned verbatim to the model.
type RemoteDelegate struct {
	Client *http.Client
}

// NewRemoteDelegate creates a delegate with a bounded per-call timeout.
func NewRemoteDelegate(timeout time.Duration) *RemoteDelegate {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteDelegate{Client: &http.Client{Timeout: timeout}}
}

// maxResponseBytes caps how much of a tenant endpoint's response is fed
// back to the model.
const maxResponseBytes = 64 * 1024

type remotePayload struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// Invoke POSTs the invocation to endpoint and returns the response body.
func (d *RemoteDelegate) Invoke(ctx context.Context, endpoint, name string, args json.RawMessage) (string, error) {
	body, err := json.Marshal(remotePayload{Tool: name, Arguments: args})
	if err != nil {
		return "", fmt.Errorf("encode tool payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build tool request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call tool endpoint: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read tool response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("tool endpoint returned status %d", resp.StatusCode)
	}

	return string(data), nil
}
