package operation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPOperation invokes a remote operation endpoint with a JSON POST.
// HTTP 4xx responses are permanent failures; network errors and 5xx
// responses are transient and left to the queue's retry budget.
type HTTPOperation struct {
	kind   string
	url    string
	client *http.Client
}

// NewHTTPOperation creates an operation backed by a remote endpoint.
func NewHTTPOperation(kind, url string, timeout time.Duration) *HTTPOperation {
	return &HTTPOperation{
		kind: kind,
		url:  url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (o *HTTPOperation) Kind() string { return o.kind }

func (o *HTTPOperation) Invoke(ctx context.Context, input json.RawMessage) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(input))
	if err != nil {
		return Result{}, Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to invoke %s endpoint: %w", o.kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s response: %w", o.kind, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Result{}, Permanent(fmt.Errorf("%s endpoint rejected request: status %d", o.kind, resp.StatusCode))
	default:
		return Result{}, fmt.Errorf("%s endpoint unavailable: status %d", o.kind, resp.StatusCode)
	}

	if !json.Valid(body) {
		return Result{}, Permanent(fmt.Errorf("%s endpoint returned invalid JSON", o.kind))
	}

	return Result{Fields: json.RawMessage(body)}, nil
}
