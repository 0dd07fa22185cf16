// ABOUTME: HTTP client for the Gradio-shaped synthesis backend
// ABOUTME: Implements the asynchronous submit-then-poll exchange pattern
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errNotReady signals that a submitted operation has no result yet
var errNotReady = errors.New("result not ready")

// Client speaks the backend's asynchronous call convention: POST to
// /gradio_api/call/<endpoint> returns an opaque event id; GET on the
// same path plus the event id returns pending, a terminal result, or a
// terminal error.
type Client struct {
	baseURL string
	http    *http.Client
}

type submitRequest struct {
	Data []any `json:"data"`
}

type submitResponse struct {
	EventID string `json:"event_id"`
}

type resultEnvelope struct {
	Status string          `json:"status,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// NewClient creates a backend client. timeout bounds each individual
// HTTP exchange; per-request deadlines are enforced by the caller's
// context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit starts an asynchronous backend operation and returns its event id
func (c *Client) Submit(ctx context.Context, endpoint string, args []any) (string, error) {
	if args == nil {
		args = []any{}
	}
	body, err := json.Marshal(submitRequest{Data: args})
	if err != nil {
		return "", fmt.Errorf("%w: encode submit payload: %v", ErrProtocol, err)
	}

	url := fmt.Sprintf("%s/gradio_api/call%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build submit request: %v", ErrProtocol, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", wrapTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &ServerError{Status: resp.StatusCode, Endpoint: endpoint, Message: readBody(resp.Body)}
	}

	var sub submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return "", fmt.Errorf("%w: decode submit response for %s: %v", ErrProtocol, endpoint, err)
	}
	if sub.EventID == "" {
		return "", fmt.Errorf("%w: submit response for %s missing event id", ErrProtocol, endpoint)
	}
	return sub.EventID, nil
}

// fetchResult performs one poll round for a submitted operation.
// Returns errNotReady while the backend reports the operation pending.
func (c *Client) fetchResult(ctx context.Context, endpoint, eventID string, out any) error {
	url := fmt.Sprintf("%s/gradio_api/call%s/%s", c.baseURL, endpoint, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: build poll request: %v", ErrProtocol, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransport(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return errNotReady
	case resp.StatusCode != http.StatusOK:
		return &ServerError{Status: resp.StatusCode, Endpoint: endpoint, Message: readBody(resp.Body)}
	}

	var env resultEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode result for %s: %v", ErrProtocol, endpoint, err)
	}
	if env.Status == "pending" {
		return errNotReady
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decode result data for %s: %v", ErrProtocol, endpoint, err)
	}
	return nil
}

// Poll waits for an operation to finish, backing off between rounds
// until the context deadline. Transient transport errors during polling
// are absorbed by the backoff loop; protocol errors stop it.
func (c *Client) Poll(ctx context.Context, endpoint, eventID string, out any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0 // bounded by ctx

	op := func() error {
		err := c.fetchResult(ctx, endpoint, eventID, out)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errNotReady), Retryable(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	err := backoff.Retry(op, backoff.WithContext(bo, ctx))
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}

// Call submits an operation and waits for its result in one step
func (c *Client) Call(ctx context.Context, endpoint string, args []any, out any) error {
	eventID, err := c.Submit(ctx, endpoint, args)
	if err != nil {
		return err
	}
	return c.Poll(ctx, endpoint, eventID, out)
}

// Ping probes backend reachability with a plain GET on the root path
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("%w: build ping request: %v", ErrProtocol, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &ServerError{Status: resp.StatusCode, Endpoint: "/", Message: resp.Status}
	}
	return nil
}

func wrapTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func readBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}
