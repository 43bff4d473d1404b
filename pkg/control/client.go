// Package control provides a client for the notionstamp control surface.
package control

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/thebtf/notionstamp/pkg/models"
)

// DefaultAddr is where the daemon listens unless configured otherwise.
const DefaultAddr = "127.0.0.1:37790"

// Exit codes for the command-line clients.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitUnavailable = 3 // daemon not reachable
)

// ServerAddr returns the daemon address from NOTIONSTAMP_ADDR or the default.
func ServerAddr() string {
	if addr := strings.TrimSpace(os.Getenv("NOTIONSTAMP_ADDR")); addr != "" {
		return addr
	}
	return DefaultAddr
}

// Client talks to a running daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for addr (host:port or full URL).
func NewClient(addr string, timeout time.Duration) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// StatusError is a non-2xx reply from the daemon.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("daemon returned %d", e.StatusCode)
}

// GET fetches path and decodes the JSON object response.
func (c *Client) GET(ctx context.Context, path string) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// POST sends body (may be nil) to path and decodes the JSON object response.
// The decoded body is returned alongside a *StatusError for non-2xx replies.
func (c *Client) POST(ctx context.Context, path string, body any) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodPost, path, body, &out)
	return out, err
}

// Status returns the daemon's session snapshot.
func (c *Client) Status(ctx context.Context) (*models.Snapshot, error) {
	var snap models.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// IsRunning reports whether the daemon answers its health check.
func (c *Client) IsRunning(ctx context.Context) bool {
	var health map[string]string
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &health); err != nil {
		return false
	}
	return health["status"] == "ready"
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	decodeErr := json.Unmarshal(raw, out)
	if resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &envelope) == nil {
			statusErr.Message = envelope.Error
		}
		return statusErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	return nil
}
