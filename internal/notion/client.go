package notion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the public Notion API endpoint.
	DefaultBaseURL = "https://api.notion.com"
	// APIVersion is sent as the Notion-Version header.
	APIVersion = "2022-06-28"
	// DefaultTimeout bounds each request.
	DefaultTimeout = 10 * time.Second

	DatabasesPath = "/v1/databases/"
	PagesPath     = "/v1/pages"

	maxResponseBytes = 1 << 20
)

// Config holds client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client // optional, defaults to a fresh client
}

// Client sends signed requests to the Notion API.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	http    *http.Client
	metrics *sendMetrics
}

// NewClient creates a Client. Empty fields fall back to defaults.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		timeout: timeout,
		http:    httpClient,
		metrics: newSendMetrics(),
	}
}

// Kind classifies a decoded response by its object field.
type Kind int

const (
	KindOther Kind = iota
	KindDatabase
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindDatabase:
		return "database"
	case KindError:
		return "error"
	default:
		return "other"
	}
}

// Result is the interpreted shape of a Notion response.
type Result struct {
	Kind       Kind
	Object     string
	ID         string
	HTTPStatus int
}

// RemoteError is an error-shaped payload returned by Notion.
type RemoteError struct {
	Code    string
	Message string
	Status  int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("notion: %s (%d): %s", e.Code, e.Status, e.Message)
}

// TransportError is a failure to get a decodable response at all.
type TransportError struct {
	Code string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("notion transport %s: %v", e.Code, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type response struct {
	Object  string `json:"object"`
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// CreateDatabase creates the session database.
func (c *Client) CreateDatabase(ctx context.Context, payload DatabasePayload) (*Result, error) {
	return c.Send(ctx, DatabasesPath, payload)
}

// CreatePage appends a row to a database.
func (c *Client) CreatePage(ctx context.Context, payload PagePayload) (*Result, error) {
	return c.Send(ctx, PagesPath, payload)
}

// Send POSTs body to path and interprets the response shape.
// An error-shaped payload yields both a Result and a *RemoteError.
// Requests are sent at most once.
func (c *Client) Send(ctx context.Context, path string, body any) (*Result, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", APIVersion)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	result, err := c.do(req)
	c.metrics.record(ctx, path, result, err, time.Since(start))

	log.Debug().
		Str("path", path).
		Dur("took", time.Since(start)).
		Err(err).
		Msg("Notion request finished")

	return result, err
}

func (c *Client) do(req *http.Request) (*Result, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Code: transportCode(err), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Code: transportCode(err), Err: err}
	}

	var decoded response
	if err := json.Unmarshal(raw, &decoded); err != nil {
		code := "invalid_response"
		if resp.StatusCode >= http.StatusMultipleChoices {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return nil, &TransportError{Code: code, Err: err}
	}

	result := &Result{
		Object:     decoded.Object,
		ID:         decoded.ID,
		HTTPStatus: resp.StatusCode,
	}

	switch decoded.Object {
	case "database":
		result.Kind = KindDatabase
	case "error":
		result.Kind = KindError
		status := decoded.Status
		if status == 0 {
			status = resp.StatusCode
		}
		return result, &RemoteError{Code: decoded.Code, Message: decoded.Message, Status: status}
	default:
		result.Kind = KindOther
	}
	return result, nil
}

func transportCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "network"
}
