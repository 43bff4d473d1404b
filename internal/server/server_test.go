package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/notionstamp/internal/config"
	"github.com/thebtf/notionstamp/internal/notion"
	"github.com/thebtf/notionstamp/internal/server/sse"
	"github.com/thebtf/notionstamp/internal/session"
	"github.com/thebtf/notionstamp/pkg/models"
)

// fakeNotion records requests and answers like the Notion API.
type fakeNotion struct {
	mu       sync.Mutex
	paths    []string
	bodies   []map[string]any
	rejectDB bool
	delay    time.Duration
}

func (f *fakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.bodies = append(f.bodies, body)
	reject, delay := f.rejectDB, f.delay
	f.mu.Unlock()

	time.Sleep(delay)

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == notion.DatabasesPath && reject:
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"object":"error","status":401,"code":"unauthorized","message":"bad token"}`))
	case r.URL.Path == notion.DatabasesPath:
		_, _ = w.Write([]byte(`{"object":"database","id":"db-http"}`))
	default:
		_, _ = w.Write([]byte(`{"object":"page","id":"page-1"}`))
	}
}

func (f *fakeNotion) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func (f *fakeNotion) messageText(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	props := f.bodies[i]["properties"].(map[string]any)
	title := props["message"].(map[string]any)["title"].([]any)
	return title[0].(map[string]any)["text"].(map[string]any)["content"].(string)
}

// ServerSuite drives the control surface against a fake Notion API.
type ServerSuite struct {
	suite.Suite
	notion  *fakeNotion
	api     *httptest.Server
	manager *session.Manager
	server  *httptest.Server
}

func (s *ServerSuite) SetupTest() {
	s.notion = &fakeNotion{}
	s.api = httptest.NewServer(s.notion)

	s.manager = session.NewManager()
	cfg := config.Default()
	cfg.APIKey = "secret"
	cfg.ParentPageID = "parent"
	cfg.BaseURL = s.api.URL
	s.Require().NoError(s.manager.OnInit(cfg))

	s.server = httptest.NewServer(New(s.manager, sse.NewBroadcaster(), "test").Handler())
}

func (s *ServerSuite) TearDownTest() {
	s.server.Close()
	s.api.Close()
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) post(path, body string) (int, CommandResponse) {
	resp, err := http.Post(s.server.URL+path, "application/json", bytes.NewBufferString(body))
	s.Require().NoError(err)
	defer resp.Body.Close()

	var out CommandResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// TestSessionFlow tests start, marker and stop over HTTP.
func (s *ServerSuite) TestSessionFlow() {
	code, resp := s.post("/api/session/start", `{"databaseName":"Rehearsal","autoCreateStartRecord":true}`)
	s.Equal(http.StatusOK, code)
	s.NotEmpty(resp.RequestID)
	s.Empty(resp.Error)
	s.True(resp.Snapshot.Session.Active)
	s.Equal("db-http", resp.Snapshot.Session.DatabaseID)

	code, _ = s.post("/api/marker?message=cue%2012", "")
	s.Equal(http.StatusOK, code)

	code, resp = s.post("/api/session/stop", "")
	s.Equal(http.StatusOK, code)
	s.False(resp.Snapshot.Session.Active)

	s.Equal([]string{notion.DatabasesPath, notion.PagesPath, notion.PagesPath, notion.PagesPath}, s.notion.Paths())
	s.Equal("start", s.notion.messageText(1))
	s.Equal("cue 12", s.notion.messageText(2))
	s.Equal("stop", s.notion.messageText(3))
}

// TestMarkerWithoutSession tests the silent no-op.
func (s *ServerSuite) TestMarkerWithoutSession() {
	code, resp := s.post("/api/marker", `{"message":"ignored"}`)
	s.Equal(http.StatusOK, code)
	s.Empty(resp.Error)
	s.Empty(s.notion.Paths())
}

// TestRemoteRejection tests that Notion errors surface as 502 with status.
func (s *ServerSuite) TestRemoteRejection() {
	s.notion.mu.Lock()
	s.notion.rejectDB = true
	s.notion.mu.Unlock()

	code, resp := s.post("/api/session/start", "")
	s.Equal(http.StatusBadGateway, code)
	s.Contains(resp.Error, "unauthorized")
	s.Equal(401, resp.Snapshot.Status.HTTPStatus)
	s.Equal("unauthorized", resp.Snapshot.Status.Code)
	s.False(resp.Snapshot.Session.Active)
}

// TestCallerHangUp tests that a command completes after the caller disconnects.
func (s *ServerSuite) TestCallerHangUp() {
	s.notion.mu.Lock()
	s.notion.delay = 300 * time.Millisecond
	s.notion.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.server.URL+"/api/session/start", strings.NewReader(`{"databaseName":"Late"}`))
	s.Require().NoError(err)
	_, err = http.DefaultClient.Do(req)
	s.Require().Error(err)

	s.Eventually(func() bool {
		return s.manager.Snapshot().Session.Active
	}, 2*time.Second, 10*time.Millisecond)

	snap := s.manager.Snapshot()
	s.Equal("db-http", snap.Session.DatabaseID)
	s.Equal(models.StatusOK, snap.Status.Level)
}

// TestBadRequests tests malformed input.
func (s *ServerSuite) TestBadRequests() {
	code, _ := s.post("/api/session/start", `{not json`)
	s.Equal(http.StatusBadRequest, code)

	code, _ = s.post("/api/session/start?autoCreateStartRecord=maybe", "")
	s.Equal(http.StatusBadRequest, code)

	s.Empty(s.notion.Paths())
}

// TestReadEndpoints tests status, health and definition endpoints.
func (s *ServerSuite) TestReadEndpoints() {
	for _, path := range []string{"/api/health", "/api/status", "/api/actions", "/api/config/fields"} {
		resp, err := http.Get(s.server.URL + path)
		s.Require().NoError(err, path)
		s.Equal(http.StatusOK, resp.StatusCode, path)
		s.Equal("application/json", resp.Header.Get("Content-Type"), path)
		resp.Body.Close()
	}

	resp, err := http.Get(s.server.URL + "/api/actions")
	s.Require().NoError(err)
	defer resp.Body.Close()
	var actions []session.Action
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&actions))
	s.Len(actions, 3)
}

func TestServer_NotConfigured(t *testing.T) {
	m := session.NewManager()
	_ = m.OnInit(config.Default())

	srv := httptest.NewServer(New(m, nil, "test").Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/session/start", "application/json", strings.NewReader(""))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	events, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer events.Body.Close()
	assert.Equal(t, http.StatusNotFound, events.StatusCode)
}

func TestServe_StopsOnCancel(t *testing.T) {
	s := New(session.NewManager(), nil, "test")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	cancel()

	assert.NoError(t, <-done)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, http.StatusOK},
		{"unknown command", session.ErrUnknownCommand, http.StatusBadRequest},
		{"not configured", session.ErrNotConfigured, http.StatusServiceUnavailable},
		{"missing key", errors.Join(config.ErrMissingAPIKey), http.StatusServiceUnavailable},
		{"remote", &notion.RemoteError{Code: "x"}, http.StatusBadGateway},
		{"transport", &notion.TransportError{Code: "timeout", Err: context.DeadlineExceeded}, http.StatusBadGateway},
		{"canceled", context.Canceled, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, statusFor(tt.err))
		})
	}
}
