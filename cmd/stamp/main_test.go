package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/notionstamp/internal/notion"
	"github.com/thebtf/notionstamp/pkg/control"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func newDaemon(t *testing.T, status int) (*httptest.Server, *[]recorded) {
	t.Helper()
	var calls []recorded
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, body: body})
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"requestId": "r1"})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestRun_Commands(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		method string
		path   string
		check  func(t *testing.T, body map[string]any)
	}{
		{
			name:   "start with options",
			args:   []string{"start", "-name", "Show", "-auto"},
			method: http.MethodPost,
			path:   "/api/session/start",
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Show", body["databaseName"])
				assert.Equal(t, true, body["autoCreateStartRecord"])
			},
		},
		{
			name:   "marker joins words",
			args:   []string{"marker", "cue", "12"},
			method: http.MethodPost,
			path:   "/api/marker",
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "cue 12", body["message"])
			},
		},
		{name: "stop", args: []string{"stop"}, method: http.MethodPost, path: "/api/session/stop"},
		{name: "status", args: []string{"status"}, method: http.MethodGet, path: "/api/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, calls := newDaemon(t, http.StatusOK)
			var stdout, stderr bytes.Buffer

			code := run(append([]string{"-addr", server.URL}, tt.args...), &stdout, &stderr)
			require.Equal(t, control.ExitSuccess, code, stderr.String())

			require.Len(t, *calls, 1)
			call := (*calls)[0]
			assert.Equal(t, tt.method, call.method)
			assert.Equal(t, tt.path, call.path)
			if tt.check != nil {
				tt.check(t, call.body)
			}
			assert.Contains(t, stdout.String(), "r1")
		})
	}
}

func TestRun_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, control.ExitFailure, run(nil, &stdout, &stderr))
	assert.Equal(t, control.ExitFailure, run([]string{"bogus"}, &stdout, &stderr))

	server, _ := newDaemon(t, http.StatusBadGateway)
	assert.Equal(t, control.ExitFailure, run([]string{"-addr", server.URL, "stop"}, &stdout, &stderr))

	down := httptest.NewServer(http.NotFoundHandler())
	url := down.URL
	down.Close()
	assert.Equal(t, control.ExitUnavailable, run([]string{"-addr", url, "stop"}, &stdout, &stderr))
}

func TestRequestTimeoutCoversRestart(t *testing.T) {
	assert.Greater(t, requestTimeout, 3*notion.DefaultTimeout)
}
