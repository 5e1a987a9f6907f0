package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/fxradio/internal/audio"
	"github.com/satindergrewal/fxradio/internal/config"
	"github.com/satindergrewal/fxradio/internal/radio"
	"github.com/satindergrewal/fxradio/internal/stream"
)

type mockRadio struct {
	listeners *stream.Registry

	commands []string
	err      error
	status   radio.Status
	effects  []string
}

func (m *mockRadio) HandleCommand(_ context.Context, command string) (radio.CommandResult, error) {
	m.commands = append(m.commands, command)
	if m.err != nil {
		return radio.CommandResult{}, m.err
	}
	return radio.CommandResult{Result: "ok"}, nil
}

func (m *mockRadio) Status() radio.Status { return m.status }

func (m *mockRadio) Effects() []string { return m.effects }

func (m *mockRadio) CreateListener() (string, *stream.Listener) {
	if m.listeners == nil {
		m.listeners = stream.NewRegistry(4)
	}
	return m.listeners.Register()
}

func (m *mockRadio) RemoveListener(id string) {
	if m.listeners != nil {
		m.listeners.Unregister(id)
	}
}

func newTestServer(t *testing.T, r Radio) *Server {
	t.Helper()
	public := t.TempDir()
	for name, body := range map[string]string{
		"home/index.html":       "<h1>home</h1>",
		"controller/index.html": "<h1>controller</h1>",
		"controller/js/view.js": "console.log('view')",
	} {
		path := filepath.Join(public, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	cfg := &config.Config{Port: 3000, PublicDir: public}
	srv := NewServer(cfg, r, zerolog.Nop())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestRootRedirectsHome(t *testing.T) {
	srv := newTestServer(t, &mockRadio{})
	rec := do(srv, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/home", rec.Header().Get("Location"))
}

func TestPages(t *testing.T) {
	srv := newTestServer(t, &mockRadio{})

	tests := []struct {
		path string
		want string
	}{
		{"/home", "<h1>home</h1>"},
		{"/controller", "<h1>controller</h1>"},
		{"/controller/js/view.js", "console.log('view')"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(srv, http.MethodGet, tt.path, "")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}

	rec := do(srv, http.MethodGet, "/missing.js", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCommand(t *testing.T) {
	m := &mockRadio{}
	srv := newTestServer(t, m)

	rec := do(srv, http.MethodPost, "/controller", `{"command":"Start"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":"ok"}`, rec.Body.String())
	assert.Equal(t, []string{"Start"}, m.commands)
}

func TestHandleCommandUnknownEffect(t *testing.T) {
	m := &mockRadio{err: fmt.Errorf("%w: %q", audio.ErrEffectNotFound, "kazoo")}
	srv := newTestServer(t, m)

	rec := do(srv, http.MethodPost, "/controller", `{"command":"kazoo"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "effect not found")
}

func TestHandleCommandBadBody(t *testing.T) {
	m := &mockRadio{}
	srv := newTestServer(t, m)

	for _, body := range []string{`{"command":`, `{"command":"  "}`, `{}`} {
		rec := do(srv, http.MethodPost, "/controller", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
	assert.Empty(t, m.commands)
}

func TestHandleStatus(t *testing.T) {
	m := &mockRadio{status: radio.Status{
		State:     radio.StatePlaying,
		Track:     &audio.Track{Name: "conversation.mp3", Path: "audio/songs/conversation.mp3", BitRate: 128000},
		ByteRate:  16000,
		Listeners: 3,
	}}
	srv := newTestServer(t, m)

	rec := do(srv, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"state": "playing",
		"track": {"name": "conversation.mp3", "path": "audio/songs/conversation.mp3", "bit_rate": 128000},
		"byte_rate": 16000,
		"listeners": 3
	}`, rec.Body.String())
}

func TestHandleEffects(t *testing.T) {
	srv := newTestServer(t, &mockRadio{})
	rec := do(srv, http.MethodGet, "/api/effects", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"effects":[]}`, rec.Body.String())

	srv = newTestServer(t, &mockRadio{effects: []string{"applause.mp3", "siren-loop.mp3"}})
	rec = do(srv, http.MethodGet, "/api/effects", "")
	assert.JSONEq(t, `{"effects":["applause.mp3","siren-loop.mp3"]}`, rec.Body.String())
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, &mockRadio{})
	rec := do(srv, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime")
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &mockRadio{})
	rec := do(srv, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "radio_listeners_connected")
}

func TestOfferPreflight(t *testing.T) {
	srv := newTestServer(t, &mockRadio{})
	rec := do(srv, http.MethodOptions, "/offer", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamRouteAttachesThroughRadio(t *testing.T) {
	m := &mockRadio{listeners: stream.NewRegistry(4)}
	ts := httptest.NewServer(newTestServer(t, m).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stream")
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return m.listeners.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	resp.Body.Close()
	require.Eventually(t, func() bool { return m.listeners.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}
