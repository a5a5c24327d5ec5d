package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/sitewarden/sitewarden/internal/analyzers"
	"github.com/sitewarden/sitewarden/internal/app"
	"github.com/sitewarden/sitewarden/internal/common"
	"github.com/sitewarden/sitewarden/internal/interfaces"
	"github.com/sitewarden/sitewarden/internal/models"
)

// Test helper - API server over a fresh workspace
func newTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()
	cfg := common.DefaultConfig()
	cfg.Workspace.Root = t.TempDir()

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(application.Close)

	s := New(application)
	unsubscribe := application.Events.Subscribe(s.hub.broadcast)
	t.Cleanup(unsubscribe)

	ts := httptest.NewServer(s.withMiddleware(s.router))
	t.Cleanup(ts.Close)
	return ts, application
}

// Test helper - request with optional JSON body, decoded response
func doJSON(t *testing.T, method, url string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestCreateAndGetProject(t *testing.T) {
	ts, _ := newTestServer(t)

	var created models.Project
	status := doJSON(t, http.MethodPost, ts.URL+"/api/projects", map[string]string{"url": "https://example.com/"}, &created)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "example-com", created.Slug)
	assert.Equal(t, "https://example.com/", created.RootURL)

	var projects []*models.Project
	status = doJSON(t, http.MethodGet, ts.URL+"/api/projects", nil, &projects)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, projects, 1)

	var got models.Project
	status = doJSON(t, http.MethodGet, ts.URL+"/api/projects/example-com", nil, &got)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "example-com", got.Slug)
}

func TestErrorEnvelopeMapping(t *testing.T) {
	ts, _ := newTestServer(t)

	var env common.Envelope
	status := doJSON(t, http.MethodGet, ts.URL+"/api/projects/no-such-project", nil, &env)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, common.ErrNotFound, env.Kind)

	env = common.Envelope{}
	status = doJSON(t, http.MethodPost, ts.URL+"/api/projects", map[string]string{}, &env)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, common.ErrUsage, env.Kind)
}

func TestCreateProjectDuplicate(t *testing.T) {
	ts, _ := newTestServer(t)

	status := doJSON(t, http.MethodPost, ts.URL+"/api/projects", map[string]string{"url": "https://example.com/"}, nil)
	require.Equal(t, http.StatusCreated, status)

	var env common.Envelope
	status = doJSON(t, http.MethodPost, ts.URL+"/api/projects", map[string]string{"url": "https://example.com/"}, &env)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, common.ErrUsage, env.Kind)
}

func TestListPlugins(t *testing.T) {
	ts, _ := newTestServer(t)

	var plugins []analyzers.Description
	status := doJSON(t, http.MethodGet, ts.URL+"/api/plugins", nil, &plugins)
	assert.Equal(t, http.StatusOK, status)

	names := make([]string, 0, len(plugins))
	for _, p := range plugins {
		names = append(names, p.Name)
	}
	assert.Contains(t, names, "seo-audit")
	assert.Contains(t, names, "pattern-scanner")
}

func TestVersionEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var body map[string]string
	status := doJSON(t, http.MethodGet, ts.URL+"/api/version", nil, &body)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["version"])
}

func TestListSnapshotsAndResults(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/projects", map[string]string{"url": "https://example.com/"}, nil)

	var ids []string
	status := doJSON(t, http.MethodGet, ts.URL+"/api/projects/example-com/snapshots", nil, &ids)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, ids)

	status = doJSON(t, http.MethodGet, ts.URL+"/api/projects/example-com/results", nil, nil)
	assert.Equal(t, http.StatusOK, status)

	var env common.Envelope
	status = doJSON(t, http.MethodGet, ts.URL+"/api/projects/missing/results", nil, &env)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestTransitionIssueValidation(t *testing.T) {
	ts, _ := newTestServer(t)
	doJSON(t, http.MethodPost, ts.URL+"/api/projects", map[string]string{"url": "https://example.com/"}, nil)

	var env common.Envelope
	status := doJSON(t, http.MethodPost, ts.URL+"/api/projects/example-com/issues/0001/transition", map[string]string{}, &env)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, common.ErrUsage, env.Kind)

	env = common.Envelope{}
	status = doJSON(t, http.MethodPost, ts.URL+"/api/projects/example-com/issues/0001/transition",
		map[string]string{"status": "fixed"}, &env)
	assert.Equal(t, http.StatusNotFound, status, "unknown issue id")
}

func TestWebsocketStreamsEvents(t *testing.T) {
	ts, application := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the hub a moment to register the client before publishing.
	time.Sleep(50 * time.Millisecond)
	application.Events.Publish(interfaces.Event{
		Type:    interfaces.EventCrawlStarted,
		Project: "example-com",
		Message: "crawl started",
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev interfaces.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, interfaces.EventCrawlStarted, ev.Type)
	assert.Equal(t, "example-com", ev.Project)
}
