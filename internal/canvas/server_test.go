package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/scope"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/storage"
)

type canvasFixture struct {
	store     *storage.Store
	scope     *scope.Scope
	hub       *Hub
	bridge    *Bridge
	server    *Server
	ts        *httptest.Server
	projectID string
}

func setupCanvas(t *testing.T) *canvasFixture {
	t.Helper()

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sc, err := scope.New(store)
	require.NoError(t, err)

	hub := NewHub()
	bridge := NewBridge(hub)
	srv := NewServer(store, sc, hub, bridge, "127.0.0.1:0")

	ts := httptest.NewServer(srv.http.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(hub.CloseAll)

	_, projectID := sc.Active()
	return &canvasFixture{
		store: store, scope: sc, hub: hub, bridge: bridge,
		server: srv, ts: ts, projectID: projectID,
	}
}

func (f *canvasFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err, "dial %s", url)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) models.CanvasMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err, "read canvas message")
	var msg models.CanvasMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

// drainWelcome consumes the three-message greeting every new client receives.
func drainWelcome(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	for i := 0; i < 3; i++ {
		readMessage(t, conn)
	}
}

func TestHealthz(t *testing.T) {
	f := setupCanvas(t)

	resp, err := http.Get(f.ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Zero(t, body.Clients)
}

func TestWelcomeSequence(t *testing.T) {
	f := setupCanvas(t)

	_, _, err := f.store.SetElement(f.projectID, "r1", map[string]any{
		"id": "r1", "type": "rectangle", "x": 0.0, "y": 0.0, "width": 10.0, "height": 10.0,
	})
	require.NoError(t, err)

	conn := f.dial(t)

	first := readMessage(t, conn)
	require.Equal(t, models.MsgTenantSwitched, first.Type)
	require.NotNil(t, first.Tenant)
	assert.Equal(t, storage.DefaultWorkspace, first.Tenant.WorkspacePath)

	second := readMessage(t, conn)
	require.Equal(t, models.MsgInitialElements, second.Type)
	assert.Len(t, second.Elements, 1)

	third := readMessage(t, conn)
	require.Equal(t, models.MsgCanvasState, third.Type)
	assert.Equal(t, 1, third.Count)

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	f := setupCanvas(t)

	a := f.dial(t)
	b := f.dial(t)
	drainWelcome(t, a)
	drainWelcome(t, b)

	f.hub.Broadcast(models.CanvasMessage{Type: models.MsgCanvasCleared, Count: 0})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, models.MsgCanvasCleared, msg.Type)
	}
}

func TestListElementsEndpoint(t *testing.T) {
	f := setupCanvas(t)

	_, _, err := f.store.SetElement(f.projectID, "r1", map[string]any{
		"id": "r1", "type": "rectangle", "x": 1.0, "y": 2.0,
	})
	require.NoError(t, err)

	resp, err := http.Get(f.ts.URL + "/api/elements")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Elements []map[string]any `json:"elements"`
		Count    int              `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "r1", body.Elements[0]["id"])
}

func TestSyncEndpointReplacesAndBroadcasts(t *testing.T) {
	f := setupCanvas(t)

	_, _, err := f.store.SetElement(f.projectID, "old", map[string]any{
		"id": "old", "type": "rectangle",
	})
	require.NoError(t, err)

	conn := f.dial(t)
	drainWelcome(t, conn)

	payload, _ := json.Marshal(map[string]any{
		"elements": []map[string]any{
			{"id": "n1", "type": "rectangle", "x": 0.0, "y": 0.0},
			{"id": "n2", "type": "ellipse", "x": 10.0, "y": 10.0},
		},
	})
	resp, err := http.Post(f.ts.URL+"/api/elements/sync", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	elements, err := f.store.ListElements(f.projectID)
	require.NoError(t, err)
	require.Len(t, elements, 2)
	if _, err := f.store.GetElement(f.projectID, "old"); err == nil {
		t.Error("sync should have replaced the previous element set")
	}

	msg := readMessage(t, conn)
	assert.Equal(t, models.MsgElementsSynced, msg.Type)
	assert.Equal(t, 2, msg.Count)
}

func TestSyncEndpointRejectsBadJSON(t *testing.T) {
	f := setupCanvas(t)

	resp, err := http.Post(f.ts.URL+"/api/elements/sync", "application/json",
		strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCapabilityRoundtripOverSocket(t *testing.T) {
	f := setupCanvas(t)

	conn := f.dial(t)
	drainWelcome(t, conn)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	type outcome struct {
		data json.RawMessage
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		data, err := f.bridge.Request(context.Background(), models.MsgCapabilityExport,
			map[string]any{"format": "png"}, 2*time.Second)
		done <- outcome{data, err}
	}()

	// The client sees the capability request and answers it.
	req := readMessage(t, conn)
	require.Equal(t, models.MsgCapabilityExport, req.Type)
	require.NotEmpty(t, req.RequestID)

	reply, _ := json.Marshal(models.CanvasMessage{
		Type:      models.MsgCapabilityResponse,
		RequestID: req.RequestID,
		Data:      json.RawMessage(`{"image":"data:image/png;base64,AAAA"}`),
	})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, reply))

	res := <-done
	require.NoError(t, res.err)
	assert.Contains(t, string(res.data), "image/png")
}

func TestSyncFromClientMessage(t *testing.T) {
	f := setupCanvas(t)

	conn := f.dial(t)
	drainWelcome(t, conn)

	el, _ := json.Marshal(map[string]any{"id": "c1", "type": "rectangle", "x": 5.0, "y": 5.0})
	msg, _ := json.Marshal(models.CanvasMessage{
		Type:     models.MsgSyncElements,
		Elements: []json.RawMessage{el},
	})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	// The sync round-trips back as a broadcast once the store is updated.
	echo := readMessage(t, conn)
	assert.Equal(t, models.MsgElementsSynced, echo.Type)
	assert.Equal(t, 1, echo.Count)

	got, err := f.store.GetElement(f.projectID, "c1")
	require.NoError(t, err)
	assert.Equal(t, "rectangle", got.Type)
}

func TestClientPrunedAfterClose(t *testing.T) {
	f := setupCanvas(t)

	conn := f.dial(t)
	drainWelcome(t, conn)
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 },
		time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond, "closed client should be unregistered")
}
