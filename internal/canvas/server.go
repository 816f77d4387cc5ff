package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/scope"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The canvas front-end is served locally; cross-origin is fine here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server hosts the canvas-facing HTTP surface: the WebSocket endpoint the
// front-end connects to, a health check, and a small REST API for reading
// and overwriting the live element set.
type Server struct {
	store  *storage.Store
	scope  *scope.Scope
	hub    *Hub
	bridge *Bridge
	http   *http.Server
}

// NewServer wires the canvas HTTP server. Call Start to serve.
func NewServer(store *storage.Store, sc *scope.Scope, hub *Hub, bridge *Bridge, addr string) *Server {
	s := &Server{store: store, scope: sc, hub: hub, bridge: bridge}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)
	r.GET("/api/elements", s.handleListElements)
	r.POST("/api/elements/sync", s.handleSync)
	r.GET("/ws", s.handleWS)

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Printf("Canvas server listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes all client connections and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
	})
}

func (s *Server) handleListElements(c *gin.Context) {
	projectID, err := s.scope.Resolve(c.Query("workspace"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	elements, err := s.store.ListElements(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list elements"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"elements": rawPayloads(elements),
		"count":    len(elements),
	})
}

// handleSync lets a rendering client overwrite the full element set, e.g.
// after the user edited the canvas directly.
func (s *Server) handleSync(c *gin.Context) {
	var req struct {
		Elements []map[string]any `json:"elements"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, projectID := s.scope.Active()
	stored, err := s.store.ReplaceElements(projectID, req.Elements)
	if err != nil {
		log.Printf("Sync failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sync elements"})
		return
	}

	s.hub.Broadcast(models.CanvasMessage{
		Type:      models.MsgElementsSynced,
		Elements:  rawPayloads(stored),
		Count:     len(stored),
		Timestamp: nowStamp(),
	})
	c.JSON(http.StatusOK, gin.H{"count": len(stored)})
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	tenant, err := s.scope.ActiveTenant()
	if err != nil {
		log.Printf("Load active tenant: %v", err)
		conn.Close()
		return
	}
	_, projectID := s.scope.Active()
	elements, err := s.store.ListElements(projectID)
	if err != nil {
		log.Printf("Load initial elements: %v", err)
		conn.Close()
		return
	}

	// New clients get the active tenant, the full element set, then a state
	// summary, in that order.
	payloads := rawPayloads(elements)
	s.hub.Register(conn,
		models.CanvasMessage{Type: models.MsgTenantSwitched, Tenant: tenant},
		models.CanvasMessage{Type: models.MsgInitialElements, Elements: payloads},
		models.CanvasMessage{Type: models.MsgCanvasState, Count: len(payloads), Timestamp: nowStamp()},
	)

	go s.readLoop(conn)
}

// readLoop handles messages a canvas client sends back: full-state syncs and
// capability results. Exits (and drops the client) on any read error.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.hub.Unregister(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg models.CanvasMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("Malformed canvas message: %v", err)
			continue
		}

		switch msg.Type {
		case models.MsgSyncElements:
			s.syncFromClient(msg.Elements)
		case models.MsgCapabilityResponse:
			s.bridge.Resolve(msg.RequestID, msg.Data, msg.Error)
		default:
			log.Printf("Ignoring canvas message type %q", msg.Type)
		}
	}
}

func (s *Server) syncFromClient(raw []json.RawMessage) {
	payloads := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		var payload map[string]any
		if err := json.Unmarshal(r, &payload); err != nil {
			log.Printf("Skipping malformed element in sync: %v", err)
			return
		}
		payloads = append(payloads, payload)
	}

	_, projectID := s.scope.Active()
	stored, err := s.store.ReplaceElements(projectID, payloads)
	if err != nil {
		log.Printf("Sync from client failed: %v", err)
		return
	}
	s.hub.Broadcast(models.CanvasMessage{
		Type:      models.MsgElementsSynced,
		Elements:  rawPayloads(stored),
		Count:     len(stored),
		Timestamp: nowStamp(),
	})
}

func rawPayloads(elements []models.Element) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(elements))
	for _, el := range elements {
		out = append(out, el.Data)
	}
	return out
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
