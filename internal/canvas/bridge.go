package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
)

// Capability timeout budgets. Rasterizing an image is slower than moving the
// viewport, so it gets the larger budget.
const (
	ExportTimeout   = 30 * time.Second
	ViewportTimeout = 10 * time.Second
)

var (
	// ErrNoClients is returned when a capability is requested with no
	// rendering client connected.
	ErrNoClients = errors.New("no canvas clients connected")
	// ErrCapabilityTimeout is returned when no client produced a successful
	// result within the capability's budget.
	ErrCapabilityTimeout = errors.New("capability request timed out")
)

// Broadcaster is the hub surface the bridge needs.
type Broadcaster interface {
	ClientCount() int
	Broadcast(v any)
}

// Bridge correlates a blocking caller request with the asynchronous response
// of whichever connected client completes the capability first. Pending
// entries are in-memory only; a restart discards them all.
type Bridge struct {
	hub     Broadcaster
	mu      sync.Mutex
	pending map[string]chan json.RawMessage
}

// NewBridge creates a bridge fanning requests out through hub.
func NewBridge(hub Broadcaster) *Bridge {
	return &Bridge{hub: hub, pending: make(map[string]chan json.RawMessage)}
}

// Request broadcasts a capability request and blocks until a client posts a
// successful result, the timeout budget elapses, or ctx is cancelled. With
// zero clients connected it fails immediately without registering anything.
func (b *Bridge) Request(ctx context.Context, msgType string, params any, timeout time.Duration) (json.RawMessage, error) {
	if b.hub.ClientCount() == 0 {
		return nil, ErrNoClients
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal capability params: %w", err)
	}

	id := uuid.New().String()
	ch := make(chan json.RawMessage, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	b.hub.Broadcast(models.CanvasMessage{
		Type:      msgType,
		RequestID: id,
		Params:    paramsJSON,
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-ch:
		return data, nil
	case <-timer.C:
		b.drop(id)
		return nil, fmt.Errorf("%s: %w", msgType, ErrCapabilityTimeout)
	case <-ctx.Done():
		b.drop(id)
		return nil, ctx.Err()
	}
}

// Resolve delivers a client's result for a request id. Error results are
// logged and discarded without rejecting the pending entry, because another
// client may still succeed; only the timeout rejects. Results for unknown or
// already-resolved ids are silently ignored.
func (b *Bridge) Resolve(requestID string, data json.RawMessage, errMsg string) {
	if errMsg != "" {
		log.Printf("bridge: client error for request %s: %s", requestID, errMsg)
		return
	}

	b.mu.Lock()
	ch, ok := b.pending[requestID]
	if ok {
		delete(b.pending, requestID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	ch <- data
}

// PendingCount reports the number of in-flight capability requests.
func (b *Bridge) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) drop(requestID string) {
	b.mu.Lock()
	delete(b.pending, requestID)
	b.mu.Unlock()
}
