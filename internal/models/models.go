package models

import "encoding/json"

// Tenant represents an isolated workspace. Its ID is a stable hash of the
// workspace path, so the same path always resolves to the same tenant.
type Tenant struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	WorkspacePath  string `json:"workspace_path"`
	CreatedAt      string `json:"created_at"`
	LastAccessedAt string `json:"last_accessed_at"`
}

// Project represents a named collection of canvas elements within a tenant.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	TenantID    string `json:"tenant_id"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Element represents one visual diagram object (shape, text, connector).
// Data holds the full structured payload as sent by the agent; LabelText is
// derived from it and mirrored into the full-text index.
type Element struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	LabelText *string         `json:"label_text,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
	Version   int64           `json:"version"`
	IsDeleted bool            `json:"is_deleted"`
}

// Element mutation operations recorded in the version trail.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ElementVersion is one immutable audit record of a create/update/delete.
type ElementVersion struct {
	Seq       int64           `json:"seq"`
	ElementID string          `json:"element_id"`
	ProjectID string          `json:"project_id"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	Operation string          `json:"operation"`
	CreatedAt string          `json:"created_at"`
}

// Snapshot is a named point-in-time copy of a project's element set.
type Snapshot struct {
	ProjectID string            `json:"project_id"`
	Name      string            `json:"name"`
	Elements  []json.RawMessage `json:"elements"`
	CreatedAt string            `json:"created_at"`
}

// SnapshotInfo is the listing view of a snapshot (no payloads).
type SnapshotInfo struct {
	Name         string `json:"name"`
	ElementCount int    `json:"element_count"`
	CreatedAt    string `json:"created_at"`
}

// Message types carried on the canvas socket.
const (
	MsgInitialElements    = "initial_elements"
	MsgElementCreated     = "element_created"
	MsgElementUpdated     = "element_updated"
	MsgElementDeleted     = "element_deleted"
	MsgElementsBatch      = "elements_batch_created"
	MsgElementsSynced     = "elements_synced"
	MsgCanvasCleared      = "canvas_cleared"
	MsgTenantSwitched     = "tenant_switched"
	MsgCanvasState        = "canvas_state"
	MsgCapabilityExport   = "export_canvas"
	MsgCapabilityViewport = "set_viewport"
	MsgCapabilityResponse = "capability_response"
	MsgSyncElements       = "sync_elements"
)

// CanvasMessage is the envelope for everything sent over the canvas socket.
// Only the fields relevant to a given Type are populated.
type CanvasMessage struct {
	Type      string            `json:"type"`
	Element   json.RawMessage   `json:"element,omitempty"`
	Elements  []json.RawMessage `json:"elements,omitempty"`
	ElementID string            `json:"element_id,omitempty"`
	Tenant    *Tenant           `json:"tenant,omitempty"`
	Count     int               `json:"count,omitempty"`
	Timestamp string            `json:"timestamp,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Params    json.RawMessage   `json:"params,omitempty"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Error     string            `json:"error,omitempty"`
}
