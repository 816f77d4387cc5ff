package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/canvas"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/geometry"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/scope"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/storage"
)

// ElementTools holds references needed by element tool handlers.
type ElementTools struct {
	Store *storage.Store
	Scope *scope.Scope
	Hub   *canvas.Hub
}

// --- Input types ---

type CreateElementInput struct {
	Element   map[string]any `json:"element" jsonschema:"Element payload: type (rectangle, ellipse, diamond, arrow, line, text, ...), x, y, width, height, and any styling fields. Arrows may carry start/end shape references."`
	Workspace string         `json:"workspace,omitempty" jsonschema:"Optional workspace path; overrides the active workspace for this call"`
}

type BatchCreateElementsInput struct {
	Elements  []map[string]any `json:"elements" jsonschema:"Array of element payloads to create together; arrows may reference shapes from the same batch"`
	Workspace string           `json:"workspace,omitempty" jsonschema:"Optional workspace path override"`
}

type UpdateElementInput struct {
	ElementID string         `json:"element_id" jsonschema:"ID of the element to update"`
	Updates   map[string]any `json:"updates" jsonschema:"Fields to merge into the element payload"`
	Workspace string         `json:"workspace,omitempty" jsonschema:"Optional workspace path override"`
}

type ElementIDInput struct {
	ElementID string `json:"element_id" jsonschema:"Element ID"`
	Workspace string `json:"workspace,omitempty" jsonschema:"Optional workspace path override"`
}

type WorkspaceOnlyInput struct {
	Workspace string `json:"workspace,omitempty" jsonschema:"Optional workspace path override"`
}

type QueryElementsInput struct {
	Type      string         `json:"type,omitempty" jsonschema:"Exact element type to match"`
	Filters   map[string]any `json:"filters,omitempty" jsonschema:"Top-level payload fields that must match exactly"`
	Workspace string         `json:"workspace,omitempty" jsonschema:"Optional workspace path override"`
}

type SearchElementsInput struct {
	Query     string `json:"query" jsonschema:"Full-text query against element labels and types (FTS5 syntax)"`
	Workspace string `json:"workspace,omitempty" jsonschema:"Optional workspace path override"`
}

type HistoryInput struct {
	ElementID string `json:"element_id,omitempty" jsonschema:"Element ID (omit for whole-canvas history)"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum entries to return (default 50)"`
	Workspace string `json:"workspace,omitempty" jsonschema:"Optional workspace path override"`
}

type SnapshotInput struct {
	Name      string `json:"name" jsonschema:"Snapshot name; saving an existing name overwrites it"`
	Workspace string `json:"workspace,omitempty" jsonschema:"Optional workspace path override"`
}

// --- Handlers ---

func (t *ElementTools) CreateElement(_ context.Context, _ *mcp.CallToolRequest, input CreateElementInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}
	if input.Element == nil {
		return toolError("Element payload is required"), nil, nil
	}
	if payloadID(input.Element) == "" {
		input.Element["id"] = uuid.New().String()
	}

	resolved := geometry.ResolveBindings([]map[string]any{input.Element}, t.storeLookup(projectID))
	payload := resolved[0]

	el, _, err := t.Store.SetElement(projectID, payloadID(payload), payload)
	if err != nil {
		return toolError("Failed to create element: %v", err), nil, nil
	}

	t.Hub.Broadcast(models.CanvasMessage{Type: models.MsgElementCreated, Element: el.Data})
	return toolJSON(el)
}

func (t *ElementTools) BatchCreateElements(_ context.Context, _ *mcp.CallToolRequest, input BatchCreateElementsInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}
	if len(input.Elements) == 0 {
		return toolError("At least one element is required"), nil, nil
	}

	// Assign ids up front so arrows can bind to shapes from the same batch.
	for _, payload := range input.Elements {
		if payloadID(payload) == "" {
			payload["id"] = uuid.New().String()
		}
	}
	resolved := geometry.ResolveBindings(input.Elements, t.storeLookup(projectID))

	var created []models.Element
	for _, payload := range resolved {
		el, _, err := t.Store.SetElement(projectID, payloadID(payload), payload)
		if err != nil {
			return toolError("Failed to create element %q: %v", payloadID(payload), err), nil, nil
		}
		created = append(created, *el)
	}

	payloads := make([]json.RawMessage, 0, len(created))
	for _, el := range created {
		payloads = append(payloads, el.Data)
	}
	t.Hub.Broadcast(models.CanvasMessage{Type: models.MsgElementsBatch, Elements: payloads, Count: len(payloads)})
	return toolJSON(created)
}

func (t *ElementTools) UpdateElement(_ context.Context, _ *mcp.CallToolRequest, input UpdateElementInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}
	if input.ElementID == "" {
		return toolError("element_id is required"), nil, nil
	}

	current, err := t.Store.GetElement(projectID, input.ElementID)
	if err != nil {
		return toolError("Failed to update: %v", err), nil, nil
	}

	var payload map[string]any
	if err := json.Unmarshal(current.Data, &payload); err != nil {
		return toolError("Failed to decode stored element: %v", err), nil, nil
	}
	for k, v := range input.Updates {
		payload[k] = v
	}

	el, _, err := t.Store.SetElement(projectID, input.ElementID, payload)
	if err != nil {
		return toolError("Failed to update element: %v", err), nil, nil
	}

	t.Hub.Broadcast(models.CanvasMessage{Type: models.MsgElementUpdated, Element: el.Data})
	return toolJSON(el)
}

func (t *ElementTools) DeleteElement(_ context.Context, _ *mcp.CallToolRequest, input ElementIDInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	deleted, err := t.Store.DeleteElement(projectID, input.ElementID)
	if err != nil {
		return toolError("Failed to delete element: %v", err), nil, nil
	}
	if !deleted {
		return toolError("Element %q not found", input.ElementID), nil, nil
	}

	t.Hub.Broadcast(models.CanvasMessage{Type: models.MsgElementDeleted, ElementID: input.ElementID})
	return toolText(fmt.Sprintf("Element %q deleted.", input.ElementID)), nil, nil
}

func (t *ElementTools) GetElement(_ context.Context, _ *mcp.CallToolRequest, input ElementIDInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	el, err := t.Store.GetElement(projectID, input.ElementID)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	return toolJSON(el)
}

func (t *ElementTools) ListElements(_ context.Context, _ *mcp.CallToolRequest, input WorkspaceOnlyInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	elements, err := t.Store.ListElements(projectID)
	if err != nil {
		return toolError("Failed to list elements: %v", err), nil, nil
	}
	if elements == nil {
		elements = []models.Element{}
	}
	return toolJSON(elements)
}

func (t *ElementTools) QueryElements(_ context.Context, _ *mcp.CallToolRequest, input QueryElementsInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	elements, err := t.Store.QueryElements(projectID, input.Type, input.Filters)
	if err != nil {
		return toolError("Query failed: %v", err), nil, nil
	}
	if elements == nil {
		elements = []models.Element{}
	}
	return toolJSON(elements)
}

func (t *ElementTools) SearchElements(_ context.Context, _ *mcp.CallToolRequest, input SearchElementsInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	elements, err := t.Store.SearchElements(projectID, input.Query)
	if err != nil {
		return toolError("Search failed: %v", err), nil, nil
	}
	if elements == nil {
		elements = []models.Element{}
	}
	return toolJSON(elements)
}

func (t *ElementTools) ClearCanvas(_ context.Context, _ *mcp.CallToolRequest, input WorkspaceOnlyInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	count, err := t.Store.ClearElements(projectID)
	if err != nil {
		return toolError("Failed to clear canvas: %v", err), nil, nil
	}

	t.Hub.Broadcast(models.CanvasMessage{Type: models.MsgCanvasCleared, Count: count})
	return toolText(fmt.Sprintf("Cleared %d elements.", count)), nil, nil
}

func (t *ElementTools) ElementHistory(_ context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	var versions []models.ElementVersion
	if input.ElementID != "" {
		versions, err = t.Store.ElementHistory(projectID, input.ElementID, input.Limit)
	} else {
		versions, err = t.Store.ProjectHistory(projectID, input.Limit)
	}
	if err != nil {
		return toolError("Failed to load history: %v", err), nil, nil
	}
	if versions == nil {
		versions = []models.ElementVersion{}
	}
	return toolJSON(versions)
}

func (t *ElementTools) SaveSnapshot(_ context.Context, _ *mcp.CallToolRequest, input SnapshotInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	elements, err := t.Store.ListElements(projectID)
	if err != nil {
		return toolError("Failed to read canvas: %v", err), nil, nil
	}
	payloads := make([]json.RawMessage, 0, len(elements))
	for _, el := range elements {
		payloads = append(payloads, el.Data)
	}

	snap, err := t.Store.SaveSnapshot(projectID, input.Name, payloads)
	if err != nil {
		return toolError("Failed to save snapshot: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Snapshot %q saved with %d elements.", snap.Name, len(snap.Elements))), nil, nil
}

func (t *ElementTools) GetSnapshot(_ context.Context, _ *mcp.CallToolRequest, input SnapshotInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	snap, err := t.Store.GetSnapshot(projectID, input.Name)
	if err != nil {
		return toolError("%v", err), nil, nil
	}
	return toolJSON(snap)
}

func (t *ElementTools) ListSnapshots(_ context.Context, _ *mcp.CallToolRequest, input WorkspaceOnlyInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	infos, err := t.Store.ListSnapshots(projectID)
	if err != nil {
		return toolError("Failed to list snapshots: %v", err), nil, nil
	}
	if infos == nil {
		infos = []models.SnapshotInfo{}
	}
	return toolJSON(infos)
}

func (t *ElementTools) RestoreSnapshot(_ context.Context, _ *mcp.CallToolRequest, input SnapshotInput) (*mcp.CallToolResult, any, error) {
	projectID, err := t.Scope.Resolve(input.Workspace)
	if err != nil {
		return toolError("Failed to resolve workspace: %v", err), nil, nil
	}

	snap, err := t.Store.GetSnapshot(projectID, input.Name)
	if err != nil {
		return toolError("%v", err), nil, nil
	}

	payloads := make([]map[string]any, 0, len(snap.Elements))
	for _, raw := range snap.Elements {
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return toolError("Snapshot %q contains a malformed element: %v", input.Name, err), nil, nil
		}
		payloads = append(payloads, payload)
	}

	stored, err := t.Store.ReplaceElements(projectID, payloads)
	if err != nil {
		return toolError("Failed to restore snapshot: %v", err), nil, nil
	}

	restored := make([]json.RawMessage, 0, len(stored))
	for _, el := range stored {
		restored = append(restored, el.Data)
	}
	t.Hub.Broadcast(models.CanvasMessage{Type: models.MsgElementsSynced, Elements: restored, Count: len(restored)})
	return toolText(fmt.Sprintf("Snapshot %q restored (%d elements).", input.Name, len(restored))), nil, nil
}

// --- Helpers ---

// storeLookup lets the geometry resolver bind arrows to shapes already on
// the canvas, not just shapes from the current batch.
func (t *ElementTools) storeLookup(projectID string) func(id string) (map[string]any, bool) {
	return func(id string) (map[string]any, bool) {
		el, err := t.Store.GetElement(projectID, id)
		if err != nil {
			return nil, false
		}
		var payload map[string]any
		if err := json.Unmarshal(el.Data, &payload); err != nil {
			return nil, false
		}
		return payload, true
	}
}

func payloadID(payload map[string]any) string {
	id, _ := payload["id"].(string)
	return id
}
