package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/canvas"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/scope"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/storage"
)

// WorkspaceTools holds references needed by workspace and project handlers.
type WorkspaceTools struct {
	Store *storage.Store
	Scope *scope.Scope
	Hub   *canvas.Hub
}

// --- Input types ---

type SwitchWorkspaceInput struct {
	Path string `json:"path" jsonschema:"Workspace path to switch to; created on first use"`
}

type CreateProjectInput struct {
	Name        string `json:"name" jsonschema:"Project name"`
	Description string `json:"description,omitempty" jsonschema:"Optional project description"`
}

type SwitchProjectInput struct {
	Name string `json:"name" jsonschema:"Name of the project to switch to (within the active workspace)"`
}

// --- Handlers ---

func (t *WorkspaceTools) SwitchWorkspace(_ context.Context, _ *mcp.CallToolRequest, input SwitchWorkspaceInput) (*mcp.CallToolResult, any, error) {
	if input.Path == "" {
		return toolError("Workspace path is required"), nil, nil
	}

	tenant, err := t.Scope.SwitchTenant(input.Path)
	if err != nil {
		return toolError("Failed to switch workspace: %v", err), nil, nil
	}

	t.broadcastScopeChange(tenant)
	return toolJSON(tenant)
}

func (t *WorkspaceTools) GetWorkspace(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	tenant, err := t.Scope.ActiveTenant()
	if err != nil {
		return toolError("Failed to load active workspace: %v", err), nil, nil
	}
	_, projectID := t.Scope.Active()
	proj, err := t.Store.GetProject(projectID)
	if err != nil {
		return toolError("Failed to load active project: %v", err), nil, nil
	}

	return toolJSON(map[string]any{
		"workspace": tenant,
		"project":   proj,
	})
}

func (t *WorkspaceTools) ListWorkspaces(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	tenants, err := t.Store.ListTenants()
	if err != nil {
		return toolError("Failed to list workspaces: %v", err), nil, nil
	}
	if tenants == nil {
		tenants = []models.Tenant{}
	}
	return toolJSON(tenants)
}

func (t *WorkspaceTools) CreateProject(_ context.Context, _ *mcp.CallToolRequest, input CreateProjectInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Project name is required"), nil, nil
	}

	tenantID, _ := t.Scope.Active()
	proj, err := t.Store.CreateProject(tenantID, input.Name, input.Description)
	if err != nil {
		return toolError("Failed to create project: %v", err), nil, nil
	}

	// Auto-switch to the new project
	if _, err := t.Scope.SwitchProject(proj.ID); err != nil {
		return toolError("Project created but failed to switch: %v", err), nil, nil
	}
	t.broadcastProjectElements()
	return toolJSON(proj)
}

func (t *WorkspaceTools) SwitchProject(_ context.Context, _ *mcp.CallToolRequest, input SwitchProjectInput) (*mcp.CallToolResult, any, error) {
	if input.Name == "" {
		return toolError("Project name is required"), nil, nil
	}

	tenantID, _ := t.Scope.Active()
	proj, err := t.Store.GetProjectByName(tenantID, input.Name)
	if err != nil {
		return toolError("Failed to switch project: %v", err), nil, nil
	}
	if _, err := t.Scope.SwitchProject(proj.ID); err != nil {
		return toolError("Failed to switch project: %v", err), nil, nil
	}

	t.broadcastProjectElements()
	return toolJSON(proj)
}

func (t *WorkspaceTools) ListProjects(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	tenantID, _ := t.Scope.Active()
	projects, err := t.Store.ListProjects(tenantID)
	if err != nil {
		return toolError("Failed to list projects: %v", err), nil, nil
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return toolJSON(projects)
}

// broadcastScopeChange tells connected clients the tenant changed and hands
// them the new scope's element set.
func (t *WorkspaceTools) broadcastScopeChange(tenant *models.Tenant) {
	t.Hub.Broadcast(models.CanvasMessage{Type: models.MsgTenantSwitched, Tenant: tenant})
	t.broadcastProjectElements()
}

func (t *WorkspaceTools) broadcastProjectElements() {
	_, projectID := t.Scope.Active()
	elements, err := t.Store.ListElements(projectID)
	if err != nil {
		return
	}
	payloads := make([]json.RawMessage, 0, len(elements))
	for _, el := range elements {
		payloads = append(payloads, el.Data)
	}
	t.Hub.Broadcast(models.CanvasMessage{
		Type:     models.MsgElementsSynced,
		Elements: payloads,
		Count:    len(payloads),
	})
}

// --- Shared result helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to marshal result: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
