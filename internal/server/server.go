package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/canvas"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/scope"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/storage"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/tools"
)

// New creates a fully configured MCP server with all tools registered.
func New(store *storage.Store, sc *scope.Scope, hub *canvas.Hub, bridge *canvas.Bridge) *mcp.Server {
	et := &tools.ElementTools{Store: store, Scope: sc, Hub: hub}
	wt := &tools.WorkspaceTools{Store: store, Scope: sc, Hub: hub}
	ct := &tools.CapabilityTools{Bridge: bridge}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "canvas-mcp",
		Version: "0.1.0",
	}, nil)

	// Element tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_element",
		Description: "Create one canvas element (shape, text, arrow). Arrows with start/end shape references get edge-anchored automatically",
	}, et.CreateElement)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "batch_create_elements",
		Description: "Create multiple elements at once; arrows may bind to shapes from the same batch",
	}, et.BatchCreateElements)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "update_element",
		Description: "Merge fields into an existing element's payload (bumps its version)",
	}, et.UpdateElement)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "delete_element",
		Description: "Delete an element from the canvas (soft delete; history is kept)",
	}, et.DeleteElement)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_element",
		Description: "Get one element by id",
	}, et.GetElement)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_elements",
		Description: "List all elements on the canvas",
	}, et.ListElements)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "query_elements",
		Description: "Filter elements by exact type and payload field values (full scan; fine at diagram scale)",
	}, et.QueryElements)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "search_elements",
		Description: "Full-text search over element labels and types (FTS5 syntax)",
	}, et.SearchElements)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "clear_canvas",
		Description: "Delete every element on the canvas (soft delete; history is kept)",
	}, et.ClearCanvas)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "element_history",
		Description: "Version history for one element, or the whole canvas when element_id is omitted (newest first)",
	}, et.ElementHistory)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "save_snapshot",
		Description: "Save the current canvas as a named snapshot (overwrites an existing name)",
	}, et.SaveSnapshot)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_snapshot",
		Description: "Load a named snapshot's element payloads",
	}, et.GetSnapshot)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_snapshots",
		Description: "List snapshots with element counts, newest first",
	}, et.ListSnapshots)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "restore_snapshot",
		Description: "Replace the canvas contents with a named snapshot (atomic)",
	}, et.RestoreSnapshot)

	// Workspace and project tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "switch_workspace",
		Description: "Switch the active workspace (isolated per path; created on first use)",
	}, wt.SwitchWorkspace)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_workspace",
		Description: "Get the active workspace and project",
	}, wt.GetWorkspace)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_workspaces",
		Description: "List all known workspaces",
	}, wt.ListWorkspaces)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_project",
		Description: "Create a project in the active workspace and switch to it",
	}, wt.CreateProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "switch_project",
		Description: "Switch the active project within the active workspace",
	}, wt.SwitchProject)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_projects",
		Description: "List the active workspace's projects",
	}, wt.ListProjects)

	// Capabilities fulfilled by a connected canvas client
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "export_canvas",
		Description: "Export the canvas as PNG or SVG (requires a connected canvas client)",
	}, ct.ExportCanvas)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "set_viewport",
		Description: "Scroll/zoom the canvas viewport or fit it to content (requires a connected canvas client)",
	}, ct.SetViewport)

	return srv
}
