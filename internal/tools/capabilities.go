package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/canvas"
	"github.com/wagnerlima/canvas-cloud/canvas-mcp/internal/models"
)

// CapabilityTools exposes operations only a connected rendering client can
// perform, bridged through request-id correlation.
type CapabilityTools struct {
	Bridge *canvas.Bridge
}

// --- Input types ---

type ExportCanvasInput struct {
	Format     string  `json:"format,omitempty" jsonschema:"Export format: png or svg (default png)"`
	Scale      float64 `json:"scale,omitempty" jsonschema:"Raster scale factor (default 1)"`
	Background bool    `json:"background,omitempty" jsonschema:"Include the canvas background"`
}

type SetViewportInput struct {
	X            float64 `json:"x,omitempty" jsonschema:"Scroll x"`
	Y            float64 `json:"y,omitempty" jsonschema:"Scroll y"`
	Zoom         float64 `json:"zoom,omitempty" jsonschema:"Zoom level (1 = 100%)"`
	FitToContent bool    `json:"fit_to_content,omitempty" jsonschema:"Zoom and scroll to fit all elements, ignoring x/y/zoom"`
}

// --- Handlers ---

func (t *CapabilityTools) ExportCanvas(ctx context.Context, _ *mcp.CallToolRequest, input ExportCanvasInput) (*mcp.CallToolResult, any, error) {
	if input.Format == "" {
		input.Format = "png"
	}
	if input.Format != "png" && input.Format != "svg" {
		return toolError("Unsupported format %q (use png or svg)", input.Format), nil, nil
	}
	if input.Scale == 0 {
		input.Scale = 1
	}

	data, err := t.Bridge.Request(ctx, models.MsgCapabilityExport, input, canvas.ExportTimeout)
	if err != nil {
		return toolError("Export failed: %v", err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func (t *CapabilityTools) SetViewport(ctx context.Context, _ *mcp.CallToolRequest, input SetViewportInput) (*mcp.CallToolResult, any, error) {
	data, err := t.Bridge.Request(ctx, models.MsgCapabilityViewport, input, canvas.ViewportTimeout)
	if err != nil {
		return toolError("Viewport change failed: %v", err), nil, nil
	}
	if len(data) == 0 {
		return toolText("Viewport updated."), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
