package lazyload

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/lazyload/kit"
)

// RegisterMCP registers the scheduler tools on an MCP server.
func (s *Scheduler) RegisterMCP(srv *mcp.Server) {
	ep := s.endpoints()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "lazyload_status",
		Description: "List tracked images with their state and applied source, plus the current viewport snapshot.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.status, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "lazyload_viewport",
		Description: "Return the last viewport snapshot: size, scroll offsets and device pixel ratio.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.viewport, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "lazyload_events",
		Description: "List recorded load events, newest first. Needs a sqlite sink.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum events to return (default 100, max 1000)"},
		}, nil),
	}, ep.events, kit.DecodeJSON[eventsRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "lazyload_refresh",
		Description: "Take a new viewport snapshot now and re-evaluate every tracked image, as a resize would.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.refresh, kit.DecodeJSON[struct{}]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "lazyload_load_now",
		Description: "Load one image immediately, without fade, regardless of its position or visibility.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Tracked image ID (see lazyload_status)"},
		}, []string{"id"}),
	}, ep.loadNow, kit.DecodeJSON[imageRequest]())

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "lazyload_update",
		Description: "Send the update signal to one image: a loaded image re-resolves its source, a pending one is checked against the viewport unless force is set.",
		InputSchema: inputSchema(map[string]any{
			"id":    map[string]any{"type": "string", "description": "Tracked image ID"},
			"force": map[string]any{"type": "boolean", "description": "Bypass the viewport check and apply without fade"},
		}, []string{"id"}),
	}, ep.update, kit.DecodeJSON[imageRequest]())
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
