// Package mcptools exposes the proxy to agents as MCP tools. Every tool
// returns the same bodies the HTTP endpoints do: a FHIR resource or Bundle
// on success and the AIX error object otherwise.
package mcptools

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/fhirnudge/nudge/internal/domain/proxy"
	"github.com/fhirnudge/nudge/internal/domain/snapshot"
	"github.com/fhirnudge/nudge/internal/domain/validation"
)

const instructions = `Read and search resources on a FHIR R4 server.
Invalid requests are rejected before they reach the server with an error object whose
friendly_message and next_steps explain how to fix the call; follow them and retry.
Use supported_params to see which search parameters a resource type accepts.`

// NewServer builds the MCP server with every tool registered.
func NewServer(svc *proxy.Service, version string, logger zerolog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"nudge-proxy",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	read := NewReadResourceTool(svc, logger)
	s.AddTool(read.Definition(), read.Handle)
	search := NewSearchResourceTool(svc, logger)
	s.AddTool(search.Definition(), search.Handle)
	params := NewSupportedParamsTool(svc, logger)
	s.AddTool(params.Definition(), params.Handle)

	return s
}

// ReadResourceTool handles the read_resource MCP tool.
type ReadResourceTool struct {
	svc    *proxy.Service
	logger zerolog.Logger
}

func NewReadResourceTool(svc *proxy.Service, logger zerolog.Logger) *ReadResourceTool {
	return &ReadResourceTool{svc: svc, logger: logger}
}

func (t *ReadResourceTool) Definition() mcp.Tool {
	return mcp.NewTool("read_resource",
		mcp.WithDescription("Read one FHIR resource by type and id, e.g. Patient/123."),
		mcp.WithString("resource_type",
			mcp.Required(),
			mcp.Description("FHIR resource type, e.g. Patient or Observation"),
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Logical id of the resource"),
		),
	)
}

func (t *ReadResourceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rt := req.GetString("resource_type", "")
	id := req.GetString("id", "")
	if rt == "" || id == "" {
		return mcp.NewToolResultError("'resource_type' and 'id' are required"), nil
	}
	res, err := t.svc.Read(ctx, rt, id)
	if err != nil {
		return internalError(t.logger, "read_resource", err), nil
	}
	return toResult(res)
}

// SearchResourceTool handles the search_resource MCP tool.
type SearchResourceTool struct {
	svc    *proxy.Service
	logger zerolog.Logger
}

func NewSearchResourceTool(svc *proxy.Service, logger zerolog.Logger) *SearchResourceTool {
	return &SearchResourceTool{svc: svc, logger: logger}
}

func (t *SearchResourceTool) Definition() mcp.Tool {
	return mcp.NewTool("search_resource",
		mcp.WithDescription(
			"Search FHIR resources of one type. Searches that match nothing return the empty Bundle "+
				"together with friendly_message, next_steps and the supported search parameters.",
		),
		mcp.WithString("resource_type",
			mcp.Required(),
			mcp.Description("FHIR resource type, e.g. Observation"),
		),
		mcp.WithString("query",
			mcp.Description("URL query string, e.g. code=http://loinc.org|8867-4&patient=123"),
		),
	)
}

func (t *SearchResourceTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rt := req.GetString("resource_type", "")
	if rt == "" {
		return mcp.NewToolResultError("'resource_type' is required"), nil
	}
	params, err := validation.ParseQuery(req.GetString("query", ""))
	if err != nil {
		return mcp.NewToolResultError("malformed query: " + err.Error()), nil
	}
	res, err := t.svc.Search(ctx, rt, params)
	if err != nil {
		return internalError(t.logger, "search_resource", err), nil
	}
	return toResult(res)
}

// SupportedParamsTool handles the supported_params MCP tool.
type SupportedParamsTool struct {
	svc    *proxy.Service
	logger zerolog.Logger
}

func NewSupportedParamsTool(svc *proxy.Service, logger zerolog.Logger) *SupportedParamsTool {
	return &SupportedParamsTool{svc: svc, logger: logger}
}

func (t *SupportedParamsTool) Definition() mcp.Tool {
	return mcp.NewTool("supported_params",
		mcp.WithDescription("List the search parameters the server supports for a resource type."),
		mcp.WithString("resource_type",
			mcp.Required(),
			mcp.Description("FHIR resource type, e.g. Encounter"),
		),
	)
}

func (t *SupportedParamsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rt := req.GetString("resource_type", "")
	if rt == "" {
		return mcp.NewToolResultError("'resource_type' is required"), nil
	}
	params, res, err := t.svc.SupportedParams(rt)
	if err != nil {
		return internalError(t.logger, "supported_params", err), nil
	}
	if res != nil {
		return toResult(res)
	}
	return mcp.NewToolResultText(params.Markdown), nil
}

func toResult(res *proxy.Result) (*mcp.CallToolResult, error) {
	if res.Error == nil {
		return mcp.NewToolResultText(string(res.Body)), nil
	}
	body, err := json.Marshal(res.Error)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultError(string(body)), nil
}

func internalError(logger zerolog.Logger, tool string, err error) *mcp.CallToolResult {
	if errors.Is(err, snapshot.ErrNotReady) {
		return mcp.NewToolResultError("server metadata is not loaded yet, retry shortly")
	}
	logger.Error().Err(err).Str("tool", tool).Msg("tool call failed")
	return mcp.NewToolResultError("internal server error")
}
