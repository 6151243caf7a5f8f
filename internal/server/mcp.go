package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"batchrpc/internal/jsonrpc"
)

// ToolHandler runs one MCP tool call
type ToolHandler func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)

type tool struct {
	def     mcp.Tool
	handler ToolHandler
}

// Tools is the MCP tool registry behind tools/list and tools/call
type Tools struct {
	info  mcp.Implementation
	tools map[string]tool
}

// NewTools creates a registry announcing itself as name/version
func NewTools(name, version string) *Tools {
	return &Tools{
		info:  mcp.Implementation{Name: name, Version: version},
		tools: make(map[string]tool),
	}
}

// Add registers a tool
func (t *Tools) Add(def mcp.Tool, h ToolHandler) {
	t.tools[def.Name] = tool{def: def, handler: h}
}

// Register adds initialize, tools/list and tools/call to d
func (t *Tools) Register(d *Dispatcher) {
	d.Register(string(mcp.MethodInitialize), t.initialize)
	d.Register(string(mcp.MethodToolsList), t.list, Cacheable())
	d.Register(string(mcp.MethodToolsCall), t.call)
}

func (t *Tools) initialize(context.Context, json.RawMessage) (interface{}, error) {
	return &mcp.InitializeResult{
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		ServerInfo:      t.info,
	}, nil
}

func (t *Tools) list(context.Context, json.RawMessage) (interface{}, error) {
	names := make([]string, 0, len(t.tools))
	for name := range t.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	result := &mcp.ListToolsResult{Tools: make([]mcp.Tool, 0, len(names))}
	for _, name := range names {
		result.Tools = append(result.Tools, t.tools[name].def)
	}
	return result, nil
}

func (t *Tools) call(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p mcp.CallToolParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}

	tl, ok := t.tools[p.Name]
	if !ok {
		return nil, jsonrpc.NewError(jsonrpc.CodeInvalidParams, fmt.Sprintf("unknown tool: %s", p.Name))
	}

	var req mcp.CallToolRequest
	req.Params = p
	result, err := tl.handler(ctx, req)
	if err != nil {
		// tool failures are reported in the result, not as protocol errors
		return mcp.NewToolResultError(err.Error()), nil
	}
	return result, nil
}

// DefaultTools returns the registry with the echo and sleep tools
func DefaultTools(name, version string) *Tools {
	t := NewTools(name, version)
	t.Add(
		mcp.NewTool("echo",
			mcp.WithDescription("Returns the given message"),
			mcp.WithString("message", mcp.Required(), mcp.Description("Text to echo back")),
		),
		echoTool,
	)
	t.Add(
		mcp.NewTool("sleep",
			mcp.WithDescription("Waits for the given number of milliseconds"),
			mcp.WithNumber("ms", mcp.Required(), mcp.Description("Milliseconds to wait")),
		),
		sleepTool,
	)
	return t
}

func echoTool(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	msg, ok := req.GetArguments()["message"].(string)
	if !ok {
		return nil, fmt.Errorf("message must be a string")
	}
	return mcp.NewToolResultText(msg), nil
}

func sleepTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ms, ok := req.GetArguments()["ms"].(float64)
	if !ok {
		return nil, fmt.Errorf("ms must be a number")
	}
	d, err := sleepDuration(int64(ms))
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return mcp.NewToolResultText(fmt.Sprintf("slept %dms", d.Milliseconds())), nil
}
