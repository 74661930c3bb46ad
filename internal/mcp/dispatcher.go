// ABOUTME: Stateless JSON-RPC dispatcher for initialize, ping, tools/list and tools/call.
// ABOUTME: Tool failures stay in-band; only protocol faults become JSON-RPC errors.

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/2389/maps-gateway/internal/tools"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
}

// LatestProtocolVersion is the version we advertise when the client asks for one we do not know.
const LatestProtocolVersion = "2025-06-18"

// Executor runs the map tools. Implementations validate their own arguments and
// report every failure in-band; they never return a Go error.
type Executor interface {
	Geocode(ctx context.Context, args json.RawMessage) tools.Result
	ReverseGeocode(ctx context.Context, args json.RawMessage) tools.Result
	Render(ctx context.Context, args json.RawMessage) tools.Result
}

// ServerInfo identifies the gateway in initialize responses.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the result for initialize.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      ServerInfo     `json:"serverInfo"`
}

// ListToolsResult is the result for tools/list.
type ListToolsResult struct {
	Tools []tools.Descriptor `json:"tools"`
}

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// DispatcherConfig holds the collaborators of a Dispatcher.
type DispatcherConfig struct {
	Registry   *tools.Registry
	Executor   Executor
	Logger     *slog.Logger
	ServerInfo ServerInfo
}

// Dispatcher translates decoded protocol messages into registry lookups and
// executor calls. It keeps no state between calls.
type Dispatcher struct {
	registry *tools.Registry
	executor Executor
	logger   *slog.Logger
	info     ServerInfo
}

// NewDispatcher creates a dispatcher with the given configuration.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("executor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	info := cfg.ServerInfo
	if info.Name == "" {
		info.Name = "maps-gateway"
	}
	if info.Version == "" {
		info.Version = "dev"
	}

	return &Dispatcher{
		registry: cfg.Registry,
		executor: cfg.Executor,
		logger:   logger,
		info:     info,
	}, nil
}

// Tools returns the catalog served by tools/list.
func (d *Dispatcher) Tools() []tools.Descriptor {
	return d.registry.List()
}

// Handle parses one raw message and dispatches it. It returns nil for
// notifications, which never get a response.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) *Response {
	req, err := ParseRequest(raw)
	if err != nil {
		return d.Reject(req, err)
	}
	return d.HandleRequest(ctx, req)
}

// HandleRequest dispatches an already parsed request. It returns nil for
// notifications.
func (d *Dispatcher) HandleRequest(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		d.notify(req)
		return nil
	}
	return d.Dispatch(ctx, req.Method, req.Params, req.ID)
}

// Reject converts a ParseRequest failure into a protocol error response.
func (d *Dispatcher) Reject(req *Request, err error) *Response {
	var id json.RawMessage
	if req != nil {
		id = req.ID
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		d.logger.Debug("rejected invalid request", "error", err)
		return NewError(id, CodeInvalidRequest, "Invalid Request", validationErr.Error())
	}

	d.logger.Debug("rejected malformed message", "error", err)
	return NewError(id, CodeInternalError, "Internal error", err.Error())
}

// Dispatch routes one request by method name.
func (d *Dispatcher) Dispatch(ctx context.Context, method string, params json.RawMessage, id json.RawMessage) *Response {
	d.logger.Debug("MCP request", "method", method)

	switch method {
	case "initialize":
		return NewResult(id, d.initialize(params))
	case "ping":
		return NewResult(id, struct{}{})
	case "tools/list":
		return NewResult(id, ListToolsResult{Tools: d.registry.List()})
	case "tools/call":
		return NewResult(id, d.callTool(ctx, params))
	default:
		return NewError(id, CodeMethodNotFound, "Method not found", method)
	}
}

func (d *Dispatcher) notify(req *Request) {
	if strings.HasPrefix(req.Method, "notifications/") {
		d.logger.Debug("accepted MCP notification", "method", req.Method)
		return
	}
	d.logger.Warn("received notification for non-notification method", "method", req.Method)
}

func (d *Dispatcher) initialize(params json.RawMessage) InitializeResult {
	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	if len(params) > 0 {
		// The handshake always succeeds; unreadable params just skip negotiation.
		_ = json.Unmarshal(params, &init)
	}

	d.logger.Info("MCP client initializing",
		"client_name", init.ClientInfo.Name,
		"client_version", init.ClientInfo.Version,
		"requested_version", init.ProtocolVersion,
	)

	return InitializeResult{
		ProtocolVersion: negotiateProtocolVersion(init.ProtocolVersion),
		Capabilities: map[string]any{
			"tools": map[string]any{},
		},
		ServerInfo: d.info,
	}
}

func negotiateProtocolVersion(clientVersion string) string {
	if supportedProtocolVersions[clientVersion] {
		return clientVersion
	}
	return LatestProtocolVersion
}

// callTool runs one tool. Every failure, including a panic in the executor, is
// returned as an in-band error result.
func (d *Dispatcher) callTool(ctx context.Context, params json.RawMessage) (result tools.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool panic recovered",
				"panic", r,
				"stack", string(debug.Stack()))
			result = tools.ErrorResult(fmt.Sprintf("Tool execution failed: %v", r))
		}
	}()

	if len(params) == 0 {
		return tools.ErrorResult("tools/call requires params with a tool name")
	}

	var call CallToolParams
	if err := json.Unmarshal(params, &call); err != nil {
		return tools.ErrorResult(fmt.Sprintf("Invalid tools/call params: %v", err))
	}
	if call.Name == "" {
		return tools.ErrorResult("Tool name is required")
	}
	if _, ok := d.registry.Lookup(call.Name); !ok {
		return tools.ErrorResult(fmt.Sprintf("Unknown tool: %s", call.Name))
	}

	args := call.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	start := time.Now()
	switch call.Name {
	case tools.NameGeocode:
		result = d.executor.Geocode(ctx, args)
	case tools.NameReverseGeocode:
		result = d.executor.ReverseGeocode(ctx, args)
	case tools.NameRender:
		result = d.executor.Render(ctx, args)
	default:
		return tools.ErrorResult(fmt.Sprintf("Unknown tool: %s", call.Name))
	}

	d.logger.Debug("tools/call complete",
		"tool_name", call.Name,
		"is_error", result.IsError,
		"duration", time.Since(start),
	)
	return result
}
