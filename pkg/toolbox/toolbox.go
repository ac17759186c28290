// Package toolbox implements the ToolboxBridge: a thread-safe registry
// of named, host-side tools that service engine-initiated callbacks
// during an in-flight evaluate. Grounded on the registerTool/wrapTool
// pattern used by the MCP tool server in the reference pack, narrowed to
// the engine callback contract rather than full MCP transport.
package toolbox

import (
	"context"
	"sync"

	"github.com/ruleforge/ruleforge/pkg/engine"
)

// Tool is a named host capability invocable from an engine via callback.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, arguments map[string]any) (any, error)
}

// Bridge is the ToolboxBridge. It holds its lock only for the duration
// of a lookup; tool execution itself runs without the lock, so a long
// running tool never blocks registration or other lookups.
type Bridge struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	byOrder []string
	dflt    string
}

// NewBridge builds an empty bridge.
func NewBridge() *Bridge {
	return &Bridge{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. The first tool registered
// becomes the default, selected when a callback omits an explicit name.
func (b *Bridge) Register(t Tool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.tools[t.Name()]; !exists {
		b.byOrder = append(b.byOrder, t.Name())
	}
	b.tools[t.Name()] = t
	if b.dflt == "" {
		b.dflt = t.Name()
	}
}

// Names returns the registered tool names in registration order.
func (b *Bridge) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.byOrder))
	copy(out, b.byOrder)
	return out
}

// Tools returns the registered tools in registration order, for the
// HTTP discovery route.
func (b *Bridge) Tools() []Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Tool, 0, len(b.byOrder))
	for _, name := range b.byOrder {
		out = append(out, b.tools[name])
	}
	return out
}

// Dispatch implements engine.CallbackSink: it resolves the request to a
// tool, invokes it outside the registry lock, and always yields a
// response — tool errors are surfaced as {status: error}, never
// propagated as an engine fault.
func (b *Bridge) Dispatch(ctx context.Context, req engine.CallbackRequest) engine.CallbackResponse {
	name := req.Tool
	if name == "" {
		name = b.dflt
	}

	b.mu.RLock()
	tool, ok := b.tools[name]
	b.mu.RUnlock()

	if !ok {
		return engine.CallbackResponse{Status: "error", Message: "unknown tool: " + name}
	}

	result, err := tool.Execute(ctx, req.Arguments)
	if err != nil {
		return engine.CallbackResponse{Status: "error", Message: err.Error()}
	}
	return engine.CallbackResponse{Status: "ok", Result: result}
}
