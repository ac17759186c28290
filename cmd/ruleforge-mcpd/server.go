package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ruleforge/ruleforge/pkg/corectx"
)

// rfTool is the contract every MCP-exposed session operation satisfies,
// mirroring the host-side toolbox's own Tool interface one layer up.
type rfTool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, cc *corectx.CoreContext, args map[string]any) (any, error)
}

// Server adapts every RULEFORGE session operation to an MCP tool served
// over stdio, per the core spec's external stdio adapter: the same
// logical operations as the HTTP surface, one request at a time, with
// an initialize handshake reporting the tool list.
type Server struct {
	cc        *corectx.CoreContext
	mcpServer *mcpserver.MCPServer
}

// NewServer builds the MCP server and registers every session tool.
func NewServer(cc *corectx.CoreContext) *Server {
	mcpSrv := mcpserver.NewMCPServer(
		"ruleforge-mcpd",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithRecovery(),
	)

	s := &Server{cc: cc, mcpServer: mcpSrv}
	for _, t := range allTools() {
		s.register(t)
	}
	return s
}

// Serve runs the stdio transport until ctx is cancelled or the stream
// closes.
func (s *Server) Serve(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, stdin, stdout)
}

func (s *Server) register(t rfTool) {
	mcpTool := mcp.NewToolWithRawSchema(t.Name(), t.Description(), t.Schema())
	s.mcpServer.AddTool(mcpTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		if args == nil {
			args = map[string]any{}
		}
		result, err := t.Execute(ctx, s.cc, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("%s: %v", t.Name(), err))},
				IsError: true,
			}, nil
		}
		payload, merr := json.Marshal(result)
		if merr != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("%s: encoding result: %v", t.Name(), merr))},
				IsError: true,
			}, nil
		}
		return &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent(string(payload))}, IsError: false}, nil
	})
}

func allTools() []rfTool {
	return []rfTool{
		createSessionTool{},
		evaluateTool{},
		queryTool{},
		consultTool{},
		listSessionsTool{},
		terminateSessionTool{},
	}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}
