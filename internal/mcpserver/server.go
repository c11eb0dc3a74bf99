package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Durin tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("durin", "1.0.0")
	client := NewDurinClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolRunAnalysis, h.HandleRunAnalysis)
	s.AddTool(ToolGetLatestAnalysis, h.HandleGetLatestAnalysis)
	s.AddTool(ToolGetAccountRisk, h.HandleGetAccountRisk)
	s.AddTool(ToolListHighRisk, h.HandleListHighRisk)
	s.AddTool(ToolExplainAccount, h.HandleExplainAccount)

	return s
}
