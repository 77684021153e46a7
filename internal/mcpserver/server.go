package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all payguard tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("payguard", "1.0.0")
	client := NewPayguardClient(cfg)
	h := NewHandlers(client, cfg)

	s.AddTool(ToolExecuteX402Payment, h.HandleExecuteX402Payment)
	s.AddTool(ToolSendPayment, h.HandleSendPayment)
	s.AddTool(ToolCheckPaymentStatus, h.HandleCheckPaymentStatus)

	return s
}
