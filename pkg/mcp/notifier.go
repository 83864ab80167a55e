package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// BundleNotice tells a client that one of its bundles changed state.
type BundleNotice struct {
	Event    string `json:"event"`
	BundleID string `json:"bundle_id"`
	Saved    *bool  `json:"saved,omitempty"`
	Valid    *bool  `json:"valid,omitempty"`
}

// ClientNotifier delivers bundle notices to connected clients.
type ClientNotifier interface {
	Notify(ctx context.Context, clientID string, notice BundleNotice) error
}

// MCPNotifier sends notices as MCP log message notifications on the
// session the client last called from.
type MCPNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
}

// NewMCPNotifier creates an MCPNotifier.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify delivers notice. Unknown clients and vanished sessions are not errors.
func (n *MCPNotifier) Notify(_ context.Context, clientID string, notice BundleNotice) error {
	sessionID, ok := n.sessions.SessionFor(clientID)
	if !ok {
		return nil
	}
	params := map[string]any{
		"level":  mcp.LoggingLevelInfo,
		"logger": "bpmnforms",
		"data":   notice,
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", params)
	if errors.Is(err, server.ErrSessionNotFound) {
		n.sessions.Remove(sessionID)
		return nil
	}
	return err
}
