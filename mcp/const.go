package mcp

// Protocol version
const (
	ProtocolVersion = "2025-11-25"
)

// Server identity reported during initialization.
const (
	ServerName    = "usd-mcp-go"
	ServerVersion = "0.1.0"
)

type MessageType string

// Message envelope types used in tool call results.
const (
	TypeResult MessageType = "result"
	TypeError  MessageType = "error"
)
