// Package stdio serves MCP over newline-delimited JSON-RPC on the
// process's standard streams. Log output goes to stderr, stdout carries
// protocol frames only.
package stdio

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/slighter12/usd-mcp-go/logger"
	"github.com/slighter12/usd-mcp-go/mcp"
	"github.com/slighter12/usd-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/usd-mcp-go/tools"
	"github.com/slighter12/usd-mcp-go/transport/shared"
)

const maxFrameBytes = 4 * 1024 * 1024

// StdioServer handles MCP communication over stdio
type StdioServer struct {
	toolManager  *tools.Manager
	readResource func(string) (any, error)
	in           io.Reader
	out          io.Writer
}

// NewStdioServer creates a new stdio server
func NewStdioServer(toolManager *tools.Manager, readResource func(string) (any, error)) *StdioServer {
	return &StdioServer{
		toolManager:  toolManager,
		readResource: readResource,
		in:           os.Stdin,
		out:          os.Stdout,
	}
}

// Start reads frames until stdin closes.
func (s *StdioServer) Start() error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	encoder := json.NewEncoder(s.out)

	logger.Debug("Stdio server started and waiting for messages")

	for scanner.Scan() {
		frame := scanner.Bytes()
		if len(frame) == 0 {
			continue
		}

		for _, response := range s.handleFrame(frame) {
			if err := encoder.Encode(response); err != nil {
				logger.Error("Error encoding response", "error", err)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Error("Stdio read failed", "error", err)
		return err
	}
	logger.Debug("Stdio EOF received, terminating server")
	return nil
}

func (s *StdioServer) handleFrame(frame []byte) []any {
	requests, responses, _, err := shared.ParseJSONRPCFrame(frame)
	if err != nil {
		logger.Error("Error decoding message", "error", err)
		return nil
	}

	for _, msg := range requests {
		logger.Debug("Stdio message received", "method", msg.Method)
		if response := s.handleMessage(msg); response != nil {
			responses = append(responses, response)
		}
	}
	return responses
}

func (s *StdioServer) handleMessage(msg jsonrpc.Request) any {
	switch msg.Method {
	case "initialize":
		return jsonrpc.NewResponse(msg.ID, map[string]any{
			"protocolVersion": mcp.ProtocolVersion,
			"capabilities":    shared.ServerCapabilities(),
			"serverInfo": map[string]any{
				"name":    mcp.ServerName,
				"version": mcp.ServerVersion,
			},
		})
	case "notifications/initialized":
		return nil
	default:
		return shared.DispatchStandardMethod(msg, s.toolManager, s.readResource)
	}
}
