package stdio

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slighter12/usd-mcp-go/logger"
	"github.com/slighter12/usd-mcp-go/mcp"
	"github.com/slighter12/usd-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/usd-mcp-go/stagecache"
	"github.com/slighter12/usd-mcp-go/tools"
)

func TestMain(m *testing.M) {
	logger.Init(logger.GetLevelFromString("debug"), logger.FormatJSON, "logs/stdio.log")

	os.Exit(m.Run())
}

func newTestServer(t *testing.T) *StdioServer {
	t.Helper()
	stages, err := stagecache.New(stagecache.Options{})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = stages.Close() })

	toolManager := tools.NewManager()
	toolManager.RegisterDefaultTools(stages)

	readResource := func(uri string) (any, error) {
		return map[string]any{"uri": uri}, nil
	}
	return NewStdioServer(toolManager, readResource)
}

func TestStdioServerHandlesMessages(t *testing.T) {
	server := newTestServer(t)

	initMsg := jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: "1", Method: "initialize"}
	response := server.handleMessage(initMsg)
	initResp, ok := response.(*jsonrpc.Response)
	if !ok || initResp.Error != nil {
		t.Fatalf("initialize failed: %v", response)
	}
	result := initResp.Result.(map[string]any)
	if result["protocolVersion"] != mcp.ProtocolVersion {
		t.Errorf("unexpected protocol version %v", result["protocolVersion"])
	}
	serverInfo := result["serverInfo"].(map[string]any)
	if serverInfo["name"] != mcp.ServerName {
		t.Errorf("unexpected server name %v", serverInfo["name"])
	}

	if response := server.handleMessage(jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "notifications/initialized"}); response != nil {
		t.Errorf("initialized notification should produce no response, got %v", response)
	}

	pingMsg := jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: "2", Method: "ping"}
	pingResp, ok := server.handleMessage(pingMsg).(*jsonrpc.Response)
	if !ok || pingResp.Error != nil {
		t.Fatalf("ping failed: %v", pingResp)
	}

	listMsg := jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: "3", Method: "tools/list"}
	listResp, ok := server.handleMessage(listMsg).(*jsonrpc.Response)
	if !ok || listResp.Error != nil {
		t.Fatalf("tools/list failed: %v", listResp)
	}

	unknownMsg := jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: "4", Method: "invalid_type"}
	unknownResp, ok := server.handleMessage(unknownMsg).(*jsonrpc.Response)
	if !ok || unknownResp.Error == nil {
		t.Fatal("unknown request method should return JSON-RPC error response")
	}
	if unknownResp.Error.Code != int(jsonrpc.ErrMethodNotFound) {
		t.Errorf("expected method-not-found error code, got %d", unknownResp.Error.Code)
	}

	// Unknown notifications are dropped silently.
	if response := server.handleMessage(jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "invalid_type"}); response != nil {
		t.Errorf("unknown notification should produce no response, got %v", response)
	}
}

func TestStdioServerFrameLoop(t *testing.T) {
	server := newTestServer(t)

	layer := filepath.Join(t.TempDir(), "scene.usda")
	if err := os.WriteFile(layer, []byte("#usda 1.0\ndef Xform \"root\"\n{\n}\n"), 0o644); err != nil {
		t.Fatalf("write layer: %v", err)
	}

	callParams, _ := json.Marshal(map[string]any{
		"name":      "load_usd_stage",
		"arguments": map[string]any{"path": layer},
	})
	frames := []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":` + string(callParams) + `}`,
		`not json at all`,
	}

	var out strings.Builder
	server.in = strings.NewReader(strings.Join(frames, "\n") + "\n")
	server.out = &out

	if err := server.Start(); err != nil {
		t.Fatalf("server loop: %v", err)
	}

	var responses []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(out.String()))
	for scanner.Scan() {
		var decoded map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not valid JSON: %v", err)
		}
		responses = append(responses, decoded)
	}

	// initialize, tools/call, and a parse error for the junk frame.
	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %d: %v", len(responses), responses)
	}
	if responses[0]["id"].(float64) != 1 {
		t.Errorf("unexpected initialize response id %v", responses[0]["id"])
	}
	callResult := responses[1]["result"].(map[string]any)
	if callResult["isError"] != false {
		t.Errorf("expected successful tool call, got %v", callResult)
	}
	if responses[2]["error"] == nil {
		t.Error("junk frame should produce an error response")
	}
}
