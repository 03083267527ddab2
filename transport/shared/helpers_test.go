package shared

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/slighter12/usd-mcp-go/mcp"
	"github.com/slighter12/usd-mcp-go/mcp/jsonrpc"
	"github.com/slighter12/usd-mcp-go/stagecache"
	"github.com/slighter12/usd-mcp-go/tools"
)

func newTestManager(t *testing.T) (*tools.Manager, *stagecache.Cache) {
	t.Helper()
	stages, err := stagecache.New(stagecache.Options{})
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = stages.Close() })

	manager := tools.NewManager()
	manager.RegisterDefaultTools(stages)
	return manager, stages
}

func requestWithParams(t *testing.T, method string, params any) jsonrpc.Request {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: "1", Method: method, Params: raw}
}

func TestParseJSONRPCFrame(t *testing.T) {
	requests, prebuilt, _, err := ParseJSONRPCFrame([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	if err != nil || len(prebuilt) != 0 || len(requests) != 1 {
		t.Fatalf("expected one request, got %v %v %v", requests, prebuilt, err)
	}
	if requests[0].Method != "ping" {
		t.Errorf("unexpected method %q", requests[0].Method)
	}

	cases := []struct {
		name  string
		frame string
	}{
		{"batch", `[{"jsonrpc":"2.0","id":1,"method":"ping"}]`},
		{"bad json", `{"jsonrpc":`},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`},
		{"fractional id", `{"jsonrpc":"2.0","id":1.5,"method":"ping"}`},
		{"array params", `{"jsonrpc":"2.0","id":1,"method":"ping","params":[]}`},
		{"initialize without id", `{"jsonrpc":"2.0","method":"initialize"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			requests, prebuilt, _, err := ParseJSONRPCFrame([]byte(tc.frame))
			if err != nil {
				t.Fatalf("frame error: %v", err)
			}
			if len(requests) != 0 {
				t.Errorf("expected no accepted requests, got %v", requests)
			}
			if len(prebuilt) != 1 {
				t.Errorf("expected one prebuilt error response, got %v", prebuilt)
			}
		})
	}

	if _, _, _, err := ParseJSONRPCFrame([]byte("   ")); err == nil {
		t.Error("empty frame should error")
	}

	// Responses from the peer are accepted one-way.
	_, prebuilt, oneWay, err := ParseJSONRPCFrame([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	if err != nil || len(prebuilt) != 0 || !oneWay {
		t.Errorf("expected accepted one-way response, got %v %v %v", prebuilt, oneWay, err)
	}
}

func TestBuildToolsListResponse(t *testing.T) {
	manager, _ := newTestManager(t)

	response := BuildToolsListResponse(requestWithParams(t, "tools/list", map[string]any{}), manager.GetTools())
	result := response.Result.(map[string]any)
	listed := result["tools"].([]mcp.Tool)
	if len(listed) != 8 {
		t.Fatalf("expected 8 tools, got %d", len(listed))
	}
	for i := 1; i < len(listed); i++ {
		if listed[i-1].Name > listed[i].Name {
			t.Fatal("tools should be sorted by name")
		}
	}
	if _, ok := result["nextCursor"]; ok {
		t.Error("small catalogue should fit in one page")
	}

	// An out-of-range cursor is rejected.
	response = BuildToolsListResponse(requestWithParams(t, "tools/list", map[string]any{"cursor": "999"}), manager.GetTools())
	if response.Error == nil || response.Error.Code != int(jsonrpc.ErrInvalidParams) {
		t.Errorf("expected invalid params for bad cursor, got %+v", response)
	}
}

func TestBuildToolCallResponseSuccess(t *testing.T) {
	manager, _ := newTestManager(t)
	layer := filepath.Join(t.TempDir(), "scene.usda")
	if err := os.WriteFile(layer, []byte("#usda 1.0\ndef Xform \"root\"\n{\n}\n"), 0o644); err != nil {
		t.Fatalf("write layer: %v", err)
	}

	response := BuildToolCallResponse(requestWithParams(t, "tools/call", map[string]any{
		"name":      "load_usd_stage",
		"arguments": map[string]any{"path": layer},
	}), manager, nil)

	result := response.Result.(map[string]any)
	if result["isError"] != false {
		t.Fatalf("expected success result, got %v", result)
	}
	payload := result["result"].(map[string]any)
	if payload["prim_count"].(float64) != 1 {
		t.Errorf("unexpected tool payload %v", payload)
	}
}

func TestBuildToolCallResponseSemanticError(t *testing.T) {
	manager, _ := newTestManager(t)

	response := BuildToolCallResponse(requestWithParams(t, "tools/call", map[string]any{
		"name":      "load_usd_stage",
		"arguments": map[string]any{"path": "/nonexistent/scene.usda"},
	}), manager, nil)

	if response.Error != nil {
		t.Fatalf("semantic failures are tool results, not protocol errors: %+v", response.Error)
	}
	result := response.Result.(map[string]any)
	if result["isError"] != true {
		t.Fatalf("expected isError result, got %v", result)
	}
	detail := result["structuredContent"].(map[string]any)
	if detail["kind"] != "not_found" {
		t.Errorf("expected not_found kind, got %v", detail["kind"])
	}
	if detail["message"] == "" {
		t.Error("expected a human readable message")
	}
}

func TestBuildToolCallResponseUnknownTool(t *testing.T) {
	manager, _ := newTestManager(t)

	response := BuildToolCallResponse(requestWithParams(t, "tools/call", map[string]any{
		"name": "no_such_tool",
	}), manager, nil)
	if response.Error == nil || response.Error.Code != int(jsonrpc.ErrInvalidParams) {
		t.Errorf("unknown tool should be a protocol error, got %+v", response)
	}
}

func TestBuildToolCallResponseResourceShortcut(t *testing.T) {
	manager, _ := newTestManager(t)

	readResource := func(uri string) (any, error) {
		if uri != "usd://server/info" {
			return nil, fmt.Errorf("unknown resource")
		}
		return map[string]any{"name": mcp.ServerName}, nil
	}

	response := BuildToolCallResponse(requestWithParams(t, "tools/call", map[string]any{
		"name": "usd://server/info",
	}), manager, readResource)
	result := response.Result.(map[string]any)
	if result["isError"] != false {
		t.Fatalf("expected resource result, got %v", result)
	}
}

func TestDispatchStandardMethod(t *testing.T) {
	manager, _ := newTestManager(t)
	readResource := func(uri string) (any, error) { return map[string]any{"uri": uri}, nil }

	pong := DispatchStandardMethod(requestWithParams(t, "ping", map[string]any{}), manager, readResource)
	if response, ok := pong.(*jsonrpc.Response); !ok || response.Error != nil {
		t.Errorf("ping should return an empty success response, got %v", pong)
	}

	unknown := DispatchStandardMethod(requestWithParams(t, "bogus/method", map[string]any{}), manager, readResource)
	if response, ok := unknown.(*jsonrpc.Response); !ok || response.Error == nil || response.Error.Code != int(jsonrpc.ErrMethodNotFound) {
		t.Errorf("expected method not found, got %v", unknown)
	}

	// Unknown notifications are dropped.
	notification := jsonrpc.Request{JSONRPC: jsonrpc.Version, Method: "bogus/notification"}
	if result := DispatchStandardMethod(notification, manager, readResource); result != nil {
		t.Errorf("expected nil for unknown notification, got %v", result)
	}

	resources := DispatchStandardMethod(requestWithParams(t, "resources/list", map[string]any{}), manager, readResource)
	response := resources.(*jsonrpc.Response)
	listed := response.Result.(map[string]any)["resources"].([]map[string]any)
	if len(listed) != 2 {
		t.Errorf("expected 2 resources, got %d", len(listed))
	}
}
