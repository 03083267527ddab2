// Package utility provides cache management tools.
package utility

import (
	"encoding/json"

	"github.com/slighter12/usd-mcp-go/mcp"
	"github.com/slighter12/usd-mcp-go/stagecache"
	"github.com/slighter12/usd-mcp-go/tools/types"
)

type ClearStageCacheTool struct {
	Stages *stagecache.Cache
}

func (t *ClearStageCacheTool) Name() string        { return "clear_stage_cache" }
func (t *ClearStageCacheTool) Description() string { return "Removes all stages from the stage cache" }
func (t *ClearStageCacheTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{Type: "object", Properties: map[string]any{}, Required: []string{}, Title: "Clear Stage Cache"}
}
func (t *ClearStageCacheTool) Execute(args json.RawMessage) ([]byte, error) {
	removed := t.Stages.Clear()
	return json.Marshal(map[string]any{
		"removed": removed,
	})
}

type RemoveStageFromCacheTool struct {
	Stages *stagecache.Cache
}

func (t *RemoveStageFromCacheTool) Name() string { return "remove_stage_from_cache" }
func (t *RemoveStageFromCacheTool) Description() string {
	return "Removes a single stage from the stage cache so the next load re-reads the file"
}
func (t *RemoveStageFromCacheTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{
		Type: "object",
		Properties: map[string]any{
			"path": map[string]any{"type": "string", "description": "Path to the USD file to evict"},
		},
		Required: []string{"path"},
		Title:    "Remove Stage From Cache",
	}
}
func (t *RemoveStageFromCacheTool) Execute(args json.RawMessage) ([]byte, error) {
	var payload struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, types.NewInvalidArgumentError("invalid arguments: "+err.Error(), nil)
	}
	removed := t.Stages.Invalidate(payload.Path)
	return json.Marshal(map[string]any{
		"path":    payload.Path,
		"removed": removed,
	})
}

type StageCacheInfoTool struct {
	Stages *stagecache.Cache
}

func (t *StageCacheInfoTool) Name() string        { return "stage_cache_info" }
func (t *StageCacheInfoTool) Description() string { return "Lists the stages currently cached" }
func (t *StageCacheInfoTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{Type: "object", Properties: map[string]any{}, Required: []string{}, Title: "Stage Cache Info"}
}
func (t *StageCacheInfoTool) Execute(args json.RawMessage) ([]byte, error) {
	infos := t.Stages.Info()
	return json.Marshal(map[string]any{
		"count":  len(infos),
		"stages": infos,
	})
}

func GetAllTools(stages *stagecache.Cache) []types.Tool {
	return []types.Tool{
		&ClearStageCacheTool{Stages: stages},
		&RemoveStageFromCacheTool{Stages: stages},
		&StageCacheInfoTool{Stages: stages},
	}
}
