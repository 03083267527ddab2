// Package stage provides tools that operate on a whole USD layer file.
package stage

import (
	"encoding/json"

	"github.com/slighter12/usd-mcp-go/mcp"
	"github.com/slighter12/usd-mcp-go/stagecache"
	"github.com/slighter12/usd-mcp-go/tools/types"
)

type LoadStageTool struct {
	Stages *stagecache.Cache
}

func (t *LoadStageTool) Name() string { return "load_usd_stage" }
func (t *LoadStageTool) Description() string {
	return "Loads a USD stage from a file path and returns layer-level information"
}
func (t *LoadStageTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{
		Type: "object",
		Properties: map[string]any{
			"path": map[string]any{"type": "string", "description": "Path to the USD file (.usd, .usda)"},
		},
		Required: []string{"path"},
		Title:    "Load USD Stage",
	}
}

func (t *LoadStageTool) Execute(args json.RawMessage) ([]byte, error) {
	var payload struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, types.NewInvalidArgumentError("invalid arguments: "+err.Error(), nil)
	}

	_, cached := t.Stages.Get(payload.Path)
	stage, err := t.Stages.Load(payload.Path)
	if err != nil {
		return nil, types.FromStageError(err, map[string]any{"path": payload.Path})
	}

	meta := stage.Metadata()
	result := map[string]any{
		"file_path":  stage.Identifier(),
		"format":     stage.Format(),
		"prim_count": stage.PrimCount(),
		"cached":     cached,
	}
	if meta.DefaultPrim != "" {
		result["default_prim"] = meta.DefaultPrim
	}
	if meta.UpAxis != "" {
		result["up_axis"] = meta.UpAxis
	}
	if meta.Doc != "" {
		result["doc"] = meta.Doc
	}
	if meta.HasMetersPerUnit {
		result["meters_per_unit"] = meta.MetersPerUnit
	}
	if meta.HasTimeCodesPerSecond {
		result["time_codes_per_second"] = meta.TimeCodesPerSecond
	}
	if meta.HasStartTimeCode {
		result["start_time_code"] = meta.StartTimeCode
	}
	if meta.HasEndTimeCode {
		result["end_time_code"] = meta.EndTimeCode
	}
	return json.Marshal(result)
}

func GetAllTools(stages *stagecache.Cache) []types.Tool {
	return []types.Tool{
		&LoadStageTool{Stages: stages},
	}
}
