package tools

import (
	"github.com/slighter12/usd-mcp-go/stagecache"
	"github.com/slighter12/usd-mcp-go/tools/prim"
	"github.com/slighter12/usd-mcp-go/tools/stage"
	"github.com/slighter12/usd-mcp-go/tools/types"
	"github.com/slighter12/usd-mcp-go/tools/utility"
)

// GetAllTools returns all available tools from all categories
func GetAllTools(stages *stagecache.Cache) []types.Tool {
	var all []types.Tool
	all = append(all, stage.GetAllTools(stages)...)
	all = append(all, prim.GetAllTools(stages)...)
	all = append(all, utility.GetAllTools(stages)...)
	return all
}
