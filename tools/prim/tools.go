// Package prim provides tools that inspect individual prims and the prim
// hierarchy of a loaded stage.
package prim

import (
	"encoding/json"

	"github.com/slighter12/usd-mcp-go/mcp"
	"github.com/slighter12/usd-mcp-go/stagecache"
	"github.com/slighter12/usd-mcp-go/tools/types"
	"github.com/slighter12/usd-mcp-go/usd"
)

type GetStageHierarchyTool struct {
	Stages *stagecache.Cache
}

func (t *GetStageHierarchyTool) Name() string { return "get_stage_hierarchy" }
func (t *GetStageHierarchyTool) Description() string {
	return "Returns the prim hierarchy of a USD stage as a tree rooted at the pseudo-root"
}
func (t *GetStageHierarchyTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{
		Type: "object",
		Properties: map[string]any{
			"path": map[string]any{"type": "string", "description": "Path to the USD file"},
			"max_depth": map[string]any{
				"type":        "integer",
				"description": "Maximum tree depth below the pseudo-root, -1 for unlimited",
				"default":     -1,
			},
		},
		Required: []string{"path"},
		Title:    "Get Stage Hierarchy",
	}
}

func (t *GetStageHierarchyTool) Execute(args json.RawMessage) ([]byte, error) {
	var payload struct {
		Path     string `json:"path"`
		MaxDepth *int   `json:"max_depth"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, types.NewInvalidArgumentError("invalid arguments: "+err.Error(), nil)
	}

	maxDepth := -1
	if payload.MaxDepth != nil {
		maxDepth = *payload.MaxDepth
	}
	if maxDepth < -1 {
		return nil, types.NewInvalidArgumentError("max_depth must be -1 or a non-negative integer", map[string]any{
			"max_depth": maxDepth,
		})
	}

	stage, err := t.Stages.Load(payload.Path)
	if err != nil {
		return nil, types.FromStageError(err, map[string]any{"path": payload.Path})
	}

	result := map[string]any{
		"file_path":  stage.Identifier(),
		"max_depth":  maxDepth,
		"prim_count": stage.PrimCount(),
		"root":       hierarchyNode(stage.PseudoRoot(), 0, maxDepth),
	}
	return json.Marshal(result)
}

// hierarchyNode builds the tree descriptor for one prim. The pseudo-root
// sits at depth 0, so max_depth 0 yields the bare root and max_depth 1
// includes only the top-level prims.
func hierarchyNode(p *usd.Prim, depth, maxDepth int) map[string]any {
	node := map[string]any{
		"name": p.Name(),
		"path": p.Path(),
		"type": p.TypeName(),
	}
	children := make([]map[string]any, 0, len(p.Children()))
	if maxDepth == -1 || depth < maxDepth {
		for _, child := range p.Children() {
			children = append(children, hierarchyNode(child, depth+1, maxDepth))
		}
	}
	node["children"] = children
	return node
}

type InspectPrimTool struct {
	Stages *stagecache.Cache
}

func (t *InspectPrimTool) Name() string { return "inspect_prim" }
func (t *InspectPrimTool) Description() string {
	return "Returns detailed information about a single prim, including its attributes and relationships"
}
func (t *InspectPrimTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{
		Type: "object",
		Properties: map[string]any{
			"path":      map[string]any{"type": "string", "description": "Path to the USD file"},
			"prim_path": map[string]any{"type": "string", "description": "Absolute prim path, e.g. /World/Sphere"},
		},
		Required: []string{"path", "prim_path"},
		Title:    "Inspect Prim",
	}
}

func (t *InspectPrimTool) Execute(args json.RawMessage) ([]byte, error) {
	var payload struct {
		Path     string `json:"path"`
		PrimPath string `json:"prim_path"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, types.NewInvalidArgumentError("invalid arguments: "+err.Error(), nil)
	}
	if err := types.ValidatePrimPath(payload.PrimPath); err != nil {
		return nil, err
	}

	stage, err := t.Stages.Load(payload.Path)
	if err != nil {
		return nil, types.FromStageError(err, map[string]any{"path": payload.Path})
	}

	primPath := types.NormalizePrimPath(payload.PrimPath)
	target, ok := resolvePrim(stage, primPath)
	if !ok {
		return nil, types.NewSemanticError(types.SemanticKindPrimNotFound, "no prim at path "+primPath, map[string]any{
			"file_path": stage.Identifier(),
			"prim_path": primPath,
		})
	}

	result := primDescriptor(stage, target)
	return json.Marshal(result)
}

func resolvePrim(stage *usd.Stage, primPath string) (*usd.Prim, bool) {
	if primPath == usd.PseudoRootPath {
		return stage.PseudoRoot(), true
	}
	return stage.PrimAtPath(primPath)
}

func primDescriptor(stage *usd.Stage, p *usd.Prim) map[string]any {
	childPaths := make([]string, 0, len(p.Children()))
	for _, child := range p.Children() {
		childPaths = append(childPaths, child.Path())
	}

	result := map[string]any{
		"file_path": stage.Identifier(),
		"path":      p.Path(),
		"name":      p.Name(),
		"type":      p.TypeName(),
		"active":    p.Active(),
		"children":  childPaths,
	}
	if !p.IsPseudoRoot() {
		result["specifier"] = string(p.Specifier())
		result["parent"] = p.Parent().Path()
	}
	if p.Kind() != "" {
		result["kind"] = p.Kind()
	}
	if p.Doc() != "" {
		result["doc"] = p.Doc()
	}
	if len(p.References()) > 0 {
		result["references"] = p.References()
	}
	if len(p.Payloads()) > 0 {
		result["payloads"] = p.Payloads()
	}

	attrs := make([]map[string]any, 0, len(p.Attributes()))
	for _, attr := range p.Attributes() {
		descriptor := map[string]any{
			"name": attr.Name,
			"type": attr.TypeName,
		}
		if attr.HasValue {
			descriptor["value"] = attr.Value
		}
		if attr.Custom {
			descriptor["custom"] = true
		}
		if attr.Uniform {
			descriptor["uniform"] = true
		}
		attrs = append(attrs, descriptor)
	}
	result["attributes"] = attrs

	rels := make([]map[string]any, 0, len(p.Relationships()))
	for _, rel := range p.Relationships() {
		rels = append(rels, map[string]any{
			"name":    rel.Name,
			"targets": rel.Targets,
		})
	}
	result["relationships"] = rels

	return result
}

type ListStagePrimsTool struct {
	Stages *stagecache.Cache
}

func (t *ListStagePrimsTool) Name() string { return "list_stage_prims" }
func (t *ListStagePrimsTool) Description() string {
	return "Lists all prims on a stage in traversal order, optionally filtered by prim type"
}
func (t *ListStagePrimsTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{
		Type: "object",
		Properties: map[string]any{
			"path":      map[string]any{"type": "string", "description": "Path to the USD file"},
			"prim_type": map[string]any{"type": "string", "description": "Exact prim type to filter by, e.g. Xform or Sphere"},
		},
		Required: []string{"path"},
		Title:    "List Stage Prims",
	}
}

func (t *ListStagePrimsTool) Execute(args json.RawMessage) ([]byte, error) {
	var payload struct {
		Path     string  `json:"path"`
		PrimType *string `json:"prim_type"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, types.NewInvalidArgumentError("invalid arguments: "+err.Error(), nil)
	}

	stage, err := t.Stages.Load(payload.Path)
	if err != nil {
		return nil, types.FromStageError(err, map[string]any{"path": payload.Path})
	}

	prims := make([]map[string]any, 0)
	for _, p := range stage.Traverse() {
		if payload.PrimType != nil && p.TypeName() != *payload.PrimType {
			continue
		}
		prims = append(prims, primSummary(p))
	}

	result := map[string]any{
		"file_path": stage.Identifier(),
		"count":     len(prims),
		"prims":     prims,
	}
	if payload.PrimType != nil {
		result["prim_type"] = *payload.PrimType
	}
	return json.Marshal(result)
}

type FindPrimsByNameTool struct {
	Stages *stagecache.Cache
}

func (t *FindPrimsByNameTool) Name() string { return "find_prims_by_name" }
func (t *FindPrimsByNameTool) Description() string {
	return "Finds prims whose name matches a pattern: a glob when the pattern contains *, ? or [, a case-sensitive substring otherwise"
}
func (t *FindPrimsByNameTool) InputSchema() mcp.InputSchema {
	return mcp.InputSchema{
		Type: "object",
		Properties: map[string]any{
			"path":         map[string]any{"type": "string", "description": "Path to the USD file"},
			"name_pattern": map[string]any{"type": "string", "description": "Name pattern, e.g. Sphere_* or ball"},
		},
		Required: []string{"path", "name_pattern"},
		Title:    "Find Prims By Name",
	}
}

func (t *FindPrimsByNameTool) Execute(args json.RawMessage) ([]byte, error) {
	var payload struct {
		Path        string `json:"path"`
		NamePattern string `json:"name_pattern"`
	}
	if err := json.Unmarshal(args, &payload); err != nil {
		return nil, types.NewInvalidArgumentError("invalid arguments: "+err.Error(), nil)
	}

	matcher, err := types.NewNameMatcher(payload.NamePattern)
	if err != nil {
		return nil, err
	}

	stage, err := t.Stages.Load(payload.Path)
	if err != nil {
		return nil, types.FromStageError(err, map[string]any{"path": payload.Path})
	}

	prims := make([]map[string]any, 0)
	for _, p := range stage.Traverse() {
		if matcher.Matches(p.Name()) {
			prims = append(prims, primSummary(p))
		}
	}

	result := map[string]any{
		"file_path":    stage.Identifier(),
		"name_pattern": payload.NamePattern,
		"count":        len(prims),
		"prims":        prims,
	}
	return json.Marshal(result)
}

func primSummary(p *usd.Prim) map[string]any {
	return map[string]any{
		"path": p.Path(),
		"name": p.Name(),
		"type": p.TypeName(),
	}
}

func GetAllTools(stages *stagecache.Cache) []types.Tool {
	return []types.Tool{
		&GetStageHierarchyTool{Stages: stages},
		&InspectPrimTool{Stages: stages},
		&ListStagePrimsTool{Stages: stages},
		&FindPrimsByNameTool{Stages: stages},
	}
}
