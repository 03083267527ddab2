package usd

import "strings"

// Specifier is the prim declaration form.
type Specifier string

const (
	SpecifierDef   Specifier = "def"
	SpecifierOver  Specifier = "over"
	SpecifierClass Specifier = "class"
)

// PseudoRootPath is the path of the implicit stage root.
const PseudoRootPath = "/"

// LayerMetadata holds the root layer's stage-level metadata.
type LayerMetadata struct {
	DefaultPrim           string
	UpAxis                string
	Doc                   string
	MetersPerUnit         float64
	HasMetersPerUnit      bool
	TimeCodesPerSecond    float64
	HasTimeCodesPerSecond bool
	StartTimeCode         float64
	HasStartTimeCode      bool
	EndTimeCode           float64
	HasEndTimeCode        bool
}

// Stage is a parsed, read-only USD layer. It owns the prim tree for its
// entire lifetime; prims hand out references into that tree.
type Stage struct {
	identifier string
	format     string
	meta       LayerMetadata
	pseudoRoot *Prim
	primCount  int
}

// Identifier returns the absolute path of the backing file.
func (s *Stage) Identifier() string { return s.identifier }

// Format returns the serialization format of the backing file.
func (s *Stage) Format() string { return s.format }

// Metadata returns the root layer metadata.
func (s *Stage) Metadata() LayerMetadata { return s.meta }

// PseudoRoot returns the implicit root prim at "/". It is always present,
// has no type, and holds the root prims as children.
func (s *Stage) PseudoRoot() *Prim { return s.pseudoRoot }

// PrimCount returns the number of prims in the stage, excluding the
// pseudo-root.
func (s *Stage) PrimCount() int { return s.primCount }

// HasDefaultPrim reports whether the layer declares a default prim.
func (s *Stage) HasDefaultPrim() bool { return s.meta.DefaultPrim != "" }

// DefaultPrim resolves the declared default prim among the root prims.
func (s *Stage) DefaultPrim() (*Prim, bool) {
	if s.meta.DefaultPrim == "" {
		return nil, false
	}
	for _, child := range s.pseudoRoot.children {
		if child.name == s.meta.DefaultPrim {
			return child, true
		}
	}
	return nil, false
}

// PrimAtPath resolves an absolute prim path. The pseudo-root is addressable
// as "/".
func (s *Stage) PrimAtPath(path string) (*Prim, bool) {
	if path == PseudoRootPath {
		return s.pseudoRoot, true
	}
	if !strings.HasPrefix(path, "/") {
		return nil, false
	}
	current := s.pseudoRoot
	for _, segment := range strings.Split(strings.Trim(path, "/"), "/") {
		if segment == "" {
			return nil, false
		}
		next := current.childNamed(segment)
		if next == nil {
			return nil, false
		}
		current = next
	}
	return current, true
}

// Traverse returns every prim in the stage in depth-first declaration order,
// excluding the pseudo-root.
func (s *Stage) Traverse() []*Prim {
	prims := make([]*Prim, 0, s.primCount)
	var walk func(p *Prim)
	walk = func(p *Prim) {
		for _, child := range p.children {
			prims = append(prims, child)
			walk(child)
		}
	}
	walk(s.pseudoRoot)
	return prims
}

// Prim is one node of the scene graph tree.
type Prim struct {
	path       string
	name       string
	typeName   string
	specifier  Specifier
	active     bool
	kind       string
	doc        string
	references []string
	payloads   []string

	parent        *Prim
	children      []*Prim
	attributes    []*Attribute
	relationships []*Relationship
}

// Path returns the absolute, slash-separated prim path.
func (p *Prim) Path() string { return p.path }

// Name returns the leaf name of the prim. Empty for the pseudo-root.
func (p *Prim) Name() string { return p.name }

// TypeName returns the declared schema type, which may be empty.
func (p *Prim) TypeName() string { return p.typeName }

func (p *Prim) Specifier() Specifier { return p.specifier }
func (p *Prim) Active() bool         { return p.active }
func (p *Prim) Kind() string         { return p.kind }
func (p *Prim) Doc() string          { return p.doc }

// References returns authored reference asset targets.
func (p *Prim) References() []string { return p.references }

// Payloads returns authored payload asset targets.
func (p *Prim) Payloads() []string { return p.payloads }

// Parent returns the parent prim, or nil for the pseudo-root.
func (p *Prim) Parent() *Prim { return p.parent }

// Children returns the child prims in declaration order.
func (p *Prim) Children() []*Prim { return p.children }

// Attributes returns the declared attributes in declaration order.
func (p *Prim) Attributes() []*Attribute { return p.attributes }

// Relationships returns the declared relationships in declaration order.
func (p *Prim) Relationships() []*Relationship { return p.relationships }

// IsPseudoRoot reports whether this is the implicit stage root.
func (p *Prim) IsPseudoRoot() bool { return p.path == PseudoRootPath }

func (p *Prim) childNamed(name string) *Prim {
	for _, child := range p.children {
		if child.name == name {
			return child
		}
	}
	return nil
}

// Attribute is a typed, optionally valued prim property. Values are stored
// in JSON-safe Go representations: bool, float64, int64, string, and nested
// []any for tuples and arrays.
type Attribute struct {
	Name     string
	TypeName string
	Value    any
	HasValue bool
	Custom   bool
	Uniform  bool
}

// Relationship is a named link from a prim to other prim paths.
type Relationship struct {
	Name    string
	Targets []string
	Custom  bool
}
