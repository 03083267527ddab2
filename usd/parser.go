package usd

import (
	"strconv"
	"strings"
)

// assetRef is a parsed @...@ asset path.
type assetRef string

// pathRef is a parsed </...> prim path.
type pathRef string

// compositeRef is an asset reference with an explicit prim target,
// e.g. @shot.usda@</World>.
type compositeRef struct {
	asset string
	prim  string
}

var listOpPrefixes = map[string]bool{
	"add":     true,
	"append":  true,
	"prepend": true,
	"delete":  true,
	"reorder": true,
}

type parser struct {
	lex *lexer
	tok token
}

func newParser(src string) (*parser, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) expect(kind tokenKind) (token, error) {
	if p.tok.kind != kind {
		return token{}, p.errorf("expected %s, found %s", kind, p.describeCurrent())
	}
	tok := p.tok
	if err := p.advance(); err != nil {
		return token{}, err
	}
	return tok, nil
}

func (p *parser) errorf(format string, args ...any) *Error {
	return Errorf(KindParseError, "line %d: "+format, append([]any{p.tok.line}, args...)...)
}

func (p *parser) describeCurrent() string {
	if p.tok.kind == tokIdent || p.tok.kind == tokNumber {
		return strconv.Quote(p.tok.text)
	}
	return p.tok.kind.String()
}

// parseLayer parses a whole usda layer into a prim tree rooted at the
// pseudo-root.
func (p *parser) parseLayer(stage *Stage) error {
	pseudoRoot := &Prim{
		path:      PseudoRootPath,
		specifier: SpecifierDef,
		active:    true,
	}
	stage.pseudoRoot = pseudoRoot

	if p.tok.kind == tokLParen {
		if err := p.parseMetadata(func(key string, value any) {
			applyLayerMetadata(&stage.meta, key, value)
		}); err != nil {
			return err
		}
	}

	for p.tok.kind != tokEOF {
		prim, err := p.parsePrim(pseudoRoot)
		if err != nil {
			return err
		}
		pseudoRoot.children = append(pseudoRoot.children, prim)
	}

	stage.primCount = countPrims(pseudoRoot)
	return nil
}

func countPrims(root *Prim) int {
	count := 0
	var walk func(p *Prim)
	walk = func(p *Prim) {
		for _, child := range p.children {
			count++
			walk(child)
		}
	}
	walk(root)
	return count
}

func applyLayerMetadata(meta *LayerMetadata, key string, value any) {
	switch key {
	case "defaultPrim":
		if s, ok := value.(string); ok {
			meta.DefaultPrim = s
		}
	case "upAxis":
		if s, ok := value.(string); ok {
			meta.UpAxis = s
		}
	case "doc", "documentation":
		if s, ok := value.(string); ok {
			meta.Doc = s
		}
	case "metersPerUnit":
		if f, ok := asFloat(value); ok {
			meta.MetersPerUnit = f
			meta.HasMetersPerUnit = true
		}
	case "timeCodesPerSecond":
		if f, ok := asFloat(value); ok {
			meta.TimeCodesPerSecond = f
			meta.HasTimeCodesPerSecond = true
		}
	case "startTimeCode":
		if f, ok := asFloat(value); ok {
			meta.StartTimeCode = f
			meta.HasStartTimeCode = true
		}
	case "endTimeCode":
		if f, ok := asFloat(value); ok {
			meta.EndTimeCode = f
			meta.HasEndTimeCode = true
		}
	}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// parsePrim parses one def/over/class statement including its body.
func (p *parser) parsePrim(parent *Prim) (*Prim, error) {
	specTok, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	var spec Specifier
	switch specTok.text {
	case "def":
		spec = SpecifierDef
	case "over":
		spec = SpecifierOver
	case "class":
		spec = SpecifierClass
	default:
		return nil, p.errorf("expected prim specifier, found %q", specTok.text)
	}

	typeName := ""
	if p.tok.kind == tokIdent {
		typeName = p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	nameTok, err := p.expect(tokString)
	if err != nil {
		return nil, err
	}
	if nameTok.text == "" {
		return nil, p.errorf("prim name cannot be empty")
	}

	prim := &Prim{
		name:      nameTok.text,
		typeName:  typeName,
		specifier: spec,
		active:    true,
		parent:    parent,
	}
	if parent.IsPseudoRoot() {
		prim.path = "/" + prim.name
	} else {
		prim.path = parent.path + "/" + prim.name
	}

	if p.tok.kind == tokLParen {
		if err := p.parseMetadata(func(key string, value any) {
			applyPrimMetadata(prim, key, value)
		}); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	if err := p.parsePrimBody(prim); err != nil {
		return nil, err
	}
	_, err = p.expect(tokRBrace)
	return prim, err
}

func applyPrimMetadata(prim *Prim, key string, value any) {
	switch key {
	case "kind":
		if s, ok := value.(string); ok {
			prim.kind = s
		}
	case "active":
		if b, ok := value.(bool); ok {
			prim.active = b
		}
	case "doc", "documentation":
		if s, ok := value.(string); ok {
			prim.doc = s
		}
	case "references":
		prim.references = append(prim.references, referenceTargets(value)...)
	case "payload":
		prim.payloads = append(prim.payloads, referenceTargets(value)...)
	}
}

// referenceTargets flattens a references/payload metadata value into asset
// or prim path target strings.
func referenceTargets(value any) []string {
	switch v := value.(type) {
	case assetRef:
		return []string{string(v)}
	case pathRef:
		return []string{"</" + strings.TrimPrefix(string(v), "/") + ">"}
	case compositeRef:
		return []string{v.asset + "</" + strings.TrimPrefix(v.prim, "/") + ">"}
	case []any:
		var targets []string
		for _, item := range v {
			targets = append(targets, referenceTargets(item)...)
		}
		return targets
	default:
		return nil
	}
}

func (p *parser) parsePrimBody(prim *Prim) error {
	for {
		switch p.tok.kind {
		case tokRBrace:
			return nil
		case tokEOF:
			return p.errorf("unexpected end of file inside prim %s", prim.path)
		case tokSemicolon:
			if err := p.advance(); err != nil {
				return err
			}
		case tokIdent:
			switch p.tok.text {
			case "def", "over", "class":
				child, err := p.parsePrim(prim)
				if err != nil {
					return err
				}
				prim.children = append(prim.children, child)
			case "variantSet":
				if err := p.skipVariantSet(); err != nil {
					return err
				}
			case "reorder":
				if err := p.skipStatement(); err != nil {
					return err
				}
			default:
				if err := p.parseProperty(prim); err != nil {
					return err
				}
			}
		default:
			return p.errorf("unexpected %s in prim body", p.describeCurrent())
		}
	}
}

// skipVariantSet consumes `variantSet "name" = { ... }` without modeling
// variants. Only the declaration-order composed view is exposed.
func (p *parser) skipVariantSet() error {
	if err := p.advance(); err != nil { // variantSet
		return err
	}
	if _, err := p.expect(tokString); err != nil {
		return err
	}
	if _, err := p.expect(tokEquals); err != nil {
		return err
	}
	return p.skipBracedBlock()
}

// skipStatement consumes `key = value` (used for reorder statements).
func (p *parser) skipStatement() error {
	if err := p.advance(); err != nil {
		return err
	}
	if _, err := p.expect(tokIdent); err != nil {
		return err
	}
	if _, err := p.expect(tokEquals); err != nil {
		return err
	}
	_, err := p.parseValue()
	return err
}

func (p *parser) skipBracedBlock() error {
	if _, err := p.expect(tokLBrace); err != nil {
		return err
	}
	depth := 1
	for depth > 0 {
		switch p.tok.kind {
		case tokLBrace:
			depth++
		case tokRBrace:
			depth--
		case tokEOF:
			return p.errorf("unexpected end of file inside block")
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
	return nil
}

var propertyModifiers = map[string]bool{
	"custom":  true,
	"uniform": true,
	"varying": true,
}

func (p *parser) parseProperty(prim *Prim) error {
	custom := false
	uniform := false
	for p.tok.kind == tokIdent && (propertyModifiers[p.tok.text] || listOpPrefixes[p.tok.text]) {
		switch p.tok.text {
		case "custom":
			custom = true
		case "uniform":
			uniform = true
		}
		if err := p.advance(); err != nil {
			return err
		}
	}

	if p.tok.kind == tokIdent && p.tok.text == "rel" {
		return p.parseRelationship(prim, custom)
	}

	typeTok, err := p.expect(tokIdent)
	if err != nil {
		return err
	}
	nameTok, err := p.expect(tokIdent)
	if err != nil {
		return err
	}

	attr := &Attribute{
		Name:     nameTok.text,
		TypeName: typeTok.text,
		Custom:   custom,
		Uniform:  uniform,
	}

	if p.tok.kind == tokEquals {
		if err := p.advance(); err != nil {
			return err
		}
		value, err := p.parseValue()
		if err != nil {
			return err
		}
		if value != nil {
			attr.Value = plainValue(value)
			attr.HasValue = true
		}
	}

	if p.tok.kind == tokLParen {
		if err := p.parseMetadata(func(string, any) {}); err != nil {
			return err
		}
	}

	prim.attributes = append(prim.attributes, attr)
	return nil
}

func (p *parser) parseRelationship(prim *Prim, custom bool) error {
	if err := p.advance(); err != nil { // rel
		return err
	}
	nameTok, err := p.expect(tokIdent)
	if err != nil {
		return err
	}

	rel := &Relationship{Name: nameTok.text, Custom: custom}

	if p.tok.kind == tokEquals {
		if err := p.advance(); err != nil {
			return err
		}
		value, err := p.parseValue()
		if err != nil {
			return err
		}
		rel.Targets = relationshipTargets(value)
	}

	if p.tok.kind == tokLParen {
		if err := p.parseMetadata(func(string, any) {}); err != nil {
			return err
		}
	}

	prim.relationships = append(prim.relationships, rel)
	return nil
}

func relationshipTargets(value any) []string {
	switch v := value.(type) {
	case pathRef:
		return []string{string(v)}
	case []any:
		var targets []string
		for _, item := range v {
			targets = append(targets, relationshipTargets(item)...)
		}
		return targets
	default:
		return nil
	}
}

// parseMetadata consumes a parenthesized metadata block, reporting each
// entry through handle. A standalone string is the doc comment. List-op
// prefixes (add/append/prepend/delete) are stripped from keys.
func (p *parser) parseMetadata(handle func(key string, value any)) error {
	if _, err := p.expect(tokLParen); err != nil {
		return err
	}
	for p.tok.kind != tokRParen {
		switch p.tok.kind {
		case tokEOF:
			return p.errorf("unexpected end of file inside metadata block")
		case tokString:
			handle("doc", p.tok.text)
			if err := p.advance(); err != nil {
				return err
			}
		case tokSemicolon, tokComma:
			if err := p.advance(); err != nil {
				return err
			}
		case tokIdent:
			key := p.tok.text
			if err := p.advance(); err != nil {
				return err
			}
			if listOpPrefixes[key] && p.tok.kind == tokIdent {
				key = p.tok.text
				if err := p.advance(); err != nil {
					return err
				}
			}
			if p.tok.kind != tokEquals {
				handle(key, true)
				continue
			}
			if err := p.advance(); err != nil {
				return err
			}
			value, err := p.parseValue()
			if err != nil {
				return err
			}
			handle(key, value)
		default:
			return p.errorf("unexpected %s in metadata block", p.describeCurrent())
		}
	}
	_, err := p.expect(tokRParen)
	return err
}

// parseValue parses one value expression. Dictionaries (used by
// timeSamples and customData) are skipped and reported as nil.
func (p *parser) parseValue() (any, error) {
	switch p.tok.kind {
	case tokString:
		text := p.tok.text
		return text, p.advance()
	case tokNumber:
		return p.parseNumber()
	case tokIdent:
		text := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "None":
			return nil, nil
		}
		return text, nil
	case tokPathRef:
		text := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return pathRef("/" + strings.TrimPrefix(text, "/")), nil
	case tokAssetRef:
		asset := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.tok.kind == tokPathRef {
			prim := p.tok.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			return compositeRef{asset: asset, prim: "/" + strings.TrimPrefix(prim, "/")}, nil
		}
		return assetRef(asset), nil
	case tokLParen:
		return p.parseSequence(tokRParen)
	case tokLBracket:
		return p.parseSequence(tokRBracket)
	case tokLBrace:
		return nil, p.skipBracedBlock()
	default:
		return nil, p.errorf("unexpected %s in value", p.describeCurrent())
	}
}

func (p *parser) parseNumber() (any, error) {
	text := p.tok.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	if !strings.ContainsAny(text, ".eE") {
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.errorf("malformed number %q", text)
	}
	return f, nil
}

// parseSequence parses a tuple "(...)" or list "[...]" body after the
// opening token, allowing a trailing comma.
func (p *parser) parseSequence(closing tokenKind) ([]any, error) {
	if err := p.advance(); err != nil { // consume the opening token
		return nil, err
	}
	values := []any{}
	for p.tok.kind != closing {
		if p.tok.kind == tokEOF {
			return nil, p.errorf("unterminated sequence")
		}
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, value)
		if p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else if p.tok.kind != closing {
			return nil, p.errorf("expected %s or %s in sequence, found %s", tokComma, closing, p.describeCurrent())
		}
	}
	return values, p.advance()
}

// plainValue converts parser-internal value wrappers into JSON-safe
// representations for attribute storage.
func plainValue(value any) any {
	switch v := value.(type) {
	case assetRef:
		return string(v)
	case pathRef:
		return string(v)
	case compositeRef:
		return v.asset + "</" + strings.TrimPrefix(v.prim, "/") + ">"
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = plainValue(item)
		}
		return out
	default:
		return v
	}
}
