package chunker

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"repoquery/internal/walker"
)

// definitionSpec describes how one tree-sitter node type maps to a
// boundary: its kind and the field holding its name.
type definitionSpec struct {
	kind      Kind
	nameField string
}

// grammarSpec binds a tree-sitter grammar to the node types that count
// as definitions in that language.
type grammarSpec struct {
	language     *sitter.Language
	defs         map[string]definitionSpec
	commentTypes map[string]bool
}

var grammars = map[string]grammarSpec{
	walker.LangGo: {
		language: golang.GetLanguage(),
		defs: map[string]definitionSpec{
			"function_declaration": {kind: KindFunction, nameField: "name"},
			"method_declaration":   {kind: KindMethod, nameField: "name"},
			// type_spec rather than type_declaration: a grouped
			// "type (...)" block declares several independent types.
			"type_spec": {kind: KindStruct, nameField: "name"},
		},
		commentTypes: map[string]bool{"comment": true},
	},
	walker.LangPython: {
		language: python.GetLanguage(),
		defs: map[string]definitionSpec{
			"function_definition": {kind: KindFunction, nameField: "name"},
			"class_definition":    {kind: KindClass, nameField: "name"},
		},
		commentTypes: map[string]bool{"comment": true},
	},
	walker.LangJavaScript: {
		language: javascript.GetLanguage(),
		defs: map[string]definitionSpec{
			"function_declaration": {kind: KindFunction, nameField: "name"},
			"class_declaration":    {kind: KindClass, nameField: "name"},
			"method_definition":    {kind: KindMethod, nameField: "name"},
		},
		commentTypes: map[string]bool{"comment": true},
	},
	walker.LangTypeScript: {
		language: typescript.GetLanguage(),
		defs: map[string]definitionSpec{
			"function_declaration":  {kind: KindFunction, nameField: "name"},
			"class_declaration":     {kind: KindClass, nameField: "name"},
			"method_definition":     {kind: KindMethod, nameField: "name"},
			"interface_declaration": {kind: KindStruct, nameField: "name"},
		},
		commentTypes: map[string]bool{"comment": true},
	},
	walker.LangRust: {
		language: rust.GetLanguage(),
		defs: map[string]definitionSpec{
			"function_item": {kind: KindFunction, nameField: "name"},
			"struct_item":   {kind: KindStruct, nameField: "name"},
			"enum_item":     {kind: KindStruct, nameField: "name"},
			"trait_item":    {kind: KindClass, nameField: "name"},
			"impl_item":     {kind: KindClass, nameField: "type"},
		},
		commentTypes: map[string]bool{"line_comment": true, "block_comment": true},
	},
}

// TreeSitterExtractor finds definition boundaries with a tree-sitter
// grammar. A fresh parser is created per call because sitter.Parser is
// not safe for concurrent use and the ingestion pipeline extracts files
// in parallel.
type TreeSitterExtractor struct {
	spec grammarSpec
}

// definition is one named node found during the tree walk. Line numbers
// are 1-indexed; depth is the nesting level, used to resolve line
// ownership when definitions contain other definitions.
type definition struct {
	startLine int
	endLine   int
	kind      Kind
	name      string
	depth     int
}

func (e *TreeSitterExtractor) Extract(file walker.SourceFile) ([]Boundary, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(e.spec.language)

	content := []byte(file.Text)
	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	defs := e.collect(tree.RootNode(), content)
	return layout(defs, len(splitLines(file.Text))), nil
}

// collect walks the tree and records every definition node together
// with its qualified name and nesting depth.
func (e *TreeSitterExtractor) collect(root *sitter.Node, content []byte) []definition {
	var defs []definition

	var walk func(n *sitter.Node, scope []string, depth int)
	walk = func(n *sitter.Node, scope []string, depth int) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)

			spec, ok := e.spec.defs[child.Type()]
			if !ok {
				walk(child, scope, depth)
				continue
			}

			name := e.definitionName(child, spec, content)
			kind := spec.kind
			if kind == KindFunction && len(scope) > 0 {
				kind = KindMethod
			}

			qname := name
			if len(scope) > 0 {
				qname = strings.Join(scope, ScopeSeparator) + ScopeSeparator + name
			}

			start := e.startWithLeadingComments(child, content)
			defs = append(defs, definition{
				startLine: start,
				endLine:   int(child.EndPoint().Row) + 1,
				kind:      kind,
				name:      qname,
				depth:     depth,
			})

			walk(child, append(scope, name), depth+1)
		}
	}
	walk(root, nil, 0)

	return defs
}

// definitionName resolves a definition node's name. Go methods are
// qualified with their receiver type so "Create" on *UserService yields
// "UserService.Create".
func (e *TreeSitterExtractor) definitionName(n *sitter.Node, spec definitionSpec, content []byte) string {
	name := ""
	if nameNode := n.ChildByFieldName(spec.nameField); nameNode != nil {
		name = nameNode.Content(content)
	}
	if name == "" {
		name = n.Type()
	}

	if n.Type() == "method_declaration" {
		if recv := receiverTypeName(n, content); recv != "" {
			name = recv + ScopeSeparator + name
		}
	}
	return name
}

// receiverTypeName extracts the bare receiver type from a Go method
// declaration, dropping the receiver variable and any pointer star.
func receiverTypeName(n *sitter.Node, content []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	text := strings.Trim(recv.Content(content), "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	typ := fields[len(fields)-1]
	typ = strings.TrimPrefix(typ, "*")
	// Generic receivers like Cache[K, V] reduce to the base name.
	if i := strings.Index(typ, "["); i >= 0 {
		typ = typ[:i]
	}
	return typ
}

// startWithLeadingComments extends a definition's start upward over
// directly attached comment lines, so doc comments travel with the
// definition they document. Python decorators are handled the same way
// through the wrapping decorated_definition node.
func (e *TreeSitterExtractor) startWithLeadingComments(n *sitter.Node, content []byte) int {
	start := n
	if p := n.Parent(); p != nil && p.Type() == "decorated_definition" {
		start = p
	}

	startRow := int(start.StartPoint().Row)
	prev := start.PrevNamedSibling()
	for prev != nil && e.spec.commentTypes[prev.Type()] {
		if int(prev.EndPoint().Row) != startRow-1 {
			break // blank line between comment and definition
		}
		startRow = int(prev.StartPoint().Row)
		prev = prev.PrevNamedSibling()
	}

	return startRow + 1
}

// layout turns the collected definitions into non-overlapping
// boundaries. Every line is assigned to the deepest definition covering
// it; consecutive runs with the same owner become one boundary and
// unowned runs become block boundaries. Nested definitions therefore
// split their parent into surrounding pieces that keep the parent's
// kind and name.
func layout(defs []definition, total int) []Boundary {
	if total < 1 {
		total = 1
	}

	owners := make([]*definition, total+1) // 1-indexed

	for d := 0; d < len(defs); d++ {
		def := &defs[d]
		for line := def.startLine; line <= def.endLine && line <= total; line++ {
			if line < 1 {
				continue
			}
			if owners[line] == nil || def.depth >= owners[line].depth {
				owners[line] = def
			}
		}
	}

	var out []Boundary
	runStart := 1
	for line := 2; line <= total+1; line++ {
		if line <= total && owners[line] == owners[runStart] {
			continue
		}
		b := Boundary{StartLine: runStart, EndLine: line - 1, Kind: KindBlock}
		if own := owners[runStart]; own != nil {
			b.Kind = own.kind
			b.QualifiedName = own.name
		}
		out = append(out, b)
		runStart = line
	}

	return out
}
