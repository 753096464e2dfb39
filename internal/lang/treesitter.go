package lang

import (
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/phobologic/codectx/internal/symbols"
)

//go:embed queries/*.scm
var queryFS embed.FS

// Grammar holds tree-sitter configuration for one grammar.
type Grammar struct {
	Name      string
	queryFile string
	lang      *sitter.Language
	queryOnce sync.Once
	query     *sitter.Query
	queryErr  error
}

var (
	rustGrammar       = &Grammar{Name: "rust", queryFile: "rust", lang: rust.GetLanguage()}
	pythonGrammar     = &Grammar{Name: "python", queryFile: "python", lang: python.GetLanguage()}
	javascriptGrammar = &Grammar{Name: "javascript", queryFile: "javascript", lang: javascript.GetLanguage()}
	typescriptGrammar = &Grammar{Name: "typescript", queryFile: "typescript", lang: typescript.GetLanguage()}
	tsxGrammar        = &Grammar{Name: "tsx", queryFile: "typescript", lang: tsx.GetLanguage()}
)

// NewParser creates a fresh parser for this grammar.
// Parsers are not safe for concurrent use.
func (g *Grammar) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(g.lang)
	return p
}

// GetTagQuery returns the compiled tag query (safe to share across goroutines).
func (g *Grammar) GetTagQuery() (*sitter.Query, error) {
	g.queryOnce.Do(func() {
		data, err := queryFS.ReadFile(fmt.Sprintf("queries/%s.scm", g.queryFile))
		if err != nil {
			g.queryErr = fmt.Errorf("reading query file: %w", err)
			return
		}
		q, err := sitter.NewQuery(data, g.lang)
		if err != nil {
			g.queryErr = fmt.Errorf("compiling query: %w", err)
			return
		}
		g.query = q
	})
	return g.query, g.queryErr
}

// TreeSitter returns a Scanner that extracts symbols from a full parse tree.
// Imports, exports and markers still come from the line scanner, as does
// everything for the Generic variant.
func TreeSitter(v Variant) Scanner {
	switch v {
	case Rust:
		return treeSitterScanner{variant: v, grammar: func(string) *Grammar { return rustGrammar }}
	case Python:
		return treeSitterScanner{variant: v, grammar: func(string) *Grammar { return pythonGrammar }}
	case JavaScript:
		return treeSitterScanner{variant: v, grammar: func(string) *Grammar { return javascriptGrammar }}
	case TypeScript:
		return treeSitterScanner{variant: v, grammar: func(path string) *Grammar {
			if strings.EqualFold(filepath.Ext(path), ".tsx") {
				return tsxGrammar
			}
			return typescriptGrammar
		}}
	}
	return Heuristic(v)
}

type treeSitterScanner struct {
	variant Variant
	grammar func(path string) *Grammar
}

var captureTypes = map[string]symbols.Type{
	"definition.function":  symbols.Function,
	"definition.method":    symbols.Method,
	"definition.class":     symbols.Class,
	"definition.struct":    symbols.Struct,
	"definition.enum":      symbols.Enum,
	"definition.trait":     symbols.Trait,
	"definition.interface": symbols.Interface,
	"definition.module":    symbols.Module,
	"definition.constant":  symbols.Constant,
	"definition.type":      symbols.TypeAlias,
}

func (s treeSitterScanner) Symbols(path string, src []byte) []symbols.Symbol {
	if len(src) == 0 {
		return nil
	}
	g := s.grammar(path)
	query, err := g.GetTagQuery()
	if err != nil {
		return Heuristic(s.variant).Symbols(path, src)
	}

	parser := g.NewParser()
	defer parser.Close()
	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return Heuristic(s.variant).Symbols(path, src)
	}
	defer tree.Close()

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, tree.RootNode())

	var out []symbols.Symbol
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, src)

		var nameNode, defNode *sitter.Node
		var typ symbols.Type
		for _, c := range match.Captures {
			cname := query.CaptureNameForId(c.Index)
			if cname == "name" {
				nameNode = c.Node
			} else if t, ok := captureTypes[cname]; ok {
				typ = t
				defNode = c.Node
			}
		}
		if nameNode == nil || defNode == nil {
			continue
		}

		name := nameNode.Content(src)
		sym := symbols.Symbol{
			Name:      name,
			Type:      typ,
			FilePath:  path,
			Line:      int(nameNode.StartPoint().Row) + 1,
			Column:    int(nameNode.StartPoint().Column) + 1,
			Signature: nodeSignature(defNode, src),
		}

		switch s.variant {
		case Rust:
			sym.Visibility = tsRustVisibility(defNode, src)
			if owner := tsRustOwner(defNode, src); owner != "" && typ == symbols.Function {
				sym.Type = symbols.Method
				sym.QualifiedName = owner + "::" + name
			}
			if attrs := tsRustAttributes(defNode, src); attrs != "" {
				sym.Signature = attrs + " " + sym.Signature
			}
		case Python:
			sym.Visibility = pyVisibility(name)
			if cls := tsPythonClass(defNode, src); cls != "" {
				sym.QualifiedName = cls + "." + name
				if typ == symbols.Function {
					sym.Type = symbols.Method
				}
			}
			if decorators := tsPythonDecorators(defNode, src); decorators != "" {
				sym.Signature = decorators + " " + sym.Signature
			}
		default:
			sym.Visibility = tsJSVisibility(defNode, src, typ)
			if typ == symbols.Method {
				if cls := tsJSClass(defNode, src); cls != "" {
					sym.QualifiedName = cls + "." + name
				}
			}
		}
		out = append(out, sym)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Column < out[j].Column
	})
	return out
}

func (s treeSitterScanner) ImportsExports(src []byte) ([]Statement, []string) {
	return Heuristic(s.variant).ImportsExports(src)
}

func (s treeSitterScanner) Markers(src []byte) []Marker {
	return Heuristic(s.variant).Markers(src)
}

// nodeSignature returns the first line of a definition node.
func nodeSignature(node *sitter.Node, src []byte) string {
	text := node.Content(src)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	return signature(text)
}

func tsRustVisibility(node *sitter.Node, src []byte) symbols.Visibility {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "visibility_modifier" {
			continue
		}
		if strings.Contains(child.Content(src), "(") {
			return symbols.Internal
		}
		return symbols.Public
	}
	return symbols.Private
}

// tsRustOwner returns the impl type or trait name enclosing a function.
func tsRustOwner(node *sitter.Node, src []byte) string {
	parent := node.Parent()
	if parent == nil || parent.Type() != "declaration_list" {
		return ""
	}
	owner := parent.Parent()
	if owner == nil {
		return ""
	}
	switch owner.Type() {
	case "impl_item":
		if t := owner.ChildByFieldName("type"); t != nil {
			return lastPathIdent(t.Content(src))
		}
	case "trait_item":
		if n := owner.ChildByFieldName("name"); n != nil {
			return n.Content(src)
		}
	}
	return ""
}

func tsRustAttributes(node *sitter.Node, src []byte) string {
	var attrs []string
	for prev := node.PrevNamedSibling(); prev != nil && prev.Type() == "attribute_item"; prev = prev.PrevNamedSibling() {
		attrs = append([]string{CollapseWhitespace(prev.Content(src))}, attrs...)
	}
	return strings.Join(attrs, " ")
}

func tsPythonClass(node *sitter.Node, src []byte) string {
	parent := node.Parent()
	if parent != nil && parent.Type() == "decorated_definition" {
		parent = parent.Parent()
	}
	if parent == nil || parent.Type() != "block" {
		return ""
	}
	cls := parent.Parent()
	if cls == nil || cls.Type() != "class_definition" {
		return ""
	}
	if n := cls.ChildByFieldName("name"); n != nil {
		return n.Content(src)
	}
	return ""
}

func tsPythonDecorators(node *sitter.Node, src []byte) string {
	parent := node.Parent()
	if parent == nil || parent.Type() != "decorated_definition" {
		return ""
	}
	var decorators []string
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		child := parent.NamedChild(i)
		if child.Type() == "decorator" {
			decorators = append(decorators, CollapseWhitespace(child.Content(src)))
		}
	}
	return strings.Join(decorators, " ")
}

func tsJSVisibility(node *sitter.Node, src []byte, typ symbols.Type) symbols.Visibility {
	if typ == symbols.Method {
		name := node.ChildByFieldName("name")
		if name != nil && strings.HasPrefix(name.Content(src), "#") {
			return symbols.Private
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "accessibility_modifier" {
				switch child.Content(src) {
				case "private":
					return symbols.Private
				case "protected":
					return symbols.Protected
				}
			}
		}
		return symbols.Public
	}
	for p := node.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "export_statement":
			return symbols.Public
		case "program":
			return symbols.Internal
		}
	}
	return symbols.Internal
}

func tsJSClass(node *sitter.Node, src []byte) string {
	body := node.Parent()
	if body == nil || body.Type() != "class_body" {
		return ""
	}
	cls := body.Parent()
	if cls == nil {
		return ""
	}
	if n := cls.ChildByFieldName("name"); n != nil {
		return n.Content(src)
	}
	return ""
}
