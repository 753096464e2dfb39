package lang

import (
	"regexp"
	"strings"

	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

// jsScanner handles JavaScript and, with typescript set, TypeScript.
type jsScanner struct {
	typescript bool
}

var (
	jsArrowRe         = regexp.MustCompile(`^(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*(?::\s*[^=]+)?=>`)
	jsFuncExprRe      = regexp.MustCompile(`^(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?function\b`)
	jsConstRe         = regexp.MustCompile(`^const\s+([A-Z][A-Z0-9_]*)\s*(?::[^=]+)?=`)
	jsMethodRe        = regexp.MustCompile(`^((?:(?:public|private|protected|static|async|readonly|override|abstract|get|set)\s+)*)(#?[A-Za-z_$][\w$]*)\s*(?:<[^>]*>)?\s*\(`)
	jsFromRe          = regexp.MustCompile(`\bfrom\s+['"]`)
	jsExportListRe    = regexp.MustCompile(`^export\s*\{([^}]*)\}`)
	jsModuleExportsRe = regexp.MustCompile(`^(?:module\.)?exports\.([A-Za-z_$][\w$]*)\s*=`)
)

var jsKeywords = map[string]struct{}{
	"if": {}, "for": {}, "while": {}, "switch": {}, "catch": {}, "return": {},
	"function": {}, "new": {}, "typeof": {}, "await": {}, "super": {}, "else": {},
	"do": {}, "try": {}, "throw": {}, "delete": {}, "void": {}, "yield": {},
}

// jsStripModifiers removes export/default/declare/abstract prefixes and
// reports whether the declaration is exported.
func jsStripModifiers(s string) (string, bool) {
	exported := false
	for {
		switch {
		case strings.HasPrefix(s, "export "):
			exported = true
			s = strings.TrimSpace(s[7:])
		case strings.HasPrefix(s, "default "):
			s = strings.TrimSpace(s[8:])
		case strings.HasPrefix(s, "declare "):
			s = strings.TrimSpace(s[8:])
		case strings.HasPrefix(s, "abstract "):
			s = strings.TrimSpace(s[9:])
		default:
			return s, exported
		}
	}
}

func jsTopVisibility(exported bool) symbols.Visibility {
	if exported {
		return symbols.Public
	}
	return symbols.Internal
}

type jsClass struct {
	name   string
	depth  int
	opened bool
}

func (s jsScanner) Symbols(path string, src []byte) []symbols.Symbol {
	var (
		out     []symbols.Symbol
		depth   int
		classes []jsClass
		docs    []string
		inDoc   bool
	)

	for i, raw := range splitLines(src) {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)

		if inDoc || strings.HasPrefix(trimmed, "/**") {
			inDoc = !strings.Contains(trimmed, "*/")
			text := strings.TrimSpace(strings.Trim(strings.TrimSpace(strings.TrimPrefix(trimmed, "/**")), "*/"))
			if text != "" {
				docs = append(docs, text)
			}
			continue
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "@") {
			depth += braceDelta(raw)
			continue
		}

		rest, exported := jsStripModifiers(trimmed)
		var (
			name string
			typ  symbols.Type
			vis  = jsTopVisibility(exported)
		)

		switch {
		case strings.HasPrefix(rest, "function ") || strings.HasPrefix(rest, "function*") || strings.HasPrefix(rest, "async function"):
			r := strings.TrimPrefix(rest, "async ")
			r = strings.TrimSpace(strings.TrimPrefix(r, "function"))
			r = strings.TrimSpace(strings.TrimPrefix(r, "*"))
			name, typ = leadingIdent(r), symbols.Function
		case strings.HasPrefix(rest, "class "):
			name, typ = leadingIdent(strings.TrimSpace(rest[6:])), symbols.Class
		case s.typescript && strings.HasPrefix(rest, "interface "):
			name, typ = leadingIdent(strings.TrimSpace(rest[10:])), symbols.Interface
		case s.typescript && (strings.HasPrefix(rest, "enum ") || strings.HasPrefix(rest, "const enum ")):
			r := strings.TrimPrefix(rest, "const ")
			name, typ = leadingIdent(strings.TrimSpace(r[5:])), symbols.Enum
		case s.typescript && strings.HasPrefix(rest, "type ") && strings.Contains(rest, "="):
			name, typ = leadingIdent(strings.TrimSpace(rest[5:])), symbols.TypeAlias
		case s.typescript && strings.HasPrefix(rest, "namespace "):
			name, typ = leadingIdent(strings.TrimSpace(rest[10:])), symbols.Namespace
		default:
			if m := jsArrowRe.FindStringSubmatch(rest); m != nil {
				name, typ = m[1], symbols.Function
			} else if m := jsFuncExprRe.FindStringSubmatch(rest); m != nil {
				name, typ = m[1], symbols.Function
			} else if m := jsConstRe.FindStringSubmatch(rest); m != nil && depth == 0 {
				name, typ = m[1], symbols.Constant
			} else if len(classes) > 0 {
				top := classes[len(classes)-1]
				if top.opened && depth == top.depth+1 {
					if m := jsMethodRe.FindStringSubmatch(rest); m != nil {
						if _, kw := jsKeywords[m[2]]; !kw {
							name, typ = m[2], symbols.Method
							vis = jsMemberVisibility(m[1], m[2])
						}
					}
				}
			}
		}

		if name != "" {
			sym := symbols.Symbol{
				Name:       strings.TrimPrefix(name, "#"),
				Type:       typ,
				FilePath:   path,
				Line:       lineNo,
				Column:     column(raw, name),
				Signature:  signature(trimmed),
				Visibility: vis,
			}
			if typ == symbols.Method {
				sym.QualifiedName = classes[len(classes)-1].name + "." + sym.Name
			}
			if len(docs) > 0 {
				sym.Documentation = strings.Join(docs, "\n")
			}
			out = append(out, sym)
			if typ == symbols.Class {
				classes = append(classes, jsClass{name: name, depth: depth, opened: strings.Contains(raw, "{")})
			}
		}
		docs = docs[:0]

		depth += braceDelta(raw)
		if depth < 0 {
			depth = 0
		}
		for len(classes) > 0 {
			top := &classes[len(classes)-1]
			if depth > top.depth {
				top.opened = true
				break
			}
			if !top.opened {
				break
			}
			classes = classes[:len(classes)-1]
		}
	}
	return out
}

func jsMemberVisibility(modifiers, name string) symbols.Visibility {
	switch {
	case strings.HasPrefix(name, "#") || strings.Contains(modifiers, "private"):
		return symbols.Private
	case strings.Contains(modifiers, "protected"):
		return symbols.Protected
	default:
		return symbols.Public
	}
}

func (s jsScanner) ImportsExports(src []byte) ([]Statement, []string) {
	var imports []Statement
	var exports []string
	for i, raw := range splitLines(src) {
		trimmed := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "import{"),
			strings.Contains(trimmed, "require("),
			strings.Contains(trimmed, "import("),
			strings.HasPrefix(trimmed, "export ") && jsFromRe.MatchString(trimmed):
			imports = append(imports, Statement{Text: trimmed, Line: i + 1})
		}

		if m := jsExportListRe.FindStringSubmatch(trimmed); m != nil {
			for _, part := range strings.Split(m[1], ",") {
				part = strings.TrimSpace(part)
				if j := strings.Index(part, " as "); j >= 0 {
					part = strings.TrimSpace(part[j+4:])
				}
				if part != "" {
					exports = append(exports, part)
				}
			}
			continue
		}
		if m := jsModuleExportsRe.FindStringSubmatch(trimmed); m != nil {
			exports = append(exports, m[1])
			continue
		}
		if strings.HasPrefix(trimmed, "module.exports") {
			exports = append(exports, "default")
			continue
		}
		if !strings.HasPrefix(trimmed, "export ") {
			continue
		}
		rest, _ := jsStripModifiers(trimmed)
		if strings.HasPrefix(trimmed, "export default") {
			exports = append(exports, "default")
			continue
		}
		if name := jsDeclName(rest); name != "" {
			exports = append(exports, name)
		}
	}
	return imports, exports
}

func jsDeclName(rest string) string {
	rest = strings.TrimPrefix(rest, "async ")
	for _, kw := range []string{"function*", "function ", "class ", "interface ", "enum ", "type ", "const ", "let ", "var ", "namespace "} {
		if strings.HasPrefix(rest, kw) {
			return leadingIdent(strings.TrimSpace(rest[len(kw):]))
		}
	}
	return ""
}

func (s jsScanner) Markers(src []byte) []Marker {
	m := markerSet{}
	for i, raw := range splitLines(src) {
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		rest, _ := jsStripModifiers(trimmed)
		if strings.HasPrefix(rest, "class ") || strings.HasPrefix(rest, "interface ") {
			if strings.Contains(rest, " extends ") {
				m.add(model.Extends, i+1)
			}
			if strings.Contains(rest, " implements ") {
				m.add(model.Implements, i+1)
			}
		}
		if strings.HasPrefix(trimmed, "@") && len(trimmed) > 1 && isIdentByte(trimmed[1]) {
			m.add(model.References, i+1)
		}
	}
	return m.list()
}
