package lang

import (
	"regexp"
	"strings"

	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

type pythonScanner struct{}

var (
	pyAssignRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(?::[^=]*)?=[^=]`)
	pyAllRe    = regexp.MustCompile(`["']([A-Za-z_][A-Za-z0-9_]*)["']`)
)

type pyClass struct {
	name       string
	indent     int
	bodyIndent int
}

func indentOf(line string) int {
	n := 0
	for n < len(line) && (line[n] == ' ' || line[n] == '\t') {
		n++
	}
	return n
}

func pyVisibility(name string) symbols.Visibility {
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") && len(name) > 4 {
		return symbols.Public
	}
	if strings.HasPrefix(name, "_") {
		return symbols.Private
	}
	return symbols.Public
}

// pyDocstring returns the first line of a docstring opening on line idx.
func pyDocstring(lines []string, idx int) string {
	if idx >= len(lines) {
		return ""
	}
	t := strings.TrimSpace(lines[idx])
	for _, q := range []string{`"""`, `'''`} {
		if strings.HasPrefix(t, q) {
			body := strings.TrimPrefix(t, q)
			if end := strings.Index(body, q); end >= 0 {
				body = body[:end]
			}
			return strings.TrimSpace(body)
		}
	}
	return ""
}

func (pythonScanner) Symbols(path string, src []byte) []symbols.Symbol {
	lines := splitLines(src)
	var (
		out        []symbols.Symbol
		classes    []pyClass
		decorators []string
	)

	for i, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := indentOf(raw)
		for len(classes) > 0 && indent <= classes[len(classes)-1].indent {
			classes = classes[:len(classes)-1]
		}

		if strings.HasPrefix(trimmed, "@") {
			decorators = append(decorators, trimmed)
			continue
		}

		var (
			name string
			typ  symbols.Type
		)
		switch {
		case strings.HasPrefix(trimmed, "def "):
			name, typ = leadingIdent(strings.TrimSpace(trimmed[4:])), symbols.Function
		case strings.HasPrefix(trimmed, "async def "):
			name, typ = leadingIdent(strings.TrimSpace(trimmed[10:])), symbols.Function
		case strings.HasPrefix(trimmed, "class "):
			name, typ = leadingIdent(strings.TrimSpace(trimmed[6:])), symbols.Class
		case indent == 0:
			if m := pyAssignRe.FindStringSubmatch(trimmed); m != nil {
				name, typ = m[1], symbols.Variable
				if isUpperSnake(name) {
					typ = symbols.Constant
				}
			}
		}

		if name == "" {
			decorators = decorators[:0]
			continue
		}

		sym := symbols.Symbol{
			Name:       name,
			Type:       typ,
			FilePath:   path,
			Line:       i + 1,
			Column:     column(raw, name),
			Visibility: pyVisibility(name),
		}
		if typ != symbols.Variable && typ != symbols.Constant {
			sym.Signature = strings.TrimSuffix(CollapseWhitespace(trimmed), ":")
			sym.Documentation = pyDocstring(lines, i+1)
		}
		if len(decorators) > 0 {
			sym.Signature = strings.Join(decorators, " ") + " " + sym.Signature
		}

		if typ == symbols.Function && len(classes) > 0 {
			cls := &classes[len(classes)-1]
			if cls.bodyIndent == 0 {
				cls.bodyIndent = indent
			}
			if indent == cls.bodyIndent {
				sym.Type = symbols.Method
				sym.QualifiedName = cls.name + "." + name
			}
		} else if typ == symbols.Class && len(classes) > 0 {
			sym.QualifiedName = classes[len(classes)-1].name + "." + name
		}

		out = append(out, sym)
		decorators = decorators[:0]

		if typ == symbols.Class {
			classes = append(classes, pyClass{name: name, indent: indent})
		} else if len(classes) > 0 && classes[len(classes)-1].bodyIndent == 0 && indent > classes[len(classes)-1].indent {
			classes[len(classes)-1].bodyIndent = indent
		}
	}
	return out
}

func (pythonScanner) ImportsExports(src []byte) ([]Statement, []string) {
	var (
		imports  []Statement
		exports  []string
		public   []string
		explicit bool
	)
	for i, raw := range splitLines(src) {
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ") {
			imports = append(imports, Statement{Text: trimmed, Line: i + 1})
			continue
		}
		if indentOf(raw) != 0 {
			continue
		}
		if strings.HasPrefix(trimmed, "__all__") {
			explicit = true
			for _, m := range pyAllRe.FindAllStringSubmatch(trimmed, -1) {
				exports = append(exports, m[1])
			}
			continue
		}
		var name string
		switch {
		case strings.HasPrefix(trimmed, "def "):
			name = leadingIdent(strings.TrimSpace(trimmed[4:]))
		case strings.HasPrefix(trimmed, "async def "):
			name = leadingIdent(strings.TrimSpace(trimmed[10:]))
		case strings.HasPrefix(trimmed, "class "):
			name = leadingIdent(strings.TrimSpace(trimmed[6:]))
		}
		if name != "" && !strings.HasPrefix(name, "_") {
			public = append(public, name)
		}
	}
	if !explicit {
		exports = public
	}
	return imports, exports
}

func (pythonScanner) Markers(src []byte) []Marker {
	m := markerSet{}
	for i, raw := range splitLines(src) {
		trimmed := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(trimmed, "@"):
			m.add(model.References, i+1)
		case strings.HasPrefix(trimmed, "class "):
			open := strings.IndexByte(trimmed, '(')
			closing := strings.LastIndexByte(trimmed, ')')
			if open < 0 || closing <= open {
				continue
			}
			bases := strings.TrimSpace(trimmed[open+1 : closing])
			if bases != "" && bases != "object" {
				m.add(model.Extends, i+1)
			}
		}
	}
	return m.list()
}
