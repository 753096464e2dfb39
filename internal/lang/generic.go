package lang

import (
	"strings"

	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

// genericScanner looks for identifiers near function keywords in files of
// any language.
type genericScanner struct{}

var genericKeywords = []string{"function", "def ", "fn "}

var genericImportPrefixes = []string{"import ", "#include", "require ", "require(", "use ", "using "}

func (genericScanner) Symbols(path string, src []byte) []symbols.Symbol {
	var out []symbols.Symbol
	for i, raw := range splitLines(src) {
		if !strings.ContainsAny(raw, "({") {
			continue
		}
		name := genericFuncName(raw)
		if name == "" {
			continue
		}
		out = append(out, symbols.Symbol{
			Name:       name,
			Type:       symbols.Function,
			FilePath:   path,
			Line:       i + 1,
			Column:     column(raw, name),
			Signature:  signature(strings.TrimSpace(raw)),
			Visibility: symbols.VisibilityUnknown,
		})
	}
	return out
}

// genericFuncName returns the identifier following the first function
// keyword on the line.
func genericFuncName(line string) string {
	for _, kw := range genericKeywords {
		idx := strings.Index(line, kw)
		if idx < 0 {
			continue
		}
		if idx > 0 && isIdentByte(line[idx-1]) {
			continue
		}
		rest := strings.TrimLeft(line[idx+len(kw):], " \t*")
		if name := leadingIdent(rest); name != "" {
			return name
		}
	}
	return ""
}

func (genericScanner) ImportsExports(src []byte) ([]Statement, []string) {
	var imports []Statement
	for i, raw := range splitLines(src) {
		trimmed := strings.TrimSpace(raw)
		for _, p := range genericImportPrefixes {
			if strings.HasPrefix(trimmed, p) {
				imports = append(imports, Statement{Text: trimmed, Line: i + 1})
				break
			}
		}
	}
	return imports, nil
}

func (genericScanner) Markers(src []byte) []Marker {
	m := markerSet{}
	for i, raw := range splitLines(src) {
		if strings.Contains(raw, " extends ") {
			m.add(model.Extends, i+1)
		}
		if strings.Contains(raw, " implements ") {
			m.add(model.Implements, i+1)
		}
	}
	return m.list()
}
