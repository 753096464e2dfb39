package lang

import (
	"regexp"
	"strings"

	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

type rustScanner struct{}

var rustMacroRe = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*!\s*[\(\[\{]`)

// rustVisibility strips a leading visibility modifier.
func rustVisibility(s string) (string, symbols.Visibility) {
	if strings.HasPrefix(s, "pub(") {
		if end := strings.IndexByte(s, ')'); end > 0 {
			return strings.TrimSpace(s[end+1:]), symbols.Internal
		}
	}
	if strings.HasPrefix(s, "pub ") {
		return strings.TrimSpace(s[4:]), symbols.Public
	}
	return s, symbols.Private
}

// rustQualifiers strips fn qualifiers such as async, const, unsafe and extern.
func rustQualifiers(s string) string {
	for {
		switch {
		case strings.HasPrefix(s, "async "):
			s = strings.TrimSpace(s[6:])
		case strings.HasPrefix(s, "unsafe "):
			s = strings.TrimSpace(s[7:])
		case strings.HasPrefix(s, "default "):
			s = strings.TrimSpace(s[8:])
		case strings.HasPrefix(s, "const ") && strings.HasPrefix(strings.TrimSpace(s[6:]), "fn "):
			s = strings.TrimSpace(s[6:])
		case strings.HasPrefix(s, "const ") && strings.HasPrefix(strings.TrimSpace(s[6:]), "unsafe "):
			s = strings.TrimSpace(s[6:])
		case strings.HasPrefix(s, "const ") && strings.HasPrefix(strings.TrimSpace(s[6:]), "async "):
			s = strings.TrimSpace(s[6:])
		case strings.HasPrefix(s, "extern "):
			rest := strings.TrimSpace(s[7:])
			if strings.HasPrefix(rest, `"`) {
				if end := strings.IndexByte(rest[1:], '"'); end >= 0 {
					rest = strings.TrimSpace(rest[end+2:])
				}
			}
			if !strings.HasPrefix(rest, "fn ") && !strings.HasPrefix(rest, "unsafe ") {
				return s
			}
			s = rest
		default:
			return s
		}
	}
}

// rustImplTarget returns the type an impl block attaches to and, for trait
// impls, the trait name.
func rustImplTarget(rest string) (typ, trait string) {
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "impl"))
	if strings.HasPrefix(rest, "<") {
		depth := 0
		for i := 0; i < len(rest); i++ {
			switch rest[i] {
			case '<':
				depth++
			case '>':
				depth--
			}
			if depth == 0 {
				rest = strings.TrimSpace(rest[i+1:])
				break
			}
		}
	}
	head := rest
	if i := strings.Index(head, " for "); i >= 0 {
		trait = lastPathIdent(head[:i])
		head = strings.TrimSpace(head[i+5:])
	}
	return lastPathIdent(head), trait
}

// lastPathIdent returns the final identifier of a path like a::b::C<T>.
func lastPathIdent(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "&")
	s = strings.TrimPrefix(s, "dyn ")
	if i := strings.IndexAny(s, "<{ "); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "::"); i >= 0 {
		s = s[i+2:]
	}
	return leadingIdent(s)
}

type rustBlock struct {
	name   string
	depth  int
	opened bool
}

func (rustScanner) Symbols(path string, src []byte) []symbols.Symbol {
	var (
		out   []symbols.Symbol
		attrs []string
		docs  []string
		depth int
		impls []rustBlock
	)

	for i, raw := range splitLines(src) {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(trimmed, "///"), strings.HasPrefix(trimmed, "//!"):
			docs = append(docs, strings.TrimSpace(trimmed[3:]))
			continue
		case strings.HasPrefix(trimmed, "//"):
			continue
		case strings.HasPrefix(trimmed, "#["):
			attrs = append(attrs, trimmed)
			continue
		}

		rest, vis := rustVisibility(trimmed)
		rest = rustQualifiers(rest)

		var (
			name string
			typ  symbols.Type
		)
		switch {
		case strings.HasPrefix(rest, "fn "):
			name, typ = leadingIdent(strings.TrimSpace(rest[3:])), symbols.Function
		case strings.HasPrefix(rest, "struct "):
			name, typ = leadingIdent(strings.TrimSpace(rest[7:])), symbols.Struct
		case strings.HasPrefix(rest, "enum "):
			name, typ = leadingIdent(strings.TrimSpace(rest[5:])), symbols.Enum
		case strings.HasPrefix(rest, "union "):
			name, typ = leadingIdent(strings.TrimSpace(rest[6:])), symbols.Struct
		case strings.HasPrefix(rest, "trait "):
			name, typ = leadingIdent(strings.TrimSpace(rest[6:])), symbols.Trait
		case strings.HasPrefix(rest, "const "):
			name, typ = leadingIdent(strings.TrimSpace(rest[6:])), symbols.Constant
		case strings.HasPrefix(rest, "static "):
			r := strings.TrimSpace(rest[7:])
			r = strings.TrimSpace(strings.TrimPrefix(r, "mut "))
			name, typ = leadingIdent(r), symbols.Constant
		case strings.HasPrefix(rest, "mod "):
			name, typ = leadingIdent(strings.TrimSpace(rest[4:])), symbols.Module
		case strings.HasPrefix(rest, "type "):
			name, typ = leadingIdent(strings.TrimSpace(rest[5:])), symbols.TypeAlias
		case strings.HasPrefix(rest, "impl ") || strings.HasPrefix(rest, "impl<"):
			typName, _ := rustImplTarget(rest)
			impls = append(impls, rustBlock{name: typName, depth: depth, opened: strings.Contains(raw, "{")})
		}

		if name != "" && name != "_" {
			sym := symbols.Symbol{
				Name:       name,
				Type:       typ,
				FilePath:   path,
				Line:       lineNo,
				Column:     column(raw, name),
				Signature:  signature(trimmed),
				Visibility: vis,
			}
			if len(attrs) > 0 {
				sym.Signature = strings.Join(attrs, " ") + " " + sym.Signature
			}
			if len(docs) > 0 {
				sym.Documentation = strings.Join(docs, "\n")
			}
			if typ == symbols.Function && len(impls) > 0 {
				top := impls[len(impls)-1]
				if top.opened && depth == top.depth+1 {
					sym.Type = symbols.Method
					if top.name != "" {
						sym.QualifiedName = top.name + "::" + name
					}
				}
			}
			out = append(out, sym)
			if typ == symbols.Trait {
				impls = append(impls, rustBlock{name: name, depth: depth, opened: strings.Contains(raw, "{")})
			}
		}

		attrs = attrs[:0]
		docs = docs[:0]

		depth += braceDelta(raw)
		if depth < 0 {
			depth = 0
		}
		for len(impls) > 0 {
			top := &impls[len(impls)-1]
			if depth > top.depth {
				top.opened = true
				break
			}
			if !top.opened && !strings.HasSuffix(strings.TrimSpace(raw), ";") {
				break
			}
			impls = impls[:len(impls)-1]
		}
	}
	return out
}

func (rustScanner) ImportsExports(src []byte) ([]Statement, []string) {
	var imports []Statement
	var exports []string
	depth := 0
	for i, raw := range splitLines(src) {
		trimmed := strings.TrimSpace(raw)
		rest, vis := rustVisibility(trimmed)
		switch {
		case strings.HasPrefix(rest, "use "):
			imports = append(imports, Statement{Text: trimmed, Line: i + 1})
		case strings.HasPrefix(rest, "extern crate "):
			imports = append(imports, Statement{Text: trimmed, Line: i + 1})
		case strings.HasPrefix(rest, "mod ") && strings.HasSuffix(rest, ";"):
			imports = append(imports, Statement{Text: trimmed, Line: i + 1})
		}
		if vis == symbols.Public && depth == 0 {
			if name := rustDeclName(rustQualifiers(rest)); name != "" {
				exports = append(exports, name)
			}
		}
		depth += braceDelta(raw)
		if depth < 0 {
			depth = 0
		}
	}
	return imports, exports
}

// rustDeclName returns the declared name for an item header, or the use
// path for a re-export.
func rustDeclName(rest string) string {
	for _, kw := range []string{"fn ", "struct ", "enum ", "trait ", "const ", "static ", "mod ", "type ", "union "} {
		if strings.HasPrefix(rest, kw) {
			r := strings.TrimSpace(rest[len(kw):])
			r = strings.TrimSpace(strings.TrimPrefix(r, "mut "))
			return leadingIdent(r)
		}
	}
	if strings.HasPrefix(rest, "use ") {
		return strings.TrimSuffix(strings.TrimSpace(rest[4:]), ";")
	}
	return ""
}

func (rustScanner) Markers(src []byte) []Marker {
	m := markerSet{}
	for i, raw := range splitLines(src) {
		lineNo := i + 1
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		rest, _ := rustVisibility(trimmed)
		rest = rustQualifiers(rest)
		if strings.HasPrefix(rest, "impl ") || strings.HasPrefix(rest, "impl<") {
			if _, trait := rustImplTarget(rest); trait != "" {
				m.add(model.Implements, lineNo)
			}
		}
		if strings.HasPrefix(rest, "trait ") {
			header := rest
			if j := strings.IndexByte(header, '{'); j >= 0 {
				header = header[:j]
			}
			if strings.Contains(header, ":") {
				m.add(model.Extends, lineNo)
			}
		}
		if rustMacroRe.MatchString(trimmed) {
			m.add(model.References, lineNo)
		}
	}
	return m.list()
}
