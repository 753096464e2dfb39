// Package lang classifies source files by language and extracts symbols,
// import/export statements and relationship markers from them.
package lang

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

// Unknown is the language tag for files outside the extension table.
const Unknown = "unknown"

var extensionTags = map[string]string{
	".rs":   "rust",
	".py":   "python",
	".pyi":  "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".mts":  "typescript",
	".cts":  "typescript",
	".java": "java",
	".cpp":  "cpp",
	".cc":   "cpp",
	".cxx":  "cpp",
	".hpp":  "cpp",
	".c":    "c",
	".h":    "c",
	".go":   "go",
	".rb":   "ruby",
	".php":  "php",
	".sh":   "shell",
	".bash": "shell",
	".yml":  "yaml",
	".yaml": "yaml",
	".json": "json",
	".md":   "markdown",
	".toml": "toml",
}

// Detect returns the language tag for path based on its extension.
func Detect(path string) string {
	if tag, ok := extensionTags[strings.ToLower(filepath.Ext(path))]; ok {
		return tag
	}
	return Unknown
}

// Variant is the closed set of extraction implementations.
type Variant int

const (
	Generic Variant = iota
	Rust
	Python
	JavaScript
	TypeScript
)

func (v Variant) String() string {
	switch v {
	case Rust:
		return "rust"
	case Python:
		return "python"
	case JavaScript:
		return "javascript"
	case TypeScript:
		return "typescript"
	default:
		return "generic"
	}
}

// VariantFor maps a language tag to its extraction variant.
func VariantFor(tag string) Variant {
	switch tag {
	case "rust":
		return Rust
	case "python":
		return Python
	case "javascript":
		return JavaScript
	case "typescript":
		return TypeScript
	default:
		return Generic
	}
}

// Statement is one source line of interest with its 1-based line number.
type Statement struct {
	Text string
	Line int
}

// Marker flags a self-referential relationship found in a file, such as a
// trait implementation or a decorator use.
type Marker struct {
	Type  model.RelationshipType
	Lines []int
}

// Scanner is the extraction capability set every variant provides.
// Implementations must tolerate arbitrary input without panicking.
type Scanner interface {
	// Symbols returns definitions in src, each stamped with path.
	Symbols(path string, src []byte) []symbols.Symbol
	// ImportsExports returns import statements and exported names.
	ImportsExports(src []byte) (imports []Statement, exports []string)
	// Markers returns self-referential relationship markers.
	Markers(src []byte) []Marker
}

var heuristic = map[Variant]Scanner{
	Rust:       rustScanner{},
	Python:     pythonScanner{},
	JavaScript: jsScanner{typescript: false},
	TypeScript: jsScanner{typescript: true},
	Generic:    genericScanner{},
}

// Heuristic returns the line-scanning Scanner for v.
func Heuristic(v Variant) Scanner {
	return heuristic[v]
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// CollapseWhitespace replaces runs of whitespace with a single space and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func splitLines(src []byte) []string {
	return strings.Split(strings.ReplaceAll(string(src), "\r\n", "\n"), "\n")
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// leadingIdent returns the identifier at the start of s, or "".
func leadingIdent(s string) string {
	i := 0
	for i < len(s) && isIdentByte(s[i]) {
		i++
	}
	if i == 0 || ('0' <= s[0] && s[0] <= '9') {
		return ""
	}
	return s[:i]
}

// column returns the 1-based byte column of name in line, or 1.
func column(line, name string) int {
	if i := strings.Index(line, name); i >= 0 {
		return i + 1
	}
	return 1
}

// signature trims a declaration line down to its header.
func signature(trimmed string) string {
	s := strings.TrimSpace(trimmed)
	s = strings.TrimSuffix(s, "{")
	s = strings.TrimSuffix(s, ";")
	return CollapseWhitespace(s)
}

func braceDelta(line string) int {
	return strings.Count(line, "{") - strings.Count(line, "}")
}

func isUpperSnake(name string) bool {
	hasLetter := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case 'A' <= c && c <= 'Z':
			hasLetter = true
		case c == '_' || ('0' <= c && c <= '9'):
		default:
			return false
		}
	}
	return hasLetter
}

// markerSet accumulates marker lines per relationship type.
type markerSet map[model.RelationshipType][]int

func (m markerSet) add(t model.RelationshipType, line int) {
	lines := m[t]
	if len(lines) > 0 && lines[len(lines)-1] == line {
		return
	}
	m[t] = append(lines, line)
}

func (m markerSet) list() []Marker {
	var out []Marker
	for _, t := range model.AllRelationshipTypes {
		if lines, ok := m[t]; ok {
			out = append(out, Marker{Type: t, Lines: lines})
		}
	}
	return out
}
