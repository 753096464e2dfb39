package semantic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/codectx/internal/discover"
	"github.com/phobologic/codectx/internal/lang"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/naming"
	"github.com/phobologic/codectx/internal/symbols"
)

// Confidence floors below which a pattern is not reported.
const (
	namingFloor = 0.5
	asyncFloor  = 0.1
)

// Pattern labels.
const (
	LabelRustResult     = "rust_result"
	LabelGroupedImports = "grouped_imports"
)

// tally accumulates one pattern while scanning files in path order.
type tally struct {
	typ      model.PatternType
	matches  int
	eligible int
	examples []string
	files    map[string]struct{}
}

func newTally(family model.PatternFamily, label string) *tally {
	return &tally{
		typ:   model.PatternType{Family: family, Label: label},
		files: make(map[string]struct{}),
	}
}

func (t *tally) hit(f *model.FileContext, example string) {
	t.matches++
	t.files[f.Path] = struct{}{}
	if len(t.examples) < model.MaxPatternExamples {
		t.examples = append(t.examples, example)
	}
}

func (t *tally) pattern() model.CodePattern {
	files := make([]string, 0, len(t.files))
	for f := range t.files {
		files = append(files, f)
	}
	sort.Strings(files)
	conf := 0.0
	if t.eligible > 0 {
		conf = float64(t.matches) / float64(t.eligible)
	}
	return model.CodePattern{
		Type:          t.typ,
		Confidence:    conf,
		Occurrences:   t.matches,
		Eligible:      t.eligible,
		Examples:      t.examples,
		FilesAffected: files,
	}
}

func symbolExample(f *model.FileContext, s symbols.Symbol) string {
	return fmt.Sprintf("%s:%d %s", f.RelativePath, s.Line, s.Name)
}

// DetectPatterns mines naming, error-handling, async, testing and import
// organization patterns. Files are visited in path order so examples are
// reproducible.
func DetectPatterns(files []model.FileContext) map[model.PatternType]model.CodePattern {
	sorted := model.SortFiles(files)
	out := make(map[model.PatternType]model.CodePattern)
	emit := func(t *tally) {
		out[t.typ] = t.pattern()
	}

	for _, t := range namingPatterns(sorted) {
		if t.eligible > 0 && float64(t.matches)/float64(t.eligible) > namingFloor {
			emit(t)
		}
	}
	if t := errorHandling(sorted); t.eligible > 0 {
		emit(t)
	}
	for _, t := range asyncPatterns(sorted) {
		if t.eligible > 0 && float64(t.matches)/float64(t.eligible) > asyncFloor {
			emit(t)
		}
	}
	for _, t := range testingPatterns(sorted) {
		if t.matches > 0 {
			emit(t)
		}
	}
	if t := importOrganization(sorted); t.eligible > 0 {
		emit(t)
	}
	return out
}

// callable reports whether s is a function, free or bound to a type.
func callable(s symbols.Symbol) bool {
	return s.Type == symbols.Function || s.Type == symbols.Method
}

// namingPatterns checks function, method and variable names against snake_case and
// camelCase independently, so a single-word lower-case name counts for both.
func namingPatterns(files []*model.FileContext) []*tally {
	snake := newTally(model.NamingConventionFamily, naming.SnakeCase)
	camel := newTally(model.NamingConventionFamily, naming.CamelCase)
	for _, f := range files {
		for _, s := range f.Symbols {
			if !callable(s) && s.Type != symbols.Variable {
				continue
			}
			for _, t := range []*tally{snake, camel} {
				t.eligible++
				if naming.Matches(s.Name, t.typ.Label) {
					t.hit(f, symbolExample(f, s))
				}
			}
		}
	}
	return []*tally{snake, camel}
}

// errorHandling measures how many Rust functions and methods return a Result.
func errorHandling(files []*model.FileContext) *tally {
	t := newTally(model.ErrorHandlingFamily, LabelRustResult)
	for _, f := range files {
		if lang.VariantFor(f.Language) != lang.Rust {
			continue
		}
		for _, s := range f.Symbols {
			if !callable(s) {
				continue
			}
			t.eligible++
			if strings.Contains(s.Signature, "Result<") {
				t.hit(f, symbolExample(f, s))
			}
		}
	}
	return t
}

// asyncMarkers maps language variants to a pattern label and the signature
// fragment marking an async function.
var asyncMarkers = []struct {
	variants []lang.Variant
	label    string
	marker   string
}{
	{[]lang.Variant{lang.Rust}, "rust_async", "async fn"},
	{[]lang.Variant{lang.Python}, "python_async", "async def"},
	{[]lang.Variant{lang.JavaScript, lang.TypeScript}, "javascript_async", "async"},
}

// asyncPatterns measures async usage per language over functions and
// methods.
func asyncPatterns(files []*model.FileContext) []*tally {
	var out []*tally
	for _, am := range asyncMarkers {
		t := newTally(model.AsyncPatternFamily, am.label)
		for _, f := range files {
			if !containsVariant(am.variants, lang.VariantFor(f.Language)) {
				continue
			}
			for _, s := range f.Symbols {
				if !callable(s) {
					continue
				}
				t.eligible++
				if hasWord(s.Signature, am.marker) {
					t.hit(f, symbolExample(f, s))
				}
			}
		}
		out = append(out, t)
	}
	return out
}

// testingPatterns counts test functions inside test files, one pattern per
// language.
func testingPatterns(files []*model.FileContext) []*tally {
	byLang := make(map[string]*tally)
	var order []string
	for _, f := range files {
		if !discover.IsTestFile(f.RelativePath) {
			continue
		}
		t, ok := byLang[f.Language]
		if !ok {
			t = newTally(model.TestingPatternFamily, f.Language+"_unit_tests")
			byLang[f.Language] = t
			order = append(order, f.Language)
		}
		for _, s := range f.Symbols {
			if !callable(s) {
				continue
			}
			t.eligible++
			if isTestFunction(s) {
				t.hit(f, symbolExample(f, s))
			}
		}
	}
	out := make([]*tally, 0, len(order))
	for _, l := range order {
		out = append(out, byLang[l])
	}
	return out
}

func isTestFunction(s symbols.Symbol) bool {
	switch {
	case strings.Contains(s.Signature, "#[test]"), strings.Contains(s.Signature, "::test]"):
		return true
	case strings.HasPrefix(s.Name, "test_"), strings.HasPrefix(s.Name, "Test"):
		return true
	case s.Name == "test":
		return true
	}
	return false
}

// Import groups, in conventional order.
const (
	groupStd = iota
	groupExternal
	groupInternal
	groupUnknown
)

// importOrganization counts files whose imports form contiguous std,
// external and internal groups.
func importOrganization(files []*model.FileContext) *tally {
	t := newTally(model.ImportOrganizationFamily, LabelGroupedImports)
	for _, f := range files {
		var groups []int
		for _, imp := range f.Imports {
			if g := importGroup(f.Language, imp); g != groupUnknown {
				groups = append(groups, g)
			}
		}
		if len(groups) == 0 {
			continue
		}
		t.eligible++
		if contiguous(groups) {
			t.hit(f, fmt.Sprintf("%s: %d imports", f.RelativePath, len(groups)))
		}
	}
	return t
}

// contiguous reports whether no group reappears after a different group
// has started.
func contiguous(groups []int) bool {
	closed := make(map[int]bool)
	for i, g := range groups {
		if i > 0 && g != groups[i-1] {
			closed[groups[i-1]] = true
		}
		if closed[g] {
			return false
		}
	}
	return true
}

func importGroup(language, stmt string) int {
	switch lang.VariantFor(language) {
	case lang.Rust:
		return rustImportGroup(stmt)
	case lang.Python:
		return pythonImportGroup(stmt)
	case lang.JavaScript, lang.TypeScript:
		return jsImportGroup(stmt)
	}
	return groupUnknown
}

func rustImportGroup(stmt string) int {
	s := strings.TrimSpace(stmt)
	if rest, ok := strings.CutPrefix(s, "pub"); ok {
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			s = strings.TrimSpace(rest[i:])
		}
	}
	switch {
	case strings.HasPrefix(s, "mod "):
		return groupInternal
	case strings.HasPrefix(s, "extern crate "):
		return groupExternal
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "use "))
	s = strings.TrimPrefix(s, "::")
	root, _, _ := strings.Cut(s, "::")
	root = strings.TrimRight(root, ";{} ")
	switch root {
	case "std", "core", "alloc":
		return groupStd
	case "crate", "self", "super":
		return groupInternal
	case "":
		return groupUnknown
	}
	return groupExternal
}

var pythonStdlib = map[string]struct{}{
	"abc": {}, "argparse": {}, "asyncio": {}, "base64": {}, "collections": {},
	"contextlib": {}, "copy": {}, "csv": {}, "dataclasses": {}, "datetime": {},
	"enum": {}, "functools": {}, "glob": {}, "hashlib": {}, "http": {},
	"importlib": {}, "io": {}, "itertools": {}, "json": {}, "logging": {},
	"math": {}, "os": {}, "pathlib": {}, "pickle": {}, "random": {}, "re": {},
	"shutil": {}, "signal": {}, "socket": {}, "sqlite3": {}, "string": {},
	"subprocess": {}, "sys": {}, "tempfile": {}, "textwrap": {}, "threading": {},
	"time": {}, "traceback": {}, "typing": {}, "unittest": {}, "urllib": {},
	"uuid": {}, "warnings": {}, "weakref": {}, "__future__": {},
}

func pythonImportGroup(stmt string) int {
	s := strings.TrimSpace(stmt)
	var module string
	switch {
	case strings.HasPrefix(s, "from "):
		module, _, _ = strings.Cut(strings.TrimSpace(s[5:]), " ")
	case strings.HasPrefix(s, "import "):
		module = strings.TrimSpace(s[7:])
		module, _, _ = strings.Cut(module, ",")
		module, _, _ = strings.Cut(module, " ")
	default:
		return groupUnknown
	}
	if strings.HasPrefix(module, ".") {
		return groupInternal
	}
	top, _, _ := strings.Cut(module, ".")
	if top == "" {
		return groupUnknown
	}
	if _, ok := pythonStdlib[top]; ok {
		return groupStd
	}
	return groupExternal
}

var nodeBuiltins = map[string]struct{}{
	"assert": {}, "buffer": {}, "child_process": {}, "crypto": {}, "events": {},
	"fs": {}, "http": {}, "https": {}, "net": {}, "os": {}, "path": {},
	"process": {}, "stream": {}, "url": {}, "util": {}, "zlib": {},
}

func jsImportGroup(stmt string) int {
	spec := quoted(stmt)
	switch {
	case spec == "":
		return groupUnknown
	case strings.HasPrefix(spec, "node:"):
		return groupStd
	case spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		return groupInternal
	}
	top, _, _ := strings.Cut(spec, "/")
	if _, ok := nodeBuiltins[top]; ok {
		return groupStd
	}
	return groupExternal
}

// quoted returns the last quoted string literal in s.
func quoted(s string) string {
	end := strings.LastIndexAny(s, `'"`+"`")
	if end <= 0 {
		return ""
	}
	q := s[end]
	start := strings.LastIndexByte(s[:end], q)
	if start < 0 {
		return ""
	}
	return s[start+1 : end]
}

// hasWord reports whether marker occurs in s delimited by non-identifier
// characters.
func hasWord(s, marker string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], marker)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(marker)
		if (start == 0 || !isIdent(s[start-1])) && (end == len(s) || !isIdent(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isIdent(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func containsVariant(list []lang.Variant, v lang.Variant) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
