package extract

import (
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/phobologic/codectx/internal/discover"
	"github.com/phobologic/codectx/internal/lang"
	"github.com/phobologic/codectx/internal/model"
)

// manifests get a Documentation edge to the project root.
var manifests = map[string]struct{}{
	"Cargo.toml":       {},
	"package.json":     {},
	"pyproject.toml":   {},
	"setup.py":         {},
	"setup.cfg":        {},
	"requirements.txt": {},
	"Pipfile":          {},
	"go.mod":           {},
	"tsconfig.json":    {},
	"jsconfig.json":    {},
	"Makefile":         {},
	"Dockerfile":       {},
}

// IsManifest reports whether name is a recognized project manifest.
func IsManifest(name string) bool {
	_, ok := manifests[filepath.Base(name)]
	return ok
}

var jsExtensions = []string{".js", ".ts", ".jsx", ".tsx", ".mjs", ".cjs"}

var jsSpecifierRe = regexp.MustCompile(`(?:from|require\(|import\(|import)\s*['"]([^'"]+)['"]`)

type resolver struct {
	root   string
	file   string
	rel    string
	exists func(string) bool
}

type edgeKey struct {
	target string
	typ    model.RelationshipType
}

func (r resolver) relationships(v lang.Variant, imports []lang.Statement, markers []lang.Marker) []model.FileRelationship {
	lines := map[edgeKey][]int{}
	add := func(target string, typ model.RelationshipType, line int) {
		if target == "" || (target == r.file && typ == model.Imports) {
			return
		}
		k := edgeKey{target: target, typ: typ}
		ls := lines[k]
		if line > 0 && (len(ls) == 0 || ls[len(ls)-1] != line) {
			ls = append(ls, line)
		}
		lines[k] = ls
	}

	for _, st := range imports {
		for _, target := range r.resolveImport(v, st.Text) {
			add(target, model.Imports, st.Line)
		}
	}
	for _, m := range markers {
		for _, l := range m.Lines {
			add(r.file, m.Type, l)
		}
	}
	if discover.IsTestFile(r.rel) {
		if target := r.testTarget(); target != "" {
			add(target, model.Tests, 0)
		}
	}
	if IsManifest(r.file) {
		add(r.root, model.Documentation, 0)
	}

	if len(lines) == 0 {
		return nil
	}
	out := make([]model.FileRelationship, 0, len(lines))
	for k, ls := range lines {
		out = append(out, model.FileRelationship{TargetFile: k.target, Type: k.typ, LineNumbers: ls})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return typeOrder(out[i].Type) < typeOrder(out[j].Type)
		}
		return out[i].TargetFile < out[j].TargetFile
	})
	return out
}

func typeOrder(t model.RelationshipType) int {
	for i, rt := range model.AllRelationshipTypes {
		if rt == t {
			return i
		}
	}
	return len(model.AllRelationshipTypes)
}

func (r resolver) resolveImport(v lang.Variant, stmt string) []string {
	switch v {
	case lang.Rust:
		return r.resolveRust(stmt)
	case lang.Python:
		return r.resolvePython(stmt)
	case lang.JavaScript, lang.TypeScript:
		return r.resolveJS(stmt)
	}
	return nil
}

func (r resolver) firstExisting(candidates ...string) string {
	for _, c := range candidates {
		if c != r.file && r.exists(c) {
			return c
		}
	}
	return ""
}

// rustModuleDir is the directory holding child modules of the file's module.
func rustModuleDir(file string) string {
	dir := filepath.Dir(file)
	switch filepath.Base(file) {
	case "mod.rs", "lib.rs", "main.rs":
		return dir
	}
	return filepath.Join(dir, strings.TrimSuffix(filepath.Base(file), ".rs"))
}

// rustParentDir is the directory holding siblings of the file's parent
// module, the base for super:: paths.
func rustParentDir(file string) string {
	dir := filepath.Dir(file)
	if filepath.Base(file) == "mod.rs" {
		return filepath.Dir(dir)
	}
	return dir
}

func stripRustVisibility(s string) string {
	if strings.HasPrefix(s, "pub(") {
		if end := strings.IndexByte(s, ')'); end > 0 {
			return strings.TrimSpace(s[end+1:])
		}
	}
	return strings.TrimSpace(strings.TrimPrefix(s, "pub "))
}

func (r resolver) resolveRust(stmt string) []string {
	s := strings.TrimSuffix(strings.TrimSpace(stripRustVisibility(stmt)), ";")

	if rest, ok := strings.CutPrefix(s, "mod "); ok {
		name := strings.TrimSpace(rest)
		var cands []string
		for _, dir := range []string{filepath.Dir(r.file), rustModuleDir(r.file)} {
			cands = append(cands, filepath.Join(dir, name+".rs"), filepath.Join(dir, name, "mod.rs"))
		}
		if t := r.firstExisting(cands...); t != "" {
			return []string{t}
		}
		return nil
	}

	rest, ok := strings.CutPrefix(s, "use ")
	if !ok {
		return nil
	}
	var out []string
	for _, p := range expandRustUse(strings.TrimSpace(rest)) {
		if t := r.resolveRustPath(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// expandRustUse flattens one level of a use tree: a::{b, c::D} yields
// a::b and a::c::D.
func expandRustUse(tree string) []string {
	tree = strings.TrimPrefix(tree, "::")
	open := strings.IndexByte(tree, '{')
	if open < 0 {
		return []string{stripRustAlias(tree)}
	}
	prefix := strings.TrimSuffix(strings.TrimSpace(tree[:open]), "::")
	body := tree[open+1:]
	if end := strings.LastIndexByte(body, '}'); end >= 0 {
		body = body[:end]
	}
	if strings.ContainsAny(body, "{}") {
		return []string{prefix}
	}
	var out []string
	for _, item := range strings.Split(body, ",") {
		item = stripRustAlias(strings.TrimSpace(item))
		switch item {
		case "":
		case "self", "*":
			out = append(out, prefix)
		default:
			out = append(out, prefix+"::"+item)
		}
	}
	return out
}

func stripRustAlias(s string) string {
	if i := strings.Index(s, " as "); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "::*")
}

func (r resolver) resolveRustPath(p string) string {
	segs := strings.Split(p, "::")
	for i := range segs {
		segs[i] = strings.TrimSpace(segs[i])
	}
	if len(segs) == 0 || segs[0] == "" {
		return ""
	}

	var bases []string
	switch segs[0] {
	case "crate":
		bases = []string{filepath.Join(r.root, "src")}
		segs = segs[1:]
	case "self":
		bases = []string{rustModuleDir(r.file)}
		segs = segs[1:]
	case "super":
		base := rustParentDir(r.file)
		segs = segs[1:]
		for len(segs) > 0 && segs[0] == "super" {
			base = filepath.Dir(base)
			segs = segs[1:]
		}
		bases = []string{base}
	default:
		bases = []string{filepath.Dir(r.file), rustModuleDir(r.file)}
	}

	for n := len(segs); n >= 1; n-- {
		for _, base := range bases {
			joined := filepath.Join(append([]string{base}, segs[:n]...)...)
			if t := r.firstExisting(joined+".rs", filepath.Join(joined, "mod.rs")); t != "" {
				return t
			}
		}
	}
	return ""
}

func (r resolver) resolvePython(stmt string) []string {
	s := strings.TrimSpace(stmt)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	if rest, ok := strings.CutPrefix(s, "from "); ok {
		module, names, _ := strings.Cut(rest, " import ")
		module = strings.TrimSpace(module)
		names = strings.Trim(strings.TrimSpace(names), "()")
		var out []string
		for _, name := range strings.Split(names, ",") {
			name = pyStripAlias(name)
			if name == "" || name == "*" {
				continue
			}
			sub := module + "." + name
			if strings.HasSuffix(module, ".") {
				sub = module + name
			}
			if t := r.resolvePythonModule(sub, false); t != "" {
				out = append(out, t)
			}
		}
		if len(out) == 0 {
			if t := r.resolvePythonModule(module, true); t != "" {
				out = append(out, t)
			}
		}
		return out
	}

	if rest, ok := strings.CutPrefix(s, "import "); ok {
		var out []string
		for _, mod := range strings.Split(rest, ",") {
			if t := r.resolvePythonModule(pyStripAlias(mod), true); t != "" {
				out = append(out, t)
			}
		}
		return out
	}
	return nil
}

func pyStripAlias(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, " as "); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// resolvePythonModule maps a dotted module to x.py or x/__init__.py. With
// prefixes set, shorter dotted prefixes are tried when the full path is
// missing.
func (r resolver) resolvePythonModule(module string, prefixes bool) string {
	dots := len(module) - len(strings.TrimLeft(module, "."))
	rest := module[dots:]

	var bases []string
	if dots > 0 {
		base := filepath.Dir(r.file)
		for i := 1; i < dots; i++ {
			base = filepath.Dir(base)
		}
		bases = []string{base}
	} else {
		bases = []string{r.root, filepath.Join(r.root, "src"), filepath.Dir(r.file)}
	}

	var segs []string
	if rest != "" {
		segs = strings.Split(rest, ".")
	}
	if len(segs) == 0 {
		for _, base := range bases {
			if t := r.firstExisting(filepath.Join(base, "__init__.py")); t != "" {
				return t
			}
		}
		return ""
	}

	low := len(segs)
	if prefixes {
		low = 1
	}
	for n := len(segs); n >= low; n-- {
		for _, base := range bases {
			joined := filepath.Join(append([]string{base}, segs[:n]...)...)
			if t := r.firstExisting(joined+".py", filepath.Join(joined, "__init__.py")); t != "" {
				return t
			}
		}
	}
	return ""
}

func (r resolver) resolveJS(stmt string) []string {
	var out []string
	for _, m := range jsSpecifierRe.FindAllStringSubmatch(stmt, -1) {
		spec := m[1]
		if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") && spec != "." && spec != ".." {
			continue
		}
		if t := r.resolveJSPath(filepath.Join(filepath.Dir(r.file), filepath.FromSlash(spec))); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (r resolver) resolveJSPath(target string) string {
	cands := []string{target}
	for _, ext := range jsExtensions {
		cands = append(cands, target+ext)
	}
	for _, ext := range jsExtensions {
		cands = append(cands, filepath.Join(target, "index"+ext))
	}
	return r.firstExisting(cands...)
}

var (
	testSuffixes = []string{"_test", "_spec", ".test", ".spec", "Test", "Spec"}
	testPrefixes = []string{"test_"}
	testDirNames = map[string]struct{}{"test": {}, "tests": {}, "spec": {}, "specs": {}, "__tests__": {}}
)

// mainName strips test affixes from a file name, returning "" when none
// apply.
func mainName(name string) string {
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for _, s := range testSuffixes {
		if trimmed, ok := strings.CutSuffix(stem, s); ok && trimmed != "" {
			return trimmed + ext
		}
	}
	for _, p := range testPrefixes {
		if trimmed, ok := strings.CutPrefix(stem, p); ok && trimmed != "" {
			return trimmed + ext
		}
	}
	return name
}

// testTarget infers the file a test file exercises: a sibling with the test
// affix stripped, the same name next to the test directory, then the same
// path relative to src/.
func (r resolver) testTarget() string {
	name := mainName(filepath.Base(r.file))
	dir := filepath.Dir(r.file)

	cands := []string{filepath.Join(dir, name)}

	segs := strings.Split(r.rel, "/")
	for i := len(segs) - 2; i >= 0; i-- {
		if _, ok := testDirNames[segs[i]]; !ok {
			continue
		}
		parent := filepath.Join(r.root, filepath.FromSlash(strings.Join(segs[:i], "/")))
		tail := append(append([]string{}, segs[i+1:len(segs)-1]...), name)
		tailPath := filepath.FromSlash(strings.Join(tail, "/"))
		cands = append(cands,
			filepath.Join(parent, tailPath),
			filepath.Join(parent, "src", tailPath),
			filepath.Join(r.root, "src", tailPath),
			filepath.Join(r.root, "src", "main", tailPath),
		)
		break
	}
	cands = append(cands, filepath.Join(r.root, "src", name), filepath.Join(r.root, name))
	return r.firstExisting(cands...)
}
