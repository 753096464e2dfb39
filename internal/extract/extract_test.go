package extract

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/phobologic/codectx/internal/config"
	"github.com/phobologic/codectx/internal/errs"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

func edgesOf(fc model.FileContext, typ model.RelationshipType) []string {
	var out []string
	for _, r := range fc.Relationships {
		if r.Type == typ {
			out = append(out, r.TargetFile)
		}
	}
	return out
}

func mustFile(t *testing.T, path, root string) model.FileContext {
	t.Helper()
	fc, err := File(path, root, Options{})
	if err != nil {
		t.Fatalf("File(%s): %v", path, err)
	}
	return fc
}

func TestRustCrateImport(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/a.rs", "use crate::b;\n\nfn run() {}\n")
	writeFile(t, dir, "src/b.rs", "pub fn helper() {}\n")

	fc := mustFile(t, filepath.Join(dir, "src", "a.rs"), dir)
	want := []model.FileRelationship{{
		TargetFile:  filepath.Join(dir, "src", "b.rs"),
		Type:        model.Imports,
		LineNumbers: []int{1},
	}}
	if !reflect.DeepEqual(fc.Relationships, want) {
		t.Errorf("relationships = %+v, want %+v", fc.Relationships, want)
	}
	if fc.RelativePath != "src/a.rs" || fc.Language != "rust" {
		t.Errorf("rel = %q, language = %q", fc.RelativePath, fc.Language)
	}
	if !reflect.DeepEqual(fc.Imports, []string{"use crate::b;"}) {
		t.Errorf("imports = %v", fc.Imports)
	}
	if fc.LineCount != 3 {
		t.Errorf("line count = %d, want 3", fc.LineCount)
	}
}

func TestRustModuleResolution(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/lib.rs", "mod parser;\nmod net;\nuse std::fmt;\nuse self::parser::{Parser, Token as Tok};\n")
	writeFile(t, dir, "src/parser.rs", "use super::net::Client;\n")
	writeFile(t, dir, "src/net/mod.rs", "use super::parser::Parser;\n")
	writeFile(t, dir, "src/net/http.rs", "use super::super::parser;\n")

	lib := mustFile(t, filepath.Join(dir, "src", "lib.rs"), dir)
	wantLib := []string{filepath.Join(dir, "src", "net", "mod.rs"), filepath.Join(dir, "src", "parser.rs")}
	if got := edgesOf(lib, model.Imports); !reflect.DeepEqual(got, wantLib) {
		t.Errorf("lib imports = %v, want %v", got, wantLib)
	}
	for _, r := range lib.Relationships {
		if r.TargetFile == filepath.Join(dir, "src", "parser.rs") && !reflect.DeepEqual(r.LineNumbers, []int{1, 4}) {
			t.Errorf("parser edge lines = %v, want [1 4]", r.LineNumbers)
		}
	}

	parser := mustFile(t, filepath.Join(dir, "src", "parser.rs"), dir)
	if got := edgesOf(parser, model.Imports); !reflect.DeepEqual(got, []string{filepath.Join(dir, "src", "net", "mod.rs")}) {
		t.Errorf("parser imports = %v", got)
	}

	netMod := mustFile(t, filepath.Join(dir, "src", "net", "mod.rs"), dir)
	if got := edgesOf(netMod, model.Imports); !reflect.DeepEqual(got, []string{filepath.Join(dir, "src", "parser.rs")}) {
		t.Errorf("net/mod.rs imports = %v", got)
	}

	http := mustFile(t, filepath.Join(dir, "src", "net", "http.rs"), dir)
	if got := edgesOf(http, model.Imports); !reflect.DeepEqual(got, []string{filepath.Join(dir, "src", "parser.rs")}) {
		t.Errorf("net/http.rs imports = %v", got)
	}
}

func TestRustMarkersAreSelfEdges(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := "struct A;\n\nimpl Display for A {\n    fn fmt(&self) { write!(f, \"a\") }\n}\n"
	writeFile(t, dir, "src/a.rs", src)
	path := filepath.Join(dir, "src", "a.rs")

	fc := mustFile(t, path, dir)
	want := []model.FileRelationship{
		{TargetFile: path, Type: model.Implements, LineNumbers: []int{3}},
		{TargetFile: path, Type: model.References, LineNumbers: []int{4}},
	}
	if !reflect.DeepEqual(fc.Relationships, want) {
		t.Errorf("relationships = %+v, want %+v", fc.Relationships, want)
	}
}

func TestTestsEdgeToSibling(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/foo.rs", "pub fn foo() {}\n")
	writeFile(t, dir, "src/foo_test.rs", "#[test]\nfn it_works() {}\n")

	fc := mustFile(t, filepath.Join(dir, "src", "foo_test.rs"), dir)
	if got := edgesOf(fc, model.Tests); !reflect.DeepEqual(got, []string{filepath.Join(dir, "src", "foo.rs")}) {
		t.Errorf("tests edges = %v", got)
	}

	main := mustFile(t, filepath.Join(dir, "src", "foo.rs"), dir)
	if got := edgesOf(main, model.Tests); got != nil {
		t.Errorf("main file has tests edges %v", got)
	}
}

func TestTestsEdgeThroughTestDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/parser.rs", "pub fn parse() {}\n")
	writeFile(t, dir, "tests/parser.rs", "#[test]\nfn parses() {}\n")
	writeFile(t, dir, "pkg/util.py", "def f(): pass\n")
	writeFile(t, dir, "pkg/tests/test_util.py", "def test_f(): pass\n")
	writeFile(t, dir, "web/widget.js", "export function w() {}\n")
	writeFile(t, dir, "web/__tests__/widget.test.js", "test('w', () => {})\n")

	cases := map[string]string{
		"tests/parser.rs":              "src/parser.rs",
		"pkg/tests/test_util.py":       "pkg/util.py",
		"web/__tests__/widget.test.js": "web/widget.js",
	}
	for test, main := range cases {
		fc := mustFile(t, filepath.Join(dir, filepath.FromSlash(test)), dir)
		want := []string{filepath.Join(dir, filepath.FromSlash(main))}
		if got := edgesOf(fc, model.Tests); !reflect.DeepEqual(got, want) {
			t.Errorf("%s tests edges = %v, want %v", test, got, want)
		}
	}
}

func TestPythonImports(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "app/__init__.py", "")
	writeFile(t, dir, "app/models.py", "class User: pass\n")
	writeFile(t, dir, "app/services/__init__.py", "")
	writeFile(t, dir, "app/services/billing.py", "from ..models import User\nfrom . import helpers\nimport os, json\n")
	writeFile(t, dir, "app/services/helpers.py", "def h(): pass\n")
	writeFile(t, dir, "main.py", "import app.models as m\nfrom app.services import billing\nimport requests\n")

	billing := mustFile(t, filepath.Join(dir, "app", "services", "billing.py"), dir)
	want := []string{filepath.Join(dir, "app", "models.py"), filepath.Join(dir, "app", "services", "helpers.py")}
	if got := edgesOf(billing, model.Imports); !reflect.DeepEqual(got, want) {
		t.Errorf("billing imports = %v, want %v", got, want)
	}

	main := mustFile(t, filepath.Join(dir, "main.py"), dir)
	want = []string{filepath.Join(dir, "app", "models.py"), filepath.Join(dir, "app", "services", "billing.py")}
	if got := edgesOf(main, model.Imports); !reflect.DeepEqual(got, want) {
		t.Errorf("main imports = %v, want %v", got, want)
	}
}

func TestJavaScriptImports(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/app.ts", "import { a } from './util';\nimport x from '../lib';\nconst fs = require('fs');\nexport * from './types';\nconst m = await import('./lazy.js');\n")
	writeFile(t, dir, "src/util.ts", "export const a = 1;\n")
	writeFile(t, dir, "lib/index.js", "module.exports = {};\n")
	writeFile(t, dir, "src/types.tsx", "export type T = string;\n")
	writeFile(t, dir, "src/lazy.js", "export default 1;\n")

	fc := mustFile(t, filepath.Join(dir, "src", "app.ts"), dir)
	want := []string{
		filepath.Join(dir, "lib", "index.js"),
		filepath.Join(dir, "src", "lazy.js"),
		filepath.Join(dir, "src", "types.tsx"),
		filepath.Join(dir, "src", "util.ts"),
	}
	if got := edgesOf(fc, model.Imports); !reflect.DeepEqual(got, want) {
		t.Errorf("imports = %v, want %v", got, want)
	}
	if fc.Language != "typescript" {
		t.Errorf("language = %q", fc.Language)
	}
}

func TestManifestDocumentationEdge(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "Cargo.toml", "[package]\nname = \"x\"\n")

	fc := mustFile(t, filepath.Join(dir, "Cargo.toml"), dir)
	want := []model.FileRelationship{{TargetFile: dir, Type: model.Documentation}}
	if !reflect.DeepEqual(fc.Relationships, want) {
		t.Errorf("relationships = %+v, want %+v", fc.Relationships, want)
	}
	if fc.Language != "toml" {
		t.Errorf("language = %q", fc.Language)
	}
}

func TestNonUTF8IsSoftSkip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "blob.rs")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 'f', 'n', 0x80}, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := File(path, dir, Options{})
	if !errors.Is(err, ErrSoftSkip) {
		t.Fatalf("err = %v, want ErrSoftSkip", err)
	}
	if !errors.Is(err, errs.ErrAnalysisFailed) {
		t.Errorf("err = %v, want AnalysisFailed kind", err)
	}
}

func TestMissingFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := File(filepath.Join(dir, "gone.rs"), dir, Options{})
	if !errors.Is(err, errs.ErrPathNotFound) {
		t.Fatalf("err = %v, want PathNotFound", err)
	}
	if errors.Is(err, ErrSoftSkip) {
		t.Error("missing file must not be a soft skip")
	}
}

func TestSourceMetadata(t *testing.T) {
	t.Parallel()

	mod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	src := []byte("def f():\n    pass\n")
	fc, err := Source("/r/pkg/f.py", "/r", src, mod, Options{})
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if fc.SizeBytes != int64(len(src)) || fc.LineCount != 2 || !fc.LastModified.Equal(mod) {
		t.Errorf("metadata = %d bytes, %d lines, %v", fc.SizeBytes, fc.LineCount, fc.LastModified)
	}
	if fc.ContentHash != Hash(src) || len(fc.ContentHash) != 16 {
		t.Errorf("hash = %q", fc.ContentHash)
	}
	if len(fc.Symbols) != 1 || fc.Symbols[0].FilePath != "/r/pkg/f.py" || fc.Symbols[0].Type != symbols.Function {
		t.Errorf("symbols = %+v", fc.Symbols)
	}

	other, _ := Source("/r/pkg/f.py", "/r", []byte("def g():\n    pass\n"), mod, Options{})
	if other.ContentHash == fc.ContentHash {
		t.Error("different content produced the same hash")
	}
}

func TestLineCount(t *testing.T) {
	t.Parallel()

	cases := map[string]int{
		"":         0,
		"a":        1,
		"a\n":      1,
		"a\nb":     2,
		"a\n\nb\n": 3,
	}
	for in, want := range cases {
		if got := lineCount([]byte(in)); got != want {
			t.Errorf("lineCount(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestTreeSitterBackend(t *testing.T) {
	t.Parallel()

	opts := Options{Backend: config.BackendTreeSitter}
	fc, err := Source("/r/src/lib.rs", "/r", []byte("pub struct A;\nimpl A {\n    fn new() -> A { A }\n}\n"), time.Time{}, opts)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if len(fc.Symbols) != 2 || fc.Symbols[1].QualifiedName != "A::new" {
		t.Errorf("symbols = %+v", fc.Symbols)
	}
}

func TestMainName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"foo_test.rs":  "foo.rs",
		"foo_spec.rb":  "foo.rb",
		"test_foo.py":  "foo.py",
		"foo.test.js":  "foo.js",
		"foo.spec.ts":  "foo.ts",
		"FooTest.java": "Foo.java",
		"parser.rs":    "parser.rs",
		"_test.go":     "_test.go",
	}
	for in, want := range cases {
		if got := mainName(in); got != want {
			t.Errorf("mainName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExpandRustUse(t *testing.T) {
	t.Parallel()

	cases := map[string][]string{
		"crate::a::B":            {"crate::a::B"},
		"crate::a::{self, B, c}": {"crate::a", "crate::a::B", "crate::a::c"},
		"super::x as y":          {"super::x"},
		"crate::a::*":            {"crate::a"},
		"crate::{a::{b, c}, d}":  {"crate"},
		"::std::fmt":             {"std::fmt"},
	}
	for in, want := range cases {
		if got := expandRustUse(in); !reflect.DeepEqual(got, want) {
			t.Errorf("expandRustUse(%q) = %v, want %v", in, got, want)
		}
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
