package discover

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/phobologic/codectx/internal/config"
	"github.com/phobologic/codectx/internal/errs"
)

func testConfig() config.AnalysisConfig {
	cfg := config.Default()
	cfg.RespectGitignore = false
	return cfg
}

func relPaths(entries []Entry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.RelPath
	}
	return paths
}

func TestFilesSortedWithMetadata(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "main.py", "print('hello')")
	writeFile(t, dir, "lib/util.py", "def helper(): pass")
	writeFile(t, dir, "readme.txt", "hello")
	// Hidden files are skipped
	writeFile(t, dir, ".hidden.py", "secret")

	entries, err := Files(dir, testConfig(), nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}

	want := []string{"lib/util.py", "main.py", "readme.txt"}
	if got := relPaths(entries); !reflect.DeepEqual(got, want) {
		t.Fatalf("paths = %v, want %v", got, want)
	}
	if entries[0].Language != "python" || entries[2].Language != "unknown" {
		t.Errorf("languages = %q, %q", entries[0].Language, entries[2].Language)
	}
	if entries[0].Path != filepath.Join(dir, "lib", "util.py") {
		t.Errorf("absolute path = %q", entries[0].Path)
	}
	if entries[1].Size != int64(len("print('hello')")) {
		t.Errorf("size = %d", entries[1].Size)
	}
	if entries[1].ModTime.IsZero() {
		t.Error("mod time not recorded")
	}
}

func TestFilesSkipsBuildAndBinary(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/main.rs", "fn main() {}")
	writeFile(t, dir, "target/debug/build.rs", "fn x() {}")
	writeFile(t, dir, "node_modules/pkg/index.js", "x")
	writeFile(t, dir, "__pycache__/cached.py", "pass")
	writeFile(t, dir, "sub/dist/bundle.js", "x")
	writeFile(t, dir, ".hidden/secret.py", "pass")
	writeFile(t, dir, "logo.png", "png")
	writeFile(t, dir, "libfoo", "elf")
	writeFile(t, dir, "notes", "no extension")
	writeFile(t, dir, "Makefile", "all:")
	writeFile(t, dir, "Cargo.lock", "# lock")
	writeFile(t, dir, "yarn.lock", "# lock")
	writeFile(t, dir, "app.log", "log")

	entries, err := Files(dir, testConfig(), nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	want := []string{"Cargo.lock", "Makefile", "src/main.rs"}
	if got := relPaths(entries); !reflect.DeepEqual(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
}

func TestIncludeCannotReviveExcluded(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "src/main.rs", "fn main() {}")
	writeFile(t, dir, "src/lib.py", "pass")
	writeFile(t, dir, "logo.png", "png")
	writeFile(t, dir, "target/gen.rs", "fn x() {}")

	cfg := testConfig()
	cfg.ExcludePatterns = nil
	cfg.IncludePatterns = []string{"**/*.rs", "*.png"}

	entries, err := Files(dir, cfg, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := relPaths(entries); !reflect.DeepEqual(got, []string{"src/main.rs"}) {
		t.Errorf("paths = %v", got)
	}
}

func TestExcludePatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "keep.py", "pass")
	writeFile(t, dir, "scratch.tmp", "x")
	writeFile(t, dir, "deep/er/scratch.tmp", "x")
	writeFile(t, dir, "docs/guide.md", "# guide")
	writeFile(t, dir, "pkg/generated_api.py", "pass")

	cfg := testConfig()
	cfg.ExcludePatterns = []string{"*.tmp", "docs/**", "**/generated_*"}

	entries, err := Files(dir, cfg, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := relPaths(entries); !reflect.DeepEqual(got, []string{"keep.py"}) {
		t.Errorf("paths = %v", got)
	}
}

func TestFilesMaxSize(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "small.py", "pass")
	writeFile(t, dir, "big.py", strings.Repeat("a", 1<<20+1))

	cfg := testConfig()
	cfg.MaxFileSizeMB = 1
	entries, err := Files(dir, cfg, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := relPaths(entries); !reflect.DeepEqual(got, []string{"small.py"}) {
		t.Errorf("paths = %v", got)
	}

	cfg.MaxFileSizeMB = 0
	entries, err = Files(dir, cfg, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("unlimited size: got %v", relPaths(entries))
	}
}

func TestFilesGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "ignored/\n*.gen.py\n")
	writeFile(t, dir, "main.py", "pass")
	writeFile(t, dir, "api.gen.py", "pass")
	writeFile(t, dir, "ignored/a.py", "pass")

	cfg := testConfig()
	cfg.RespectGitignore = true
	entries, err := Files(dir, cfg, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := relPaths(entries); !reflect.DeepEqual(got, []string{"main.py"}) {
		t.Errorf("paths = %v", got)
	}

	cfg.RespectGitignore = false
	entries, err = Files(dir, cfg, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("without gitignore: got %v", relPaths(entries))
	}
}

func TestFilesSymlinksSkippedByDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "real.py", "pass")
	if err := os.Symlink(filepath.Join(dir, "real.py"), filepath.Join(dir, "link.py")); err != nil {
		t.Skip("symlinks not supported")
	}

	entries, err := Files(dir, testConfig(), nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if got := relPaths(entries); !reflect.DeepEqual(got, []string{"real.py"}) {
		t.Errorf("paths = %v", got)
	}
}

func TestFilesFollowSymlinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	outside := t.TempDir()
	writeFile(t, dir, "real.py", "pass")
	writeFile(t, outside, "shared/util.py", "pass")
	if err := os.Symlink(filepath.Join(dir, "real.py"), filepath.Join(dir, "link.py")); err != nil {
		t.Skip("symlinks not supported")
	}
	if err := os.Symlink(filepath.Join(outside, "shared"), filepath.Join(dir, "vendored")); err != nil {
		t.Fatal(err)
	}
	// A link back to the root must not loop forever.
	if err := os.Symlink(dir, filepath.Join(dir, "loop")); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig()
	cfg.FollowSymlinks = true
	entries, err := Files(dir, cfg, nil)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	want := []string{"link.py", "real.py", "vendored/util.py"}
	if got := relPaths(entries); !reflect.DeepEqual(got, want) {
		t.Errorf("paths = %v, want %v", got, want)
	}
	if entries[2].Path != filepath.Join(dir, "vendored", "util.py") {
		t.Errorf("linked path = %q", entries[2].Path)
	}
}

func TestFilesMissingRoot(t *testing.T) {
	t.Parallel()

	_, err := Files(filepath.Join(t.TempDir(), "nope"), testConfig(), nil)
	if !errors.Is(err, errs.ErrPathNotFound) {
		t.Fatalf("err = %v, want PathNotFound", err)
	}

	file := filepath.Join(t.TempDir(), "file.py")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Files(file, testConfig(), nil); !errors.Is(err, errs.ErrPathNotFound) {
		t.Errorf("file root err = %v, want PathNotFound", err)
	}
}

func TestIsExcluded(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cases := []struct {
		path string
		want bool
	}{
		{"src/lib.rs", false},
		{"Cargo.toml", false},
		{"target/debug/x.rs", true},
		{"web/node_modules/a/index.js", true},
		{"assets/logo.png", true},
		{"bin/tool.rs", true},
		{"server.log", true},
		{".env", true},
		{"package-lock.json", false},
		{"poetry.lock", true},
	}
	for _, tc := range cases {
		if got := IsExcluded(tc.path, cfg); got != tc.want {
			t.Errorf("IsExcluded(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestIsBinary(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		want bool
	}{
		{"a.EXE", true},
		{"pkg.tar", true},
		{"libcrypto", true},
		{"Makefile", false},
		{"Dockerfile", false},
		{"LICENSE", false},
		{"CHANGELOG", false},
		{"script", true},
		{strings.Repeat("x", 51) + ".rs", false},
		{"Cargo.lock", false},
		{"Gemfile.lock", true},
		{"deps.d", true},
		{"main.rs", false},
	}
	for _, tc := range cases {
		if got := IsBinary(tc.name); got != tc.want {
			t.Errorf("IsBinary(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsTestFile(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path string
		want bool
	}{
		// Test directory components
		{"tests/test_scenes.py", true},
		{"tests/conftest.py", true},
		{"tests/__init__.py", true},
		{"spec/models/user_spec.rb", true},
		{"src/__tests__/foo.js", true},
		{"src/test/java/FooTest.java", true},
		{"test/foo_test.exs", true},
		// Filename patterns
		{"internal/graph/graph_test.go", true},
		{"test_helpers.py", true},
		{"user_spec.rb", true},
		{"foo.test.js", true},
		{"foo.spec.ts", true},
		{"FooTest.java", true},
		// Production files
		{"loom/models.py", false},
		{"src/parser.rs", false},
		{"internal/graph/graph.go", false},
		{"conftest.py", false},      // top-level conftest, not in tests/
		{"testing_utils.go", false}, // contains "testing" but not a test pattern
		{"latest.py", false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			got := IsTestFile(tc.path)
			if got != tc.want {
				t.Errorf("IsTestFile(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
