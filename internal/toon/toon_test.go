package toon

import (
	"strings"
	"testing"

	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

func TestEncodeValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", `""`},
		{"simple", "hello", "hello"},
		{"leading space", " hello", `" hello"`},
		{"trailing space", "hello ", `"hello "`},
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"carriage return", "a\rb", `"a\rb"`},
		{"true keyword", "true", `"true"`},
		{"True keyword", "True", `"True"`},
		{"false keyword", "false", `"false"`},
		{"null keyword", "null", `"null"`},
		{"integer", "42", "42"},
		{"negative integer", "-1", "-1"},
		{"float", "3.14", "3.14"},
		{"zero", "0", "0"},
		{"leading zero invalid", "01", "01"},
		{"comma", "a,b", `"a,b"`},
		{"colon", "a:b", `"a:b"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"bracket", "a[b", `"a[b"`},
		{"brace", "a{b", `"a{b"`},
		{"dash prefix", "-foo", `"-foo"`},
		{"path", "src/main.py", "src/main.py"},
		{"dotted name", "Foo.__init__", "Foo.__init__"},
		{"signature no special", "run(self) -> None", "run(self) -> None"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := encodeValue(tt.in)
			if got != tt.want {
				t.Errorf("encodeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func sampleContext() *model.CodebaseContext {
	return &model.CodebaseContext{
		RootPath: "/work/myrepo",
		Files: []model.FileContext{
			{
				Path:         "/work/myrepo/src/main.py",
				RelativePath: "src/main.py",
				Language:     "python",
				LineCount:    12,
				Symbols: []symbols.Symbol{
					{Name: "main", Type: symbols.Function, FilePath: "/work/myrepo/src/main.py", Line: 3, Signature: "main()"},
				},
				Relationships: []model.FileRelationship{
					{TargetFile: "/work/myrepo/src/util.py", Type: model.Imports, LineNumbers: []int{1}},
				},
			},
			{
				Path:         "/work/myrepo/src/util.py",
				RelativePath: "src/util.py",
				Language:     "python",
				LineCount:    4,
				Symbols: []symbols.Symbol{
					{Name: "helper", Type: symbols.Function, FilePath: "/work/myrepo/src/util.py", Line: 1, Signature: "helper(x)"},
				},
			},
		},
		Dependencies: []model.Dependency{
			{Name: "requests", Version: ">=2.0", Type: model.Runtime, Source: model.DependencySource{Kind: model.PackageManager, Manager: "pip"}},
		},
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	got := Encode(sampleContext())
	lines := strings.Split(got, "\n")

	want := []string{
		"repo: myrepo",
		"root: /work/myrepo",
		"files[2]{path,language,lines,rank}:",
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d: got %q, want %q", i, lines[i], w)
		}
	}
	// util.py is imported by main.py so it ranks first.
	if !strings.HasPrefix(lines[3], "  src/util.py,python,4,") {
		t.Errorf("line 3: got %q", lines[3])
	}
	if !strings.HasPrefix(lines[4], "  src/main.py,python,12,") {
		t.Errorf("line 4: got %q", lines[4])
	}

	rest := strings.Join(lines[5:], "\n")
	for _, w := range []string{
		"symbols[2]{file,name,type,line,signature}:\n  src/util.py,helper,function,1,helper(x)\n  src/main.py,main,function,3,main()",
		"relationships[1]{source,target,type,lines}:\n  src/main.py,src/util.py,imports,1",
		"dependencies[1]{name,version,type,manager}:\n  requests,>=2.0,runtime,pip",
	} {
		if !strings.Contains(rest, w) {
			t.Errorf("output missing:\n%s\ngot:\n%s", w, got)
		}
	}
	if strings.Contains(got, "patterns[") {
		t.Error("patterns section emitted without semantic analysis")
	}
}

func TestEncodeSemantic(t *testing.T) {
	t.Parallel()

	cc := sampleContext()
	snake := model.PatternType{Family: model.NamingConventionFamily, Label: "snake_case"}
	cc.SemanticAnalysis = &model.SemanticAnalysis{
		Patterns: map[model.PatternType]model.CodePattern{
			snake: {Type: snake, Confidence: 1, Occurrences: 2, Eligible: 2},
		},
		Architecture: model.ArchitecturalInsights{
			ModuleOrganization: model.Flat,
			DependencyHealth: model.DependencyHealth{
				CircularDependencies: [][]string{{"/work/myrepo/src/main.py", "/work/myrepo/src/util.py"}},
			},
		},
		Suggestions: []model.ContextSuggestion{
			{Type: model.TestingStrategySuggestion, Confidence: 0.8, Description: "Add tests, starting with util"},
		},
	}
	cc.Metadata.SemanticStale = true

	got := Encode(cc)
	for _, w := range []string{
		"stale: true",
		"patterns[1]{pattern,confidence,occurrences,eligible}:\n  \"naming_convention:snake_case\",1.00,2,2",
		"organization: flat",
		"cycles[1]{files}:\n  src/main.py src/util.py",
		"suggestions[1]{type,confidence,description}:\n  testing_strategy,0.80,\"Add tests, starting with util\"",
	} {
		if !strings.Contains(got, w) {
			t.Errorf("output missing:\n%s\ngot:\n%s", w, got)
		}
	}
}

func TestEncodeEmpty(t *testing.T) {
	t.Parallel()

	got := Encode(&model.CodebaseContext{RootPath: "/work/empty"})
	if !strings.Contains(got, "files[0]{path,language,lines,rank}:") {
		t.Errorf("expected empty files section, got:\n%s", got)
	}
	if !strings.Contains(got, "symbols[0]{file,name,type,line,signature}:") {
		t.Errorf("expected empty symbols section, got:\n%s", got)
	}
	if strings.Contains(got, "dependencies[") {
		t.Errorf("unexpected dependencies section, got:\n%s", got)
	}
}

func TestQueryTables(t *testing.T) {
	t.Parallel()

	syms := []symbols.Symbol{{Name: "helper", Type: symbols.Function, FilePath: "/work/r/src/util.py", Line: 7}}
	if got, want := Symbols("/work/r", syms), "symbols[1]{file,name,type,line,signature}:\n  src/util.py,helper,function,7,\"\""; got != want {
		t.Errorf("Symbols = %q, want %q", got, want)
	}
	if got, want := Paths("related", "/work/r", []string{"/work/r/a.py", "/elsewhere/b.py"}), "related[2]{path}:\n  a.py\n  /elsewhere/b.py"; got != want {
		t.Errorf("Paths = %q, want %q", got, want)
	}
	if got, want := Suggestions(nil), "suggestions[0]{type,confidence,description}:"; got != want {
		t.Errorf("Suggestions = %q, want %q", got, want)
	}
}
