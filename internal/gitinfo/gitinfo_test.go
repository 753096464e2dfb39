package gitinfo

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/phobologic/codectx/internal/errs"
)

func TestParseHead(t *testing.T) {
	t.Parallel()

	tests := []struct {
		head, want string
	}{
		{"ref: refs/heads/main\n", "main"},
		{"ref: refs/heads/feature/x\n", "feature/x"},
		{"4b825dc642cb6eb9a060e54bf8d69288fbee4904\n", "4b825dc"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := ParseHead([]byte(tc.head)); got != tc.want {
			t.Errorf("ParseHead(%q) = %q, want %q", tc.head, got, tc.want)
		}
	}
}

func TestRemoteURL(t *testing.T) {
	t.Parallel()

	cfg := `[core]
	bare = false
[remote "upstream"]
	url = https://example.com/upstream.git
[remote "origin"]
	url = git@example.com:me/repo.git
	fetch = +refs/heads/*:refs/remotes/origin/*
`
	if got := RemoteURL(strings.NewReader(cfg), "origin"); got != "git@example.com:me/repo.git" {
		t.Errorf("origin = %q", got)
	}
	if got := RemoteURL(strings.NewReader(cfg), "missing"); got != "" {
		t.Errorf("missing = %q", got)
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	out := " M src/a.rs\nM  src/b.rs\nMM src/c.rs\n?? notes.txt\nR  old.rs -> new.rs\n!! target/\n"
	st := ParseStatus([]byte(out))
	if !reflect.DeepEqual(st.Modified, []string{"src/a.rs", "src/c.rs"}) {
		t.Errorf("Modified = %v", st.Modified)
	}
	if !reflect.DeepEqual(st.Staged, []string{"src/b.rs", "src/c.rs", "new.rs"}) {
		t.Errorf("Staged = %v", st.Staged)
	}
	if !reflect.DeepEqual(st.Untracked, []string{"notes.txt"}) {
		t.Errorf("Untracked = %v", st.Untracked)
	}
	if st.IsClean {
		t.Error("IsClean = true")
	}
	if !ParseStatus(nil).IsClean {
		t.Error("empty status not clean")
	}
}

func TestParseLog(t *testing.T) {
	t.Parallel()

	out := "\x1eabc123\x1fAda\x1f1700000000\x1fAdd parser\n\nsrc/parser.rs\nsrc/lib.rs\n" +
		"\x1edef456\x1fBob\x1f1699990000\x1fInitial commit\n\nREADME.md\n"
	commits := ParseLog([]byte(out))
	if len(commits) != 2 {
		t.Fatalf("got %d commits", len(commits))
	}
	c := commits[0]
	if c.Hash != "abc123" || c.Author != "Ada" || c.Message != "Add parser" {
		t.Errorf("commit = %+v", c)
	}
	if !c.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("timestamp = %v", c.Timestamp)
	}
	if !reflect.DeepEqual(c.FilesChanged, []string{"src/parser.rs", "src/lib.rs"}) {
		t.Errorf("files = %v", c.FilesChanged)
	}
	if !reflect.DeepEqual(commits[1].FilesChanged, []string{"README.md"}) {
		t.Errorf("files = %v", commits[1].FilesChanged)
	}
}

func TestAnalyzeNotARepository(t *testing.T) {
	t.Parallel()

	_, err := Git{}.Analyze(context.Background(), t.TempDir())
	if errs.KindOf(err) != errs.RepositoryAnalysisFailed {
		t.Errorf("err = %v, want RepositoryAnalysisFailed", err)
	}
}

func TestAnalyzeRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Parallel()

	dir := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=Ada", "GIT_AUTHOR_EMAIL=ada@example.com",
			"GIT_COMMITTER_NAME=Ada", "GIT_COMMITTER_EMAIL=ada@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	git("init", "-q", "-b", "main")
	git("remote", "add", "origin", "https://example.com/repo.git")
	if err := os.WriteFile(filepath.Join(dir, "lib.rs"), []byte("pub fn f() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	git("add", "lib.rs")
	git("commit", "-q", "-m", "Add lib")
	if err := os.WriteFile(filepath.Join(dir, "new.rs"), []byte("\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ri, err := Git{}.Analyze(context.Background(), dir)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if ri.CurrentBranch != "main" {
		t.Errorf("branch = %q", ri.CurrentBranch)
	}
	if ri.RemoteURL != "https://example.com/repo.git" {
		t.Errorf("remote = %q", ri.RemoteURL)
	}
	if ri.CommitCount != 1 || len(ri.RecentCommits) != 1 {
		t.Fatalf("commits = %d, %+v", ri.CommitCount, ri.RecentCommits)
	}
	if ri.RecentCommits[0].Message != "Add lib" {
		t.Errorf("message = %q", ri.RecentCommits[0].Message)
	}
	if !reflect.DeepEqual(ri.Status.Untracked, []string{"new.rs"}) || ri.Status.IsClean {
		t.Errorf("status = %+v", ri.Status)
	}
}
