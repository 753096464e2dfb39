// Package gitinfo harvests version-control metadata for an analyzed root.
package gitinfo

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/phobologic/codectx/internal/errs"
	"github.com/phobologic/codectx/internal/model"
)

// Analyzer produces RepositoryInfo for a root directory.
type Analyzer interface {
	Analyze(ctx context.Context, root string) (*model.RepositoryInfo, error)
}

// DefaultRecentCommits is the number of commits Git reports by default.
const DefaultRecentCommits = 10

// Git reads .git metadata directly and shells out to the git binary for
// status and history.
type Git struct {
	// Timeout bounds each git invocation. Zero means 10 seconds.
	Timeout time.Duration
	// RecentCommits is how many commits to summarize. Zero means
	// DefaultRecentCommits.
	RecentCommits int
}

// Analyze implements Analyzer. Roots without a .git directory fail with
// errs.RepositoryAnalysisFailed.
func (g Git) Analyze(ctx context.Context, root string) (*model.RepositoryInfo, error) {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil, errs.New(errs.RepositoryAnalysisFailed, root, "not a git repository", err)
	}

	ri := &model.RepositoryInfo{RootPath: root}
	if head, err := os.ReadFile(filepath.Join(gitDir, "HEAD")); err == nil {
		ri.CurrentBranch = ParseHead(head)
	}
	if f, err := os.Open(filepath.Join(gitDir, "config")); err == nil {
		ri.RemoteURL = RemoteURL(f, "origin")
		f.Close()
	}

	out, err := g.run(ctx, root, "status", "--porcelain")
	if err != nil {
		return nil, errs.New(errs.RepositoryAnalysisFailed, root, "git status", err)
	}
	ri.Status = ParseStatus(out)

	// A repository with no commits makes these fail; that is not an error.
	if out, err := g.run(ctx, root, "rev-list", "--count", "HEAD"); err == nil {
		ri.CommitCount, _ = strconv.Atoi(strings.TrimSpace(string(out)))
	}
	n := g.RecentCommits
	if n <= 0 {
		n = DefaultRecentCommits
	}
	if out, err := g.run(ctx, root, "log", "-n", strconv.Itoa(n), "--name-only", "--format="+logFormat); err == nil {
		ri.RecentCommits = ParseLog(out)
	}
	return ri, nil
}

func (g Git) run(ctx context.Context, dir string, args ...string) ([]byte, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}

// ParseHead returns the branch named by a .git/HEAD file, or the short
// commit hash when HEAD is detached.
func ParseHead(head []byte) string {
	s := strings.TrimSpace(string(head))
	if ref, ok := strings.CutPrefix(s, "ref:"); ok {
		ref = strings.TrimSpace(ref)
		return strings.TrimPrefix(ref, "refs/heads/")
	}
	if len(s) > 7 {
		return s[:7]
	}
	return s
}

// RemoteURL scans a git config file for the url of the named remote.
func RemoteURL(r io.Reader, remote string) string {
	section := fmt.Sprintf(`[remote "%s"]`, remote)
	in := false
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "[") {
			in = line == section
			continue
		}
		if !in {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if ok && strings.TrimSpace(key) == "url" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

// ParseStatus reads `git status --porcelain` output. A path can be both
// staged and modified.
func ParseStatus(out []byte) model.RepositoryStatus {
	var st model.RepositoryStatus
	for _, line := range strings.Split(string(out), "\n") {
		if len(line) < 4 {
			continue
		}
		x, y, path := line[0], line[1], line[3:]
		if _, to, ok := strings.Cut(path, " -> "); ok {
			path = to
		}
		switch {
		case x == '?' && y == '?':
			st.Untracked = append(st.Untracked, path)
			continue
		case x == '!':
			continue
		}
		if x != ' ' {
			st.Staged = append(st.Staged, path)
		}
		if y != ' ' {
			st.Modified = append(st.Modified, path)
		}
	}
	st.IsClean = len(st.Modified) == 0 && len(st.Untracked) == 0 && len(st.Staged) == 0
	return st
}

// logFormat separates fields with the ASCII unit separator and starts each
// record with the record separator.
const logFormat = "%x1e%H%x1f%an%x1f%at%x1f%s"

// ParseLog reads `git log --name-only --format=logFormat` output.
func ParseLog(out []byte) []model.CommitInfo {
	var commits []model.CommitInfo
	for _, rec := range bytes.Split(out, []byte{0x1e}) {
		lines := strings.Split(strings.TrimSpace(string(rec)), "\n")
		if len(lines) == 0 || lines[0] == "" {
			continue
		}
		fields := strings.SplitN(lines[0], "\x1f", 4)
		if len(fields) != 4 {
			continue
		}
		c := model.CommitInfo{Hash: fields[0], Author: fields[1], Message: fields[3]}
		if sec, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
			c.Timestamp = time.Unix(sec, 0).UTC()
		}
		for _, f := range lines[1:] {
			if f = strings.TrimSpace(f); f != "" {
				c.FilesChanged = append(c.FilesChanged, f)
			}
		}
		commits = append(commits, c)
	}
	return commits
}
