// Package discover finds analyzable files in a repository.
package discover

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/phobologic/codectx/internal/config"
	"github.com/phobologic/codectx/internal/errs"
	"github.com/phobologic/codectx/internal/lang"
	"github.com/phobologic/codectx/internal/logging"
)

// Entry represents a discovered file.
type Entry struct {
	Path     string // Absolute
	RelPath  string // Slash-separated, relative to the root
	Language string
	Size     int64
	ModTime  time.Time
}

var skipDirs = map[string]struct{}{
	"target":        {},
	"build":         {},
	"dist":          {},
	"out":           {},
	"node_modules":  {},
	".git":          {},
	".svn":          {},
	".hg":           {},
	"__pycache__":   {},
	"venv":          {},
	".venv":         {},
	".tox":          {},
	".mypy_cache":   {},
	".ruff_cache":   {},
	".pytest_cache": {},
}

var binaryExts = map[string]struct{}{
	// executables and objects
	"exe": {}, "dll": {}, "so": {}, "dylib": {}, "a": {}, "lib": {}, "o": {}, "obj": {},
	// archives
	"zip": {}, "tar": {}, "gz": {}, "bz2": {}, "xz": {}, "7z": {}, "rar": {},
	// images
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "bmp": {}, "ico": {}, "svg": {},
	// video
	"mp4": {}, "avi": {}, "mov": {}, "wmv": {}, "flv": {}, "webm": {},
	// audio
	"mp3": {}, "wav": {}, "flac": {}, "aac": {}, "ogg": {},
	// documents
	"pdf": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {}, "ppt": {}, "pptx": {},
	// rust build artifacts
	"rlib": {}, "rmeta": {}, "d": {},
}

var extensionlessText = map[string]struct{}{
	"makefile":    {},
	"dockerfile":  {},
	"vagrantfile": {},
	"readme":      {},
	"license":     {},
	"changelog":   {},
}

// IsBinary reports whether the file name is a binary or build artifact.
func IsBinary(name string) bool {
	lower := strings.ToLower(path.Base(filepath.ToSlash(name)))
	ext := path.Ext(lower)
	if ext == "" {
		if strings.HasPrefix(lower, "lib") || len(lower) > 50 {
			return true
		}
		_, ok := extensionlessText[lower]
		return !ok
	}
	ext = ext[1:]
	if ext == "lock" {
		return lower != "cargo.lock"
	}
	_, ok := binaryExts[ext]
	return ok
}

// Filter applies the include/exclude rules of an AnalysisConfig to
// slash-separated paths relative to a root.
type Filter struct {
	include []string
	exclude []string
	gi      *ignore.GitIgnore
	git     map[string]struct{}
}

// NewFilter compiles the rules for root. When cfg.RespectGitignore is set,
// git's own view of the tree is used if available, else the root .gitignore.
func NewFilter(root string, cfg config.AnalysisConfig) *Filter {
	f := &Filter{
		include: cfg.IncludePatterns,
		exclude: cfg.ExcludePatterns,
	}
	if cfg.RespectGitignore && root != "" {
		f.git = gitLsFiles(root)
		if f.git == nil {
			f.gi = loadGitignore(root)
		}
	}
	return f
}

// matchGlob matches rel against pattern; a pattern without a separator also
// matches the base name.
func matchGlob(pattern, rel string) bool {
	if ok, _ := doublestar.Match(pattern, rel); ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		ok, _ := doublestar.Match(pattern, path.Base(rel))
		return ok
	}
	return false
}

// Excluded reports whether rel is removed by an exclude pattern, a build or
// dependency directory, or a binary rule. Include patterns cannot override it.
func (f *Filter) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range f.exclude {
		if matchGlob(p, rel) {
			return true
		}
	}
	segs := strings.Split(rel, "/")
	for _, s := range segs[:len(segs)-1] {
		if _, skip := skipDirs[s]; skip {
			return true
		}
	}
	return IsBinary(rel)
}

// PruneDir reports whether a directory can be skipped without visiting its
// contents.
func (f *Filter) PruneDir(rel string) bool {
	rel = filepath.ToSlash(rel)
	name := path.Base(rel)
	if _, skip := skipDirs[name]; skip || strings.HasPrefix(name, ".") {
		return true
	}
	for _, p := range f.exclude {
		if dir, ok := strings.CutSuffix(p, "/**"); ok && matchGlob(dir, rel) {
			return true
		}
	}
	if f.gi != nil && f.gi.MatchesPath(rel+"/") {
		return true
	}
	return false
}

// Included reports whether rel matches an include pattern. No patterns
// includes everything.
func (f *Filter) Included(rel string) bool {
	if len(f.include) == 0 {
		return true
	}
	rel = filepath.ToSlash(rel)
	for _, p := range f.include {
		if matchGlob(p, rel) {
			return true
		}
	}
	return false
}

// Ignored reports whether version control ignores rel.
func (f *Filter) Ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	if f.git != nil {
		_, ok := f.git[rel]
		return !ok
	}
	return f.gi != nil && f.gi.MatchesPath(rel)
}

// Allows reports whether rel passes every rule.
func (f *Filter) Allows(rel string) bool {
	if strings.HasPrefix(path.Base(filepath.ToSlash(rel)), ".") {
		return false
	}
	return !f.Excluded(rel) && f.Included(rel) && !f.Ignored(rel)
}

// IsExcluded applies cfg's path rules to a single root-relative path without
// consulting version control.
func IsExcluded(rel string, cfg config.AnalysisConfig) bool {
	cfg.RespectGitignore = false
	return !NewFilter("", cfg).Allows(rel)
}

// Files discovers analyzable files under root, sorted by relative path.
// Only a missing or unreadable root is an error; problems with individual
// entries are logged and skipped.
func Files(root string, cfg config.AnalysisConfig, log *slog.Logger) ([]Entry, error) {
	log = logging.OrDiscard(log)

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrap(errs.AnalysisFailed, root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errs.Wrap(errs.AnalysisFailed, root, err)
	}
	if !info.IsDir() {
		return nil, errs.New(errs.PathNotFound, root, "not a directory", nil)
	}
	if _, err := os.ReadDir(root); err != nil {
		return nil, errs.Wrap(errs.PermissionDenied, root, err)
	}

	w := &walker{
		cfg:     cfg,
		filter:  NewFilter(root, cfg),
		log:     log,
		maxSize: cfg.MaxFileSizeBytes(),
		visited: map[string]struct{}{},
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		w.visited[real] = struct{}{}
	}
	if err := w.walk(root, root, ""); err != nil {
		return nil, errs.New(errs.AnalysisFailed, root, "walking tree", err)
	}

	sort.Slice(w.results, func(i, j int) bool {
		return w.results[i].RelPath < w.results[j].RelPath
	})
	return w.results, nil
}

type walker struct {
	cfg     config.AnalysisConfig
	filter  *Filter
	log     *slog.Logger
	maxSize int64
	visited map[string]struct{}
	results []Entry
}

// walk visits dir on disk, reporting its entries under pathBase and relBase.
// The two differ from dir only when dir is the target of a followed symlink.
func (w *walker) walk(dir, pathBase, relBase string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Debug("skipping unreadable entry", "path", p, "error", err)
			if d != nil && d.IsDir() && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if p == dir {
			return nil
		}

		sub, err := filepath.Rel(dir, p)
		if err != nil {
			return nil
		}
		rel := path.Join(relBase, filepath.ToSlash(sub))
		display := filepath.Join(pathBase, sub)

		if d.IsDir() {
			if w.filter.PruneDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if w.cfg.FollowSymlinks {
				w.followLink(display, rel)
			}
			return nil
		}
		if !d.Type().IsRegular() || !w.filter.Allows(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			w.log.Debug("skipping entry without info", "path", rel, "error", err)
			return nil
		}
		w.add(display, rel, info)
		return nil
	})
}

func (w *walker) add(p, rel string, info fs.FileInfo) {
	if w.maxSize > 0 && info.Size() > w.maxSize {
		w.log.Debug("skipping oversized file", "path", rel, "size", info.Size())
		return
	}
	w.results = append(w.results, Entry{
		Path:     p,
		RelPath:  rel,
		Language: lang.Detect(rel),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	})
}

// followLink resolves a symlink. Directories are walked under the link's
// path; a directory whose real path was already visited is skipped.
func (w *walker) followLink(p, rel string) {
	real, err := filepath.EvalSymlinks(p)
	if err != nil {
		w.log.Debug("skipping broken symlink", "path", rel, "error", err)
		return
	}
	info, err := os.Stat(real)
	if err != nil {
		w.log.Debug("skipping symlink", "path", rel, "error", err)
		return
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() && w.filter.Allows(rel) {
			w.add(p, rel, info)
		}
		return
	}
	if w.filter.PruneDir(rel) {
		return
	}
	if _, seen := w.visited[real]; seen {
		w.log.Debug("skipping symlink cycle", "path", rel)
		return
	}
	w.visited[real] = struct{}{}
	if err := w.walk(real, p, rel); err != nil {
		w.log.Warn("walking symlinked directory", "path", rel, "error", err)
	}
}

var testDirs = map[string]struct{}{
	"test":      {},
	"tests":     {},
	"spec":      {},
	"specs":     {},
	"__tests__": {},
	"testdata":  {},
}

// IsTestFile reports whether path looks like a test file, either by living
// under a test directory or by following a test naming convention.
func IsTestFile(p string) bool {
	p = filepath.ToSlash(p)
	segs := strings.Split(p, "/")
	for _, s := range segs[:len(segs)-1] {
		if _, ok := testDirs[s]; ok {
			return true
		}
	}
	name := segs[len(segs)-1]
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	switch {
	case strings.HasSuffix(stem, "_test"), strings.HasSuffix(stem, "_spec"):
		return true
	case strings.HasPrefix(stem, "test_"):
		return true
	case strings.HasSuffix(stem, ".test"), strings.HasSuffix(stem, ".spec"):
		return true
	case ext == ".java" && strings.HasSuffix(stem, "Test") && len(stem) > 4:
		return true
	}
	return false
}

func gitLsFiles(root string) map[string]struct{} {
	gitDir := filepath.Join(root, ".git")
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil
	}

	files := make(map[string]struct{})
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line != "" {
			files[line] = struct{}{}
		}
	}
	return files
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
