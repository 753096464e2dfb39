// Package extract turns a single source file into a model.FileContext:
// symbols, import and export statements, and relationships to other files.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/phobologic/codectx/internal/config"
	"github.com/phobologic/codectx/internal/errs"
	"github.com/phobologic/codectx/internal/lang"
	"github.com/phobologic/codectx/internal/model"
)

// ErrSoftSkip marks files that are skipped silently, such as non-UTF-8
// content. It is always wrapped in an errs.AnalysisFailed error.
var ErrSoftSkip = errors.New("non-UTF-8 content")

// Options selects the scanner backend.
type Options struct {
	Backend string // config.BackendHeuristic (default) or config.BackendTreeSitter
}

// ScannerFor returns the Scanner for a language variant under this backend.
func (o Options) ScannerFor(v lang.Variant) lang.Scanner {
	if o.Backend == config.BackendTreeSitter {
		return lang.TreeSitter(v)
	}
	return lang.Heuristic(v)
}

// File reads and analyzes the file at path. root is the project root used
// for relative paths and import resolution.
func File(path, root string, opts Options) (model.FileContext, error) {
	info, err := os.Stat(path)
	if err != nil {
		return model.FileContext{}, errs.Wrap(errs.AnalysisFailed, path, err)
	}
	if info.IsDir() {
		return model.FileContext{}, errs.New(errs.AnalysisFailed, path, "is a directory", nil)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return model.FileContext{}, errs.Wrap(errs.AnalysisFailed, path, err)
	}
	return Source(path, root, src, info.ModTime(), opts)
}

// Source analyzes src as the contents of path.
func Source(path, root string, src []byte, modTime time.Time, opts Options) (model.FileContext, error) {
	if !utf8.Valid(src) {
		return model.FileContext{}, errs.New(errs.AnalysisFailed, path, ErrSoftSkip.Error(), ErrSoftSkip)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	tag := lang.Detect(path)
	variant := lang.VariantFor(tag)
	scanner := opts.ScannerFor(variant)

	syms := scanner.Symbols(path, src)
	stmts, exports := scanner.ImportsExports(src)
	imports := make([]string, len(stmts))
	for i, s := range stmts {
		imports[i] = s.Text
	}

	r := resolver{root: root, file: path, rel: rel, exists: fileExists}
	rels := r.relationships(variant, stmts, scanner.Markers(src))

	return model.FileContext{
		Path:          path,
		RelativePath:  rel,
		Language:      tag,
		SizeBytes:     int64(len(src)),
		LineCount:     lineCount(src),
		LastModified:  modTime,
		ContentHash:   Hash(src),
		Symbols:       syms,
		Imports:       imports,
		Exports:       exports,
		Relationships: rels,
	}, nil
}

// Hash returns the hex xxhash64 of src. It is used for change detection
// only.
func Hash(src []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(src))
}

// lineCount counts lines the way an editor does: a trailing newline does
// not start a new line.
func lineCount(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := bytes.Count(src, []byte{'\n'})
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
