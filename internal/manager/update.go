package manager

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/phobologic/codectx/internal/config"
	"github.com/phobologic/codectx/internal/discover"
	"github.com/phobologic/codectx/internal/errs"
	"github.com/phobologic/codectx/internal/extract"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

// UpdateResult counts what UpdateContext did.
type UpdateResult struct {
	Updated int
	Added   int
	Removed int
	Skipped int
}

func (m *Manager) rootLock(root string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[root]
	if !ok {
		l = &sync.Mutex{}
		m.locks[root] = l
	}
	return l
}

// UpdateContext re-extracts changed, absolute or relative to cc's root, and
// splices the results into cc in place: existing files are replaced, new
// files appended, and files that no longer exist or can no longer be
// analyzed (excluded, oversized, not UTF-8) removed. The symbol index
// and counters are refreshed. Semantic analysis is not re-run; cc is marked
// SemanticStale instead. Updates to the same root are serialized.
func (m *Manager) UpdateContext(ctx context.Context, changed []string, cc *model.CodebaseContext, cfg config.AnalysisConfig) (UpdateResult, error) {
	var res UpdateResult
	if cc == nil {
		return res, errs.New(errs.AnalysisFailed, "", "update of nil context", nil)
	}
	lock := m.rootLock(cc.RootPath)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	if cc.Symbols == nil {
		cc.Symbols = symbols.NewIndex()
	}
	opts := extract.Options{Backend: cfg.ParserBackend}
	maxSize := cfg.MaxFileSizeBytes()

	for _, p := range changed {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		path := p
		if !filepath.IsAbs(path) {
			path = filepath.Join(cc.RootPath, path)
		}
		path = filepath.Clean(path)
		rel, err := filepath.Rel(cc.RootPath, path)
		if err != nil {
			res.Skipped++
			continue
		}
		rel = filepath.ToSlash(rel)

		info, err := os.Stat(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if drop(cc, path) {
				res.Removed++
			}
			continue
		case err != nil:
			res.Skipped++
			continue
		case info.IsDir() || discover.IsExcluded(rel, cfg) || (maxSize > 0 && info.Size() > maxSize):
			if drop(cc, path) {
				res.Removed++
			} else {
				res.Skipped++
			}
			continue
		}

		fc, err := extract.File(path, cc.RootPath, opts)
		if err != nil {
			m.skip(path, err)
			if drop(cc, path) {
				res.Removed++
			} else {
				res.Skipped++
			}
			continue
		}
		if err := cc.Symbols.UpdateFile(fc.Path, fc.Symbols); err != nil {
			return res, err
		}
		if i := cc.FileIndex(fc.Path); i >= 0 {
			cc.Files[i] = fc
			res.Updated++
		} else {
			cc.Files = append(cc.Files, fc)
			res.Added++
		}
	}

	cc.Recount()
	if res.Updated+res.Added+res.Removed > 0 {
		cc.Metadata.SemanticStale = true
	}
	m.log.Info("context updated",
		"root", cc.RootPath,
		"updated", res.Updated,
		"added", res.Added,
		"removed", res.Removed,
		"skipped", res.Skipped,
		"duration", time.Since(start))
	return res, nil
}

// drop removes path and its symbols from cc, reporting whether it was there.
func drop(cc *model.CodebaseContext, path string) bool {
	i := cc.FileIndex(path)
	if i < 0 {
		return false
	}
	cc.Files = append(cc.Files[:i], cc.Files[i+1:]...)
	cc.Symbols.RemoveFile(path)
	return true
}
