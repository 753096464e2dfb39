// Package watch keeps a CodebaseContext current by feeding file system
// changes to incremental updates.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/phobologic/codectx/internal/config"
	"github.com/phobologic/codectx/internal/discover"
	"github.com/phobologic/codectx/internal/logging"
	"github.com/phobologic/codectx/internal/manager"
	"github.com/phobologic/codectx/internal/model"
)

// DefaultDebounce is the quiet period before accumulated changes are
// applied.
const DefaultDebounce = 300 * time.Millisecond

// Updater applies changed paths to a context. *manager.Manager implements
// it.
type Updater interface {
	UpdateContext(ctx context.Context, changed []string, cc *model.CodebaseContext, cfg config.AnalysisConfig) (manager.UpdateResult, error)
}

// Watcher watches the root of a CodebaseContext recursively.
type Watcher struct {
	fsw    *fsnotify.Watcher
	up     Updater
	cc     *model.CodebaseContext
	cfg    config.AnalysisConfig
	filter *discover.Filter
	log    *slog.Logger

	// Debounce is the quiet period that ends a batch of changes.
	Debounce time.Duration
	// OnUpdate, when set, is called after each batch is applied.
	OnUpdate func(changed []string, res manager.UpdateResult, err error)
}

// New starts watching every directory under cc.RootPath that discovery
// would visit. Run must be called to process events; Close releases the
// watcher if Run is never called.
func New(up Updater, cc *model.CodebaseContext, cfg config.AnalysisConfig, log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	noGit := cfg
	noGit.RespectGitignore = false
	w := &Watcher{
		fsw:      fsw,
		up:       up,
		cc:       cc,
		cfg:      cfg,
		filter:   discover.NewFilter(cc.RootPath, noGit),
		log:      logging.OrDiscard(log),
		Debounce: DefaultDebounce,
	}
	if err := w.addTree(cc.RootPath, nil); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// addTree watches dir and the directories below it. Files already present
// are recorded in pending when it is non-nil.
func (w *Watcher) addTree(dir string, pending map[string]struct{}) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			w.log.Debug("not watching", "path", p, "err", err)
			return nil
		}
		if !d.IsDir() {
			if pending != nil {
				if rel, ok := w.rel(p); ok && w.filter.Allows(rel) {
					pending[p] = struct{}{}
				}
			}
			return nil
		}
		if p != w.cc.RootPath {
			if rel, ok := w.rel(p); !ok || w.filter.PruneDir(rel) {
				return filepath.SkipDir
			}
		}
		if err := w.fsw.Add(p); err != nil {
			w.log.Warn("not watching", "path", p, "err", err)
		}
		return nil
	})
}

func (w *Watcher) rel(p string) (string, bool) {
	rel, err := filepath.Rel(w.cc.RootPath, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// relevant reports whether ev should trigger an update.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	rel, ok := w.rel(ev.Name)
	if !ok {
		return false
	}
	return w.filter.Allows(rel)
}

// tracked returns the context's files under dir. A removed or renamed
// directory reports only its own path, so its files are enqueued this way.
func (w *Watcher) tracked(dir string) []string {
	prefix := filepath.Clean(dir) + string(filepath.Separator)
	var out []string
	for i := range w.cc.Files {
		if p := w.cc.Files[i].Path; strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	return out
}

// Run processes events until ctx is done, then closes the watcher. Changes
// are applied in batches once no event has arrived for Debounce.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if rel, ok := w.rel(ev.Name); ok && !w.filter.PruneDir(rel) {
						if err := w.addTree(ev.Name, pending); err != nil {
							w.log.Warn("watching new directory", "path", ev.Name, "err", err)
						}
						timer.Reset(w.debounce())
					}
					continue
				}
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				if files := w.tracked(ev.Name); len(files) > 0 {
					for _, p := range files {
						pending[p] = struct{}{}
					}
					timer.Reset(w.debounce())
					continue
				}
			}
			if !w.relevant(ev) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce())

		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[string]struct{})

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.log.Warn("watch events dropped", "err", err)
				continue
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

func (w *Watcher) debounce() time.Duration {
	if w.Debounce > 0 {
		return w.Debounce
	}
	return DefaultDebounce
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	if len(pending) == 0 {
		return
	}
	changed := make([]string, 0, len(pending))
	for p := range pending {
		changed = append(changed, p)
	}
	sort.Strings(changed)

	res, err := w.up.UpdateContext(ctx, changed, w.cc, w.cfg)
	if err != nil {
		w.log.Warn("update failed", "root", w.cc.RootPath, "err", err)
	}
	if w.OnUpdate != nil {
		w.OnUpdate(changed, res, err)
	}
}
