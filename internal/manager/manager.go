// Package manager orchestrates codebase analysis: discovery, extraction,
// indexing, dependency scanning and the semantic pipeline. A Manager owns
// the caches for the contexts it produces and answers queries over them.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/maypok86/otter"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/phobologic/codectx/internal/config"
	"github.com/phobologic/codectx/internal/deps"
	"github.com/phobologic/codectx/internal/discover"
	"github.com/phobologic/codectx/internal/errs"
	"github.com/phobologic/codectx/internal/extract"
	"github.com/phobologic/codectx/internal/gitinfo"
	"github.com/phobologic/codectx/internal/logging"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/semantic"
	"github.com/phobologic/codectx/internal/symbols"
)

// Stage names a step of the analysis pipeline.
type Stage string

// Pipeline stages in the order they run. DependencyScan and
// SemanticAnalysis are skipped when disabled by the configuration.
const (
	StageIdle             Stage = "idle"
	StageDiscovering      Stage = "discovering"
	StageExtracting       Stage = "extracting"
	StageIndexing         Stage = "indexing"
	StageDependencyScan   Stage = "dependency_scan"
	StageSemanticAnalysis Stage = "semantic_analysis"
	StageAssembled        Stage = "assembled"
	StageCached           Stage = "cached"
)

// StageHook is called as an analysis of root enters each stage.
type StageHook func(root string, stage Stage)

// DefaultCacheCapacity is the number of roots each cache holds.
const DefaultCacheCapacity = 64

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. The default discards output.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = logging.OrDiscard(log) }
}

// WithRepositoryAnalyzer replaces the git metadata collaborator. A nil
// analyzer disables repository metadata.
func WithRepositoryAnalyzer(a gitinfo.Analyzer) Option {
	return func(m *Manager) { m.repo = a }
}

// WithStageHook registers a callback for pipeline stage transitions.
func WithStageHook(h StageHook) Option {
	return func(m *Manager) { m.hook = h }
}

// WithCacheCapacity sets how many roots the context and semantic caches
// each hold.
func WithCacheCapacity(n int) Option {
	return func(m *Manager) { m.capacity = n }
}

type cached struct {
	fingerprint string
	cc          *model.CodebaseContext
}

// Manager runs analyses and caches their results by root path.
type Manager struct {
	log      *slog.Logger
	repo     gitinfo.Analyzer
	hook     StageHook
	capacity int
	semantic *semantic.Analyzer

	contexts  otter.Cache[string, cached]
	semantics otter.Cache[string, *model.SemanticAnalysis]
	flight    singleflight.Group

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Manager with empty caches.
func New(opts ...Option) (*Manager, error) {
	m := &Manager{
		log:      logging.Discard(),
		repo:     gitinfo.Git{},
		capacity: DefaultCacheCapacity,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(m)
	}
	if m.capacity <= 0 {
		m.capacity = DefaultCacheCapacity
	}
	m.semantic = semantic.NewAnalyzer(m.log)

	var err error
	m.contexts, err = otter.MustBuilder[string, cached](m.capacity).Build()
	if err != nil {
		return nil, errs.New(errs.CacheError, "", "building context cache", err)
	}
	m.semantics, err = otter.MustBuilder[string, *model.SemanticAnalysis](m.capacity).Build()
	if err != nil {
		m.contexts.Close()
		return nil, errs.New(errs.CacheError, "", "building semantic cache", err)
	}
	return m, nil
}

// Close releases the caches. The Manager must not be used afterwards.
func (m *Manager) Close() {
	m.contexts.Close()
	m.semantics.Close()
}

// ClearCache drops every cached CodebaseContext.
func (m *Manager) ClearCache() {
	m.contexts.Clear()
}

// ClearSemanticCache drops every cached SemanticAnalysis. Cached contexts
// keep the analysis they were assembled with.
func (m *Manager) ClearSemanticCache() {
	m.semantics.Clear()
}

func (m *Manager) stage(root string, s Stage) {
	m.log.Debug("stage", "root", root, "stage", string(s))
	if m.hook != nil {
		m.hook(root, s)
	}
}

// AnalyzeCodebase analyzes the tree at root. With cfg.CacheResults set, a
// previous result for the same root and configuration is returned as is,
// and concurrent calls for the same root and configuration share one run.
func (m *Manager) AnalyzeCodebase(ctx context.Context, root string, cfg config.AnalysisConfig) (*model.CodebaseContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errs.New(errs.AnalysisFailed, root, "invalid configuration", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errs.Wrap(errs.AnalysisFailed, root, err)
	}
	root = filepath.Clean(abs)
	fp := fingerprint(cfg)

	if cfg.CacheResults {
		if c, ok := m.contexts.Get(root); ok && c.fingerprint == fp {
			m.log.Info("cache hit", "root", root)
			return c.cc, nil
		}
	}

	v, err, shared := m.flight.Do(root+"\x00"+fp, func() (any, error) {
		cc, err := m.analyze(ctx, root, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.CacheResults {
			m.contexts.Set(root, cached{fingerprint: fp, cc: cc})
			m.stage(root, StageCached)
		}
		return cc, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.log.Debug("coalesced analysis", "root", root)
	}
	return v.(*model.CodebaseContext), nil
}

func (m *Manager) analyze(ctx context.Context, root string, cfg config.AnalysisConfig) (*model.CodebaseContext, error) {
	start := time.Now()
	m.log.Info("starting analysis", "root", root)
	m.stage(root, StageIdle)

	m.stage(root, StageDiscovering)
	entries, err := discover.Files(root, cfg, m.log)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.stage(root, StageExtracting)
	files, err := m.extractAll(ctx, root, entries, cfg)
	if err != nil {
		return nil, err
	}
	m.log.Info("extracted files", "root", root, "files", len(files), "discovered", len(entries))

	m.stage(root, StageIndexing)
	ix, err := buildIndex(files)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cc := &model.CodebaseContext{RootPath: root, Files: files, Symbols: ix}

	if cfg.AnalyzeDependencies {
		m.stage(root, StageDependencyScan)
		cc.Dependencies = deps.Scan(root, m.log)
		m.log.Info("scanned dependencies", "root", root, "dependencies", len(cc.Dependencies))
	}

	if m.repo != nil {
		ri, err := m.repo.Analyze(ctx, root)
		if err != nil {
			m.log.Debug("repository info unavailable", "root", root, "err", err)
		} else {
			cc.RepositoryInfo = ri
		}
	}

	if cfg.DeepAnalysis {
		m.stage(root, StageSemanticAnalysis)
		sa, err := m.semantic.Analyze(ctx, cc)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			m.log.Warn("semantic analysis failed", "root", root, "err", err)
		default:
			cc.SemanticAnalysis = sa
			m.semantics.Set(root, sa)
		}
	}

	m.stage(root, StageAssembled)
	cc.Metadata = model.ContextMetadata{
		AnalysisID:        uuid.NewString(),
		AnalysisTimestamp: time.Now().UTC(),
	}
	cc.Recount()
	if sa := cc.SemanticAnalysis; sa != nil {
		cc.Metadata.SemanticPatternsFound = len(sa.Patterns)
		cc.Metadata.SemanticRelationships = len(sa.Relationships)
	}
	cc.Metadata.AnalysisDuration = time.Since(start)

	m.log.Info("analysis complete",
		"root", root,
		"files", cc.Metadata.TotalFiles,
		"symbols", cc.Metadata.IndexedSymbols,
		"duration", cc.Metadata.AnalysisDuration)
	return cc, nil
}

// extractAll runs extraction on a bounded worker pool. Results keep the
// order of entries; files that fail are logged and dropped.
func (m *Manager) extractAll(ctx context.Context, root string, entries []discover.Entry, cfg config.AnalysisConfig) ([]model.FileContext, error) {
	results := make([]model.FileContext, len(entries))
	ok := make([]bool, len(entries))
	opts := extract.Options{Backend: cfg.ParserBackend}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(cfg))
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fc, err := extract.File(e.Path, root, opts)
			if err != nil {
				m.skip(e.Path, err)
				return nil
			}
			results[i] = fc
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	files := make([]model.FileContext, 0, len(entries))
	for i := range results {
		if ok[i] {
			files = append(files, results[i])
		}
	}
	return files, nil
}

func (m *Manager) skip(path string, err error) {
	if errors.Is(err, extract.ErrSoftSkip) {
		m.log.Debug("skipping file", "path", path, "err", err)
		return
	}
	m.log.Warn("skipping file", "path", path, "err", err)
}

func workers(cfg config.AnalysisConfig) int {
	if cfg.Workers > 0 {
		return cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func buildIndex(files []model.FileContext) (*symbols.Index, error) {
	ix := symbols.NewIndex()
	for i := range files {
		for _, s := range files[i].Symbols {
			if err := ix.Add(s); err != nil {
				return nil, err
			}
		}
	}
	return ix, nil
}

// fingerprint identifies the result-affecting parts of cfg.
func fingerprint(cfg config.AnalysisConfig) string {
	h := xxhash.New()
	fmt.Fprintf(h, "%q|%q|%d|%t|%t|%t|%t|%s",
		cfg.IncludePatterns, cfg.ExcludePatterns, cfg.MaxFileSizeMB,
		cfg.FollowSymlinks, cfg.AnalyzeDependencies, cfg.DeepAnalysis,
		cfg.RespectGitignore, cfg.ParserBackend)
	return strconv.FormatUint(h.Sum64(), 16)
}

// AnalyzeSemantics runs the semantic pipeline over cc and attaches the
// result, clearing SemanticStale. A cached analysis for cc's root is reused
// unless cc has been updated since it was produced. It is serialized with
// UpdateContext on the same root.
func (m *Manager) AnalyzeSemantics(ctx context.Context, cc *model.CodebaseContext) (*model.SemanticAnalysis, error) {
	if cc == nil {
		return nil, errs.New(errs.AnalysisFailed, "", "semantic analysis of nil context", nil)
	}
	lock := m.rootLock(cc.RootPath)
	lock.Lock()
	defer lock.Unlock()

	var (
		sa *model.SemanticAnalysis
		ok bool
	)
	if !cc.Metadata.SemanticStale {
		sa, ok = m.semantics.Get(cc.RootPath)
	}
	if !ok {
		var err error
		if sa, err = m.semantic.Analyze(ctx, cc); err != nil {
			return nil, err
		}
		m.semantics.Set(cc.RootPath, sa)
	}
	cc.SemanticAnalysis = sa
	cc.Metadata.SemanticStale = false
	cc.Metadata.SemanticPatternsFound = len(sa.Patterns)
	cc.Metadata.SemanticRelationships = len(sa.Relationships)
	return sa, nil
}

// SearchSymbols searches cc's index, optionally restricted to types.
func (m *Manager) SearchSymbols(query string, cc *model.CodebaseContext, types ...symbols.Type) []symbols.Symbol {
	if cc == nil || cc.Symbols == nil {
		return nil
	}
	return cc.Symbols.Search(query, types...)
}

// FindRelatedFiles returns the sorted, de-duplicated targets of file's
// relationships of the given types, or of every type when none are given.
// file may be absolute or relative to cc's root.
func (m *Manager) FindRelatedFiles(file string, cc *model.CodebaseContext, types ...model.RelationshipType) []string {
	if cc == nil {
		return nil
	}
	i := cc.FileIndex(file)
	if i < 0 {
		return nil
	}
	want := make(map[model.RelationshipType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	seen := make(map[string]struct{})
	var out []string
	for _, r := range cc.Files[i].Relationships {
		if len(want) > 0 && !want[r.Type] {
			continue
		}
		if _, ok := seen[r.TargetFile]; ok {
			continue
		}
		seen[r.TargetFile] = struct{}{}
		out = append(out, r.TargetFile)
	}
	sort.Strings(out)
	return out
}

// GetContextSuggestions returns the suggestions of cc's semantic analysis
// whose description or rationale contains query, ignoring case.
func (m *Manager) GetContextSuggestions(cc *model.CodebaseContext, query string) []model.ContextSuggestion {
	if cc == nil || cc.SemanticAnalysis == nil {
		return nil
	}
	q := strings.ToLower(query)
	var out []model.ContextSuggestion
	for _, s := range cc.SemanticAnalysis.Suggestions {
		if strings.Contains(strings.ToLower(s.Description), q) || strings.Contains(strings.ToLower(s.Rationale), q) {
			out = append(out, s)
		}
	}
	return out
}

// GetFileContext returns copies of the files named by paths, absolute or
// relative, in the order given. Unknown paths are skipped.
func (m *Manager) GetFileContext(paths []string, cc *model.CodebaseContext) []model.FileContext {
	if cc == nil {
		return nil
	}
	var out []model.FileContext
	for _, p := range paths {
		if i := cc.FileIndex(p); i >= 0 {
			out = append(out, cc.Files[i])
		}
	}
	return out
}
