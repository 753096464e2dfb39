// codectx analyzes a source tree and reports its files, symbols,
// relationships, dependencies and semantic patterns.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/phobologic/codectx/internal/config"
	"github.com/phobologic/codectx/internal/discover"
	"github.com/phobologic/codectx/internal/logging"
	"github.com/phobologic/codectx/internal/manager"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/ranking"
	"github.com/phobologic/codectx/internal/snapshot"
	"github.com/phobologic/codectx/internal/toon"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

// globals holds the flags shared by every command.
type globals struct {
	configPath string
	backend    string
	cachePath  string
	noGit      bool
	verbose    int
	quiet      bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "codectx",
		Short:         "Analyze a codebase for files, symbols, relationships and patterns",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("codectx {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (default: .codectx.{yaml,toml,json} in the analyzed root)")
	pf.StringVar(&g.backend, "backend", "", "parser backend: heuristic|treesitter")
	pf.StringVar(&g.cachePath, "cache", "", "snapshot file reused while no analyzed file is newer")
	pf.BoolVar(&g.noGit, "no-git", false, "skip repository metadata")
	pf.CountVarP(&g.verbose, "verbose", "v", "increase log verbosity (repeatable)")
	pf.BoolVarP(&g.quiet, "quiet", "q", false, "suppress all logging")

	root.AddCommand(
		newAnalyzeCmd(g),
		newSearchCmd(g),
		newRelatedCmd(g),
		newSuggestCmd(g),
		newWatchCmd(g),
		newInitCmd(),
	)
	return root
}

// session is a configured Manager bound to one root directory.
type session struct {
	g    *globals
	mgr  *manager.Manager
	cfg  config.AnalysisConfig
	root string
	log  *slog.Logger
}

// open resolves the root named by args, defaulting to the working
// directory, and loads its configuration.
func (g *globals) open(cmd *cobra.Command, args []string) (*session, error) {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: not a directory", root)
	}

	cfg, err := config.Load(g.configPath, root)
	if err != nil {
		return nil, err
	}
	if g.backend != "" {
		cfg.ParserBackend = g.backend
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}

	log := logging.New(cmd.ErrOrStderr(), logging.LevelFromVerbosity(g.verbose, g.quiet))
	opts := []manager.Option{
		manager.WithLogger(log),
		manager.WithStageHook(func(root string, stage manager.Stage) {
			log.Debug("stage", "root", root, "stage", stage)
		}),
	}
	if g.noGit {
		opts = append(opts, manager.WithRepositoryAnalyzer(nil))
	}
	mgr, err := manager.New(opts...)
	if err != nil {
		return nil, err
	}
	return &session{g: g, mgr: mgr, cfg: cfg, root: root, log: log}, nil
}

func (s *session) close() {
	s.mgr.Close()
}

// context returns the analyzed context of the session root, reading the
// --cache snapshot instead when it is fresh and writing it otherwise.
func (s *session) context(ctx context.Context) (*model.CodebaseContext, error) {
	cachePath := s.g.cachePath
	if cachePath != "" && cacheIsFresh(cachePath, s.root, s.cfg, s.log) {
		cc, err := snapshot.ReadFile(cachePath)
		if err == nil && cc.RootPath == s.root {
			s.log.Info("using cached snapshot", "path", cachePath)
			if s.cfg.DeepAnalysis && cc.SemanticAnalysis == nil {
				if _, err := s.mgr.AnalyzeSemantics(ctx, cc); err != nil {
					return nil, err
				}
			}
			return cc, nil
		}
		s.log.Debug("ignoring cached snapshot", "path", cachePath, "err", err)
	}

	cc, err := s.mgr.AnalyzeCodebase(ctx, s.root, s.cfg)
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		if err := snapshot.WriteFile(cachePath, cc, snapshot.Options{Format: snapshot.JSON, Compress: true}); err != nil {
			s.log.Warn("writing cache", "path", cachePath, "err", err)
		}
	}
	return cc, nil
}

// cacheIsFresh reports whether every file discovery would analyze is older
// than the snapshot at cachePath.
func cacheIsFresh(cachePath, root string, cfg config.AnalysisConfig, log *slog.Logger) bool {
	cacheInfo, err := os.Stat(cachePath)
	if err != nil {
		return false
	}
	cacheMtime := cacheInfo.ModTime()

	entries, err := discover.Files(root, cfg, log)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.ModTime.Before(cacheMtime) {
			return false
		}
	}
	return true
}

type analyzeFlags struct {
	deep     bool
	noDeps   bool
	compress bool
	format   string
	output   string
	maxFiles int
	symbol   string
	file     string
}

func newAnalyzeCmd(g *globals) *cobra.Command {
	f := &analyzeFlags{}
	cmd := &cobra.Command{
		Use:   "analyze [path]",
		Short: "Analyze a directory and print its context",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, g, f, args)
		},
	}
	fl := cmd.Flags()
	fl.BoolVar(&f.deep, "deep", false, "run semantic analysis")
	fl.BoolVar(&f.noDeps, "no-deps", false, "skip dependency manifests")
	fl.BoolVar(&f.compress, "compress", false, "zstd-compress json or yaml output")
	fl.StringVarP(&f.format, "format", "f", "toon", "output format: toon|json|yaml")
	fl.StringVarP(&f.output, "output", "o", "", "write to this file instead of stdout")
	fl.IntVarP(&f.maxFiles, "max-files", "n", 0, "maximum number of files to include, by rank")
	fl.StringVarP(&f.symbol, "symbol", "s", "", "only symbols whose name contains this, with related files")
	fl.StringVar(&f.file, "file", "", "only files whose path contains this")
	return cmd
}

func runAnalyze(cmd *cobra.Command, g *globals, f *analyzeFlags, args []string) error {
	if f.format != "toon" {
		if _, err := snapshot.ParseFormat(f.format); err != nil {
			return err
		}
	} else if f.compress {
		return fmt.Errorf("--compress requires --format json or yaml")
	}

	s, err := g.open(cmd, args)
	if err != nil {
		return err
	}
	defer s.close()
	if f.deep {
		s.cfg.DeepAnalysis = true
	}
	if f.noDeps {
		s.cfg.AnalyzeDependencies = false
	}

	cc, err := s.context(cmd.Context())
	if err != nil {
		return err
	}

	view := cc
	if f.symbol != "" {
		view = ranking.FilterBySymbol(view, f.symbol)
		if len(view.Files) == 0 {
			return noSymbolMatch(cc, f.symbol)
		}
	}
	if f.file != "" {
		view = ranking.FilterByFile(view, f.file)
		if len(view.Files) == 0 {
			return fmt.Errorf("no files matching %q", f.file)
		}
	}
	view = ranking.SelectFiles(view, f.maxFiles)

	return writeContext(cmd.OutOrStdout(), view, f)
}

func writeContext(stdout io.Writer, cc *model.CodebaseContext, f *analyzeFlags) error {
	if f.format == "toon" {
		out := toon.Encode(cc) + "\n"
		if f.output != "" {
			if err := os.WriteFile(f.output, []byte(out), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", f.output, err)
			}
			return nil
		}
		_, err := io.WriteString(stdout, out)
		return err
	}

	format, err := snapshot.ParseFormat(f.format)
	if err != nil {
		return err
	}
	opts := snapshot.Options{Format: format, Compress: f.compress}
	if f.output != "" {
		return snapshot.WriteFile(f.output, cc, opts)
	}
	return snapshot.Encode(stdout, cc, opts)
}

// noSymbolMatch reports a symbol query that matched nothing, with close
// names when the index has any.
func noSymbolMatch(cc *model.CodebaseContext, query string) error {
	if cc.Symbols != nil {
		if sugs := cc.Symbols.Suggest(query, 5); len(sugs) > 0 {
			names := make([]string, len(sugs))
			for i, s := range sugs {
				names[i] = s.Name
			}
			return fmt.Errorf("no symbols matching %q (did you mean %s?)", query, joinOr(names))
		}
	}
	return fmt.Errorf("no symbols matching %q", query)
}

func joinOr(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	out := ""
	for i, n := range names {
		switch {
		case i == 0:
			out = n
		case i == len(names)-1:
			out += " or " + n
		default:
			out += ", " + n
		}
	}
	return out
}
