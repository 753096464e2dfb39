// Package ranking selects and filters the files of a CodebaseContext for
// output.
package ranking

import (
	"strings"

	"github.com/phobologic/codectx/internal/graph"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

// SelectFiles returns a view of cc with only the maxFiles files of highest
// PageRank, keeping relationships between selected files.
// If maxFiles is <= 0 or >= len(files), cc is returned.
func SelectFiles(cc *model.CodebaseContext, maxFiles int) *model.CodebaseContext {
	if maxFiles <= 0 || maxFiles >= len(cc.Files) {
		return cc
	}

	selected := make(map[string]struct{}, maxFiles)
	for _, r := range graph.FromFiles(cc.Files).Rank(maxFiles) {
		selected[r.Path] = struct{}{}
	}

	return project(cc, selected,
		func(_ string, rel model.FileRelationship) bool {
			_, ok := selected[rel.TargetFile]
			return ok
		},
		func(symbols.Symbol) bool { return true },
	)
}

// FilterBySymbol returns a view of cc containing only symbols whose name
// contains substr (case-insensitive), optionally restricted to types, the
// files that define them, and the files directly related to those files in
// either direction. Relationships are kept when they touch a defining file.
func FilterBySymbol(cc *model.CodebaseContext, substr string, types ...symbols.Type) *model.CodebaseContext {
	type site struct {
		file string
		name string
		line int
	}

	matchedSymbols := make(map[site]struct{})
	defining := make(map[string]struct{})
	for _, s := range search(cc, substr, types) {
		matchedSymbols[site{s.FilePath, s.Name, s.Line}] = struct{}{}
		defining[s.FilePath] = struct{}{}
	}

	// Expand to the direct dependencies and dependents of defining files.
	keep := make(map[string]struct{}, len(defining))
	for p := range defining {
		keep[p] = struct{}{}
	}
	for i := range cc.Files {
		f := &cc.Files[i]
		_, src := defining[f.Path]
		for _, rel := range f.Relationships {
			if _, tgt := defining[rel.TargetFile]; tgt {
				keep[f.Path] = struct{}{}
			}
			if src && cc.FileIndex(rel.TargetFile) >= 0 {
				keep[rel.TargetFile] = struct{}{}
			}
		}
	}

	return project(cc, keep,
		func(source string, rel model.FileRelationship) bool {
			_, srcOK := defining[source]
			_, tgtOK := defining[rel.TargetFile]
			return srcOK || tgtOK
		},
		func(s symbols.Symbol) bool {
			_, ok := matchedSymbols[site{s.FilePath, s.Name, s.Line}]
			return ok
		},
	)
}

// FilterByFile returns a view of cc containing only files whose relative path
// contains substr (case-insensitive), with all of their relationships.
func FilterByFile(cc *model.CodebaseContext, substr string) *model.CodebaseContext {
	lower := strings.ToLower(substr)

	matched := make(map[string]struct{})
	for i := range cc.Files {
		if strings.Contains(strings.ToLower(cc.Files[i].RelativePath), lower) {
			matched[cc.Files[i].Path] = struct{}{}
		}
	}

	return project(cc, matched,
		func(string, model.FileRelationship) bool { return true },
		func(symbols.Symbol) bool { return true },
	)
}

func search(cc *model.CodebaseContext, substr string, types []symbols.Type) []symbols.Symbol {
	if cc.Symbols != nil {
		return cc.Symbols.Search(substr, types...)
	}
	ix := symbols.NewIndex()
	for i := range cc.Files {
		_ = ix.UpdateFile(cc.Files[i].Path, cc.Files[i].Symbols)
	}
	return ix.Search(substr, types...)
}

// project copies the files of cc whose path is in keep, in their original
// order, retaining the relationships and symbols accepted by the filters.
// The returned context has its own symbol index and recounted metadata.
func project(
	cc *model.CodebaseContext,
	keep map[string]struct{},
	keepRel func(source string, rel model.FileRelationship) bool,
	keepSym func(symbols.Symbol) bool,
) *model.CodebaseContext {
	out := &model.CodebaseContext{
		RootPath:         cc.RootPath,
		Symbols:          symbols.NewIndex(),
		Dependencies:     cc.Dependencies,
		RepositoryInfo:   cc.RepositoryInfo,
		SemanticAnalysis: cc.SemanticAnalysis,
		Metadata:         cc.Metadata,
	}

	for i := range cc.Files {
		if _, ok := keep[cc.Files[i].Path]; !ok {
			continue
		}
		f := cc.Files[i]

		var rels []model.FileRelationship
		for _, rel := range f.Relationships {
			if keepRel(f.Path, rel) {
				rels = append(rels, rel)
			}
		}
		f.Relationships = rels

		var syms []symbols.Symbol
		for _, s := range f.Symbols {
			s.FilePath = f.Path
			if keepSym(s) {
				syms = append(syms, s)
			}
		}
		f.Symbols = syms

		_ = out.Symbols.UpdateFile(f.Path, syms)
		out.Files = append(out.Files, f)
	}

	out.Recount()
	return out
}
