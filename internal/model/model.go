// Package model defines the core data structures produced by codebase analysis.
package model

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/phobologic/codectx/internal/symbols"
)

// RelationshipType classifies a directed edge between two files.
type RelationshipType string

const (
	Imports       RelationshipType = "imports"
	Extends       RelationshipType = "extends"
	Implements    RelationshipType = "implements"
	References    RelationshipType = "references"
	Tests         RelationshipType = "tests"
	Documentation RelationshipType = "documentation"
)

// AllRelationshipTypes lists every relationship type.
var AllRelationshipTypes = []RelationshipType{
	Imports, Extends, Implements, References, Tests, Documentation,
}

// ParseRelationshipType maps a name such as "imports" to a RelationshipType.
func ParseRelationshipType(s string) (RelationshipType, bool) {
	for _, rt := range AllRelationshipTypes {
		if string(rt) == s {
			return rt, true
		}
	}
	return "", false
}

// FileRelationship is an edge from the owning file to TargetFile.
// LineNumbers are 1-based source lines that produced the edge.
type FileRelationship struct {
	TargetFile  string           `json:"target_file" yaml:"target_file"`
	Type        RelationshipType `json:"type" yaml:"type"`
	LineNumbers []int            `json:"line_numbers,omitempty" yaml:"line_numbers,omitempty"`
}

// FileContext is an immutable snapshot of one analyzed file.
type FileContext struct {
	Path          string             `json:"path" yaml:"path"`
	RelativePath  string             `json:"relative_path" yaml:"relative_path"`
	Language      string             `json:"language" yaml:"language"`
	SizeBytes     int64              `json:"size_bytes" yaml:"size_bytes"`
	LineCount     int                `json:"line_count" yaml:"line_count"`
	LastModified  time.Time          `json:"last_modified" yaml:"last_modified"`
	ContentHash   string             `json:"content_hash" yaml:"content_hash"`
	Symbols       []symbols.Symbol   `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	Imports       []string           `json:"imports,omitempty" yaml:"imports,omitempty"`
	Exports       []string           `json:"exports,omitempty" yaml:"exports,omitempty"`
	Relationships []FileRelationship `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// DependencyType is the role a declared dependency plays.
type DependencyType string

const (
	Runtime     DependencyType = "runtime"
	Development DependencyType = "development"
	Build       DependencyType = "build"
	Optional    DependencyType = "optional"
)

// SourceKind says where a dependency declaration came from.
type SourceKind string

const (
	PackageManager SourceKind = "package_manager"
	System         SourceKind = "system"
	Manual         SourceKind = "manual"
)

// DependencySource names the origin of a dependency; Manager is set for
// PackageManager sources ("cargo", "npm", "pip", "go").
type DependencySource struct {
	Kind    SourceKind `json:"kind" yaml:"kind"`
	Manager string     `json:"manager,omitempty" yaml:"manager,omitempty"`
}

// Dependency is a third-party package declared in a manifest.
type Dependency struct {
	Name    string           `json:"name" yaml:"name"`
	Version string           `json:"version,omitempty" yaml:"version,omitempty"`
	Type    DependencyType   `json:"type" yaml:"type"`
	Source  DependencySource `json:"source" yaml:"source"`
}

// RepositoryStatus is the working tree state.
type RepositoryStatus struct {
	Modified  []string `json:"modified,omitempty" yaml:"modified,omitempty"`
	Untracked []string `json:"untracked,omitempty" yaml:"untracked,omitempty"`
	Staged    []string `json:"staged,omitempty" yaml:"staged,omitempty"`
	IsClean   bool     `json:"is_clean" yaml:"is_clean"`
}

// CommitInfo summarizes one commit.
type CommitInfo struct {
	Hash         string    `json:"hash" yaml:"hash"`
	Author       string    `json:"author" yaml:"author"`
	Message      string    `json:"message" yaml:"message"`
	Timestamp    time.Time `json:"timestamp" yaml:"timestamp"`
	FilesChanged []string  `json:"files_changed,omitempty" yaml:"files_changed,omitempty"`
}

// RepositoryInfo is version-control metadata for the analyzed root.
type RepositoryInfo struct {
	RootPath      string           `json:"root_path" yaml:"root_path"`
	CurrentBranch string           `json:"current_branch,omitempty" yaml:"current_branch,omitempty"`
	RemoteURL     string           `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`
	CommitCount   int              `json:"commit_count" yaml:"commit_count"`
	Status        RepositoryStatus `json:"status" yaml:"status"`
	RecentCommits []CommitInfo     `json:"recent_commits,omitempty" yaml:"recent_commits,omitempty"`
}

// ContextMetadata summarizes one analysis run.
type ContextMetadata struct {
	AnalysisID            string         `json:"analysis_id" yaml:"analysis_id"`
	AnalysisTimestamp     time.Time      `json:"analysis_timestamp" yaml:"analysis_timestamp"`
	TotalFiles            int            `json:"total_files" yaml:"total_files"`
	TotalLines            int            `json:"total_lines" yaml:"total_lines"`
	TotalSizeBytes        int64          `json:"total_size_bytes" yaml:"total_size_bytes"`
	Languages             map[string]int `json:"languages" yaml:"languages"`
	AnalysisDuration      time.Duration  `json:"analysis_duration" yaml:"analysis_duration"`
	IndexedSymbols        int            `json:"indexed_symbols" yaml:"indexed_symbols"`
	SemanticPatternsFound int            `json:"semantic_patterns_found" yaml:"semantic_patterns_found"`
	SemanticRelationships int            `json:"semantic_relationships" yaml:"semantic_relationships"`
	// SemanticStale is set when files changed after semantic analysis ran.
	SemanticStale bool `json:"semantic_stale,omitempty" yaml:"semantic_stale,omitempty"`
}

// CodebaseContext is the full result of analyzing a root directory.
type CodebaseContext struct {
	RootPath         string            `json:"root_path" yaml:"root_path"`
	Files            []FileContext     `json:"files" yaml:"files"`
	Symbols          *symbols.Index    `json:"symbols" yaml:"symbols"`
	Dependencies     []Dependency      `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	RepositoryInfo   *RepositoryInfo   `json:"repository_info,omitempty" yaml:"repository_info,omitempty"`
	SemanticAnalysis *SemanticAnalysis `json:"semantic_analysis,omitempty" yaml:"semantic_analysis,omitempty"`
	Metadata         ContextMetadata   `json:"metadata" yaml:"metadata"`
}

// FileIndex returns the position in Files of the file at path, which may be
// absolute or relative to RootPath, or -1.
func (cc *CodebaseContext) FileIndex(path string) int {
	clean := filepath.Clean(path)
	rel := filepath.ToSlash(clean)
	for i := range cc.Files {
		if cc.Files[i].Path == clean || cc.Files[i].RelativePath == rel {
			return i
		}
	}
	return -1
}

// SortFiles returns pointers into files ordered by path, leaving files as is.
func SortFiles(files []FileContext) []*FileContext {
	out := make([]*FileContext, len(files))
	for i := range files {
		out[i] = &files[i]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Recount refreshes the file, line, size, language and symbol counters in
// Metadata from the current Files and Symbols.
func (cc *CodebaseContext) Recount() {
	m := &cc.Metadata
	m.TotalFiles = len(cc.Files)
	m.TotalLines = 0
	m.TotalSizeBytes = 0
	m.Languages = make(map[string]int)
	for i := range cc.Files {
		f := &cc.Files[i]
		m.TotalLines += f.LineCount
		m.TotalSizeBytes += f.SizeBytes
		m.Languages[f.Language]++
	}
	m.IndexedSymbols = 0
	if cc.Symbols != nil {
		m.IndexedSymbols = cc.Symbols.Total()
	}
}
