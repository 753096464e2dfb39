package model

import (
	"fmt"
	"strings"

	"github.com/phobologic/codectx/internal/symbols"
)

// PatternFamily groups related code patterns.
type PatternFamily string

const (
	NamingConventionFamily     PatternFamily = "naming_convention"
	ErrorHandlingFamily        PatternFamily = "error_handling"
	AsyncPatternFamily         PatternFamily = "async_pattern"
	TestingPatternFamily       PatternFamily = "testing_pattern"
	ImportOrganizationFamily   PatternFamily = "import_organization"
	ArchitecturalPatternFamily PatternFamily = "architectural_pattern"
)

// PatternType identifies a pattern by family and sub-label, e.g.
// naming_convention:snake_case. It encodes as "family:label" so it can key
// JSON and YAML maps.
type PatternType struct {
	Family PatternFamily
	Label  string
}

func (p PatternType) String() string {
	return string(p.Family) + ":" + p.Label
}

// MarshalText implements encoding.TextMarshaler.
func (p PatternType) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PatternType) UnmarshalText(b []byte) error {
	family, label, ok := strings.Cut(string(b), ":")
	if !ok || family == "" {
		return fmt.Errorf("invalid pattern type %q", b)
	}
	p.Family = PatternFamily(family)
	p.Label = label
	return nil
}

// MaxPatternExamples caps CodePattern.Examples.
const MaxPatternExamples = 5

// CodePattern is a recurring practice detected across the codebase.
// Confidence is Occurrences/Eligible.
type CodePattern struct {
	Type          PatternType `json:"type" yaml:"type"`
	Confidence    float64     `json:"confidence" yaml:"confidence"`
	Occurrences   int         `json:"occurrences" yaml:"occurrences"`
	Eligible      int         `json:"eligible" yaml:"eligible"`
	Examples      []string    `json:"examples,omitempty" yaml:"examples,omitempty"`
	FilesAffected []string    `json:"files_affected,omitempty" yaml:"files_affected,omitempty"`
}

// Direction describes how two files depend on each other.
type Direction string

const (
	OneWay        Direction = "one_way"
	Bidirectional Direction = "bidirectional"
	Circular      Direction = "circular"
)

// Coupling classifies the nature of a relationship.
type Coupling string

const (
	Tight    Coupling = "tight"
	Loose    Coupling = "loose"
	Cohesive Coupling = "cohesive"
	Utility  Coupling = "utility"
)

// SemanticRelationship is a FileRelationship with a strength and a
// coupling classification attached.
type SemanticRelationship struct {
	SourceFile string           `json:"source_file" yaml:"source_file"`
	TargetFile string           `json:"target_file" yaml:"target_file"`
	Type       RelationshipType `json:"type" yaml:"type"`
	Strength   float64          `json:"strength" yaml:"strength"`
	Direction  Direction        `json:"direction" yaml:"direction"`
	Coupling   Coupling         `json:"coupling" yaml:"coupling"`
}

// NamingInconsistency is a symbol whose name breaks its type's dominant
// convention.
type NamingInconsistency struct {
	SymbolName string       `json:"symbol_name" yaml:"symbol_name"`
	SymbolType symbols.Type `json:"symbol_type" yaml:"symbol_type"`
	FilePath   string       `json:"file_path" yaml:"file_path"`
	Line       int          `json:"line" yaml:"line"`
	Convention string       `json:"convention" yaml:"convention"`
	Expected   string       `json:"expected" yaml:"expected"`
	Suggestion string       `json:"suggestion" yaml:"suggestion"`
}

// NamingInsights summarizes naming-convention health.
type NamingInsights struct {
	DominantConvention string                  `json:"dominant_convention" yaml:"dominant_convention"`
	ConsistencyScore   float64                 `json:"consistency_score" yaml:"consistency_score"`
	ConventionByType   map[symbols.Type]string `json:"convention_by_type" yaml:"convention_by_type"`
	Inconsistencies    []NamingInconsistency   `json:"inconsistencies,omitempty" yaml:"inconsistencies,omitempty"`
	Analyzed           int                     `json:"analyzed" yaml:"analyzed"`
}

// ArchitecturalPattern is a catalog entry matched against file paths.
type ArchitecturalPattern struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Confidence  float64  `json:"confidence" yaml:"confidence"`
	Indicators  []string `json:"indicators" yaml:"indicators"`
}

// ModuleOrganization classifies the directory layout.
type ModuleOrganization string

const (
	Hierarchical       ModuleOrganization = "hierarchical"
	LibraryCentric     ModuleOrganization = "library-centric"
	ApplicationCentric ModuleOrganization = "application-centric"
	Flat               ModuleOrganization = "flat"
)

// FilePair is an ordered source/target pair.
type FilePair struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// DependencyHealth describes the file-level dependency graph.
type DependencyHealth struct {
	// CircularDependencies lists each strongly connected group of two or
	// more files, members sorted.
	CircularDependencies [][]string `json:"circular_dependencies,omitempty" yaml:"circular_dependencies,omitempty"`
	HighCouplingPairs    []FilePair `json:"high_coupling_pairs,omitempty" yaml:"high_coupling_pairs,omitempty"`
	IsolatedModules      []string   `json:"isolated_modules,omitempty" yaml:"isolated_modules,omitempty"`
	// OutDegree is the number of distinct files each file depends on.
	OutDegree map[string]int `json:"out_degree" yaml:"out_degree"`
	// DependencyDepth is the longest dependency chain reachable from each
	// file, counting a dependency cycle as a single step.
	DependencyDepth map[string]int `json:"dependency_depth" yaml:"dependency_depth"`
}

// CouplingAnalysis holds aggregate coupling and cohesion scores.
type CouplingAnalysis struct {
	OverallCoupling float64  `json:"overall_coupling" yaml:"overall_coupling"`
	CohesionScore   float64  `json:"cohesion_score" yaml:"cohesion_score"`
	Hotspots        []string `json:"hotspots,omitempty" yaml:"hotspots,omitempty"`
}

// RankedFile is a file with its PageRank score.
type RankedFile struct {
	Path string  `json:"path" yaml:"path"`
	Rank float64 `json:"rank" yaml:"rank"`
}

// ArchitecturalInsights describes structure above the file level.
type ArchitecturalInsights struct {
	DetectedPatterns   []ArchitecturalPattern `json:"detected_patterns,omitempty" yaml:"detected_patterns,omitempty"`
	ModuleOrganization ModuleOrganization     `json:"module_organization" yaml:"module_organization"`
	DependencyHealth   DependencyHealth       `json:"dependency_health" yaml:"dependency_health"`
	CouplingAnalysis   CouplingAnalysis       `json:"coupling_analysis" yaml:"coupling_analysis"`
	CentralFiles       []RankedFile           `json:"central_files,omitempty" yaml:"central_files,omitempty"`
}

// SuggestionType categorizes a ContextSuggestion.
type SuggestionType string

const (
	NamingConventionSuggestion         SuggestionType = "naming_convention"
	ErrorHandlingSuggestion            SuggestionType = "error_handling"
	ModuleOrganizationSuggestion       SuggestionType = "module_organization"
	TestingStrategySuggestion          SuggestionType = "testing_strategy"
	DocumentationImprovementSuggestion SuggestionType = "documentation_improvement"
	RefactoringOpportunitySuggestion   SuggestionType = "refactoring_opportunity"
)

// ContextSuggestion is an actionable recommendation derived from analysis.
type ContextSuggestion struct {
	Type            SuggestionType `json:"type" yaml:"type"`
	Description     string         `json:"description" yaml:"description"`
	Rationale       string         `json:"rationale" yaml:"rationale"`
	Confidence      float64        `json:"confidence" yaml:"confidence"`
	ApplicableFiles []string       `json:"applicable_files,omitempty" yaml:"applicable_files,omitempty"`
}

// SemanticAnalysis is the output of the semantic pipeline.
type SemanticAnalysis struct {
	Patterns      map[PatternType]CodePattern `json:"patterns" yaml:"patterns"`
	Relationships []SemanticRelationship      `json:"relationships,omitempty" yaml:"relationships,omitempty"`
	Naming        NamingInsights              `json:"naming" yaml:"naming"`
	Architecture  ArchitecturalInsights       `json:"architecture" yaml:"architecture"`
	Suggestions   []ContextSuggestion         `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}
