package semantic

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phobologic/codectx/internal/discover"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

// Suggestion thresholds.
const (
	namingSuggestBelow   = 0.8
	errorSuggestBelow    = 0.6
	testsSuggestBelow    = 0.5
	docsSuggestBelow     = 0.5
	flatSuggestFileCount = 20
)

// documented lists the symbol types whose public definitions should carry
// documentation.
var documented = map[symbols.Type]struct{}{
	symbols.Function:  {},
	symbols.Method:    {},
	symbols.Struct:    {},
	symbols.Class:     {},
	symbols.Interface: {},
	symbols.Trait:     {},
	symbols.Enum:      {},
}

// Suggestions derives actionable recommendations from the other analysis
// results. Each rule contributes at most one suggestion, except cycles
// and hotspots which contribute one per finding.
func Suggestions(
	files []model.FileContext,
	patterns map[model.PatternType]model.CodePattern,
	insights model.NamingInsights,
	arch model.ArchitecturalInsights,
) []model.ContextSuggestion {
	var out []model.ContextSuggestion

	if insights.Analyzed > 0 && insights.ConsistencyScore < namingSuggestBelow {
		var paths []string
		for _, inc := range insights.Inconsistencies {
			paths = append(paths, inc.FilePath)
		}
		out = append(out, model.ContextSuggestion{
			Type:        model.NamingConventionSuggestion,
			Description: "Improve naming consistency across the codebase",
			Rationale: fmt.Sprintf("Naming consistency score is %.2f; %d symbols break their type's dominant convention",
				insights.ConsistencyScore, len(insights.Inconsistencies)),
			Confidence:      1 - insights.ConsistencyScore,
			ApplicableFiles: uniqueSorted(paths),
		})
	}

	errType := model.PatternType{Family: model.ErrorHandlingFamily, Label: LabelRustResult}
	if p, ok := patterns[errType]; ok && p.Confidence < errorSuggestBelow {
		out = append(out, model.ContextSuggestion{
			Type:            model.ErrorHandlingSuggestion,
			Description:     "Standardize error handling on Result return types",
			Rationale:       fmt.Sprintf("Only %d of %d Rust functions return a Result", p.Occurrences, p.Eligible),
			Confidence:      0.8,
			ApplicableFiles: p.FilesAffected,
		})
	}

	if len(files) > 0 {
		var tests int
		var nonTest []string
		for i := range files {
			if discover.IsTestFile(files[i].RelativePath) {
				tests++
			} else {
				nonTest = append(nonTest, files[i].Path)
			}
		}
		coverage := float64(tests) / float64(len(files))
		if coverage < testsSuggestBelow {
			out = append(out, model.ContextSuggestion{
				Type:            model.TestingStrategySuggestion,
				Description:     "Increase test coverage for better code reliability",
				Rationale:       fmt.Sprintf("Test files make up %.0f%% of the codebase", coverage*100),
				Confidence:      0.9,
				ApplicableFiles: uniqueSorted(nonTest),
			})
		}
	}

	if s, ok := docsSuggestion(files); ok {
		out = append(out, s)
	}

	if arch.ModuleOrganization == model.Flat && len(files) > flatSuggestFileCount {
		out = append(out, model.ContextSuggestion{
			Type:        model.ModuleOrganizationSuggestion,
			Description: "Group related files into modules",
			Rationale:   fmt.Sprintf("%d files share a flat layout with no library or binary structure", len(files)),
			Confidence:  0.6,
		})
	}

	for _, cycle := range arch.DependencyHealth.CircularDependencies {
		out = append(out, model.ContextSuggestion{
			Type:            model.RefactoringOpportunitySuggestion,
			Description:     "Break the circular dependency between " + strings.Join(baseNames(cycle), ", "),
			Rationale:       fmt.Sprintf("%d files depend on each other in a cycle", len(cycle)),
			Confidence:      0.85,
			ApplicableFiles: cycle,
		})
	}

	for _, h := range arch.CouplingAnalysis.Hotspots {
		out = append(out, model.ContextSuggestion{
			Type:            model.RefactoringOpportunitySuggestion,
			Description:     "Reduce coupling in " + baseName(h),
			Rationale:       "The file sources many strong relationships and is a coupling hotspot",
			Confidence:      0.7,
			ApplicableFiles: []string{h},
		})
	}

	return out
}

func docsSuggestion(files []model.FileContext) (model.ContextSuggestion, bool) {
	var public, withDocs int
	var missing []string
	for i := range files {
		for _, s := range files[i].Symbols {
			if _, ok := documented[s.Type]; !ok || s.Visibility != symbols.Public {
				continue
			}
			public++
			if strings.TrimSpace(s.Documentation) != "" {
				withDocs++
			} else {
				missing = append(missing, files[i].Path)
			}
		}
	}
	if public == 0 {
		return model.ContextSuggestion{}, false
	}
	coverage := float64(withDocs) / float64(public)
	if coverage >= docsSuggestBelow {
		return model.ContextSuggestion{}, false
	}
	return model.ContextSuggestion{
		Type:            model.DocumentationImprovementSuggestion,
		Description:     "Document public APIs",
		Rationale:       fmt.Sprintf("%d of %d public definitions have documentation", withDocs, public),
		Confidence:      1 - coverage,
		ApplicableFiles: uniqueSorted(missing),
	}, true
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	j := 0
	for i := range out {
		if i == 0 || out[i] != out[i-1] {
			out[j] = out[i]
			j++
		}
	}
	return out[:j]
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

func baseNames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = baseName(p)
	}
	return out
}
