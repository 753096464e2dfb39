// Package arch derives architectural insights from file paths and semantic
// relationships: catalog patterns, module organization, dependency health
// and coupling.
package arch

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/phobologic/codectx/internal/discover"
	"github.com/phobologic/codectx/internal/graph"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/naming"
)

// Pattern is a catalog entry. It is detected when at least half of its
// indicator keywords name a path segment somewhere in the codebase.
type Pattern struct {
	Name        string
	Description string
	Indicators  []string
}

// Catalog lists the architectural patterns checked by Analyze.
var Catalog = []Pattern{
	{
		Name:        "MVC",
		Description: "Model-View-Controller separation of data, presentation and request handling",
		Indicators:  []string{"model", "view", "controller"},
	},
	{
		Name:        "Layered",
		Description: "Presentation, service and persistence layers stacked on one another",
		Indicators:  []string{"api", "service", "persistence", "presentation"},
	},
	{
		Name:        "Hexagonal",
		Description: "Domain core isolated behind ports and adapters",
		Indicators:  []string{"domain", "port", "adapter", "core"},
	},
	{
		Name:        "Repository",
		Description: "Data access encapsulated in repository types over entities",
		Indicators:  []string{"repository", "entity", "store"},
	},
}

// Thresholds.
const (
	detectThreshold      = 0.5
	hierarchicalDepth    = 4
	highCouplingStrength = 0.8
	strongStrength       = 0.7
	hotspotMin           = 3
	centralFiles         = 10
)

// Analyze computes ArchitecturalInsights for files given their scored
// relationships.
func Analyze(files []model.FileContext, rels []model.SemanticRelationship) (model.ArchitecturalInsights, error) {
	rel := make([]string, len(files))
	abs := make([]string, len(files))
	for i := range files {
		rel[i] = files[i].RelativePath
		abs[i] = files[i].Path
	}

	health, g, err := DependencyHealth(abs, rels)
	if err != nil {
		return model.ArchitecturalInsights{}, err
	}
	return model.ArchitecturalInsights{
		DetectedPatterns:   DetectPatterns(rel),
		ModuleOrganization: Organization(rel),
		DependencyHealth:   health,
		CouplingAnalysis:   Coupling(rels),
		CentralFiles:       g.Rank(centralFiles),
	}, nil
}

// DetectPatterns matches Catalog against slash-separated relative paths.
// Results are ordered by confidence, then name.
func DetectPatterns(paths []string) []model.ArchitecturalPattern {
	tokens := make(map[string]struct{})
	for _, p := range paths {
		for _, t := range pathTokens(p) {
			tokens[t] = struct{}{}
		}
	}

	var out []model.ArchitecturalPattern
	for _, pat := range Catalog {
		var found []string
		for _, ind := range pat.Indicators {
			if _, ok := tokens[ind]; ok {
				found = append(found, ind)
			}
		}
		conf := float64(len(found)) / float64(len(pat.Indicators))
		if len(found) == 0 || conf < detectThreshold {
			continue
		}
		out = append(out, model.ArchitecturalPattern{
			Name:        pat.Name,
			Description: pat.Description,
			Confidence:  conf,
			Indicators:  found,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// pathTokens splits a path into lower-case singular words: directory and
// file names are split at separators and case changes, so
// "src/UserControllers/list_views.py" gives src, user, controller, list,
// view, py.
func pathTokens(p string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(p, func(r rune) bool {
		return r == '/' || r == '.' || r == '_' || r == '-'
	}) {
		for _, w := range naming.Words(part) {
			out = append(out, singular(strings.ToLower(w)))
		}
	}
	return out
}

// PathMentions reports whether any of keywords names a segment of p.
func PathMentions(p string, keywords []string) bool {
	for _, t := range pathTokens(p) {
		for _, k := range keywords {
			if t == k {
				return true
			}
		}
	}
	return false
}

func singular(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 4:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 3:
		return w[:len(w)-1]
	}
	return w
}

// Organization classifies the layout of slash-separated relative paths.
func Organization(paths []string) model.ModuleOrganization {
	var lib, bin, maxDepth int
	for _, p := range paths {
		if d := strings.Count(p, "/"); d > maxDepth {
			maxDepth = d
		}
		switch {
		case discover.IsTestFile(p):
		case isBinary(p):
			bin++
		case isLibrary(p):
			lib++
		}
	}
	switch {
	case maxDepth > hierarchicalDepth:
		return model.Hierarchical
	case lib > bin:
		return model.LibraryCentric
	case bin > 0:
		return model.ApplicationCentric
	}
	return model.Flat
}

func isBinary(p string) bool {
	switch path.Base(p) {
	case "main.rs", "main.go", "main.py", "__main__.py", "main.js", "main.ts", "cli.js", "cli.ts":
		return true
	}
	return hasSegment(p, "bin") || hasSegment(p, "cmd")
}

func isLibrary(p string) bool {
	switch path.Base(p) {
	case "lib.rs", "__init__.py", "index.js", "index.ts", "mod.rs":
		return true
	}
	return hasSegment(p, "src") || hasSegment(p, "lib") || hasSegment(p, "pkg") || hasSegment(p, "internal")
}

// hasSegment reports whether seg is a directory component of p.
func hasSegment(p, seg string) bool {
	dir := path.Dir(p)
	if dir == "." {
		return false
	}
	for _, s := range strings.Split(dir, "/") {
		if s == seg {
			return true
		}
	}
	return false
}

// DependencyHealth folds rels into a graph over paths and reports cycles,
// high-coupling pairs, isolated files, out-degree and transitive depth. The
// graph is returned for ranking.
func DependencyHealth(paths []string, rels []model.SemanticRelationship) (model.DependencyHealth, *graph.Graph, error) {
	g := graph.FromRelationships(paths, rels)

	cycles, err := g.Cycles()
	if err != nil {
		return model.DependencyHealth{}, nil, fmt.Errorf("detecting cycles: %w", err)
	}
	depth, err := g.Depth()
	if err != nil {
		return model.DependencyHealth{}, nil, fmt.Errorf("computing depth: %w", err)
	}
	outDegree := g.OutDegree()

	seen := make(map[model.FilePair]struct{})
	var pairs []model.FilePair
	for _, r := range rels {
		if r.Strength <= highCouplingStrength || r.Coupling != model.Tight {
			continue
		}
		p := model.FilePair{Source: r.SourceFile, Target: r.TargetFile}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Source != pairs[j].Source {
			return pairs[i].Source < pairs[j].Source
		}
		return pairs[i].Target < pairs[j].Target
	})

	var isolated []string
	for _, n := range g.Nodes() {
		if outDegree[n] == 0 {
			isolated = append(isolated, n)
		}
	}

	return model.DependencyHealth{
		CircularDependencies: cycles,
		HighCouplingPairs:    pairs,
		IsolatedModules:      isolated,
		OutDegree:            outDegree,
		DependencyDepth:      depth,
	}, g, nil
}

// Coupling computes the share of strong and cohesive relationships and the
// files that source more than hotspotMin strong relationships.
func Coupling(rels []model.SemanticRelationship) model.CouplingAnalysis {
	if len(rels) == 0 {
		return model.CouplingAnalysis{}
	}
	var strong, cohesive int
	perSource := make(map[string]int)
	for _, r := range rels {
		if r.Strength > strongStrength {
			strong++
			perSource[r.SourceFile]++
		}
		if r.Coupling == model.Cohesive {
			cohesive++
		}
	}
	var hotspots []string
	for src, n := range perSource {
		if n > hotspotMin {
			hotspots = append(hotspots, src)
		}
	}
	sort.Strings(hotspots)
	total := float64(len(rels))
	return model.CouplingAnalysis{
		OverallCoupling: float64(strong) / total,
		CohesionScore:   float64(cohesive) / total,
		Hotspots:        hotspots,
	}
}
