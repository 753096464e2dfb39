package semantic

import (
	"fmt"

	"github.com/phobologic/codectx/internal/graph"
	"github.com/phobologic/codectx/internal/model"
)

var strengths = map[model.RelationshipType]float64{
	model.Imports:       0.8,
	model.Extends:       0.9,
	model.Implements:    0.9,
	model.References:    0.6,
	model.Tests:         0.7,
	model.Documentation: 0.3,
}

var couplings = map[model.RelationshipType]model.Coupling{
	model.Imports:       model.Utility,
	model.Extends:       model.Tight,
	model.Implements:    model.Tight,
	model.References:    model.Cohesive,
	model.Tests:         model.Loose,
	model.Documentation: model.Loose,
}

// Strength returns the fixed semantic strength of a relationship type.
func Strength(t model.RelationshipType) float64 {
	return strengths[t]
}

// CouplingOf returns the coupling class of a relationship type.
func CouplingOf(t model.RelationshipType) model.Coupling {
	if c, ok := couplings[t]; ok {
		return c
	}
	return model.Loose
}

// ScoreRelationships turns every file relationship into a
// SemanticRelationship, visiting files in path order. Direction is
// Bidirectional when the target also points straight back at the source,
// Circular when both sit on a longer dependency cycle, and OneWay
// otherwise.
func ScoreRelationships(files []model.FileContext) ([]model.SemanticRelationship, error) {
	g := graph.FromFiles(files)
	cycles, err := g.Cycles()
	if err != nil {
		return nil, fmt.Errorf("scoring relationships: %w", err)
	}
	component := make(map[string]int)
	for i, c := range cycles {
		for _, n := range c {
			component[n] = i + 1
		}
	}

	var out []model.SemanticRelationship
	for _, f := range model.SortFiles(files) {
		for _, r := range f.Relationships {
			out = append(out, model.SemanticRelationship{
				SourceFile: f.Path,
				TargetFile: r.TargetFile,
				Type:       r.Type,
				Strength:   Strength(r.Type),
				Direction:  direction(g, component, f.Path, r.TargetFile),
				Coupling:   CouplingOf(r.Type),
			})
		}
	}
	return out, nil
}

func direction(g *graph.Graph, component map[string]int, source, target string) model.Direction {
	if source == target {
		return model.OneWay
	}
	for _, back := range g.Targets(target) {
		if back == source {
			return model.Bidirectional
		}
	}
	if c := component[source]; c != 0 && c == component[target] {
		return model.Circular
	}
	return model.OneWay
}
