// Package semantic mines code patterns, scores file relationships and
// assembles the semantic analysis of a codebase.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phobologic/codectx/internal/arch"
	"github.com/phobologic/codectx/internal/errs"
	"github.com/phobologic/codectx/internal/logging"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/naming"
)

// Analyzer runs the semantic pipeline: relationship scoring, pattern
// mining, naming analysis, architectural analysis and suggestions.
type Analyzer struct {
	log *slog.Logger
}

// NewAnalyzer returns an Analyzer that logs to log, or nowhere when nil.
func NewAnalyzer(log *slog.Logger) *Analyzer {
	return &Analyzer{log: logging.OrDiscard(log)}
}

// Analyze runs every stage over cc. It checks ctx between stages.
func (a *Analyzer) Analyze(ctx context.Context, cc *model.CodebaseContext) (*model.SemanticAnalysis, error) {
	start := time.Now()
	fail := func(stage string, err error) error {
		return errs.New(errs.AnalysisFailed, cc.RootPath, "semantic analysis: "+stage, err)
	}

	rels, err := ScoreRelationships(cc.Files)
	if err != nil {
		return nil, fail("relationships", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	patterns := DetectPatterns(cc.Files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	insights := naming.Analyze(cc.Files)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	archInsights, err := arch.Analyze(cc.Files, rels)
	if err != nil {
		return nil, fail("architecture", err)
	}
	for _, p := range archInsights.DetectedPatterns {
		cp := architecturalPattern(cc.Files, p)
		patterns[cp.Type] = cp
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sa := &model.SemanticAnalysis{
		Patterns:      patterns,
		Relationships: rels,
		Naming:        insights,
		Architecture:  archInsights,
		Suggestions:   Suggestions(cc.Files, patterns, insights, archInsights),
	}
	a.log.Info("semantic analysis complete",
		"root", cc.RootPath,
		"patterns", len(sa.Patterns),
		"relationships", len(sa.Relationships),
		"suggestions", len(sa.Suggestions),
		"duration", time.Since(start))
	return sa, nil
}

// architecturalPattern records a detected catalog entry as a CodePattern
// whose population is the catalog's indicator keywords.
func architecturalPattern(files []model.FileContext, p model.ArchitecturalPattern) model.CodePattern {
	t := newTally(model.ArchitecturalPatternFamily, p.Name)
	for _, pat := range arch.Catalog {
		if pat.Name == p.Name {
			t.eligible = len(pat.Indicators)
		}
	}
	t.matches = len(p.Indicators)
	for _, ind := range p.Indicators {
		if len(t.examples) < model.MaxPatternExamples {
			t.examples = append(t.examples, fmt.Sprintf("indicator %q", ind))
		}
	}
	for _, f := range model.SortFiles(files) {
		if arch.PathMentions(f.RelativePath, p.Indicators) {
			t.files[f.Path] = struct{}{}
		}
	}
	return t.pattern()
}
