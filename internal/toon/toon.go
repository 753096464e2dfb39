// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/phobologic/codectx/internal/graph"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a CodebaseContext into TOON format. Files are listed by
// descending PageRank over their relationships.
func Encode(cc *model.CodebaseContext) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("repo: %s", encodeValue(filepath.Base(cc.RootPath))))
	parts = append(parts, fmt.Sprintf("root: %s", encodeValue(cc.RootPath)))
	if cc.RepositoryInfo != nil && cc.RepositoryInfo.CurrentBranch != "" {
		parts = append(parts, fmt.Sprintf("branch: %s", encodeValue(cc.RepositoryInfo.CurrentBranch)))
	}
	if cc.Metadata.SemanticStale {
		parts = append(parts, "stale: true")
	}

	byPath := make(map[string]*model.FileContext, len(cc.Files))
	for i := range cc.Files {
		byPath[cc.Files[i].Path] = &cc.Files[i]
	}
	ranked := graph.FromFiles(cc.Files).Rank(0)

	var fileRows [][]string
	for _, r := range ranked {
		f := byPath[r.Path]
		fileRows = append(fileRows, []string{
			f.RelativePath,
			f.Language,
			strconv.Itoa(f.LineCount),
			fmt.Sprintf("%.4f", r.Rank),
		})
	}
	parts = append(parts, formatTabular("files", []string{"path", "language", "lines", "rank"}, fileRows))

	var symbolRows [][]string
	for _, r := range ranked {
		f := byPath[r.Path]
		for j := range f.Symbols {
			s := &f.Symbols[j]
			symbolRows = append(symbolRows, []string{
				f.RelativePath,
				s.Name,
				string(s.Type),
				strconv.Itoa(s.Line),
				s.Signature,
			})
		}
	}
	parts = append(parts, formatTabular("symbols", []string{"file", "name", "type", "line", "signature"}, symbolRows))

	var relRows [][]string
	for _, r := range ranked {
		f := byPath[r.Path]
		for _, rel := range f.Relationships {
			relRows = append(relRows, []string{
				f.RelativePath,
				relative(cc.RootPath, rel.TargetFile),
				string(rel.Type),
				joinInts(rel.LineNumbers),
			})
		}
	}
	parts = append(parts, formatTabular("relationships", []string{"source", "target", "type", "lines"}, relRows))

	if len(cc.Dependencies) > 0 {
		var depRows [][]string
		for i := range cc.Dependencies {
			d := &cc.Dependencies[i]
			depRows = append(depRows, []string{d.Name, d.Version, string(d.Type), d.Source.Manager})
		}
		parts = append(parts, formatTabular("dependencies", []string{"name", "version", "type", "manager"}, depRows))
	}

	if sa := cc.SemanticAnalysis; sa != nil {
		parts = append(parts, encodeSemantic(cc.RootPath, sa)...)
	}

	return strings.Join(parts, "\n")
}

func encodeSemantic(root string, sa *model.SemanticAnalysis) []string {
	var parts []string

	patterns := make([]model.CodePattern, 0, len(sa.Patterns))
	for _, p := range sa.Patterns {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Confidence != patterns[j].Confidence {
			return patterns[i].Confidence > patterns[j].Confidence
		}
		return patterns[i].Type.String() < patterns[j].Type.String()
	})
	var patternRows [][]string
	for i := range patterns {
		p := &patterns[i]
		patternRows = append(patternRows, []string{
			p.Type.String(),
			fmt.Sprintf("%.2f", p.Confidence),
			strconv.Itoa(p.Occurrences),
			strconv.Itoa(p.Eligible),
		})
	}
	parts = append(parts, formatTabular("patterns", []string{"pattern", "confidence", "occurrences", "eligible"}, patternRows))

	arch := &sa.Architecture
	if arch.ModuleOrganization != "" {
		parts = append(parts, fmt.Sprintf("organization: %s", encodeValue(string(arch.ModuleOrganization))))
	}
	if len(arch.DependencyHealth.CircularDependencies) > 0 {
		var cycleRows [][]string
		for _, cycle := range arch.DependencyHealth.CircularDependencies {
			members := make([]string, len(cycle))
			for i, p := range cycle {
				members[i] = relative(root, p)
			}
			cycleRows = append(cycleRows, []string{strings.Join(members, " ")})
		}
		parts = append(parts, formatTabular("cycles", []string{"files"}, cycleRows))
	}

	if len(sa.Suggestions) > 0 {
		parts = append(parts, Suggestions(sa.Suggestions))
	}
	return parts
}

// Symbols encodes syms as a symbols table with paths relative to root.
func Symbols(root string, syms []symbols.Symbol) string {
	rows := make([][]string, 0, len(syms))
	for i := range syms {
		s := &syms[i]
		rows = append(rows, []string{
			relative(root, s.FilePath),
			s.Name,
			string(s.Type),
			strconv.Itoa(s.Line),
			s.Signature,
		})
	}
	return formatTabular("symbols", []string{"file", "name", "type", "line", "signature"}, rows)
}

// Paths encodes paths as a single-column table called name.
func Paths(name, root string, paths []string) string {
	rows := make([][]string, 0, len(paths))
	for _, p := range paths {
		rows = append(rows, []string{relative(root, p)})
	}
	return formatTabular(name, []string{"path"}, rows)
}

// Suggestions encodes sugs as a suggestions table.
func Suggestions(sugs []model.ContextSuggestion) string {
	rows := make([][]string, 0, len(sugs))
	for i := range sugs {
		s := &sugs[i]
		rows = append(rows, []string{
			string(s.Type),
			fmt.Sprintf("%.2f", s.Confidence),
			s.Description,
		})
	}
	return formatTabular("suggestions", []string{"type", "confidence", "description"}, rows)
}

// relative renders p relative to root when it lies beneath it.
func relative(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return p
	}
	return filepath.ToSlash(rel)
}

func joinInts(ns []int) string {
	s := make([]string, len(ns))
	for i, n := range ns {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, " ")
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
