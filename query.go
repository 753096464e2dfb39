package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
	"github.com/phobologic/codectx/internal/toon"
)

func newSearchCmd(g *globals) *cobra.Command {
	var (
		typeNames []string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "search <query> [path]",
		Short: "Find symbols whose name contains query",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseSymbolTypes(typeNames)
			if err != nil {
				return err
			}
			s, err := g.open(cmd, args[1:])
			if err != nil {
				return err
			}
			defer s.close()

			cc, err := s.context(cmd.Context())
			if err != nil {
				return err
			}
			found := s.mgr.SearchSymbols(args[0], cc, types...)
			if len(found) == 0 {
				return noSymbolMatch(cc, args[0])
			}
			if limit > 0 && len(found) > limit {
				found = found[:limit]
			}
			return writeLine(cmd.OutOrStdout(), toon.Symbols(cc.RootPath, found))
		},
	}
	cmd.Flags().StringSliceVarP(&typeNames, "type", "t", nil, "restrict to symbol types (function, struct, class, ...)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of results")
	return cmd
}

func newRelatedCmd(g *globals) *cobra.Command {
	var typeNames []string
	cmd := &cobra.Command{
		Use:   "related <file> [path]",
		Short: "List the files a file is related to",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := parseRelationshipTypes(typeNames)
			if err != nil {
				return err
			}
			s, err := g.open(cmd, args[1:])
			if err != nil {
				return err
			}
			defer s.close()

			cc, err := s.context(cmd.Context())
			if err != nil {
				return err
			}
			file := args[0]
			if cc.FileIndex(file) < 0 {
				abs, err := filepath.Abs(file)
				if err != nil || cc.FileIndex(abs) < 0 {
					return fmt.Errorf("%s: not an analyzed file", file)
				}
				file = abs
			}
			related := s.mgr.FindRelatedFiles(file, cc, types...)
			return writeLine(cmd.OutOrStdout(), toon.Paths("related", cc.RootPath, related))
		},
	}
	cmd.Flags().StringSliceVarP(&typeNames, "type", "t", nil, "restrict to relationship types (imports, tests, ...)")
	return cmd
}

func newSuggestCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "suggest <query> [path]",
		Short: "Show improvement suggestions mentioning query",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd, args[1:])
			if err != nil {
				return err
			}
			defer s.close()
			s.cfg.DeepAnalysis = true

			cc, err := s.context(cmd.Context())
			if err != nil {
				return err
			}
			if cc.SemanticAnalysis == nil {
				return fmt.Errorf("semantic analysis unavailable for %s", cc.RootPath)
			}
			return writeLine(cmd.OutOrStdout(), toon.Suggestions(s.mgr.GetContextSuggestions(cc, args[0])))
		},
	}
}

func parseSymbolTypes(names []string) ([]symbols.Type, error) {
	var out []symbols.Type
	for _, n := range names {
		t, ok := symbols.ParseType(strings.TrimSpace(n))
		if !ok {
			return nil, fmt.Errorf("unknown symbol type %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseRelationshipTypes(names []string) ([]model.RelationshipType, error) {
	var out []model.RelationshipType
	for _, n := range names {
		t, ok := model.ParseRelationshipType(strings.ToLower(strings.TrimSpace(n)))
		if !ok {
			return nil, fmt.Errorf("unknown relationship type %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}

func writeLine(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}
