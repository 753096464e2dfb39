package semantic

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/phobologic/codectx/internal/extract"
	"github.com/phobologic/codectx/internal/model"
	"github.com/phobologic/codectx/internal/symbols"
)

func TestStrengthAndCouplingTables(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ      model.RelationshipType
		strength float64
		coupling model.Coupling
	}{
		{model.Imports, 0.8, model.Utility},
		{model.Extends, 0.9, model.Tight},
		{model.Implements, 0.9, model.Tight},
		{model.References, 0.6, model.Cohesive},
		{model.Tests, 0.7, model.Loose},
		{model.Documentation, 0.3, model.Loose},
	}
	for _, tc := range tests {
		if got := Strength(tc.typ); got != tc.strength {
			t.Errorf("Strength(%s) = %f, want %f", tc.typ, got, tc.strength)
		}
		if got := CouplingOf(tc.typ); got != tc.coupling {
			t.Errorf("CouplingOf(%s) = %s, want %s", tc.typ, got, tc.coupling)
		}
	}
}

func imports(target string) model.FileRelationship {
	return model.FileRelationship{TargetFile: target, Type: model.Imports, LineNumbers: []int{1}}
}

func TestScoreRelationshipsDirection(t *testing.T) {
	t.Parallel()

	files := []model.FileContext{
		{Path: "/r/a.rs", Relationships: []model.FileRelationship{imports("/r/b.rs")}},
		{Path: "/r/b.rs", Relationships: []model.FileRelationship{imports("/r/a.rs")}},
		{Path: "/r/c.rs", Relationships: []model.FileRelationship{imports("/r/d.rs")}},
		{Path: "/r/d.rs", Relationships: []model.FileRelationship{imports("/r/e.rs")}},
		{Path: "/r/e.rs", Relationships: []model.FileRelationship{imports("/r/c.rs"), imports("/r/f.rs")}},
		{Path: "/r/f.rs", Relationships: []model.FileRelationship{
			{TargetFile: "/r/f.rs", Type: model.Implements, LineNumbers: []int{3}},
		}},
	}

	rels, err := ScoreRelationships(files)
	if err != nil {
		t.Fatalf("ScoreRelationships: %v", err)
	}
	want := map[[2]string]model.Direction{
		{"/r/a.rs", "/r/b.rs"}: model.Bidirectional,
		{"/r/b.rs", "/r/a.rs"}: model.Bidirectional,
		{"/r/c.rs", "/r/d.rs"}: model.Circular,
		{"/r/d.rs", "/r/e.rs"}: model.Circular,
		{"/r/e.rs", "/r/c.rs"}: model.Circular,
		{"/r/e.rs", "/r/f.rs"}: model.OneWay,
		{"/r/f.rs", "/r/f.rs"}: model.OneWay,
	}
	if len(rels) != len(want) {
		t.Fatalf("got %d relationships: %+v", len(rels), rels)
	}
	for _, r := range rels {
		if d := want[[2]string{r.SourceFile, r.TargetFile}]; r.Direction != d {
			t.Errorf("%s -> %s direction = %s, want %s", r.SourceFile, r.TargetFile, r.Direction, d)
		}
	}
	if rels[len(rels)-1].Coupling != model.Tight || rels[len(rels)-1].Strength != 0.9 {
		t.Errorf("last relationship = %+v", rels[len(rels)-1])
	}
}

func sym(name string, typ symbols.Type, line int, sig string) symbols.Symbol {
	return symbols.Symbol{Name: name, Type: typ, Line: line, Signature: sig, Visibility: symbols.Public}
}

func TestDetectPatterns(t *testing.T) {
	t.Parallel()

	files := []model.FileContext{
		{
			Path: "/r/src/lib.rs", RelativePath: "src/lib.rs", Language: "rust",
			Symbols: []symbols.Symbol{
				sym("load", symbols.Function, 1, "pub fn load() -> Result<(), Error> {"),
				sym("fetch_all", symbols.Function, 5, "pub async fn fetch_all() -> Result<Vec<u8>, Error> {"),
				sym("helper", symbols.Function, 9, "fn helper() {"),
				sym("parseItem", symbols.Function, 12, "fn parseItem() {"),
			},
			Imports: []string{"use std::fs;", "use std::io;", "use serde::Deserialize;", "use crate::config;"},
		},
		{
			Path: "/r/src/lib_test.rs", RelativePath: "src/lib_test.rs", Language: "rust",
			Symbols: []symbols.Symbol{
				sym("it_loads", symbols.Function, 2, "#[test] fn it_loads() {"),
				sym("setup", symbols.Function, 6, "fn setup() {"),
			},
			Imports: []string{"use std::fs;", "use crate::load;", "use std::io;"},
		},
		{
			Path: "/r/app.py", RelativePath: "app.py", Language: "python",
			Symbols: []symbols.Symbol{
				sym("handler", symbols.Function, 1, "async def handler(req)"),
				sym("asyncio_helper", symbols.Function, 4, "def asyncio_helper()"),
			},
			Imports: []string{"import os", "import requests", "from . import util"},
		},
	}

	patterns := DetectPatterns(files)

	check := func(family model.PatternFamily, label string, occ, eligible int) model.CodePattern {
		t.Helper()
		p, ok := patterns[model.PatternType{Family: family, Label: label}]
		if !ok {
			t.Fatalf("missing pattern %s:%s in %v", family, label, patterns)
		}
		if p.Occurrences != occ || p.Eligible != eligible {
			t.Errorf("%s:%s = %d/%d, want %d/%d", family, label, p.Occurrences, p.Eligible, occ, eligible)
		}
		return p
	}

	snake := check(model.NamingConventionFamily, "snake_case", 7, 8)
	if len(snake.Examples) != model.MaxPatternExamples {
		t.Errorf("snake examples = %v", snake.Examples)
	}
	if snake.Examples[0] != "app.py:1 handler" {
		t.Errorf("examples not in path order: %v", snake.Examples)
	}
	if _, ok := patterns[model.PatternType{Family: model.NamingConventionFamily, Label: "camelCase"}]; !ok {
		t.Error("camelCase pattern missing; single-word names count for both conventions")
	}

	errp := check(model.ErrorHandlingFamily, LabelRustResult, 2, 6)
	if !reflect.DeepEqual(errp.FilesAffected, []string{"/r/src/lib.rs"}) {
		t.Errorf("rust_result files = %v", errp.FilesAffected)
	}
	check(model.AsyncPatternFamily, "rust_async", 1, 6)
	check(model.AsyncPatternFamily, "python_async", 1, 2)
	check(model.TestingPatternFamily, "rust_unit_tests", 1, 2)
	check(model.ImportOrganizationFamily, LabelGroupedImports, 2, 3)

	for pt, p := range patterns {
		if p.Confidence < 0 || p.Confidence > 1 || p.Occurrences > p.Eligible {
			t.Errorf("%s out of bounds: %+v", pt, p)
		}
	}
}

func TestDetectPatternsFloors(t *testing.T) {
	t.Parallel()

	var syms []symbols.Symbol
	syms = append(syms, sym("Run", symbols.Function, 1, "pub async fn Run()"))
	for i := range 10 {
		syms = append(syms, sym("Other", symbols.Function, i+2, "pub fn Other()"))
	}
	files := []model.FileContext{{Path: "/r/a.rs", RelativePath: "a.rs", Language: "rust", Symbols: syms}}

	patterns := DetectPatterns(files)
	if _, ok := patterns[model.PatternType{Family: model.AsyncPatternFamily, Label: "rust_async"}]; ok {
		t.Error("async pattern reported below the 10% floor")
	}
	if _, ok := patterns[model.PatternType{Family: model.NamingConventionFamily, Label: "snake_case"}]; ok {
		t.Error("snake_case reported without a majority")
	}
	if len(DetectPatterns(nil)) != 0 {
		t.Error("patterns from no files")
	}
}

func TestDetectPatternsRustImplMethods(t *testing.T) {
	t.Parallel()

	src := `pub struct Store {}

impl Store {
    pub fn load(&self) -> Result<u32, String> {
        Ok(1)
    }

    pub fn save(&self) -> Result<(), String> {
        Ok(())
    }

    pub fn BadName(&self) {}
}
`
	fc, err := extract.Source("/r/src/store.rs", "/r", []byte(src), time.Time{}, extract.Options{})
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	for _, s := range fc.Symbols {
		if s.Name == "load" && s.Type != symbols.Method {
			t.Fatalf("load extracted as %s, want method", s.Type)
		}
	}

	patterns := DetectPatterns([]model.FileContext{fc})
	p, ok := patterns[model.PatternType{Family: model.ErrorHandlingFamily, Label: LabelRustResult}]
	if !ok {
		t.Fatalf("rust_result missing for impl methods: %v", patterns)
	}
	if p.Occurrences != 2 || p.Eligible != 3 {
		t.Errorf("rust_result = %d/%d, want 2/3", p.Occurrences, p.Eligible)
	}
	snake, ok := patterns[model.PatternType{Family: model.NamingConventionFamily, Label: "snake_case"}]
	if !ok || snake.Eligible != 3 || snake.Occurrences != 2 {
		t.Errorf("snake_case over methods = %+v", snake)
	}
}

func TestContiguous(t *testing.T) {
	t.Parallel()

	tests := []struct {
		groups []int
		want   bool
	}{
		{[]int{groupStd, groupStd, groupExternal, groupInternal}, true},
		{[]int{groupInternal, groupStd}, true},
		{[]int{groupStd, groupInternal, groupStd}, false},
		{[]int{groupExternal}, true},
	}
	for _, tc := range tests {
		if got := contiguous(tc.groups); got != tc.want {
			t.Errorf("contiguous(%v) = %v, want %v", tc.groups, got, tc.want)
		}
	}
}

func TestImportGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		language, stmt string
		want           int
	}{
		{"rust", "use std::collections::HashMap;", groupStd},
		{"rust", "pub use crate::model::Item;", groupInternal},
		{"rust", "use super::util;", groupInternal},
		{"rust", "mod parser;", groupInternal},
		{"rust", "use tokio::runtime;", groupExternal},
		{"rust", "use ::serde;", groupExternal},
		{"python", "from __future__ import annotations", groupStd},
		{"python", "import os.path", groupStd},
		{"python", "from ..models import User", groupInternal},
		{"python", "import numpy as np", groupExternal},
		{"javascript", "import fs from 'node:fs';", groupStd},
		{"javascript", "const path = require(\"path\");", groupStd},
		{"typescript", "import { x } from './x';", groupInternal},
		{"typescript", "import React from 'react';", groupExternal},
		{"go", "import \"fmt\"", groupUnknown},
	}
	for _, tc := range tests {
		if got := importGroup(tc.language, tc.stmt); got != tc.want {
			t.Errorf("importGroup(%s, %q) = %d, want %d", tc.language, tc.stmt, got, tc.want)
		}
	}
}

func TestHasWord(t *testing.T) {
	t.Parallel()

	if !hasWord("export async function f()", "async") {
		t.Error("async not found")
	}
	if hasWord("function asyncHelper()", "async") {
		t.Error("async matched inside an identifier")
	}
	if !hasWord("pub async fn x()", "async fn") {
		t.Error("async fn not found")
	}
}

func TestSuggestions(t *testing.T) {
	t.Parallel()

	files := []model.FileContext{
		{Path: "/r/a.rs", RelativePath: "a.rs", Symbols: []symbols.Symbol{
			sym("Load", symbols.Function, 1, "pub fn Load()"),
		}},
		{Path: "/r/b.rs", RelativePath: "b.rs"},
		{Path: "/r/b_test.rs", RelativePath: "b_test.rs"},
	}
	patterns := map[model.PatternType]model.CodePattern{
		{Family: model.ErrorHandlingFamily, Label: LabelRustResult}: {
			Confidence: 0.25, Occurrences: 1, Eligible: 4, FilesAffected: []string{"/r/a.rs"},
		},
	}
	insights := model.NamingInsights{
		ConsistencyScore: 0.5,
		Analyzed:         4,
		Inconsistencies: []model.NamingInconsistency{
			{FilePath: "/r/b.rs"}, {FilePath: "/r/a.rs"}, {FilePath: "/r/a.rs"},
		},
	}
	archInsights := model.ArchitecturalInsights{
		ModuleOrganization: model.Flat,
		DependencyHealth: model.DependencyHealth{
			CircularDependencies: [][]string{{"/r/a.rs", "/r/b.rs"}},
		},
		CouplingAnalysis: model.CouplingAnalysis{Hotspots: []string{"/r/a.rs"}},
	}

	got := Suggestions(files, patterns, insights, archInsights)
	var types []model.SuggestionType
	for _, s := range got {
		types = append(types, s.Type)
		if s.Confidence < 0 || s.Confidence > 1 {
			t.Errorf("%s confidence %f out of range", s.Type, s.Confidence)
		}
	}
	want := []model.SuggestionType{
		model.NamingConventionSuggestion,
		model.ErrorHandlingSuggestion,
		model.TestingStrategySuggestion,
		model.DocumentationImprovementSuggestion,
		model.RefactoringOpportunitySuggestion,
		model.RefactoringOpportunitySuggestion,
	}
	if !reflect.DeepEqual(types, want) {
		t.Fatalf("suggestion types = %v, want %v", types, want)
	}
	if !reflect.DeepEqual(got[0].ApplicableFiles, []string{"/r/a.rs", "/r/b.rs"}) {
		t.Errorf("naming files = %v", got[0].ApplicableFiles)
	}
	if math.Abs(got[0].Confidence-0.5) > 1e-9 {
		t.Errorf("naming confidence = %f", got[0].Confidence)
	}
	if !reflect.DeepEqual(got[2].ApplicableFiles, []string{"/r/a.rs", "/r/b.rs"}) {
		t.Errorf("testing files = %v", got[2].ApplicableFiles)
	}
	if got[4].Description != "Break the circular dependency between a.rs, b.rs" {
		t.Errorf("cycle description = %q", got[4].Description)
	}
}

func TestSuggestionsHealthyCodebase(t *testing.T) {
	t.Parallel()

	files := []model.FileContext{
		{Path: "/r/a.rs", RelativePath: "a.rs"},
		{Path: "/r/a_test.rs", RelativePath: "a_test.rs"},
	}
	got := Suggestions(files, nil, model.NamingInsights{ConsistencyScore: 1}, model.ArchitecturalInsights{})
	if len(got) != 0 {
		t.Errorf("suggestions = %+v", got)
	}
}

func TestAnalyze(t *testing.T) {
	t.Parallel()

	sources := map[string]string{
		"/r/src/models/user.rs":     "use crate::views::page;\npub struct User {}\n",
		"/r/src/views/page.rs":      "use crate::models::user;\npub fn render() {}\n",
		"/r/src/views/page_test.rs": "#[test]\nfn renders() {}\n",
	}
	var files []model.FileContext
	for path, src := range sources {
		fc, err := extract.Source(path, "/r", []byte(src), time.Time{}, extract.Options{})
		if err != nil {
			t.Fatalf("Source(%s): %v", path, err)
		}
		files = append(files, fc)
	}
	cc := &model.CodebaseContext{RootPath: "/r", Files: files}

	sa, err := NewAnalyzer(nil).Analyze(context.Background(), cc)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, ok := sa.Patterns[model.PatternType{Family: model.ArchitecturalPatternFamily, Label: "MVC"}]; !ok {
		t.Errorf("MVC pattern missing from %v", sa.Patterns)
	}
	if _, ok := sa.Patterns[model.PatternType{Family: model.TestingPatternFamily, Label: "rust_unit_tests"}]; !ok {
		t.Errorf("rust_unit_tests missing from %v", sa.Patterns)
	}
	if sa.Naming.Analyzed == 0 {
		t.Error("naming analysis saw no symbols")
	}
}

func TestAnalyzeCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAnalyzer(nil).Analyze(ctx, &model.CodebaseContext{RootPath: "/r"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
