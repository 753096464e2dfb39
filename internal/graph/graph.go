// Package graph folds file relationships into a directed file graph and
// computes PageRank, strongly connected components and dependency depth.
package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"

	dgraph "github.com/dominikbraun/graph"

	"github.com/phobologic/codectx/internal/model"
)

// Graph is a directed multigraph over file paths. Edge weights count how
// many relationships connect the same ordered pair.
type Graph struct {
	nodes map[string]struct{}
	out   map[string]map[string]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		out:   make(map[string]map[string]int),
	}
}

// FromFiles builds the graph of every file in files, with an edge for each
// relationship whose target is another analyzed file. Self-edges and edges
// to paths outside files (such as the project root) are dropped.
func FromFiles(files []model.FileContext) *Graph {
	g := New()
	for i := range files {
		g.AddNode(files[i].Path)
	}
	for i := range files {
		f := &files[i]
		for _, r := range f.Relationships {
			if _, ok := g.nodes[r.TargetFile]; !ok {
				continue
			}
			w := len(r.LineNumbers)
			if w == 0 {
				w = 1
			}
			g.AddEdge(f.Path, r.TargetFile, w)
		}
	}
	return g
}

// FromRelationships builds the graph over paths with one edge per semantic
// relationship. Relationships touching a path outside paths are dropped.
func FromRelationships(paths []string, rels []model.SemanticRelationship) *Graph {
	g := New()
	for _, p := range paths {
		g.AddNode(p)
	}
	for _, r := range rels {
		_, srcOK := g.nodes[r.SourceFile]
		_, tgtOK := g.nodes[r.TargetFile]
		if srcOK && tgtOK {
			g.AddEdge(r.SourceFile, r.TargetFile, 1)
		}
	}
	return g
}

// AddNode adds path without edges.
func (g *Graph) AddNode(path string) {
	g.nodes[path] = struct{}{}
}

// AddEdge adds weight to the edge source→target. Self-edges only register
// the node.
func (g *Graph) AddEdge(source, target string, weight int) {
	g.AddNode(source)
	if source == target {
		return
	}
	g.AddNode(target)
	if weight <= 0 {
		weight = 1
	}
	targets := g.out[source]
	if targets == nil {
		targets = make(map[string]int)
		g.out[source] = targets
	}
	targets[target] += weight
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns every node, sorted.
func (g *Graph) Nodes() []string {
	return sortedKeys(g.nodes)
}

// Targets returns the distinct targets of source, sorted.
func (g *Graph) Targets(source string) []string {
	return sortedKeys(g.out[source])
}

// OutDegree returns the number of distinct targets for every node.
func (g *Graph) OutDegree() map[string]int {
	deg := make(map[string]int, len(g.nodes))
	for n := range g.nodes {
		deg[n] = len(g.out[n])
	}
	return deg
}

// Rank scores every node with PageRank, weighting edges by multiplicity,
// and returns nodes by descending rank then path. limit <= 0 returns all.
func (g *Graph) Rank(limit int) []model.RankedFile {
	if len(g.nodes) == 0 {
		return nil
	}

	outEdges := make(map[string][]string, len(g.out))
	outDegree := make(map[string]int, len(g.out))
	for src, targets := range g.out {
		for tgt, w := range targets {
			for range w {
				outEdges[src] = append(outEdges[src], tgt)
			}
			outDegree[src] += w
		}
	}

	var ranks map[string]float64
	if len(outEdges) == 0 {
		uniform := 1.0 / float64(len(g.nodes))
		ranks = make(map[string]float64, len(g.nodes))
		for n := range g.nodes {
			ranks[n] = uniform
		}
	} else {
		ranks = pageRank(g.nodes, outEdges, outDegree, 0.85, 100, 1e-6)
	}

	out := make([]model.RankedFile, 0, len(ranks))
	for n, r := range ranks {
		out = append(out, model.RankedFile{Path: n, Rank: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank > out[j].Rank
		}
		return out[i].Path < out[j].Path
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Components returns the strongly connected components, each sorted, ordered
// by their first member.
func (g *Graph) Components() ([][]string, error) {
	dg := dgraph.New(dgraph.StringHash, dgraph.Directed())
	for _, n := range g.Nodes() {
		if err := dg.AddVertex(n); err != nil {
			return nil, fmt.Errorf("adding vertex %s: %w", n, err)
		}
	}
	for _, src := range g.Nodes() {
		for _, tgt := range g.Targets(src) {
			if err := dg.AddEdge(src, tgt); err != nil && !errors.Is(err, dgraph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("adding edge %s -> %s: %w", src, tgt, err)
			}
		}
	}

	sccs, err := dgraph.StronglyConnectedComponents(dg)
	if err != nil {
		return nil, fmt.Errorf("computing components: %w", err)
	}
	for _, c := range sccs {
		sort.Strings(c)
	}
	sort.Slice(sccs, func(i, j int) bool { return sccs[i][0] < sccs[j][0] })
	return sccs, nil
}

// Cycles returns every strongly connected component with two or more
// members.
func (g *Graph) Cycles() ([][]string, error) {
	sccs, err := g.Components()
	if err != nil {
		return nil, err
	}
	var out [][]string
	for _, c := range sccs {
		if len(c) > 1 {
			out = append(out, c)
		}
	}
	return out, nil
}

// Depth returns, for every node, the length of the longest dependency chain
// starting there. Each cycle on the chain counts as a single step.
func (g *Graph) Depth() (map[string]int, error) {
	sccs, err := g.Components()
	if err != nil {
		return nil, err
	}

	comp := make(map[string]int, len(g.nodes))
	for i, c := range sccs {
		for _, n := range c {
			comp[n] = i
		}
	}

	cg := dgraph.New(dgraph.IntHash, dgraph.Directed(), dgraph.Acyclic())
	for i := range sccs {
		if err := cg.AddVertex(i); err != nil {
			return nil, fmt.Errorf("adding component %d: %w", i, err)
		}
	}
	for src, targets := range g.out {
		for tgt := range targets {
			a, b := comp[src], comp[tgt]
			if a == b {
				continue
			}
			if err := cg.AddEdge(a, b); err != nil && !errors.Is(err, dgraph.ErrEdgeAlreadyExists) {
				return nil, fmt.Errorf("adding component edge: %w", err)
			}
		}
	}

	order, err := dgraph.StableTopologicalSort(cg, func(a, b int) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("ordering components: %w", err)
	}
	adj, err := cg.AdjacencyMap()
	if err != nil {
		return nil, fmt.Errorf("reading condensation: %w", err)
	}

	compDepth := make([]int, len(sccs))
	for i := len(order) - 1; i >= 0; i-- {
		c := order[i]
		d := 0
		if len(sccs[c]) > 1 {
			d = 1
		}
		best := -1
		for next := range adj[c] {
			if compDepth[next] > best {
				best = compDepth[next]
			}
		}
		if best >= 0 {
			d += best + 1
		}
		compDepth[c] = d
	}

	depth := make(map[string]int, len(g.nodes))
	for n, c := range comp {
		depth[n] = compDepth[c]
	}
	return depth, nil
}

func pageRank(
	nodes map[string]struct{},
	outEdges map[string][]string,
	outDegree map[string]int,
	alpha float64,
	maxIter int,
	tol float64,
) map[string]float64 {
	n := len(nodes)
	if n == 0 {
		return nil
	}

	// Sorted iteration keeps the floating point sums identical across runs.
	order := sortedKeys(nodes)
	sources := sortedKeys(outEdges)

	rank := make(map[string]float64, n)
	initial := 1.0 / float64(n)
	for _, node := range order {
		rank[node] = initial
	}

	teleport := (1.0 - alpha) / float64(n)

	for iter := 0; iter < maxIter; iter++ {
		newRank := make(map[string]float64, n)

		// Dangling nodes spread their rank evenly.
		var danglingSum float64
		for _, node := range order {
			if outDegree[node] == 0 {
				danglingSum += rank[node]
			}
		}
		danglingContrib := alpha * danglingSum / float64(n)

		for _, node := range order {
			newRank[node] = teleport + danglingContrib
		}

		for _, src := range sources {
			deg := float64(outDegree[src])
			contrib := alpha * rank[src] / deg
			for _, tgt := range outEdges[src] {
				newRank[tgt] += contrib
			}
		}

		var diff float64
		for _, node := range order {
			diff += math.Abs(newRank[node] - rank[node])
		}

		rank = newRank

		if diff < tol {
			break
		}
	}

	return rank
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
