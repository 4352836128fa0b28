package graph

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/HZeroxium/KAT-RBC/pkg/schema"
)

const (
	// DefaultMaxSequenceLength bounds how many operations one scenario chains.
	DefaultMaxSequenceLength = 10
	// DefaultMaxSequences bounds the total number of emitted scenarios.
	DefaultMaxSequences = 20
)

// Sequencer turns an ODG into a bounded collection of topologically valid
// operation sequences. The graph may be cyclic; traversal is protected by a
// branch-local visited set, so a node never repeats within one sequence but
// sibling branches may reuse it.
type Sequencer struct {
	maxLength int
	maxCount  int
	weights   map[string]float64
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithMaxLength overrides the per-sequence length bound.
func WithMaxLength(n int) SequencerOption {
	return func(s *Sequencer) {
		if n > 0 {
			s.maxLength = n
		}
	}
}

// WithMaxSequences overrides the global sequence count bound.
func WithMaxSequences(n int) SequencerOption {
	return func(s *Sequencer) {
		if n > 0 {
			s.maxCount = n
		}
	}
}

// WithEdgeWeights biases neighbor exploration order by persisted edge
// weights, keyed "src->dst". Heavier edges are explored first, so the
// bounded collection favors historically successful chains.
func WithEdgeWeights(weights map[string]float64) SequencerOption {
	return func(s *Sequencer) { s.weights = weights }
}

// NewSequencer creates a Sequencer with the default bounds.
func NewSequencer(opts ...SequencerOption) *Sequencer {
	s := &Sequencer{
		maxLength: DefaultMaxSequenceLength,
		maxCount:  DefaultMaxSequences,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate produces operation sequences from the graph. An empty node set
// yields an empty collection; this is not an error.
func (s *Sequencer) Generate(odg *schema.OperationDependencyGraph) schema.SequenceCollection {
	adjacency := s.buildAdjacency(odg)

	startNodes := findStartNodes(odg)
	if len(startNodes) == 0 {
		startNodes = odg.Nodes
	}

	var paths [][]string
	for _, start := range startNodes {
		branch := s.explore(adjacency, start, map[string]bool{}, nil)
		paths = append(paths, branch...)
		if len(paths) >= s.maxCount {
			paths = paths[:s.maxCount]
			break
		}
	}

	sequences := make([]schema.OperationSequence, 0, len(paths))
	for _, p := range paths {
		sequences = append(sequences, schema.OperationSequence{
			ID:         fmt.Sprintf("sequence-%s", uuid.New()),
			Operations: p,
		})
	}
	return schema.SequenceCollection{Sequences: sequences}
}

// buildAdjacency deduplicates repeated (src,dst) pairs and drops edges whose
// endpoints are missing from the node set. Self-loops are degenerate and
// never expanded, so they are excluded here.
func (s *Sequencer) buildAdjacency(odg *schema.OperationDependencyGraph) map[string][]string {
	known := make(map[string]bool, len(odg.Nodes))
	for _, n := range odg.Nodes {
		known[n] = true
	}

	adjacency := make(map[string][]string, len(odg.Nodes))
	seen := make(map[[2]string]bool, len(odg.Edges))
	for _, e := range odg.Edges {
		if !known[e.Src] || !known[e.Dst] || e.Src == e.Dst {
			continue
		}
		key := [2]string{e.Src, e.Dst}
		if seen[key] {
			continue
		}
		seen[key] = true
		adjacency[e.Src] = append(adjacency[e.Src], e.Dst)
	}

	if s.weights != nil {
		for src, neighbors := range adjacency {
			sortByWeightDesc(src, neighbors, s.weights)
		}
	}
	return adjacency
}

// findStartNodes returns nodes with no incoming edge.
func findStartNodes(odg *schema.OperationDependencyGraph) []string {
	isDst := make(map[string]bool, len(odg.Edges))
	for _, e := range odg.Edges {
		isDst[e.Dst] = true
	}
	var starts []string
	for _, n := range odg.Nodes {
		if !isDst[n] {
			starts = append(starts, n)
		}
	}
	return starts
}

// explore runs the depth-first expansion from node. The visited set and path
// are copied per branch: that is what guarantees no repeated operation within
// one sequence while siblings explored from other start points may reuse
// nodes. Every prefix of length >= 2 is recorded as its own sequence.
func (s *Sequencer) explore(adjacency map[string][]string, node string,
	visited map[string]bool, path []string) [][]string {

	path = append(append([]string(nil), path...), node)
	visited[node] = true

	var results [][]string
	if len(path) >= 2 {
		results = append(results, path)
	}

	if len(path) >= s.maxLength {
		return results
	}

	for _, neighbor := range adjacency[node] {
		if visited[neighbor] {
			continue
		}
		branchVisited := make(map[string]bool, len(visited))
		for k, v := range visited {
			branchVisited[k] = v
		}
		results = append(results, s.explore(adjacency, neighbor, branchVisited, path)...)
	}
	return results
}

// sortByWeightDesc orders neighbors by persisted edge weight, heaviest first.
// Insertion sort keeps equal-weight neighbors in their original order.
func sortByWeightDesc(src string, neighbors []string, weights map[string]float64) {
	weightOf := func(dst string) float64 {
		if w, ok := weights[src+"->"+dst]; ok {
			return w
		}
		return 1.0
	}
	for i := 1; i < len(neighbors); i++ {
		key := neighbors[i]
		kw := weightOf(key)
		j := i - 1
		for j >= 0 && weightOf(neighbors[j]) < kw {
			neighbors[j+1] = neighbors[j]
			j--
		}
		neighbors[j+1] = key
	}
}
