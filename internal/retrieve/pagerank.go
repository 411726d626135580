package retrieve

// PageRankOptions configures the personalized PageRank power iteration.
type PageRankOptions struct {
	Damping       float64
	MaxIterations int
	Tolerance     float64
}

// DefaultPageRankOptions returns the default iteration parameters.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{
		Damping:       0.85,
		MaxIterations: 20,
		Tolerance:     1e-6,
	}
}

// Graph is a sparse directed graph over chunk IDs. Cycles are fine; scores
// flow along explicit adjacency lists, never back-pointers.
type Graph struct {
	nodes    []int64
	nodeIdx  map[int64]int
	outEdges [][]edgeEntry
}

type edgeEntry struct {
	target int
	weight float64
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{nodeIdx: make(map[int64]int)}
}

// AddNode adds a node if absent and returns its index.
func (g *Graph) AddNode(id int64) int {
	if idx, ok := g.nodeIdx[id]; ok {
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, id)
	g.nodeIdx[id] = idx
	g.outEdges = append(g.outEdges, nil)
	return idx
}

// AddEdge adds a weighted directed edge, creating missing nodes.
func (g *Graph) AddEdge(from, to int64, weight float64) {
	fromIdx := g.AddNode(from)
	toIdx := g.AddNode(to)
	g.outEdges[fromIdx] = append(g.outEdges[fromIdx], edgeEntry{target: toIdx, weight: weight})
}

// NumNodes returns the node count.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// Personalized computes personalized PageRank with teleport probability
// proportional to the seed weights. Nodes without outgoing edges hand their
// mass back to the teleport distribution. The returned scores sum to 1 over
// the graph.
func (g *Graph) Personalized(seeds map[int64]float64, opts PageRankOptions) map[int64]float64 {
	n := len(g.nodes)
	if n == 0 || len(seeds) == 0 {
		return nil
	}
	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = 0.85
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 20
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}

	teleport := make([]float64, n)
	total := 0.0
	for id, w := range seeds {
		if idx, ok := g.nodeIdx[id]; ok && w > 0 {
			teleport[idx] += w
			total += w
		}
	}
	if total == 0 {
		return nil
	}
	for i := range teleport {
		teleport[i] /= total
	}

	outWeight := make([]float64, n)
	for i, edges := range g.outEdges {
		for _, e := range edges {
			outWeight[i] += e.weight
		}
	}

	scores := make([]float64, n)
	copy(scores, teleport)
	next := make([]float64, n)

	for iter := 0; iter < opts.MaxIterations; iter++ {
		for i := range next {
			next[i] = 0
		}

		dangling := 0.0
		for i, edges := range g.outEdges {
			if outWeight[i] == 0 {
				dangling += scores[i]
				continue
			}
			for _, e := range edges {
				next[e.target] += scores[i] * e.weight / outWeight[i]
			}
		}

		maxDiff := 0.0
		for i := range next {
			v := opts.Damping*(next[i]+dangling*teleport[i]) + (1-opts.Damping)*teleport[i]
			diff := v - scores[i]
			if diff < 0 {
				diff = -diff
			}
			if diff > maxDiff {
				maxDiff = diff
			}
			next[i] = v
		}
		scores, next = next, scores

		if maxDiff < opts.Tolerance {
			break
		}
	}

	out := make(map[int64]float64, n)
	for i, id := range g.nodes {
		out[id] = scores[i]
	}
	return out
}
