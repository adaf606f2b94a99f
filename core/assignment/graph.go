package assignment

import "fmt"

type nodeKind uint8

const (
	kindSource nodeKind = iota
	kindSink
	kindEvaluator
	kindEvaluatee
)

// Node identifies a vertex of the flow network: the source, the sink,
// or the evaluator/evaluatee side of the i-th submitter.
type Node struct {
	kind  nodeKind
	index int
}

func Source() Node         { return Node{kind: kindSource} }
func Sink() Node           { return Node{kind: kindSink} }
func Evaluator(i int) Node { return Node{kind: kindEvaluator, index: i} }
func Evaluatee(i int) Node { return Node{kind: kindEvaluatee, index: i} }

func (nd Node) String() string {
	switch nd.kind {
	case kindSource:
		return "SRC"
	case kindSink:
		return "SNK"
	case kindEvaluator:
		return fmt.Sprintf("E(%d)", nd.index)
	default:
		return fmt.Sprintf("R(%d)", nd.index)
	}
}

// id maps a node to its dense index in a network of n submitters:
// SRC=0, SNK=1, E(i)=2+i, R(i)=2+n+i.
func (nd Node) id(n int) int {
	switch nd.kind {
	case kindSource:
		return 0
	case kindSink:
		return 1
	case kindEvaluator:
		return 2 + nd.index
	default:
		return 2 + n + nd.index
	}
}

func nodeOf(id, n int) Node {
	switch {
	case id == 0:
		return Source()
	case id == 1:
		return Sink()
	case id < 2+n:
		return Evaluator(id - 2)
	default:
		return Evaluatee(id - 2 - n)
	}
}

type edge struct {
	to  int
	cap int // remaining capacity
}

// Network is a flow network over dense node indices.
// Edges are stored in pairs: edge 2i is a forward edge and 2i+1 its reverse,
// so the reverse of edge e is always e^1.
type Network struct {
	size    int // submitters
	edges   []edge
	adj     [][]int        // node id -> edge indices, insertion order
	forward map[[2]int]int // (from, to) node ids -> forward edge index
}

func newNetwork(size int) *Network {
	return &Network{
		size:    size,
		adj:     make([][]int, 2*size+2),
		forward: make(map[[2]int]int),
	}
}

func (g *Network) nodeCount() int { return len(g.adj) }

// addEdge adds from -> to with capacity c and its zero-capacity reverse.
// It returns the index of the forward edge.
func (g *Network) addEdge(from, to Node, c int) int {
	u, v := from.id(g.size), to.id(g.size)
	idx := len(g.edges)
	g.edges = append(g.edges, edge{to: v, cap: c}, edge{to: u, cap: 0})
	g.adj[u] = append(g.adj[u], idx)
	g.adj[v] = append(g.adj[v], idx+1)
	g.forward[[2]int{u, v}] = idx
	return idx
}

// clone copies the capacities. The adjacency lists and the edge index are never mutated after construction and are shared.
func (g *Network) clone() *Network {
	edges := make([]edge, len(g.edges))
	copy(edges, g.edges)
	return &Network{size: g.size, edges: edges, adj: g.adj, forward: g.forward}
}

// capacity returns the remaining capacity of the forward edge from -> to, or 0 when there is none.
func (g *Network) capacity(from, to Node) int {
	if e, ok := g.forward[[2]int{from.id(g.size), to.id(g.size)}]; ok {
		return g.edges[e].cap
	}
	return 0
}

// buildNetwork builds the assignment network of n submitters evaluating k peers each:
// SRC -> E(u) with capacity k, R(v) -> SNK with capacity k and E(u) -> R(v) with capacity 1 for every u != v.
func buildNetwork(n, k int) *Network {
	g := newNetwork(n)
	g.edges = make([]edge, 0, 2*(2*n+n*(n-1)))
	for u := 0; u < n; u++ {
		g.addEdge(Source(), Evaluator(u), k)
	}
	for u := 0; u < n; u++ {
		for v := 0; v < n; v++ {
			if u != v {
				g.addEdge(Evaluator(u), Evaluatee(v), 1)
			}
		}
	}
	for v := 0; v < n; v++ {
		g.addEdge(Evaluatee(v), Sink(), k)
	}
	return g
}
