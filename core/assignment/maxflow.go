package assignment

// maxFlow computes the maximum flow from s to t with Edmonds–Karp:
// it repeatedly augments along a shortest path found by breadth-first search.
// The input network is left untouched; the returned network holds the residual capacities.
func maxFlow(g *Network, s, t Node) (int, *Network) {
	res := g.clone()
	src, snk := s.id(res.size), t.id(res.size)
	if src == snk {
		return 0, res
	}

	parent := make([]int, res.nodeCount()) // node id -> edge used to reach it
	queue := make([]int, 0, res.nodeCount())
	var flow int
	for {
		for i := range parent {
			parent[i] = -1
		}
		queue = append(queue[:0], src)
		found := false
		for head := 0; head < len(queue) && !found; head++ {
			u := queue[head]
			for _, e := range res.adj[u] {
				v := res.edges[e].to
				if res.edges[e].cap <= 0 || v == src || parent[v] != -1 {
					continue
				}
				parent[v] = e
				if v == snk {
					found = true
					break
				}
				queue = append(queue, v)
			}
		}
		if !found {
			return flow, res
		}

		// bottleneck
		aug := -1
		for v := snk; v != src; v = res.edges[parent[v]^1].to {
			if c := res.edges[parent[v]].cap; aug == -1 || c < aug {
				aug = c
			}
		}
		for v := snk; v != src; v = res.edges[parent[v]^1].to {
			res.edges[parent[v]].cap -= aug
			res.edges[parent[v]^1].cap += aug
		}
		flow += aug
	}
}
