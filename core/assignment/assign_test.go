package assignment

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hansini-nalla/pes-sub000/core"
)

func submitters(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("s%02d", i)
	}
	return ids
}

func TestAssign_feasible(t *testing.T) {
	for n := 2; n <= 12; n++ {
		for k := 1; k < n; k++ {
			t.Run(fmt.Sprintf("n=%d,k=%d", n, k), func(t *testing.T) {
				ids := submitters(n)
				res, err := Assign(Request{Submitters: ids, K: k})
				require.NoError(t, err)
				require.True(t, res.Feasible)
				require.Len(t, res.Pairs, n*k)

				evaluates := make(map[string]int)
				evaluated := make(map[string]int)
				seen := make(map[Pair]bool)
				for _, p := range res.Pairs {
					if p.Evaluator == p.Evaluatee {
						t.Fatalf("self pair %v", p)
					}
					if seen[p] {
						t.Fatalf("duplicated pair %v", p)
					}
					seen[p] = true
					evaluates[p.Evaluator]++
					evaluated[p.Evaluatee]++
				}
				for _, id := range ids {
					assert.Equal(t, k, evaluates[id], "%s evaluates", id)
					assert.Equal(t, k, evaluated[id], "%s is evaluated", id)
				}
			})
		}
	}
}

func TestAssign_example(t *testing.T) {
	res, err := Assign(Request{Submitters: []string{"ann", "bob", "cat", "dan", "eve"}, K: 2})
	require.NoError(t, err)
	assert.True(t, res.Feasible)
	assert.Len(t, res.Pairs, 10)
}

func TestAssign_deterministic(t *testing.T) {
	req := Request{Submitters: submitters(15), K: 4}
	first, err := Assign(req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Assign(req)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssign_invalidRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{name: "no submitters", req: Request{K: 1}},
		{name: "single submitter", req: Request{Submitters: []string{"a"}, K: 1}},
		{name: "k is zero", req: Request{Submitters: submitters(3), K: 0}},
		{name: "negative k", req: Request{Submitters: submitters(3), K: -2}},
		{name: "k equals n", req: Request{Submitters: submitters(3), K: 3}},
		{name: "k greater than n", req: Request{Submitters: submitters(3), K: 7}},
		{name: "duplicated submitter", req: Request{Submitters: []string{"a", "b", "a"}, K: 1}},
		{name: "blank submitter", req: Request{Submitters: []string{"a", " ", "c"}, K: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Assign(tt.req)
			if !core.IsInvalidRequest(err) {
				t.Fatalf("Assign() error = %v, want InvalidRequestError", err)
			}
			assert.Equal(t, Result{}, res)
		})
	}
}

func TestMaxFlow_doesNotMutateInput(t *testing.T) {
	g := buildNetwork(4, 2)
	before := make([]edge, len(g.edges))
	copy(before, g.edges)

	flow, residual := maxFlow(g, Source(), Sink())
	assert.Equal(t, 8, flow)
	assert.Equal(t, before, g.edges)
	assert.Equal(t, 0, residual.capacity(Source(), Evaluator(0)))
	assert.Equal(t, 2, g.capacity(Source(), Evaluator(0)))
}

func TestMaxFlow_bottleneck(t *testing.T) {
	// SRC -> E(0) (3) -> R(1) (1) -> SNK (5): limited by the middle edge
	g := newNetwork(2)
	g.addEdge(Source(), Evaluator(0), 3)
	g.addEdge(Evaluator(0), Evaluatee(1), 1)
	g.addEdge(Evaluatee(1), Sink(), 5)

	flow, residual := maxFlow(g, Source(), Sink())
	assert.Equal(t, 1, flow)
	assert.Equal(t, 2, residual.capacity(Source(), Evaluator(0)))
	assert.Equal(t, 0, residual.capacity(Evaluator(0), Evaluatee(1)))
	assert.Equal(t, 4, residual.capacity(Evaluatee(1), Sink()))
}

func TestMaxFlow_noPath(t *testing.T) {
	g := newNetwork(2)
	g.addEdge(Source(), Evaluator(0), 1)
	g.addEdge(Evaluatee(1), Sink(), 1)

	flow, _ := maxFlow(g, Source(), Sink())
	assert.Equal(t, 0, flow)
}

func TestNode_ids(t *testing.T) {
	n := 3
	tests := []struct {
		node Node
		id   int
		str  string
	}{
		{Source(), 0, "SRC"},
		{Sink(), 1, "SNK"},
		{Evaluator(0), 2, "E(0)"},
		{Evaluator(2), 4, "E(2)"},
		{Evaluatee(0), 5, "R(0)"},
		{Evaluatee(2), 7, "R(2)"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.id, tt.node.id(n))
			assert.Equal(t, tt.node, nodeOf(tt.id, n))
			assert.Equal(t, tt.str, tt.node.String())
		})
	}
}
