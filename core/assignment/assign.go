// Package assignment decides whether every submitter of an exam can evaluate exactly k peers,
// and be evaluated by exactly k peers, without ever evaluating themselves.
package assignment

import (
	"fmt"
	"strings"

	"github.com/kat-co/vala"

	"github.com/hansini-nalla/pes-sub000/core"
)

type Pair struct {
	Evaluator string `json:"evaluator"`
	Evaluatee string `json:"evaluatee"`
}

type Request struct {
	Submitters []string `json:"submitters"`
	K          int      `json:"k"`
}

// Validate rejects requests no flow computation should ever see.
func (r Request) Validate() error {
	n := len(r.Submitters)
	err := vala.BeginValidation().Validate(
		atLeast(n, 2, "submitters count"),
		atLeast(r.K, 1, "k"),
		lessThan(r.K, n, "k", "the submitters count"),
		uniqueIdentifiers(r.Submitters),
	).Check()
	if err != nil {
		return core.NewInvalidRequestError(err.Error())
	}
	return nil
}

func atLeast(param, lower int, paramName string) vala.Checker {
	return func() (bool, string) {
		return param >= lower, fmt.Sprintf("parameter %s (%d) must be at least %d", paramName, param, lower)
	}
}

func lessThan(param, bound int, paramName, boundName string) vala.Checker {
	return func() (bool, string) {
		return param < bound, fmt.Sprintf("parameter %s (%d) must be less than %s (%d)", paramName, param, boundName, bound)
	}
}

func uniqueIdentifiers(ids []string) vala.Checker {
	return func() (bool, string) {
		seen := make(map[string]struct{}, len(ids))
		for i, id := range ids {
			if strings.TrimSpace(id) == "" {
				return false, fmt.Sprintf("submitters[%d] is blank", i)
			}
			if _, ok := seen[id]; ok {
				return false, fmt.Sprintf("submitter %q is duplicated", id)
			}
			seen[id] = struct{}{}
		}
		return true, ""
	}
}

type Result struct {
	Feasible bool   `json:"feasible"`
	Pairs    []Pair `json:"pairs"`
}

// Assign validates the request and computes a k-regular assignment with no self pair.
// An infeasible request is reported through Result.Feasible, never as an error.
// Pairs are ordered by evaluator then evaluatee, following the submitters order,
// so the same request always yields the same pairs.
func Assign(req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	n, k := len(req.Submitters), req.K
	flow, residual := maxFlow(buildNetwork(n, k), Source(), Sink())
	if flow != n*k {
		return Result{Feasible: false, Pairs: []Pair{}}, nil
	}
	return Result{Feasible: true, Pairs: extractPairs(residual, req.Submitters)}, nil
}

// extractPairs emits (u, v) for every E(u) -> R(v) edge saturated in the residual network.
func extractPairs(residual *Network, submitters []string) []Pair {
	n := residual.size
	pairs := make([]Pair, 0, len(residual.edges)/2)
	for u := 0; u < n; u++ {
		for _, e := range residual.adj[Evaluator(u).id(n)] {
			if e%2 != 0 || residual.edges[e].cap != 0 {
				continue
			}
			to := nodeOf(residual.edges[e].to, n)
			if to.kind != kindEvaluatee {
				continue
			}
			pairs = append(pairs, Pair{Evaluator: submitters[u], Evaluatee: submitters[to.index]})
		}
	}
	return pairs
}
