// Package optimizer rewrites a plan.Node tree before plan.Build turns it
// into an internal/execution.Executor tree.
package optimizer

import "github.com/relstore/relstore/internal/plan"

// ApplySortLimitAsTopN rewrites a Limit whose sole child is a Sort into a
// single TopN node, avoiding materializing the full sorted result just to
// take its head. Grounded on sort_limit_as_topn.cpp's rule, scoped here (per
// the Open Question it leaves unresolved about recursion) to a single
// top-level check rather than a recursive plan search: a Sort nested deeper
// under a Limit than directly beneath it is left unrewritten, since the
// REPL never produces that shape.
func ApplySortLimitAsTopN(root plan.Node) plan.Node {
	limitNode, ok := root.(*plan.LimitNode)
	if !ok {
		return root
	}
	sortNode, ok := limitNode.Child.(*plan.SortNode)
	if !ok {
		return root
	}
	return &plan.TopNNode{
		Child: sortNode.Child,
		Keys:  sortNode.Keys,
		N:     limitNode.N,
	}
}

// Optimize runs every rewrite rule over root. There is only one rule today;
// the slice makes adding the next one mechanical.
func Optimize(root plan.Node) plan.Node {
	rules := []func(plan.Node) plan.Node{
		ApplySortLimitAsTopN,
	}
	for _, rule := range rules {
		root = rule(root)
	}
	return root
}
