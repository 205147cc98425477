// Package plan is a thin, builder-free plan tree: cmd/relshell constructs
// these nodes directly from its REPL commands (there is no SQL parser in
// this kernel), and internal/optimizer rewrites them before Build turns them
// into an internal/execution.Executor tree.
package plan

import (
	"github.com/relstore/relstore/internal/catalog"
	"github.com/relstore/relstore/internal/execution"
	"github.com/relstore/relstore/internal/record"
)

// Node is one node of a plan tree.
type Node interface {
	Children() []Node
	OutputSchema() record.Schema
}

// SeqScanNode scans a table's heap pages in physical order.
type SeqScanNode struct {
	Table  catalog.TableInfo
	Schema record.Schema
}

func (n *SeqScanNode) Children() []Node            { return nil }
func (n *SeqScanNode) OutputSchema() record.Schema { return n.Schema }

// IndexScanNode scans a table via one of its indexes in key order.
type IndexScanNode struct {
	Index  catalog.IndexInfo
	Table  catalog.TableInfo
	Schema record.Schema
}

func (n *IndexScanNode) Children() []Node            { return nil }
func (n *IndexScanNode) OutputSchema() record.Schema { return n.Schema }

// SortNode orders its child's rows by Keys (lexicographic, multi-criterion).
type SortNode struct {
	Child Node
	Keys  []execution.SortKey
}

func (n *SortNode) Children() []Node            { return []Node{n.Child} }
func (n *SortNode) OutputSchema() record.Schema { return n.Child.OutputSchema() }

// LimitNode passes through at most N of its child's rows.
type LimitNode struct {
	Child Node
	N     int
}

func (n *LimitNode) Children() []Node            { return []Node{n.Child} }
func (n *LimitNode) OutputSchema() record.Schema { return n.Child.OutputSchema() }

// TopNNode keeps only the N smallest rows by Keys without a separate sort
// pass; produced by the optimizer's Sort+Limit rewrite, never constructed
// directly by the REPL.
type TopNNode struct {
	Child Node
	Keys  []execution.SortKey
	N     int
}

func (n *TopNNode) Children() []Node            { return []Node{n.Child} }
func (n *TopNNode) OutputSchema() record.Schema { return n.Child.OutputSchema() }

// NestedLoopJoinNode joins Left and Right row-by-row via Pred.
type NestedLoopJoinNode struct {
	Left, Right Node
	Pred        execution.JoinPredicate
	LeftOuter   bool
	Schema      record.Schema
}

func (n *NestedLoopJoinNode) Children() []Node            { return []Node{n.Left, n.Right} }
func (n *NestedLoopJoinNode) OutputSchema() record.Schema { return n.Schema }

// HashJoinNode joins Left and Right on equality of their key extractors.
type HashJoinNode struct {
	Left, Right         Node
	LeftKeyFn, RightKeyFn execution.KeyExtractor
	LeftOuter           bool
	Schema              record.Schema
}

func (n *HashJoinNode) Children() []Node            { return []Node{n.Left, n.Right} }
func (n *HashJoinNode) OutputSchema() record.Schema { return n.Schema }

// AggregationNode groups Child's rows and computes Aggs per group.
type AggregationNode struct {
	Child      Node
	GetGroupBy func(record.Tuple) []record.Value
	GroupByLen int
	Aggs       []execution.AggExpr
	Schema     record.Schema
}

func (n *AggregationNode) Children() []Node            { return []Node{n.Child} }
func (n *AggregationNode) OutputSchema() record.Schema { return n.Schema }

// InsertNode writes Child's rows into Table and keeps Indexes in sync.
type InsertNode struct {
	Child   Node
	Table   catalog.TableInfo
	Indexes []execution.IndexTarget
}

func (n *InsertNode) Children() []Node            { return []Node{n.Child} }
func (n *InsertNode) OutputSchema() record.Schema { return execution.CountSchema() }

// DeleteNode removes Child's rows from Table and its Indexes.
type DeleteNode struct {
	Child   Node
	Table   catalog.TableInfo
	Indexes []execution.IndexTarget
}

func (n *DeleteNode) Children() []Node            { return []Node{n.Child} }
func (n *DeleteNode) OutputSchema() record.Schema { return execution.CountSchema() }

// UpdateNode re-evaluates Targets for each of Child's rows and writes the
// result back to Table and its Indexes.
type UpdateNode struct {
	Child   Node
	Table   catalog.TableInfo
	Indexes []execution.IndexTarget
	Targets []execution.TargetExpr
}

func (n *UpdateNode) Children() []Node            { return []Node{n.Child} }
func (n *UpdateNode) OutputSchema() record.Schema { return execution.CountSchema() }
