package plan

import (
	"fmt"

	"github.com/relstore/relstore/internal/execution"
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/index/btree"
)

// Resolver opens the heap tables and indexes a plan tree's leaves name;
// internal/engine's DB implements it over its catalog and buffer pool so
// Build stays free of any global registry.
type Resolver interface {
	OpenTable(name string) (*heap.Table, error)
	OpenIndex(name string) (btree.Index, error)
}

// Build turns an (optimized) plan tree into an internal/execution.Executor
// tree, opening each leaf's heap table and index through tables.
func Build(n Node, tables Resolver) (execution.Executor, error) {
	switch t := n.(type) {
	case *SeqScanNode:
		tbl, err := tables.OpenTable(t.Table.Name)
		if err != nil {
			return nil, err
		}
		return execution.NewSeqScan(tbl, t.Schema), nil

	case *IndexScanNode:
		tbl, err := tables.OpenTable(t.Table.Name)
		if err != nil {
			return nil, err
		}
		idx, err := tables.OpenIndex(t.Index.Name)
		if err != nil {
			return nil, err
		}
		return execution.NewIndexScan(idx, tbl, t.Schema), nil

	case *SortNode:
		child, err := Build(t.Child, tables)
		if err != nil {
			return nil, err
		}
		return execution.NewSort(child, t.Keys), nil

	case *LimitNode:
		child, err := Build(t.Child, tables)
		if err != nil {
			return nil, err
		}
		return execution.NewLimit(child, t.N), nil

	case *TopNNode:
		child, err := Build(t.Child, tables)
		if err != nil {
			return nil, err
		}
		return execution.NewTopN(child, t.Keys, t.N), nil

	case *NestedLoopJoinNode:
		left, err := Build(t.Left, tables)
		if err != nil {
			return nil, err
		}
		right, err := Build(t.Right, tables)
		if err != nil {
			return nil, err
		}
		return execution.NewNestedLoopJoin(left, right, t.Pred, t.LeftOuter), nil

	case *HashJoinNode:
		left, err := Build(t.Left, tables)
		if err != nil {
			return nil, err
		}
		right, err := Build(t.Right, tables)
		if err != nil {
			return nil, err
		}
		return execution.NewHashJoin(left, right, t.LeftKeyFn, t.RightKeyFn, t.LeftOuter), nil

	case *AggregationNode:
		child, err := Build(t.Child, tables)
		if err != nil {
			return nil, err
		}
		return execution.NewAggregation(child, t.GetGroupBy, t.GroupByLen, t.Aggs, t.Schema), nil

	case *InsertNode:
		child, err := Build(t.Child, tables)
		if err != nil {
			return nil, err
		}
		tbl, err := tables.OpenTable(t.Table.Name)
		if err != nil {
			return nil, err
		}
		return execution.NewInsert(child, tbl, t.Indexes), nil

	case *DeleteNode:
		child, err := Build(t.Child, tables)
		if err != nil {
			return nil, err
		}
		tbl, err := tables.OpenTable(t.Table.Name)
		if err != nil {
			return nil, err
		}
		return execution.NewDelete(child, tbl, t.Indexes), nil

	case *UpdateNode:
		child, err := Build(t.Child, tables)
		if err != nil {
			return nil, err
		}
		tbl, err := tables.OpenTable(t.Table.Name)
		if err != nil {
			return nil, err
		}
		return execution.NewUpdate(child, tbl, t.Indexes, t.Targets), nil

	default:
		return nil, fmt.Errorf("plan: unsupported node type %T", n)
	}
}
