package execution

import (
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/index/btree"
	"github.com/relstore/relstore/internal/record"
)

// TargetExpr computes one output column's new value from the row being
// updated (a stand-in for the bound target expressions a real planner would
// supply; spec's Non-goals place expression binding out of scope).
type TargetExpr func(old record.Tuple) record.Value

// Update pulls every row its child produces, deletes its index entries under
// the old key, writes the re-evaluated tuple through heap.Table.Update, then
// inserts index entries under the new key and the RID Update returned, and
// yields the number of rows updated. Grounded on update_executor.cpp. The
// heap write is in place when the new row fits the old slot, so the row keeps
// its RID; only a row that no longer fits is deleted and reinserted at a new
// RID.
type Update struct {
	child   Executor
	table   *heap.Table
	indexes []IndexTarget
	targets []TargetExpr

	finished bool
}

func NewUpdate(child Executor, table *heap.Table, indexes []IndexTarget, targets []TargetExpr) *Update {
	return &Update{child: child, table: table, indexes: indexes, targets: targets}
}

func (e *Update) Init() error {
	e.finished = false
	return e.child.Init()
}

func (e *Update) Next() (record.Tuple, bool, error) {
	if e.finished {
		return record.Tuple{}, false, nil
	}

	var count int64
	for {
		old, ok, err := e.child.Next()
		if err != nil {
			return record.Tuple{}, false, err
		}
		if !ok {
			break
		}

		newValues := make([]record.Value, len(e.targets))
		for i, expr := range e.targets {
			newValues[i] = expr(old)
		}

		for _, idx := range e.indexes {
			oldKey, err := idx.keyOf(old.Values)
			if err != nil {
				return record.Tuple{}, false, err
			}
			if err := idx.Tree.Delete(oldKey); err != nil && err != btree.ErrKeyNotFound {
				return record.Tuple{}, false, err
			}
		}

		newRID, err := e.table.Update(old.RID, newValues)
		if err != nil {
			return record.Tuple{}, false, err
		}

		for _, idx := range e.indexes {
			newKey, err := idx.keyOf(newValues)
			if err != nil {
				return record.Tuple{}, false, err
			}
			if _, err := idx.Tree.Insert(newKey, newRID); err != nil {
				return record.Tuple{}, false, err
			}
		}
		count++
	}

	e.finished = true
	return record.Tuple{Values: []record.Value{count}}, true, nil
}

func (e *Update) OutputSchema() record.Schema { return countSchema }
