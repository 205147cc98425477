package execution

import (
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/index/btree"
	"github.com/relstore/relstore/internal/record"
)

// Delete pulls every row its child produces (typically a SeqScan or
// IndexScan filtered by a predicate upstream), removes it from the heap
// table, removes the matching entry from each secondary index, and yields a
// single output row: the number of rows deleted. Grounded on
// delete_executor.cpp.
type Delete struct {
	child   Executor
	table   *heap.Table
	indexes []IndexTarget

	finished bool
}

func NewDelete(child Executor, table *heap.Table, indexes []IndexTarget) *Delete {
	return &Delete{child: child, table: table, indexes: indexes}
}

func (e *Delete) Init() error {
	e.finished = false
	return e.child.Init()
}

func (e *Delete) Next() (record.Tuple, bool, error) {
	if e.finished {
		return record.Tuple{}, false, nil
	}

	var count int64
	for {
		tup, ok, err := e.child.Next()
		if err != nil {
			return record.Tuple{}, false, err
		}
		if !ok {
			break
		}

		if err := e.table.Delete(tup.RID); err != nil {
			return record.Tuple{}, false, err
		}
		for _, idx := range e.indexes {
			key, err := idx.keyOf(tup.Values)
			if err != nil {
				return record.Tuple{}, false, err
			}
			if err := idx.Tree.Delete(key); err != nil && err != btree.ErrKeyNotFound {
				return record.Tuple{}, false, err
			}
		}
		count++
	}

	e.finished = true
	return record.Tuple{Values: []record.Value{count}}, true, nil
}

func (e *Delete) OutputSchema() record.Schema { return countSchema }
