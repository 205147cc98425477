package execution

import (
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/record"
)

var countSchema = record.Schema{Cols: []record.Column{{Name: "count", Type: record.ColInt64}}}

// CountSchema is the single-column int64 schema Insert, Update, and Delete
// all report as their output.
func CountSchema() record.Schema { return countSchema }

// Insert pulls every row its child produces, writes it to the heap table,
// updates each secondary index, and yields exactly one output row: the
// number of rows inserted. Grounded on insert_executor.cpp.
type Insert struct {
	child   Executor
	table   *heap.Table
	indexes []IndexTarget

	finished bool
}

func NewInsert(child Executor, table *heap.Table, indexes []IndexTarget) *Insert {
	return &Insert{child: child, table: table, indexes: indexes}
}

func (e *Insert) Init() error {
	e.finished = false
	return e.child.Init()
}

func (e *Insert) Next() (record.Tuple, bool, error) {
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

		rid, err := e.table.Insert(tup.Values)
		if err != nil {
			return record.Tuple{}, false, err
		}
		for _, idx := range e.indexes {
			key, err := idx.keyOf(tup.Values)
			if err != nil {
				return record.Tuple{}, false, err
			}
			if _, err := idx.Tree.Insert(key, rid); err != nil {
				return record.Tuple{}, false, err
			}
		}
		count++
	}

	e.finished = true
	return record.Tuple{Values: []record.Value{count}}, true, nil
}

func (e *Insert) OutputSchema() record.Schema { return countSchema }
