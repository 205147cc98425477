package execution_test

import (
	"testing"

	"github.com/relstore/relstore/internal/execution"
	"github.com/relstore/relstore/internal/record"
)

// rowsExecutor is a canned-rows Executor stand-in for a real scan, used to
// drive operators under test without a heap table or buffer pool.
type rowsExecutor struct {
	schema record.Schema
	all    []record.Tuple
	rows   []record.Tuple
	pos    int
}

func newRowsExecutor(schema record.Schema, rows []record.Tuple) *rowsExecutor {
	return &rowsExecutor{schema: schema, all: rows}
}

func (r *rowsExecutor) Init() error {
	r.rows = r.all
	r.pos = 0
	return nil
}

func (r *rowsExecutor) Next() (record.Tuple, bool, error) {
	if r.pos >= len(r.rows) {
		return record.Tuple{}, false, nil
	}
	tup := r.rows[r.pos]
	r.pos++
	return tup, true, nil
}

func (r *rowsExecutor) OutputSchema() record.Schema { return r.schema }

var _ execution.Executor = (*rowsExecutor)(nil)

func drain(t *testing.T, ex execution.Executor) []record.Tuple {
	if err := ex.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	var out []record.Tuple
	for {
		tup, ok, err := ex.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		out = append(out, tup)
	}
	return out
}

func col(name string, typ record.ColumnType) record.Column {
	return record.Column{Name: name, Type: typ}
}
