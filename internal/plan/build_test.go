package plan_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relstore/relstore/internal/buffer"
	"github.com/relstore/relstore/internal/catalog"
	"github.com/relstore/relstore/internal/execution"
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/index/btree"
	"github.com/relstore/relstore/internal/plan"
	"github.com/relstore/relstore/internal/record"
)

type fakeResolver struct {
	tables  map[string]*heap.Table
	indexes map[string]btree.Index
}

func (f *fakeResolver) OpenTable(name string) (*heap.Table, error) {
	tbl, ok := f.tables[name]
	if !ok {
		return nil, errors.New("no such table")
	}
	return tbl, nil
}

func (f *fakeResolver) OpenIndex(name string) (btree.Index, error) {
	idx, ok := f.indexes[name]
	if !ok {
		return nil, errors.New("no such index")
	}
	return idx, nil
}

func testSchema() record.Schema {
	return record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64},
		{Name: "name", Type: record.ColText},
	}}
}

func TestBuild_SeqScanNode(t *testing.T) {
	pool := buffer.NewPool(16, 2, buffer.NewInMemoryDiskManager())
	schema := testSchema()
	tbl, err := heap.NewTable(pool, schema)
	require.NoError(t, err)
	_, err = tbl.Insert([]record.Value{int64(1), "a"})
	require.NoError(t, err)

	resolver := &fakeResolver{tables: map[string]*heap.Table{"t": tbl}}
	node := &plan.SeqScanNode{Table: catalog.TableInfo{Name: "t"}, Schema: schema}

	ex, err := plan.Build(node, resolver)
	require.NoError(t, err)
	require.NoError(t, ex.Init())
	tup, ok, err := ex.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), tup.Values[0])
}

func TestBuild_UnknownTableErrors(t *testing.T) {
	resolver := &fakeResolver{tables: map[string]*heap.Table{}}
	node := &plan.SeqScanNode{Table: catalog.TableInfo{Name: "missing"}, Schema: testSchema()}
	_, err := plan.Build(node, resolver)
	require.Error(t, err)
}

func TestBuild_LimitOverSortNode(t *testing.T) {
	pool := buffer.NewPool(16, 2, buffer.NewInMemoryDiskManager())
	schema := testSchema()
	tbl, err := heap.NewTable(pool, schema)
	require.NoError(t, err)
	for _, v := range []int64{3, 1, 2} {
		_, err := tbl.Insert([]record.Value{v, "row"})
		require.NoError(t, err)
	}

	resolver := &fakeResolver{tables: map[string]*heap.Table{"t": tbl}}
	node := &plan.LimitNode{
		N: 2,
		Child: &plan.SortNode{
			Child: &plan.SeqScanNode{Table: catalog.TableInfo{Name: "t"}, Schema: schema},
			Keys: []execution.SortKey{{
				GetArg: func(t record.Tuple) record.Value { return t.GetValue(0) },
				Order:  execution.SortAsc,
			}},
		},
	}

	ex, err := plan.Build(node, resolver)
	require.NoError(t, err)
	require.NoError(t, ex.Init())

	var got []int64
	for {
		tup, ok, err := ex.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, tup.Values[0].(int64))
	}
	require.Equal(t, []int64{1, 2}, got)
}
